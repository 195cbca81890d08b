package main

import "site-sync/cmd"

func main() {
	cmd.Execute()
}
