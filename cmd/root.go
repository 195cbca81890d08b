package cmd

import (
	"fmt"
	"os"

	"site-sync/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "site-sync",
	Short: "Site Sync Service",
	Long: `Site Sync keeps the solar site inventory aligned between the monitoring
platform, the internal store and the maintenance platform.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// Console encoding with ISO8601 timestamps, the config may not be loaded yet
		l := logger.Console()
		if l != nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Println(err)
		}
		os.Exit(1)
	}
}
