// Package maintenance reads and writes the maintenance platform.
//
// Sites are identified by their "System Key (Vcom ID)" custom field or, when
// it is missing, by the links recorded in the store. Materials map onto the
// equipment categories through their catalogue id. Writes go through a
// gateway.Gateway limited to 60 calls per minute by default.
package maintenance
