package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"site-sync/core/config"
	"site-sync/core/database"
	"site-sync/core/entity"
	"site-sync/core/reconcile"
	"site-sync/feature/monitoring"
	"site-sync/feature/store"

	"go.uber.org/zap"
)

// Prints the monitoring layout of the given systems and the patch the
// monitoring_to_store phase would apply for them.
func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: debug_snapshot SYSTEM_KEY [SYSTEM_KEY...]")
	}
	keys := os.Args[1:]

	// Load config
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.RequireCredentials(true, false); err != nil {
		log.Fatal(err)
	}

	// Connect to DB
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	nop := zap.NewNop()
	client := monitoring.NewClient(cfg.Monitoring, nop)

	fmt.Println("=== TEST 1: Monitoring snapshot ===")
	target, dups, err := reconcile.Load(ctx, monitoring.NewSource(client, nop, keys...), nop)
	if err != nil {
		log.Fatal(err)
	}
	for _, e := range target.Entities() {
		raw, _ := json.Marshal(e.Fields())
		fmt.Printf("%-9s %-30s parent=%s %s\n", e.Category(), e.Key(), e.Parent(), raw)
	}
	for _, d := range dups {
		fmt.Printf("DUPLICATE %s %s\n", d.Category(), d.Key())
	}

	fmt.Println("\n=== TEST 2: Store snapshot ===")
	only := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		only[k] = struct{}{}
	}
	all, _, err := reconcile.Load(ctx, store.New(db, nop).Source(), nop)
	if err != nil {
		log.Fatal(err)
	}
	current := all.Filter(func(e entity.Entity) bool {
		site := e.Key()
		if e.Category() != entity.CategorySite {
			site = rootKey(all, e)
		}
		_, ok := only[site]
		return ok
	})
	fmt.Printf("Store entities for the requested systems: %d\n", len(current.Entities()))

	fmt.Println("\n=== TEST 3: Planned patch ===")
	patch := reconcile.DiffFull(current, target, reconcile.DiffOptions{Ignore: entity.SiteOwnedFields})
	for _, e := range patch.Add {
		fmt.Printf("ADD    %s %s\n", e.Category(), e.Key())
	}
	for _, c := range patch.Update {
		fmt.Printf("UPDATE %s %s %v\n", c.Old.Category(), c.Key(), c.Fields)
	}
	for _, e := range patch.Delete {
		fmt.Printf("DELETE %s %s\n", e.Category(), e.Key())
	}
	if patch.IsEmpty() {
		fmt.Println("Store is in sync")
	}
}

func rootKey(s reconcile.Snapshot, e entity.Entity) string {
	for e.Parent() != "" {
		p, ok := s[e.Parent()]
		if !ok {
			return e.Parent()
		}
		e = p
	}
	return e.Key()
}
