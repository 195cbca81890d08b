// Package database handles connections to the system of record and schema
// inspection.
//
// It wraps GORM and selects the Postgres, MySQL or SQLite driver from the
// configuration. SQLite is meant for tests and local runs.
//
// # Schema Inspection
//
// GetTableColumns reads live column definitions for each supported dialect and
// MissingColumns reports expected columns absent from the database, which the
// store checks before a run writes anything.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    return fmt.Errorf("database unavailable: %w", err)
//	}
//
//	missing, err := database.MissingColumns(db, map[string][]string{"sites_mapping": {"id", "name"}})
package database
