// Package sync runs the reconciliation between the monitoring platform, the
// store and the maintenance platform.
//
// A run executes up to three phases in order:
//
//   - monitoring_to_store mirrors the monitoring layout (sites, inverters,
//     modules and strings) into the store. Sites are never removed and the
//     operator owned site fields are left alone.
//   - maintenance_to_store fills blank store fields from the maintenance
//     platform, links maintenance identifiers and imports SIM and plant
//     records. Disagreements become conflicts.
//   - store_to_maintenance pushes the store to the maintenance platform.
//     Ignored sites are skipped, nothing is deleted there and sites without
//     a client mapping wait for a manual match.
//
// Each executed phase is verified by planning it again; what is left is
// reported as drift. Runs hold a run-level lock, write an audit entry per
// phase, store new conflicts and alert on them, then archive their report.
package sync
