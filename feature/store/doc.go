// Package store is the relational system of record shared by every sync phase.
//
// It persists clients, sites and equipment mappings with GORM and exposes
// them to the reconcile package as:
//
//   - a SnapshotSource (Source) returning active sites and equipment,
//   - a Mutator (Mutator) inserting, updating, reviving and obsoleting rows,
//   - an IdentityStore holding the maintenance ids of linked records.
//
// It also keeps the conflict queue and the sync_logs audit trail, and
// implements the site merge and ignore operations used after matching.
//
// Equipment is never removed by a soft delete: is_obsolete and obsolete_at
// are set instead, and a later create with the same device id revives the row.
package store
