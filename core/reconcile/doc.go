// Package reconcile computes and applies patch sets between snapshots of
// the same records held by different systems.
//
// # Architecture
//
// The package consists of three components:
//
// 1. Diff engine: DiffFull treats the target snapshot as authoritative and
// yields adds, updates and deletes. DiffFillMissing never deletes and only
// fills blank fields, except for forced categories where the target wins.
// Both honor overwrite protection: a populated value is never replaced by a
// blank one unless the category is authoritative for that field.
//
// 2. Applier: executes a PatchSet through a Mutator. Category levels come
// from the parent declared by each category policy, so creates and updates
// run roots first and deletes run leaves first. Parent identifiers are
// resolved through the ids created during the run, the existing snapshot and
// the IdentityStore. Record failures are isolated and summarized.
//
// 3. Cache: SnapshotCache memoizes snapshots with stampede protection for
// interactive callers such as the candidate preview endpoint.
//
// # Usage Example
//
//	current, _, err := reconcile.Load(ctx, storeSource, logger)
//	target, _, err := reconcile.Load(ctx, monitoringSource, logger)
//
//	patch := reconcile.DiffFull(current, target, reconcile.DiffOptions{
//	    Ignore: []string{"yuman_site_id"},
//	})
//
//	applier := reconcile.NewApplier(entity.SystemStore, storeMutator,
//	    reconcile.WithLogger(logger))
//	result, err := applier.Apply(ctx, patch, reconcile.ApplyOptions{
//	    Confirmed: true,
//	    Existing:  current,
//	})
package reconcile
