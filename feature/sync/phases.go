package sync

import (
	"context"
	"fmt"

	"site-sync/core/entity"
	"site-sync/core/reconcile"
	"site-sync/core/resolver"
	"site-sync/feature/store"

	"go.uber.org/zap"
)

// Conflict kinds raised by the phases.
const (
	ConflictClientMapping = "client_map_id"
	ConflictUnknownSite   = "site_not_in_store"
	ConflictUnmatchedSite = "site_unmatched"
)

// layoutCategories are the categories the monitoring platform describes.
var layoutCategories = []entity.Category{
	entity.CategorySite,
	entity.CategoryInverter,
	entity.CategoryModule,
	entity.CategoryString,
}

var equipmentCategories = []entity.Category{
	entity.CategoryInverter,
	entity.CategoryModule,
	entity.CategoryString,
	entity.CategorySIM,
	entity.CategoryPlant,
}

// siteFillFields are the site fields filled from the maintenance platform.
var siteFillFields = []string{
	entity.FieldName,
	entity.FieldAddress,
	entity.FieldLatitude,
	entity.FieldLongitude,
	entity.FieldNominalPower,
	entity.FieldCommissionDate,
	entity.FieldCode,
	entity.FieldAldiID,
	entity.FieldAldiStoreID,
	entity.FieldProjectNumber,
	entity.FieldClientID,
}

// equipmentFillFields are the equipment fields filled from the maintenance platform.
var equipmentFillFields = []string{
	entity.FieldName,
	entity.FieldBrand,
	entity.FieldModel,
	entity.FieldSerialNumber,
}

// pushIgnore are the site fields never pushed to the maintenance platform.
var pushIgnore = append(append([]string{}, entity.SiteOwnedFields...), entity.FieldLatitude, entity.FieldLongitude)

// equipmentPushIgnore are the material fields the maintenance API cannot change.
var equipmentPushIgnore = []string{entity.FieldName, entity.FieldParent}

// planMonitoring mirrors the monitoring layout. Sites are never removed and
// operator owned site fields are left alone.
func planMonitoring(current, target reconcile.Snapshot) reconcile.PatchSet {
	patch := reconcile.DiffFull(current, target, reconcile.DiffOptions{Ignore: entity.SiteOwnedFields})
	return patch.Without(reconcile.OpDelete, entity.CategorySite)
}

// planMaintenance fills store gaps from the maintenance platform. Only SIM
// and plant records are created, and only under sites the store knows.
// Maintenance sites unknown to the store and disagreeing client mappings are
// returned as conflicts.
func planMaintenance(current, target reconcile.Snapshot) (reconcile.PatchSet, []reconcile.Conflict) {
	sites := reconcile.DiffFillMissing(
		current.Categories(entity.CategorySite),
		target.Categories(entity.CategorySite),
		reconcile.FillOptions{Fields: siteFillFields},
	)
	equipment := reconcile.DiffFillMissing(
		current.Categories(equipmentCategories...),
		target.Categories(equipmentCategories...),
		reconcile.FillOptions{Fields: equipmentFillFields, Force: []entity.Category{entity.CategorySIM}},
	)
	patch := merge(sites, equipment)

	var conflicts []reconcile.Conflict
	for _, e := range patch.Add {
		if e.Category() != entity.CategorySite {
			continue
		}
		id, _ := e.ID(entity.SystemMaintenance)
		conflicts = append(conflicts, reconcile.Conflict{
			Kind:     ConflictUnknownSite,
			Category: entity.CategorySite,
			Key:      e.Key(),
			Message:  fmt.Sprintf("maintenance site %s carries monitoring key %s unknown to the store", id, e.Key()),
			Details:  map[string]any{"maintenance_id": id, "name": e.Text(entity.FieldName)},
		})
	}
	patch = patch.Filter(reconcile.OpAdd, func(e entity.Entity) bool {
		if e.Category() != entity.CategorySIM && e.Category() != entity.CategoryPlant {
			return false
		}
		_, ok := current[e.Parent()]
		return ok
	})

	for _, key := range current.Categories(entity.CategorySite).Keys() {
		tgt, ok := target[key]
		if !ok {
			continue
		}
		cv, tv := current[key].Value(entity.FieldClientID), tgt.Value(entity.FieldClientID)
		if entity.IsBlank(cv) || entity.IsBlank(tv) || entity.ValuesEqual(cv, tv) {
			continue
		}
		conflicts = append(conflicts, reconcile.Conflict{
			Kind:     ConflictClientMapping,
			Category: entity.CategorySite,
			Key:      key,
			Message:  fmt.Sprintf("site %s is mapped to client %v in the store and %v in maintenance", key, cv, tv),
			Details:  map[string]any{"store_client_id": cv, "maintenance_client_id": tv},
		})
	}
	return patch, conflicts
}

// pushTarget prepares the store snapshot for the maintenance platform:
// ignored sites and their equipment are dropped, site names are cleaned and
// every site gets a plant record.
func pushTarget(snap reconcile.Snapshot, plantName string) reconcile.Snapshot {
	ignored := map[string]bool{}
	for key, e := range snap.Categories(entity.CategorySite) {
		if b, ok := e.Value(entity.FieldIgnoreSite).(bool); ok && b {
			ignored[key] = true
		}
	}

	out := make(reconcile.Snapshot, len(snap))
	for key, e := range snap {
		if ignored[rootSite(snap, e)] {
			continue
		}
		if e.Category() == entity.CategorySite {
			e = e.With(entity.FieldName, resolver.CleanSiteName(e.Text(entity.FieldName)))
		}
		out[key] = e
	}
	for _, key := range out.Categories(entity.CategorySite).Keys() {
		plant := entity.PlantKey(key)
		if _, ok := out[plant]; !ok {
			out[plant] = entity.New(entity.CategoryPlant, plant,
				entity.Fields{entity.FieldName: plantName}, entity.WithParent(key))
		}
	}
	return out
}

// planPush brings the maintenance platform in line with the store. Nothing is
// ever deleted there, SIM and plant records are never updated, material names
// and parents are left as created and sites without a client mapping cannot
// be created.
func planPush(current, target reconcile.Snapshot) (reconcile.PatchSet, []reconcile.Conflict) {
	isSite := func(e entity.Entity) bool { return e.Category() == entity.CategorySite }
	isEquipment := func(e entity.Entity) bool { return !isSite(e) }
	patch := merge(
		reconcile.DiffFull(current.Filter(isSite), target.Filter(isSite), reconcile.DiffOptions{Ignore: pushIgnore}),
		reconcile.DiffFull(current.Filter(isEquipment), target.Filter(isEquipment), reconcile.DiffOptions{Ignore: equipmentPushIgnore}),
	)
	patch = patch.Without(reconcile.OpUpdate, entity.CategorySIM, entity.CategoryPlant)
	patch.Delete = nil

	var conflicts []reconcile.Conflict
	blocked := map[string]bool{}
	for _, e := range patch.Add {
		if e.Category() != entity.CategorySite || !entity.IsBlank(e.Value(entity.FieldClientID)) {
			continue
		}
		blocked[e.Key()] = true
		conflicts = append(conflicts, reconcile.Conflict{
			Kind:     ConflictUnmatchedSite,
			Category: entity.CategorySite,
			Key:      e.Key(),
			Message:  fmt.Sprintf("site %s has no maintenance site and no client mapping", e.Key()),
			Details:  map[string]any{"name": e.Text(entity.FieldName)},
		})
	}
	if len(blocked) > 0 {
		patch = patch.Filter(reconcile.OpAdd, func(e entity.Entity) bool {
			return !blocked[rootSite(target, e)]
		})
	}
	return patch, conflicts
}

func (s *Service) storeApplier() *reconcile.Applier {
	return reconcile.NewApplier(entity.SystemStore, s.deps.Store.Mutator(),
		reconcile.WithIdentityStore(s.deps.Store), reconcile.WithLogger(s.logger))
}

// phaseMonitoring copies the monitoring layout into the store.
func (s *Service) phaseMonitoring(ctx context.Context, r *run) error {
	const source, target = "monitoring", "store"
	want, err := s.load(ctx, r, s.deps.Monitoring)
	if err != nil {
		return s.phaseFailed(r, PhaseMonitoring, source, target, err)
	}
	src := s.deps.Store.Source(layoutCategories...)
	current, err := s.load(ctx, r, src)
	if err != nil {
		return s.phaseFailed(r, PhaseMonitoring, source, target, err)
	}

	patch := planMonitoring(current, want)
	res, err := s.apply(ctx, r, PhaseMonitoring, s.storeApplier(), patch,
		reconcile.ApplyOptions{Existing: current}, source, target, store.SourceMonitoring)
	if err != nil {
		return err
	}
	if res.Executed && !patch.IsEmpty() {
		s.verify(ctx, r, PhaseMonitoring, func(ctx context.Context) (reconcile.PatchSet, error) {
			after, _, err := reconcile.Load(ctx, src, s.logger)
			if err != nil {
				return reconcile.PatchSet{}, err
			}
			return planMonitoring(after, want), nil
		})
	}
	return nil
}

// phaseMaintenance fills the store from the maintenance platform.
func (s *Service) phaseMaintenance(ctx context.Context, r *run) error {
	const source, target = "maintenance", "store"
	want, err := s.maintenanceSnapshot(ctx, r)
	if err != nil {
		return s.phaseFailed(r, PhaseMaintenance, source, target, err)
	}
	src := s.deps.Store.Source()
	current, err := s.load(ctx, r, src)
	if err != nil {
		return s.phaseFailed(r, PhaseMaintenance, source, target, err)
	}

	patch, conflicts := planMaintenance(current, want)
	r.conflicts = append(r.conflicts, conflicts...)
	if r.opts.executes() {
		if n := s.linkIdentities(ctx, current, want); n > 0 {
			s.logger.Info("Linked maintenance identifiers", zap.Int("links", n))
		}
	}

	res, err := s.apply(ctx, r, PhaseMaintenance, s.storeApplier(), patch,
		reconcile.ApplyOptions{Existing: current}, source, target, store.SourceMaintenance)
	if err != nil {
		return err
	}
	if res.Executed && !patch.IsEmpty() {
		s.verify(ctx, r, PhaseMaintenance, func(ctx context.Context) (reconcile.PatchSet, error) {
			after, _, err := reconcile.Load(ctx, src, s.logger)
			if err != nil {
				return reconcile.PatchSet{}, err
			}
			patch, _ := planMaintenance(after, want)
			return patch, nil
		})
	}
	return nil
}

// linkIdentities stores the maintenance id of records present on both sides
// that the store does not link yet.
func (s *Service) linkIdentities(ctx context.Context, current, want reconcile.Snapshot) int {
	n := 0
	for _, key := range want.Keys() {
		tgt := want[key]
		id, ok := tgt.ID(entity.SystemMaintenance)
		if !ok {
			continue
		}
		cur, ok := current[key]
		if !ok {
			continue
		}
		if _, linked := cur.ID(entity.SystemMaintenance); linked {
			continue
		}
		if err := s.deps.Store.Link(ctx, entity.SystemMaintenance, tgt.Category(), key, id); err != nil {
			s.logger.Warn("Failed to link maintenance id",
				zap.Stringer("category", tgt.Category()), zap.String("key", key), zap.String("id", id), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

// phasePush pushes the store to the maintenance platform.
func (s *Service) phasePush(ctx context.Context, r *run) error {
	const source, target = "store", "maintenance"
	snap, err := s.load(ctx, r, s.deps.Store.Source())
	if err != nil {
		return s.phaseFailed(r, PhasePush, source, target, err)
	}
	current, err := s.maintenanceSnapshot(ctx, r)
	if err != nil {
		return s.phaseFailed(r, PhasePush, source, target, err)
	}

	want := pushTarget(snap, s.cfg.PlantName)
	patch, conflicts := planPush(current, want)
	r.conflicts = append(r.conflicts, conflicts...)

	applier := reconcile.NewApplier(entity.SystemMaintenance, s.deps.MaintenanceMutator,
		reconcile.WithIdentityStore(s.deps.Store), reconcile.WithLogger(s.logger))
	res, err := s.apply(ctx, r, PhasePush, applier, patch,
		reconcile.ApplyOptions{RespectUpdatable: true, Existing: current}, source, target, store.SourceAuto)
	if err != nil {
		return err
	}
	if res.Executed && !patch.IsEmpty() {
		r.maintenance = nil
		s.verify(ctx, r, PhasePush, func(ctx context.Context) (reconcile.PatchSet, error) {
			after, _, err := reconcile.Load(ctx, s.deps.Maintenance, s.logger)
			if err != nil {
				return reconcile.PatchSet{}, err
			}
			patch, _ := planPush(after, want)
			return patch, nil
		})
	}
	return nil
}

// verify re-plans a phase after execution and reports what is left as drift.
func (s *Service) verify(ctx context.Context, r *run, p Phase, replan func(context.Context) (reconcile.PatchSet, error)) {
	patch, err := replan(ctx)
	if err != nil {
		s.logger.Warn("Verification failed", zap.String("phase", string(p)), zap.Error(err))
		return
	}
	if patch.IsEmpty() {
		s.logger.Info("Verification passed", zap.String("phase", string(p)))
		return
	}
	s.logger.Warn("Residual drift after phase", zap.String("phase", string(p)), zap.Int("entries", patch.Len()))
	r.report.AddDrift(string(p), patch)
}
