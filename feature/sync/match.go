package sync

import (
	"context"
	"fmt"
	"strconv"

	"site-sync/core/entity"
	"site-sync/core/reconcile"
	"site-sync/core/report"
	"site-sync/core/resolver"
	"site-sync/feature/store"

	"go.uber.org/zap"
)

// ConflictAmbiguousSite is raised for a pairing below the auto-merge tier.
const ConflictAmbiguousSite = "site_ambiguous"

// MatchOptions controls a match run.
type MatchOptions struct {
	// AutoMerge links pairings at or above the auto-merge tier.
	AutoMerge bool
	// MinTier overrides the configured auto-merge tier when set.
	MinTier string
	DryRun  bool
	// Confirmed must be set for links to be written.
	Confirmed bool
}

func (o MatchOptions) executes() bool { return o.Confirmed && !o.DryRun }

// Candidates pairs the store sites without a maintenance link with the
// maintenance sites without a monitoring key. When cache is not nil the
// maintenance snapshot is served from it.
func (s *Service) Candidates(ctx context.Context, cache *reconcile.SnapshotCache) (resolver.Result, error) {
	var err error
	if cache != nil {
		_, err = cache.Get(ctx, s.deps.Maintenance)
	} else {
		_, _, err = reconcile.Load(ctx, s.deps.Maintenance, s.logger)
	}
	if err != nil {
		return resolver.Result{}, err
	}
	unlinked, err := s.deps.Store.UnlinkedSites(ctx)
	if err != nil {
		return resolver.Result{}, err
	}
	return resolver.New(resolver.Options{CleanNames: true}, s.logger).Resolve(unlinked, s.deps.Maintenance.Unkeyed()), nil
}

// Match resolves unlinked sites and, when asked, links the confident pairs.
// Pairs below the tier and store sites left alone become conflicts.
func (s *Service) Match(ctx context.Context, opts MatchOptions) (*report.Report, error) {
	tierName := s.cfg.AutoMergeTier
	if opts.MinTier != "" {
		tierName = opts.MinTier
	}
	minTier, err := resolver.ParseTier(tierName)
	if err != nil {
		return nil, err
	}

	unlock, err := s.deps.Locker.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	defer func() {
		if err := unlock(context.Background()); err != nil {
			s.logger.Warn("Failed to release run lock", zap.Error(err))
		}
	}()

	r := s.newRun(RunOptions{DryRun: opts.DryRun, Confirmed: opts.Confirmed})
	res, err := s.Candidates(ctx, nil)
	if err != nil {
		s.finish(ctx, r)
		return r.report, fmt.Errorf("failed to resolve sites: %w", err)
	}

	for _, m := range res.AutoAccept(minTier) {
		merged := false
		if opts.AutoMerge && opts.executes() {
			if err := s.Link(ctx, m.A.Key, m.B.Key, store.SourceAuto); err != nil {
				s.logger.Error("Failed to merge site",
					zap.String("key", m.A.Key), zap.String("maintenance_id", m.B.Key), zap.Error(err))
			} else {
				merged = true
			}
		}
		r.report.AddMatch(m, merged)
	}
	for _, m := range res.Ambiguous(minTier) {
		r.report.AddMatch(m, false)
		amb := &reconcile.AmbiguousMatchError{
			System:         entity.SystemMonitoring,
			Key:            m.A.Key,
			Name:           m.A.Name,
			BestKey:        m.B.Key,
			BestSimilarity: m.Similarity,
		}
		r.conflicts = append(r.conflicts, reconcile.Conflict{
			Kind:     ConflictAmbiguousSite,
			Category: entity.CategorySite,
			Key:      m.A.Key,
			Message:  amb.Error(),
			Details: map[string]any{
				"maintenance_id": m.B.Key,
				"confidence":     m.Tier.String(),
				"reasons":        m.Reasons,
			},
		})
	}
	for _, c := range res.UnmatchedA {
		amb := &reconcile.AmbiguousMatchError{System: entity.SystemMonitoring, Key: c.Key, Name: c.Name}
		r.report.Unmatched = append(r.report.Unmatched, report.Unmatched{
			System: string(entity.SystemMonitoring), Key: c.Key, Name: c.Name, Reason: amb.Error(),
		})
		r.conflicts = append(r.conflicts, reconcile.Conflict{
			Kind:     ConflictUnmatchedSite,
			Category: entity.CategorySite,
			Key:      c.Key,
			Message:  amb.Error(),
			Details:  map[string]any{"name": c.Name},
		})
	}
	for _, c := range res.UnmatchedB {
		amb := &reconcile.AmbiguousMatchError{System: entity.SystemMaintenance, Key: c.Key, Name: c.Name}
		r.report.Unmatched = append(r.report.Unmatched, report.Unmatched{
			System: string(entity.SystemMaintenance), Key: c.Key, Name: c.Name, Reason: amb.Error(),
		})
	}

	s.finish(ctx, r)
	return r.report, nil
}

// Link merges the store site key with maintenance site id and writes the key
// back to the maintenance site.
func (s *Service) Link(ctx context.Context, key, maintenanceID, source string) error {
	id, err := strconv.Atoi(maintenanceID)
	if err != nil {
		return fmt.Errorf("invalid maintenance site id %q: %w", maintenanceID, err)
	}
	if err := s.deps.Store.MergeSite(ctx, key, id, source); err != nil {
		return err
	}
	if s.deps.SiteKeys != nil {
		if err := s.deps.SiteKeys.SetSiteKey(ctx, id, key); err != nil {
			return fmt.Errorf("site %s linked in store but key write-back failed: %w", key, err)
		}
	}
	s.logger.Info("Site linked", zap.String("key", key), zap.Int("maintenance_id", id), zap.String("source", source))
	return nil
}
