package conflicts

import (
	"context"
	"errors"

	"site-sync/core/reconcile"
	"site-sync/core/resolver"
	"site-sync/feature/store"

	"go.uber.org/zap"
)

// ErrMatchingDisabled is returned when no maintenance platform is configured.
var ErrMatchingDisabled = errors.New("site matching is not configured")

// Linker pairs and links store sites with maintenance sites.
type Linker interface {
	Candidates(ctx context.Context, cache *reconcile.SnapshotCache) (resolver.Result, error)
	Link(ctx context.Context, key, maintenanceID, source string) error
}

// Service handles conflict review and manual site matching.
type Service struct {
	store  *store.Store
	linker Linker
	cache  *reconcile.SnapshotCache
	logger *zap.Logger
}

// NewService creates a new conflicts service.
func NewService(st *store.Store, linker Linker, cache *reconcile.SnapshotCache, logger *zap.Logger) *Service {
	return &Service{store: st, linker: linker, cache: cache, logger: logger}
}

// List returns the conflicts with status, or all of them.
func (s *Service) List(ctx context.Context, status string) ([]store.Conflict, error) {
	return s.store.Conflicts(ctx, status)
}

// Resolve closes a pending conflict.
func (s *Service) Resolve(ctx context.Context, id uint, status, resolution string) (*store.Conflict, error) {
	return s.store.ResolveConflict(ctx, id, status, resolution, store.SourceUser)
}

// Candidates previews the pairing of unlinked sites.
func (s *Service) Candidates(ctx context.Context) (resolver.Result, error) {
	if s.linker == nil {
		return resolver.Result{}, ErrMatchingDisabled
	}
	return s.linker.Candidates(ctx, s.cache)
}

// Link links a store site to a maintenance site chosen by an operator.
func (s *Service) Link(ctx context.Context, key, maintenanceID string) error {
	if s.linker == nil {
		return ErrMatchingDisabled
	}
	if err := s.linker.Link(ctx, key, maintenanceID, store.SourceUser); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate("maintenance")
	}
	return nil
}

// Ignore excludes a site from matching and from pushes, or includes it again.
func (s *Service) Ignore(ctx context.Context, key string, ignore bool) error {
	return s.store.IgnoreSite(ctx, key, ignore, store.SourceUser)
}
