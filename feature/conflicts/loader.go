package conflicts

import (
	"site-sync/core/reconcile"
	"site-sync/feature/store"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
}

// NewFeature creates the conflicts feature. linker may be nil, which
// disables the matching routes.
func NewFeature(st *store.Store, linker Linker, cache *reconcile.SnapshotCache, logger *zap.Logger) *Feature {
	svc := NewService(st, linker, cache, logger)
	return &Feature{service: svc, handler: NewHandler(svc)}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "conflicts"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return f.service.store != nil
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}
