package runs

import (
	"context"
	"errors"
	"fmt"

	"site-sync/core/report"
	"site-sync/feature/store"
	"site-sync/feature/sync"

	"go.uber.org/zap"
)

var (
	// ErrRunsDisabled is returned when no runner is configured.
	ErrRunsDisabled = errors.New("sync runs are not configured")
	// ErrArchiveDisabled is returned when report archiving is off.
	ErrArchiveDisabled = errors.New("report archive is not configured")
	// ErrInvalidRequest is returned for unusable run options.
	ErrInvalidRequest = errors.New("invalid run request")
)

// Runner executes sync runs.
type Runner interface {
	Run(ctx context.Context, opts sync.RunOptions) (*report.Report, error)
}

// Reports reads archived reports.
type Reports interface {
	Latest(ctx context.Context) (*report.Report, error)
}

// Service triggers runs and exposes their history.
type Service struct {
	store   *store.Store
	runner  Runner
	reports Reports
	logger  *zap.Logger
}

// NewService creates a new runs service.
func NewService(st *store.Store, runner Runner, reports Reports, logger *zap.Logger) *Service {
	return &Service{store: st, runner: runner, reports: reports, logger: logger}
}

// Run executes the phases named in phases.
func (s *Service) Run(ctx context.Context, phases string, dryRun, confirmed bool) (*report.Report, error) {
	if s.runner == nil {
		return nil, ErrRunsDisabled
	}
	list, err := sync.ParsePhases(phases)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return s.runner.Run(ctx, sync.RunOptions{Phases: list, DryRun: dryRun, Confirmed: confirmed})
}

// Latest returns the newest archived report.
func (s *Service) Latest(ctx context.Context) (*report.Report, error) {
	if s.reports == nil {
		return nil, ErrArchiveDisabled
	}
	return s.reports.Latest(ctx)
}

// Logs returns the newest audit entries.
func (s *Service) Logs(ctx context.Context, limit int) ([]store.SyncLog, error) {
	return s.store.SyncLogs(ctx, limit)
}

// Schema returns the store columns missing from the database.
func (s *Service) Schema(ctx context.Context) ([]string, error) {
	return s.store.CheckSchema(ctx)
}
