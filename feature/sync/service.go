package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"site-sync/core/entity"
	"site-sync/core/gateway"
	"site-sync/core/lock"
	"site-sync/core/reconcile"
	"site-sync/core/report"
	"site-sync/core/resolver"
	"site-sync/feature/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MaintenanceSource is the maintenance snapshot source. Unkeyed returns the
// sites of the last fetch carrying no monitoring key.
type MaintenanceSource interface {
	reconcile.SnapshotSource
	Unkeyed() []resolver.Candidate
}

// SiteKeyWriter stores the monitoring key on a maintenance site.
type SiteKeyWriter interface {
	SetSiteKey(ctx context.Context, id int, key string) error
}

// Deps are the collaborators of a Service. Archive and Gateways are optional.
type Deps struct {
	Store              *store.Store
	Monitoring         reconcile.SnapshotSource
	Maintenance        MaintenanceSource
	MaintenanceMutator reconcile.Mutator
	SiteKeys           SiteKeyWriter
	Locker             lock.Locker
	Alerts             reconcile.AlertChannel
	Archive            *report.Archive
	Gateways           []*gateway.Gateway
}

// RunOptions controls a sync run.
type RunOptions struct {
	// Phases to run, in execution order.
	Phases []Phase
	// DryRun plans every phase without writing.
	DryRun bool
	// Confirmed must be set for anything to be written.
	Confirmed bool
}

func (o RunOptions) executes() bool { return o.Confirmed && !o.DryRun }

// Service runs the reconciliation phases between the monitoring platform,
// the store and the maintenance platform.
type Service struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewService creates a sync service.
func NewService(deps Deps, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PlantName == "" {
		cfg.PlantName = "Centrale"
	}
	return &Service{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("site-sync/sync"),
		now:    time.Now,
	}
}

// run is the state of one Run or Match call.
type run struct {
	opts      RunOptions
	report    *report.Report
	conflicts []reconcile.Conflict
	// maintenance caches the maintenance snapshot between phases.
	maintenance reconcile.Snapshot
}

// Run executes the selected phases under the run lock and returns the
// report. A phase failing to load its snapshots or exhausting a daily quota
// aborts the remaining phases; the report is still completed and archived.
func (s *Service) Run(ctx context.Context, opts RunOptions) (*report.Report, error) {
	if len(opts.Phases) == 0 {
		opts.Phases = AllPhases
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

	ctx, span := s.tracer.Start(ctx, "sync.Run", trace.WithAttributes(
		attribute.Bool("sync.dry_run", opts.DryRun),
		attribute.Bool("sync.confirmed", opts.Confirmed),
	))
	defer span.End()

	r := s.newRun(opts)
	s.logger.Info("Sync run started",
		zap.String("run_id", r.report.RunID),
		zap.Any("phases", opts.Phases),
		zap.Bool("dry_run", opts.DryRun),
		zap.Bool("confirmed", opts.Confirmed),
	)

	var runErr error
	for _, p := range opts.Phases {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := s.runPhase(ctx, r, p); err != nil {
			runErr = fmt.Errorf("phase %s: %w", p, err)
			if errors.Is(err, gateway.ErrDailyQuotaExhausted) {
				s.logger.Error("Daily quota exhausted, remaining phases skipped", zap.String("phase", string(p)))
			} else {
				s.logger.Error("Phase aborted", zap.String("phase", string(p)), zap.Error(err))
			}
			break
		}
	}

	s.finish(ctx, r)
	if runErr != nil {
		span.RecordError(runErr)
	}
	return r.report, runErr
}

func (s *Service) newRun(opts RunOptions) *run {
	return &run{
		opts: opts,
		report: &report.Report{
			RunID:     uuid.NewString(),
			StartedAt: s.now().UTC(),
			DryRun:    !opts.executes(),
			Quota:     map[string]int{},
		},
	}
}

func (s *Service) runPhase(ctx context.Context, r *run, p Phase) error {
	switch p {
	case PhaseMonitoring:
		return s.phaseMonitoring(ctx, r)
	case PhaseMaintenance:
		return s.phaseMaintenance(ctx, r)
	case PhasePush:
		return s.phasePush(ctx, r)
	default:
		return fmt.Errorf("unknown phase %q", p)
	}
}

// load fetches a snapshot and records its duplicates in the report.
func (s *Service) load(ctx context.Context, r *run, src reconcile.SnapshotSource) (reconcile.Snapshot, error) {
	snap, dropped, err := reconcile.Load(ctx, src, s.logger)
	if err != nil {
		return nil, err
	}
	for _, e := range dropped {
		r.report.Duplicates = append(r.report.Duplicates, report.Duplicate{
			Source:   src.Name(),
			Category: e.Category().String(),
			Key:      e.Key(),
		})
	}
	return snap, nil
}

// maintenanceSnapshot returns the cached maintenance snapshot, fetching it once.
func (s *Service) maintenanceSnapshot(ctx context.Context, r *run) (reconcile.Snapshot, error) {
	if r.maintenance != nil {
		return r.maintenance, nil
	}
	snap, err := s.load(ctx, r, s.deps.Maintenance)
	if err != nil {
		return nil, err
	}
	r.maintenance = snap
	return snap, nil
}

// apply executes patch, records the phase and writes the audit entry.
func (s *Service) apply(ctx context.Context, r *run, p Phase, applier *reconcile.Applier, patch reconcile.PatchSet, opts reconcile.ApplyOptions, source, target, audit string) (*reconcile.ApplyResult, error) {
	opts.DryRun = r.opts.DryRun
	opts.Confirmed = r.opts.Confirmed
	res, err := applier.Apply(ctx, patch, opts)
	phase := report.NewPhase(string(p), source, target, res)
	if err != nil {
		phase.Error = err.Error()
	}
	r.report.Phases = append(r.report.Phases, phase)

	s.logger.Info("Phase applied",
		zap.String("phase", string(p)),
		zap.Bool("executed", phase.Executed),
		zap.Int("add", len(patch.Add)),
		zap.Int("update", len(patch.Update)),
		zap.Int("delete", len(patch.Delete)),
		zap.Int("failed", len(phase.Failures)),
	)
	if res != nil && res.Executed {
		if err := s.deps.Store.LogSync(ctx, audit, string(p), phase); err != nil {
			s.logger.Warn("Failed to write sync log", zap.String("phase", string(p)), zap.Error(err))
		}
	}
	return res, err
}

// phaseFailed records a phase that could not start.
func (s *Service) phaseFailed(r *run, p Phase, source, target string, err error) error {
	phase := report.NewPhase(string(p), source, target, nil)
	phase.Error = err.Error()
	r.report.Phases = append(r.report.Phases, phase)
	return err
}

// finish records conflicts, notifies new ones, snapshots quotas and archives
// the report.
func (s *Service) finish(ctx context.Context, r *run) {
	ctx = context.WithoutCancel(ctx)
	r.report.AddConflicts(r.conflicts)

	if len(r.conflicts) > 0 && r.opts.executes() {
		created, err := s.deps.Store.RecordConflicts(ctx, r.conflicts)
		if err != nil {
			s.logger.Error("Failed to record conflicts", zap.Error(err))
		} else if len(created) > 0 && s.deps.Alerts != nil {
			if err := s.deps.Alerts.Notify(ctx, created); err != nil {
				s.logger.Warn("Failed to send conflict alert", zap.Int("conflicts", len(created)), zap.Error(err))
			}
		}
	}

	for _, g := range s.deps.Gateways {
		stats := g.Stats()
		r.report.Quota[g.Name()+"_minute"] = stats.MinuteRemaining
		r.report.Quota[g.Name()+"_day"] = stats.DayRemaining
	}

	r.report.FinishedAt = s.now().UTC()
	if s.deps.Archive != nil {
		format, err := report.ParseFormat(s.cfg.ReportFormat)
		if err != nil {
			s.logger.Warn("Invalid report format, using json", zap.Error(err))
			format = report.FormatJSON
		}
		if _, err := s.deps.Archive.Put(ctx, r.report, format); err != nil {
			s.logger.Error("Failed to archive report", zap.Error(err))
		}
	}

	total := r.report.Totals()
	s.logger.Info("Sync run finished",
		zap.String("run_id", r.report.RunID),
		zap.Duration("duration", r.report.FinishedAt.Sub(r.report.StartedAt)),
		zap.Int("planned", total.Planned),
		zap.Int("failed", total.Failed),
		zap.Int("conflicts", len(r.conflicts)),
		zap.Int("drift", len(r.report.Drift)),
	)
}

// rootSite walks the parent chain of e up to its site key.
func rootSite(snap reconcile.Snapshot, e entity.Entity) string {
	for e.Category() != entity.CategorySite {
		parent, ok := snap[e.Parent()]
		if !ok {
			if e.Category().Policy().Parent == entity.CategorySite {
				return e.Parent()
			}
			return ""
		}
		e = parent
	}
	return e.Key()
}

// merge concatenates patch sets over disjoint key sets.
func merge(patches ...reconcile.PatchSet) reconcile.PatchSet {
	var out reconcile.PatchSet
	for _, p := range patches {
		out.Add = append(out.Add, p.Add...)
		out.Update = append(out.Update, p.Update...)
		out.Delete = append(out.Delete, p.Delete...)
		out.Unchanged = append(out.Unchanged, p.Unchanged...)
	}
	return out
}
