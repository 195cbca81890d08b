package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"site-sync/core/entity"
	"site-sync/core/gateway"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// State is the outcome of one record mutation.
type State string

const (
	StatePending         State = "pending"
	StateSucceeded       State = "succeeded"
	StateFailedRetryable State = "failed_retryable"
	StateFailedPermanent State = "failed_permanent"
	StateSkipped         State = "skipped"
)

// Record tracks one patch entry through application.
type Record struct {
	Op       Op              `json:"op" yaml:"op"`
	Category entity.Category `json:"category" yaml:"category"`
	Key      string          `json:"key" yaml:"key"`
	State    State           `json:"state" yaml:"state"`
	// ID is the target-system identifier, assigned on create.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`
	// Soft is set for deletes performed as an obsolete transition.
	Soft bool `json:"soft,omitempty" yaml:"soft,omitempty"`
	// Fields lists the fields written by an update.
	Fields []string `json:"fields,omitempty" yaml:"fields,omitempty"`
	Reason string   `json:"reason,omitempty" yaml:"reason,omitempty"`
	Err    error    `json:"-" yaml:"-"`
}

// Failed reports whether the record ended in a failure state.
func (r Record) Failed() bool {
	return r.State == StateFailedRetryable || r.State == StateFailedPermanent
}

// ApplyResult is the outcome of Apply.
type ApplyResult struct {
	// Executed is false when the patch was only planned.
	Executed bool     `json:"executed" yaml:"executed"`
	Records  []Record `json:"records" yaml:"records"`
	Summary  Summary  `json:"summary" yaml:"summary"`
}

// Failures returns the failed records.
func (r *ApplyResult) Failures() []Record {
	var out []Record
	for _, rec := range r.Records {
		if rec.Failed() {
			out = append(out, rec)
		}
	}
	return out
}

// Applier executes patch sets against one target system.
type Applier struct {
	target     entity.System
	mutator    Mutator
	identities IdentityStore
	logger     *zap.Logger
	tracer     trace.Tracer
}

// ApplierOption configures an Applier.
type ApplierOption func(*Applier)

// WithIdentityStore enables parent lookup fallback and write-back of created ids.
func WithIdentityStore(store IdentityStore) ApplierOption {
	return func(a *Applier) { a.identities = store }
}

// WithLogger sets the applier logger.
func WithLogger(l *zap.Logger) ApplierOption {
	return func(a *Applier) { a.logger = l }
}

// NewApplier creates an Applier writing to target through mutator.
func NewApplier(target entity.System, mutator Mutator, opts ...ApplierOption) *Applier {
	a := &Applier{
		target:  target,
		mutator: mutator,
		logger:  zap.NewNop(),
		tracer:  otel.Tracer("site-sync/reconcile"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("target", string(target)))
	return a
}

type refKey struct {
	category entity.Category
	key      string
}

// run is the state of one Apply call.
type run struct {
	opts    ApplyOptions
	created map[refKey]string
	result  *ApplyResult
}

// Apply executes patch. Creates run level by level from root categories
// down, then updates in the same order, then deletes from the leaves up.
// Per-record failures are recorded and never abort the batch; the returned
// error is reserved for cancellation and exhausted daily quotas. Cancelling
// ctx lets the current record finish before the batch stops.
// Nothing executes unless opts.Confirmed is set and opts.DryRun is not.
func (a *Applier) Apply(ctx context.Context, patch PatchSet, opts ApplyOptions) (*ApplyResult, error) {
	result := &ApplyResult{Summary: NewSummary()}

	// Safety check: do not execute if not confirmed or dry-run
	if !opts.Confirmed || opts.DryRun {
		for _, e := range patch.Add {
			result.Records = append(result.Records, Record{Op: OpAdd, Category: e.Category(), Key: e.Key(), State: StatePending})
		}
		for _, c := range patch.Update {
			result.Records = append(result.Records, Record{Op: OpUpdate, Category: c.New.Category(), Key: c.Key(), State: StatePending, Fields: c.Fields})
		}
		for _, e := range patch.Delete {
			result.Records = append(result.Records, Record{Op: OpDelete, Category: e.Category(), Key: e.Key(), State: StatePending})
		}
		for _, r := range result.Records {
			result.Summary.Add(r)
		}
		return result, nil
	}

	ctx, span := a.tracer.Start(ctx, "reconcile.Apply", trace.WithAttributes(
		attribute.String("reconcile.target", string(a.target)),
		attribute.Int("reconcile.add", len(patch.Add)),
		attribute.Int("reconcile.update", len(patch.Update)),
		attribute.Int("reconcile.delete", len(patch.Delete)),
	))
	defer span.End()

	result.Executed = true
	r := &run{opts: opts, created: map[refKey]string{}, result: result}

	// A cancelled run stops between records; the record in flight completes.
	work := context.WithoutCancel(ctx)

	for _, e := range byLevel(patch.Add, false) {
		if err := a.record(ctx, r, a.create(work, r, e)); err != nil {
			return result, err
		}
	}

	updates := append([]Change(nil), patch.Update...)
	sort.SliceStable(updates, func(i, j int) bool {
		return updates[i].New.Category().Depth() < updates[j].New.Category().Depth()
	})
	for _, c := range updates {
		if err := a.record(ctx, r, a.update(work, r, c)); err != nil {
			return result, err
		}
	}

	for _, e := range byLevel(patch.Delete, true) {
		if err := a.record(ctx, r, a.remove(work, r, e)); err != nil {
			return result, err
		}
	}

	span.SetAttributes(attribute.Int("reconcile.failed", len(result.Failures())))
	return result, nil
}

// record stores rec and reports whether the run must stop.
func (a *Applier) record(ctx context.Context, r *run, rec Record) error {
	r.result.Records = append(r.result.Records, rec)
	r.result.Summary.Add(rec)

	if rec.Failed() {
		a.logger.Error("Failed to apply record",
			zap.String("op", string(rec.Op)),
			zap.String("category", rec.Category.String()),
			zap.String("key", rec.Key),
			zap.String("state", string(rec.State)),
			zap.Error(rec.Err),
		)
	}

	if errors.Is(rec.Err, gateway.ErrDailyQuotaExhausted) {
		return rec.Err
	}
	return ctx.Err()
}

func (a *Applier) create(ctx context.Context, r *run, e entity.Entity) Record {
	rec := Record{Op: OpAdd, Category: e.Category(), Key: e.Key()}

	parentID, err := a.resolveParent(ctx, r, OpAdd, e)
	if err != nil {
		return fail(rec, err)
	}

	id, err := a.mutator.Create(ctx, Mutation{Entity: e, ParentID: parentID})
	if err != nil {
		return fail(rec, fmt.Errorf("failed to create %s %q: %w", e.Category(), e.Key(), err))
	}

	rec.ID = id
	rec.State = StateSucceeded
	if id != "" {
		r.created[refKey{e.Category(), e.Key()}] = id
		a.link(ctx, e.Category(), e.Key(), id)
	}
	a.logger.Debug("Created record",
		zap.String("category", e.Category().String()),
		zap.String("key", e.Key()),
		zap.String("id", id),
	)
	return rec
}

func (a *Applier) update(ctx context.Context, r *run, c Change) Record {
	e := c.New
	rec := Record{Op: OpUpdate, Category: e.Category(), Key: e.Key(), Fields: c.Fields}

	if r.opts.RespectUpdatable && !e.Category().Policy().Updatable {
		rec.State = StateSkipped
		rec.Reason = "category is not updatable"
		return rec
	}

	id, err := a.ownID(ctx, c.Old)
	if err != nil {
		return fail(rec, err)
	}
	rec.ID = id

	var parentID string
	if c.Has(entity.FieldParent) {
		if parentID, err = a.resolveParent(ctx, r, OpUpdate, e); err != nil {
			return fail(rec, err)
		}
	}

	err = a.mutator.Update(ctx, Mutation{Entity: e, ID: id, ParentID: parentID, Changed: c.Values()})
	if err != nil {
		return fail(rec, fmt.Errorf("failed to update %s %q: %w", e.Category(), e.Key(), err))
	}
	rec.State = StateSucceeded
	return rec
}

func (a *Applier) remove(ctx context.Context, r *run, e entity.Entity) Record {
	rec := Record{Op: OpDelete, Category: e.Category(), Key: e.Key()}

	mode := e.Category().Policy().Delete
	if mode == entity.DeleteNever {
		rec.State = StateSkipped
		rec.Reason = "category is never deleted"
		return rec
	}

	id, err := a.ownID(ctx, e)
	if err != nil {
		return fail(rec, err)
	}
	rec.ID = id
	m := Mutation{Entity: e, ID: id}

	if hd, ok := a.mutator.(HardDeleter); ok && mode == entity.DeleteHard {
		err = hd.Delete(ctx, m)
	} else {
		rec.Soft = true
		err = a.mutator.SoftDelete(ctx, m)
	}
	if err != nil {
		return fail(rec, fmt.Errorf("failed to delete %s %q: %w", e.Category(), e.Key(), err))
	}
	rec.State = StateSucceeded
	return rec
}

// resolveParent returns the target-system id of e's parent, "" for roots.
func (a *Applier) resolveParent(ctx context.Context, r *run, op Op, e entity.Entity) (string, error) {
	parentCat := e.Category().Policy().Parent
	if parentCat == entity.CategoryUnknown {
		return "", nil
	}

	integrity := &ReferentialIntegrityError{
		Op:             op,
		Category:       e.Category(),
		Key:            e.Key(),
		ParentCategory: parentCat,
		ParentKey:      e.Parent(),
	}
	if e.Parent() == "" {
		return "", integrity
	}

	if id, ok := r.created[refKey{parentCat, e.Parent()}]; ok {
		return id, nil
	}
	if p, ok := r.opts.Existing[e.Parent()]; ok && p.Category() == parentCat {
		if id, ok := p.ID(a.target); ok {
			return id, nil
		}
	}
	if a.identities != nil {
		id, ok, err := a.identities.ExternalID(ctx, a.target, parentCat, e.Parent())
		if err != nil {
			return "", fmt.Errorf("failed to look up parent %s %q: %w", parentCat, e.Parent(), err)
		}
		if ok {
			return id, nil
		}
	}
	return "", integrity
}

// ownID returns the target-system id of an existing record.
func (a *Applier) ownID(ctx context.Context, e entity.Entity) (string, error) {
	if id, ok := e.ID(a.target); ok {
		return id, nil
	}
	if a.identities != nil {
		id, ok, err := a.identities.ExternalID(ctx, a.target, e.Category(), e.Key())
		if err != nil {
			return "", fmt.Errorf("failed to look up %s %q: %w", e.Category(), e.Key(), err)
		}
		if ok {
			return id, nil
		}
	}
	return "", &ValidationError{Category: e.Category(), Key: e.Key(), Reason: fmt.Sprintf("no %s id", a.target)}
}

func (a *Applier) link(ctx context.Context, category entity.Category, key, id string) {
	if a.identities == nil {
		return
	}
	if err := a.identities.Link(ctx, a.target, category, key, id); err != nil {
		a.logger.Warn("Failed to persist identifier link",
			zap.String("category", category.String()),
			zap.String("key", key),
			zap.String("id", id),
			zap.Error(err),
		)
	}
}

// fail classifies err into a retryable or permanent failure.
func fail(rec Record, err error) Record {
	rec.Err = err
	rec.Reason = err.Error()
	if gateway.IsRetryable(err) || errors.Is(err, gateway.ErrDailyQuotaExhausted) {
		rec.State = StateFailedRetryable
	} else {
		rec.State = StateFailedPermanent
	}
	return rec
}

// byLevel orders entities by category depth, keeping input order within a
// level. reverse puts the deepest level first.
func byLevel(in []entity.Entity, reverse bool) []entity.Entity {
	out := append([]entity.Entity(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].Category().Depth(), out[j].Category().Depth()
		if reverse {
			return di > dj
		}
		return di < dj
	})
	return out
}
