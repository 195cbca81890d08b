package reconcile

import (
	"context"
	"fmt"
	"sort"

	"site-sync/core/entity"

	"go.uber.org/zap"
)

// DiffOptions controls a full-sync diff.
type DiffOptions struct {
	// Ignore lists fields never compared nor written.
	Ignore []string
}

// FillOptions controls a fill-missing diff.
type FillOptions struct {
	// Fields restricts the comparison; empty compares every comparable field.
	Fields []string

	// Force lists categories for which the target wins on any divergence.
	Force []entity.Category

	// Ignore lists fields never compared nor written.
	Ignore []string
}

func (o FillOptions) forced(c entity.Category) bool {
	for _, f := range o.Force {
		if f == c {
			return true
		}
	}
	return false
}

// Load fetches a snapshot from src. Dropped duplicates are logged and returned.
func Load(ctx context.Context, src SnapshotSource, logger *zap.Logger) (Snapshot, []entity.Entity, error) {
	entities, err := src.FetchAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch %s snapshot: %w", src.Name(), err)
	}

	snap, dropped := NewSnapshot(entities)
	if logger != nil {
		for _, d := range dropped {
			logger.Warn("Dropped duplicate snapshot key",
				zap.String("source", src.Name()),
				zap.String("category", d.Category().String()),
				zap.String("key", d.Key()),
			)
		}
	}
	return snap, dropped, nil
}

// DiffFull treats target as authoritative: target-only keys are added,
// current-only keys deleted and diverging shared keys updated. A populated
// current value is never replaced by a blank target value unless the
// category is authoritative for the field.
func DiffFull(current, target Snapshot, opts DiffOptions) PatchSet {
	var patch PatchSet
	for _, key := range unionKeys(current, target) {
		cur, inCur := current[key]
		tgt, inTgt := target[key]

		switch {
		case inTgt && !inCur:
			patch.Add = append(patch.Add, tgt)
		case inCur && !inTgt:
			patch.Delete = append(patch.Delete, cur)
		default:
			var fields []string
			for _, f := range entity.Diff(cur, tgt, opts.Ignore...) {
				if entity.Protect(tgt.Category(), f, valueOf(cur, f), valueOf(tgt, f)) {
					fields = append(fields, f)
				}
			}
			if len(fields) == 0 {
				patch.Unchanged = append(patch.Unchanged, key)
				continue
			}
			patch.Update = append(patch.Update, newChange(cur, tgt, fields))
		}
	}
	return patch
}

// DiffFillMissing only ever adds information: target-only keys are added,
// nothing is deleted and a shared field is updated only when the current
// value is blank. Categories listed in Force adopt the target value on any
// divergence, subject to overwrite protection.
func DiffFillMissing(current, target Snapshot, opts FillOptions) PatchSet {
	skip := make(map[string]struct{}, len(opts.Ignore))
	for _, f := range opts.Ignore {
		skip[f] = struct{}{}
	}

	var patch PatchSet
	for _, key := range unionKeys(current, target) {
		cur, inCur := current[key]
		tgt, inTgt := target[key]

		switch {
		case inTgt && !inCur:
			patch.Add = append(patch.Add, tgt)
			continue
		case inCur && !inTgt:
			patch.Unchanged = append(patch.Unchanged, key)
			continue
		}

		candidates := opts.Fields
		if len(candidates) == 0 {
			candidates = entity.Diff(cur, tgt)
		}
		force := opts.forced(tgt.Category())

		var fields []string
		for _, f := range candidates {
			if _, ok := skip[f]; ok {
				continue
			}
			cv, tv := valueOf(cur, f), valueOf(tgt, f)
			if entity.ValuesEqual(cv, tv) {
				continue
			}
			if force {
				if entity.Protect(tgt.Category(), f, cv, tv) {
					fields = append(fields, f)
				}
				continue
			}
			if entity.IsBlank(cv) && !entity.IsBlank(tv) {
				fields = append(fields, f)
			}
		}

		if len(fields) == 0 {
			patch.Unchanged = append(patch.Unchanged, key)
			continue
		}
		sort.Strings(fields)
		patch.Update = append(patch.Update, newChange(cur, tgt, fields))
	}
	return patch
}

// newChange builds the new state of cur with fields taken from tgt.
func newChange(cur, tgt entity.Entity, fields []string) Change {
	next := cur
	values := entity.Fields{}
	for _, f := range fields {
		switch f {
		case entity.FieldParent:
			next = next.WithParentKey(tgt.Parent())
		case entity.FieldCategory:
			next = next.WithCategory(tgt.Category())
		default:
			values[f] = tgt.Value(f)
		}
	}
	next = next.WithFields(values).MergeIDs(tgt)
	return Change{Old: cur, New: next, Fields: fields}
}

// valueOf reads a field or one of the pseudo-fields.
func valueOf(e entity.Entity, field string) any {
	switch field {
	case entity.FieldParent:
		return e.Parent()
	case entity.FieldCategory:
		return e.Category().String()
	default:
		return e.Value(field)
	}
}

func unionKeys(a, b Snapshot) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for _, s := range []Snapshot{a, b} {
		for k := range s {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
