package reconcile

import (
	"sort"

	"site-sync/core/entity"
)

// Snapshot is a read-only key to entity map fetched once per run from one system.
type Snapshot map[string]entity.Entity

// NewSnapshot indexes entities by natural key. The first occurrence of a key
// wins; later duplicates and keyless entities are returned for reporting.
func NewSnapshot(entities []entity.Entity) (Snapshot, []entity.Entity) {
	snap := make(Snapshot, len(entities))
	var dropped []entity.Entity
	for _, e := range entities {
		if e.Key() == "" {
			dropped = append(dropped, e)
			continue
		}
		if _, exists := snap[e.Key()]; exists {
			dropped = append(dropped, e)
			continue
		}
		snap[e.Key()] = e
	}
	return snap, dropped
}

// Keys returns the sorted natural keys.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Filter returns the entities for which keep returns true.
func (s Snapshot) Filter(keep func(entity.Entity) bool) Snapshot {
	out := make(Snapshot, len(s))
	for k, e := range s {
		if keep(e) {
			out[k] = e
		}
	}
	return out
}

// Categories returns the entities of the given categories.
func (s Snapshot) Categories(cats ...entity.Category) Snapshot {
	return s.Filter(func(e entity.Entity) bool {
		for _, c := range cats {
			if e.Category() == c {
				return true
			}
		}
		return false
	})
}

// Entities returns the entities ordered by key.
func (s Snapshot) Entities() []entity.Entity {
	out := make([]entity.Entity, 0, len(s))
	for _, k := range s.Keys() {
		out = append(out, s[k])
	}
	return out
}

// Apply returns the snapshot expected once p has been applied to s.
// Deleted entities are removed whatever their delete mode.
func (s Snapshot) Apply(p PatchSet) Snapshot {
	out := make(Snapshot, len(s)+len(p.Add))
	for k, e := range s {
		out[k] = e
	}
	for _, e := range p.Add {
		out[e.Key()] = e
	}
	for _, c := range p.Update {
		out[c.New.Key()] = c.New
	}
	for _, e := range p.Delete {
		delete(out, e.Key())
	}
	return out
}

// Op is the kind of a patch entry.
type Op string

const (
	// OpAdd creates a record present only in the target.
	OpAdd Op = "add"
	// OpUpdate changes fields of a record present on both sides.
	OpUpdate Op = "update"
	// OpDelete removes or obsoletes a record present only in the current snapshot.
	OpDelete Op = "delete"
)

// Change is one update entry.
type Change struct {
	// Old is the current state.
	Old entity.Entity
	// New is Old with the allowed changed fields taken from the target.
	New entity.Entity
	// Fields lists the changed field names, sorted.
	Fields []string
}

// Key returns the natural key of the changed record.
func (c Change) Key() string { return c.Old.Key() }

// Values returns the new values of the changed regular fields.
func (c Change) Values() entity.Fields {
	out := make(entity.Fields, len(c.Fields))
	for _, f := range c.Fields {
		if f == entity.FieldParent || f == entity.FieldCategory {
			continue
		}
		out[f] = c.New.Value(f)
	}
	return out
}

// Has reports whether field is part of the change.
func (c Change) Has(field string) bool {
	for _, f := range c.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// PatchSet partitions the keys of a current and a target snapshot.
type PatchSet struct {
	Add       []entity.Entity
	Update    []Change
	Delete    []entity.Entity
	Unchanged []string
}

// IsEmpty reports whether the patch mutates nothing.
func (p PatchSet) IsEmpty() bool {
	return p.Len() == 0
}

// Len is the number of mutating entries.
func (p PatchSet) Len() int {
	return len(p.Add) + len(p.Update) + len(p.Delete)
}

// Filter returns a copy of p where entries of op for which keep returns false
// are dropped. Updates are tested on their new state.
func (p PatchSet) Filter(op Op, keep func(entity.Entity) bool) PatchSet {
	out := PatchSet{
		Add:       p.Add,
		Update:    p.Update,
		Delete:    p.Delete,
		Unchanged: p.Unchanged,
	}
	switch op {
	case OpAdd:
		out.Add = filterEntities(p.Add, keep)
	case OpDelete:
		out.Delete = filterEntities(p.Delete, keep)
	case OpUpdate:
		out.Update = nil
		for _, c := range p.Update {
			if keep(c.New) {
				out.Update = append(out.Update, c)
			}
		}
	}
	return out
}

// Without drops every entry of op whose category is one of cats.
func (p PatchSet) Without(op Op, cats ...entity.Category) PatchSet {
	return p.Filter(op, func(e entity.Entity) bool {
		for _, c := range cats {
			if e.Category() == c {
				return false
			}
		}
		return true
	})
}

// OpCounts counts patch entries of one category.
type OpCounts struct {
	Add    int `json:"add" yaml:"add"`
	Update int `json:"update" yaml:"update"`
	Delete int `json:"delete" yaml:"delete"`
}

// Counts returns the number of entries per category.
func (p PatchSet) Counts() map[entity.Category]OpCounts {
	out := map[entity.Category]OpCounts{}
	for _, e := range p.Add {
		c := out[e.Category()]
		c.Add++
		out[e.Category()] = c
	}
	for _, ch := range p.Update {
		c := out[ch.New.Category()]
		c.Update++
		out[ch.New.Category()] = c
	}
	for _, e := range p.Delete {
		c := out[e.Category()]
		c.Delete++
		out[e.Category()] = c
	}
	return out
}

func filterEntities(in []entity.Entity, keep func(entity.Entity) bool) []entity.Entity {
	var out []entity.Entity
	for _, e := range in {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Conflict is a human-reviewable disagreement surfaced by a run.
type Conflict struct {
	// Kind classifies the conflict, e.g. "client_map_id" or "site_unmatched".
	Kind     string          `json:"kind" yaml:"kind"`
	Category entity.Category `json:"category" yaml:"category"`
	Key      string          `json:"key" yaml:"key"`
	Message  string          `json:"message" yaml:"message"`
	Details  map[string]any  `json:"details,omitempty" yaml:"details,omitempty"`
}

// ApplyOptions controls patch application.
type ApplyOptions struct {
	// DryRun prevents execution of any mutations if true.
	DryRun bool

	// Confirmed indicates the operator approved the mutations.
	// If false, nothing executes regardless of DryRun.
	Confirmed bool

	// RespectUpdatable skips updates of categories whose policy is not updatable.
	RespectUpdatable bool

	// Existing seeds the parent lookup with records already present in the
	// target, usually the current snapshot the patch was computed from.
	Existing Snapshot
}
