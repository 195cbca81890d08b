package entity

import (
	"sort"
	"strings"
)

// System names an external system an entity can carry an identifier for.
type System string

const (
	// SystemMonitoring is the monitoring platform.
	SystemMonitoring System = "monitoring"
	// SystemMaintenance is the maintenance and ticketing platform.
	SystemMaintenance System = "maintenance"
	// SystemStore is the relational system of record.
	SystemStore System = "store"
)

// Pseudo-fields reported by Diff alongside regular field names.
const (
	FieldParent   = "parent"
	FieldCategory = "category"
)

// Entity is an immutable keyed record.
type Entity struct {
	key      string
	category Category
	parent   string
	fields   Fields
	derived  Fields
	ids      map[System]string
}

// Option configures an Entity during construction.
type Option func(*Entity)

// WithParent sets the natural key of the parent record.
func WithParent(key string) Option {
	return func(e *Entity) {
		e.parent = strings.TrimSpace(key)
	}
}

// WithID records the identifier the entity carries in sys. Blank ids are ignored.
func WithID(sys System, id string) Option {
	return func(e *Entity) {
		if id = strings.TrimSpace(id); id != "" {
			e.ids[sys] = id
		}
	}
}

// WithDerived attaches derived fields joined at read time by Value.
func WithDerived(derived Fields) Option {
	return func(e *Entity) {
		for k, v := range derived {
			e.derived[k] = Normalize(v)
		}
	}
}

// New builds an entity. Field values are normalized and copied.
func New(category Category, key string, fields Fields, opts ...Option) Entity {
	e := Entity{
		key:      strings.TrimSpace(key),
		category: category,
		fields:   make(Fields, len(fields)),
		derived:  Fields{},
		ids:      map[System]string{},
	}
	for k, v := range fields {
		e.fields[k] = Normalize(v)
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Key returns the natural key.
func (e Entity) Key() string { return e.key }

// Category returns the category tag.
func (e Entity) Category() Category { return e.category }

// Parent returns the natural key of the parent record, or "".
func (e Entity) Parent() string { return e.parent }

// ID returns the identifier carried for sys.
func (e Entity) ID(sys System) (string, bool) {
	id, ok := e.ids[sys]
	return id, ok
}

// IDs returns a copy of all carried identifiers.
func (e Entity) IDs() map[System]string {
	out := make(map[System]string, len(e.ids))
	for k, v := range e.ids {
		out[k] = v
	}
	return out
}

// Field returns the raw stored value of name.
func (e Entity) Field(name string) (any, bool) {
	v, ok := e.fields[name]
	return v, ok
}

// Value returns the populated raw value of name, falling back to the derived value.
func (e Entity) Value(name string) any {
	if v, ok := e.fields[name]; ok && !IsBlank(v) {
		return v
	}
	if v, ok := e.derived[name]; ok {
		return v
	}
	return e.fields[name]
}

// Text returns Value(name) rendered as a string, "" when blank.
func (e Entity) Text(name string) string {
	v := e.Value(name)
	if IsBlank(v) {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return formatValue(v)
}

// Fields returns a copy of the raw fields.
func (e Entity) Fields() Fields { return e.fields.Clone() }

// Derived returns a copy of the derived fields.
func (e Entity) Derived() Fields { return e.derived.Clone() }

// FieldNames returns the sorted union of raw and derived field names.
func (e Entity) FieldNames() []string {
	seen := make(map[string]struct{}, len(e.fields)+len(e.derived))
	for k := range e.fields {
		seen[k] = struct{}{}
	}
	for k := range e.derived {
		seen[k] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// With returns a copy of e with field name set to value.
func (e Entity) With(name string, value any) Entity {
	c := e.clone()
	c.fields[name] = Normalize(value)
	return c
}

// WithFields returns a copy of e with every entry of fields applied.
func (e Entity) WithFields(fields Fields) Entity {
	c := e.clone()
	for k, v := range fields {
		c.fields[k] = Normalize(v)
	}
	return c
}

// WithParentKey returns a copy of e referencing a different parent.
func (e Entity) WithParentKey(key string) Entity {
	c := e.clone()
	c.parent = strings.TrimSpace(key)
	return c
}

// WithCategory returns a copy of e with a different category tag.
func (e Entity) WithCategory(category Category) Entity {
	c := e.clone()
	c.category = category
	return c
}

// WithExternalID returns a copy of e carrying id for sys.
func (e Entity) WithExternalID(sys System, id string) Entity {
	c := e.clone()
	if id = strings.TrimSpace(id); id != "" {
		c.ids[sys] = id
	}
	return c
}

// MergeIDs returns a copy of e that also carries the identifiers of other
// for systems e has none for.
func (e Entity) MergeIDs(other Entity) Entity {
	c := e.clone()
	for sys, id := range other.ids {
		if _, ok := c.ids[sys]; !ok {
			c.ids[sys] = id
		}
	}
	return c
}

func (e Entity) clone() Entity {
	c := e
	c.fields = e.fields.Clone()
	c.derived = e.derived.Clone()
	c.ids = e.IDs()
	return c
}
