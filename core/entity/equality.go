package entity

import (
	"sort"
	"time"

	"site-sync/core/utils"
)

// Diff returns the sorted names of the comparable fields whose values differ
// between a and b. The pseudo-fields FieldCategory and FieldParent are
// reported when the category or parent key differ. Names listed in ignore
// never appear in the result.
func Diff(a, b Entity, ignore ...string) []string {
	skip := make(map[string]struct{}, len(ignore))
	for _, f := range ignore {
		skip[f] = struct{}{}
	}

	var changed []string
	add := func(f string) {
		if _, ok := skip[f]; !ok {
			changed = append(changed, f)
		}
	}

	if a.category != b.category {
		add(FieldCategory)
	}
	if a.parent != b.parent {
		add(FieldParent)
	}
	for _, f := range comparableFields(a, b) {
		if !ValuesEqual(a.Value(f), b.Value(f)) {
			add(f)
		}
	}
	sort.Strings(changed)
	return changed
}

// Equal reports whether a and b agree on every comparable field.
func Equal(a, b Entity, ignore ...string) bool {
	return len(Diff(a, b, ignore...)) == 0
}

// Protect reports whether replacing current with target is allowed on field.
// A populated value is never replaced by a blank one unless category is
// authoritative for field.
func Protect(category Category, field string, current, target any) bool {
	if IsBlank(target) && !IsBlank(current) {
		return category.IsAuthoritative(field)
	}
	return true
}

// comparableFields resolves the field set used for equality from the category
// of b, the newer side.
func comparableFields(a, b Entity) []string {
	if fields := b.category.Policy().Compare; fields != nil {
		return fields
	}
	seen := map[string]struct{}{}
	var names []string
	for _, e := range []Entity{a, b} {
		for _, n := range e.FieldNames() {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names
}

func formatValue(v any) string {
	if t, ok := v.(time.Time); ok {
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339)
	}
	return utils.ToString(v)
}
