package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValuesEqual(t *testing.T) {
	day := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"BothNil", nil, nil, true},
		{"NilAndBlankString", nil, "  ", true},
		{"BlankAndValue", "", "x", false},
		{"IntAndFloat", 120, 120.0, true},
		{"NumericString", "120", 120, true},
		{"NumericStringRight", 120.5, "120.5", true},
		{"NonNumericString", 1, "one", false},
		{"TrimmedStrings", " abc", "abc ", true},
		{"DifferentStrings", "abc", "abd", false},
		{"Times", day, day.In(time.FixedZone("x", 3600)), true},
		{"TimeAndString", day, "2023-06-01", false},
		{"Bools", true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValuesEqual(tt.a, tt.b))
		})
	}
}

func TestDiff_DefaultComparesAllFields(t *testing.T) {
	a := New(CategorySite, "S1", Fields{"name": "A", "address": "1 rue", "code": nil})
	b := New(CategorySite, "S1", Fields{"name": "A", "address": "2 rue", "nominal_power": 12})

	assert.Equal(t, []string{"address", "nominal_power"}, Diff(a, b))
	assert.Equal(t, []string{"nominal_power"}, Diff(a, b, "address"))
	assert.False(t, Equal(a, b))
	assert.True(t, Equal(a, b, "address", "nominal_power"))
}

func TestDiff_CategoryCompareList(t *testing.T) {
	a := New(CategoryModule, "MODULES-S1", Fields{"brand": "Acme", "model": "X1", "count": 10, "name": "Modules"})
	b := New(CategoryModule, "MODULES-S1", Fields{"brand": "Acme", "model": "X1", "count": 10, "name": "Renamed"})
	assert.True(t, Equal(a, b), "module equality ignores the display name")

	c := b.With("count", 11)
	assert.Equal(t, []string{"count"}, Diff(a, c))
}

func TestDiff_ParentAndCategory(t *testing.T) {
	a := New(CategoryString, "STR-1", Fields{"name": "s"}, WithParent("INV-1"))
	b := New(CategoryString, "STR-1", Fields{"name": "s"}, WithParent("INV-2"))
	assert.Equal(t, []string{FieldParent}, Diff(a, b))
	assert.Empty(t, Diff(a, b, FieldParent))

	c := New(CategoryInverter, "STR-1", Fields{"name": "s"}, WithParent("INV-1"))
	assert.Contains(t, Diff(a, c), FieldCategory)
}

func TestProtect(t *testing.T) {
	assert.True(t, Protect(CategorySite, "name", nil, "A"), "filling a blank is allowed")
	assert.True(t, Protect(CategorySite, "name", "A", "B"), "replacing with a value is allowed")
	assert.True(t, Protect(CategorySite, "name", nil, nil))
	assert.False(t, Protect(CategorySite, "name", "A", nil), "blanking a populated value is refused")
	assert.False(t, Protect(CategorySite, "name", "A", "  "))
	assert.True(t, Protect(CategorySIM, "brand", "Onomondo", nil), "sim brand is authoritative")
	assert.False(t, Protect(CategorySIM, "serial_number", "123", nil))
}

func TestNormalizeSerial(t *testing.T) {
	assert.Equal(t, "AB12CD", NormalizeSerial(" ab 12\tcd "))
	assert.Equal(t, "", NormalizeSerial("   "))
}
