package entity

import (
	"fmt"
	"strings"
)

// Category selects the equality, ordering and deletion rules of an entity.
type Category uint8

const (
	// CategoryUnknown is the zero value; it never matches a policy.
	CategoryUnknown Category = iota
	// CategorySite is a physical installation.
	CategorySite
	// CategoryInverter is an inverter attached to a site.
	CategoryInverter
	// CategoryModule is the aggregated PV module reference of a site.
	CategoryModule
	// CategoryString is a PV string wired to an inverter input.
	CategoryString
	// CategorySIM is a communication SIM card installed on a site.
	CategorySIM
	// CategoryPlant is the placeholder "plant" material of a site.
	CategoryPlant
)

// Categories lists every valid category in declaration order.
var Categories = []Category{
	CategorySite,
	CategoryInverter,
	CategoryModule,
	CategoryString,
	CategorySIM,
	CategoryPlant,
}

// DeleteMode describes what happens to a record missing from the authoritative snapshot.
type DeleteMode uint8

const (
	// DeleteNever leaves the record untouched.
	DeleteNever DeleteMode = iota
	// DeleteSoft marks the record obsolete.
	DeleteSoft
	// DeleteHard removes the record.
	DeleteHard
)

func (m DeleteMode) String() string {
	switch m {
	case DeleteSoft:
		return "soft"
	case DeleteHard:
		return "hard"
	default:
		return "never"
	}
}

// Policy holds the per-category rules.
type Policy struct {
	// Name is the lowercase identifier used in logs, reports and config.
	Name string
	// ExternalID is the maintenance platform catalogue id, 0 for sites.
	ExternalID int
	// Parent is the category referenced by Entity.Parent, CategoryUnknown if none.
	Parent Category
	// Compare lists the fields participating in equality; nil compares every field.
	Compare []string
	// Delete is the deletion mode applied to records missing from the target.
	Delete DeleteMode
	// Updatable is false for categories the maintenance platform owns after creation.
	Updatable bool
	// Authoritative lists fields a sync may blank.
	Authoritative []string
}

// Policy returns the rules for c.
func (c Category) Policy() Policy {
	switch c {
	case CategorySite:
		return Policy{
			Name:      "site",
			Delete:    DeleteNever,
			Updatable: true,
		}
	case CategoryInverter:
		return Policy{
			Name:       "inverter",
			ExternalID: 11102,
			Parent:     CategorySite,
			Delete:     DeleteSoft,
			Updatable:  true,
		}
	case CategoryModule:
		return Policy{
			Name:       "module",
			ExternalID: 11103,
			Parent:     CategorySite,
			Compare:    []string{"brand", "model", "count"},
			Delete:     DeleteHard,
			Updatable:  true,
		}
	case CategoryString:
		return Policy{
			Name:       "string",
			ExternalID: 12404,
			Parent:     CategoryInverter,
			Compare:    []string{"name", "brand", "model", "count", "mppt_index"},
			Delete:     DeleteHard,
			Updatable:  true,
		}
	case CategorySIM:
		return Policy{
			Name:          "sim",
			ExternalID:    11382,
			Parent:        CategorySite,
			Compare:       []string{"serial_number", "brand", "model"},
			Delete:        DeleteNever,
			Updatable:     false,
			Authoritative: []string{"brand", "model"},
		}
	case CategoryPlant:
		return Policy{
			Name:       "plant",
			ExternalID: 11441,
			Parent:     CategorySite,
			Compare:    []string{"name"},
			Delete:     DeleteNever,
			Updatable:  false,
		}
	default:
		return Policy{Name: "unknown", Delete: DeleteNever}
	}
}

// String returns the policy name.
func (c Category) String() string {
	return c.Policy().Name
}

// Valid reports whether c is one of Categories.
func (c Category) Valid() bool {
	return c >= CategorySite && c <= CategoryPlant
}

// Depth is the number of parent hops to a root category.
func (c Category) Depth() int {
	depth := 0
	for p := c.Policy().Parent; p != CategoryUnknown; p = p.Policy().Parent {
		depth++
	}
	return depth
}

// IsAuthoritative reports whether a sync may blank field on this category.
func (c Category) IsAuthoritative(field string) bool {
	for _, f := range c.Policy().Authoritative {
		if f == field {
			return true
		}
	}
	return false
}

// MarshalText implements encoding.TextMarshaler so categories can key JSON and YAML maps.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCategory resolves a category from its policy name.
func ParseCategory(name string) (Category, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, c := range Categories {
		if c.Policy().Name == name {
			return c, nil
		}
	}
	switch name {
	case "string_pv":
		return CategoryString, nil
	case "centrale":
		return CategoryPlant, nil
	}
	return CategoryUnknown, fmt.Errorf("unknown category %q", name)
}

// CategoryFromExternalID resolves a category from a maintenance catalogue id.
func CategoryFromExternalID(id int) (Category, bool) {
	for _, c := range Categories {
		if p := c.Policy(); p.ExternalID != 0 && p.ExternalID == id {
			return c, true
		}
	}
	return CategoryUnknown, false
}
