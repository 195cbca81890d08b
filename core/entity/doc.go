// Package entity defines the record model shared by every system that takes
// part in synchronisation.
//
// An Entity is an immutable value: a natural key, a category, an optional
// parent key, a map of nullable scalar fields, a separate map of derived
// fields and the identifiers the record carries in each external system.
// Methods that "change" an entity return a new value.
//
// # Categories
//
// Category is a closed set of variants (Site, Inverter, Module, String, SIM,
// Plant). Each variant exposes a Policy describing:
//
//   - which fields take part in equality (nil means every field),
//   - which category it references as a parent,
//   - how a record disappearing from the authoritative system is handled
//     (hard delete, soft delete or never),
//   - whether updates may be pushed to the maintenance platform,
//   - which fields are authoritative, i.e. may be blanked by a sync.
//
// # Derived fields
//
// Some facts live in a direct column in one system and in a custom field in
// another (for example the number of modules on a string). Adapters attach
// those as derived fields; Entity.Value joins both at read time so equality
// works on the normalized value.
//
// # Overwrite protection
//
// Protect reports whether a field assignment is allowed: replacing a
// populated value with a blank one is refused unless the category is
// authoritative for that field.
package entity
