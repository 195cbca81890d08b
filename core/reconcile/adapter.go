package reconcile

import (
	"context"

	"site-sync/core/entity"
)

// SnapshotSource fetches every record of one system. Pagination is the
// implementation's concern.
type SnapshotSource interface {
	// Name identifies the source in logs and reports.
	Name() string

	// FetchAll returns all records. Duplicate keys are tolerated and
	// resolved by NewSnapshot.
	FetchAll(ctx context.Context) ([]entity.Entity, error)
}

// Mutation describes one write against a target system.
type Mutation struct {
	// Entity is the desired state of the record.
	Entity entity.Entity

	// ID is the target-system identifier of the record. Empty for creates.
	ID string

	// ParentID is the target-system identifier of the parent record, empty
	// for root categories or when the parent is unchanged on update.
	ParentID string

	// Changed holds only the fields that differ from the last known state.
	// Nil for creates and deletes.
	Changed entity.Fields
}

// Mutator writes to one downstream system.
type Mutator interface {
	// Create inserts the record and returns its new external identifier.
	Create(ctx context.Context, m Mutation) (string, error)

	// Update writes m.Changed to the record identified by m.ID.
	Update(ctx context.Context, m Mutation) error

	// SoftDelete marks the record obsolete.
	SoftDelete(ctx context.Context, m Mutation) error
}

// HardDeleter is implemented by mutators able to remove records. Categories
// allowing hard deletes fall back to SoftDelete when it is missing.
type HardDeleter interface {
	Delete(ctx context.Context, m Mutation) error
}

// IdentityStore holds confirmed cross-system identifier links.
type IdentityStore interface {
	// ExternalID returns the identifier of the record (category, key) in sys.
	ExternalID(ctx context.Context, sys entity.System, category entity.Category, key string) (string, bool, error)

	// Link records that (category, key) is known as id in sys.
	Link(ctx context.Context, sys entity.System, category entity.Category, key, id string) error
}

// AlertChannel delivers unresolved conflicts to a human.
type AlertChannel interface {
	Notify(ctx context.Context, conflicts []Conflict) error
}
