package reconcile

import (
	"errors"
	"fmt"

	"site-sync/core/entity"
)

var (
	// ErrValidation matches records rejected as invalid.
	ErrValidation = errors.New("validation failed")

	// ErrReferentialIntegrity matches mutations whose parent does not exist.
	ErrReferentialIntegrity = errors.New("referential integrity violation")

	// ErrAmbiguousMatch matches records without a confident identity match.
	ErrAmbiguousMatch = errors.New("ambiguous match")
)

// ValidationError is a permanent, per-record failure.
type ValidationError struct {
	Category entity.Category
	Key      string
	Field    string
	Reason   string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s %q: %s: %s", e.Category, e.Key, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Category, e.Key, e.Reason)
}

// Is implements errors.Is support.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ReferentialIntegrityError reports a mutation referencing a parent that was
// neither pre-existing nor created earlier in the run.
type ReferentialIntegrityError struct {
	Op             Op
	Category       entity.Category
	Key            string
	ParentCategory entity.Category
	ParentKey      string
}

// Error implements the error interface.
func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("%s %s %q: parent %s %q has no external id", e.Op, e.Category, e.Key, e.ParentCategory, e.ParentKey)
}

// Is implements errors.Is support.
func (e *ReferentialIntegrityError) Is(target error) bool {
	return target == ErrReferentialIntegrity
}

// AmbiguousMatchError describes a record for which no confident identity
// match exists. It is reported, never returned as a failure.
type AmbiguousMatchError struct {
	System         entity.System
	Key            string
	Name           string
	BestKey        string
	BestSimilarity float64
}

// Error implements the error interface.
func (e *AmbiguousMatchError) Error() string {
	if e.BestKey == "" {
		return fmt.Sprintf("%s record %q (%s): no candidate match", e.System, e.Key, e.Name)
	}
	return fmt.Sprintf("%s record %q (%s): best candidate %q at %.2f is not confident", e.System, e.Key, e.Name, e.BestKey, e.BestSimilarity)
}

// Is implements errors.Is support.
func (e *AmbiguousMatchError) Is(target error) bool {
	return target == ErrAmbiguousMatch
}
