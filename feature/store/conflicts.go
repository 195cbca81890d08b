package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"site-sync/core/reconcile"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrConflictClosed is returned when resolving a conflict that is not pending.
var ErrConflictClosed = errors.New("conflict is not pending")

// RecordConflicts stores conflicts and returns the ones that were not already
// pending with the same kind and key.
func (s *Store) RecordConflicts(ctx context.Context, conflicts []reconcile.Conflict) ([]reconcile.Conflict, error) {
	var created []reconcile.Conflict
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range conflicts {
			var n int64
			err := tx.Model(&Conflict{}).
				Where("entity_type = ? AND entity_key = ? AND status = ?", c.Kind, c.Key, ConflictPending).
				Count(&n).Error
			if err != nil {
				return err
			}
			if n > 0 {
				continue
			}

			var payload datatypes.JSON
			if len(c.Details) > 0 {
				raw, err := json.Marshal(c.Details)
				if err != nil {
					return fmt.Errorf("failed to encode conflict details: %w", err)
				}
				payload = datatypes.JSON(raw)
			}
			row := Conflict{
				Kind:        c.Kind,
				Category:    c.Category.String(),
				EntityKey:   c.Key,
				Description: c.Message,
				Status:      ConflictPending,
				Payload:     payload,
				CreatedAt:   s.now().UTC(),
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			created = append(created, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record conflicts: %w", err)
	}
	return created, nil
}

// Conflicts lists conflicts with the given status, or all when status is empty.
func (s *Store) Conflicts(ctx context.Context, status string) ([]Conflict, error) {
	var rows []Conflict
	q := s.db.WithContext(ctx).Order("id")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load conflicts: %w", err)
	}
	return rows, nil
}

// Conflict returns one conflict.
func (s *Store) Conflict(ctx context.Context, id uint) (*Conflict, error) {
	var row Conflict
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("conflict %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conflict %d: %w", id, err)
	}
	return &row, nil
}

// ResolveConflict closes a pending conflict with status resolved or ignored
// and writes an audit entry.
func (s *Store) ResolveConflict(ctx context.Context, id uint, status, resolution, source string) (*Conflict, error) {
	if status != ConflictResolved && status != ConflictIgnored {
		return nil, fmt.Errorf("invalid conflict status %q", status)
	}
	row, err := s.Conflict(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.Status != ConflictPending {
		return nil, fmt.Errorf("conflict %d: %w", id, ErrConflictClosed)
	}

	now := s.now().UTC()
	row.Status = status
	row.ResolvedAt = &now
	if resolution != "" {
		row.Resolution = &resolution
	}
	err = s.db.WithContext(ctx).Model(&Conflict{}).Where("id = ?", id).Updates(map[string]any{
		"status":      row.Status,
		"resolved_at": row.ResolvedAt,
		"resolution":  row.Resolution,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to resolve conflict %d: %w", id, err)
	}

	if err := s.LogSync(ctx, source, "resolve_conflict", map[string]any{
		"conflict_id": id,
		"kind":        row.Kind,
		"key":         row.EntityKey,
		"status":      status,
		"resolution":  resolution,
	}); err != nil {
		return nil, err
	}
	return row, nil
}
