package store

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

// LogSync writes an audit entry. payload is stored as JSON.
func (s *Store) LogSync(ctx context.Context, source, action string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode sync log payload: %w", err)
	}
	entry := SyncLog{
		Source:    source,
		Action:    action,
		Payload:   datatypes.JSON(raw),
		CreatedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to write sync log: %w", err)
	}
	return nil
}

// SyncLogs returns the newest audit entries first.
func (s *Store) SyncLogs(ctx context.Context, limit int) ([]SyncLog, error) {
	var logs []SyncLog
	q := s.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to load sync logs: %w", err)
	}
	return logs, nil
}
