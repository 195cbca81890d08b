package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"site-sync/core/database"
	"site-sync/core/entity"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store is the relational system of record.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// New creates a store on db.
func New(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger, now: time.Now}
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB { return s.db }

// Migrate creates or updates every table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate store schema: %w", err)
	}
	return nil
}

// expectedColumns lists the columns the sync relies on.
var expectedColumns = map[string][]string{
	"clients_mapping":    {"id", "yuman_client_id", "name"},
	"sites_mapping":      {"id", "yuman_site_id", "vcom_system_key", "client_map_id", "name", "code", "aldi_id", "aldi_store_id", "project_number_cp", "ignore_site"},
	"equipments_mapping": {"id", "yuman_material_id", "category_id", "vcom_system_key", "vcom_device_id", "site_id", "parent_id", "is_obsolete", "obsolete_at"},
	"conflicts":          {"id", "entity_type", "entity_key", "status", "payload"},
	"sync_logs":          {"id", "source", "action", "payload"},
}

// CheckSchema returns the expected columns missing from the database.
func (s *Store) CheckSchema(ctx context.Context) ([]string, error) {
	return database.MissingColumns(s.db.WithContext(ctx), expectedColumns)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func idString(id uint) string { return strconv.FormatUint(uint64(id), 10) }

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid store id %q: %w", s, err)
	}
	return uint(id), nil
}

func intString(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func parseOptionalInt(v any) (*int, error) {
	if entity.IsBlank(v) {
		return nil, nil
	}
	switch x := entity.Normalize(v).(type) {
	case float64:
		n := int(x)
		return &n, nil
	case string:
		n, err := strconv.Atoi(x)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", x, err)
		}
		return &n, nil
	default:
		return nil, fmt.Errorf("invalid integer %v", v)
	}
}

func optionalFloat(v any) *float64 {
	if f, ok := entity.Normalize(v).(float64); ok {
		return &f
	}
	return nil
}

func optionalString(v any) *string {
	if entity.IsBlank(v) {
		return nil
	}
	switch x := entity.Normalize(v).(type) {
	case string:
		return &x
	case float64:
		s := strconv.FormatFloat(x, 'f', -1, 64)
		return &s
	case time.Time:
		s := x.Format("2006-01-02")
		return &s
	default:
		s := fmt.Sprint(x)
		return &s
	}
}
