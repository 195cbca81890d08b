package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"site-sync/core/entity"
	"site-sync/core/reconcile"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a store row does not exist.
var ErrNotFound = errors.New("not found")

var _ reconcile.IdentityStore = (*Store)(nil)

// ExternalID implements reconcile.IdentityStore.
func (s *Store) ExternalID(ctx context.Context, sys entity.System, cat entity.Category, key string) (string, bool, error) {
	db := s.db.WithContext(ctx)

	if cat == entity.CategorySite {
		var site Site
		err := db.Where("vcom_system_key = ?", key).First(&site).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		switch sys {
		case entity.SystemStore:
			return idString(site.ID), true, nil
		case entity.SystemMaintenance:
			return intString(site.YumanSiteID), site.YumanSiteID != nil, nil
		default:
			return key, true, nil
		}
	}

	var eq Equipment
	err := db.Where("vcom_device_id = ?", key).First(&eq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	switch sys {
	case entity.SystemStore:
		return idString(eq.ID), true, nil
	case entity.SystemMaintenance:
		return intString(eq.YumanMaterialID), eq.YumanMaterialID != nil, nil
	default:
		return key, true, nil
	}
}

// Link implements reconcile.IdentityStore. Only maintenance ids are persisted;
// store ids are the rows themselves and monitoring ids are the keys.
func (s *Store) Link(ctx context.Context, sys entity.System, cat entity.Category, key, id string) error {
	if sys != entity.SystemMaintenance {
		return nil
	}
	n, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("invalid maintenance id %q: %w", id, err)
	}

	db := s.db.WithContext(ctx)
	var res *gorm.DB
	if cat == entity.CategorySite {
		res = db.Model(&Site{}).Where("vcom_system_key = ?", key).Update("yuman_site_id", n)
	} else {
		res = db.Model(&Equipment{}).Where("vcom_device_id = ?", key).Update("yuman_material_id", n)
	}
	if res.Error != nil {
		return fmt.Errorf("failed to link %s %s to %d: %w", cat, key, n, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to link %s %s: %w", cat, key, ErrNotFound)
	}
	return nil
}

// SiteKeys maps maintenance site ids to monitoring keys for linked sites.
func (s *Store) SiteKeys(ctx context.Context) (map[string]string, error) {
	var sites []Site
	err := s.db.WithContext(ctx).
		Where("yuman_site_id IS NOT NULL AND vcom_system_key IS NOT NULL").
		Find(&sites).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load site links: %w", err)
	}
	out := make(map[string]string, len(sites))
	for _, site := range sites {
		out[intString(site.YumanSiteID)] = deref(site.VcomSystemKey)
	}
	return out, nil
}
