package store

import (
	"context"
	"errors"
	"fmt"

	"site-sync/core/resolver"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrAlreadyLinked is returned when merging a site already linked elsewhere.
var ErrAlreadyLinked = errors.New("site already linked")

// UnlinkedSites returns the monitoring sites without a maintenance link as
// resolver candidates. Ignored sites are flagged, not dropped.
func (s *Store) UnlinkedSites(ctx context.Context) ([]resolver.Candidate, error) {
	var sites []Site
	err := s.db.WithContext(ctx).
		Where("vcom_system_key IS NOT NULL AND yuman_site_id IS NULL").
		Order("id").Find(&sites).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load unlinked sites: %w", err)
	}
	out := make([]resolver.Candidate, 0, len(sites))
	for _, site := range sites {
		out = append(out, resolver.Candidate{
			Key:     deref(site.VcomSystemKey),
			Name:    site.Name,
			Code:    deref(site.Code),
			Lat:     site.Latitude,
			Lon:     site.Longitude,
			Ignored: site.IgnoreSite,
		})
	}
	return out, nil
}

// MergeSite links the monitoring site key to the maintenance site id. A
// maintenance-only row already holding that id hands its equipment and its
// blank-filling fields to the monitoring row and is removed.
func (s *Store) MergeSite(ctx context.Context, key string, maintenanceID int, source string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var site Site
		if err := tx.Where("vcom_system_key = ?", key).First(&site).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("site %s: %w", key, ErrNotFound)
			}
			return err
		}
		if site.YumanSiteID != nil {
			if *site.YumanSiteID == maintenanceID {
				return nil
			}
			return fmt.Errorf("site %s is linked to %d: %w", key, *site.YumanSiteID, ErrAlreadyLinked)
		}

		var other Site
		err := tx.Where("yuman_site_id = ?", maintenanceID).First(&other).Error
		switch {
		case err == nil:
			if other.VcomSystemKey != nil {
				return fmt.Errorf("maintenance site %d is linked to %s: %w", maintenanceID, *other.VcomSystemKey, ErrAlreadyLinked)
			}
			if err := absorb(tx, &site, &other); err != nil {
				return err
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if err := tx.Model(&Site{}).Where("id = ?", site.ID).Update("yuman_site_id", maintenanceID).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to merge site %s: %w", key, err)
	}

	s.logger.Info("Merged site", zap.String("key", key), zap.Int("maintenance_id", maintenanceID), zap.String("source", source))
	return s.LogSync(ctx, source, "merge_site", map[string]any{
		"vcom_system_key": key,
		"yuman_site_id":   maintenanceID,
	})
}

// absorb moves equipment and missing owned fields from other to site, then
// deletes other.
func absorb(tx *gorm.DB, site, other *Site) error {
	key := deref(site.VcomSystemKey)
	err := tx.Model(&Equipment{}).Where("site_id = ?", other.ID).
		Updates(map[string]any{"site_id": site.ID, "vcom_system_key": key}).Error
	if err != nil {
		return err
	}

	fill := map[string]any{}
	if site.Code == nil && other.Code != nil {
		fill["code"] = other.Code
	}
	if site.AldiID == nil && other.AldiID != nil {
		fill["aldi_id"] = other.AldiID
	}
	if site.AldiStoreID == nil && other.AldiStoreID != nil {
		fill["aldi_store_id"] = other.AldiStoreID
	}
	if site.ProjectNumberCP == nil && other.ProjectNumberCP != nil {
		fill["project_number_cp"] = other.ProjectNumberCP
	}
	if site.ClientMapID == nil && other.ClientMapID != nil {
		fill["client_map_id"] = other.ClientMapID
	}

	// yuman_site_id is unique; release it before the survivor takes it.
	if err := tx.Delete(&Site{}, other.ID).Error; err != nil {
		return err
	}
	if len(fill) == 0 {
		return nil
	}
	return tx.Model(&Site{}).Where("id = ?", site.ID).Updates(fill).Error
}

// IgnoreSite sets or clears the ignore flag of a site.
func (s *Store) IgnoreSite(ctx context.Context, key string, ignore bool, source string) error {
	res := s.db.WithContext(ctx).Model(&Site{}).Where("vcom_system_key = ?", key).Update("ignore_site", ignore)
	if res.Error != nil {
		return fmt.Errorf("failed to update site %s: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("site %s: %w", key, ErrNotFound)
	}
	return s.LogSync(ctx, source, "ignore_site", map[string]any{
		"vcom_system_key": key,
		"ignore":          ignore,
	})
}
