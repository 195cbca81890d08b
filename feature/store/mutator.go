package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"site-sync/core/entity"
	"site-sync/core/reconcile"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Mutator writes patches to the store.
type Mutator struct {
	store *Store
}

// Mutator returns the store mutator.
func (s *Store) Mutator() *Mutator {
	return &Mutator{store: s}
}

var (
	_ reconcile.Mutator     = (*Mutator)(nil)
	_ reconcile.HardDeleter = (*Mutator)(nil)
)

// siteColumns maps site fields to sites_mapping columns. client_id is
// translated through clients_mapping.
var siteColumns = map[string]string{
	entity.FieldName:           "name",
	entity.FieldAddress:        "address",
	entity.FieldLatitude:       "latitude",
	entity.FieldLongitude:      "longitude",
	entity.FieldNominalPower:   "nominal_power",
	entity.FieldCommissionDate: "commission_date",
	entity.FieldCode:           "code",
	entity.FieldAldiID:         "aldi_id",
	entity.FieldAldiStoreID:    "aldi_store_id",
	entity.FieldProjectNumber:  "project_number_cp",
	entity.FieldIgnoreSite:     "ignore_site",
}

var equipmentColumns = map[string]string{
	entity.FieldName:         "name",
	entity.FieldBrand:        "brand",
	entity.FieldModel:        "model",
	entity.FieldSerialNumber: "serial_number",
	entity.FieldCount:        "count",
	entity.FieldMPPTIndex:    "mppt_index",
}

// Create implements reconcile.Mutator. Equipment rows sharing the device id
// of an obsolete row revive it.
func (m *Mutator) Create(ctx context.Context, mut reconcile.Mutation) (string, error) {
	if mut.Entity.Category() == entity.CategorySite {
		return m.createSite(ctx, mut)
	}
	return m.createEquipment(ctx, mut)
}

func (m *Mutator) createSite(ctx context.Context, mut reconcile.Mutation) (string, error) {
	e := mut.Entity
	key := e.Key()
	site := Site{VcomSystemKey: &key, Name: e.Text(entity.FieldName)}
	if site.Name == "" {
		site.Name = key
	}
	values, err := m.siteValues(ctx, m.store.db.WithContext(ctx), e.Fields())
	if err != nil {
		return "", err
	}
	if id, ok := e.ID(entity.SystemMaintenance); ok {
		n, err := strconv.Atoi(id)
		if err == nil {
			site.YumanSiteID = &n
		}
	}

	err = m.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&site).Error; err != nil {
			return err
		}
		if len(values) == 0 {
			return nil
		}
		return tx.Model(&Site{}).Where("id = ?", site.ID).Updates(values).Error
	})
	if err != nil {
		return "", fmt.Errorf("failed to insert site %s: %w", key, err)
	}
	return idString(site.ID), nil
}

func (m *Mutator) createEquipment(ctx context.Context, mut reconcile.Mutation) (string, error) {
	e := mut.Entity
	cat := e.Category()
	db := m.store.db.WithContext(ctx)

	siteID, parentID, siteKey, err := m.placement(ctx, cat, mut.ParentID)
	if err != nil {
		return "", err
	}

	values := columnValues(e.Fields(), equipmentColumns)
	values["category_id"] = cat.Policy().ExternalID
	values["eq_type"] = cat.String()
	values["vcom_system_key"] = siteKey
	values["site_id"] = siteID
	values["parent_id"] = parentID
	values["is_obsolete"] = false
	values["obsolete_at"] = nil
	if n, err := parseOptionalInt(e.Value(entity.FieldCount)); err == nil && n != nil {
		values["count"] = n
	}
	if id, ok := e.ID(entity.SystemMaintenance); ok {
		if n, err := strconv.Atoi(id); err == nil {
			values["yuman_material_id"] = n
		}
	}

	var existing Equipment
	err = db.Where("vcom_device_id = ?", e.Key()).First(&existing).Error
	switch {
	case err == nil:
		if err := db.Model(&Equipment{}).Where("id = ?", existing.ID).Updates(values).Error; err != nil {
			return "", fmt.Errorf("failed to revive equipment %s: %w", e.Key(), err)
		}
		m.store.logger.Info("Revived equipment", zap.String("key", e.Key()), zap.Uint("id", existing.ID))
		return idString(existing.ID), nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return "", fmt.Errorf("failed to look up equipment %s: %w", e.Key(), err)
	}

	eq := Equipment{
		CategoryID:    cat.Policy().ExternalID,
		EqType:        cat.String(),
		VcomSystemKey: siteKey,
		VcomDeviceID:  e.Key(),
		SiteID:        siteID,
		ParentID:      parentID,
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&eq).Error; err != nil {
			return err
		}
		return tx.Model(&Equipment{}).Where("id = ?", eq.ID).Updates(values).Error
	})
	if err != nil {
		return "", fmt.Errorf("failed to insert equipment %s: %w", e.Key(), err)
	}
	return idString(eq.ID), nil
}

// Update implements reconcile.Mutator.
func (m *Mutator) Update(ctx context.Context, mut reconcile.Mutation) error {
	id, err := parseID(mut.ID)
	if err != nil {
		return err
	}
	db := m.store.db.WithContext(ctx)
	e := mut.Entity

	if e.Category() == entity.CategorySite {
		values, err := m.siteValues(ctx, db, mut.Changed)
		if err != nil {
			return err
		}
		if ext, ok := e.ID(entity.SystemMaintenance); ok {
			if n, err := strconv.Atoi(ext); err == nil {
				values["yuman_site_id"] = gorm.Expr("COALESCE(yuman_site_id, ?)", n)
			}
		}
		if len(values) == 0 {
			return nil
		}
		if err := db.Model(&Site{}).Where("id = ?", id).Updates(values).Error; err != nil {
			return fmt.Errorf("failed to update site %s: %w", e.Key(), err)
		}
		return nil
	}

	values := columnValues(mut.Changed, equipmentColumns)
	if mut.ParentID != "" {
		siteID, parentID, siteKey, err := m.placement(ctx, e.Category(), mut.ParentID)
		if err != nil {
			return err
		}
		values["site_id"] = siteID
		values["parent_id"] = parentID
		values["vcom_system_key"] = siteKey
	}
	if ext, ok := e.ID(entity.SystemMaintenance); ok {
		if n, err := strconv.Atoi(ext); err == nil {
			values["yuman_material_id"] = gorm.Expr("COALESCE(yuman_material_id, ?)", n)
		}
	}
	if len(values) == 0 {
		return nil
	}
	if err := db.Model(&Equipment{}).Where("id = ?", id).Updates(values).Error; err != nil {
		return fmt.Errorf("failed to update equipment %s: %w", e.Key(), err)
	}
	return nil
}

// SoftDelete implements reconcile.Mutator by marking equipment obsolete.
func (m *Mutator) SoftDelete(ctx context.Context, mut reconcile.Mutation) error {
	if mut.Entity.Category() == entity.CategorySite {
		return &reconcile.ValidationError{Category: entity.CategorySite, Key: mut.Entity.Key(), Reason: "sites are never deleted"}
	}
	id, err := parseID(mut.ID)
	if err != nil {
		return err
	}
	now := m.store.now().UTC()
	err = m.store.db.WithContext(ctx).Model(&Equipment{}).Where("id = ?", id).
		Updates(map[string]any{"is_obsolete": true, "obsolete_at": now}).Error
	if err != nil {
		return fmt.Errorf("failed to obsolete equipment %s: %w", mut.Entity.Key(), err)
	}
	return nil
}

// Delete implements reconcile.HardDeleter.
func (m *Mutator) Delete(ctx context.Context, mut reconcile.Mutation) error {
	if mut.Entity.Category() == entity.CategorySite {
		return &reconcile.ValidationError{Category: entity.CategorySite, Key: mut.Entity.Key(), Reason: "sites are never deleted"}
	}
	id, err := parseID(mut.ID)
	if err != nil {
		return err
	}
	if err := m.store.db.WithContext(ctx).Delete(&Equipment{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete equipment %s: %w", mut.Entity.Key(), err)
	}
	return nil
}

// placement resolves the site row, the parent equipment row and the site key
// of an equipment from the store id of its parent.
func (m *Mutator) placement(ctx context.Context, cat entity.Category, parent string) (uint, *uint, string, error) {
	pid, err := parseID(parent)
	if err != nil {
		return 0, nil, "", err
	}
	db := m.store.db.WithContext(ctx)

	if cat.Policy().Parent == entity.CategorySite {
		var site Site
		if err := db.First(&site, pid).Error; err != nil {
			return 0, nil, "", fmt.Errorf("failed to load parent site %d: %w", pid, err)
		}
		return site.ID, nil, deref(site.VcomSystemKey), nil
	}

	var parentEq Equipment
	if err := db.First(&parentEq, pid).Error; err != nil {
		return 0, nil, "", fmt.Errorf("failed to load parent equipment %d: %w", pid, err)
	}
	return parentEq.SiteID, &parentEq.ID, parentEq.VcomSystemKey, nil
}

// siteValues converts site fields to column updates.
func (m *Mutator) siteValues(ctx context.Context, db *gorm.DB, fields entity.Fields) (map[string]any, error) {
	values := columnValues(fields, siteColumns)
	if v, ok := values["ignore_site"]; ok && v == nil {
		values["ignore_site"] = false
	}
	if v, ok := fields[entity.FieldClientID]; ok {
		clientMapID, err := m.store.ensureClient(ctx, db, v)
		if err != nil {
			return nil, err
		}
		values["client_map_id"] = clientMapID
	}
	return values, nil
}

// ensureClient returns the clients_mapping id of a maintenance client id,
// inserting a placeholder row when the client is unknown.
func (s *Store) ensureClient(ctx context.Context, db *gorm.DB, v any) (*uint, error) {
	yid, err := parseOptionalInt(v)
	if err != nil || yid == nil {
		return nil, err
	}
	client := Client{YumanClientID: *yid, Name: fmt.Sprintf("client %d", *yid), Active: true}
	if err := db.Where(Client{YumanClientID: *yid}).FirstOrCreate(&client).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve client %d: %w", *yid, err)
	}
	return &client.ID, nil
}

func columnValues(fields entity.Fields, columns map[string]string) map[string]any {
	values := map[string]any{}
	for f, v := range fields {
		col, ok := columns[f]
		if !ok {
			continue
		}
		switch f {
		case entity.FieldCount:
			n, err := parseOptionalInt(v)
			if err != nil {
				continue
			}
			values[col] = n
		case entity.FieldLatitude, entity.FieldLongitude, entity.FieldNominalPower:
			values[col] = optionalFloat(v)
		case entity.FieldIgnoreSite:
			values[col] = entity.Normalize(v)
		default:
			values[col] = optionalString(v)
		}
	}
	return values
}
