package store

import (
	"context"
	"fmt"

	"site-sync/core/entity"
	"site-sync/core/reconcile"
)

// Source reads the store as a snapshot source.
type Source struct {
	store      *Store
	categories []entity.Category
}

// Source returns a snapshot source limited to cats, or every category when empty.
// Obsolete equipment and sites without a monitoring key are never returned.
func (s *Store) Source(cats ...entity.Category) *Source {
	return &Source{store: s, categories: cats}
}

var _ reconcile.SnapshotSource = (*Source)(nil)

// Name implements reconcile.SnapshotSource.
func (src *Source) Name() string { return "store" }

func (src *Source) wants(c entity.Category) bool {
	if len(src.categories) == 0 {
		return true
	}
	for _, w := range src.categories {
		if w == c {
			return true
		}
	}
	return false
}

// FetchAll implements reconcile.SnapshotSource.
func (src *Source) FetchAll(ctx context.Context) ([]entity.Entity, error) {
	db := src.store.db.WithContext(ctx)

	var out []entity.Entity
	if src.wants(entity.CategorySite) {
		var sites []Site
		if err := db.Preload("Client").Where("vcom_system_key IS NOT NULL").Order("id").Find(&sites).Error; err != nil {
			return nil, fmt.Errorf("failed to load sites: %w", err)
		}
		for _, site := range sites {
			out = append(out, siteEntity(site))
		}
	}

	var ids []int
	for _, c := range entity.Categories {
		if c != entity.CategorySite && src.wants(c) {
			ids = append(ids, c.Policy().ExternalID)
		}
	}
	if len(ids) == 0 {
		return out, nil
	}

	var equipments []Equipment
	if err := db.Where("is_obsolete = ?", false).Order("id").Find(&equipments).Error; err != nil {
		return nil, fmt.Errorf("failed to load equipments: %w", err)
	}
	keyByID := make(map[uint]string, len(equipments))
	for _, eq := range equipments {
		keyByID[eq.ID] = eq.VcomDeviceID
	}
	for _, eq := range equipments {
		if !src.wants(eq.Category()) || eq.Category() == entity.CategoryUnknown {
			continue
		}
		out = append(out, equipmentEntity(eq, keyByID))
	}
	return out, nil
}

func siteEntity(s Site) entity.Entity {
	fields := entity.Fields{
		entity.FieldName:           s.Name,
		entity.FieldAddress:        s.Address,
		entity.FieldLatitude:       s.Latitude,
		entity.FieldLongitude:      s.Longitude,
		entity.FieldNominalPower:   s.NominalPower,
		entity.FieldCommissionDate: s.CommissionDate,
		entity.FieldCode:           s.Code,
		entity.FieldAldiID:         s.AldiID,
		entity.FieldAldiStoreID:    s.AldiStoreID,
		entity.FieldProjectNumber:  s.ProjectNumberCP,
		entity.FieldIgnoreSite:     s.IgnoreSite,
	}
	if s.Client != nil {
		fields[entity.FieldClientID] = s.Client.YumanClientID
	}
	return entity.New(entity.CategorySite, deref(s.VcomSystemKey), fields,
		entity.WithID(entity.SystemStore, idString(s.ID)),
		entity.WithID(entity.SystemMaintenance, intString(s.YumanSiteID)),
	)
}

func equipmentEntity(eq Equipment, keyByID map[uint]string) entity.Entity {
	parent := eq.VcomSystemKey
	if eq.Category() == entity.CategoryString && eq.ParentID != nil {
		parent = keyByID[*eq.ParentID]
	}
	serial := eq.SerialNumber
	if serial != nil {
		n := entity.NormalizeSerial(*serial)
		serial = &n
	}
	return entity.New(eq.Category(), eq.VcomDeviceID, entity.Fields{
		entity.FieldName:         eq.Name,
		entity.FieldBrand:        eq.Brand,
		entity.FieldModel:        eq.Model,
		entity.FieldSerialNumber: serial,
		entity.FieldCount:        eq.Count,
		entity.FieldMPPTIndex:    eq.MPPTIndex,
	},
		entity.WithParent(parent),
		entity.WithID(entity.SystemStore, idString(eq.ID)),
		entity.WithID(entity.SystemMaintenance, intString(eq.YumanMaterialID)),
	)
}
