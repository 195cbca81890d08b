package maintenance

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"site-sync/core/entity"
	"site-sync/core/reconcile"
	"site-sync/core/resolver"
	"site-sync/core/utils"

	"go.uber.org/zap"
)

// Mutator writes patches to the maintenance platform.
type Mutator struct {
	client *Client
	logger *zap.Logger

	mu     sync.Mutex
	siteOf map[int]int
}

var _ reconcile.Mutator = (*Mutator)(nil)

// NewMutator creates a mutator.
func NewMutator(client *Client, logger *zap.Logger) *Mutator {
	return &Mutator{client: client, logger: logger, siteOf: map[int]int{}}
}

// Create implements reconcile.Mutator. Sites need a client id; materials
// created with custom fields are patched again since creation drops them.
func (m *Mutator) Create(ctx context.Context, mut reconcile.Mutation) (string, error) {
	e := mut.Entity
	if e.Category() == entity.CategorySite {
		return m.createSite(ctx, e)
	}

	parentID, err := strconv.Atoi(mut.ParentID)
	if err != nil {
		return "", &reconcile.ValidationError{Category: e.Category(), Key: e.Key(), Reason: fmt.Sprintf("invalid parent id %q", mut.ParentID)}
	}
	in := MaterialInput{
		CategoryID:   e.Category().Policy().ExternalID,
		Name:         e.Text(entity.FieldName),
		Brand:        e.Text(entity.FieldBrand),
		Model:        e.Text(entity.FieldModel),
		SerialNumber: e.Text(entity.FieldSerialNumber),
		Fields:       materialFields(e, nil),
	}
	if in.Name == "" {
		in.Name = e.Key()
	}
	if e.Category() == entity.CategoryString {
		in.SerialNumber = e.Key()
		in.ParentID = &parentID
		if in.SiteID, err = m.siteOfMaterial(ctx, parentID); err != nil {
			return "", err
		}
	} else {
		in.SiteID = parentID
		if in.SerialNumber == "" {
			in.SerialNumber = e.Key()
		}
	}

	created, err := m.client.CreateMaterial(ctx, in)
	if err != nil {
		return "", err
	}
	m.remember(created.ID, in.SiteID)

	if len(in.Fields) > 0 {
		if err := m.client.UpdateMaterial(ctx, created.ID, map[string]any{"fields": in.Fields}); err != nil {
			m.logger.Warn("Failed to patch material fields after creation",
				zap.Int("id", created.ID), zap.String("key", e.Key()), zap.Error(err))
		}
	}
	return strconv.Itoa(created.ID), nil
}

func (m *Mutator) createSite(ctx context.Context, e entity.Entity) (string, error) {
	clientID, ok := utils.ToFloat(e.Value(entity.FieldClientID))
	if !ok {
		return "", &reconcile.ValidationError{Category: entity.CategorySite, Key: e.Key(), Field: entity.FieldClientID, Reason: "site has no client"}
	}
	in := SiteInput{
		ClientID: int(clientID),
		Name:     resolver.CleanSiteName(e.Text(entity.FieldName)),
		Address:  e.Text(entity.FieldAddress),
		Fields: []Field{
			NewField(FieldSystemKey, e.Key()),
			NewField(FieldNominalPower, e.Value(entity.FieldNominalPower)),
			NewField(FieldCommission, e.Text(entity.FieldCommissionDate)),
		},
	}
	site, err := m.client.CreateSite(ctx, in)
	if err != nil {
		return "", err
	}
	m.logger.Info("Created maintenance site", zap.String("key", e.Key()), zap.Int("id", site.ID))
	return strconv.Itoa(site.ID), nil
}

// Update implements reconcile.Mutator. Only fields the platform stores are
// written; material parents are fixed at creation.
func (m *Mutator) Update(ctx context.Context, mut reconcile.Mutation) error {
	e := mut.Entity
	id, err := strconv.Atoi(mut.ID)
	if err != nil {
		return &reconcile.ValidationError{Category: e.Category(), Key: e.Key(), Reason: fmt.Sprintf("invalid id %q", mut.ID)}
	}

	if e.Category() == entity.CategorySite {
		patch := sitePatch(mut.Changed)
		if len(patch) == 0 {
			return noWritableField(e, mut.Changed)
		}
		return m.client.UpdateSite(ctx, id, patch)
	}

	// String brand and model live in custom fields only.
	columns := []string{entity.FieldName, entity.FieldBrand, entity.FieldModel, entity.FieldSerialNumber}
	if e.Category() == entity.CategoryString {
		columns = []string{entity.FieldName}
	}
	patch := map[string]any{}
	for _, f := range columns {
		if v, ok := mut.Changed[f]; ok {
			patch[f] = utils.ToString(v)
		}
	}
	if fields := materialFields(e, mut.Changed); len(fields) > 0 {
		patch["fields"] = fields
	}
	if len(patch) == 0 {
		return noWritableField(e, mut.Changed)
	}
	return m.client.UpdateMaterial(ctx, id, patch)
}

// noWritableField rejects an update the platform cannot store, so it is not
// reported as written.
func noWritableField(e entity.Entity, changed entity.Fields) error {
	names := make([]string, 0, len(changed))
	for f := range changed {
		names = append(names, f)
	}
	sort.Strings(names)
	return &reconcile.ValidationError{Category: e.Category(), Key: e.Key(), Reason: fmt.Sprintf("no writable field among %v", names)}
}

// SoftDelete implements reconcile.Mutator. The platform has no obsolete
// state, so records are never removed from it.
func (m *Mutator) SoftDelete(_ context.Context, mut reconcile.Mutation) error {
	return &reconcile.ValidationError{Category: mut.Entity.Category(), Key: mut.Entity.Key(), Reason: "maintenance records are never deleted"}
}

func sitePatch(changed entity.Fields) map[string]any {
	patch := map[string]any{}
	var fields []Field
	for f, v := range changed {
		switch f {
		case entity.FieldName:
			if name := resolver.CleanSiteName(utils.ToString(v)); name != "" {
				patch["name"] = name
			}
		case entity.FieldAddress:
			patch["address"] = utils.ToString(v)
		case entity.FieldNominalPower:
			if !entity.IsBlank(v) {
				fields = append(fields, NewField(FieldNominalPower, v))
			}
		case entity.FieldCommissionDate:
			if !entity.IsBlank(v) {
				fields = append(fields, NewField(FieldCommission, utils.ToString(v)))
			}
		}
	}
	if len(fields) > 0 {
		patch["fields"] = fields
	}
	return patch
}

// materialFields returns the custom fields of e, limited to the changed
// fields when changed is non-nil.
func materialFields(e entity.Entity, changed entity.Fields) []Field {
	has := func(f string) bool {
		if changed == nil {
			return true
		}
		_, ok := changed[f]
		return ok
	}

	var fields []Field
	if has(entity.FieldModel) && e.Text(entity.FieldModel) != "" {
		fields = append(fields, NewField(FieldModel, e.Text(entity.FieldModel)))
	}
	switch e.Category() {
	case entity.CategoryInverter:
		if changed == nil {
			fields = append(fields, NewField(FieldInverterID, e.Key()))
		}
	case entity.CategoryModule:
		if has(entity.FieldCount) && !entity.IsBlank(e.Value(entity.FieldCount)) {
			fields = append(fields, NewField(FieldModuleCount, e.Text(entity.FieldCount)))
		}
	case entity.CategoryString:
		mppt := e.Text(entity.FieldMPPTIndex)
		if mppt == "" {
			mppt = entity.MPPTFromStringKey(e.Key())
		}
		if has(entity.FieldMPPTIndex) {
			fields = append(fields, NewField(FieldMPPTIndex, mppt))
		}
		if has(entity.FieldCount) {
			fields = append(fields, NewField(FieldModuleCount, e.Text(entity.FieldCount)))
		}
		if has(entity.FieldBrand) {
			fields = append(fields, NewField(FieldModuleBrand, e.Text(entity.FieldBrand)))
		}
		if has(entity.FieldModel) {
			fields = append(fields, NewField(FieldModuleModel, e.Text(entity.FieldModel)))
		}
	}
	return fields
}

func (m *Mutator) remember(material, site int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.siteOf[material] = site
}

// siteOfMaterial returns the site of a material, reading it once from the platform.
func (m *Mutator) siteOfMaterial(ctx context.Context, id int) (int, error) {
	m.mu.Lock()
	site, ok := m.siteOf[id]
	m.mu.Unlock()
	if ok {
		return site, nil
	}
	mat, err := m.client.Material(ctx, id)
	if err != nil {
		return 0, err
	}
	m.remember(id, mat.SiteID)
	return mat.SiteID, nil
}
