package store

import (
	"context"
	"testing"
	"time"

	"site-sync/core/database"
	"site-sync/core/entity"
	"site-sync/core/reconcile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)

	s := New(db, zap.NewNop())
	s.now = func() time.Time { return time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC) }
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// seed creates a site with one inverter and one string through the mutator.
func seed(t *testing.T, s *Store) (siteID, invID, strID string) {
	t.Helper()
	ctx := context.Background()
	m := s.Mutator()

	site := entity.New(entity.CategorySite, "E3K2L", entity.Fields{
		entity.FieldName:         "Reims Nord",
		entity.FieldNominalPower: 99.5,
		entity.FieldClientID:     12,
	})
	siteID, err := m.Create(ctx, reconcile.Mutation{Entity: site})
	require.NoError(t, err)

	inv := entity.New(entity.CategoryInverter, "Id1234.1", entity.Fields{
		entity.FieldName:         "WR 1",
		entity.FieldBrand:        "SMA",
		entity.FieldSerialNumber: "sn 001",
	}, entity.WithParent("E3K2L"))
	invID, err = m.Create(ctx, reconcile.Mutation{Entity: inv, ParentID: siteID})
	require.NoError(t, err)

	key := entity.StringKey("E3K2L", 1, "1", 1)
	str := entity.New(entity.CategoryString, key, entity.Fields{
		entity.FieldName:      key,
		entity.FieldCount:     18,
		entity.FieldMPPTIndex: "1",
	}, entity.WithParent("Id1234.1"))
	strID, err = m.Create(ctx, reconcile.Mutation{Entity: str, ParentID: invID})
	require.NoError(t, err)
	return siteID, invID, strID
}

// TestSource_RoundTrip tests that created rows read back as the same entities.
func TestSource_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	siteID, invID, strID := seed(t, s)

	snap, dropped, err := reconcile.Load(context.Background(), s.Source(), zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, dropped)
	require.Len(t, snap, 3)

	site := snap["E3K2L"]
	assert.Equal(t, "Reims Nord", site.Text(entity.FieldName))
	assert.Equal(t, 99.5, site.Value(entity.FieldNominalPower))
	assert.Equal(t, float64(12), site.Value(entity.FieldClientID))
	id, _ := site.ID(entity.SystemStore)
	assert.Equal(t, siteID, id)

	inv := snap["Id1234.1"]
	assert.Equal(t, entity.CategoryInverter, inv.Category())
	assert.Equal(t, "E3K2L", inv.Parent())
	assert.Equal(t, "SN001", inv.Text(entity.FieldSerialNumber))
	id, _ = inv.ID(entity.SystemStore)
	assert.Equal(t, invID, id)

	str := snap[entity.StringKey("E3K2L", 1, "1", 1)]
	assert.Equal(t, "Id1234.1", str.Parent())
	assert.Equal(t, float64(18), str.Value(entity.FieldCount))
	id, _ = str.ID(entity.SystemStore)
	assert.Equal(t, strID, id)

	sites, err := s.Source(entity.CategorySite).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, sites, 1)
}

// TestMutator_SoftDeleteAndRevive tests that obsolete rows leave the snapshot
// and come back with the same id when recreated.
func TestMutator_SoftDeleteAndRevive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	siteID, invID, _ := seed(t, s)
	m := s.Mutator()

	inv := entity.New(entity.CategoryInverter, "Id1234.1", nil, entity.WithParent("E3K2L"))
	require.NoError(t, m.SoftDelete(ctx, reconcile.Mutation{Entity: inv, ID: invID}))

	var row Equipment
	require.NoError(t, s.db.First(&row, "vcom_device_id = ?", "Id1234.1").Error)
	assert.True(t, row.IsObsolete)
	require.NotNil(t, row.ObsoleteAt)
	assert.True(t, row.ObsoleteAt.Equal(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)))

	snap, _, err := reconcile.Load(ctx, s.Source(entity.CategoryInverter), nil)
	require.NoError(t, err)
	assert.Empty(t, snap)

	revived, err := m.Create(ctx, reconcile.Mutation{
		Entity:   entity.New(entity.CategoryInverter, "Id1234.1", entity.Fields{entity.FieldBrand: "Huawei"}, entity.WithParent("E3K2L")),
		ParentID: siteID,
	})
	require.NoError(t, err)
	assert.Equal(t, invID, revived)

	var back Equipment
	require.NoError(t, s.db.First(&back, "vcom_device_id = ?", "Id1234.1").Error)
	assert.False(t, back.IsObsolete)
	assert.Nil(t, back.ObsoleteAt)
	assert.Equal(t, "Huawei", deref(back.Brand))
}

// TestMutator_Update tests that only changed columns are written and maintenance ids back-filled.
func TestMutator_Update(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	siteID, _, _ := seed(t, s)
	m := s.Mutator()

	site := entity.New(entity.CategorySite, "E3K2L", entity.Fields{entity.FieldCode: "C0042"},
		entity.WithID(entity.SystemMaintenance, "501"))
	err := m.Update(ctx, reconcile.Mutation{
		Entity:  site,
		ID:      siteID,
		Changed: entity.Fields{entity.FieldCode: "C0042", entity.FieldClientID: 7},
	})
	require.NoError(t, err)

	var row Site
	require.NoError(t, s.db.Preload("Client").First(&row, "vcom_system_key = ?", "E3K2L").Error)
	assert.Equal(t, "C0042", deref(row.Code))
	assert.Equal(t, "Reims Nord", row.Name)
	require.NotNil(t, row.YumanSiteID)
	assert.Equal(t, 501, *row.YumanSiteID)
	require.NotNil(t, row.Client)
	assert.Equal(t, 7, row.Client.YumanClientID)

	var clients int64
	s.db.Model(&Client{}).Count(&clients)
	assert.Equal(t, int64(2), clients)
}

// TestMutator_Reparent tests that moving a string updates its inverter and site.
func TestMutator_Reparent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	siteID, _, strID := seed(t, s)
	m := s.Mutator()

	inv2, err := m.Create(ctx, reconcile.Mutation{
		Entity:   entity.New(entity.CategoryInverter, "Id1234.2", nil, entity.WithParent("E3K2L")),
		ParentID: siteID,
	})
	require.NoError(t, err)

	key := entity.StringKey("E3K2L", 1, "1", 1)
	err = m.Update(ctx, reconcile.Mutation{
		Entity:   entity.New(entity.CategoryString, key, nil, entity.WithParent("Id1234.2")),
		ID:       strID,
		ParentID: inv2,
	})
	require.NoError(t, err)

	snap, _, err := reconcile.Load(ctx, s.Source(entity.CategoryString), nil)
	require.NoError(t, err)
	assert.Equal(t, "Id1234.2", snap[key].Parent())
}

// TestMutator_Delete tests hard deletes and the refusal to delete sites.
func TestMutator_Delete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	siteID, _, strID := seed(t, s)
	m := s.Mutator()

	key := entity.StringKey("E3K2L", 1, "1", 1)
	require.NoError(t, m.Delete(ctx, reconcile.Mutation{Entity: entity.New(entity.CategoryString, key, nil), ID: strID}))

	var n int64
	s.db.Model(&Equipment{}).Where("vcom_device_id = ?", key).Count(&n)
	assert.Zero(t, n)

	err := m.Delete(ctx, reconcile.Mutation{Entity: entity.New(entity.CategorySite, "E3K2L", nil), ID: siteID})
	assert.ErrorIs(t, err, reconcile.ErrValidation)
}

// TestIdentityStore tests id lookups per system and maintenance links.
func TestIdentityStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	siteID, _, _ := seed(t, s)

	id, ok, err := s.ExternalID(ctx, entity.SystemStore, entity.CategorySite, "E3K2L")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, siteID, id)

	_, ok, err = s.ExternalID(ctx, entity.SystemMaintenance, entity.CategoryInverter, "Id1234.1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Link(ctx, entity.SystemMaintenance, entity.CategoryInverter, "Id1234.1", "9001"))
	id, ok, err = s.ExternalID(ctx, entity.SystemMaintenance, entity.CategoryInverter, "Id1234.1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "9001", id)

	require.NoError(t, s.Link(ctx, entity.SystemMaintenance, entity.CategorySite, "E3K2L", "501"))
	keys, err := s.SiteKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"501": "E3K2L"}, keys)

	err = s.Link(ctx, entity.SystemMaintenance, entity.CategorySite, "UNKNOWN", "502")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Link(ctx, entity.SystemStore, entity.CategorySite, "UNKNOWN", "1"))

	_, ok, err = s.ExternalID(ctx, entity.SystemStore, entity.CategorySite, "UNKNOWN")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestCheckSchema tests that a migrated database has every expected column.
func TestCheckSchema(t *testing.T) {
	s := newTestStore(t)
	missing, err := s.CheckSchema(context.Background())
	require.NoError(t, err)
	assert.Empty(t, missing)

	require.NoError(t, s.db.Migrator().DropColumn(&SyncLog{}, "payload"))
	missing, err = s.CheckSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"sync_logs.payload"}, missing)
}
