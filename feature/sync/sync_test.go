package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"testing"
	"time"

	"site-sync/core/database"
	"site-sync/core/entity"
	"site-sync/core/gateway"
	"site-sync/core/lock"
	"site-sync/core/reconcile"
	"site-sync/core/resolver"
	"site-sync/feature/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticSource struct {
	name     string
	entities []entity.Entity
	err      error
	fetches  int
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) FetchAll(context.Context) ([]entity.Entity, error) {
	s.fetches++
	return s.entities, s.err
}

// fakeMaintenance is an in-memory maintenance platform serving both as
// snapshot source and mutator.
type fakeMaintenance struct {
	records map[string]entity.Entity
	unkeyed []resolver.Candidate
	keys    map[int]string
	nextID  int
	calls   []string
	fetches int
}

func newFakeMaintenance(entities ...entity.Entity) *fakeMaintenance {
	f := &fakeMaintenance{records: map[string]entity.Entity{}, keys: map[int]string{}, nextID: 1000}
	for _, e := range entities {
		f.records[e.Key()] = e
	}
	return f
}

func (f *fakeMaintenance) Name() string { return "maintenance" }

func (f *fakeMaintenance) FetchAll(context.Context) ([]entity.Entity, error) {
	f.fetches++
	keys := make([]string, 0, len(f.records))
	for k := range f.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]entity.Entity, 0, len(keys))
	for _, k := range keys {
		out = append(out, f.records[k])
	}
	return out, nil
}

func (f *fakeMaintenance) Unkeyed() []resolver.Candidate { return f.unkeyed }

func (f *fakeMaintenance) Create(_ context.Context, m reconcile.Mutation) (string, error) {
	f.nextID++
	id := strconv.Itoa(f.nextID)
	f.records[m.Entity.Key()] = m.Entity.WithExternalID(entity.SystemMaintenance, id)
	f.calls = append(f.calls, "create "+m.Entity.Key())
	return id, nil
}

func (f *fakeMaintenance) Update(_ context.Context, m reconcile.Mutation) error {
	key := m.Entity.Key()
	f.records[key] = f.records[key].WithFields(m.Changed)
	f.calls = append(f.calls, "update "+key)
	return nil
}

func (f *fakeMaintenance) SoftDelete(_ context.Context, m reconcile.Mutation) error {
	return &reconcile.ValidationError{Category: m.Entity.Category(), Key: m.Entity.Key(), Reason: "never deleted"}
}

func (f *fakeMaintenance) SetSiteKey(_ context.Context, id int, key string) error {
	f.keys[id] = key
	return nil
}

type recordingAlerts struct {
	batches [][]reconcile.Conflict
}

func (a *recordingAlerts) Notify(_ context.Context, c []reconcile.Conflict) error {
	a.batches = append(a.batches, c)
	return nil
}

type fixture struct {
	svc         *Service
	store       *store.Store
	monitoring  *staticSource
	maintenance *fakeMaintenance
	alerts      *recordingAlerts
	lockPath    string
}

func newFixture(t *testing.T, monitoring []entity.Entity, maintenance ...entity.Entity) *fixture {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)
	st := store.New(db, zap.NewNop())
	require.NoError(t, st.Migrate(context.Background()))

	f := &fixture{
		store:       st,
		monitoring:  &staticSource{name: "monitoring", entities: monitoring},
		maintenance: newFakeMaintenance(maintenance...),
		alerts:      &recordingAlerts{},
		lockPath:    filepath.Join(t.TempDir(), "sync.lock"),
	}
	f.svc = NewService(Deps{
		Store:              st,
		Monitoring:         f.monitoring,
		Maintenance:        f.maintenance,
		MaintenanceMutator: f.maintenance,
		SiteKeys:           f.maintenance,
		Locker:             lock.NewFileLocker(f.lockPath, time.Hour),
		Alerts:             f.alerts,
		Gateways:           []*gateway.Gateway{gateway.New(gateway.Config{Name: "monitoring", MinuteQuota: 90})},
	}, Config{ReportFormat: "json", AutoMergeTier: "MEDIUM"}, zap.NewNop())
	return f
}

func monitoringLayout() []entity.Entity {
	str := entity.StringKey("E3K2L", 1, "1", 1)
	return []entity.Entity{
		entity.New(entity.CategorySite, "E3K2L", entity.Fields{
			entity.FieldName:         "Reims Nord",
			entity.FieldNominalPower: 99.5,
		}),
		entity.New(entity.CategoryInverter, "Id1.1", entity.Fields{
			entity.FieldName:         "WR 1",
			entity.FieldBrand:        "SMA",
			entity.FieldSerialNumber: "SN1",
		}, entity.WithParent("E3K2L")),
		entity.New(entity.CategoryModule, entity.ModuleKey("E3K2L"), entity.Fields{
			entity.FieldName:  "JAM60",
			entity.FieldBrand: "JA Solar",
			entity.FieldModel: "JAM60",
			entity.FieldCount: 36,
		}, entity.WithParent("E3K2L")),
		entity.New(entity.CategoryString, str, entity.Fields{
			entity.FieldName:      str,
			entity.FieldCount:     18,
			entity.FieldMPPTIndex: "1",
		}, entity.WithParent("Id1.1")),
		entity.New(entity.CategorySite, "B7Q9P", entity.Fields{
			entity.FieldName: "Lyon Est",
		}),
	}
}

func maintenanceRecords() []entity.Entity {
	return []entity.Entity{
		entity.New(entity.CategorySite, "E3K2L", entity.Fields{
			entity.FieldName:     "Reims Nord",
			entity.FieldCode:     "C0042",
			entity.FieldClientID: 7,
		}, entity.WithID(entity.SystemMaintenance, "501")),
		entity.New(entity.CategorySIM, entity.SIMKey("E3K2L"), entity.Fields{
			entity.FieldSerialNumber: "8933",
			entity.FieldBrand:        "Orange",
		}, entity.WithParent("E3K2L"), entity.WithID(entity.SystemMaintenance, "900")),
		entity.New(entity.CategorySite, "ZZZZZ", entity.Fields{
			entity.FieldName: "Ghost",
		}, entity.WithID(entity.SystemMaintenance, "502")),
	}
}

// TestParsePhases tests phase list parsing and ordering.
func TestParsePhases(t *testing.T) {
	tests := []struct {
		in      string
		want    []Phase
		wantErr bool
	}{
		{in: "", want: AllPhases},
		{in: "all", want: AllPhases},
		{in: "2,1a", want: []Phase{PhaseMonitoring, PhasePush}},
		{in: "1B", want: []Phase{PhaseMaintenance}},
		{in: "store_to_maintenance", want: []Phase{PhasePush}},
		{in: "3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePhases(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestPlanMonitoring tests that sites survive and owned fields are not reset.
func TestPlanMonitoring(t *testing.T) {
	current, _ := reconcile.NewSnapshot([]entity.Entity{
		entity.New(entity.CategorySite, "E3K2L", entity.Fields{
			entity.FieldName: "Reims Nord", entity.FieldNominalPower: 99.5, entity.FieldCode: "C0042",
		}),
		entity.New(entity.CategorySite, "OLD01", entity.Fields{entity.FieldName: "Closed"}),
		entity.New(entity.CategoryInverter, "Id9.1", entity.Fields{entity.FieldName: "WR 9"}, entity.WithParent("E3K2L")),
	})
	target, _ := reconcile.NewSnapshot(monitoringLayout()[:4])

	patch := planMonitoring(current, target)

	assert.Empty(t, patch.Update)
	require.Len(t, patch.Delete, 1)
	assert.Equal(t, "Id9.1", patch.Delete[0].Key())
	assert.Len(t, patch.Add, 3)
}

// TestPlanMaintenance tests gap filling, SIM import and conflict detection.
func TestPlanMaintenance(t *testing.T) {
	current, _ := reconcile.NewSnapshot([]entity.Entity{
		entity.New(entity.CategorySite, "E3K2L", entity.Fields{entity.FieldName: "Reims Nord", entity.FieldClientID: 12}),
		entity.New(entity.CategoryInverter, "Id1.1", entity.Fields{entity.FieldName: "WR 1"}, entity.WithParent("E3K2L")),
	})
	target, _ := reconcile.NewSnapshot([]entity.Entity{
		entity.New(entity.CategorySite, "E3K2L", entity.Fields{
			entity.FieldName: "Reims Nord (Aldi)", entity.FieldCode: "C0042", entity.FieldClientID: 7,
		}),
		entity.New(entity.CategoryInverter, "Id1.1", entity.Fields{entity.FieldName: "Onduleur", entity.FieldSerialNumber: "SN1"},
			entity.WithParent("E3K2L")),
		entity.New(entity.CategoryInverter, "Id1.2", entity.Fields{entity.FieldName: "WR 2"}, entity.WithParent("E3K2L")),
		entity.New(entity.CategorySIM, entity.SIMKey("E3K2L"), entity.Fields{entity.FieldSerialNumber: "8933"}, entity.WithParent("E3K2L")),
		entity.New(entity.CategorySIM, entity.SIMKey("ZZZZZ"), entity.Fields{entity.FieldSerialNumber: "8934"}, entity.WithParent("ZZZZZ")),
		entity.New(entity.CategorySite, "ZZZZZ", entity.Fields{entity.FieldName: "Ghost"}, entity.WithID(entity.SystemMaintenance, "502")),
	})

	patch, conflicts := planMaintenance(current, target)

	require.Len(t, patch.Add, 1)
	assert.Equal(t, entity.SIMKey("E3K2L"), patch.Add[0].Key())

	require.Len(t, patch.Update, 2)
	byKey := map[string]reconcile.Change{}
	for _, c := range patch.Update {
		byKey[c.Key()] = c
	}
	assert.Equal(t, []string{entity.FieldCode}, byKey["E3K2L"].Fields)
	assert.Equal(t, []string{entity.FieldSerialNumber}, byKey["Id1.1"].Fields)
	assert.Empty(t, patch.Delete)

	kinds := map[string]string{}
	for _, c := range conflicts {
		kinds[c.Key] = c.Kind
	}
	assert.Equal(t, map[string]string{"E3K2L": ConflictClientMapping, "ZZZZZ": ConflictUnknownSite}, kinds)
}

// TestPushTarget tests site filtering, name cleaning and plant synthesis.
func TestPushTarget(t *testing.T) {
	snap, _ := reconcile.NewSnapshot([]entity.Entity{
		entity.New(entity.CategorySite, "E3K2L", entity.Fields{entity.FieldName: "12 Reims Nord (Aldi)"}),
		entity.New(entity.CategorySite, "B7Q9P", entity.Fields{entity.FieldName: "Lyon", entity.FieldIgnoreSite: true}),
		entity.New(entity.CategoryInverter, "Id7.1", entity.Fields{}, entity.WithParent("B7Q9P")),
		entity.New(entity.CategoryString, entity.StringKey("B7Q9P", 1, "1", 1), entity.Fields{}, entity.WithParent("Id7.1")),
		entity.New(entity.CategoryPlant, entity.PlantKey("E3K2L"), entity.Fields{entity.FieldName: "Existing"}, entity.WithParent("E3K2L")),
		entity.New(entity.CategorySite, "C1D2E", entity.Fields{entity.FieldName: "Metz"}),
	})

	got := pushTarget(snap, "Centrale")

	assert.ElementsMatch(t, []string{"E3K2L", "C1D2E", entity.PlantKey("E3K2L"), entity.PlantKey("C1D2E")}, got.Keys())
	assert.Equal(t, "Reims Nord", got["E3K2L"].Text(entity.FieldName))
	assert.Equal(t, "Existing", got[entity.PlantKey("E3K2L")].Text(entity.FieldName))
	plant := got[entity.PlantKey("C1D2E")]
	assert.Equal(t, "Centrale", plant.Text(entity.FieldName))
	assert.Equal(t, "C1D2E", plant.Parent())
}

// TestPlanPush tests that nothing is deleted and unmapped sites are held back.
func TestPlanPush(t *testing.T) {
	current, _ := reconcile.NewSnapshot([]entity.Entity{
		entity.New(entity.CategorySite, "E3K2L", entity.Fields{entity.FieldName: "Reims", entity.FieldCode: "C0042"}),
		entity.New(entity.CategorySIM, entity.SIMKey("E3K2L"), entity.Fields{entity.FieldSerialNumber: "1"}, entity.WithParent("E3K2L")),
		entity.New(entity.CategorySite, "ZZZZZ", entity.Fields{entity.FieldName: "Ghost"}),
	})
	target, _ := reconcile.NewSnapshot([]entity.Entity{
		entity.New(entity.CategorySite, "E3K2L", entity.Fields{entity.FieldName: "Reims Nord"}),
		entity.New(entity.CategorySIM, entity.SIMKey("E3K2L"), entity.Fields{entity.FieldSerialNumber: "2"}, entity.WithParent("E3K2L")),
		entity.New(entity.CategorySite, "B7Q9P", entity.Fields{entity.FieldName: "Lyon"}),
		entity.New(entity.CategoryPlant, entity.PlantKey("B7Q9P"), entity.Fields{entity.FieldName: "Centrale"}, entity.WithParent("B7Q9P")),
		entity.New(entity.CategorySite, "C1D2E", entity.Fields{entity.FieldName: "Metz", entity.FieldClientID: 7}),
	})

	patch, conflicts := planPush(current, target)

	assert.Empty(t, patch.Delete)
	require.Len(t, patch.Update, 1)
	assert.Equal(t, "E3K2L", patch.Update[0].Key())
	assert.Equal(t, []string{entity.FieldName}, patch.Update[0].Fields)
	require.Len(t, patch.Add, 1)
	assert.Equal(t, "C1D2E", patch.Add[0].Key())
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictUnmatchedSite, conflicts[0].Kind)
	assert.Equal(t, "B7Q9P", conflicts[0].Key)
}

// TestPlanPush_MaterialNamesAndParents tests that material names and parents
// are never proposed as updates while other material fields still are.
func TestPlanPush_MaterialNamesAndParents(t *testing.T) {
	str := entity.StringKey("E3K2L", 1, "1", 1)
	site := entity.New(entity.CategorySite, "E3K2L", entity.Fields{entity.FieldName: "Reims", entity.FieldClientID: 7})
	current, _ := reconcile.NewSnapshot([]entity.Entity{
		site,
		entity.New(entity.CategoryInverter, "Id1.1", entity.Fields{entity.FieldName: "WR 1", entity.FieldBrand: "SMA"}, entity.WithParent("E3K2L")),
		entity.New(entity.CategoryInverter, "Id1.2", entity.Fields{entity.FieldName: "WR 2", entity.FieldBrand: "SMA"}, entity.WithParent("E3K2L")),
		entity.New(entity.CategoryString, str, entity.Fields{entity.FieldName: "old", entity.FieldCount: 18}, entity.WithParent("Id1.1")),
	})
	target, _ := reconcile.NewSnapshot([]entity.Entity{
		site,
		entity.New(entity.CategoryInverter, "Id1.1", entity.Fields{entity.FieldName: "Onduleur 1", entity.FieldBrand: "SMA"}, entity.WithParent("E3K2L")),
		entity.New(entity.CategoryInverter, "Id1.2", entity.Fields{entity.FieldName: "WR 2", entity.FieldBrand: "Huawei"}, entity.WithParent("E3K2L")),
		entity.New(entity.CategoryString, str, entity.Fields{entity.FieldName: str, entity.FieldCount: 18}, entity.WithParent("Id1.2")),
		entity.New(entity.CategoryPlant, entity.PlantKey("E3K2L"), entity.Fields{entity.FieldName: "Centrale"}, entity.WithParent("E3K2L")),
	})

	patch, conflicts := planPush(current, target)

	assert.Empty(t, conflicts)
	require.Len(t, patch.Update, 1)
	assert.Equal(t, "Id1.2", patch.Update[0].Key())
	assert.Equal(t, []string{entity.FieldBrand}, patch.Update[0].Fields)
	require.Len(t, patch.Add, 1)
	assert.Equal(t, entity.PlantKey("E3K2L"), patch.Add[0].Key())
}

// TestService_Run tests a full confirmed run across the three systems.
func TestService_Run(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, monitoringLayout(), maintenanceRecords()...)

	rep, err := f.svc.Run(ctx, RunOptions{Confirmed: true})
	require.NoError(t, err)

	assert.False(t, rep.DryRun)
	assert.Equal(t, []string{string(PhaseMonitoring), string(PhaseMaintenance), string(PhasePush)}, rep.PhaseNames())
	for _, p := range rep.Phases {
		assert.True(t, p.Executed, p.Name)
		assert.Empty(t, p.Failures, p.Name)
		assert.Empty(t, p.Error, p.Name)
	}
	assert.Empty(t, rep.Drift)
	assert.Equal(t, 90, rep.Quota["monitoring_minute"])
	assert.Equal(t, 2, f.maintenance.fetches, "one snapshot shared by both phases plus verification")

	snap, _, err := reconcile.Load(ctx, f.store.Source(), zap.NewNop())
	require.NoError(t, err)
	site := snap["E3K2L"]
	assert.Equal(t, "C0042", site.Text(entity.FieldCode))
	assert.Equal(t, float64(7), site.Value(entity.FieldClientID))
	id, ok := site.ID(entity.SystemMaintenance)
	assert.True(t, ok)
	assert.Equal(t, "501", id)
	sim, ok := snap[entity.SIMKey("E3K2L")]
	require.True(t, ok)
	assert.Equal(t, "Orange", sim.Text(entity.FieldBrand))

	assert.Equal(t, []string{
		"create Id1.1",
		"create " + entity.ModuleKey("E3K2L"),
		"create " + entity.PlantKey("E3K2L"),
		"create " + entity.StringKey("E3K2L", 1, "1", 1),
		"update E3K2L",
	}, f.maintenance.calls)
	assert.Equal(t, 99.5, f.maintenance.records["E3K2L"].Value(entity.FieldNominalPower))
	_, pushed := f.maintenance.records["B7Q9P"]
	assert.False(t, pushed)

	conflicts, err := f.store.Conflicts(ctx, store.ConflictPending)
	require.NoError(t, err)
	assert.Len(t, conflicts, 2)
	require.Len(t, f.alerts.batches, 1)
	assert.Len(t, f.alerts.batches[0], 2)

	logs, err := f.store.SyncLogs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 3)

	_, err = f.svc.Run(ctx, RunOptions{Confirmed: true})
	require.NoError(t, err)
	assert.Len(t, f.alerts.batches, 1, "known conflicts are not alerted twice")
}

// TestService_RunDryRun tests that a dry run plans without writing.
func TestService_RunDryRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, monitoringLayout(), maintenanceRecords()...)

	rep, err := f.svc.Run(ctx, RunOptions{DryRun: true, Confirmed: true})
	require.NoError(t, err)

	assert.True(t, rep.DryRun)
	require.Len(t, rep.Phases, 3)
	for _, p := range rep.Phases {
		assert.False(t, p.Executed)
	}
	assert.Equal(t, 2, rep.Phases[0].Counts["site"].Planned)
	assert.NotEmpty(t, rep.Conflicts)

	snap, _, err := reconcile.Load(ctx, f.store.Source(), zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, snap)
	assert.Empty(t, f.maintenance.calls)
	conflicts, err := f.store.Conflicts(ctx, store.ConflictPending)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.Empty(t, f.alerts.batches)
}

// TestService_RunAbortsOnQuota tests that an exhausted quota stops the run.
func TestService_RunAbortsOnQuota(t *testing.T) {
	f := newFixture(t, nil)
	f.monitoring.err = fmt.Errorf("fetch systems: %w", gateway.ErrDailyQuotaExhausted)

	rep, err := f.svc.Run(context.Background(), RunOptions{Confirmed: true})

	assert.ErrorIs(t, err, gateway.ErrDailyQuotaExhausted)
	require.NotNil(t, rep)
	require.Len(t, rep.Phases, 1)
	assert.NotEmpty(t, rep.Phases[0].Error)
	assert.True(t, rep.Failed())
	assert.Zero(t, f.maintenance.fetches)
}

// TestService_RunLocked tests that concurrent runs are refused.
func TestService_RunLocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, monitoringLayout())
	unlock, err := lock.NewFileLocker(f.lockPath, time.Hour).Acquire(ctx)
	require.NoError(t, err)
	defer unlock(ctx)

	_, err = f.svc.Run(ctx, RunOptions{Confirmed: true})

	assert.True(t, errors.Is(err, lock.ErrLocked))
	assert.Zero(t, f.monitoring.fetches)
}

// TestService_Match tests that confident pairs are linked and the rest reported.
func TestService_Match(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	m := f.store.Mutator()
	for _, e := range []entity.Entity{
		entity.New(entity.CategorySite, "E3K2L", entity.Fields{
			entity.FieldName: "Reims Nord", entity.FieldLatitude: 49.25, entity.FieldLongitude: 4.03,
		}),
		entity.New(entity.CategorySite, "B7Q9P", entity.Fields{entity.FieldName: "Lyon Est"}),
	} {
		_, err := m.Create(ctx, reconcile.Mutation{Entity: e})
		require.NoError(t, err)
	}
	lat, lon := 49.2501, 4.0301
	f.maintenance.unkeyed = []resolver.Candidate{
		{Key: "601", Name: "12 Reims Nord (Aldi)", Lat: &lat, Lon: &lon},
		{Key: "602", Name: "Marseille"},
	}

	rep, err := f.svc.Match(ctx, MatchOptions{AutoMerge: true, Confirmed: true})
	require.NoError(t, err)

	require.Len(t, rep.Matches, 1)
	assert.True(t, rep.Matches[0].Merged)
	assert.Equal(t, "HIGH", rep.Matches[0].Confidence)
	assert.Len(t, rep.Unmatched, 2)
	assert.Equal(t, "E3K2L", f.maintenance.keys[601])

	id, ok, err := f.store.ExternalID(ctx, entity.SystemMaintenance, entity.CategorySite, "E3K2L")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "601", id)

	conflicts, err := f.store.Conflicts(ctx, store.ConflictPending)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "B7Q9P", conflicts[0].EntityKey)
}

// TestService_MatchWithoutConfirmation tests that unconfirmed matches only report.
func TestService_MatchWithoutConfirmation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.store.Mutator().Create(ctx, reconcile.Mutation{
		Entity: entity.New(entity.CategorySite, "E3K2L", entity.Fields{entity.FieldName: "Reims Nord"}),
	})
	require.NoError(t, err)
	f.maintenance.unkeyed = []resolver.Candidate{{Key: "601", Name: "Reims Nord"}}

	rep, err := f.svc.Match(ctx, MatchOptions{AutoMerge: true})
	require.NoError(t, err)

	require.Len(t, rep.Matches, 1)
	assert.False(t, rep.Matches[0].Merged)
	assert.Empty(t, f.maintenance.keys)
	_, ok, err := f.store.ExternalID(ctx, entity.SystemMaintenance, entity.CategorySite, "E3K2L")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestService_MatchInvalidTier tests that an unknown tier is rejected.
func TestService_MatchInvalidTier(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Match(context.Background(), MatchOptions{MinTier: "certain"})
	assert.Error(t, err)
}
