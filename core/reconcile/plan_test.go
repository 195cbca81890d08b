package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"site-sync/core/entity"
	"site-sync/core/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type call struct {
	op       string
	key      string
	id       string
	parentID string
	changed  entity.Fields
}

// fakeMutator records calls and assigns sequential ids.
type fakeMutator struct {
	calls  []call
	fail   map[string]error
	nextID int
}

func (m *fakeMutator) Create(ctx context.Context, mu Mutation) (string, error) {
	m.calls = append(m.calls, call{op: "create", key: mu.Entity.Key(), parentID: mu.ParentID})
	if err := m.fail[mu.Entity.Key()]; err != nil {
		return "", err
	}
	m.nextID++
	return fmt.Sprintf("id-%d", m.nextID), nil
}

func (m *fakeMutator) Update(ctx context.Context, mu Mutation) error {
	m.calls = append(m.calls, call{op: "update", key: mu.Entity.Key(), id: mu.ID, parentID: mu.ParentID, changed: mu.Changed})
	return m.fail[mu.Entity.Key()]
}

func (m *fakeMutator) SoftDelete(ctx context.Context, mu Mutation) error {
	m.calls = append(m.calls, call{op: "soft_delete", key: mu.Entity.Key(), id: mu.ID})
	return m.fail[mu.Entity.Key()]
}

type hardMutator struct{ fakeMutator }

func (m *hardMutator) Delete(ctx context.Context, mu Mutation) error {
	m.calls = append(m.calls, call{op: "delete", key: mu.Entity.Key(), id: mu.ID})
	return m.fail[mu.Entity.Key()]
}

type mockIdentityStore struct {
	mock.Mock
}

func (m *mockIdentityStore) ExternalID(ctx context.Context, sys entity.System, category entity.Category, key string) (string, bool, error) {
	args := m.Called(ctx, sys, category, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockIdentityStore) Link(ctx context.Context, sys entity.System, category entity.Category, key, id string) error {
	args := m.Called(ctx, sys, category, key, id)
	return args.Error(0)
}

var confirmed = ApplyOptions{Confirmed: true}

func inverter(key, parent string, opts ...entity.Option) entity.Entity {
	return entity.New(entity.CategoryInverter, key, entity.Fields{"serial_number": key}, append(opts, entity.WithParent(parent))...)
}

func pvString(key, parent string, opts ...entity.Option) entity.Entity {
	return entity.New(entity.CategoryString, key, entity.Fields{"name": key}, append(opts, entity.WithParent(parent))...)
}

// TestApply_ParentCreatedFirst tests that a new parent listed after its new
// child is still created first and its id flows to the child.
func TestApply_ParentCreatedFirst(t *testing.T) {
	m := &fakeMutator{}
	a := NewApplier(entity.SystemMaintenance, m)

	patch := PatchSet{Add: []entity.Entity{
		pvString("STRING-WR1-MPPT-1.1", "INV-1"),
		inverter("INV-1", "S1"),
		site("S1", entity.Fields{"name": "Reims"}),
	}}

	res, err := a.Apply(context.Background(), patch, confirmed)
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.Empty(t, res.Failures())

	require.Len(t, m.calls, 3)
	assert.Equal(t, "S1", m.calls[0].key)
	assert.Equal(t, "", m.calls[0].parentID)
	assert.Equal(t, "INV-1", m.calls[1].key)
	assert.Equal(t, "id-1", m.calls[1].parentID)
	assert.Equal(t, "STRING-WR1-MPPT-1.1", m.calls[2].key)
	assert.Equal(t, "id-2", m.calls[2].parentID)

	total := res.Summary.Total()
	assert.Equal(t, 3, total.Created)
}

// TestApply_OrderAcrossOperations tests creates, then updates, then deletes
// from the leaves up.
func TestApply_OrderAcrossOperations(t *testing.T) {
	m := &hardMutator{}
	a := NewApplier(entity.SystemMaintenance, m)

	oldSite := site("S1", entity.Fields{"name": "old"}, entity.WithID(entity.SystemMaintenance, "100"))
	oldInv := inverter("INV-1", "S1", entity.WithID(entity.SystemMaintenance, "200"))
	patch := PatchSet{
		Add: []entity.Entity{site("S2", nil)},
		Update: []Change{
			{Old: oldInv, New: oldInv.With("brand", "SMA"), Fields: []string{"brand"}},
			{Old: oldSite, New: oldSite.With("name", "new"), Fields: []string{"name"}},
		},
		Delete: []entity.Entity{
			inverter("INV-9", "S1", entity.WithID(entity.SystemMaintenance, "209")),
			pvString("STRING-9", "INV-9", entity.WithID(entity.SystemMaintenance, "309")),
		},
	}

	res, err := a.Apply(context.Background(), patch, confirmed)
	require.NoError(t, err)

	var order []string
	for _, c := range m.calls {
		order = append(order, c.op+":"+c.key)
	}
	assert.Equal(t, []string{
		"create:S2",
		"update:S1",
		"update:INV-1",
		"delete:STRING-9",
		"soft_delete:INV-9",
	}, order)

	assert.Equal(t, "100", m.calls[1].id)
	assert.Equal(t, entity.Fields{"name": "new"}, m.calls[1].changed)

	inv := res.Summary.Categories[entity.CategoryInverter]
	require.NotNil(t, inv)
	assert.Equal(t, 1, inv.Updated)
	assert.Equal(t, 1, inv.Obsoleted)
	assert.Equal(t, 1, res.Summary.Categories[entity.CategoryString].Deleted)
}

// TestApply_ParentFromExistingAndIdentityStore tests the parent lookup chain.
func TestApply_ParentFromExistingAndIdentityStore(t *testing.T) {
	ids := new(mockIdentityStore)
	ids.On("ExternalID", mock.Anything, entity.SystemMaintenance, entity.CategorySite, "S9").Return("909", true, nil)
	ids.On("Link", mock.Anything, entity.SystemMaintenance, entity.CategoryInverter, mock.Anything, mock.Anything).Return(nil)

	m := &fakeMutator{}
	a := NewApplier(entity.SystemMaintenance, m, WithIdentityStore(ids))

	existing := snapshot(site("S1", nil, entity.WithID(entity.SystemMaintenance, "101")))
	patch := PatchSet{Add: []entity.Entity{
		inverter("INV-1", "S1"),
		inverter("INV-2", "S9"),
	}}

	res, err := a.Apply(context.Background(), patch, ApplyOptions{Confirmed: true, Existing: existing})
	require.NoError(t, err)
	assert.Empty(t, res.Failures())

	assert.Equal(t, "101", m.calls[0].parentID)
	assert.Equal(t, "909", m.calls[1].parentID)
	ids.AssertCalled(t, "Link", mock.Anything, entity.SystemMaintenance, entity.CategoryInverter, "INV-1", "id-1")
	ids.AssertCalled(t, "Link", mock.Anything, entity.SystemMaintenance, entity.CategoryInverter, "INV-2", "id-2")
}

// TestApply_MissingParent tests that an unresolved parent fails only that record.
func TestApply_MissingParent(t *testing.T) {
	m := &fakeMutator{}
	a := NewApplier(entity.SystemMaintenance, m)

	patch := PatchSet{Add: []entity.Entity{
		inverter("INV-1", "S404"),
		site("S1", nil),
	}}

	res, err := a.Apply(context.Background(), patch, confirmed)
	require.NoError(t, err)

	failures := res.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "INV-1", failures[0].Key)
	assert.Equal(t, StateFailedPermanent, failures[0].State)

	var rie *ReferentialIntegrityError
	require.True(t, errors.As(failures[0].Err, &rie))
	assert.Equal(t, "S404", rie.ParentKey)
	assert.ErrorIs(t, failures[0].Err, ErrReferentialIntegrity)

	require.Len(t, m.calls, 1)
	assert.Equal(t, "S1", m.calls[0].key)
}

// TestApply_FailureIsolation tests that failures are classified and the batch continues.
func TestApply_FailureIsolation(t *testing.T) {
	m := &fakeMutator{fail: map[string]error{
		"S1": &gateway.HTTPError{StatusCode: 422},
		"S2": &gateway.TransientNetworkError{Attempts: 5, Err: errors.New("reset")},
	}}
	a := NewApplier(entity.SystemMaintenance, m)

	patch := PatchSet{Add: []entity.Entity{site("S1", nil), site("S2", nil), site("S3", nil)}}
	res, err := a.Apply(context.Background(), patch, confirmed)
	require.NoError(t, err)

	require.Len(t, res.Records, 3)
	assert.Equal(t, StateFailedPermanent, res.Records[0].State)
	assert.Equal(t, StateFailedRetryable, res.Records[1].State)
	assert.Equal(t, StateSucceeded, res.Records[2].State)

	total := res.Summary.Total()
	assert.Equal(t, 2, total.Failed)
	assert.Equal(t, 1, total.Created)
}

// TestApply_DailyQuotaAborts tests that an exhausted daily quota stops the run.
func TestApply_DailyQuotaAborts(t *testing.T) {
	m := &fakeMutator{fail: map[string]error{"S1": fmt.Errorf("maintenance: %w", gateway.ErrDailyQuotaExhausted)}}
	a := NewApplier(entity.SystemMaintenance, m)

	patch := PatchSet{Add: []entity.Entity{site("S1", nil), site("S2", nil)}}
	res, err := a.Apply(context.Background(), patch, confirmed)
	assert.ErrorIs(t, err, gateway.ErrDailyQuotaExhausted)
	require.Len(t, res.Records, 1)
	assert.Len(t, m.calls, 1)
}

// cancellingMutator cancels the run while creating its first record.
type cancellingMutator struct {
	fakeMutator
	cancel  context.CancelFunc
	callErr error
}

func (m *cancellingMutator) Create(ctx context.Context, mu Mutation) (string, error) {
	m.cancel()
	m.callErr = ctx.Err()
	return m.fakeMutator.Create(ctx, mu)
}

// TestApply_CancelFinishesCurrentRecord tests that cancellation lets the
// record in flight complete and stops before the next one.
func TestApply_CancelFinishesCurrentRecord(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := &cancellingMutator{cancel: cancel}
	a := NewApplier(entity.SystemMaintenance, m)

	patch := PatchSet{Add: []entity.Entity{site("S1", nil), site("S2", nil)}}
	res, err := a.Apply(ctx, patch, confirmed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, m.callErr)
	require.Len(t, res.Records, 1)
	assert.Equal(t, StateSucceeded, res.Records[0].State)
	assert.Len(t, m.calls, 1)
}

// TestApply_NotConfirmed tests that nothing executes without confirmation.
func TestApply_NotConfirmed(t *testing.T) {
	patch := PatchSet{
		Add:    []entity.Entity{site("S1", nil)},
		Delete: []entity.Entity{inverter("INV-1", "S1")},
	}

	for name, opts := range map[string]ApplyOptions{
		"unconfirmed": {},
		"dry run":     {Confirmed: true, DryRun: true},
	} {
		t.Run(name, func(t *testing.T) {
			m := &fakeMutator{}
			res, err := NewApplier(entity.SystemStore, m).Apply(context.Background(), patch, opts)
			require.NoError(t, err)
			assert.False(t, res.Executed)
			assert.Empty(t, m.calls)
			require.Len(t, res.Records, 2)
			assert.Equal(t, StatePending, res.Records[0].State)
			assert.Equal(t, 2, res.Summary.Total().Planned)
		})
	}
}

// TestApply_SkipsByPolicy tests non-updatable categories and never-delete categories.
func TestApply_SkipsByPolicy(t *testing.T) {
	m := &fakeMutator{}
	a := NewApplier(entity.SystemMaintenance, m)

	sim := entity.New(entity.CategorySIM, "SIM1", entity.Fields{"brand": "Orange"}, entity.WithParent("S1"), entity.WithID(entity.SystemMaintenance, "7"))
	patch := PatchSet{
		Update: []Change{{Old: sim, New: sim.With("brand", "Matooma"), Fields: []string{"brand"}}},
		Delete: []entity.Entity{site("S1", nil, entity.WithID(entity.SystemMaintenance, "1"))},
	}

	res, err := a.Apply(context.Background(), patch, ApplyOptions{Confirmed: true, RespectUpdatable: true})
	require.NoError(t, err)
	assert.Empty(t, m.calls)
	require.Len(t, res.Records, 2)
	assert.Equal(t, StateSkipped, res.Records[0].State)
	assert.Equal(t, StateSkipped, res.Records[1].State)
}

// TestApply_UpdateWithoutID tests that updates need the target id.
func TestApply_UpdateWithoutID(t *testing.T) {
	m := &fakeMutator{}
	a := NewApplier(entity.SystemMaintenance, m)

	s := site("S1", entity.Fields{"name": "old"})
	patch := PatchSet{Update: []Change{{Old: s, New: s.With("name", "new"), Fields: []string{"name"}}}}

	res, err := a.Apply(context.Background(), patch, confirmed)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.ErrorIs(t, res.Records[0].Err, ErrValidation)
	assert.Empty(t, m.calls)
}

// TestApply_ReparentResolvesNewParent tests that a parent change carries the new parent id.
func TestApply_ReparentResolvesNewParent(t *testing.T) {
	m := &fakeMutator{}
	a := NewApplier(entity.SystemMaintenance, m)

	old := pvString("STR-1", "INV-1", entity.WithID(entity.SystemMaintenance, "55"))
	patch := PatchSet{
		Add:    []entity.Entity{inverter("INV-2", "S1")},
		Update: []Change{{Old: old, New: old.WithParentKey("INV-2"), Fields: []string{entity.FieldParent}}},
	}
	existing := snapshot(site("S1", nil, entity.WithID(entity.SystemMaintenance, "9")))

	res, err := a.Apply(context.Background(), patch, ApplyOptions{Confirmed: true, Existing: existing})
	require.NoError(t, err)
	assert.Empty(t, res.Failures())
	require.Len(t, m.calls, 2)
	assert.Equal(t, "update", m.calls[1].op)
	assert.Equal(t, "id-1", m.calls[1].parentID)
	assert.Equal(t, "55", m.calls[1].id)
}

// TestApply_Converges tests that diff, apply and re-diff against the applied
// state yields an empty patch.
func TestApply_Converges(t *testing.T) {
	store := newMemoryTarget(snapshot(site("S1", entity.Fields{"name": "Reims", "power": nil})))
	current := store.snapshot()
	target := snapshot(
		site("S1", entity.Fields{"name": "Reims", "power": 120}),
		inverter("INV-1", "S1"),
	)

	patch := DiffFull(current, target, DiffOptions{})
	_, err := NewApplier(entity.SystemStore, store).Apply(context.Background(), patch, ApplyOptions{Confirmed: true, Existing: current})
	require.NoError(t, err)

	again := DiffFull(store.snapshot(), target, DiffOptions{})
	assert.True(t, again.IsEmpty())
}

// memoryTarget is a Mutator over an in-memory snapshot.
type memoryTarget struct {
	rows   map[string]entity.Entity
	nextID int
}

func newMemoryTarget(initial Snapshot) *memoryTarget {
	m := &memoryTarget{rows: map[string]entity.Entity{}}
	for k, e := range initial {
		m.nextID++
		m.rows[k] = e.WithExternalID(entity.SystemStore, fmt.Sprint(m.nextID))
	}
	return m
}

func (m *memoryTarget) Create(ctx context.Context, mu Mutation) (string, error) {
	m.nextID++
	id := fmt.Sprint(m.nextID)
	m.rows[mu.Entity.Key()] = mu.Entity.WithExternalID(entity.SystemStore, id)
	return id, nil
}

func (m *memoryTarget) Update(ctx context.Context, mu Mutation) error {
	for k, e := range m.rows {
		if id, _ := e.ID(entity.SystemStore); id == mu.ID {
			m.rows[k] = e.WithFields(mu.Changed).WithParentKey(mu.Entity.Parent())
			return nil
		}
	}
	return fmt.Errorf("row %s not found", mu.ID)
}

func (m *memoryTarget) SoftDelete(ctx context.Context, mu Mutation) error {
	delete(m.rows, mu.Entity.Key())
	return nil
}

func (m *memoryTarget) snapshot() Snapshot {
	out := Snapshot{}
	for k, e := range m.rows {
		out[k] = e
	}
	return out
}
