package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"site-sync/core/entity"
	"site-sync/core/reconcile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakePlatform serves sites and materials from memory with two-item pages.
type fakePlatform struct {
	mu        sync.Mutex
	sites     []map[string]any
	materials []map[string]any
	nextID    int
	requests  []string
	bodies    []map[string]any
}

func (f *fakePlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if body != nil {
		f.bodies = append(f.bodies, body)
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	collection := &f.sites
	if parts[0] == "materials" {
		collection = &f.materials
	}

	switch {
	case r.Method == http.MethodGet && len(parts) == 1:
		items := *collection
		if cat := r.URL.Query().Get("category_id"); cat != "" {
			var kept []map[string]any
			for _, it := range items {
				if strconv.Itoa(int(it["category_id"].(float64))) == cat {
					kept = append(kept, it)
				}
			}
			items = kept
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		per := 2
		total := (len(items) + per - 1) / per
		start := (page - 1) * per
		end := start + per
		if start > len(items) {
			start = len(items)
		}
		if end > len(items) {
			end = len(items)
		}
		writeJSON(w, map[string]any{"items": items[start:end], "total_pages": total})

	case r.Method == http.MethodGet:
		id, _ := strconv.Atoi(parts[1])
		for _, it := range *collection {
			if int(it["id"].(float64)) == id {
				writeJSON(w, it)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)

	case r.Method == http.MethodPost:
		f.nextID++
		body["id"] = float64(f.nextID)
		*collection = append(*collection, body)
		writeJSON(w, body)

	case r.Method == http.MethodPatch:
		id, _ := strconv.Atoi(parts[1])
		for _, it := range *collection {
			if int(it["id"].(float64)) == id {
				applyPatch(it, body)
			}
		}
		writeJSON(w, map[string]any{})
	}
}

// applyPatch sets plain keys and merges custom fields by name.
func applyPatch(item, body map[string]any) {
	for k, v := range body {
		if k != "fields" {
			item[k] = v
			continue
		}
		embed, _ := item["_embed"].(map[string]any)
		if embed == nil {
			embed = map[string]any{}
			item["_embed"] = embed
		}
		existing, _ := embed["fields"].([]any)
		for _, nf := range v.([]any) {
			name := nf.(map[string]any)["name"]
			replaced := false
			for i, ef := range existing {
				if ef.(map[string]any)["name"] == name {
					existing[i] = nf
					replaced = true
				}
			}
			if !replaced {
				existing = append(existing, nf)
			}
		}
		embed["fields"] = existing
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func field(name string, value any) map[string]any {
	return map[string]any{"name": name, "value": value}
}

func seedPlatform() *fakePlatform {
	return &fakePlatform{
		nextID: 1000,
		sites: []map[string]any{
			{"id": float64(501), "client_id": float64(12), "name": "Reims Nord", "code": "C0042", "address": "1 rue de la Gare",
				"latitude": "49.26", "longitude": 4.03,
				"_embed": map[string]any{"fields": []any{
					field(FieldSystemKey, "E3K2L"),
					field(FieldNominalPower, "99,5"),
					field(FieldCommission, "5/6/2021"),
					field(FieldAldiID, "A-9"),
				}}},
			{"id": float64(502), "name": "Linked by store", "_embed": map[string]any{}},
			{"id": float64(503), "name": "Orphan", "code": "C0099", "_embed": map[string]any{}},
		},
		materials: []map[string]any{
			{"id": float64(11), "site_id": float64(501), "category_id": float64(11102), "name": "WR 1", "brand": "SMA", "serial_number": "ab 12",
				"_embed": map[string]any{"fields": []any{field(FieldInverterID, "Id1234.1"), field(FieldModel, "STP 25000")}}},
			{"id": float64(12), "site_id": float64(501), "category_id": float64(12404), "name": "STRING-E3K2L-WR1-MPPT-1.1",
				"serial_number": "STRING-E3K2L-WR1-MPPT-1.1", "parent_id": float64(11),
				"_embed": map[string]any{"fields": []any{field(FieldMPPTIndex, "1"), field(FieldModuleCount, "18"), field(FieldModuleBrand, "Trina")}}},
			{"id": float64(13), "site_id": float64(501), "category_id": float64(11382), "name": "SIM", "serial_number": "8933"},
			{"id": float64(14), "site_id": float64(501), "category_id": float64(11382), "name": "SIM 2", "serial_number": "8934"},
			{"id": float64(15), "site_id": float64(501), "category_id": float64(11441), "name": "Centrale"},
			{"id": float64(16), "site_id": float64(503), "category_id": float64(11441), "name": "Centrale"},
			{"id": float64(17), "site_id": float64(501), "category_id": float64(99999), "name": "Fence"},
		},
	}
}

type staticLinks map[string]string

func (l staticLinks) SiteKeys(context.Context) (map[string]string, error) { return l, nil }

func newTestClient(url string) *Client {
	return NewClient(Config{BaseURL: url, Token: "token", MaxAttempts: 1}, zap.NewNop())
}

// TestSource_FetchAll tests keying, custom fields and pagination.
func TestSource_FetchAll(t *testing.T) {
	fake := seedPlatform()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	src := NewSource(newTestClient(srv.URL), staticLinks{"502": "B7Q9P"}, zap.NewNop())
	snap, dropped, err := reconcile.Load(context.Background(), src, nil)
	require.NoError(t, err)
	assert.Empty(t, dropped)

	site := snap["E3K2L"]
	assert.Equal(t, "Reims Nord", site.Text(entity.FieldName))
	assert.Equal(t, 99.5, site.Value(entity.FieldNominalPower))
	assert.Equal(t, 49.26, site.Value(entity.FieldLatitude))
	assert.Equal(t, "2021-06-05", site.Text(entity.FieldCommissionDate))
	assert.Equal(t, "A-9", site.Text(entity.FieldAldiID))
	assert.Equal(t, "C0042", site.Text(entity.FieldCode))
	assert.Equal(t, float64(12), site.Value(entity.FieldClientID))
	id, _ := site.ID(entity.SystemMaintenance)
	assert.Equal(t, "501", id)

	assert.Equal(t, "Linked by store", snap["B7Q9P"].Text(entity.FieldName))

	inv := snap["Id1234.1"]
	assert.Equal(t, entity.CategoryInverter, inv.Category())
	assert.Equal(t, "AB12", inv.Text(entity.FieldSerialNumber))
	assert.Equal(t, "STP 25000", inv.Text(entity.FieldModel))

	str := snap["STRING-E3K2L-WR1-MPPT-1.1"]
	assert.Equal(t, "Id1234.1", str.Parent())
	assert.Equal(t, float64(18), str.Value(entity.FieldCount))
	assert.Equal(t, "Trina", str.Text(entity.FieldBrand))
	assert.Equal(t, "1", str.Text(entity.FieldMPPTIndex))

	assert.Equal(t, "8933", snap["SIM-E3K2L"].Text(entity.FieldSerialNumber))
	assert.Equal(t, "8934", snap["SIM-E3K2L-14"].Text(entity.FieldSerialNumber))
	assert.Equal(t, "E3K2L", snap["PLANT-E3K2L"].Parent())

	_, ok := snap["Fence"]
	assert.False(t, ok)

	unkeyed := src.Unkeyed()
	require.Len(t, unkeyed, 1)
	assert.Equal(t, "503", unkeyed[0].Key)
	assert.Equal(t, "C0099", unkeyed[0].Code)
}

// TestMutator_Create tests site and material creation payloads.
func TestMutator_Create(t *testing.T) {
	fake := seedPlatform()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	m := NewMutator(newTestClient(srv.URL), zap.NewNop())
	ctx := context.Background()

	site := entity.New(entity.CategorySite, "Z9Z9Z", entity.Fields{
		entity.FieldName:         "12 Epernay (ALDI) France",
		entity.FieldNominalPower: 36.0,
		entity.FieldClientID:     12,
	})
	siteID, err := m.Create(ctx, reconcile.Mutation{Entity: site})
	require.NoError(t, err)
	assert.Equal(t, "1001", siteID)
	assert.Equal(t, "Epernay", fake.bodies[0]["name"])
	assert.Equal(t, float64(12), fake.bodies[0]["client_id"])

	inv := entity.New(entity.CategoryInverter, "Id9.1", entity.Fields{entity.FieldName: "WR 1", entity.FieldModel: "SUN2000"}, entity.WithParent("Z9Z9Z"))
	invID, err := m.Create(ctx, reconcile.Mutation{Entity: inv, ParentID: siteID})
	require.NoError(t, err)
	assert.Equal(t, "1002", invID)

	str := entity.New(entity.CategoryString, "STRING-Z9Z9Z-WR1-MPPT-2.1", entity.Fields{
		entity.FieldCount: 20, entity.FieldBrand: "Trina",
	}, entity.WithParent("Id9.1"))
	strID, err := m.Create(ctx, reconcile.Mutation{Entity: str, ParentID: invID})
	require.NoError(t, err)
	assert.Equal(t, "1003", strID)

	created := fake.materials[len(fake.materials)-1]
	assert.Equal(t, float64(1001), created["site_id"])
	assert.Equal(t, float64(1002), created["parent_id"])
	assert.Equal(t, "STRING-Z9Z9Z-WR1-MPPT-2.1", created["serial_number"])

	assert.Equal(t, []string{
		"POST /sites",
		"POST /materials",
		"PATCH /materials/1002",
		"POST /materials",
		"PATCH /materials/1003",
	}, fake.requests)

	_, err = m.Create(ctx, reconcile.Mutation{Entity: entity.New(entity.CategorySite, "NOCLIENT", nil)})
	assert.ErrorIs(t, err, reconcile.ErrValidation)
}

// TestMutator_CreateStringLooksUpSite tests that an unknown parent is read once.
func TestMutator_CreateStringLooksUpSite(t *testing.T) {
	fake := seedPlatform()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	m := NewMutator(newTestClient(srv.URL), zap.NewNop())

	for _, key := range []string{"STRING-E3K2L-WR1-MPPT-1.2", "STRING-E3K2L-WR1-MPPT-1.3"} {
		_, err := m.Create(context.Background(), reconcile.Mutation{
			Entity:   entity.New(entity.CategoryString, key, nil, entity.WithParent("Id1234.1")),
			ParentID: "11",
		})
		require.NoError(t, err)
	}

	var lookups int
	for _, r := range fake.requests {
		if r == "GET /materials/11" {
			lookups++
		}
	}
	assert.Equal(t, 1, lookups)
	assert.Equal(t, float64(501), fake.materials[len(fake.materials)-1]["site_id"])
}

// TestMutator_Update tests the patch bodies per category.
func TestMutator_Update(t *testing.T) {
	tests := []struct {
		name    string
		mut     reconcile.Mutation
		want    map[string]any
		request string
	}{
		{
			name: "site name is cleaned and power goes to a custom field",
			mut: reconcile.Mutation{
				Entity:  entity.New(entity.CategorySite, "E3K2L", nil),
				ID:      "501",
				Changed: entity.Fields{entity.FieldName: "1 Reims (Nord)", entity.FieldNominalPower: 100.0, entity.FieldCode: "X"},
			},
			want: map[string]any{
				"name":   "Reims",
				"fields": []any{map[string]any{"blueprint_id": float64(13585), "name": FieldNominalPower, "value": float64(100)}},
			},
			request: "PATCH /sites/501",
		},
		{
			name: "string count without its parent",
			mut: reconcile.Mutation{
				Entity:   entity.New(entity.CategoryString, "STRING-E3K2L-WR1-MPPT-1.1", entity.Fields{entity.FieldCount: 19}, entity.WithParent("Id1234.2")),
				ID:       "12",
				ParentID: "18",
				Changed:  entity.Fields{entity.FieldCount: 19},
			},
			want: map[string]any{
				"fields": []any{map[string]any{"blueprint_id": float64(16021), "name": FieldModuleCount, "value": "19"}},
			},
			request: "PATCH /materials/12",
		},
		{
			name: "inverter brand",
			mut: reconcile.Mutation{
				Entity:  entity.New(entity.CategoryInverter, "Id1234.1", entity.Fields{entity.FieldBrand: "Huawei"}),
				ID:      "11",
				Changed: entity.Fields{entity.FieldBrand: "Huawei"},
			},
			want:    map[string]any{"brand": "Huawei"},
			request: "PATCH /materials/11",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := seedPlatform()
			srv := httptest.NewServer(fake)
			defer srv.Close()

			err := NewMutator(newTestClient(srv.URL), zap.NewNop()).Update(context.Background(), tt.mut)
			require.NoError(t, err)
			require.Len(t, fake.requests, 1)
			assert.Equal(t, tt.request, fake.requests[0])
			assert.Equal(t, tt.want, fake.bodies[0])
		})
	}
}

// TestMutator_ModuleRoundTrip tests that a module written to the platform
// reads back equal, count included.
func TestMutator_ModuleRoundTrip(t *testing.T) {
	fake := seedPlatform()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	client := newTestClient(srv.URL)
	m := NewMutator(client, zap.NewNop())
	ctx := context.Background()

	key := entity.ModuleKey("E3K2L")
	module := entity.New(entity.CategoryModule, key, entity.Fields{
		entity.FieldBrand: "Trina",
		entity.FieldModel: "TSM-400",
		entity.FieldCount: 36,
	}, entity.WithParent("E3K2L"))

	readBack := func(id string) entity.Entity {
		n, err := strconv.Atoi(id)
		require.NoError(t, err)
		mat, err := client.Material(ctx, n)
		require.NoError(t, err)
		return materialEntity(entity.CategoryModule, key, "E3K2L", mat)
	}

	id, err := m.Create(ctx, reconcile.Mutation{Entity: module, ParentID: "501"})
	require.NoError(t, err)
	assert.Empty(t, entity.Diff(readBack(id), module))

	updated := module.With(entity.FieldCount, 24)
	err = m.Update(ctx, reconcile.Mutation{Entity: updated, ID: id, Changed: entity.Fields{entity.FieldCount: 24}})
	require.NoError(t, err)
	got := readBack(id)
	assert.Empty(t, entity.Diff(got, updated))
	assert.Equal(t, "24", got.Text(entity.FieldCount))
}

// TestMutator_UpdateNothingWritable tests that an update without a stored
// field fails validation and sends nothing.
func TestMutator_UpdateNothingWritable(t *testing.T) {
	tests := []struct {
		name string
		mut  reconcile.Mutation
	}{
		{
			name: "site code only",
			mut: reconcile.Mutation{
				Entity:  entity.New(entity.CategorySite, "E3K2L", nil),
				ID:      "501",
				Changed: entity.Fields{entity.FieldCode: "X"},
			},
		},
		{
			name: "inverter nominal power only",
			mut: reconcile.Mutation{
				Entity:  entity.New(entity.CategoryInverter, "Id1234.1", nil),
				ID:      "11",
				Changed: entity.Fields{entity.FieldNominalPower: 5.0},
			},
		},
		{
			name: "empty change",
			mut: reconcile.Mutation{
				Entity: entity.New(entity.CategoryModule, entity.ModuleKey("E3K2L"), nil),
				ID:     "20",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := seedPlatform()
			srv := httptest.NewServer(fake)
			defer srv.Close()

			err := NewMutator(newTestClient(srv.URL), zap.NewNop()).Update(context.Background(), tt.mut)
			assert.ErrorIs(t, err, reconcile.ErrValidation)
			assert.Empty(t, fake.requests)
		})
	}
}

// TestMutator_SoftDelete tests that deletes are refused.
func TestMutator_SoftDelete(t *testing.T) {
	m := NewMutator(nil, zap.NewNop())
	err := m.SoftDelete(context.Background(), reconcile.Mutation{Entity: entity.New(entity.CategoryInverter, "Id1234.1", nil), ID: "11"})
	assert.ErrorIs(t, err, reconcile.ErrValidation)
}

// TestSetSiteKey tests the custom field patch written after a merge.
func TestSetSiteKey(t *testing.T) {
	fake := seedPlatform()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	require.NoError(t, newTestClient(srv.URL).SetSiteKey(context.Background(), 503, "Q1W2E"))
	assert.Equal(t, []string{"PATCH /sites/503"}, fake.requests)
	assert.Equal(t, map[string]any{
		"fields": []any{map[string]any{"blueprint_id": float64(13583), "name": FieldSystemKey, "value": "Q1W2E"}},
	}, fake.bodies[0])
}

// TestParseCommissionDate tests date conversion.
func TestParseCommissionDate(t *testing.T) {
	tests := map[string]string{
		"05/06/2021": "2021-06-05",
		"5/6/2021":   "2021-06-05",
		"2021-06-05": "2021-06-05",
		"  ":         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseCommissionDate(in), in)
	}
}

// TestConfig_PerPage tests page size bounds.
func TestConfig_PerPage(t *testing.T) {
	assert.Equal(t, 100, Config{}.perPage())
	assert.Equal(t, 200, Config{PerPage: 500}.perPage())
	assert.Equal(t, 50, Config{PerPage: 50}.perPage())
	assert.Equal(t, "Bearer abc", Config{Token: "abc"}.Gateway().Headers["Authorization"])
}
