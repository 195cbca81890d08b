package monitoring

import (
	"context"
	"sort"
	"strconv"

	"site-sync/core/entity"
	"site-sync/core/reconcile"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source reads the monitoring platform as a snapshot of sites, inverters,
// modules and strings.
type Source struct {
	client *Client
	logger *zap.Logger
	only   map[string]struct{}
}

var _ reconcile.SnapshotSource = (*Source)(nil)

// NewSource creates a source. When keys is non-empty only those systems are read.
func NewSource(client *Client, logger *zap.Logger, keys ...string) *Source {
	s := &Source{client: client, logger: logger}
	if len(keys) > 0 {
		s.only = make(map[string]struct{}, len(keys))
		for _, k := range keys {
			s.only[k] = struct{}{}
		}
	}
	return s
}

// Name implements reconcile.SnapshotSource.
func (s *Source) Name() string { return "monitoring" }

// FetchAll implements reconcile.SnapshotSource. Systems are read one at a
// time in platform order and the first failure stops the fetch.
func (s *Source) FetchAll(ctx context.Context) ([]entity.Entity, error) {
	systems, err := s.client.Systems(ctx)
	if err != nil {
		return nil, err
	}
	if s.only != nil {
		kept := systems[:0]
		for _, sys := range systems {
			if _, ok := s.only[sys.Key]; ok {
				kept = append(kept, sys)
			}
		}
		systems = kept
	}

	results := make([][]entity.Entity, len(systems))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(1)
	for i, sys := range systems {
		g.Go(func() error {
			out, err := s.fetchSystem(gctx, sys)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []entity.Entity
	for _, r := range results {
		all = append(all, r...)
	}
	s.logger.Info("Monitoring snapshot fetched", zap.Int("systems", len(systems)), zap.Int("entities", len(all)))
	return all, nil
}

func (s *Source) fetchSystem(ctx context.Context, sys System) ([]entity.Entity, error) {
	details, err := s.client.SystemDetails(ctx, sys.Key)
	if err != nil {
		return nil, err
	}
	tech, err := s.client.TechnicalData(ctx, sys.Key)
	if err != nil {
		return nil, err
	}
	inverters, err := s.client.Inverters(ctx, sys.Key)
	if err != nil {
		return nil, err
	}

	out := []entity.Entity{siteEntity(sys, details, tech)}
	if len(tech.Panels) > 0 {
		p := tech.Panels[0]
		name := p.Model
		if name == "" {
			name = "Modules"
		}
		out = append(out, entity.New(entity.CategoryModule, entity.ModuleKey(sys.Key), entity.Fields{
			entity.FieldName:  name,
			entity.FieldBrand: p.Vendor,
			entity.FieldModel: p.Model,
			entity.FieldCount: p.Count,
		}, entity.WithParent(sys.Key), entity.WithID(entity.SystemMonitoring, entity.ModuleKey(sys.Key))))
	}

	for _, inv := range inverters {
		d, err := s.client.InverterDetails(ctx, sys.Key, inv.ID)
		if err != nil {
			return nil, err
		}
		name := inv.Name
		if name == "" {
			name = inv.ID
		}
		out = append(out, entity.New(entity.CategoryInverter, inv.ID, entity.Fields{
			entity.FieldName:         name,
			entity.FieldBrand:        d.Vendor,
			entity.FieldModel:        d.Model,
			entity.FieldSerialNumber: entity.NormalizeSerial(inv.Serial),
		}, entity.WithParent(sys.Key), entity.WithID(entity.SystemMonitoring, inv.ID)))
	}

	out = append(out, stringEntities(sys.Key, tech.SystemConfigurations, inverters, s.logger)...)
	return out, nil
}

func siteEntity(sys System, d SystemDetails, tech TechnicalData) entity.Entity {
	name := sys.Name
	if name == "" {
		name = d.Name
	}
	if name == "" {
		name = sys.Key
	}
	return entity.New(entity.CategorySite, sys.Key, entity.Fields{
		entity.FieldName:           name,
		entity.FieldAddress:        d.Address.Street,
		entity.FieldLatitude:       d.Coordinates.Latitude,
		entity.FieldLongitude:      d.Coordinates.Longitude,
		entity.FieldNominalPower:   tech.NominalPower,
		entity.FieldCommissionDate: d.CommissionDate,
	}, entity.WithID(entity.SystemMonitoring, sys.Key))
}

// stringEntities expands the input layout into one entity per string. The
// configuration at position i belongs to the inverter at position i.
func stringEntities(site string, configs []SystemConfiguration, inverters []Inverter, logger *zap.Logger) []entity.Entity {
	var out []entity.Entity
	for i, cfg := range configs {
		if i >= len(inverters) {
			logger.Warn("Input layout without inverter",
				zap.String("system", site), zap.Int("position", i+1))
			continue
		}
		parent := inverters[i].ID
		for _, mppt := range mpptOrder(cfg.MPPTInputs) {
			in := cfg.MPPTInputs[mppt]
			for n := 1; n <= in.StringCount; n++ {
				key := entity.StringKey(site, i+1, mppt, n)
				out = append(out, entity.New(entity.CategoryString, key, entity.Fields{
					entity.FieldName:      key,
					entity.FieldBrand:     in.Module.Vendor,
					entity.FieldModel:     in.Module.Model,
					entity.FieldCount:     in.ModulesPerString,
					entity.FieldMPPTIndex: mppt,
				}, entity.WithParent(parent), entity.WithID(entity.SystemMonitoring, key)))
			}
		}
	}
	return out
}

// mpptOrder sorts MPPT input names numerically when they are numbers.
func mpptOrder(inputs map[string]MPPTInput) []string {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})
	return keys
}
