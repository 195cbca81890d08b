package maintenance

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"site-sync/core/entity"
	"site-sync/core/reconcile"
	"site-sync/core/resolver"
	"site-sync/core/utils"

	"go.uber.org/zap"
)

// SiteKeyLookup returns the monitoring keys of linked maintenance sites,
// indexed by maintenance site id.
type SiteKeyLookup interface {
	SiteKeys(ctx context.Context) (map[string]string, error)
}

// Source reads the maintenance platform as a snapshot. Sites are keyed by
// their monitoring system key custom field, falling back to the store links.
// Sites without either are kept aside as matching candidates.
type Source struct {
	client *Client
	links  SiteKeyLookup
	logger *zap.Logger

	mu      sync.Mutex
	unkeyed []resolver.Candidate
}

var _ reconcile.SnapshotSource = (*Source)(nil)

// NewSource creates a source. links may be nil.
func NewSource(client *Client, links SiteKeyLookup, logger *zap.Logger) *Source {
	return &Source{client: client, links: links, logger: logger}
}

// Name implements reconcile.SnapshotSource.
func (s *Source) Name() string { return "maintenance" }

// Unkeyed returns the sites of the last fetch that carry no monitoring key.
func (s *Source) Unkeyed() []resolver.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]resolver.Candidate(nil), s.unkeyed...)
}

// FetchAll implements reconcile.SnapshotSource.
func (s *Source) FetchAll(ctx context.Context) ([]entity.Entity, error) {
	sites, err := s.client.Sites(ctx)
	if err != nil {
		return nil, err
	}
	links := map[string]string{}
	if s.links != nil {
		if links, err = s.links.SiteKeys(ctx); err != nil {
			return nil, err
		}
	}

	var (
		out     []entity.Entity
		unkeyed []resolver.Candidate
	)
	siteKeys := make(map[int]string, len(sites))
	for _, site := range sites {
		key := site.Embed.Lookup(FieldSystemKey)
		if key == "" {
			key = links[strconv.Itoa(site.ID)]
		}
		if key == "" {
			unkeyed = append(unkeyed, candidate(site))
			continue
		}
		siteKeys[site.ID] = key
		out = append(out, siteEntity(key, site))
	}

	materials, err := s.client.Materials(ctx, 0)
	if err != nil {
		return nil, err
	}
	out = append(out, materialEntities(materials, siteKeys, s.logger)...)

	s.mu.Lock()
	s.unkeyed = unkeyed
	s.mu.Unlock()

	s.logger.Info("Maintenance snapshot fetched",
		zap.Int("sites", len(sites)),
		zap.Int("unkeyed_sites", len(unkeyed)),
		zap.Int("materials", len(materials)),
		zap.Int("entities", len(out)),
	)
	return out, nil
}

func candidate(site Site) resolver.Candidate {
	return resolver.Candidate{
		Key:  strconv.Itoa(site.ID),
		Name: site.Name,
		Code: site.Code,
		Lat:  optionalFloat(site.Latitude),
		Lon:  optionalFloat(site.Longitude),
	}
}

func siteEntity(key string, site Site) entity.Entity {
	fields := entity.Fields{
		entity.FieldName:           site.Name,
		entity.FieldAddress:        site.Address,
		entity.FieldLatitude:       optionalFloat(site.Latitude),
		entity.FieldLongitude:      optionalFloat(site.Longitude),
		entity.FieldNominalPower:   optionalFloat(site.Embed.Lookup(FieldNominalPower)),
		entity.FieldCommissionDate: ParseCommissionDate(site.Embed.Lookup(FieldCommission)),
		entity.FieldCode:           site.Code,
		entity.FieldAldiID:         site.Embed.Lookup(FieldAldiID),
		entity.FieldAldiStoreID:    site.Embed.Lookup(FieldAldiStoreID),
		entity.FieldProjectNumber:  site.Embed.Lookup(FieldProjectNumber),
		entity.FieldClientID:       site.ClientID,
	}
	return entity.New(entity.CategorySite, key, fields,
		entity.WithID(entity.SystemMaintenance, strconv.Itoa(site.ID)))
}

// materialEntities converts materials of keyed sites. A site's first SIM and
// plant take the plain keys; further ones are suffixed with their id.
func materialEntities(materials []Material, siteKeys map[int]string, logger *zap.Logger) []entity.Entity {
	keys := make(map[int]string, len(materials))
	seen := map[string]bool{}
	for _, m := range materials {
		site, ok := siteKeys[m.SiteID]
		if !ok {
			continue
		}
		cat, ok := entity.CategoryFromExternalID(m.CategoryID)
		if !ok {
			continue
		}
		key := materialKey(cat, site, m)
		if cat == entity.CategorySIM || cat == entity.CategoryPlant {
			if seen[key] {
				key += "-" + strconv.Itoa(m.ID)
			}
			seen[key] = true
		}
		if key == "" {
			logger.Warn("Material without key",
				zap.Int("id", m.ID), zap.String("category", cat.String()))
			continue
		}
		keys[m.ID] = key
	}

	var out []entity.Entity
	for _, m := range materials {
		key, ok := keys[m.ID]
		if !ok {
			continue
		}
		cat, _ := entity.CategoryFromExternalID(m.CategoryID)
		parent := siteKeys[m.SiteID]
		if cat == entity.CategoryString {
			parent = ""
			if m.ParentID != nil {
				parent = keys[*m.ParentID]
			}
		}
		out = append(out, materialEntity(cat, key, parent, m))
	}
	return out
}

func materialKey(cat entity.Category, site string, m Material) string {
	switch cat {
	case entity.CategoryInverter:
		if id := m.Embed.Lookup(FieldInverterID); id != "" {
			return id
		}
		return strings.TrimSpace(m.SerialNumber)
	case entity.CategoryModule:
		return entity.ModuleKey(site)
	case entity.CategorySIM:
		return entity.SIMKey(site)
	case entity.CategoryPlant:
		return entity.PlantKey(site)
	default:
		if s := strings.TrimSpace(m.SerialNumber); s != "" {
			return s
		}
		return strings.TrimSpace(m.Name)
	}
}

func materialEntity(cat entity.Category, key, parent string, m Material) entity.Entity {
	fields := entity.Fields{
		entity.FieldName:         m.Name,
		entity.FieldBrand:        m.Brand,
		entity.FieldModel:        m.Model,
		entity.FieldSerialNumber: entity.NormalizeSerial(m.SerialNumber),
	}
	derived := entity.Fields{
		entity.FieldModel: m.Embed.Lookup(FieldModel),
	}
	switch cat {
	case entity.CategoryString:
		// String serials hold the device key.
		delete(fields, entity.FieldSerialNumber)
		// String module data is kept in custom fields, which updates write.
		fields[entity.FieldMPPTIndex] = m.Embed.Lookup(FieldMPPTIndex)
		fields[entity.FieldBrand] = m.Embed.Lookup(FieldModuleBrand)
		fields[entity.FieldModel] = m.Embed.Lookup(FieldModuleModel)
		derived[entity.FieldBrand] = m.Brand
		derived[entity.FieldModel] = m.Model
		if n, ok := utils.ToFloat(m.Embed.Lookup(FieldModuleCount)); ok {
			derived[entity.FieldCount] = n
		}
	case entity.CategoryModule:
		if n, ok := utils.ToFloat(m.Embed.Lookup(FieldModuleCount)); ok {
			derived[entity.FieldCount] = n
		}
	}
	return entity.New(cat, key, fields,
		entity.WithParent(parent),
		entity.WithDerived(derived),
		entity.WithID(entity.SystemMaintenance, strconv.Itoa(m.ID)),
	)
}

func optionalFloat(v any) *float64 {
	f, ok := utils.ToFloat(v)
	if !ok {
		return nil
	}
	return &f
}
