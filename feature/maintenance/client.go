package maintenance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"site-sync/core/gateway"

	"go.uber.org/zap"
)

// Site is a maintenance platform site.
type Site struct {
	ID        int    `json:"id"`
	ClientID  *int   `json:"client_id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	Address   string `json:"address"`
	Latitude  any    `json:"latitude"`
	Longitude any    `json:"longitude"`
	Embed     Embed  `json:"_embed"`
}

// Material is a maintenance platform material.
type Material struct {
	ID           int    `json:"id"`
	SiteID       int    `json:"site_id"`
	CategoryID   int    `json:"category_id"`
	Name         string `json:"name"`
	Brand        string `json:"brand"`
	Model        string `json:"model"`
	SerialNumber string `json:"serial_number"`
	ParentID     *int   `json:"parent_id"`
	Embed        Embed  `json:"_embed"`
}

// Customer is a maintenance platform client.
type Customer struct {
	ID   int    `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// SiteInput is the body of a site creation.
type SiteInput struct {
	ClientID int     `json:"client_id"`
	Name     string  `json:"name"`
	Address  string  `json:"address"`
	Fields   []Field `json:"fields,omitempty"`
}

// MaterialInput is the body of a material creation.
type MaterialInput struct {
	SiteID       int     `json:"site_id"`
	CategoryID   int     `json:"category_id"`
	Name         string  `json:"name"`
	Brand        string  `json:"brand,omitempty"`
	Model        string  `json:"model,omitempty"`
	SerialNumber string  `json:"serial_number,omitempty"`
	ParentID     *int    `json:"parent_id,omitempty"`
	Fields       []Field `json:"fields,omitempty"`
}

type page[T any] struct {
	Items      []T `json:"items"`
	TotalPages int `json:"total_pages"`
}

// Client wraps the maintenance platform REST API.
type Client struct {
	gateway *gateway.Gateway
	perPage int
	logger  *zap.Logger
}

// NewClient creates a client whose calls go through a rate-limited gateway.
func NewClient(cfg Config, logger *zap.Logger, opts ...gateway.Option) *Client {
	opts = append([]gateway.Option{gateway.WithLogger(logger)}, opts...)
	return &Client{gateway: gateway.New(cfg.Gateway(), opts...), perPage: cfg.perPage(), logger: logger}
}

// Gateway returns the underlying gateway.
func (c *Client) Gateway() *gateway.Gateway { return c.gateway }

// list walks every page of a collection.
func list[T any](ctx context.Context, c *Client, path string, params url.Values) ([]T, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("per_page", strconv.Itoa(c.perPage))

	var out []T
	for n := 1; ; n++ {
		params.Set("page", strconv.Itoa(n))
		var p page[T]
		if err := c.gateway.DoJSON(ctx, http.MethodGet, path+"?"+params.Encode(), nil, &p); err != nil {
			return nil, err
		}
		out = append(out, p.Items...)
		if n >= p.TotalPages {
			break
		}
	}
	c.logger.Debug("Listed collection", zap.String("path", path), zap.Int("items", len(out)))
	return out, nil
}

// Clients lists every client.
func (c *Client) Clients(ctx context.Context) ([]Customer, error) {
	out, err := list[Customer](ctx, c, "/clients", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return out, nil
}

// Sites lists every site with its custom fields.
func (c *Client) Sites(ctx context.Context) ([]Site, error) {
	out, err := list[Site](ctx, c, "/sites", url.Values{"embed": {"fields"}})
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	return out, nil
}

// Materials lists materials with their custom fields, limited to category when non-zero.
func (c *Client) Materials(ctx context.Context, category int) ([]Material, error) {
	params := url.Values{"embed": {"fields"}}
	if category != 0 {
		params.Set("category_id", strconv.Itoa(category))
	}
	out, err := list[Material](ctx, c, "/materials", params)
	if err != nil {
		return nil, fmt.Errorf("failed to list materials: %w", err)
	}
	return out, nil
}

// Material returns one material.
func (c *Client) Material(ctx context.Context, id int) (Material, error) {
	var m Material
	if err := c.gateway.DoJSON(ctx, http.MethodGet, "/materials/"+strconv.Itoa(id), nil, &m); err != nil {
		return m, fmt.Errorf("failed to get material %d: %w", id, err)
	}
	return m, nil
}

// CreateSite creates a site.
func (c *Client) CreateSite(ctx context.Context, in SiteInput) (Site, error) {
	var s Site
	if err := c.gateway.DoJSON(ctx, http.MethodPost, "/sites", in, &s); err != nil {
		return s, fmt.Errorf("failed to create site %q: %w", in.Name, err)
	}
	return s, nil
}

// UpdateSite patches a site.
func (c *Client) UpdateSite(ctx context.Context, id int, patch map[string]any) error {
	if err := c.gateway.DoJSON(ctx, http.MethodPatch, "/sites/"+strconv.Itoa(id), patch, nil); err != nil {
		return fmt.Errorf("failed to update site %d: %w", id, err)
	}
	return nil
}

// SetSiteKey writes the monitoring system key custom field of a site.
func (c *Client) SetSiteKey(ctx context.Context, id int, key string) error {
	return c.UpdateSite(ctx, id, map[string]any{"fields": []Field{NewField(FieldSystemKey, key)}})
}

// CreateMaterial creates a material.
func (c *Client) CreateMaterial(ctx context.Context, in MaterialInput) (Material, error) {
	var m Material
	if err := c.gateway.DoJSON(ctx, http.MethodPost, "/materials", in, &m); err != nil {
		return m, fmt.Errorf("failed to create material %q: %w", in.Name, err)
	}
	return m, nil
}

// UpdateMaterial patches a material.
func (c *Client) UpdateMaterial(ctx context.Context, id int, patch map[string]any) error {
	if err := c.gateway.DoJSON(ctx, http.MethodPatch, "/materials/"+strconv.Itoa(id), patch, nil); err != nil {
		return fmt.Errorf("failed to update material %d: %w", id, err)
	}
	return nil
}
