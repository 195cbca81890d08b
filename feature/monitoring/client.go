package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"site-sync/core/gateway"

	"go.uber.org/zap"
)

// System is one entry of the system list.
type System struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Coordinates locates a system.
type Coordinates struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Address is the postal address of a system.
type Address struct {
	City     string `json:"city"`
	Country  string `json:"country"`
	Postcode string `json:"postalCode"`
	Street   string `json:"street"`
}

// SystemDetails holds the descriptive data of a system.
type SystemDetails struct {
	Name           string      `json:"name"`
	CommissionDate string      `json:"commissionDate"`
	Coordinates    Coordinates `json:"coordinates"`
	Address        Address     `json:"address"`
	Timezone       struct {
		Name string `json:"name"`
	} `json:"timezone"`
}

// Panel is a PV module reference of a system.
type Panel struct {
	Vendor string `json:"vendor"`
	Model  string `json:"model"`
	Count  *int   `json:"count"`
}

// MPPTInput describes the strings wired to one MPPT tracker.
type MPPTInput struct {
	StringCount      int   `json:"stringCount"`
	ModulesPerString *int  `json:"modulesPerString"`
	Module           Panel `json:"module"`
}

// SystemConfiguration is the input layout of the inverter at the same position.
type SystemConfiguration struct {
	MPPTInputs map[string]MPPTInput `json:"mpptInputs"`
}

// TechnicalData holds the plant layout of a system.
type TechnicalData struct {
	NominalPower         *float64              `json:"nominalPower"`
	Panels               []Panel               `json:"panels"`
	SystemConfigurations []SystemConfiguration `json:"systemConfigurations"`
}

// Inverter is one entry of the inverter list of a system.
type Inverter struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Serial string `json:"serial"`
}

// InverterDetails holds vendor data of an inverter.
type InverterDetails struct {
	Vendor string `json:"vendor"`
	Model  string `json:"model"`
}

type envelope[T any] struct {
	Data T `json:"data"`
}

// Client wraps the monitoring platform REST API.
type Client struct {
	gateway *gateway.Gateway
	logger  *zap.Logger
}

// NewClient creates a client whose calls go through a rate-limited gateway.
func NewClient(cfg Config, logger *zap.Logger, opts ...gateway.Option) *Client {
	opts = append([]gateway.Option{gateway.WithLogger(logger)}, opts...)
	return &Client{gateway: gateway.New(cfg.Gateway(), opts...), logger: logger}
}

// Gateway returns the underlying gateway.
func (c *Client) Gateway() *gateway.Gateway { return c.gateway }

func get[T any](ctx context.Context, c *Client, path string) (T, error) {
	var out envelope[T]
	if err := c.gateway.DoJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return out.Data, err
	}
	return out.Data, nil
}

// Systems lists every system visible to the account.
func (c *Client) Systems(ctx context.Context) ([]System, error) {
	systems, err := get[[]System](ctx, c, "/systems")
	if err != nil {
		return nil, fmt.Errorf("failed to list systems: %w", err)
	}
	return systems, nil
}

// SystemDetails returns the details of a system.
func (c *Client) SystemDetails(ctx context.Context, key string) (SystemDetails, error) {
	d, err := get[SystemDetails](ctx, c, "/systems/"+url.PathEscape(key))
	if err != nil {
		return d, fmt.Errorf("failed to get system %s: %w", key, err)
	}
	return d, nil
}

// TechnicalData returns the plant layout of a system.
func (c *Client) TechnicalData(ctx context.Context, key string) (TechnicalData, error) {
	d, err := get[TechnicalData](ctx, c, "/systems/"+url.PathEscape(key)+"/technical-data")
	if err != nil {
		return d, fmt.Errorf("failed to get technical data of %s: %w", key, err)
	}
	return d, nil
}

// Inverters lists the inverters of a system in platform order.
func (c *Client) Inverters(ctx context.Context, key string) ([]Inverter, error) {
	invs, err := get[[]Inverter](ctx, c, "/systems/"+url.PathEscape(key)+"/inverters")
	if err != nil {
		return nil, fmt.Errorf("failed to list inverters of %s: %w", key, err)
	}
	return invs, nil
}

// InverterDetails returns vendor data of one inverter.
func (c *Client) InverterDetails(ctx context.Context, key, id string) (InverterDetails, error) {
	d, err := get[InverterDetails](ctx, c, "/systems/"+url.PathEscape(key)+"/inverters/"+url.PathEscape(id))
	if err != nil {
		return d, fmt.Errorf("failed to get inverter %s of %s: %w", id, key, err)
	}
	return d, nil
}
