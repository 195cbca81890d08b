package store

import (
	"time"

	"site-sync/core/entity"

	"gorm.io/datatypes"
)

// Client maps a maintenance platform client.
type Client struct {
	ID            uint           `gorm:"column:id;primaryKey"`
	YumanClientID int            `gorm:"column:yuman_client_id;uniqueIndex;not null"`
	Code          *string        `gorm:"column:code"`
	Name          string         `gorm:"column:name"`
	Active        bool           `gorm:"column:active;default:true"`
	Extra         datatypes.JSON `gorm:"column:extra"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
}

// TableName overrides the table name.
func (Client) TableName() string { return "clients_mapping" }

// Site links a monitoring system to a maintenance site.
type Site struct {
	ID              uint      `gorm:"column:id;primaryKey"`
	YumanSiteID     *int      `gorm:"column:yuman_site_id;uniqueIndex"`
	VcomSystemKey   *string   `gorm:"column:vcom_system_key;uniqueIndex;size:64"`
	AldiID          *string   `gorm:"column:aldi_id;index"`
	AldiStoreID     *string   `gorm:"column:aldi_store_id;index"`
	ProjectNumberCP *string   `gorm:"column:project_number_cp;index"`
	ClientMapID     *uint     `gorm:"column:client_map_id;index"`
	Client          *Client   `gorm:"foreignKey:ClientMapID"`
	Code            *string   `gorm:"column:code"`
	Name            string    `gorm:"column:name"`
	Latitude        *float64  `gorm:"column:latitude"`
	Longitude       *float64  `gorm:"column:longitude"`
	Address         *string   `gorm:"column:address"`
	NominalPower    *float64  `gorm:"column:nominal_power"`
	CommissionDate  *string   `gorm:"column:commission_date;size:10"`
	IgnoreSite      bool      `gorm:"column:ignore_site;not null;default:false"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

// TableName overrides the table name.
func (Site) TableName() string { return "sites_mapping" }

// Equipment links a monitoring device to a maintenance material.
type Equipment struct {
	ID              uint           `gorm:"column:id;primaryKey"`
	YumanMaterialID *int           `gorm:"column:yuman_material_id;uniqueIndex"`
	CategoryID      int            `gorm:"column:category_id;not null;index"`
	EqType          string         `gorm:"column:eq_type;size:16"`
	VcomSystemKey   string         `gorm:"column:vcom_system_key;index;size:64"`
	VcomDeviceID    string         `gorm:"column:vcom_device_id;uniqueIndex;size:128"`
	SerialNumber    *string        `gorm:"column:serial_number;index"`
	Brand           *string        `gorm:"column:brand"`
	Model           *string        `gorm:"column:model"`
	Name            *string        `gorm:"column:name"`
	Count           *int           `gorm:"column:count"`
	MPPTIndex       *string        `gorm:"column:mppt_index;size:16"`
	SiteID          uint           `gorm:"column:site_id;not null;index"`
	ParentID        *uint          `gorm:"column:parent_id;index"`
	IsObsolete      bool           `gorm:"column:is_obsolete;not null;default:false"`
	ObsoleteAt      *time.Time     `gorm:"column:obsolete_at"`
	Extra           datatypes.JSON `gorm:"column:extra"`
	CreatedAt       time.Time      `gorm:"column:created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at"`
}

// TableName overrides the table name.
func (Equipment) TableName() string { return "equipments_mapping" }

// Category returns the entity category of the row.
func (e Equipment) Category() entity.Category {
	c, _ := entity.CategoryFromExternalID(e.CategoryID)
	return c
}

// Conflict statuses.
const (
	ConflictPending  = "pending"
	ConflictResolved = "resolved"
	ConflictIgnored  = "ignored"
)

// Conflict is a disagreement waiting for a human decision.
type Conflict struct {
	ID          uint           `gorm:"column:id;primaryKey" json:"id"`
	Kind        string         `gorm:"column:entity_type;index;size:64" json:"kind"`
	Category    string         `gorm:"column:category;size:16" json:"category"`
	EntityKey   string         `gorm:"column:entity_key;index;size:128" json:"key"`
	Description string         `gorm:"column:description" json:"description"`
	Status      string         `gorm:"column:status;index;size:16;default:pending" json:"status"`
	Resolution  *string        `gorm:"column:resolution" json:"resolution,omitempty"`
	Payload     datatypes.JSON `gorm:"column:payload" json:"payload,omitempty" swaggertype:"object"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"created_at"`
	ResolvedAt  *time.Time     `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
}

// TableName overrides the table name.
func (Conflict) TableName() string { return "conflicts" }

// Sync log sources.
const (
	SourceMonitoring  = "vcom"
	SourceMaintenance = "yuman"
	SourceAuto        = "auto"
	SourceUser        = "user"
)

// SyncLog is an audit trail entry.
type SyncLog struct {
	ID        uint           `gorm:"column:id;primaryKey" json:"id"`
	Source    string         `gorm:"column:source;size:16;index" json:"source"`
	Action    string         `gorm:"column:action;size:64" json:"action"`
	Payload   datatypes.JSON `gorm:"column:payload" json:"payload,omitempty" swaggertype:"object"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
}

// TableName overrides the table name.
func (SyncLog) TableName() string { return "sync_logs" }

// Models lists every table managed by the store.
func Models() []any {
	return []any{&Client{}, &Site{}, &Equipment{}, &Conflict{}, &SyncLog{}}
}
