package maintenance

import (
	"strings"

	"site-sync/core/utils"
)

// Custom field names.
const (
	FieldSystemKey     = "System Key (Vcom ID)"
	FieldNominalPower  = "Nominal Power (kWc)"
	FieldCommission    = "Commission Date"
	FieldAldiID        = "ALDI ID"
	FieldAldiStoreID   = "ID magasin (n° interne Aldi)"
	FieldProjectNumber = "Project number (Centroplan ID)"
	FieldModel         = "Modèle"
	FieldInverterID    = "Inverter ID (Vcom)"
	FieldMPPTIndex     = "MPPT index"
	FieldModuleCount   = "nombre de module"
	FieldModuleBrand   = "marque du module"
	FieldModuleModel   = "model de module"
)

// Blueprints maps custom field names to their blueprint ids.
var Blueprints = map[string]int{
	FieldSystemKey:    13583,
	FieldNominalPower: 13585,
	FieldCommission:   13586,
	FieldModel:        13548,
	FieldInverterID:   13977,
	FieldMPPTIndex:    16020,
	FieldModuleCount:  16021,
	FieldModuleBrand:  16022,
	FieldModuleModel:  16023,
}

// Field is a custom field value.
type Field struct {
	BlueprintID int    `json:"blueprint_id,omitempty"`
	Name        string `json:"name,omitempty"`
	Value       any    `json:"value"`
}

// NewField returns the custom field name with its blueprint id.
func NewField(name string, value any) Field {
	return Field{BlueprintID: Blueprints[name], Name: name, Value: value}
}

// Embed holds the embedded relations of a record.
type Embed struct {
	Fields []Field `json:"fields,omitempty"`
}

// Lookup returns the trimmed text of the custom field name, "" if absent.
func (e Embed) Lookup(name string) string {
	for _, f := range e.Fields {
		if f.Name == name {
			return utils.ToString(f.Value)
		}
	}
	return ""
}

// ParseCommissionDate converts "dd/mm/yyyy" to "yyyy-mm-dd". Other values
// are returned trimmed.
func ParseCommissionDate(raw string) string {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, "/")
	if len(parts) < 3 {
		return raw
	}
	day, month, year := parts[0], parts[1], parts[2]
	return year + "-" + pad2(month) + "-" + pad2(day)
}

func pad2(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
