package entity

import (
	"fmt"
	"strings"
)

// Field names shared by every system adapter.
const (
	FieldName           = "name"
	FieldAddress        = "address"
	FieldLatitude       = "latitude"
	FieldLongitude      = "longitude"
	FieldNominalPower   = "nominal_power"
	FieldCommissionDate = "commission_date"
	FieldCode           = "code"
	FieldAldiID         = "aldi_id"
	FieldAldiStoreID    = "aldi_store_id"
	FieldProjectNumber  = "project_number_cp"
	FieldClientID       = "client_id"
	FieldIgnoreSite     = "ignore_site"

	FieldBrand        = "brand"
	FieldModel        = "model"
	FieldSerialNumber = "serial_number"
	FieldCount        = "count"
	FieldMPPTIndex    = "mppt_index"
)

// SiteOwnedFields are site fields the maintenance platform and operators own.
var SiteOwnedFields = []string{
	FieldCode,
	FieldAldiID,
	FieldAldiStoreID,
	FieldProjectNumber,
	FieldClientID,
	FieldIgnoreSite,
}

// ModuleKey is the key of the aggregated module record of a site.
func ModuleKey(site string) string { return "MODULES-" + site }

// StringKey is the key of string n on MPPT input mppt of the inverter at
// position inverter (1-based) of a site.
func StringKey(site string, inverter int, mppt string, n int) string {
	return fmt.Sprintf("STRING-%s-WR%d-MPPT-%s.%d", site, inverter, mppt, n)
}

// SIMKey is the key of the SIM card of a site.
func SIMKey(site string) string { return "SIM-" + site }

// PlantKey is the key of the plant placeholder of a site.
func PlantKey(site string) string { return "PLANT-" + site }

// MPPTFromStringKey extracts the "<mppt>" part of a string key, "" if absent.
func MPPTFromStringKey(key string) string {
	_, rest, ok := strings.Cut(key, "-MPPT-")
	if !ok {
		return ""
	}
	mppt, _, _ := strings.Cut(rest, ".")
	return mppt
}
