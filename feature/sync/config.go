package sync

import "time"

// Config holds configuration for sync runs.
type Config struct {
	// ReportFormat is the archived report encoding (json, yaml).
	ReportFormat string `mapstructure:"report_format" default:"json"`
	// ReportPrefix is the object prefix of archived reports.
	ReportPrefix string `mapstructure:"report_prefix" default:"reports"`
	// ReportKeep is the number of archived reports kept.
	ReportKeep int `mapstructure:"report_keep" default:"30"`
	// AutoMergeTier is the lowest confidence merged without review (HIGH, MEDIUM, LOW).
	AutoMergeTier string `mapstructure:"auto_merge_tier" default:"MEDIUM"`
	// PlantName names the plant material created for new sites.
	PlantName string `mapstructure:"plant_name" default:"Centrale"`
	// CacheTTL bounds the age of snapshots served to the HTTP API.
	CacheTTL time.Duration `mapstructure:"cache_ttl" default:"5m"`
}
