package config

import (
	"fmt"
	"reflect"
	"strings"

	"site-sync/core/alert"
	"site-sync/core/database"
	"site-sync/core/lock"
	"site-sync/core/logger"
	"site-sync/core/server"
	"site-sync/core/storage"
	"site-sync/core/tracing"
	"site-sync/feature/maintenance"
	"site-sync/feature/monitoring"
	"site-sync/feature/sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Storage holds configuration for the report archive bucket.
	Storage storage.Config `mapstructure:"storage"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the store database connection.
	Database database.Config `mapstructure:"database"`
	// Monitoring holds the monitoring platform credentials and quotas.
	Monitoring monitoring.Config `mapstructure:"monitoring"`
	// Maintenance holds the maintenance platform credentials and quotas.
	Maintenance maintenance.Config `mapstructure:"maintenance"`
	// Sync holds run and report settings.
	Sync sync.Config `mapstructure:"sync"`
	// Lock holds the run lock backend.
	Lock lock.Config `mapstructure:"lock"`
	// Tracing holds OpenTelemetry settings.
	Tracing tracing.Config `mapstructure:"tracing"`
	// Alert holds the conflict alert channel.
	Alert alert.Config `mapstructure:"alert"`
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env file if it exists
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. MONITORING_API_KEY -> monitoring.api_key)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// RequireCredentials fails listing every missing credential of the
// requested platforms.
func (c *Config) RequireCredentials(monitoringAPI, maintenanceAPI bool) error {
	var missing []string
	if monitoringAPI {
		missing = append(missing, c.Monitoring.Missing()...)
	}
	if maintenanceAPI && c.Maintenance.Token == "" {
		missing = append(missing, "MAINTENANCE_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Skip if no tag
		if tag == "" {
			continue
		}

		// Build the key
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
