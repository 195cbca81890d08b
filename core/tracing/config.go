package tracing

// Config holds configuration for OpenTelemetry tracing.
type Config struct {
	// Enabled turns span export on.
	Enabled bool `mapstructure:"enabled" default:"false"`
	// ServiceName is reported as service.name.
	ServiceName string `mapstructure:"service_name" default:"site-sync"`
	// Environment is reported as deployment.environment.
	Environment string `mapstructure:"environment" default:"development"`
	// SampleRatio is the fraction of root spans recorded, between 0 and 1.
	SampleRatio float64 `mapstructure:"sample_ratio" default:"1"`
	// PrettyPrint indents exported spans.
	PrettyPrint bool `mapstructure:"pretty_print" default:"false"`
}
