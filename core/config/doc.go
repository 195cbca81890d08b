// Package config loads the application configuration.
//
// Values come from environment variables, optionally seeded from a .env
// file. Every setting has a default declared in the `default` struct tag of
// its section; nested keys map to upper-case variables joined by
// underscores, so monitoring.api_key is read from MONITORING_API_KEY.
//
// # Configuration Structure
//
//   - Server: HTTP API port, API key and environment
//   - Database: store connection (mysql, postgres or sqlite)
//   - Storage: MinIO/S3 bucket used to archive run reports
//   - Log: logging level and format
//   - Monitoring, Maintenance: platform credentials, quotas and pacing
//   - Sync: report format, retention and auto-merge tier
//   - Lock: run lock backend (file or redis)
//   - Tracing, Alert: OpenTelemetry export and conflict notifications
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.RequireCredentials(true, true); err != nil {
//	    log.Fatal(err)
//	}
package config
