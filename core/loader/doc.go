// Package loader provides the feature loading system of the HTTP API.
//
// Each feature implements the Feature interface:
//
//	type Feature interface {
//	    Name() string
//	    IsEnabled() bool
//	    Load(app fiber.Router) error
//	}
//
// The Manager keeps the registered features and loads the enabled ones in
// registration order. Features such as conflict review or run reports are
// developed and tested in isolation and only meet in cmd/start.go.
package loader
