// Package server holds the HTTP server configuration and constants.
//
// The Config struct defines the HTTP port, the API key and the deployment
// environment. The environment is attached to traces and decides whether the
// API may start without a key.
package server
