// Package middleware groups the HTTP middleware of the Fiber application.
//
//   - auth: API key validation through the X-API-Key header.
//   - rayid: a request id stored in the fiber locals and echoed in the
//     X-Ray-ID response header, picked up by logger.WithRayID.
//
// rayid must be registered first so every later log line carries the id.
package middleware
