// Package conflicts exposes conflict review and manual site matching over HTTP.
//
// Routes:
//   - GET  /conflicts               list conflicts, ?status=pending
//   - POST /conflicts/:id/resolve   close a conflict as resolved or ignored
//   - GET  /sites/candidates        preview resolver pairings of unlinked sites
//   - POST /sites/:key/link         link a site to a maintenance site
//   - POST /sites/:key/ignore       exclude or include a site
package conflicts
