// Package runs exposes sync runs and their history over HTTP.
//
// Routes:
//   - POST /runs          run phases, body {"phases":"all","dry_run":false,"confirmed":true}
//   - GET  /runs/latest   newest archived report, ?format=yaml
//   - GET  /runs/logs     audit trail, ?limit=50
//   - GET  /runs/schema   store columns missing from the database
package runs
