// Package report builds the per-run reconciliation report and archives it.
//
// A Report carries the planned and executed counts of every phase, the
// failures, resolver matches, unmatched records, conflicts and the residual
// drift found by verification. Reports encode as JSON or YAML and can be
// archived to an object storage bucket where only the newest ones are kept.
package report
