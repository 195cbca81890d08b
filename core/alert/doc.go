// Package alert delivers new conflicts to operators.
//
// The log channel writes one warning per conflict. The webhook channel posts
// a JSON batch through a rate-limited gateway.
package alert
