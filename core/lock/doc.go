// Package lock prevents two reconciliation runs from writing to the same
// systems at once.
//
// The file backend suits a single host; the redis backend is shared by every
// host using the same redis key. Both are advisory and expire after a TTL so a
// crashed run never blocks the next one forever.
package lock
