package reconcile

import (
	"context"
	"testing"
	"time"

	"site-sync/core/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSnapshotCache_TTL tests reuse within the TTL and refetch after it.
func TestSnapshotCache_TTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewSnapshotCache(time.Minute)
	cache.now = func() time.Time { return now }

	src := &stubSource{name: "store", entities: []entity.Entity{site("S1", nil)}}

	snap, err := cache.Get(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, snap, 1)

	_, err = cache.Get(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	now = now.Add(2 * time.Minute)
	_, err = cache.Get(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)

	cache.Invalidate("store")
	_, err = cache.Get(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls)
}

// TestSnapshotCache_Disabled tests that a zero TTL always refetches.
func TestSnapshotCache_Disabled(t *testing.T) {
	cache := NewSnapshotCache(0)
	src := &stubSource{name: "store"}

	for i := 0; i < 3; i++ {
		_, err := cache.Get(context.Background(), src)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, src.calls)
}
