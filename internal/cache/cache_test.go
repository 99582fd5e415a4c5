package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(client), mr
}

func TestSetAndGetLastSeen(t *testing.T) {
	store, mr := newTestStore(t)
	defer mr.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.SetLastSeen(ctx, "user-1", now))

	got, err := store.LastSeen(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, now, got)
}

func TestLastSeen_NeverSet(t *testing.T) {
	store, mr := newTestStore(t)
	defer mr.Close()

	got, err := store.LastSeen(context.Background(), "unknown-user")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestLastSeen_Expired(t *testing.T) {
	store, mr := newTestStore(t)
	defer mr.Close()

	ctx := context.Background()
	require.NoError(t, store.SetLastSeen(ctx, "user-1", time.Now()))

	mr.FastForward(31 * 24 * time.Hour)

	got, err := store.LastSeen(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestStore_NilClientIsNoOp(t *testing.T) {
	var store *Store
	ctx := context.Background()

	assert.NoError(t, store.SetLastSeen(ctx, "user-1", time.Now()))
	got, err := store.LastSeen(ctx, "user-1")
	assert.NoError(t, err)
	assert.True(t, got.IsZero())
}
