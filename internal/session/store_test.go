package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loadrelay/go-download-gateway/internal/core"
)

func testPrincipal() *core.Principal {
	return &core.Principal{
		UID:   1,
		Name:  "admin",
		Perms: core.PermAll,
	}
}

func TestNewSession(t *testing.T) {
	s := New(testPrincipal(), time.Hour)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "admin", s.Principal.Name)
	assert.True(t, s.ExpiresAt.After(s.CreatedAt))

	other := New(testPrincipal(), time.Hour)
	assert.NotEqual(t, s.ID, other.ID)
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	defer store.Close()
	ctx := context.Background()

	s := New(testPrincipal(), time.Hour)
	require.NoError(t, store.Put(ctx, s))

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Principal, got.Principal)

	_, err = store.Get(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DuplicateID(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	defer store.Close()
	ctx := context.Background()

	s := New(testPrincipal(), time.Hour)
	require.NoError(t, store.Put(ctx, s))
	assert.ErrorIs(t, store.Put(ctx, s), ErrExists)
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	defer store.Close()
	ctx := context.Background()

	s := New(testPrincipal(), -time.Minute)
	require.NoError(t, store.Put(ctx, s))

	_, err := store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DeleteIdempotent(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	defer store.Close()
	ctx := context.Background()

	s := New(testPrincipal(), time.Hour)
	require.NoError(t, store.Put(ctx, s))

	require.NoError(t, store.Delete(ctx, s.ID))
	require.NoError(t, store.Delete(ctx, s.ID))

	_, err := store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Cleanup(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	defer store.Close()
	ctx := context.Background()

	live := New(testPrincipal(), time.Hour)
	dead := New(testPrincipal(), -time.Minute)
	require.NoError(t, store.Put(ctx, live))
	require.NoError(t, store.Put(ctx, dead))

	assert.Equal(t, 1, store.Cleanup())

	_, err := store.Get(ctx, live.ID)
	assert.NoError(t, err)
}
