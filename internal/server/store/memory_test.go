package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGet(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	item := &UserItem{
		ID:           1,
		Username:     "alice",
		PasswordHash: "hash",
		Role:         "Admin",
		Permissions:  []string{"CanReadUser"},
		Email:        "alice@example.com",
	}
	require.NoError(t, s.Put(ctx, item))

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, item, got)

	// The stored record must not alias the caller's slice.
	item.Permissions[0] = "mutated"
	got, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"CanReadUser"}, got.Permissions)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()

	_, err := s.Get(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_QueryByUsername(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &UserItem{ID: 1, Username: "alice"}))
	require.NoError(t, s.Put(ctx, &UserItem{ID: 2, Username: "bob"}))

	got, err := s.QueryByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, got.ID)

	_, err = s.QueryByUsername(ctx, "carol")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Update(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &UserItem{ID: 1, Username: "alice", Role: "Staff"}))

	changed, err := s.Update(ctx, 1, map[string]any{
		"role":        "Admin",
		"permissions": []string{"CanReadUser", "CanCreateUser"},
		"unknown":     "dropped",
	})
	require.NoError(t, err)
	assert.Len(t, changed, 2)

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Admin", got.Role)
	assert.Equal(t, []string{"CanReadUser", "CanCreateUser"}, got.Permissions)
	assert.Equal(t, "alice", got.Username)
}

func TestMemoryStore_UpdateMissing(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()

	_, err := s.Update(context.Background(), 42, map[string]any{"role": "Admin"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &UserItem{ID: 1, Username: "alice"}))
	require.NoError(t, s.Delete(ctx, 1))

	_, err := s.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing id is still a success.
	require.NoError(t, s.Delete(ctx, 1))
}

func TestMemoryStore_Scan(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &UserItem{ID: 1, Username: "alice"}))
	require.NoError(t, s.Put(ctx, &UserItem{ID: 2, Username: "bob"}))

	items, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestMemoryStore_NextID_ConcurrentCallersGetDistinctIDs(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	const callers = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int]bool, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.NextID(ctx)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[id], "id %d allocated twice", id)
			seen[id] = true
		}()
	}
	wg.Wait()

	assert.Len(t, seen, callers)
}
