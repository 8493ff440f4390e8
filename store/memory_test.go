package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-graphql-cache/types"
)

func newTestStore(t *testing.T) types.DependencyStore {
	t.Helper()

	store, err := NewMemoryStore(context.Background(), nil, &types.StoreConfig{
		Enabled: true,
		Type:    "memory",
	})
	require.NoError(t, err)
	require.NoError(t, store.Start())

	t.Cleanup(func() { _ = store.Stop() })

	return store
}

func TestMemoryStore_AssociateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Associate(ctx, types.NamespaceItem, "Post:1", "key-a"))
	require.NoError(t, store.Associate(ctx, types.NamespaceItem, "Post:1", "key-b"))
	require.NoError(t, store.Associate(ctx, types.NamespaceItem, "Post:1", "key-a"))

	members, err := store.Get(ctx, types.NamespaceItem, "Post:1")
	require.NoError(t, err)
	assert.Equal(t, []string{"key-a", "key-b"}, members)
}

func TestMemoryStore_GetMissingKeyIsEmptyNotError(t *testing.T) {
	store := newTestStore(t)

	members, err := store.Get(context.Background(), types.NamespaceType, "Nope")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestMemoryStore_NamespacesAreIsolated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Associate(ctx, types.NamespaceItem, "Post:1", "key-a"))
	require.NoError(t, store.Associate(ctx, types.NamespaceType, "Post", "key-b"))

	items, err := store.Get(ctx, types.NamespaceItem, "Post:1")
	require.NoError(t, err)
	assert.Equal(t, []string{"key-a"}, items)

	byType, err := store.Get(ctx, types.NamespaceType, "Post")
	require.NoError(t, err)
	assert.Equal(t, []string{"key-b"}, byType)
}

func TestMemoryStore_ConcurrentAssociatesAllSurvive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	keys := []string{"k1", "k2", "k3", "k4", "k5", "k6", "k7", "k8"}

	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(cacheKey string) {
			defer wg.Done()
			assert.NoError(t, store.Associate(ctx, types.NamespaceItem, "Post:1", cacheKey))
		}(key)
	}
	wg.Wait()

	members, err := store.Get(ctx, types.NamespaceItem, "Post:1")
	require.NoError(t, err)
	assert.Len(t, members, len(keys))
}

func TestMemoryStore_PurgeReturnsAndRemoves(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Associate(ctx, types.NamespaceItem, "Post:1", "key-a"))
	require.NoError(t, store.Associate(ctx, types.NamespaceItem, "Post:1", "key-b"))

	purged, err := store.Purge(ctx, types.NamespaceItem, "Post:1")
	require.NoError(t, err)
	assert.Equal(t, []string{"key-a", "key-b"}, purged)

	members, err := store.Get(ctx, types.NamespaceItem, "Post:1")
	require.NoError(t, err)
	assert.Empty(t, members)

	again, err := store.Purge(ctx, types.NamespaceItem, "Post:1")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestMemoryStore_RemoveDropsOnlyGivenKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Associate(ctx, types.NamespaceURL, "/graphql", "key-a"))
	require.NoError(t, store.Associate(ctx, types.NamespaceURL, "/graphql", "key-b"))
	require.NoError(t, store.Associate(ctx, types.NamespaceURL, "/graphql", "key-c"))

	require.NoError(t, store.Remove(ctx, types.NamespaceURL, "/graphql", "key-a", "key-c"))

	members, err := store.Get(ctx, types.NamespaceURL, "/graphql")
	require.NoError(t, err)
	assert.Equal(t, []string{"key-b"}, members)
}

func TestMemoryStore_PurgeAllDropsEverything(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Associate(ctx, types.NamespaceItem, "Post:1", "key-a"))
	require.NoError(t, store.StoreResult(ctx, "key-a", []byte(`{"data":{}}`)))

	require.NoError(t, store.PurgeAll(ctx))
	require.NoError(t, store.PurgeAll(ctx))

	members, err := store.Get(ctx, types.NamespaceItem, "Post:1")
	require.NoError(t, err)
	assert.Empty(t, members)

	_, found, err := store.FetchResult(ctx, "key-a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_ResultRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	payload := []byte(`{"data":{"posts":[{"id":"1"}]}}`)
	require.NoError(t, store.StoreResult(ctx, "key-a", payload))

	result, found, err := store.FetchResult(ctx, "key-a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, payload, result)

	require.NoError(t, store.DeleteResult(ctx, "key-a"))

	_, found, err = store.FetchResult(ctx, "key-a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_Keys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Associate(ctx, types.NamespaceType, "Post", "key-a"))
	require.NoError(t, store.Associate(ctx, types.NamespaceType, "User", "key-b"))

	keys, err := store.Keys(ctx, types.NamespaceType)
	require.NoError(t, err)
	assert.Equal(t, []string{"Post", "User"}, keys)
}

func TestMemoryStore_EmptyKeyIsRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Associate(ctx, types.NamespaceItem, "", "key-a")
	assert.True(t, types.IsError(err, types.ErrStoreKeyEmpty))

	err = store.Associate(ctx, types.NamespaceItem, "Post:1", "")
	assert.True(t, types.IsError(err, types.ErrCacheKeyEmpty))
}
