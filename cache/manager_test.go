package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-graphql-cache/invalidation"
	"github.com/saiset-co/sai-graphql-cache/logger"
	"github.com/saiset-co/sai-graphql-cache/schema"
	"github.com/saiset-co/sai-graphql-cache/store"
	"github.com/saiset-co/sai-graphql-cache/types"
)

const testSchema = `
interface Node {
	id: ID!
}

type Post implements Node {
	id: ID!
	title: String!
	author: User!
}

type User implements Node {
	id: ID!
	name: String!
}

type Query {
	post(id: ID!): Post
	posts: [Post!]!
	node(id: ID!): Node
}
`

type staticConfig struct {
	config *types.ServiceConfig
}

func (c *staticConfig) Load() error { return nil }

func (c *staticConfig) GetConfig() *types.ServiceConfig { return c.config }

func (c *staticConfig) GetValue(string, interface{}) interface{} { return nil }

func (c *staticConfig) GetAs(string, interface{}) error { return nil }

func newTestCache(t *testing.T, trackURLs bool) (*Manager, types.DependencyStore) {
	t.Helper()
	ctx := context.Background()

	depStore, err := store.NewMemoryStore(ctx, nil, &types.StoreConfig{
		Enabled: true,
		Type:    "memory",
	})
	require.NoError(t, err)
	require.NoError(t, depStore.Start())
	t.Cleanup(func() { _ = depStore.Stop() })

	registry, err := schema.NewRegistry(testSchema)
	require.NoError(t, err)

	resolver, err := schema.NewResolver(registry)
	require.NoError(t, err)

	log := logger.NewZapWrapper(zap.NewNop())

	engine, err := invalidation.NewEngine(depStore, log, nil)
	require.NoError(t, err)

	config := &staticConfig{config: &types.ServiceConfig{
		Cache: &types.CacheConfig{Enabled: true, TrackURLs: trackURLs},
	}}

	manager, err := NewManager(ctx, config, log, nil, resolver, depStore, engine)
	require.NoError(t, err)
	require.NoError(t, manager.Start())
	t.Cleanup(func() { _ = manager.Stop() })

	return manager, depStore
}

func executeQuery(t *testing.T, manager *Manager, req *types.QueryRequest, touched []types.TouchedItem, result []byte) string {
	t.Helper()

	ctx, cacheKey, err := manager.OnRequestStart(context.Background(), req)
	require.NoError(t, err)

	for _, item := range touched {
		manager.OnItemLoaded(ctx, item.Type, item.ID)
	}

	require.NoError(t, manager.OnRequestComplete(ctx, req, result))
	return cacheKey
}

func TestManager_KeyIsStableAcrossRequests(t *testing.T) {
	manager, _ := newTestCache(t, false)

	req := &types.QueryRequest{Query: `query { posts { id title } }`}

	_, first, err := manager.OnRequestStart(context.Background(), req)
	require.NoError(t, err)

	_, second, err := manager.OnRequestStart(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestManager_ExplicitQueryIDWins(t *testing.T) {
	manager, _ := newTestCache(t, false)

	req := &types.QueryRequest{QueryID: "posts-v3", Query: `query { posts { id } }`}

	_, cacheKey, err := manager.OnRequestStart(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "posts-v3", cacheKey)
}

func TestManager_PrecomputedCacheKeyWins(t *testing.T) {
	manager, _ := newTestCache(t, false)

	// the fronting middleware already folded vary headers into the key;
	// both scope open and commit must honor it over the client queryId
	req := &types.QueryRequest{
		QueryID:  "saved-1",
		Query:    `query { posts { id } }`,
		CacheKey: "saved-1:00c0ffee00c0ffee",
	}

	cacheKey := executeQuery(t, manager, req, nil, []byte(`{"data":{}}`))
	assert.Equal(t, "saved-1:00c0ffee00c0ffee", cacheKey)

	_, found, err := manager.Lookup(context.Background(), "saved-1:00c0ffee00c0ffee")
	require.NoError(t, err)
	assert.True(t, found)

	// nothing landed under the bare queryId
	_, found, err = manager.Lookup(context.Background(), "saved-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestManager_CommitThenLookup(t *testing.T) {
	manager, _ := newTestCache(t, false)

	req := &types.QueryRequest{Query: `query { post(id: "1") { id title } }`}
	result := []byte(`{"data":{"post":{"id":"1","title":"hello"}}}`)

	cacheKey := executeQuery(t, manager, req,
		[]types.TouchedItem{{Type: "Post", ID: "1"}}, result)

	cached, found, err := manager.Lookup(context.Background(), cacheKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, result, cached)
}

func TestManager_CommitWritesAllEdges(t *testing.T) {
	manager, depStore := newTestCache(t, true)
	ctx := context.Background()

	req := &types.QueryRequest{
		Query: `query { post(id: "1") { id author { id name } } }`,
		URL:   "/graphql?query=post",
	}

	cacheKey := executeQuery(t, manager, req, []types.TouchedItem{
		{Type: "Post", ID: "1"},
		{Type: "User", ID: "7"},
	}, []byte(`{"data":{}}`))

	for _, key := range []string{"Post:1", "User:7"} {
		members, err := depStore.Get(ctx, types.NamespaceItem, key)
		require.NoError(t, err)
		assert.Equal(t, []string{cacheKey}, members, key)
	}

	// the selection reaches Post and User, so both type edges exist
	for _, typeName := range []string{"Post", "User"} {
		members, err := depStore.Get(ctx, types.NamespaceType, typeName)
		require.NoError(t, err)
		assert.Equal(t, []string{cacheKey}, members, typeName)
	}

	members, err := depStore.Get(ctx, types.NamespaceURL, "/graphql?query=post")
	require.NoError(t, err)
	assert.Equal(t, []string{cacheKey}, members)
}

func TestManager_URLEdgeSkippedWhenTrackingDisabled(t *testing.T) {
	manager, depStore := newTestCache(t, false)
	ctx := context.Background()

	req := &types.QueryRequest{
		Query: `query { posts { id } }`,
		URL:   "/graphql?query=posts",
	}

	executeQuery(t, manager, req, nil, []byte(`{"data":{}}`))

	members, err := depStore.Get(ctx, types.NamespaceURL, "/graphql?query=posts")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestManager_AbstractSelectionExpandsTypeEdges(t *testing.T) {
	manager, depStore := newTestCache(t, false)
	ctx := context.Background()

	req := &types.QueryRequest{Query: `query { node(id: "1") { id } }`}
	cacheKey := executeQuery(t, manager, req, nil, []byte(`{"data":{}}`))

	// Node expands to every implementation, never to the interface name
	for _, typeName := range []string{"Post", "User"} {
		members, err := depStore.Get(ctx, types.NamespaceType, typeName)
		require.NoError(t, err)
		assert.Equal(t, []string{cacheKey}, members, typeName)
	}

	members, err := depStore.Get(ctx, types.NamespaceType, "Node")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestManager_UnparseableQueryIsNotCached(t *testing.T) {
	manager, _ := newTestCache(t, false)

	req := &types.QueryRequest{Query: `query { posts { id `}

	ctx, cacheKey, err := manager.OnRequestStart(context.Background(), req)
	require.NoError(t, err)

	require.NoError(t, manager.OnRequestComplete(ctx, req, []byte(`{"errors":[]}`)))

	_, found, err := manager.Lookup(context.Background(), cacheKey)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestManager_EmptyRequestFails(t *testing.T) {
	manager, _ := newTestCache(t, false)

	_, _, err := manager.OnRequestStart(context.Background(), &types.QueryRequest{})
	assert.True(t, types.IsError(err, types.ErrQueryTextEmpty))
}

func TestManager_PurgeByItemDropsResult(t *testing.T) {
	manager, _ := newTestCache(t, false)
	ctx := context.Background()

	req := &types.QueryRequest{Query: `query { post(id: "1") { id } }`}
	cacheKey := executeQuery(t, manager, req,
		[]types.TouchedItem{{Type: "Post", ID: "1"}}, []byte(`{"data":{}}`))

	require.NoError(t, manager.PurgeByItem(ctx, "Post", "1"))

	_, found, err := manager.Lookup(ctx, cacheKey)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestManager_RepopulationAfterPurge(t *testing.T) {
	manager, _ := newTestCache(t, false)
	ctx := context.Background()

	req := &types.QueryRequest{Query: `query { post(id: "1") { id title } }`}
	touched := []types.TouchedItem{{Type: "Post", ID: "1"}}

	cacheKey := executeQuery(t, manager, req, touched, []byte(`{"data":{"v":1}}`))
	require.NoError(t, manager.PurgeByType(ctx, "Post"))

	_, found, err := manager.Lookup(ctx, cacheKey)
	require.NoError(t, err)
	require.False(t, found)

	// a re-executed query commits fresh edges and a fresh result
	repopulated := executeQuery(t, manager, req, touched, []byte(`{"data":{"v":2}}`))
	assert.Equal(t, cacheKey, repopulated)

	cached, found, err := manager.Lookup(ctx, cacheKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte(`{"data":{"v":2}}`), cached)
}

func TestManager_DisabledCacheRefusesConstruction(t *testing.T) {
	ctx := context.Background()

	depStore, err := store.NewMemoryStore(ctx, nil, &types.StoreConfig{Enabled: true, Type: "memory"})
	require.NoError(t, err)

	registry, err := schema.NewRegistry(testSchema)
	require.NoError(t, err)
	resolver, err := schema.NewResolver(registry)
	require.NoError(t, err)

	log := logger.NewZapWrapper(zap.NewNop())
	engine, err := invalidation.NewEngine(depStore, log, nil)
	require.NoError(t, err)

	config := &staticConfig{config: &types.ServiceConfig{
		Cache: &types.CacheConfig{Enabled: false},
	}}

	_, err = NewManager(ctx, config, log, nil, resolver, depStore, engine)
	assert.True(t, types.IsError(err, types.ErrCacheIsDisabled))
}
