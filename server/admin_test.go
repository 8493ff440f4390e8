package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-graphql-cache/invalidation"
	"github.com/saiset-co/sai-graphql-cache/logger"
	"github.com/saiset-co/sai-graphql-cache/store"
	"github.com/saiset-co/sai-graphql-cache/types"
	"github.com/saiset-co/sai-graphql-cache/utils"
)

// lookupOnlyCache serves the one QueryCache method the admin surface
// reads through.
type lookupOnlyCache struct {
	results map[string][]byte
}

func (c *lookupOnlyCache) Start() error    { return nil }
func (c *lookupOnlyCache) Stop() error     { return nil }
func (c *lookupOnlyCache) IsRunning() bool { return true }

func (c *lookupOnlyCache) OnRequestStart(ctx context.Context, req *types.QueryRequest) (context.Context, string, error) {
	return ctx, "", nil
}

func (c *lookupOnlyCache) OnItemLoaded(ctx context.Context, typeName, id string) {}

func (c *lookupOnlyCache) OnRequestComplete(ctx context.Context, req *types.QueryRequest, result []byte) error {
	return nil
}

func (c *lookupOnlyCache) Lookup(ctx context.Context, cacheKey string) ([]byte, bool, error) {
	result, found := c.results[cacheKey]
	return result, found, nil
}

func (c *lookupOnlyCache) PurgeByItem(ctx context.Context, typeName, id string) error { return nil }
func (c *lookupOnlyCache) PurgeByType(ctx context.Context, typeName string) error     { return nil }
func (c *lookupOnlyCache) PurgeAll(ctx context.Context) error                         { return nil }

func newTestAdmin(t *testing.T) (*AdminHandler, types.DependencyStore) {
	t.Helper()

	depStore, err := store.NewMemoryStore(context.Background(), nil, &types.StoreConfig{
		Enabled: true,
		Type:    "memory",
	})
	require.NoError(t, err)
	require.NoError(t, depStore.Start())
	t.Cleanup(func() { _ = depStore.Stop() })

	log := logger.NewZapWrapper(zap.NewNop())

	engine, err := invalidation.NewEngine(depStore, log, nil)
	require.NoError(t, err)

	queryCache := &lookupOnlyCache{results: map[string][]byte{
		"known-key": []byte(`{"data":{"post":{"id":"1"}}}`),
	}}

	return NewAdminHandler(log, nil, engine, queryCache, nil), depStore
}

func postJSON(t *testing.T, path string, payload interface{}) *fasthttp.RequestCtx {
	t.Helper()

	body, err := utils.Marshal(payload)
	require.NoError(t, err)

	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod("POST")
	ctx.Request.SetRequestURI(path)
	ctx.Request.SetBody(body)

	return &ctx
}

func TestAdmin_PurgeItem(t *testing.T) {
	admin, depStore := newTestAdmin(t)
	bg := context.Background()

	require.NoError(t, depStore.Associate(bg, types.NamespaceItem, "Post:1", "key-a"))
	require.NoError(t, depStore.StoreResult(bg, "key-a", []byte(`{}`)))

	ctx := postJSON(t, "/admin/purge", purgeRequest{Scope: "item", Type: "Post", ID: "1"})
	admin.handlePurge(ctx)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	var resp purgeResponse
	require.NoError(t, utils.Unmarshal(ctx.Response.Body(), &resp))
	assert.Equal(t, []string{"key-a"}, resp.PurgedKeys)
	assert.Equal(t, 1, resp.Count)

	_, found, err := depStore.FetchResult(bg, "key-a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAdmin_PurgeValidation(t *testing.T) {
	admin, _ := newTestAdmin(t)

	ctx := postJSON(t, "/admin/purge", purgeRequest{Scope: "item", Type: "Post"})
	admin.handlePurge(ctx)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = postJSON(t, "/admin/purge", purgeRequest{Scope: "everything"})
	admin.handlePurge(ctx)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestAdmin_PurgeAll(t *testing.T) {
	admin, depStore := newTestAdmin(t)
	bg := context.Background()

	require.NoError(t, depStore.Associate(bg, types.NamespaceType, "Post", "key-list"))

	ctx := postJSON(t, "/admin/purge", purgeRequest{Scope: "all"})
	admin.handlePurge(ctx)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	keys, err := depStore.Keys(bg, types.NamespaceType)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestAdmin_CacheLookup(t *testing.T) {
	admin, _ := newTestAdmin(t)

	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod("GET")
	ctx.Request.SetRequestURI("/admin/cache?key=known-key")
	admin.handleCacheLookup(&ctx)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "post")

	var miss fasthttp.RequestCtx
	miss.Request.Header.SetMethod("GET")
	miss.Request.SetRequestURI("/admin/cache?key=unknown")
	admin.handleCacheLookup(&miss)
	assert.Equal(t, fasthttp.StatusNotFound, miss.Response.StatusCode())

	var noKey fasthttp.RequestCtx
	noKey.Request.Header.SetMethod("GET")
	noKey.Request.SetRequestURI("/admin/cache")
	admin.handleCacheLookup(&noKey)
	assert.Equal(t, fasthttp.StatusBadRequest, noKey.Response.StatusCode())
}

func TestAdmin_SyntheticEvent(t *testing.T) {
	admin, depStore := newTestAdmin(t)
	bg := context.Background()

	require.NoError(t, depStore.Associate(bg, types.NamespaceItem, "Post:1", "key-a"))
	require.NoError(t, depStore.StoreResult(bg, "key-a", []byte(`{}`)))

	ctx := postJSON(t, "/admin/events", eventRequest{Type: "Post", ItemID: "1", Kind: "updated"})
	admin.handleEvent(ctx)

	require.Equal(t, fasthttp.StatusAccepted, ctx.Response.StatusCode())

	var resp map[string]string
	require.NoError(t, utils.Unmarshal(ctx.Response.Body(), &resp))
	assert.NotEmpty(t, resp["event_id"])

	_, found, err := depStore.FetchResult(bg, "key-a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAdmin_SyntheticEventValidation(t *testing.T) {
	admin, _ := newTestAdmin(t)

	ctx := postJSON(t, "/admin/events", eventRequest{Type: "Post", ItemID: "1", Kind: "renamed"})
	admin.handleEvent(ctx)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = postJSON(t, "/admin/events", eventRequest{ItemID: "1", Kind: "updated"})
	admin.handleEvent(ctx)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}
