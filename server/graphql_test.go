package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-graphql-cache/logger"
	"github.com/saiset-co/sai-graphql-cache/middleware"
	"github.com/saiset-co/sai-graphql-cache/types"
	"github.com/saiset-co/sai-graphql-cache/utils"
)

type staticConfig struct {
	config *types.ServiceConfig
}

func (c *staticConfig) Load() error { return nil }

func (c *staticConfig) GetConfig() *types.ServiceConfig { return c.config }

func (c *staticConfig) GetValue(string, interface{}) interface{} { return nil }

func (c *staticConfig) GetAs(string, interface{}) error { return nil }

// recordingCache captures the commit protocol calls the handler makes.
type recordingCache struct {
	mu        sync.Mutex
	committed *types.QueryRequest
	result    []byte
	loaded    []types.TouchedItem
}

func (c *recordingCache) Start() error    { return nil }
func (c *recordingCache) Stop() error     { return nil }
func (c *recordingCache) IsRunning() bool { return true }

func (c *recordingCache) OnRequestStart(ctx context.Context, req *types.QueryRequest) (context.Context, string, error) {
	key := req.CacheKey
	if key == "" {
		key = req.QueryID
	}
	return ctx, key, nil
}

func (c *recordingCache) OnItemLoaded(ctx context.Context, typeName, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = append(c.loaded, types.TouchedItem{Type: typeName, ID: id})
}

func (c *recordingCache) OnRequestComplete(ctx context.Context, req *types.QueryRequest, result []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	reqCopy := *req
	c.committed = &reqCopy
	c.result = append([]byte(nil), result...)
	return nil
}

func (c *recordingCache) Lookup(ctx context.Context, cacheKey string) ([]byte, bool, error) {
	return nil, false, nil
}

func (c *recordingCache) PurgeByItem(ctx context.Context, typeName, id string) error { return nil }
func (c *recordingCache) PurgeByType(ctx context.Context, typeName string) error     { return nil }
func (c *recordingCache) PurgeAll(ctx context.Context) error                         { return nil }

func newTestGraphQL(t *testing.T, upstreamURL string) (*GraphQLHandler, *recordingCache) {
	t.Helper()

	config := &staticConfig{config: &types.ServiceConfig{
		Server: &types.ServerConfig{
			Upstream: &types.UpstreamConfig{URL: upstreamURL, Timeout: 5},
		},
	}}

	queryCache := &recordingCache{}
	handler := NewGraphQLHandler(config, logger.NewZapWrapper(zap.NewNop()), nil, queryCache)

	return handler, queryCache
}

func postGraphQL(t *testing.T, body string) *fasthttp.RequestCtx {
	t.Helper()

	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod("POST")
	ctx.Request.SetRequestURI("/graphql")
	ctx.Request.Header.SetContentType("application/json")
	ctx.Request.SetBody([]byte(body))

	return &ctx
}

func TestGraphQL_ForwardedRequestKeepsClientIdentity(t *testing.T) {
	var forwarded map[string]interface{}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, utils.Unmarshal(readAll(t, r), &forwarded))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"post":{"id":"1"}}}`))
	}))
	defer upstream.Close()

	handler, queryCache := newTestGraphQL(t, upstream.URL)

	ctx := postGraphQL(t, `{"queryId":"saved-1","query":"query { post(id: \"1\") { id } }"}`)
	// the middleware folded vary headers into the key before the miss
	// reached the handler
	ctx.SetUserValue(middleware.CacheKeyUserValue, "saved-1:00c0ffee00c0ffee")

	handler.Handle(ctx)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	// upstream sees the client's own identifier, never the derived key
	assert.Equal(t, "saved-1", forwarded["queryId"])
	assert.NotContains(t, forwarded, "cacheKey")

	// the commit still runs under the derived key
	require.NotNil(t, queryCache.committed)
	assert.Equal(t, "saved-1", queryCache.committed.QueryID)
	assert.Equal(t, "saved-1:00c0ffee00c0ffee", queryCache.committed.CacheKey)
}

func TestGraphQL_CommitFeedsTouchedItems(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{},"extensions":{"touchedItems":[{"type":"Post","id":"1"},{"type":"User","id":"7"}]}}`))
	}))
	defer upstream.Close()

	handler, queryCache := newTestGraphQL(t, upstream.URL)

	ctx := postGraphQL(t, `{"query":"query { posts { id } }"}`)
	handler.Handle(ctx)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, []types.TouchedItem{
		{Type: "Post", ID: "1"},
		{Type: "User", ID: "7"},
	}, queryCache.loaded)
	require.NotNil(t, queryCache.committed)
	assert.Contains(t, string(queryCache.result), "touchedItems")
}

func TestGraphQL_NoUpstreamConfigured(t *testing.T) {
	handler, _ := newTestGraphQL(t, "")
	handler.upstream = nil

	ctx := postGraphQL(t, `{"query":"query { posts { id } }"}`)
	handler.Handle(ctx)

	assert.Equal(t, fasthttp.StatusBadGateway, ctx.Response.StatusCode())
}

func readAll(t *testing.T, r *http.Request) []byte {
	t.Helper()

	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	return body
}
