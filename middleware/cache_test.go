package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-graphql-cache/keys"
	"github.com/saiset-co/sai-graphql-cache/logger"
	"github.com/saiset-co/sai-graphql-cache/types"
)

type staticConfig struct {
	config *types.ServiceConfig
}

func (s *staticConfig) Load() error { return nil }

func (s *staticConfig) GetConfig() *types.ServiceConfig { return s.config }

func (s *staticConfig) GetValue(string, interface{}) interface{} { return nil }

func (s *staticConfig) GetAs(string, interface{}) error { return nil }

type fakeQueryCache struct {
	results map[string][]byte
	running bool
}

func (c *fakeQueryCache) Start() error    { return nil }
func (c *fakeQueryCache) Stop() error     { return nil }
func (c *fakeQueryCache) IsRunning() bool { return c.running }

func (c *fakeQueryCache) OnRequestStart(ctx context.Context, req *types.QueryRequest) (context.Context, string, error) {
	return ctx, "", nil
}

func (c *fakeQueryCache) OnItemLoaded(ctx context.Context, typeName, id string) {}

func (c *fakeQueryCache) OnRequestComplete(ctx context.Context, req *types.QueryRequest, result []byte) error {
	return nil
}

func (c *fakeQueryCache) Lookup(ctx context.Context, cacheKey string) ([]byte, bool, error) {
	result, found := c.results[cacheKey]
	return result, found, nil
}

func (c *fakeQueryCache) PurgeByItem(ctx context.Context, typeName, id string) error { return nil }
func (c *fakeQueryCache) PurgeByType(ctx context.Context, typeName string) error     { return nil }
func (c *fakeQueryCache) PurgeAll(ctx context.Context) error                         { return nil }

func newCacheMiddleware(t *testing.T, cache *fakeQueryCache, varyHeaders []string) *CacheMiddleware {
	t.Helper()

	var params map[string]interface{}
	if len(varyHeaders) > 0 {
		headers := make([]interface{}, 0, len(varyHeaders))
		for _, h := range varyHeaders {
			headers = append(headers, h)
		}
		params = map[string]interface{}{"vary_headers": headers}
	}

	config := &staticConfig{config: &types.ServiceConfig{
		Middlewares: &types.MiddlewaresConfig{
			Enabled: true,
			Cache:   &types.MiddlewareItemConfig{Enabled: true, Weight: 30, Params: params},
		},
	}}

	return NewCacheMiddleware(config, logger.NewZapWrapper(zap.NewNop()), nil, cache)
}

func postQuery(query string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod("POST")
	ctx.Request.SetRequestURI("/graphql")
	ctx.Request.SetBody([]byte(`{"query":"` + query + `"}`))
	return &ctx
}

func expectedKey(t *testing.T, query string) string {
	t.Helper()

	key, err := keys.NewBuilder().Build(&types.QueryRequest{Query: query})
	require.NoError(t, err)
	return key
}

func TestCacheMiddleware_Hit(t *testing.T) {
	query := "{ posts { id } }"
	cached := []byte(`{"data":{"posts":[]}}`)

	cache := &fakeQueryCache{
		running: true,
		results: map[string][]byte{expectedKey(t, query): cached},
	}
	mw := newCacheMiddleware(t, cache, nil)

	ctx := postQuery(query)
	nextCalled := false
	mw.Handle(ctx, func(*fasthttp.RequestCtx) { nextCalled = true }, &types.RouteConfig{Cacheable: true})

	assert.False(t, nextCalled)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "HIT", string(ctx.Response.Header.Peek("X-Cache")))
	assert.Equal(t, cached, ctx.Response.Body())
}

func TestCacheMiddleware_MissLeavesKeyForHandler(t *testing.T) {
	query := "{ posts { id } }"

	cache := &fakeQueryCache{running: true, results: map[string][]byte{}}
	mw := newCacheMiddleware(t, cache, nil)

	ctx := postQuery(query)
	nextCalled := false
	mw.Handle(ctx, func(*fasthttp.RequestCtx) { nextCalled = true }, &types.RouteConfig{Cacheable: true})

	assert.True(t, nextCalled)
	assert.Equal(t, "MISS", string(ctx.Response.Header.Peek("X-Cache")))
	assert.Equal(t, expectedKey(t, query), ctx.UserValue(CacheKeyUserValue))
}

func TestCacheMiddleware_SkipsNonCacheableRoutes(t *testing.T) {
	cache := &fakeQueryCache{running: true, results: map[string][]byte{}}
	mw := newCacheMiddleware(t, cache, nil)

	ctx := postQuery("{ posts { id } }")
	nextCalled := false
	mw.Handle(ctx, func(*fasthttp.RequestCtx) { nextCalled = true }, &types.RouteConfig{Cacheable: false})

	assert.True(t, nextCalled)
	assert.Empty(t, ctx.Response.Header.Peek("X-Cache"))
	assert.Nil(t, ctx.UserValue(CacheKeyUserValue))
}

func TestCacheMiddleware_SkipsWhenCacheStopped(t *testing.T) {
	cache := &fakeQueryCache{running: false}
	mw := newCacheMiddleware(t, cache, nil)

	ctx := postQuery("{ posts { id } }")
	nextCalled := false
	mw.Handle(ctx, func(*fasthttp.RequestCtx) { nextCalled = true }, &types.RouteConfig{Cacheable: true})

	assert.True(t, nextCalled)
}

func TestCacheMiddleware_VaryHeadersSplitTheKey(t *testing.T) {
	query := "{ me { name } }"

	cache := &fakeQueryCache{running: true, results: map[string][]byte{}}
	mw := newCacheMiddleware(t, cache, []string{"Authorization"})

	first := postQuery(query)
	first.Request.Header.Set("Authorization", "Bearer alice")
	mw.Handle(first, func(*fasthttp.RequestCtx) {}, &types.RouteConfig{Cacheable: true})

	second := postQuery(query)
	second.Request.Header.Set("Authorization", "Bearer bob")
	mw.Handle(second, func(*fasthttp.RequestCtx) {}, &types.RouteConfig{Cacheable: true})

	aliceKey := first.UserValue(CacheKeyUserValue).(string)
	bobKey := second.UserValue(CacheKeyUserValue).(string)
	assert.NotEqual(t, aliceKey, bobKey)

	// absent vary headers fall back to the bare key
	bare := postQuery(query)
	mw.Handle(bare, func(*fasthttp.RequestCtx) {}, &types.RouteConfig{Cacheable: true})
	assert.Equal(t, expectedKey(t, query), bare.UserValue(CacheKeyUserValue))
}
