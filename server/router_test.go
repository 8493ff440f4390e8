package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-graphql-cache/types"
)

func TestRouter_AddAndLookup(t *testing.T) {
	router := NewRouter()

	called := false
	router.Add("POST", "/graphql", func(ctx *fasthttp.RequestCtx) { called = true }, &types.RouteConfig{Cacheable: true})

	handler, config, found := router.Lookup("POST", "/graphql")
	require.True(t, found)
	require.NotNil(t, config)
	assert.True(t, config.Cacheable)

	handler(nil)
	assert.True(t, called)

	_, _, found = router.Lookup("GET", "/graphql")
	assert.False(t, found)
}

func TestRouter_ConvenienceRoutesSkipCache(t *testing.T) {
	router := NewRouter()
	router.GET("/health", func(ctx *fasthttp.RequestCtx) {})

	_, config, found := router.Lookup("GET", "/health")
	require.True(t, found)
	assert.False(t, config.Cacheable)
	assert.Contains(t, config.DisabledMiddlewares, "cache")
}

func TestRouter_FindMatchesLookup(t *testing.T) {
	router := NewRouter()
	router.POST("/admin/purge", func(ctx *fasthttp.RequestCtx) {})

	handler, config := router.find([]byte("POST"), []byte("/admin/purge"))
	require.NotNil(t, handler)
	require.NotNil(t, config)

	handler, _ = router.find([]byte("DELETE"), []byte("/admin/purge"))
	assert.Nil(t, handler)

	// long keys take the pooled-buffer path
	longPath := "/admin/some/rather/long/path/that/overflows/the/stack/buffer"
	router.GET(longPath, func(ctx *fasthttp.RequestCtx) {})

	handler, _ = router.find([]byte("GET"), []byte(longPath))
	assert.NotNil(t, handler)
}

func TestRouter_NilHandlerIgnored(t *testing.T) {
	router := NewRouter()
	router.Add("GET", "/noop", nil, nil)

	_, _, found := router.Lookup("GET", "/noop")
	assert.False(t, found)
}
