package middleware

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-graphql-cache/keys"
	"github.com/saiset-co/sai-graphql-cache/types"
	"github.com/saiset-co/sai-graphql-cache/utils"
)

// CacheKeyUserValue is where the middleware leaves the derived cache
// key for the downstream handler, so lookup and commit agree on the
// key even when vary headers are in play.
const CacheKeyUserValue = "cache_key"

// CacheMiddleware serves cached query results before the handler runs.
// It derives the same cache key the commit path will use (including
// the vary-header digest) and short-circuits on a hit.
type CacheMiddleware struct {
	config      types.ConfigManager
	logger      types.Logger
	metrics     types.MetricsManager
	cache       types.QueryCache
	builder     *keys.Builder
	cacheConfig *CacheMiddlewareConfig
	weight      int
}

type CacheMiddlewareConfig struct {
	VaryHeaders []string `json:"vary_headers"`
}

func NewCacheMiddleware(config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, cache types.QueryCache) *CacheMiddleware {
	cacheConfig := &CacheMiddlewareConfig{}

	item := config.GetConfig().Middlewares.Cache
	if item.Params != nil {
		err := utils.UnmarshalConfig(item.Params, cacheConfig)
		if err != nil {
			logger.Error("Failed to unmarshal Cache middleware config", zap.Error(err))
		}
	}

	return &CacheMiddleware{
		config:      config,
		logger:      logger,
		metrics:     metrics,
		cache:       cache,
		builder:     keys.NewBuilder(),
		cacheConfig: cacheConfig,
		weight:      item.Weight,
	}
}

func (c *CacheMiddleware) Name() string { return "cache" }
func (c *CacheMiddleware) Weight() int  { return c.weight }

func (c *CacheMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), config *types.RouteConfig) {
	if config == nil || !config.Cacheable || !c.cache.IsRunning() {
		next(ctx)
		return
	}

	method := string(ctx.Method())
	if method != fasthttp.MethodGet && method != fasthttp.MethodPost {
		next(ctx)
		return
	}

	req, err := keys.FromHTTP(ctx)
	if err != nil {
		next(ctx)
		return
	}

	baseKey, err := c.builder.Build(req)
	if err != nil {
		next(ctx)
		return
	}

	cacheKey := keys.WithVary(baseKey, c.varyValues(ctx))
	ctx.SetUserValue(CacheKeyUserValue, cacheKey)

	start := time.Now()

	cached, found, err := c.cache.Lookup(ctx, cacheKey)
	if err != nil {
		c.logger.Error("Cache lookup failed",
			zap.String("cache_key", cacheKey),
			zap.Error(err))
		next(ctx)
		return
	}

	if found {
		c.logger.Debug("Cache hit",
			zap.String("cache_key", cacheKey),
			zap.Duration("duration", time.Since(start)))

		ctx.Response.Header.SetContentType("application/json")
		ctx.Response.Header.Set("X-Cache", "HIT")
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBody(cached)
		return
	}

	ctx.Response.Header.Set("X-Cache", "MISS")
	next(ctx)
}

// varyValues collects the request's values for the configured vary
// headers, absent headers included so presence alone changes the key.
func (c *CacheMiddleware) varyValues(ctx *fasthttp.RequestCtx) []string {
	if len(c.cacheConfig.VaryHeaders) == 0 {
		return nil
	}

	values := make([]string, 0, len(c.cacheConfig.VaryHeaders))
	any := false

	for _, header := range c.cacheConfig.VaryHeaders {
		value := string(ctx.Request.Header.Peek(header))
		if value != "" {
			any = true
		}
		values = append(values, value)
	}

	if !any {
		return nil
	}

	return values
}
