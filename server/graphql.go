package server

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-graphql-cache/keys"
	"github.com/saiset-co/sai-graphql-cache/middleware"
	"github.com/saiset-co/sai-graphql-cache/types"
	"github.com/saiset-co/sai-graphql-cache/utils"
)

// upstreamResult is the slice of the upstream response we care about:
// the execution engine reports the concrete records it materialized in
// the response extensions.
type upstreamResult struct {
	Extensions struct {
		TouchedItems []types.TouchedItem `json:"touchedItems"`
	} `json:"extensions"`
}

// GraphQLHandler forwards cache misses to the upstream execution
// service and commits successful results. The cache middleware answers
// hits before this handler runs; by the time we see a request it needs
// executing.
type GraphQLHandler struct {
	config   types.ConfigManager
	logger   types.Logger
	metrics  types.MetricsManager
	cache    types.QueryCache
	client   *fasthttp.Client
	upstream *types.UpstreamConfig
	timeout  time.Duration
}

func NewGraphQLHandler(config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, cache types.QueryCache) *GraphQLHandler {
	upstream := config.GetConfig().Server.Upstream

	timeout := 30 * time.Second
	if upstream != nil && upstream.Timeout > 0 {
		timeout = time.Duration(upstream.Timeout) * time.Second
	}

	return &GraphQLHandler{
		config:   config,
		logger:   logger,
		metrics:  metrics,
		cache:    cache,
		client:   &fasthttp.Client{ReadTimeout: timeout, WriteTimeout: timeout},
		upstream: upstream,
		timeout:  timeout,
	}
}

func (g *GraphQLHandler) RegisterRoutes(router types.HTTPRouter) {
	config := &types.RouteConfig{
		Cacheable: true,
		Timeout:   g.timeout,
	}

	router.Add("POST", "/graphql", g.Handle, config)
	router.Add("GET", "/graphql", g.Handle, config)
}

func (g *GraphQLHandler) Handle(ctx *fasthttp.RequestCtx) {
	if g.upstream == nil || g.upstream.URL == "" {
		ctx.Error("no upstream configured", fasthttp.StatusBadGateway)
		return
	}

	req, err := keys.FromHTTP(ctx)
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusBadRequest)
		return
	}

	// The middleware already derived the final key (vary digest
	// included); committing under anything else would split lookup
	// and commit. CacheKey never reaches the wire, the forwarded
	// request keeps the client's queryId.
	if varied, ok := ctx.UserValue(middleware.CacheKeyUserValue).(string); ok && varied != "" {
		req.CacheKey = varied
	}

	commitCtx, cacheKey, startErr := g.cacheStart(ctx, req)

	status, body, err := g.execute(req)
	if err != nil {
		g.logger.Error("Upstream execution failed",
			zap.String("upstream", g.upstream.URL),
			zap.Error(err))
		ctx.Error("upstream unavailable", fasthttp.StatusBadGateway)
		return
	}

	if status == fasthttp.StatusOK && startErr == nil {
		g.commit(commitCtx, req, cacheKey, body)
	}

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}

// cacheStart opens the recording scope. A disabled or stopped cache is
// not an error for the caller, the query still executes.
func (g *GraphQLHandler) cacheStart(ctx *fasthttp.RequestCtx, req *types.QueryRequest) (context.Context, string, error) {
	if g.cache == nil {
		return ctx, "", types.ErrCacheIsDisabled
	}

	return g.cache.OnRequestStart(ctx, req)
}

func (g *GraphQLHandler) execute(req *types.QueryRequest) (int, []byte, error) {
	payload, err := utils.Marshal(req)
	if err != nil {
		return 0, nil, types.WrapError(err, "failed to encode upstream request")
	}

	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	httpReq.SetRequestURI(g.upstream.URL)
	httpReq.Header.SetMethod(fasthttp.MethodPost)
	httpReq.Header.SetContentType("application/json")
	httpReq.SetBody(payload)

	if err := g.client.DoTimeout(httpReq, httpResp, g.timeout); err != nil {
		return 0, nil, err
	}

	body := make([]byte, len(httpResp.Body()))
	copy(body, httpResp.Body())

	return httpResp.StatusCode(), body, nil
}

func (g *GraphQLHandler) commit(commitCtx context.Context, req *types.QueryRequest, cacheKey string, body []byte) {
	var result upstreamResult
	if err := utils.Unmarshal(body, &result); err != nil {
		g.logger.Debug("Upstream response carries no usable extensions", zap.Error(err))
	}

	for _, item := range result.Extensions.TouchedItems {
		g.cache.OnItemLoaded(commitCtx, item.Type, item.ID)
	}

	if err := g.cache.OnRequestComplete(commitCtx, req, body); err != nil {
		g.logger.Error("Failed to commit query result",
			zap.String("cache_key", cacheKey),
			zap.Error(err))
		g.observeCommit("error")
		return
	}

	g.observeCommit("success")
}

func (g *GraphQLHandler) observeCommit(result string) {
	if g.metrics == nil {
		return
	}

	g.metrics.Counter("graphql_commits_total", map[string]string{
		"result": result,
	}).Inc()
}
