// Package middleware holds the HTTP middleware chain. Middlewares are
// ordered by weight; routes can opt out of individual middlewares
// through their RouteConfig.
package middleware

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-graphql-cache/types"
)

type Manager struct {
	ctx                context.Context
	config             types.ConfigManager
	logger             types.Logger
	metrics            types.MetricsManager
	cache              types.QueryCache
	orderedMiddlewares []types.MiddlewareEntry
	middlewareMap      map[string]*types.MiddlewareEntry
	compiledChains     map[string]func(*fasthttp.RequestCtx, func(*fasthttp.RequestCtx), *types.RouteConfig)
	mu                 sync.RWMutex
	chainsMu           sync.RWMutex
	initialized        int32
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, cache types.QueryCache) (*Manager, error) {
	return &Manager{
		ctx:            ctx,
		config:         config,
		logger:         logger,
		metrics:        metrics,
		cache:          cache,
		middlewareMap:  make(map[string]*types.MiddlewareEntry),
		compiledChains: make(map[string]func(*fasthttp.RequestCtx, func(*fasthttp.RequestCtx), *types.RouteConfig)),
	}, nil
}

func (m *Manager) RegisterMiddlewares() error {
	config := m.config.GetConfig()

	if config.Middlewares == nil || !config.Middlewares.Enabled {
		return m.finalizeConfiguration()
	}

	if config.Middlewares.Recovery != nil && config.Middlewares.Recovery.Enabled {
		if err := m.Register(NewRecoveryMiddleware(m.config, m.logger, m.metrics)); err != nil {
			return err
		}
		m.logger.Info("Recovery middleware registered")
	}

	if config.Middlewares.Logging != nil && config.Middlewares.Logging.Enabled {
		if err := m.Register(NewLoggingMiddleware(m.config, m.logger, m.metrics)); err != nil {
			return err
		}
		m.logger.Info("Logging middleware registered")
	}

	if config.Middlewares.Cache != nil && config.Middlewares.Cache.Enabled && m.cache != nil {
		if err := m.Register(NewCacheMiddleware(m.config, m.logger, m.metrics, m.cache)); err != nil {
			return err
		}
		m.logger.Info("Cache middleware registered")
	}

	return m.finalizeConfiguration()
}

func (m *Manager) Register(middleware types.Middleware) error {
	if middleware == nil {
		return types.ErrMiddlewareIsNil
	}

	if atomic.LoadInt32(&m.initialized) == 1 {
		return types.NewErrorf("cannot register middleware after finalization")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	name := middleware.Name()
	m.middlewareMap[name] = &types.MiddlewareEntry{
		Name:       name,
		Middleware: middleware,
		Weight:     middleware.Weight(),
	}

	return nil
}

func (m *Manager) finalizeConfiguration() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if atomic.LoadInt32(&m.initialized) == 1 {
		return types.NewErrorf("configuration already finalized")
	}

	weights := make(map[int]string)
	for name, entry := range m.middlewareMap {
		if existingName, exists := weights[entry.Weight]; exists {
			return types.NewErrorf("duplicate weight %d for middlewares '%s' and '%s'",
				entry.Weight, existingName, name)
		}
		weights[entry.Weight] = name
	}

	m.orderedMiddlewares = make([]types.MiddlewareEntry, 0, len(m.middlewareMap))
	for _, entry := range m.middlewareMap {
		m.orderedMiddlewares = append(m.orderedMiddlewares, *entry)
	}

	sort.Slice(m.orderedMiddlewares, func(i, j int) bool {
		return m.orderedMiddlewares[i].Weight < m.orderedMiddlewares[j].Weight
	})

	m.middlewareMap = nil
	atomic.StoreInt32(&m.initialized, 1)

	return nil
}

func (m *Manager) Execute(ctx *fasthttp.RequestCtx, handler types.FastHTTPHandler, config *types.RouteConfig) {
	if atomic.LoadInt32(&m.initialized) == 0 || len(m.orderedMiddlewares) == 0 {
		handler(ctx)
		return
	}

	chainKey := m.buildChainKey(config)

	m.chainsMu.RLock()
	chain := m.compiledChains[chainKey]
	m.chainsMu.RUnlock()

	if chain == nil {
		chain = m.compileChain(m.activeMiddlewares(config))

		m.chainsMu.Lock()
		m.compiledChains[chainKey] = chain
		m.chainsMu.Unlock()
	}

	chain(ctx, handler, config)
}

func (m *Manager) buildChainKey(config *types.RouteConfig) string {
	if config == nil || len(config.DisabledMiddlewares) == 0 {
		return "default"
	}
	return "d:" + strings.Join(config.DisabledMiddlewares, ",")
}

func (m *Manager) activeMiddlewares(config *types.RouteConfig) []types.Middleware {
	disabled := make(map[string]struct{})
	if config != nil {
		for _, name := range config.DisabledMiddlewares {
			disabled[name] = struct{}{}
		}
	}

	active := make([]types.Middleware, 0, len(m.orderedMiddlewares))
	for _, entry := range m.orderedMiddlewares {
		if _, skip := disabled[entry.Name]; skip {
			continue
		}
		active = append(active, entry.Middleware)
	}

	return active
}

func (m *Manager) compileChain(middlewares []types.Middleware) func(*fasthttp.RequestCtx, func(*fasthttp.RequestCtx), *types.RouteConfig) {
	if len(middlewares) == 0 {
		return func(ctx *fasthttp.RequestCtx, handler func(*fasthttp.RequestCtx), _ *types.RouteConfig) {
			handler(ctx)
		}
	}

	return func(ctx *fasthttp.RequestCtx, handler func(*fasthttp.RequestCtx), config *types.RouteConfig) {
		var index int

		var next func(*fasthttp.RequestCtx)
		next = func(ctx *fasthttp.RequestCtx) {
			if index >= len(middlewares) {
				handler(ctx)
				return
			}

			mw := middlewares[index]
			index++
			mw.Handle(ctx, next, config)
		}

		next(ctx)
	}
}

func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orderedMiddlewares = nil
	m.middlewareMap = make(map[string]*types.MiddlewareEntry)

	m.chainsMu.Lock()
	m.compiledChains = make(map[string]func(*fasthttp.RequestCtx, func(*fasthttp.RequestCtx), *types.RouteConfig))
	m.chainsMu.Unlock()

	atomic.StoreInt32(&m.initialized, 0)

	m.logger.Info("Middleware manager cleared")
}
