// Package cache ties the key builder, dependency recorder, type
// resolver and dependency store into the per-request caching protocol.
//
// The execution engine drives it: OnRequestStart before executing a
// query, OnItemLoaded for every concrete item materialized during
// execution, OnRequestComplete with the final result bytes. Commit
// failures are logged and surfaced but the caller is expected to
// return the result regardless, a broken cache must never break
// query execution.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-graphql-cache/invalidation"
	"github.com/saiset-co/sai-graphql-cache/keys"
	"github.com/saiset-co/sai-graphql-cache/recorder"
	"github.com/saiset-co/sai-graphql-cache/types"
)

type Manager struct {
	ctx      context.Context
	logger   types.Logger
	metrics  types.MetricsManager
	config   *types.CacheConfig
	builder  *keys.Builder
	resolver types.TypeResolver
	store    types.DependencyStore
	purger   *invalidation.Engine
	running  int32
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, resolver types.TypeResolver, store types.DependencyStore, purger *invalidation.Engine) (*Manager, error) {
	cacheConfig := config.GetConfig().Cache

	if cacheConfig == nil || !cacheConfig.Enabled {
		return nil, types.ErrCacheIsDisabled
	}

	if resolver == nil {
		return nil, types.ErrSchemaNotLoaded
	}
	if store == nil {
		return nil, types.ErrStoreUnavailable
	}
	if purger == nil {
		return nil, types.ErrBrokerNotInitialized
	}

	return &Manager{
		ctx:      ctx,
		logger:   logger,
		metrics:  metrics,
		config:   cacheConfig,
		builder:  keys.NewBuilder(),
		resolver: resolver,
		store:    store,
		purger:   purger,
	}, nil
}

func (m *Manager) Start() error {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	m.logger.Info("Query cache started",
		zap.Bool("track_urls", m.config.TrackURLs))
	return nil
}

func (m *Manager) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		return types.ErrServerNotRunning
	}

	m.logger.Info("Query cache stopped")
	return nil
}

func (m *Manager) IsRunning() bool {
	return atomic.LoadInt32(&m.running) == 1
}

// OnRequestStart derives the cache key for the request and attaches a
// fresh dependency recorder to the context. The returned context must
// be the one the query executes under, otherwise OnItemLoaded calls
// have nowhere to record.
func (m *Manager) OnRequestStart(ctx context.Context, req *types.QueryRequest) (context.Context, string, error) {
	cacheKey, err := m.requestKey(req)
	if err != nil {
		return ctx, "", err
	}

	return recorder.With(ctx), cacheKey, nil
}

// requestKey prefers the precomputed key from the fronting middleware;
// without one the builder derives it from the request identity.
func (m *Manager) requestKey(req *types.QueryRequest) (string, error) {
	if req.CacheKey != "" {
		return req.CacheKey, nil
	}
	return m.builder.Build(req)
}

// OnItemLoaded records one touched item. A missing recorder means the
// request never went through OnRequestStart; loading itself is never
// interrupted for that.
func (m *Manager) OnItemLoaded(ctx context.Context, typeName, id string) {
	if err := recorder.Record(ctx, typeName, id); err != nil {
		m.logger.Debug("Item load outside a recorded request",
			zap.String("type", typeName),
			zap.String("id", id))
	}
}

// OnRequestComplete commits the finished result: the dependency edges
// first, the result bytes last. An entry missing an edge is only a
// stale-risk if the result is already findable, so the result write
// comes after every Associate succeeded.
func (m *Manager) OnRequestComplete(ctx context.Context, req *types.QueryRequest, result []byte) error {
	if !m.IsRunning() {
		return types.ErrServiceIsNotRunning
	}

	start := time.Now()

	cacheKey, err := m.requestKey(req)
	if err != nil {
		return err
	}

	typeNames, err := m.resolver.ResolveTypes(req.Query)
	if err != nil {
		if types.IsError(err, types.ErrQuerySyntax) {
			// the executor produced a result for a query we cannot
			// analyze; caching it would leave it unpurgeable
			m.logger.Warn("Skipping commit of unparseable query",
				zap.String("cache_key", cacheKey),
				zap.Error(err))
			m.observeCommit("skipped_syntax", start)
			return nil
		}
		m.observeCommit("error", start)
		return err
	}

	items, err := recorder.Drain(ctx)
	if err != nil {
		m.observeCommit("error", start)
		return err
	}

	for _, item := range items {
		if err := m.store.Associate(ctx, types.NamespaceItem, types.ItemKey(item.Type, item.ID), cacheKey); err != nil {
			m.observeCommit("error", start)
			return types.WrapError(err, "failed to associate item edge")
		}
	}

	for _, typeName := range typeNames {
		if err := m.store.Associate(ctx, types.NamespaceType, typeName, cacheKey); err != nil {
			m.observeCommit("error", start)
			return types.WrapError(err, "failed to associate type edge")
		}
	}

	if m.config.TrackURLs && req.URL != "" {
		if err := m.store.Associate(ctx, types.NamespaceURL, req.URL, cacheKey); err != nil {
			m.observeCommit("error", start)
			return types.WrapError(err, "failed to associate url edge")
		}
	}

	if err := m.store.StoreResult(ctx, cacheKey, result); err != nil {
		m.observeCommit("error", start)
		return types.WrapError(err, "failed to store result")
	}

	m.logger.Debug("Result committed",
		zap.String("cache_key", cacheKey),
		zap.Int("items", len(items)),
		zap.Int("types", len(typeNames)),
		zap.Int("result_bytes", len(result)))

	m.observeCommit("success", start)
	return nil
}

// Lookup fetches a cached result by key. A miss is not an error.
func (m *Manager) Lookup(ctx context.Context, cacheKey string) ([]byte, bool, error) {
	if !m.IsRunning() {
		return nil, false, types.ErrServiceIsNotRunning
	}

	result, found, err := m.store.FetchResult(ctx, cacheKey)
	if err != nil {
		return nil, false, err
	}

	m.observeLookup(found)
	return result, found, nil
}

func (m *Manager) PurgeByItem(ctx context.Context, typeName, id string) error {
	_, err := m.purger.PurgeByItem(ctx, typeName, id)
	return err
}

func (m *Manager) PurgeByType(ctx context.Context, typeName string) error {
	_, err := m.purger.PurgeByType(ctx, typeName)
	return err
}

func (m *Manager) PurgeAll(ctx context.Context) error {
	return m.purger.PurgeAll(ctx)
}

func (m *Manager) observeCommit(status string, start time.Time) {
	if m.metrics == nil {
		return
	}

	m.metrics.Counter("cache_commits_total", map[string]string{
		"status": status,
	}).Inc()

	m.metrics.Histogram("cache_commit_duration_seconds",
		[]float64{0.001, 0.01, 0.1, 1},
		nil,
	).ObserveDuration(start)
}

func (m *Manager) observeLookup(found bool) {
	if m.metrics == nil {
		return
	}

	status := "miss"
	if found {
		status = "hit"
	}

	m.metrics.Counter("cache_lookups_total", map[string]string{
		"status": status,
	}).Inc()
}
