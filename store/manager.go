package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-graphql-cache/types"
)

var customStoreCreators = sync.Map{}

func RegisterDependencyStore(storeName string, creator types.DependencyStoreCreator) {
	customStoreCreators.Store(storeName, creator)
}

// NewManager builds the configured dependency store backend, wrapped
// with per-operation metrics when a metrics manager is present.
func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, health types.HealthManager) (types.DependencyStore, error) {
	storeConfig := config.GetConfig().Store

	if storeConfig == nil || !storeConfig.Enabled {
		return nil, types.ErrStoreIsDisabled
	}

	var store types.DependencyStore
	var err error

	switch storeConfig.Type {
	case "memory":
		store, err = NewMemoryStore(ctx, logger, storeConfig)
	case "redis":
		store, err = NewRedisStore(ctx, logger, storeConfig)
	case "clover":
		store, err = NewCloverStore(ctx, logger, storeConfig)
	default:
		if creator, exists := customStoreCreators.Load(storeConfig.Type); exists {
			store, err = creator.(types.DependencyStoreCreator)(storeConfig.Config)
		} else {
			return nil, types.Errorf(types.ErrStoreTypeUnknown, "type: %s", storeConfig.Type)
		}
	}

	if err != nil {
		return nil, types.WrapError(err, "failed to initialize dependency store")
	}

	logger.Info("Dependency store initialized", zap.String("type", storeConfig.Type))

	if health != nil {
		registerHealthCheck(health, store, storeConfig.Type)
	}

	if metrics != nil {
		return NewInstrumentedStore(store, metrics), nil
	}

	return store, nil
}

func registerHealthCheck(health types.HealthManager, store types.DependencyStore, storeType string) {
	health.RegisterChecker("dependency_store", func(ctx context.Context) types.HealthCheck {
		if !store.IsRunning() {
			return types.HealthCheck{
				Status:  types.StatusUnhealthy,
				Message: "dependency store is not running",
				Details: map[string]interface{}{"type": storeType},
			}
		}

		if _, err := store.Keys(ctx, types.NamespaceType); err != nil {
			return types.HealthCheck{
				Status:  types.StatusUnhealthy,
				Message: err.Error(),
				Details: map[string]interface{}{"type": storeType},
			}
		}

		return types.HealthCheck{
			Status:  types.StatusHealthy,
			Details: map[string]interface{}{"type": storeType},
		}
	})
}

var storeLatencyBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}

// InstrumentedStore decorates a dependency store with operation
// counters and latency histograms.
type InstrumentedStore struct {
	store   types.DependencyStore
	metrics types.MetricsManager
}

func NewInstrumentedStore(store types.DependencyStore, metrics types.MetricsManager) *InstrumentedStore {
	return &InstrumentedStore{store: store, metrics: metrics}
}

func (s *InstrumentedStore) observe(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}

	s.metrics.Counter("store_operations_total", map[string]string{
		"operation": operation,
		"status":    status,
	}).Inc()

	s.metrics.Histogram("store_operation_duration_seconds", storeLatencyBuckets, map[string]string{
		"operation": operation,
	}).ObserveDuration(start)
}

func (s *InstrumentedStore) Start() error {
	return s.store.Start()
}

func (s *InstrumentedStore) Stop() error {
	return s.store.Stop()
}

func (s *InstrumentedStore) IsRunning() bool {
	return s.store.IsRunning()
}

func (s *InstrumentedStore) Get(ctx context.Context, ns types.Namespace, key string) ([]string, error) {
	start := time.Now()
	members, err := s.store.Get(ctx, ns, key)
	s.observe("get", start, err)
	return members, err
}

func (s *InstrumentedStore) Associate(ctx context.Context, ns types.Namespace, key, cacheKey string) error {
	start := time.Now()
	err := s.store.Associate(ctx, ns, key, cacheKey)
	s.observe("associate", start, err)
	return err
}

func (s *InstrumentedStore) Remove(ctx context.Context, ns types.Namespace, key string, cacheKeys ...string) error {
	start := time.Now()
	err := s.store.Remove(ctx, ns, key, cacheKeys...)
	s.observe("remove", start, err)
	return err
}

func (s *InstrumentedStore) Purge(ctx context.Context, ns types.Namespace, key string) ([]string, error) {
	start := time.Now()
	members, err := s.store.Purge(ctx, ns, key)
	s.observe("purge", start, err)
	return members, err
}

func (s *InstrumentedStore) PurgeAll(ctx context.Context) error {
	start := time.Now()
	err := s.store.PurgeAll(ctx)
	s.observe("purge_all", start, err)
	return err
}

func (s *InstrumentedStore) Keys(ctx context.Context, ns types.Namespace) ([]string, error) {
	start := time.Now()
	keys, err := s.store.Keys(ctx, ns)
	s.observe("keys", start, err)
	return keys, err
}

func (s *InstrumentedStore) StoreResult(ctx context.Context, cacheKey string, result []byte) error {
	start := time.Now()
	err := s.store.StoreResult(ctx, cacheKey, result)
	s.observe("store_result", start, err)
	return err
}

func (s *InstrumentedStore) FetchResult(ctx context.Context, cacheKey string) ([]byte, bool, error) {
	start := time.Now()
	result, found, err := s.store.FetchResult(ctx, cacheKey)
	s.observe("fetch_result", start, err)
	return result, found, err
}

func (s *InstrumentedStore) DeleteResult(ctx context.Context, cacheKey string) error {
	start := time.Now()
	err := s.store.DeleteResult(ctx, cacheKey)
	s.observe("delete_result", start, err)
	return err
}
