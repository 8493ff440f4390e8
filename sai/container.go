// Package sai holds the service container: every manager the service
// composes, reachable through package-level accessors once the
// container is installed.
package sai

import (
	"sync/atomic"

	"github.com/saiset-co/sai-graphql-cache/action"
	"github.com/saiset-co/sai-graphql-cache/logger"
	"github.com/saiset-co/sai-graphql-cache/metrics"
	"github.com/saiset-co/sai-graphql-cache/store"
	"github.com/saiset-co/sai-graphql-cache/types"
)

type Container struct {
	Config      atomic.Pointer[types.ConfigManager]
	Logger      atomic.Pointer[types.LoggerManager]
	Router      atomic.Pointer[types.HTTPRouter]
	Store       atomic.Pointer[types.DependencyStore]
	Cache       atomic.Pointer[types.QueryCache]
	HTTPServer  atomic.Pointer[types.HTTPServer]
	Cron        atomic.Pointer[types.CronManager]
	Metrics     atomic.Pointer[types.MetricsManager]
	Broker      atomic.Pointer[types.EventBroker]
	Middlewares atomic.Pointer[types.MiddlewareManager]
	Health      atomic.Pointer[types.HealthManager]
}

var globalContainer *Container

func InitContainer() *Container {
	return &Container{}
}

func SetContainer(container *Container) {
	globalContainer = container
}

func Config() types.ConfigManager {
	if ptr := globalContainer.Config.Load(); ptr != nil {
		return *ptr
	}
	panic("ConfigManager not initialized")
}

func Logger() types.LoggerManager {
	if ptr := globalContainer.Logger.Load(); ptr != nil {
		return *ptr
	}
	panic("Logger not initialized")
}

func Router() types.HTTPRouter {
	if ptr := globalContainer.Router.Load(); ptr != nil {
		return *ptr
	}
	panic("Router not initialized")
}

func Store() types.DependencyStore {
	if ptr := globalContainer.Store.Load(); ptr != nil {
		return *ptr
	}
	panic("DependencyStore not initialized")
}

func Cache() types.QueryCache {
	if ptr := globalContainer.Cache.Load(); ptr != nil {
		return *ptr
	}
	panic("QueryCache not initialized")
}

func Cron() types.CronManager {
	if ptr := globalContainer.Cron.Load(); ptr != nil {
		return *ptr
	}
	panic("CronManager not initialized")
}

func Broker() types.EventBroker {
	if ptr := globalContainer.Broker.Load(); ptr != nil {
		return *ptr
	}
	panic("EventBroker not initialized")
}

func RegisterEventBroker(brokerName string, creator types.EventBrokerCreator) {
	action.RegisterEventBroker(brokerName, creator)
}

func RegisterDependencyStore(storeName string, creator types.DependencyStoreCreator) {
	store.RegisterDependencyStore(storeName, creator)
}

func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	metrics.RegisterMetricsManager(metricsManagerName, creator)
}

func RegisterLogger(loggerName string, creator types.LoggerCreator) {
	logger.RegisterLogger(loggerName, creator)
}

func (fc *Container) SetConfig(config types.ConfigManager) {
	fc.Config.Store(&config)
}

func (fc *Container) SetLogger(logger types.LoggerManager) {
	fc.Logger.Store(&logger)
}

func (fc *Container) SetRouter(router types.HTTPRouter) {
	fc.Router.Store(&router)
}

func (fc *Container) SetStore(depStore types.DependencyStore) {
	fc.Store.Store(&depStore)
}

func (fc *Container) SetCache(cache types.QueryCache) {
	fc.Cache.Store(&cache)
}

func (fc *Container) SetHTTPServer(server types.HTTPServer) {
	fc.HTTPServer.Store(&server)
}

func (fc *Container) SetCron(cron types.CronManager) {
	fc.Cron.Store(&cron)
}

func (fc *Container) SetMetrics(metrics types.MetricsManager) {
	fc.Metrics.Store(&metrics)
}

func (fc *Container) SetBroker(broker types.EventBroker) {
	fc.Broker.Store(&broker)
}

func (fc *Container) SetMiddlewares(middlewares types.MiddlewareManager) {
	fc.Middlewares.Store(&middlewares)
}

func (fc *Container) SetHealth(health types.HealthManager) {
	fc.Health.Store(&health)
}
