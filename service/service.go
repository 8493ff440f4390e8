// Package service is the composition root: it builds every manager,
// wires the invalidation pipeline and drives the shared lifecycle.
package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-graphql-cache/action"
	"github.com/saiset-co/sai-graphql-cache/cache"
	"github.com/saiset-co/sai-graphql-cache/config"
	"github.com/saiset-co/sai-graphql-cache/cron"
	"github.com/saiset-co/sai-graphql-cache/health"
	"github.com/saiset-co/sai-graphql-cache/invalidation"
	"github.com/saiset-co/sai-graphql-cache/logger"
	"github.com/saiset-co/sai-graphql-cache/metrics"
	"github.com/saiset-co/sai-graphql-cache/middleware"
	"github.com/saiset-co/sai-graphql-cache/sai"
	"github.com/saiset-co/sai-graphql-cache/schema"
	"github.com/saiset-co/sai-graphql-cache/server"
	"github.com/saiset-co/sai-graphql-cache/store"
	"github.com/saiset-co/sai-graphql-cache/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const defaultSweepSchedule = "0 */10 * * * *"

type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	configPath      string
	done            chan struct{}
	wg              sync.WaitGroup
	state           atomic.Value
	shutdownTimeout time.Duration
	startTimeout    time.Duration
	container       *sai.Container
	engine          *invalidation.Engine
	webhooks        *invalidation.WebhookNotifier
}

func NewService(ctx context.Context, configPath string) (*Service, error) {
	if configPath == "" {
		return nil, types.ErrConfigInvalidPath
	}

	if _, err := os.Stat(configPath); err != nil {
		return nil, types.WrapError(err, "file does not exist")
	}

	serviceCtx, cancel := context.WithCancel(ctx)
	container := sai.InitContainer()

	service := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		configPath:      configPath,
		container:       container,
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		startTimeout:    60 * time.Second,
	}

	service.state.Store(StateStopped)

	if err := service.registerProviders(serviceCtx, configPath); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to register providers")
	}

	sai.SetContainer(container)
	return service, nil
}

func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		sai.Logger().Warn("Service is already running")
		return types.ErrServerAlreadyRunning
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				runErr = fmt.Errorf("service panic: %v", r)
				sai.Logger().Error("Service run panic", zap.Stack(string(buf[:n])))
				s.setState(StateStopped)
			}
		}()

		runErr = s.run()
	}()

	return runErr
}

func (s *Service) run() error {
	sai.Logger().Info("Starting service")

	ctx, cancel := context.WithTimeout(s.ctx, s.startTimeout)
	defer cancel()

	if err := s.startComponents(ctx); err != nil {
		s.setState(StateStopped)
		return types.WrapError(err, "failed to start components")
	}

	s.setState(StateRunning)
	s.setupSignalHandling()

	s.wg.Add(1)
	go s.contextMonitor()

	sai.Logger().Info("Service started successfully")

	<-s.done

	if err := s.stopComponents(); err != nil {
		sai.Logger().Error("Error during service shutdown", zap.Error(err))
	}

	s.wg.Wait()
	s.setState(StateStopped)

	sai.Logger().Info("Service stopped gracefully")
	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		sai.Logger().Warn("Service is not running")
		return types.ErrServiceIsNotRunning
	}

	sai.Logger().Info("Stopping service...")
	s.cancel()

	return nil
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) Context() context.Context {
	return s.ctx
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

func (s *Service) registerProviders(ctx context.Context, configPath string) error {
	var metricsManager types.MetricsManager
	var healthManager types.HealthManager
	var depStore types.DependencyStore
	var queryCache types.QueryCache
	var broker types.EventBroker

	configManager, err := config.NewConfigurationManager(ctx, configPath)
	if err != nil {
		return types.WrapError(err, "failed to register config manager")
	}
	s.container.SetConfig(configManager)

	_config := configManager.GetConfig()

	loggerManager, err := logger.NewManager(ctx, configManager)
	if err != nil {
		return types.WrapError(err, "failed to register logger")
	}
	s.container.SetLogger(loggerManager)

	router := server.NewRouter()
	s.container.SetRouter(router)

	if _config.Health != nil && _config.Health.Enabled {
		healthManager, err = health.NewManager(ctx, configManager, loggerManager, router)
		if err != nil {
			return types.WrapError(err, "failed to register health manager")
		}
		s.container.SetHealth(healthManager)
	}

	if _config.Metrics != nil && _config.Metrics.Enabled {
		metricsManager, err = metrics.NewManager(ctx, configManager, loggerManager)
		if err != nil {
			return types.WrapError(err, "failed to register metrics manager")
		}
		s.container.SetMetrics(metricsManager)
		registerMetricsRoute(router, metricsManager)
	}

	if _config.Store != nil && _config.Store.Enabled {
		depStore, err = store.NewManager(ctx, configManager, loggerManager, metricsManager, healthManager)
		if err != nil {
			return types.WrapError(err, "failed to register dependency store")
		}
		s.container.SetStore(depStore)
	}

	if depStore != nil {
		s.engine, err = invalidation.NewEngine(depStore, loggerManager, metricsManager)
		if err != nil {
			return types.WrapError(err, "failed to register invalidation engine")
		}
	}

	if _config.Webhooks != nil && _config.Webhooks.Enabled && s.engine != nil {
		s.webhooks, err = invalidation.NewWebhookNotifier(ctx, _config.Webhooks, loggerManager, metricsManager)
		if err != nil {
			return types.WrapError(err, "failed to register webhook notifier")
		}
		s.engine.SetNotifier(s.webhooks)
		s.webhooks.RegisterRoutes(router)
	}

	if _config.Cache != nil && _config.Cache.Enabled {
		if _config.Schema == nil {
			return types.ErrSchemaNotLoaded
		}

		registry, err := schema.LoadRegistry(_config.Schema.Path)
		if err != nil {
			return types.WrapError(err, "failed to load schema")
		}

		resolver, err := schema.NewResolver(registry)
		if err != nil {
			return types.WrapError(err, "failed to build type resolver")
		}

		queryCache, err = cache.NewManager(ctx, configManager, loggerManager, metricsManager, resolver, depStore, s.engine)
		if err != nil {
			return types.WrapError(err, "failed to register query cache")
		}
		s.container.SetCache(queryCache)
	}

	if _config.Events != nil && _config.Events.Enabled && s.engine != nil {
		broker, err = action.NewEventBroker(ctx, configManager, loggerManager, metricsManager, healthManager)
		if err != nil {
			return types.WrapError(err, "failed to register event broker")
		}

		// transient store failures must not drop the event, the
		// handler retries the purge before giving up
		err = broker.Subscribe(s.engine.Handler(ctx, 0, 0))
		if err != nil {
			return types.WrapError(err, "failed to subscribe invalidation engine")
		}

		s.container.SetBroker(broker)
	}

	middlewareManager, err := middleware.NewManager(ctx, configManager, loggerManager, metricsManager, queryCache)
	if err != nil {
		return types.WrapError(err, "failed to register middleware manager")
	}
	if err := middlewareManager.RegisterMiddlewares(); err != nil {
		return types.WrapError(err, "failed to register middlewares")
	}
	s.container.SetMiddlewares(middlewareManager)

	if queryCache != nil {
		graphqlHandler := server.NewGraphQLHandler(configManager, loggerManager, metricsManager, queryCache)
		graphqlHandler.RegisterRoutes(router)

		adminHandler := server.NewAdminHandler(loggerManager, metricsManager, s.engine, queryCache, broker)
		adminHandler.RegisterRoutes(router)
	}

	if _config.Cron != nil && _config.Cron.Enabled && s.engine != nil {
		cronManager, err := cron.NewManager(ctx, configManager, loggerManager, metricsManager)
		if err != nil {
			return types.WrapError(err, "failed to register cron manager")
		}

		schedule := _config.Cron.SweepSchedule
		if schedule == "" {
			schedule = defaultSweepSchedule
		}

		engine := s.engine
		err = cronManager.AddJob("sweep-stale-edges", schedule, func(jobCtx context.Context) error {
			_, err := engine.SweepStaleEdges(jobCtx)
			return err
		})
		if err != nil {
			return types.WrapError(err, "failed to schedule sweep job")
		}

		s.container.SetCron(cronManager)
	}

	httpServer, err := server.NewHTTPServer(ctx, configManager, loggerManager, metricsManager, middlewareManager, router)
	if err != nil {
		return types.WrapError(err, "failed to register HTTP server")
	}
	s.container.SetHTTPServer(httpServer)

	return nil
}

func registerMetricsRoute(router types.HTTPRouter, metricsManager types.MetricsManager) {
	router.GET("/metrics", func(ctx *fasthttp.RequestCtx) {
		data, err := metricsManager.GetMetrics()
		if err != nil {
			ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
			return
		}

		ctx.SetContentType("text/plain; version=0.0.4; charset=utf-8")
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBody(data)
	})
}

func (s *Service) startComponents(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if ptr := s.container.Config.Load(); ptr != nil {
			if err := (*ptr).(types.LifecycleManager).Start(); err != nil {
				return types.WrapError(err, "failed to start config manager")
			}
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if ptr := s.container.Logger.Load(); ptr != nil {
			if err := (*ptr).Start(); err != nil {
				return types.WrapError(err, "failed to start logger")
			}
		}
	}

	if ptr := s.container.Health.Load(); ptr != nil {
		if err := (*ptr).Start(); err != nil {
			sai.Logger().Error("Failed to start health manager", zap.Error(err))
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	if ptr := s.container.Metrics.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := manager.Start(); err != nil {
					sai.Logger().Error("Failed to start metrics manager", zap.Error(err))
				}
				return nil
			}
		})
	}

	if ptr := s.container.Store.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				return manager.Start()
			}
		})
	}

	if s.webhooks != nil {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := s.webhooks.Start(); err != nil {
					sai.Logger().Error("Failed to start webhook notifier", zap.Error(err))
				}
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			return types.NewErrorf("component startup timeout: %v", ctx.Err())
		default:
			return err
		}
	}

	// the cache commits against the store, the broker feeds the engine:
	// both need the store running first
	if ptr := s.container.Cache.Load(); ptr != nil {
		if err := (*ptr).Start(); err != nil {
			return types.WrapError(err, "failed to start query cache")
		}
	}

	if ptr := s.container.Broker.Load(); ptr != nil {
		if err := (*ptr).Start(); err != nil {
			sai.Logger().Error("Failed to start event broker", zap.Error(err))
		}
	}

	if ptr := s.container.HTTPServer.Load(); ptr != nil {
		if err := (*ptr).Start(); err != nil {
			return types.WrapError(err, "failed to start HTTP server")
		}
	}

	if ptr := s.container.Cron.Load(); ptr != nil {
		if err := (*ptr).Start(); err != nil {
			sai.Logger().Error("Failed to start cron manager", zap.Error(err))
		}
	}

	sai.Logger().Info("All components started successfully")
	return nil
}

func (s *Service) stopComponents() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var errors []error

	sai.Logger().Info("Stopping service components...")

	// stop the feeders before the things they feed
	g, gCtx := errgroup.WithContext(ctx)

	if ptr := s.container.Cron.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := manager.Stop(); err != nil {
					sai.Logger().Error("Failed to stop cron manager", zap.Error(err))
					return err
				}
				return nil
			}
		})
	}

	if ptr := s.container.Broker.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := manager.Stop(); err != nil {
					sai.Logger().Error("Failed to stop event broker", zap.Error(err))
					return err
				}
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			sai.Logger().Warn("Component shutdown timeout, some components may not have stopped gracefully")
		default:
			errors = append(errors, err)
		}
	}

	if ptr := s.container.HTTPServer.Load(); ptr != nil {
		if err := (*ptr).Stop(); err != nil {
			sai.Logger().Error("Failed to stop HTTP server", zap.Error(err))
			errors = append(errors, err)
		}
	}

	g, _ = errgroup.WithContext(context.Background())

	if s.webhooks != nil {
		g.Go(func() error {
			if err := s.webhooks.Stop(); err != nil {
				sai.Logger().Error("Failed to stop webhook notifier", zap.Error(err))
				return err
			}
			return nil
		})
	}

	if ptr := s.container.Cache.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			if err := manager.Stop(); err != nil {
				sai.Logger().Error("Failed to stop query cache", zap.Error(err))
				return err
			}
			return nil
		})
	}

	if ptr := s.container.Metrics.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			if err := manager.Stop(); err != nil {
				sai.Logger().Error("Failed to stop metrics manager", zap.Error(err))
				return err
			}
			return nil
		})
	}

	if ptr := s.container.Health.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			if err := manager.Stop(); err != nil {
				sai.Logger().Error("Failed to stop health manager", zap.Error(err))
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		errors = append(errors, err)
	}

	if ptr := s.container.Store.Load(); ptr != nil {
		if err := (*ptr).Stop(); err != nil {
			sai.Logger().Error("Failed to stop dependency store", zap.Error(err))
			errors = append(errors, err)
		}
	}

	if ptr := s.container.Config.Load(); ptr != nil {
		if err := (*ptr).(types.LifecycleManager).Stop(); err != nil {
			sai.Logger().Error("Failed to stop config manager", zap.Error(err))
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return types.NewErrorf("errors during shutdown: %v", errors)
	}

	sai.Logger().Info("All components stopped successfully")
	return nil
}

func (s *Service) setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case sig := <-sigChan:
			sai.Logger().Info("Received shutdown signal", zap.String("signal", sig.String()))
			if s.transitionState(StateRunning, StateStopping) {
				s.cancel()
			}

		case <-s.ctx.Done():
			sai.Logger().Info("Service context cancelled")
		}

		signal.Stop(sigChan)
		close(sigChan)
	}()
}

func (s *Service) contextMonitor() {
	defer s.wg.Done()
	defer close(s.done)

	<-s.ctx.Done()

	switch err := s.ctx.Err(); {
	case types.IsError(err, context.Canceled):
		sai.Logger().Info("Service shutdown: context cancelled")
	case types.IsError(err, context.DeadlineExceeded):
		sai.Logger().Warn("Service shutdown: context deadline exceeded")
	default:
		sai.Logger().Info("Service shutdown: context done")
	}
}
