package action

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-graphql-cache/types"
)

// MemoryBroker delivers events to subscribers inside the same process.
// It is the backend of choice when the publishing system pushes events
// over the HTTP event endpoint instead of a persistent connection.
type MemoryBroker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   types.Logger
	metrics  types.MetricsManager
	handlers []types.EventHandler
	mu       sync.RWMutex
	running  int32
}

func NewMemoryBroker(ctx context.Context, logger types.Logger, metrics types.MetricsManager) (types.EventBroker, error) {
	brokerCtx, cancel := context.WithCancel(ctx)

	return &MemoryBroker{
		ctx:     brokerCtx,
		cancel:  cancel,
		logger:  logger,
		metrics: metrics,
	}, nil
}

func (m *MemoryBroker) Start() error {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	m.logger.Info("Memory event broker started")
	return nil
}

func (m *MemoryBroker) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		return types.ErrServerNotRunning
	}

	m.cancel()
	m.logger.Info("Memory event broker stopped")
	return nil
}

func (m *MemoryBroker) IsRunning() bool {
	return atomic.LoadInt32(&m.running) == 1
}

// Subscribe registers a handler. Must be called before Start.
func (m *MemoryBroker) Subscribe(handler types.EventHandler) error {
	if handler == nil {
		return types.ErrHandlerIsNil
	}
	if m.IsRunning() {
		return types.ErrServerAlreadyRunning
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers = append(m.handlers, handler)
	return nil
}

// Publish delivers the event to every handler synchronously so the
// caller knows invalidation completed before it acknowledges the
// event upstream.
func (m *MemoryBroker) Publish(event *types.MutationEvent) error {
	if !m.IsRunning() {
		return types.ErrBrokerNotInitialized
	}

	if err := event.Validate(); err != nil {
		return err
	}

	start := time.Now()

	m.mu.RLock()
	handlers := make([]types.EventHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.RUnlock()

	var firstErr error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			m.logger.Error("Event handler failed",
				zap.String("type", event.Type),
				zap.String("item_id", event.ItemID),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	m.recordMetric("publish", firstErr, event, time.Since(start))
	return firstErr
}

func (m *MemoryBroker) recordMetric(operation string, err error, event *types.MutationEvent, duration time.Duration) {
	if m.metrics == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
	}

	m.metrics.Counter("broker_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
		"kind":      string(event.Kind),
	}).Inc()

	m.metrics.Histogram("broker_operation_duration_seconds",
		[]float64{0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	).Observe(duration.Seconds())
}
