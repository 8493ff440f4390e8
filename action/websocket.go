package action

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-graphql-cache/types"
	"github.com/saiset-co/sai-graphql-cache/utils"
)

type BrokerState int32

const (
	BrokerStateStopped BrokerState = iota
	BrokerStateStarting
	BrokerStateRunning
	BrokerStateStopping
	BrokerStateReconnecting
)

type WebSocketConfig struct {
	URL            string        `json:"url"`
	ReconnectDelay time.Duration `json:"reconnect_delay"`
	MaxRetries     int           `json:"max_retries"`
	PingInterval   time.Duration `json:"ping_interval"`
	PongWait       time.Duration `json:"pong_wait"`
	WriteWait      time.Duration `json:"write_wait"`
}

// WebSocketBroker keeps a persistent connection to the publishing
// system's change feed. Incoming frames are mutation events; each one
// is handed to every subscribed handler. The connection is re-dialed
// with bounded retries when it drops.
type WebSocketBroker struct {
	ctx               context.Context
	cancel            context.CancelFunc
	logger            types.Logger
	metrics           types.MetricsManager
	health            types.HealthManager
	config            *WebSocketConfig
	conn              *websocket.Conn
	connMu            sync.RWMutex
	handlers          []types.EventHandler
	handlersMu        sync.RWMutex
	send              chan *types.MutationEvent
	reconnectCh       chan struct{}
	state             atomic.Value
	shutdownTimeout   time.Duration
	reconnectAttempts int32
}

func NewWebSocketBroker(ctx context.Context, logger types.Logger, config *types.EventsConfig, metrics types.MetricsManager, health types.HealthManager) (types.EventBroker, error) {
	wsConfig := &WebSocketConfig{
		URL:            "ws://localhost:8081/events",
		ReconnectDelay: 5 * time.Second,
		MaxRetries:     10,
		PingInterval:   54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, wsConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal WebSocket config")
		}
	}

	brokerCtx, cancel := context.WithCancel(ctx)

	broker := &WebSocketBroker{
		ctx:             brokerCtx,
		cancel:          cancel,
		logger:          logger,
		metrics:         metrics,
		health:          health,
		config:          wsConfig,
		send:            make(chan *types.MutationEvent, 256),
		reconnectCh:     make(chan struct{}, 1),
		shutdownTimeout: 10 * time.Second,
	}

	broker.state.Store(BrokerStateStopped)

	logger.Info("WebSocket broker initialized",
		zap.String("url", wsConfig.URL),
		zap.Duration("reconnect_delay", wsConfig.ReconnectDelay),
		zap.Int("max_retries", wsConfig.MaxRetries))

	return broker, nil
}

// Publish pushes an event back onto the feed. The cache itself only
// consumes events; this exists so operators can inject synthetic
// events through the admin API.
func (w *WebSocketBroker) Publish(event *types.MutationEvent) error {
	if !w.IsRunning() {
		return types.ErrBrokerNotInitialized
	}

	if err := event.Validate(); err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		w.recordMetric("publish", "attempt", string(event.Kind), time.Since(start))
	}()

	select {
	case w.send <- event:
		w.logger.Debug("Event queued for publishing",
			zap.String("type", event.Type),
			zap.String("item_id", event.ItemID))
		w.recordMetric("publish", "success", string(event.Kind), time.Since(start))
		return nil
	case <-w.ctx.Done():
		w.recordMetric("publish", "canceled", string(event.Kind), time.Since(start))
		return types.ErrBrokerNotInitialized
	default:
		w.logger.Error("Send channel is full, dropping event",
			zap.String("type", event.Type),
			zap.String("item_id", event.ItemID))
		w.recordMetric("publish", "dropped", string(event.Kind), time.Since(start))
		return types.NewErrorf("send channel full, event dropped")
	}
}

func (w *WebSocketBroker) Subscribe(handler types.EventHandler) error {
	if handler == nil {
		return types.ErrHandlerIsNil
	}

	if w.IsRunning() {
		return types.ErrServerAlreadyRunning
	}

	w.handlersMu.Lock()
	defer w.handlersMu.Unlock()

	w.handlers = append(w.handlers, w.wrapHandler(handler))

	w.logger.Debug("Subscribed event handler",
		zap.Int("total_handlers", len(w.handlers)))

	return nil
}

func (w *WebSocketBroker) Start() error {
	if !w.transitionState(BrokerStateStopped, BrokerStateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if w.getState() == BrokerStateStarting {
			w.setState(BrokerStateRunning)
		}
	}()

	if err := w.connect(); err != nil {
		w.setState(BrokerStateStopped)
		w.logger.Error("Failed to establish initial connection", zap.Error(err))
		return types.WrapError(err, "failed to establish initial connection")
	}

	go w.readPump()
	go w.writePump()
	go w.reconnectLoop()

	w.logger.Info("WebSocket broker started successfully")
	return nil
}

func (w *WebSocketBroker) Stop() error {
	if !w.transitionState(BrokerStateRunning, BrokerStateStopping) &&
		!w.transitionState(BrokerStateReconnecting, BrokerStateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		w.setState(BrokerStateStopped)
		w.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		w.connMu.Lock()
		defer w.connMu.Unlock()

		if w.conn != nil {
			if err := w.conn.Close(); err != nil {
				w.logger.Error("Failed to close connection", zap.Error(err))
				return err
			}
			w.conn = nil
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		select {
		case <-gCtx.Done():
			w.logger.Warn("WebSocket broker stop timeout, some components may not have stopped gracefully")
		default:
			w.logger.Error("Error during broker shutdown", zap.Error(err))
		}
	} else {
		w.logger.Info("WebSocket broker stopped gracefully")
	}

	return nil
}

func (w *WebSocketBroker) IsRunning() bool {
	state := w.getState()
	return state == BrokerStateRunning || state == BrokerStateReconnecting
}

func (w *WebSocketBroker) getState() BrokerState {
	return w.state.Load().(BrokerState)
}

func (w *WebSocketBroker) setState(newState BrokerState) bool {
	currentState := w.getState()
	return w.state.CompareAndSwap(currentState, newState)
}

func (w *WebSocketBroker) transitionState(from, to BrokerState) bool {
	return w.state.CompareAndSwap(from, to)
}

func (w *WebSocketBroker) connect() error {
	w.logger.Debug("Attempting to connect to event feed",
		zap.String("url", w.config.URL))

	dialCtx, cancel := context.WithTimeout(w.ctx, 10*time.Second)
	defer cancel()

	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(dialCtx, w.config.URL, nil)
	if err != nil {
		return types.WrapError(err, "failed to dial event feed")
	}

	w.connMu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
	}
	w.conn = conn
	w.connMu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(w.config.PongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(w.config.PongWait))
		return nil
	})

	atomic.StoreInt32(&w.reconnectAttempts, 0)

	w.logger.Info("Connected to event feed")
	return nil
}

func (w *WebSocketBroker) reconnectLoop() {
	defer w.logger.Debug("Reconnect loop stopped")

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.reconnectCh:
			if !w.IsRunning() {
				return
			}

			if w.getState() == BrokerStateRunning {
				w.setState(BrokerStateReconnecting)
			}

			retryCount := atomic.LoadInt32(&w.reconnectAttempts)

			w.logger.Info("Starting reconnection attempt",
				zap.Int32("attempt", retryCount+1),
				zap.Int("max_retries", w.config.MaxRetries))

			if int(retryCount) >= w.config.MaxRetries {
				w.logger.Error("Max reconnection attempts reached, stopping broker")

				if w.transitionState(BrokerStateReconnecting, BrokerStateStopping) {
					w.cancel()
				}
				return
			}

			select {
			case <-time.After(w.config.ReconnectDelay):
			case <-w.ctx.Done():
				return
			}

			atomic.AddInt32(&w.reconnectAttempts, 1)

			if err := w.connect(); err != nil {
				w.logger.Error("Reconnection attempt failed",
					zap.Int32("attempt", atomic.LoadInt32(&w.reconnectAttempts)),
					zap.Error(err))

				w.safeReconnectTrigger()
				continue
			}

			w.setState(BrokerStateRunning)
			w.logger.Info("Reconnected to event feed")

			go w.readPump()
			go w.writePump()
		}
	}
}

func (w *WebSocketBroker) safeReconnectTrigger() {
	select {
	case w.reconnectCh <- struct{}{}:
	case <-w.ctx.Done():
	default:
	}
}

func (w *WebSocketBroker) readPump() {
	defer w.logger.Debug("Read pump stopped")

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			if !w.IsRunning() {
				return
			}

			success := w.withConnection(func(conn *websocket.Conn) error {
				_, messageData, err := conn.ReadMessage()
				if err != nil {
					if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						w.logger.Debug("WebSocket connection closed", zap.Error(err))
					}
					return err
				}

				var event types.MutationEvent
				if err := utils.Unmarshal(messageData, &event); err != nil {
					w.logger.Error("Failed to unmarshal event", zap.Error(err))
					return nil
				}

				if err := event.Validate(); err != nil {
					w.logger.Warn("Dropping malformed event",
						zap.String("type", event.Type),
						zap.Error(err))
					w.recordMetric("handle", "invalid", string(event.Kind), 0)
					return nil
				}

				w.handleIncomingEvent(&event)
				return nil
			})

			if !success && w.IsRunning() {
				w.safeReconnectTrigger()
				return
			}
		}
	}
}

func (w *WebSocketBroker) writePump() {
	ticker := time.NewTicker(w.config.PingInterval)
	defer func() {
		ticker.Stop()
		w.logger.Debug("Write pump stopped")
	}()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.send:
			if !ok {
				return
			}

			if !w.IsRunning() {
				w.logger.Debug("Dropping event - broker stopping",
					zap.String("type", event.Type))
				return
			}

			success := w.withConnection(func(conn *websocket.Conn) error {
				_ = conn.SetWriteDeadline(time.Now().Add(w.config.WriteWait))

				data, err := utils.Marshal(event)
				if err != nil {
					w.logger.Error("Failed to marshal outgoing event",
						zap.Error(err),
						zap.String("type", event.Type))
					return nil
				}

				return conn.WriteMessage(websocket.TextMessage, data)
			})

			if !success && w.IsRunning() {
				w.safeReconnectTrigger()
				return
			}

		case <-ticker.C:
			if !w.IsRunning() {
				return
			}

			success := w.withConnection(func(conn *websocket.Conn) error {
				_ = conn.SetWriteDeadline(time.Now().Add(w.config.WriteWait))
				return conn.WriteMessage(websocket.PingMessage, nil)
			})

			if !success && w.IsRunning() {
				w.safeReconnectTrigger()
				return
			}
		}
	}
}

func (w *WebSocketBroker) withConnection(fn func(*websocket.Conn) error) bool {
	w.connMu.RLock()
	defer w.connMu.RUnlock()

	if w.conn == nil {
		return false
	}

	if err := fn(w.conn); err != nil {
		w.logger.Error("WebSocket operation failed", zap.Error(err))
		return false
	}

	return true
}

func (w *WebSocketBroker) handleIncomingEvent(event *types.MutationEvent) {
	start := time.Now()

	w.handlersMu.RLock()
	handlers := make([]types.EventHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.handlersMu.RUnlock()

	if len(handlers) == 0 {
		w.logger.Debug("No handlers registered for event",
			zap.String("type", event.Type),
			zap.String("item_id", event.ItemID))
		w.recordMetric("handle", "no_handlers", string(event.Kind), time.Since(start))
		return
	}

	ctx, cancel := context.WithTimeout(w.ctx, 30*time.Second)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	for i, handler := range handlers {
		h := handler
		handlerIndex := i

		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := h(event); err != nil {
					w.logger.Error("Event handler failed",
						zap.String("type", event.Type),
						zap.String("item_id", event.ItemID),
						zap.Int("handler_index", handlerIndex),
						zap.Error(err))
					return err
				}
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		w.recordMetric("handle", "error", string(event.Kind), time.Since(start))
	} else {
		w.recordMetric("handle", "success", string(event.Kind), time.Since(start))
	}
}

func (w *WebSocketBroker) wrapHandler(handler types.EventHandler) types.EventHandler {
	return func(event *types.MutationEvent) error {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Handler panicked",
					zap.String("type", event.Type),
					zap.Any("panic", r))
				w.recordMetric("handle", "panic", string(event.Kind), 0)
			}
		}()

		return handler(event)
	}
}

func (w *WebSocketBroker) recordMetric(operation, result, kind string, duration time.Duration) {
	if w.metrics == nil {
		return
	}

	counter := w.metrics.Counter("broker_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
		"kind":      kind,
	})
	counter.Inc()

	histogram := w.metrics.Histogram("broker_operation_duration_seconds",
		[]float64{0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	)
	histogram.Observe(duration.Seconds())
}
