package invalidation

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-graphql-cache/types"
	"github.com/saiset-co/sai-graphql-cache/utils"
)

type WebhookState int32

const (
	WebhookStateStopped WebhookState = iota
	WebhookStateStarting
	WebhookStateRunning
	WebhookStateStopping
)

// WebhookNotifier tells external subscribers which cache keys a purge
// dropped, so fronting proxies and CDN layers can evict their own
// copies. Subscriptions are persisted in an embedded SQLite database
// and filtered by event name ("purge.created", "purge.updated",
// "purge.deleted" or "*" for everything).
type WebhookNotifier struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	metrics         types.MetricsManager
	db              *sql.DB
	client          *http.Client
	state           atomic.Value
	shutdownTimeout time.Duration
	deliveryTimeout time.Duration
	requestTimeout  time.Duration
}

type Webhook struct {
	ID        string            `json:"id" db:"id"`
	Event     string            `json:"event" db:"event"`
	URL       string            `json:"url" db:"url"`
	Headers   map[string]string `json:"headers" db:"headers"`
	Secret    string            `json:"secret" db:"secret"`
	Enabled   bool              `json:"enabled" db:"enabled"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

type WebhookCreateRequest struct {
	Event   string            `json:"event" validate:"required"`
	URL     string            `json:"url" validate:"required,url"`
	Headers map[string]string `json:"headers"`
	Enabled *bool             `json:"enabled"`
}

type WebhookUpdateRequest struct {
	Event   *string           `json:"event"`
	URL     *string           `json:"url"`
	Headers map[string]string `json:"headers"`
	Enabled *bool             `json:"enabled"`
}

type WebhookResponse struct {
	Success bool     `json:"success"`
	Data    *Webhook `json:"data,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type WebhookListResponse struct {
	Success bool       `json:"success"`
	Data    []*Webhook `json:"data,omitempty"`
	Total   int        `json:"total"`
	Error   string     `json:"error,omitempty"`
}

// purgeNotification is the payload delivered to subscribers.
type purgeNotification struct {
	Type       string   `json:"type"`
	ItemID     string   `json:"item_id"`
	Kind       string   `json:"kind"`
	PurgedKeys []string `json:"purged_keys"`
}

func NewWebhookNotifier(ctx context.Context, config *types.WebhooksConfig, logger types.Logger, metrics types.MetricsManager) (*WebhookNotifier, error) {
	dbPath := "./webhooks.db"
	if config != nil && config.DBPath != "" {
		dbPath = config.DBPath
	}

	notifierCtx, cancel := context.WithCancel(ctx)

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to open SQLite database")
	}

	wn := &WebhookNotifier{
		ctx:     notifierCtx,
		cancel:  cancel,
		logger:  logger,
		metrics: metrics,
		db:      db,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		shutdownTimeout: 10 * time.Second,
		deliveryTimeout: 30 * time.Second,
		requestTimeout:  5 * time.Second,
	}

	wn.state.Store(WebhookStateStopped)

	if err := wn.initDatabase(); err != nil {
		cancel()
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("Failed to close database during cleanup", zap.Error(closeErr))
		}
		return nil, types.WrapError(err, "failed to initialize database")
	}

	return wn, nil
}

func (wn *WebhookNotifier) Start() error {
	if !wn.transitionState(WebhookStateStopped, WebhookStateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if wn.getState() == WebhookStateStarting {
			wn.setState(WebhookStateRunning)
		}
	}()

	wn.logger.Info("Webhook notifier started")
	return nil
}

func (wn *WebhookNotifier) Stop() error {
	if !wn.transitionState(WebhookStateRunning, WebhookStateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		wn.setState(WebhookStateStopped)
		wn.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), wn.shutdownTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if wn.db != nil {
			if err := wn.db.Close(); err != nil {
				wn.logger.Error("Failed to close database", zap.Error(err))
				return err
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		select {
		case <-gCtx.Done():
			wn.logger.Warn("Webhook notifier stop timeout, some components may not have stopped gracefully")
		default:
			wn.logger.Error("Error during webhook notifier shutdown", zap.Error(err))
		}
	} else {
		wn.logger.Info("Webhook notifier stopped gracefully")
	}

	return nil
}

func (wn *WebhookNotifier) IsRunning() bool {
	return wn.getState() == WebhookStateRunning
}

func (wn *WebhookNotifier) getState() WebhookState {
	return wn.state.Load().(WebhookState)
}

func (wn *WebhookNotifier) setState(newState WebhookState) bool {
	currentState := wn.getState()
	return wn.state.CompareAndSwap(currentState, newState)
}

func (wn *WebhookNotifier) transitionState(from, to WebhookState) bool {
	return wn.state.CompareAndSwap(from, to)
}

func (wn *WebhookNotifier) initDatabase() error {
	query := `
	CREATE TABLE IF NOT EXISTS webhooks (
		id TEXT PRIMARY KEY,
		event TEXT NOT NULL,
		url TEXT NOT NULL,
		headers TEXT,
		secret TEXT,
		enabled BOOLEAN DEFAULT true,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_webhooks_event ON webhooks(event);
	CREATE INDEX IF NOT EXISTS idx_webhooks_enabled ON webhooks(enabled);
	`

	_, err := wn.db.Exec(query)
	if err != nil {
		return types.WrapError(err, "failed to create webhooks table")
	}

	return nil
}

// NotifyPurged implements Notifier. Delivery failures are logged and
// counted but never propagated, a slow subscriber must not slow down
// invalidation.
func (wn *WebhookNotifier) NotifyPurged(_ context.Context, event *types.MutationEvent, purgedKeys []string) {
	if !wn.IsRunning() {
		return
	}

	notification := &purgeNotification{
		Type:       event.Type,
		ItemID:     event.ItemID,
		Kind:       string(event.Kind),
		PurgedKeys: purgedKeys,
	}

	eventName := "purge." + string(event.Kind)

	if err := wn.notifyWebhooks(eventName, notification); err != nil {
		wn.logger.Error("Webhook notification failed",
			zap.String("event", eventName),
			zap.Error(err))
	}
}

func (wn *WebhookNotifier) notifyWebhooks(event string, payload interface{}) error {
	start := time.Now()
	defer func() {
		wn.recordMetric("notify", "attempt", event, time.Since(start))
	}()

	webhooks, err := wn.getWebhooksByEvent(event)
	if err != nil {
		wn.recordMetric("notify", "error", event, time.Since(start))
		return types.WrapError(err, "failed to get webhooks")
	}

	if len(webhooks) == 0 {
		wn.logger.Debug("No webhooks found for event", zap.String("event", event))
		wn.recordMetric("notify", "no_webhooks", event, time.Since(start))
		return nil
	}

	wn.logger.Debug("Notifying webhooks",
		zap.String("event", event),
		zap.Int("webhook_count", len(webhooks)))

	notifyCtx, cancel := context.WithTimeout(wn.ctx, wn.deliveryTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(notifyCtx)

	var successCount int32
	var errorCount int32

	for _, webhook := range webhooks {
		wh := webhook
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := wn.deliverWebhook(wh, event, payload); err != nil {
					atomic.AddInt32(&errorCount, 1)
					wn.logger.Error("Webhook delivery failed",
						zap.String("webhook_id", wh.ID),
						zap.String("event", event),
						zap.String("url", wh.URL),
						zap.Error(err))
					return err
				}
				atomic.AddInt32(&successCount, 1)
				wn.logger.Debug("Webhook delivered successfully",
					zap.String("webhook_id", wh.ID),
					zap.String("event", event))
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-notifyCtx.Done():
			wn.recordMetric("notify", "timeout", event, time.Since(start))
			return types.NewErrorf("webhook notification timeout for event: %s", event)
		default:
			if atomic.LoadInt32(&successCount) > 0 {
				wn.logger.Warn("Some webhook deliveries failed",
					zap.String("event", event),
					zap.Int32("success_count", atomic.LoadInt32(&successCount)),
					zap.Int32("error_count", atomic.LoadInt32(&errorCount)),
					zap.Error(err))
				wn.recordMetric("notify", "partial_success", event, time.Since(start))
			} else {
				wn.recordMetric("notify", "error", event, time.Since(start))
				return types.WrapError(err, "all webhook deliveries failed")
			}
		}
	}

	wn.recordMetric("notify", "success", event, time.Since(start))
	return nil
}

func (wn *WebhookNotifier) deliverWebhook(webhook *Webhook, event string, payload interface{}) error {
	start := time.Now()
	defer func() {
		wn.recordMetric("delivery", "attempt", event, time.Since(start))
	}()

	webhookPayload := map[string]interface{}{
		"event":     event,
		"timestamp": time.Now().Unix(),
		"data":      payload,
	}

	jsonData, err := utils.Marshal(webhookPayload)
	if err != nil {
		wn.recordMetric("delivery", "marshal_error", event, time.Since(start))
		return types.WrapError(err, "failed to marshal webhook payload")
	}

	deliveryCtx, cancel := context.WithTimeout(wn.ctx, wn.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(deliveryCtx, "POST", webhook.URL, strings.NewReader(string(jsonData)))
	if err != nil {
		wn.recordMetric("delivery", "request_error", event, time.Since(start))
		return types.WrapError(err, "failed to create HTTP request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "SAI-GraphQL-Cache-Webhook/1.0")

	for key, value := range webhook.Headers {
		req.Header.Set(key, value)
	}

	if webhook.Secret != "" {
		signature := wn.generateHMACSignature(webhook.Secret, jsonData)
		req.Header.Set("X-Signature", fmt.Sprintf("sha256=%s", signature))
	}

	resp, err := wn.client.Do(req)
	if err != nil {
		select {
		case <-deliveryCtx.Done():
			wn.recordMetric("delivery", "timeout", event, time.Since(start))
			return types.NewErrorf("webhook delivery timeout for webhook %s", webhook.ID)
		default:
			wn.recordMetric("delivery", "http_error", event, time.Since(start))
			return types.WrapError(err, "HTTP request failed")
		}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			wn.logger.Error("Failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode >= 400 {
		wn.recordMetric("delivery", "http_error", event, time.Since(start))
		return fmt.Errorf("webhook returned error status: %d %s", resp.StatusCode, resp.Status)
	}

	wn.recordMetric("delivery", "success", event, time.Since(start))
	return nil
}

func (wn *WebhookNotifier) generateWebhookID() string {
	return fmt.Sprintf("wh_%d", time.Now().UnixNano())
}

func (wn *WebhookNotifier) generateSecret() string {
	bytes := make([]byte, 32)
	_, err := rand.Read(bytes)
	if err != nil {
		wn.logger.Error("Failed to generate random bytes for secret", zap.Error(err))
	}
	return hex.EncodeToString(bytes)
}

func (wn *WebhookNotifier) generateHMACSignature(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (wn *WebhookNotifier) recordMetric(operation, result, event string, duration time.Duration) {
	if wn.metrics == nil {
		return
	}

	counter := wn.metrics.Counter("webhook_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
		"event":     event,
	})
	counter.Inc()

	histogram := wn.metrics.Histogram("webhook_operation_duration_seconds",
		[]float64{0.001, 0.01, 0.1, 1.0, 5.0, 10.0, 30.0},
		map[string]string{"operation": operation, "event": event},
	)
	histogram.Observe(duration.Seconds())
}

func (wn *WebhookNotifier) getWebhooksByEvent(event string) ([]*Webhook, error) {
	start := time.Now()
	defer func() {
		wn.recordMetric("db_query", "get_by_event", event, time.Since(start))
	}()

	query := `SELECT id, event, url, headers, secret, enabled, created_at
			  FROM webhooks WHERE (event = ? OR event = '*') AND enabled = true`

	rows, err := wn.db.Query(query, event)
	if err != nil {
		return nil, types.WrapError(err, "failed to query webhooks")
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			wn.logger.Error("Failed to close database rows", zap.Error(err))
		}
	}(rows)

	var webhooks []*Webhook
	for rows.Next() {
		webhook, err := wn.scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, webhook)
	}

	return webhooks, nil
}

func (wn *WebhookNotifier) scanWebhook(rows *sql.Rows) (*Webhook, error) {
	webhook := &Webhook{}
	var headersJSON string

	err := rows.Scan(&webhook.ID, &webhook.Event, &webhook.URL,
		&headersJSON, &webhook.Secret, &webhook.Enabled, &webhook.CreatedAt)
	if err != nil {
		return nil, types.WrapError(err, "failed to scan webhook")
	}

	wn.parseHeaders(webhook, headersJSON)
	return webhook, nil
}

func (wn *WebhookNotifier) parseHeaders(webhook *Webhook, headersJSON string) {
	if headersJSON == "" {
		webhook.Headers = make(map[string]string)
		return
	}

	if err := utils.Unmarshal([]byte(headersJSON), &webhook.Headers); err != nil {
		wn.logger.Warn("Failed to parse webhook headers",
			zap.String("webhook_id", webhook.ID),
			zap.Error(err))
		webhook.Headers = make(map[string]string)
	}
}

// RegisterRoutes exposes the subscription CRUD API. The cache
// middleware is disabled, subscription management is never cacheable.
func (wn *WebhookNotifier) RegisterRoutes(router types.HTTPRouter) {
	config := &types.RouteConfig{
		Cacheable:           false,
		DisabledMiddlewares: []string{"cache"},
		Timeout:             wn.requestTimeout,
	}

	router.Add("POST", "/api/webhooks", wn.handleCreateWebhook, config)
	router.Add("GET", "/api/webhooks", wn.handleListWebhooks, config)
	router.Add("GET", "/api/webhooks/get", wn.handleGetWebhook, config)
	router.Add("PUT", "/api/webhooks/update", wn.handleUpdateWebhook, config)
	router.Add("DELETE", "/api/webhooks/delete", wn.handleDeleteWebhook, config)
}

func (wn *WebhookNotifier) handleCreateWebhook(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	defer func() {
		wn.recordMetric("api", "create", "webhook", time.Since(start))
	}()

	if !wn.IsRunning() {
		wn.writeErrorResponse(ctx, fasthttp.StatusServiceUnavailable, "Webhook notifier is not running", nil)
		return
	}

	var req WebhookCreateRequest
	if err := utils.Unmarshal(ctx.PostBody(), &req); err != nil {
		wn.writeErrorResponse(ctx, fasthttp.StatusBadRequest, "Invalid JSON payload", err)
		return
	}

	if req.Event == "" || req.URL == "" {
		wn.writeErrorResponse(ctx, fasthttp.StatusBadRequest, "Event and URL are required", nil)
		return
	}

	if exists, err := wn.webhookExists(req.Event, req.URL); err != nil {
		wn.writeErrorResponse(ctx, fasthttp.StatusInternalServerError, "Failed to check webhook existence", err)
		return
	} else if exists {
		wn.writeErrorResponse(ctx, fasthttp.StatusConflict, "Webhook with this event and URL already exists", nil)
		return
	}

	webhook := &Webhook{
		ID:        wn.generateWebhookID(),
		Event:     req.Event,
		URL:       req.URL,
		Headers:   req.Headers,
		Secret:    wn.generateSecret(),
		Enabled:   true,
		CreatedAt: time.Now(),
	}

	if req.Enabled != nil {
		webhook.Enabled = *req.Enabled
	}

	if err := wn.createWebhook(webhook); err != nil {
		wn.writeErrorResponse(ctx, fasthttp.StatusInternalServerError, "Failed to create webhook", err)
		return
	}

	wn.logger.Info("Webhook created",
		zap.String("id", webhook.ID),
		zap.String("event", webhook.Event),
		zap.String("url", webhook.URL))

	wn.writeSuccessResponse(ctx, webhook)
}

func (wn *WebhookNotifier) handleListWebhooks(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	defer func() {
		wn.recordMetric("api", "list", "webhook", time.Since(start))
	}()

	if !wn.IsRunning() {
		wn.writeErrorResponse(ctx, fasthttp.StatusServiceUnavailable, "Webhook notifier is not running", nil)
		return
	}

	webhooks, err := wn.getAllWebhooks()
	if err != nil {
		wn.writeErrorResponse(ctx, fasthttp.StatusInternalServerError, "Failed to get webhooks", err)
		return
	}

	response := &WebhookListResponse{
		Success: true,
		Data:    webhooks,
		Total:   len(webhooks),
	}
	wn.writeJSONResponse(ctx, fasthttp.StatusOK, response)
}

func (wn *WebhookNotifier) handleGetWebhook(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	defer func() {
		wn.recordMetric("api", "get", "webhook", time.Since(start))
	}()

	if !wn.IsRunning() {
		wn.writeErrorResponse(ctx, fasthttp.StatusServiceUnavailable, "Webhook notifier is not running", nil)
		return
	}

	id := string(ctx.QueryArgs().Peek("id"))
	if id == "" {
		wn.writeErrorResponse(ctx, fasthttp.StatusBadRequest, "Webhook ID is required", nil)
		return
	}

	webhook, err := wn.getWebhookByID(id)
	if err != nil {
		if types.IsError(err, types.ErrWebhookNotFound) {
			wn.writeErrorResponse(ctx, fasthttp.StatusNotFound, "Webhook not found", nil)
			return
		}
		wn.writeErrorResponse(ctx, fasthttp.StatusInternalServerError, "Failed to get webhook", err)
		return
	}

	wn.writeSuccessResponse(ctx, webhook)
}

func (wn *WebhookNotifier) handleUpdateWebhook(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	defer func() {
		wn.recordMetric("api", "update", "webhook", time.Since(start))
	}()

	if !wn.IsRunning() {
		wn.writeErrorResponse(ctx, fasthttp.StatusServiceUnavailable, "Webhook notifier is not running", nil)
		return
	}

	id := string(ctx.QueryArgs().Peek("id"))
	if id == "" {
		wn.writeErrorResponse(ctx, fasthttp.StatusBadRequest, "Webhook ID is required", nil)
		return
	}

	webhook, err := wn.getWebhookByID(id)
	if err != nil {
		if types.IsError(err, types.ErrWebhookNotFound) {
			wn.writeErrorResponse(ctx, fasthttp.StatusNotFound, "Webhook not found", nil)
			return
		}
		wn.writeErrorResponse(ctx, fasthttp.StatusInternalServerError, "Failed to get webhook", err)
		return
	}

	var req WebhookUpdateRequest
	if err := utils.Unmarshal(ctx.PostBody(), &req); err != nil {
		wn.writeErrorResponse(ctx, fasthttp.StatusBadRequest, "Invalid JSON payload", err)
		return
	}

	if req.Event != nil {
		webhook.Event = *req.Event
	}
	if req.URL != nil {
		webhook.URL = *req.URL
	}
	if req.Headers != nil {
		webhook.Headers = req.Headers
	}
	if req.Enabled != nil {
		webhook.Enabled = *req.Enabled
	}

	if err := wn.updateWebhook(webhook); err != nil {
		wn.writeErrorResponse(ctx, fasthttp.StatusInternalServerError, "Failed to update webhook", err)
		return
	}

	wn.logger.Info("Webhook updated", zap.String("id", webhook.ID))
	wn.writeSuccessResponse(ctx, webhook)
}

func (wn *WebhookNotifier) handleDeleteWebhook(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	defer func() {
		wn.recordMetric("api", "delete", "webhook", time.Since(start))
	}()

	if !wn.IsRunning() {
		wn.writeErrorResponse(ctx, fasthttp.StatusServiceUnavailable, "Webhook notifier is not running", nil)
		return
	}

	id := string(ctx.QueryArgs().Peek("id"))
	if id == "" {
		wn.writeErrorResponse(ctx, fasthttp.StatusBadRequest, "Webhook ID is required", nil)
		return
	}

	if err := wn.deleteWebhook(id); err != nil {
		if types.IsError(err, types.ErrWebhookNotFound) {
			wn.writeErrorResponse(ctx, fasthttp.StatusNotFound, "Webhook not found", nil)
			return
		}
		wn.writeErrorResponse(ctx, fasthttp.StatusInternalServerError, "Failed to delete webhook", err)
		return
	}

	wn.logger.Info("Webhook deleted", zap.String("id", id))
	wn.writeJSONResponse(ctx, fasthttp.StatusOK, &WebhookResponse{Success: true})
}

func (wn *WebhookNotifier) writeSuccessResponse(ctx *fasthttp.RequestCtx, data *Webhook) {
	response := &WebhookResponse{
		Success: true,
		Data:    data,
	}
	wn.writeJSONResponse(ctx, fasthttp.StatusOK, response)
}

func (wn *WebhookNotifier) writeErrorResponse(ctx *fasthttp.RequestCtx, statusCode int, message string, err error) {
	response := &WebhookResponse{
		Success: false,
		Error:   message,
	}

	if err != nil {
		wn.logger.Error("Webhook API error",
			zap.String("message", message),
			zap.Error(err))
	}

	wn.writeJSONResponse(ctx, statusCode, response)
}

func (wn *WebhookNotifier) writeJSONResponse(ctx *fasthttp.RequestCtx, statusCode int, data interface{}) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.Response.SetStatusCode(statusCode)

	if jsonData, err := utils.Marshal(data); err != nil {
		wn.logger.Error("Failed to marshal JSON response", zap.Error(err))
		ctx.Error(fasthttp.StatusMessage(statusCode), fasthttp.StatusInternalServerError)
	} else {
		if _, err := ctx.Write(jsonData); err != nil {
			wn.logger.Error("Failed to write response", zap.Error(err))
		}
	}
}

func (wn *WebhookNotifier) webhookExists(event, url string) (bool, error) {
	query := `SELECT COUNT(*) FROM webhooks WHERE event = ? AND url = ?`

	var count int
	err := wn.db.QueryRow(query, event, url).Scan(&count)
	if err != nil {
		return false, types.WrapError(err, "failed to check webhook existence")
	}

	return count > 0, nil
}

func (wn *WebhookNotifier) createWebhook(webhook *Webhook) error {
	headersJSON, err := utils.Marshal(webhook.Headers)
	if err != nil {
		return types.WrapError(err, "failed to marshal headers")
	}

	query := `INSERT INTO webhooks (id, event, url, headers, secret, enabled, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = wn.db.Exec(query, webhook.ID, webhook.Event, webhook.URL,
		string(headersJSON), webhook.Secret, webhook.Enabled, webhook.CreatedAt)
	if err != nil {
		return types.WrapError(err, "failed to insert webhook")
	}

	return nil
}

func (wn *WebhookNotifier) getAllWebhooks() ([]*Webhook, error) {
	query := `SELECT id, event, url, headers, secret, enabled, created_at FROM webhooks ORDER BY created_at DESC`

	rows, err := wn.db.Query(query)
	if err != nil {
		return nil, types.WrapError(err, "failed to query webhooks")
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			wn.logger.Error("Failed to close database rows", zap.Error(err))
		}
	}(rows)

	var webhooks []*Webhook
	for rows.Next() {
		webhook, err := wn.scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, webhook)
	}

	return webhooks, nil
}

func (wn *WebhookNotifier) getWebhookByID(id string) (*Webhook, error) {
	query := `SELECT id, event, url, headers, secret, enabled, created_at
			  FROM webhooks WHERE id = ?`

	webhook := &Webhook{}
	var headersJSON string

	err := wn.db.QueryRow(query, id).Scan(&webhook.ID, &webhook.Event, &webhook.URL,
		&headersJSON, &webhook.Secret, &webhook.Enabled, &webhook.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, types.ErrWebhookNotFound
	}
	if err != nil {
		return nil, types.WrapError(err, "failed to get webhook")
	}

	wn.parseHeaders(webhook, headersJSON)
	return webhook, nil
}

func (wn *WebhookNotifier) updateWebhook(webhook *Webhook) error {
	headersJSON, err := utils.Marshal(webhook.Headers)
	if err != nil {
		return types.WrapError(err, "failed to marshal headers")
	}

	query := `UPDATE webhooks SET event = ?, url = ?, headers = ?, enabled = ? WHERE id = ?`

	_, err = wn.db.Exec(query, webhook.Event, webhook.URL, string(headersJSON), webhook.Enabled, webhook.ID)
	if err != nil {
		return types.WrapError(err, "failed to update webhook")
	}

	return nil
}

func (wn *WebhookNotifier) deleteWebhook(id string) error {
	query := `DELETE FROM webhooks WHERE id = ?`

	result, err := wn.db.Exec(query, id)
	if err != nil {
		return types.WrapError(err, "failed to delete webhook")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return types.WrapError(err, "failed to check deletion result")
	}
	if affected == 0 {
		return types.ErrWebhookNotFound
	}

	return nil
}
