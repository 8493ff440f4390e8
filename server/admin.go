package server

import (
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-graphql-cache/invalidation"
	"github.com/saiset-co/sai-graphql-cache/types"
	"github.com/saiset-co/sai-graphql-cache/utils"
)

// AdminHandler exposes the operational surface: manual purges, raw
// cache inspection and synthetic mutation events.
type AdminHandler struct {
	logger  types.Logger
	metrics types.MetricsManager
	engine  *invalidation.Engine
	cache   types.QueryCache
	broker  types.EventBroker
}

type purgeRequest struct {
	Scope string `json:"scope"`
	Type  string `json:"type,omitempty"`
	ID    string `json:"id,omitempty"`
	URL   string `json:"url,omitempty"`
}

type purgeResponse struct {
	Scope      string   `json:"scope"`
	PurgedKeys []string `json:"purged_keys"`
	Count      int      `json:"count"`
}

type eventRequest struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id"`
	Kind   string `json:"kind"`
	Source string `json:"source,omitempty"`
}

func NewAdminHandler(logger types.Logger, metrics types.MetricsManager, engine *invalidation.Engine, cache types.QueryCache, broker types.EventBroker) *AdminHandler {
	return &AdminHandler{
		logger:  logger,
		metrics: metrics,
		engine:  engine,
		cache:   cache,
		broker:  broker,
	}
}

func (a *AdminHandler) RegisterRoutes(router types.HTTPRouter) {
	config := &types.RouteConfig{
		Cacheable:           false,
		DisabledMiddlewares: []string{"cache"},
		Timeout:             10 * time.Second,
	}

	router.Add("POST", "/admin/purge", a.handlePurge, config)
	router.Add("GET", "/admin/cache", a.handleCacheLookup, config)
	router.Add("POST", "/admin/events", a.handleEvent, config)
}

func (a *AdminHandler) handlePurge(ctx *fasthttp.RequestCtx) {
	var req purgeRequest
	if err := utils.Unmarshal(ctx.PostBody(), &req); err != nil {
		a.writeError(ctx, fasthttp.StatusBadRequest, "invalid request body")
		return
	}

	var (
		purged []string
		err    error
	)

	switch req.Scope {
	case "item":
		if req.Type == "" || req.ID == "" {
			a.writeError(ctx, fasthttp.StatusBadRequest, "item purge needs type and id")
			return
		}
		purged, err = a.engine.PurgeByItem(ctx, req.Type, req.ID)
	case "type":
		if req.Type == "" {
			a.writeError(ctx, fasthttp.StatusBadRequest, "type purge needs type")
			return
		}
		purged, err = a.engine.PurgeByType(ctx, req.Type)
	case "url":
		if req.URL == "" {
			a.writeError(ctx, fasthttp.StatusBadRequest, "url purge needs url")
			return
		}
		purged, err = a.engine.PurgeByURL(ctx, req.URL)
	case "all":
		err = a.engine.PurgeAll(ctx)
	default:
		a.writeError(ctx, fasthttp.StatusBadRequest, "scope must be item, type, url or all")
		return
	}

	if err != nil {
		a.logger.Error("Admin purge failed",
			zap.String("scope", req.Scope),
			zap.Error(err))
		a.writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}

	a.observeOperation("purge", req.Scope)

	a.writeJSON(ctx, fasthttp.StatusOK, purgeResponse{
		Scope:      req.Scope,
		PurgedKeys: purged,
		Count:      len(purged),
	})
}

func (a *AdminHandler) handleCacheLookup(ctx *fasthttp.RequestCtx) {
	key := string(ctx.QueryArgs().Peek("key"))
	if key == "" {
		a.writeError(ctx, fasthttp.StatusBadRequest, "key parameter required")
		return
	}

	result, found, err := a.cache.Lookup(ctx, key)
	if err != nil {
		a.writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}

	if !found {
		a.writeError(ctx, fasthttp.StatusNotFound, "no cached result for key")
		return
	}

	a.observeOperation("lookup", "cache")

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(result)
}

// handleEvent injects a synthetic mutation event, published through the
// broker when one is running so every subscriber sees it, otherwise
// handed straight to the engine.
func (a *AdminHandler) handleEvent(ctx *fasthttp.RequestCtx) {
	var req eventRequest
	if err := utils.Unmarshal(ctx.PostBody(), &req); err != nil {
		a.writeError(ctx, fasthttp.StatusBadRequest, "invalid request body")
		return
	}

	source := req.Source
	if source == "" {
		source = "admin"
	}

	event := &types.MutationEvent{
		EventID:   uuid.NewString(),
		Type:      req.Type,
		ItemID:    req.ItemID,
		Kind:      types.ChangeKind(req.Kind),
		Timestamp: time.Now(),
		Source:    source,
	}

	if err := event.Validate(); err != nil {
		a.writeError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}

	var err error
	if a.broker != nil && a.broker.IsRunning() {
		err = a.broker.Publish(event)
	} else {
		err = a.engine.HandleMutation(ctx, event)
	}

	if err != nil {
		a.logger.Error("Synthetic mutation event failed",
			zap.String("event_id", event.EventID),
			zap.Error(err))
		a.writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}

	a.observeOperation("event", string(event.Kind))

	a.writeJSON(ctx, fasthttp.StatusAccepted, map[string]string{
		"event_id": event.EventID,
	})
}

func (a *AdminHandler) observeOperation(operation, label string) {
	if a.metrics == nil {
		return
	}

	a.metrics.Counter("admin_operations_total", map[string]string{
		"operation": operation,
		"label":     label,
	}).Inc()
}

func (a *AdminHandler) writeJSON(ctx *fasthttp.RequestCtx, status int, payload interface{}) {
	data, err := utils.Marshal(payload)
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(data)
}

func (a *AdminHandler) writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	a.writeJSON(ctx, status, map[string]string{"error": message})
}
