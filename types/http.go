package types

import (
	"time"

	"github.com/valyala/fasthttp"
)

type FastHTTPHandler func(ctx *fasthttp.RequestCtx)

type HTTPServer interface {
	LifecycleManager
}

type HTTPRouter interface {
	Add(method, path string, handler FastHTTPHandler, config *RouteConfig)
	GET(path string, handler FastHTTPHandler)
	POST(path string, handler FastHTTPHandler)
	DELETE(path string, handler FastHTTPHandler)
	Lookup(method, path string) (FastHTTPHandler, *RouteConfig, bool)
}

type RouteInfo struct {
	Handler FastHTTPHandler
	Config  *RouteConfig
}

type RouteConfig struct {
	Cacheable           bool
	DisabledMiddlewares []string
	Timeout             time.Duration
}
