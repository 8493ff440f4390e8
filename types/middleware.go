package types

import "github.com/valyala/fasthttp"

type MiddlewareManager interface {
	RegisterMiddlewares() error
	Register(middleware Middleware) error
	Execute(ctx *fasthttp.RequestCtx, handler FastHTTPHandler, config *RouteConfig)
	Clear()
}

type Middleware interface {
	Name() string
	Weight() int
	Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), config *RouteConfig)
}

type MiddlewareEntry struct {
	Name       string
	Middleware Middleware
	Weight     int
}
