package server

import (
	"bytes"
	"sync"

	"github.com/saiset-co/sai-graphql-cache/types"
	"github.com/saiset-co/sai-graphql-cache/utils"
)

// defaultRouteConfig applies to routes registered through the method
// shorthands. Convenience routes never hit the cache middleware.
func defaultRouteConfig() *types.RouteConfig {
	return &types.RouteConfig{
		Cacheable:           false,
		DisabledMiddlewares: []string{"cache"},
	}
}

// Router maps method:path pairs to handlers. Every route in this
// service is static, so a flat map with a stack-allocated key build on
// the hot path is all the routing we need.
type Router struct {
	routes     map[string]*types.RouteInfo
	mu         sync.RWMutex
	keyBuilder sync.Pool
}

func NewRouter() *Router {
	return &Router{
		routes: make(map[string]*types.RouteInfo),
		keyBuilder: sync.Pool{
			New: func() interface{} {
				return make([]byte, 0, 64)
			},
		},
	}
}

func (r *Router) Add(method, path string, handler types.FastHTTPHandler, config *types.RouteConfig) {
	if handler == nil || path == "" {
		return
	}

	if config == nil {
		config = defaultRouteConfig()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes[method+":"+path] = &types.RouteInfo{
		Handler: handler,
		Config:  config,
	}
}

func (r *Router) GET(path string, handler types.FastHTTPHandler) {
	r.Add("GET", path, handler, defaultRouteConfig())
}

func (r *Router) POST(path string, handler types.FastHTTPHandler) {
	r.Add("POST", path, handler, defaultRouteConfig())
}

func (r *Router) DELETE(path string, handler types.FastHTTPHandler) {
	r.Add("DELETE", path, handler, defaultRouteConfig())
}

func (r *Router) Lookup(method, path string) (types.FastHTTPHandler, *types.RouteConfig, bool) {
	r.mu.RLock()
	info := r.routes[method+":"+path]
	r.mu.RUnlock()

	if info == nil {
		return nil, nil, false
	}
	return info.Handler, info.Config, true
}

// find resolves a request without allocating the lookup key for the
// common short-path case.
func (r *Router) find(method, path []byte) (types.FastHTTPHandler, *types.RouteConfig) {
	if bytes.ContainsAny(path, "{}:") {
		return nil, nil
	}

	if len(method)+len(path) <= 30 {
		var buf [32]byte
		n := copy(buf[:], method)
		buf[n] = ':'
		copy(buf[n+1:], path)
		key := string(buf[:n+1+len(path)])

		r.mu.RLock()
		info := r.routes[key]
		r.mu.RUnlock()

		if info != nil {
			return info.Handler, info.Config
		}
		return nil, nil
	}

	buf := r.keyBuilder.Get().([]byte)
	buf = buf[:0]
	buf = append(buf, method...)
	buf = append(buf, ':')
	buf = append(buf, path...)

	key := utils.Intern(buf)
	r.keyBuilder.Put(buf)

	r.mu.RLock()
	info := r.routes[key]
	r.mu.RUnlock()

	if info != nil {
		return info.Handler, info.Config
	}
	return nil, nil
}

// Routes returns a snapshot of the registered routes, keyed method:path.
func (r *Router) Routes() map[string]*types.RouteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make(map[string]*types.RouteInfo, len(r.routes))
	for key, info := range r.routes {
		routes[key] = info
	}
	return routes
}
