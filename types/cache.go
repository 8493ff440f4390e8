package types

import (
	"context"
)

// QueryRequest is the immutable identity of one incoming query.
type QueryRequest struct {
	// QueryID is the optional client-supplied identifier. When present it is
	// used verbatim as the cache key.
	QueryID       string                 `json:"queryId,omitempty"`
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	OperationName string                 `json:"operationName,omitempty"`

	// URL is set for idempotent GET requests only; it feeds the url
	// dependency namespace so a fronting proxy can be told which paths
	// to drop.
	URL string `json:"-"`

	// CacheKey is the precomputed key the fronting middleware looked
	// up under (vary digest included). When set it wins over key
	// derivation, so lookup and commit agree without touching the
	// fields forwarded upstream.
	CacheKey string `json:"-"`
}

// TouchedItem identifies one concrete record read while resolving a query.
type TouchedItem struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// QueryCache is the caching core composed per request. The execution engine
// is an external collaborator: it calls OnRequestStart before executing,
// OnItemLoaded once per concrete item it materializes, and OnRequestComplete
// with the final result. Caching never aborts execution: commit failures
// are logged and the result still flows to the caller.
type QueryCache interface {
	LifecycleManager
	OnRequestStart(ctx context.Context, req *QueryRequest) (context.Context, string, error)
	OnItemLoaded(ctx context.Context, typeName, id string)
	OnRequestComplete(ctx context.Context, req *QueryRequest, result []byte) error
	Lookup(ctx context.Context, cacheKey string) ([]byte, bool, error)
	PurgeByItem(ctx context.Context, typeName, id string) error
	PurgeByType(ctx context.Context, typeName string) error
	PurgeAll(ctx context.Context) error
}
