package types

import (
	"context"
)

// Namespace partitions the dependency map. Key shapes on the wire are
// item:<type>:<id>, type:<name> and url:<path>.
type Namespace string

const (
	NamespaceItem Namespace = "item"
	NamespaceType Namespace = "type"
	NamespaceURL  Namespace = "url"
)

// DependencyStore is the persistent multi-map from item/type/url keys to the
// cache keys depending on them, plus the result cache itself.
//
// Associate must be an atomic set union: two concurrent Associate calls
// against the same (namespace, key) must both survive. Backends either use a
// store-native set primitive or a bounded compare-and-swap retry loop, never
// an unguarded read-then-write.
//
// A missing (namespace, key) is not an error anywhere: Get and Purge return
// an empty set, FetchResult reports a miss.
type DependencyStore interface {
	LifecycleManager
	Get(ctx context.Context, ns Namespace, key string) ([]string, error)
	Associate(ctx context.Context, ns Namespace, key, cacheKey string) error
	Remove(ctx context.Context, ns Namespace, key string, cacheKeys ...string) error
	Purge(ctx context.Context, ns Namespace, key string) ([]string, error)
	PurgeAll(ctx context.Context) error
	Keys(ctx context.Context, ns Namespace) ([]string, error)
	StoreResult(ctx context.Context, cacheKey string, result []byte) error
	FetchResult(ctx context.Context, cacheKey string) ([]byte, bool, error)
	DeleteResult(ctx context.Context, cacheKey string) error
}

type DependencyStoreCreator func(config interface{}) (DependencyStore, error)

// ItemKey encodes a touched item as the dependency-namespace local key.
func ItemKey(typeName, id string) string {
	return typeName + ":" + id
}
