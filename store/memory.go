package store

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/saiset-co/sai-graphql-cache/types"
)

// MemoryStore keeps the dependency map and result cache in process
// memory. Set unions are atomic under a single mutex, so concurrent
// Associate calls against the same key both survive.
type MemoryStore struct {
	ctx     context.Context
	logger  types.Logger
	codec   *Codec
	sets    map[types.Namespace]map[string]map[string]struct{}
	results map[string][]byte
	mu      sync.RWMutex
	started int32
}

func NewMemoryStore(ctx context.Context, logger types.Logger, config *types.StoreConfig) (types.DependencyStore, error) {
	return &MemoryStore{
		ctx:     ctx,
		logger:  logger,
		codec:   NewCodec(config.Compression),
		sets:    make(map[types.Namespace]map[string]map[string]struct{}),
		results: make(map[string][]byte),
	}, nil
}

func (m *MemoryStore) Start() error {
	if !atomic.CompareAndSwapInt32(&m.started, 0, 1) {
		return types.ErrServerAlreadyRunning
	}
	return nil
}

func (m *MemoryStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.started, 1, 0) {
		return types.ErrServerNotRunning
	}

	m.mu.Lock()
	m.sets = make(map[types.Namespace]map[string]map[string]struct{})
	m.results = make(map[string][]byte)
	m.mu.Unlock()

	return nil
}

func (m *MemoryStore) IsRunning() bool {
	return atomic.LoadInt32(&m.started) == 1
}

func (m *MemoryStore) Get(_ context.Context, ns types.Namespace, key string) ([]string, error) {
	if key == "" {
		return nil, types.ErrStoreKeyEmpty
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return sortedMembers(m.sets[ns][key]), nil
}

func (m *MemoryStore) Associate(_ context.Context, ns types.Namespace, key, cacheKey string) error {
	if key == "" {
		return types.ErrStoreKeyEmpty
	}
	if cacheKey == "" {
		return types.ErrCacheKeyEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	nsSets, ok := m.sets[ns]
	if !ok {
		nsSets = make(map[string]map[string]struct{})
		m.sets[ns] = nsSets
	}

	set, ok := nsSets[key]
	if !ok {
		set = make(map[string]struct{})
		nsSets[key] = set
	}

	set[cacheKey] = struct{}{}
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, ns types.Namespace, key string, cacheKeys ...string) error {
	if key == "" {
		return types.ErrStoreKeyEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[ns][key]
	if !ok {
		return nil
	}

	for _, cacheKey := range cacheKeys {
		delete(set, cacheKey)
	}

	if len(set) == 0 {
		delete(m.sets[ns], key)
	}

	return nil
}

func (m *MemoryStore) Purge(_ context.Context, ns types.Namespace, key string) ([]string, error) {
	if key == "" {
		return nil, types.ErrStoreKeyEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[ns][key]
	if !ok {
		return nil, nil
	}

	delete(m.sets[ns], key)
	return sortedMembers(set), nil
}

func (m *MemoryStore) PurgeAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sets = make(map[types.Namespace]map[string]map[string]struct{})
	m.results = make(map[string][]byte)
	return nil
}

func (m *MemoryStore) Keys(_ context.Context, ns types.Namespace) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nsSets := m.sets[ns]
	keys := make([]string, 0, len(nsSets))
	for key := range nsSets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys, nil
}

func (m *MemoryStore) StoreResult(_ context.Context, cacheKey string, result []byte) error {
	if cacheKey == "" {
		return types.ErrCacheKeyEmpty
	}

	data, err := m.codec.Encode(result)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.results[cacheKey] = data
	m.mu.Unlock()

	return nil
}

func (m *MemoryStore) FetchResult(_ context.Context, cacheKey string) ([]byte, bool, error) {
	if cacheKey == "" {
		return nil, false, types.ErrCacheKeyEmpty
	}

	m.mu.RLock()
	data, ok := m.results[cacheKey]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	result, err := m.codec.Decode(data)
	if err != nil {
		return nil, false, err
	}

	return result, true, nil
}

func (m *MemoryStore) DeleteResult(_ context.Context, cacheKey string) error {
	if cacheKey == "" {
		return types.ErrCacheKeyEmpty
	}

	m.mu.Lock()
	delete(m.results, cacheKey)
	m.mu.Unlock()

	return nil
}

func sortedMembers(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}

	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	sort.Strings(members)

	return members
}
