package store

import (
	"context"
	"encoding/base64"
	"sync"
	"sync/atomic"
	"time"

	clover "github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-graphql-cache/types"
	"github.com/saiset-co/sai-graphql-cache/utils"
)

const (
	depsCollection    = "dependencies"
	resultsCollection = "results"

	casMaxRetries = 5
	casBackoff    = 5 * time.Millisecond
)

type CloverConfig struct {
	Path string `json:"path"`
}

// CloverStore persists the dependency map in an embedded clover
// database. Clover has no native set type, set unions go through a
// versioned compare-and-swap loop: read the document, write the new
// member list guarded by the version we read, verify, retry with
// backoff on a lost race.
type CloverStore struct {
	ctx      context.Context
	logger   types.Logger
	codec    *Codec
	db       *clover.DB
	insertMu sync.Mutex
	started  int32
}

func NewCloverStore(ctx context.Context, logger types.Logger, config *types.StoreConfig) (types.DependencyStore, error) {
	cloverConfig := &CloverConfig{
		Path: "graphql-cache.db",
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, cloverConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal clover store config")
		}
	}

	db, err := clover.Open(cloverConfig.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open clover database")
	}

	for _, name := range []string{depsCollection, resultsCollection} {
		has, err := db.HasCollection(name)
		if err != nil {
			return nil, types.WrapError(err, "failed to check collection")
		}
		if !has {
			if err := db.CreateCollection(name); err != nil {
				return nil, types.WrapError(err, "failed to create collection")
			}
		}
	}

	return &CloverStore{
		ctx:    ctx,
		logger: logger,
		codec:  NewCodec(config.Compression),
		db:     db,
	}, nil
}

func (c *CloverStore) Start() error {
	if !atomic.CompareAndSwapInt32(&c.started, 0, 1) {
		return types.ErrServerAlreadyRunning
	}
	return nil
}

func (c *CloverStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&c.started, 1, 0) {
		return types.ErrServerNotRunning
	}

	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close clover database", zap.Error(err))
		return types.WrapError(err, "failed to close clover database")
	}

	return nil
}

func (c *CloverStore) IsRunning() bool {
	return atomic.LoadInt32(&c.started) == 1
}

func (c *CloverStore) depQuery(ns types.Namespace, key string) *clover.Query {
	return c.db.Query(depsCollection).Where(
		clover.Field("ns").Eq(string(ns)).And(clover.Field("key").Eq(key)),
	)
}

func (c *CloverStore) Get(_ context.Context, ns types.Namespace, key string) ([]string, error) {
	if key == "" {
		return nil, types.ErrStoreKeyEmpty
	}

	doc, err := c.depQuery(ns, key).FindFirst()
	if err != nil {
		return nil, types.WrapError(err, "failed to read dependency set")
	}
	if doc == nil {
		return nil, nil
	}

	return docMembers(doc), nil
}

func (c *CloverStore) Associate(_ context.Context, ns types.Namespace, key, cacheKey string) error {
	if key == "" {
		return types.ErrStoreKeyEmpty
	}
	if cacheKey == "" {
		return types.ErrCacheKeyEmpty
	}

	for attempt := 0; attempt < casMaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(casBackoff * time.Duration(attempt))
		}

		doc, err := c.depQuery(ns, key).FindFirst()
		if err != nil {
			return types.WrapError(err, "failed to read dependency set")
		}

		if doc == nil {
			if c.insertMissing(ns, key, cacheKey) {
				return nil
			}
			continue
		}

		members := docMembers(doc)
		if contains(members, cacheKey) {
			return nil
		}

		version := docVersion(doc)
		guarded := c.db.Query(depsCollection).Where(
			clover.Field("ns").Eq(string(ns)).
				And(clover.Field("key").Eq(key)).
				And(clover.Field("version").Eq(version)),
		)

		update := map[string]interface{}{
			"members": append(members, cacheKey),
			"version": version + 1,
		}

		if err := guarded.Update(update); err != nil {
			return types.WrapError(err, "failed to update dependency set")
		}

		if c.verifyMember(ns, key, cacheKey) {
			return nil
		}
	}

	return types.Errorf(types.ErrAssociateConflict, "namespace: %s, key: %s", ns, key)
}

// insertMissing creates the first document for a key. The mutex only
// covers the insert race inside this process, clover is embedded so
// there is no second writer.
func (c *CloverStore) insertMissing(ns types.Namespace, key, cacheKey string) bool {
	c.insertMu.Lock()
	defer c.insertMu.Unlock()

	doc, err := c.depQuery(ns, key).FindFirst()
	if err != nil || doc != nil {
		return false
	}

	fresh := clover.NewDocument()
	fresh.Set("ns", string(ns))
	fresh.Set("key", key)
	fresh.Set("members", []string{cacheKey})
	fresh.Set("version", int64(1))

	if err := c.db.Insert(depsCollection, fresh); err != nil {
		c.logger.Warn("Failed to insert dependency set", zap.Error(err))
		return false
	}

	return true
}

func (c *CloverStore) verifyMember(ns types.Namespace, key, cacheKey string) bool {
	doc, err := c.depQuery(ns, key).FindFirst()
	if err != nil || doc == nil {
		return false
	}
	return contains(docMembers(doc), cacheKey)
}

func (c *CloverStore) Remove(_ context.Context, ns types.Namespace, key string, cacheKeys ...string) error {
	if key == "" {
		return types.ErrStoreKeyEmpty
	}
	if len(cacheKeys) == 0 {
		return nil
	}

	for attempt := 0; attempt < casMaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(casBackoff * time.Duration(attempt))
		}

		doc, err := c.depQuery(ns, key).FindFirst()
		if err != nil {
			return types.WrapError(err, "failed to read dependency set")
		}
		if doc == nil {
			return nil
		}

		members := docMembers(doc)
		remaining := members[:0:0]
		for _, member := range members {
			if !contains(cacheKeys, member) {
				remaining = append(remaining, member)
			}
		}

		if len(remaining) == len(members) {
			return nil
		}

		if len(remaining) == 0 {
			if err := c.depQuery(ns, key).Delete(); err != nil {
				return types.WrapError(err, "failed to delete dependency set")
			}
			return nil
		}

		version := docVersion(doc)
		guarded := c.db.Query(depsCollection).Where(
			clover.Field("ns").Eq(string(ns)).
				And(clover.Field("key").Eq(key)).
				And(clover.Field("version").Eq(version)),
		)

		update := map[string]interface{}{
			"members": remaining,
			"version": version + 1,
		}

		if err := guarded.Update(update); err != nil {
			return types.WrapError(err, "failed to update dependency set")
		}

		doc, err = c.depQuery(ns, key).FindFirst()
		if err != nil {
			return types.WrapError(err, "failed to verify dependency set")
		}
		if doc == nil || docVersion(doc) >= version+1 {
			return nil
		}
	}

	return types.Errorf(types.ErrAssociateConflict, "namespace: %s, key: %s", ns, key)
}

func (c *CloverStore) Purge(_ context.Context, ns types.Namespace, key string) ([]string, error) {
	if key == "" {
		return nil, types.ErrStoreKeyEmpty
	}

	doc, err := c.depQuery(ns, key).FindFirst()
	if err != nil {
		return nil, types.WrapError(err, "failed to read dependency set")
	}
	if doc == nil {
		return nil, nil
	}

	if err := c.depQuery(ns, key).Delete(); err != nil {
		return nil, types.WrapError(err, "failed to delete dependency set")
	}

	return docMembers(doc), nil
}

func (c *CloverStore) PurgeAll(_ context.Context) error {
	if err := c.db.Query(depsCollection).Delete(); err != nil {
		return types.WrapError(err, "failed to purge dependency sets")
	}
	if err := c.db.Query(resultsCollection).Delete(); err != nil {
		return types.WrapError(err, "failed to purge results")
	}
	return nil
}

func (c *CloverStore) Keys(_ context.Context, ns types.Namespace) ([]string, error) {
	docs, err := c.db.Query(depsCollection).
		Where(clover.Field("ns").Eq(string(ns))).
		FindAll()
	if err != nil {
		return nil, types.WrapError(err, "failed to list dependency keys")
	}

	keys := make([]string, 0, len(docs))
	for _, doc := range docs {
		if key, ok := doc.Get("key").(string); ok {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

func (c *CloverStore) StoreResult(_ context.Context, cacheKey string, result []byte) error {
	if cacheKey == "" {
		return types.ErrCacheKeyEmpty
	}

	data, err := c.codec.Encode(result)
	if err != nil {
		return err
	}

	query := c.db.Query(resultsCollection).Where(clover.Field("cache_key").Eq(cacheKey))
	if err := query.Delete(); err != nil {
		return types.WrapError(err, "failed to replace result")
	}

	doc := clover.NewDocument()
	doc.Set("cache_key", cacheKey)
	doc.Set("payload", base64.StdEncoding.EncodeToString(data))

	if err := c.db.Insert(resultsCollection, doc); err != nil {
		return types.WrapError(err, "failed to store result")
	}

	return nil
}

func (c *CloverStore) FetchResult(_ context.Context, cacheKey string) ([]byte, bool, error) {
	if cacheKey == "" {
		return nil, false, types.ErrCacheKeyEmpty
	}

	doc, err := c.db.Query(resultsCollection).
		Where(clover.Field("cache_key").Eq(cacheKey)).
		FindFirst()
	if err != nil {
		return nil, false, types.WrapError(err, "failed to fetch result")
	}
	if doc == nil {
		return nil, false, nil
	}

	payload, ok := doc.Get("payload").(string)
	if !ok {
		return nil, false, nil
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, false, types.WrapError(err, "failed to decode result payload")
	}

	result, err := c.codec.Decode(data)
	if err != nil {
		return nil, false, err
	}

	return result, true, nil
}

func (c *CloverStore) DeleteResult(_ context.Context, cacheKey string) error {
	if cacheKey == "" {
		return types.ErrCacheKeyEmpty
	}

	query := c.db.Query(resultsCollection).Where(clover.Field("cache_key").Eq(cacheKey))
	if err := query.Delete(); err != nil {
		return types.WrapError(err, "failed to delete result")
	}

	return nil
}

func docMembers(doc *clover.Document) []string {
	raw := doc.Get("members")

	switch value := raw.(type) {
	case []string:
		return value
	case []interface{}:
		members := make([]string, 0, len(value))
		for _, item := range value {
			if member, ok := item.(string); ok {
				members = append(members, member)
			}
		}
		return members
	default:
		return nil
	}
}

func docVersion(doc *clover.Document) int64 {
	switch value := doc.Get("version").(type) {
	case int64:
		return value
	case float64:
		return int64(value)
	case uint64:
		return int64(value)
	default:
		return 0
	}
}

func contains(list []string, target string) bool {
	if len(list) == 0 {
		return false
	}
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
