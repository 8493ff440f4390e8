package store

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-graphql-cache/types"
	"github.com/saiset-co/sai-graphql-cache/utils"
)

type RedisConfig struct {
	Host               string        `json:"host"`
	Port               int           `json:"port"`
	Password           string        `json:"password"`
	DB                 int           `json:"db"`
	PoolSize           int           `json:"pool_size"`
	MinIdleConnections int           `json:"min_idle_connections"`
	DialTimeout        time.Duration `json:"dial_timeout"`
	ReadTimeout        time.Duration `json:"read_timeout"`
	WriteTimeout       time.Duration `json:"write_timeout"`
	ScanCount          int64         `json:"scan_count"`
}

// RedisStore backs the dependency map with redis sets. SADD is the
// set-union primitive, so concurrent Associate calls against the same
// key need no coordination on our side.
type RedisStore struct {
	ctx       context.Context
	logger    types.Logger
	config    *RedisConfig
	codec     *Codec
	client    *redis.Client
	keyPrefix string
	started   int32
}

func NewRedisStore(ctx context.Context, logger types.Logger, config *types.StoreConfig) (types.DependencyStore, error) {
	redisConfig := &RedisConfig{
		Host:               "localhost",
		Port:               6379,
		DB:                 0,
		PoolSize:           10,
		MinIdleConnections: 2,
		DialTimeout:        5 * time.Second,
		ReadTimeout:        3 * time.Second,
		WriteTimeout:       3 * time.Second,
		ScanCount:          200,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, redisConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis store config")
		}
	}

	store := &RedisStore{
		ctx:       ctx,
		logger:    logger,
		config:    redisConfig,
		codec:     NewCodec(config.Compression),
		keyPrefix: config.KeyPrefix,
	}

	store.client = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		PoolSize:     redisConfig.PoolSize,
		MinIdleConns: redisConfig.MinIdleConnections,
		DialTimeout:  redisConfig.DialTimeout,
		ReadTimeout:  redisConfig.ReadTimeout,
		WriteTimeout: redisConfig.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := store.client.Ping(pingCtx).Err(); err != nil {
		return nil, types.WrapError(err, "failed to connect to redis")
	}

	return store, nil
}

func (r *RedisStore) Start() error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return types.ErrServerAlreadyRunning
	}
	return nil
}

func (r *RedisStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.started, 1, 0) {
		return types.ErrServerNotRunning
	}

	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close redis client", zap.Error(err))
		return types.WrapError(err, "failed to close redis client")
	}

	return nil
}

func (r *RedisStore) IsRunning() bool {
	return atomic.LoadInt32(&r.started) == 1
}

func (r *RedisStore) Get(ctx context.Context, ns types.Namespace, key string) ([]string, error) {
	if key == "" {
		return nil, types.ErrStoreKeyEmpty
	}

	members, err := r.client.SMembers(ctx, r.depKey(ns, key)).Result()
	if err != nil {
		return nil, types.WrapError(err, "failed to read dependency set")
	}

	return members, nil
}

func (r *RedisStore) Associate(ctx context.Context, ns types.Namespace, key, cacheKey string) error {
	if key == "" {
		return types.ErrStoreKeyEmpty
	}
	if cacheKey == "" {
		return types.ErrCacheKeyEmpty
	}

	if err := r.client.SAdd(ctx, r.depKey(ns, key), cacheKey).Err(); err != nil {
		return types.WrapError(err, "failed to associate cache key")
	}

	return nil
}

func (r *RedisStore) Remove(ctx context.Context, ns types.Namespace, key string, cacheKeys ...string) error {
	if key == "" {
		return types.ErrStoreKeyEmpty
	}
	if len(cacheKeys) == 0 {
		return nil
	}

	members := make([]interface{}, len(cacheKeys))
	for i, cacheKey := range cacheKeys {
		members[i] = cacheKey
	}

	if err := r.client.SRem(ctx, r.depKey(ns, key), members...).Err(); err != nil {
		return types.WrapError(err, "failed to remove cache keys")
	}

	return nil
}

func (r *RedisStore) Purge(ctx context.Context, ns types.Namespace, key string) ([]string, error) {
	if key == "" {
		return nil, types.ErrStoreKeyEmpty
	}

	fullKey := r.depKey(ns, key)

	var membersCmd *redis.StringSliceCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		membersCmd = pipe.SMembers(ctx, fullKey)
		pipe.Del(ctx, fullKey)
		return nil
	})
	if err != nil {
		return nil, types.WrapError(err, "failed to purge dependency set")
	}

	return membersCmd.Val(), nil
}

func (r *RedisStore) PurgeAll(ctx context.Context) error {
	return r.deleteByPattern(ctx, r.prefixed("*"))
}

func (r *RedisStore) Keys(ctx context.Context, ns types.Namespace) ([]string, error) {
	prefix := r.prefixed(fmt.Sprintf("dep:%s:", ns))

	var keys []string
	var cursor uint64

	for {
		batch, next, err := r.client.Scan(ctx, cursor, prefix+"*", r.config.ScanCount).Result()
		if err != nil {
			return nil, types.WrapError(err, "failed to scan dependency keys")
		}

		for _, full := range batch {
			keys = append(keys, strings.TrimPrefix(full, prefix))
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

func (r *RedisStore) StoreResult(ctx context.Context, cacheKey string, result []byte) error {
	if cacheKey == "" {
		return types.ErrCacheKeyEmpty
	}

	data, err := r.codec.Encode(result)
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, r.resultKey(cacheKey), data, 0).Err(); err != nil {
		return types.WrapError(err, "failed to store result")
	}

	return nil
}

func (r *RedisStore) FetchResult(ctx context.Context, cacheKey string) ([]byte, bool, error) {
	if cacheKey == "" {
		return nil, false, types.ErrCacheKeyEmpty
	}

	data, err := r.client.Get(ctx, r.resultKey(cacheKey)).Bytes()
	if err != nil {
		if types.IsError(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, types.WrapError(err, "failed to fetch result")
	}

	result, err := r.codec.Decode(data)
	if err != nil {
		return nil, false, err
	}

	return result, true, nil
}

func (r *RedisStore) DeleteResult(ctx context.Context, cacheKey string) error {
	if cacheKey == "" {
		return types.ErrCacheKeyEmpty
	}

	if err := r.client.Del(ctx, r.resultKey(cacheKey)).Err(); err != nil {
		return types.WrapError(err, "failed to delete result")
	}

	return nil
}

func (r *RedisStore) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64

	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, r.config.ScanCount).Result()
		if err != nil {
			return types.WrapError(err, "failed to scan keys")
		}

		if len(batch) > 0 {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return types.WrapError(err, "failed to delete keys")
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (r *RedisStore) depKey(ns types.Namespace, key string) string {
	return r.prefixed(fmt.Sprintf("dep:%s:%s", ns, key))
}

func (r *RedisStore) resultKey(cacheKey string) string {
	return r.prefixed("res:" + cacheKey)
}

func (r *RedisStore) prefixed(key string) string {
	if r.keyPrefix != "" {
		return r.keyPrefix + ":" + key
	}
	return key
}
