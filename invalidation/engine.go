// Package invalidation turns data-change events into cache purges.
//
// Every event purges the dependency entry of the changed item and
// drops the cached results that depended on it. Creation events also
// purge the per-type list entry, a brand-new item changes the result
// of any list query over that type even though no cached result ever
// touched the item itself.
package invalidation

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-graphql-cache/types"
)

// Notifier is told which cache keys a mutation purged. Delivery
// failures never fail the purge.
type Notifier interface {
	NotifyPurged(ctx context.Context, event *types.MutationEvent, purgedKeys []string)
}

type Engine struct {
	store    types.DependencyStore
	logger   types.Logger
	metrics  types.MetricsManager
	notifier Notifier
}

func NewEngine(store types.DependencyStore, logger types.Logger, metrics types.MetricsManager) (*Engine, error) {
	if store == nil {
		return nil, types.ErrStoreUnavailable
	}

	return &Engine{
		store:   store,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// SetNotifier attaches a purge notifier. Must be called before the
// engine starts receiving events.
func (e *Engine) SetNotifier(notifier Notifier) {
	e.notifier = notifier
}

// HandleMutation processes one data-change event. Handling the same
// event twice is harmless: the second pass finds nothing left to
// purge. A returned error means some purge or result deletion failed
// and the event should be redelivered.
func (e *Engine) HandleMutation(ctx context.Context, event *types.MutationEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	start := time.Now()

	purged, err := e.PurgeByItem(ctx, event.Type, event.ItemID)
	if err != nil {
		e.observe(event, "error", start)
		return err
	}

	if event.Kind == types.ChangeCreated {
		byType, typeErr := e.PurgeByType(ctx, event.Type)
		if typeErr != nil {
			e.observe(event, "error", start)
			return typeErr
		}
		purged = mergeKeys(purged, byType)
	}

	e.logger.Debug("Mutation handled",
		zap.String("type", event.Type),
		zap.String("item_id", event.ItemID),
		zap.String("kind", string(event.Kind)),
		zap.Int("purged_keys", len(purged)))

	if e.notifier != nil && len(purged) > 0 {
		e.notifier.NotifyPurged(ctx, event, purged)
	}

	e.observe(event, "ok", start)
	return nil
}

// PurgeByItem drops the dependency entry for one item and deletes the
// results it kept alive. Returns the purged cache keys.
func (e *Engine) PurgeByItem(ctx context.Context, typeName, id string) ([]string, error) {
	return e.purge(ctx, types.NamespaceItem, types.ItemKey(typeName, id))
}

// PurgeByType drops the per-type list entry.
func (e *Engine) PurgeByType(ctx context.Context, typeName string) ([]string, error) {
	return e.purge(ctx, types.NamespaceType, typeName)
}

// PurgeByURL drops the entry for one request path.
func (e *Engine) PurgeByURL(ctx context.Context, path string) ([]string, error) {
	return e.purge(ctx, types.NamespaceURL, path)
}

// PurgeAll clears the dependency map and the result cache.
func (e *Engine) PurgeAll(ctx context.Context) error {
	if err := e.store.PurgeAll(ctx); err != nil {
		return types.WrapError(err, "failed to purge store")
	}

	e.logger.Info("Purged all cached results")
	return nil
}

func (e *Engine) purge(ctx context.Context, ns types.Namespace, key string) ([]string, error) {
	purged, err := e.store.Purge(ctx, ns, key)
	if err != nil {
		return nil, types.WrapError(err, "failed to purge dependency entry")
	}

	var failed []string
	for _, cacheKey := range purged {
		if err := e.store.DeleteResult(ctx, cacheKey); err != nil {
			e.logger.Error("Failed to delete cached result",
				zap.String("cache_key", cacheKey),
				zap.Error(err))
			failed = append(failed, cacheKey)
		}
	}

	if len(failed) > 0 {
		return purged, types.Errorf(types.ErrStoreUnavailable,
			"failed to delete results: %s", strings.Join(failed, ", "))
	}

	return purged, nil
}

// SweepStaleEdges walks every dependency entry and removes cache keys
// whose results no longer exist. Stale edges accumulate when a cache
// key is purged through one entry while other entries still point at
// it; they are harmless but waste space. Returns the number of edges
// removed.
func (e *Engine) SweepStaleEdges(ctx context.Context) (int, error) {
	removed := 0

	for _, ns := range []types.Namespace{types.NamespaceItem, types.NamespaceType, types.NamespaceURL} {
		keys, err := e.store.Keys(ctx, ns)
		if err != nil {
			return removed, types.WrapError(err, "failed to list dependency keys")
		}

		for _, key := range keys {
			members, err := e.store.Get(ctx, ns, key)
			if err != nil {
				return removed, types.WrapError(err, "failed to read dependency entry")
			}

			var stale []string
			for _, cacheKey := range members {
				_, found, err := e.store.FetchResult(ctx, cacheKey)
				if err != nil {
					return removed, types.WrapError(err, "failed to check result")
				}
				if !found {
					stale = append(stale, cacheKey)
				}
			}

			if len(stale) == 0 {
				continue
			}

			if err := e.store.Remove(ctx, ns, key, stale...); err != nil {
				return removed, types.WrapError(err, "failed to remove stale edges")
			}
			removed += len(stale)
		}
	}

	if removed > 0 {
		e.logger.Info("Swept stale dependency edges", zap.Int("removed", removed))
	}

	if e.metrics != nil {
		e.metrics.Counter("sweep_removed_edges_total", nil).Add(float64(removed))
	}

	return removed, nil
}

func (e *Engine) observe(event *types.MutationEvent, status string, start time.Time) {
	if e.metrics == nil {
		return
	}

	e.metrics.Counter("invalidation_events_total", map[string]string{
		"kind":   string(event.Kind),
		"status": status,
	}).Inc()

	e.metrics.Histogram("invalidation_duration_seconds",
		[]float64{0.001, 0.01, 0.1, 1},
		map[string]string{"kind": string(event.Kind)},
	).ObserveDuration(start)
}

func mergeKeys(a, b []string) []string {
	if len(b) == 0 {
		return a
	}

	seen := make(map[string]struct{}, len(a)+len(b))
	merged := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, key := range list {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, key)
		}
	}

	return merged
}
