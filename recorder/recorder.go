// Package recorder accumulates the items a single request touches
// while its query executes. The accumulator rides on the request
// context, so concurrent requests never see each other's items and
// nothing leaks between requests once the context is gone.
package recorder

import (
	"context"
	"sort"
	"sync"

	"github.com/saiset-co/sai-graphql-cache/types"
)

type contextKey struct{}

type Recorder struct {
	mu    sync.Mutex
	items map[types.TouchedItem]struct{}
}

// With returns a child context carrying a fresh recorder.
func With(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, &Recorder{
		items: make(map[types.TouchedItem]struct{}),
	})
}

// From extracts the recorder carried by ctx, if any.
func From(ctx context.Context) (*Recorder, bool) {
	rec, ok := ctx.Value(contextKey{}).(*Recorder)
	return rec, ok
}

// Record notes that the request touched the item with the given type
// and id. Recording the same item twice is a no-op. Calls on a context
// without a recorder return ErrRecorderMissing; item loading itself is
// never interrupted by that.
func Record(ctx context.Context, typeName, id string) error {
	rec, ok := From(ctx)
	if !ok {
		return types.ErrRecorderMissing
	}

	rec.add(typeName, id)
	return nil
}

// Drain returns every item recorded so far, sorted for stable output.
// The recorder keeps its contents, draining twice yields the same set.
func Drain(ctx context.Context) ([]types.TouchedItem, error) {
	rec, ok := From(ctx)
	if !ok {
		return nil, types.ErrRecorderMissing
	}

	return rec.Items(), nil
}

func (r *Recorder) add(typeName, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[types.TouchedItem{Type: typeName, ID: id}] = struct{}{}
}

func (r *Recorder) Items() []types.TouchedItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]types.TouchedItem, 0, len(r.items))
	for item := range r.items {
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Type != items[j].Type {
			return items[i].Type < items[j].Type
		}
		return items[i].ID < items[j].ID
	})

	return items
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
