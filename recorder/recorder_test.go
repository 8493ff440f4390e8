package recorder

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-graphql-cache/types"
)

func TestRecord_WithoutRecorderFails(t *testing.T) {
	err := Record(context.Background(), "Post", "1")
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrRecorderMissing))
}

func TestRecord_IsIdempotent(t *testing.T) {
	ctx := With(context.Background())

	require.NoError(t, Record(ctx, "Post", "1"))
	require.NoError(t, Record(ctx, "Post", "1"))
	require.NoError(t, Record(ctx, "Post", "2"))

	items, err := Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.TouchedItem{
		{Type: "Post", ID: "1"},
		{Type: "Post", ID: "2"},
	}, items)
}

func TestDrain_DoesNotClear(t *testing.T) {
	ctx := With(context.Background())
	require.NoError(t, Record(ctx, "User", "7"))

	first, err := Drain(ctx)
	require.NoError(t, err)

	second, err := Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, second, 1)
}

func TestWith_IsolatesConcurrentRequests(t *testing.T) {
	base := context.Background()
	ctxA := With(base)
	ctxB := With(base)

	require.NoError(t, Record(ctxA, "Post", "1"))
	require.NoError(t, Record(ctxB, "User", "2"))

	itemsA, err := Drain(ctxA)
	require.NoError(t, err)
	itemsB, err := Drain(ctxB)
	require.NoError(t, err)

	assert.Equal(t, []types.TouchedItem{{Type: "Post", ID: "1"}}, itemsA)
	assert.Equal(t, []types.TouchedItem{{Type: "User", ID: "2"}}, itemsB)
}

func TestRecord_ConcurrentWritersAllSurvive(t *testing.T) {
	ctx := With(context.Background())

	var wg sync.WaitGroup
	ids := []string{"1", "2", "3", "4", "5", "6", "7", "8"}

	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, Record(ctx, "Post", id))
		}(id)
	}
	wg.Wait()

	items, err := Drain(ctx)
	require.NoError(t, err)
	assert.Len(t, items, len(ids))
}
