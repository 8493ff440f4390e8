package action

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-graphql-cache/logger"
	"github.com/saiset-co/sai-graphql-cache/types"
)

func newTestBroker(t *testing.T) types.EventBroker {
	t.Helper()

	broker, err := NewMemoryBroker(context.Background(), logger.NewZapWrapper(zap.NewNop()), nil)
	require.NoError(t, err)

	return broker
}

func TestMemoryBroker_DeliversToAllHandlers(t *testing.T) {
	broker := newTestBroker(t)

	var first, second []*types.MutationEvent

	require.NoError(t, broker.Subscribe(func(event *types.MutationEvent) error {
		first = append(first, event)
		return nil
	}))
	require.NoError(t, broker.Subscribe(func(event *types.MutationEvent) error {
		second = append(second, event)
		return nil
	}))

	require.NoError(t, broker.Start())
	t.Cleanup(func() { _ = broker.Stop() })

	event := &types.MutationEvent{Type: "Post", ItemID: "1", Kind: types.ChangeUpdated}
	require.NoError(t, broker.Publish(event))

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, "Post", first[0].Type)
}

func TestMemoryBroker_PublishBeforeStartFails(t *testing.T) {
	broker := newTestBroker(t)

	err := broker.Publish(&types.MutationEvent{Type: "Post", ItemID: "1", Kind: types.ChangeUpdated})
	assert.True(t, types.IsError(err, types.ErrBrokerNotInitialized))
}

func TestMemoryBroker_InvalidEventRejected(t *testing.T) {
	broker := newTestBroker(t)
	require.NoError(t, broker.Start())
	t.Cleanup(func() { _ = broker.Stop() })

	err := broker.Publish(&types.MutationEvent{ItemID: "1", Kind: types.ChangeUpdated})
	assert.True(t, types.IsError(err, types.ErrEventTypeEmpty))
}

func TestMemoryBroker_SubscribeWhileRunningFails(t *testing.T) {
	broker := newTestBroker(t)
	require.NoError(t, broker.Start())
	t.Cleanup(func() { _ = broker.Stop() })

	err := broker.Subscribe(func(*types.MutationEvent) error { return nil })
	assert.True(t, types.IsError(err, types.ErrServerAlreadyRunning))
}
