// Package action connects the publishing system's change feed to the
// invalidation engine. A broker delivers mutation events; subscribed
// handlers decide what they mean for the cache.
package action

import (
	"context"

	"github.com/saiset-co/sai-graphql-cache/types"
)

var customBrokerCreators = make(map[string]types.EventBrokerCreator)

func RegisterEventBroker(brokerName string, creator types.EventBrokerCreator) {
	customBrokerCreators[brokerName] = creator
}

func NewEventBroker(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, health types.HealthManager) (types.EventBroker, error) {
	eventsConfig := config.GetConfig().Events

	if eventsConfig == nil || !eventsConfig.Enabled {
		return nil, types.ErrBrokerIsDisabled
	}

	switch eventsConfig.Type {
	case "memory":
		return NewMemoryBroker(ctx, logger, metrics)
	case "websocket":
		return NewWebSocketBroker(ctx, logger, eventsConfig, metrics, health)
	default:
		if creator, exists := customBrokerCreators[eventsConfig.Type]; exists {
			return creator(eventsConfig.Config)
		}
		return nil, types.Errorf(types.ErrBrokerTypeUnknown, "type: %s", eventsConfig.Type)
	}
}
