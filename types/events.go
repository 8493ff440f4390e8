package types

import (
	"time"
)

type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// MutationEvent is one content-change notification emitted by the publishing
// system.
type MutationEvent struct {
	EventID   string     `json:"event_id"`
	Type      string     `json:"type"`
	ItemID    string     `json:"item_id"`
	Kind      ChangeKind `json:"kind"`
	Timestamp time.Time  `json:"timestamp"`
	Source    string     `json:"source,omitempty"`
}

func (e *MutationEvent) Validate() error {
	if e.Type == "" {
		return ErrEventTypeEmpty
	}
	switch e.Kind {
	case ChangeCreated, ChangeUpdated, ChangeDeleted:
		return nil
	default:
		return Errorf(ErrEventKindUnknown, "kind: %s", e.Kind)
	}
}

type EventHandler func(event *MutationEvent) error

// EventBroker delivers mutation events from the publishing system to the
// invalidation engine.
type EventBroker interface {
	LifecycleManager
	Publish(event *MutationEvent) error
	Subscribe(handler EventHandler) error
}

type EventBrokerCreator func(config interface{}) (EventBroker, error)
