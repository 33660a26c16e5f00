// Package pubsub provides a generic in-process publish/subscribe event system.
// The registry uses it to fan local refresh events out to views in the same
// process; cross-process delivery lives in the notify package.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	CreatedEvent EventType = "created"
	UpdatedEvent EventType = "updated"
	DeletedEvent EventType = "deleted"

	// ChangedEvent reports a local registry mutation (coalesced per group-edit bracket).
	ChangedEvent EventType = "changed"
	// ReloadedEvent reports that the registry replaced its tree from backing state
	// after another process announced a change.
	ReloadedEvent EventType = "reloaded"
	// DiscoveredEvent reports that the provider-owned category was replaced.
	DiscoveredEvent EventType = "discovered"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
