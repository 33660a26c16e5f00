// Package notify carries "the registry changed" signals between processes on
// the same machine.
//
// A notice has no payload beyond who sent it. Receivers always reload the full
// registry from backing state, so duplicate or reordered notices are harmless.
package notify

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned when publishing to or subscribing on a closed channel.
var ErrClosed = errors.New("notify: channel closed")

// Notice announces that the sender changed the shared registry.
type Notice struct {
	Sender string    `json:"sender"`
	Seq    uint64    `json:"seq"`
	SentAt time.Time `json:"sent_at"`
}

// Channel is a broadcast transport for notices. Every subscriber receives every
// published notice, including notices published through the same Channel.
type Channel interface {
	// Publish hands a notice to the transport.
	Publish(ctx context.Context, n Notice) error
	// Subscribe returns a channel of notices that is closed when ctx is
	// cancelled or the Channel is closed.
	Subscribe(ctx context.Context) (<-chan Notice, error)
	// Close releases the transport and ends every subscription.
	Close() error
}
