package notify

import (
	"context"
	"sync/atomic"

	"github.com/zjrosen/connreg/internal/pubsub"
)

// MemoryBus is an in-process Channel. Notices loop back to every subscriber,
// the publisher included, the way a real broadcast transport behaves.
type MemoryBus struct {
	broker *pubsub.Broker[Notice]
	closed atomic.Bool
}

// NewMemoryBus creates an open bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{broker: pubsub.NewBroker[Notice]()}
}

// Publish implements Channel.
func (b *MemoryBus) Publish(ctx context.Context, n Notice) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.broker.Publish(pubsub.UpdatedEvent, n)
	return nil
}

// Subscribe implements Channel.
func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan Notice, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	events := b.broker.Subscribe(ctx)
	out := make(chan Notice, cap(events))

	go func() {
		defer close(out)
		for ev := range events {
			select {
			case out <- ev.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close implements Channel.
func (b *MemoryBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.broker.Close()
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *MemoryBus) Subscribers() int {
	return b.broker.SubscriberCount()
}

var _ Channel = (*MemoryBus)(nil)
