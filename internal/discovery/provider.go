// Package discovery supplies the read-only category of hosts found on the
// local machine or network. The registry replaces that category wholesale
// whenever a provider reports a change.
package discovery

import (
	"context"
	"slices"
	"sync"

	"github.com/zjrosen/connreg/internal/connection"
	"github.com/zjrosen/connreg/internal/pubsub"
)

// Snapshot is the complete content of the provider-owned category.
type Snapshot struct {
	Category connection.Category
	Hosts    []connection.Host
}

// Equal reports whether two snapshots describe the same category content.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.Category.Name != o.Category.Name {
		return false
	}
	return slices.EqualFunc(s.Hosts, o.Hosts, func(a, b connection.Host) bool {
		if a.ID != b.ID || a.Name != b.Name || len(a.Params) != len(b.Params) {
			return false
		}
		for k, v := range a.Params {
			if bv, ok := b.Params[k]; !ok || bv != v {
				return false
			}
		}
		return true
	})
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	hosts := make([]connection.Host, len(s.Hosts))
	for i, h := range s.Hosts {
		hosts[i] = h.Clone()
	}
	s.Hosts = hosts
	return s
}

// Provider is a source of discovered hosts.
type Provider interface {
	// Snapshot returns the current content.
	Snapshot(ctx context.Context) (Snapshot, error)
	// Watch signals whenever the content may have changed. The channel is
	// closed when ctx is cancelled.
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// Static is a Provider whose content is set by the program.
type Static struct {
	mu     sync.Mutex
	snap   Snapshot
	broker *pubsub.Broker[Snapshot]
}

// NewStatic creates a provider holding snap.
func NewStatic(snap Snapshot) *Static {
	return &Static{
		snap:   snap.Clone(),
		broker: pubsub.NewBroker[Snapshot](),
	}
}

// Snapshot implements Provider.
func (s *Static) Snapshot(_ context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone(), nil
}

// Set replaces the content and signals watchers.
func (s *Static) Set(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap.Clone()
	s.mu.Unlock()
	s.broker.Publish(pubsub.UpdatedEvent, snap)
}

// Watch implements Provider.
func (s *Static) Watch(ctx context.Context) (<-chan struct{}, error) {
	events := s.broker.Subscribe(ctx)
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for range events {
			select {
			case out <- struct{}{}:
			default: // a signal is already pending
			}
		}
	}()
	return out, nil
}

var _ Provider = (*Static)(nil)
