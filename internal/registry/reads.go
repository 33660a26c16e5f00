package registry

import (
	"context"

	"github.com/zjrosen/connreg/internal/connection"
	"github.com/zjrosen/connreg/internal/pubsub"
	"github.com/zjrosen/connreg/internal/search"
)

// Connections returns the root entries in order, the discovered category
// last. The result is a copy.
func (s *Store) Connections() []connection.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Roots()
}

// AllHosts returns every host in pre-order.
func (s *Store) AllHosts() []connection.Host {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.AllHosts()
}

// AllCategories returns every category in pre-order.
func (s *Store) AllCategories() []connection.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.AllCategories()
}

// Snapshot returns a copy of the full tree and the generation it belongs to.
// The generation changes whenever the tree does.
func (s *Store) Snapshot() (*connection.Tree, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Clone(), s.generation
}

// Entry looks up a host or category by ID.
func (s *Store) Entry(id connection.ID) (connection.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Entry(id)
}

// Generation returns the current tree generation.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// ProviderCategory returns the discovery-owned category as currently shown.
func (s *Store) ProviderCategory() connection.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.view.Category(s.providerCat.ID); ok && c.Provider {
		return c
	}
	return s.providerCat
}

// HostsMatching returns the hosts whose names match query, in pre-order.
func (s *Store) HostsMatching(query string) []connection.Host {
	return search.Filter(s.AllHosts(), query)
}

// SetFilterString sets the active filter. Views are told when the effective
// query changes. An empty string clears the filter.
func (s *Store) SetFilterString(query string) {
	if !s.filter.SetQuery(query) {
		return
	}
	s.events.Publish(pubsub.UpdatedEvent, Change{Generation: s.Generation(), Query: query})
}

// FilterString returns the active filter as set.
func (s *Store) FilterString() string {
	return s.filter.Query()
}

// FilterActive reports whether the filter restricts the host list.
func (s *Store) FilterActive() bool {
	return s.filter.Active()
}

// FilteredHosts returns the hosts matching the active filter, or every host
// when no filter is set.
func (s *Store) FilteredHosts() []connection.Host {
	hosts, _ := s.FilteredSnapshot()
	return hosts
}

// FilteredSnapshot is FilteredHosts together with the generation the hosts
// were taken from.
func (s *Store) FilteredSnapshot() ([]connection.Host, uint64) {
	s.mu.Lock()
	gen := s.generation
	hosts := s.view.AllHosts()
	s.mu.Unlock()
	return s.filter.Hosts(context.Background(), gen, hosts), gen
}

// Subscribe returns local refresh events: ChangedEvent after local
// mutations, ReloadedEvent after another process's change, DiscoveredEvent
// after a discovery update and UpdatedEvent after a filter change.
func (s *Store) Subscribe(ctx context.Context) <-chan pubsub.Event[Change] {
	return s.events.Subscribe(ctx)
}

var _ pubsub.Subscriber[Change] = (*Store)(nil)
