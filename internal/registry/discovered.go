package registry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/connreg/internal/discovery"
	"github.com/zjrosen/connreg/internal/log"
	"github.com/zjrosen/connreg/internal/pubsub"
	"github.com/zjrosen/connreg/internal/tracing"
)

// ReplaceDiscovered swaps the content of the discovery-owned category. Inside
// a group-editing bracket the swap waits for the outermost bracket to close
// and joins its notification. Identical content is ignored.
func (s *Store) ReplaceDiscovered(ctx context.Context, snap discovery.Snapshot) {
	ctx, span := tracing.Start(ctx, s.tracer, tracing.SpanPrefixRegistry, "replace_discovered",
		attribute.Int("discovery.hosts", len(snap.Hosts)))
	defer span.End()

	s.mu.Lock()
	if s.group.Editing() {
		queued := snap.Clone()
		s.pending = &queued
		s.mu.Unlock()
		span.AddEvent(tracing.EventDiscoveryQueued)
		log.Debug(log.CatDiscovery, "Discovery update queued until group editing ends")
		return
	}
	if !s.applyDiscoveredLocked(snap) {
		s.mu.Unlock()
		return
	}
	deliver := s.group.Touch()
	gen := s.generation
	s.mu.Unlock()

	if deliver {
		s.deliver(ctx, pubsub.DiscoveredEvent, gen)
	}
}

// applyDiscoveredLocked installs snap and reports whether anything changed.
func (s *Store) applyDiscoveredLocked(snap discovery.Snapshot) bool {
	if s.discovered.Equal(snap) {
		return false
	}
	s.discovered = snap.Clone()
	s.generation++
	for _, id := range s.rebuildLocked() {
		log.Warn(log.CatDiscovery, "Discovered host dropped, ID already in use", "id", id)
	}
	log.Debug(log.CatDiscovery, "Discovered category replaced", "hosts", len(snap.Hosts), "generation", s.generation)
	return true
}

// AttachProvider installs the provider's current snapshot and keeps the
// discovered category in sync with it until ctx is cancelled or the store is
// closed.
func (s *Store) AttachProvider(ctx context.Context, p discovery.Provider) error {
	s.lifecycle.Lock()
	if s.closed {
		s.lifecycle.Unlock()
		return ErrClosed
	}
	pctx, cancel := context.WithCancel(ctx)
	s.cancels = append(s.cancels, cancel)
	s.wg.Add(1)
	s.lifecycle.Unlock()

	// Watch before the first read so no change slips between them.
	changes, err := p.Watch(pctx)
	if err != nil {
		cancel()
		s.wg.Done()
		return fmt.Errorf("watching discovery provider: %w", err)
	}
	snap, err := p.Snapshot(pctx)
	if err != nil {
		cancel()
		s.wg.Done()
		return fmt.Errorf("reading discovery provider: %w", err)
	}
	s.ReplaceDiscovered(pctx, snap)

	go func() {
		defer s.wg.Done()
		for range changes {
			snap, err := p.Snapshot(pctx)
			if err != nil {
				log.ErrorErr(log.CatDiscovery, "Reading discovery provider failed", err)
				continue
			}
			s.ReplaceDiscovered(pctx, snap)
		}
	}()
	return nil
}
