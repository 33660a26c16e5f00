// Package registry is the process-side owner of the connection registry: an
// in-memory view of the shared tree, serialised mutations, group-editing
// brackets that coalesce change notifications, the discovery-owned category,
// and reloads triggered by other processes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/connreg/internal/connection"
	"github.com/zjrosen/connreg/internal/discovery"
	"github.com/zjrosen/connreg/internal/log"
	"github.com/zjrosen/connreg/internal/notify"
	"github.com/zjrosen/connreg/internal/pubsub"
	"github.com/zjrosen/connreg/internal/search"
	"github.com/zjrosen/connreg/internal/tracing"
)

// Store errors
var (
	ErrProtectedCategory = errors.New("the discovered category cannot be removed")
	ErrClosed            = errors.New("registry store is closed")
)

// DefaultProviderCategory is the discovery-owned category every store exposes
// as its last root entry.
var DefaultProviderCategory = connection.Category{
	ID:   "discovered",
	Name: discovery.DefaultCategoryName,
}

// Change is the payload of local refresh events.
type Change struct {
	Generation uint64
	Query      string
}

// Option configures a Store.
type Option func(*Store)

// WithTracer sets the tracer used for mutation and reload spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) {
		s.tracer = tracer
	}
}

// WithProviderCategory overrides the ID and default name of the
// discovery-owned category.
func WithProviderCategory(c connection.Category) Option {
	return func(s *Store) {
		s.providerCat = c
	}
}

// WithFilterCacheTTL sets how long filtered host lists are memoised.
func WithFilterCacheTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.filter = search.NewProjection(ttl)
	}
}

// Store holds this process's view of the registry.
//
// All tree reads and writes go through mu. The lock covers one operation
// at a time and is never held across a group-editing bracket.
type Store struct {
	backend  Backend
	notifier *notify.Notifier
	tracer   trace.Tracer
	events   *pubsub.Broker[Change]
	filter   *search.Projection

	mu          sync.Mutex
	user        *connection.Tree // authoritative entries, as last loaded or written
	view        *connection.Tree // user plus the grafted provider category
	providerCat connection.Category
	providerIDs map[connection.ID]struct{}
	discovered  discovery.Snapshot
	pending     *discovery.Snapshot // replacement queued while a bracket is open
	generation  uint64
	group       Group

	// State when the outermost open bracket began. A bracket whose changes
	// cancel out is not announced.
	groupBase       *connection.Tree
	groupDiscovered discovery.Snapshot

	lifecycle sync.Mutex
	started   bool
	closed    bool
	cancels   []context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a store over backend. notifier may be nil for a store that
// neither announces nor hears changes.
func New(backend Backend, notifier *notify.Notifier, opts ...Option) *Store {
	s := &Store{
		backend:     backend,
		notifier:    notifier,
		tracer:      otel.Tracer("connreg/registry"),
		events:      pubsub.NewBroker[Change](),
		filter:      search.NewProjection(time.Minute),
		user:        connection.NewTree(),
		providerCat: DefaultProviderCategory,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rebuildLocked()
	return s
}

// Start loads the registry and begins listening for other processes'
// changes. The subscription ends when ctx is cancelled or Close is called.
func (s *Store) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}

	// Subscribe before loading so a change landing in between is not lost.
	var cancel context.CancelFunc = func() {}
	if s.notifier != nil {
		var runCtx context.Context
		runCtx, cancel = context.WithCancel(ctx)
		if err := s.notifier.Listen(runCtx, s.onNotice); err != nil {
			cancel()
			return fmt.Errorf("starting registry: %w", err)
		}
	}

	if err := s.Reload(ctx); err != nil {
		cancel()
		return err
	}
	s.cancels = append(s.cancels, cancel)
	s.started = true
	log.Info(log.CatStore, "Registry started", "generation", s.Generation())
	return nil
}

// Close stops listening, stops attached providers and closes the local event
// stream. Safe to call more than once.
func (s *Store) Close() error {
	s.lifecycle.Lock()
	if s.closed {
		s.lifecycle.Unlock()
		return nil
	}
	s.closed = true
	cancels := s.cancels
	s.cancels = nil
	s.lifecycle.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
	s.events.Close()
	return nil
}

func (s *Store) onNotice(ctx context.Context, n notify.Notice) {
	trace.SpanFromContext(ctx).AddEvent(tracing.EventNoticeReceived)
	if err := s.Reload(ctx); err != nil {
		// The local view stays stale until the next notice.
		log.ErrorErr(log.CatStore, "Reload after change notice failed", err, "sender", n.Sender, "seq", n.Seq)
	}
}

// Reload replaces the local tree with the authoritative one. It never
// broadcasts. Reloading unchanged state is a no-op.
func (s *Store) Reload(ctx context.Context) error {
	ctx, span := tracing.Start(ctx, s.tracer, tracing.SpanPrefixRegistry, "reload")
	defer span.End()

	s.mu.Lock()
	tree, err := s.backend.Load(ctx)
	if err != nil {
		s.mu.Unlock()
		tracing.RecordError(span, err)
		return fmt.Errorf("reloading registry: %w", err)
	}
	if s.user.Equal(tree) {
		s.mu.Unlock()
		span.SetAttributes(attribute.Bool(tracing.AttrChanged, false))
		return nil
	}
	s.adoptLocked(tree)
	gen := s.generation
	s.mu.Unlock()

	span.SetAttributes(
		attribute.Bool(tracing.AttrChanged, true),
		attribute.Int64(tracing.AttrGeneration, int64(gen)),
	)
	log.Debug(log.CatStore, "Reloaded registry", "generation", gen)
	s.events.Publish(pubsub.ReloadedEvent, Change{Generation: gen, Query: s.filter.Query()})
	return nil
}

// BeginGroupEditing opens a bracket. Notifications for changes made before
// the matching outermost EndGroupEditing are coalesced into one.
func (s *Store) BeginGroupEditing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.group.Editing() {
		s.groupBase = s.user
		s.groupDiscovered = s.discovered
	}
	s.group.Begin()
}

// EndGroupEditing closes a bracket. Closing the outermost bracket applies any
// queued discovery replacement and announces the changes made inside it.
// A bracket whose changes cancel out announces nothing. Calling it with no
// bracket open does nothing.
func (s *Store) EndGroupEditing(ctx context.Context) {
	s.mu.Lock()
	outermost := s.group.Depth() == 1
	if outermost && s.pending != nil {
		snap := *s.pending
		s.pending = nil
		if s.applyDiscoveredLocked(snap) {
			s.group.Touch()
		}
	}
	deliver := s.group.End()
	if outermost {
		if deliver && s.user.Equal(s.groupBase) && s.discovered.Equal(s.groupDiscovered) {
			deliver = false
			log.Debug(log.CatStore, "Group editing ended with no net change")
		}
		s.groupBase = nil
		s.groupDiscovered = discovery.Snapshot{}
	}
	gen := s.generation
	s.mu.Unlock()

	if deliver {
		s.deliver(ctx, pubsub.ChangedEvent, gen)
	}
}

// Batch runs fn inside a group-editing bracket.
func (s *Store) Batch(ctx context.Context, fn func() error) error {
	s.BeginGroupEditing()
	defer s.EndGroupEditing(ctx)
	return fn()
}

// GroupDepth returns the current bracket nesting depth.
func (s *Store) GroupDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.group.Depth()
}

// mutate runs one structural operation against the backend. guard runs under
// the lock before the backend is touched.
func (s *Store) mutate(ctx context.Context, op string, guard func() error, fn func(*connection.Tree) error, attrs ...attribute.KeyValue) error {
	ctx, span := tracing.Start(ctx, s.tracer, tracing.SpanPrefixRegistry, op, attrs...)
	defer span.End()

	s.mu.Lock()
	if guard != nil {
		if err := guard(); err != nil {
			s.mu.Unlock()
			tracing.RecordError(span, err)
			return err
		}
	}

	tree, changed, err := s.backend.Update(ctx, func(t *connection.Tree) (bool, error) {
		before := t.Clone()
		if err := fn(t); err != nil {
			return false, err
		}
		return !t.Equal(before), nil
	})
	if err != nil {
		s.mu.Unlock()
		tracing.RecordError(span, err)
		log.Debug(log.CatStore, "Mutation rejected", "op", op, "error", err)
		return err
	}
	span.SetAttributes(attribute.Bool(tracing.AttrChanged, changed))
	if !changed {
		// The backend handed back its current state; take in any foreign
		// change it carries without waiting for that process's notice.
		adopted := !s.user.Equal(tree)
		if adopted {
			s.adoptLocked(tree)
		}
		gen := s.generation
		s.mu.Unlock()
		if adopted {
			s.events.Publish(pubsub.ReloadedEvent, Change{Generation: gen, Query: s.filter.Query()})
		}
		return nil
	}

	s.user = tree
	s.generation++
	s.rebuildLocked()
	deliver := s.group.Touch()
	gen := s.generation
	depth := s.group.Depth()
	s.mu.Unlock()

	span.SetAttributes(
		attribute.Int64(tracing.AttrGeneration, int64(gen)),
		attribute.Int(tracing.AttrGroupDepth, depth),
	)
	if deliver {
		s.deliver(ctx, pubsub.ChangedEvent, gen)
	} else {
		span.AddEvent(tracing.EventBroadcastQueued)
	}
	return nil
}

// adoptLocked installs a tree written by another process. Inside a bracket
// that has not changed anything yet, the bracket's starting point moves along
// so the foreign change is not announced as ours.
func (s *Store) adoptLocked(tree *connection.Tree) {
	s.user = tree
	s.generation++
	s.rebuildLocked()
	if s.group.Editing() && !s.group.Dirty() {
		s.groupBase = tree
	}
}

// deliver announces a change to other processes and to local views. Called
// without the lock.
func (s *Store) deliver(ctx context.Context, eventType pubsub.EventType, gen uint64) {
	if s.notifier != nil {
		// The change is committed; a caller's cancellation must not stop the
		// announcement.
		s.notifier.Broadcast(context.WithoutCancel(ctx))
	}
	s.events.Publish(eventType, Change{Generation: gen, Query: s.filter.Query()})
}

// writableLocked rejects targets owned by the discovery provider. The
// provider category's ID is reserved even while a stale user entry hides it.
func (s *Store) writableLocked(ids ...connection.ID) error {
	for _, id := range ids {
		if id == connection.RootID {
			continue
		}
		if _, ok := s.providerIDs[id]; ok || id == s.providerCat.ID {
			return fmt.Errorf("%q: %w", id, connection.ErrReadOnly)
		}
	}
	return nil
}

func (s *Store) writable(ids ...connection.ID) func() error {
	return func() error {
		return s.writableLocked(ids...)
	}
}

// rebuildLocked recomputes the combined view and returns the discovered host
// IDs that were dropped because a user entry already uses them.
func (s *Store) rebuildLocked() []connection.ID {
	view := s.user.Clone()
	cat := s.providerCat
	if s.discovered.Category.Name != "" {
		cat.Name = s.discovered.Category.Name
	}

	ids := make(map[connection.ID]struct{}, len(s.discovered.Hosts)+1)
	skipped, err := view.Graft(cat, s.discovered.Hosts)
	if err != nil {
		log.Warn(log.CatStore, "Discovered category hidden by a user entry", "id", cat.ID, "error", err)
	} else {
		ids[cat.ID] = struct{}{}
		for _, id := range view.Children(cat.ID) {
			ids[id] = struct{}{}
		}
	}
	s.view = view
	s.providerIDs = ids
	return skipped
}

func entityAttr(id connection.ID) attribute.KeyValue {
	return attribute.String(tracing.AttrEntityID, string(id))
}

func placementAttrs(id, parent connection.ID, index int) []attribute.KeyValue {
	return []attribute.KeyValue{
		entityAttr(id),
		attribute.String(tracing.AttrParentID, string(parent)),
		attribute.Int(tracing.AttrIndex, index),
	}
}
