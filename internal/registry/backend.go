package registry

import (
	"context"
	"sync"

	"github.com/zjrosen/connreg/internal/connection"
)

// UpdateFunc edits the authoritative tree in place and reports whether it
// changed anything.
type UpdateFunc func(tree *connection.Tree) (changed bool, err error)

// Backend is the authoritative registry state shared by every process.
type Backend interface {
	// Load returns an independent copy of the current tree.
	Load(ctx context.Context) (*connection.Tree, error)
	// Update runs fn against the current tree under the backend's lock and
	// commits the result when fn reports a change. When fn fails or changes
	// nothing the stored state is left untouched. The returned tree is an
	// independent copy of the state after the call.
	Update(ctx context.Context, fn UpdateFunc) (*connection.Tree, bool, error)
}

// MemoryBackend keeps the tree in memory. Several Stores sharing one
// MemoryBackend behave like several processes sharing a database.
type MemoryBackend struct {
	mu       sync.Mutex
	tree     *connection.Tree
	revision uint64
}

// NewMemoryBackend creates a backend seeded with a copy of seed (nil for an
// empty registry).
func NewMemoryBackend(seed *connection.Tree) *MemoryBackend {
	if seed == nil {
		seed = connection.NewTree()
	}
	return &MemoryBackend{tree: seed.Clone()}
}

// Load implements Backend.
func (m *MemoryBackend) Load(_ context.Context) (*connection.Tree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.Clone(), nil
}

// Update implements Backend.
func (m *MemoryBackend) Update(ctx context.Context, fn UpdateFunc) (*connection.Tree, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.tree.Clone()
	changed, err := fn(work)
	if err != nil {
		return m.tree.Clone(), false, err
	}
	if !changed {
		return m.tree.Clone(), false, nil
	}
	m.tree = work
	m.revision++
	return work.Clone(), true, nil
}

// Revision counts committed updates.
func (m *MemoryBackend) Revision() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revision
}

var _ Backend = (*MemoryBackend)(nil)
