// Package testutil provides builders for registry trees used across tests.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/connreg/internal/connection"
)

// entryData holds one entry to be appended.
type entryData struct {
	kind   connection.Kind
	id     connection.ID
	name   string
	parent connection.ID
	params connection.Params
}

// Builder accumulates entries and appends them to a tree in the order they
// were declared, so parents must be declared before their children.
type Builder struct {
	t       *testing.T
	entries []entryData
}

// NewBuilder creates an empty builder.
func NewBuilder(t *testing.T) *Builder {
	t.Helper()
	return &Builder{t: t}
}

// WithCategory adds a category. It lands at the root unless In is given.
func (b *Builder) WithCategory(id string, opts ...EntryOption) *Builder {
	b.entries = append(b.entries, newEntry(connection.KindCategory, id, opts))
	return b
}

// WithHost adds a host. It lands at the root unless In is given.
func (b *Builder) WithHost(id string, opts ...EntryOption) *Builder {
	b.entries = append(b.entries, newEntry(connection.KindHost, id, opts))
	return b
}

// Build creates the tree, failing the test on any rejected entry.
func (b *Builder) Build() *connection.Tree {
	b.t.Helper()
	tree := connection.NewTree()
	for _, e := range b.entries {
		switch e.kind {
		case connection.KindCategory:
			require.NoError(b.t, tree.AppendCategory(connection.Category{ID: e.id, Name: e.name}, e.parent))
		case connection.KindHost:
			require.NoError(b.t, tree.AppendHost(connection.Host{ID: e.id, Name: e.name, Params: e.params}, e.parent))
		}
	}
	require.NoError(b.t, tree.Validate())
	return tree
}

func newEntry(kind connection.Kind, id string, opts []EntryOption) entryData {
	e := entryData{kind: kind, id: connection.ID(id), name: id}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}
