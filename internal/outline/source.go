// Package outline adapts the registry to the pull contract of an outline
// widget: child counts, children by index, leaf checks and parents, keyed by
// entity ID so rows map back to entities across refreshes.
package outline

import "github.com/zjrosen/connreg/internal/connection"

// DataSource answers an outline widget's questions about one node space.
// The root node is connection.RootID.
type DataSource interface {
	ChildCount(node connection.ID) int
	Child(node connection.ID, index int) (connection.ID, bool)
	IsLeaf(node connection.ID) bool
	Parent(node connection.ID) (connection.ID, bool)
	Entry(node connection.ID) (connection.Entry, bool)
}

// TreeSource exposes a tree snapshot. It owns the tree it is given.
type TreeSource struct {
	tree *connection.Tree
}

// NewTreeSource wraps tree. The caller must not modify it afterwards.
func NewTreeSource(tree *connection.Tree) *TreeSource {
	return &TreeSource{tree: tree}
}

func (s *TreeSource) ChildCount(node connection.ID) int {
	return s.tree.ChildCount(node)
}

func (s *TreeSource) Child(node connection.ID, index int) (connection.ID, bool) {
	return s.tree.ChildAt(node, index)
}

// IsLeaf reports true for hosts and for unknown nodes.
func (s *TreeSource) IsLeaf(node connection.ID) bool {
	if node == connection.RootID {
		return false
	}
	kind, ok := s.tree.KindOf(node)
	return !ok || kind == connection.KindHost
}

func (s *TreeSource) Parent(node connection.ID) (connection.ID, bool) {
	return s.tree.Parent(node)
}

func (s *TreeSource) Entry(node connection.ID) (connection.Entry, bool) {
	return s.tree.Entry(node)
}

// FilteredSource exposes a flat host list as a single level under the root.
type FilteredSource struct {
	hosts []connection.Host
	index map[connection.ID]int
}

// NewFilteredSource wraps hosts. The caller must not modify the slice
// afterwards.
func NewFilteredSource(hosts []connection.Host) *FilteredSource {
	index := make(map[connection.ID]int, len(hosts))
	for i, h := range hosts {
		index[h.ID] = i
	}
	return &FilteredSource{hosts: hosts, index: index}
}

func (s *FilteredSource) ChildCount(node connection.ID) int {
	if node != connection.RootID {
		return 0
	}
	return len(s.hosts)
}

func (s *FilteredSource) Child(node connection.ID, index int) (connection.ID, bool) {
	if node != connection.RootID || index < 0 || index >= len(s.hosts) {
		return "", false
	}
	return s.hosts[index].ID, true
}

func (s *FilteredSource) IsLeaf(node connection.ID) bool {
	return node != connection.RootID
}

func (s *FilteredSource) Parent(node connection.ID) (connection.ID, bool) {
	if _, ok := s.index[node]; !ok {
		return "", false
	}
	return connection.RootID, true
}

func (s *FilteredSource) Entry(node connection.ID) (connection.Entry, bool) {
	i, ok := s.index[node]
	if !ok {
		return nil, false
	}
	return s.hosts[i], true
}

var (
	_ DataSource = (*TreeSource)(nil)
	_ DataSource = (*FilteredSource)(nil)
)
