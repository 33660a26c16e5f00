package outline

import (
	"sync"

	"github.com/zjrosen/connreg/internal/connection"
	"github.com/zjrosen/connreg/internal/log"
)

// Source is the part of the registry store the adapter reads. Both reads
// return the generation they were taken at.
type Source interface {
	Snapshot() (*connection.Tree, uint64)
	FilterActive() bool
	FilteredSnapshot() ([]connection.Host, uint64)
}

// Row is one visible line of the outline.
type Row struct {
	ID       connection.ID
	Entry    connection.Entry
	Depth    int
	Leaf     bool
	Expanded bool
}

// Adapter serves the outline contract from whichever node space is current:
// the full tree, or the flat filtered host list while a filter is active.
type Adapter struct {
	src Source

	mu       sync.RWMutex
	current  DataSource
	gen      uint64
	filtered bool
	query    string
}

// NewAdapter creates an adapter over src and takes the first refresh.
func NewAdapter(src Source) *Adapter {
	a := &Adapter{src: src}
	a.Refresh("")
	return a
}

// Refresh pulls the current state from the source and reports whether the
// exposed node space changed. query identifies the active filter so a new
// query at the same generation still counts as a change.
func (a *Adapter) Refresh(query string) bool {
	filtered := a.src.FilterActive()

	var next DataSource
	var gen uint64
	if filtered {
		var hosts []connection.Host
		hosts, gen = a.src.FilteredSnapshot()
		next = NewFilteredSource(hosts)
	} else {
		var tree *connection.Tree
		tree, gen = a.src.Snapshot()
		next = NewTreeSource(tree)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	changed := a.current == nil || gen != a.gen || filtered != a.filtered || (filtered && query != a.query)
	a.current = next
	a.gen = gen
	a.filtered = filtered
	a.query = query
	if changed {
		log.Debug(log.CatUI, "Outline refreshed", "generation", gen, "filtered", filtered)
	}
	return changed
}

// Filtered reports whether the filtered node space is exposed.
func (a *Adapter) Filtered() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.filtered
}

// Generation returns the tree generation of the last refresh.
func (a *Adapter) Generation() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.gen
}

func (a *Adapter) source() DataSource {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

func (a *Adapter) ChildCount(node connection.ID) int {
	return a.source().ChildCount(node)
}

func (a *Adapter) Child(node connection.ID, index int) (connection.ID, bool) {
	return a.source().Child(node, index)
}

func (a *Adapter) IsLeaf(node connection.ID) bool {
	return a.source().IsLeaf(node)
}

func (a *Adapter) Parent(node connection.ID) (connection.ID, bool) {
	return a.source().Parent(node)
}

// Entry maps a node back to its host or category.
func (a *Adapter) Entry(node connection.ID) (connection.Entry, bool) {
	return a.source().Entry(node)
}

// Rows flattens the visible outline. expanded decides which categories show
// their children; nil expands everything.
func (a *Adapter) Rows(expanded func(connection.ID) bool) []Row {
	src := a.source()
	var rows []Row
	var walk func(node connection.ID, depth int)
	walk = func(node connection.ID, depth int) {
		for i := range src.ChildCount(node) {
			id, ok := src.Child(node, i)
			if !ok {
				continue
			}
			e, _ := src.Entry(id)
			row := Row{ID: id, Entry: e, Depth: depth, Leaf: src.IsLeaf(id)}
			if !row.Leaf {
				row.Expanded = expanded == nil || expanded(id)
			}
			rows = append(rows, row)
			if row.Expanded {
				walk(id, depth+1)
			}
		}
	}
	walk(connection.RootID, 0)
	return rows
}

var _ DataSource = (*Adapter)(nil)
