package connection

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
)

// Tree is the ordered hierarchy of categories and hosts.
//
// A Tree is not safe for concurrent use; the registry store guards its tree
// with a mutex and hands out clones.
type Tree struct {
	hosts      map[ID]Host
	categories map[ID]Category
	parent     map[ID]ID
	children   map[ID][]ID // never holds empty lists
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{
		hosts:      make(map[ID]Host),
		categories: make(map[ID]Category),
		parent:     make(map[ID]ID),
		children:   make(map[ID][]ID),
	}
}

// Len returns the number of entities in the tree.
func (t *Tree) Len() int {
	return len(t.hosts) + len(t.categories)
}

// Contains reports whether id names an entity in the tree.
func (t *Tree) Contains(id ID) bool {
	_, ok := t.parent[id]
	return ok
}

// KindOf returns the kind of the entity with the given id.
func (t *Tree) KindOf(id ID) (Kind, bool) {
	if _, ok := t.hosts[id]; ok {
		return KindHost, true
	}
	if _, ok := t.categories[id]; ok {
		return KindCategory, true
	}
	return 0, false
}

// Host returns a copy of the host with the given id.
func (t *Tree) Host(id ID) (Host, bool) {
	h, ok := t.hosts[id]
	if !ok {
		return Host{}, false
	}
	return h.Clone(), true
}

// Category returns the category with the given id.
func (t *Tree) Category(id ID) (Category, bool) {
	c, ok := t.categories[id]
	return c, ok
}

// Entry returns the host or category with the given id.
func (t *Tree) Entry(id ID) (Entry, bool) {
	if h, ok := t.Host(id); ok {
		return h, true
	}
	if c, ok := t.categories[id]; ok {
		return c, true
	}
	return nil, false
}

// Parent returns the parent of id (RootID for top-level entries).
func (t *Tree) Parent(id ID) (ID, bool) {
	p, ok := t.parent[id]
	return p, ok
}

// Children returns a copy of the ordered child IDs of parent.
func (t *Tree) Children(parent ID) []ID {
	return slices.Clone(t.children[parent])
}

// ChildCount returns the number of children of parent.
func (t *Tree) ChildCount(parent ID) int {
	return len(t.children[parent])
}

// ChildAt returns the index-th child of parent.
func (t *Tree) ChildAt(parent ID, index int) (ID, bool) {
	kids := t.children[parent]
	if index < 0 || index >= len(kids) {
		return RootID, false
	}
	return kids[index], true
}

// IndexOf returns the position of id among its siblings, or -1.
func (t *Tree) IndexOf(id ID) int {
	p, ok := t.parent[id]
	if !ok {
		return -1
	}
	return slices.Index(t.children[p], id)
}

// Roots returns the top-level entries in order.
func (t *Tree) Roots() []Entry {
	kids := t.children[RootID]
	out := make([]Entry, 0, len(kids))
	for _, id := range kids {
		e, _ := t.Entry(id)
		out = append(out, e)
	}
	return out
}

// IsAncestor reports whether ancestor is a strict ancestor of id.
func (t *Tree) IsAncestor(ancestor, id ID) bool {
	if ancestor == RootID {
		return t.Contains(id)
	}
	for cur, ok := t.parent[id]; ok && cur != RootID; cur, ok = t.parent[cur] {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// ReadOnly reports whether id is, or lives beneath, a provider-owned category.
func (t *Tree) ReadOnly(id ID) bool {
	for cur := id; cur != RootID; {
		if c, ok := t.categories[cur]; ok && c.Provider {
			return true
		}
		p, ok := t.parent[cur]
		if !ok {
			return false
		}
		cur = p
	}
	return false
}

// InsertHost places h at index within parent. If a host with the same ID
// already exists it is detached from its current position first (move), and
// its record is replaced by h.
func (t *Tree) InsertHost(h Host, parent ID, index int) error {
	if err := t.checkPlacement(h.ID, KindHost, parent, index); err != nil {
		return err
	}
	if len(h.Params) == 0 {
		h.Params = nil
	} else {
		h.Params = h.Params.Clone()
	}
	t.detach(h.ID)
	t.hosts[h.ID] = h
	t.attach(h.ID, parent, index)
	return nil
}

// InsertCategory places c at index within parent, moving it (with its whole
// subtree) if it already exists. The Provider flag of an existing category is
// kept; new categories inserted this way are never provider-owned.
func (t *Tree) InsertCategory(c Category, parent ID, index int) error {
	if err := t.checkPlacement(c.ID, KindCategory, parent, index); err != nil {
		return err
	}
	if existing, ok := t.categories[c.ID]; ok {
		c.Provider = existing.Provider
	} else {
		c.Provider = false
	}
	t.detach(c.ID)
	t.categories[c.ID] = c
	t.attach(c.ID, parent, index)
	return nil
}

// AppendHost inserts h as the last child of parent.
func (t *Tree) AppendHost(h Host, parent ID) error {
	return t.InsertHost(h, parent, t.appendIndex(h.ID, parent))
}

// AppendCategory inserts c as the last child of parent.
func (t *Tree) AppendCategory(c Category, parent ID) error {
	return t.InsertCategory(c, parent, t.appendIndex(c.ID, parent))
}

// Move repositions an existing entity without touching its record.
func (t *Tree) Move(id, parent ID, index int) error {
	kind, ok := t.KindOf(id)
	if !ok {
		return fmt.Errorf("move %q: %w", id, ErrNotFound)
	}
	if err := t.checkPlacement(id, kind, parent, index); err != nil {
		return err
	}
	t.detach(id)
	t.attach(id, parent, index)
	return nil
}

// UpdateHost replaces the record of an existing host in place.
// Returns false when the record was already identical.
func (t *Tree) UpdateHost(h Host) (bool, error) {
	cur, ok := t.hosts[h.ID]
	if !ok {
		return false, fmt.Errorf("update host %q: %w", h.ID, ErrNotFound)
	}
	if t.ReadOnly(h.ID) {
		return false, fmt.Errorf("update host %q: %w", h.ID, ErrReadOnly)
	}
	if len(h.Params) == 0 {
		h.Params = nil
	}
	if cur.Name == h.Name && maps.Equal(cur.Params, h.Params) {
		return false, nil
	}
	h.Params = h.Params.Clone()
	t.hosts[h.ID] = h
	return true, nil
}

// UpdateCategory renames an existing category in place.
// Returns false when the name was unchanged.
func (t *Tree) UpdateCategory(c Category) (bool, error) {
	cur, ok := t.categories[c.ID]
	if !ok {
		return false, fmt.Errorf("update category %q: %w", c.ID, ErrNotFound)
	}
	if t.ReadOnly(c.ID) {
		return false, fmt.Errorf("update category %q: %w", c.ID, ErrReadOnly)
	}
	if cur.Name == c.Name {
		return false, nil
	}
	cur.Name = c.Name
	t.categories[c.ID] = cur
	return true, nil
}

// Remove deletes id and, for categories, everything beneath it.
// Removing an unknown id is a no-op that returns false.
func (t *Tree) Remove(id ID) (bool, error) {
	if !t.Contains(id) {
		return false, nil
	}
	if t.ReadOnly(id) {
		return false, fmt.Errorf("remove %q: %w", id, ErrReadOnly)
	}
	t.drop(id)
	return true, nil
}

// Graft appends a provider-owned category at the end of the root with the given
// hosts. Hosts whose IDs are already taken are skipped and returned.
func (t *Tree) Graft(c Category, hosts []Host) ([]ID, error) {
	if c.ID == RootID {
		return nil, ErrEmptyID
	}
	if t.Contains(c.ID) {
		return nil, fmt.Errorf("graft %q: %w", c.ID, ErrDuplicateID)
	}
	c.Provider = true
	t.categories[c.ID] = c
	t.attach(c.ID, RootID, t.ChildCount(RootID))

	var skipped []ID
	for _, h := range hosts {
		if h.ID == RootID || t.Contains(h.ID) {
			skipped = append(skipped, h.ID)
			continue
		}
		h = h.Clone()
		if len(h.Params) == 0 {
			h.Params = nil
		}
		t.hosts[h.ID] = h
		t.attach(h.ID, c.ID, t.ChildCount(c.ID))
	}
	return skipped, nil
}

// Walk visits every entity in pre-order (parent before children, children in
// stored order). Returning false from fn skips the entry's subtree.
func (t *Tree) Walk(fn func(e Entry, depth int) bool) {
	t.walk(RootID, 0, fn)
}

func (t *Tree) walk(parent ID, depth int, fn func(Entry, int) bool) {
	for _, id := range t.children[parent] {
		e, _ := t.Entry(id)
		if !fn(e, depth) {
			continue
		}
		if _, isCat := t.categories[id]; isCat {
			t.walk(id, depth+1, fn)
		}
	}
}

// AllHosts returns every host in pre-order.
func (t *Tree) AllHosts() []Host {
	out := make([]Host, 0, len(t.hosts))
	t.Walk(func(e Entry, _ int) bool {
		if h, ok := e.(Host); ok {
			out = append(out, h)
		}
		return true
	})
	return out
}

// AllCategories returns every category in pre-order.
func (t *Tree) AllCategories() []Category {
	out := make([]Category, 0, len(t.categories))
	t.Walk(func(e Entry, _ int) bool {
		if c, ok := e.(Category); ok {
			out = append(out, c)
		}
		return true
	})
	return out
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		hosts:      make(map[ID]Host, len(t.hosts)),
		categories: maps.Clone(t.categories),
		parent:     maps.Clone(t.parent),
		children:   make(map[ID][]ID, len(t.children)),
	}
	for id, h := range t.hosts {
		c.hosts[id] = h.Clone()
	}
	for id, kids := range t.children {
		c.children[id] = slices.Clone(kids)
	}
	return c
}

// Equal reports whether both trees hold the same entities in the same order.
func (t *Tree) Equal(o *Tree) bool {
	return reflect.DeepEqual(t, o)
}

// Validate checks the structural invariants: every entity has exactly one
// parent that lists it exactly once, parents are categories (or the root),
// IDs are unique across kinds, and there are no cycles.
func (t *Tree) Validate() error {
	for id := range t.hosts {
		if _, dup := t.categories[id]; dup {
			return fmt.Errorf("%q: %w", id, ErrDuplicateID)
		}
	}
	if len(t.parent) != t.Len() {
		return fmt.Errorf("parent links (%d) do not match entities (%d)", len(t.parent), t.Len())
	}
	for id, p := range t.parent {
		if id == RootID {
			return ErrEmptyID
		}
		if _, ok := t.KindOf(id); !ok {
			return fmt.Errorf("parent link for unknown entity %q", id)
		}
		if p != RootID {
			if _, ok := t.categories[p]; !ok {
				return fmt.Errorf("%q: %w", id, ErrParentNotFound)
			}
		}
		count := 0
		for _, k := range t.children[p] {
			if k == id {
				count++
			}
		}
		if count != 1 {
			return fmt.Errorf("%q listed %d times under %q", id, count, p)
		}
	}
	for p, kids := range t.children {
		if len(kids) == 0 {
			return fmt.Errorf("empty child list stored for %q", p)
		}
		for _, k := range kids {
			if t.parent[k] != p {
				return fmt.Errorf("%q listed under %q but parented by %q", k, p, t.parent[k])
			}
		}
	}
	// Every entity must be reachable from the root exactly once.
	seen := 0
	t.Walk(func(Entry, int) bool { seen++; return true })
	if seen != t.Len() {
		return fmt.Errorf("%w: %d of %d entities reachable from root", ErrCycle, seen, t.Len())
	}
	return nil
}

func (t *Tree) checkPlacement(id ID, kind Kind, parent ID, index int) error {
	if id == RootID {
		return ErrEmptyID
	}
	if index < 0 {
		return fmt.Errorf("index %d: %w", index, ErrIndexOutOfRange)
	}
	if parent != RootID {
		if _, ok := t.categories[parent]; !ok {
			return fmt.Errorf("parent %q: %w", parent, ErrParentNotFound)
		}
		if t.ReadOnly(parent) {
			return fmt.Errorf("parent %q: %w", parent, ErrReadOnly)
		}
	}
	existing, exists := t.KindOf(id)
	if !exists {
		return nil
	}
	if existing != kind {
		return fmt.Errorf("%s %q: %w", kind, id, ErrDuplicateID)
	}
	if t.ReadOnly(id) {
		return fmt.Errorf("%s %q: %w", kind, id, ErrReadOnly)
	}
	if kind == KindCategory && (parent == id || t.IsAncestor(id, parent)) {
		return fmt.Errorf("category %q under %q: %w", id, parent, ErrCycle)
	}
	return nil
}

// appendIndex is the index that puts id last under parent once detached.
func (t *Tree) appendIndex(id, parent ID) int {
	n := t.ChildCount(parent)
	if p, ok := t.parent[id]; ok && p == parent {
		n--
	}
	return n
}

func (t *Tree) detach(id ID) {
	p, ok := t.parent[id]
	if !ok {
		return
	}
	kids := slices.DeleteFunc(t.children[p], func(k ID) bool { return k == id })
	if len(kids) == 0 {
		delete(t.children, p)
	} else {
		t.children[p] = kids
	}
	delete(t.parent, id)
}

// attach inserts id under parent, clamping index to the child count.
func (t *Tree) attach(id, parent ID, index int) {
	kids := t.children[parent]
	index = min(max(index, 0), len(kids))
	t.children[parent] = slices.Insert(kids, index, id)
	t.parent[id] = parent
}

func (t *Tree) drop(id ID) {
	for _, k := range slices.Clone(t.children[id]) {
		t.drop(k)
	}
	t.detach(id)
	delete(t.children, id)
	delete(t.hosts, id)
	delete(t.categories, id)
}
