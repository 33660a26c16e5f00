package registry

// Group tracks group-editing brackets: a nesting depth and a dirty flag.
//
// While depth > 0 notifications are held back. The transition back to depth 0
// delivers exactly one notification if anything changed inside the bracket.
// Group is not safe for concurrent use; the Store guards it with its mutex.
type Group struct {
	depth int
	dirty bool
}

// Begin opens a (possibly nested) bracket.
func (g *Group) Begin() {
	g.depth++
}

// End closes a bracket. It reports whether a notification is now due, which
// only happens when the outermost bracket closes with pending changes.
// End at depth 0 is a no-op.
func (g *Group) End() bool {
	if g.depth == 0 {
		return false
	}
	g.depth--
	if g.depth > 0 || !g.dirty {
		return false
	}
	g.dirty = false
	return true
}

// Touch records a structural change. It reports whether the change should be
// announced immediately (no bracket open).
func (g *Group) Touch() bool {
	if g.depth > 0 {
		g.dirty = true
		return false
	}
	g.dirty = false
	return true
}

// Editing reports whether a bracket is open.
func (g *Group) Editing() bool {
	return g.depth > 0
}

// Depth returns the current nesting depth.
func (g *Group) Depth() int {
	return g.depth
}

// Dirty reports whether changes are waiting for the bracket to close.
func (g *Group) Dirty() bool {
	return g.dirty
}
