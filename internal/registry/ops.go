package registry

import (
	"context"
	"fmt"

	"github.com/zjrosen/connreg/internal/connection"
)

// AddCategory appends c to the root. An existing category with the same ID
// is moved to the end of the root and renamed.
func (s *Store) AddCategory(ctx context.Context, c connection.Category) error {
	return s.mutate(ctx, "add_category", s.writable(c.ID), func(t *connection.Tree) error {
		return t.AppendCategory(c, connection.RootID)
	}, entityAttr(c.ID))
}

// RemoveCategory deletes a category and everything beneath it. Removing an
// unknown ID does nothing; removing the discovered category is rejected with
// ErrProtectedCategory.
func (s *Store) RemoveCategory(ctx context.Context, id connection.ID) error {
	guard := func() error {
		if id == s.providerCat.ID {
			return fmt.Errorf("remove %q: %w", id, ErrProtectedCategory)
		}
		return s.writableLocked(id)
	}
	return s.mutate(ctx, "remove_category", guard, func(t *connection.Tree) error {
		kind, ok := t.KindOf(id)
		if !ok {
			return nil
		}
		if kind != connection.KindCategory {
			return fmt.Errorf("remove category %q: is a %s: %w", id, kind, connection.ErrNotFound)
		}
		_, err := t.Remove(id)
		return err
	}, entityAttr(id))
}

// InsertCategory places c at index within parent, moving it with its subtree
// if it already exists. Indices past the end append.
func (s *Store) InsertCategory(ctx context.Context, c connection.Category, parent connection.ID, index int) error {
	return s.mutate(ctx, "insert_category", s.writable(c.ID, parent), func(t *connection.Tree) error {
		return t.InsertCategory(c, parent, index)
	}, placementAttrs(c.ID, parent, index)...)
}

// InsertHost places h at index within parent, moving it if it already exists
// elsewhere. Indices past the end append.
func (s *Store) InsertHost(ctx context.Context, h connection.Host, parent connection.ID, index int) error {
	return s.mutate(ctx, "insert_host", s.writable(h.ID, parent), func(t *connection.Tree) error {
		return t.InsertHost(h, parent, index)
	}, placementAttrs(h.ID, parent, index)...)
}

// AddHost appends h under parent. When the host already exists its record is
// updated where it is and parent is ignored.
func (s *Store) AddHost(ctx context.Context, h connection.Host, parent connection.ID) error {
	return s.mutate(ctx, "add_host", s.writable(h.ID, parent), func(t *connection.Tree) error {
		if kind, ok := t.KindOf(h.ID); ok && kind == connection.KindHost {
			_, err := t.UpdateHost(h)
			return err
		}
		return t.AppendHost(h, parent)
	}, entityAttr(h.ID))
}

// RemoveHost deletes a host. Removing a host that is not present does nothing.
func (s *Store) RemoveHost(ctx context.Context, id connection.ID) error {
	return s.mutate(ctx, "remove_host", s.writable(id), func(t *connection.Tree) error {
		kind, ok := t.KindOf(id)
		if !ok {
			return nil
		}
		if kind != connection.KindHost {
			return fmt.Errorf("remove host %q: is a %s: %w", id, kind, connection.ErrNotFound)
		}
		_, err := t.Remove(id)
		return err
	}, entityAttr(id))
}

// UpdateHost replaces an existing host's name and parameters in place.
func (s *Store) UpdateHost(ctx context.Context, h connection.Host) error {
	return s.mutate(ctx, "update_host", s.writable(h.ID), func(t *connection.Tree) error {
		_, err := t.UpdateHost(h)
		return err
	}, entityAttr(h.ID))
}

// UpdateCategory renames an existing category.
func (s *Store) UpdateCategory(ctx context.Context, c connection.Category) error {
	return s.mutate(ctx, "update_category", s.writable(c.ID), func(t *connection.Tree) error {
		_, err := t.UpdateCategory(c)
		return err
	}, entityAttr(c.ID))
}

// Move repositions an existing host or category.
func (s *Store) Move(ctx context.Context, id, parent connection.ID, index int) error {
	return s.mutate(ctx, "move", s.writable(id, parent), func(t *connection.Tree) error {
		return t.Move(id, parent, index)
	}, placementAttrs(id, parent, index)...)
}
