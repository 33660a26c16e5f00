package registry

import "github.com/zjrosen/connreg/internal/connection"

// MenuItem is one entry of a "connect to" menu. ID maps back to the entity
// through Store.Entry.
type MenuItem struct {
	ID       connection.ID
	Title    string
	Kind     connection.Kind
	Provider bool
	Children []MenuItem
}

// Leaf reports whether the item is a host.
func (m MenuItem) Leaf() bool {
	return m.Kind == connection.KindHost
}

// Menu returns an item for every root entry, categories carrying their
// contents as children.
func (s *Store) Menu() []MenuItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return menuItems(s.view, connection.RootID)
}

func menuItems(t *connection.Tree, parent connection.ID) []MenuItem {
	ids := t.Children(parent)
	if len(ids) == 0 {
		return nil
	}
	items := make([]MenuItem, 0, len(ids))
	for _, id := range ids {
		e, _ := t.Entry(id)
		item := MenuItem{ID: id, Title: e.Title(), Kind: e.Kind(), Provider: t.ReadOnly(id)}
		if item.Kind == connection.KindCategory {
			item.Children = menuItems(t, id)
		}
		items = append(items, item)
	}
	return items
}
