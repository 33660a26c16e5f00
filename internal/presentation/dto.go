package presentation

import (
	"fmt"
	"strings"

	"github.com/zjrosen/connreg/internal/connection"
	"github.com/zjrosen/connreg/internal/registry"
)

// EntryDTO represents a host or category for presentation. Categories carry
// their contents in Children.
type EntryDTO struct {
	ID       string            `json:"id"`
	Kind     string            `json:"kind"`
	Name     string            `json:"name"`
	Provider bool              `json:"provider,omitempty"`
	Target   string            `json:"target,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
	Children []EntryDTO        `json:"children,omitempty"`
}

// HostDTO represents a single host with its resolved connection target.
type HostDTO struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Target string            `json:"target"`
	Params map[string]string `json:"params,omitempty"`
}

// CategoryDTO represents a category without its contents.
type CategoryDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider bool   `json:"provider,omitempty"`
}

// MenuItemDTO mirrors registry.MenuItem.
type MenuItemDTO struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Kind     string        `json:"kind"`
	Provider bool          `json:"provider,omitempty"`
	Children []MenuItemDTO `json:"children,omitempty"`
}

// Target renders a host's parameters as protocol://user@address:port,
// leaving out whatever is unset. It returns "" when the host has no address.
func Target(h connection.Host) string {
	address := h.Param("address")
	if address == "" {
		return ""
	}
	var sb strings.Builder
	if p := h.Param("protocol"); p != "" {
		sb.WriteString(p)
		sb.WriteString("://")
	}
	if u := h.Param("user"); u != "" {
		sb.WriteString(u)
		sb.WriteString("@")
	}
	sb.WriteString(address)
	if port := h.Param("port"); port != "" {
		fmt.Fprintf(&sb, ":%s", port)
	}
	return sb.String()
}

// FromTree converts every entry below parent, preserving child order.
func FromTree(t *connection.Tree, parent connection.ID) []EntryDTO {
	ids := t.Children(parent)
	dtos := make([]EntryDTO, 0, len(ids))
	for _, id := range ids {
		e, ok := t.Entry(id)
		if !ok {
			continue
		}
		dto := EntryDTO{
			ID:       string(id),
			Kind:     e.Kind().String(),
			Name:     e.Title(),
			Provider: t.ReadOnly(id),
		}
		switch v := e.(type) {
		case connection.Host:
			dto.Target = Target(v)
			dto.Params = v.Params.Clone()
		case connection.Category:
			dto.Children = FromTree(t, id)
		}
		dtos = append(dtos, dto)
	}
	return dtos
}

// FromHost converts a host to a DTO.
func FromHost(h connection.Host) HostDTO {
	return HostDTO{
		ID:     string(h.ID),
		Name:   h.Name,
		Target: Target(h),
		Params: h.Params.Clone(),
	}
}

// FromHosts converts a slice of hosts to DTOs
func FromHosts(hosts []connection.Host) []HostDTO {
	dtos := make([]HostDTO, len(hosts))
	for i, h := range hosts {
		dtos[i] = FromHost(h)
	}
	return dtos
}

// FromCategories converts a slice of categories to DTOs
func FromCategories(categories []connection.Category) []CategoryDTO {
	dtos := make([]CategoryDTO, len(categories))
	for i, c := range categories {
		dtos[i] = CategoryDTO{ID: string(c.ID), Name: c.Name, Provider: c.Provider}
	}
	return dtos
}

// FromMenu converts menu items recursively.
func FromMenu(items []registry.MenuItem) []MenuItemDTO {
	if len(items) == 0 {
		return nil
	}
	dtos := make([]MenuItemDTO, len(items))
	for i, item := range items {
		dtos[i] = MenuItemDTO{
			ID:       string(item.ID),
			Title:    item.Title,
			Kind:     item.Kind.String(),
			Provider: item.Provider,
			Children: FromMenu(item.Children),
		}
	}
	return dtos
}
