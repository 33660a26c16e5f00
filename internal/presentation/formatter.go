package presentation

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/lipgloss/tree"
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
	format Format
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer, format Format) *Formatter {
	return &Formatter{
		writer: writer,
		format: format,
	}
}

func (f *Formatter) json(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (f *Formatter) line(s string) error {
	_, err := fmt.Fprintln(f.writer, s)
	return err
}

// FormatEntries prints the registry outline.
func (f *Formatter) FormatEntries(entries []EntryDTO) error {
	if f.format == FormatJSON {
		return f.json(entries)
	}
	if len(entries) == 0 {
		return f.line("(empty registry)")
	}
	root := tree.New().Enumerator(tree.RoundedEnumerator)
	for _, e := range entries {
		root.Child(entryNode(e))
	}
	return f.line(root.String())
}

func entryNode(e EntryDTO) any {
	label := e.Name
	if e.Kind == "category" {
		if e.Provider {
			label += " (discovered)"
		}
		node := tree.Root(label).Enumerator(tree.RoundedEnumerator)
		for _, c := range e.Children {
			node.Child(entryNode(c))
		}
		return node
	}
	if e.Target != "" {
		label += "  " + e.Target
	}
	return fmt.Sprintf("%s  [%s]", label, e.ID)
}

// FormatHosts prints hosts as a table.
func (f *Formatter) FormatHosts(hosts []HostDTO) error {
	if f.format == FormatJSON {
		return f.json(hosts)
	}
	if len(hosts) == 0 {
		return f.line("no hosts")
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "TARGET")
	for _, h := range hosts {
		t.Row(h.ID, h.Name, h.Target)
	}
	return f.line(t.String())
}

// FormatCategories prints categories as a table.
func (f *Formatter) FormatCategories(categories []CategoryDTO) error {
	if f.format == FormatJSON {
		return f.json(categories)
	}
	if len(categories) == 0 {
		return f.line("no categories")
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "SOURCE")
	for _, c := range categories {
		source := "user"
		if c.Provider {
			source = "discovery"
		}
		t.Row(c.ID, c.Name, source)
	}
	return f.line(t.String())
}

// FormatMenu prints the connect menu.
func (f *Formatter) FormatMenu(items []MenuItemDTO) error {
	if f.format == FormatJSON {
		return f.json(items)
	}
	root := tree.New().Enumerator(tree.RoundedEnumerator)
	for _, item := range items {
		root.Child(menuNode(item))
	}
	return f.line(root.String())
}

func menuNode(item MenuItemDTO) any {
	if item.Kind != "category" {
		return item.Title
	}
	node := tree.Root(item.Title + "/").Enumerator(tree.RoundedEnumerator)
	for _, c := range item.Children {
		node.Child(menuNode(c))
	}
	return node
}

// FormatResult prints the outcome of a mutating command.
func (f *Formatter) FormatResult(result any, message string) error {
	if f.format == FormatJSON {
		return f.json(result)
	}
	return f.line(message)
}
