// Package browser is a terminal outline of the connection registry. It reads
// the tree through the outline adapter and follows the store's refresh events,
// so changes made by other processes show up while it is open.
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/connreg/internal/connection"
	"github.com/zjrosen/connreg/internal/keys"
	"github.com/zjrosen/connreg/internal/log"
	"github.com/zjrosen/connreg/internal/outline"
	"github.com/zjrosen/connreg/internal/presentation"
	"github.com/zjrosen/connreg/internal/pubsub"
	"github.com/zjrosen/connreg/internal/registry"
	"github.com/zjrosen/connreg/internal/ui/styles"
)

// chromeLines is the header, filter and status lines around the outline.
const chromeLines = 3

// Store is the part of the registry the browser uses.
type Store interface {
	outline.Source
	pubsub.Subscriber[registry.Change]
	FilterString() string
	SetFilterString(query string)
	Reload(ctx context.Context) error
}

// Model is the bubbletea model of the browser.
type Model struct {
	ctx      context.Context
	store    Store
	adapter  *outline.Adapter
	listener *pubsub.ContinuousListener[registry.Change]
	keys     keys.KeyMap

	rows      []outline.Row
	last      []bool // last child among its siblings, per row
	collapsed map[connection.ID]bool
	cursor    int
	scrollTop int

	input     textinput.Model
	filtering bool

	width  int
	height int

	selected *connection.Host
	err      error
}

// New creates a browser over store. The subscription lives as long as ctx.
func New(ctx context.Context, store Store) *Model {
	input := textinput.New()
	input.Prompt = "/ "
	input.Placeholder = "filter hosts by name"
	input.PlaceholderStyle = lipgloss.NewStyle().Foreground(styles.TextPlaceholderColor)
	input.SetValue(store.FilterString())

	m := &Model{
		ctx:       ctx,
		store:     store,
		adapter:   outline.NewAdapter(store),
		listener:  pubsub.NewLatestListener[registry.Change](ctx, store),
		keys:      keys.DefaultKeyMap(),
		collapsed: make(map[connection.ID]bool),
		input:     input,
	}
	m.adapter.Refresh(store.FilterString())
	m.rebuild()
	return m
}

// Init starts listening for registry events.
func (m *Model) Init() tea.Cmd {
	return m.listener.Listen()
}

// Selected returns the host chosen with enter, if any.
func (m *Model) Selected() (connection.Host, bool) {
	if m.selected == nil {
		return connection.Host{}, false
	}
	return *m.selected, true
}

// SetSize sets the viewport dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = max(width-4, 10)
	m.ensureCursorVisible()
}

// Update handles key presses, resizes and registry events.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case pubsub.Event[registry.Change]:
		log.Debug(log.CatUI, "Registry event", "type", msg.Type, "generation", msg.Payload.Generation)
		m.refresh()
		return m, m.listener.Listen()

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg)
		}
		return m.updateOutline(msg)
	}
	return m, nil
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ClearFilter):
		m.filtering = false
		m.input.Blur()
		m.input.SetValue("")
		m.applyFilter("")
		return m, nil
	case key.Matches(msg, m.keys.ApplyFilter):
		m.filtering = false
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.applyFilter(m.input.Value())
	return m, cmd
}

func (m *Model) updateOutline(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.MoveCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.MoveCursor(1)
	case key.Matches(msg, m.keys.Top):
		m.MoveCursor(-len(m.rows))
	case key.Matches(msg, m.keys.Bottom):
		m.MoveCursor(len(m.rows))
	case key.Matches(msg, m.keys.Collapse):
		m.collapse()
	case key.Matches(msg, m.keys.Expand):
		m.setExpanded(true)
	case key.Matches(msg, m.keys.Select):
		return m, m.selectRow()
	case key.Matches(msg, m.keys.FocusFilter):
		m.filtering = true
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.ClearFilter):
		if m.store.FilterString() != "" {
			m.input.SetValue("")
			m.applyFilter("")
		}
	case key.Matches(msg, m.keys.Reload):
		if err := m.store.Reload(m.ctx); err != nil {
			m.err = err
			log.ErrorErr(log.CatUI, "Reload failed", err)
		}
		m.refresh()
	}
	return m, nil
}

// applyFilter pushes the query to the store and refreshes right away; the
// resulting UpdatedEvent finds nothing left to do.
func (m *Model) applyFilter(query string) {
	m.store.SetFilterString(query)
	m.refresh()
}

// refresh pulls the current node space and keeps the cursor on the same
// entry when it is still visible.
func (m *Model) refresh() {
	if !m.adapter.Refresh(m.store.FilterString()) {
		return
	}
	var current connection.ID
	hadCursor := m.cursor < len(m.rows)
	if hadCursor {
		current = m.rows[m.cursor].ID
	}
	m.rebuild()
	if hadCursor {
		m.SelectByID(current)
	}
}

func (m *Model) rebuild() {
	m.rows = m.adapter.Rows(func(id connection.ID) bool { return !m.collapsed[id] })
	m.last = lastSiblings(m.rows)
	m.cursor = min(m.cursor, max(len(m.rows)-1, 0))
	m.ensureCursorVisible()
}

// lastSiblings marks each row that is the final child of its parent.
func lastSiblings(rows []outline.Row) []bool {
	last := make([]bool, len(rows))
	seen := map[int]bool{}
	for i := len(rows) - 1; i >= 0; i-- {
		d := rows[i].Depth
		last[i] = !seen[d]
		seen[d] = true
		for deeper := range seen {
			if deeper > d {
				delete(seen, deeper)
			}
		}
	}
	return last
}

// MoveCursor moves the cursor by delta rows, clamped to the outline.
func (m *Model) MoveCursor(delta int) {
	if len(m.rows) == 0 {
		return
	}
	m.cursor = max(0, min(m.cursor+delta, len(m.rows)-1))
	m.ensureCursorVisible()
}

// SelectByID moves the cursor to the row for id. Returns false if the entry
// is not visible.
func (m *Model) SelectByID(id connection.ID) bool {
	for i, r := range m.rows {
		if r.ID == id {
			m.cursor = i
			m.ensureCursorVisible()
			return true
		}
	}
	return false
}

// Current returns the row under the cursor.
func (m *Model) Current() (outline.Row, bool) {
	if m.cursor >= len(m.rows) {
		return outline.Row{}, false
	}
	return m.rows[m.cursor], true
}

// Rows returns the visible outline.
func (m *Model) Rows() []outline.Row {
	return m.rows
}

func (m *Model) setExpanded(expanded bool) {
	row, ok := m.Current()
	if !ok || row.Leaf || row.Expanded == expanded {
		return
	}
	if expanded {
		delete(m.collapsed, row.ID)
	} else {
		m.collapsed[row.ID] = true
	}
	m.rebuild()
}

// collapse folds the current category, or jumps to the parent of a host or
// an already folded category.
func (m *Model) collapse() {
	row, ok := m.Current()
	if !ok {
		return
	}
	if !row.Leaf && row.Expanded {
		m.setExpanded(false)
		return
	}
	if parent, ok := m.adapter.Parent(row.ID); ok && parent != connection.RootID {
		m.SelectByID(parent)
	}
}

func (m *Model) selectRow() tea.Cmd {
	row, ok := m.Current()
	if !ok {
		return nil
	}
	if !row.Leaf {
		m.setExpanded(!row.Expanded)
		return nil
	}
	if h, ok := row.Entry.(connection.Host); ok {
		m.selected = &h
		return tea.Quit
	}
	return nil
}

// ensureCursorVisible adjusts scrollTop to keep cursor in view.
func (m *Model) ensureCursorVisible() {
	viewportHeight := m.viewportHeight()
	if viewportHeight <= 0 {
		return
	}

	if m.cursor >= m.scrollTop+viewportHeight {
		m.scrollTop = m.cursor - viewportHeight + 1
	}
	if m.cursor < m.scrollTop {
		m.scrollTop = m.cursor
	}

	maxScroll := max(len(m.rows)-viewportHeight, 0)
	m.scrollTop = min(m.scrollTop, maxScroll)
	m.scrollTop = max(m.scrollTop, 0)
}

// viewportHeight returns the number of visible outline rows, leaving room
// for the chrome and both scroll indicators.
func (m *Model) viewportHeight() int {
	if m.height == 0 {
		return len(m.rows)
	}
	return max(m.height-chromeLines-2, 1)
}

// View renders the browser.
func (m *Model) View() string {
	var sb strings.Builder

	sb.WriteString(m.renderHeader())
	sb.WriteString("\n")

	if len(m.rows) == 0 {
		if m.adapter.Filtered() {
			sb.WriteString(styles.GuideStyle.Render("  No hosts match the filter."))
		} else {
			sb.WriteString(styles.GuideStyle.Render("  The registry is empty."))
		}
		sb.WriteString("\n")
	} else {
		viewportHeight := m.viewportHeight()
		endIdx := min(m.scrollTop+viewportHeight, len(m.rows))

		if m.scrollTop > 0 {
			sb.WriteString(styles.GuideStyle.Render(fmt.Sprintf("  ↑ %d more above", m.scrollTop)))
			sb.WriteString("\n")
		}
		prefixes := m.prefixes(endIdx)
		for i := m.scrollTop; i < endIdx; i++ {
			sb.WriteString(m.renderRow(i, prefixes[i]))
			sb.WriteString("\n")
		}
		if remaining := len(m.rows) - endIdx; remaining > 0 {
			sb.WriteString(styles.GuideStyle.Render(fmt.Sprintf("  ↓ %d more below", remaining)))
			sb.WriteString("\n")
		}
	}

	if m.filtering || m.input.Value() != "" {
		sb.WriteString(m.input.View())
		sb.WriteString("\n")
	}
	if m.err != nil {
		sb.WriteString(lipgloss.NewStyle().Foreground(styles.StatusErrorColor).Render("error: " + m.err.Error()))
		sb.WriteString("\n")
	}
	sb.WriteString(m.renderStatus())
	return sb.String()
}

func (m *Model) renderHeader() string {
	title := styles.CategoryStyle.Render("Connections")
	if m.adapter.Filtered() {
		title += " " + styles.FilterLabelStyle.Render(fmt.Sprintf("[filter: %s]", m.store.FilterString()))
	}
	return title
}

func (m *Model) renderStatus() string {
	help := make([]string, 0, 3)
	for _, b := range m.keys.ShortHelp() {
		help = append(help, b.Help().Key+" "+b.Help().Desc)
	}
	status := fmt.Sprintf("gen %d · %s", m.adapter.Generation(), strings.Join(help, " · "))
	return styles.StatusBarStyle.Render(status)
}

// prefixes builds the branch prefix of every row up to end. Depth 0 rows have
// none; deeper rows draw a guide for each open ancestor and a connector.
func (m *Model) prefixes(end int) []string {
	out := make([]string, end)
	var ancestorLast []bool
	for i := 0; i < end; i++ {
		d := m.rows[i].Depth
		ancestorLast = append(ancestorLast[:min(d, len(ancestorLast))], m.last[i])
		if d == 0 {
			continue
		}
		var sb strings.Builder
		for k := 1; k < d; k++ {
			if ancestorLast[k] {
				sb.WriteString("    ")
			} else {
				sb.WriteString("│   ")
			}
		}
		if m.last[i] {
			sb.WriteString("└─")
		} else {
			sb.WriteString("├─")
		}
		out[i] = sb.String()
	}
	return out
}

func (m *Model) renderRow(i int, prefix string) string {
	row := m.rows[i]
	selected := i == m.cursor

	var sb strings.Builder
	if selected {
		sb.WriteString(styles.SelectionIndicatorStyle.Render(">"))
	} else {
		sb.WriteString(" ")
	}
	sb.WriteString(styles.GuideStyle.Render(prefix))

	switch e := row.Entry.(type) {
	case connection.Category:
		marker := "▸ "
		if row.Expanded {
			marker = "▾ "
		}
		style := styles.CategoryStyle
		if e.Provider {
			style = styles.ProviderStyle
		}
		sb.WriteString(style.Render(marker + m.truncate(e.Name, sb.String())))
	case connection.Host:
		sb.WriteString(styles.HostStyle.Render(m.truncate(e.Name, sb.String())))
		if target := presentation.Target(e); target != "" {
			used := lipgloss.Width(sb.String())
			if m.width == 0 || used+2+lipgloss.Width(target) <= m.width {
				sb.WriteString("  ")
				sb.WriteString(styles.TargetStyle.Render(target))
			}
		}
	}
	return sb.String()
}

// truncate fits a title into what is left of the line after left.
func (m *Model) truncate(title, left string) string {
	if m.width == 0 {
		return title
	}
	return styles.TruncateString(title, m.width-lipgloss.Width(left)-2)
}

var _ tea.Model = (*Model)(nil)
