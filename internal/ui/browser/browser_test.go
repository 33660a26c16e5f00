package browser

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/connreg/internal/connection"
	"github.com/zjrosen/connreg/internal/outline"
	"github.com/zjrosen/connreg/internal/pubsub"
	"github.com/zjrosen/connreg/internal/registry"
	"github.com/zjrosen/connreg/internal/testutil"
)

// newTestBrowser opens a browser over the nested preset. The outline is:
//
//	prod, db, pg1, pg2, web, nginx, lab, pi, discovered
func newTestBrowser(t *testing.T) (*Model, *registry.Store) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	tree := testutil.NewBuilder(t).WithNestedData().Build()
	store := registry.New(registry.NewMemoryBackend(tree), nil)
	require.NoError(t, store.Start(ctx))
	t.Cleanup(func() { _ = store.Close() })

	return New(ctx, store), store
}

func rowIDs(rows []outline.Row) []connection.ID {
	ids := make([]connection.ID, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m *Model, msgs ...tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	for _, msg := range msgs {
		_, cmd = m.Update(msg)
	}
	return cmd
}

func currentID(t *testing.T, m *Model) connection.ID {
	t.Helper()
	row, ok := m.Current()
	require.True(t, ok)
	return row.ID
}

func TestNew_RowsFollowTree(t *testing.T) {
	m, _ := newTestBrowser(t)

	require.Equal(t,
		[]connection.ID{"prod", "db", "pg1", "pg2", "web", "nginx", "lab", "pi", registry.DefaultProviderCategory.ID},
		rowIDs(m.Rows()))
	require.Equal(t, connection.ID("prod"), currentID(t, m))
	require.NotNil(t, m.Init(), "Init should start listening for registry events")
}

func TestUpdate_CursorMovement(t *testing.T) {
	m, _ := newTestBrowser(t)

	press(m, keyRunes("j"), keyRunes("j"))
	require.Equal(t, connection.ID("pg1"), currentID(t, m))

	press(m, keyRunes("k"))
	require.Equal(t, connection.ID("db"), currentID(t, m))

	press(m, keyRunes("G"))
	require.Equal(t, registry.DefaultProviderCategory.ID, currentID(t, m))

	press(m, keyRunes("j"))
	require.Equal(t, registry.DefaultProviderCategory.ID, currentID(t, m), "cursor stops at the last row")

	press(m, keyRunes("g"))
	require.Equal(t, connection.ID("prod"), currentID(t, m))

	press(m, keyRunes("k"))
	require.Equal(t, connection.ID("prod"), currentID(t, m), "cursor stops at the first row")
}

func TestUpdate_CollapseAndExpand(t *testing.T) {
	m, _ := newTestBrowser(t)

	press(m, keyRunes("h"))
	require.Equal(t, []connection.ID{"prod", "lab", "pi", registry.DefaultProviderCategory.ID}, rowIDs(m.Rows()))
	require.False(t, m.Rows()[0].Expanded)

	press(m, keyRunes("l"))
	require.Len(t, m.Rows(), 9)
	require.True(t, m.Rows()[0].Expanded)
}

func TestUpdate_CollapseOnHostJumpsToParent(t *testing.T) {
	m, _ := newTestBrowser(t)
	require.True(t, m.SelectByID("pg2"))

	press(m, keyRunes("h"))
	require.Equal(t, connection.ID("db"), currentID(t, m))

	press(m, keyRunes("h"))
	require.Equal(t, connection.ID("db"), currentID(t, m))
	require.NotContains(t, rowIDs(m.Rows()), connection.ID("pg1"))

	press(m, keyRunes("h"))
	require.Equal(t, connection.ID("prod"), currentID(t, m), "a folded category moves to its parent")
}

func TestUpdate_EnterOnCategoryToggles(t *testing.T) {
	m, _ := newTestBrowser(t)
	require.True(t, m.SelectByID("lab"))

	cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.NotContains(t, rowIDs(m.Rows()), connection.ID("pi"))

	press(m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Contains(t, rowIDs(m.Rows()), connection.ID("pi"))

	_, ok := m.Selected()
	require.False(t, ok)
}

func TestUpdate_EnterOnHostSelects(t *testing.T) {
	m, _ := newTestBrowser(t)
	require.True(t, m.SelectByID("pi"))

	cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd, "selecting a host should quit")

	h, ok := m.Selected()
	require.True(t, ok)
	require.Equal(t, "raspberry", h.Name)
	require.Equal(t, "pi", h.Param("user"))
}

func TestUpdate_FilterSwitchesToFlatHosts(t *testing.T) {
	m, store := newTestBrowser(t)

	press(m, keyRunes("/"))
	for _, r := range "post" {
		press(m, keyRunes(string(r)))
	}

	require.Equal(t, "post", store.FilterString())
	require.Equal(t, []connection.ID{"pg1", "pg2"}, rowIDs(m.Rows()))
	for _, r := range m.Rows() {
		require.Equal(t, 0, r.Depth)
		require.True(t, r.Leaf)
	}
	require.Contains(t, m.View(), "[filter: post]")

	// enter keeps the filter and returns to navigation
	press(m, tea.KeyMsg{Type: tea.KeyEnter}, keyRunes("j"))
	require.Equal(t, connection.ID("pg2"), currentID(t, m))
	require.Equal(t, "post", store.FilterString())

	press(m, tea.KeyMsg{Type: tea.KeyEsc})
	require.Equal(t, "", store.FilterString())
	require.Len(t, m.Rows(), 9)
	require.Equal(t, connection.ID("pg2"), currentID(t, m), "cursor follows the entry out of the filter")
}

func TestUpdate_FilterWithoutMatches(t *testing.T) {
	m, _ := newTestBrowser(t)

	press(m, keyRunes("/"), keyRunes("z"), keyRunes("z"))

	require.Empty(t, m.Rows())
	_, ok := m.Current()
	require.False(t, ok)
	require.Contains(t, m.View(), "No hosts match the filter.")
}

func TestUpdate_RegistryEventRefreshes(t *testing.T) {
	m, store := newTestBrowser(t)
	require.True(t, m.SelectByID("lab"))
	ctx := context.Background()

	require.NoError(t, store.InsertHost(ctx, connection.Host{ID: "edge", Name: "edge-1"}, connection.RootID, 0))
	cmd := press(m, pubsub.Event[registry.Change]{Type: pubsub.ChangedEvent, Payload: registry.Change{Generation: store.Generation()}})

	require.NotNil(t, cmd, "the browser keeps listening after an event")
	require.Equal(t, connection.ID("edge"), m.Rows()[0].ID)
	require.Equal(t, connection.ID("lab"), currentID(t, m), "cursor stays on the same entry")
}

func TestUpdate_RemovedEntryClampsCursor(t *testing.T) {
	m, store := newTestBrowser(t)
	press(m, keyRunes("G"), keyRunes("k"))
	require.Equal(t, connection.ID("pi"), currentID(t, m))

	require.NoError(t, store.RemoveCategory(context.Background(), "lab"))
	press(m, pubsub.Event[registry.Change]{Type: pubsub.ReloadedEvent})

	require.Len(t, m.Rows(), 7)
	_, ok := m.Current()
	require.True(t, ok)
}

func TestPrefixes(t *testing.T) {
	m, _ := newTestBrowser(t)

	got := m.prefixes(len(m.Rows()))

	require.Equal(t, []string{
		"",       // prod
		"├─",     // db
		"│   ├─", // pg1
		"│   └─", // pg2
		"└─",     // web
		"    └─", // nginx
		"",       // lab
		"└─",     // pi
		"",       // discovered
	}, got)
}

func TestView_ScrollIndicators(t *testing.T) {
	m, _ := newTestBrowser(t)
	m.SetSize(80, 8) // three outline rows

	view := m.View()
	require.Contains(t, view, "↓ 6 more below")
	require.NotContains(t, view, "more above")

	press(m, keyRunes("G"))
	view = m.View()
	require.Contains(t, view, "↑ 6 more above")
	require.NotContains(t, view, "more below")
}

func TestView_RendersEntries(t *testing.T) {
	m, _ := newTestBrowser(t)
	m.SetSize(120, 40)

	view := m.View()
	require.Contains(t, view, "Connections")
	require.Contains(t, view, "▾ Production")
	require.Contains(t, view, "postgres-primary")
	require.Contains(t, view, "raspberry")
	require.Contains(t, view, "gen 1")

	lines := strings.Split(view, "\n")
	require.True(t, strings.HasPrefix(lines[1], ">"), "cursor marks the first row")
}

func TestView_EmptyRegistry(t *testing.T) {
	ctx := context.Background()
	store := registry.New(registry.NewMemoryBackend(nil), nil,
		registry.WithProviderCategory(connection.Category{ID: "lan", Name: "Nearby"}))
	require.NoError(t, store.Start(ctx))
	defer func() { _ = store.Close() }()

	m := New(ctx, store)

	require.Equal(t, []connection.ID{"lan"}, rowIDs(m.Rows()), "only the discovered category is shown")
	require.Contains(t, m.View(), "▾ Nearby")
}

func TestUpdate_Quit(t *testing.T) {
	m, _ := newTestBrowser(t)

	cmd := press(m, keyRunes("q"))
	require.NotNil(t, cmd)
	require.Equal(t, tea.Quit(), cmd())
}

// Golden tests for browser rendering
// Run with -update flag to update golden files: go test -update ./internal/ui/browser/...

// newGoldenBrowser renders without colors so golden files stay plain text.
func newGoldenBrowser(t *testing.T) (*Model, *registry.Store) {
	t.Helper()
	lipgloss.SetColorProfile(termenv.Ascii)
	return newTestBrowser(t)
}

// TestView_Golden_Expanded tests the fully expanded outline.
func TestView_Golden_Expanded(t *testing.T) {
	m, _ := newGoldenBrowser(t)

	view := m.View()
	teatest.RequireEqualOutput(t, []byte(view))
}

// TestView_Golden_Collapsed tests the outline with the first category folded.
func TestView_Golden_Collapsed(t *testing.T) {
	m, _ := newGoldenBrowser(t)
	press(m, keyRunes("h"))

	view := m.View()
	teatest.RequireEqualOutput(t, []byte(view))
}

// TestView_Golden_Filtered tests the flat host list shown while a filter set
// elsewhere in the process is active.
func TestView_Golden_Filtered(t *testing.T) {
	m, store := newGoldenBrowser(t)
	store.SetFilterString("post")
	press(m, pubsub.Event[registry.Change]{Type: pubsub.UpdatedEvent, Payload: registry.Change{Query: "post"}})

	view := m.View()
	teatest.RequireEqualOutput(t, []byte(view))
}

// TestView_Golden_Scrolled tests a short viewport with the cursor moved past
// the first screen.
func TestView_Golden_Scrolled(t *testing.T) {
	m, _ := newGoldenBrowser(t)
	m.SetSize(80, 8)
	press(m, keyRunes("j"), keyRunes("j"), keyRunes("j"))

	view := m.View()
	teatest.RequireEqualOutput(t, []byte(view))
}
