package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/connreg/internal/config"
	"github.com/zjrosen/connreg/internal/connection"
	"github.com/zjrosen/connreg/internal/discovery"
	"github.com/zjrosen/connreg/internal/presentation"
	"github.com/zjrosen/connreg/internal/pubsub"
	"github.com/zjrosen/connreg/internal/registry"
	"github.com/zjrosen/connreg/internal/testutil"
)

// writeTestConfig writes a config pointing at a database in a temp dir and
// returns the config path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := "db_path: " + filepath.Join(dir, "registry.db") + "\n" +
		"notify:\n  debounce: 10ms\n" +
		"discovery:\n  enabled: false\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))
	return configPath
}

// resetFlags restores every flag to its default so the next Execute starts
// clean.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, child := range c.Commands() {
		resetFlags(child)
	}
}

// run executes the root command with args against configPath.
func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", configPath}, args...))
	t.Cleanup(func() { resetFlags(rootCmd) })

	err := rootCmd.ExecuteContext(context.Background())
	resetFlags(rootCmd)
	return out.String(), err
}

func mustRun(t *testing.T, configPath string, args ...string) string {
	t.Helper()
	out, err := run(t, configPath, args...)
	require.NoError(t, err, "connreg %s: %s", strings.Join(args, " "), out)
	return out
}

func seedRegistry(t *testing.T, configPath string) {
	t.Helper()
	mustRun(t, configPath, "add-category", "Servers", "--id", "A")
	mustRun(t, configPath, "add-category", "Staging", "--id", "B")
	mustRun(t, configPath, "add-host", "web-1", "--id", "h1", "--parent", "A",
		"--protocol", "sftp", "--address", "10.0.0.1", "--port", "22")
	mustRun(t, configPath, "add-host", "web-2", "--id", "h2", "--parent", "A",
		"--protocol", "ssh", "--address", "10.0.0.2", "--user", "deploy")
}

func hostsJSON(t *testing.T, configPath string, args ...string) []presentation.HostDTO {
	t.Helper()
	out := mustRun(t, configPath, append([]string{"-o", "json"}, args...)...)
	var hosts []presentation.HostDTO
	require.NoError(t, json.Unmarshal([]byte(out), &hosts), out)
	return hosts
}

func hostNames(hosts []presentation.HostDTO) []string {
	names := make([]string, len(hosts))
	for i, h := range hosts {
		names[i] = h.Name
	}
	return names
}

func TestList_ShowsSeededTree(t *testing.T) {
	configPath := writeTestConfig(t)
	seedRegistry(t, configPath)

	out := mustRun(t, configPath, "list")

	require.Contains(t, out, "Servers")
	require.Contains(t, out, "Staging")
	require.Contains(t, out, "web-1  sftp://10.0.0.1:22  [h1]")
	require.Contains(t, out, "web-2  ssh://deploy@10.0.0.2  [h2]")
	require.Contains(t, out, "(discovered)")
}

func TestList_JSON(t *testing.T) {
	configPath := writeTestConfig(t)
	seedRegistry(t, configPath)

	out := mustRun(t, configPath, "list", "-o", "json")

	var entries []presentation.EntryDTO
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 3)
	require.Equal(t, []string{"A", "B", string(registry.DefaultProviderCategory.ID)},
		[]string{entries[0].ID, entries[1].ID, entries[2].ID})
	require.Equal(t, "h1", entries[0].Children[0].ID)
	require.Equal(t, map[string]string{"protocol": "sftp", "address": "10.0.0.1", "port": "22"}, entries[0].Children[0].Params)
}

func TestAddHost_IndexAndExtraParams(t *testing.T) {
	configPath := writeTestConfig(t)
	seedRegistry(t, configPath)

	mustRun(t, configPath, "add-host", "stage-1", "--id", "h3", "--parent", "B", "--index", "0",
		"--param", "share=media", "--param", "mode=passive")

	hosts := hostsJSON(t, configPath, "hosts")
	require.Equal(t, []string{"web-1", "web-2", "stage-1"}, hostNames(hosts))
	require.Equal(t, "media", hosts[2].Params["share"])
	require.Equal(t, "passive", hosts[2].Params["mode"])
}

func TestAddHost_InvalidParam(t *testing.T) {
	configPath := writeTestConfig(t)

	_, err := run(t, configPath, "add-host", "x", "--param", "novalue")

	require.Error(t, err)
	require.Contains(t, err.Error(), "key=value")
}

func TestAddHost_MintsID(t *testing.T) {
	configPath := writeTestConfig(t)

	out := mustRun(t, configPath, "-o", "json", "add-host", "solo")

	var h presentation.HostDTO
	require.NoError(t, json.Unmarshal([]byte(out), &h))
	require.NotEmpty(t, h.ID)
	require.Equal(t, "solo", h.Name)
	require.Equal(t, []string{"solo"}, hostNames(hostsJSON(t, configPath, "hosts")))
}

func TestAddHost_UnknownParent(t *testing.T) {
	configPath := writeTestConfig(t)

	_, err := run(t, configPath, "add-host", "x", "--parent", "nope")

	require.ErrorIs(t, err, connection.ErrParentNotFound)
}

func TestSearch(t *testing.T) {
	configPath := writeTestConfig(t)
	seedRegistry(t, configPath)

	require.Equal(t, []string{"web-2"}, hostNames(hostsJSON(t, configPath, "search", "WEB-2")))
	require.Empty(t, hostsJSON(t, configPath, "search", "nothing"))
	require.Len(t, hostsJSON(t, configPath, "search", "  "), 2, "a blank query matches every host")

	out := mustRun(t, configPath, "search", "web")
	require.Contains(t, out, "sftp://10.0.0.1:22")
}

func TestMove(t *testing.T) {
	configPath := writeTestConfig(t)
	seedRegistry(t, configPath)

	mustRun(t, configPath, "mv", "h2", "B")
	mustRun(t, configPath, "mv", "B", "--index", "0")

	out := mustRun(t, configPath, "-o", "json", "categories")
	var cats []presentation.CategoryDTO
	require.NoError(t, json.Unmarshal([]byte(out), &cats))
	require.Equal(t, "B", cats[0].ID)
	require.Equal(t, "A", cats[1].ID)
	require.True(t, cats[2].Provider)

	require.Equal(t, []string{"web-2", "web-1"}, hostNames(hostsJSON(t, configPath, "hosts")))
}

func TestMove_IntoOwnSubtreeFails(t *testing.T) {
	configPath := writeTestConfig(t)
	seedRegistry(t, configPath)
	mustRun(t, configPath, "add-category", "Nested", "--id", "A1", "--parent", "A")

	_, err := run(t, configPath, "mv", "A", "A1")

	require.ErrorIs(t, err, connection.ErrCycle)
}

func TestRename(t *testing.T) {
	configPath := writeTestConfig(t)
	seedRegistry(t, configPath)

	mustRun(t, configPath, "rename", "h1", "web-one")
	mustRun(t, configPath, "rename", "B", "Stage")

	out := mustRun(t, configPath, "list")
	require.Contains(t, out, "web-one")
	require.Contains(t, out, "Stage")

	hosts := hostsJSON(t, configPath, "hosts")
	require.Equal(t, "sftp://10.0.0.1:22", hosts[0].Target, "renaming keeps the parameters")

	_, err := run(t, configPath, "rename", "ghost", "x")
	require.ErrorIs(t, err, connection.ErrNotFound)
}

func TestRemove(t *testing.T) {
	configPath := writeTestConfig(t)
	seedRegistry(t, configPath)

	mustRun(t, configPath, "rm", "h2", "B")

	out := mustRun(t, configPath, "list")
	require.NotContains(t, out, "web-2")
	require.NotContains(t, out, "Staging")
	require.Contains(t, out, "web-1")

	mustRun(t, configPath, "rm", "A")
	require.Empty(t, hostsJSON(t, configPath, "hosts"), "removing a category removes its hosts")
}

func TestRemove_UnknownIDRemovesNothing(t *testing.T) {
	configPath := writeTestConfig(t)
	seedRegistry(t, configPath)

	_, err := run(t, configPath, "rm", "h1", "ghost")

	require.ErrorIs(t, err, connection.ErrNotFound)
	require.Equal(t, []string{"web-1", "web-2"}, hostNames(hostsJSON(t, configPath, "hosts")))
}

func TestRemove_CategoryAndOwnChild(t *testing.T) {
	configPath := writeTestConfig(t)
	seedRegistry(t, configPath)

	out := mustRun(t, configPath, "rm", "A", "h1")

	require.Contains(t, out, "removed A, h1")
	require.Empty(t, hostsJSON(t, configPath, "hosts"))
	require.NotContains(t, mustRun(t, configPath, "categories"), "Servers")
}

func TestRemove_ChildBeforeItsCategory(t *testing.T) {
	configPath := writeTestConfig(t)
	seedRegistry(t, configPath)

	mustRun(t, configPath, "rm", "h2", "A")

	require.Empty(t, hostsJSON(t, configPath, "hosts"))
}

func TestRemovalPlan(t *testing.T) {
	ctx := context.Background()
	store := registry.New(registry.NewMemoryBackend(testutil.NewBuilder(t).WithExampleData().Build()), nil)
	require.NoError(t, store.Start(ctx))
	t.Cleanup(func() { _ = store.Close() })
	store.ReplaceDiscovered(ctx, discovery.Snapshot{Hosts: []connection.Host{{ID: "lan-1", Name: "printer"}}})
	tree, _ := store.Snapshot()

	plan, err := removalPlan(tree, []string{"h1", "A", "B", "h2"})
	require.NoError(t, err)
	ids := make([]connection.ID, len(plan))
	for i, e := range plan {
		ids[i] = e.EntryID()
	}
	require.Equal(t, []connection.ID{"A", "B"}, ids, "hosts under a listed category are covered by it")

	_, err = removalPlan(tree, []string{"h1", "lan-1"})
	require.ErrorIs(t, err, connection.ErrReadOnly)

	_, err = removalPlan(tree, []string{string(registry.DefaultProviderCategory.ID)})
	require.ErrorIs(t, err, registry.ErrProtectedCategory)

	_, err = removalPlan(tree, []string{"A", "ghost"})
	require.ErrorIs(t, err, connection.ErrNotFound)
}

func TestRemove_DiscoveredCategoryIsProtected(t *testing.T) {
	configPath := writeTestConfig(t)

	_, err := run(t, configPath, "rm", string(registry.DefaultProviderCategory.ID))

	require.ErrorIs(t, err, registry.ErrProtectedCategory)
}

func TestMenu(t *testing.T) {
	configPath := writeTestConfig(t)
	seedRegistry(t, configPath)

	out := mustRun(t, configPath, "menu")
	require.Contains(t, out, "Servers/")
	require.Contains(t, out, "web-1")

	out = mustRun(t, configPath, "menu", "-o", "json")
	var items []presentation.MenuItemDTO
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Equal(t, "Servers", items[0].Title)
	require.Len(t, items[0].Children, 2)
}

func TestDiscoveryFromFile(t *testing.T) {
	configPath := writeTestConfig(t)
	dir := filepath.Dir(configPath)
	discovered := filepath.Join(dir, "discovered.yaml")
	require.NoError(t, os.WriteFile(discovered, []byte(`category: Local Network
services:
  - name: printer
    params:
      protocol: ipp
      address: 192.168.1.20
      port: "631"
`), 0o600))
	content, err := os.ReadFile(configPath)
	require.NoError(t, err)
	content = []byte(strings.Replace(string(content), "discovery:\n  enabled: false\n",
		"discovery:\n  enabled: true\n  file: "+discovered+"\n", 1))
	require.NoError(t, os.WriteFile(configPath, content, 0o600))

	out := mustRun(t, configPath, "list")

	require.Contains(t, out, "Local Network (discovered)")
	require.Contains(t, out, "printer  ipp://192.168.1.20:631")
}

func TestInvalidOutputFormat(t *testing.T) {
	configPath := writeTestConfig(t)

	_, err := run(t, configPath, "list", "-o", "xml")

	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown output format")
}

func TestInvalidConfig(t *testing.T) {
	configPath := writeTestConfig(t)
	f, err := os.OpenFile(configPath, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("search:\n  cache_ttl: -1s\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = run(t, configPath, "list")

	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid configuration")
}

func TestDefaultConfigTemplateLoads(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, config.WriteDefaultConfig(configPath))
	f, err := os.OpenFile(configPath, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("db_path: " + filepath.Join(dir, "registry.db") + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	mustRun(t, configPath, "list")

	require.Equal(t, 50*time.Millisecond, cfg.Notify.Debounce)
	require.Equal(t, 256, cfg.Notify.Retain)
	require.Equal(t, time.Minute, cfg.Search.CacheTTL)
}

func TestWatchEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := registry.New(registry.NewMemoryBackend(testutil.NewBuilder(t).WithExampleData().Build()), nil)
	require.NoError(t, store.Start(ctx))
	defer func() { _ = store.Close() }()

	var out syncBuffer
	done := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		done <- watchEvents(ctx, subscribeSignal{store, started}, &out)
	}()
	<-started

	require.NoError(t, store.AddCategory(ctx, connection.Category{ID: "C", Name: "Lab"}))
	store.SetFilterString("web")

	require.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, string(pubsub.ChangedEvent)+" generation=2") &&
			strings.Contains(s, `query="web"`)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// subscribeSignal closes started once the subscription exists.
type subscribeSignal struct {
	*registry.Store
	started chan struct{}
}

func (s subscribeSignal) Subscribe(ctx context.Context) <-chan pubsub.Event[registry.Change] {
	ch := s.Store.Subscribe(ctx)
	close(s.started)
	return ch
}
