package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/connreg/internal/connection"
	"github.com/zjrosen/connreg/internal/notify"
	"github.com/zjrosen/connreg/internal/registry"
	"github.com/zjrosen/connreg/internal/watcher"
)

// openProcess wires a store the way the CLI does: its own database handle,
// a file channel over the shared change log and a notifier.
func openProcess(t *testing.T, dbPath string) (*registry.Store, *notify.Notifier) {
	t.Helper()
	db, err := NewDB(dbPath)
	require.NoError(t, err)

	ch := notify.NewFileChannel(db.ChangeLog(), watcher.SQLitePaths(dbPath),
		notify.WithDebounce(10*time.Millisecond),
		notify.WithPollInterval(50*time.Millisecond),
	)
	n := notify.NewNotifier(ch)
	s := registry.New(db.TreeRepository(), n)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() {
		_ = s.Close()
		_ = ch.Close()
		_ = db.Close()
	})
	return s, n
}

func TestRegistry_ChangesReachOtherProcesses(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "registry.db")
	writer, writerNotifier := openProcess(t, dbPath)
	reader, readerNotifier := openProcess(t, dbPath)

	err := writer.Batch(ctx, func() error {
		if err := writer.AddCategory(ctx, connection.Category{ID: "A", Name: "Servers"}); err != nil {
			return err
		}
		return writer.AddHost(ctx, connection.Host{ID: "h1", Name: "web-1"}, "A")
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := reader.Entry("h1")
		return ok
	}, 3*time.Second, 10*time.Millisecond)

	require.Equal(t, int64(1), writerNotifier.Stats().Sent, "the batch announces once")
	require.Eventually(t, func() bool {
		return writerNotifier.Stats().Echoes == 1
	}, 3*time.Second, 10*time.Millisecond)
	require.Zero(t, readerNotifier.Stats().Sent)
}

func TestRegistry_ReopenSeesPersistedTree(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "registry.db")

	first, _ := openProcess(t, dbPath)
	require.NoError(t, first.AddCategory(ctx, connection.Category{ID: "A", Name: "Servers"}))
	require.NoError(t, first.InsertHost(ctx, connection.Host{ID: "h2", Name: "web-2"}, "A", 0))
	require.NoError(t, first.InsertHost(ctx, connection.Host{ID: "h1", Name: "web-1"}, "A", 0))

	second, _ := openProcess(t, dbPath)
	hosts := second.AllHosts()
	require.Len(t, hosts, 2)
	require.Equal(t, connection.ID("h1"), hosts[0].ID)
	require.Equal(t, connection.ID("h2"), hosts[1].ID)
}
