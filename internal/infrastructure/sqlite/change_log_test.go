package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/connreg/internal/notify"
)

func notice(sender string, seq uint64) notify.Notice {
	return notify.Notice{Sender: sender, Seq: seq, SentAt: time.Now().UTC()}
}

func TestChangeLog_AppendAndSince(t *testing.T) {
	ctx := context.Background()
	l := setupTestDB(t).ChangeLog()

	latest, err := l.LatestID(ctx)
	require.NoError(t, err)
	require.Zero(t, latest)

	first := notice("a", 1)
	id1, err := l.Append(ctx, first)
	require.NoError(t, err)
	id2, err := l.Append(ctx, notice("b", 1))
	require.NoError(t, err)
	require.Greater(t, id2, id1)

	records, err := l.Since(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, id1, records[0].ID)
	require.Equal(t, "a", records[0].Sender)
	require.Equal(t, uint64(1), records[0].Seq)
	require.True(t, first.SentAt.Equal(records[0].SentAt))

	records, err = l.Since(ctx, id1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "b", records[0].Sender)

	latest, err = l.LatestID(ctx)
	require.NoError(t, err)
	require.Equal(t, id2, latest)
}

func TestChangeLog_Prune(t *testing.T) {
	ctx := context.Background()
	l := setupTestDB(t).ChangeLog()
	for i := uint64(1); i <= 5; i++ {
		_, err := l.Append(ctx, notice("a", i))
		require.NoError(t, err)
	}

	pruned, err := l.Prune(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, int64(3), pruned)

	records, err := l.Since(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, uint64(4), records[0].Seq)

	// IDs keep increasing after a prune.
	id, err := l.Append(ctx, notice("a", 6))
	require.NoError(t, err)
	require.Equal(t, int64(6), id)
}

func TestChangeLog_PruneEmpty(t *testing.T) {
	pruned, err := setupTestDB(t).ChangeLog().Prune(context.Background(), 10)
	require.NoError(t, err)
	require.Zero(t, pruned)
}
