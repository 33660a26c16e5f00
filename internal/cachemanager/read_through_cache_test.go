package cachemanager

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// upperCounter uppercases its input and counts calls.
type upperCounter struct {
	calls int
	err   error
}

func (u *upperCounter) fn(_ context.Context, in string) (string, error) {
	u.calls++
	if u.err != nil {
		return "", u.err
	}
	return strings.ToUpper(in), nil
}

func TestReadThroughCache_MissThenHit(t *testing.T) {
	ctx := context.Background()
	counter := &upperCounter{}
	rt := NewReadThroughCache[projectionKey, string, string](newTestCache[string](), counter.fn, false)

	got, err := rt.Get(ctx, "k", "web", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "WEB", got)

	got, err = rt.Get(ctx, "k", "ignored on hit", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "WEB", got)
	require.Equal(t, 1, counter.calls)
}

func TestReadThroughCache_SkipCache(t *testing.T) {
	ctx := context.Background()
	counter := &upperCounter{}
	cache := newTestCache[string]()
	rt := NewReadThroughCache[projectionKey, string, string](cache, counter.fn, true)

	for range 2 {
		_, err := rt.GetWithRefresh(ctx, "k", "db", time.Minute)
		require.NoError(t, err)
	}
	require.Equal(t, 2, counter.calls)
	require.Zero(t, cache.Len())
}

func TestReadThroughCache_ErrorNotCached(t *testing.T) {
	ctx := context.Background()
	counter := &upperCounter{err: errors.New("boom")}
	cache := newTestCache[string]()
	rt := NewReadThroughCache[projectionKey, string, string](cache, counter.fn, false)

	_, err := rt.Get(ctx, "k", "x", time.Minute)
	require.EqualError(t, err, "boom")
	require.Zero(t, cache.Len())
}

func TestReadThroughCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	counter := &upperCounter{}
	rt := NewReadThroughCache[projectionKey, string, string](newTestCache[string](), counter.fn, false)

	_, err := rt.GetWithRefresh(ctx, "k", "a", time.Minute)
	require.NoError(t, err)
	require.NoError(t, rt.Invalidate(ctx))
	_, err = rt.GetWithRefresh(ctx, "k", "a", time.Minute)
	require.NoError(t, err)

	require.Equal(t, 2, counter.calls)
}
