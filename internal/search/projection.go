package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zjrosen/connreg/internal/cachemanager"
	"github.com/zjrosen/connreg/internal/connection"
	"github.com/zjrosen/connreg/internal/log"
)

type cacheKey string

type filterInput struct {
	hosts []connection.Host
	query string
}

// Projection holds the current filter string and the host list derived from
// it. Results are recomputed from the full host list for every
// (generation, query) pair and memoised; they are never patched in place.
type Projection struct {
	mu    sync.RWMutex
	query string

	ttl     time.Duration
	results *cachemanager.ReadThroughCache[cacheKey, []connection.Host, filterInput]
}

// NewProjection creates a projection whose memoised results live for ttl.
// A ttl <= 0 disables memoisation.
func NewProjection(ttl time.Duration) *Projection {
	cache := cachemanager.NewInMemoryCacheManager[cacheKey, []connection.Host](
		"search", ttl, 2*ttl+time.Second)
	compute := func(_ context.Context, in filterInput) ([]connection.Host, error) {
		return Filter(in.hosts, in.query), nil
	}
	return &Projection{
		ttl:     ttl,
		results: cachemanager.NewReadThroughCache[cacheKey, []connection.Host, filterInput](cache, compute, ttl <= 0),
	}
}

// SetQuery replaces the filter string. It reports whether the normalized
// query changed.
func (p *Projection) SetQuery(q string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	changed := Normalize(p.query) != Normalize(q)
	p.query = q
	return changed
}

// Query returns the filter string as it was set.
func (p *Projection) Query() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.query
}

// Active reports whether the filter string restricts the host list.
func (p *Projection) Active() bool {
	return p.Query() != ""
}

// Hosts returns the hosts of all that match the current query. generation
// must change whenever all does.
func (p *Projection) Hosts(ctx context.Context, generation uint64, all []connection.Host) []connection.Host {
	q := p.Query()
	key := cacheKey(fmt.Sprintf("%d:%s", generation, Normalize(q)))

	hosts, err := p.results.Get(ctx, key, filterInput{hosts: all, query: q}, p.ttl)
	if err != nil {
		log.ErrorErr(log.CatSearch, "Filtering hosts failed", err, "query", q)
		return nil
	}

	out := make([]connection.Host, len(hosts))
	for i, h := range hosts {
		out[i] = h.Clone()
	}
	return out
}

// Reset drops memoised results.
func (p *Projection) Reset(ctx context.Context) {
	_ = p.results.Invalidate(ctx)
}
