package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zjrosen/connreg/internal/log"
	"github.com/zjrosen/connreg/internal/watcher"
)

// Record is a notice as stored in a change log.
type Record struct {
	ID int64
	Notice
}

// Log is an append-only notice log shared by every process on the machine.
// Row IDs increase monotonically.
type Log interface {
	Append(ctx context.Context, n Notice) (int64, error)
	Since(ctx context.Context, afterID int64) ([]Record, error)
	LatestID(ctx context.Context) (int64, error)
	// Prune deletes all but the newest keep rows.
	Prune(ctx context.Context, keep int) (int64, error)
}

// FileOption configures a FileChannel.
type FileOption func(*FileChannel)

// WithDebounce sets how long file events are coalesced before the log is read.
func WithDebounce(d time.Duration) FileOption {
	return func(c *FileChannel) {
		c.debounce = d
	}
}

// WithPollInterval makes subscribers also read the log on a fixed interval.
// Useful on filesystems where change events are unreliable. Zero disables.
func WithPollInterval(d time.Duration) FileOption {
	return func(c *FileChannel) {
		c.poll = d
	}
}

// WithRetain sets how many log rows are kept. Zero disables pruning.
func WithRetain(n int) FileOption {
	return func(c *FileChannel) {
		c.retain = n
	}
}

// FileChannel delivers notices between processes through a log stored in a
// shared file. Subscribers watch the file and read rows newer than the last
// one they delivered.
type FileChannel struct {
	log      Log
	paths    []string
	debounce time.Duration
	poll     time.Duration
	retain   int

	mu      sync.Mutex
	closed  bool
	cancels map[int]context.CancelFunc
	nextSub int
	wg      sync.WaitGroup
}

// NewFileChannel creates a channel over l. paths are the files whose writes
// signal new rows (for sqlite, the database and its WAL).
func NewFileChannel(l Log, paths []string, opts ...FileOption) *FileChannel {
	c := &FileChannel{
		log:      l,
		paths:    paths,
		debounce: 50 * time.Millisecond,
		retain:   256,
		cancels:  make(map[int]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Publish implements Channel.
func (c *FileChannel) Publish(ctx context.Context, n Notice) error {
	if c.isClosed() {
		return ErrClosed
	}
	id, err := c.log.Append(ctx, n)
	if err != nil {
		return fmt.Errorf("appending notice: %w", err)
	}
	if c.retain > 0 && id > int64(c.retain) {
		if _, err := c.log.Prune(ctx, c.retain); err != nil {
			// A failed prune only leaves extra rows behind.
			log.Warn(log.CatNotify, "Pruning change log failed", "error", err)
		}
	}
	return nil
}

// Subscribe implements Channel. Only notices appended after the call are
// delivered.
func (c *FileChannel) Subscribe(ctx context.Context) (<-chan Notice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	last, err := c.log.LatestID(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading change log position: %w", err)
	}

	w, err := watcher.New(watcher.Config{Paths: c.paths, DebounceDur: c.debounce})
	if err != nil {
		return nil, err
	}
	signals, err := w.Start()
	if err != nil {
		_ = w.Stop()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	id := c.nextSub
	c.nextSub++
	c.cancels[id] = cancel

	out := make(chan Notice, 16)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(out)
		defer func() { _ = w.Stop() }()
		defer c.forget(id)
		c.deliver(ctx, signals, last, out)
	}()
	return out, nil
}

func (c *FileChannel) deliver(ctx context.Context, signals <-chan struct{}, last int64, out chan<- Notice) {
	var tick <-chan time.Time
	if c.poll > 0 {
		t := time.NewTicker(c.poll)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
		case <-tick:
		}

		records, err := c.log.Since(ctx, last)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.ErrorErr(log.CatNotify, "Reading change log failed", err, "after", last)
			continue
		}
		for _, r := range records {
			last = r.ID
			select {
			case out <- r.Notice:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *FileChannel) forget(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.cancels[id]; ok {
		cancel()
		delete(c.cancels, id)
	}
}

func (c *FileChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close ends every subscription and waits for their goroutines. The log
// itself is not closed.
func (c *FileChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, cancel := range c.cancels {
		cancel()
	}
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

var _ Channel = (*FileChannel)(nil)
