package notify

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/connreg/internal/log"
)

// Stats counts notifier traffic.
type Stats struct {
	Sent    int64 // notices published successfully
	Failed  int64 // publish attempts that returned an error
	Echoes  int64 // own notices received back and dropped
	Foreign int64 // notices from other senders handed to the handler
}

// Handler is invoked for each notice sent by another process.
type Handler func(ctx context.Context, n Notice)

// Notifier stamps outgoing notices with a per-process sender tag and filters
// that tag out of incoming traffic.
type Notifier struct {
	ch     Channel
	sender string
	seq    atomic.Uint64

	sent    atomic.Int64
	failed  atomic.Int64
	echoes  atomic.Int64
	foreign atomic.Int64
}

// NewNotifier creates a notifier over ch with a fresh random sender tag.
// The notifier does not own ch; closing it is the caller's job.
func NewNotifier(ch Channel) *Notifier {
	return &Notifier{
		ch:     ch,
		sender: uuid.NewString(),
	}
}

// Sender returns this notifier's tag.
func (n *Notifier) Sender() string {
	return n.sender
}

// Broadcast publishes a change notice. Failures are logged and counted; the
// local change has already been committed, so there is nothing to return.
func (n *Notifier) Broadcast(ctx context.Context) {
	notice := Notice{
		Sender: n.sender,
		Seq:    n.seq.Add(1),
		SentAt: time.Now().UTC(),
	}
	if err := n.ch.Publish(ctx, notice); err != nil {
		n.failed.Add(1)
		log.ErrorErr(log.CatNotify, "Broadcast failed", err, "seq", notice.Seq)
		return
	}
	n.sent.Add(1)
	log.Debug(log.CatNotify, "Broadcast", "sender", n.sender, "seq", notice.Seq)
}

// Listen subscribes to the channel and calls handler for every foreign notice
// until ctx is cancelled. Handler calls are sequential.
func (n *Notifier) Listen(ctx context.Context, handler Handler) error {
	notices, err := n.ch.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribing to change notices: %w", err)
	}

	go func() {
		for notice := range notices {
			if notice.Sender == n.sender {
				n.echoes.Add(1)
				continue
			}
			n.foreign.Add(1)
			log.Debug(log.CatNotify, "Received notice", "sender", notice.Sender, "seq", notice.Seq)
			handler(ctx, notice)
		}
	}()
	return nil
}

// Stats returns a snapshot of the counters.
func (n *Notifier) Stats() Stats {
	return Stats{
		Sent:    n.sent.Load(),
		Failed:  n.failed.Load(),
		Echoes:  n.echoes.Load(),
		Foreign: n.foreign.Load(),
	}
}
