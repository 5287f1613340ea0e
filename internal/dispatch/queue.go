package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/leonardotrapani/livescribe/internal/logging"
	"github.com/leonardotrapani/livescribe/internal/store"
)

// Entry is a segment parked while the remote service is unreachable.
type Entry struct {
	Segment    store.Segment
	EnqueuedAt time.Time
}

// Queue holds segments in arrival order until connectivity returns.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
	submit  func(store.Segment)
	log     zerolog.Logger
}

// NewQueue creates a queue that hands drained segments to submit.
func NewQueue(submit func(store.Segment)) *Queue {
	return &Queue{
		submit: submit,
		log:    logging.Component("queue"),
	}
}

func (q *Queue) Enqueue(seg store.Segment) {
	q.mu.Lock()
	q.entries = append(q.entries, Entry{Segment: seg, EnqueuedAt: time.Now()})
	n := len(q.entries)
	q.mu.Unlock()

	q.log.Info().Str("segment", seg.ID).Int("queued", n).Msg("queued for later (offline)")
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Entry(nil), q.entries...)
}

// Drain empties the queue and resubmits every entry in enqueue order. The
// submit callback runs outside the lock so it may enqueue again.
func (q *Queue) Drain() int {
	q.mu.Lock()
	entries := q.entries
	q.entries = nil
	q.mu.Unlock()

	if len(entries) == 0 {
		return 0
	}

	q.log.Info().Int("count", len(entries)).Msg("draining offline queue")
	for _, e := range entries {
		q.submit(e.Segment)
	}
	return len(entries)
}

// Watch drains on every transition to connected until ctx is done or the
// transition stream closes.
func (q *Queue) Watch(ctx context.Context, transitions <-chan bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case connected, ok := <-transitions:
			if !ok {
				return
			}
			if connected {
				q.Drain()
			}
		}
	}
}
