package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/validator.v2"

	"github.com/leonardotrapani/livescribe/internal/logging"
	"github.com/leonardotrapani/livescribe/internal/store"
	"github.com/leonardotrapani/livescribe/internal/transcriber"
)

const persistTimeout = 5 * time.Second

// Updater persists segment state changes.
type Updater interface {
	UpdateSegment(ctx context.Context, segment *store.Segment) error
}

// Connectivity is the read side of the network observer.
type Connectivity interface {
	Connected() bool
}

// Notifier is told about terminal segment outcomes.
type Notifier interface {
	SegmentTranscribed(seg store.Segment)
	SegmentFailed(seg store.Segment, err error)
}

// Bounds keep the backoff schedule finite and positive.
const (
	MaxRetryLimit  = 20
	MaxBackoffBase = 10
	MaxBackoff     = time.Hour
)

type Config struct {
	RetryLimit  int           `validate:"min=1,max=20"`
	BackoffBase int           `validate:"min=1,max=10"`
	BackoffUnit time.Duration `validate:"min=1"`
}

func DefaultConfig() Config {
	return Config{
		RetryLimit:  5,
		BackoffBase: 2,
		BackoffUnit: time.Second,
	}
}

type Deps struct {
	Store    Updater                 `validate:"nonnil"`
	Remote   transcriber.Transcriber `validate:"nonnil"`
	Fallback transcriber.Transcriber `validate:"nonnil"`
	Network  Connectivity            `validate:"nonnil"`
	Notifier Notifier
}

// Stats is a point-in-time view of the dispatcher.
type Stats struct {
	InFlight int `json:"in_flight"`
	Retrying int `json:"retrying"`
	Queued   int `json:"queued"`
}

// Dispatcher drives each submitted segment through remote transcription,
// exponential backoff, and a single local fallback once retries run out.
// Every segment gets its own timeline goroutine bound to the dispatcher's
// lifetime rather than the caller's.
type Dispatcher struct {
	cfg    Config
	deps   Deps
	ledger *Ledger
	queue  *Queue
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool

	inflight atomic.Int64

	// wait blocks for d or until ctx is done; false means ctx ended first.
	wait func(ctx context.Context, d time.Duration) bool
}

func New(cfg Config, deps Deps) (*Dispatcher, error) {
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid dispatcher config: %w", err)
	}
	if err := validator.Validate(deps); err != nil {
		return nil, fmt.Errorf("invalid dispatcher deps: %w", err)
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:    cfg,
		deps:   deps,
		ledger: NewLedger(),
		log:    logging.Component("dispatch"),
		ctx:    ctx,
		cancel: cancel,
		wait:   sleepContext,
	}
	d.queue = NewQueue(d.Submit)
	return d, nil
}

func (d *Dispatcher) Queue() *Queue   { return d.queue }
func (d *Dispatcher) Ledger() *Ledger { return d.ledger }

// Backoff is the wait after the n-th failed attempt: base^n units, capped
// at MaxBackoff.
func (d *Dispatcher) Backoff(n int) time.Duration {
	base := time.Duration(d.cfg.BackoffBase)
	delay := d.cfg.BackoffUnit
	for i := 0; i < n; i++ {
		if delay > MaxBackoff/base {
			return MaxBackoff
		}
		delay *= base
	}
	return min(delay, MaxBackoff)
}

// Submit starts the segment's timeline and returns immediately.
func (d *Dispatcher) Submit(seg store.Segment) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn().Str("segment", seg.ID).Msg("dispatcher closed; segment left pending")
		return
	}
	d.wg.Add(1)
	d.inflight.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer d.inflight.Add(-1)
		d.run(seg)
	}()
}

// Resume resubmits a segment recovered from the store, carrying its
// persisted attempt count into the ledger.
func (d *Dispatcher) Resume(seg store.Segment) {
	d.ledger.Seed(seg.ID, seg.Retries)
	d.Submit(seg)
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		InFlight: int(d.inflight.Load()),
		Retrying: d.ledger.Len(),
		Queued:   d.queue.Len(),
	}
}

// Close stops pending backoff waits and waits for every timeline to exit.
// Segments still pending stay pending in the store.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) run(seg store.Segment) {
	log := d.log.With().Str("segment", seg.ID).Str("file", seg.AudioPath).Logger()

	if n := d.ledger.Get(seg.ID); n >= d.cfg.RetryLimit {
		d.fallback(seg, log)
		return
	}

	for {
		if !d.deps.Network.Connected() {
			d.queue.Enqueue(seg)
			// Connectivity may have returned between the check and the enqueue.
			if d.deps.Network.Connected() {
				d.queue.Drain()
			}
			return
		}

		text, err := d.deps.Remote.Transcribe(d.ctx, seg.AudioPath)
		if err == nil && strings.TrimSpace(text) == "" {
			err = transcriber.ErrEmptyTranscription
		}
		if err == nil {
			d.ledger.Remove(seg.ID)
			seg.Complete(text, store.SourceRemote)
			d.persist(&seg, log)
			log.Info().Int("retries", seg.Retries).Msg("transcribed remotely")
			d.deps.Notifier.SegmentTranscribed(seg)
			return
		}
		if d.ctx.Err() != nil {
			log.Debug().Msg("dispatcher closing; segment left pending")
			return
		}

		n := d.ledger.Increment(seg.ID)
		seg.Retries = n
		d.persist(&seg, log)

		if n >= d.cfg.RetryLimit {
			log.Warn().Err(err).Int("attempts", n).Msg("retries exhausted; falling back to local transcription")
			d.fallback(seg, log)
			return
		}

		delay := d.Backoff(n)
		log.Warn().Err(err).Int("attempt", n).Dur("retry_in", delay).Msg("remote transcription failed")
		if !d.wait(d.ctx, delay) {
			return
		}
	}
}

func (d *Dispatcher) fallback(seg store.Segment, log zerolog.Logger) {
	d.ledger.Remove(seg.ID)

	text, err := d.deps.Fallback.Transcribe(d.ctx, seg.AudioPath)
	if err == nil && strings.TrimSpace(text) == "" {
		err = transcriber.NewFallbackError("local", transcriber.ErrEmptyTranscription)
	}
	if err != nil && d.ctx.Err() != nil {
		log.Debug().Msg("dispatcher closing during fallback; segment left pending")
		return
	}

	if err != nil {
		seg.Fail()
		d.persist(&seg, log)
		log.Error().Err(err).Msg("fallback transcription failed")
		d.deps.Notifier.SegmentFailed(seg, err)
		return
	}

	seg.Complete(text, store.SourceFallback)
	d.persist(&seg, log)
	log.Info().Msg("transcribed by fallback")
	d.deps.Notifier.SegmentTranscribed(seg)
}

// persist writes seg. Failures are logged and the timeline carries on with
// the in-memory copy.
func (d *Dispatcher) persist(seg *store.Segment, log zerolog.Logger) {
	seg.UpdatedAt = time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := d.deps.Store.UpdateSegment(ctx, seg); err != nil {
		log.Error().Err(err).Str("status", string(seg.Status)).Msg("failed to persist segment")
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type nopNotifier struct{}

func (nopNotifier) SegmentTranscribed(store.Segment)    {}
func (nopNotifier) SegmentFailed(store.Segment, error) {}
