package segmenter

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/validator.v2"

	"github.com/leonardotrapani/livescribe/internal/logging"
	"github.com/leonardotrapani/livescribe/internal/recording"
	"github.com/leonardotrapani/livescribe/internal/store"
)

const insertTimeout = 5 * time.Second

// Source is the live capture buffer segments are cut from.
type Source interface {
	Active() bool
	Len() int
	Snapshot(mark int) ([]byte, int, error)
	Release(mark int)
	SetPaused(paused bool)
}

// Submitter accepts finished segments for transcription.
type Submitter interface {
	Submit(seg store.Segment)
}

// SegmentInserter persists new segments.
type SegmentInserter interface {
	InsertSegment(ctx context.Context, segment *store.Segment) error
}

type Config struct {
	Interval time.Duration `validate:"min=1"`
	AudioDir string        `validate:"nonzero"`
	Format   recording.Format
	// FlushOnDisarm cuts one last segment from audio captured since the
	// previous tick instead of discarding it.
	FlushOnDisarm bool
}

// EventKind identifies an audio session event.
type EventKind int

const (
	InterruptionBegan EventKind = iota
	InterruptionEnded
	RouteChanged
)

func (k EventKind) String() string {
	switch k {
	case InterruptionBegan:
		return "interruption-began"
	case InterruptionEnded:
		return "interruption-ended"
	case RouteChanged:
		return "route-changed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

type Event struct {
	Kind   EventKind
	Reason string
}

// Segmenter cuts the capture buffer into fixed-interval segments while armed.
type Segmenter struct {
	source    Source
	inserter  SegmentInserter
	submitter Submitter
	log       zerolog.Logger

	mu       sync.Mutex
	cfg      Config
	armed    bool
	paused   bool
	session  string
	seq      int
	mark     int
	cancel   context.CancelFunc
	loopDone chan struct{}
}

func New(cfg Config, source Source, inserter SegmentInserter, submitter Submitter) (*Segmenter, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if source == nil || inserter == nil || submitter == nil {
		return nil, fmt.Errorf("segmenter: source, inserter and submitter are required")
	}
	return &Segmenter{
		cfg:       cfg,
		source:    source,
		inserter:  inserter,
		submitter: submitter,
		log:       logging.Component("segmenter"),
	}, nil
}

func validateConfig(cfg Config) error {
	if err := validator.Validate(cfg); err != nil {
		return fmt.Errorf("invalid segmenter config: %w", err)
	}
	if cfg.Format.SampleRate <= 0 || cfg.Format.Channels <= 0 {
		return fmt.Errorf("invalid segmenter config: bad audio format %+v", cfg.Format)
	}
	return nil
}

// SetInterval changes the segment length. It takes effect at the next Arm.
func (s *Segmenter) SetInterval(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	next.Interval = d
	if err := validateConfig(next); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

// SetFlushOnDisarm toggles cutting a final partial segment on Disarm.
func (s *Segmenter) SetFlushOnDisarm(flush bool) {
	s.mu.Lock()
	s.cfg.FlushOnDisarm = flush
	s.mu.Unlock()
}

func (s *Segmenter) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// Arm starts producing segments for sessionID every interval. Audio already
// in the source before Arm is not included.
func (s *Segmenter) Arm(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.armed {
		return fmt.Errorf("segmenter already armed for session %s", s.session)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.armed = true
	s.paused = false
	s.session = sessionID
	s.seq = 0
	s.mark = s.source.Len()
	s.cancel = cancel
	s.loopDone = make(chan struct{})

	go s.loop(loopCtx, s.cfg.Interval, s.loopDone)

	s.log.Info().Str("session", sessionID).Dur("interval", s.cfg.Interval).Msg("armed")
	return nil
}

// Disarm stops production. Audio captured since the last segment is
// discarded unless FlushOnDisarm is set; segments already handed off keep
// going.
func (s *Segmenter) Disarm() {
	s.mu.Lock()
	if !s.armed {
		s.mu.Unlock()
		return
	}
	if s.cfg.FlushOnDisarm && !s.paused {
		s.cut()
	}
	s.armed = false
	cancel := s.cancel
	done := s.loopDone
	s.cancel = nil
	s.loopDone = nil

	end := s.source.Len()
	s.source.Release(end)
	s.mark = end
	session, produced := s.session, s.seq
	s.mu.Unlock()

	cancel()
	<-done

	s.log.Info().Str("session", session).Int("segments", produced).Msg("disarmed")
}

func (s *Segmenter) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick cuts one segment if there is new audio. It returns the produced
// segment, or nil when the tick was skipped.
func (s *Segmenter) Tick() *store.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.armed || s.paused {
		return nil
	}
	return s.cut()
}

// cut snapshots the audio since the mark into a new segment. Callers hold mu.
func (s *Segmenter) cut() *store.Segment {
	if !s.source.Active() {
		s.log.Debug().Msg("capture not active; skipping tick")
		return nil
	}
	if s.source.Len() <= s.mark {
		s.log.Debug().Int("mark", s.mark).Msg("no audio since last segment; skipping tick")
		return nil
	}

	data, next, err := s.source.Snapshot(s.mark)
	if err != nil {
		s.log.Debug().Err(err).Int("mark", s.mark).Msg("snapshot not ready; skipping tick")
		return nil
	}

	seq := s.seq + 1
	path := filepath.Join(s.cfg.AudioDir, s.session, fmt.Sprintf("segment_%03d.wav", seq))
	if err := recording.WriteWAVFile(path, data, s.cfg.Format); err != nil {
		s.log.Error().Err(err).Str("file", path).Msg("failed to write segment audio")
		return nil
	}

	s.seq = seq
	s.mark = next
	s.source.Release(next)

	now := time.Now()
	seg := store.Segment{
		ID:        uuid.NewString(),
		SessionID: s.session,
		Seq:       seq,
		AudioPath: path,
		Size:      len(data),
		Status:    store.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	if err := s.inserter.InsertSegment(ctx, &seg); err != nil {
		s.log.Error().Err(err).Str("segment", seg.ID).Msg("failed to persist segment; dispatching anyway")
	}
	cancel()

	s.log.Info().Str("segment", seg.ID).Int("seq", seq).Int("bytes", len(data)).Msg("segment created")
	s.submitter.Submit(seg)
	return &seg
}

// HandleEvent reacts to audio session interruptions and route changes.
func (s *Segmenter) HandleEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case InterruptionBegan:
		s.paused = true
		s.source.SetPaused(true)
		s.log.Info().Str("reason", ev.Reason).Msg("interruption began; segment production paused")
	case InterruptionEnded:
		s.paused = false
		s.source.SetPaused(false)
		s.log.Info().Str("reason", ev.Reason).Msg("interruption ended; segment production resumed")
	case RouteChanged:
		s.log.Info().Str("reason", ev.Reason).Msg("audio route changed")
	default:
		s.log.Warn().Stringer("event", ev.Kind).Msg("unknown audio event")
	}
}

func (s *Segmenter) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}
