package recording

import (
	"errors"
	"sync"
)

// ErrNotReady is returned by Snapshot when no complete frame has been
// written past the requested mark.
var ErrNotReady = errors.New("recording: no new audio since mark")

// Sink accumulates raw PCM written by the recorder. Offsets handed out by
// Len and Snapshot are absolute: they keep growing across Release calls so a
// mark taken earlier stays valid.
type Sink struct {
	mu         sync.Mutex
	buf        []byte
	base       int
	frameBytes int
	active     bool
	paused     bool
}

// NewSink creates a sink whose snapshots are cut on frameBytes boundaries.
func NewSink(frameBytes int) *Sink {
	if frameBytes <= 0 {
		frameBytes = 1
	}
	return &Sink{frameBytes: frameBytes}
}

// Write appends p. While paused the bytes are discarded but reported as
// written so the capture loop keeps draining its pipe.
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return len(p), nil
	}
	s.buf = append(s.buf, p...)
	return len(p), nil
}

func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base + len(s.buf)
}

// Snapshot copies the frame-aligned bytes written since mark and returns them
// together with the new mark. The sink keeps accumulating afterwards.
func (s *Sink) Snapshot(mark int) ([]byte, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mark < s.base {
		mark = s.base
	}
	end := s.base + len(s.buf)
	avail := end - mark
	avail -= avail % s.frameBytes
	if avail <= 0 {
		return nil, mark, ErrNotReady
	}

	start := mark - s.base
	out := make([]byte, avail)
	copy(out, s.buf[start:start+avail])
	return out, mark + avail, nil
}

// Release drops buffered bytes before mark.
func (s *Sink) Release(mark int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := mark - s.base
	if n <= 0 {
		return
	}
	if n > len(s.buf) {
		n = len(s.buf)
	}
	s.buf = append([]byte(nil), s.buf[n:]...)
	s.base += n
}

func (s *Sink) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Sink) SetActive(active bool) {
	s.mu.Lock()
	s.active = active
	s.mu.Unlock()
}

func (s *Sink) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Sink) SetPaused(paused bool) {
	s.mu.Lock()
	s.paused = paused
	s.mu.Unlock()
}

// Reset discards all buffered audio and restarts offsets at zero.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
	s.base = 0
	s.paused = false
}
