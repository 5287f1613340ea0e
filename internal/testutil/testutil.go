package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/leonardotrapani/livescribe/internal/recording"
	"github.com/leonardotrapani/livescribe/internal/store"
	"github.com/leonardotrapani/livescribe/internal/transcriber"
)

// ErrScripted is the default failure returned by ScriptedTranscriber.
var ErrScripted = errors.New("scripted failure")

// CreateTempConfigFile creates a temporary config file for testing
func CreateTempConfigFile(t *testing.T, configContent string) string {
	t.Helper()

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.toml")

	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("Failed to create temp config file: %v", err)
	}

	return configPath
}

// TestContext returns a context with timeout for testing
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// WaitForCondition waits for a condition to be true or times out
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("Condition not met within %v", timeout)
		default:
			if condition() {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// CaptureOutput captures stdout for testing
func CaptureOutput(t *testing.T, fn func()) string {
	t.Helper()

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	out, _ := io.ReadAll(r)
	return string(out)
}

// Result is one scripted transcriber answer.
type Result struct {
	Text string
	Err  error
}

// Fail is shorthand for n scripted remote failures.
func Fail(n int) []Result {
	out := make([]Result, n)
	for i := range out {
		out[i] = Result{Err: transcriber.ErrRemoteFailed}
	}
	return out
}

// ScriptedTranscriber replays Script in order, repeating the last entry once
// exhausted. An empty script always returns "mock transcription".
type ScriptedTranscriber struct {
	Script []Result

	mu    sync.Mutex
	calls []string
}

func NewScriptedTranscriber(script ...Result) *ScriptedTranscriber {
	return &ScriptedTranscriber{Script: script}
}

func (s *ScriptedTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	s.mu.Lock()
	i := len(s.calls)
	s.calls = append(s.calls, audioPath)
	var r Result
	switch {
	case len(s.Script) == 0:
		r = Result{Text: "mock transcription"}
	case i < len(s.Script):
		r = s.Script[i]
	default:
		r = s.Script[len(s.Script)-1]
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return r.Text, r.Err
}

func (s *ScriptedTranscriber) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *ScriptedTranscriber) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// BlockingTranscriber blocks every call until ctx is done.
type BlockingTranscriber struct {
	calls atomic.Int64
}

func (b *BlockingTranscriber) Transcribe(ctx context.Context, _ string) (string, error) {
	b.calls.Add(1)
	<-ctx.Done()
	return "", ctx.Err()
}

func (b *BlockingTranscriber) Calls() int { return int(b.calls.Load()) }

// FakeNetwork is a settable connectivity flag.
type FakeNetwork struct {
	connected atomic.Bool
}

func NewFakeNetwork(connected bool) *FakeNetwork {
	n := &FakeNetwork{}
	n.connected.Store(connected)
	return n
}

func (n *FakeNetwork) Connected() bool     { return n.connected.Load() }
func (n *FakeNetwork) SetConnected(v bool) { n.connected.Store(v) }

// RecordingNotifier keeps every terminal outcome it is told about.
type RecordingNotifier struct {
	mu          sync.Mutex
	transcribed []store.Segment
	failed      []store.Segment
}

func (r *RecordingNotifier) SegmentTranscribed(seg store.Segment) {
	r.mu.Lock()
	r.transcribed = append(r.transcribed, seg)
	r.mu.Unlock()
}

func (r *RecordingNotifier) SegmentFailed(seg store.Segment, _ error) {
	r.mu.Lock()
	r.failed = append(r.failed, seg)
	r.mu.Unlock()
}

func (r *RecordingNotifier) Transcribed() []store.Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]store.Segment(nil), r.transcribed...)
}

func (r *RecordingNotifier) Failed() []store.Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]store.Segment(nil), r.failed...)
}

// WaitRecorder stands in for a real backoff sleep: it records the requested
// delay and returns immediately unless ctx is already done.
type WaitRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (w *WaitRecorder) Wait(ctx context.Context, d time.Duration) bool {
	w.mu.Lock()
	w.delays = append(w.delays, d)
	w.mu.Unlock()
	return ctx.Err() == nil
}

func (w *WaitRecorder) Delays() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.delays...)
}

// SeedSegment creates a session (if needed) and a pending segment whose
// audio file exists on disk.
func SeedSegment(t *testing.T, s store.Store, sessionID string, seq int) store.Segment {
	t.Helper()
	ctx := context.Background()

	if _, err := s.GetSession(ctx, sessionID); errors.Is(err, store.ErrNotFound) {
		if err := s.CreateSession(ctx, &store.Session{ID: sessionID}); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), fmt.Sprintf("segment_%03d.wav", seq))
	if err := recording.WriteWAVFile(path, make([]byte, 320), recording.Format{SampleRate: 16000, Channels: 1}); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	seg := store.Segment{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Seq:       seq,
		AudioPath: path,
		Size:      320,
		Status:    store.StatusPending,
	}
	if err := s.InsertSegment(ctx, &seg); err != nil {
		t.Fatalf("insert segment: %v", err)
	}
	return seg
}

// MockRecorder writes Frames into the sink it is started with and then
// idles until stopped.
type MockRecorder struct {
	Frames     [][]byte
	StartError error

	mu        sync.Mutex
	recording atomic.Bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewMockRecorder() *MockRecorder {
	frame := make([]byte, 1024)
	for i := range frame {
		frame[i] = byte(i % 256)
	}
	return &MockRecorder{Frames: [][]byte{frame}}
}

func (m *MockRecorder) Start(ctx context.Context, sink *recording.Sink) (<-chan error, error) {
	if m.StartError != nil {
		return nil, m.StartError
	}

	m.mu.Lock()
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	m.recording.Store(true)
	errCh := make(chan error, 1)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(errCh)
		defer sink.SetActive(false)

		sink.SetActive(true)
		for _, frame := range m.Frames {
			sink.Write(frame)
		}

		select {
		case <-ctx.Done():
		case <-stopCh:
		}
	}()

	return errCh, nil
}

func (m *MockRecorder) Stop() error {
	if !m.recording.Load() {
		return nil
	}
	m.recording.Store(false)

	m.mu.Lock()
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	m.mu.Unlock()
	return nil
}

func (m *MockRecorder) Wait() { m.wg.Wait() }

func (m *MockRecorder) IsRecording() bool {
	return m.recording.Load()
}
