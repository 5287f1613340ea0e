package daemon

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardotrapani/livescribe/internal/bus"
	"github.com/leonardotrapani/livescribe/internal/config"
	"github.com/leonardotrapani/livescribe/internal/recording"
	"github.com/leonardotrapani/livescribe/internal/store"
	"github.com/leonardotrapani/livescribe/internal/testutil"
)

type fixture struct {
	d        *Daemon
	store    *store.MemoryStore
	remote   *testutil.ScriptedTranscriber
	fallback *testutil.ScriptedTranscriber
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.General.DataDir = t.TempDir()
	cfg.Transcription.APIKey = "test-key"
	cfg.Network.ProbeInterval = 0
	cfg.Notifications.Type = "none"
	return cfg
}

func newFixture(t *testing.T, capturer Capturer) *fixture {
	t.Helper()
	f := &fixture{
		store:    store.NewMemoryStore(),
		remote:   testutil.NewScriptedTranscriber(testutil.Result{Text: "remote text"}),
		fallback: testutil.NewScriptedTranscriber(testutil.Result{Text: "local text"}),
	}
	if capturer == nil {
		capturer = &testutil.MockRecorder{}
	}

	d, err := New(testConfig(t), Deps{
		Store:    f.store,
		Remote:   f.remote,
		Fallback: f.fallback,
		Capturer: capturer,
	})
	require.NoError(t, err)
	f.d = d
	return f
}

// cut writes n bytes of audio into the live sink and forces a segment.
func (f *fixture) cut(t *testing.T, n int) *store.Segment {
	t.Helper()
	testutil.WaitForCondition(t, f.d.sink.Active, time.Second)
	f.d.sink.Write(make([]byte, n))
	seg := f.d.segmenter.Tick()
	require.NotNil(t, seg)
	return seg
}

func (f *fixture) waitStatus(t *testing.T, id string, status store.Status) *store.Segment {
	t.Helper()
	var got *store.Segment
	testutil.WaitForCondition(t, func() bool {
		seg, err := f.store.GetSegment(context.Background(), id)
		if err != nil {
			return false
		}
		got = seg
		return seg.Status == status
	}, 3*time.Second)
	return got
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Deps{})
	assert.Error(t, err)

	_, err = New(testConfig(t), Deps{Store: store.NewMemoryStore()})
	assert.Error(t, err)
}

func TestToggleArmsAndDisarms(t *testing.T) {
	f := newFixture(t, nil)
	defer f.d.shutdown()

	out := f.d.Command(bus.CmdToggle)
	require.True(t, strings.HasPrefix(out, "OK armed session="), out)
	session := f.d.Session()
	require.NotEmpty(t, session)
	assert.True(t, f.d.Armed())

	_, err := f.store.GetSession(context.Background(), session)
	require.NoError(t, err, "arming creates a session")

	out = f.d.Command(bus.CmdToggle)
	assert.Equal(t, "OK disarmed session="+session+"\n", out)
	assert.False(t, f.d.Armed())
	assert.False(t, f.d.segmenter.Armed())
}

func TestSegmentTranscribedRemotely(t *testing.T) {
	f := newFixture(t, nil)
	defer f.d.shutdown()

	f.d.Command(bus.CmdToggle)
	seg := f.cut(t, 3200)
	assert.Equal(t, 1, seg.Seq)
	assert.Equal(t, f.d.Session(), seg.SessionID)

	done := f.waitStatus(t, seg.ID, store.StatusCompleted)
	assert.Equal(t, "remote text", done.Transcription)
	assert.Equal(t, store.SourceRemote, done.Source)
}

func TestDisarmKeepsSubmittedSegments(t *testing.T) {
	f := newFixture(t, nil)
	defer f.d.shutdown()

	f.d.Command(bus.CmdToggle)
	seg := f.cut(t, 3200)
	f.d.Command(bus.CmdToggle)

	f.waitStatus(t, seg.ID, store.StatusCompleted)
	assert.Nil(t, f.d.segmenter.Tick(), "no segment after disarm")
}

func TestDisarmFlushesTailWhenConfigured(t *testing.T) {
	f := newFixture(t, nil)
	defer f.d.shutdown()

	cfg := testConfig(t)
	cfg.Segmenter.FlushOnDisarm = true
	f.d.SetConfig(cfg)

	f.d.Command(bus.CmdToggle)
	session := f.d.Session()
	first := f.cut(t, 3200)
	f.d.sink.Write(make([]byte, 640))
	f.d.Command(bus.CmdToggle)

	segs, err := f.store.SessionSegments(context.Background(), session)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, first.ID, segs[0].ID)
	assert.Equal(t, 640, segs[1].Size)
	f.waitStatus(t, segs[1].ID, store.StatusCompleted)
}

func TestOfflineSegmentsDrainOnReconnect(t *testing.T) {
	f := newFixture(t, nil)
	f.d.startBackground()
	defer f.d.shutdown()

	f.d.Observer().Set(false)
	f.d.Command(bus.CmdToggle)

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, f.cut(t, 3200).ID)
	}
	testutil.WaitForCondition(t, func() bool { return f.d.Dispatcher().Stats().Queued == 3 }, time.Second)
	assert.Equal(t, 0, f.remote.Calls())

	status := f.d.Command(bus.CmdStatus)
	assert.Contains(t, status, "online=false")
	assert.Contains(t, status, "queued=3")

	f.d.Observer().Set(true)
	for _, id := range ids {
		f.waitStatus(t, id, store.StatusCompleted)
	}
	assert.Equal(t, 0, f.d.Dispatcher().Stats().Queued)
}

func TestRecoverPending(t *testing.T) {
	f := newFixture(t, nil)
	defer f.d.shutdown()

	seg := testutil.SeedSegment(t, f.store, "previous-run", 1)
	seg.Retries = 5
	require.NoError(t, f.store.UpdateSegment(context.Background(), &seg))

	require.NoError(t, f.d.recoverPending(context.Background()))

	done := f.waitStatus(t, seg.ID, store.StatusCompleted)
	assert.Equal(t, store.SourceFallback, done.Source, "exhausted retries go straight to fallback")
	assert.Equal(t, 0, f.remote.Calls())
}

func TestInterruptCommands(t *testing.T) {
	f := newFixture(t, nil)
	defer f.d.shutdown()

	f.d.Command(bus.CmdToggle)

	assert.Equal(t, "OK paused\n", f.d.Command(bus.CmdInterruptBegin))
	assert.True(t, f.d.segmenter.Paused())
	assert.True(t, f.d.sink.Paused())
	assert.Contains(t, f.d.Command(bus.CmdStatus), "paused=true")

	testutil.WaitForCondition(t, f.d.sink.Active, time.Second)
	f.d.sink.Write(make([]byte, 3200))
	assert.Nil(t, f.d.segmenter.Tick(), "no segments while interrupted")

	assert.Equal(t, "OK resumed\n", f.d.Command(bus.CmdInterruptEnd))
	assert.False(t, f.d.segmenter.Paused())
}

func TestStatusAndVersion(t *testing.T) {
	f := newFixture(t, nil)
	defer f.d.shutdown()

	kind, fields := bus.ParseResponse(f.d.Command(bus.CmdStatus))
	assert.Equal(t, "STATUS", kind)
	assert.Equal(t, "false", fields["armed"])
	assert.Equal(t, "-", fields["session"])
	assert.Equal(t, "true", fields["online"])
	assert.Equal(t, "0", fields["queued"])

	assert.Equal(t, "STATUS proto="+bus.ProtoVer+"\n", f.d.Command(bus.CmdVersion))
	assert.Contains(t, f.d.Command('x'), "ERR unknown")
}

func TestCaptureStartFailure(t *testing.T) {
	f := newFixture(t, &testutil.MockRecorder{StartError: errors.New("no pipewire")})
	defer f.d.shutdown()

	out := f.d.Command(bus.CmdToggle)
	assert.Contains(t, out, "ERR arm")
	assert.False(t, f.d.Armed())

	sessions, err := f.store.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions, "no session without capture")
}

// failingCapturer reports a capture error on demand.
type failingCapturer struct {
	mu     sync.Mutex
	errCh  chan error
	closed bool
}

func (c *failingCapturer) Start(_ context.Context, sink *recording.Sink) (<-chan error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errCh = make(chan error, 1)
	c.closed = false
	sink.SetActive(true)
	return c.errCh, nil
}

func (c *failingCapturer) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errCh <- err
}

func (c *failingCapturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.errCh)
		c.closed = true
	}
	return nil
}

func (c *failingCapturer) Wait()             {}
func (c *failingCapturer) IsRecording() bool { return false }

func TestCaptureFailureDisarms(t *testing.T) {
	capturer := &failingCapturer{}
	f := newFixture(t, capturer)
	defer f.d.shutdown()

	f.d.Command(bus.CmdToggle)
	require.True(t, f.d.Armed())

	capturer.fail(errors.New("pw-record exited"))
	testutil.WaitForCondition(t, func() bool { return !f.d.Armed() }, 2*time.Second)
}

func TestRunOverSocket(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	f := newFixture(t, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- f.d.Run() }()

	testutil.WaitForCondition(t, func() bool {
		_, err := bus.SendCommand(bus.CmdVersion)
		return err == nil
	}, 2*time.Second)

	out, err := bus.SendCommand(bus.CmdToggle)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "OK armed"), out)

	out, err = bus.SendCommand(bus.CmdStatus)
	require.NoError(t, err)
	assert.Contains(t, out, "armed=true")

	out, err = bus.SendCommand(bus.CmdQuit)
	require.NoError(t, err)
	assert.Equal(t, "OK quitting\n", out)

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not exit within timeout")
	}
	assert.False(t, f.d.Armed(), "shutdown disarms capture")

	_, err = bus.SendCommand(bus.CmdStatus)
	assert.ErrorIs(t, err, bus.ErrDaemonNotRunning)
}
