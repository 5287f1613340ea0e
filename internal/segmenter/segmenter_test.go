package segmenter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardotrapani/livescribe/internal/recording"
	"github.com/leonardotrapani/livescribe/internal/store"
	"github.com/leonardotrapani/livescribe/internal/testutil"
)

type collector struct {
	mu   sync.Mutex
	segs []store.Segment
}

func (c *collector) Submit(seg store.Segment) {
	c.mu.Lock()
	c.segs = append(c.segs, seg)
	c.mu.Unlock()
}

func (c *collector) all() []store.Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]store.Segment(nil), c.segs...)
}

type failingInserter struct{}

func (failingInserter) InsertSegment(context.Context, *store.Segment) error {
	return errors.New("database locked")
}

type fixture struct {
	seg   *Segmenter
	sink  *recording.Sink
	store *store.MemoryStore
	out   *collector
	dir   string
}

func newFixture(t *testing.T, interval time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		sink:  recording.NewSink(2),
		store: store.NewMemoryStore(),
		out:   &collector{},
		dir:   t.TempDir(),
	}
	require.NoError(t, f.store.CreateSession(context.Background(), &store.Session{ID: "session-1"}))

	s, err := New(Config{
		Interval: interval,
		AudioDir: f.dir,
		Format:   recording.Format{SampleRate: 16000, Channels: 1},
	}, f.sink, f.store, f.out)
	require.NoError(t, err)
	f.seg = s
	t.Cleanup(s.Disarm)
	return f
}

func TestNewValidates(t *testing.T) {
	sink := recording.NewSink(2)
	c := &collector{}
	ms := store.NewMemoryStore()

	_, err := New(Config{Interval: 0, AudioDir: "/tmp", Format: recording.Format{SampleRate: 16000, Channels: 1}}, sink, ms, c)
	assert.Error(t, err)
	_, err = New(Config{Interval: time.Second, Format: recording.Format{SampleRate: 16000, Channels: 1}}, sink, ms, c)
	assert.Error(t, err)
	_, err = New(Config{Interval: time.Second, AudioDir: "/tmp"}, sink, ms, c)
	assert.Error(t, err)
	_, err = New(Config{Interval: time.Second, AudioDir: "/tmp", Format: recording.Format{SampleRate: 16000, Channels: 1}}, nil, ms, c)
	assert.Error(t, err)
}

func TestTickProducesSegment(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.sink.SetActive(true)
	require.NoError(t, f.seg.Arm(context.Background(), "session-1"))

	f.sink.Write(make([]byte, 640))
	seg := f.seg.Tick()
	require.NotNil(t, seg)

	assert.Equal(t, "session-1", seg.SessionID)
	assert.Equal(t, 1, seg.Seq)
	assert.Equal(t, 640, seg.Size)
	assert.Equal(t, store.StatusPending, seg.Status)
	assert.Equal(t, 0, seg.Retries)
	assert.Equal(t, filepath.Join(f.dir, "session-1", "segment_001.wav"), seg.AudioPath)

	info, err := os.Stat(seg.AudioPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(640))

	stored, err := f.store.GetSegment(context.Background(), seg.ID)
	require.NoError(t, err)
	assert.Equal(t, seg.AudioPath, stored.AudioPath)

	require.Len(t, f.out.all(), 1)
	assert.Equal(t, seg.ID, f.out.all()[0].ID)
}

func TestTickSkips(t *testing.T) {
	t.Run("not armed", func(t *testing.T) {
		f := newFixture(t, time.Hour)
		f.sink.SetActive(true)
		f.sink.Write(make([]byte, 64))
		assert.Nil(t, f.seg.Tick())
	})

	t.Run("capture inactive", func(t *testing.T) {
		f := newFixture(t, time.Hour)
		require.NoError(t, f.seg.Arm(context.Background(), "session-1"))
		f.sink.Write(make([]byte, 64))
		assert.Nil(t, f.seg.Tick())
	})

	t.Run("no new audio", func(t *testing.T) {
		f := newFixture(t, time.Hour)
		f.sink.SetActive(true)
		require.NoError(t, f.seg.Arm(context.Background(), "session-1"))
		assert.Nil(t, f.seg.Tick())
	})

	t.Run("only a partial frame", func(t *testing.T) {
		f := newFixture(t, time.Hour)
		f.sink.SetActive(true)
		require.NoError(t, f.seg.Arm(context.Background(), "session-1"))
		f.sink.Write([]byte{1})
		assert.Nil(t, f.seg.Tick())
		assert.Empty(t, f.out.all())
	})

	t.Run("audio captured before arm is excluded", func(t *testing.T) {
		f := newFixture(t, time.Hour)
		f.sink.SetActive(true)
		f.sink.Write(make([]byte, 64))
		require.NoError(t, f.seg.Arm(context.Background(), "session-1"))
		assert.Nil(t, f.seg.Tick())
	})
}

func TestTickAfterDisarmIsNoop(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.sink.SetActive(true)
	require.NoError(t, f.seg.Arm(context.Background(), "session-1"))

	f.sink.Write(make([]byte, 320))
	f.seg.Disarm()
	assert.False(t, f.seg.Armed())

	f.sink.Write(make([]byte, 320))
	assert.Nil(t, f.seg.Tick())
	assert.Empty(t, f.out.all())

	// The discarded interval does not leak into the next session.
	require.NoError(t, f.store.CreateSession(context.Background(), &store.Session{ID: "session-2"}))
	require.NoError(t, f.seg.Arm(context.Background(), "session-2"))
	f.sink.Write(make([]byte, 100))
	seg := f.seg.Tick()
	require.NotNil(t, seg)
	assert.Equal(t, 100, seg.Size)
	assert.Equal(t, 1, seg.Seq)
}

func TestDisarmFlushesTail(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.seg.SetFlushOnDisarm(true)
	f.sink.SetActive(true)
	require.NoError(t, f.seg.Arm(context.Background(), "session-1"))

	f.sink.Write(make([]byte, 320))
	require.NotNil(t, f.seg.Tick())

	f.sink.Write(make([]byte, 96))
	f.seg.Disarm()

	segs := f.out.all()
	require.Len(t, segs, 2)
	tail := segs[1]
	assert.Equal(t, 2, tail.Seq)
	assert.Equal(t, 96, tail.Size)
	assert.FileExists(t, tail.AudioPath)

	stored, err := f.store.SessionSegments(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	assert.Nil(t, f.seg.Tick())
}

func TestDisarmFlushSkipsEmptyTail(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.seg.SetFlushOnDisarm(true)
	f.sink.SetActive(true)
	require.NoError(t, f.seg.Arm(context.Background(), "session-1"))

	f.sink.Write(make([]byte, 320))
	require.NotNil(t, f.seg.Tick())
	f.seg.Disarm()
	assert.Len(t, f.out.all(), 1, "no zero-length segment on disarm")

	// paused capture has nothing to flush
	require.NoError(t, f.seg.Arm(context.Background(), "session-1"))
	f.seg.HandleEvent(Event{Kind: InterruptionBegan})
	f.sink.Write(make([]byte, 64))
	f.seg.Disarm()
	assert.Len(t, f.out.all(), 1)
}

func TestSegmentsDoNotOverlap(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.sink.SetActive(true)
	require.NoError(t, f.seg.Arm(context.Background(), "session-1"))

	sizes := []int{200, 400, 600}
	ids := map[string]bool{}
	total := 0
	for i, n := range sizes {
		f.sink.Write(make([]byte, n))
		seg := f.seg.Tick()
		require.NotNil(t, seg)
		assert.Equal(t, n, seg.Size)
		assert.Equal(t, i+1, seg.Seq)
		assert.False(t, ids[seg.ID], "segment IDs must be unique")
		ids[seg.ID] = true
		total += seg.Size
	}
	assert.Equal(t, f.sink.Len(), total)

	segs, err := f.store.SessionSegments(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Len(t, segs, 3)
}

func TestStoreErrorStillSubmits(t *testing.T) {
	sink := recording.NewSink(2)
	out := &collector{}
	s, err := New(Config{
		Interval: time.Hour,
		AudioDir: t.TempDir(),
		Format:   recording.Format{SampleRate: 16000, Channels: 1},
	}, sink, failingInserter{}, out)
	require.NoError(t, err)
	defer s.Disarm()

	sink.SetActive(true)
	require.NoError(t, s.Arm(context.Background(), "s"))
	sink.Write(make([]byte, 64))

	require.NotNil(t, s.Tick())
	assert.Len(t, out.all(), 1)
}

func TestInterruptionPausesProduction(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.sink.SetActive(true)
	require.NoError(t, f.seg.Arm(context.Background(), "session-1"))

	f.seg.HandleEvent(Event{Kind: InterruptionBegan, Reason: "phone call"})
	assert.True(t, f.seg.Paused())
	assert.True(t, f.sink.Paused())

	f.sink.Write(make([]byte, 64))
	assert.Nil(t, f.seg.Tick())

	f.seg.HandleEvent(Event{Kind: RouteChanged, Reason: "headset unplugged"})
	assert.True(t, f.seg.Paused())

	f.seg.HandleEvent(Event{Kind: InterruptionEnded})
	assert.False(t, f.seg.Paused())
	assert.False(t, f.sink.Paused())

	f.sink.Write(make([]byte, 64))
	seg := f.seg.Tick()
	require.NotNil(t, seg)
	assert.Equal(t, 64, seg.Size, "audio during the interruption is dropped")
}

func TestArmRunsOnInterval(t *testing.T) {
	f := newFixture(t, 20*time.Millisecond)
	f.sink.SetActive(true)
	require.NoError(t, f.seg.Arm(context.Background(), "session-1"))
	assert.Error(t, f.seg.Arm(context.Background(), "session-1"))

	f.sink.Write(make([]byte, 320))
	testutil.WaitForCondition(t, func() bool { return len(f.out.all()) == 1 }, 2*time.Second)

	f.seg.Disarm()
	f.sink.Write(make([]byte, 320))
	time.Sleep(60 * time.Millisecond)
	assert.Len(t, f.out.all(), 1)
}

func TestSetInterval(t *testing.T) {
	f := newFixture(t, time.Hour)
	assert.Error(t, f.seg.SetInterval(0))
	require.NoError(t, f.seg.SetInterval(10*time.Second))
	assert.Equal(t, 10*time.Second, f.seg.cfg.Interval)
}
