package notify

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardotrapani/livescribe/internal/store"
)

func TestNew(t *testing.T) {
	tests := []struct {
		kind    string
		want    any
		wantErr bool
	}{
		{kind: "desktop", want: &Desktop{}},
		{kind: "log", want: Log{}},
		{kind: "", want: Log{}},
		{kind: "none", want: Nop{}},
		{kind: "pager", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			n, err := New(tt.kind)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, n)
		})
	}
}

func TestDesktopNotifier(t *testing.T) {
	var calls [][]string
	d := NewDesktop()
	d.run = func(args ...string) error {
		calls = append(calls, args)
		return nil
	}

	d.RecordingChanged(true)
	d.SegmentTranscribed(store.Segment{Seq: 3, Source: store.SourceRemote, Transcription: "hello"})
	d.SegmentFailed(store.Segment{Seq: 4}, errors.New("fallback broke"))
	d.ConnectivityChanged(false)
	d.Error("boom")

	require.Len(t, calls, 5)
	assert.Equal(t, []string{"-a", "Livescribe", "Livescribe: Started Recording"}, calls[0])
	assert.Equal(t, []string{"-a", "Livescribe", "Segment 3 transcribed (remote)", "hello"}, calls[1])
	assert.Equal(t, []string{"-a", "Livescribe", "-u", "critical", "Segment 4 failed", "fallback broke"}, calls[2])
	assert.Contains(t, calls[3][2], "offline")
	assert.Equal(t, []string{"-a", "Livescribe", "-u", "critical", "boom"}, calls[4])
}

func TestDesktopNotifierCommandFailure(t *testing.T) {
	d := NewDesktop()
	d.run = func(args ...string) error { return errors.New("notify-send missing") }
	d.RecordingChanged(false)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(zerolog.New(&buf))

	l.SegmentTranscribed(store.Segment{ID: "seg-1", Seq: 1, Source: store.SourceFallback, Transcription: "text"})
	assert.Contains(t, buf.String(), `"segment":"seg-1"`)
	assert.Contains(t, buf.String(), `"source":"fallback"`)

	buf.Reset()
	l.SegmentFailed(store.Segment{ID: "seg-2"}, errors.New("nope"))
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"error":"nope"`)

	buf.Reset()
	l.RecordingChanged(true)
	l.ConnectivityChanged(false)
	l.Error("bad")
	assert.Equal(t, 3, strings.Count(buf.String(), "\n"))
}

func TestNopNotifier(t *testing.T) {
	var n Notifier = Nop{}
	n.RecordingChanged(true)
	n.SegmentTranscribed(store.Segment{})
	n.SegmentFailed(store.Segment{}, errors.New("x"))
	n.ConnectivityChanged(true)
	n.Error("x")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))
	long := strings.Repeat("é", 100)
	p := preview(long)
	assert.Equal(t, previewLen+1, len([]rune(p)))
	assert.True(t, strings.HasSuffix(p, "…"))
}
