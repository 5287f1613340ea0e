package notify

import (
	"fmt"
	"os/exec"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/leonardotrapani/livescribe/internal/logging"
	"github.com/leonardotrapani/livescribe/internal/store"
)

const appName = "Livescribe"

// previewLen caps how much transcription text goes into a notification body.
const previewLen = 80

type Notifier interface {
	RecordingChanged(on bool)
	SegmentTranscribed(seg store.Segment)
	SegmentFailed(seg store.Segment, err error)
	ConnectivityChanged(connected bool)
	Error(msg string)
}

// New returns the notifier for the configured type: desktop, log or none.
func New(kind string) (Notifier, error) {
	switch kind {
	case "desktop":
		return NewDesktop(), nil
	case "log", "":
		return NewLog(logging.Component("notify")), nil
	case "none":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown notification type: %s", kind)
	}
}

// Desktop sends notifications through notify-send.
type Desktop struct {
	run func(args ...string) error
	log zerolog.Logger
}

func NewDesktop() *Desktop {
	return &Desktop{
		run: func(args ...string) error {
			return exec.Command("notify-send", args...).Run()
		},
		log: logging.Component("notify"),
	}
}

func (d *Desktop) send(args ...string) {
	if err := d.run(append([]string{"-a", appName}, args...)...); err != nil {
		d.log.Warn().Err(err).Msg("failed to send notification")
	}
}

func (d *Desktop) RecordingChanged(on bool) {
	state := "Stopped"
	if on {
		state = "Started"
	}
	d.send(fmt.Sprintf("%s: %s Recording", appName, state))
}

func (d *Desktop) SegmentTranscribed(seg store.Segment) {
	d.send(fmt.Sprintf("Segment %d transcribed (%s)", seg.Seq, seg.Source), preview(seg.Transcription))
}

func (d *Desktop) SegmentFailed(seg store.Segment, err error) {
	d.send("-u", "critical", fmt.Sprintf("Segment %d failed", seg.Seq), err.Error())
}

func (d *Desktop) ConnectivityChanged(connected bool) {
	if connected {
		d.send(appName+": back online", "Draining offline queue")
		return
	}
	d.send(appName+": offline", "Segments will be queued")
}

func (d *Desktop) Error(msg string) {
	d.send("-u", "critical", msg)
}

// Log writes notifications to a zerolog logger.
type Log struct {
	log zerolog.Logger
}

func NewLog(l zerolog.Logger) Log { return Log{log: l} }

func (l Log) RecordingChanged(on bool) {
	l.log.Info().Bool("recording", on).Msg("recording changed")
}

func (l Log) SegmentTranscribed(seg store.Segment) {
	l.log.Info().
		Str("segment", seg.ID).
		Int("seq", seg.Seq).
		Str("source", string(seg.Source)).
		Str("text", preview(seg.Transcription)).
		Msg("segment transcribed")
}

func (l Log) SegmentFailed(seg store.Segment, err error) {
	l.log.Error().Err(err).Str("segment", seg.ID).Int("seq", seg.Seq).Msg("segment failed")
}

func (l Log) ConnectivityChanged(connected bool) {
	l.log.Info().Bool("connected", connected).Msg("connectivity changed")
}

func (l Log) Error(msg string) {
	l.log.Error().Msg(msg)
}

// Nop is a Notifier that does absolutely nothing.
// Useful in unit tests or headless builds.
type Nop struct{}

func (Nop) RecordingChanged(bool)               {}
func (Nop) SegmentTranscribed(store.Segment)    {}
func (Nop) SegmentFailed(store.Segment, error) {}
func (Nop) ConnectivityChanged(bool)            {}
func (Nop) Error(string)                        {}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLen {
		return text
	}
	r := []rune(text)
	return string(r[:previewLen]) + "…"
}
