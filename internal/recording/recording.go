package recording

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/leonardotrapani/livescribe/internal/logging"
)

type Config struct {
	SampleRate int
	Channels   int
	Format     string
	BufferSize int
	Device     string
}

func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		Channels:   1,
		Format:     "s16",
		BufferSize: 8192,
		Device:     "",
	}
}

// FrameBytes is the size of one interleaved sample frame.
func (c Config) FrameBytes() int {
	return bytesPerInt16 * c.Channels
}

// Recorder runs pw-record and streams its stdout into a Sink.
type Recorder struct {
	config    Config
	recording atomic.Bool
	log       zerolog.Logger

	mu     sync.Mutex // guards cmd and cancel
	cmd    *exec.Cmd
	cancel context.CancelFunc

	wg sync.WaitGroup

	// command is swapped in tests.
	command func(ctx context.Context, args ...string) *exec.Cmd
}

func NewRecorder(config Config) *Recorder {
	return &Recorder{
		config: config,
		log:    logging.Component("recording"),
		command: func(ctx context.Context, args ...string) *exec.Cmd {
			return exec.CommandContext(ctx, "pw-record", args...)
		},
	}
}

func NewDefaultRecorder() *Recorder { return NewRecorder(DefaultConfig()) }

func (r *Recorder) Config() Config { return r.config }

func (r *Recorder) IsRecording() bool {
	return r.recording.Load()
}

// Start launches capture into sink. The returned channel receives at most one
// capture error and is closed when the capture loop exits.
func (r *Recorder) Start(ctx context.Context, sink *Sink) (<-chan error, error) {
	if r.recording.Load() {
		return nil, fmt.Errorf("already recording")
	}

	if err := r.validateConfig(); err != nil {
		return nil, err
	}

	recordingCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)

	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.recording.Store(true)
	r.wg.Add(1)
	go r.captureLoop(recordingCtx, sink, errCh)

	return errCh, nil
}

func (r *Recorder) Stop() error {
	if !r.recording.Load() {
		return nil
	}

	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	return nil
}

func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) captureLoop(ctx context.Context, sink *Sink, errCh chan<- error) {
	defer func() {
		sink.SetActive(false)
		close(errCh)
		r.recording.Store(false)

		r.mu.Lock()
		if r.cmd != nil {
			_ = r.cmd.Wait()
			r.cmd = nil
		}
		r.cancel = nil
		r.mu.Unlock()

		r.wg.Done()
	}()

	cmd := r.command(ctx, r.buildPwRecordArgs()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.emitErr(errCh, fmt.Errorf("create stdout pipe: %w", err))
		r.requestCancel()
		return
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.emitErr(errCh, fmt.Errorf("create stderr pipe: %w", err))
		r.requestCancel()
		return
	}

	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()

	if err := cmd.Start(); err != nil {
		r.emitErr(errCh, fmt.Errorf("start pw-record: %w", err))
		r.requestCancel()
		return
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			r.log.Debug().Str("stderr", scanner.Text()).Msg("pw-record output")
		}
	}()

	sink.SetActive(true)
	r.log.Info().Int("sample_rate", r.config.SampleRate).Int("channels", r.config.Channels).Msg("capture started")

	buffer := make([]byte, r.config.BufferSize)
	var written int64
	started := time.Now()

	for {
		n, readErr := stdout.Read(buffer)
		if n > 0 {
			_, _ = sink.Write(buffer[:n])
			written += int64(n)
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) || ctx.Err() != nil {
				r.log.Info().Int64("bytes", written).Dur("elapsed", time.Since(started)).Msg("capture stopped")
				return
			}
			r.emitErr(errCh, fmt.Errorf("read audio: %w", readErr))
			r.requestCancel()
			return
		}

		select {
		case <-ctx.Done():
			r.log.Info().Int64("bytes", written).Dur("elapsed", time.Since(started)).Msg("capture stopped")
			return
		default:
		}
	}
}

func (r *Recorder) requestCancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Recorder) emitErr(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
	}
	r.log.Error().Err(err).Msg("recording error")
}

func (r *Recorder) buildPwRecordArgs() []string {
	args := []string{
		"--format", r.config.Format,
		"--rate", strconv.Itoa(r.config.SampleRate),
		"--channels", strconv.Itoa(r.config.Channels),
		"-", // stdout
	}
	if r.config.Device != "" {
		args = append(args, "--target", r.config.Device)
	}
	return args
}

// CheckPipeWireAvailable verifies pw-record is installed and PipeWire answers.
func CheckPipeWireAvailable(ctx context.Context) error {
	if _, err := exec.LookPath("pw-record"); err != nil {
		return fmt.Errorf("pw-record not found: %w (install pipewire-tools)", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	cmd := exec.CommandContext(checkCtx, "pw-cli", "info")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("PipeWire not running or accessible: %w", err)
	}
	return nil
}

func (r *Recorder) validateConfig() error {
	if r.config.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", r.config.SampleRate)
	}
	if r.config.Channels <= 0 {
		return fmt.Errorf("invalid Channels: %d", r.config.Channels)
	}
	if r.config.BufferSize <= 0 {
		return fmt.Errorf("invalid BufferSize: %d", r.config.BufferSize)
	}
	if r.config.Format != "s16" {
		return fmt.Errorf("unsupported Format %q: segments are written as 16-bit WAV", r.config.Format)
	}
	if r.config.BufferSize%r.config.FrameBytes() != 0 {
		r.log.Warn().
			Int("buffer_size", r.config.BufferSize).
			Int("frame_bytes", r.config.FrameBytes()).
			Msg("buffer size not aligned to frame size; reads may split frames")
	}
	return nil
}
