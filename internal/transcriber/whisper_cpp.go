package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/leonardotrapani/livescribe/internal/logging"
)

// WhisperCppAdapter runs whisper-cli on the segment file.
type WhisperCppAdapter struct {
	modelPath string
	language  string
	threads   int
	binary    string
	log       zerolog.Logger
}

// NewWhisperCppAdapter creates a new whisper-cpp adapter.
// threads: number of CPU threads (0 for auto)
func NewWhisperCppAdapter(modelPath, lang string, threads int) *WhisperCppAdapter {
	return &WhisperCppAdapter{
		modelPath: modelPath,
		language:  lang,
		threads:   threads,
		binary:    "whisper-cli",
		log:       logging.Component("transcriber").With().Str("provider", FallbackWhisperCpp).Logger(),
	}
}

func (a *WhisperCppAdapter) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if _, err := os.Stat(a.modelPath); os.IsNotExist(err) {
		return "", NewFallbackError(FallbackWhisperCpp, fmt.Errorf("model file not found: %s", a.modelPath))
	}

	whisperPath, err := exec.LookPath(a.binary)
	if err != nil {
		return "", NewFallbackError(FallbackWhisperCpp, fmt.Errorf("%s not found: install whisper.cpp first", a.binary))
	}

	cmd := exec.CommandContext(ctx, whisperPath, a.buildArgs(audioPath)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return "", NewFallbackError(FallbackWhisperCpp, ctx.Err())
		}
		a.log.Error().Err(err).Dur("elapsed", duration).Str("stderr", stderr.String()).Msg("command failed")
		return "", NewFallbackError(FallbackWhisperCpp, fmt.Errorf("whisper-cli failed: %w", err))
	}

	text, err := checkText(stdout.String())
	if err != nil {
		return "", NewFallbackError(FallbackWhisperCpp, err)
	}

	a.log.Debug().Dur("elapsed", duration).Str("file", filepath.Base(audioPath)).Msg("transcribed")
	return text, nil
}

func (a *WhisperCppAdapter) buildArgs(audioPath string) []string {
	lang := a.language
	if lang == "" {
		lang = "auto"
	}

	args := []string{
		"-m", a.modelPath,
		"-l", lang,
		"-nt", // no timestamps
		"-np", // no progress
		"-f", audioPath,
	}
	if a.threads > 0 {
		args = append(args, "-t", fmt.Sprintf("%d", a.threads))
	}
	return args
}

// Placeholder stands in for a local engine when none is installed. It
// always succeeds with a marker naming the segment file.
type Placeholder struct{}

func NewPlaceholder() *Placeholder { return &Placeholder{} }

func (Placeholder) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", NewFallbackError(FallbackPlaceholder, err)
	}
	return "local transcription of " + strings.TrimSpace(filepath.Base(audioPath)), nil
}
