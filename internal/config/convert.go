package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/leonardotrapani/livescribe/internal/dispatch"
	"github.com/leonardotrapani/livescribe/internal/logging"
	"github.com/leonardotrapani/livescribe/internal/models/whisper"
	"github.com/leonardotrapani/livescribe/internal/network"
	"github.com/leonardotrapani/livescribe/internal/recording"
	"github.com/leonardotrapani/livescribe/internal/segmenter"
	"github.com/leonardotrapani/livescribe/internal/transcriber"
)

// DataDir resolves general.data_dir, defaulting to the XDG data home.
func (c *Config) DataDir() string {
	if c.General.DataDir != "" {
		return c.General.DataDir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "livescribe")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "livescribe")
	}
	return filepath.Join(home, ".local", "share", "livescribe")
}

func (c *Config) AudioDir() string {
	return filepath.Join(c.DataDir(), "audio")
}

func (c *Config) ModelsDir() string {
	return filepath.Join(c.DataDir(), "models", "whisper")
}

func (c *Config) ModelCatalog() *whisper.Catalog {
	return whisper.NewCatalog(c.ModelsDir())
}

func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(c.DataDir(), "livescribe.db")
}

func (c *Config) ToLoggingConfig() logging.Config {
	return logging.Config{
		Level:  c.General.LogLevel,
		Format: c.General.LogFormat,
	}
}

func (c *Config) ToRecordingConfig() recording.Config {
	return recording.Config{
		SampleRate: c.Recording.SampleRate,
		Channels:   c.Recording.Channels,
		Format:     c.Recording.Format,
		BufferSize: c.Recording.BufferSize,
		Device:     c.Recording.Device,
	}
}

func (c *Config) ToSegmenterConfig() segmenter.Config {
	return segmenter.Config{
		Interval: time.Duration(c.Segmenter.SegmentIntervalSeconds) * time.Second,
		AudioDir: c.AudioDir(),
		Format:   c.ToRecordingConfig().WAVFormat(),

		FlushOnDisarm: c.Segmenter.FlushOnDisarm,
	}
}

func (c *Config) ToTranscriberConfig() transcriber.Config {
	return transcriber.Config{
		Provider: c.Transcription.Provider,
		Endpoint: c.Transcription.Endpoint,
		APIKey:   c.resolveAPIKey(),
		Model:    c.Transcription.Model,
		Language: c.Transcription.Language,
		Timeout:  c.Transcription.RequestTimeout,
	}
}

// ToFallbackConfig maps a catalog model ID in fallback.model_path to its
// downloaded file.
func (c *Config) ToFallbackConfig() transcriber.FallbackConfig {
	modelPath := c.Fallback.ModelPath
	if whisper.IsModelID(modelPath) {
		if p, err := c.ModelCatalog().Path(modelPath); err == nil {
			modelPath = p
		}
	}
	return transcriber.FallbackConfig{
		Provider:  c.Fallback.Provider,
		ModelPath: modelPath,
		Language:  c.Transcription.Language,
		Threads:   c.Fallback.Threads,
	}
}

func (c *Config) ToDispatchConfig() dispatch.Config {
	return dispatch.Config{
		RetryLimit:  c.Retry.RetryLimit,
		BackoffBase: c.Retry.BackoffBase,
		BackoffUnit: c.Retry.BackoffUnit,
	}
}

// ProbeAddress is the dial target for connectivity checks. It falls back to
// the transcription endpoint's host.
func (c *Config) ProbeAddress() (string, error) {
	if c.Network.ProbeAddress != "" {
		return c.Network.ProbeAddress, nil
	}
	return network.AddressFromURL(c.Transcription.Endpoint)
}
