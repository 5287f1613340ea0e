package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/BurntSushi/toml"

	"github.com/leonardotrapani/livescribe/internal/logging"
)

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	appDir := filepath.Join(configDir, "livescribe")
	if err := os.MkdirAll(appDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(appDir, "config.toml"), nil
}

// Load reads the user config, creating it with defaults when missing.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom reads the config at path, creating it with defaults when missing.
// Keys absent from the file keep their default values.
func LoadFrom(configPath string) (*Config, error) {
	log := logging.Component("config")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Info().Str("path", configPath).Msg("no config file found, creating with defaults")
		if err := SaveTo(configPath, DefaultConfig()); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
	}

	log.Debug().Str("path", configPath).Msg("loading configuration")
	config := DefaultConfig()
	meta, err := toml.DecodeFile(configPath, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	for _, key := range meta.Undecoded() {
		log.Warn().Str("key", key.String()).Msg("unknown config key ignored")
	}

	config.applyThreadsDefault()
	return config, nil
}

// applyThreadsDefault sets default threads for local transcription if not explicitly set
func (c *Config) applyThreadsDefault() {
	if c.Fallback.Threads == 0 {
		threads := runtime.NumCPU() - 1
		if threads < 1 {
			threads = 1
		}
		c.Fallback.Threads = threads
	}
}

// Save writes cfg to the user config path.
func Save(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(configPath, cfg)
}

func SaveDefaultConfig() error {
	return Save(DefaultConfig())
}

// SaveTo renders cfg as a commented TOML file at path.
func SaveTo(path string, cfg *Config) error {
	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, cfg); err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	// api_key may be set, keep the file private.
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var configTemplate = template.Must(template.New("config").Parse(`# Livescribe Configuration
# This file is automatically generated with defaults.
# Edit values as needed - changes apply the next time capture is armed.

[general]
  data_dir = {{printf "%q" .General.DataDir}}          # Where audio and the database live (empty = ~/.local/share/livescribe)
  log_level = {{printf "%q" .General.LogLevel}}        # trace, debug, info, warn, error
  log_format = {{printf "%q" .General.LogFormat}}      # "console" or "json"

# Audio Recording Configuration
[recording]
  sample_rate = {{.Recording.SampleRate}}          # Audio sample rate in Hz (16000 recommended for speech)
  channels = {{.Recording.Channels}}                 # Number of audio channels (1 = mono, 2 = stereo)
  format = {{printf "%q" .Recording.Format}}               # Audio format (only s16 is supported)
  buffer_size = {{.Recording.BufferSize}}           # Read buffer size in bytes
  device = {{printf "%q" .Recording.Device}}                  # PipeWire target (empty = default microphone)

[segmenter]
  segment_interval_seconds = {{.Segmenter.SegmentIntervalSeconds}}  # Length of each audio segment
  flush_on_disarm = {{.Segmenter.FlushOnDisarm}}           # Transcribe the partial tail when capture stops

# Remote Speech Transcription
[transcription]
  provider = {{printf "%q" .Transcription.Provider}}          # "openai" (OpenAI-compatible API) or "http" (raw multipart POST)
  endpoint = {{printf "%q" .Transcription.Endpoint}}
  api_key = {{printf "%q" .Transcription.APIKey}}                 # Or set OPENAI_API_KEY
  model = {{printf "%q" .Transcription.Model}}
  language = {{printf "%q" .Transcription.Language}}                # Empty for auto-detect
  request_timeout = {{printf "%q" .Transcription.RequestTimeout.String}}

# Retry policy for remote failures: wait backoff_base^n * backoff_unit after the n-th failure
[retry]
  retry_limit = {{.Retry.RetryLimit}}
  backoff_base = {{.Retry.BackoffBase}}
  backoff_unit = {{printf "%q" .Retry.BackoffUnit.String}}

# Local transcription used once retries are exhausted
[fallback]
  provider = {{printf "%q" .Fallback.Provider}}      # "whisper-cpp" or "placeholder"
  model_path = {{printf "%q" .Fallback.ModelPath}}              # ggml file or model ID (see: livescribe models list)
  threads = {{.Fallback.Threads}}                   # 0 = auto

[network]
  probe_address = {{printf "%q" .Network.ProbeAddress}}           # host:port to dial (empty = endpoint host)
  probe_interval = {{printf "%q" .Network.ProbeInterval.String}}
  probe_timeout = {{printf "%q" .Network.ProbeTimeout.String}}
  start_online = {{.Network.StartOnline}}

[store]
  path = {{printf "%q" .Store.Path}}                    # SQLite database (empty = <data_dir>/livescribe.db)

# Read-only HTTP API for observers
[api]
  enabled = {{.API.Enabled}}
  address = {{printf "%q" .API.Address}}

[notifications]
  enabled = {{.Notifications.Enabled}}
  type = {{printf "%q" .Notifications.Type}}             # "desktop", "log", "none"
`))
