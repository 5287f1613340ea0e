package config

import "time"

type Config struct {
	General       GeneralConfig       `toml:"general"`
	Recording     RecordingConfig     `toml:"recording"`
	Segmenter     SegmenterConfig     `toml:"segmenter"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Retry         RetryConfig         `toml:"retry"`
	Fallback      FallbackConfig      `toml:"fallback"`
	Network       NetworkConfig       `toml:"network"`
	Store         StoreConfig         `toml:"store"`
	API           APIConfig           `toml:"api"`
	Notifications NotificationsConfig `toml:"notifications"`
}

// GeneralConfig holds settings that apply across the application
type GeneralConfig struct {
	DataDir   string `toml:"data_dir"`   // empty = $XDG_DATA_HOME/livescribe
	LogLevel  string `toml:"log_level"`  // trace, debug, info, warn, error
	LogFormat string `toml:"log_format"` // "console" or "json"
}

type RecordingConfig struct {
	SampleRate int    `toml:"sample_rate"`
	Channels   int    `toml:"channels"`
	Format     string `toml:"format"`
	BufferSize int    `toml:"buffer_size"`
	Device     string `toml:"device"`
}

type SegmenterConfig struct {
	SegmentIntervalSeconds int  `toml:"segment_interval_seconds"`
	FlushOnDisarm          bool `toml:"flush_on_disarm"`
}

type TranscriptionConfig struct {
	Provider       string        `toml:"provider"` // "openai" or "http"
	Endpoint       string        `toml:"endpoint"`
	APIKey         string        `toml:"api_key"`
	Model          string        `toml:"model"`
	Language       string        `toml:"language"`
	RequestTimeout time.Duration `toml:"request_timeout"`
}

type RetryConfig struct {
	RetryLimit  int           `toml:"retry_limit"`
	BackoffBase int           `toml:"backoff_base"`
	BackoffUnit time.Duration `toml:"backoff_unit"`
}

type FallbackConfig struct {
	Provider  string `toml:"provider"` // "whisper-cpp" or "placeholder"
	ModelPath string `toml:"model_path"`
	Threads   int    `toml:"threads"` // 0 = auto: NumCPU-1
}

type NetworkConfig struct {
	ProbeAddress  string        `toml:"probe_address"` // empty = endpoint host
	ProbeInterval time.Duration `toml:"probe_interval"`
	ProbeTimeout  time.Duration `toml:"probe_timeout"`
	StartOnline   bool          `toml:"start_online"`
}

type StoreConfig struct {
	Path string `toml:"path"` // empty = <data_dir>/livescribe.db
}

type APIConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

type NotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "desktop", "log", "none"
}
