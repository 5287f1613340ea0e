package config

import "time"

// DefaultConfig returns the configuration written on first start.
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			DataDir:   "",
			LogLevel:  "info",
			LogFormat: "console",
		},
		Recording: RecordingConfig{
			SampleRate: 16000,
			Channels:   1,
			Format:     "s16",
			BufferSize: 8192,
			Device:     "",
		},
		Segmenter: SegmenterConfig{
			SegmentIntervalSeconds: 30,
		},
		Transcription: TranscriptionConfig{
			Provider:       "openai",
			Endpoint:       "https://api.openai.com/v1",
			Model:          "whisper-1",
			RequestTimeout: 60 * time.Second,
		},
		Retry: RetryConfig{
			RetryLimit:  5,
			BackoffBase: 2,
			BackoffUnit: time.Second,
		},
		Fallback: FallbackConfig{
			Provider: "placeholder",
		},
		Network: NetworkConfig{
			ProbeInterval: 10 * time.Second,
			ProbeTimeout:  3 * time.Second,
			StartOnline:   true,
		},
		API: APIConfig{
			Enabled: false,
			Address: "127.0.0.1:7717",
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Type:    "desktop",
		},
	}
}
