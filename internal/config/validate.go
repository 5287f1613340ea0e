package config

import (
	"fmt"
	"net"
	"net/url"
	"os"

	"github.com/leonardotrapani/livescribe/internal/dispatch"
)

func (c *Config) Validate() error {
	switch c.General.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid general.log_format: %s (must be console or json)", c.General.LogFormat)
	}

	if c.Recording.SampleRate <= 0 {
		return fmt.Errorf("invalid recording.sample_rate: %d", c.Recording.SampleRate)
	}
	if c.Recording.Channels <= 0 {
		return fmt.Errorf("invalid recording.channels: %d", c.Recording.Channels)
	}
	if c.Recording.BufferSize <= 0 {
		return fmt.Errorf("invalid recording.buffer_size: %d", c.Recording.BufferSize)
	}
	if c.Recording.Format != "s16" {
		return fmt.Errorf("invalid recording.format: %q (only s16 is supported)", c.Recording.Format)
	}

	if c.Segmenter.SegmentIntervalSeconds <= 0 {
		return fmt.Errorf("invalid segmenter.segment_interval_seconds: %d", c.Segmenter.SegmentIntervalSeconds)
	}

	switch c.Transcription.Provider {
	case "openai":
		if c.resolveAPIKey() == "" {
			return fmt.Errorf("OpenAI API key required: not found in config (transcription.api_key) or environment variable (OPENAI_API_KEY)")
		}
		if c.Transcription.Language != "" && !isValidLanguageCode(c.Transcription.Language) {
			return fmt.Errorf("invalid transcription.language: %s (use empty string for auto-detect or ISO-639-1 codes like 'en', 'es', 'fr')", c.Transcription.Language)
		}
	case "http":
		if c.Transcription.Endpoint == "" {
			return fmt.Errorf("invalid transcription.endpoint: required for the http provider")
		}
	case "":
		return fmt.Errorf("invalid transcription.provider: empty")
	default:
		return fmt.Errorf("invalid transcription.provider: %s (must be openai or http)", c.Transcription.Provider)
	}
	if c.Transcription.Endpoint != "" {
		u, err := url.Parse(c.Transcription.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid transcription.endpoint: %q", c.Transcription.Endpoint)
		}
	}
	if c.Transcription.Model == "" {
		return fmt.Errorf("invalid transcription.model: empty")
	}
	if c.Transcription.RequestTimeout <= 0 {
		return fmt.Errorf("invalid transcription.request_timeout: %v", c.Transcription.RequestTimeout)
	}

	if c.Retry.RetryLimit <= 0 || c.Retry.RetryLimit > dispatch.MaxRetryLimit {
		return fmt.Errorf("invalid retry.retry_limit: %d (must be 1-%d)", c.Retry.RetryLimit, dispatch.MaxRetryLimit)
	}
	if c.Retry.BackoffBase <= 0 || c.Retry.BackoffBase > dispatch.MaxBackoffBase {
		return fmt.Errorf("invalid retry.backoff_base: %d (must be 1-%d)", c.Retry.BackoffBase, dispatch.MaxBackoffBase)
	}
	if c.Retry.BackoffUnit <= 0 {
		return fmt.Errorf("invalid retry.backoff_unit: %v", c.Retry.BackoffUnit)
	}

	switch c.Fallback.Provider {
	case "placeholder":
	case "whisper-cpp":
		if c.Fallback.ModelPath == "" {
			return fmt.Errorf("invalid fallback.model_path: required for whisper-cpp")
		}
		if _, err := c.ModelCatalog().Resolve(c.Fallback.ModelPath); err != nil {
			return fmt.Errorf("invalid fallback.model_path: %w", err)
		}
	default:
		return fmt.Errorf("invalid fallback.provider: %s (must be whisper-cpp or placeholder)", c.Fallback.Provider)
	}
	if c.Fallback.Threads < 0 {
		return fmt.Errorf("invalid fallback.threads: %d", c.Fallback.Threads)
	}

	if c.Network.ProbeAddress != "" {
		if _, _, err := net.SplitHostPort(c.Network.ProbeAddress); err != nil {
			return fmt.Errorf("invalid network.probe_address: %w", err)
		}
	}
	if c.Network.ProbeInterval < 0 {
		return fmt.Errorf("invalid network.probe_interval: %v", c.Network.ProbeInterval)
	}
	if c.Network.ProbeInterval > 0 && c.Network.ProbeTimeout <= 0 {
		return fmt.Errorf("invalid network.probe_timeout: %v", c.Network.ProbeTimeout)
	}

	if c.API.Enabled {
		if _, _, err := net.SplitHostPort(c.API.Address); err != nil {
			return fmt.Errorf("invalid api.address: %w", err)
		}
	}

	validTypes := map[string]bool{"desktop": true, "log": true, "none": true}
	if !validTypes[c.Notifications.Type] {
		return fmt.Errorf("invalid notifications.type: %s (must be desktop, log, or none)", c.Notifications.Type)
	}

	return nil
}

func (c *Config) resolveAPIKey() string {
	if c.Transcription.APIKey != "" {
		return c.Transcription.APIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}

func isValidLanguageCode(code string) bool {
	validCodes := map[string]bool{
		"en": true, "es": true, "fr": true, "de": true, "it": true, "pt": true,
		"ru": true, "ja": true, "ko": true, "zh": true, "ar": true, "hi": true,
		"nl": true, "sv": true, "da": true, "no": true, "fi": true, "pl": true,
		"tr": true, "he": true, "th": true, "vi": true, "id": true, "ms": true,
		"uk": true, "cs": true, "hu": true, "ro": true, "bg": true, "hr": true,
		"sk": true, "sl": true, "et": true, "lv": true, "lt": true, "mt": true,
		"cy": true, "ga": true, "eu": true, "ca": true, "gl": true, "is": true,
		"mk": true, "sq": true, "az": true, "be": true, "ka": true, "hy": true,
		"kk": true, "ky": true, "tg": true, "uz": true, "mn": true, "ne": true,
		"si": true, "km": true, "lo": true, "my": true, "fa": true, "ps": true,
		"ur": true, "bn": true, "ta": true, "te": true, "ml": true, "kn": true,
		"gu": true, "pa": true, "or": true, "as": true, "mr": true, "sa": true,
		"sw": true, "yo": true, "ig": true, "ha": true, "zu": true, "xh": true,
		"af": true, "am": true, "mg": true, "so": true, "sn": true, "rw": true,
	}
	return validCodes[code]
}
