package transcriber

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Transcriber turns one audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

const (
	ProviderOpenAI = "openai"
	ProviderHTTP   = "http"

	FallbackWhisperCpp  = "whisper-cpp"
	FallbackPlaceholder = "placeholder"

	DefaultModel = "whisper-1"
)

// Config selects and configures the remote transcriber.
type Config struct {
	Provider string
	Endpoint string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Provider: ProviderOpenAI,
		Endpoint: "https://api.openai.com/v1",
		Model:    DefaultModel,
		Timeout:  60 * time.Second,
	}
}

// FallbackConfig selects the local transcriber used once retries run out.
type FallbackConfig struct {
	Provider  string
	ModelPath string
	Language  string
	Threads   int
}

// NewRemote builds the remote transcriber. Every error it returns from
// Transcribe matches ErrRemoteFailed.
func NewRemote(config Config) (Transcriber, error) {
	if config.Model == "" {
		config.Model = DefaultModel
	}

	switch config.Provider {
	case ProviderOpenAI:
		if config.APIKey == "" {
			config.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if config.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		return NewOpenAIAdapter(config), nil

	case ProviderHTTP:
		if config.Endpoint == "" {
			return nil, fmt.Errorf("http provider requires an endpoint")
		}
		return NewHTTPAdapter(config), nil

	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}
}

// NewFallback builds the local transcriber. Its errors are FallbackErrors.
func NewFallback(config FallbackConfig) (Transcriber, error) {
	switch config.Provider {
	case FallbackWhisperCpp:
		if config.ModelPath == "" {
			return nil, fmt.Errorf("whisper-cpp fallback requires model_path")
		}
		return NewWhisperCppAdapter(config.ModelPath, config.Language, config.Threads), nil

	case FallbackPlaceholder, "":
		return NewPlaceholder(), nil

	default:
		return nil, fmt.Errorf("unsupported fallback provider: %s", config.Provider)
	}
}

func checkText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyTranscription
	}
	return text, nil
}
