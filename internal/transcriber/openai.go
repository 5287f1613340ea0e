package transcriber

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/leonardotrapani/livescribe/internal/logging"
)

// OpenAIAdapter talks to any OpenAI-compatible transcription API.
type OpenAIAdapter struct {
	client *openai.Client
	config Config
	log    zerolog.Logger
}

func NewOpenAIAdapter(config Config) *OpenAIAdapter {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.Endpoint != "" {
		clientConfig.BaseURL = config.Endpoint
	}
	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		log:    logging.Component("transcriber").With().Str("provider", ProviderOpenAI).Logger(),
	}
}

func (a *OpenAIAdapter) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", remoteFailure(fmt.Errorf("open audio: %w", err))
	}
	defer f.Close()

	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	req := openai.AudioRequest{
		Model:    a.config.Model,
		Reader:   f,
		FilePath: filepath.Base(audioPath),
		Language: a.config.Language,
	}

	start := time.Now()
	resp, err := a.client.CreateTranscription(ctx, req)
	duration := time.Since(start)

	if err != nil {
		a.log.Warn().Err(err).Dur("elapsed", duration).Str("file", req.FilePath).Msg("API call failed")
		return "", remoteFailure(fmt.Errorf("openai transcription: %w", err))
	}

	text, err := checkText(resp.Text)
	if err != nil {
		return "", remoteFailure(err)
	}

	a.log.Debug().Dur("elapsed", duration).Str("file", req.FilePath).Int("chars", len(text)).Msg("transcribed")
	return text, nil
}
