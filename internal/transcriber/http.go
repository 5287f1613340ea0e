package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/leonardotrapani/livescribe/internal/logging"
)

// HTTPAdapter posts the segment as multipart/form-data straight to the
// configured endpoint and reads {"text": ...} back.
type HTTPAdapter struct {
	client *http.Client
	config Config
	log    zerolog.Logger
}

type transcriptionResponse struct {
	Text *string `json:"text"`
}

func NewHTTPAdapter(config Config) *HTTPAdapter {
	return &HTTPAdapter{
		client: &http.Client{Timeout: config.Timeout},
		config: config,
		log:    logging.Component("transcriber").With().Str("provider", ProviderHTTP).Logger(),
	}
}

func (a *HTTPAdapter) Transcribe(ctx context.Context, audioPath string) (string, error) {
	body, contentType, err := a.buildBody(audioPath)
	if err != nil {
		return "", remoteFailure(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.Endpoint, body)
	if err != nil {
		return "", remoteFailure(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	if a.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("request failed")
		return "", remoteFailure(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", remoteFailure(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", remoteFailure(fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(raw)))
	}

	var result transcriptionResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", remoteFailure(fmt.Errorf("parse response: %w", err))
	}
	if result.Text == nil {
		return "", remoteFailure(fmt.Errorf("parse response: missing text field"))
	}

	text, err := checkText(*result.Text)
	if err != nil {
		return "", remoteFailure(err)
	}

	a.log.Debug().Dur("elapsed", time.Since(start)).Str("file", filepath.Base(audioPath)).Msg("transcribed")
	return text, nil
}

func (a *HTTPAdapter) buildBody(audioPath string) (io.Reader, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy audio: %w", err)
	}
	if err := w.WriteField("model", a.config.Model); err != nil {
		return nil, "", fmt.Errorf("write model field: %w", err)
	}
	if a.config.Language != "" {
		if err := w.WriteField("language", a.config.Language); err != nil {
			return nil, "", fmt.Errorf("write language field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}
