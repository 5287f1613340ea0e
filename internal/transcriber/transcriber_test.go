package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAudio(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("RIFF....WAVEfake"), 0o600))
	return path
}

type capturedRequest struct {
	path     string
	filename string
	file     []byte
	model    string
	language string
	auth     string
}

func transcriptionServer(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	got := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			got.model = r.FormValue("model")
			got.language = r.FormValue("language")
			if f, hdr, err := r.FormFile("file"); err == nil {
				got.filename = hdr.Filename
				got.file, _ = io.ReadAll(f)
				f.Close()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestNewRemote(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		env     string
		wantErr bool
		want    any
	}{
		{name: "openai with key", config: Config{Provider: ProviderOpenAI, APIKey: "k"}, want: &OpenAIAdapter{}},
		{name: "openai key from env", config: Config{Provider: ProviderOpenAI}, env: "env-key", want: &OpenAIAdapter{}},
		{name: "openai without key", config: Config{Provider: ProviderOpenAI}, wantErr: true},
		{name: "http", config: Config{Provider: ProviderHTTP, Endpoint: "http://localhost/x"}, want: &HTTPAdapter{}},
		{name: "http without endpoint", config: Config{Provider: ProviderHTTP}, wantErr: true},
		{name: "unknown", config: Config{Provider: "carrier-pigeon"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", tt.env)
			tr, err := NewRemote(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, tr)
		})
	}
}

func TestNewFallback(t *testing.T) {
	tr, err := NewFallback(FallbackConfig{Provider: FallbackPlaceholder})
	require.NoError(t, err)
	assert.IsType(t, &Placeholder{}, tr)

	tr, err = NewFallback(FallbackConfig{Provider: FallbackWhisperCpp, ModelPath: "/models/ggml-base.bin"})
	require.NoError(t, err)
	assert.IsType(t, &WhisperCppAdapter{}, tr)

	_, err = NewFallback(FallbackConfig{Provider: FallbackWhisperCpp})
	assert.Error(t, err)

	_, err = NewFallback(FallbackConfig{Provider: "nope"})
	assert.Error(t, err)
}

func TestHTTPAdapter(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantText  string
		wantEmpty bool
	}{
		{name: "success", status: http.StatusOK, body: `{"text":" hello world "}`, wantText: "hello world"},
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `slow down`},
		{name: "malformed json", status: http.StatusOK, body: `{"text":`},
		{name: "missing text", status: http.StatusOK, body: `{"result":"hi"}`},
		{name: "empty text", status: http.StatusOK, body: `{"text":"   "}`, wantEmpty: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, got := transcriptionServer(t, tt.status, tt.body)
			audio := writeAudio(t, "segment_007.wav")

			a := NewHTTPAdapter(Config{Endpoint: srv.URL + "/transcribe", Model: "whisper-1", APIKey: "secret", Language: "en", Timeout: 5 * time.Second})
			text, err := a.Transcribe(context.Background(), audio)

			assert.Equal(t, "/transcribe", got.path)
			assert.Equal(t, "segment_007.wav", got.filename)
			assert.Equal(t, []byte("RIFF....WAVEfake"), got.file)
			assert.Equal(t, "whisper-1", got.model)
			assert.Equal(t, "en", got.language)
			assert.Equal(t, "Bearer secret", got.auth)

			if tt.wantText != "" {
				require.NoError(t, err)
				assert.Equal(t, tt.wantText, text)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRemoteFailed)
			assert.Equal(t, tt.wantEmpty, errors.Is(err, ErrEmptyTranscription))
		})
	}
}

func TestHTTPAdapterTransportErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		a := NewHTTPAdapter(Config{Endpoint: "http://127.0.0.1:1", Model: "whisper-1"})
		_, err := a.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.wav"))
		assert.ErrorIs(t, err, ErrRemoteFailed)
	})

	t.Run("timeout", func(t *testing.T) {
		block := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-block
		}))
		defer srv.Close()
		defer close(block)

		a := NewHTTPAdapter(Config{Endpoint: srv.URL, Model: "whisper-1", Timeout: 50 * time.Millisecond})
		_, err := a.Transcribe(context.Background(), writeAudio(t, "segment_001.wav"))
		assert.ErrorIs(t, err, ErrRemoteFailed)
	})
}

func TestOpenAIAdapter(t *testing.T) {
	t.Run("success preserves filename", func(t *testing.T) {
		srv, got := transcriptionServer(t, http.StatusOK, `{"text":"ciao"}`)
		a := NewOpenAIAdapter(Config{Endpoint: srv.URL + "/v1", APIKey: "k", Model: "whisper-1", Timeout: 5 * time.Second})

		text, err := a.Transcribe(context.Background(), writeAudio(t, "segment_002.wav"))
		require.NoError(t, err)
		assert.Equal(t, "ciao", text)
		assert.Equal(t, "/v1/audio/transcriptions", got.path)
		assert.Equal(t, "segment_002.wav", got.filename)
		assert.Equal(t, "whisper-1", got.model)
		assert.Equal(t, "Bearer k", got.auth)
	})

	t.Run("non-2xx", func(t *testing.T) {
		errBody, _ := json.Marshal(map[string]any{"error": map[string]string{"message": "bad key", "type": "invalid_request_error"}})
		srv, _ := transcriptionServer(t, http.StatusUnauthorized, string(errBody))
		a := NewOpenAIAdapter(Config{Endpoint: srv.URL + "/v1", APIKey: "k", Model: "whisper-1"})

		_, err := a.Transcribe(context.Background(), writeAudio(t, "segment_003.wav"))
		assert.ErrorIs(t, err, ErrRemoteFailed)
	})

	t.Run("empty text", func(t *testing.T) {
		srv, _ := transcriptionServer(t, http.StatusOK, `{"text":""}`)
		a := NewOpenAIAdapter(Config{Endpoint: srv.URL + "/v1", APIKey: "k", Model: "whisper-1"})

		_, err := a.Transcribe(context.Background(), writeAudio(t, "segment_004.wav"))
		assert.ErrorIs(t, err, ErrRemoteFailed)
		assert.ErrorIs(t, err, ErrEmptyTranscription)
	})
}

func TestWhisperCppAdapter(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "ggml-base.bin")
	require.NoError(t, os.WriteFile(model, []byte("model"), 0o600))

	script := func(t *testing.T, body string) string {
		t.Helper()
		p := filepath.Join(t.TempDir(), "whisper-cli")
		require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
		return p
	}

	t.Run("success", func(t *testing.T) {
		a := NewWhisperCppAdapter(model, "", 4)
		a.binary = script(t, `echo "  local words  "`)
		text, err := a.Transcribe(context.Background(), writeAudio(t, "segment_001.wav"))
		require.NoError(t, err)
		assert.Equal(t, "local words", text)
	})

	t.Run("command fails", func(t *testing.T) {
		a := NewWhisperCppAdapter(model, "en", 0)
		a.binary = script(t, "exit 3")
		_, err := a.Transcribe(context.Background(), writeAudio(t, "segment_001.wav"))
		assert.True(t, IsFallbackError(err))
		assert.False(t, errors.Is(err, ErrRemoteFailed))
	})

	t.Run("empty output", func(t *testing.T) {
		a := NewWhisperCppAdapter(model, "en", 0)
		a.binary = script(t, "true")
		_, err := a.Transcribe(context.Background(), writeAudio(t, "segment_001.wav"))
		assert.True(t, IsFallbackError(err))
		assert.ErrorIs(t, err, ErrEmptyTranscription)
	})

	t.Run("missing model", func(t *testing.T) {
		a := NewWhisperCppAdapter(filepath.Join(dir, "missing.bin"), "en", 0)
		_, err := a.Transcribe(context.Background(), writeAudio(t, "segment_001.wav"))
		assert.True(t, IsFallbackError(err))
	})

	t.Run("args", func(t *testing.T) {
		a := NewWhisperCppAdapter(model, "", 2)
		args := strings.Join(a.buildArgs("/tmp/x.wav"), " ")
		assert.Contains(t, args, "-l auto")
		assert.Contains(t, args, "-f /tmp/x.wav")
		assert.Contains(t, args, "-t 2")
	})
}

func TestPlaceholder(t *testing.T) {
	text, err := NewPlaceholder().Transcribe(context.Background(), "/data/audio/s1/segment_009.wav")
	require.NoError(t, err)
	assert.Equal(t, "local transcription of segment_009.wav", text)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewPlaceholder().Transcribe(ctx, "x.wav")
	assert.True(t, IsFallbackError(err))
}

func TestRemoteFailureWrapsOnce(t *testing.T) {
	base := errors.New("boom")
	err := remoteFailure(remoteFailure(base))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, 1, strings.Count(err.Error(), ErrRemoteFailed.Error()))
	assert.NoError(t, remoteFailure(nil))
}
