package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	t.Run("json output with component", func(t *testing.T) {
		var buf bytes.Buffer
		Setup(Config{Level: "debug", Format: FormatJSON, Output: &buf})

		l := Component("dispatch")
		l.Info().Str("segment", "abc").Msg("hello")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "dispatch", entry["component"])
		assert.Equal(t, "abc", entry["segment"])
		assert.Equal(t, "hello", entry["message"])
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		Setup(Config{Level: "loud", Format: FormatJSON, Output: &buf})
		assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

		l := Component("x")
		l.Debug().Msg("hidden")
		assert.Empty(t, buf.String())
	})

	t.Run("console format", func(t *testing.T) {
		var buf bytes.Buffer
		Setup(Config{Level: "info", Output: &buf})
		l := Component("segmenter")
		l.Info().Msg("tick")
		assert.Contains(t, buf.String(), "tick")
	})

	t.Run("reload reaches existing loggers", func(t *testing.T) {
		var before, after bytes.Buffer
		Setup(Config{Level: "info", Format: FormatJSON, Output: &before})
		l := Component("daemon")

		Setup(Config{Level: "info", Format: FormatConsole, Output: &after})
		l.Info().Msg("reloaded")

		assert.Empty(t, before.String())
		assert.Contains(t, after.String(), "reloaded")
		assert.False(t, json.Valid(after.Bytes()), "console output after reload")
	})
}
