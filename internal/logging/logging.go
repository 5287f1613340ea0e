package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// output is shared by every logger in the process; Setup swaps its target so
// loggers created earlier pick up format and destination changes.
type output struct {
	mu sync.RWMutex
	w  io.Writer
}

func (o *output) Write(p []byte) (int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.w.Write(p)
}

func (o *output) set(w io.Writer) {
	o.mu.Lock()
	o.w = w
	o.mu.Unlock()
}

var (
	sink = &output{w: consoleWriter(os.Stderr)}
	base = zerolog.New(sink).With().Timestamp().Logger()
)

func init() {
	log.Logger = base
}

func consoleWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
}

// Setup configures the process-wide logger. Unknown levels fall back to info.
// It is safe to call again on config reload.
func Setup(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	// events are always encoded as JSON; the console writer re-renders them
	w := out
	if strings.ToLower(cfg.Format) != FormatJSON {
		w = consoleWriter(out)
	}
	sink.set(w)
	return base
}

// Component returns a logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
