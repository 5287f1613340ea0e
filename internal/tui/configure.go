package tui

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/leonardotrapani/livescribe/internal/config"
	"github.com/leonardotrapani/livescribe/internal/dispatch"
)

// ConfigureResult holds the configuration result from the TUI
type ConfigureResult struct {
	Config    *config.Config
	Cancelled bool
}

// ConfigSection represents a configuration section
type ConfigSection string

const (
	SectionTranscription ConfigSection = "transcription"
	SectionRetry         ConfigSection = "retry"
	SectionFallback      ConfigSection = "fallback"
	SectionSegmenter     ConfigSection = "segmenter"
	SectionNetwork       ConfigSection = "network"
	SectionNotifications ConfigSection = "notifications"
	SectionAPI           ConfigSection = "api"
	SectionSaveExit      ConfigSection = "save_exit"
	SectionDiscardExit   ConfigSection = "discard_exit"
)

// Run starts the menu-driven configuration editor on a copy of cfg.
func Run(existing *config.Config) (*ConfigureResult, error) {
	if existing == nil {
		existing = config.DefaultConfig()
	}
	cp := *existing
	cfg := &cp

	for {
		clearScreen()
		fmt.Println(Logo())
		fmt.Println()

		section, err := selectSection(cfg)
		if err != nil {
			return &ConfigureResult{Cancelled: true}, nil
		}

		// esc inside a section drops its edits and returns to the menu
		switch section {
		case SectionSaveExit:
			confirmed, err := showSummary(cfg)
			if err != nil {
				return &ConfigureResult{Cancelled: true}, nil
			}
			if confirmed {
				return &ConfigureResult{Config: cfg}, nil
			}
		case SectionDiscardExit:
			return &ConfigureResult{Cancelled: true}, nil
		case SectionTranscription:
			editTranscription(cfg)
		case SectionRetry:
			editRetry(cfg)
		case SectionFallback:
			editFallback(cfg)
		case SectionSegmenter:
			editSegmenter(cfg)
		case SectionNetwork:
			editNetwork(cfg)
		case SectionNotifications:
			editNotifications(cfg)
		case SectionAPI:
			editAPI(cfg)
		}
	}
}

func selectSection(cfg *config.Config) (ConfigSection, error) {
	var selected ConfigSection
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[ConfigSection]().
				Title("Configuration Menu").
				Description("↑/↓ navigate • enter select • esc cancel").
				Options(sectionOptions(cfg)...).
				Value(&selected),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return "", err
	}
	return selected, nil
}

func sectionOptions(cfg *config.Config) []huh.Option[ConfigSection] {
	return []huh.Option[ConfigSection]{
		huh.NewOption(fmt.Sprintf("Transcription (%s, %s)", cfg.Transcription.Provider, cfg.Transcription.Model), SectionTranscription),
		huh.NewOption(fmt.Sprintf("Retry (limit=%d, %d^n × %s)", cfg.Retry.RetryLimit, cfg.Retry.BackoffBase, cfg.Retry.BackoffUnit), SectionRetry),
		huh.NewOption(fmt.Sprintf("Fallback (%s)", cfg.Fallback.Provider), SectionFallback),
		huh.NewOption(fmt.Sprintf("Segments (every %ds)", cfg.Segmenter.SegmentIntervalSeconds), SectionSegmenter),
		huh.NewOption("Network", SectionNetwork),
		huh.NewOption(formatNotificationsLabel(cfg), SectionNotifications),
		huh.NewOption(formatAPILabel(cfg), SectionAPI),
		huh.NewOption("Save & Exit", SectionSaveExit),
		huh.NewOption("Discard & Exit", SectionDiscardExit),
	}
}

func formatNotificationsLabel(cfg *config.Config) string {
	if !cfg.Notifications.Enabled {
		return "Notifications (disabled)"
	}
	return fmt.Sprintf("Notifications (%s)", cfg.Notifications.Type)
}

func formatAPILabel(cfg *config.Config) string {
	if !cfg.API.Enabled {
		return "Observer API (disabled)"
	}
	return fmt.Sprintf("Observer API (%s)", cfg.API.Address)
}

func editTranscription(cfg *config.Config) error {
	provider := cfg.Transcription.Provider
	endpoint := cfg.Transcription.Endpoint
	apiKey := cfg.Transcription.APIKey
	model := cfg.Transcription.Model
	language := cfg.Transcription.Language
	timeout := cfg.Transcription.RequestTimeout.String()

	keyDesc := "Leave empty to use OPENAI_API_KEY"
	if apiKey != "" {
		keyDesc = "Current: " + maskAPIKey(apiKey)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Remote Provider").
				Options(
					huh.NewOption("OpenAI-compatible API", "openai"),
					huh.NewOption("Plain multipart HTTP endpoint", "http"),
				).
				Value(&provider),
			huh.NewInput().
				Title("Endpoint").
				Description("API base URL (openai) or full transcription URL (http)").
				Value(&endpoint),
			huh.NewInput().
				Title("API Key").
				Description(keyDesc).
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewInput().
				Title("Model").
				Value(&model).
				Validate(nonEmpty),
			huh.NewInput().
				Title("Language").
				Description("ISO-639-1 code, empty for auto-detect").
				Value(&language),
			huh.NewInput().
				Title("Request Timeout").
				Description("e.g. 60s").
				Value(&timeout).
				Validate(positiveDuration),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Transcription.Provider = provider
	cfg.Transcription.Endpoint = endpoint
	cfg.Transcription.APIKey = apiKey
	cfg.Transcription.Model = model
	cfg.Transcription.Language = language
	cfg.Transcription.RequestTimeout, _ = time.ParseDuration(timeout)
	return nil
}

func editRetry(cfg *config.Config) error {
	limit := strconv.Itoa(cfg.Retry.RetryLimit)
	base := strconv.Itoa(cfg.Retry.BackoffBase)
	unit := cfg.Retry.BackoffUnit.String()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Retry Limit").
				Description("Remote failures before the local fallback runs").
				Value(&limit).
				Validate(intAtMost(dispatch.MaxRetryLimit)),
			huh.NewInput().
				Title("Backoff Base").
				Description("Wait base^n × unit after the n-th failure, capped at one hour").
				Value(&base).
				Validate(intAtMost(dispatch.MaxBackoffBase)),
			huh.NewInput().
				Title("Backoff Unit").
				Value(&unit).
				Validate(positiveDuration),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Retry.RetryLimit, _ = strconv.Atoi(limit)
	cfg.Retry.BackoffBase, _ = strconv.Atoi(base)
	cfg.Retry.BackoffUnit, _ = time.ParseDuration(unit)
	return nil
}

func editFallback(cfg *config.Config) error {
	provider := cfg.Fallback.Provider
	modelPath := cfg.Fallback.ModelPath
	threads := strconv.Itoa(cfg.Fallback.Threads)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Local Fallback").
				Options(
					huh.NewOption("whisper.cpp (whisper-cli)", "whisper-cpp"),
					huh.NewOption("Placeholder text", "placeholder"),
				).
				Value(&provider),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Model").
				Description("ggml model file, or a downloaded model ID such as base.en").
				Value(&modelPath).
				Validate(nonEmpty),
			huh.NewInput().
				Title("Threads").
				Value(&threads).
				Validate(positiveInt),
		).WithHideFunc(func() bool { return provider != "whisper-cpp" }),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Fallback.Provider = provider
	if provider == "whisper-cpp" {
		cfg.Fallback.ModelPath = modelPath
		cfg.Fallback.Threads, _ = strconv.Atoi(threads)
	}
	return nil
}

func editSegmenter(cfg *config.Config) error {
	interval := strconv.Itoa(cfg.Segmenter.SegmentIntervalSeconds)
	flush := cfg.Segmenter.FlushOnDisarm

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Segment Interval (seconds)").
				Description("Applies the next time capture is armed").
				Value(&interval).
				Validate(positiveInt),
			huh.NewConfirm().
				Title("Transcribe the partial tail when capture stops?").
				Value(&flush),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Segmenter.SegmentIntervalSeconds, _ = strconv.Atoi(interval)
	cfg.Segmenter.FlushOnDisarm = flush
	return nil
}

func editNetwork(cfg *config.Config) error {
	address := cfg.Network.ProbeAddress
	interval := cfg.Network.ProbeInterval.String()
	timeout := cfg.Network.ProbeTimeout.String()
	startOnline := cfg.Network.StartOnline

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Probe Address").
				Description("host:port dialed to check connectivity (empty = endpoint host)").
				Value(&address),
			huh.NewInput().
				Title("Probe Interval").
				Value(&interval).
				Validate(positiveDuration),
			huh.NewInput().
				Title("Probe Timeout").
				Value(&timeout).
				Validate(positiveDuration),
			huh.NewConfirm().
				Title("Assume online at start?").
				Value(&startOnline),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Network.ProbeAddress = address
	cfg.Network.ProbeInterval, _ = time.ParseDuration(interval)
	cfg.Network.ProbeTimeout, _ = time.ParseDuration(timeout)
	cfg.Network.StartOnline = startOnline
	return nil
}

func editNotifications(cfg *config.Config) error {
	enabled := cfg.Notifications.Enabled
	notifType := cfg.Notifications.Type
	if notifType == "" {
		notifType = "desktop"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable notifications?").
				Description("Capture state, finished segments and failures").
				Value(&enabled),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Notification Type").
				Options(
					huh.NewOption("Desktop notifications (notify-send)", "desktop"),
					huh.NewOption("Log to console only", "log"),
					huh.NewOption("None (silent)", "none"),
				).
				Value(&notifType),
		).WithHideFunc(func() bool { return !enabled }),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Notifications.Enabled = enabled
	cfg.Notifications.Type = notifType
	return nil
}

func editAPI(cfg *config.Config) error {
	enabled := cfg.API.Enabled
	address := cfg.API.Address

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Serve the observer API?").
				Description("Read-only HTTP view of sessions and pipeline health").
				Value(&enabled),
			huh.NewInput().
				Title("Listen Address").
				Value(&address).
				Validate(nonEmpty),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.API.Enabled = enabled
	cfg.API.Address = address
	return nil
}

func showSummary(cfg *config.Config) (bool, error) {
	fmt.Println()
	fmt.Println(Summary(cfg))
	fmt.Println()

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Affirmative("Save").
				Negative("Cancel").
				Value(&confirmed),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}

// Summary renders the settings shown before saving.
func Summary(cfg *config.Config) string {
	line := func(label, value string) string {
		return fmt.Sprintf("  %s %s\n", StyleLabel.Render(label), value)
	}

	s := StyleHeader.Render("Configuration Summary") + "\n"
	s += line("Transcription:", fmt.Sprintf("%s (%s)", cfg.Transcription.Provider, cfg.Transcription.Model))
	if cfg.Transcription.Endpoint != "" {
		s += line("Endpoint:", cfg.Transcription.Endpoint)
	}
	if cfg.Transcription.APIKey != "" {
		s += line("API key:", maskAPIKey(cfg.Transcription.APIKey))
	}
	s += line("Retry:", fmt.Sprintf("%d attempts, %d^n × %s", cfg.Retry.RetryLimit, cfg.Retry.BackoffBase, cfg.Retry.BackoffUnit))
	s += line("Fallback:", cfg.Fallback.Provider)
	s += line("Segments:", fmt.Sprintf("every %ds", cfg.Segmenter.SegmentIntervalSeconds))
	s += line("Notifications:", formatNotificationsLabel(cfg))
	s += line("API:", formatAPILabel(cfg))
	return s
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}

func nonEmpty(s string) error {
	if s == "" {
		return fmt.Errorf("required")
	}
	return nil
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if n <= 0 {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}

func intAtMost(limit int) func(string) error {
	return func(s string) error {
		if err := positiveInt(s); err != nil {
			return err
		}
		if n, _ := strconv.Atoi(s); n > limit {
			return fmt.Errorf("must be at most %d", limit)
		}
		return nil
	}
}

func positiveDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("must be a duration like 500ms or 2s")
	}
	if d <= 0 {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}

// clearScreen clears the terminal screen
func clearScreen() {
	output := termenv.NewOutput(os.Stdout)
	output.ClearScreen()
}

func getTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	t.Focused.Description = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Focused.Base = lipgloss.NewStyle().BorderForeground(ColorPrimary)
	t.Focused.SelectedOption = lipgloss.NewStyle().Foreground(ColorSecondary)
	t.Focused.UnselectedOption = lipgloss.NewStyle().Foreground(ColorText)

	t.Blurred.Title = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Blurred.Description = lipgloss.NewStyle().Foreground(ColorSubtle)

	return t
}
