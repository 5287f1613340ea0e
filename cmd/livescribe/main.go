package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/leonardotrapani/livescribe/internal/bus"
	"github.com/leonardotrapani/livescribe/internal/config"
	"github.com/leonardotrapani/livescribe/internal/daemon"
	"github.com/leonardotrapani/livescribe/internal/deps"
	"github.com/leonardotrapani/livescribe/internal/logging"
	"github.com/leonardotrapani/livescribe/internal/models/whisper"
	"github.com/leonardotrapani/livescribe/internal/store"
	"github.com/leonardotrapani/livescribe/internal/tui"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	noColor    bool
}

func (g *globalFlags) path() (string, error) {
	if g.configPath != "" {
		return g.configPath, nil
	}
	return config.GetConfigPath()
}

func (g *globalFlags) load() (*config.Config, string, error) {
	path, err := g.path()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, path, nil
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "livescribe",
		Short:         "Continuous segmented transcription with offline fallback",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.noColor {
				tui.DisableColor()
			} else {
				tui.DetectColor(cmd.OutOrStdout())
			}
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/livescribe/config.toml)")
	root.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		serveCmd(flags),
		sendCmd("toggle", "Arm or disarm capture", bus.CmdToggle),
		sendCmd("status", "Show capture and pipeline status", bus.CmdStatus),
		sendCmd("version", "Get protocol version", bus.CmdVersion),
		sendCmd("stop", "Stop the daemon", bus.CmdQuit),
		interruptCmd(),
		sessionsCmd(flags),
		modelsCmd(flags),
		configureCmd(flags),
		doctorCmd(flags),
	)

	return root
}

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := flags.path()
			if err != nil {
				return err
			}

			mgr, err := config.NewManagerAt(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg := mgr.GetConfig()
			logging.Setup(cfg.ToLoggingConfig())

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			d, err := daemon.Build(cfg)
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}
			defer d.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			mgr.OnReload(func(c *config.Config) {
				logging.Setup(c.ToLoggingConfig())
				d.SetConfig(c)
			})
			if err := mgr.StartWatching(ctx); err != nil {
				log := logging.Component("main")
				log.Warn().Err(err).Msg("config hot reload disabled")
			}
			defer mgr.Stop()

			return d.Run()
		},
	}
}

func sendCmd(use, short string, command byte) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd.OutOrStdout(), command, use)
		},
	}
}

func send(w io.Writer, command byte, action string) error {
	resp, err := bus.SendCommand(command)
	if err != nil {
		if errors.Is(err, bus.ErrDaemonNotRunning) {
			return fmt.Errorf("failed to %s: daemon not running (start it with `livescribe serve`)", action)
		}
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	fmt.Fprint(w, resp)
	if kind, _ := bus.ParseResponse(resp); kind == "ERR" {
		return fmt.Errorf("daemon rejected %s", action)
	}
	return nil
}

func interruptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interrupt",
		Short: "Signal an audio session interruption",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "begin",
			Short: "Pause segment production (e.g. a call took the microphone)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd.OutOrStdout(), bus.CmdInterruptBegin, "begin interruption")
			},
		},
		&cobra.Command{
			Use:   "end",
			Short: "Resume segment production",
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd.OutOrStdout(), bus.CmdInterruptEnd, "end interruption")
			},
		},
	)
	return cmd
}

func openStore(flags *globalFlags) (*store.SQLiteStore, error) {
	cfg, _, err := flags.load()
	if err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(cfg.StorePath())
}

func sessionsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Browse recorded sessions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(flags)
			if err != nil {
				return err
			}
			defer st.Close()

			sessions, err := st.ListSessions(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderSessions(sessions))
			return nil
		},
	}

	var textOnly bool
	show := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session's segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(flags)
			if err != nil {
				return err
			}
			defer st.Close()

			session, err := st.GetSession(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("session %s: %w", args[0], err)
			}
			segments, err := st.SessionSegments(cmd.Context(), session.ID)
			if err != nil {
				return fmt.Errorf("failed to load segments: %w", err)
			}

			if textOnly {
				fmt.Fprintln(cmd.OutOrStdout(), tui.Transcript(segments))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderSegments(*session, segments))
			return nil
		},
	}
	show.Flags().BoolVar(&textOnly, "text", false, "print only the joined transcription")

	del := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session, its segments and their audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(flags)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := store.PurgeSession(cmd.Context(), st, args[0]); err != nil {
				return fmt.Errorf("failed to delete session %s: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.StyleSuccess.Render("Deleted session "+args[0]))
			return nil
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

func modelsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage whisper.cpp models for the local fallback",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List available models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.load()
			if err != nil {
				return err
			}
			catalog := cfg.ModelCatalog()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, tui.RenderModels(whisper.List(), catalog.IsInstalled))
			fmt.Fprintln(out, tui.StyleMuted.Render("Models directory: "+catalog.Dir))
			return nil
		},
	}

	download := &cobra.Command{
		Use:   "download <model-id>",
		Short: "Download a model into the models directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			catalog := cfg.ModelCatalog()
			if catalog.IsInstalled(args[0]) {
				fmt.Fprintf(out, "%s is already installed\n", args[0])
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var lastPct int64 = -1
			err = catalog.Download(ctx, args[0], func(done, total int64) {
				if total <= 0 {
					return
				}
				if pct := done * 100 / total; pct != lastPct {
					lastPct = pct
					fmt.Fprintf(out, "\r%s %3d%% (%s / %s)", args[0], pct,
						humanize.Bytes(uint64(done)), humanize.Bytes(uint64(total)))
				}
			})
			fmt.Fprintln(out)
			if err != nil {
				return fmt.Errorf("failed to download %s: %w", args[0], err)
			}

			path, _ := catalog.Path(args[0])
			fmt.Fprintln(out, tui.StyleSuccess.Render("Downloaded "+args[0]+" to "+path))
			if cfg.Fallback.Provider != "whisper-cpp" || cfg.Fallback.ModelPath != args[0] {
				fmt.Fprintf(out, "Set fallback.provider = \"whisper-cpp\" and fallback.model_path = %q to use it.\n", args[0])
			}
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <model-id>",
		Short: "Delete a downloaded model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.load()
			if err != nil {
				return err
			}
			if err := cfg.ModelCatalog().Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.StyleSuccess.Render("Removed "+args[0]))
			return nil
		},
	}

	cmd.AddCommand(list, download, remove)
	return cmd
}

func configureCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := flags.load()
			if err != nil {
				return err
			}

			result, err := tui.Run(cfg)
			if err != nil {
				return fmt.Errorf("configuration wizard error: %w", err)
			}
			if result.Cancelled {
				fmt.Fprintln(cmd.OutOrStdout(), "Configuration cancelled.")
				return nil
			}

			if err := result.Config.Validate(); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), tui.StyleError.Render("Configuration validation failed: "+err.Error()))
				return err
			}
			if err := config.SaveTo(path, result.Config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out)
			fmt.Fprintln(out, tui.StyleSuccess.Render("Configuration saved successfully!"))
			fmt.Fprintf(out, "Config file location: %s\n", path)
			fmt.Fprintln(out, "A running daemon picks up the changes the next time capture is armed.")
			return nil
		},
	}
}

func doctorCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := flags.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "%s %s\n", tui.StyleLabel.Render("Config:"), path)
			cfgErr := cfg.Validate()
			if cfgErr != nil {
				fmt.Fprintf(out, "  %s\n", tui.StyleError.Render(cfgErr.Error()))
			} else {
				fmt.Fprintf(out, "  %s\n", tui.StyleSuccess.Render("valid"))
			}

			statuses := deps.Report(deps.Requirements{
				WhisperFallback:      cfg.Fallback.Provider == "whisper-cpp",
				DesktopNotifications: cfg.Notifications.Enabled && cfg.Notifications.Type == "desktop",
			})
			fmt.Fprintln(out, tui.StyleLabel.Render("Tools:"))
			for _, s := range statuses {
				fmt.Fprintf(out, "  %s\n", formatStatus(s))
			}

			missing := deps.Missing(statuses)
			if cfgErr != nil || len(missing) > 0 {
				return fmt.Errorf("%d problem(s) found", len(missing)+boolToInt(cfgErr != nil))
			}
			return nil
		},
	}
}

func formatStatus(s deps.Status) string {
	switch {
	case s.Installed:
		detail := s.Path
		if s.Version != "" {
			detail += " (" + s.Version + ")"
		}
		return tui.StyleSuccess.Render("✓ "+s.Name) + " " + tui.StyleMuted.Render(detail)
	case s.Required:
		return tui.StyleError.Render("✗ " + s.Name + " missing")
	default:
		return tui.StyleMuted.Render("- " + s.Name + " not installed (optional)")
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
