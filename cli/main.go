package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zhaobenny/ccwatch/cli/internal/config"
	"github.com/zhaobenny/ccwatch/cli/internal/output"
	"github.com/zhaobenny/ccwatch/internal/monitor"
)

const version = "0.3.0"

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// flags are the settings shared by every command. Flags set on the command
// line win over the config file.
type flags struct {
	configPath string
	root       string
	interval   time.Duration
	minRefresh time.Duration
	watch      bool
	workers    int
	logLevel   string

	jsonOut   bool
	compact   bool
	breakdown bool
}

func newRootCommand() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:     "ccwatch",
		Short:   "ccwatch is a live view of Claude Code token usage and cost.",
		Version: version,
		Example: `  ccwatch                        Refresh every 5s
  ccwatch --interval 30s --breakdown
  ccwatch --watch                Also refresh when logs change
  ccwatch once --json
  ccwatch config --interval 10s
  ccwatch service install`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLive(cmd, f)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "config file (default ~/.ccwatch.yaml)")
	pf.StringVar(&f.root, "root", "", "directory holding usage logs (default ~/.claude/projects)")
	pf.DurationVarP(&f.interval, "interval", "i", 0, "refresh interval (default 5s)")
	pf.DurationVar(&f.minRefresh, "min-refresh", 0, "minimum gap between change-triggered refreshes (default 1s)")
	pf.BoolVarP(&f.watch, "watch", "w", false, "refresh early when log files change")
	pf.IntVar(&f.workers, "workers", 0, "files read concurrently (default GOMAXPROCS)")
	pf.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "write one JSON object per refresh")
	cmd.Flags().BoolVarP(&f.compact, "compact", "c", false, "force compact table output")
	cmd.Flags().BoolVarP(&f.breakdown, "breakdown", "b", false, "show per-model breakdown")

	cmd.AddCommand(newOnceCommand(f))
	cmd.AddCommand(newConfigCommand(f))
	cmd.AddCommand(newServiceCommand(f))
	return cmd
}

func (f *flags) path() (string, error) {
	if f.configPath != "" {
		return f.configPath, nil
	}
	return config.DefaultPath()
}

// resolve merges the config file with any flags given on the command line
func (f *flags) resolve(cmd *cobra.Command) (config.Config, error) {
	path, err := f.path()
	if err != nil {
		return config.Config{}, err
	}
	file, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}

	cfg := *file
	changed := cmd.Flags().Changed
	if changed("root") {
		cfg.Root = f.root
	}
	if changed("interval") {
		cfg.Interval = f.interval
	}
	if changed("min-refresh") {
		cfg.MinRefresh = f.minRefresh
	}
	if changed("watch") {
		cfg.Watch = f.watch
	}
	if changed("workers") {
		cfg.Workers = f.workers
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg.WithDefaults()
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func loopConfig(cfg config.Config) monitor.Config {
	return monitor.Config{
		Root:       cfg.Root,
		Interval:   cfg.Interval,
		MinRefresh: cfg.MinRefresh,
		Suffix:     cfg.Suffix,
		Workers:    cfg.Workers,
		Rates:      *cfg.Rates,
	}
}

// newLoop builds the refresh loop, attaching a file watcher when enabled
func newLoop(cfg config.Config, r monitor.Renderer, logger *slog.Logger) (*monitor.Loop, func(), error) {
	opts := []monitor.Option{monitor.WithLogger(logger)}
	cleanup := func() {}

	if cfg.Watch {
		w, err := monitor.NewWatcher(cfg.Root, cfg.Suffix, logger)
		if err != nil {
			logger.Warn("file watching disabled", "root", cfg.Root, "err", err)
		} else {
			opts = append(opts, monitor.WithTrigger(w))
			cleanup = func() { w.Close() }
		}
	}

	loop, err := monitor.New(loopConfig(cfg), r, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return loop, cleanup, nil
}

func (f *flags) renderer(w io.Writer, live bool) monitor.Renderer {
	if f.jsonOut {
		return output.NewJSONRenderer(w)
	}
	return output.NewTerminalRenderer(w, output.TableOptions{
		ForceCompact: f.compact,
		Breakdown:    f.breakdown,
		Clear:        live,
	})
}

func runLive(cmd *cobra.Command, f *flags) error {
	cfg, err := f.resolve(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return err
	}

	loop, cleanup, err := newLoop(cfg, f.renderer(cmd.OutOrStdout(), true), logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return loop.Run(ctx)
}

func newOnceCommand(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Scan once, print the totals and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
			if err != nil {
				return err
			}

			r := f.renderer(cmd.OutOrStdout(), false)
			loop, err := monitor.New(loopConfig(cfg), r, monitor.WithLogger(logger))
			if err != nil {
				return err
			}
			frame, err := loop.Scan()
			if err != nil {
				return err
			}
			return r.Render(frame)
		},
	}
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "output as JSON")
	cmd.Flags().BoolVarP(&f.compact, "compact", "c", false, "force compact table output")
	cmd.Flags().BoolVarP(&f.breakdown, "breakdown", "b", false, "show per-model breakdown")
	return cmd
}

func newConfigCommand(f *flags) *cobra.Command {
	var show bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or update the saved configuration",
		Example: `  ccwatch config --interval 10s --watch
  ccwatch config --root /mnt/logs/claude
  ccwatch config --show`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := f.path()
			if err != nil {
				return err
			}

			if show {
				cfg, err := f.resolve(cmd)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "# %s\n", path)
				return yaml.NewEncoder(out).Encode(cfg)
			}

			saved, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			changed := cmd.Flags().Changed
			if !changed("root") && !changed("interval") && !changed("min-refresh") &&
				!changed("watch") && !changed("workers") && !changed("log-level") {
				return cmd.Usage()
			}

			if changed("root") {
				saved.Root = f.root
			}
			if changed("interval") {
				saved.Interval = f.interval
			}
			if changed("min-refresh") {
				saved.MinRefresh = f.minRefresh
			}
			if changed("watch") {
				saved.Watch = f.watch
			}
			if changed("workers") {
				saved.Workers = f.workers
			}
			if changed("log-level") {
				saved.LogLevel = f.logLevel
			}
			if err := saved.Validate(); err != nil {
				return err
			}
			if err := config.Save(path, saved); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Configuration saved.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "show the effective configuration")
	return cmd
}
