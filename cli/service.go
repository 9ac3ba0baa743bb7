package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/zhaobenny/ccwatch/cli/internal/config"
	"github.com/zhaobenny/ccwatch/cli/internal/output"
)

// monitorService implements service.Interface for the headless refresh loop
type monitorService struct {
	cfg    config.Config
	cancel context.CancelFunc
	done   chan struct{}
	logger service.Logger
	exit   func(code int)
}

func (s *monitorService) Start(svc service.Service) error {
	logger, err := newLogger(os.Stderr, s.cfg.LogLevel)
	if err != nil {
		return err
	}
	loop, cleanup, err := newLoop(s.cfg, output.LogRenderer{Logger: logger}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	if s.exit == nil {
		s.exit = os.Exit
	}

	go func() {
		defer close(s.done)
		defer cleanup()
		if err := loop.Run(ctx); err != nil {
			logger.Error("refresh loop stopped", "err", err)
			if s.logger != nil {
				s.logger.Errorf("Refresh loop stopped: %v", err)
			}
			s.exit(1)
		}
	}()
	return nil
}

func (s *monitorService) Stop(svc service.Service) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	return nil
}

func newServiceCommand(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service [install|start|stop|uninstall|status|run]",
		Short: "Run the refresh loop as a background service that logs each snapshot",
		Example: `  ccwatch service install --interval 1m
  ccwatch service status
  ccwatch service uninstall`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"install", "start", "stop", "uninstall", "status", "run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return err
			}
			path, err := f.path()
			if err != nil {
				return err
			}

			svcConfig := &service.Config{
				Name:        "ccwatch",
				DisplayName: "ccwatch",
				Description: "Periodically totals Claude Code token usage and logs the estimated cost",
				Arguments:   serviceArguments(cmd, path),
			}

			svc := &monitorService{cfg: cfg}
			s, err := service.New(svc, svcConfig)
			if err != nil {
				return fmt.Errorf("creating service: %w", err)
			}

			out := cmd.OutOrStdout()
			switch args[0] {
			case "install":
				if err := s.Install(); err != nil {
					return fmt.Errorf("installing service: %w", err)
				}
				if err := s.Start(); err != nil {
					return fmt.Errorf("service installed but failed to start: %w", err)
				}
				fmt.Fprintln(out, "Service installed and started.")
				fmt.Fprintf(out, "Refresh interval: %s\n", cfg.Interval)

			case "start":
				if err := s.Start(); err != nil {
					return fmt.Errorf("starting service: %w", err)
				}
				fmt.Fprintln(out, "Service started.")

			case "stop":
				if err := s.Stop(); err != nil {
					return fmt.Errorf("stopping service: %w", err)
				}
				fmt.Fprintln(out, "Service stopped.")

			case "uninstall":
				_ = s.Stop()
				if err := s.Uninstall(); err != nil {
					return fmt.Errorf("uninstalling service: %w", err)
				}
				fmt.Fprintln(out, "Service uninstalled.")

			case "status":
				status, err := s.Status()
				if err != nil {
					fmt.Fprintf(out, "Service status: not installed or error (%v)\n", err)
					return nil
				}
				fmt.Fprintf(out, "Service status: %s\n", statusString(status))

			case "run":
				logger, err := s.Logger(nil)
				if err == nil {
					svc.logger = logger
				}
				return s.Run()

			default:
				return fmt.Errorf("unknown service command %q", args[0])
			}
			return nil
		},
	}
	return cmd
}

// serviceArguments rebuilds the command line the installed service runs with,
// keeping every setting given on the command line at install time.
func serviceArguments(cmd *cobra.Command, configPath string) []string {
	if abs, err := filepath.Abs(configPath); err == nil {
		configPath = abs
	}
	args := []string{"service", "run", "--config=" + configPath}
	for _, name := range []string{"root", "interval", "min-refresh", "watch", "workers", "log-level"} {
		fl := cmd.Flags().Lookup(name)
		if fl == nil || !fl.Changed {
			continue
		}
		value := fl.Value.String()
		if name == "root" {
			if abs, err := filepath.Abs(value); err == nil {
				value = abs
			}
		}
		args = append(args, fmt.Sprintf("--%s=%s", name, value))
	}
	return args
}

func statusString(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	}
	return "unknown"
}
