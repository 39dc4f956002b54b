// Command setwatch-tui is the terminal dashboard for a running setwatch service.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/setwatch/setwatch/internal/apiclient"
	"github.com/setwatch/setwatch/internal/socketrpc"
	"github.com/setwatch/setwatch/internal/tui"
	"github.com/setwatch/setwatch/internal/viewsync"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

// remote is what a transport provides to the view controller.
type remote interface {
	viewsync.CollectionClient
	viewsync.JobClient
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "setwatch-tui",
		Short:         "Terminal dashboard for the setwatch service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			cfg, err := loadCLIConfig(cmd)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return runTUI(cfg)
		},
	}
	cmd.Flags().String("config", "", "config file (default is $HOME/.config/setwatch/config.yml)")
	cmd.Flags().String("socket", "", "override socket path to connect to the setwatch service")
	cmd.Flags().String("api-url", "", "override the setwatch HTTP API base URL")
	cmd.Flags().String("transport", "", "how to reach the service: socket or http")
	cmd.Flags().Bool("version", false, "print version information")
	return cmd
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "setwatch-tui - Dashboard Client\n")
	fmt.Fprintf(w, "  Version:    %s\n", version)
	fmt.Fprintf(w, "  Commit:     %s\n", commit)
	fmt.Fprintf(w, "  Built:      %s\n", buildTime)
	fmt.Fprintf(w, "  Go version: %s\n", goVersion)
}

func runTUI(cfg cliConfig) error {
	log, cleanupLogger := configureTUILogger(cfg.LogLevel)
	defer cleanupLogger()

	collections, initial, err := cfg.collectionList()
	if err != nil {
		return err
	}

	client, source, closeClient, err := dialRemote(cfg)
	if err != nil {
		return err
	}
	defer closeClient()

	surface := tui.NewSurface()
	ctrl, err := viewsync.NewController(viewsync.Config{
		Collections:         collections,
		InitialCollection:   initial,
		PerPage:             cfg.PerPage,
		RequestTimeout:      cfg.RequestTimeout,
		AmbientPolling:      cfg.AmbientPoll,
		AmbientInterval:     cfg.AmbientInterval,
		PostTriggerPolling:  cfg.PostTriggerPoll,
		PostTriggerInterval: cfg.PostTriggerInterval,
		FollowScheduledRuns: cfg.FollowScheduledUpdates,
		Logger:              log,
	}, client, client, surface)
	if err != nil {
		return err
	}
	defer ctrl.Teardown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	err = tui.Run(ctx, ctrl, surface, tui.Options{
		Collections:       collections,
		InitialCollection: initial,
		DataSource:        source,
	})
	if err != nil && (strings.Contains(err.Error(), "TTY") || strings.Contains(err.Error(), "/dev/tty")) {
		return fmt.Errorf("TUI requires a real terminal")
	}
	return err
}

// dialRemote connects the configured transport. The returned string names it
// for the status line.
func dialRemote(cfg cliConfig) (remote, string, func(), error) {
	switch cfg.Transport {
	case transportHTTP:
		client, err := apiclient.New(cfg.APIURL, 0)
		if err != nil {
			return nil, "", nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer cancel()
		if err := client.Health(ctx); err != nil {
			return nil, "", nil, fmt.Errorf("cannot reach setwatch API at %s: %w\nIs the service running? Start it with: setwatch serve", cfg.APIURL, err)
		}
		return client, "http " + cfg.APIURL, func() {}, nil
	default:
		client, err := socketrpc.Dial(cfg.SocketPath)
		if err != nil {
			return nil, "", nil, fmt.Errorf("cannot connect to setwatch service at %s: %w\nIs the service running? Start it with: setwatch serve", cfg.SocketPath, err)
		}
		return client, "socket", func() { _ = client.Close() }, nil
	}
}

// configureTUILogger writes logs to ~/.local/state/setwatch/setwatch-tui.log.
// The dashboard owns the terminal, so logs are discarded when the file cannot
// be opened.
func configureTUILogger(level string) (*logrus.Entry, func()) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	logger.SetOutput(io.Discard)
	entry := logrus.NewEntry(logger)

	home, err := os.UserHomeDir()
	if err != nil {
		return entry, func() {}
	}
	logDir := filepath.Join(home, ".local", "state", "setwatch")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return entry, func() {}
	}
	f, err := os.OpenFile(filepath.Join(logDir, "setwatch-tui.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return entry, func() {}
	}
	logger.SetOutput(f)
	return entry, func() { _ = f.Close() }
}
