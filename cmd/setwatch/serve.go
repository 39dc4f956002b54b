package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/setwatch/setwatch/internal/backup"
	"github.com/setwatch/setwatch/internal/duckdb"
	"github.com/setwatch/setwatch/internal/httpserver"
	"github.com/setwatch/setwatch/internal/refresh"
	"github.com/setwatch/setwatch/internal/socketrpc"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// shutdownDeadline bounds graceful shutdown after the first signal.
const shutdownDeadline = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the service: scheduled updates, HTTP API and socket RPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return runServer(cfg)
		},
	}
	cmd.Flags().String("api-addr", "", "HTTP API listen address")
	cmd.Flags().String("socket-path", "", "Unix socket path for the dashboard")
	cmd.Flags().Int("update-interval-minutes", 0, "scheduled update interval in minutes (0 disables)")
	cmd.Flags().String("playlist-url", "", "playlist JSON endpoint")
	cmd.Flags().String("playlist-file", "", "local playlist YAML file")
	return cmd
}

func openStore(cfg appConfig, log *logrus.Entry) (*duckdb.Store, error) {
	store, err := duckdb.NewStore(cfg.DBPath,
		duckdb.WithQueryTimeout(cfg.QueryTimeout),
		duckdb.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	return store, nil
}

// runServer runs the update job scheduler and serves the HTTP API and socket RPC
// until SIGINT or SIGTERM.
func runServer(cfg appConfig) error {
	log, cleanupLogger := configureRuntimeLogger("setwatch", cfg.LogLevel, false)
	defer cleanupLogger()

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	source, sourceName, err := selectSource(buildSourcePlugins(sourceConfig(cfg)), log)
	if err != nil {
		return err
	}

	runner, err := refresh.New(source, store, store, refresh.Config{
		IntervalMinutes: cfg.UpdateIntervalMinutes,
		FetchTimeout:    cfg.FetchTimeout,
		Logger:          log,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize update job: %w", err)
	}
	defer runner.Close()
	if err := runner.Restore(context.Background()); err != nil {
		log.WithError(err).Warn("could not restore last update run")
	}

	// Start retention cleaner for expired removed tracks
	retentionCleaner := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{
		RetentionDays: cfg.RemovedRetentionDays,
		Logger:        log,
	})
	if retentionCleaner != nil {
		defer retentionCleaner.Stop()
	}

	backupManager, err := backup.New(store, backup.Config{
		Enabled:  cfg.BackupEnabled,
		Interval: cfg.BackupInterval,
		LocalDir: cfg.BackupDir,
		KeepLast: cfg.BackupKeep,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize backups: %w", err)
	}
	if backupManager != nil {
		backupManager.Start()
		defer backupManager.Stop()
	}

	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, store, runner, log)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer func() {
			if err := apiServer.Stop(); err != nil {
				log.WithError(err).Warn("http api shutdown")
			}
		}()
	}

	// Socket RPC serves the dashboard.
	sockServer := socketrpc.NewServer(cfg.SocketPath, store, runner, log)
	if err := sockServer.Start(); err != nil {
		log.WithError(err).Warn("failed to start socket server")
	} else {
		defer sockServer.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(shutdownDeadline)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	runner.Start()
	printStartupBanner(cfg, sourceName)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server exited with error")
	}

	log.Info("shutting down")
	return nil
}

func cleanupSocket(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

func printStartupBanner(cfg appConfig, sourceName string) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ┌─┐┌─┐┌┬┐┬ ┬┌─┐┌┬┐┌─┐┬ ┬
    └─┐├┤  │ │││├─┤ │ │  ├─┤
    └─┘└─┘ ┴ └┴┘┴ ┴ ┴ └─┘┴ ┴`)

	row := func(mark, label, value string) string {
		return fmt.Sprintf("    %s  %-14s %s", mark, label, value)
	}

	lines := []string{"", logo, "    " + dim.Render("v"+version), ""}
	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator, "")

	lines = append(lines, bold.Render("    Gateway"), "")
	if cfg.APIEnabled {
		lines = append(lines, row(check, "HTTP API", cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, row(dot, "HTTP API", dim.Render("disabled")))
	}
	lines = append(lines, row(check, "Unix Socket", cyan.Render(shortenPath(cfg.SocketPath))), "")

	lines = append(lines, bold.Render("    Storage"), "")
	lines = append(lines, row(check, "Database", dim.Render(shortenPath(cfg.DBPath))))
	if cfg.BackupEnabled {
		lines = append(lines, row(check, "Snapshots", dim.Render(shortenPath(cfg.BackupDir))))
	} else {
		lines = append(lines, row(dot, "Snapshots", dim.Render("disabled")))
	}
	if cfg.RemovedRetentionDays > 0 {
		lines = append(lines, row(check, "Retention", dim.Render(fmt.Sprintf("%d days", cfg.RemovedRetentionDays))))
	} else {
		lines = append(lines, row(dot, "Retention", dim.Render("keep forever")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Update Job"), "")
	playlistTarget := cfg.PlaylistURL
	if sourceName == "file" {
		playlistTarget = shortenPath(cfg.PlaylistFile)
	}
	lines = append(lines, row(check, "Playlist", dim.Render(sourceName+"  "+playlistTarget)))
	if cfg.UpdateIntervalMinutes > 0 {
		lines = append(lines, row(check, "Schedule", dim.Render(fmt.Sprintf("every %d min", cfg.UpdateIntervalMinutes))))
	} else {
		lines = append(lines, row(dot, "Schedule", dim.Render("manual only")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"), "")
	if cfg.ConfigPath != "" {
		lines = append(lines, row(check, "Config File", dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, row(dot, "Config File", dim.Render("default (no file)")))
	}

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"), "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
