package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/setwatch/setwatch/internal/backup"
	"github.com/setwatch/setwatch/internal/model"
	"github.com/setwatch/setwatch/internal/refresh"
	"github.com/spf13/cobra"
)

func newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Run the update job once and print its result",
		Long: `Run the update job once against the configured playlist and print the
resulting counts. DuckDB allows a single writer, so stop "setwatch serve" on the
same database first, or trigger a run through its API instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			log, cleanup := configureRuntimeLogger("setwatch", cfg.LogLevel, true)
			defer cleanup()

			store, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			source, _, err := selectSource(buildSourcePlugins(sourceConfig(cfg)), log)
			if err != nil {
				return err
			}
			runner, err := refresh.New(source, store, store, refresh.Config{
				FetchTimeout: cfg.FetchTimeout,
				Logger:       log,
			})
			if err != nil {
				return err
			}
			defer runner.Close()

			result, err := runner.RunNow(cmd.Context())
			if err != nil {
				return err
			}
			printUpdateResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().String("playlist-url", "", "playlist JSON endpoint")
	cmd.Flags().String("playlist-file", "", "local playlist YAML file")
	return cmd
}

func printUpdateResult(w io.Writer, r model.UpdateResult) {
	fmt.Fprintln(w, model.JobSucceededMessage)
	fmt.Fprintf(w, "  Current:  %s\n", humanize.Comma(int64(r.CurrentCount)))
	fmt.Fprintf(w, "  All:      %s\n", humanize.Comma(int64(r.AllCount)))
	fmt.Fprintf(w, "  Removed:  %s\n", humanize.Comma(int64(r.RemovedCount)))
	fmt.Fprintf(w, "  New:      +%d\n", r.NewTracks)
	fmt.Fprintf(w, "  Dropped:  -%d\n", r.RemovedTracks)
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print collection counts and the last update run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			log, cleanup := configureRuntimeLogger("setwatch", cfg.LogLevel, true)
			defer cleanup()

			store, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			stats, err := store.CollectionStats(ctx)
			if err != nil {
				return err
			}
			last, err := store.LastRun(ctx)
			if err != nil {
				return err
			}
			schema, err := store.SchemaState(ctx)
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats, last, time.Now())
			fmt.Fprintf(cmd.OutOrStdout(), "Schema:   v%d of v%d\n", schema.Current, schema.Latest)
			return nil
		},
	}
}

func printStats(w io.Writer, stats model.CollectionStats, last *model.UpdateRun, now time.Time) {
	fmt.Fprintf(w, "Current:  %s\n", humanize.Comma(stats.Current))
	fmt.Fprintf(w, "All:      %s (%s active, %s removed)\n",
		humanize.Comma(stats.All), humanize.Comma(stats.AllActive), humanize.Comma(stats.AllRemoved))
	fmt.Fprintf(w, "Removed:  %s\n", humanize.Comma(stats.Removed))
	if last == nil {
		fmt.Fprintln(w, "Last update: never")
		return
	}
	fmt.Fprintf(w, "Last update: %s (%s)\n", humanize.RelTime(last.FinishedAt, now, "ago", "from now"), last.Message)
}

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write one database snapshot to the backup directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			log, cleanup := configureRuntimeLogger("setwatch", cfg.LogLevel, true)
			defer cleanup()

			store, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			mgr, err := backup.New(store, backup.Config{
				Enabled:  true,
				LocalDir: cfg.BackupDir,
				KeepLast: cfg.BackupKeep,
				Logger:   log,
			})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.QueryTimeout)
			defer cancel()
			path, err := mgr.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().String("backup-dir", "", "directory for database snapshots")
	return cmd
}
