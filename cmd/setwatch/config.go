package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/setwatch/setwatch/internal/duckdb"
	"github.com/setwatch/setwatch/internal/httpserver"
	"github.com/setwatch/setwatch/internal/playlist"
	"github.com/setwatch/setwatch/internal/refresh"
	"github.com/setwatch/setwatch/internal/socketrpc"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	defaultUpdateIntervalMinutes = 60
	defaultFetchRetries          = 3
	defaultRemovedRetention      = 0 // days, 0 = disabled
	defaultBackupInterval        = 6 * time.Hour
	defaultBackupKeep            = 24
	defaultLogLevel              = "info"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	DBPath       string        `mapstructure:"db-path"`
	APIEnabled   bool          `mapstructure:"api-enabled"`
	APIAddr      string        `mapstructure:"api-addr"`
	SocketPath   string        `mapstructure:"socket-path"`
	QueryTimeout time.Duration `mapstructure:"query-timeout"`

	PlaylistURL           string        `mapstructure:"playlist-url"`
	PlaylistFile          string        `mapstructure:"playlist-file"`
	PlaylistTracksPath    string        `mapstructure:"playlist-tracks-path"`
	UpdateIntervalMinutes int           `mapstructure:"update-interval-minutes"`
	FetchTimeout          time.Duration `mapstructure:"fetch-timeout"`
	FetchRetries          int           `mapstructure:"fetch-retries"`

	RemovedRetentionDays int `mapstructure:"removed-retention-days"`

	BackupEnabled  bool          `mapstructure:"backup-enabled"`
	BackupDir      string        `mapstructure:"backup-dir"`
	BackupInterval time.Duration `mapstructure:"backup-interval"`
	BackupKeep     int           `mapstructure:"backup-keep"`

	LogLevel   string `mapstructure:"log-level"`
	ConfigPath string `mapstructure:"-"` // not from config file
}

// boundFlags lists the command-line flags that override config keys of the
// same name when set.
var boundFlags = []string{
	"db-path", "log-level", "api-addr", "socket-path", "update-interval-minutes",
	"playlist-url", "playlist-file", "backup-dir",
}

func loadConfig(cmd *cobra.Command) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}
	dataDir := filepath.Join(home, ".local", "share", "setwatch")

	v := viper.New()
	v.SetEnvPrefix("SETWATCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("db-path", filepath.Join(dataDir, "setwatch.duckdb"))
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-addr", httpserver.DefaultAddr)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("query-timeout", duckdb.DefaultQueryTimeout)
	v.SetDefault("playlist-url", "")
	v.SetDefault("playlist-file", "")
	v.SetDefault("playlist-tracks-path", playlist.DefaultTracksPath)
	v.SetDefault("update-interval-minutes", defaultUpdateIntervalMinutes)
	v.SetDefault("fetch-timeout", refresh.DefaultFetchTimeout)
	v.SetDefault("fetch-retries", defaultFetchRetries)
	v.SetDefault("removed-retention-days", defaultRemovedRetention)
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-dir", filepath.Join(dataDir, "backups"))
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-keep", defaultBackupKeep)
	v.SetDefault("log-level", defaultLogLevel)

	configPath := ""
	if cmd != nil {
		for _, name := range boundFlags {
			if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(name, f); err != nil {
					return cfg, fmt.Errorf("binding --%s: %w", name, err)
				}
			}
		}
		configPath, _ = cmd.Flags().GetString("config")
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "setwatch", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	} else {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	if cfg.UpdateIntervalMinutes < 0 {
		return cfg, fmt.Errorf("invalid update-interval-minutes: %d", cfg.UpdateIntervalMinutes)
	}
	if cfg.FetchRetries < 0 {
		return cfg, fmt.Errorf("invalid fetch-retries: %d", cfg.FetchRetries)
	}
	if cfg.RemovedRetentionDays < 0 {
		return cfg, fmt.Errorf("invalid removed-retention-days: %d", cfg.RemovedRetentionDays)
	}
	if cfg.BackupEnabled && cfg.BackupInterval <= 0 {
		return cfg, fmt.Errorf("invalid backup-interval: %s", cfg.BackupInterval)
	}
	if cfg.BackupKeep < 0 {
		return cfg, fmt.Errorf("invalid backup-keep: %d", cfg.BackupKeep)
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return cfg, fmt.Errorf("invalid log-level: %w", err)
	}

	cfg.DBPath = expandHome(home, cfg.DBPath)
	cfg.SocketPath = expandHome(home, cfg.SocketPath)
	cfg.PlaylistFile = expandHome(home, cfg.PlaylistFile)
	cfg.BackupDir = expandHome(home, cfg.BackupDir)

	return cfg, nil
}

// expandHome expands a leading ~/ in path.
func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
