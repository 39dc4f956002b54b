package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/setwatch/setwatch/internal/httpserver"
	"github.com/setwatch/setwatch/internal/model"
	"github.com/setwatch/setwatch/internal/socketrpc"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	transportSocket = "socket"
	transportHTTP   = "http"
)

// cliConfig holds only TUI-relevant configuration.
type cliConfig struct {
	Transport              string        `mapstructure:"transport"`
	SocketPath             string        `mapstructure:"socket-path"`
	APIURL                 string        `mapstructure:"api-url"`
	Collections            []string      `mapstructure:"collections"`
	InitialCollection      string        `mapstructure:"initial-collection"`
	PerPage                int           `mapstructure:"per-page"`
	RequestTimeout         time.Duration `mapstructure:"request-timeout"`
	AmbientPoll            bool          `mapstructure:"ambient-poll"`
	AmbientInterval        time.Duration `mapstructure:"ambient-interval"`
	PostTriggerPoll        bool          `mapstructure:"post-trigger-poll"`
	PostTriggerInterval    time.Duration `mapstructure:"post-trigger-interval"`
	FollowScheduledUpdates bool          `mapstructure:"follow-scheduled-updates"`
	LogLevel               string        `mapstructure:"log-level"`
}

// flagKeys maps command-line flags onto the config keys they override.
var flagKeys = map[string]string{
	"socket":    "socket-path",
	"api-url":   "api-url",
	"transport": "transport",
}

func loadCLIConfig(cmd *cobra.Command) (cliConfig, error) {
	var cfg cliConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("SETWATCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	collections := make([]string, 0, len(model.KnownCollections))
	for _, c := range model.KnownCollections {
		collections = append(collections, string(c))
	}

	v.SetDefault("transport", transportSocket)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("api-url", "http://"+httpserver.DefaultAddr)
	v.SetDefault("collections", collections)
	v.SetDefault("initial-collection", string(model.CollectionCurrent))
	v.SetDefault("per-page", model.DefaultPerPage)
	v.SetDefault("request-timeout", model.DefaultRequestTimeout)
	v.SetDefault("ambient-poll", true)
	v.SetDefault("ambient-interval", model.DefaultAmbientInterval)
	v.SetDefault("post-trigger-poll", true)
	v.SetDefault("post-trigger-interval", model.DefaultPostTriggerInterval)
	v.SetDefault("follow-scheduled-updates", true)
	v.SetDefault("log-level", "info")

	configPath := ""
	if cmd != nil {
		for flag, key := range flagKeys {
			if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return cfg, fmt.Errorf("binding --%s: %w", flag, err)
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
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	if cfg.Transport != transportSocket && cfg.Transport != transportHTTP {
		return cfg, fmt.Errorf("invalid transport %q: want %s or %s", cfg.Transport, transportSocket, transportHTTP)
	}
	if cfg.PerPage <= 0 {
		return cfg, fmt.Errorf("invalid per-page: %d", cfg.PerPage)
	}
	if cfg.AmbientPoll && cfg.AmbientInterval <= 0 {
		return cfg, fmt.Errorf("invalid ambient-interval: %s", cfg.AmbientInterval)
	}
	if cfg.PostTriggerPoll && cfg.PostTriggerInterval <= 0 {
		return cfg, fmt.Errorf("invalid post-trigger-interval: %s", cfg.PostTriggerInterval)
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return cfg, fmt.Errorf("invalid log-level: %w", err)
	}
	if strings.HasPrefix(cfg.SocketPath, "~/") {
		cfg.SocketPath = filepath.Join(home, cfg.SocketPath[2:])
	}

	return cfg, nil
}

// collectionList validates the configured collection names.
func (c cliConfig) collectionList() ([]model.Collection, model.Collection, error) {
	out := make([]model.Collection, 0, len(c.Collections))
	for _, name := range c.Collections {
		col, ok := model.ParseCollection(strings.TrimSpace(name))
		if !ok {
			return nil, "", fmt.Errorf("%w: %q", model.ErrUnknownCollection, name)
		}
		out = append(out, col)
	}
	if len(out) == 0 {
		return nil, "", errors.New("collections: at least one collection is required")
	}
	initial := model.Collection(c.InitialCollection)
	if initial == "" {
		initial = out[0]
	}
	return out, initial, nil
}
