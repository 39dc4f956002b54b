package main

import (
	"errors"
	"fmt"

	"github.com/setwatch/setwatch/internal/playlist"
	"github.com/setwatch/setwatch/internal/refresh"
	"github.com/sirupsen/logrus"
)

// PlaylistSourcePlugin is a small plugin primitive for wiring the playlist
// the update job reads.
type PlaylistSourcePlugin interface {
	Name() string
	Enabled() bool
	Build(log *logrus.Entry) (refresh.Source, error)
}

// SourcePluginConfig defines runtime source selection.
type SourcePluginConfig struct {
	URL        string
	TracksPath string
	Retries    uint
	FilePath   string
}

var (
	errNoPlaylistSource       = errors.New("no playlist source configured: set playlist-url or playlist-file")
	errConflictingPlaylistSrc = errors.New("playlist-url and playlist-file are mutually exclusive")
)

func buildSourcePlugins(cfg SourcePluginConfig) []PlaylistSourcePlugin {
	return []PlaylistSourcePlugin{
		httpSourcePlugin{url: cfg.URL, tracksPath: cfg.TracksPath, retries: cfg.Retries},
		fileSourcePlugin{path: cfg.FilePath},
	}
}

// selectSource builds the single enabled playlist source.
func selectSource(plugins []PlaylistSourcePlugin, log *logrus.Entry) (refresh.Source, string, error) {
	var enabled []PlaylistSourcePlugin
	for _, p := range plugins {
		if p.Enabled() {
			enabled = append(enabled, p)
		}
	}
	switch len(enabled) {
	case 0:
		return nil, "", errNoPlaylistSource
	case 1:
	default:
		return nil, "", errConflictingPlaylistSrc
	}

	plugin := enabled[0]
	src, err := plugin.Build(log)
	if err != nil {
		return nil, "", fmt.Errorf("playlist source %q: %w", plugin.Name(), err)
	}
	return src, plugin.Name(), nil
}

func sourceConfig(cfg appConfig) SourcePluginConfig {
	return SourcePluginConfig{
		URL:        cfg.PlaylistURL,
		TracksPath: cfg.PlaylistTracksPath,
		Retries:    uint(cfg.FetchRetries),
		FilePath:   cfg.PlaylistFile,
	}
}

type httpSourcePlugin struct {
	url        string
	tracksPath string
	retries    uint
}

func (p httpSourcePlugin) Name() string { return "http" }

func (p httpSourcePlugin) Enabled() bool { return p.url != "" }

func (p httpSourcePlugin) Build(log *logrus.Entry) (refresh.Source, error) {
	src, err := playlist.NewHTTPSource(playlist.HTTPConfig{
		URL:        p.url,
		TracksPath: p.tracksPath,
		Retries:    p.retries,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

type fileSourcePlugin struct {
	path string
}

func (p fileSourcePlugin) Name() string { return "file" }

func (p fileSourcePlugin) Enabled() bool { return p.path != "" }

func (p fileSourcePlugin) Build(_ *logrus.Entry) (refresh.Source, error) {
	src, err := playlist.NewFileSource(p.path)
	if err != nil {
		return nil, err
	}
	return src, nil
}
