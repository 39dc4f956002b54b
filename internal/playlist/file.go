package playlist

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/setwatch/setwatch/internal/model"
	"gopkg.in/yaml.v3"
)

// fileDocument is the on-disk layout of a playlist file.
type fileDocument struct {
	PlaylistURL string  `yaml:"playlist_url"`
	Tracks      []entry `yaml:"tracks"`
}

// FileSource reads a playlist from a local YAML file on every fetch, so
// edits to the file show up on the next update run.
type FileSource struct {
	path string
}

// NewFileSource builds a source for path.
func NewFileSource(path string) (*FileSource, error) {
	if path == "" {
		return nil, errors.New("playlist: file path is required")
	}
	return &FileSource{path: path}, nil
}

// Fetch reads and parses the file.
func (s *FileSource) Fetch(ctx context.Context) ([]model.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("playlist: read %s: %w", s.path, err)
	}
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("playlist: parse %s: %w", s.path, err)
	}
	playlistURL := doc.PlaylistURL
	if playlistURL == "" {
		playlistURL = "file://" + s.path
	}
	return toTracks(doc.Tracks, playlistURL), nil
}
