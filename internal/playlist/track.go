// Package playlist fetches the live playlist that the update job reconciles
// against the store. Two sources are provided: a JSON HTTP endpoint and a
// local YAML file.
package playlist

import (
	"math"
	"strings"

	"github.com/setwatch/setwatch/internal/model"
)

// entry is one playlist item as published by a source, before it is mapped
// onto a model.Track.
type entry struct {
	PermalinkURL string  `yaml:"permalink_url"`
	Title        string  `yaml:"title"`
	Artist       string  `yaml:"artist"`
	Uploader     string  `yaml:"uploader"`
	DurationMS   float64 `yaml:"duration_ms"`
}

// toTrack maps an entry onto a Track. The permalink is the identity, the
// display title is "artist - title" with the credited artist falling back to
// the uploader, and the duration is converted to seconds.
func (e entry) toTrack(playlistURL string) (model.Track, bool) {
	id := strings.TrimSpace(e.PermalinkURL)
	if id == "" {
		return model.Track{}, false
	}
	artist := strings.TrimSpace(e.Artist)
	if artist == "" {
		artist = strings.TrimSpace(e.Uploader)
	}
	return model.Track{
		ID:              id,
		Title:           artist + " - " + strings.TrimSpace(e.Title),
		Artist:          strings.TrimSpace(e.Uploader),
		DurationSeconds: math.Round(e.DurationMS/10) / 100,
		PermalinkURL:    id,
		PlaylistURL:     playlistURL,
		Status:          model.StatusActive,
	}, true
}

func toTracks(entries []entry, playlistURL string) []model.Track {
	tracks := make([]model.Track, 0, len(entries))
	for _, e := range entries {
		if t, ok := e.toTrack(playlistURL); ok {
			tracks = append(tracks, t)
		}
	}
	return tracks
}
