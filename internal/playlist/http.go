package playlist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/setwatch/setwatch/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// DefaultTracksPath is the gjson path of the track array in a playlist document.
const DefaultTracksPath = "tracks"

// maxBodyBytes bounds the playlist document size.
const maxBodyBytes = 32 << 20

// HTTPConfig configures an HTTPSource.
type HTTPConfig struct {
	URL        string
	TracksPath string
	Retries    uint
	Client     *http.Client
	Logger     *logrus.Entry
	// InitialBackoff overrides the first retry delay.
	InitialBackoff time.Duration
}

// HTTPSource reads a playlist from a JSON document served over HTTP.
// Each element under TracksPath is read with these paths:
//
//	permalink_url                           identity
//	title                                   track title
//	publisher_metadata.artist | artist      credited artist
//	user.username | uploader                uploader
//	duration                                milliseconds
type HTTPSource struct {
	url        string
	tracksPath string
	retries    uint
	initial    time.Duration
	client     *http.Client
	log        *logrus.Entry
}

// NewHTTPSource validates cfg and builds a source.
func NewHTTPSource(cfg HTTPConfig) (*HTTPSource, error) {
	if cfg.URL == "" {
		return nil, errors.New("playlist: url is required")
	}
	if cfg.TracksPath == "" {
		cfg.TracksPath = DefaultTracksPath
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	return &HTTPSource{
		url:        cfg.URL,
		tracksPath: cfg.TracksPath,
		retries:    cfg.Retries,
		initial:    cfg.InitialBackoff,
		client:     cfg.Client,
		log:        cfg.Logger.WithFields(logrus.Fields{"component": "playlist", "url": cfg.URL}),
	}, nil
}

// Fetch downloads and parses the playlist. Transport errors and 5xx/429
// responses are retried with exponential backoff; other failures are not.
func (s *HTTPSource) Fetch(ctx context.Context) ([]model.Track, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.initial

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		return s.get(ctx)
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(s.retries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.WithError(err).WithField("retry_in", next).Warn("playlist fetch failed, retrying")
		}),
	)
	if err != nil {
		return nil, err
	}
	return s.parse(body)
}

func (s *HTTPSource) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("playlist: build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("playlist: get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("playlist: read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return nil, backoff.RetryAfter(secs)
		}
		return nil, fmt.Errorf("playlist: server returned %s", resp.Status)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("playlist: server returned %s", resp.Status)
	case resp.StatusCode >= 300:
		return nil, backoff.Permanent(fmt.Errorf("playlist: server returned %s", resp.Status))
	}
	return body, nil
}

func (s *HTTPSource) parse(body []byte) ([]model.Track, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("playlist: response is not valid JSON")
	}
	list := gjson.GetBytes(body, s.tracksPath)
	if !list.IsArray() {
		return nil, fmt.Errorf("playlist: no track array at %q", s.tracksPath)
	}

	var entries []entry
	list.ForEach(func(_, item gjson.Result) bool {
		entries = append(entries, entry{
			PermalinkURL: item.Get("permalink_url").String(),
			Title:        item.Get("title").String(),
			Artist:       firstNonEmpty(item, "publisher_metadata.artist", "artist"),
			Uploader:     firstNonEmpty(item, "user.username", "uploader"),
			DurationMS:   item.Get("duration").Float(),
		})
		return true
	})

	tracks := toTracks(entries, s.url)
	s.log.WithFields(logrus.Fields{"entries": len(entries), "tracks": len(tracks)}).Debug("parsed playlist")
	return tracks, nil
}

func firstNonEmpty(item gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := item.Get(p).String(); v != "" {
			return v
		}
	}
	return ""
}
