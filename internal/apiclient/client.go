// Package apiclient talks to the setwatch REST API.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/setwatch/setwatch/internal/model"
	"github.com/tidwall/gjson"
)

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 64 * 1024

// Client implements the TUI's collection and job clients over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the API rooted at baseURL, e.g. http://127.0.0.1:5000.
// A zero timeout leaves deadlines to the request context.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := neturl.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("apiclient: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("apiclient: unsupported scheme %q", u.Scheme)
	}
	return &Client{
		baseURL: u.String(),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// FetchPage returns one page of a collection. A non-empty search uses the
// search endpoint.
func (c *Client) FetchPage(ctx context.Context, q model.PageQuery) (model.PagedResult, error) {
	params := neturl.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("per_page", strconv.Itoa(q.PerPage))

	path := "/api/songs/" + neturl.PathEscape(string(q.Collection))
	if q.Search != "" {
		path = "/api/search/" + neturl.PathEscape(string(q.Collection))
		params.Set("q", q.Search)
	}

	var result model.PagedResult
	err := c.do(ctx, http.MethodGet, path+"?"+params.Encode(), &result)
	return result, err
}

// FetchAggregateCounts returns the per-collection totals.
func (c *Client) FetchAggregateCounts(ctx context.Context) (model.CollectionStats, error) {
	var stats model.CollectionStats
	err := c.do(ctx, http.MethodGet, "/api/stats", &stats)
	return stats, err
}

// FetchJobStatus returns the update job status.
func (c *Client) FetchJobStatus(ctx context.Context) (model.JobStatus, error) {
	var status model.JobStatus
	err := c.do(ctx, http.MethodGet, "/api/update-status", &status)
	return status, err
}

// TriggerJob asks the service to start an update run.
func (c *Client) TriggerJob(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/update", nil)
}

// Health reports whether the service answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil)
}

func (c *Client) do(ctx context.Context, method, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.NewFailure(model.FailureTransport, transportMessage(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := gjson.GetBytes(body, "error").String()
		if msg == "" {
			msg = fmt.Sprintf("Server returned %s", resp.Status)
		}
		return model.NewFailure(model.FailureServer, msg, fmt.Errorf("%s %s: %s", method, path, resp.Status))
	}

	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return model.NewFailure(model.FailureMalformed, "Malformed response from server", err)
	}
	return nil
}

func transportMessage(err error) string {
	if errors.Is(err, context.Canceled) {
		return "Request cancelled"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Request timed out"
	}
	return "Cannot reach setwatch service"
}
