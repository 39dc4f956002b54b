package socketrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/setwatch/setwatch/internal/model"
)

const (
	dialTimeout = 5 * time.Second
	// callTimeout bounds a call whose context carries no deadline.
	callTimeout = 30 * time.Second
)

// Client implements the TUI's collection and job clients over a Unix domain
// socket using JSON-RPC 2.0. Calls are serialized on one connection; a broken
// connection is redialed on the next call.
type Client struct {
	socketPath string

	mu      sync.Mutex
	conn    net.Conn
	nextID  int
	scanner *bufio.Scanner
	encoder *json.Encoder
}

// Dial connects to the socket RPC server at the given path.
func Dial(socketPath string) (*Client, error) {
	c := &Client{socketPath: socketPath}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	conn, err := net.DialTimeout("unix", c.socketPath, dialTimeout)
	if err != nil {
		return fmt.Errorf("socketrpc: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	c.conn = conn
	c.scanner = scanner
	c.encoder = json.NewEncoder(conn)
	return nil
}

func (c *Client) dropConn() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.scanner = nil
	c.encoder = nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// call performs a JSON-RPC call and unmarshals the result into dest.
// Errors are *model.Failure values.
func (c *Client) call(ctx context.Context, method string, params any, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return model.NewFailure(model.FailureTransport, "Request cancelled", err)
	}
	if c.conn == nil {
		if err := c.connect(); err != nil {
			return model.NewFailure(model.FailureTransport, "Cannot reach setwatch service", err)
		}
	}

	c.nextID++
	req := Request{JSONRPC: "2.0", ID: c.nextID, Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("socketrpc: marshal params: %w", err)
		}
		req.Params = data
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(callTimeout)
	}
	_ = c.conn.SetDeadline(deadline)
	conn := c.conn
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if err := c.encoder.Encode(req); err != nil {
		c.dropConn()
		return model.NewFailure(model.FailureTransport, "Connection to setwatch service lost", err)
	}

	if !c.scanner.Scan() {
		err := c.scanner.Err()
		if err == nil {
			err = errors.New("connection closed")
		}
		c.dropConn()
		return model.NewFailure(model.FailureTransport, "Connection to setwatch service lost", err)
	}
	_ = c.conn.SetDeadline(time.Time{})

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return model.NewFailure(model.FailureMalformed, "Malformed response from setwatch service", err)
	}
	if resp.Error != nil {
		return model.NewFailure(model.FailureServer, resp.Error.Message, resp.Error)
	}
	if resp.ID != req.ID {
		c.dropConn()
		return model.NewFailure(model.FailureMalformed, "Malformed response from setwatch service",
			fmt.Errorf("response id %d does not match request id %d", resp.ID, req.ID))
	}

	if dest != nil {
		if err := json.Unmarshal(resp.Result, dest); err != nil {
			return model.NewFailure(model.FailureMalformed, "Malformed response from setwatch service", err)
		}
	}
	return nil
}

// FetchPage returns one page of a collection.
func (c *Client) FetchPage(ctx context.Context, q model.PageQuery) (model.PagedResult, error) {
	var result model.PagedResult
	err := c.call(ctx, MethodFetchPage, q, &result)
	return result, err
}

// FetchAggregateCounts returns the per-collection totals.
func (c *Client) FetchAggregateCounts(ctx context.Context) (model.CollectionStats, error) {
	var result model.CollectionStats
	err := c.call(ctx, MethodCollectionStats, nil, &result)
	return result, err
}

// FetchJobStatus returns the update job status.
func (c *Client) FetchJobStatus(ctx context.Context) (model.JobStatus, error) {
	var result model.JobStatus
	err := c.call(ctx, MethodJobStatus, nil, &result)
	return result, err
}

// TriggerJob asks the service to start an update run.
func (c *Client) TriggerJob(ctx context.Context) error {
	var result TriggerResult
	return c.call(ctx, MethodTriggerJob, nil, &result)
}
