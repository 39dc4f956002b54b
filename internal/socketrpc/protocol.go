package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes model.TrackQuerier and model.JobController
// over a Unix domain socket, one JSON document per line.
//
//   Method            Params                                                 Result
//   ───────────────   ────────────────────────────────────────────────────   ─────────────────────
//   FetchPage         {collection, page, per_page, search}                   PagedResult
//   CollectionStats   (none)                                                 CollectionStats
//   JobStatus         (none)                                                 JobStatus
//   TriggerJob        (none)                                                 {"message": string}
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params (including an unknown collection)
//   -32603  Internal error (marshal failure)
//   -32000  Application error (query failure)
//   -32001  Trigger rejected, an update is already running

// Error codes returned in RPCError.Code.
const (
	CodeParseError      = -32700
	CodeMethodNotFound  = -32601
	CodeInvalidParams   = -32602
	CodeInternalError   = -32603
	CodeAppError        = -32000
	CodeTriggerRejected = -32001
)

// Method names.
const (
	MethodFetchPage       = "FetchPage"
	MethodCollectionStats = "CollectionStats"
	MethodJobStatus       = "JobStatus"
	MethodTriggerJob      = "TriggerJob"
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// TriggerResult is the result of a TriggerJob call.
type TriggerResult struct {
	Message string `json:"message"`
}

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/setwatch/setwatch.sock, falling back to
// ~/.local/state/setwatch/setwatch.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "setwatch", "setwatch.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/setwatch.sock"
	}
	return filepath.Join(home, ".local", "state", "setwatch", "setwatch.sock")
}
