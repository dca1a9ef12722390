package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes model.QueryService over a Unix domain socket.
// Each method maps 1:1 to the QueryService interface.
//
//   Method                 Params                                        Result
//   ───────────────────    ────────────────────────────────────────────  ──────────────
//   ListQueries            (none)                                        []Query
//   GetQuery               {ID: int64}                                   Query
//   GetDataSource          {ID: int64}                                   DataSource
//   Execute                {Request: ExecuteRequest}                     QueryResult
//   PollJob                {JobID: string}                               QueryResult
//   CancelJob              {JobID: string}                               null
//   UpdateQuery            {ID: int64, Patch: QueryPatch}                Query
//   SaveVisualization      {Visualization: Visualization}                Visualization
//   DeleteVisualization    {ID: int64}                                   null
//   AddWidget              {Dashboard: string, VisualizationID: int64}   Widget
//   EmbedURL               {QueryID: int64, VisualizationID: int64}      string
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params
//   -32603  Internal error (marshal failure)
//   -32000  Application error (service failure, message preserved)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
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

const (
	codeParse          = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeApplication    = -32000
)

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/queryview/queryview.sock, falling back to
// ~/.local/state/queryview/queryview.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "queryview", "queryview.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/queryview.sock"
	}
	return filepath.Join(home, ".local", "state", "queryview", "queryview.sock")
}
