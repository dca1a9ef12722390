package socketrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/queryview/internal/model"
)

const defaultCallTimeout = 30 * time.Second

// Client implements model.QueryService over a Unix domain socket using JSON-RPC 2.0.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex
	nextID  int
	scanner *bufio.Scanner
	encoder *json.Encoder
}

var _ model.QueryService = (*Client)(nil)

// Dial connects to the socket RPC server at the given path.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("socketrpc: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	return &Client{
		conn:    conn,
		scanner: scanner,
		encoder: json.NewEncoder(conn),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call performs a JSON-RPC call and unmarshals the result into dest. The
// connection deadline follows ctx, capped at 30 seconds.
func (c *Client) call(ctx context.Context, method string, params interface{}, dest interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID

	paramsData, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("socketrpc: marshal params: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsData,
	}

	deadline := time.Now().Add(defaultCallTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("socketrpc: send: %w", err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return fmt.Errorf("socketrpc: read: %w", err)
		}
		return fmt.Errorf("socketrpc: connection closed")
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("socketrpc: unmarshal response: %w", err)
	}
	if resp.ID != id {
		return fmt.Errorf("socketrpc: response id %d does not match request %d", resp.ID, id)
	}

	if resp.Error != nil {
		return resp.Error
	}

	if dest != nil {
		if err := json.Unmarshal(resp.Result, dest); err != nil {
			return fmt.Errorf("socketrpc: unmarshal result: %w", err)
		}
	}
	return nil
}

func (c *Client) ListQueries(ctx context.Context) ([]model.Query, error) {
	var result []model.Query
	err := c.call(ctx, "ListQueries", map[string]interface{}{}, &result)
	return result, err
}

func (c *Client) GetQuery(ctx context.Context, id int64) (model.Query, error) {
	var result model.Query
	err := c.call(ctx, "GetQuery", map[string]interface{}{"ID": id}, &result)
	return result, err
}

func (c *Client) GetDataSource(ctx context.Context, id int64) (model.DataSource, error) {
	var result model.DataSource
	err := c.call(ctx, "GetDataSource", map[string]interface{}{"ID": id}, &result)
	return result, err
}

func (c *Client) Execute(ctx context.Context, req model.ExecuteRequest) (model.QueryResult, error) {
	var result model.QueryResult
	err := c.call(ctx, "Execute", map[string]interface{}{"Request": req}, &result)
	return result, err
}

func (c *Client) PollJob(ctx context.Context, jobID string) (model.QueryResult, error) {
	var result model.QueryResult
	err := c.call(ctx, "PollJob", map[string]interface{}{"JobID": jobID}, &result)
	return result, err
}

func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	return c.call(ctx, "CancelJob", map[string]interface{}{"JobID": jobID}, nil)
}

func (c *Client) UpdateQuery(ctx context.Context, id int64, patch model.QueryPatch) (model.Query, error) {
	var result model.Query
	err := c.call(ctx, "UpdateQuery", map[string]interface{}{"ID": id, "Patch": patch}, &result)
	return result, err
}

func (c *Client) SaveVisualization(ctx context.Context, v model.Visualization) (model.Visualization, error) {
	var result model.Visualization
	err := c.call(ctx, "SaveVisualization", map[string]interface{}{"Visualization": v}, &result)
	return result, err
}

func (c *Client) DeleteVisualization(ctx context.Context, id int64) error {
	return c.call(ctx, "DeleteVisualization", map[string]interface{}{"ID": id}, nil)
}

func (c *Client) AddWidget(ctx context.Context, dashboard string, visualizationID int64) (model.Widget, error) {
	var result model.Widget
	err := c.call(ctx, "AddWidget", map[string]interface{}{"Dashboard": dashboard, "VisualizationID": visualizationID}, &result)
	return result, err
}

func (c *Client) EmbedURL(ctx context.Context, queryID, visualizationID int64) (string, error) {
	var result string
	err := c.call(ctx, "EmbedURL", map[string]interface{}{"QueryID": queryID, "VisualizationID": visualizationID}, &result)
	return result, err
}
