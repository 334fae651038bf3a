package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sidekickd/sidekick/internal/tools"
)

// Sentinel errors for worker failures. A timeout rejects only the call
// that timed out; a crash rejects every pending call.
var (
	ErrWorkerTimeout      = errors.New("worker call timed out")
	ErrWorkerCrash        = errors.New("worker connection lost")
	ErrWorkerNotConnected = errors.New("worker not connected")
)

// request is one line sent to the worker. Params are flattened next to
// cmd and _requestId.
type request struct {
	Cmd       string         `json:"cmd"`
	RequestID int64          `json:"_requestId"`
	Tool      string         `json:"tool,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
}

// response is one line received from the worker. A line with no
// _requestId and status "ready" announces startup.
type response struct {
	RequestID *int64             `json:"_requestId"`
	Status    string             `json:"status"`
	Result    json.RawMessage    `json:"result"`
	Error     string             `json:"error"`
	Tools     []tools.Definition `json:"tools"`
	Modules   []string           `json:"modules"`
}

// Client multiplexes tool calls over one persistent worker channel.
// Responses arrive out of order and are matched to callers by request id.
type Client struct {
	transport   Transport
	callTimeout time.Duration
	backoff     time.Duration

	mu      sync.Mutex
	writer  io.Writer
	pending map[int64]chan *response
	nextID  int64
	modules []string
	ready   bool
	closed  bool
}

// NewClient creates a client over the given transport. Start must be
// called before the first Call.
func NewClient(transport Transport, callTimeout, respawnBackoff time.Duration) *Client {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	if respawnBackoff <= 0 {
		respawnBackoff = 5 * time.Second
	}
	return &Client{
		transport:   transport,
		callTimeout: callTimeout,
		backoff:     respawnBackoff,
		pending:     make(map[int64]chan *response),
	}
}

// Start launches the transport and the read loop.
func (c *Client) Start() error {
	w, r, err := c.transport.Start()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.writer = w
	c.mu.Unlock()
	go c.readLoop(r)
	return nil
}

// Ready reports whether the worker has announced itself.
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Modules returns the module list from the ready announcement.
func (c *Client) Modules() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.modules...)
}

func (c *Client) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			slog.Warn("Skipping malformed worker line", "error", err)
			continue
		}
		if resp.RequestID == nil {
			if resp.Status == "ready" {
				c.mu.Lock()
				c.ready = true
				c.modules = resp.Modules
				c.mu.Unlock()
				slog.Info("Worker ready", "modules", resp.Modules)
			}
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[*resp.RequestID]
		if ok {
			delete(c.pending, *resp.RequestID)
		}
		c.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}
	c.handleDisconnect()
}

// handleDisconnect rejects every pending call uniformly and schedules a
// respawn after the fixed backoff.
func (c *Client) handleDisconnect() {
	c.mu.Lock()
	c.writer = nil
	c.ready = false
	orphans := c.pending
	c.pending = make(map[int64]chan *response)
	closed := c.closed
	c.mu.Unlock()

	for _, ch := range orphans {
		ch <- nil
	}
	if closed {
		return
	}
	slog.Warn("Worker connection lost, scheduling respawn", "backoff", c.backoff, "rejected", len(orphans))
	time.AfterFunc(c.backoff, func() {
		c.mu.Lock()
		stop := c.closed
		c.mu.Unlock()
		if stop {
			return
		}
		if err := c.Start(); err != nil {
			slog.Error("Worker respawn failed", "error", err)
			time.AfterFunc(c.backoff, func() { c.handleDisconnect() })
		}
	})
}

// call sends one request and waits for its response. A timeout removes
// only this call from the pending map.
func (c *Client) call(ctx context.Context, req request) (*response, error) {
	c.mu.Lock()
	if c.writer == nil {
		c.mu.Unlock()
		return nil, ErrWorkerNotConnected
	}
	c.nextID++
	req.RequestID = c.nextID
	ch := make(chan *response, 1)
	c.pending[req.RequestID] = ch

	data, err := json.Marshal(req)
	if err != nil {
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
		return nil, fmt.Errorf("encode worker request: %w", err)
	}
	_, err = c.writer.Write(append(data, '\n'))
	c.mu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
		return nil, fmt.Errorf("write worker request: %w", err)
	}

	timer := time.NewTimer(c.callTimeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		if resp == nil {
			return nil, ErrWorkerCrash
		}
		return resp, nil
	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s after %v", ErrWorkerTimeout, req.Cmd, c.callTimeout)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// ListTools asks the worker for its tool catalog. Returned definitions
// are marked external.
func (c *Client) ListTools(ctx context.Context) ([]tools.Definition, error) {
	resp, err := c.call(ctx, request{Cmd: "list_tools"})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("worker list_tools: %s", resp.Error)
	}
	defs := resp.Tools
	for i := range defs {
		defs[i].Source = tools.SourceExternal
	}
	return defs, nil
}

// Invoke runs an external tool and returns its textual result.
func (c *Client) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	resp, err := c.call(ctx, request{Cmd: "invoke_tool", Tool: name, Args: args})
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("worker tool %s: %s", name, resp.Error)
	}
	if len(resp.Result) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(resp.Result, &s); err == nil {
		return s, nil
	}
	return string(resp.Result), nil
}

// Close stops the client; no respawn is scheduled afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.transport.Stop()
}
