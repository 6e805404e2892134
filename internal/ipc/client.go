package ipc

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client is the CLI side of the watcher's control socket. Each call
// opens a fresh connection, sends one JSON request, and reads one
// response, so a wedged watcher can never hang the CLI past the
// timeout.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient returns a client for the watcher socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// Ping reports whether a watcher is answering on the socket.
func (c *Client) Ping() error {
	_, err := c.send(Request{Command: "ping"})
	return err
}

// Status fetches the watcher's status snapshot: uptime, log path, the
// live match view, and archive counters.
func (c *Client) Status() (*StatusData, error) {
	resp, err := c.send(Request{Command: "status"})
	if err != nil {
		return nil, err
	}

	// The payload arrives as generic JSON; round-trip it into the
	// typed status.
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal status data: %w", err)
	}

	var status StatusData
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("unmarshal status data: %w", err)
	}

	return &status, nil
}

// RequestStop asks the watcher to shut down gracefully.
func (c *Client) RequestStop() error {
	_, err := c.send(Request{Command: "stop"})
	return err
}

// send performs one request/response exchange over a new connection.
func (c *Client) send(req Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to watcher: %w", err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("send %s: %w", req.Command, err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.Command, err)
	}

	if !resp.OK {
		return nil, fmt.Errorf("watcher error: %s", resp.Error)
	}

	return &resp, nil
}
