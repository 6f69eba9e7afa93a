package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

type outboundMessage struct {
	Message string `json:"message"`
}

// Client is a reconnecting websocket chat client. It redials after an
// abnormal connection drop with capped exponential backoff, and stops
// for good after a clean server close or once retries are exhausted.
type Client struct {
	url     string
	backoff Backoff
	dialer  *websocket.Dialer

	// OnEvent receives every raw server event in arrival order.
	OnEvent func(raw json.RawMessage)

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewClient(url string) *Client {
	return &Client{
		url:     url,
		backoff: DefaultBackoff(),
		dialer:  websocket.DefaultDialer,
	}
}

// Run connects and pumps events until the server closes cleanly, the
// context is cancelled, or reconnection gives up. It returns nil on a
// clean close and ErrRetriesExhausted (wrapped) when the session ends
// up errored.
func (c *Client) Run(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return fmt.Errorf("initial connect failed: %w", err)
	}

	for {
		clean, err := c.pump(ctx)
		if clean {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[CHAT-CLIENT] connection dropped: %v, reconnecting", err)

		if err := c.backoff.Retry(ctx, func() error { return c.dial(ctx) }); err != nil {
			return err
		}
	}
}

// Send submits a user message on the current connection.
func (c *Client) Send(message string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return conn.WriteJSON(outboundMessage{Message: message})
}

func (c *Client) dial(ctx context.Context) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// pump reads events until the connection ends. The bool reports whether
// the close was clean, which means no reconnect should happen.
func (c *Client) pump(ctx context.Context) (bool, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	// Watcher lives only as long as this connection's read loop.
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-readDone:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.conn = nil
			c.mu.Unlock()
			conn.Close()

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, nil
			}
			return false, err
		}

		if c.OnEvent != nil {
			c.OnEvent(json.RawMessage(data))
		}
	}
}
