// Package realtime keeps an optional websocket channel to the backend.
// Frames are republished on the bus; an inbound message frame only asks
// the poller to run early, the poll cycle stays the source of truth.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/wlite/internal/bus"
	"github.com/matheus3301/wlite/internal/session"
	"go.uber.org/zap"
)

// Inbound frame types.
const (
	TypeMessage       = "message"
	TypeMessageStatus = "message_status"
	TypeUserOnline    = "user_online"
	TypeUserOffline   = "user_offline"
	TypeTyping        = "typing"
	TypeStopTyping    = "stop_typing"
)

// Frame is one websocket message in either direction.
type Frame struct {
	Type    string          `json:"type"`
	UserID  string          `json:"userId,omitempty"`
	Token   string          `json:"token,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Refresher runs a poll cycle on demand.
type Refresher interface {
	PollNow(ctx context.Context) error
}

// Options tunes the connection.
type Options struct {
	URL                  string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
}

// Client is a reconnecting websocket client.
type Client struct {
	opts      Options
	sess      *session.Session
	bus       *bus.Bus
	refresher Refresher
	logger    *zap.Logger
	dialer    *websocket.Dialer

	mu    sync.Mutex
	conn  *websocket.Conn
	queue []Frame

	run    sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a client. refresher may be nil.
func New(opts Options, sess *session.Session, refresher Refresher, b *bus.Bus, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 5
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	return &Client{
		opts:      opts,
		sess:      sess,
		bus:       b,
		refresher: refresher,
		logger:    logger,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Start connects in the background. Starting a running client is a no-op.
func (c *Client) Start(ctx context.Context) {
	c.run.Lock()
	defer c.run.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.loop(ctx, c.done)
}

// Stop closes the connection and waits for the loop to exit.
func (c *Client) Stop() {
	c.run.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.run.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes a frame, or queues it until the next connection.
func (c *Client) Send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		c.queue = append(c.queue, f)
		return nil
	}
	if err := c.conn.WriteJSON(f); err != nil {
		c.queue = append(c.queue, f)
		return fmt.Errorf("write %s frame: %w", f.Type, err)
	}
	return nil
}

// SendTyping announces that the current user is typing in a chat.
func (c *Client) SendTyping(chatID string) error {
	return c.sendPayload(TypeTyping, map[string]string{"chatId": chatID})
}

// StopTyping retracts a typing announcement.
func (c *Client) StopTyping(chatID string) error {
	return c.sendPayload(TypeStopTyping, map[string]string{"chatId": chatID})
}

func (c *Client) sendPayload(typ string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.Send(Frame{Type: typ, Payload: raw})
}

func (c *Client) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	attempt := 0
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, nil)
		if err == nil {
			attempt = 0
			c.serve(ctx, conn)
		} else if ctx.Err() == nil {
			c.logger.Warn("realtime dial failed", zap.Error(err), zap.String("url", c.opts.URL))
		}
		if ctx.Err() != nil {
			return
		}

		if attempt >= c.opts.MaxReconnectAttempts {
			c.logger.Error("realtime reconnect attempts exhausted", zap.Int("attempts", attempt))
			c.bus.Emit(bus.RealtimeDisconnected, bus.ConnectionPayload{Attempt: attempt, GaveUp: true})
			return
		}
		attempt++
		c.logger.Info("realtime reconnecting", zap.Int("attempt", attempt), zap.Int("max", c.opts.MaxReconnectAttempts))
		select {
		case <-time.After(c.opts.ReconnectDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return
		}
	}
}

// serve owns conn until its read side fails or ctx ends.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	if err := c.attach(conn); err != nil {
		c.logger.Warn("realtime handshake failed", zap.Error(err))
		_ = conn.Close()
		return
	}
	c.logger.Info("realtime connected", zap.String("url", c.opts.URL))
	c.bus.Emit(bus.RealtimeConnected, bus.ConnectionPayload{})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Debug("skipping malformed realtime frame", zap.Error(err))
			continue
		}
		c.dispatch(ctx, f)
	}

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	_ = conn.Close()
	if ctx.Err() == nil {
		c.logger.Warn("realtime connection lost")
	}
	c.bus.Emit(bus.RealtimeDisconnected, bus.ConnectionPayload{})
}

// attach authenticates and flushes the queue before publishing conn for
// regular sends, so queued frames keep their order.
func (c *Client) attach(conn *websocket.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if me := c.sess.UserID(); me != "" {
		if err := conn.WriteJSON(Frame{Type: "auth", UserID: me, Token: "temp-token"}); err != nil {
			return fmt.Errorf("write auth frame: %w", err)
		}
	}
	for len(c.queue) > 0 {
		if err := conn.WriteJSON(c.queue[0]); err != nil {
			return fmt.Errorf("flush queue: %w", err)
		}
		c.queue = c.queue[1:]
	}
	c.conn = conn
	return nil
}

func (c *Client) dispatch(ctx context.Context, f Frame) {
	switch f.Type {
	case TypeMessage:
		if c.refresher != nil {
			go func() {
				if err := c.refresher.PollNow(ctx); err != nil && ctx.Err() == nil {
					c.logger.Debug("realtime-triggered poll failed", zap.Error(err))
				}
			}()
		}
	case TypeMessageStatus, TypeUserOnline, TypeUserOffline, TypeTyping, TypeStopTyping:
	default:
		c.logger.Debug("unhandled realtime frame", zap.String("type", f.Type))
		return
	}
	c.bus.Emit(bus.RealtimeFrame, bus.FramePayload{Type: f.Type, Data: f.Payload})
}
