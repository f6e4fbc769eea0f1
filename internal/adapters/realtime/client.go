package realtime

// Package realtime subscribes to the backend's change-notification websocket
// (a Phoenix-channel protocol). A subscription is scoped to a single user row
// and delivers role/balance updates pushed by the server.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
	"github.com/canvango/canvango-group/internal/ports"
)

const (
	handshakeTimeout  = 10 * time.Second
	heartbeatInterval = 30 * time.Second
	readTimeout       = 60 * time.Second
	writeTimeout      = 10 * time.Second
	maxReconnectDelay = 32 * time.Second
)

// Client dials the realtime websocket endpoint and manages per-user
// subscriptions with automatic reconnection.
type Client struct {
	projectURL string
	anonKey    string
	logger     *slog.Logger
	dialer     *websocket.Dialer

	callbackMu sync.RWMutex
	onConn     func(connected bool)
}

var _ ports.RealtimeSubscriber = (*Client)(nil)

// ClientConfig holds configuration for the realtime client.
type ClientConfig struct {
	// ProjectURL is the backend project base URL; the realtime socket lives
	// under {ProjectURL}/realtime/v1/websocket.
	ProjectURL string
	// AnonKey authenticates the socket.
	AnonKey string
	// Logger is optional; defaults to slog.Default().
	Logger *slog.Logger
}

// NewClient creates a realtime client (not yet connected; connections are
// established per subscription).
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.ProjectURL == "" {
		return nil, errors.New("project URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("anon key is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		projectURL: cfg.ProjectURL,
		anonKey:    cfg.AnonKey,
		logger:     logger,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  handshakeTimeout,
			EnableCompression: true,
		},
	}, nil
}

// SetConnectionCallback registers a handler invoked on connect/disconnect
// transitions. Used to surface connectivity status to the user.
func (c *Client) SetConnectionCallback(f func(connected bool)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onConn = f
}

func (c *Client) notifyConn(connected bool) {
	c.callbackMu.RLock()
	f := c.onConn
	c.callbackMu.RUnlock()
	if f != nil {
		f(connected)
	}
}

// phxMessage is the Phoenix channel wire frame.
type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// changePayload is the union of change-event payload shapes across protocol
// versions: v1 puts the row at payload.record, v2 nests it under data.
type changePayload struct {
	Type   string          `json:"type"`
	Record json.RawMessage `json:"record"`
	Data   struct {
		Type   string          `json:"type"`
		Record json.RawMessage `json:"record"`
	} `json:"data"`
}

// userRecord carries the columns the watcher cares about.
type userRecord struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Balance int64  `json:"balance"`
}

// SubscribeUser opens a change feed filtered to UPDATE events on the given
// user's row. The feed reconnects with exponential backoff until ctx is done;
// the returned channel is closed on teardown.
func (c *Client) SubscribeUser(ctx context.Context, userID string) (<-chan ports.ProfileChange, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	wsURL, err := c.buildSocketURL()
	if err != nil {
		return nil, err
	}
	topic := "realtime:public:users:id=eq." + userID

	out := make(chan ports.ProfileChange, 8)
	go c.run(ctx, wsURL, topic, userID, out)
	return out, nil
}

// buildSocketURL converts the project URL into the websocket endpoint with
// the api key attached.
func (c *Client) buildSocketURL() (string, error) {
	parsed, err := url.Parse(c.projectURL)
	if err != nil {
		return "", fmt.Errorf("parse project URL: %w", err)
	}

	scheme := "ws"
	if parsed.Scheme == "https" || parsed.Scheme == "wss" {
		scheme = "wss"
	}

	endpoint := url.URL{
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   strings.TrimSuffix(parsed.Path, "/") + "/realtime/v1/websocket",
	}
	q := endpoint.Query()
	q.Set("apikey", c.anonKey)
	q.Set("vsn", "1.0.0")
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

// run owns the connect/read/reconnect loop for one subscription.
func (c *Client) run(ctx context.Context, wsURL, topic, userID string, out chan<- ports.ProfileChange) {
	defer close(out)

	reconnectDelay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.connect(ctx, wsURL, topic)
		if err != nil {
			c.logger.Warn("realtime connect failed",
				"user_id", userID,
				"retry_in", reconnectDelay,
				"error", err)
			select {
			case <-time.After(reconnectDelay):
			case <-ctx.Done():
				return
			}
			reconnectDelay *= 2
			if reconnectDelay > maxReconnectDelay {
				reconnectDelay = maxReconnectDelay
			}
			continue
		}

		reconnectDelay = time.Second
		c.notifyConn(true)
		c.readLoop(ctx, conn, topic, userID, out)
		c.notifyConn(false)
		closeConn(conn)
	}
}

// connect dials the socket and joins the scoped topic.
func (c *Client) connect(ctx context.Context, wsURL, topic string) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	join := phxMessage{
		Topic:   topic,
		Event:   "phx_join",
		Payload: json.RawMessage(`{}`),
		Ref:     uuid.NewString(),
	}
	if err := writeMessage(conn, join); err != nil {
		closeConn(conn)
		return nil, fmt.Errorf("join topic: %w", err)
	}
	return conn, nil
}

// readLoop reads change events until the connection breaks or ctx is done.
// A heartbeat goroutine keeps the channel alive server-side.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, topic, userID string, out chan<- ports.ProfileChange) {
	done := make(chan struct{})
	defer close(done)
	go c.heartbeatLoop(ctx, conn, done)

	for {
		if ctx.Err() != nil {
			return
		}

		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			c.logger.Warn("realtime set read deadline failed", "error", err)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("realtime connection closed", "user_id", userID)
			} else {
				c.logger.Warn("realtime read error", "user_id", userID, "error", err)
			}
			return
		}

		change, ok := c.parseChange(data, topic, userID)
		if !ok {
			continue
		}
		select {
		case out <- change:
		case <-ctx.Done():
			return
		}
	}
}

// parseChange extracts an UPDATE on the subscribed user's row; anything else
// (heartbeat replies, join acks, other topics) is ignored.
func (c *Client) parseChange(data []byte, topic, userID string) (ports.ProfileChange, bool) {
	var msg phxMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("realtime message parse failed", "error", err)
		return ports.ProfileChange{}, false
	}
	if msg.Topic != topic {
		return ports.ProfileChange{}, false
	}
	if msg.Event != "UPDATE" && msg.Event != "postgres_changes" {
		return ports.ProfileChange{}, false
	}

	var payload changePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.logger.Warn("realtime payload parse failed", "error", err)
		return ports.ProfileChange{}, false
	}

	raw := payload.Record
	changeType := payload.Type
	if raw == nil {
		raw = payload.Data.Record
		changeType = payload.Data.Type
	}
	if raw == nil {
		return ports.ProfileChange{}, false
	}
	if changeType != "" && changeType != "UPDATE" {
		return ports.ProfileChange{}, false
	}

	var record userRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		c.logger.Warn("realtime record parse failed", "error", err)
		return ports.ProfileChange{}, false
	}
	if record.ID != "" && record.ID != userID {
		// Server-side filter should prevent this; drop defensively anyway.
		return ports.ProfileChange{}, false
	}

	return ports.ProfileChange{
		UserID:  userID,
		Role:    domainauth.Role(record.Role),
		Balance: record.Balance,
	}, true
}

// heartbeatLoop sends Phoenix heartbeats so the server keeps the socket open.
func (c *Client) heartbeatLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			hb := phxMessage{
				Topic:   "phoenix",
				Event:   "heartbeat",
				Payload: json.RawMessage(`{}`),
				Ref:     uuid.NewString(),
			}
			if err := writeMessage(conn, hb); err != nil {
				c.logger.Warn("realtime heartbeat failed", "error", err)
				return
			}
		}
	}
}

func writeMessage(conn *websocket.Conn, msg phxMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func closeConn(conn *websocket.Conn) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	_ = conn.Close()
}
