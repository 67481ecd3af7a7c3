// Package connector is the WebSocket client of the deviation aggregator. It
// subscribes to real-time jobs and republishes every validated job_update on
// the streaming hub. There is no reconnect; a dropped connection is announced
// with a connector_closed event and the caller decides what to do.
package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rendis/bpmnlens/internal/metrics"
	"github.com/rendis/bpmnlens/internal/streaming"
	"github.com/rendis/bpmnlens/internal/validation"
	"github.com/rendis/bpmnlens/pkg/schema"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultReadLimit        = 16 * 1024 * 1024 // 16MB
)

// Options configures a Client.
type Options struct {
	Hub       streaming.EventHub
	Validator validation.MessageValidator
	Logger    *slog.Logger
	// Secure dials wss:// instead of ws://.
	Secure           bool
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
}

// Client is a single aggregator connection.
type Client struct {
	hub          streaming.EventHub
	validator    validation.MessageValidator
	logger       *slog.Logger
	dialer       *websocket.Dialer
	scheme       string
	writeTimeout time.Duration
	readLimit    int64

	mu   sync.Mutex
	conn *websocket.Conn
	addr string

	writeMu sync.Mutex
}

// New creates a disconnected Client.
func New(opts Options) (*Client, error) {
	if opts.Hub == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "connector needs an event hub")
	}
	v := opts.Validator
	if v == nil {
		jv, err := validation.NewJSONSchemaValidator()
		if err != nil {
			return nil, err
		}
		v = jv
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	hs := opts.HandshakeTimeout
	if hs <= 0 {
		hs = defaultHandshakeTimeout
	}
	wt := opts.WriteTimeout
	if wt <= 0 {
		wt = defaultWriteTimeout
	}
	limit := opts.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	scheme := "ws"
	if opts.Secure {
		scheme = "wss"
	}

	return &Client{
		hub:       opts.Hub,
		validator: v,
		logger:    logger.With("component", "connector"),
		dialer: &websocket.Dialer{
			Subprotocols:     []string{schema.ConnectorProtocol},
			HandshakeTimeout: hs,
		},
		scheme:       scheme,
		writeTimeout: wt,
		readLimit:    limit,
	}, nil
}

// Connect dials the aggregator at host:port. An existing connection is
// closed first.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	if host == "" || port <= 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid aggregator address %s:%d", host, port)
	}
	if c.IsConnected() {
		if err := c.Disconnect(); err != nil {
			c.logger.Warn("closing previous connection", "error", err)
		}
	}

	u := url.URL{Scheme: c.scheme, Host: net.JoinHostPort(host, strconv.Itoa(port))}
	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return schema.NewErrorf(schema.ErrCodeTransport, "dial aggregator %s", u.Host).
			WithCause(err).
			WithDetails(map[string]any{"status": status})
	}
	if conn.Subprotocol() != schema.ConnectorProtocol {
		_ = conn.Close()
		return schema.NewErrorf(schema.ErrCodeTransport,
			"aggregator %s did not accept sub-protocol %q", u.Host, schema.ConnectorProtocol)
	}
	conn.SetReadLimit(c.readLimit)

	c.mu.Lock()
	c.conn = conn
	c.addr = u.Host
	c.mu.Unlock()

	go c.readLoop(conn)
	c.logger.Info("connected to aggregator", "addr", u.Host)
	return nil
}

// SubscribeJob asks the aggregator for updates of jobID. The first update
// usually arrives immediately.
func (c *Client) SubscribeJob(ctx context.Context, jobID string) error {
	if jobID == "" {
		return schema.NewError(schema.ErrCodeValidation, "job_id is required")
	}
	if !c.IsConnected() {
		return schema.NewError(schema.ErrCodeTransport, "not connected to aggregator")
	}
	return c.send(ctx, schema.MessageJobUpdate, schema.JobRef{JobID: jobID})
}

// UnsubscribeJob stops updates of jobID. A no-op when disconnected.
func (c *Client) UnsubscribeJob(ctx context.Context, jobID string) error {
	if !c.IsConnected() {
		return nil
	}
	return c.send(ctx, schema.MessageJobUnsubscribe, schema.JobRef{JobID: jobID})
}

// UnsubscribeAll stops updates of every job. A no-op when disconnected.
func (c *Client) UnsubscribeAll(ctx context.Context) error {
	if !c.IsConnected() {
		return nil
	}
	return c.send(ctx, schema.MessageUnsubscribeAll, struct{}{})
}

// Disconnect closes the connection. Safe to call when disconnected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn, addr := c.conn, c.addr
	c.conn, c.addr = nil, ""
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	deadline := time.Now().Add(c.writeTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	werr := conn.WriteControl(websocket.CloseMessage, msg, deadline)
	c.writeMu.Unlock()

	cerr := conn.Close()
	c.logger.Info("disconnected from aggregator", "addr", addr)
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		return fmt.Errorf("send close frame: %w", werr)
	}
	return cerr
}

// IsConnected reports whether a connection is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) send(ctx context.Context, msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", msgType, err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return schema.NewError(schema.ErrCodeTransport, "not connected to aggregator")
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return schema.NewError(schema.ErrCodeTransport, "set write deadline").WithCause(err)
	}
	if err := conn.WriteJSON(schema.Envelope{Type: msgType, Payload: raw}); err != nil {
		return schema.NewErrorf(schema.ErrCodeTransport, "send %s", msgType).WithCause(err)
	}
	metrics.RecordConnectorMessage("out", msgType)
	c.logger.Debug("message sent", "type", msgType)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	var readErr error
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		c.handle(data)
	}

	c.mu.Lock()
	current := c.conn == conn
	addr := c.addr
	if current {
		c.conn, c.addr = nil, ""
	}
	c.mu.Unlock()

	// Disconnect already cleared conn; only unexpected drops are announced.
	if !current {
		return
	}
	_ = conn.Close()
	c.logger.Warn("aggregator connection lost", "addr", addr, "error", readErr)
	payload := map[string]any{"addr": addr}
	if readErr != nil {
		payload["error"] = readErr.Error()
	}
	if err := c.hub.Publish(context.Background(), streaming.StreamEvent{
		EventType: schema.EventConnectorClosed,
		Payload:   payload,
	}); err != nil {
		c.logger.Debug("publish connector_closed", "error", err)
	}
}

// handle validates one inbound frame and republishes job updates. Invalid
// frames are logged and dropped.
func (c *Client) handle(data []byte) {
	env, err := c.validator.DecodeEnvelope(data)
	if err != nil {
		metrics.RecordConnectorMessage("in", "invalid")
		c.logger.Warn("invalid aggregator message", "error", err)
		return
	}
	metrics.RecordConnectorMessage("in", env.Type)

	switch env.Type {
	case schema.MessageJobUpdate:
		upd, err := c.validator.DecodeJobUpdate(env.Payload)
		if err != nil {
			metrics.RecordUpdate("invalid")
			c.logger.Warn("invalid job update", "error", err)
			return
		}
		if err := c.hub.Publish(context.Background(), streaming.StreamEvent{
			JobID:     upd.ResolvedJobID(),
			EventType: schema.EventJobUpdate,
			Payload:   upd,
		}); err != nil {
			c.logger.Warn("publish job update", "job_id", upd.ResolvedJobID(), "error", err)
		}
	default:
		c.logger.Debug("ignoring aggregator message", "type", env.Type)
	}
}
