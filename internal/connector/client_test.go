package connector

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/bpmnlens/internal/streaming"
	"github.com/rendis/bpmnlens/pkg/schema"
)

// fakeAggregator is a WebSocket server speaking the aggregator protocol. It
// records every frame it receives and hands out its connections.
type fakeAggregator struct {
	srv      *httptest.Server
	received chan schema.Envelope
	conns    chan *websocket.Conn
}

func newFakeAggregator(t *testing.T, protocols ...string) *fakeAggregator {
	t.Helper()
	if protocols == nil {
		protocols = []string{schema.ConnectorProtocol}
	}
	a := &fakeAggregator{
		received: make(chan schema.Envelope, 16),
		conns:    make(chan *websocket.Conn, 4),
	}
	upgrader := websocket.Upgrader{Subprotocols: protocols}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		a.conns <- conn
		for {
			var env schema.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			a.received <- env
		}
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *fakeAggregator) addr(t *testing.T) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(a.srv.URL, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func (a *fakeAggregator) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-a.conns:
		return c
	case <-time.After(time.Second):
		t.Fatal("no connection")
		return nil
	}
}

func (a *fakeAggregator) next(t *testing.T) schema.Envelope {
	t.Helper()
	select {
	case env := <-a.received:
		return env
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return schema.Envelope{}
	}
}

func newTestClient(t *testing.T, hub streaming.EventHub) *Client {
	t.Helper()
	c, err := New(Options{Hub: hub, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func TestNew_RequiresHub(t *testing.T) {
	_, err := New(Options{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestConnectAndSubscribe(t *testing.T) {
	agg := newFakeAggregator(t)
	c := newTestClient(t, streaming.NewMemoryHub())
	ctx := context.Background()
	host, port := agg.addr(t)

	require.NoError(t, c.Connect(ctx, host, port))
	assert.True(t, c.IsConnected())

	require.NoError(t, c.SubscribeJob(ctx, "job-1"))
	env := agg.next(t)
	assert.Equal(t, schema.MessageJobUpdate, env.Type)
	assert.JSONEq(t, `{"job_id":"job-1"}`, string(env.Payload))

	require.NoError(t, c.UnsubscribeJob(ctx, "job-1"))
	env = agg.next(t)
	assert.Equal(t, schema.MessageJobUnsubscribe, env.Type)
	assert.JSONEq(t, `{"job_id":"job-1"}`, string(env.Payload))

	require.NoError(t, c.UnsubscribeAll(ctx))
	env = agg.next(t)
	assert.Equal(t, schema.MessageUnsubscribeAll, env.Type)
	assert.JSONEq(t, `{}`, string(env.Payload))

	require.NoError(t, c.Disconnect())
	assert.False(t, c.IsConnected())
	require.NoError(t, c.Disconnect(), "second disconnect is a no-op")
}

func TestConnect_Errors(t *testing.T) {
	c := newTestClient(t, streaming.NewMemoryHub())
	ctx := context.Background()

	err := c.Connect(ctx, "", 80)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	// Nothing listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	err = c.Connect(ctx, "127.0.0.1", port)
	assert.True(t, schema.IsCode(err, schema.ErrCodeTransport))
	assert.False(t, c.IsConnected())
}

func TestConnect_SubprotocolRejected(t *testing.T) {
	agg := newFakeAggregator(t, "something-else")
	c := newTestClient(t, streaming.NewMemoryHub())
	host, port := agg.addr(t)

	err := c.Connect(context.Background(), host, port)
	assert.True(t, schema.IsCode(err, schema.ErrCodeTransport))
	assert.False(t, c.IsConnected())
}

func TestSendWhileDisconnected(t *testing.T) {
	c := newTestClient(t, streaming.NewMemoryHub())
	ctx := context.Background()

	err := c.SubscribeJob(ctx, "job-1")
	assert.True(t, schema.IsCode(err, schema.ErrCodeTransport))
	assert.NoError(t, c.UnsubscribeJob(ctx, "job-1"))
	assert.NoError(t, c.UnsubscribeAll(ctx))

	err = c.SubscribeJob(ctx, "")
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestInboundJobUpdatePublished(t *testing.T) {
	agg := newFakeAggregator(t)
	hub := streaming.NewMemoryHub()
	c := newTestClient(t, hub)
	ctx := context.Background()

	events, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{EventTypes: []string{schema.EventJobUpdate}})
	require.NoError(t, err)
	defer cancel()

	host, port := agg.addr(t)
	require.NoError(t, c.Connect(ctx, host, port))
	server := agg.conn(t)

	// Invalid frames and unknown types are dropped without closing the connection.
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat","payload":{}}`)))
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"type":"job_update","payload":{"update":{}}}`)))

	msg := map[string]any{
		"type": "job_update",
		"payload": map[string]any{
			"job_id": "outer",
			"update": map[string]any{
				"job_id": "job-7",
				"overlays": []map[string]any{
					{"block_id": "Review", "color": "RED", "flags": []map[string]any{{"deviation": "SKIPPED"}}},
				},
			},
		},
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, server.WriteMessage(websocket.TextMessage, raw))

	select {
	case ev := <-events:
		assert.Equal(t, "job-7", ev.JobID)
		upd, ok := ev.Payload.(*schema.JobUpdate)
		require.True(t, ok)
		require.NotNil(t, upd.Update)
		require.Len(t, upd.Update.Overlays, 1)
		assert.Equal(t, "RED", upd.Update.Overlays[0].Color.Name)
		assert.Equal(t, schema.DeviationSkipped, upd.Update.Overlays[0].Flags[0].Deviation)
	case <-time.After(time.Second):
		t.Fatal("no job_update published")
	}
	assert.True(t, c.IsConnected())
}

func TestConnectionLostAnnounced(t *testing.T) {
	agg := newFakeAggregator(t)
	hub := streaming.NewMemoryHub()
	c := newTestClient(t, hub)
	ctx := context.Background()

	closed, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{EventTypes: []string{schema.EventConnectorClosed}})
	require.NoError(t, err)
	defer cancel()

	host, port := agg.addr(t)
	require.NoError(t, c.Connect(ctx, host, port))
	require.NoError(t, agg.conn(t).Close())

	select {
	case ev := <-closed:
		payload, ok := ev.Payload.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, net.JoinHostPort(host, strconv.Itoa(port)), payload["addr"])
	case <-time.After(time.Second):
		t.Fatal("no connector_closed event")
	}
	assert.Eventually(t, func() bool { return !c.IsConnected() }, time.Second, 5*time.Millisecond)
}

func TestDisconnectIsSilent(t *testing.T) {
	agg := newFakeAggregator(t)
	hub := streaming.NewMemoryHub()
	c := newTestClient(t, hub)
	ctx := context.Background()

	closed, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{EventTypes: []string{schema.EventConnectorClosed}})
	require.NoError(t, err)
	defer cancel()

	host, port := agg.addr(t)
	require.NoError(t, c.Connect(ctx, host, port))
	require.NoError(t, c.Disconnect())

	select {
	case ev := <-closed:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}
