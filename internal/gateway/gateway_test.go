package gateway_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/parleylabs/parley/internal/events"
	"github.com/parleylabs/parley/internal/gateway"
	"github.com/parleylabs/parley/internal/observe"
)

func newGateway(t *testing.T) (*gateway.Gateway, *events.Bus, string) {
	t.Helper()

	bus := events.New()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics() error: %v", err)
	}

	g, err := gateway.New(bus,
		gateway.WithMetrics(m),
		gateway.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(g.Close)

	mux := http.NewServeMux()
	g.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	return g, bus, wsURL
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline: %s", msg)
}

func TestGatewayForwardsEventsAsEnvelopes(t *testing.T) {
	t.Parallel()

	g, bus, wsURL := newGateway(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	waitFor(t, func() bool { return g.ClientCount() == 1 }, "client never registered")

	bus.PublishStateChange(events.StateChange{
		SessionID: "s1",
		From:      "armed_idle",
		To:        "recording",
	})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}

	var env struct {
		Type    string `json:"type"`
		Payload struct {
			SessionID string `json:"sessionId"`
			From      string `json:"from"`
			To        string `json:"to"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Unmarshal(%s) error: %v", data, err)
	}
	if env.Type != events.TopicStateChange {
		t.Errorf("Type = %q, want %q", env.Type, events.TopicStateChange)
	}
	if env.Payload.To != "recording" || env.Payload.SessionID != "s1" {
		t.Errorf("payload = %+v", env.Payload)
	}
}

func TestGatewayMultipleClients(t *testing.T) {
	t.Parallel()

	g, bus, wsURL := newGateway(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var conns []*websocket.Conn
	for range 3 {
		conn, _, err := websocket.Dial(ctx, wsURL, nil)
		if err != nil {
			t.Fatalf("Dial() error: %v", err)
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		conns = append(conns, conn)
	}
	waitFor(t, func() bool { return g.ClientCount() == 3 }, "clients never registered")

	bus.PublishWarning(events.Warning{SessionID: "s1", Kind: "manual_source_mismatch"})

	for i, conn := range conns {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("client %d Read() error: %v", i, err)
		}
		if !strings.Contains(string(data), "manual_source_mismatch") {
			t.Errorf("client %d got %s", i, data)
		}
	}
}

func TestPublishWithoutClientsDoesNotBlock(t *testing.T) {
	t.Parallel()

	_, bus, _ := newGateway(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 100 {
			bus.PublishRecordingStart(events.RecordingStart{SessionID: "s1", Seq: 1})
		}
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("publishing without clients blocked")
	}
}

func TestCloseDisconnectsClients(t *testing.T) {
	t.Parallel()

	g, _, wsURL := newGateway(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	waitFor(t, func() bool { return g.ClientCount() == 1 }, "client never registered")
	g.Close()

	if got := g.ClientCount(); got != 0 {
		t.Errorf("ClientCount() after Close = %d, want 0", got)
	}
	if _, _, err := conn.Read(ctx); err == nil {
		t.Error("Read() succeeded after Close, want connection closed")
	}
}
