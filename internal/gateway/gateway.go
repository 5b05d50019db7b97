// Package gateway fans the engine's event stream out to WebSocket clients.
//
// The UI layer subscribes to /events and receives every published engine
// event as a JSON envelope. The feed is strictly one-way and lossy by
// design: each client has a bounded send queue, and a client that cannot
// drain it is disconnected rather than allowed to stall the engine.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/parleylabs/parley/internal/events"
	"github.com/parleylabs/parley/internal/observe"
)

// sendQueueLen bounds the per-client backlog before the client is dropped.
const sendQueueLen = 64

// writeTimeout bounds a single frame write to a client.
const writeTimeout = 5 * time.Second

// Envelope wraps an engine event for the wire. Type is the bus topic name.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Gateway is the WebSocket event feed. Create with [New]; it subscribes to
// every engine topic on construction.
type Gateway struct {
	log     *slog.Logger
	metrics *observe.Metrics

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	stop chan struct{}
	once sync.Once
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// New creates a Gateway and subscribes it to every topic on bus.
func New(bus *events.Bus, opts ...Option) (*Gateway, error) {
	g := &Gateway{clients: make(map[*client]struct{})}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	g.log = g.log.With(slog.String("component", "gateway"))
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}

	subs := []error{
		bus.SubscribeStateChange(func(e events.StateChange) { g.broadcast(events.TopicStateChange, e) }),
		bus.SubscribeSessionStart(func(e events.SessionStart) { g.broadcast(events.TopicSessionStart, e) }),
		bus.SubscribeSessionEnd(func(e events.SessionEnd) { g.broadcast(events.TopicSessionEnd, e) }),
		bus.SubscribeRecordingStart(func(e events.RecordingStart) { g.broadcast(events.TopicRecordingStart, e) }),
		bus.SubscribeRecordingStop(func(e events.RecordingStop) { g.broadcast(events.TopicRecordingStop, e) }),
		bus.SubscribeUtteranceReady(func(e events.UtteranceReady) { g.broadcast(events.TopicUtteranceReady, e) }),
		bus.SubscribeProcessingStart(func(e events.ProcessingStart) { g.broadcast(events.TopicProcessingStart, e) }),
		bus.SubscribeProcessingComplete(func(e events.ProcessingComplete) { g.broadcast(events.TopicProcessingComplete, e) }),
		bus.SubscribeSpeakerDetermined(func(e events.SpeakerDetermined) { g.broadcast(events.TopicSpeakerDetermined, e) }),
		bus.SubscribeTranscriptReady(func(e events.TranscriptReady) { g.broadcast(events.TopicTranscriptReady, e) }),
		bus.SubscribeWarning(func(e events.Warning) { g.broadcast(events.TopicWarning, e) }),
		bus.SubscribeError(func(e events.Error) { g.broadcast(events.TopicError, e) }),
	}
	for _, err := range subs {
		if err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ServeHTTP upgrades the request and streams events until the client
// disconnects or falls behind.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.log.Warn("websocket accept failed", slog.Any("error", err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendQueueLen),
		stop: make(chan struct{}),
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	g.clients[c] = struct{}{}
	g.mu.Unlock()
	g.metrics.GatewayClients.Add(r.Context(), 1)
	g.log.Info("client connected", slog.String("remote", r.RemoteAddr))

	// The feed is one-way; CloseRead keeps control frames flowing and
	// cancels the context when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	g.writeLoop(ctx, c)

	g.removeClient(c)
	g.metrics.GatewayClients.Add(context.Background(), -1)
	g.log.Info("client disconnected", slog.String("remote", r.RemoteAddr))
}

func (g *Gateway) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			c.conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-c.stop:
			c.conn.Close(websocket.StatusPolicyViolation, "send queue overflow")
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}
}

// Register adds the /events route to mux.
func (g *Gateway) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /events", g.ServeHTTP)
}

// ClientCount returns the number of connected clients.
func (g *Gateway) ClientCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// Close disconnects all clients. The Gateway keeps receiving bus events but
// drops them.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	clients := make([]*client, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	g.clients = make(map[*client]struct{})
	g.mu.Unlock()

	for _, c := range clients {
		c.once.Do(func() { close(c.stop) })
	}
}

// broadcast marshals the envelope once and enqueues it to every client.
// A client whose queue is full is scheduled for disconnect; the engine
// never blocks on a slow consumer.
func (g *Gateway) broadcast(topic string, payload any) {
	data, err := json.Marshal(Envelope{Type: topic, Payload: payload})
	if err != nil {
		g.log.Error("envelope marshal failed",
			slog.String("topic", topic),
			slog.Any("error", err))
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for c := range g.clients {
		select {
		case c.send <- data:
		default:
			g.log.Warn("dropping slow client")
			c.once.Do(func() { close(c.stop) })
			delete(g.clients, c)
		}
	}
}

func (g *Gateway) removeClient(c *client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.clients, c)
}
