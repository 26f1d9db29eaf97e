/*
Package gateway bridges the event bus to WebSocket clients.

Each connection gets a bus subscription and a pair of goroutines: the
handler goroutine is the only writer on the socket (replayed backlog first,
then live events, plus keepalive pings), while a reader goroutine drains
client frames so pong handling and disconnect detection work. A client that
stops answering pings hits its read deadline and is dropped; a client whose
queue overflows loses oldest events at the bus, never here.
*/
package gateway

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/statuswatch/status-monitor-backend/bus"
	"github.com/statuswatch/status-monitor-backend/monitoring"
	"github.com/statuswatch/status-monitor-backend/types"
)

const (
	// writeWait bounds every socket write, control frames included.
	writeWait = 10 * time.Second

	// pongWait is how long a client may stay silent before the read
	// deadline drops it.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait so the deadline keeps
	// getting extended for live clients.
	pingPeriod = (pongWait * 9) / 10
)

// DeliveryError reports a failed write to one client. It never travels
// past the connection that caused it.
type DeliveryError struct {
	ClientID string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to client %s failed: %v", e.ClientID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// eventMessage is the wire envelope for one change event. Replayed backlog
// events carry replay=true so clients can render them as history.
type eventMessage struct {
	Type   string            `json:"type"`
	Data   types.ChangeEvent `json:"data"`
	Replay bool              `json:"replay,omitempty"`
}

// Options configures the gateway.
type Options struct {
	ReplayDepth    int
	AllowedOrigins []string
}

// Gateway upgrades HTTP requests to WebSocket connections and streams bus
// events to them.
type Gateway struct {
	opts        Options
	bus         *bus.Bus
	logger      *logrus.Logger
	upgrader    websocket.Upgrader
	connections atomic.Int64
}

// New creates a gateway over the given bus
func New(opts Options, eventBus *bus.Bus, logger *logrus.Logger) *Gateway {
	return &Gateway{
		opts:   opts,
		bus:    eventBus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
}

// originChecker allows requests without an Origin header (non-browser
// clients) and browser origins on the allowed list. A "*" entry allows
// everything.
func originChecker(allowed []string) func(*http.Request) bool {
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, candidate := range allowed {
			if candidate == origin {
				return true
			}
		}
		return false
	}
}

type client struct {
	id     string
	socket *websocket.Conn
	sub    *bus.Subscription
}

// HandleWebSocket upgrades the request and serves the event stream until
// the client disconnects or stops answering pings.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	socket, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		g.logger.WithError(err).WithField("remote", r.RemoteAddr).Warn("WebSocket upgrade failed")
		return
	}

	sub := g.bus.Subscribe(g.opts.ReplayDepth)
	c := &client{id: sub.ID, socket: socket, sub: sub}

	count := g.connections.Add(1)
	monitoring.UpdateWebsocketConnections(int(count))
	g.logger.WithFields(logrus.Fields{
		"client_id": c.id,
		"remote":    r.RemoteAddr,
	}).Info("WebSocket client connected")

	defer func() {
		g.bus.Unsubscribe(sub)
		socket.Close()
		count := g.connections.Add(-1)
		monitoring.UpdateWebsocketConnections(int(count))
		g.logger.WithFields(logrus.Fields{
			"client_id": c.id,
			"dropped":   sub.Dropped(),
		}).Info("WebSocket client disconnected")
	}()

	g.serve(c)
}

// serve owns all writes on the socket. It replays the backlog, then
// multiplexes live events and keepalive pings until the connection dies.
func (g *Gateway) serve(c *client) {
	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := g.drainClient(c)

	for _, event := range c.sub.Backlog() {
		if err := g.writeEvent(c, event, true); err != nil {
			g.logger.WithError(err).WithField("client_id", c.id).Debug("Replay write failed")
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := c.socket.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
				// Expected when the other end goes away.
				g.logger.WithError(err).WithField("client_id", c.id).Debug("Failed to write ping")
				return
			}
		case event, ok := <-c.sub.Events():
			if !ok {
				// Bus shut down; close the stream cleanly.
				deadline := time.Now().Add(writeWait)
				c.socket.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
				return
			}
			if err := g.writeEvent(c, event, false); err != nil {
				g.logger.WithError(err).WithField("client_id", c.id).Debug("Event write failed")
				return
			}
		}
	}
}

// drainClient reads and discards client frames so control messages are
// processed. The returned channel closes when the client read loop ends,
// which is also how socket.Close unblocks the handler.
func (g *Gateway) drainClient(c *client) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.socket.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}

func (g *Gateway) writeEvent(c *client, event types.ChangeEvent, replay bool) error {
	c.socket.SetWriteDeadline(time.Now().Add(writeWait))
	msg := eventMessage{Type: "event", Data: event, Replay: replay}
	if err := c.socket.WriteJSON(msg); err != nil {
		return &DeliveryError{ClientID: c.id, Err: err}
	}
	return nil
}

// ConnectionCount reports the number of connected clients
func (g *Gateway) ConnectionCount() int {
	return int(g.connections.Load())
}
