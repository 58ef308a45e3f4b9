package observer

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/srg/pmdrelay/internal/groutine"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait.
	maxMessageSize = 512                 // Clients only send control frames.
	clientSendSize = 64

	// EventsPath is the websocket endpoint served by Listen.
	EventsPath = "/events"
)

// WebSocketSink broadcasts events as JSON text messages to every connected websocket client.
type WebSocketSink struct {
	upgrader websocket.Upgrader
	logger   *logrus.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool

	server   *http.Server
	listener net.Listener
	group    *groutine.Group
}

type wsClient struct {
	sink *WebSocketSink
	conn *websocket.Conn
	send chan []byte
}

func NewWebSocketSink(logger *logrus.Logger) *WebSocketSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &WebSocketSink{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
		group:   groutine.NewGroup(context.Background()),
	}
}

// Listen serves EventsPath on addr in the background and returns the bound address.
func (s *WebSocketSink) Listen(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	mux := http.NewServeMux()
	mux.Handle(EventsPath, s)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.listener = ln

	s.group.Go("websocket-server", func(context.Context) {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("WebSocket server stopped")
		}
	})
	s.logger.WithField("address", ln.Addr().String()).Info("WebSocket event stream listening")
	return ln.Addr().String(), nil
}

// ServeHTTP upgrades the request and registers the client.
func (s *WebSocketSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}
	c := &wsClient{sink: s, conn: conn, send: make(chan []byte, clientSendSize)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.logger.WithField("remote", conn.RemoteAddr().String()).Debug("WebSocket client registered")

	s.group.Go("websocket-write-pump", func(context.Context) { c.writePump() })
	s.group.Go("websocket-read-pump", func(context.Context) { c.readPump() })
}

// Clients returns the number of connected clients.
func (s *WebSocketSink) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *WebSocketSink) Name() string { return "websocket" }

// Handle broadcasts ev. A client whose send buffer is full is dropped.
func (s *WebSocketSink) Handle(ev Event) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			s.logger.WithField("remote", c.conn.RemoteAddr().String()).Warn("WebSocket client too slow, removing")
			s.removeLocked(c)
		}
	}
	return nil
}

func (s *WebSocketSink) unregister(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(c)
}

func (s *WebSocketSink) removeLocked(c *wsClient) {
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

// Close disconnects every client and stops the server.
func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	s.closed = true
	for c := range s.clients {
		s.removeLocked(c)
	}
	s.mu.Unlock()

	var err error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		err = s.server.Shutdown(ctx)
	}
	s.group.Wait()
	return err
}

// readPump discards inbound messages and keeps the pong deadline fresh.
func (c *wsClient) readPump() {
	defer func() {
		c.sink.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.sink.logger.WithError(err).Debug("WebSocket read error")
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
