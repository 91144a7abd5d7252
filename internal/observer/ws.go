package observer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"droneSurveyManagement/internal/broadcast"
	"droneSurveyManagement/models"
	"droneSurveyManagement/repository"
)

const writeWait = 10 * time.Second

var (
	errClosed = errors.New("observer: connection closed")
	errSlow   = errors.New("observer: send queue full")
)

// WSServer upgrades HTTP requests to observer channels.
type WSServer struct {
	registry     *broadcast.Registry
	protocol     *Protocol
	repo         repository.Repository
	pingInterval time.Duration
	sendBuffer   int
	logger       *slog.Logger
	upgrader     websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*conn
}

func NewWSServer(registry *broadcast.Registry, protocol *Protocol, repo repository.Repository, pingInterval time.Duration, sendBuffer int, logger *slog.Logger) *WSServer {
	return &WSServer{
		registry:     registry,
		protocol:     protocol,
		repo:         repo,
		pingInterval: pingInterval,
		sendBuffer:   sendBuffer,
		logger:       logger,
		upgrader: websocket.Upgrader{
			EnableCompression: false,
			CheckOrigin:       func(*http.Request) bool { return true },
		},
		conns: make(map[string]*conn),
	}
}

// conn is one observer channel. Events are queued by Send and written by a
// single writer goroutine, so each client sees them in the order queued.
type conn struct {
	id     string
	ws     *websocket.Conn
	send   chan broadcast.Event
	done   chan struct{}
	once   sync.Once
	alive  atomic.Bool
	server *WSServer
}

func (c *conn) ID() string { return c.id }

// Send queues ev. A client that lets its queue fill up is disconnected.
func (c *conn) Send(ev broadcast.Event) error {
	select {
	case <-c.done:
		return errClosed
	default:
	}
	select {
	case c.send <- ev:
		return nil
	case <-c.done:
		return errClosed
	default:
		c.close()
		return errSlow
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
		c.server.forget(c)
	})
}

func (s *WSServer) forget(c *conn) {
	s.registry.Unregister(c.id)
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	s.logger.Info("observer disconnected", slog.String("conn", c.id))
}

// ServeHTTP upgrades the request and serves the channel until it closes.
func (s *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	c := &conn{
		id:     uuid.NewString(),
		ws:     ws,
		send:   make(chan broadcast.Event, s.sendBuffer),
		done:   make(chan struct{}),
		server: s,
	}
	c.alive.Store(true)
	ws.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()

	go c.writeLoop(s.pingInterval)

	// Requests are done once hijacked, so the channel gets its own context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-c.done
		cancel()
	}()

	// missions:active is queued before the channel can receive broadcasts.
	active, err := s.repo.ListMissionsByStatus(ctx, models.MissionStatusInProgress)
	if err != nil {
		s.logger.Warn("load active missions failed", slog.Any("error", err))
	} else {
		_ = c.Send(broadcast.MissionsActive(active))
	}
	s.registry.Register(c)
	select {
	case <-c.done:
		// Closed before registration; forget ran too early to unregister it.
		s.registry.Unregister(c.id)
		return
	default:
	}
	s.logger.Info("observer connected", slog.String("conn", c.id), slog.String("remote", r.RemoteAddr))
	c.readLoop(ctx)
}

func (c *conn) readLoop(ctx context.Context) {
	defer c.close()
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.server.protocol.Handle(ctx, c, raw)
	}
}

// writeLoop drains the send queue and pings the client. A client that has
// not answered the previous ping by the next tick is terminated.
func (c *conn) writeLoop(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.close()
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			b, err := json.Marshal(ev)
			if err != nil {
				c.server.logger.Warn("encode event failed", slog.String("type", ev.Kind()), slog.Any("error", err))
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			if !c.alive.Swap(false) {
				c.server.logger.Info("observer unresponsive, terminating", slog.String("conn", c.id))
				return
			}
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// Len returns the number of open channels.
func (s *WSServer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// CloseAll terminates every open channel.
func (s *WSServer) CloseAll() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}
