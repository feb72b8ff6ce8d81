package transport

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/runtime"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait       = 60 * time.Second
	pingInterval   = 54 * time.Second
	maxMessageSize = 8 * 1024
)

// Session owns the serve/teardown loop of one authenticated websocket
// connection: CONNECTING (handled by the HTTP handler), ACTIVE (read loop
// feeding the router, write pump draining the outbound queue), CLOSED
// (terminal, idempotent).
//
// The outbound queue is bounded and drained by a single write pump, which
// guarantees FIFO delivery per recipient and isolates a slow reader from the
// router: when the queue is full, Consume fails and the router treats this
// session as implicitly disconnected.
type Session struct {
	log          *slog.Logger
	conn         *websocket.Conn
	identity     domain.Identity
	name         string
	registry     contract.IRegistry
	router       *runtime.Router
	stats        *observability.RelayStats
	outbound     chan domain.DeliveredMessage
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
}

func NewSession(log *slog.Logger, conn *websocket.Conn,
	identity domain.Identity, name string,
	registry contract.IRegistry, router *runtime.Router,
	stats *observability.RelayStats,
	bufferSize int, writeTimeout time.Duration) *Session {
	return &Session{
		log:          log,
		conn:         conn,
		identity:     identity,
		name:         name,
		registry:     registry,
		router:       router,
		stats:        stats,
		outbound:     make(chan domain.DeliveredMessage, bufferSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

// Run registers the session, announces the join, and serves frames until the
// connection drops. It blocks until teardown completes.
//
// Registration is the unique entry point into "online". If a previous
// connection held this identity, the registry hands it back and this session
// closes it: the entry was already taken over, so the old session's teardown
// neither unregisters nor announces anything.
func (s *Session) Run(ctx context.Context) {
	if previous := s.registry.Register(s.identity, s); previous != nil {
		previous.Close("replaced by newer connection")
	}
	s.stats.IncrConnects()
	s.log.Info("Session opened", "identity", s.identity, "name", s.name)

	go s.writePump()
	s.router.AnnounceJoin(ctx, s.identity, s.name)

	s.readLoop(ctx)
	s.teardown("connection closed")
}

// Consume queues one message for delivery. It never blocks: a closed session
// or a full queue is an error so the router can drop this connection instead
// of stalling a fan-out. The done check runs first; otherwise a select could
// still pick the send case on a torn-down session and count a frame as
// delivered that no pump will ever write.
func (s *Session) Consume(_ context.Context, msg domain.DeliveredMessage) error {
	select {
	case <-s.done:
		return errors.ErrSessionClosed
	default:
	}
	select {
	case <-s.done:
		return errors.ErrSessionClosed
	case s.outbound <- msg:
		return nil
	default:
		return errors.ErrSlowConsumer
	}
}

// Close tears the session down. Safe to call from any goroutine, any number
// of times.
func (s *Session) Close(reason string) {
	s.teardown(reason)
}

// teardown moves the session to CLOSED exactly once: unblock both pumps,
// conditionally release the registry entry, then announce the departure.
// The announcement is attempted once, best-effort, and only when this
// session still held its registry entry.
func (s *Session) teardown(reason string) {
	s.closeOnce.Do(func() {
		close(s.done)
		removed := s.registry.Unregister(s.identity, s)
		_ = s.conn.Close()
		s.stats.IncrDisconnects()
		s.log.Info("Session closed", "identity", s.identity, "reason", reason)

		if removed {
			s.router.AnnounceDeparture(context.Background(), s.identity, s.name)
		}
	})
}

// readLoop blocks on the next inbound frame and routes it. Any transport
// error, decode failure, or validation failure is a disconnect signal; there
// are no per-frame error replies.
func (s *Session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				s.log.Warn("Unexpected websocket error", "identity", s.identity, "error", err)
			}
			return
		}

		var frame InboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.log.Warn("Malformed frame, dropping connection", "identity", s.identity, "error", err)
			return
		}
		inbound, err := frame.ToInbound()
		if err != nil {
			s.log.Warn("Invalid frame, dropping connection", "identity", s.identity, "error", err)
			return
		}

		s.router.Route(ctx, s.identity, s.name, inbound)
	}
}

// writePump is the single writer of the connection. It drains the outbound
// queue in order and keeps the connection alive with pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-s.outbound:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteJSON(toFrame(msg)); err != nil {
				s.log.Warn("Outbound write failed", "identity", s.identity, "error", err)
				s.teardown("outbound write failure")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.teardown("ping failure")
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
