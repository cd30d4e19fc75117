// Package relay forwards board notifications between connected clients. Each
// board is a room; a mutation frame from one peer goes to every other peer in
// the room, and optionally to other relay instances through Redis.
package relay

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"kanban-sync/domain"
)

// Fanout shares frames with other relay instances.
type Fanout interface {
	Publish(ctx context.Context, boardID string, frame []byte) error
	Run(ctx context.Context, deliver func(boardID string, frame []byte))
}

// Server is the websocket relay.
type Server struct {
	auth     Verifier
	dedupe   Deduper
	fanout   Fanout
	logger   *log.Logger
	registry *prometheus.Registry
	metrics  *relayMetrics
	upgrader websocket.Upgrader
	hub      *hub
}

// Option configures a Server.
type Option func(*Server)

func WithDeduper(d Deduper) Option {
	return func(s *Server) { s.dedupe = d }
}

func WithFanout(f Fanout) Option {
	return func(s *Server) { s.fanout = f }
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New returns a relay authenticating peers with auth.
func New(auth Verifier, opts ...Option) *Server {
	s := &Server{
		auth:     auth,
		dedupe:   NewMemoryDeduper(10 * time.Minute),
		logger:   log.StandardLogger(),
		registry: prometheus.NewRegistry(),
		hub:      newHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newRelayMetrics(s.registry)
	return s
}

// Register wires the relay routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "kanban_relay",
		Registerer: s.registry,
	}))
	e.GET("/ws", s.handleWS)
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: s.registry}))
}

// Run consumes frames from other instances until ctx ends. It returns
// immediately when no fanout is configured.
func (s *Server) Run(ctx context.Context) {
	if s.fanout == nil {
		return
	}
	s.fanout.Run(ctx, func(boardID string, frame []byte) {
		s.deliver(boardID, frame, nil, "fanout")
	})
}

func (s *Server) handleWS(c echo.Context) error {
	token, err := bearer(c.Request())
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	id, err := s.auth.Verify(token)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return nil
	}
	p := newPeer(uuid.NewString(), id.UserID, conn)
	logger := s.logger.WithFields(log.Fields{"peer_id": p.id, "user_id": id.UserID})
	if !id.Expires.IsZero() {
		logger = logger.WithField("token_expires", id.Expires)
	}
	logger.Info("peer connected")
	s.metrics.connections.Inc()

	go p.writePump()
	defer func() {
		for _, board := range p.joinedBoards() {
			s.hub.leave(board, p)
		}
		p.close()
		s.metrics.connections.Dec()
		logger.Info("peer disconnected")
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := c.Request().Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WithError(err).Warn("peer read failed")
			}
			return nil
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		s.handleFrame(ctx, p, data, logger)
	}
}

func (s *Server) handleFrame(ctx context.Context, p *peer, data []byte, logger *log.Entry) {
	var frame domain.Frame
	if err := sonic.Unmarshal(data, &frame); err != nil {
		s.metrics.frame("", "malformed")
		s.writeError(p, "", "invalid_frame", "invalid frame payload")
		return
	}

	switch frame.Event {
	case domain.JoinBoard, domain.LeaveBoard:
		boardID, err := domain.DecodeBoardID(frame.Data)
		if err != nil {
			s.metrics.frame(frame.Event, "invalid")
			s.writeError(p, frame.ID, "invalid_payload", err.Error())
			return
		}
		if frame.Event == domain.JoinBoard {
			s.hub.join(boardID, p)
			p.addBoard(boardID)
			logger.WithField("board_id", boardID).Debug("peer joined board")
		} else {
			s.hub.leave(boardID, p)
			p.removeBoard(boardID)
			logger.WithField("board_id", boardID).Debug("peer left board")
		}
		s.metrics.frame(frame.Event, "ok")
		return
	}

	ev, err := domain.DecodeEvent(frame.Event, frame.Data)
	if err != nil {
		s.metrics.frame(frame.Event, "invalid")
		s.writeError(p, frame.ID, "invalid_payload", err.Error())
		return
	}
	boardID := ev.Board()
	if !s.hub.member(boardID, p) {
		s.metrics.frame(frame.Event, "not_joined")
		s.writeError(p, frame.ID, "not_joined", "join the board before sending its events")
		return
	}

	if strings.TrimSpace(frame.ID) == "" {
		frame.ID = uuid.NewString()
	} else {
		fresh, err := s.dedupe.Add(ctx, frame.ID)
		if err != nil {
			logger.WithError(err).Warn("dedupe unavailable, forwarding anyway")
		} else if !fresh {
			s.metrics.frame(frame.Event, "duplicate")
			return
		}
	}

	out, err := sonic.Marshal(frame)
	if err != nil {
		logger.WithError(err).Error("encode frame")
		return
	}
	s.deliver(boardID, out, p, frame.Event)
	if s.fanout != nil {
		if err := s.fanout.Publish(ctx, boardID, out); err != nil {
			logger.WithError(err).WithField("board_id", boardID).Error("fanout publish failed")
		}
	}
}

// deliver writes frame to every peer in the board room except sender.
func (s *Server) deliver(boardID string, frame []byte, sender *peer, event string) {
	for _, p := range s.hub.peers(boardID, sender) {
		if p.enqueue(frame) {
			s.metrics.frame(event, "forwarded")
		} else {
			s.metrics.frame(event, "dropped")
			s.logger.WithFields(log.Fields{"peer_id": p.id, "board_id": boardID}).Warn("peer send buffer full, frame dropped")
		}
	}
}

func (s *Server) writeError(p *peer, id, code, message string) {
	data, err := sonic.Marshal(domain.ErrorData{Code: code, Message: message})
	if err != nil {
		return
	}
	out, err := sonic.Marshal(domain.Frame{Event: domain.ErrorEvent, Data: data, ID: id})
	if err != nil {
		return
	}
	p.enqueue(out)
}

// RoomSize returns how many local peers have joined boardID.
func (s *Server) RoomSize(boardID string) int {
	return len(s.hub.peers(boardID, nil))
}
