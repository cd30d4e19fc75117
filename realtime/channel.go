// Package realtime is the client side of the board event channel: one
// websocket per board session carrying join/leave frames out and peer
// mutation notifications in.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"kanban-sync/domain"
	"kanban-sync/internal/consts"
)

const (
	writeWait      = 10 * time.Second
	initialBackoff = time.Second
	errorBuffer    = 16
)

// ErrClosed is returned by operations on a closed channel.
var ErrClosed = errors.New("realtime channel closed")

// Handler receives a validated peer notification. Handlers run one at a time
// on the channel's reader goroutine, in receive order, and must not call
// Close.
type Handler func(domain.Event)

// ServerError is reported through Errors when the relay answers with an
// error frame.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("relay error %s: %s", e.Code, e.Message)
}

// Channel is a live connection to the relay.
type Channel struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger *log.Logger

	reconnect   bool
	minBackoff  time.Duration
	maxBackoff  time.Duration
	onReconnect func(ctx context.Context)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	errs   chan error

	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	handlers  map[string][]Handler
	joined    string
	closed    bool
}

// Option configures a Channel.
type Option func(*Channel)

func WithLogger(logger *log.Logger) Option {
	return func(c *Channel) { c.logger = logger }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

// WithReconnect redials after a connection loss, doubling the wait from one
// second up to maxBackoff, and rejoins the last joined board. Events sent
// while disconnected are not replayed.
func WithReconnect(maxBackoff time.Duration) Option {
	return func(c *Channel) {
		c.reconnect = true
		if maxBackoff > 0 {
			c.maxBackoff = maxBackoff
		}
	}
}

// WithOnReconnect runs fn on the reader goroutine after every successful
// redial and rejoin, before any frame from the new connection is dispatched.
// ctx is cancelled by Close.
func WithOnReconnect(fn func(ctx context.Context)) Option {
	return func(c *Channel) { c.onReconnect = fn }
}

// WithInitialBackoff overrides the first reconnect wait.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.minBackoff = d
		}
	}
}

// Dial connects to the relay at rawURL. The token is sent both as a bearer
// header and as the token query parameter for relays that only see the URL.
func Dial(ctx context.Context, rawURL, token string, opts ...Option) (*Channel, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("realtime url: %w", err)
	}
	header := http.Header{}
	if token != "" {
		q := u.Query()
		q.Set(consts.TokenQueryParam, token)
		u.RawQuery = q.Encode()
		header.Set("Authorization", "Bearer "+token)
	}

	c := &Channel{
		url:        u.String(),
		header:     header,
		dialer:     websocket.DefaultDialer,
		logger:     log.StandardLogger(),
		minBackoff: initialBackoff,
		maxBackoff: 5 * time.Second,
		errs:       make(chan error, errorBuffer),
		handlers:   make(map[string][]Handler),
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, err := c.dial(ctx)
	if err != nil {
		c.logger.WithError(err).WithField("url", rawURL).Warn("realtime connect error")
		return nil, err
	}
	c.conn = conn
	c.connected = true
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.logger.WithField("url", rawURL).Info("realtime connected")

	c.wg.Add(1)
	go c.run(conn)
	return c, nil
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial relay: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	return conn, nil
}

// On registers h for the named event. Several handlers may share a name;
// they run in registration order.
func (c *Channel) On(event string, h Handler) {
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], h)
	c.mu.Unlock()
}

// OffAll removes every handler.
func (c *Channel) OffAll() {
	c.mu.Lock()
	c.handlers = make(map[string][]Handler)
	c.mu.Unlock()
}

// Join subscribes the connection to a board's notifications.
func (c *Channel) Join(ctx context.Context, boardID string) error {
	frame, err := domain.BoardFrame(domain.JoinBoard, boardID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.joined = boardID
	c.mu.Unlock()
	return c.send(ctx, frame)
}

// Leave unsubscribes from a board.
func (c *Channel) Leave(ctx context.Context, boardID string) error {
	frame, err := domain.BoardFrame(domain.LeaveBoard, boardID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.joined == boardID {
		c.joined = ""
	}
	c.mu.Unlock()
	return c.send(ctx, frame)
}

// Emit sends a local mutation notification to peers.
func (c *Channel) Emit(ctx context.Context, ev domain.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	frame, err := domain.EncodeEvent(ev, uuid.NewString())
	if err != nil {
		return err
	}
	return c.send(ctx, frame)
}

// Errors reports connection failures and relay error frames. Reports are
// dropped when nobody drains the channel.
func (c *Channel) Errors() <-chan error {
	return c.errs
}

// Connected reports whether the underlying connection is currently up.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && !c.closed
}

// Close shuts the connection down and waits for the reader to stop. No
// handler runs after Close returns. It is safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := conn.Close()
	c.wg.Wait()
	c.logger.Info("realtime disconnected")
	return err
}

func (c *Channel) send(ctx context.Context, frame domain.Frame) error {
	data, err := sonic.Marshal(frame)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	conn := c.conn
	c.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", frame.Event, err)
	}
	return nil
}

func (c *Channel) run(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		err := c.readLoop(conn)
		if c.isClosed() {
			return
		}
		c.setConnected(false)
		c.logger.WithError(err).Warn("realtime disconnected")
		c.report(err)
		if !c.reconnect {
			return
		}
		next, ok := c.redial()
		if !ok {
			return
		}
		conn = next
		if c.onReconnect != nil {
			c.onReconnect(c.ctx)
		}
	}
}

func (c *Channel) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var frame domain.Frame
		if err := sonic.Unmarshal(data, &frame); err != nil {
			c.logger.WithError(err).Warn("realtime dropped malformed frame")
			continue
		}
		if frame.Event == domain.ErrorEvent {
			var payload domain.ErrorData
			_ = sonic.Unmarshal(frame.Data, &payload)
			serverErr := &ServerError{Code: payload.Code, Message: payload.Message}
			c.logger.WithError(serverErr).Warn("realtime relay error")
			c.report(serverErr)
			continue
		}
		ev, err := domain.DecodeEvent(frame.Event, frame.Data)
		if err != nil {
			c.logger.WithError(err).WithField("event", frame.Event).Warn("realtime dropped invalid frame")
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Channel) dispatch(ev domain.Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	handlers := append([]Handler(nil), c.handlers[ev.EventName()]...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (c *Channel) redial() (*websocket.Conn, bool) {
	backoff := c.minBackoff
	for {
		c.logger.WithField("backoff", backoff).Info("realtime reconnect attempt")
		select {
		case <-c.ctx.Done():
			return nil, false
		case <-time.After(backoff):
		}
		conn, err := c.dial(c.ctx)
		if err != nil {
			c.logger.WithError(err).Warn("realtime connect error")
			c.report(err)
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return nil, false
		}
		c.conn = conn
		c.connected = true
		board := c.joined
		c.mu.Unlock()
		c.logger.Info("realtime connected")

		if board != "" {
			frame, err := domain.BoardFrame(domain.JoinBoard, board)
			if err == nil {
				err = c.send(c.ctx, frame)
			}
			if err != nil {
				c.logger.WithError(err).WithField("board_id", board).Warn("realtime rejoin failed")
			}
		}
		return conn, true
	}
}

func (c *Channel) report(err error) {
	if err == nil {
		return
	}
	select {
	case c.errs <- err:
	default:
	}
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
