// Package session owns everything that lives as long as one open board: the
// entity store contents, the realtime channel and the drag coordinator.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"

	"kanban-sync/domain"
	"kanban-sync/drag"
	"kanban-sync/gateway"
	"kanban-sync/mutation"
	"kanban-sync/realtime"
	"kanban-sync/store"
)

var (
	ErrNotOpen     = errors.New("no board open")
	ErrClosed      = errors.New("board session closed")
	ErrUnknownList = errors.New("list not in snapshot")
)

// Gateway is the remote API the session writes through.
type Gateway interface {
	Token() string
	GetBoard(ctx context.Context, id string) (domain.Board, error)
	MoveTask(ctx context.Context, id, targetListID string) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
	CreateTaskInto(ctx context.Context, st gateway.Store, title, listID, status string) (domain.Task, error)
	CreateListInto(ctx context.Context, st gateway.Store, name, boardID string) (domain.List, error)
	UpdateTaskInto(ctx context.Context, st gateway.Store, id string, p domain.TaskPatch) (domain.Task, error)
}

// Config tunes a Session. An empty RealtimeURL keeps the session HTTP only.
type Config struct {
	RealtimeURL string
	// ReconnectMaxBackoff caps the redial wait. Zero disables reconnecting.
	ReconnectMaxBackoff time.Duration
	// AllowDuplicates keeps a peer task-created for an id the store already
	// holds as a second entry.
	AllowDuplicates bool
	Logger          *log.Logger
	// OnMoveError is installed on every drag coordinator the session builds.
	OnMoveError func(m *drag.Move, err error)
}

type state int

const (
	stateNew state = iota
	stateOpen
	stateClosed
)

// Session is a board view's lifetime. Open and Close bracket it; a Session
// can be reopened on another board, which closes the current one first.
type Session struct {
	gw     Gateway
	cfg    Config
	logger *log.Logger
	store  *store.Store

	// opMu serialises Open and Close.
	opMu sync.Mutex

	mu      sync.Mutex
	state   state
	boardID string
	channel *realtime.Channel
	coord   *drag.Coordinator
}

// New returns an unopened session writing through gw.
func New(gw Gateway, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	var opts []store.Option
	if cfg.AllowDuplicates {
		opts = append(opts, store.AllowDuplicates())
	}
	return &Session{
		gw:     gw,
		cfg:    cfg,
		logger: logger,
		store:  store.New(opts...),
	}
}

// Open loads boardID and subscribes to its peer notifications. A failure to
// reach the relay is logged and leaves the session usable over HTTP for its
// whole lifetime: only a channel that connected once is redialled. Open the
// board again to retry the relay.
func (s *Session) Open(ctx context.Context, boardID string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.closeLocked(ctx); err != nil {
		return err
	}
	board, err := s.gw.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	s.store.SetBoard(board)
	logger := s.logger.WithField("board_id", boardID)

	var ch *realtime.Channel
	if s.cfg.RealtimeURL != "" {
		ch, err = s.connect(ctx, boardID)
		if err != nil {
			logger.WithError(err).Warn("realtime unavailable, continuing without live updates")
			ch = nil
		}
	}

	var notifier drag.Notifier
	if ch != nil {
		notifier = ch
	}
	coord := drag.New(s.store, s.gw, notifier, boardID, s.logger)
	coord.OnError = s.cfg.OnMoveError

	s.mu.Lock()
	s.state = stateOpen
	s.boardID = boardID
	s.channel = ch
	s.coord = coord
	s.mu.Unlock()
	logger.WithField("lists", len(board.Lists)).Info("board opened")
	return nil
}

func (s *Session) connect(ctx context.Context, boardID string) (*realtime.Channel, error) {
	opts := []realtime.Option{realtime.WithLogger(s.logger)}
	if s.cfg.ReconnectMaxBackoff > 0 {
		opts = append(opts,
			realtime.WithReconnect(s.cfg.ReconnectMaxBackoff),
			realtime.WithOnReconnect(func(ctx context.Context) {
				// Notifications sent while disconnected are lost.
				if err := s.refetch(ctx, boardID); err != nil && !errors.Is(err, ErrClosed) {
					s.logger.WithError(err).WithField("board_id", boardID).Warn("refetch after reconnect failed")
				}
			}),
		)
	}
	ch, err := realtime.Dial(ctx, s.cfg.RealtimeURL, s.gw.Token(), opts...)
	if err != nil {
		return nil, err
	}
	for _, name := range domain.MutationEvents {
		ch.On(name, func(ev domain.Event) {
			if !realtime.Apply(s.store, ev) {
				s.logger.WithFields(log.Fields{"event": ev.EventName(), "board_id": ev.Board()}).Debug("peer event had no effect")
			}
		})
	}
	if err := ch.Join(ctx, boardID); err != nil {
		ch.Close()
		return nil, err
	}
	return ch, nil
}

// Close leaves the board, tears the channel down, waits for moves in flight
// and empties the store. Calling Close on a session that is not open does
// nothing.
func (s *Session) Close(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.closeLocked(ctx)
}

func (s *Session) closeLocked(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateOpen {
		s.mu.Unlock()
		return nil
	}
	ch, coord, boardID := s.channel, s.coord, s.boardID
	s.state = stateClosed
	s.channel = nil
	s.coord = nil
	s.boardID = ""
	s.mu.Unlock()

	logger := s.logger.WithField("board_id", boardID)
	if ch != nil {
		if err := ch.Leave(ctx, boardID); err != nil {
			logger.WithError(err).Warn("leave board failed")
		}
		ch.OffAll()
		if err := ch.Close(); err != nil {
			logger.WithError(err).Debug("realtime close")
		}
	}
	coord.Wait()
	s.store.Clear()
	logger.Info("board closed")
	return nil
}

func (s *Session) current() (string, *realtime.Channel, *drag.Coordinator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateNew:
		return "", nil, nil, ErrNotOpen
	case stateClosed:
		return "", nil, nil, ErrClosed
	}
	return s.boardID, s.channel, s.coord, nil
}

// Store returns the session's entity store. Its contents are only
// meaningful while the session is open.
func (s *Session) Store() *store.Store {
	return s.store
}

// BoardID returns the open board, or "".
func (s *Session) BoardID() string {
	id, _, _, _ := s.current()
	return id
}

// Live reports whether peer notifications are being received.
func (s *Session) Live() bool {
	_, ch, _, err := s.current()
	return err == nil && ch != nil && ch.Connected()
}

// Drag returns the coordinator for the open board.
func (s *Session) Drag() (*drag.Coordinator, error) {
	_, _, coord, err := s.current()
	return coord, err
}

// UserID returns the subject of the gateway's bearer token without
// verifying it. The relay and API do the verification.
func (s *Session) UserID() string {
	token := s.gw.Token()
	if token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}

// Refetch reloads the open board wholesale. The session does this itself
// after the realtime channel reconnects.
func (s *Session) Refetch(ctx context.Context) error {
	boardID, _, _, err := s.current()
	if err != nil {
		return err
	}
	return s.refetch(ctx, boardID)
}

func (s *Session) refetch(ctx context.Context, boardID string) error {
	board, err := s.gw.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen || s.boardID != boardID {
		return ErrClosed
	}
	s.store.SetBoard(board)
	s.logger.WithField("board_id", boardID).Debug("board refetched")
	return nil
}

// CreateList adds a list at the end of the open board.
func (s *Session) CreateList(ctx context.Context, name string) (domain.List, error) {
	boardID, ch, _, err := s.current()
	if err != nil {
		return domain.List{}, err
	}
	name, err = domain.ValidateName(name)
	if err != nil {
		return domain.List{}, gateway.ValidationError("create list", err)
	}
	l, err := s.gw.CreateListInto(ctx, s.store, name, boardID)
	if err != nil {
		return domain.List{}, err
	}
	s.emit(ctx, ch, domain.ListCreatedEvent{BoardID: boardID, List: l})
	return l, nil
}

// CreateTask adds a task to listID. The task's status starts as the list's
// current name.
func (s *Session) CreateTask(ctx context.Context, listID, title string) (domain.Task, error) {
	boardID, ch, _, err := s.current()
	if err != nil {
		return domain.Task{}, err
	}
	title, err = domain.ValidateTitle(title)
	if err != nil {
		return domain.Task{}, gateway.ValidationError("create task", err)
	}
	list, ok := s.store.List(listID)
	if !ok {
		return domain.Task{}, fmt.Errorf("create task in %s: %w", listID, ErrUnknownList)
	}
	t, err := s.gw.CreateTaskInto(ctx, s.store, title, listID, list.Name)
	if err != nil {
		return domain.Task{}, err
	}
	s.emit(ctx, ch, domain.TaskCreatedEvent{BoardID: boardID, Task: t})
	return t, nil
}

// UpdateTask applies p locally, then on the server. A rejected update is
// reverted.
func (s *Session) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	boardID, ch, _, err := s.current()
	if err != nil {
		return domain.Task{}, err
	}
	if p.Title != nil {
		title, err := domain.ValidateTitle(*p.Title)
		if err != nil {
			return domain.Task{}, gateway.ValidationError("update task", err)
		}
		p.Title = &title
	}
	if p.ListID != nil {
		if _, ok := s.store.List(*p.ListID); !ok {
			return domain.Task{}, fmt.Errorf("update task %s: %w", id, ErrUnknownList)
		}
	}

	cmd := mutation.NewUpdateTask(id, p)
	if err := cmd.Apply(s.store); err != nil {
		return domain.Task{}, err
	}
	t, err := s.gw.UpdateTaskInto(ctx, s.store, id, p)
	if err != nil {
		cmd.Undo(s.store)
		s.logger.WithError(err).WithField("task_id", id).Warn("update rejected, reverted")
		return domain.Task{}, err
	}
	merged, ok := s.store.Task(id)
	if !ok {
		merged = t
	}
	s.emit(ctx, ch, domain.TaskUpdatedEvent{
		BoardID: boardID,
		Task:    domain.TaskChange{ID: id, TaskPatch: domain.PatchFromTask(merged)},
	})
	return merged, nil
}

// DeleteTask removes the task locally, then on the server. A rejected
// delete puts the task back at the end of its list.
func (s *Session) DeleteTask(ctx context.Context, id string) error {
	boardID, ch, _, err := s.current()
	if err != nil {
		return err
	}
	cmd := &mutation.DeleteTask{TaskID: id}
	if err := cmd.Apply(s.store); err != nil {
		return err
	}
	if err := s.gw.DeleteTask(ctx, id); err != nil {
		cmd.Undo(s.store)
		s.logger.WithError(err).WithField("task_id", id).Warn("delete rejected, reverted")
		return err
	}
	s.emit(ctx, ch, domain.TaskDeletedEvent{BoardID: boardID, TaskID: id, ListID: cmd.Removed().ListID})
	return nil
}

// MoveTask drags id onto targetListID in one step.
func (s *Session) MoveTask(ctx context.Context, id, targetListID string) (*drag.Move, error) {
	coord, err := s.Drag()
	if err != nil {
		return nil, err
	}
	if _, ok := s.store.List(targetListID); !ok {
		return nil, fmt.Errorf("move task %s: %w", id, ErrUnknownList)
	}
	if err := coord.Start(id); err != nil {
		return nil, err
	}
	return coord.Drop(ctx, targetListID)
}

func (s *Session) emit(ctx context.Context, ch *realtime.Channel, ev domain.Event) {
	if ch == nil {
		return
	}
	if err := ch.Emit(ctx, ev); err != nil {
		s.logger.WithError(err).WithField("event", ev.EventName()).Warn("notification not sent")
	}
}
