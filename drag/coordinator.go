// Package drag turns a drag gesture into at most one task move.
package drag

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"kanban-sync/domain"
	"kanban-sync/mutation"
)

// State of the coordinator.
type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "idle"
}

var (
	ErrAlreadyDragging = errors.New("a drag is already in progress")
	ErrNotDragging     = errors.New("no drag in progress")
	ErrUnknownTask     = errors.New("task not in snapshot")
)

// Mover persists a move on the server.
type Mover interface {
	MoveTask(ctx context.Context, id, targetListID string) (domain.Task, error)
}

// Store is the snapshot a coordinator moves tasks in.
type Store interface {
	mutation.Store
	List(id string) (domain.List, bool)
}

// Notifier tells peers about a move.
type Notifier interface {
	Emit(ctx context.Context, ev domain.Event) error
}

// Coordinator runs the Idle → Dragging → Idle machine for one board.
type Coordinator struct {
	store    Store
	mover    Mover
	notifier Notifier
	boardID  string
	logger   *log.Logger

	// OnError is called from the move goroutine after a server rejection has
	// been compensated.
	OnError func(m *Move, err error)

	mu     sync.Mutex
	state  State
	active string

	inflight sync.WaitGroup
}

// New returns an idle coordinator. notifier may be nil when no realtime
// channel is open.
func New(st Store, mover Mover, notifier Notifier, boardID string, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Coordinator{
		store:    st,
		mover:    mover,
		notifier: notifier,
		boardID:  boardID,
		logger:   logger,
	}
}

// State returns the current machine state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active returns the id of the task being dragged, or "".
func (c *Coordinator) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Start captures the task under the pointer.
func (c *Coordinator) Start(taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Dragging {
		return ErrAlreadyDragging
	}
	if _, ok := c.store.Task(taskID); !ok {
		return ErrUnknownTask
	}
	c.state = Dragging
	c.active = taskID
	return nil
}

// Cancel ends the gesture without a drop target.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	c.state = Idle
	c.active = ""
	c.mu.Unlock()
}

// Drop ends the gesture over targetListID. The source list is read from the
// store at drop time, so a peer move that landed mid-drag is respected. A
// nil Move means nothing happened: no target, a list the snapshot does not
// hold, or the task was dropped back where it already is.
func (c *Coordinator) Drop(ctx context.Context, targetListID string) (*Move, error) {
	c.mu.Lock()
	if c.state != Dragging {
		c.mu.Unlock()
		return nil, ErrNotDragging
	}
	taskID := c.active
	c.state = Idle
	c.active = ""
	c.mu.Unlock()

	if targetListID == "" {
		return nil, nil
	}
	if _, ok := c.store.List(targetListID); !ok {
		c.logger.WithFields(log.Fields{"task_id": taskID, "to": targetListID}).Debug("drop outside any known list ignored")
		return nil, nil
	}
	task, ok := c.store.Task(taskID)
	if !ok {
		return nil, ErrUnknownTask
	}
	source := task.ListID
	if source == targetListID {
		return nil, nil
	}

	cmd := &mutation.MoveTask{TaskID: taskID, From: source, To: targetListID}
	if err := cmd.Apply(c.store); err != nil {
		return nil, err
	}
	m := &Move{TaskID: taskID, From: source, To: targetListID, done: make(chan struct{})}

	c.inflight.Add(1)
	go c.persist(context.WithoutCancel(ctx), cmd, m)

	c.notify(ctx, domain.TaskMovedEvent{
		BoardID:      c.boardID,
		TaskID:       taskID,
		SourceListID: source,
		TargetListID: targetListID,
		Task:         domain.TaskPatch{ListID: domain.String(targetListID)},
	})
	return m, nil
}

// Wait blocks until every move started by Drop has settled.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}

func (c *Coordinator) persist(ctx context.Context, cmd *mutation.MoveTask, m *Move) {
	defer c.inflight.Done()
	_, err := c.mover.MoveTask(ctx, cmd.TaskID, cmd.To)
	if err != nil {
		entry := c.logger.WithError(err).WithFields(log.Fields{
			"task_id": cmd.TaskID,
			"from":    cmd.From,
			"to":      cmd.To,
		})
		if cmd.Undo(c.store) {
			m.compensated = true
			entry.Warn("move rejected, reverted")
			c.notify(ctx, domain.TaskMovedEvent{
				BoardID:      c.boardID,
				TaskID:       cmd.TaskID,
				SourceListID: cmd.To,
				TargetListID: cmd.From,
				Task:         domain.TaskPatch{ListID: domain.String(cmd.From)},
			})
		} else {
			entry.Warn("move rejected, task moved since; left in place")
		}
	}
	m.err = err
	close(m.done)
	if err != nil && c.OnError != nil {
		c.OnError(m, err)
	}
}

func (c *Coordinator) notify(ctx context.Context, ev domain.Event) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Emit(ctx, ev); err != nil {
		c.logger.WithError(err).WithField("event", ev.EventName()).Warn("move notification not sent")
	}
}

// Move is the handle for one dropped task.
type Move struct {
	TaskID string
	From   string
	To     string

	done        chan struct{}
	err         error
	compensated bool
}

// Done is closed once the server has answered.
func (m *Move) Done() <-chan struct{} { return m.done }

// Wait blocks until the server answers and returns its error.
func (m *Move) Wait() error {
	<-m.done
	return m.err
}

// Err returns the server error once Done is closed, nil before.
func (m *Move) Err() error {
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}

// Compensated reports whether a failed move was reverted in the store.
func (m *Move) Compensated() bool {
	<-m.done
	return m.compensated
}
