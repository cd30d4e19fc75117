package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

const (
	JoinBoard   = "join-board"
	LeaveBoard  = "leave-board"
	TaskCreated = "task-created"
	TaskUpdated = "task-updated"
	TaskMoved   = "task-moved"
	TaskDeleted = "task-deleted"
	ListCreated = "list-created"
	ListUpdated = "list-updated"
	ErrorEvent  = "error"
)

// MutationEvents lists the board mutation notifications carried by the
// realtime channel, in no particular order.
var MutationEvents = []string{TaskCreated, TaskUpdated, TaskMoved, TaskDeleted, ListCreated, ListUpdated}

// Frame is the unit written to and read from the realtime connection.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	ID    string          `json:"id,omitempty"`
}

// ErrorData is the payload of an "error" frame.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event is a validated board mutation notification.
type Event interface {
	EventName() string
	Board() string
	Validate() error
}

// TaskChange is a partial task record keyed by id.
type TaskChange struct {
	ID string `json:"_id"`
	TaskPatch
}

// ListChange is a partial list record keyed by id.
type ListChange struct {
	ID string `json:"_id"`
	ListPatch
}

type TaskCreatedEvent struct {
	BoardID string `json:"boardId"`
	Task    Task   `json:"task"`
}

type TaskUpdatedEvent struct {
	BoardID string     `json:"boardId"`
	Task    TaskChange `json:"task"`
}

type TaskMovedEvent struct {
	BoardID      string    `json:"boardId"`
	TaskID       string    `json:"taskId"`
	SourceListID string    `json:"sourceListId"`
	TargetListID string    `json:"targetListId"`
	Task         TaskPatch `json:"task"`
}

type TaskDeletedEvent struct {
	BoardID string `json:"boardId"`
	TaskID  string `json:"taskId"`
	ListID  string `json:"listId,omitempty"`
}

type ListCreatedEvent struct {
	BoardID string `json:"boardId"`
	List    List   `json:"list"`
}

type ListUpdatedEvent struct {
	BoardID string     `json:"boardId"`
	List    ListChange `json:"list"`
}

func (TaskCreatedEvent) EventName() string { return TaskCreated }
func (TaskUpdatedEvent) EventName() string { return TaskUpdated }
func (TaskMovedEvent) EventName() string   { return TaskMoved }
func (TaskDeletedEvent) EventName() string { return TaskDeleted }
func (ListCreatedEvent) EventName() string { return ListCreated }
func (ListUpdatedEvent) EventName() string { return ListUpdated }

func (e TaskCreatedEvent) Board() string { return e.BoardID }
func (e TaskUpdatedEvent) Board() string { return e.BoardID }
func (e TaskMovedEvent) Board() string   { return e.BoardID }
func (e TaskDeletedEvent) Board() string { return e.BoardID }
func (e ListCreatedEvent) Board() string { return e.BoardID }
func (e ListUpdatedEvent) Board() string { return e.BoardID }

func (e TaskCreatedEvent) Validate() error {
	if err := requireField("boardId", e.BoardID); err != nil {
		return err
	}
	if err := requireField("task._id", e.Task.ID); err != nil {
		return err
	}
	return requireField("task.listId", e.Task.ListID)
}

func (e TaskUpdatedEvent) Validate() error {
	if err := requireField("boardId", e.BoardID); err != nil {
		return err
	}
	return requireField("task._id", e.Task.ID)
}

func (e TaskMovedEvent) Validate() error {
	if err := requireField("boardId", e.BoardID); err != nil {
		return err
	}
	if err := requireField("taskId", e.TaskID); err != nil {
		return err
	}
	if err := requireField("sourceListId", e.SourceListID); err != nil {
		return err
	}
	if err := requireField("targetListId", e.TargetListID); err != nil {
		return err
	}
	if e.Task.ListID != nil && *e.Task.ListID != e.TargetListID {
		return fmt.Errorf("%w: task.listId %q disagrees with targetListId %q", ErrInvalidPayload, *e.Task.ListID, e.TargetListID)
	}
	return nil
}

func (e TaskDeletedEvent) Validate() error {
	if err := requireField("boardId", e.BoardID); err != nil {
		return err
	}
	return requireField("taskId", e.TaskID)
}

func (e ListCreatedEvent) Validate() error {
	if err := requireField("boardId", e.BoardID); err != nil {
		return err
	}
	if err := requireField("list._id", e.List.ID); err != nil {
		return err
	}
	if e.List.BoardID != "" && e.List.BoardID != e.BoardID {
		return fmt.Errorf("%w: list.boardId %q disagrees with boardId %q", ErrInvalidPayload, e.List.BoardID, e.BoardID)
	}
	return nil
}

func (e ListUpdatedEvent) Validate() error {
	if err := requireField("boardId", e.BoardID); err != nil {
		return err
	}
	return requireField("list._id", e.List.ID)
}

func requireField(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidPayload, name)
	}
	return nil
}

// DecodeEvent parses and validates the payload of a mutation notification.
func DecodeEvent(name string, data []byte) (Event, error) {
	var (
		ev  Event
		err error
	)
	switch name {
	case TaskCreated:
		var e TaskCreatedEvent
		err = sonic.Unmarshal(data, &e)
		ev = e
	case TaskUpdated:
		var e TaskUpdatedEvent
		err = sonic.Unmarshal(data, &e)
		ev = e
	case TaskMoved:
		var e TaskMovedEvent
		err = sonic.Unmarshal(data, &e)
		ev = e
	case TaskDeleted:
		var e TaskDeletedEvent
		err = sonic.Unmarshal(data, &e)
		ev = e
	case ListCreated:
		var e ListCreatedEvent
		err = sonic.Unmarshal(data, &e)
		ev = e
	case ListUpdated:
		var e ListUpdatedEvent
		err = sonic.Unmarshal(data, &e)
		ev = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, name, err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// EncodeEvent wraps ev in a frame with the given id.
func EncodeEvent(ev Event, id string) (Frame, error) {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: ev.EventName(), Data: data, ID: id}, nil
}

// BoardFrame builds a join-board or leave-board frame.
func BoardFrame(event, boardID string) (Frame, error) {
	data, err := sonic.Marshal(boardID)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: data}, nil
}

// DecodeBoardID reads the board id carried by a join-board or leave-board frame.
func DecodeBoardID(data []byte) (string, error) {
	var id string
	if err := sonic.Unmarshal(data, &id); err != nil {
		return "", fmt.Errorf("%w: board id: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: board id is required", ErrInvalidPayload)
	}
	return id, nil
}
