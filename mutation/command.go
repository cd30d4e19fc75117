// Package mutation holds reversible store changes. A command captures what it
// needs at Apply time so that Undo can restore the previous state if the
// server rejects the change.
package mutation

import (
	"errors"
	"fmt"

	"kanban-sync/domain"
)

// ErrTaskNotFound is returned when a command targets a task the store does
// not hold.
var ErrTaskNotFound = errors.New("task not found")

// Store is the subset of the entity store commands operate on.
type Store interface {
	Task(id string) (domain.Task, bool)
	AddTask(t domain.Task) bool
	UpdateTask(id string, p domain.TaskPatch) bool
	DeleteTask(id string) bool
	MoveTask(id, sourceListID, targetListID string) bool
}

// Command is an optimistic change with its compensating inverse.
type Command interface {
	Apply(st Store) error
	// Undo reverts the change and reports whether anything was reverted.
	Undo(st Store) bool
}

// MoveTask moves a task between lists.
type MoveTask struct {
	TaskID string
	From   string
	To     string
}

func (c *MoveTask) Apply(st Store) error {
	if !st.MoveTask(c.TaskID, c.From, c.To) {
		return fmt.Errorf("move %s: %w", c.TaskID, ErrTaskNotFound)
	}
	return nil
}

// Undo moves the task back to From, but only while it still sits in To. A
// later move by a peer is left alone.
func (c *MoveTask) Undo(st Store) bool {
	current, ok := st.Task(c.TaskID)
	if !ok || current.ListID != c.To {
		return false
	}
	return st.MoveTask(c.TaskID, c.To, c.From)
}

// UpdateTask merges a patch into a task.
type UpdateTask struct {
	TaskID string
	Patch  domain.TaskPatch

	inverse domain.TaskPatch
	applied bool
}

// NewUpdateTask returns an update command for id.
func NewUpdateTask(id string, p domain.TaskPatch) *UpdateTask {
	return &UpdateTask{TaskID: id, Patch: p}
}

func (c *UpdateTask) Apply(st Store) error {
	prev, ok := st.Task(c.TaskID)
	if !ok {
		return fmt.Errorf("update %s: %w", c.TaskID, ErrTaskNotFound)
	}
	c.inverse = c.Patch.Inverse(prev)
	c.applied = st.UpdateTask(c.TaskID, c.Patch)
	return nil
}

func (c *UpdateTask) Undo(st Store) bool {
	if !c.applied {
		return false
	}
	c.applied = false
	return st.UpdateTask(c.TaskID, c.inverse)
}

// DeleteTask removes a task; Undo re-inserts the captured record at the end
// of its list.
type DeleteTask struct {
	TaskID string

	removed domain.Task
	applied bool
}

func (c *DeleteTask) Apply(st Store) error {
	prev, ok := st.Task(c.TaskID)
	if !ok {
		return fmt.Errorf("delete %s: %w", c.TaskID, ErrTaskNotFound)
	}
	c.removed = prev
	c.applied = st.DeleteTask(c.TaskID)
	return nil
}

func (c *DeleteTask) Undo(st Store) bool {
	if !c.applied {
		return false
	}
	c.applied = false
	if _, exists := st.Task(c.TaskID); exists {
		return false
	}
	st.AddTask(c.removed)
	return true
}

// Removed returns the task captured by Apply.
func (c *DeleteTask) Removed() domain.Task {
	return c.removed
}
