package gateway

import (
	"context"

	"kanban-sync/domain"
)

// Store is the part of the entity store the reconcile helpers write to.
type Store interface {
	AddTask(t domain.Task) bool
	UpdateTask(id string, p domain.TaskPatch) bool
	AddList(l domain.List) bool
}

// CreateTaskInto creates a task and adds the authoritative record to st.
func (c *Client) CreateTaskInto(ctx context.Context, st Store, title, listID, status string) (domain.Task, error) {
	t, err := c.CreateTask(ctx, title, listID, status)
	if err != nil {
		return domain.Task{}, err
	}
	st.AddTask(t)
	return t, nil
}

// CreateListInto creates a list and adds the authoritative record to st.
func (c *Client) CreateListInto(ctx context.Context, st Store, name, boardID string) (domain.List, error) {
	l, err := c.CreateList(ctx, name, boardID)
	if err != nil {
		return domain.List{}, err
	}
	st.AddList(l)
	return l, nil
}

// UpdateTaskInto sends p and merges the server's record into st. Nothing is
// written to st when the call fails.
func (c *Client) UpdateTaskInto(ctx context.Context, st Store, id string, p domain.TaskPatch) (domain.Task, error) {
	t, err := c.UpdateTask(ctx, id, p)
	if err != nil {
		return domain.Task{}, err
	}
	st.UpdateTask(id, authoritative(t))
	return t, nil
}

// authoritative turns a server record into a merge patch. Fields the server
// left empty are not applied so that a sparse response cannot blank local
// state.
func authoritative(t domain.Task) domain.TaskPatch {
	p := domain.PatchFromTask(t)
	if t.Title == "" {
		p.Title = nil
	}
	if t.ListID == "" {
		p.ListID = nil
	}
	if t.Assignees == nil {
		p.Assignees = nil
	}
	if t.CreatedAt.IsZero() {
		p.CreatedAt = nil
	}
	if t.UpdatedAt.IsZero() {
		p.UpdatedAt = nil
	}
	return p
}
