package domain

import "time"

// TaskPatch carries partial task fields. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	ListID      *string    `json:"listId,omitempty"`
	Assignees   *[]User    `json:"assignees,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Position    *float64   `json:"position,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// Empty reports whether the patch carries no fields.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.ListID == nil && p.Assignees == nil &&
		p.Status == nil && p.Position == nil && p.CreatedAt == nil && p.UpdatedAt == nil
}

// Apply merges the present fields into t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.ListID != nil {
		t.ListID = *p.ListID
	}
	if p.Assignees != nil {
		t.Assignees = append([]User(nil), (*p.Assignees)...)
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Position != nil {
		t.Position = *p.Position
	}
	if p.CreatedAt != nil {
		t.CreatedAt = *p.CreatedAt
	}
	if p.UpdatedAt != nil {
		t.UpdatedAt = *p.UpdatedAt
	}
}

// Inverse returns the patch that restores the values t holds for every field
// p touches.
func (p TaskPatch) Inverse(t Task) TaskPatch {
	var inv TaskPatch
	if p.Title != nil {
		inv.Title = ptr(t.Title)
	}
	if p.Description != nil {
		inv.Description = ptr(t.Description)
	}
	if p.ListID != nil {
		inv.ListID = ptr(t.ListID)
	}
	if p.Assignees != nil {
		prev := append([]User(nil), t.Assignees...)
		inv.Assignees = &prev
	}
	if p.Status != nil {
		inv.Status = ptr(t.Status)
	}
	if p.Position != nil {
		inv.Position = ptr(t.Position)
	}
	if p.CreatedAt != nil {
		inv.CreatedAt = ptr(t.CreatedAt)
	}
	if p.UpdatedAt != nil {
		inv.UpdatedAt = ptr(t.UpdatedAt)
	}
	return inv
}

// PatchFromTask returns a patch carrying every field of t.
func PatchFromTask(t Task) TaskPatch {
	assignees := append([]User(nil), t.Assignees...)
	return TaskPatch{
		Title:       ptr(t.Title),
		Description: ptr(t.Description),
		ListID:      ptr(t.ListID),
		Assignees:   &assignees,
		Status:      ptr(t.Status),
		Position:    ptr(t.Position),
		CreatedAt:   ptr(t.CreatedAt),
		UpdatedAt:   ptr(t.UpdatedAt),
	}
}

// ListPatch carries partial list fields.
type ListPatch struct {
	Name      *string    `json:"name,omitempty"`
	Position  *float64   `json:"position,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Apply merges the present fields into l.
func (p ListPatch) Apply(l *List) {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Position != nil {
		l.Position = *p.Position
	}
	if p.UpdatedAt != nil {
		l.UpdatedAt = *p.UpdatedAt
	}
}

// String returns a pointer to s, for building patches.
func String(s string) *string { return &s }

// Float returns a pointer to f, for building patches.
func Float(f float64) *float64 { return &f }

func ptr[T any](v T) *T { return &v }
