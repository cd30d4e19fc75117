package domain

import "time"

// User is referenced by boards (membership) and tasks (assignment).
type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Task is a unit of work owned by exactly one list.
type Task struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ListID      string    `json:"listId"`
	Assignees   []User    `json:"assignees"`
	Status      string    `json:"status"`
	Position    float64   `json:"position"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// List is an ordered column of tasks. Tasks is only populated on the wire
// and in snapshots.
type List struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	BoardID   string    `json:"boardId"`
	Position  float64   `json:"position"`
	Tasks     []Task    `json:"tasks"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Board is the top-level container loaded wholesale when a board is opened.
type Board struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Members     []User    `json:"members"`
	Lists       []List    `json:"lists"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Clone returns a copy of t that shares no slices with t.
func (t Task) Clone() Task {
	if t.Assignees != nil {
		t.Assignees = append([]User(nil), t.Assignees...)
	}
	return t
}

// Clone returns a copy of l that shares no slices with l.
func (l List) Clone() List {
	if l.Tasks != nil {
		tasks := make([]Task, len(l.Tasks))
		for i, t := range l.Tasks {
			tasks[i] = t.Clone()
		}
		l.Tasks = tasks
	}
	return l
}

// Clone returns a deep copy of b.
func (b Board) Clone() Board {
	if b.Members != nil {
		b.Members = append([]User(nil), b.Members...)
	}
	if b.Lists != nil {
		lists := make([]List, len(b.Lists))
		for i, l := range b.Lists {
			lists[i] = l.Clone()
		}
		b.Lists = lists
	}
	return b
}
