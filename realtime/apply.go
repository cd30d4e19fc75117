package realtime

import "kanban-sync/domain"

// Store is the set of entity store operations peer events map onto.
type Store interface {
	BoardID() string
	AddTask(t domain.Task) bool
	UpdateTask(id string, p domain.TaskPatch) bool
	DeleteTask(id string) bool
	MoveTask(id, sourceListID, targetListID string) bool
	AddList(l domain.List) bool
	UpdateList(id string, p domain.ListPatch) bool
}

// Apply mirrors a peer notification into st. Events for another board are
// ignored and unknown ids are silent no-ops. It reports whether the store
// changed.
func Apply(st Store, ev domain.Event) bool {
	if ev.Board() != st.BoardID() {
		return false
	}
	switch e := ev.(type) {
	case domain.TaskCreatedEvent:
		st.AddTask(e.Task)
		return true
	case domain.TaskUpdatedEvent:
		return st.UpdateTask(e.Task.ID, e.Task.TaskPatch)
	case domain.TaskMovedEvent:
		moved := st.MoveTask(e.TaskID, e.SourceListID, e.TargetListID)
		if moved && !e.Task.Empty() {
			st.UpdateTask(e.TaskID, e.Task)
		}
		return moved
	case domain.TaskDeletedEvent:
		return st.DeleteTask(e.TaskID)
	case domain.ListCreatedEvent:
		l := e.List
		if l.BoardID == "" {
			l.BoardID = e.BoardID
		}
		st.AddList(l)
		return true
	case domain.ListUpdatedEvent:
		return st.UpdateList(e.List.ID, e.List.ListPatch)
	}
	return false
}
