// Package store holds the canonical in-memory snapshot of the open board.
//
// The flat task collection is the only task state kept: every entry carries
// its ListID and an append rank, and list containment is derived from those
// on read. A task therefore always appears under exactly the list its ListID
// names, whatever sequence of operations produced it.
package store

import (
	"slices"
	"sync"

	"kanban-sync/domain"
)

type entry struct {
	task domain.Task
	rank uint64
}

// Store is safe for concurrent use; every operation is applied atomically in
// the order callers invoke it.
type Store struct {
	mu sync.Mutex

	allowDuplicates bool

	board    *domain.Board
	lists    []domain.List
	tasks    []entry
	nextRank uint64
	version  uint64

	watchers *broker
}

// Option configures a Store.
type Option func(*Store)

// AllowDuplicates disables the dedupe-by-id guard on AddTask and AddList so
// that a repeated add produces a second entry.
func AllowDuplicates() Option {
	return func(s *Store) { s.allowDuplicates = true }
}

// New returns an empty, uninitialised store.
func New(opts ...Option) *Store {
	s := &Store{watchers: newBroker()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetBoard replaces the whole snapshot. Tasks are taken from each list in
// list order, then intra-list order, and re-homed to the list that embeds them.
func (s *Store) SetBoard(b domain.Board) {
	s.mu.Lock()
	meta := b.Clone()
	meta.Lists = nil
	s.board = &meta
	s.lists = make([]domain.List, 0, len(b.Lists))
	s.tasks = nil
	s.nextRank = 0
	for _, l := range b.Lists {
		s.addListLocked(l)
	}
	s.changedLocked()
	s.mu.Unlock()
}

// Clear resets the store to the empty snapshot.
func (s *Store) Clear() {
	s.mu.Lock()
	s.board = nil
	s.lists = nil
	s.tasks = nil
	s.nextRank = 0
	s.changedLocked()
	s.mu.Unlock()
}

// AddTask appends t to the flat collection and, through its ListID, to the
// end of its list. A task whose list is unknown stays in the flat collection
// without appearing in any list. When the dedupe guard is on and the id is
// already present, the record replaces the existing entry instead and false
// is returned.
func (s *Store) AddTask(t domain.Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := s.addTaskLocked(t.Clone())
	s.changedLocked()
	return added
}

func (s *Store) addTaskLocked(t domain.Task) bool {
	if !s.allowDuplicates {
		if i := s.indexLocked(t.ID); i >= 0 {
			e := &s.tasks[i]
			if e.task.ListID != t.ListID {
				e.rank = s.rankLocked()
			}
			e.task = t
			return false
		}
	}
	s.tasks = append(s.tasks, entry{task: t, rank: s.rankLocked()})
	return true
}

// UpdateTask merges p into every entry with the given id. Changing ListID
// through a patch re-homes the task to the end of the new list. It reports
// whether any entry matched.
func (s *Store) UpdateTask(id string, p domain.TaskPatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for i := range s.tasks {
		e := &s.tasks[i]
		if e.task.ID != id {
			continue
		}
		found = true
		prevList := e.task.ListID
		p.Apply(&e.task)
		if e.task.ListID != prevList {
			e.rank = s.rankLocked()
		}
	}
	if found {
		s.changedLocked()
	}
	return found
}

// DeleteTask removes every entry with the given id.
func (s *Store) DeleteTask(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tasks[:0]
	for _, e := range s.tasks {
		if e.task.ID != id {
			kept = append(kept, e)
		}
	}
	removed := len(kept) != len(s.tasks)
	clear(s.tasks[len(kept):])
	s.tasks = kept
	if removed {
		s.changedLocked()
	}
	return removed
}

// MoveTask sets the task's ListID to targetListID and appends it to the
// target list. Because containment is derived, the task leaves whichever list
// held it, so the source argument is ignored. Unknown ids are a no-op.
func (s *Store) MoveTask(id, _, targetListID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for i := range s.tasks {
		e := &s.tasks[i]
		if e.task.ID != id {
			continue
		}
		found = true
		e.task.ListID = targetListID
		e.rank = s.rankLocked()
	}
	if found {
		s.changedLocked()
	}
	return found
}

// AddList appends l to the list collection. Tasks embedded in l are added to
// the flat collection under l.
func (s *Store) AddList(l domain.List) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := s.addListLocked(l)
	s.changedLocked()
	return added
}

func (s *Store) addListLocked(l domain.List) bool {
	l = l.Clone()
	tasks := l.Tasks
	l.Tasks = nil
	added := true
	if i := s.listIndexLocked(l.ID); i >= 0 && !s.allowDuplicates {
		s.lists[i] = l
		added = false
	} else {
		s.lists = append(s.lists, l)
	}
	for _, t := range tasks {
		t.ListID = l.ID
		s.addTaskLocked(t)
	}
	return added
}

// UpdateList merges p into every list with the given id.
func (s *Store) UpdateList(id string, p domain.ListPatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for i := range s.lists {
		if s.lists[i].ID == id {
			p.Apply(&s.lists[i])
			found = true
		}
	}
	if found {
		s.changedLocked()
	}
	return found
}

// Loaded reports whether a board snapshot is present.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board != nil
}

// BoardID returns the id of the loaded board, or "".
func (s *Store) BoardID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.board == nil {
		return ""
	}
	return s.board.ID
}

// Board returns the snapshot with each list's tasks filled in from the
// containment view.
func (s *Store) Board() (domain.Board, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.board == nil {
		return domain.Board{}, false
	}
	b := s.board.Clone()
	b.Lists = s.listsLocked()
	return b, true
}

// Lists returns the lists in order with their tasks.
func (s *Store) Lists() []domain.List {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listsLocked()
}

func (s *Store) listsLocked() []domain.List {
	out := make([]domain.List, len(s.lists))
	for i, l := range s.lists {
		l = l.Clone()
		l.Tasks = s.listTasksLocked(l.ID)
		out[i] = l
	}
	return out
}

// List returns the list with the given id, with its tasks.
func (s *Store) List(id string) (domain.List, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.listIndexLocked(id)
	if i < 0 {
		return domain.List{}, false
	}
	l := s.lists[i].Clone()
	l.Tasks = s.listTasksLocked(id)
	return l, true
}

// Tasks returns the flat task collection in flat order.
func (s *Store) Tasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Task, len(s.tasks))
	for i, e := range s.tasks {
		out[i] = e.task.Clone()
	}
	return out
}

// Task returns the first entry with the given id.
func (s *Store) Task(id string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.tasks[i].task.Clone(), true
	}
	return domain.Task{}, false
}

// ListTasks returns the tasks contained in the list, in containment order.
func (s *Store) ListTasks(listID string) []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listTasksLocked(listID)
}

func (s *Store) listTasksLocked(listID string) []domain.Task {
	matched := make([]entry, 0)
	for _, e := range s.tasks {
		if e.task.ListID == listID {
			matched = append(matched, e)
		}
	}
	slices.SortStableFunc(matched, func(a, b entry) int {
		switch {
		case a.rank < b.rank:
			return -1
		case a.rank > b.rank:
			return 1
		}
		return 0
	})
	out := make([]domain.Task, len(matched))
	for i, e := range matched {
		out[i] = e.task.Clone()
	}
	return out
}

// ListOf returns the id of the list currently containing the task. It fails
// when the task is unknown or orphaned.
func (s *Store) ListOf(taskID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(taskID)
	if i < 0 {
		return "", false
	}
	listID := s.tasks[i].task.ListID
	if s.listIndexLocked(listID) < 0 {
		return "", false
	}
	return listID, true
}

// Version increments on every mutation.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Watch returns a channel that receives a signal after mutations, and a
// function that stops the watch. Signals coalesce; readers should re-read
// the snapshot on every receive.
func (s *Store) Watch() (<-chan struct{}, func()) {
	ch := s.watchers.subscribe()
	return ch, func() { s.watchers.unsubscribe(ch) }
}

func (s *Store) changedLocked() {
	s.version++
	s.watchers.notify()
}

func (s *Store) rankLocked() uint64 {
	s.nextRank++
	return s.nextRank
}

func (s *Store) indexLocked(id string) int {
	for i := range s.tasks {
		if s.tasks[i].task.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) listIndexLocked(id string) int {
	for i := range s.lists {
		if s.lists[i].ID == id {
			return i
		}
	}
	return -1
}
