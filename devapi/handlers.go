package devapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"kanban-sync/domain"
)

type boardRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type listRequest struct {
	Name    string `json:"name"`
	BoardID string `json:"boardId"`
}

type taskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ListID      string `json:"listId"`
	Status      string `json:"status"`
}

func (s *Server) listBoards(c echo.Context) error {
	user := currentUser(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, b := range s.boards {
		if isMember(b, user.ID) {
			ids = append(ids, id)
		}
	}
	s.sortByOrder(ids)
	out := make([]domain.Board, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.boards[id].Clone())
	}
	return respond(c, http.StatusOK, out)
}

func (s *Server) createBoard(c echo.Context) error {
	var req boardRequest
	if err := decode(c, &req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return fail(c, http.StatusBadRequest, "Board name is required")
	}
	now := s.now()
	b := &domain.Board{
		ID:          uuid.NewString(),
		Name:        name,
		Description: req.Description,
		Members:     []domain.User{currentUser(c)},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.mu.Lock()
	s.boards[b.ID] = b
	s.nextOrder(b.ID)
	out := b.Clone()
	s.mu.Unlock()
	return respond(c, http.StatusCreated, out)
}

// getBoard returns the nested board. Opening a board makes the caller a
// member so shared links work.
func (s *Server) getBoard(c echo.Context) error {
	user := currentUser(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[c.Param("id")]
	if !ok {
		return fail(c, http.StatusNotFound, "Board not found")
	}
	if !isMember(b, user.ID) {
		b.Members = append(b.Members, user)
	}
	return respond(c, http.StatusOK, s.boardView(b))
}

func (s *Server) createList(c echo.Context) error {
	var req listRequest
	if err := decode(c, &req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || req.BoardID == "" {
		return fail(c, http.StatusBadRequest, "List name and board are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.boards[req.BoardID]; !ok {
		return fail(c, http.StatusNotFound, "Board not found")
	}
	now := s.now()
	l := &domain.List{
		ID:        uuid.NewString(),
		Name:      name,
		BoardID:   req.BoardID,
		Position:  float64(s.countLists(req.BoardID)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.lists[l.ID] = l
	s.nextOrder(l.ID)
	return respond(c, http.StatusCreated, s.listView(l))
}

func (s *Server) createTask(c echo.Context) error {
	var req taskRequest
	if err := decode(c, &req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	title := strings.TrimSpace(req.Title)
	if title == "" || req.ListID == "" {
		return fail(c, http.StatusBadRequest, "Task title and list are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lists[req.ListID]; !ok {
		return fail(c, http.StatusNotFound, "List not found")
	}
	now := s.now()
	t := &domain.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: req.Description,
		ListID:      req.ListID,
		Status:      req.Status,
		Position:    float64(s.countTasks(req.ListID)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.tasks[t.ID] = t
	s.nextOrder(t.ID)
	return respond(c, http.StatusCreated, t.Clone())
}

func (s *Server) updateTask(c echo.Context) error {
	var p domain.TaskPatch
	if err := decode(c, &p); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return fail(c, http.StatusBadRequest, "Task title is required")
	}
	p.CreatedAt = nil
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[c.Param("id")]
	if !ok {
		return fail(c, http.StatusNotFound, "Task not found")
	}
	if p.ListID != nil && *p.ListID != t.ListID {
		if _, ok := s.lists[*p.ListID]; !ok {
			return fail(c, http.StatusBadRequest, "List not found")
		}
		s.nextOrder(t.ID)
	}
	p.Apply(t)
	t.UpdatedAt = s.now()
	return respond(c, http.StatusOK, t.Clone())
}

func (s *Server) deleteTask(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	if _, ok := s.tasks[id]; !ok {
		return fail(c, http.StatusNotFound, "Task not found")
	}
	delete(s.tasks, id)
	delete(s.order, id)
	return respond(c, http.StatusOK, nil)
}

func (s *Server) countLists(boardID string) int {
	n := 0
	for _, l := range s.lists {
		if l.BoardID == boardID {
			n++
		}
	}
	return n
}

func (s *Server) countTasks(listID string) int {
	n := 0
	for _, t := range s.tasks {
		if t.ListID == listID {
			n++
		}
	}
	return n
}
