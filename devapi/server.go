// Package devapi is an in-memory board API speaking the same envelope and
// routes as the production backend. The relay binary can mount it for local
// development and tests run sessions against it.
package devapi

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-sync/domain"
)

const maxBodySize = 1 << 20

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type account struct {
	user         domain.User
	passwordHash []byte
}

// Server holds every board, list and task in memory.
type Server struct {
	secret []byte
	logger *log.Logger
	now    func() time.Time

	mu       sync.Mutex
	accounts map[string]*account // by email
	boards   map[string]*domain.Board
	lists    map[string]*domain.List
	tasks    map[string]*domain.Task
	seq      int
	order    map[string]int
	failures map[string][]int

	replays *replayCache
}

// New returns an empty server signing tokens with secret.
func New(secret []byte, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Server{
		secret:   secret,
		logger:   logger,
		now:      time.Now,
		accounts: make(map[string]*account),
		boards:   make(map[string]*domain.Board),
		lists:    make(map[string]*domain.List),
		tasks:    make(map[string]*domain.Task),
		order:    make(map[string]int),
		failures: make(map[string][]int),
		replays:  newReplayCache(idempotencyTTL, time.Now),
	}
}

// Register wires the API routes under prefix, e.g. "/api".
func (s *Server) Register(e *echo.Echo, prefix string) {
	g := e.Group(prefix, s.injectFailures)
	g.POST("/auth/signup", s.signup)
	g.POST("/auth/login", s.login)

	authed := g.Group("", s.requireAuth, s.idempotent)
	authed.GET("/boards", s.listBoards)
	authed.POST("/boards", s.createBoard)
	authed.GET("/boards/:id", s.getBoard)
	authed.POST("/lists", s.createList)
	authed.POST("/tasks", s.createTask)
	authed.PUT("/tasks/:id", s.updateTask)
	authed.DELETE("/tasks/:id", s.deleteTask)
}

// FailNext makes the next request with the given method answer status
// instead of being handled. Calls queue up.
func (s *Server) FailNext(method string, status int) {
	s.mu.Lock()
	s.failures[method] = append(s.failures[method], status)
	s.mu.Unlock()
}

func (s *Server) injectFailures(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		method := c.Request().Method
		s.mu.Lock()
		queue := s.failures[method]
		status := 0
		if len(queue) > 0 {
			status = queue[0]
			s.failures[method] = queue[1:]
		}
		s.mu.Unlock()
		if status != 0 {
			return fail(c, status, "")
		}
		return next(c)
	}
}

func respond(c echo.Context, status int, data any) error {
	payload, err := sonic.Marshal(envelope{Success: true, Data: data})
	if err != nil {
		return err
	}
	return c.JSONBlob(status, payload)
}

func fail(c echo.Context, status int, message string) error {
	payload, err := sonic.Marshal(envelope{Success: false, Message: message})
	if err != nil {
		return err
	}
	return c.JSONBlob(status, payload)
}

func decode(c echo.Context, v any) error {
	body := http.MaxBytesReader(c.Response(), c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(body)
	return dec.Decode(v)
}

// nextOrder stamps creation order so listings are stable.
func (s *Server) nextOrder(id string) {
	s.seq++
	s.order[id] = s.seq
}

func (s *Server) sortByOrder(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return s.order[ids[i]] < s.order[ids[j]] })
}

func (s *Server) boardView(b *domain.Board) domain.Board {
	out := b.Clone()
	var listIDs []string
	for id, l := range s.lists {
		if l.BoardID == b.ID {
			listIDs = append(listIDs, id)
		}
	}
	s.sortByOrder(listIDs)
	out.Lists = make([]domain.List, 0, len(listIDs))
	for _, id := range listIDs {
		out.Lists = append(out.Lists, s.listView(s.lists[id]))
	}
	return out
}

func (s *Server) listView(l *domain.List) domain.List {
	out := l.Clone()
	var taskIDs []string
	for id, t := range s.tasks {
		if t.ListID == l.ID {
			taskIDs = append(taskIDs, id)
		}
	}
	s.sortByOrder(taskIDs)
	out.Tasks = make([]domain.Task, 0, len(taskIDs))
	for _, id := range taskIDs {
		out.Tasks = append(out.Tasks, s.tasks[id].Clone())
	}
	return out
}

func isMember(b *domain.Board, userID string) bool {
	for _, m := range b.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
