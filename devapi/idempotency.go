package devapi

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"kanban-sync/internal/consts"
)

const (
	idempotencyTTL      = 24 * time.Hour
	headerReplayed      = "Idempotent-Replayed"
	maxReplayedBodySize = 1 << 20
)

type storedResponse struct {
	status  int
	body    []byte
	expires time.Time
}

// replayCache remembers the answer to each (user, Idempotency-Key) pair so a
// retried POST returns the original result instead of creating twice.
type replayCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]storedResponse
}

func newReplayCache(ttl time.Duration, now func() time.Time) *replayCache {
	return &replayCache{ttl: ttl, now: now, entries: make(map[string]storedResponse)}
}

func (r *replayCache) get(key string) (storedResponse, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, ok := r.entries[key]
	if !ok {
		return storedResponse{}, false
	}
	if r.now().After(resp.expires) {
		delete(r.entries, key)
		return storedResponse{}, false
	}
	return resp, true
}

func (r *replayCache) put(key string, status int, body []byte) {
	r.mu.Lock()
	r.entries[key] = storedResponse{status: status, body: body, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()
}

// bodyRecorder tees what the handler writes.
type bodyRecorder struct {
	http.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(p []byte) (int, error) {
	if w.buf.Len()+len(p) <= maxReplayedBodySize {
		w.buf.Write(p)
	}
	return w.ResponseWriter.Write(p)
}

// idempotent replays successful POST responses for a repeated
// Idempotency-Key. Failed requests are not remembered so the client may
// retry them.
func (s *Server) idempotent(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		key := req.Header.Get(consts.HeaderIdempotencyKey)
		if req.Method != http.MethodPost || key == "" {
			return next(c)
		}
		cacheKey := currentUser(c).ID + ":" + req.URL.Path + ":" + key
		if stored, ok := s.replays.get(cacheKey); ok {
			c.Response().Header().Set(headerReplayed, "true")
			return c.JSONBlob(stored.status, stored.body)
		}

		rec := &bodyRecorder{ResponseWriter: c.Response().Writer}
		c.Response().Writer = rec
		err := next(c)
		c.Response().Writer = rec.ResponseWriter
		status := c.Response().Status
		if err == nil && status >= 200 && status < 300 {
			s.replays.put(cacheKey, status, bytes.Clone(rec.buf.Bytes()))
		}
		return err
	}
}
