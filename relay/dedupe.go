package relay

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"kanban-sync/internal/consts"
)

// Deduper remembers frame ids so a frame re-sent by a flaky client is
// forwarded once.
type Deduper interface {
	// Add records id and reports whether it was seen for the first time.
	Add(ctx context.Context, id string) (bool, error)
}

// RedisDeduper shares seen frame ids across relay instances.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) Add(ctx context.Context, id string) (bool, error) {
	return r.client.SetNX(ctx, consts.FrameDedupePrefix+id, 1, r.ttl).Result()
}

// MemoryDeduper is the single-instance variant.
type MemoryDeduper struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	seen  map[string]time.Time
	sweep time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (m *MemoryDeduper) Add(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if now.Sub(m.sweep) > m.ttl {
		for k, exp := range m.seen {
			if now.After(exp) {
				delete(m.seen, k)
			}
		}
		m.sweep = now
	}
	if exp, ok := m.seen[id]; ok && now.Before(exp) {
		return false, nil
	}
	m.seen[id] = now.Add(m.ttl)
	return true, nil
}
