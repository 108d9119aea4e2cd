package sessions

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Yanchun-Li/ai-divination/internal/domain"
)

// MemoryStore keeps up to size sessions for ttl each. The least recently used
// session is evicted when full.
type MemoryStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, domain.Session]
}

func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{cache: expirable.NewLRU[string, domain.Session](size, nil, ttl)}
}

func (s *MemoryStore) Create(_ context.Context, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.Contains(sess.ID) {
		return fmt.Errorf("%w: session %s already exists", domain.ErrInvalidInput, sess.ID)
	}
	s.cache.Add(sess.ID, clone(sess))
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.cache.Get(id)
	if !ok {
		return domain.Session{}, notFound(id)
	}
	return clone(sess), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*domain.Session) error) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.cache.Get(id)
	if !ok {
		return domain.Session{}, notFound(id)
	}
	next := clone(cur)
	if err := fn(&next); err != nil {
		return domain.Session{}, err
	}
	s.cache.Add(id, next)
	return clone(next), nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string, limit int) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit = listLimit(limit)

	var out []domain.Session
	for _, sess := range s.cache.Values() {
		if sess.UserID == userID {
			out = append(out, clone(sess))
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Session) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
