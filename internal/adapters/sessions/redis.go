package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/Yanchun-Li/ai-divination/internal/domain"
)

const maxUpdateAttempts = 5

var errConflict = errors.New("session modified concurrently")

// RedisStore keeps sessions as JSON strings with a TTL, plus a sorted set per
// user indexed by creation time.
type RedisStore struct {
	pool   *redis.Pool
	prefix string
	ttl    time.Duration
}

// NewRedisPool dials url lazily. Connections idle for over a minute are pinged on borrow.
func NewRedisPool(url string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     8,
		IdleTimeout: 5 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.DialURL(url)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

func NewRedisStore(pool *redis.Pool, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "divination"
	}
	return &RedisStore{pool: pool, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(id string) string { return s.prefix + ":session:" + id }
func (s *RedisStore) userKey(id string) string { return s.prefix + ":user:" + id }
func (s *RedisStore) Close() error { return s.pool.Close() }
func (s *RedisStore) ttlSeconds() int64 { return int64(s.ttl / time.Second) }

func (s *RedisStore) conn(ctx context.Context) (redis.Conn, error) {
	c, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("redis connection: %w", err)
	}
	return c, nil
}

func (s *RedisStore) Create(ctx context.Context, sess domain.Session) error {
	doc, err := encode(sess)
	if err != nil {
		return err
	}
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	args := redis.Args{}.Add(s.key(sess.ID), doc, "NX")
	if s.ttl > 0 {
		args = args.Add("EX", s.ttlSeconds())
	}
	ok, err := redis.String(redis.DoContext(c, ctx, "SET", args...))
	if errors.Is(err, redis.ErrNil) {
		return fmt.Errorf("%w: session %s already exists", domain.ErrInvalidInput, sess.ID)
	}
	if err != nil || ok != "OK" {
		return fmt.Errorf("store session %s: %w", sess.ID, err)
	}

	if sess.UserID != "" {
		uk := s.userKey(sess.UserID)
		if _, err := redis.DoContext(c, ctx, "ZADD", uk, sess.CreatedAt.UnixMilli(), sess.ID); err != nil {
			return fmt.Errorf("index session %s: %w", sess.ID, err)
		}
		if s.ttl > 0 {
			if _, err := redis.DoContext(c, ctx, "EXPIRE", uk, s.ttlSeconds()); err != nil {
				return fmt.Errorf("expire user index: %w", err)
			}
		}
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (domain.Session, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	defer c.Close()
	return s.get(ctx, c, id)
}

func (s *RedisStore) get(ctx context.Context, c redis.Conn, id string) (domain.Session, error) {
	raw, err := redis.Bytes(redis.DoContext(c, ctx, "GET", s.key(id)))
	if errors.Is(err, redis.ErrNil) {
		return domain.Session{}, notFound(id)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session %s: %w", id, err)
	}
	return decode(raw)
}

// Update uses WATCH/MULTI and retries when another writer got there first.
func (s *RedisStore) Update(ctx context.Context, id string, fn func(*domain.Session) error) (domain.Session, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	defer c.Close()

	for range maxUpdateAttempts {
		sess, err := s.update(ctx, c, id, fn)
		if errors.Is(err, errConflict) {
			continue
		}
		return sess, err
	}
	return domain.Session{}, fmt.Errorf("update session %s: %w", id, errConflict)
}

func (s *RedisStore) update(ctx context.Context, c redis.Conn, id string, fn func(*domain.Session) error) (domain.Session, error) {
	key := s.key(id)
	if _, err := redis.DoContext(c, ctx, "WATCH", key); err != nil {
		return domain.Session{}, fmt.Errorf("watch session %s: %w", id, err)
	}
	sess, err := s.get(ctx, c, id)
	if err == nil {
		err = fn(&sess)
	}
	if err != nil {
		_, _ = redis.DoContext(c, ctx, "UNWATCH")
		return domain.Session{}, err
	}
	doc, err := encode(sess)
	if err != nil {
		_, _ = redis.DoContext(c, ctx, "UNWATCH")
		return domain.Session{}, err
	}

	_ = c.Send("MULTI")
	_ = c.Send("SET", key, doc, "KEEPTTL")
	reply, err := redis.DoContext(c, ctx, "EXEC")
	if err != nil {
		return domain.Session{}, fmt.Errorf("save session %s: %w", id, err)
	}
	if reply == nil {
		return domain.Session{}, errConflict
	}
	return sess, nil
}

func (s *RedisStore) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Session, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	ids, err := redis.Strings(redis.DoContext(c, ctx, "ZREVRANGE", s.userKey(userID), 0, listLimit(limit)-1))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]domain.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.get(ctx, c, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}
