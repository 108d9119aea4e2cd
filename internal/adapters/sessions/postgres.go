package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Yanchun-Li/ai-divination/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS divination_sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	doc        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS divination_sessions_user_idx
	ON divination_sessions (user_id, created_at DESC);
`

// PostgresStore keeps each session as a JSONB document.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects with the pgx driver and creates the table if needed.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := NewPostgresStore(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate sessions: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) Create(ctx context.Context, sess domain.Session) error {
	doc, err := encode(sess)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO divination_sessions (id, user_id, created_at, doc) VALUES ($1, $2, $3, $4)`,
		sess.ID, sess.UserID, sess.CreatedAt, doc)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (domain.Session, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM divination_sessions WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, notFound(id)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("select session %s: %w", id, err)
	}
	return decode(doc)
}

func (s *PostgresStore) Update(ctx context.Context, id string, fn func(*domain.Session) error) (domain.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var doc []byte
	err = tx.QueryRowContext(ctx, `SELECT doc FROM divination_sessions WHERE id = $1 FOR UPDATE`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, notFound(id)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("lock session %s: %w", id, err)
	}

	sess, err := decode(doc)
	if err != nil {
		return domain.Session{}, err
	}
	if err := fn(&sess); err != nil {
		return domain.Session{}, err
	}
	if doc, err = encode(sess); err != nil {
		return domain.Session{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE divination_sessions SET doc = $2 WHERE id = $1`, id, doc); err != nil {
		return domain.Session{}, fmt.Errorf("update session %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Session{}, fmt.Errorf("commit: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM divination_sessions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
