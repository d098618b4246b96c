// Package sqlite stores client session state in a local SQLite file so that
// several terminals of the same user share one session. Writes are appended
// to a change log that other handles poll.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jakechorley/volunteer-portal/pkg/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS client_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS client_state_log (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	key TEXT NOT NULL,
	value TEXT NOT NULL DEFAULT '',
	deleted INTEGER NOT NULL DEFAULT 0,
	origin TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
`

// logRetention bounds how long change log rows are kept
const logRetention = 24 * time.Hour

// DefaultPollInterval is used when Open is given a non-positive interval
const DefaultPollInterval = 500 * time.Millisecond

// Store is a db.StateStore backed by a SQLite file
type Store struct {
	conn         *sql.DB
	origin       string
	pollInterval time.Duration

	mu     sync.Mutex
	closed bool
}

var _ db.StateStore = (*Store)(nil)

// Open opens (or creates) the state database at path
func Open(ctx context.Context, path string, pollInterval time.Duration) (*Store, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping state database: %w", err)
	}

	if err := migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	cutoff := time.Now().Add(-logRetention).UTC()
	if _, err := conn.ExecContext(ctx, `DELETE FROM client_state_log WHERE created_at < ?`, cutoff); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prune state change log: %w", err)
	}

	return &Store{
		conn:         conn,
		origin:       uuid.NewString(),
		pollInterval: pollInterval,
	}, nil
}

// migrate runs each statement separately; the driver only executes the first
// statement of a multi-statement string.
func migrate(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create state schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Origin() string {
	return s.origin
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return db.ErrClosed
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.checkOpen(); err != nil {
		return "", false, err
	}
	var value string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM client_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read state %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	now := time.Now().UTC()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO client_state (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, now); err != nil {
			return fmt.Errorf("failed to write state %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO client_state_log (key, value, deleted, origin, created_at) VALUES (?, ?, 0, ?, ?)
		`, key, value, s.origin, now); err != nil {
			return fmt.Errorf("failed to log state change %s: %w", key, err)
		}
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM client_state WHERE key = ?`, key); err != nil {
				return fmt.Errorf("failed to delete state %s: %w", key, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO client_state_log (key, deleted, origin, created_at) VALUES (?, 1, ?, ?)
			`, key, s.origin, now); err != nil {
				return fmt.Errorf("failed to log state change %s: %w", key, err)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin state transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state transaction: %w", err)
	}
	return nil
}

// Watch polls the change log from its current end
func (s *Store) Watch(ctx context.Context) (<-chan db.Change, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var last int64
	if err := s.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM client_state_log`).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to read state change log position: %w", err)
	}

	out := make(chan db.Change)
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			changes, next, err := s.changesSince(ctx, last)
			if err != nil {
				// Closed store or cancelled context; anything else is retried next tick
				if ctx.Err() != nil || s.checkOpen() != nil {
					return
				}
				continue
			}
			last = next

			for _, c := range changes {
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (s *Store) changesSince(ctx context.Context, seq int64) ([]db.Change, int64, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT seq, key, value, deleted, origin FROM client_state_log
		WHERE seq > ? ORDER BY seq
	`, seq)
	if err != nil {
		return nil, seq, fmt.Errorf("failed to query state change log: %w", err)
	}
	defer rows.Close()

	var changes []db.Change
	last := seq
	for rows.Next() {
		var c db.Change
		if err := rows.Scan(&last, &c.Key, &c.Value, &c.Deleted, &c.Origin); err != nil {
			return nil, seq, fmt.Errorf("failed to scan state change: %w", err)
		}
		if c.Origin == s.origin {
			continue
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, seq, fmt.Errorf("error iterating state change log: %w", err)
	}
	return changes, last, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}
