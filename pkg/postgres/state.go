package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/volunteer-portal/pkg/db"
)

// notifyChannel is the LISTEN/NOTIFY channel carrying state changes
const notifyChannel = "client_state"

var _ db.StateStore = (*DB)(nil)

type changePayload struct {
	Key     string `json:"key"`
	Value   string `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
	Origin  string `json:"origin"`
}

func (d *DB) Origin() string {
	return d.origin
}

// Get retrieves a state value
func (d *DB) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := d.pool.QueryRow(ctx, `SELECT value FROM client_state WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read state %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts a state value. The notification is sent on commit.
func (d *DB) Set(ctx context.Context, key, value string) error {
	return d.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO client_state (key, value, updated_at, updated_by)
			VALUES ($1, $2, NOW(), $3)
			ON CONFLICT (key) DO UPDATE
			SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at, updated_by = EXCLUDED.updated_by
		`, key, value, d.origin)
		if err != nil {
			return fmt.Errorf("failed to write state %s: %w", key, err)
		}
		return d.notify(ctx, tx, changePayload{Key: key, Value: value, Origin: d.origin})
	})
}

// Delete removes the keys in one transaction
func (d *DB) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return d.inTx(ctx, func(tx pgx.Tx) error {
		for _, key := range keys {
			if _, err := tx.Exec(ctx, `DELETE FROM client_state WHERE key = $1`, key); err != nil {
				return fmt.Errorf("failed to delete state %s: %w", key, err)
			}
			if err := d.notify(ctx, tx, changePayload{Key: key, Deleted: true, Origin: d.origin}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *DB) notify(ctx context.Context, tx pgx.Tx, p changePayload) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode state change: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify state change %s: %w", p.Key, err)
	}
	return nil
}

func (d *DB) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Watch holds one pooled connection listening on the change channel until
// ctx is done. LISTEN is issued before Watch returns.
func (d *DB) Watch(ctx context.Context) (<-chan db.Change, error) {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen for state changes: %w", err)
	}

	out := make(chan db.Change)
	go func() {
		defer close(out)
		defer func() {
			// The connection goes back to the pool, so drop the subscription first
			conn.Exec(context.Background(), "UNLISTEN "+notifyChannel)
			conn.Release()
		}()

		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				return
			}

			var p changePayload
			if err := json.Unmarshal([]byte(n.Payload), &p); err != nil {
				continue
			}
			if p.Origin == d.origin {
				continue
			}

			select {
			case out <- db.Change{Key: p.Key, Value: p.Value, Deleted: p.Deleted, Origin: p.Origin}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
