// Package snapshot persists binary document snapshots per store in sqlite. Every Put appends a snapshot
// row and moves the store's pointer to it, so older states stay available until pruned.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("store not found")

type Store struct {
	database *sql.DB
	now      func() time.Time
}

// Open opens (or creates) the sqlite database at dsn and ensures the tables exist.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)
	s := &Store{database: db, now: time.Now}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.database.Close()
}

func (s *Store) init() error {
	if _, err := s.database.Exec(
		`CREATE TABLE IF NOT EXISTS stores (
		id text not null primary key,
		snapshot_id integer not null
		)`,
	); err != nil {
		return fmt.Errorf("failed to create stores table: %w", err)
	}
	if _, err := s.database.Exec(
		`CREATE TABLE IF NOT EXISTS snapshots (
		id integer not null primary key autoincrement,
		store_id text not null,
		content text not null,
		created_at integer not null
		)`,
	); err != nil {
		return fmt.Errorf("failed to create snapshots table: %w", err)
	}
	slog.Debug("ensured snapshot tables exist")
	return nil
}

// Put records content as the latest snapshot of storeID. It reports false when content equals the
// current latest snapshot and nothing was written.
func (s *Store) Put(ctx context.Context, storeID string, content []byte) (bool, error) {
	encoded := base64.StdEncoding.EncodeToString(content)

	tx, err := s.database.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to start tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.Error("failed to rollback", "err", err)
		}
	}()

	var current string
	err = tx.QueryRowContext(
		ctx,
		`SELECT content FROM snapshots sn INNER JOIN stores st ON sn.id = st.snapshot_id WHERE st.id = ?`,
		storeID,
	).Scan(&current)
	switch {
	case err == nil && current == encoded:
		return false, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("failed to query current snapshot: %w", err)
	}

	res, err := tx.ExecContext(
		ctx, `INSERT INTO snapshots(store_id, content, created_at) VALUES (?, ?, ?)`,
		storeID, encoded, s.now().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to persist snapshot: %w", err)
	}
	snapshotID, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to read snapshot id: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx, `INSERT INTO stores(id, snapshot_id) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET snapshot_id = excluded.snapshot_id`,
		storeID, snapshotID,
	); err != nil {
		return false, fmt.Errorf("failed to update store pointer: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

// Latest returns the newest snapshot of storeID, or ErrNotFound.
func (s *Store) Latest(ctx context.Context, storeID string) ([]byte, error) {
	var rawContent string
	if err := s.database.QueryRowContext(
		ctx,
		`SELECT content FROM snapshots sn INNER JOIN stores st ON sn.id = st.snapshot_id WHERE st.id = ?`,
		storeID,
	).Scan(&rawContent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(rawContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode: %w", err)
	}
	return raw, nil
}

// Stores lists the ids of every store with a snapshot.
func (s *Store) Stores(ctx context.Context) ([]string, error) {
	rows, err := s.database.QueryContext(ctx, `SELECT id FROM stores ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close", "err", err)
		}
	}(rows)
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Count returns the number of snapshots kept for storeID.
func (s *Store) Count(ctx context.Context, storeID string) (int, error) {
	var n int
	if err := s.database.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots WHERE store_id = ?`, storeID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}

// Prune deletes all but the newest keep snapshots of storeID and returns how many were removed. The
// latest snapshot is always kept.
func (s *Store) Prune(ctx context.Context, storeID string, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	res, err := s.database.ExecContext(
		ctx,
		`DELETE FROM snapshots WHERE store_id = ? AND id NOT IN (
			SELECT id FROM snapshots WHERE store_id = ? ORDER BY id DESC LIMIT ?
		)`,
		storeID, storeID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}
	return n, nil
}
