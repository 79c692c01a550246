// Package store provides the concrete storage tiers behind the resume
// cache: a SQLite block store as the primary and a file-per-key store as
// the fallback.
package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"xscraper/pkg/checkpoint"
)

// Blocks is the SQLite-backed primary tier. Snapshot keys live in a single
// blocks table and one transaction covers a whole snapshot write, so a
// reader never sees half a snapshot.
type Blocks struct {
	db *sql.DB
}

var _ checkpoint.BlockStore = (*Blocks)(nil)

// OpenBlocks opens or creates the block store at dbPath.
func OpenBlocks(dbPath string) (*Blocks, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection serializes the export loop against manual saves;
	// the busy timeout covers other processes touching the same file.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, err
	}

	s := &Blocks{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Blocks) Close() error {
	return s.db.Close()
}

func (s *Blocks) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS blocks (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Begin starts a snapshot transaction. SQLite escalates to the write lock
// on the first write statement, so the writable flag only documents
// intent here.
func (s *Blocks) Begin(ctx context.Context, writable bool) (checkpoint.BlockTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &blocksTx{ctx: ctx, tx: tx}, nil
}

type blocksTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *blocksTx) Get(key string) (string, bool, error) {
	var value string
	err := t.tx.QueryRowContext(t.ctx, `SELECT value FROM blocks WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (t *blocksTx) Put(key, value string) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO blocks (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

func (t *blocksTx) Clear() error {
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM blocks`)
	return err
}

func (t *blocksTx) Commit() error {
	return t.tx.Commit()
}

func (t *blocksTx) Rollback() error {
	return t.tx.Rollback()
}
