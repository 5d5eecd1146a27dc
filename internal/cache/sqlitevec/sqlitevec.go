// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

// Package sqlitevec backs the cache's semantic tier with a SQLite vec0
// virtual table. Prompts are embedded on write and matched by k-nearest
// neighbor on read; every failure surfaces as an error the cache degrades
// to a plain miss.
package sqlitevec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/aegis-dev/aegis/internal/cache"
)

func init() {
	sqlite_vec.Auto()
}

// Compile-time interface check.
var _ cache.SemanticIndex = (*Index)(nil)

// Embedder turns prompt text into a fixed-width vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Index implements cache.SemanticIndex backed by SQLite with sqlite-vec.
// Rows are keyed by cache key; a row whose cache entry has since expired or
// been evicted resolves to a miss upstream and is overwritten on the next
// write for that key.
type Index struct {
	db       *sql.DB
	embedder Embedder
}

// Open opens (or creates) the index database at dbPath and initialises the
// vec0 virtual table and companion prompt-text table.
func Open(dbPath string, embedder Embedder) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("sqlitevec: nil embedder")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening index db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging index db: %w", err)
	}

	if err := migrate(db, embedder.Dimensions()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating index tables: %w", err)
	}

	return &Index{db: db, embedder: embedder}, nil
}

func migrate(db *sql.DB, dimensions int) error {
	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS prompt_vectors USING vec0(key TEXT PRIMARY KEY, embedding float[%d])`,
		dimensions,
	)
	if _, err := db.Exec(vecDDL); err != nil {
		return fmt.Errorf("creating prompt_vectors virtual table: %w", err)
	}

	const textDDL = `
CREATE TABLE IF NOT EXISTS prompt_texts (
	key    TEXT PRIMARY KEY,
	prompt TEXT NOT NULL
)`
	if _, err := db.Exec(textDDL); err != nil {
		return fmt.Errorf("creating prompt_texts table: %w", err)
	}

	return nil
}

// Add embeds the prompt and stores it under the cache key, replacing any
// previous vector for that key.
func (x *Index) Add(ctx context.Context, key, prompt string) error {
	vec, err := x.embedder.Embed(ctx, prompt)
	if err != nil {
		return fmt.Errorf("embedding prompt: %w", err)
	}

	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return fmt.Errorf("serializing embedding: %w", err)
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// vec0 does not support ON CONFLICT; delete first for upsert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM prompt_vectors WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting existing vector %s: %w", key, err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO prompt_vectors(key, embedding) VALUES (?, ?)`, key, blob); err != nil {
		return fmt.Errorf("inserting vector %s: %w", key, err)
	}

	const textQ = `INSERT INTO prompt_texts(key, prompt) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET prompt = excluded.prompt`
	if _, err := tx.ExecContext(ctx, textQ, key, prompt); err != nil {
		return fmt.Errorf("upserting prompt text %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing index add: %w", err)
	}
	return nil
}

// Query embeds the prompt and returns the nearest indexed key with its
// similarity score in [0,1]. An empty index returns ("", 0, nil).
func (x *Index) Query(ctx context.Context, prompt string) (string, float64, error) {
	vec, err := x.embedder.Embed(ctx, prompt)
	if err != nil {
		return "", 0, fmt.Errorf("embedding query: %w", err)
	}

	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return "", 0, fmt.Errorf("serializing query vector: %w", err)
	}

	const q = `SELECT key, distance
FROM prompt_vectors
WHERE embedding MATCH ? AND k = ?
ORDER BY distance`

	var key string
	var distance float64
	err = x.db.QueryRowContext(ctx, q, blob, 1).Scan(&key, &distance)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("searching vectors: %w", err)
	}

	return key, scoreFromDistance(distance), nil
}

// scoreFromDistance maps the L2 distance between unit vectors onto [0,1].
// For unit vectors d² = 2(1−cosθ), so cosθ = 1−d²/2; negative cosines
// clamp to zero.
func scoreFromDistance(d float64) float64 {
	score := 1 - d*d/2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Close closes the underlying database connection.
func (x *Index) Close() error {
	return x.db.Close()
}
