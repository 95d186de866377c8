// Package history is the append-only record of every non-duplicate signal a
// strategy produced and what happened to it. Entries are written once when the
// signal is detected; the execution outcome is attached exactly once afterwards
// and the row is never touched again.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one detected signal and its execution outcome.
type Entry struct {
	ID         int64     `json:"id"`
	StrategyID string    `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	SignalType string    `json:"signal_type"`
	Price      float64   `json:"price"`
	Strength   float64   `json:"strength"`
	Executed   bool      `json:"executed"`
	OrderRef   string    `json:"order_ref,omitempty"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists signal history in SQLite.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	ownsDB bool
}

// NewStore opens (or creates) the history database at path.
func NewStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("signal history path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path, ownsDB: true}, nil
}

// UseExternalDB reuses an externally managed SQLite connection, e.g. the one
// GORM opened for strategy configuration, to avoid multi-connection locking.
func (s *Store) UseExternalDB(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("external db must not be nil")
	}
	if err := ensureSchema(db); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsDB && s.db != nil && s.db != db {
		_ = s.db.Close()
	}
	s.db = db
	s.ownsDB = false
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if !s.ownsDB {
		s.db = nil
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signal_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			strategy_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			signal_type TEXT NOT NULL,
			price REAL NOT NULL DEFAULT 0,
			strength REAL NOT NULL DEFAULT 0,
			executed INTEGER NOT NULL DEFAULT 0,
			order_ref TEXT,
			note TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_signal_history_strategy_ts ON signal_history(strategy_id, created_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_signal_history_symbol ON signal_history(symbol);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append writes a new entry and returns its row id.
func (s *Store) Append(ctx context.Context, e Entry) (int64, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return 0, fmt.Errorf("signal history store is closed")
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO signal_history
			(strategy_id, symbol, signal_type, price, strength, executed, order_ref, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.StrategyID,
		strings.ToUpper(strings.TrimSpace(e.Symbol)),
		e.SignalType,
		e.Price,
		e.Strength,
		boolToInt(e.Executed),
		e.OrderRef,
		e.Note,
		createdAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("append signal history failed: %w", err)
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// AttachOutcome records the execution result for a previously appended entry.
// It is the single permitted mutation of a history row.
func (s *Store) AttachOutcome(ctx context.Context, id int64, executed bool, orderRef, note string) error {
	if id <= 0 {
		return fmt.Errorf("invalid history entry id %d", id)
	}
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return fmt.Errorf("signal history store is closed")
	}
	_, err := db.ExecContext(ctx, `UPDATE signal_history SET executed = ?, order_ref = ?, note = ? WHERE id = ?`,
		boolToInt(executed), orderRef, note, id)
	if err != nil {
		return fmt.Errorf("attach signal outcome failed: %w", err)
	}
	return nil
}

// Recent returns the latest entries for one strategy, most recent first.
func (s *Store) Recent(ctx context.Context, strategyID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("signal history store is closed")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, strategy_id, symbol, signal_type, price, strength, executed, order_ref, note, created_at
		FROM signal_history
		WHERE strategy_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, strategyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(scanner rowScanner) (Entry, error) {
	var (
		e         Entry
		executed  int
		orderRef  sql.NullString
		note      sql.NullString
		createdAt int64
	)
	if err := scanner.Scan(&e.ID, &e.StrategyID, &e.Symbol, &e.SignalType,
		&e.Price, &e.Strength, &executed, &orderRef, &note, &createdAt); err != nil {
		return e, err
	}
	e.Executed = executed != 0
	e.OrderRef = orderRef.String
	e.Note = note.String
	e.CreatedAt = time.UnixMilli(createdAt)
	return e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
