package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/fractalmind-ai/topoml/internal/codec"
	_ "modernc.org/sqlite"
)

// ErrVocabularyNotFound is returned when no vocabulary is stored under a name.
var ErrVocabularyNotFound = errors.New("vocabulary not found")

// VocabularyInfo describes a stored vocabulary.
type VocabularyInfo struct {
	Name      string
	Size      int
	CreatedAt time.Time
}

// Store persists codec vocabularies in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates a SQLite store at the given path.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveVocabulary stores the codec alphabet under name, replacing any previous one.
func (s *Store) SaveVocabulary(ctx context.Context, name string, c *codec.Codec) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is nil")
	}
	if c == nil {
		return fmt.Errorf("codec is nil")
	}
	if err := ValidateName(name); err != nil {
		return err
	}
	symbols := c.Symbols()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM symbols WHERE vocabulary = ?", name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to clear symbols: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO vocabularies(name,size,created_at) VALUES(?,?,?)",
		name, len(symbols), time.Now().UTC().Unix()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to insert vocabulary: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO symbols(vocabulary,code,symbol) VALUES(?,?,?)")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range symbols {
		if _, err := stmt.ExecContext(ctx, name, i+1, string(r)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert symbol: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// LoadVocabulary restores the codec stored under name.
func (s *Store) LoadVocabulary(ctx context.Context, name string) (*codec.Codec, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is nil")
	}

	var size int
	err := s.db.QueryRowContext(ctx, "SELECT size FROM vocabularies WHERE name = ?", name).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrVocabularyNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query vocabulary: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT code,symbol FROM symbols WHERE vocabulary = ? ORDER BY code", name)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	symbols := make([]rune, 0, size)
	for rows.Next() {
		var code int
		var symbol string
		if err := rows.Scan(&code, &symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		r, n := utf8.DecodeRuneInString(symbol)
		if n != len(symbol) || code != len(symbols)+1 {
			return nil, fmt.Errorf("corrupt vocabulary %s at code %d", name, code)
		}
		symbols = append(symbols, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(symbols) != size {
		return nil, fmt.Errorf("corrupt vocabulary %s: expected %d symbols, got %d", name, size, len(symbols))
	}
	return codec.FromSymbols(symbols)
}

// ListVocabularies returns all stored vocabularies ordered by name.
func (s *Store) ListVocabularies(ctx context.Context) ([]VocabularyInfo, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is nil")
	}
	rows, err := s.db.QueryContext(ctx, "SELECT name,size,created_at FROM vocabularies ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query vocabularies: %w", err)
	}
	defer rows.Close()

	var infos []VocabularyInfo
	for rows.Next() {
		var info VocabularyInfo
		var created int64
		if err := rows.Scan(&info.Name, &info.Size, &created); err != nil {
			return nil, fmt.Errorf("failed to scan vocabulary: %w", err)
		}
		info.CreatedAt = time.Unix(created, 0).UTC()
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return infos, nil
}

// DeleteVocabulary removes the vocabulary stored under name.
func (s *Store) DeleteVocabulary(ctx context.Context, name string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is nil")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM vocabularies WHERE name = ?", name)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete vocabulary: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %s", ErrVocabularyNotFound, name)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM symbols WHERE vocabulary = ?", name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete symbols: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS vocabularies (
	name TEXT PRIMARY KEY,
	size INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS symbols (
	vocabulary TEXT NOT NULL,
	code INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	PRIMARY KEY (vocabulary, code)
);
`); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}
