package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db        *sqlx.DB
	tableName string
}

type settingRow struct {
	Name    string `db:"name"`
	Enabled bool   `db:"enabled"`
}

// NewSQLiteStore opens (creating if needed) the database file at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", filepath.ToSlash(path))
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serialises writers.
	db.SetMaxOpenConns(1)

	s, err := NewSQLiteStoreWithDB(ctx, db, DefaultTableName)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStoreWithDB uses an existing sqlx handle. Close closes db.
func NewSQLiteStoreWithDB(ctx context.Context, db *sqlx.DB, tableName string) (*SQLiteStore, error) {
	if tableName == "" {
		tableName = DefaultTableName
	}
	if err := validateIdentifier(tableName); err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db, tableName: tableName}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name TEXT PRIMARY KEY,
			enabled INTEGER NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, tableName)
	if _, err := db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("create %s table: %w", tableName, err)
	}
	return s, nil
}

func (s *SQLiteStore) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	if err := checkKey(key); err != nil {
		return def, err
	}
	var row settingRow
	err := s.db.GetContext(ctx, &row, fmt.Sprintf(`SELECT name, enabled FROM %s WHERE name = ?`, s.tableName), key)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("sqlite get %q: %w", key, err)
	}
	return row.Enabled, nil
}

func (s *SQLiteStore) SetBool(ctx context.Context, key string, v bool) error {
	if err := checkKey(key); err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (name, enabled, updated_at) VALUES (:name, :enabled, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET enabled = excluded.enabled, updated_at = CURRENT_TIMESTAMP`, s.tableName)
	if _, err := s.db.NamedExecContext(ctx, query, settingRow{Name: key, Enabled: v}); err != nil {
		return fmt.Errorf("sqlite set %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) AddBool(ctx context.Context, key string, v bool) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}
	query := fmt.Sprintf(`INSERT OR IGNORE INTO %s (name, enabled) VALUES (:name, :enabled)`, s.tableName)
	res, err := s.db.NamedExecContext(ctx, query, settingRow{Name: key, Enabled: v})
	if err != nil {
		return false, fmt.Errorf("sqlite add %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite add %q: rows affected: %w", key, err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	query, args, err := sqlx.In(fmt.Sprintf(`DELETE FROM %s WHERE name IN (?)`, s.tableName), keys)
	if err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := s.db.SelectContext(ctx, &keys, fmt.Sprintf(`SELECT name FROM %s ORDER BY name`, s.tableName)); err != nil {
		return nil, fmt.Errorf("sqlite keys: %w", err)
	}
	return keys, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
