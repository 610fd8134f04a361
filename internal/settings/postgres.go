package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/CedrosPay/secheaders/internal/config"
	"github.com/lib/pq"
)

// DefaultTableName is used by the SQL backends when none is configured.
const DefaultTableName = "header_settings"

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db        *sql.DB
	ownsDB    bool // Track if we created the DB connection (for Close())
	tableName string
}

// NewPostgresStore opens a pooled connection and ensures the table exists.
func NewPostgresStore(ctx context.Context, connectionString, tableName string, poolConfig config.PostgresPoolConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := withQueryTimeout(ctx)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	config.ApplyPostgresPoolSettings(db, poolConfig)

	store, err := NewPostgresStoreWithDB(ctx, db, tableName)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.ownsDB = true
	return store, nil
}

// NewPostgresStoreWithDB uses an existing connection pool. The caller keeps
// ownership of db.
func NewPostgresStoreWithDB(ctx context.Context, db *sql.DB, tableName string) (*PostgresStore, error) {
	if tableName == "" {
		tableName = DefaultTableName
	}
	if err := validateIdentifier(tableName); err != nil {
		return nil, err
	}

	s := &PostgresStore{db: db, tableName: tableName}
	if err := s.createTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) createTable(ctx context.Context) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name TEXT PRIMARY KEY,
			enabled BOOLEAN NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.tableName)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.tableName, err)
	}
	return nil
}

func (s *PostgresStore) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	if err := checkKey(key); err != nil {
		return def, err
	}
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT enabled FROM %s WHERE name = $1`, s.tableName)
	var v bool
	err := s.db.QueryRowContext(ctx, query, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("postgres get %q: %w", key, err)
	}
	return v, nil
}

func (s *PostgresStore) SetBool(ctx context.Context, key string, v bool) error {
	if err := checkKey(key); err != nil {
		return err
	}
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (name, enabled, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = NOW()`, s.tableName)
	if _, err := s.db.ExecContext(ctx, query, key, v); err != nil {
		return fmt.Errorf("postgres set %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) AddBool(ctx context.Context, key string, v bool) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (name, enabled, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO NOTHING`, s.tableName)
	res, err := s.db.ExecContext(ctx, query, key, v)
	if err != nil {
		return false, fmt.Errorf("postgres add %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres add %q: rows affected: %w", key, err)
	}
	return n == 1, nil
}

func (s *PostgresStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE name = ANY($1)`, s.tableName)
	if _, err := s.db.ExecContext(ctx, query, pq.Array(keys)); err != nil {
		return fmt.Errorf("postgres delete: %w", err)
	}
	return nil
}

func (s *PostgresStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT name FROM %s ORDER BY name`, s.tableName)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("postgres keys: scan: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres keys: %w", err)
	}
	return keys, nil
}

// Close closes the pool only when this store opened it.
func (s *PostgresStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
