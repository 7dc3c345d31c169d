package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

const defaultPostgresTable = "claude_session_store"

// PostgresStoreConfig captures configuration required to initialize a Postgres-backed store.
type PostgresStoreConfig struct {
	DSN    string
	Schema string
	Table  string
}

// PostgresStore keeps every session's documents in one table keyed by (namespace, kind).
// Content is stored as TEXT so the credential document round-trips byte for byte.
type PostgresStore struct {
	db  *sql.DB
	cfg PostgresStoreConfig
}

var _ Provider = (*PostgresStore)(nil)

// NewPostgresStore establishes a connection to PostgreSQL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, cfg PostgresStoreConfig) (*PostgresStore, error) {
	trimmedDSN := strings.TrimSpace(cfg.DSN)
	if trimmedDSN == "" {
		return nil, fmt.Errorf("postgres store: DSN is required")
	}
	cfg.DSN = trimmedDSN
	if strings.TrimSpace(cfg.Table) == "" {
		cfg.Table = defaultPostgresTable
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open database connection: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres store: ping database: %w", err)
	}

	store := &PostgresStore{db: db, cfg: cfg}
	if err = store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database connection.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureSchema creates the table (and schema when provided).
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store: not initialized")
	}
	if schema := strings.TrimSpace(s.cfg.Schema); schema != "" {
		query := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoteIdentifier(schema))
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("postgres store: create schema: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, createTableStatement(s.fullTableName())); err != nil {
		return fmt.Errorf("postgres store: create table: %w", err)
	}
	return nil
}

// For returns the store scoped to namespace.
func (s *PostgresStore) For(_ context.Context, namespace string) (CredentialStore, error) {
	ns, err := NormalizeNamespace(namespace)
	if err != nil {
		return nil, err
	}
	return &keyedStore{backend: s, namespace: ns}, nil
}

func (s *PostgresStore) load(ctx context.Context, namespace, kind string) ([]byte, error) {
	query := fmt.Sprintf("SELECT content FROM %s WHERE namespace = $1 AND kind = $2", s.fullTableName())
	var content string
	err := s.db.QueryRowContext(ctx, query, namespace, kind).Scan(&content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres store: load %s/%s: %w", namespace, kind, err)
	}
	return []byte(content), nil
}

func (s *PostgresStore) save(ctx context.Context, namespace, kind string, data []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (namespace, kind, content, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (namespace, kind)
		DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()
	`, s.fullTableName())
	if _, err := s.db.ExecContext(ctx, query, namespace, kind, string(data)); err != nil {
		return fmt.Errorf("postgres store: upsert %s/%s: %w", namespace, kind, err)
	}
	log.WithField("store", "postgres").Debugf("persisted %s for %s", kind, namespace)
	return nil
}

func (s *PostgresStore) remove(ctx context.Context, namespace, kind string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE namespace = $1 AND kind = $2", s.fullTableName())
	if _, err := s.db.ExecContext(ctx, query, namespace, kind); err != nil {
		return fmt.Errorf("postgres store: delete %s/%s: %w", namespace, kind, err)
	}
	return nil
}

func (s *PostgresStore) fullTableName() string {
	if strings.TrimSpace(s.cfg.Schema) == "" {
		return quoteIdentifier(s.cfg.Table)
	}
	return quoteIdentifier(s.cfg.Schema) + "." + quoteIdentifier(s.cfg.Table)
}

func createTableStatement(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			namespace TEXT NOT NULL,
			kind TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (namespace, kind)
		)
	`, table)
}

func quoteIdentifier(identifier string) string {
	replaced := strings.ReplaceAll(identifier, "\"", "\"\"")
	return "\"" + replaced + "\""
}
