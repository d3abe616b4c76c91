package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdfme/pdf-pipeline/pkg/config"
)

// ErrNotFound is returned by reads when no record exists for the key.
var ErrNotFound = errors.New("record not found")

type DB struct {
	*sql.DB
	q queries
}

// Open connects to the configured driver.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgresDB(cfg)
	case "sqlite":
		return NewSQLiteDB(cfg.SQLite)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// NewPostgresDB creates a new PostgreSQL connection pool
func NewPostgresDB(cfg config.DatabaseConfig) (*DB, error) {
	db, err := sql.Open("postgres", cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxPool := cfg.MaxPool
	if maxPool < 2 {
		maxPool = 2
	}
	db.SetMaxOpenConns(maxPool)
	db.SetMaxIdleConns(maxPool / 2)
	db.SetConnMaxLifetime(time.Hour)

	if err := ping(db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{DB: db, q: postgresQueries}, nil
}

// NewSQLiteDB opens a single-file database for local runs and tests.
func NewSQLiteDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite serializes writers
	db.SetMaxOpenConns(1)

	if err := ping(db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{DB: db, q: sqliteQueries}, nil
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Migrate creates the result table if it does not exist.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range db.q.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}
