package store

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"oauth-bridge/internal/common/errors"
	"oauth-bridge/internal/config"
	"oauth-bridge/internal/crypto"
)

// New creates a store for the configured database backend. SQLite is the
// default; PostgreSQL is selected with DATABASE_TYPE=postgres and connects
// through the pgx stdlib driver.
func New(cfg *config.Config, cipher *crypto.Cipher) (Store, error) {
	switch cfg.DatabaseType {
	case "sqlite":
		return openSQLite(cfg.DatabasePath, cipher)
	case "postgres", "postgresql":
		return openPostgres(cfg, cipher)
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported database type: %s", cfg.DatabaseType))
	}
}

func openSQLite(path string, cipher *crypto.Cipher) (Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.StorageError("failed to open sqlite database", err)
	}
	if err := db.Ping(); err != nil {
		return nil, errors.StorageError("failed to ping sqlite database", err)
	}
	// sqlite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent request handlers
	db.SetMaxOpenConns(1)
	return NewSQLStore(db, cipher, false), nil
}

func openPostgres(cfg *config.Config, cipher *crypto.Cipher) (Store, error) {
	dsn := fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB,
		cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresSSLMode)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.StorageError("failed to open postgres database", err)
	}
	if err := db.Ping(); err != nil {
		return nil, errors.StorageError("failed to ping postgres database", err)
	}
	return NewSQLStore(db, cipher, true), nil
}
