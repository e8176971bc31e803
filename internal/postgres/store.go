// Package postgres opens a blockshift Store on PostgreSQL through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mesh-intelligence/blockshift/internal/sqlstore"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

const createLedger = `CREATE TABLE IF NOT EXISTS blockshift_migrations (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    run_id TEXT NOT NULL,
    applied_at TEXT NOT NULL
)`

// Dialect is the PostgreSQL flavour of sqlstore.
var Dialect = sqlstore.Dialect{
	Name:      types.BackendPostgres,
	LedgerDDL: createLedger,
	Numbered:  true,
}

// Store is a sqlstore.Store on PostgreSQL.
type Store struct {
	*sqlstore.Store
}

// Open connects to cfg.DSN, checks the connection and makes sure the ledger
// table exists.
func Open(ctx context.Context, cfg types.Config) (*Store, error) {
	cfg = cfg.WithDefaults()
	if cfg.Backend == "" {
		cfg.Backend = types.BackendPostgres
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(2)
	db.SetMaxOpenConns(4)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Store{Store: sqlstore.New(db, Dialect, cfg)}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
