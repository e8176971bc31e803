// Package sqlite opens a blockshift Store on a SQLite database file using
// the pure Go modernc.org/sqlite driver.
//
// The database file belongs to the CMS: Open never recreates or truncates
// it. SeedDemo creates a small Wagtail-shaped fixture database for trying
// migrations out.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/blockshift/internal/sqlstore"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// MemoryDatabase opens a private in-memory database.
const MemoryDatabase = ":memory:"

// Dialect is the SQLite flavour of sqlstore.
var Dialect = sqlstore.Dialect{
	Name:      types.BackendSQLite,
	LedgerDDL: createLedger,
}

// Store is a sqlstore.Store on SQLite.
type Store struct {
	*sqlstore.Store
}

// Open opens the database named by cfg.Database, creating its directory if
// needed, and makes sure the ledger table exists.
func Open(ctx context.Context, cfg types.Config) (*Store, error) {
	cfg = cfg.WithDefaults()
	if cfg.Backend == "" {
		cfg.Backend = types.BackendSQLite
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Database != MemoryDatabase {
		if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Database)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite serialises writers anyway, and an in-memory
	// database only exists on the connection that created it.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &Store{Store: sqlstore.New(db, Dialect, cfg)}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
