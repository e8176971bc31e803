package types

import "context"

// Store is the storage collaborator of the migration runner. It fetches rows
// lazily by primary key and persists named fields of a single row; it never
// spans a transaction over more than one row.
type Store interface {
	Lookup

	// Scan calls fn for every row of table in ascending key order, loading
	// rows in batches. Returning an error from fn stops the scan and is
	// returned unchanged.
	Scan(ctx context.Context, table, key string, fields []string, fn func(Row) error) error

	// Save persists the named fields of one row.
	// Returns ErrNotFound if no row has that key.
	Save(ctx context.Context, table, key string, id int64, fields map[string]any) error

	// LatestRevision returns the newest revision of the given page.
	// Returns ErrNotFound when the page has no revision.
	LatestRevision(ctx context.Context, objectID int64) (Revision, error)

	// SaveRevision replaces the content of an existing revision.
	SaveRevision(ctx context.Context, rev Revision) error

	// Applied lists the ledger in application order.
	Applied(ctx context.Context) ([]LedgerEntry, error)

	// Record adds a ledger entry. Recording an existing name replaces it.
	Record(ctx context.Context, entry LedgerEntry) error

	// Forget removes a ledger entry. Forgetting an absent name succeeds.
	Forget(ctx context.Context, name string) error

	Close() error
}
