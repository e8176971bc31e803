package migration

import (
	"time"

	"github.com/mesh-intelligence/blockshift/internal/transform"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// SkippedBlock is a block left unchanged during a run, with the row and
// field it was found in. A field whose stored value is not a content tree at
// all is reported with an empty Rule.
type SkippedBlock struct {
	RowID int64  `json:"row_id"`
	Field string `json:"field"`
	transform.Skip
}

// Report summarises one migration run.
type Report struct {
	Migration string          `json:"migration"`
	Direction types.Direction `json:"direction"`
	RunID     string          `json:"run_id"`
	DryRun    bool            `json:"dry_run"`
	// AlreadyApplied is set when the ledger showed the migration as applied
	// and the run was not forced. Nothing else is filled in then.
	AlreadyApplied bool `json:"already_applied,omitempty"`

	Scanned         int            `json:"scanned"`
	Updated         int            `json:"updated"`
	Unchanged       int            `json:"unchanged"`
	AlreadyMigrated int            `json:"already_migrated"`
	Skipped         []SkippedBlock `json:"skipped,omitempty"`
	RevisionsSynced int            `json:"revisions_synced"`
	// Lossy is set when a lossy rule ran backwards and left its content as
	// it was. Restore from a snapshot to get the old content back.
	Lossy bool `json:"lossy"`

	Snapshot string        `json:"snapshot,omitempty"`
	Duration time.Duration `json:"duration"`
}
