// Package migration runs content migrations against a Store: it scans a
// table row by row, rewrites the stream fields and scalar columns each
// migration names, persists every changed row in one write and keeps the
// ledger of applied migrations.
package migration

import (
	"errors"
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/mesh-intelligence/blockshift/internal/transform"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// Migration is one named, reversible content change on one table.
type Migration struct {
	// Name orders migrations; the convention is app.NNNN_description.
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Table string `json:"table"`
	Key   string `json:"key"`
	// StreamFields are the JSON columns the block and tree rules apply to.
	StreamFields []string `json:"stream_fields"`

	BlockRules  []types.BlockRule  `json:"-"`
	TreeRules   []types.TreeRule   `json:"-"`
	RecordRules []types.RecordRule `json:"record_rules"`

	// SyncRevision also rewrites the stream fields inside each page's latest
	// revision so that the editor opens the migrated content.
	SyncRevision bool `json:"sync_revision"`
}

// Validate checks names and that the migration does something.
func (m Migration) Validate() error {
	contentRules := len(m.BlockRules) + len(m.TreeRules)
	return validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.Required, validation.Match(namePattern)),
		validation.Field(&m.Table, validation.Required, types.IsIdentifier),
		validation.Field(&m.Key, validation.Required, types.IsIdentifier),
		validation.Field(&m.StreamFields,
			validation.When(contentRules > 0, validation.Required),
			validation.Each(types.IsIdentifier),
		),
		validation.Field(&m.RecordRules, validation.By(func(any) error {
			if contentRules+len(m.RecordRules) == 0 {
				return errors.New("at least one rule is required")
			}
			for _, r := range m.RecordRules {
				for _, f := range r.Fields() {
					if !types.ValidIdentifier(f) {
						return fmt.Errorf("rule %s: field %q is not a plain SQL identifier", r.Name(), f)
					}
				}
			}
			return nil
		})),
	)
}

// Lossy reports whether any rule of the migration cannot be undone.
func (m Migration) Lossy() bool {
	for _, r := range m.BlockRules {
		if r.Reversibility() == types.Lossy {
			return true
		}
	}
	for _, r := range m.TreeRules {
		if r.Reversibility() == types.Lossy {
			return true
		}
	}
	for _, r := range m.RecordRules {
		if r.Reversibility() == types.Lossy {
			return true
		}
	}
	return false
}

// Fields lists the columns a run reads: the stream fields followed by the
// record rule fields, without duplicates.
func (m Migration) Fields() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(f string) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for _, f := range m.StreamFields {
		add(f)
	}
	for _, r := range m.RecordRules {
		for _, f := range r.Fields() {
			add(f)
		}
	}
	return out
}

// Transformer builds the content transformer for the migration's block and
// tree rules.
func (m Migration) Transformer(opts ...transform.Option) (*transform.Transformer, error) {
	opts = append(opts, transform.WithTreeRules(m.TreeRules...))
	return transform.New(m.BlockRules, opts...)
}

// RuleNames lists every rule of the migration in the order they run.
func (m Migration) RuleNames() []string {
	var out []string
	for _, r := range m.BlockRules {
		out = append(out, r.Name())
	}
	for _, r := range m.TreeRules {
		out = append(out, r.Name())
	}
	for _, r := range m.RecordRules {
		out = append(out, r.Name())
	}
	return out
}
