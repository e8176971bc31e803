package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/blockshift/internal/migration"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// listEntry is the JSON form of one line of list.
type listEntry struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Table       string     `json:"table"`
	Rules       []string   `json:"rules"`
	Lossy       bool       `json:"lossy"`
	Applied     bool       `json:"applied"`
	AppliedAt   *time.Time `json:"applied_at,omitempty"`
	RunID       string     `json:"run_id,omitempty"`
}

func newListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List migrations and whether they are applied",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := e.registry()
			if err != nil {
				return err
			}
			return e.withStore(cmd.Context(), func(store types.Store) error {
				statuses, err := migration.NewRunner(store, reg, migration.WithLogger(e.log)).Status(cmd.Context())
				if err != nil {
					return err
				}
				entries := make([]listEntry, 0, len(statuses))
				for _, st := range statuses {
					le := listEntry{
						Name:        st.Migration.Name,
						Description: st.Migration.Description,
						Table:       st.Migration.Table,
						Rules:       st.Migration.RuleNames(),
						Lossy:       st.Migration.Lossy(),
					}
					if st.Applied != nil {
						at := st.Applied.AppliedAt
						le.Applied, le.AppliedAt, le.RunID = true, &at, st.Applied.RunID
					}
					entries = append(entries, le)
				}
				if e.flags.jsonMode {
					return printJSON(out(cmd), entries)
				}
				for _, le := range entries {
					state := "pending"
					if le.Applied {
						state = le.AppliedAt.UTC().Format(time.RFC3339)
					}
					lossy := ""
					if le.Lossy {
						lossy = " [lossy]"
					}
					fmt.Fprintf(out(cmd), "%-20s  %s%s\n", state, le.Name, lossy)
				}
				return nil
			})
		},
	}
}
