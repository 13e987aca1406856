package main

import (
	"github.com/spf13/cobra"

	"github.com/zx06/plurcast/internal/credentials"
	"github.com/zx06/plurcast/internal/output"
)

type migrateFlags struct {
	Cleanup bool
	Yes     bool
}

type migrateResult struct {
	Backend                     string `json:"backend" yaml:"backend"`
	credentials.MigrationReport `yaml:",inline"`
	Deleted                     []credentials.Ref `json:"deleted" yaml:"deleted"`
}

func (r migrateResult) ToTableData() ([]string, []map[string]any, bool) {
	deleted := map[credentials.Ref]bool{}
	for _, d := range r.Deleted {
		deleted[d] = true
	}
	var rows []map[string]any
	add := func(ref credentials.Ref, status output.Status, reason string) {
		rows = append(rows, map[string]any{
			"credential": ref.String(), "status": status, "plaintext_removed": deleted[ref], "reason": reason,
		})
	}
	for _, ref := range r.Migrated {
		add(ref, "migrated", "")
	}
	conflicts := map[credentials.Ref]bool{}
	for _, c := range r.Conflicts {
		conflicts[c] = true
	}
	for _, ref := range r.Skipped {
		if conflicts[ref] {
			add(ref, "skipped", "secure copy differs from plaintext; secure copy kept")
			continue
		}
		add(ref, "skipped", "already in "+r.Backend)
	}
	for _, f := range r.Failed {
		add(f.Ref, "failed", f.Reason)
	}
	return []string{"credential", "status", "plaintext_removed", "reason"}, rows, true
}

// NewMigrateCommand creates the migrate command
func NewMigrateCommand(w *output.Writer) *cobra.Command {
	flags := &migrateFlags{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move plaintext credentials into secure storage",
		Long: "Copy every plaintext credential into the configured secure backend and verify it by " +
			"reading it back. Plaintext files are only removed with --cleanup, after confirmation.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(GlobalConfig.FormatStr)
			if err != nil {
				return err
			}
			s, err := openSession()
			if err != nil {
				return err
			}
			if err := s.unlock(s.primaryIsEncrypted()); err != nil {
				return err
			}

			report, err := s.creds.MigrateFromPlain()
			if err != nil {
				return err
			}
			res := migrateResult{Backend: s.creds.PrimaryBackend(), MigrationReport: *report, Deleted: []credentials.Ref{}}

			if flags.Cleanup && len(report.Migrated)+len(report.Skipped) > 0 {
				var ask func(credentials.Ref) bool
				var askErr error
				if !flags.Yes {
					ask = func(r credentials.Ref) bool {
						if askErr != nil {
							return false
						}
						ok, err := confirm("Delete plaintext file for "+r.String()+"?", "--yes")
						if err != nil {
							askErr = err
						}
						return ok
					}
				}
				deleted, err := s.creds.CleanupPlain(report, ask)
				if askErr != nil {
					return askErr
				}
				if err != nil {
					return err
				}
				res.Deleted = append(res.Deleted, deleted...)
			}

			if err := w.WriteOK(format, res); err != nil {
				return err
			}
			if xe := report.Err(); xe != nil {
				return &reportedError{xe: xe}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&flags.Cleanup, "cleanup", false, "Delete verified plaintext files after migrating")
	cmd.Flags().BoolVarP(&flags.Yes, "yes", "y", false, "Do not ask before deleting each plaintext file")
	return cmd
}
