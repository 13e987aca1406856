package main

import (
	"github.com/spf13/cobra"

	"github.com/zx06/plurcast/internal/credentials"
	"github.com/zx06/plurcast/internal/output"
)

type auditResult struct {
	credentials.AuditReport `yaml:",inline"`
	IssueCount              int `json:"issues" yaml:"issues"`
}

func (r auditResult) ToTableData() ([]string, []map[string]any, bool) {
	rows := make([]map[string]any, 0, len(r.Backends)+len(r.Findings))
	for _, b := range r.Backends {
		status := output.Status("available")
		if !b.Available {
			status = "unavailable"
		}
		msg := "secure"
		if !b.Secure {
			msg = "plaintext"
		}
		if b.Primary {
			msg += ", primary"
		}
		rows = append(rows, map[string]any{"severity": status, "kind": "backend:" + b.Name, "path": "", "message": msg})
	}
	for _, f := range r.Findings {
		rows = append(rows, map[string]any{
			"severity": output.Status(f.Severity), "kind": f.Kind, "path": f.Path, "message": f.Message,
		})
	}
	return []string{"severity", "kind", "path", "message"}, rows, true
}

// NewAuditCommand creates the audit command
func NewAuditCommand(w *output.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Audit credential storage security",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(GlobalConfig.FormatStr)
			if err != nil {
				return err
			}
			s, err := openSession()
			if err != nil {
				return err
			}
			report, err := s.creds.Audit()
			if err != nil {
				return err
			}
			return w.WriteOK(format, auditResult{AuditReport: *report, IssueCount: report.Issues()})
		},
	}
}
