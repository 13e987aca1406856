package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zx06/plurcast/internal/credentials"
	"github.com/zx06/plurcast/internal/errors"
	"github.com/zx06/plurcast/internal/output"
)

type testFlags struct {
	Account string
	All     bool
}

type testRow struct {
	Platform string      `json:"platform" yaml:"platform"`
	Account  string      `json:"account" yaml:"account"`
	Key      string      `json:"key" yaml:"key"`
	OK       bool        `json:"ok" yaml:"ok"`
	Code     errors.Code `json:"code,omitempty" yaml:"code,omitempty"`
	Message  string      `json:"message,omitempty" yaml:"message,omitempty"`
}

type testResult struct {
	Passed  int       `json:"passed" yaml:"passed"`
	Failed  int       `json:"failed" yaml:"failed"`
	Results []testRow `json:"results" yaml:"results"`
}

func (r testResult) ToTableData() ([]string, []map[string]any, bool) {
	rows := make([]map[string]any, len(r.Results))
	for i, t := range r.Results {
		status := output.Status("ok")
		if !t.OK {
			status = "fail"
		}
		rows[i] = map[string]any{
			"platform": t.Platform, "account": t.Account, "status": status, "code": string(t.Code),
		}
	}
	return []string{"platform", "account", "status", "code"}, rows, true
}

type testTarget struct {
	platform string
	ref      credentials.Ref
}

// NewTestCommand creates the test command
func NewTestCommand(w *output.Writer) *cobra.Command {
	flags := &testFlags{}
	cmd := &cobra.Command{
		Use:   "test [platform]",
		Short: "Check that credentials can be retrieved",
		Long: "Check that credentials can be retrieved. Without --all only the active account " +
			"(or --account) of each selected platform is tested. Values are never printed.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(GlobalConfig.FormatStr)
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			platforms, err := selectedPlatforms(name)
			if err != nil {
				return err
			}
			s, err := openSession()
			if err != nil {
				return err
			}
			if err := s.unlock(false); err != nil {
				return err
			}

			var targets []testTarget
			for _, p := range platforms {
				var names []string
				switch {
				case flags.All:
					stored, err := s.creds.ListAccounts(p.Service, p.Key)
					if err != nil {
						return err
					}
					names = accountNames(s.accounts.ListAccounts(p.Name), stored)
				default:
					a, err := resolveAccount(s, p, flags.Account)
					if err != nil {
						return err
					}
					names = []string{a}
				}
				for _, a := range names {
					targets = append(targets, testTarget{
						platform: p.Name,
						ref:      credentials.Ref{Service: p.Service, Key: p.Key, Account: a},
					})
				}
			}

			res := checkCredentials(cmd.Context(), s.creds, targets)
			if err := w.WriteOK(format, res); err != nil {
				return err
			}
			if res.Failed > 0 {
				return &reportedError{xe: errors.New(firstFailureCode(res), "credential test failed",
					map[string]any{"failed": res.Failed})}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&flags.Account, "account", "a", "", "Account name (default: the platform's active account)")
	cmd.Flags().BoolVar(&flags.All, "all", false, "Test every known account of the selected platforms")
	return cmd
}

// checkCredentials retrieves everything concurrently first; only when that fails
// does it retry each credential on its own to attribute the failures.
func checkCredentials(ctx context.Context, m *credentials.Manager, targets []testTarget) testResult {
	if ctx == nil {
		ctx = context.Background()
	}
	res := testResult{Results: make([]testRow, len(targets))}
	refs := make([]credentials.Ref, len(targets))
	for i, t := range targets {
		refs[i] = t.ref
		res.Results[i] = testRow{Platform: t.platform, Account: t.ref.Account, Key: t.ref.Key, OK: true}
	}

	if _, err := m.RetrieveMany(ctx, refs); err == nil {
		res.Passed = len(targets)
		return res
	}
	for i, r := range refs {
		_, err := m.RetrieveAccount(r.Service, r.Key, r.Account)
		if err == nil {
			res.Passed++
			continue
		}
		xe := normalizeErr(err)
		res.Results[i].OK = false
		res.Results[i].Code = xe.Code
		res.Results[i].Message = xe.Message
		res.Failed++
	}
	return res
}

func firstFailureCode(r testResult) errors.Code {
	for _, t := range r.Results {
		if !t.OK {
			return t.Code
		}
	}
	return errors.CodeInternal
}
