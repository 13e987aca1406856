package main

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/zx06/plurcast/internal/credentials"
	"github.com/zx06/plurcast/internal/output"
)

type accountRow struct {
	Platform   string `json:"platform" yaml:"platform"`
	Account    string `json:"account" yaml:"account"`
	Active     bool   `json:"active" yaml:"active"`
	Registered bool   `json:"registered" yaml:"registered"`
	Stored     bool   `json:"stored" yaml:"stored"`
}

type listResult struct {
	Backends []string     `json:"backends" yaml:"backends"`
	Accounts []accountRow `json:"accounts" yaml:"accounts"`
}

func (r listResult) ToTableData() ([]string, []map[string]any, bool) {
	rows := make([]map[string]any, len(r.Accounts))
	for i, a := range r.Accounts {
		active := ""
		if a.Active {
			active = "*"
		}
		stored := output.Status("no")
		if a.Stored {
			stored = "yes"
		}
		rows[i] = map[string]any{
			"platform": a.Platform, "account": a.Account, "active": active,
			"registered": a.Registered, "stored": stored,
		}
	}
	return []string{"platform", "account", "active", "registered", "stored"}, rows, true
}

// NewListCommand creates the list command
func NewListCommand(w *output.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "list [platform]",
		Short: "List accounts and stored credentials",
		Args:  cobra.MaximumNArgs(1),
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

			res := listResult{Backends: s.creds.Backends(), Accounts: []accountRow{}}
			for _, p := range platforms {
				registered := s.accounts.ListAccounts(p.Name)
				stored, err := s.creds.ListAccounts(p.Service, p.Key)
				if err != nil {
					return err
				}
				storedSet := map[string]bool{}
				for _, a := range stored {
					storedSet[a] = true
				}
				registeredSet := map[string]bool{}
				for _, a := range registered {
					registeredSet[a] = true
				}
				active := s.accounts.GetActiveAccount(p.Name)
				for _, a := range accountNames(registered, stored) {
					if a == credentials.DefaultAccount && !storedSet[a] && active != a {
						continue
					}
					res.Accounts = append(res.Accounts, accountRow{
						Platform:   p.Name,
						Account:    a,
						Active:     a == active,
						Registered: registeredSet[a] || a == credentials.DefaultAccount,
						Stored:     storedSet[a],
					})
				}
			}
			return w.WriteOK(format, res)
		},
	}
}

// accountNames returns default followed by the other names, sorted and deduplicated.
func accountNames(sets ...[]string) []string {
	seen := map[string]bool{credentials.DefaultAccount: true}
	var rest []string
	for _, set := range sets {
		for _, v := range set {
			if !seen[v] {
				seen[v] = true
				rest = append(rest, v)
			}
		}
	}
	sort.Strings(rest)
	return append([]string{credentials.DefaultAccount}, rest...)
}
