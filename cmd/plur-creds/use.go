package main

import (
	"github.com/spf13/cobra"

	"github.com/zx06/plurcast/internal/output"
)

// NewUseCommand creates the use command
func NewUseCommand(w *output.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "use <platform> <account>",
		Short: "Set the active account for a platform",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(GlobalConfig.FormatStr)
			if err != nil {
				return err
			}
			p, err := lookupPlatform(args[0])
			if err != nil {
				return err
			}
			s, err := openSession()
			if err != nil {
				return err
			}
			if xe := s.accounts.SetActiveAccount(p.Name, args[1]); xe != nil {
				return xe
			}
			ok, err := s.creds.ExistsAccount(p.Service, p.Key, args[1])
			if err != nil {
				return err
			}
			if !ok {
				GlobalConfig.Logger.Warn("active account has no stored credential",
					"platform", p.Name, "account", args[1])
			}
			return w.WriteOK(format, map[string]any{
				"platform": p.Name,
				"active":   args[1],
				"stored":   ok,
			})
		},
	}
}
