package main

import (
	"github.com/spf13/cobra"

	"github.com/zx06/plurcast/internal/credentials"
	"github.com/zx06/plurcast/internal/errors"
	"github.com/zx06/plurcast/internal/output"
)

type deleteFlags struct {
	Account string
	Key     string
	Force   bool
}

// NewDeleteCommand creates the delete command
func NewDeleteCommand(w *output.Writer) *cobra.Command {
	flags := &deleteFlags{}
	cmd := &cobra.Command{
		Use:   "delete <platform>",
		Short: "Delete a credential from every backend and unregister the account",
		Args:  cobra.ExactArgs(1),
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
			account, err := resolveAccount(s, p, flags.Account)
			if err != nil {
				return err
			}
			key := p.Key
			if flags.Key != "" {
				key = flags.Key
			}

			ref := credentials.Ref{Service: p.Service, Key: key, Account: account}
			if !flags.Force {
				ok, err := confirm("Delete credential "+ref.String()+" from all backends?", "--force")
				if err != nil {
					return err
				}
				if !ok {
					return w.WriteOK(format, map[string]any{"platform": p.Name, "account": account, "key": key, "deleted": false})
				}
			}

			if err := s.creds.DeleteAccount(p.Service, key, account); err != nil {
				return err
			}

			unregistered := false
			if account != credentials.DefaultAccount && key == p.Key {
				xe := s.accounts.UnregisterAccount(p.Name, account)
				switch {
				case xe == nil:
					unregistered = true
				case xe.Code == errors.CodeAccountNotRegistered:
				default:
					return xe
				}
			}
			return w.WriteOK(format, map[string]any{
				"platform":     p.Name,
				"account":      account,
				"key":          key,
				"deleted":      true,
				"unregistered": unregistered,
			})
		},
	}
	cmd.Flags().StringVarP(&flags.Account, "account", "a", "", "Account name (default: the platform's active account)")
	cmd.Flags().StringVar(&flags.Key, "key", "", "Credential key (default: the platform's key)")
	cmd.Flags().BoolVar(&flags.Force, "force", false, "Skip the confirmation prompt")
	return cmd
}
