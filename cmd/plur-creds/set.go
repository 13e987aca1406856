package main

import (
	"github.com/spf13/cobra"

	"github.com/zx06/plurcast/internal/credentials"
	"github.com/zx06/plurcast/internal/output"
	"github.com/zx06/plurcast/internal/secret"
)

type setFlags struct {
	Account string
	Key     string
	Stdin   bool
}

// NewSetCommand creates the set command
func NewSetCommand(w *output.Writer) *cobra.Command {
	flags := &setFlags{}
	cmd := &cobra.Command{
		Use:   "set <platform>",
		Short: "Store a credential and register the account",
		Long: "Store a credential for a platform account. The value is read from stdin when piped " +
			"(or with --stdin) and from a hidden prompt otherwise; it is never accepted as an argument.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(w, args[0], flags)
		},
	}
	cmd.Flags().StringVarP(&flags.Account, "account", "a", "", "Account name (default: the platform's active account)")
	cmd.Flags().StringVar(&flags.Key, "key", "", "Credential key (default: the platform's key)")
	cmd.Flags().BoolVar(&flags.Stdin, "stdin", false, "Read the value from stdin")
	return cmd
}

func runSet(w *output.Writer, platformName string, flags *setFlags) error {
	format, err := parseOutputFormat(GlobalConfig.FormatStr)
	if err != nil {
		return err
	}
	p, err := lookupPlatform(platformName)
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
	if err := s.unlock(s.primaryIsEncrypted()); err != nil {
		return err
	}

	value, err := readSecretValue(p.Name+" credential for account "+account, flags.Stdin)
	if err != nil {
		return err
	}
	err = s.creds.StoreAccount(p.Service, key, account, string(value))
	secret.Wipe(value)
	if err != nil {
		return err
	}

	registered := false
	if account != credentials.DefaultAccount {
		if xe := s.accounts.RegisterAccount(p.Name, account); xe != nil {
			return xe
		}
		registered = true
	}
	GlobalConfig.Logger.Info("credential stored", "platform", p.Name, "account", account, "backend", s.creds.PrimaryBackend())

	return w.WriteOK(format, map[string]any{
		"platform":   p.Name,
		"account":    account,
		"key":        key,
		"backend":    s.creds.PrimaryBackend(),
		"registered": registered,
	})
}
