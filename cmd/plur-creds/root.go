package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/zx06/plurcast/internal/config"
	"github.com/zx06/plurcast/internal/errors"
	"github.com/zx06/plurcast/internal/log"
	"github.com/zx06/plurcast/internal/output"
	"github.com/zx06/plurcast/internal/secret"
)

// Build-time variables (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Config holds the resolved configuration
type Config struct {
	FormatStr  string
	ConfigStr  string
	StorageStr string
	PathStr    string
	Verbose    bool
	Resolved   config.Resolved
	Logger     *slog.Logger
}

// GlobalConfig holds the global configuration state
var GlobalConfig = &Config{}

// Env collects the process environment the commands depend on; tests replace it.
type Env struct {
	LookupEnv func(string) (string, bool)
	Terminal  secret.Terminal
	Keyring   secret.KeyringAPI // nil uses the OS keyring
	Stdin     io.Reader
	Stderr    io.Writer
	HomeDir   string
	WorkDir   string
}

func defaultEnv() Env {
	return Env{
		LookupEnv: os.LookupEnv,
		Terminal:  secret.StdinTerminal(),
		Stdin:     os.Stdin,
		Stderr:    os.Stderr,
	}
}

var procEnv = defaultEnv()

func (e Env) getenv(key string) string {
	v, _ := e.LookupEnv(key)
	return v
}

// NewRootCommand creates the root command
func NewRootCommand(w *output.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "plur-creds",
		Short:         "Manage plurcast platform credentials and accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// CLI > ENV > Config
			configSet := cmd.Flags().Changed("config")
			if configSet && GlobalConfig.ConfigStr == "" {
				return errors.New(errors.CodeCfgInvalid, "config path is empty", nil)
			}
			pathSet := cmd.Flags().Changed("path")
			if pathSet && GlobalConfig.PathStr == "" {
				return errors.New(errors.CodeCfgInvalid, "credential path is empty", nil)
			}

			r, xe := config.Resolve(config.Options{
				ConfigPath:    GlobalConfig.ConfigStr,
				CLIFormat:     GlobalConfig.FormatStr,
				CLIFormatSet:  cmd.Flags().Changed("format"),
				CLIStorage:    GlobalConfig.StorageStr,
				CLIStorageSet: cmd.Flags().Changed("storage"),
				CLIPath:       GlobalConfig.PathStr,
				CLIPathSet:    pathSet,
				EnvFormat:     procEnv.getenv(config.EnvFormat),
				EnvStorage:    procEnv.getenv(config.EnvStorage),
				EnvPath:       procEnv.getenv(config.EnvPath),
				WorkDir:       procEnv.WorkDir,
				HomeDir:       procEnv.HomeDir,
			})
			if xe != nil {
				return xe
			}
			GlobalConfig.Resolved = r
			GlobalConfig.FormatStr = r.Format

			level := slog.LevelWarn
			if GlobalConfig.Verbose {
				level = slog.LevelDebug
			}
			GlobalConfig.Logger = log.NewWithLevel(procEnv.Stderr, level)
			*w = w.WithColor(!color.NoColor)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&GlobalConfig.ConfigStr, "config", "", "Config file path (YAML); default: ./plurcast.yaml or $HOME/.config/plurcast/plurcast.yaml")
	root.PersistentFlags().StringVarP(&GlobalConfig.FormatStr, "format", "f", "auto", "Output format: json|yaml|table|csv|auto")
	root.PersistentFlags().StringVar(&GlobalConfig.StorageStr, "storage", "", "Credential storage: keyring|encrypted|plain (env: PLURCAST_CREDENTIAL_STORAGE)")
	root.PersistentFlags().StringVar(&GlobalConfig.PathStr, "path", "", "Directory for encrypted credential files (env: PLURCAST_CREDENTIAL_PATH)")
	root.PersistentFlags().BoolVarP(&GlobalConfig.Verbose, "verbose", "v", false, "Enable debug logging on stderr")

	return root
}
