package app

import (
	"github.com/zx06/plurcast/internal/config"
	"github.com/zx06/plurcast/internal/credentials"
	"github.com/zx06/plurcast/internal/errors"
	"github.com/zx06/plurcast/internal/output"
	"github.com/zx06/plurcast/internal/platform"
	"github.com/zx06/plurcast/internal/secret"
	"github.com/zx06/plurcast/internal/spec"
)

type App struct {
	Version string
	Commit  string
	Date    string
}

func New(version, commit, date string) App {
	return App{Version: version, Commit: commit, Date: date}
}

func (a App) BuildSpec() spec.Spec {
	accountFlag := spec.FlagSpec{Name: "account", Shorthand: "a", Description: "Account name (default: the platform's active account)"}
	keyFlag := spec.FlagSpec{Name: "key", Description: "Credential key (default: the platform's key)"}

	platforms := make([]spec.PlatformSpec, 0)
	for _, p := range platform.All() {
		platforms = append(platforms, spec.PlatformSpec{Name: p.Name, Service: p.Service, Key: p.Key})
	}
	codes := errors.AllCodes()
	errorCodes := make([]spec.ErrorCodeSpec, len(codes))
	for i, c := range codes {
		errorCodes[i] = spec.ErrorCodeSpec{Code: c, ExitCode: errors.ExitCodeFor(c)}
	}

	return spec.Spec{
		SchemaVersion: output.SchemaVersion,
		GlobalFlags: []spec.FlagSpec{
			{Name: "config", Default: "", Description: "Config file path (YAML); default: ./plurcast.yaml or $HOME/.config/plurcast/plurcast.yaml"},
			{Name: "format", Shorthand: "f", Env: config.EnvFormat, Default: "auto", Description: "Output format: json|yaml|table|csv|auto"},
			{Name: "storage", Env: config.EnvStorage, Default: string(credentials.StorageKeyring), Description: "Credential storage: keyring|encrypted|plain"},
			{Name: "path", Env: config.EnvPath, Default: "~/.config/plurcast/credentials", Description: "Directory for encrypted credential files"},
			{Name: "verbose", Shorthand: "v", Default: "false", Description: "Enable debug logging on stderr"},
			{Name: "master-password", Env: secret.DefaultPasswordEnv, Description: "Master password for encrypted storage (environment only; prompted on a TTY)"},
		},
		Commands: []spec.CommandSpec{
			{
				Name: "set", Args: "<platform>",
				Description: "Store a credential read from stdin or a hidden prompt and register the account",
				Flags:       []spec.FlagSpec{accountFlag, keyFlag, {Name: "stdin", Default: "false", Description: "Read the value from stdin"}},
			},
			{
				Name: "list", Args: "[platform]",
				Description: "List accounts, the active account and stored credentials per platform",
			},
			{
				Name: "use", Args: "<platform> <account>",
				Description: "Set the active account for a platform",
			},
			{
				Name: "delete", Args: "<platform>",
				Description: "Delete a credential from every backend and unregister the account",
				Flags:       []spec.FlagSpec{accountFlag, keyFlag, {Name: "force", Default: "false", Description: "Skip the confirmation prompt"}},
			},
			{
				Name: "test", Args: "[platform]",
				Description: "Check that credentials can be retrieved",
				Flags:       []spec.FlagSpec{accountFlag, {Name: "all", Default: "false", Description: "Test every registered account of every platform"}},
			},
			{
				Name:        "migrate",
				Description: "Copy plaintext credentials into secure storage and verify them",
				Flags: []spec.FlagSpec{
					{Name: "cleanup", Default: "false", Description: "Delete verified plaintext files after migrating"},
					{Name: "yes", Shorthand: "y", Default: "false", Description: "Do not ask before deleting each plaintext file"},
				},
			},
			{Name: "audit", Description: "Report plaintext credential files, loose permissions and backend status"},
			{
				Name:        "mcp server",
				Description: "Start a read-only MCP server (account_list, credential_test, storage_audit); values are never returned",
				Flags: []spec.FlagSpec{
					{Name: "transport", Env: "PLURCAST_MCP_TRANSPORT", Default: "stdio", Description: "MCP transport: stdio|streamable_http"},
					{Name: "http-addr", Env: "PLURCAST_MCP_HTTP_ADDR", Default: "127.0.0.1:8787", Description: "Streamable HTTP listen address"},
					{Name: "http-auth-token", Env: "PLURCAST_MCP_HTTP_AUTH_TOKEN", Description: "Bearer token required by streamable_http"},
				},
			},
			{Name: "spec", Description: "Export the machine-readable command spec"},
			{Name: "version", Description: "Print version information"},
		},
		Platforms: platforms,
		StorageBackends: []string{
			string(credentials.StorageKeyring), string(credentials.StorageEncrypted), string(credentials.StoragePlain),
		},
		ErrorCodes: errorCodes,
	}
}

type VersionInfo struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Date    string `json:"date" yaml:"date"`
}

func (a App) VersionInfo() VersionInfo {
	return VersionInfo{Version: a.Version, Commit: a.Commit, Date: a.Date}
}
