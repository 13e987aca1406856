package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zx06/plurcast/internal/credentials"
)

func TestResolve_Defaults(t *testing.T) {
	work := t.TempDir()
	home := t.TempDir()
	got, xe := Resolve(Options{WorkDir: work, HomeDir: home})
	if xe != nil {
		t.Fatalf("unexpected err: %v", xe)
	}
	base := filepath.Join(home, ".config", "plurcast")
	want := Resolved{
		Format:            "auto",
		Storage:           credentials.StorageKeyring,
		CredentialDir:     filepath.Join(base, "credentials"),
		PlainDir:          base,
		AccountsFile:      filepath.Join(base, "accounts.toml"),
		MasterPasswordEnv: "PLURCAST_MASTER_PASSWORD",
	}
	if got != want {
		t.Fatalf("got  %+v\nwant %+v", got, want)
	}
}

func TestResolve_ExplicitConfigMissingIsError(t *testing.T) {
	tmp := t.TempDir()
	_, xe := Resolve(Options{WorkDir: tmp, HomeDir: tmp, ConfigPath: "no_such.yaml"})
	if xe == nil {
		t.Fatalf("expected error")
	}
	if xe.Code != "PLURCAST_CFG_NOT_FOUND" {
		t.Fatalf("code=%s", xe.Code)
	}
}

func TestResolve_Precedence(t *testing.T) {
	tmp := t.TempDir()
	cfg := []byte("format: yaml\ncredentials:\n  storage: encrypted\n  path: /from/config\n")
	if err := os.WriteFile(filepath.Join(tmp, FileName), cfg, 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		opts        Options
		format      string
		storage     credentials.StorageKind
		credentials string
	}{
		{
			name:   "config",
			opts:   Options{},
			format: "yaml", storage: credentials.StorageEncrypted, credentials: "/from/config",
		},
		{
			name:   "env overrides config",
			opts:   Options{EnvFormat: "json", EnvStorage: "plain", EnvPath: "/from/env"},
			format: "json", storage: credentials.StoragePlain, credentials: "/from/env",
		},
		{
			name: "cli overrides env",
			opts: Options{
				EnvFormat: "json", EnvStorage: "plain", EnvPath: "/from/env",
				CLIFormat: "csv", CLIFormatSet: true,
				CLIStorage: "keyring", CLIStorageSet: true,
				CLIPath: "/from/cli", CLIPathSet: true,
			},
			format: "csv", storage: credentials.StorageKeyring, credentials: "/from/cli",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			opts.WorkDir, opts.HomeDir = tmp, tmp
			got, xe := Resolve(opts)
			if xe != nil {
				t.Fatal(xe)
			}
			if got.Format != tt.format {
				t.Errorf("format=%q want %q", got.Format, tt.format)
			}
			if got.Storage != tt.storage {
				t.Errorf("storage=%q want %q", got.Storage, tt.storage)
			}
			if got.CredentialDir != filepath.Clean(tt.credentials) {
				t.Errorf("credential dir=%q want %q", got.CredentialDir, tt.credentials)
			}
		})
	}
}

func TestResolve_InvalidStorage(t *testing.T) {
	tmp := t.TempDir()
	for _, opts := range []Options{
		{EnvStorage: "vault"},
		{CLIStorage: "s3", CLIStorageSet: true},
	} {
		opts.WorkDir, opts.HomeDir = tmp, tmp
		_, xe := Resolve(opts)
		if xe == nil || xe.Code != "PLURCAST_CFG_INVALID" {
			t.Fatalf("expected PLURCAST_CFG_INVALID, got %v", xe)
		}
	}
}

func TestResolve_ExpandsHome(t *testing.T) {
	work := t.TempDir()
	home := t.TempDir()
	cfg := []byte("credentials:\n  path: ~/secrets\n  plain_path: legacy\naccounts_file: ~\n")
	if err := os.WriteFile(filepath.Join(work, FileName), cfg, 0o600); err != nil {
		t.Fatal(err)
	}
	got, xe := Resolve(Options{WorkDir: work, HomeDir: home})
	if xe != nil {
		t.Fatal(xe)
	}
	if got.CredentialDir != filepath.Join(home, "secrets") {
		t.Errorf("CredentialDir=%q", got.CredentialDir)
	}
	if got.PlainDir != filepath.Join(work, "legacy") {
		t.Errorf("PlainDir=%q", got.PlainDir)
	}
	if got.AccountsFile != filepath.Clean(home) {
		t.Errorf("AccountsFile=%q", got.AccountsFile)
	}
}

func TestResolve_MasterPasswordEnvFromConfig(t *testing.T) {
	tmp := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmp, FileName), []byte("credentials:\n  master_password_env: CUSTOM_PW\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, xe := Resolve(Options{WorkDir: tmp, HomeDir: tmp})
	if xe != nil {
		t.Fatal(xe)
	}
	if got.MasterPasswordEnv != "CUSTOM_PW" {
		t.Fatalf("MasterPasswordEnv=%q", got.MasterPasswordEnv)
	}
}

func TestResolve_MCPFromConfig(t *testing.T) {
	tmp := t.TempDir()
	cfg := []byte("mcp:\n  transport: streamable_http\n  http_addr: 127.0.0.1:9999\n")
	if err := os.WriteFile(filepath.Join(tmp, FileName), cfg, 0o600); err != nil {
		t.Fatal(err)
	}
	got, xe := Resolve(Options{WorkDir: tmp, HomeDir: tmp})
	if xe != nil {
		t.Fatal(xe)
	}
	want := MCP{Transport: "streamable_http", HTTPAddr: "127.0.0.1:9999"}
	if got.MCP != want {
		t.Fatalf("MCP=%+v, want %+v", got.MCP, want)
	}
}

func TestExpandPath(t *testing.T) {
	home := filepath.FromSlash("/home/u")
	work := filepath.FromSlash("/work")
	tests := []struct{ in, want string }{
		{"~", home},
		{"~/a/b", filepath.Join(home, "a", "b")},
		{"rel", filepath.Join(work, "rel")},
		{filepath.Join(work, "x", "..", "y"), filepath.Join(work, "y")},
	}
	for _, tt := range tests {
		if got := expandPath(tt.in, home, work); got != tt.want {
			t.Errorf("expandPath(%q)=%q want %q", tt.in, got, tt.want)
		}
	}
}
