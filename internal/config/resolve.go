package config

import (
	"path/filepath"
	"strings"

	"github.com/zx06/plurcast/internal/accounts"
	"github.com/zx06/plurcast/internal/credentials"
	"github.com/zx06/plurcast/internal/errors"
	"github.com/zx06/plurcast/internal/secret"
)

// Resolve 合并配置：CLI > ENV > Config > 默认值。
func Resolve(opts Options) (Resolved, *errors.XError) {
	opts.fillDirs()

	cfg, cfgPath, xe := LoadConfig(opts)
	if xe != nil {
		return Resolved{}, xe
	}

	// format：--format > PLURCAST_FORMAT > format > auto
	format := firstNonEmpty(cfg.Format, "auto")
	if opts.EnvFormat != "" {
		format = opts.EnvFormat
	}
	if opts.CLIFormatSet {
		format = opts.CLIFormat
	}

	// storage：--storage > PLURCAST_CREDENTIAL_STORAGE > credentials.storage > keyring
	storage := firstNonEmpty(cfg.Credentials.Storage, string(credentials.StorageKeyring))
	if opts.EnvStorage != "" {
		storage = opts.EnvStorage
	}
	if opts.CLIStorageSet {
		storage = opts.CLIStorage
	}
	kind, xe := credentials.ParseStorageKind(storage)
	if xe != nil {
		return Resolved{}, xe
	}

	if opts.HomeDir == "" {
		return Resolved{}, errors.New(errors.CodeCfgInvalid, "cannot determine home directory for default paths", nil)
	}
	base := configDir(opts.HomeDir)

	// path：--path > PLURCAST_CREDENTIAL_PATH > credentials.path > ~/.config/plurcast/credentials
	path := firstNonEmpty(cfg.Credentials.Path, filepath.Join(base, "credentials"))
	if opts.EnvPath != "" {
		path = opts.EnvPath
	}
	if opts.CLIPathSet && opts.CLIPath != "" {
		path = opts.CLIPath
	}

	res := Resolved{
		ConfigPath:        cfgPath,
		Format:            format,
		Storage:           kind,
		CredentialDir:     expandPath(path, opts.HomeDir, opts.WorkDir),
		PlainDir:          expandPath(firstNonEmpty(cfg.Credentials.PlainPath, base), opts.HomeDir, opts.WorkDir),
		AccountsFile:      expandPath(firstNonEmpty(cfg.AccountsFile, filepath.Join(base, accounts.DefaultFileName)), opts.HomeDir, opts.WorkDir),
		MasterPasswordEnv: firstNonEmpty(cfg.Credentials.MasterPasswordEnv, secret.DefaultPasswordEnv),
		MCP:               cfg.MCP,
	}
	return res, nil
}

// expandPath 展开 ~ 并把相对路径解析到 workDir。
func expandPath(p, homeDir, workDir string) string {
	switch {
	case p == "~":
		p = homeDir
	case strings.HasPrefix(p, "~/"), strings.HasPrefix(p, `~\`):
		p = filepath.Join(homeDir, p[2:])
	}
	if !filepath.IsAbs(p) && workDir != "" {
		p = filepath.Join(workDir, p)
	}
	return filepath.Clean(p)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
