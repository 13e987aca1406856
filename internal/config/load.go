package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/zx06/plurcast/internal/errors"
)

// configDir 返回 $HOME/.config/plurcast。
func configDir(homeDir string) string {
	return filepath.Join(homeDir, ".config", "plurcast")
}

func defaultConfigPaths(workDir, homeDir string) []string {
	paths := make([]string, 0, 2)
	if workDir != "" {
		paths = append(paths, filepath.Join(workDir, FileName))
	}
	if homeDir != "" {
		paths = append(paths, filepath.Join(configDir(homeDir), FileName))
	}
	return paths
}

func readFile(path string) (File, *errors.XError) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return File{}, errors.New(errors.CodeCfgNotFound, "config file not found", map[string]any{"path": path})
		}
		return File{}, errors.Wrap(errors.CodeCfgInvalid, "failed to read config file", map[string]any{"path": path}, err)
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return File{}, errors.Wrap(errors.CodeCfgInvalid, "invalid config file", map[string]any{"path": path}, err)
	}
	return f, nil
}

func (o *Options) fillDirs() {
	if o.WorkDir == "" {
		wd, _ := os.Getwd()
		o.WorkDir = wd
	}
	if o.HomeDir == "" {
		if hd, err := os.UserHomeDir(); err == nil {
			o.HomeDir = hd
		}
	}
}

// LoadConfig 加载配置文件，返回配置和配置文件路径；未找到任何配置文件时返回零值与空路径。
func LoadConfig(opts Options) (File, string, *errors.XError) {
	opts.fillDirs()

	if opts.ConfigPath != "" {
		abs := opts.ConfigPath
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(opts.WorkDir, abs)
		}
		f, xe := readFile(abs)
		if xe != nil {
			return File{}, "", xe
		}
		return f, abs, nil
	}

	for _, p := range defaultConfigPaths(opts.WorkDir, opts.HomeDir) {
		f, xe := readFile(p)
		if xe != nil {
			if xe.Code == errors.CodeCfgNotFound {
				continue
			}
			return File{}, "", xe
		}
		return f, p, nil
	}
	return File{}, "", nil
}
