package credentials

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/zx06/plurcast/internal/accounts"
	"github.com/zx06/plurcast/internal/errors"
)

const (
	secretFileMode = 0o600
	secretDirMode  = 0o700
)

// writeSecretFile 原子写入：临时文件先设为 0600 再写入、fsync，最后 rename 到目标路径。
// 中断只会留下临时文件，目标文件要么是旧内容要么是新内容。
func writeSecretFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, secretDirMode); err != nil {
		return errors.Wrap(errors.CodeIO, "failed to create credential directory", map[string]any{"path": dir}, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(errors.CodeIO, "failed to create temporary credential file", map[string]any{"path": dir}, err)
	}
	tmp := f.Name()
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmp)
	}
	if err := f.Chmod(secretFileMode); err != nil {
		cleanup()
		return errors.Wrap(errors.CodeIO, "failed to set credential file permissions", map[string]any{"path": path}, err)
	}
	if _, err := f.Write(data); err != nil {
		cleanup()
		return errors.Wrap(errors.CodeIO, "failed to write credential file", map[string]any{"path": path}, err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return errors.Wrap(errors.CodeIO, "failed to sync credential file", map[string]any{"path": path}, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(errors.CodeIO, "failed to close credential file", map[string]any{"path": path}, err)
	}
	if err := atomic.ReplaceFile(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(errors.CodeIO, "failed to replace credential file", map[string]any{"path": path}, err)
	}
	return nil
}

// scanAccounts 在 dir 中查找 {prefix}{account}{suffix} 形式的文件，返回合法的账户名（排序）。
func scanAccounts(dir, prefix, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.CodeIO, "failed to read credential directory", map[string]any{"path": dir}, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		if len(name) < len(prefix)+len(suffix) {
			continue
		}
		account := name[len(prefix) : len(name)-len(suffix)]
		if accounts.ValidateAccountName(account) != nil {
			continue
		}
		out = append(out, account)
	}
	sort.Strings(out)
	return out, nil
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return !info.IsDir(), nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrap(errors.CodeIO, "failed to stat credential file", map[string]any{"path": path}, err)
}

func mergeSorted(sets ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range sets {
		for _, v := range s {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Strings(out)
	return out
}
