package credentials

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/zx06/plurcast/internal/errors"
	"github.com/zx06/plurcast/internal/log"
	"github.com/zx06/plurcast/internal/platform"
	"github.com/zx06/plurcast/internal/secret"
)

// PlainBackendName 是明文文件后端的诊断名。
const PlainBackendName = "plain"

// PlainStore 是遗留的明文文件后端，只为向后兼容保留，永远作为最后一个回退。
//
// default 账户下已知平台使用历史文件名（nostr.keys、mastodon.token ...），
// 其余一律为 {service}.{account}.{key}。文件权限 0600。
//
// 写入时在值后追加一个换行，读取时去掉一个末尾的 \n 或 \r\n：既兼容手工 echo 生成的旧文件，
// 又保证任意值（包括以换行结尾的值）都能原样往返。
type PlainStore struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	warned map[[2]string]bool
}

func NewPlainStore(dir string, logger *slog.Logger) *PlainStore {
	return &PlainStore{dir: dir, logger: log.OrDefault(logger), warned: map[[2]string]bool{}}
}

func (p *PlainStore) BackendName() string { return PlainBackendName }

// Dir 返回明文文件所在目录。
func (p *PlainStore) Dir() string { return p.dir }

// Path 返回三元组对应的明文文件路径。
func (p *PlainStore) Path(service, key, account string) string {
	if account == DefaultAccount {
		if name, ok := platform.LegacyFile(service, key); ok {
			return filepath.Join(p.dir, name)
		}
	}
	return filepath.Join(p.dir, service+"."+account+"."+key)
}

// warnDeprecated 对每个 (service, key) 只记录一次弃用警告。
func (p *PlainStore) warnDeprecated(service, key string) {
	p.mu.Lock()
	k := [2]string{service, key}
	first := !p.warned[k]
	p.warned[k] = true
	p.mu.Unlock()
	if first {
		p.logger.Warn("plaintext credential storage is deprecated; run 'plur-creds migrate' to move to secure storage",
			"service", service, "key", key)
	}
}

func (p *PlainStore) StoreAccount(service, key, account, value string) error {
	if err := validateRef(service, key, account); err != nil {
		return err
	}
	p.warnDeprecated(service, key)
	return writeSecretFile(p.Path(service, key, account), []byte(value+"\n"))
}

func (p *PlainStore) RetrieveAccount(service, key, account string) (string, error) {
	if err := validateRef(service, key, account); err != nil {
		return "", err
	}
	p.warnDeprecated(service, key)
	r := Ref{Service: service, Key: key, Account: account}
	path := p.Path(service, key, account)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", notFound(r, PlainBackendName)
		}
		return "", errors.Wrap(errors.CodeIO, "failed to read plaintext credential", withPath(r.details(PlainBackendName), path), err)
	}
	return string(secret.TrimLineEnding(b)), nil
}

func (p *PlainStore) DeleteAccount(service, key, account string) error {
	if err := validateRef(service, key, account); err != nil {
		return err
	}
	r := Ref{Service: service, Key: key, Account: account}
	path := p.Path(service, key, account)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return notFound(r, PlainBackendName)
		}
		return errors.Wrap(errors.CodeIO, "failed to delete plaintext credential", withPath(r.details(PlainBackendName), path), err)
	}
	return nil
}

func (p *PlainStore) ExistsAccount(service, key, account string) (bool, error) {
	if err := validateRef(service, key, account); err != nil {
		return false, err
	}
	return fileExists(p.Path(service, key, account))
}

func (p *PlainStore) ListAccounts(service, key string) ([]string, error) {
	if err := validateServiceKey(service, key); err != nil {
		return nil, err
	}
	found, err := scanAccounts(p.dir, service+".", "."+key)
	if err != nil {
		return nil, err
	}
	if _, ok := platform.LegacyFile(service, key); ok {
		// default 账户只认历史文件名
		found = slices.DeleteFunc(found, func(a string) bool { return a == DefaultAccount })
		legacy, err := fileExists(p.Path(service, key, DefaultAccount))
		if err != nil {
			return nil, err
		}
		if legacy {
			found = mergeSorted(found, []string{DefaultAccount})
		}
	}
	return found, nil
}

// LegacyFile 是一个现存的明文凭据文件。
type LegacyFile struct {
	Ref  Ref
	Path string
}

// LegacyFiles 列出目录中现存的全部明文凭据文件：已知平台的历史文件名与 {service}.{account}.{key}，
// 以及任意 plurcast.* service 的 {service}.{account}.{key} 文件。
func (p *PlainStore) LegacyFiles() ([]LegacyFile, error) {
	var out []LegacyFile
	seen := map[string]bool{}
	for _, pl := range platform.All() {
		accts, err := p.ListAccounts(pl.Service, pl.Key)
		if err != nil {
			return nil, err
		}
		for _, a := range accts {
			path := p.Path(pl.Service, pl.Key, a)
			seen[path] = true
			out = append(out, LegacyFile{
				Ref:  Ref{Service: pl.Service, Key: pl.Key, Account: a},
				Path: path,
			})
		}
	}

	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, errors.Wrap(errors.CodeIO, "failed to read credential directory", map[string]any{"path": p.dir}, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		r, ok := parseGenericName(e.Name())
		if !ok {
			continue
		}
		path := p.Path(r.Service, r.Key, r.Account)
		// 已知平台的 default 只认历史文件名，同名的通用文件不可达
		if seen[path] || filepath.Base(path) != e.Name() {
			continue
		}
		seen[path] = true
		out = append(out, LegacyFile{Ref: r, Path: path})
	}
	return out, nil
}

// parseGenericName 把 {service}.{account}.{key} 从右向左拆开。
// 只接受 plurcast.* service，避免把 plurcast.yaml.bak 之类的文件当成凭据。
func parseGenericName(name string) (Ref, bool) {
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, EncryptedExt) {
		return Ref{}, false
	}
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return Ref{}, false
	}
	rest, key := name[:i], name[i+1:]
	j := strings.LastIndexByte(rest, '.')
	if j < 0 {
		return Ref{}, false
	}
	service, account := rest[:j], rest[j+1:]
	if !strings.HasPrefix(service, platform.ServicePrefix) || len(service) == len(platform.ServicePrefix) {
		return Ref{}, false
	}
	if validateRef(service, key, account) != nil {
		return Ref{}, false
	}
	return Ref{Service: service, Key: key, Account: account}, true
}
