package credentials

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zx06/plurcast/internal/errors"
	"github.com/zx06/plurcast/internal/log"
	"github.com/zx06/plurcast/internal/secret"
)

// StorageKind 是配置中的存储后端选择。
type StorageKind string

const (
	StorageKeyring   StorageKind = "keyring"
	StorageEncrypted StorageKind = "encrypted"
	StoragePlain     StorageKind = "plain"
)

// ParseStorageKind 校验配置值。
func ParseStorageKind(s string) (StorageKind, *errors.XError) {
	switch k := StorageKind(strings.ToLower(strings.TrimSpace(s))); k {
	case StorageKeyring, StorageEncrypted, StoragePlain:
		return k, nil
	default:
		return "", errors.New(errors.CodeCfgInvalid, "invalid credential storage backend; expected keyring|encrypted|plain",
			map[string]any{"storage": s})
	}
}

// ManagerConfig 描述如何构建后端列表。
type ManagerConfig struct {
	Storage  StorageKind
	Dir      string            // 加密文件目录
	PlainDir string            // 明文文件目录
	Keyring  secret.KeyringAPI // nil 使用系统 keyring
	Accounts AccountLister     // keyring 枚举候选账户
	KDF      KDFParams
	Logger   *slog.Logger
}

// Manager 按优先级持有后端列表（构建后不再变化），负责回退与迁移。
//
// 存储只写第一个后端；读取按顺序尝试，NotFound 与 KeyringUnavailable 继续下一个，
// 其余错误（如 DecryptionFailed）立即返回，不会被后面的明文后端掩盖。
type Manager struct {
	backends  []Store
	encrypted *EncryptedStore
	plain     *PlainStore
	logger    *slog.Logger
}

// NewManager 按配置构建后端：
//
//	keyring   → Keyring（可用时），不可用则自动改用 Encrypted → Plain
//	encrypted → Encrypted → Plain
//	plain     → Plain
func NewManager(cfg ManagerConfig) (*Manager, error) {
	logger := log.OrDefault(cfg.Logger)
	if cfg.Storage == "" {
		cfg.Storage = StorageKeyring
	}
	if _, xe := ParseStorageKind(string(cfg.Storage)); xe != nil {
		return nil, xe
	}

	newEncrypted := func() *EncryptedStore {
		return NewEncryptedStore(EncryptedOptions{Dir: cfg.Dir, KDF: cfg.KDF, Logger: logger})
	}

	var stores []Store
	switch cfg.Storage {
	case StorageKeyring:
		ks := NewKeyringStore(cfg.Keyring, cfg.Accounts, logger)
		if ks.Available() {
			stores = append(stores, ks)
		} else {
			logger.Warn("OS keyring unavailable, falling back to encrypted file storage", "dir", cfg.Dir)
			stores = append(stores, newEncrypted())
		}
	case StorageEncrypted:
		stores = append(stores, newEncrypted())
	case StoragePlain:
		logger.Warn("plaintext credential storage selected; credentials are not encrypted")
	}
	stores = append(stores, NewPlainStore(cfg.PlainDir, logger))
	return newManager(logger, stores), nil
}

// NewManagerWithStores 使用显式的后端列表（按优先级）。
func NewManagerWithStores(logger *slog.Logger, stores ...Store) *Manager {
	return newManager(log.OrDefault(logger), stores)
}

func newManager(logger *slog.Logger, stores []Store) *Manager {
	m := &Manager{backends: stores, logger: logger}
	for _, s := range stores {
		switch b := s.(type) {
		case *EncryptedStore:
			if m.encrypted == nil {
				m.encrypted = b
			}
		case *PlainStore:
			if m.plain == nil {
				m.plain = b
			}
		}
	}
	return m
}

func (m *Manager) BackendName() string { return "manager" }

// Backends 返回按优先级排列的后端名。
func (m *Manager) Backends() []string {
	out := make([]string, len(m.backends))
	for i, b := range m.backends {
		out[i] = b.BackendName()
	}
	return out
}

// PrimaryBackend 返回写入目标后端名；没有后端时为空。
func (m *Manager) PrimaryBackend() string {
	if len(m.backends) == 0 {
		return ""
	}
	return m.backends[0].BackendName()
}

// Encrypted 返回加密后端（若配置了）。
func (m *Manager) Encrypted() *EncryptedStore { return m.encrypted }

// Plain 返回明文后端（若配置了）。
func (m *Manager) Plain() *PlainStore { return m.plain }

// NeedsMasterPassword 报告是否配置了加密后端但尚未设置主密码。
func (m *Manager) NeedsMasterPassword() bool {
	return m.encrypted != nil && !m.encrypted.HasMasterPassword()
}

// SetMasterPassword 转交给加密后端；未配置加密后端时清除并忽略。
func (m *Manager) SetMasterPassword(pw *secret.Password) error {
	if m.encrypted == nil {
		pw.Clear()
		return nil
	}
	return m.encrypted.SetMasterPassword(pw)
}

// ClearMasterPassword 清除缓存的主密码。
func (m *Manager) ClearMasterPassword() {
	if m.encrypted != nil {
		m.encrypted.ClearMasterPassword()
	}
}

// Close 清除内存中的主密码。这只是尽力而为的缓解措施，不能抵御所有内存泄露方式。
func (m *Manager) Close() error {
	m.ClearMasterPassword()
	return nil
}

func (m *Manager) noStore(r Ref) error {
	return errors.New(errors.CodeNoStoreAvailable, "no credential backend configured", r.details(""))
}

// StoreAccount 只写第一个后端；失败直接返回，不会静默降级到更低的安全级别。
func (m *Manager) StoreAccount(service, key, account, value string) error {
	r := Ref{Service: service, Key: key, Account: account}
	if err := validateRef(service, key, account); err != nil {
		return err
	}
	if len(m.backends) == 0 {
		return m.noStore(r)
	}
	primary := m.backends[0]
	if err := primary.StoreAccount(service, key, account, value); err != nil {
		return err
	}
	m.logger.Debug("credential stored", "ref", r.String(), "backend", primary.BackendName())
	return nil
}

func (m *Manager) RetrieveAccount(service, key, account string) (string, error) {
	return m.retrieveFrom(m.backends, Ref{Service: service, Key: key, Account: account})
}

func (m *Manager) retrieveFrom(stores []Store, r Ref) (string, error) {
	if err := validateRef(r.Service, r.Key, r.Account); err != nil {
		return "", err
	}
	if len(stores) == 0 {
		return "", m.noStore(r)
	}
	var tried, unavailable []string
	for _, b := range stores {
		v, err := b.RetrieveAccount(r.Service, r.Key, r.Account)
		if err == nil {
			m.logger.Debug("credential retrieved", "ref", r.String(), "backend", b.BackendName())
			return v, nil
		}
		switch {
		case IsNotFound(err):
			tried = append(tried, b.BackendName())
		case IsUnavailable(err):
			m.logger.Warn("credential backend unavailable, trying next", "ref", r.String(), "backend", b.BackendName(), "error", err)
			unavailable = append(unavailable, b.BackendName())
		default:
			return "", err
		}
	}
	d := r.details("")
	d["backends"] = tried
	if len(unavailable) > 0 {
		d["unavailable"] = unavailable
	}
	return "", errors.New(errors.CodeCredNotFound, "credential not found in any backend", d)
}

// DeleteAccount 在所有后端上删除；只有每个持有该凭据的后端都删除成功才算成功。
func (m *Manager) DeleteAccount(service, key, account string) error {
	r := Ref{Service: service, Key: key, Account: account}
	if err := validateRef(service, key, account); err != nil {
		return err
	}
	if len(m.backends) == 0 {
		return m.noStore(r)
	}
	var deleted []string
	var errs []error
	for _, b := range m.backends {
		err := b.DeleteAccount(service, key, account)
		switch {
		case err == nil:
			deleted = append(deleted, b.BackendName())
		case IsNotFound(err):
		case IsUnavailable(err):
			m.logger.Warn("credential backend unavailable during delete", "ref", r.String(), "backend", b.BackendName())
		default:
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		first := errors.AsOrWrap(errs[0])
		d := r.details("")
		d["deleted_from"] = deleted
		return errors.Wrap(first.Code, "failed to delete credential from every backend", d, stderrors.Join(errs...))
	}
	if len(deleted) == 0 {
		return notFound(r, "")
	}
	m.logger.Debug("credential deleted", "ref", r.String(), "backends", deleted)
	return nil
}

// ExistsAccount 任一后端持有即为 true；不可用的后端跳过。
func (m *Manager) ExistsAccount(service, key, account string) (bool, error) {
	r := Ref{Service: service, Key: key, Account: account}
	if err := validateRef(service, key, account); err != nil {
		return false, err
	}
	if len(m.backends) == 0 {
		return false, m.noStore(r)
	}
	for _, b := range m.backends {
		ok, err := b.ExistsAccount(service, key, account)
		if err != nil {
			if IsUnavailable(err) {
				continue
			}
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// ListAccounts 合并所有后端的账户（排序去重）；不可用的后端跳过。
func (m *Manager) ListAccounts(service, key string) ([]string, error) {
	if err := validateServiceKey(service, key); err != nil {
		return nil, err
	}
	if len(m.backends) == 0 {
		return nil, m.noStore(Ref{Service: service, Key: key})
	}
	var sets [][]string
	for _, b := range m.backends {
		accts, err := b.ListAccounts(service, key)
		if err != nil {
			if IsUnavailable(err) {
				continue
			}
			return nil, err
		}
		sets = append(sets, accts)
	}
	return mergeSorted(sets...), nil
}

// 单账户便捷方法，与 StoreDefault 等共用同一实现。

func (m *Manager) Store(service, key, value string) error {
	return StoreDefault(m, service, key, value)
}

func (m *Manager) Retrieve(service, key string) (string, error) {
	return RetrieveDefault(m, service, key)
}

func (m *Manager) Delete(service, key string) error {
	return DeleteDefault(m, service, key)
}

func (m *Manager) Exists(service, key string) (bool, error) {
	return ExistsDefault(m, service, key)
}

// maxParallelRetrieve 限制并发读取数（keyring 守护进程与 argon2 都比较重）。
const maxParallelRetrieve = 4

// RetrieveMany 并发读取多条凭据（例如同时向多个平台发布时）。
// 任一失败即返回该错误，ctx 取消后尚未开始的读取不再执行。
func (m *Manager) RetrieveMany(ctx context.Context, refs []Ref) (map[Ref]string, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelRetrieve)

	var mu sync.Mutex
	out := make(map[Ref]string, len(refs))
	for _, r := range refs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := m.RetrieveAccount(r.Service, r.Key, r.Account)
			if err != nil {
				return err
			}
			mu.Lock()
			out[r] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
