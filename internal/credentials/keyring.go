package credentials

import (
	stderrors "errors"
	"log/slog"

	"github.com/zalando/go-keyring"

	"github.com/zx06/plurcast/internal/errors"
	"github.com/zx06/plurcast/internal/log"
	"github.com/zx06/plurcast/internal/secret"
)

// KeyringBackendName 是 keyring 后端的诊断名。
const KeyringBackendName = "keyring"

// probeService 用于探测 keyring 是否可达，不会写入任何内容。
const probeService = "plurcast.probe"

// KeyringStore 把凭据交给 OS 原生密钥服务（Keychain / Credential Manager / Secret Service）。
//
// 命名空间：OS service = "{service}.{account}"，OS user = key。
// keyring.ErrNotFound 映射为 NotFound；其余错误一律视为 KeyringUnavailable，
// Manager 依此回退到下一个后端。
type KeyringStore struct {
	kr     secret.KeyringAPI
	lister AccountLister
	logger *slog.Logger
}

// NewKeyringStore 创建 keyring 后端；kr 为 nil 时使用系统 keyring。
// lister 为 nil 时 ListAccounts 只探测 default。
func NewKeyringStore(kr secret.KeyringAPI, lister AccountLister, logger *slog.Logger) *KeyringStore {
	if kr == nil {
		kr = secret.DefaultKeyring()
	}
	return &KeyringStore{kr: kr, lister: lister, logger: log.OrDefault(logger)}
}

func (k *KeyringStore) BackendName() string { return KeyringBackendName }

func namespace(service, account string) string {
	return service + "." + account
}

// Available 通过读取一个探测条目判断 keyring 是否可达：成功或 ErrNotFound 都算可达。
func (k *KeyringStore) Available() bool {
	_, err := k.kr.Get(probeService, "availability")
	if err == nil || stderrors.Is(err, keyring.ErrNotFound) {
		return true
	}
	k.logger.Debug("keyring unavailable", "error", err)
	return false
}

func (k *KeyringStore) classify(err error, r Ref, op string) error {
	if stderrors.Is(err, keyring.ErrNotFound) {
		return notFound(r, KeyringBackendName)
	}
	if stderrors.Is(err, keyring.ErrSetDataTooBig) {
		return errors.Wrap(errors.CodeIO, "credential is too large for the OS keyring", r.details(KeyringBackendName), err)
	}
	return errors.Wrap(errors.CodeKeyringUnavailable, "OS keyring unavailable during "+op, r.details(KeyringBackendName), err)
}

func (k *KeyringStore) StoreAccount(service, key, account, value string) error {
	if err := validateRef(service, key, account); err != nil {
		return err
	}
	r := Ref{Service: service, Key: key, Account: account}
	if err := k.kr.Set(namespace(service, account), key, value); err != nil {
		return k.classify(err, r, "store")
	}
	k.logger.Debug("stored credential", "ref", r.String(), "backend", KeyringBackendName)
	return nil
}

func (k *KeyringStore) RetrieveAccount(service, key, account string) (string, error) {
	if err := validateRef(service, key, account); err != nil {
		return "", err
	}
	v, err := k.kr.Get(namespace(service, account), key)
	if err != nil {
		return "", k.classify(err, Ref{Service: service, Key: key, Account: account}, "retrieve")
	}
	return v, nil
}

func (k *KeyringStore) DeleteAccount(service, key, account string) error {
	if err := validateRef(service, key, account); err != nil {
		return err
	}
	if err := k.kr.Delete(namespace(service, account), key); err != nil {
		return k.classify(err, Ref{Service: service, Key: key, Account: account}, "delete")
	}
	return nil
}

func (k *KeyringStore) ExistsAccount(service, key, account string) (bool, error) {
	_, err := k.RetrieveAccount(service, key, account)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// ListAccounts 逐个探测候选账户；OS keyring 本身不支持枚举。
func (k *KeyringStore) ListAccounts(service, key string) ([]string, error) {
	if err := validateServiceKey(service, key); err != nil {
		return nil, err
	}
	candidates := []string{DefaultAccount}
	if k.lister != nil {
		candidates = mergeSorted(candidates, k.lister.KnownAccounts(service))
	}
	var out []string
	for _, a := range candidates {
		ok, err := k.ExistsAccount(service, key, a)
		if err != nil {
			if errors.HasCode(err, errors.CodeInvalidAccount) {
				continue
			}
			return nil, err
		}
		if ok {
			out = append(out, a)
		}
	}
	return out, nil
}
