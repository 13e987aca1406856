// Package credentials 实现多后端凭据存储：OS keyring、主密码加密文件、遗留明文文件，
// 以及按优先级回退的 Manager 外观与明文迁移流程。
//
// 凭据由 (service, key, account) 三元组标识，值对所有后端都是不透明的字符串。
// 任何日志、错误、迁移报告都只包含三元组与后端名，绝不包含凭据值。
package credentials

import (
	"fmt"
	"strings"

	"github.com/zx06/plurcast/internal/accounts"
	"github.com/zx06/plurcast/internal/errors"
)

// DefaultAccount 是未指定账户时使用的账户名。
const DefaultAccount = accounts.DefaultAccount

// Store 是所有后端必须一致实现的多账户契约。
//
//   - StoreAccount 幂等覆盖，不会留下截断的密文/明文。
//   - RetrieveAccount / DeleteAccount 在不存在时返回 PLURCAST_CRED_NOT_FOUND，
//     其他失败绝不伪装成 NotFound。
//   - DeleteAccount 不保证幂等，需要幂等时调用方先 ExistsAccount。
type Store interface {
	StoreAccount(service, key, account, value string) error
	RetrieveAccount(service, key, account string) (string, error)
	DeleteAccount(service, key, account string) error
	ExistsAccount(service, key, account string) (bool, error)
	ListAccounts(service, key string) ([]string, error)
	BackendName() string
}

// AccountLister 为无法枚举的后端（keyring）提供候选账户名。
type AccountLister interface {
	KnownAccounts(service string) []string
}

// 单账户便捷函数：只是 account=default 的账户化调用，任何后端都不单独实现。

func StoreDefault(s Store, service, key, value string) error {
	return s.StoreAccount(service, key, DefaultAccount, value)
}

func RetrieveDefault(s Store, service, key string) (string, error) {
	return s.RetrieveAccount(service, key, DefaultAccount)
}

func DeleteDefault(s Store, service, key string) error {
	return s.DeleteAccount(service, key, DefaultAccount)
}

func ExistsDefault(s Store, service, key string) (bool, error) {
	return s.ExistsAccount(service, key, DefaultAccount)
}

// Ref 标识一条凭据。
type Ref struct {
	Service string `json:"service" yaml:"service"`
	Key     string `json:"key" yaml:"key"`
	Account string `json:"account" yaml:"account"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%s@%s", r.Service, r.Key, r.Account)
}

func (r Ref) details(backend string) map[string]any {
	d := map[string]any{"service": r.Service, "key": r.Key, "account": r.Account}
	if backend != "" {
		d["backend"] = backend
	}
	return d
}

// IsNotFound 报告 err 是否表示凭据不存在。
func IsNotFound(err error) bool {
	return errors.HasCode(err, errors.CodeCredNotFound)
}

// IsUnavailable 报告 err 是否表示后端不可达（可尝试下一个后端）。
func IsUnavailable(err error) bool {
	return errors.HasCode(err, errors.CodeKeyringUnavailable)
}

func notFound(r Ref, backend string) error {
	return errors.New(errors.CodeCredNotFound, "credential not found", r.details(backend))
}

// validateRef 在触碰任何后端之前校验三元组。
// 三者会拼成文件名 {service}.{account}.{key}：service 只允许 [A-Za-z0-9._-] 且不能以 . 开头，
// account 与 key 不允许出现 .，从右向左拆分因此唯一。
func validateRef(service, key, account string) error {
	if xe := validateComponent("service", service); xe != nil {
		return xe
	}
	if xe := validateKey(key); xe != nil {
		return xe
	}
	if xe := accounts.ValidateAccountName(account); xe != nil {
		return xe
	}
	return nil
}

func validateComponent(field, v string) *errors.XError {
	if v == "" {
		return errors.New(errors.CodeCfgInvalid, field+" must not be empty", nil)
	}
	if v[0] == '.' {
		return errors.New(errors.CodeCfgInvalid, field+" must not start with a dot", map[string]any{field: v})
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return errors.New(errors.CodeCfgInvalid, field+" contains invalid characters", map[string]any{field: v})
		}
	}
	return nil
}

func validateKey(key string) *errors.XError {
	if xe := validateComponent("key", key); xe != nil {
		return xe
	}
	if strings.Contains(key, ".") {
		return errors.New(errors.CodeCfgInvalid, "key must not contain a dot", map[string]any{"key": key})
	}
	return nil
}

func validateServiceKey(service, key string) error {
	if xe := validateComponent("service", service); xe != nil {
		return xe
	}
	if xe := validateKey(key); xe != nil {
		return xe
	}
	return nil
}
