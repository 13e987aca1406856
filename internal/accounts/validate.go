package accounts

import "github.com/zx06/plurcast/internal/errors"

// DefaultAccount 隐式存在，未指定账户时使用（兼容多账户之前的数据）。
const DefaultAccount = "default"

// MaxNameLength 是账户名的最大长度。
const MaxNameLength = 64

// ValidateAccountName 校验账户名：非空、≤64 字符、仅 ASCII 字母/数字/-/_，区分大小写。
func ValidateAccountName(name string) *errors.XError {
	if name == "" {
		return errors.New(errors.CodeInvalidAccount, "account name must not be empty", nil)
	}
	if len(name) > MaxNameLength {
		return errors.New(errors.CodeInvalidAccount, "account name is too long",
			map[string]any{"max": MaxNameLength, "length": len(name)})
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return errors.New(errors.CodeInvalidAccount,
				"account name may only contain letters, digits, hyphen and underscore",
				map[string]any{"account": name})
		}
	}
	return nil
}
