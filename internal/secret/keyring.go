package secret

import "strings"

// KeyringAPI 是对 OS keyring 的最小抽象，便于测试与跨平台。
// service 对应 keyring 的 service name，account 对应 user/account。
type KeyringAPI interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
	Delete(service, account string) error
}

// DefaultKeyring 返回系统 keyring 实现（使用 zalando/go-keyring）。
// 实现见 keyring_*.go（按平台编译）。
func DefaultKeyring() KeyringAPI {
	return &osKeyring{}
}

type osKeyring struct{}

// Get/Set/Delete 见 keyring_default.go / keyring_windows.go。

// stripNullBytes 去掉 Windows Credential Manager 在字符间插入的 null 字节（UTF-16 遗留问题）。
func stripNullBytes(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
