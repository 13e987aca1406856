package errors

// ExitCode 是进程退出码（稳定契约）。
type ExitCode int

const (
	ExitOK ExitCode = 0

	// 2: 参数/配置/账户名错误
	ExitConfig ExitCode = 2

	// 3: 凭据不存在
	ExitNotFound ExitCode = 3

	// 4: 存储后端不可用
	ExitUnavailable ExitCode = 4

	// 5: 主密码/解密失败
	ExitAuth ExitCode = 5

	// 6: 迁移存在失败项
	ExitMigration ExitCode = 6

	// 10: 内部错误 / I/O
	ExitInternal ExitCode = 10
)

func ExitCodeFor(code Code) ExitCode {
	switch code {
	case CodeCfgNotFound, CodeCfgInvalid, CodeInvalidAccount, CodeAccountNotRegistered:
		return ExitConfig
	case CodeCredNotFound:
		return ExitNotFound
	case CodeKeyringUnavailable, CodeNoStoreAvailable:
		return ExitUnavailable
	case CodeMasterPasswordNotSet, CodeWeakPassword, CodeDecryptionFailed:
		return ExitAuth
	case CodeMigrationFailed:
		return ExitMigration
	case CodeIO, CodeInternal:
		fallthrough
	default:
		return ExitInternal
	}
}
