package errors

// Code 是稳定错误码（字符串），供 CLI 与调用方判断。
// 只增不改、不复用旧含义。
type Code string

const (
	// Config / args
	CodeCfgNotFound Code = "PLURCAST_CFG_NOT_FOUND"
	CodeCfgInvalid  Code = "PLURCAST_CFG_INVALID"

	// Credential lookup
	CodeCredNotFound Code = "PLURCAST_CRED_NOT_FOUND"

	// Backend availability
	CodeKeyringUnavailable Code = "PLURCAST_KEYRING_UNAVAILABLE"
	CodeNoStoreAvailable   Code = "PLURCAST_NO_STORE_AVAILABLE"

	// Master password / encryption
	CodeMasterPasswordNotSet Code = "PLURCAST_MASTER_PASSWORD_NOT_SET"
	CodeWeakPassword         Code = "PLURCAST_WEAK_PASSWORD"
	CodeDecryptionFailed     Code = "PLURCAST_DECRYPTION_FAILED"

	// Migration
	CodeMigrationFailed Code = "PLURCAST_MIGRATION_FAILED"

	// Accounts
	CodeInvalidAccount       Code = "PLURCAST_INVALID_ACCOUNT"
	CodeAccountNotRegistered Code = "PLURCAST_ACCOUNT_NOT_REGISTERED"

	// I/O / Internal
	CodeIO       Code = "PLURCAST_IO"
	CodeInternal Code = "PLURCAST_INTERNAL"
)

func AllCodes() []Code {
	return []Code{
		CodeCfgNotFound,
		CodeCfgInvalid,
		CodeCredNotFound,
		CodeKeyringUnavailable,
		CodeNoStoreAvailable,
		CodeMasterPasswordNotSet,
		CodeWeakPassword,
		CodeDecryptionFailed,
		CodeMigrationFailed,
		CodeInvalidAccount,
		CodeAccountNotRegistered,
		CodeIO,
		CodeInternal,
	}
}
