package credentials

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/zx06/plurcast/internal/errors"
	"github.com/zx06/plurcast/internal/log"
	"github.com/zx06/plurcast/internal/secret"
)

// EncryptedBackendName 是加密文件后端的诊断名。
const EncryptedBackendName = "encrypted"

// EncryptedExt 是加密凭据文件的扩展名。
const EncryptedExt = ".enc"

// 文件格式（大端）：
//
//	magic[6] "PLCENC" | version u8 | argon2 time u32 | memory KiB u32 | threads u8 |
//	salt[16] | nonce[24] | XChaCha20-Poly1305(ciphertext||tag)
//
// 整个头部作为 AEAD 附加数据，篡改参数同样会导致解密失败。
var encMagic = []byte("PLCENC")

const (
	encVersion   = 1
	saltSize     = 16
	keySize      = chacha20poly1305.KeySize
	headerSize   = 6 + 1 + 4 + 4 + 1 + saltSize + chacha20poly1305.NonceSizeX
	maxMemoryKiB = 2 * 1024 * 1024 // 2 GiB，防止构造的文件耗尽内存
	maxTime      = 64
)

// KDFParams 是 Argon2id 参数。
type KDFParams struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultKDF 是写入新文件时使用的参数。
var DefaultKDF = KDFParams{Time: 3, MemoryKiB: 64 * 1024, Threads: 4}

// EncryptedOptions 配置 EncryptedStore。
type EncryptedOptions struct {
	Dir    string
	KDF    KDFParams // 零值使用 DefaultKDF
	Logger *slog.Logger
}

// EncryptedStore 以主密码派生的密钥加密每条凭据，一条凭据一个文件：
// {dir}/{service}.{account}.{key}.enc，权限 0600。
type EncryptedStore struct {
	dir    string
	kdf    KDFParams
	logger *slog.Logger

	mu       sync.RWMutex
	password *secret.Password
}

func NewEncryptedStore(opts EncryptedOptions) *EncryptedStore {
	kdf := opts.KDF
	if kdf == (KDFParams{}) {
		kdf = DefaultKDF
	}
	return &EncryptedStore{dir: opts.Dir, kdf: kdf, logger: log.OrDefault(opts.Logger)}
}

func (e *EncryptedStore) BackendName() string { return EncryptedBackendName }

// Dir 返回存放加密文件的目录。
func (e *EncryptedStore) Dir() string { return e.dir }

// SetMasterPassword 设置会话主密码，少于 8 个字符返回 PLURCAST_WEAK_PASSWORD。
// 成功后 e 接管 pw，旧密码会被清除；失败时 pw 也会被清除。
func (e *EncryptedStore) SetMasterPassword(pw *secret.Password) error {
	if pw == nil || pw.Len() < secret.MinPasswordLength {
		pw.Clear()
		return errors.New(errors.CodeWeakPassword, "master password must be at least 8 characters",
			map[string]any{"backend": EncryptedBackendName, "min_length": secret.MinPasswordLength})
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.password != nil && e.password != pw {
		e.password.Clear()
	}
	e.password = pw
	return nil
}

// ClearMasterPassword 覆盖并丢弃缓存的主密码。
func (e *EncryptedStore) ClearMasterPassword() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.password != nil {
		e.password.Clear()
		e.password = nil
	}
}

// HasMasterPassword 报告当前是否已设置主密码。
func (e *EncryptedStore) HasMasterPassword() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.password.IsSet()
}

// passwordBytes 返回主密码副本，调用方负责 secret.Wipe。
func (e *EncryptedStore) passwordBytes(r Ref) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.password.IsSet() {
		return nil, errors.New(errors.CodeMasterPasswordNotSet, "master password not set", r.details(EncryptedBackendName))
	}
	return e.password.Bytes(), nil
}

// Path 返回三元组对应的文件路径。
func (e *EncryptedStore) Path(service, key, account string) string {
	return filepath.Join(e.dir, service+"."+account+"."+key+EncryptedExt)
}

func (e *EncryptedStore) StoreAccount(service, key, account, value string) error {
	if err := validateRef(service, key, account); err != nil {
		return err
	}
	r := Ref{Service: service, Key: key, Account: account}
	pw, err := e.passwordBytes(r)
	if err != nil {
		return err
	}
	defer secret.Wipe(pw)

	plaintext := []byte(value)
	defer secret.Wipe(plaintext)

	blob, err := seal(pw, plaintext, e.kdf)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "failed to encrypt credential", r.details(EncryptedBackendName), err)
	}
	if err := writeSecretFile(e.Path(service, key, account), blob); err != nil {
		return err
	}
	e.logger.Debug("stored credential", "ref", r.String(), "backend", EncryptedBackendName)
	return nil
}

func (e *EncryptedStore) RetrieveAccount(service, key, account string) (string, error) {
	if err := validateRef(service, key, account); err != nil {
		return "", err
	}
	r := Ref{Service: service, Key: key, Account: account}
	path := e.Path(service, key, account)
	blob, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", notFound(r, EncryptedBackendName)
		}
		return "", errors.Wrap(errors.CodeIO, "failed to read encrypted credential", withPath(r.details(EncryptedBackendName), path), err)
	}
	pw, err := e.passwordBytes(r)
	if err != nil {
		return "", err
	}
	defer secret.Wipe(pw)

	plaintext, err := open(pw, blob)
	if err != nil {
		return "", errors.Wrap(errors.CodeDecryptionFailed,
			"failed to decrypt credential (wrong master password or corrupted file)",
			withPath(r.details(EncryptedBackendName), path), err)
	}
	defer secret.Wipe(plaintext)
	return string(plaintext), nil
}

func (e *EncryptedStore) DeleteAccount(service, key, account string) error {
	if err := validateRef(service, key, account); err != nil {
		return err
	}
	r := Ref{Service: service, Key: key, Account: account}
	path := e.Path(service, key, account)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return notFound(r, EncryptedBackendName)
		}
		return errors.Wrap(errors.CodeIO, "failed to delete encrypted credential", withPath(r.details(EncryptedBackendName), path), err)
	}
	return nil
}

// ExistsAccount 只检查文件是否存在，不需要主密码。
func (e *EncryptedStore) ExistsAccount(service, key, account string) (bool, error) {
	if err := validateRef(service, key, account); err != nil {
		return false, err
	}
	return fileExists(e.Path(service, key, account))
}

func (e *EncryptedStore) ListAccounts(service, key string) ([]string, error) {
	if err := validateServiceKey(service, key); err != nil {
		return nil, err
	}
	return scanAccounts(e.dir, service+".", "."+key+EncryptedExt)
}

// IsEmpty 报告目录中是否还没有任何加密凭据，此时设置的主密码将成为新密码。
func (e *EncryptedStore) IsEmpty() (bool, error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, errors.Wrap(errors.CodeIO, "failed to read credential directory", map[string]any{"path": e.dir}, err)
	}
	for _, en := range entries {
		name := en.Name()
		if !en.IsDir() && name[0] != '.' && filepath.Ext(name) == EncryptedExt {
			return false, nil
		}
	}
	return true, nil
}

func withPath(d map[string]any, path string) map[string]any {
	d["path"] = path
	return d
}

func deriveKey(pw, salt []byte, p KDFParams) []byte {
	return argon2.IDKey(pw, salt, p.Time, p.MemoryKiB, p.Threads, keySize)
}

func seal(pw, plaintext []byte, p KDFParams) ([]byte, error) {
	header := make([]byte, headerSize)
	copy(header, encMagic)
	header[6] = encVersion
	binary.BigEndian.PutUint32(header[7:11], p.Time)
	binary.BigEndian.PutUint32(header[11:15], p.MemoryKiB)
	header[15] = p.Threads
	salt := header[16 : 16+saltSize]
	nonce := header[16+saltSize:]
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	key := deriveKey(pw, salt, p)
	defer secret.Wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, headerSize, headerSize+len(plaintext)+aead.Overhead())
	copy(out, header)
	return aead.Seal(out, nonce, plaintext, header), nil
}

type formatError string

func (e formatError) Error() string { return string(e) }

func open(pw, blob []byte) ([]byte, error) {
	if len(blob) < headerSize+chacha20poly1305.Overhead {
		return nil, formatError("encrypted file is truncated")
	}
	header := blob[:headerSize]
	if !bytes.Equal(header[:6], encMagic) {
		return nil, formatError("not a plurcast encrypted file")
	}
	if header[6] != encVersion {
		return nil, formatError("unsupported encrypted file version")
	}
	p := KDFParams{
		Time:      binary.BigEndian.Uint32(header[7:11]),
		MemoryKiB: binary.BigEndian.Uint32(header[11:15]),
		Threads:   header[15],
	}
	if p.Time == 0 || p.Time > maxTime || p.MemoryKiB == 0 || p.MemoryKiB > maxMemoryKiB || p.Threads == 0 {
		return nil, formatError("invalid key derivation parameters")
	}
	salt := header[16 : 16+saltSize]
	nonce := header[16+saltSize:]

	key := deriveKey(pw, salt, p)
	defer secret.Wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, blob[headerSize:], header)
}
