package credentials

import (
	"bytes"
	stderrors "errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/zx06/plurcast/internal/log"
	"github.com/zx06/plurcast/internal/secret"
)

// testKDF 让 argon2 在测试中足够快。
var testKDF = KDFParams{Time: 1, MemoryKiB: 64, Threads: 1}

const testPassword = "correct horse battery"

// syncBuffer 让并发写日志的测试不产生数据竞争。
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return log.NewWithLevel(buf, slog.LevelDebug), buf
}

func newTestEncrypted(t *testing.T, dir string, logger *slog.Logger) *EncryptedStore {
	t.Helper()
	e := NewEncryptedStore(EncryptedOptions{Dir: dir, KDF: testKDF, Logger: logger})
	if err := e.SetMasterPassword(secret.NewPassword(testPassword)); err != nil {
		t.Fatalf("SetMasterPassword: %v", err)
	}
	return e
}

func newTestKeyring(logger *slog.Logger, lister AccountLister) *KeyringStore {
	keyring.MockInit()
	return NewKeyringStore(nil, lister, logger)
}

// brokenKeyring 模拟无 Secret Service 守护进程的无头 Linux。
type brokenKeyring struct{}

var errNoDaemon = stderrors.New("dbus: org.freedesktop.secrets not provided")

func (brokenKeyring) Get(string, string) (string, error) { return "", errNoDaemon }
func (brokenKeyring) Set(string, string, string) error   { return errNoDaemon }
func (brokenKeyring) Delete(string, string) error        { return errNoDaemon }

// staticLister 是固定账户列表的 AccountLister。
type staticLister map[string][]string

func (l staticLister) KnownAccounts(service string) []string { return l[service] }

// memStore 是最小的内存后端，用于验证 Manager 对任意 Store 的行为。
type memStore struct {
	name string
	mu   sync.RWMutex
	data map[Ref]string
	err  error // 非 nil 时所有操作返回该错误
}

func newMemStore(name string) *memStore {
	return &memStore{name: name, data: map[Ref]string{}}
}

func (s *memStore) BackendName() string { return s.name }

func (s *memStore) StoreAccount(service, key, account, value string) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[Ref{service, key, account}] = value
	return nil
}

func (s *memStore) RetrieveAccount(service, key, account string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := Ref{service, key, account}
	v, ok := s.data[r]
	if !ok {
		return "", notFound(r, s.name)
	}
	return v, nil
}

func (s *memStore) DeleteAccount(service, key, account string) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := Ref{service, key, account}
	if _, ok := s.data[r]; !ok {
		return notFound(r, s.name)
	}
	delete(s.data, r)
	return nil
}

func (s *memStore) ExistsAccount(service, key, account string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[Ref{service, key, account}]
	return ok, nil
}

func (s *memStore) ListAccounts(service, key string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for r := range s.data {
		if r.Service == service && r.Key == key {
			out = append(out, r.Account)
		}
	}
	return mergeSorted(out), nil
}
