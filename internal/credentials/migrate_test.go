package credentials

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/zx06/plurcast/internal/errors"
	"github.com/zx06/plurcast/internal/secret"
)

func seedPlain(t *testing.T, p *PlainStore, values map[Ref]string) {
	t.Helper()
	for r, v := range values {
		if err := p.StoreAccount(r.Service, r.Key, r.Account, v); err != nil {
			t.Fatal(err)
		}
	}
}

var legacyValues = map[Ref]string{
	{"plurcast.nostr", "private_key", DefaultAccount}: "nsec1legacydefault",
	{"plurcast.mastodon", "access_token", "test"}:     "mastodon-test-token",
	{"plurcast.bluesky", "app_password", "prod"}:      "bsky-prod-pass",
}

func TestMigrateFromPlain(t *testing.T) {
	m, _, plain := newEncryptedManager(t)
	if err := m.SetMasterPassword(secret.NewPassword(testPassword)); err != nil {
		t.Fatal(err)
	}
	seedPlain(t, plain, legacyValues)

	report, err := m.MigrateFromPlain()
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Migrated) != 3 || len(report.Skipped) != 0 || report.HasFailures() {
		t.Fatalf("report=%+v", report)
	}
	if report.Total() != 3 || report.Err() != nil {
		t.Fatalf("Total=%d Err=%v", report.Total(), report.Err())
	}
	for r, want := range legacyValues {
		got, err := m.Encrypted().RetrieveAccount(r.Service, r.Key, r.Account)
		if err != nil || got != want {
			t.Errorf("%s: got %q, %v", r, got, err)
		}
		// 源文件保持不变
		if _, err := os.Stat(plain.Path(r.Service, r.Key, r.Account)); err != nil {
			t.Errorf("%s: plaintext source must be kept: %v", r, err)
		}
	}
}

func TestMigrateFromPlain_Idempotent(t *testing.T) {
	m, _, plain := newEncryptedManager(t)
	if err := m.SetMasterPassword(secret.NewPassword(testPassword)); err != nil {
		t.Fatal(err)
	}
	seedPlain(t, plain, legacyValues)

	if _, err := m.MigrateFromPlain(); err != nil {
		t.Fatal(err)
	}
	report, err := m.MigrateFromPlain()
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Migrated) != 0 || len(report.Skipped) != 3 || report.HasFailures() {
		t.Fatalf("second run report=%+v", report)
	}
}

func TestMigrateFromPlain_KeepsDifferentSecureValue(t *testing.T) {
	m, enc, plain := newEncryptedManager(t)
	if err := m.SetMasterPassword(secret.NewPassword(testPassword)); err != nil {
		t.Fatal(err)
	}
	ref := Ref{"plurcast.nostr", "private_key", DefaultAccount}
	seedPlain(t, plain, map[Ref]string{ref: "old-stale-key"})
	// set 轮换过的新值已在安全存储中
	if err := m.StoreAccount(ref.Service, ref.Key, ref.Account, "new-rotated-key"); err != nil {
		t.Fatal(err)
	}
	report, err := m.MigrateFromPlain()
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Migrated) != 0 || len(report.Skipped) != 1 || report.HasFailures() {
		t.Fatalf("report=%+v", report)
	}
	if len(report.Conflicts) != 1 || report.Conflicts[0] != ref {
		t.Fatalf("Conflicts=%v", report.Conflicts)
	}
	got, err := enc.RetrieveAccount(ref.Service, ref.Key, ref.Account)
	if err != nil || got != "new-rotated-key" {
		t.Fatalf("secure copy changed: %q, %v", got, err)
	}

	// 冲突的明文文件不会被清理
	deleted, err := m.CleanupPlain(report, nil)
	if err != nil || len(deleted) != 0 {
		t.Fatalf("deleted=%v err=%v", deleted, err)
	}
	if _, err := os.Stat(plain.Path(ref.Service, ref.Key, ref.Account)); err != nil {
		t.Fatalf("plaintext file should be kept: %v", err)
	}
}

func TestMigrateFromPlain_FailuresAreRecorded(t *testing.T) {
	m, _, plain := newEncryptedManager(t)
	seedPlain(t, plain, legacyValues)

	// 没有主密码：每条都失败，但不会中止也不会动源文件
	report, err := m.MigrateFromPlain()
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Failed) != 3 || len(report.Migrated) != 0 {
		t.Fatalf("report=%+v", report)
	}
	for _, f := range report.Failed {
		if f.Code != errors.CodeMasterPasswordNotSet {
			t.Errorf("%s: code=%s", f.Ref, f.Code)
		}
	}
	if xe := report.Err(); xe == nil || xe.Code != errors.CodeMigrationFailed {
		t.Fatalf("Err()=%v", xe)
	}
	for r, want := range legacyValues {
		got, err := plain.RetrieveAccount(r.Service, r.Key, r.Account)
		if err != nil || got != want {
			t.Errorf("%s: plaintext source changed: %q, %v", r, got, err)
		}
	}
}

func TestMigrateFromPlain_ReportDoesNotContainValues(t *testing.T) {
	m, _, plain := newEncryptedManager(t)
	seedPlain(t, plain, legacyValues)
	failed, err := m.MigrateFromPlain()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SetMasterPassword(secret.NewPassword(testPassword)); err != nil {
		t.Fatal(err)
	}
	migrated, err := m.MigrateFromPlain()
	if err != nil {
		t.Fatal(err)
	}
	for _, report := range []*MigrationReport{failed, migrated} {
		b, err := json.Marshal(report)
		if err != nil {
			t.Fatal(err)
		}
		for _, v := range legacyValues {
			if strings.Contains(string(b), v) {
				t.Fatalf("report leaks a credential value: %s", b)
			}
		}
	}
}

func TestMigrateFromPlain_RequiresSecureBackend(t *testing.T) {
	logger, _ := testLogger()
	m, err := NewManager(ManagerConfig{Storage: StoragePlain, PlainDir: t.TempDir(), Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.MigrateFromPlain(); !errors.HasCode(err, errors.CodeNoStoreAvailable) {
		t.Fatalf("got %v", err)
	}
	if _, err := m.CleanupPlain(&MigrationReport{}, nil); !errors.HasCode(err, errors.CodeNoStoreAvailable) {
		t.Fatalf("got %v", err)
	}

	noPlain := NewManagerWithStores(logger, newMemStore("a"))
	if _, err := noPlain.MigrateFromPlain(); !errors.HasCode(err, errors.CodeNoStoreAvailable) {
		t.Fatalf("got %v", err)
	}
}

func TestMigrateFromPlain_ToKeyring(t *testing.T) {
	logger, _ := testLogger()
	keyringMock(t)
	m, err := NewManager(ManagerConfig{Storage: StorageKeyring, PlainDir: t.TempDir(), Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	seedPlain(t, m.Plain(), legacyValues)
	report, err := m.MigrateFromPlain()
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Migrated) != 3 {
		t.Fatalf("report=%+v", report)
	}
}

func TestCleanupPlain(t *testing.T) {
	m, _, plain := newEncryptedManager(t)
	if err := m.SetMasterPassword(secret.NewPassword(testPassword)); err != nil {
		t.Fatal(err)
	}
	seedPlain(t, plain, legacyValues)
	report, err := m.MigrateFromPlain()
	if err != nil {
		t.Fatal(err)
	}

	keep := Ref{"plurcast.bluesky", "app_password", "prod"}
	deleted, err := m.CleanupPlain(report, func(r Ref) bool { return r != keep })
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 2 {
		t.Fatalf("deleted=%v", deleted)
	}
	for r := range legacyValues {
		ok, _ := plain.ExistsAccount(r.Service, r.Key, r.Account)
		if r == keep && !ok {
			t.Errorf("%s: declined file was deleted", r)
		}
		if r != keep && ok {
			t.Errorf("%s: file should be deleted", r)
		}
		// 安全副本仍然可读
		if _, err := m.RetrieveAccount(r.Service, r.Key, r.Account); err != nil {
			t.Errorf("%s: %v", r, err)
		}
	}
}

func TestCleanupPlain_KeepsUnverifiedFiles(t *testing.T) {
	m, enc, plain := newEncryptedManager(t)
	if err := m.SetMasterPassword(secret.NewPassword(testPassword)); err != nil {
		t.Fatal(err)
	}
	r := Ref{"plurcast.nostr", "private_key", "test"}
	seedPlain(t, plain, map[Ref]string{r: "original"})
	report, err := m.MigrateFromPlain()
	if err != nil {
		t.Fatal(err)
	}
	// 迁移后安全副本被改写，明文不能再被删除
	if err := enc.StoreAccount(r.Service, r.Key, r.Account, "changed"); err != nil {
		t.Fatal(err)
	}
	deleted, err := m.CleanupPlain(report, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 0 {
		t.Fatalf("deleted=%v", deleted)
	}
	if ok, _ := plain.ExistsAccount(r.Service, r.Key, r.Account); !ok {
		t.Fatal("plaintext file must be kept")
	}
}
