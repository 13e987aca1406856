package credentials

import (
	"strings"
	"testing"

	"github.com/zx06/plurcast/internal/errors"
)

// backendFactories 覆盖三个真实后端，所有契约测试对每个后端都要成立。
func backendFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"keyring": func(t *testing.T) Store {
			logger, _ := testLogger()
			return newTestKeyring(logger, staticLister{"plurcast.nostr": {"test", "prod"}})
		},
		"encrypted": func(t *testing.T) Store {
			logger, _ := testLogger()
			return newTestEncrypted(t, t.TempDir(), logger)
		},
		"plain": func(t *testing.T) Store {
			logger, _ := testLogger()
			return NewPlainStore(t.TempDir(), logger)
		},
	}
}

func TestStoreContract_RoundTrip(t *testing.T) {
	values := []string{
		"nsec1deadbeef",
		"",
		"with spaces and\ttabs",
		"trailing newline\n",
		"two newlines\n\n",
		"密码-пароль-パスワード",
		strings.Repeat("x", 1000),
	}
	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			for i, v := range values {
				if err := s.StoreAccount("plurcast.nostr", "private_key", "test", v); err != nil {
					t.Fatalf("[%d] StoreAccount: %v", i, err)
				}
				got, err := s.RetrieveAccount("plurcast.nostr", "private_key", "test")
				if err != nil {
					t.Fatalf("[%d] RetrieveAccount: %v", i, err)
				}
				if got != v {
					t.Fatalf("[%d] round trip mismatch: got len=%d want len=%d", i, len(got), len(v))
				}
			}
		})
	}
}

func TestStoreContract_AccountIsolation(t *testing.T) {
	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			if err := s.StoreAccount("plurcast.nostr", "private_key", "test", "test-key"); err != nil {
				t.Fatal(err)
			}
			if _, err := s.RetrieveAccount("plurcast.nostr", "private_key", "prod"); !IsNotFound(err) {
				t.Fatalf("prod should not see test credential, got %v", err)
			}
			if err := s.StoreAccount("plurcast.nostr", "private_key", "prod", "prod-key"); err != nil {
				t.Fatal(err)
			}
			got, err := s.RetrieveAccount("plurcast.nostr", "private_key", "test")
			if err != nil || got != "test-key" {
				t.Fatalf("test credential changed: %q, %v", got, err)
			}
			if err := s.DeleteAccount("plurcast.nostr", "private_key", "prod"); err != nil {
				t.Fatal(err)
			}
			if ok, _ := s.ExistsAccount("plurcast.nostr", "private_key", "test"); !ok {
				t.Fatal("deleting prod must not delete test")
			}
		})
	}
}

func TestStoreContract_DefaultBackwardCompatibility(t *testing.T) {
	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			if err := StoreDefault(s, "plurcast.nostr", "private_key", "single"); err != nil {
				t.Fatal(err)
			}
			got, err := s.RetrieveAccount("plurcast.nostr", "private_key", DefaultAccount)
			if err != nil || got != "single" {
				t.Fatalf("RetrieveAccount(default)=%q, %v", got, err)
			}

			if err := s.StoreAccount("plurcast.mastodon", "access_token", DefaultAccount, "multi"); err != nil {
				t.Fatal(err)
			}
			got, err = RetrieveDefault(s, "plurcast.mastodon", "access_token")
			if err != nil || got != "multi" {
				t.Fatalf("RetrieveDefault=%q, %v", got, err)
			}
			if ok, err := ExistsDefault(s, "plurcast.mastodon", "access_token"); err != nil || !ok {
				t.Fatalf("ExistsDefault=%v, %v", ok, err)
			}
			if err := DeleteDefault(s, "plurcast.mastodon", "access_token"); err != nil {
				t.Fatal(err)
			}
			if ok, _ := s.ExistsAccount("plurcast.mastodon", "access_token", DefaultAccount); ok {
				t.Fatal("expected credential deleted")
			}
		})
	}
}

func TestStoreContract_NotFound(t *testing.T) {
	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			if _, err := s.RetrieveAccount("plurcast.bluesky", "app_password", "nobody"); !IsNotFound(err) {
				t.Fatalf("RetrieveAccount: expected NotFound, got %v", err)
			}
			if err := s.DeleteAccount("plurcast.bluesky", "app_password", "nobody"); !IsNotFound(err) {
				t.Fatalf("DeleteAccount: expected NotFound, got %v", err)
			}
			ok, err := s.ExistsAccount("plurcast.bluesky", "app_password", "nobody")
			if err != nil || ok {
				t.Fatalf("ExistsAccount=%v, %v", ok, err)
			}
		})
	}
}

func TestStoreContract_Overwrite(t *testing.T) {
	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			for _, v := range []string{"first", "second"} {
				if err := s.StoreAccount("plurcast.nostr", "private_key", "test", v); err != nil {
					t.Fatal(err)
				}
			}
			got, err := s.RetrieveAccount("plurcast.nostr", "private_key", "test")
			if err != nil || got != "second" {
				t.Fatalf("got %q, %v", got, err)
			}
		})
	}
}

func TestStoreContract_ListAccounts(t *testing.T) {
	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			for _, a := range []string{"test", DefaultAccount, "prod"} {
				if err := s.StoreAccount("plurcast.nostr", "private_key", a, "v-"+a); err != nil {
					t.Fatal(err)
				}
			}
			got, err := s.ListAccounts("plurcast.nostr", "private_key")
			if err != nil {
				t.Fatal(err)
			}
			want := []string{DefaultAccount, "prod", "test"}
			if strings.Join(got, ",") != strings.Join(want, ",") {
				t.Fatalf("ListAccounts=%v want %v", got, want)
			}
		})
	}
}

func TestStoreContract_InvalidAccountRejected(t *testing.T) {
	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			for _, account := range []string{"test account", strings.Repeat("a", 65), ""} {
				err := s.StoreAccount("plurcast.nostr", "private_key", account, "v")
				if !errors.HasCode(err, errors.CodeInvalidAccount) {
					t.Fatalf("StoreAccount(%q): expected PLURCAST_INVALID_ACCOUNT, got %v", account, err)
				}
				_, err = s.RetrieveAccount("plurcast.nostr", "private_key", account)
				if !errors.HasCode(err, errors.CodeInvalidAccount) {
					t.Fatalf("RetrieveAccount(%q): expected PLURCAST_INVALID_ACCOUNT, got %v", account, err)
				}
			}
		})
	}
}

func TestStoreContract_FileNamesDoNotCollide(t *testing.T) {
	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			if err := s.StoreAccount("plurcast.nostr", "x", "default", "secret-A"); err != nil {
				t.Fatal(err)
			}
			// 与上面拼出同一个文件名的三元组必须被拒绝
			if err := s.StoreAccount("plurcast", "default.x", "nostr", "secret-B"); !errors.HasCode(err, errors.CodeCfgInvalid) {
				t.Fatalf("expected CodeCfgInvalid for dotted key, got %v", err)
			}
			if err := s.StoreAccount("plurcast.nostr.x", "y", "default", "secret-C"); err != nil {
				t.Fatal(err)
			}
			got, err := s.RetrieveAccount("plurcast.nostr", "x", "default")
			if err != nil || got != "secret-A" {
				t.Fatalf("first credential changed: %q, %v", got, err)
			}
			got, err = s.RetrieveAccount("plurcast.nostr.x", "y", "default")
			if err != nil || got != "secret-C" {
				t.Fatalf("second credential: %q, %v", got, err)
			}
		})
	}
}

func TestValidateRef(t *testing.T) {
	tests := []struct {
		service, key, account string
		code                  errors.Code
	}{
		{"plurcast.nostr", "private_key", "default", ""},
		{"", "private_key", "default", errors.CodeCfgInvalid},
		{"plurcast.nostr", "", "default", errors.CodeCfgInvalid},
		{"../etc", "passwd", "default", errors.CodeCfgInvalid},
		{".hidden", "k", "default", errors.CodeCfgInvalid},
		{"plurcast.nostr", "a/b", "default", errors.CodeCfgInvalid},
		{"plurcast.nostr", "private.key", "default", errors.CodeCfgInvalid},
		{"plurcast", "default.x", "nostr", errors.CodeCfgInvalid},
		{"plurcast.nostr", "private_key", "a.b", errors.CodeInvalidAccount},
	}
	for _, tt := range tests {
		err := validateRef(tt.service, tt.key, tt.account)
		if tt.code == "" {
			if err != nil {
				t.Errorf("validateRef(%q,%q,%q) unexpected error: %v", tt.service, tt.key, tt.account, err)
			}
			continue
		}
		if !errors.HasCode(err, tt.code) {
			t.Errorf("validateRef(%q,%q,%q)=%v want %s", tt.service, tt.key, tt.account, err, tt.code)
		}
	}
}

func TestRefString(t *testing.T) {
	r := Ref{Service: "plurcast.nostr", Key: "private_key", Account: "test"}
	if got := r.String(); got != "plurcast.nostr/private_key@test" {
		t.Fatalf("String()=%q", got)
	}
}
