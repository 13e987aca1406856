package mcp

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zx06/plurcast/internal/accounts"
	"github.com/zx06/plurcast/internal/credentials"
	"github.com/zx06/plurcast/internal/errors"
	"github.com/zx06/plurcast/internal/log"
)

const storedSecret = "nsec1-never-leaves-the-store"

func newTestHandler(t *testing.T) (*ToolHandler, *accounts.Manager, *credentials.Manager) {
	t.Helper()
	dir := t.TempDir()
	logger := log.New(io.Discard)
	accts := accounts.New(filepath.Join(dir, "accounts.toml"), logger)
	creds := credentials.NewManagerWithStores(logger, credentials.NewPlainStore(dir, logger))
	return NewToolHandler(accts, creds), accts, creds
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    errors.Code `json:"code"`
		Message string      `json:"message"`
	} `json:"error"`
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) (envelope, string) {
	t.Helper()
	if res == nil || len(res.Content) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", res.Content[0])
	}
	var env envelope
	if err := json.Unmarshal([]byte(text.Text), &env); err != nil {
		t.Fatalf("invalid JSON %q: %v", text.Text, err)
	}
	if env.OK == res.IsError {
		t.Fatalf("ok=%v but IsError=%v", env.OK, res.IsError)
	}
	return env, text.Text
}

func TestCreateServer(t *testing.T) {
	_, accts, creds := newTestHandler(t)
	server, err := CreateServer("test", accts, creds)
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	if server == nil {
		t.Fatal("server is nil")
	}

	_, err = CreateServer("test", nil, creds)
	if !errors.HasCode(err, errors.CodeInternal) {
		t.Fatalf("expected CodeInternal for missing sources, got %v", err)
	}
}

func TestAccountList(t *testing.T) {
	h, accts, creds := newTestHandler(t)
	if err := creds.StoreAccount("plurcast.nostr", "private_key", "default", storedSecret); err != nil {
		t.Fatal(err)
	}
	if err := creds.StoreAccount("plurcast.nostr", "private_key", "work", storedSecret); err != nil {
		t.Fatal(err)
	}
	if xe := accts.RegisterAccount("nostr", "work"); xe != nil {
		t.Fatal(xe)
	}
	if xe := accts.RegisterAccount("nostr", "travel"); xe != nil {
		t.Fatal(xe)
	}
	if xe := accts.SetActiveAccount("nostr", "work"); xe != nil {
		t.Fatal(xe)
	}

	res, _, err := h.AccountList(context.Background(), nil, AccountListInput{Platform: "nostr"})
	if err != nil {
		t.Fatalf("AccountList error: %v", err)
	}
	env, raw := decodeResult(t, res)
	if !env.OK {
		t.Fatalf("expected ok, got %s", raw)
	}
	if strings.Contains(raw, storedSecret) {
		t.Fatal("result leaked a credential value")
	}
	var data struct {
		Backends []string      `json:"backends"`
		Accounts []accountInfo `json:"accounts"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	want := map[string]accountInfo{
		"work":    {Platform: "nostr", Account: "work", Active: true, Stored: true},
		"travel":  {Platform: "nostr", Account: "travel"},
		"default": {Platform: "nostr", Account: "default", Stored: true},
	}
	if len(data.Accounts) != len(want) {
		t.Fatalf("accounts = %+v", data.Accounts)
	}
	for _, a := range data.Accounts {
		if a != want[a.Account] {
			t.Errorf("account %s = %+v, want %+v", a.Account, a, want[a.Account])
		}
	}
	if len(data.Backends) != 1 || data.Backends[0] != credentials.PlainBackendName {
		t.Errorf("backends = %v", data.Backends)
	}
}

func TestAccountList_AllPlatformsEmpty(t *testing.T) {
	h, _, _ := newTestHandler(t)
	res, _, err := h.AccountList(context.Background(), nil, AccountListInput{})
	if err != nil {
		t.Fatal(err)
	}
	env, raw := decodeResult(t, res)
	if !env.OK {
		t.Fatalf("expected ok, got %s", raw)
	}
	var data struct {
		Accounts []accountInfo `json:"accounts"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	// every platform falls back to an active default account
	for _, a := range data.Accounts {
		if a.Account != "default" || !a.Active || a.Stored {
			t.Errorf("unexpected account %+v", a)
		}
	}
}

func TestCredentialTest(t *testing.T) {
	h, _, creds := newTestHandler(t)
	if err := creds.StoreAccount("plurcast.mastodon", "access_token", "default", storedSecret); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name     string
		input    CredentialTestInput
		wantOK   bool
		wantCode errors.Code
	}{
		{name: "stored", input: CredentialTestInput{Platform: "mastodon"}, wantOK: true},
		{name: "case-insensitive", input: CredentialTestInput{Platform: "Mastodon"}, wantOK: true},
		{name: "missing", input: CredentialTestInput{Platform: "mastodon", Account: "other"}, wantCode: errors.CodeCredNotFound},
		{name: "invalid-account", input: CredentialTestInput{Platform: "mastodon", Account: "../x"}, wantCode: errors.CodeInvalidAccount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, _, err := h.CredentialTest(context.Background(), nil, tc.input)
			if err != nil {
				t.Fatal(err)
			}
			env, raw := decodeResult(t, res)
			if !env.OK {
				t.Fatalf("expected a report, got %s", raw)
			}
			if strings.Contains(raw, storedSecret) {
				t.Fatal("result leaked a credential value")
			}
			var info testInfo
			if err := json.Unmarshal(env.Data, &info); err != nil {
				t.Fatal(err)
			}
			if info.OK != tc.wantOK || info.Code != tc.wantCode {
				t.Fatalf("got ok=%v code=%s, want ok=%v code=%s", info.OK, info.Code, tc.wantOK, tc.wantCode)
			}
		})
	}
}

func TestCredentialTest_InvalidInput(t *testing.T) {
	h, _, _ := newTestHandler(t)
	for _, input := range []CredentialTestInput{{}, {Platform: "myspace"}} {
		res, _, err := h.CredentialTest(context.Background(), nil, input)
		if err != nil {
			t.Fatal(err)
		}
		env, _ := decodeResult(t, res)
		if env.OK || env.Error.Code != errors.CodeCfgInvalid {
			t.Errorf("input %+v: expected CodeCfgInvalid, got ok=%v code=%s", input, env.OK, env.Error.Code)
		}
	}
}

func TestCredentialTestHandler_BadArguments(t *testing.T) {
	h, _, _ := newTestHandler(t)
	req := &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(`{"platform":`)}}
	res, err := h.credentialTestHandler(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	env, _ := decodeResult(t, res)
	if env.OK || env.Error.Code != errors.CodeCfgInvalid {
		t.Fatalf("expected CodeCfgInvalid, got %+v", env)
	}
}

func TestStorageAudit(t *testing.T) {
	h, _, creds := newTestHandler(t)
	if err := creds.StoreAccount("plurcast.nostr", "private_key", "default", storedSecret); err != nil {
		t.Fatal(err)
	}
	res, _, err := h.StorageAudit(context.Background(), nil, struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	env, raw := decodeResult(t, res)
	if !env.OK {
		t.Fatalf("expected ok, got %s", raw)
	}
	if strings.Contains(raw, storedSecret) {
		t.Fatal("audit leaked a credential value")
	}
	var data struct {
		Issues int `json:"issues"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Issues == 0 {
		t.Fatalf("plaintext-only storage should report issues: %s", raw)
	}
}

func TestFormatError(t *testing.T) {
	out := formatError(nil)
	if !strings.Contains(out, string(errors.CodeInternal)) {
		t.Errorf("nil error should format as internal: %s", out)
	}
	out = formatError(errors.New(errors.CodeCredNotFound, "credential not found", nil))
	if !strings.Contains(out, `"ok": false`) || !strings.Contains(out, string(errors.CodeCredNotFound)) {
		t.Errorf("unexpected error JSON: %s", out)
	}
}
