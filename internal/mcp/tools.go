package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zx06/plurcast/internal/credentials"
	"github.com/zx06/plurcast/internal/errors"
	"github.com/zx06/plurcast/internal/platform"
)

// AccountSource is the account state the tools read.
type AccountSource interface {
	ListAccounts(platformName string) []string
	GetActiveAccount(platformName string) string
}

// CredentialSource is the credential state the tools read. Values returned by
// RetrieveAccount are only checked for presence and never leave the handler.
type CredentialSource interface {
	Backends() []string
	ListAccounts(service, key string) ([]string, error)
	RetrieveAccount(service, key, account string) (string, error)
	Audit() (*credentials.AuditReport, error)
}

// AccountListInput represents the input for the account_list tool
type AccountListInput struct {
	Platform string `json:"platform,omitempty" jsonschema:"Platform name; empty lists every platform"`
}

// CredentialTestInput represents the input for the credential_test tool
type CredentialTestInput struct {
	Platform string `json:"platform" jsonschema:"Platform name"`
	Account  string `json:"account,omitempty" jsonschema:"Account name; empty uses the active account"`
}

type accountInfo struct {
	Platform string `json:"platform"`
	Account  string `json:"account"`
	Active   bool   `json:"active"`
	Stored   bool   `json:"stored"`
}

type testInfo struct {
	Platform string      `json:"platform"`
	Account  string      `json:"account"`
	OK       bool        `json:"ok"`
	Code     errors.Code `json:"code,omitempty"`
	Message  string      `json:"message,omitempty"`
}

// ToolHandler manages MCP tools
type ToolHandler struct {
	accounts AccountSource
	creds    CredentialSource
}

// NewToolHandler creates a new tool handler
func NewToolHandler(accounts AccountSource, creds CredentialSource) *ToolHandler {
	return &ToolHandler{accounts: accounts, creds: creds}
}

// RegisterTools registers all tools with the MCP server
func (h *ToolHandler) RegisterTools(server *mcp.Server) {
	names := platform.Names()
	platformEnums := make([]any, len(names))
	for i, name := range names {
		platformEnums[i] = name
	}

	server.AddTool(&mcp.Tool{
		Name:        "account_list",
		Description: "List accounts per platform with active and stored flags",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"platform": {Type: "string", Description: "Platform name", Enum: platformEnums},
			},
		},
	}, h.accountListHandler)

	server.AddTool(&mcp.Tool{
		Name:        "credential_test",
		Description: "Check whether a platform credential can be retrieved; the value is never returned",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"platform"},
			Properties: map[string]*jsonschema.Schema{
				"platform": {Type: "string", Description: "Platform name", Enum: platformEnums},
				"account":  {Type: "string", Description: "Account name; empty uses the active account"},
			},
		},
	}, h.credentialTestHandler)

	mcp.AddTool[struct{}, any](server, &mcp.Tool{
		Name:        "storage_audit",
		Description: "Audit credential storage backends and file permissions",
	}, h.StorageAudit)
}

func (h *ToolHandler) accountListHandler(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input AccountListInput
	if xe := decodeArguments(req, &input); xe != nil {
		return errorResult(xe), nil
	}
	result, _, err := h.AccountList(ctx, req, input)
	return result, err
}

func (h *ToolHandler) credentialTestHandler(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input CredentialTestInput
	if xe := decodeArguments(req, &input); xe != nil {
		return errorResult(xe), nil
	}
	result, _, err := h.CredentialTest(ctx, req, input)
	return result, err
}

func decodeArguments(req *mcp.CallToolRequest, v any) *errors.XError {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return errors.Wrap(errors.CodeCfgInvalid, "invalid input", nil, err)
	}
	return nil
}

// AccountList lists registered and stored accounts
func (h *ToolHandler) AccountList(ctx context.Context, req *mcp.CallToolRequest, input AccountListInput) (*mcp.CallToolResult, any, error) {
	platforms := platform.All()
	if input.Platform != "" {
		p, xe := lookupPlatform(input.Platform)
		if xe != nil {
			return errorResult(xe), nil, nil
		}
		platforms = []platform.Platform{p}
	}

	out := []accountInfo{}
	for _, p := range platforms {
		stored, err := h.creds.ListAccounts(p.Service, p.Key)
		if err != nil {
			return errorResult(err), nil, nil
		}
		storedSet := map[string]bool{}
		for _, a := range stored {
			storedSet[a] = true
		}
		active := h.accounts.GetActiveAccount(p.Name)
		seen := map[string]bool{}
		for _, set := range [][]string{{active}, h.accounts.ListAccounts(p.Name), stored} {
			for _, a := range set {
				if seen[a] {
					continue
				}
				seen[a] = true
				if a == credentials.DefaultAccount && !storedSet[a] && a != active {
					continue
				}
				out = append(out, accountInfo{Platform: p.Name, Account: a, Active: a == active, Stored: storedSet[a]})
			}
		}
	}
	return okResult(map[string]any{"backends": h.creds.Backends(), "accounts": out}), nil, nil
}

// CredentialTest reports whether one credential is retrievable
func (h *ToolHandler) CredentialTest(ctx context.Context, req *mcp.CallToolRequest, input CredentialTestInput) (*mcp.CallToolResult, any, error) {
	if input.Platform == "" {
		return errorResult(errors.New(errors.CodeCfgInvalid, "platform is required", nil)), nil, nil
	}
	p, xe := lookupPlatform(input.Platform)
	if xe != nil {
		return errorResult(xe), nil, nil
	}
	account := input.Account
	if account == "" {
		account = h.accounts.GetActiveAccount(p.Name)
	}

	info := testInfo{Platform: p.Name, Account: account, OK: true}
	if _, err := h.creds.RetrieveAccount(p.Service, p.Key, account); err != nil {
		xe := errors.AsOrWrap(err)
		info.OK = false
		info.Code = xe.Code
		info.Message = xe.Message
	}
	return okResult(info), nil, nil
}

// StorageAudit runs the storage security audit
func (h *ToolHandler) StorageAudit(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, any, error) {
	report, err := h.creds.Audit()
	if err != nil {
		return errorResult(err), nil, nil
	}
	return okResult(map[string]any{
		"backends": report.Backends,
		"findings": report.Findings,
		"issues":   report.Issues(),
	}), nil, nil
}

func lookupPlatform(name string) (platform.Platform, *errors.XError) {
	p, ok := platform.Lookup(strings.ToLower(name))
	if !ok {
		return platform.Platform{}, errors.New(errors.CodeCfgInvalid, "unknown platform",
			map[string]any{"platform": name, "supported": platform.Names()})
	}
	return p, nil
}

func okResult(data any) *mcp.CallToolResult {
	output := map[string]any{
		"ok":             true,
		"schema_version": 1,
		"data":           data,
	}
	jsonData, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return errorResult(errors.Wrap(errors.CodeInternal, "failed to marshal result", nil, err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonData)},
		},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: formatError(err)},
		},
	}
}

// formatError formats an error as JSON
func formatError(err error) string {
	var xe *errors.XError
	if err != nil {
		xe = errors.AsOrWrap(err)
	} else {
		xe = errors.New(errors.CodeInternal, "unknown error", nil)
	}
	output := map[string]any{
		"ok":             false,
		"schema_version": 1,
		"error": map[string]any{
			"code":    xe.Code,
			"message": xe.Message,
			"details": xe.Details,
		},
	}
	jsonData, _ := json.MarshalIndent(output, "", "  ")
	return string(jsonData)
}

// CreateServer creates a new MCP server
func CreateServer(version string, accounts AccountSource, creds CredentialSource) (*mcp.Server, error) {
	if accounts == nil || creds == nil {
		return nil, errors.New(errors.CodeInternal, "mcp server requires account and credential sources", nil)
	}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "plur-creds",
		Version: version,
	}, nil)

	handler := NewToolHandler(accounts, creds)
	handler.RegisterTools(server)

	return server, nil
}
