package main

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/zx06/plurcast/internal/config"
	"github.com/zx06/plurcast/internal/errors"
	mcp_pkg "github.com/zx06/plurcast/internal/mcp"
	"github.com/zx06/plurcast/internal/secret"
)

// Environment overrides for the mcp server command.
const (
	envMCPTransport     = "PLURCAST_MCP_TRANSPORT"
	envMCPHTTPAddr      = "PLURCAST_MCP_HTTP_ADDR"
	envMCPHTTPAuthToken = "PLURCAST_MCP_HTTP_AUTH_TOKEN"
)

// NewMCPCommand creates the MCP command group
func NewMCPCommand() *cobra.Command {
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP (Model Context Protocol) server commands",
	}

	mcpCmd.AddCommand(newMCPServerCommand())

	return mcpCmd
}

// newMCPServerCommand creates the MCP server command
func newMCPServerCommand() *cobra.Command {
	opts := &mcpServerOptions{}
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start a read-only MCP server reporting account and credential status",
		Long: "Start a read-only MCP server. Tools report accounts, credential availability and " +
			"storage audits; credential values are never returned. The master password, when " +
			"needed, is only read from the environment.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.transportSet = cmd.Flags().Changed("transport")
			opts.httpAddrSet = cmd.Flags().Changed("http-addr")
			opts.httpAuthTokenSet = cmd.Flags().Changed("http-auth-token")
			return runMCPServer(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.transport, "transport", mcp_pkg.TransportStdio, "MCP transport: stdio|streamable_http")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", mcp_pkg.DefaultHTTPAddr, "Streamable HTTP listen address")
	cmd.Flags().StringVar(&opts.httpAuthToken, "http-auth-token", "", "Streamable HTTP auth token (env: "+envMCPHTTPAuthToken+")")
	return cmd
}

// runMCPServer runs the MCP server
func runMCPServer(ctx context.Context, opts *mcpServerOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	resolved, xe := resolveMCPServerOptions(opts, GlobalConfig.Resolved.MCP)
	if xe != nil {
		return xe
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	if err := s.unlockFromEnv(); err != nil {
		return err
	}

	server, err := mcp_pkg.CreateServer(version, s.accounts, s.creds)
	if err != nil {
		return err
	}
	GlobalConfig.Logger.Debug("starting mcp server", "transport", resolved.transport, "backends", s.creds.Backends())

	switch resolved.transport {
	case mcp_pkg.TransportStreamableHTTP:
		handler, err := mcp_pkg.NewStreamableHTTPHandler(server, resolved.httpAuthToken)
		if err != nil {
			return err
		}
		return mcp_pkg.ServeHTTP(ctx, resolved.httpAddr, handler)
	default:
		if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			return errors.Wrap(errors.CodeIO, "mcp stdio session failed", nil, err)
		}
		return nil
	}
}

// unlockFromEnv sets the master password from the environment only. The server
// owns stdin, so it never prompts; without a password encrypted credentials
// report PLURCAST_MASTER_PASSWORD_NOT_SET per tool call.
func (s *session) unlockFromEnv() error {
	if !s.creds.NeedsMasterPassword() {
		return nil
	}
	pw, xe := secret.ReadMasterPassword(secret.SourceOptions{
		EnvVar:    GlobalConfig.Resolved.MasterPasswordEnv,
		LookupEnv: procEnv.LookupEnv,
		Terminal:  noTerminal{},
	})
	if xe != nil {
		GlobalConfig.Logger.Warn("mcp server running without master password", "env", GlobalConfig.Resolved.MasterPasswordEnv)
		return nil
	}
	return s.creds.SetMasterPassword(pw)
}

type noTerminal struct{}

func (noTerminal) IsTerminal() bool { return false }

func (noTerminal) ReadPassword() ([]byte, error) {
	return nil, errors.New(errors.CodeMasterPasswordNotSet, "no terminal", nil)
}

type mcpServerOptions struct {
	transport        string
	transportSet     bool
	httpAddr         string
	httpAddrSet      bool
	httpAuthToken    string
	httpAuthTokenSet bool
}

type mcpServerResolved struct {
	transport     string
	httpAddr      string
	httpAuthToken string
}

// resolveMCPServerOptions merges CLI > ENV > config for the server settings.
func resolveMCPServerOptions(opts *mcpServerOptions, cfg config.MCP) (mcpServerResolved, *errors.XError) {
	if opts == nil {
		opts = &mcpServerOptions{}
	}

	transport := firstNonEmpty(
		valueIfSet(opts.transportSet, opts.transport),
		procEnv.getenv(envMCPTransport),
		cfg.Transport,
		mcp_pkg.TransportStdio,
	)
	if !mcp_pkg.ValidTransport(transport) {
		return mcpServerResolved{}, errors.New(errors.CodeCfgInvalid, "invalid mcp transport", map[string]any{"transport": transport})
	}

	httpAddr := firstNonEmpty(
		valueIfSet(opts.httpAddrSet, opts.httpAddr),
		procEnv.getenv(envMCPHTTPAddr),
		cfg.HTTPAddr,
		mcp_pkg.DefaultHTTPAddr,
	)

	authToken := firstNonEmpty(
		valueIfSet(opts.httpAuthTokenSet, opts.httpAuthToken),
		procEnv.getenv(envMCPHTTPAuthToken),
	)
	if transport == mcp_pkg.TransportStreamableHTTP && authToken == "" {
		return mcpServerResolved{}, errors.New(errors.CodeCfgInvalid, "streamable http transport requires an auth token",
			map[string]any{"env": envMCPHTTPAuthToken})
	}

	return mcpServerResolved{
		transport:     transport,
		httpAddr:      httpAddr,
		httpAuthToken: authToken,
	}, nil
}

func valueIfSet(set bool, value string) string {
	if !set {
		return ""
	}
	return value
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
