package mcp

import (
	"context"
	"crypto/subtle"
	stderrors "errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zx06/plurcast/internal/errors"
)

const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable_http"

	// DefaultHTTPAddr only listens on loopback.
	DefaultHTTPAddr = "127.0.0.1:8787"
)

const (
	authHeader    = "Authorization"
	bearerPrefix  = "Bearer "
	unauthorized  = "unauthorized"
	headerMissing = "authorization header is required"
)

// ValidTransport reports whether t names a supported transport.
func ValidTransport(t string) bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// NewStreamableHTTPHandler creates a streamable HTTP handler with required auth.
func NewStreamableHTTPHandler(server *mcp.Server, authToken string) (http.Handler, error) {
	if server == nil {
		return nil, errors.New(errors.CodeInternal, "mcp server is nil", nil)
	}
	if authToken == "" {
		return nil, errors.New(errors.CodeCfgInvalid, "streamable http transport requires an auth token", nil)
	}
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{JSONResponse: true})
	return requireAuth(handler, authToken), nil
}

func requireAuth(next http.Handler, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		auth := strings.TrimSpace(req.Header.Get(authHeader))
		if auth == "" {
			http.Error(w, headerMissing, http.StatusUnauthorized)
			return
		}
		received, ok := strings.CutPrefix(auth, bearerPrefix)
		if !ok || subtle.ConstantTimeCompare([]byte(received), []byte(token)) != 1 {
			http.Error(w, unauthorized, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// ServeHTTP listens on addr until ctx is cancelled, then shuts down gracefully.
func ServeHTTP(ctx context.Context, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(errors.CodeIO, "failed to listen", map[string]any{"addr": addr}, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	select {
	case err := <-done:
		if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(errors.CodeIO, "http server failed", nil, err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(errors.CodeIO, "http server shutdown failed", nil, err)
		}
		<-done
		return nil
	}
}
