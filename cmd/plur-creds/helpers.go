package main

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/zx06/plurcast/internal/accounts"
	"github.com/zx06/plurcast/internal/credentials"
	"github.com/zx06/plurcast/internal/errors"
	"github.com/zx06/plurcast/internal/output"
	"github.com/zx06/plurcast/internal/platform"
	"github.com/zx06/plurcast/internal/secret"
)

// parseOutputFormat parses and validates the output format string
func parseOutputFormat(s string) (output.Format, error) {
	f, ok := output.ParseFormat(s)
	if !ok {
		return "", errors.New(errors.CodeCfgInvalid, "invalid output format",
			map[string]any{"format": s, "supported": output.Formats()})
	}
	return resolveAuto(f), nil
}

// resolveFormatForError resolves the format for error output
func resolveFormatForError(s string) output.Format {
	f, ok := output.ParseFormat(s)
	if !ok {
		f = output.FormatAuto
	}
	return resolveAuto(f)
}

// resolveAuto resolves "auto" format to appropriate format based on TTY
func resolveAuto(f output.Format) output.Format {
	if f != output.FormatAuto {
		return f
	}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return output.FormatTable
	}
	return output.FormatJSON
}

// normalizeErr normalizes any error to XError
func normalizeErr(err error) *errors.XError {
	if xe, ok := errors.As(err); ok {
		return xe
	}
	return errors.Wrap(errors.CodeInternal, err.Error(), nil, err)
}

// reportedError marks a failure whose details were already written as a report;
// run only needs to turn it into an exit code.
type reportedError struct {
	xe *errors.XError
}

func (e *reportedError) Error() string { return e.xe.Error() }

func asReported(err error) (*reportedError, bool) {
	var re *reportedError
	if stderrors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// sessionRegistry tracks credential managers so their master passwords can be
// wiped on exit, panic or signal.
type sessionRegistry struct {
	mu       sync.Mutex
	managers []*credentials.Manager
}

var sessions = &sessionRegistry{}

func (r *sessionRegistry) track(m *credentials.Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers = append(r.managers, m)
}

func (r *sessionRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.managers {
		_ = m.Close()
	}
	r.managers = nil
}

// session bundles the account state and the credential manager for one command.
type session struct {
	accounts *accounts.Manager
	creds    *credentials.Manager
}

func openSession() (*session, error) {
	cfg := GlobalConfig.Resolved
	logger := GlobalConfig.Logger
	accts := accounts.New(cfg.AccountsFile, logger)
	creds, err := credentials.NewManager(credentials.ManagerConfig{
		Storage:  cfg.Storage,
		Dir:      cfg.CredentialDir,
		PlainDir: cfg.PlainDir,
		Keyring:  procEnv.Keyring,
		Accounts: accts,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	sessions.track(creds)
	return &session{accounts: accts, creds: creds}, nil
}

// unlock obtains the master password when the encrypted backend is configured.
// With required=false a missing password is tolerated: reads of encrypted
// credentials then fail individually with PLURCAST_MASTER_PASSWORD_NOT_SET.
func (s *session) unlock(required bool) error {
	if !s.creds.NeedsMasterPassword() {
		return nil
	}
	confirm := false
	if required {
		empty, err := s.creds.Encrypted().IsEmpty()
		if err != nil {
			return err
		}
		confirm = empty
	}
	pw, xe := secret.ReadMasterPassword(secret.SourceOptions{
		EnvVar:    GlobalConfig.Resolved.MasterPasswordEnv,
		LookupEnv: procEnv.LookupEnv,
		Terminal:  procEnv.Terminal,
		Prompt:    procEnv.Stderr,
		Confirm:   confirm,
	})
	if xe != nil {
		if !required && xe.Code == errors.CodeMasterPasswordNotSet {
			GlobalConfig.Logger.Debug("continuing without master password", "reason", xe.Message)
			return nil
		}
		return xe
	}
	return s.creds.SetMasterPassword(pw)
}

// primaryIsEncrypted reports whether new credentials are written to the encrypted backend.
func (s *session) primaryIsEncrypted() bool {
	return s.creds.PrimaryBackend() == credentials.EncryptedBackendName
}

func lookupPlatform(name string) (platform.Platform, error) {
	p, ok := platform.Lookup(strings.ToLower(name))
	if !ok {
		return platform.Platform{}, errors.New(errors.CodeCfgInvalid, "unknown platform",
			map[string]any{"platform": name, "supported": platform.Names()})
	}
	return p, nil
}

// selectedPlatforms returns the named platform, or every platform when name is empty.
func selectedPlatforms(name string) ([]platform.Platform, error) {
	if name == "" {
		return platform.All(), nil
	}
	p, err := lookupPlatform(name)
	if err != nil {
		return nil, err
	}
	return []platform.Platform{p}, nil
}

// resolveAccount defaults to the platform's active account.
func resolveAccount(s *session, p platform.Platform, account string) (string, error) {
	if account == "" {
		return s.accounts.GetActiveAccount(p.Name), nil
	}
	if xe := accounts.ValidateAccountName(account); xe != nil {
		return "", xe
	}
	return account, nil
}

// stdinReader buffers procEnv.Stdin for the whole run so consecutive prompts
// never lose bytes read ahead by an earlier one. runWith resets it.
var stdinReader *bufio.Reader

func promptReader() *bufio.Reader {
	if stdinReader == nil {
		stdinReader = bufio.NewReader(procEnv.Stdin)
	}
	return stdinReader
}

// confirm asks a yes/no question on the terminal. Without a terminal it returns
// an error so destructive commands never proceed silently.
func confirm(question, override string) (bool, error) {
	if !procEnv.Terminal.IsTerminal() {
		return false, errors.New(errors.CodeCfgInvalid,
			"confirmation required but stdin is not a terminal; pass "+override, nil)
	}
	_, _ = fmt.Fprintf(procEnv.Stderr, "%s [y/N]: ", question)
	line, err := promptReader().ReadString('\n')
	if err != nil && err != io.EOF {
		return false, errors.Wrap(errors.CodeIO, "failed to read confirmation", nil, err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// readSecretValue reads a credential from stdin (piped or --stdin) or a hidden prompt.
// The caller wipes the returned bytes.
func readSecretValue(label string, fromStdin bool) ([]byte, error) {
	var b []byte
	if fromStdin || !procEnv.Terminal.IsTerminal() {
		raw, err := io.ReadAll(promptReader())
		if err != nil {
			return nil, errors.Wrap(errors.CodeIO, "failed to read credential from stdin", nil, err)
		}
		b = secret.TrimLineEnding(raw)
	} else {
		_, _ = fmt.Fprintf(procEnv.Stderr, "Enter %s: ", label)
		raw, err := procEnv.Terminal.ReadPassword()
		_, _ = fmt.Fprintln(procEnv.Stderr)
		if err != nil {
			return nil, errors.Wrap(errors.CodeIO, "failed to read credential", nil, err)
		}
		b = raw
	}
	if len(b) == 0 {
		return nil, errors.New(errors.CodeCfgInvalid, "credential value must not be empty", nil)
	}
	return b, nil
}
