package secret

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/zx06/plurcast/internal/errors"
)

// DefaultPasswordEnv 是默认的主密码环境变量。
const DefaultPasswordEnv = "PLURCAST_MASTER_PASSWORD"

// Terminal 抽象交互式终端，便于测试。
type Terminal interface {
	IsTerminal() bool
	ReadPassword() ([]byte, error)
}

// StdinTerminal 返回基于 os.Stdin 的 Terminal。
func StdinTerminal() Terminal {
	return stdinTerminal{}
}

type stdinTerminal struct{}

func (stdinTerminal) IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func (stdinTerminal) ReadPassword() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

// SourceOptions 控制主密码来源。
type SourceOptions struct {
	EnvVar    string                      // 为空则使用 DefaultPasswordEnv
	LookupEnv func(string) (string, bool) // nil 则用 os.LookupEnv（注入便于测试）
	Terminal  Terminal                    // nil 则用 StdinTerminal
	Prompt    io.Writer                   // 提示语输出位置，nil 则用 os.Stderr
	Confirm   bool                        // 首次创建时要求重复输入
}

// ReadMasterPassword 按以下顺序获取主密码：
//  1. 环境变量（非空）
//  2. 若 stdin 为终端 → 隐藏输入
//  3. 否则返回 MasterPasswordNotSet
//
// 长度校验不在这里做，由 EncryptedStore.SetMasterPassword 统一负责。
func ReadMasterPassword(opts SourceOptions) (*Password, *errors.XError) {
	envVar := opts.EnvVar
	if envVar == "" {
		envVar = DefaultPasswordEnv
	}
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(envVar); ok && v != "" {
		return NewPassword(v), nil
	}

	tty := opts.Terminal
	if tty == nil {
		tty = StdinTerminal()
	}
	if !tty.IsTerminal() {
		return nil, errors.New(errors.CodeMasterPasswordNotSet,
			"master password not available: no terminal attached and environment variable is empty",
			map[string]any{"env": envVar})
	}
	prompt := opts.Prompt
	if prompt == nil {
		prompt = os.Stderr
	}

	_, _ = fmt.Fprint(prompt, "Master password: ")
	first, err := tty.ReadPassword()
	_, _ = fmt.Fprintln(prompt)
	if err != nil {
		return nil, errors.Wrap(errors.CodeMasterPasswordNotSet, "failed to read master password", nil, err)
	}
	if len(first) == 0 {
		return nil, errors.New(errors.CodeMasterPasswordNotSet, "empty master password", nil)
	}
	if !opts.Confirm {
		return PasswordFromBytes(first), nil
	}

	_, _ = fmt.Fprint(prompt, "Confirm master password: ")
	second, err := tty.ReadPassword()
	_, _ = fmt.Fprintln(prompt)
	defer Wipe(second)
	if err != nil {
		Wipe(first)
		return nil, errors.Wrap(errors.CodeMasterPasswordNotSet, "failed to read master password", nil, err)
	}
	if string(first) != string(second) {
		Wipe(first)
		return nil, errors.New(errors.CodeCfgInvalid, "master passwords do not match", nil)
	}
	return PasswordFromBytes(first), nil
}
