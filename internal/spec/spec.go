// Package spec 描述 plur-creds 的机器可读接口：命令、参数、环境变量与错误码。
package spec

import "github.com/zx06/plurcast/internal/errors"

type FlagSpec struct {
	Name        string `json:"name" yaml:"name"`
	Shorthand   string `json:"shorthand,omitempty" yaml:"shorthand,omitempty"`
	Env         string `json:"env,omitempty" yaml:"env,omitempty"`
	Default     string `json:"default,omitempty" yaml:"default,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type CommandSpec struct {
	Name        string     `json:"name" yaml:"name"`
	Args        string     `json:"args,omitempty" yaml:"args,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Flags       []FlagSpec `json:"flags,omitempty" yaml:"flags,omitempty"`
}

// PlatformSpec 是平台到凭据命名空间的映射。
type PlatformSpec struct {
	Name    string `json:"name" yaml:"name"`
	Service string `json:"service" yaml:"service"`
	Key     string `json:"key" yaml:"key"`
}

// ErrorCodeSpec 是错误码与退出码的对应关系。
type ErrorCodeSpec struct {
	Code     errors.Code     `json:"code" yaml:"code"`
	ExitCode errors.ExitCode `json:"exit_code" yaml:"exit_code"`
}

type Spec struct {
	SchemaVersion   int             `json:"schema_version" yaml:"schema_version"`
	GlobalFlags     []FlagSpec      `json:"global_flags" yaml:"global_flags"`
	Commands        []CommandSpec   `json:"commands" yaml:"commands"`
	Platforms       []PlatformSpec  `json:"platforms" yaml:"platforms"`
	StorageBackends []string        `json:"storage_backends" yaml:"storage_backends"`
	ErrorCodes      []ErrorCodeSpec `json:"error_codes" yaml:"error_codes"`
}
