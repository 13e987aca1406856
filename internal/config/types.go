package config

import "github.com/zx06/plurcast/internal/credentials"

// File 表示 plurcast.yaml 的配置结构。
// 约束：配置优先级为 CLI > ENV > Config > 默认值。
type File struct {
	Format       string      `yaml:"format"`
	Credentials  Credentials `yaml:"credentials"`
	AccountsFile string      `yaml:"accounts_file"`
	MCP          MCP         `yaml:"mcp"`
}

// Credentials 是凭据存储相关配置。
type Credentials struct {
	Storage           string `yaml:"storage"`             // keyring | encrypted | plain
	Path              string `yaml:"path"`                // 加密文件目录
	PlainPath         string `yaml:"plain_path"`          // 遗留明文文件目录
	MasterPasswordEnv string `yaml:"master_password_env"` // 主密码环境变量名
}

// MCP 是 mcp 子命令的默认值；鉴权 token 不进配置文件，只从 CLI 或 ENV 读取。
type MCP struct {
	Transport string `yaml:"transport"` // stdio | streamable_http
	HTTPAddr  string `yaml:"http_addr"`
}

// Resolved 是合并后的最终配置，路径均已展开为绝对路径。
type Resolved struct {
	ConfigPath        string
	Format            string
	Storage           credentials.StorageKind
	CredentialDir     string
	PlainDir          string
	AccountsFile      string
	MasterPasswordEnv string
	MCP               MCP
}

type Options struct {
	// ConfigPath: 若非空，则只读取该文件（不存在报错）。
	ConfigPath string

	// CLI
	CLIFormat     string
	CLIFormatSet  bool
	CLIStorage    string
	CLIStorageSet bool
	CLIPath       string
	CLIPathSet    bool

	// ENV（由调用方注入，便于测试）
	EnvFormat  string
	EnvStorage string
	EnvPath    string

	// HomeDir 用于默认路径与 ~ 展开（为空则自动探测）。
	HomeDir string

	// WorkDir 用于默认路径与相对路径（为空则使用进程当前工作目录）。
	WorkDir string
}

// 环境变量名。
const (
	EnvFormat  = "PLURCAST_FORMAT"
	EnvStorage = "PLURCAST_CREDENTIAL_STORAGE"
	EnvPath    = "PLURCAST_CREDENTIAL_PATH"
)

// FileName 是配置文件名。
const FileName = "plurcast.yaml"
