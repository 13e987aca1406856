// Package accounts 管理每个平台已注册的账户名与当前激活账户。
//
// 状态保存在独立的 TOML 文件中（不含任何凭据，使用普通文件权限）：
//
//	[active]
//	nostr = "work"
//
//	[accounts.nostr]
//	names = ["default", "work"]
package accounts

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/natefinch/atomic"
	"github.com/pelletier/go-toml/v2"

	"github.com/zx06/plurcast/internal/errors"
	"github.com/zx06/plurcast/internal/log"
	"github.com/zx06/plurcast/internal/platform"
)

// DefaultFileName 是账户状态文件的默认文件名。
const DefaultFileName = "accounts.toml"

// State 是账户状态文件的结构。
type State struct {
	Active   map[string]string           `toml:"active"`
	Accounts map[string]PlatformAccounts `toml:"accounts"`
}

// PlatformAccounts 是某平台已注册的账户名。
type PlatformAccounts struct {
	Names []string `toml:"names"`
}

func emptyState() State {
	return State{
		Active:   map[string]string{},
		Accounts: map[string]PlatformAccounts{},
	}
}

// Manager 持有账户状态；读多写少，由一把读写锁保护。
type Manager struct {
	mu     sync.RWMutex
	path   string
	state  State
	logger *slog.Logger
}

// New 从 path 加载账户状态。
// 文件不存在视为空状态；文件损坏只记录警告，按空状态继续（所有平台回落到 default）。
func New(path string, logger *slog.Logger) *Manager {
	m := &Manager{path: path, state: emptyState(), logger: log.OrDefault(logger)}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("failed to read account state, starting fresh", "path", path, "error", err)
		}
		return m
	}
	var st State
	if err := toml.Unmarshal(data, &st); err != nil {
		m.logger.Warn("corrupt account state file, starting fresh", "path", path, "error", err)
		return m
	}
	if st.Active == nil {
		st.Active = map[string]string{}
	}
	if st.Accounts == nil {
		st.Accounts = map[string]PlatformAccounts{}
	}
	m.state = m.sanitize(st)
	return m
}

// sanitize 丢弃手工编辑留下的非法条目：非法账户名，以及指向未注册账户的激活项。
// 被丢弃的条目只记录警告，下一次保存时从文件中消失。
func (m *Manager) sanitize(st State) State {
	out := emptyState()
	for p, pa := range st.Accounts {
		var names []string
		for _, n := range pa.Names {
			if ValidateAccountName(n) != nil {
				m.logger.Warn("ignoring invalid account name in state file", "path", m.path, "platform", p, "account", n)
				continue
			}
			if !slices.Contains(names, n) {
				names = append(names, n)
			}
		}
		if len(names) > 0 {
			sort.Strings(names)
			out.Accounts[p] = PlatformAccounts{Names: names}
		}
	}
	for p, a := range st.Active {
		if a == "" {
			continue
		}
		if ValidateAccountName(a) != nil || (a != DefaultAccount && !slices.Contains(out.Accounts[p].Names, a)) {
			m.logger.Warn("ignoring invalid active account in state file, using default",
				"path", m.path, "platform", p, "account", a)
			continue
		}
		out.Active[p] = a
	}
	return out
}

// Path 返回状态文件路径。
func (m *Manager) Path() string {
	return m.path
}

// GetActiveAccount 返回平台的激活账户，未设置时为 default。
func (m *Manager) GetActiveAccount(platformName string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.state.Active[platformName]; ok && a != "" {
		return a
	}
	return DefaultAccount
}

// SetActiveAccount 切换激活账户。default 总是允许，其余账户必须已注册。
func (m *Manager) SetActiveAccount(platformName, name string) *errors.XError {
	if xe := ValidateAccountName(name); xe != nil {
		return xe
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if name != DefaultAccount && !slices.Contains(m.state.Accounts[platformName].Names, name) {
		return errors.New(errors.CodeAccountNotRegistered, "account is not registered",
			map[string]any{"platform": platformName, "account": name})
	}
	prev, had := m.state.Active[platformName]
	m.state.Active[platformName] = name
	if xe := m.save(); xe != nil {
		if had {
			m.state.Active[platformName] = prev
		} else {
			delete(m.state.Active, platformName)
		}
		return xe
	}
	return nil
}

// RegisterAccount 注册账户名；重复注册不报错。
func (m *Manager) RegisterAccount(platformName, name string) *errors.XError {
	if xe := ValidateAccountName(name); xe != nil {
		return xe
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pa := m.state.Accounts[platformName]
	if slices.Contains(pa.Names, name) {
		return nil
	}
	prev := pa
	pa.Names = append(slices.Clone(pa.Names), name)
	sort.Strings(pa.Names)
	m.state.Accounts[platformName] = pa
	if xe := m.save(); xe != nil {
		m.restoreAccounts(platformName, prev)
		return xe
	}
	return nil
}

// UnregisterAccount 移除账户名；若它是激活账户，激活账户回落到 default。
func (m *Manager) UnregisterAccount(platformName, name string) *errors.XError {
	if xe := ValidateAccountName(name); xe != nil {
		return xe
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pa := m.state.Accounts[platformName]
	idx := slices.Index(pa.Names, name)
	if idx < 0 {
		return errors.New(errors.CodeAccountNotRegistered, "account is not registered",
			map[string]any{"platform": platformName, "account": name})
	}
	prev := pa
	prevActive, hadActive := m.state.Active[platformName]

	pa.Names = slices.Delete(slices.Clone(pa.Names), idx, idx+1)
	if len(pa.Names) == 0 {
		delete(m.state.Accounts, platformName)
	} else {
		m.state.Accounts[platformName] = pa
	}
	if hadActive && prevActive == name {
		delete(m.state.Active, platformName)
	}
	if xe := m.save(); xe != nil {
		m.restoreAccounts(platformName, prev)
		if hadActive {
			m.state.Active[platformName] = prevActive
		}
		return xe
	}
	return nil
}

func (m *Manager) restoreAccounts(platformName string, prev PlatformAccounts) {
	if len(prev.Names) == 0 {
		delete(m.state.Accounts, platformName)
		return
	}
	m.state.Accounts[platformName] = prev
}

// ListAccounts 返回平台已注册的账户名（排序）。
func (m *Manager) ListAccounts(platformName string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := slices.Clone(m.state.Accounts[platformName].Names)
	sort.Strings(names)
	return names
}

// AccountExists 报告账户是否已注册；default 总是存在。
func (m *Manager) AccountExists(platformName, name string) bool {
	if name == DefaultAccount {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.state.Accounts[platformName].Names, name)
}

// Platforms 返回有注册账户或设置了激活账户的平台（排序）。
func (m *Manager) Platforms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	for p := range m.state.Accounts {
		seen[p] = true
	}
	for p := range m.state.Active {
		seen[p] = true
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// KnownAccounts 按 service 返回已知账户（含 default），供无法枚举的 keyring 后端探测。
func (m *Manager) KnownAccounts(service string) []string {
	names := m.ListAccounts(platform.NameForService(service))
	if !slices.Contains(names, DefaultAccount) {
		names = append([]string{DefaultAccount}, names...)
	}
	return names
}

// save 需在持有写锁时调用。
func (m *Manager) save() *errors.XError {
	data, err := toml.Marshal(m.state)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "failed to encode account state", nil, err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return errors.Wrap(errors.CodeIO, "failed to create account state directory", map[string]any{"path": m.path}, err)
	}
	if err := atomic.WriteFile(m.path, bytes.NewReader(data)); err != nil {
		return errors.Wrap(errors.CodeIO, "failed to write account state", map[string]any{"path": m.path}, err)
	}
	if err := os.Chmod(m.path, 0o644); err != nil {
		return errors.Wrap(errors.CodeIO, "failed to set account state permissions", map[string]any{"path": m.path}, err)
	}
	return nil
}
