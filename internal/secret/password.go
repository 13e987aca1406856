package secret

import (
	"log/slog"
	"sync"
)

// MinPasswordLength 是主密码的最小长度（字符数）。
const MinPasswordLength = 8

// Password 持有内存中的主密码。
//
// Clear 会用 0 覆盖底层字节。这只是缓解措施而非保证：GC 可能已复制过内存，
// 由密码派生出的 string 也无法擦除。
type Password struct {
	mu sync.RWMutex
	b  []byte
}

// NewPassword 复制 s 的内容。
func NewPassword(s string) *Password {
	return &Password{b: []byte(s)}
}

// PasswordFromBytes 接管 b 的所有权，调用方之后不应再使用 b。
func PasswordFromBytes(b []byte) *Password {
	return &Password{b: b}
}

// Len 返回密码的字符数。
func (p *Password) Len() int {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len([]rune(string(p.b)))
}

// IsSet 报告密码是否非空且未被清除。
func (p *Password) IsSet() bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.b) > 0
}

// Bytes 返回一份副本，调用方用完后应调用 Wipe。
func (p *Password) Bytes() []byte {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]byte, len(p.b))
	copy(out, p.b)
	return out
}

// Clear 覆盖并丢弃底层字节；可重复调用。
func (p *Password) Clear() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	Wipe(p.b)
	p.b = nil
}

// String 永远不输出密码内容，避免误打日志。
func (p *Password) String() string {
	return "[REDACTED]"
}

// Wipe 用 0 覆盖 b。
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// LogValue 让 slog 同样只输出占位符。
func (p *Password) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}
