package log

import (
	"io"
	"log/slog"
)

// New 返回写入到 w 的 slog.Logger（默认 level=INFO）。
// 注意：stdout=数据，日志应始终写 stderr（由调用方传入）。
func New(w io.Writer) *slog.Logger {
	return NewWithLevel(w, slog.LevelInfo)
}

// NewWithLevel 同 New，可指定最低日志级别（--verbose 时为 DEBUG）。
func NewWithLevel(w io.Writer, level slog.Level) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

// OrDefault 在 l 为 nil 时返回 slog.Default()。
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
