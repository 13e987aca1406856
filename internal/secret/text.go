package secret

// TrimLineEnding 去掉末尾的一个 "\n" 或 "\r\n"（echo、heredoc 或 Windows 编辑器留下的换行）。
func TrimLineEnding(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
		if n := len(b); n > 0 && b[n-1] == '\r' {
			b = b[:n-1]
		}
	}
	return b
}
