package output

import "strings"

// Format 是输出格式。
type Format string

const (
	FormatAuto  Format = "auto"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
)

var formats = []Format{FormatAuto, FormatJSON, FormatYAML, FormatTable, FormatCSV}

// Formats 返回所有支持的格式名，用于错误详情与帮助文本。
func Formats() []string {
	out := make([]string, len(formats))
	for i, f := range formats {
		out[i] = string(f)
	}
	return out
}

// ParseFormat 不区分大小写地解析格式名。
func ParseFormat(s string) (Format, bool) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	return f, IsValid(f)
}

func IsValid(f Format) bool {
	switch f {
	case FormatAuto, FormatJSON, FormatYAML, FormatTable, FormatCSV:
		return true
	default:
		return false
	}
}
