package output

import "github.com/zx06/plurcast/internal/errors"

const SchemaVersion = 1

// ErrorObject 是错误信封中的错误体；Details 只含标识信息，绝不含凭据值。
type ErrorObject struct {
	Code    errors.Code    `json:"code" yaml:"code"`
	Message string         `json:"message" yaml:"message"`
	Details map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
}

type Envelope struct {
	OK            bool         `json:"ok" yaml:"ok"`
	SchemaVersion int          `json:"schema_version" yaml:"schema_version"`
	Error         *ErrorObject `json:"error,omitempty" yaml:"error,omitempty"`
	Data          any          `json:"data,omitempty" yaml:"data,omitempty"`
}

// TableFormatter 让数据自行决定 table/csv 下的列与行；ok=false 时退回键值输出。
type TableFormatter interface {
	ToTableData() (columns []string, rows []map[string]any, ok bool)
}

// Status 是表格中需要着色的状态值（ok/warn/fail 等）。
type Status string
