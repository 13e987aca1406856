package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/zx06/plurcast/internal/errors"
)

type Writer struct {
	Out io.Writer
	Err io.Writer

	// Color 只影响 table 格式中的 Status 单元格。
	Color bool
}

func New(out, err io.Writer) Writer {
	return Writer{Out: out, Err: err}
}

// WithColor 返回开启/关闭着色的副本。
func (w Writer) WithColor(on bool) Writer {
	w.Color = on
	return w
}

func (w Writer) WriteOK(format Format, data any) error {
	return w.write(format, Envelope{OK: true, SchemaVersion: SchemaVersion, Data: data})
}

func (w Writer) WriteError(format Format, xe *errors.XError) error {
	errObj := &ErrorObject{Code: xe.Code, Message: xe.Message, Details: xe.Details}
	return w.write(format, Envelope{OK: false, SchemaVersion: SchemaVersion, Error: errObj})
}

func (w Writer) write(format Format, env Envelope) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w.Out)
		enc.SetEscapeHTML(false)
		return enc.Encode(env)
	case FormatYAML:
		b, err := yaml.Marshal(env)
		if err != nil {
			return err
		}
		if _, err := w.Out.Write(b); err != nil {
			return err
		}
		if len(b) == 0 || b[len(b)-1] != '\n' {
			_, _ = w.Out.Write([]byte("\n"))
		}
		return nil
	case FormatTable:
		return w.writeTable(env)
	case FormatCSV:
		return writeCSV(w.Out, env)
	default:
		return errors.New(errors.CodeCfgInvalid, "invalid output format", map[string]any{"format": string(format)})
	}
}

var statusColors = map[Status]color.Attribute{
	"ok":          color.FgGreen,
	"yes":         color.FgGreen,
	"migrated":    color.FgGreen,
	"available":   color.FgGreen,
	"info":        color.FgCyan,
	"skipped":     color.FgCyan,
	"warn":        color.FgYellow,
	"medium":      color.FgYellow,
	"missing":     color.FgYellow,
	"fail":        color.FgRed,
	"failed":      color.FgRed,
	"high":        color.FgRed,
	"no":          color.FgRed,
	"unavailable": color.FgRed,
}

func (w Writer) paint(s Status) string {
	attr, ok := statusColors[s]
	if !ok {
		attr = color.Reset
	}
	c := color.New(attr)
	if w.Color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprint(string(s))
}

func (w Writer) cell(v any) string {
	if s, ok := v.(Status); ok {
		return w.paint(s)
	}
	return formatValue(v)
}

// writeTable 只输出数据本身，不输出信封字段。
func (w Writer) writeTable(env Envelope) error {
	tw := tabwriter.NewWriter(w.Out, 0, 2, 2, ' ', 0)
	if !env.OK {
		if env.Error != nil {
			_, _ = fmt.Fprintf(tw, "%s\t%s\n", w.paint("failed"), env.Error.Code)
			_, _ = fmt.Fprintf(tw, "message\t%s\n", env.Error.Message)
			for _, k := range sortedKeys(env.Error.Details) {
				_, _ = fmt.Fprintf(tw, "%s\t%s\n", k, formatValue(env.Error.Details[k]))
			}
		}
		return tw.Flush()
	}

	if tf, ok := env.Data.(TableFormatter); ok {
		if cols, rows, ok := tf.ToTableData(); ok {
			_, _ = fmt.Fprintln(tw, strings.Join(cols, "\t"))
			for _, row := range rows {
				cells := make([]string, len(cols))
				for i, c := range cols {
					cells[i] = w.cell(row[c])
				}
				_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			_, err := fmt.Fprintf(w.Out, "(%d rows)\n", len(rows))
			return err
		}
	}

	for _, kv := range keyValues(env.Data) {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", kv[0], w.cell(kv[1]))
	}
	return tw.Flush()
}

func writeCSV(out io.Writer, env Envelope) error {
	cw := csv.NewWriter(out)
	defer cw.Flush()
	if !env.OK {
		_ = cw.Write([]string{"ok", "false"})
		if env.Error != nil {
			_ = cw.Write([]string{"error.code", string(env.Error.Code)})
			_ = cw.Write([]string{"error.message", env.Error.Message})
		}
		cw.Flush()
		return cw.Error()
	}
	if tf, ok := env.Data.(TableFormatter); ok {
		if cols, rows, ok := tf.ToTableData(); ok {
			_ = cw.Write(cols)
			for _, row := range rows {
				rec := make([]string, len(cols))
				for i, c := range cols {
					rec[i] = formatValue(row[c])
				}
				_ = cw.Write(rec)
			}
			cw.Flush()
			return cw.Error()
		}
	}
	for _, kv := range keyValues(env.Data) {
		_ = cw.Write([]string{kv[0].(string), formatValue(kv[1])})
	}
	cw.Flush()
	return cw.Error()
}

// keyValues 把任意数据展开为排序后的一层键值对；非 map 数据先经 JSON 归一化。
func keyValues(data any) [][2]any {
	if data == nil {
		return nil
	}
	m, ok := data.(map[string]any)
	if !ok {
		b, err := json.Marshal(data)
		if err != nil {
			return [][2]any{{"data", fmt.Sprint(data)}}
		}
		if err := json.Unmarshal(b, &m); err != nil {
			return [][2]any{{"data", string(b)}}
		}
	}
	out := make([][2]any, 0, len(m))
	for _, k := range sortedKeys(m) {
		out = append(out, [2]any{k, m[k]})
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "<null>"
	case string:
		return x
	case Status:
		return string(x)
	case fmt.Stringer:
		return x.String()
	case []string:
		return strings.Join(x, ",")
	case bool, int, int64, float64:
		return fmt.Sprint(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
