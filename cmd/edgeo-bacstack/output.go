// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/edgeo/drivers/bacstack/bacnet"
	"github.com/edgeo/drivers/bacstack/bacnet/tag"
)

// OutputFormat represents output format types
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatCSV   OutputFormat = "csv"
	FormatYAML  OutputFormat = "yaml"
)

// Formatter writes command results in the selected format
type Formatter struct {
	format OutputFormat
	writer io.Writer
}

// NewFormatter returns a formatter for the --output flag writing to stdout
func NewFormatter() *Formatter {
	return &Formatter{
		format: OutputFormat(strings.ToLower(viper.GetString("output"))),
		writer: os.Stdout,
	}
}

// Structured reports whether records should be written with Encode
func (f *Formatter) Structured() bool {
	return f.format == FormatJSON || f.format == FormatYAML
}

// Encode writes v as JSON or YAML
func (f *Formatter) Encode(v interface{}) error {
	if f.format == FormatYAML {
		enc := yaml.NewEncoder(f.writer)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table writes rows as an aligned table, or CSV
func (f *Formatter) Table(headers []string, rows [][]string) error {
	if f.format == FormatCSV {
		w := csv.NewWriter(f.writer)
		w.Write(headers)
		w.WriteAll(rows)
		return w.Error()
	}

	// Calculate column widths
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range headers {
		fmt.Fprintf(f.writer, "%-*s ", widths[i], h)
	}
	fmt.Fprintln(f.writer)
	for i := range headers {
		fmt.Fprint(f.writer, strings.Repeat("-", widths[i])+" ")
	}
	fmt.Fprintln(f.writer)
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(f.writer, "%-*s ", widths[i], cell)
			}
		}
		fmt.Fprintln(f.writer)
	}
	return nil
}

// KeyValue writes ordered key-value pairs
func (f *Formatter) KeyValue(pairs [][2]string) error {
	if f.format == FormatCSV {
		return f.Table([]string{"key", "value"}, toRows(pairs))
	}
	if f.Structured() {
		m := make(map[string]string, len(pairs))
		for _, p := range pairs {
			m[p[0]] = p[1]
		}
		return f.Encode(m)
	}

	width := 0
	for _, p := range pairs {
		if len(p[0]) > width {
			width = len(p[0])
		}
	}
	for _, p := range pairs {
		fmt.Fprintf(f.writer, "%-*s: %s\n", width, p[0], p[1])
	}
	return nil
}

func toRows(pairs [][2]string) [][]string {
	rows := make([][]string, len(pairs))
	for i, p := range pairs {
		rows[i] = []string{p[0], p[1]}
	}
	return rows
}

// formatValue renders a decoded property value
func formatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float32:
		return fmt.Sprintf("%.4f", v)
	case float64:
		return fmt.Sprintf("%.6f", v)
	case string:
		return v
	case []byte:
		return fmt.Sprintf("%x", v)
	case []interface{}:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = formatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []bacnet.ObjectIdentifier:
		parts := make([]string, len(v))
		for i, oid := range v {
			parts[i] = oid.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case tag.Value:
		return v.Format()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// jsonValue maps a decoded value onto something encoding/json and yaml
// render naturally
func jsonValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil, bool, string, float32, float64, uint32, int32:
		return v
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, e := range v {
			out[i] = jsonValue(e)
		}
		return out
	default:
		return formatValue(v)
	}
}
