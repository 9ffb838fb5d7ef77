package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// render writes v in the selected format. For table output, headers and rows
// describe v; they are ignored otherwise.
func render(w io.Writer, format string, v any, headers []string, rows [][]string) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(toPlain(v)); err != nil {
			return err
		}
		return enc.Close()
	default:
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers(headers...).
			Rows(rows...)
		_, err := fmt.Fprintln(w, t.String())
		return err
	}
}

// toPlain round-trips v through JSON so YAML output uses the same field
// names as the JSON output and the HTTP API.
func toPlain(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
