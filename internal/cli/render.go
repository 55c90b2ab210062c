package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Format represents an output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// table is the tabular view of a value
type table struct {
	headers []string
	rows    [][]string
}

// render writes data in the requested format; tab is used for the table format
func render(w io.Writer, format string, data any, tab table) error {
	switch Format(strings.ToLower(format)) {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		return encoder.Encode(data)
	case FormatTable, "":
		return renderTable(w, tab)
	}
	return fmt.Errorf("unknown output format %q", format)
}

func renderTable(w io.Writer, tab table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(tab.headers, "\t"))
	for _, row := range tab.rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
