package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func init() {
	color.NoColor = true
}

func sampleTable() *Table {
	t := &Table{Headers: []string{"PROVIDER", "REQUESTS", "COST"}}
	t.Append("openai", "12", "$1.20")
	t.Append("anthropic-backup", "3", "$0.40")
	return t
}

func TestTextFormatter(t *testing.T) {
	formatter := &TextFormatter{}

	output, err := formatter.Format("test message")
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if string(output) != "test message\n" {
		t.Errorf("Format() = %q, want %q", string(output), "test message\n")
	}
}

func TestTextFormatter_Table(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := (&TextFormatter{}).FormatTo(buf, sampleTable()); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	want := "" +
		"PROVIDER          REQUESTS  COST\n" +
		"openai            12        $1.20\n" +
		"anthropic-backup  3         $0.40\n"
	if buf.String() != want {
		t.Errorf("FormatTo() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestTextFormatter_Style(t *testing.T) {
	table := sampleTable()
	var styled []string
	table.Style = func(col int, value string) *color.Color {
		if col == 0 {
			styled = append(styled, value)
			return color.New(color.FgRed)
		}
		return nil
	}

	if _, err := (&TextFormatter{}).Format(table); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if strings.Join(styled, ",") != "openai,anthropic-backup" {
		t.Errorf("styled cells = %v", styled)
	}
}

func TestJSONFormatter(t *testing.T) {
	tests := []struct {
		name   string
		data   any
		indent bool
	}{
		{name: "simple string", data: "test"},
		{name: "map with indent", data: map[string]string{"key": "value"}, indent: true},
		{name: "table", data: sampleTable(), indent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := &JSONFormatter{Indent: tt.indent}
			output, err := formatter.Format(tt.data)
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}

			var result any
			if err := json.Unmarshal(output, &result); err != nil {
				t.Errorf("Format() produced invalid JSON: %v", err)
			}
		})
	}
}

func TestTable_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(sampleTable())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var rows []map[string]string
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(rows) != 2 || rows[0]["provider"] != "openai" || rows[1]["cost"] != "$0.40" {
		t.Errorf("rows = %v", rows)
	}
}

func TestCSVFormatter(t *testing.T) {
	formatter := &CSVFormatter{}

	output, err := formatter.Format(sampleTable())
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	want := "PROVIDER,REQUESTS,COST\nopenai,12,$1.20\nanthropic-backup,3,$0.40\n"
	if string(output) != want {
		t.Errorf("Format() = %q, want %q", string(output), want)
	}

	if _, err := formatter.Format(map[string]int{"a": 1}); err == nil {
		t.Error("Format() of a non-table should fail")
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		name   string
		format OutputFormat
		want   string
	}{
		{name: "text formatter", format: FormatText, want: "*cli.TextFormatter"},
		{name: "json formatter", format: FormatJSON, want: "*cli.JSONFormatter"},
		{name: "csv formatter", format: FormatCSV, want: "*cli.CSVFormatter"},
		{name: "default to text", format: "unknown", want: "*cli.TextFormatter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fmt.Sprintf("%T", NewFormatter(tt.format))
			if got != tt.want {
				t.Errorf("NewFormatter(%q) type = %v, want %v", tt.format, got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"yaml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}
