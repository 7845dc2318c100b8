package clean

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNULStrippingReader(t *testing.T) {
	tests := []struct {
		name         string
		input        []byte
		expected     string
		wantStripped int64
	}{
		{
			name:         "no NULs",
			input:        []byte("plain\ttext"),
			expected:     "plain\ttext",
			wantStripped: 0,
		},
		{
			name:         "NUL inside field",
			input:        []byte("ab\x00cd"),
			expected:     "abcd",
			wantStripped: 1,
		},
		{
			name:         "NUL run",
			input:        []byte("\x00\x00\x00x"),
			expected:     "x",
			wantStripped: 3,
		},
		{
			name:         "NUL adjacent to delimiter",
			input:        []byte("a\x00\tb"),
			expected:     "a\tb",
			wantStripped: 1,
		},
		{
			name:         "empty input",
			input:        []byte{},
			expected:     "",
			wantStripped: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewNULStrippingReader(bytes.NewReader(tt.input))
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
			if r.Stripped != tt.wantStripped {
				t.Errorf("Stripped = %d, want %d", r.Stripped, tt.wantStripped)
			}
		})
	}
}

func TestSplitFields(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{
			name: "plain fields",
			line: "1\tJohn\t2020-01-01",
			want: []string{"1", "John", "2020-01-01"},
		},
		{
			name: "escaped tab stays in field",
			line: "1\tlast\\\tfirst\t2020-01-01",
			want: []string{"1", "last\tfirst", "2020-01-01"},
		},
		{
			name: "escaped backslash",
			line: "a\\\\b\tc",
			want: []string{"a\\b", "c"},
		},
		{
			name: "empty fields",
			line: "\t\t",
			want: []string{"", "", ""},
		},
		{
			name: "trailing escape artifact dropped",
			line: "1\tname\\",
			want: []string{"1", "name"},
		},
		{
			name: "carriage return trimmed",
			line: "1\tx\r",
			want: []string{"1", "x"},
		},
		{
			name: "single field",
			line: "solo",
			want: []string{"solo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitFields(tt.line)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitFields(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func writeExport(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "A_TblCase.csv")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRowReader(t *testing.T) {
	// Latin-1 bytes with an embedded NUL and a blank line. 0xE9 is é.
	data := []byte("idncase\tnat\tdatestart\n" +
		"100\tMX\t2020-01-01\n" +
		"\n" +
		"101\tJos\xe9\x00\t2020-02-02\n")
	path := writeExport(t, data)

	r, err := OpenRowReader(path)
	if err != nil {
		t.Fatalf("OpenRowReader: %v", err)
	}
	defer r.Close()

	if got := r.Header(); !reflect.DeepEqual(got, []string{"idncase", "nat", "datestart"}) {
		t.Fatalf("header = %q", got)
	}

	row1, err := r.Next()
	if err != nil {
		t.Fatalf("first row: %v", err)
	}
	if row1.Line != 2 {
		t.Errorf("first row line = %d, want 2", row1.Line)
	}
	if !reflect.DeepEqual(row1.Fields, []string{"100", "MX", "2020-01-01"}) {
		t.Errorf("first row = %q", row1.Fields)
	}

	// Blank line 3 is skipped; the NUL is stripped and the Latin-1 byte
	// decodes rather than failing.
	row2, err := r.Next()
	if err != nil {
		t.Fatalf("second row: %v", err)
	}
	if row2.Line != 4 {
		t.Errorf("second row line = %d, want 4", row2.Line)
	}
	if !reflect.DeepEqual(row2.Fields, []string{"101", "José", "2020-02-02"}) {
		t.Errorf("second row = %q", row2.Fields)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("want io.EOF, got %v", err)
	}
	if r.NULBytesStripped() != 1 {
		t.Errorf("NULBytesStripped = %d, want 1", r.NULBytesStripped())
	}
}

func TestOpenRowReaderMissingFile(t *testing.T) {
	if _, err := OpenRowReader(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("want error for missing file")
	}
}

func TestOpenRowReaderEmptyFile(t *testing.T) {
	path := writeExport(t, nil)
	if _, err := OpenRowReader(path); err == nil {
		t.Error("want error for empty file (no header)")
	}
}
