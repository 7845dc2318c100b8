package clean

// reader.go provides the raw row reader for EOIR FOIA exports.
//
// Export files are tab-delimited, backslash-escaped, and encoded as Latin-1
// (every byte value decodes, so a decode failure cannot occur). Two io.Reader
// wrappers handle byte-level cleanup before any field splitting:
//
//   - NULStrippingReader: removes literal NUL bytes and counts them
//   - charmap.ISO8859_1 decoder: transcodes Latin-1 to UTF-8
//
// NUL bytes must be stripped before splitting because they corrupt the
// delimiter scan in the middle of multi-byte reads.

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// maxLineBytes bounds a single export line. The widest observed rows in the
// case tables are well under 1MB; 16MB leaves headroom without risking
// unbounded allocation on a corrupt file.
const maxLineBytes = 16 * 1024 * 1024

// RawRow is one input line split into fields, before any repair.
type RawRow struct {
	// Line is the 1-based physical line number in the export file.
	Line   int
	Fields []string
}

// Clone returns a deep copy, used for audit before/after snapshots.
func (r RawRow) Clone() RawRow {
	fields := make([]string, len(r.Fields))
	copy(fields, r.Fields)
	return RawRow{Line: r.Line, Fields: fields}
}

// NULStrippingReader wraps an io.Reader and removes NUL bytes on the fly,
// keeping a count of how many were dropped.
type NULStrippingReader struct {
	reader   io.Reader
	Stripped int64
}

// NewNULStrippingReader creates a NUL-stripping reader.
func NewNULStrippingReader(r io.Reader) *NULStrippingReader {
	return &NULStrippingReader{reader: r}
}

// Read implements io.Reader. NUL bytes are filtered in place.
func (r *NULStrippingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n == 0 {
		return 0, err
	}

	write := 0
	for read := 0; read < n; read++ {
		if p[read] == 0x00 {
			r.Stripped++
			continue
		}
		if write != read {
			p[write] = p[read]
		}
		write++
	}
	return write, err
}

// RowReader produces a lazy sequence of RawRow from one export file.
// It is single-pass and non-restartable.
type RowReader struct {
	file    *os.File
	nul     *NULStrippingReader
	scanner *bufio.Scanner
	line    int
	header  []string
}

// OpenRowReader opens path, wraps it with NUL stripping and Latin-1
// decoding, and consumes the header line.
func OpenRowReader(path string) (*RowReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}

	nul := NewNULStrippingReader(f)
	decoded := charmap.ISO8859_1.NewDecoder().Reader(nul)

	scanner := bufio.NewScanner(decoded)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	r := &RowReader{file: f, nul: nul, scanner: scanner}

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			f.Close()
			return nil, fmt.Errorf("read header: %w", err)
		}
		f.Close()
		return nil, fmt.Errorf("read header: %w", io.ErrUnexpectedEOF)
	}
	r.line = 1
	r.header = splitFields(scanner.Text())

	return r, nil
}

// Header returns the column names from the export's first line.
func (r *RowReader) Header() []string { return r.header }

// NULBytesStripped returns how many NUL bytes were removed so far.
func (r *RowReader) NULBytesStripped() int64 { return r.nul.Stripped }

// Next returns the next data row. Blank lines are skipped. Returns io.EOF
// when the file is exhausted.
func (r *RowReader) Next() (RawRow, error) {
	for r.scanner.Scan() {
		r.line++
		text := r.scanner.Text()
		if text == "" {
			continue
		}
		return RawRow{Line: r.line, Fields: splitFields(text)}, nil
	}
	if err := r.scanner.Err(); err != nil {
		return RawRow{}, fmt.Errorf("read line %d: %w", r.line+1, err)
	}
	return RawRow{}, io.EOF
}

// Close releases the underlying file.
func (r *RowReader) Close() error { return r.file.Close() }

// splitFields splits one line on tabs with backslash escaping: a backslash
// removes the special meaning of the following character, matching the
// "excel-tab" dialect the exports were written with. Fields are never
// quote-wrapped. A lone trailing backslash is an export artifact for an
// empty value and is dropped.
func splitFields(line string) []string {
	line = strings.TrimSuffix(line, "\r")

	fields := make([]string, 0, 16)
	var b strings.Builder
	escaped := false

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case escaped:
			b.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == '\t':
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	fields = append(fields, b.String())

	return fields
}
