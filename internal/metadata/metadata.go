// Package metadata loads per-table column descriptors for EOIR FOIA exports.
//
// Each destination table has a JSON descriptor enumerating its columns in the
// same order as the export file's header: name, declared type, optional max
// length, and a primary-key flag. A separate tables.json maps export file
// names to table names. Descriptors are loaded once and never mutated.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ColumnType is the declared destination type for a column.
type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeInteger   ColumnType = "integer"
	TypeNumeric   ColumnType = "numeric"
	TypeDate      ColumnType = "date"
	TypeTimestamp ColumnType = "timestamp"
	TypeTime      ColumnType = "time"
	TypeBoolean   ColumnType = "boolean"
)

// typeAliases maps legacy descriptor spellings to canonical types. The
// original descriptors used full Postgres type names.
var typeAliases = map[string]ColumnType{
	"":                            TypeText,
	"string":                      TypeText,
	"varchar":                     TypeText,
	"character varying":           TypeText,
	"int":                         TypeInteger,
	"bigint":                      TypeInteger,
	"decimal":                     TypeNumeric,
	"datetime":                    TypeTimestamp,
	"timestamp without time zone": TypeTimestamp,
	"time without time zone":      TypeTime,
	"bool":                        TypeBoolean,
}

// ParseType normalizes a descriptor type string to a ColumnType.
func ParseType(s string) (ColumnType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	if alias, ok := typeAliases[norm]; ok {
		return alias, nil
	}
	switch ColumnType(norm) {
	case TypeText, TypeInteger, TypeNumeric, TypeDate, TypeTimestamp, TypeTime, TypeBoolean:
		return ColumnType(norm), nil
	}
	return "", fmt.Errorf("unknown column type %q", s)
}

// ColumnSpec describes one destination column.
type ColumnSpec struct {
	Name       string     `json:"name"`
	Type       ColumnType `json:"type"`
	MaxLength  int        `json:"max_length,omitempty"`
	PrimaryKey bool       `json:"primary_key,omitempty"`
}

// TableSpec is the ordered column list for one destination table, matching
// the export file's header order.
type TableSpec struct {
	Table   string       `json:"table"`
	Columns []ColumnSpec `json:"columns"`
}

// Len returns the declared header length H.
func (t *TableSpec) Len() int { return len(t.Columns) }

// ColumnNames returns the database column names in header order.
func (t *TableSpec) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKeyIndexes returns the positions of all primary-key columns.
// The legacy exports put the primary key in the first column and most
// descriptors rely on that, so an unflagged table defaults to column 0.
func (t *TableSpec) PrimaryKeyIndexes() []int {
	var idx []int
	for i, c := range t.Columns {
		if c.PrimaryKey {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 && len(t.Columns) > 0 {
		idx = []int{0}
	}
	return idx
}

// Store holds all loaded table descriptors, keyed by table name, plus the
// export-file-name to table-name mapping.
type Store struct {
	files  map[string]string // export file name -> table name
	tables map[string]*TableSpec
}

// Load reads tables.json and every descriptor under table-dtypes/ in dir.
// A missing or malformed descriptor is a configuration error.
func Load(dir string) (*Store, error) {
	mapPath := filepath.Join(dir, "tables.json")
	raw, err := os.ReadFile(mapPath)
	if err != nil {
		return nil, fmt.Errorf("read table map: %w", err)
	}

	var files map[string]string
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, fmt.Errorf("parse %s: %w", mapPath, err)
	}

	s := &Store{
		files:  files,
		tables: make(map[string]*TableSpec, len(files)),
	}

	for fileName, tableName := range files {
		specPath := filepath.Join(dir, "table-dtypes", tableName+".json")
		spec, err := loadSpec(specPath)
		if err != nil {
			return nil, fmt.Errorf("descriptor for %s: %w", fileName, err)
		}
		if spec.Table == "" {
			spec.Table = tableName
		}
		s.tables[tableName] = spec
	}

	return s, nil
}

// loadSpec reads and validates a single table descriptor.
func loadSpec(path string) (*TableSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var spec TableSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(spec.Columns) == 0 {
		return nil, fmt.Errorf("%s: descriptor has no columns", path)
	}

	seen := make(map[string]bool, len(spec.Columns))
	for i := range spec.Columns {
		col := &spec.Columns[i]
		if col.Name == "" {
			return nil, fmt.Errorf("%s: column %d has no name", path, i)
		}
		key := strings.ToLower(col.Name)
		if seen[key] {
			return nil, fmt.Errorf("%s: duplicate column %q", path, col.Name)
		}
		seen[key] = true

		typ, err := ParseType(string(col.Type))
		if err != nil {
			return nil, fmt.Errorf("%s: column %q: %w", path, col.Name, err)
		}
		col.Type = typ
		if col.MaxLength < 0 {
			return nil, fmt.Errorf("%s: column %q: negative max_length", path, col.Name)
		}
	}

	return &spec, nil
}

// ForFile returns the TableSpec for an export file name (e.g. "A_TblCase.csv").
func (s *Store) ForFile(fileName string) (*TableSpec, bool) {
	tableName, ok := s.files[fileName]
	if !ok {
		return nil, false
	}
	spec, ok := s.tables[tableName]
	return spec, ok
}

// ForTable returns the TableSpec for a destination table name.
func (s *Store) ForTable(tableName string) (*TableSpec, bool) {
	spec, ok := s.tables[tableName]
	return spec, ok
}

// Tables returns all known destination table names.
func (s *Store) Tables() []string {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	return names
}

// ValidateHeader checks the export file's header against the descriptor.
// A field-count mismatch means the descriptor is out of date, which is a
// configuration error rather than a row-level anomaly.
func (t *TableSpec) ValidateHeader(header []string) error {
	if len(header) != len(t.Columns) {
		return fmt.Errorf("header has %d fields, descriptor for %s declares %d columns",
			len(header), t.Table, len(t.Columns))
	}
	return nil
}
