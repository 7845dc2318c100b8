package clean

// coerce.go forces raw field values into the destination column types.
//
// All conversions return pgtype values with Valid=false for empty or
// unparseable input. The coercer never fails a row: every value has a null
// fallback, and correctness against the legacy constraints is enforced by
// the primary-key filter instead.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/eoirdata/eoirload/internal/metadata"
)

// numericRegex validates a numeric literal after whitespace cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// Timestamp and date layouts seen in the EOIR exports. The dumps write ISO
// timestamps, but a handful of tables carry bare dates in timestamp columns.
var (
	timestampLayouts = []string{
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	dateLayouts = []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		"01/02/2006",
	}
)

// IsNulLike reports whether a raw value is a legacy export artifact that
// carries no meaning: empty, whitespace, the FOIA redaction marker "b6",
// literal N/A, the "A.2.a" filler, or a run of only '?' or only '0'.
func IsNulLike(value string) bool {
	switch value {
	case "", "b6", "N/A", "A.2.a":
		return true
	}
	if strings.TrimSpace(value) == "" {
		return true
	}
	if value[0] == '?' || value[0] == '0' {
		run := true
		for i := 1; i < len(value); i++ {
			if value[i] != value[0] {
				run = false
				break
			}
		}
		if run {
			return true
		}
	}
	return false
}

// normalizeField strips the escape-artifact backslashes and surrounding
// whitespace the exports leave on values.
func normalizeField(value string) string {
	return strings.TrimSpace(strings.Trim(value, "\\"))
}

// CoercedValue is one converted field: the pgtype value sent to the
// database, whether it is null, and whether coercion changed the value
// non-trivially (parse failure or truncation).
type CoercedValue struct {
	Value   any
	Null    bool
	Changed bool
}

// CoerceField converts a raw string to the column's declared type.
// Nul-like input becomes null for every type without counting as a change.
func CoerceField(col metadata.ColumnSpec, raw string) CoercedValue {
	value := normalizeField(raw)
	if IsNulLike(value) {
		return CoercedValue{Value: nullFor(col.Type), Null: true}
	}

	switch col.Type {
	case metadata.TypeInteger:
		if n, ok := toInt8(value); ok {
			return CoercedValue{Value: n}
		}
	case metadata.TypeNumeric:
		if n, ok := toNumeric(value); ok {
			return CoercedValue{Value: n}
		}
	case metadata.TypeDate:
		if d, ok := toDate(value); ok {
			return CoercedValue{Value: d}
		}
	case metadata.TypeTimestamp:
		if ts, ok := toTimestamp(value); ok {
			return CoercedValue{Value: ts}
		}
	case metadata.TypeTime:
		if t, ok := toClockTime(value); ok {
			return CoercedValue{Value: t}
		}
	case metadata.TypeBoolean:
		if b, ok := toBool(value); ok {
			return CoercedValue{Value: b}
		}
	default:
		if col.MaxLength > 0 && len(value) > col.MaxLength {
			truncated := value[:col.MaxLength]
			return CoercedValue{
				Value:   pgtype.Text{String: truncated, Valid: true},
				Changed: true,
			}
		}
		return CoercedValue{Value: pgtype.Text{String: value, Valid: true}}
	}

	return CoercedValue{Value: nullFor(col.Type), Null: true, Changed: true}
}

// FieldConforms reports whether a raw value is acceptable for the column
// without null substitution. Nul-like values conform for every type; they
// are nulled later without being treated as anomalies. Used by the shape
// repairer's bad-value scan.
func FieldConforms(col metadata.ColumnSpec, raw string) bool {
	value := normalizeField(raw)
	if IsNulLike(value) {
		return true
	}

	switch col.Type {
	case metadata.TypeInteger:
		_, ok := toInt8(value)
		return ok
	case metadata.TypeNumeric:
		_, ok := toNumeric(value)
		return ok
	case metadata.TypeDate:
		_, ok := toDate(value)
		return ok
	case metadata.TypeTimestamp:
		_, ok := toTimestamp(value)
		return ok
	case metadata.TypeTime:
		_, ok := toClockTime(value)
		return ok
	case metadata.TypeBoolean:
		_, ok := toBool(value)
		return ok
	default:
		return col.MaxLength <= 0 || len(value) <= col.MaxLength
	}
}

// nullFor returns the invalid pgtype value matching the column type, so the
// COPY encoder sees the right OID for NULLs.
func nullFor(t metadata.ColumnType) any {
	switch t {
	case metadata.TypeInteger:
		return pgtype.Int8{}
	case metadata.TypeNumeric:
		return pgtype.Numeric{}
	case metadata.TypeDate:
		return pgtype.Date{}
	case metadata.TypeTimestamp:
		return pgtype.Timestamp{}
	case metadata.TypeTime:
		return pgtype.Time{}
	case metadata.TypeBoolean:
		return pgtype.Bool{}
	default:
		return pgtype.Text{}
	}
}

// toInt8 parses an integer literal. The legacy data entry system sometimes
// recorded the letter O in place of zero, so that substitution is applied
// before parsing.
func toInt8(s string) (pgtype.Int8, bool) {
	s = strings.ReplaceAll(s, "O", "0")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return pgtype.Int8{}, false
	}
	return pgtype.Int8{Int64: n, Valid: true}, true
}

func toNumeric(s string) (pgtype.Numeric, bool) {
	if !numericRegex.MatchString(s) {
		return pgtype.Numeric{}, false
	}
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{}, false
	}
	return n, true
}

func toDate(s string) (pgtype.Date, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return pgtype.Date{Time: t, Valid: true}, true
		}
	}
	return pgtype.Date{}, false
}

func toTimestamp(s string) (pgtype.Timestamp, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return pgtype.Timestamp{Time: t, Valid: true}, true
		}
	}
	return pgtype.Timestamp{}, false
}

// toClockTime parses the export's clock values: "HHMM", "H:MM", "HH:MM",
// or "HH:MM:SS".
func toClockTime(s string) (pgtype.Time, bool) {
	digits := strings.ReplaceAll(s, ":", "")
	if len(digits) == 3 {
		digits = "0" + digits
	}
	if len(digits) != 4 && len(digits) != 6 {
		return pgtype.Time{}, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return pgtype.Time{}, false
		}
	}

	hour, _ := strconv.Atoi(digits[:2])
	minute, _ := strconv.Atoi(digits[2:4])
	second := 0
	if len(digits) == 6 {
		second, _ = strconv.Atoi(digits[4:6])
	}
	if hour > 23 || minute > 59 || second > 59 {
		return pgtype.Time{}, false
	}

	micros := int64(hour)*3600_000_000 + int64(minute)*60_000_000 + int64(second)*1_000_000
	return pgtype.Time{Microseconds: micros, Valid: true}, true
}

func toBool(s string) (pgtype.Bool, bool) {
	switch strings.ToLower(s) {
	case "true", "t", "yes", "y", "1", "-1":
		return pgtype.Bool{Bool: true, Valid: true}, true
	case "false", "f", "no", "n":
		return pgtype.Bool{Bool: false, Valid: true}, true
	}
	return pgtype.Bool{}, false
}

// RenderValue serializes a coerced value back to its canonical text form,
// empty string for nulls. Used for audit snapshots; re-coercing a rendered
// value yields the same typed value.
func RenderValue(v any) string {
	switch t := v.(type) {
	case pgtype.Text:
		if !t.Valid {
			return ""
		}
		return t.String
	case pgtype.Int8:
		if !t.Valid {
			return ""
		}
		return strconv.FormatInt(t.Int64, 10)
	case pgtype.Numeric:
		if !t.Valid {
			return ""
		}
		v, err := t.Value()
		if err != nil {
			return ""
		}
		s, _ := v.(string)
		return s
	case pgtype.Date:
		if !t.Valid {
			return ""
		}
		return t.Time.Format("2006-01-02")
	case pgtype.Timestamp:
		if !t.Valid {
			return ""
		}
		return t.Time.Format("2006-01-02 15:04:05")
	case pgtype.Time:
		if !t.Valid {
			return ""
		}
		total := t.Microseconds / 1_000_000
		return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
	case pgtype.Bool:
		if !t.Valid {
			return ""
		}
		if t.Bool {
			return "true"
		}
		return "false"
	}
	return ""
}
