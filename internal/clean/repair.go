package clean

// repair.go reconciles each raw row's field count against the table header.
//
// Over-length rows come from unescaped tabs or stray NUL-artifact fragments
// inside a field; under-length rows from truncated lines. The repairer's
// output invariant is that every row it emits has exactly H fields, where H
// is the descriptor's column count. Anomaly classification is one forward
// pass per row: all bad-value candidates are collected before any fix is
// chosen, and the row is never re-scanned to find more.

import (
	"github.com/eoirdata/eoirload/internal/metadata"
)

// Repairer fixes row shape for one table.
type Repairer struct {
	spec *metadata.TableSpec
}

// NewRepairer creates a repairer bound to a table descriptor.
func NewRepairer(spec *metadata.TableSpec) *Repairer {
	return &Repairer{spec: spec}
}

// Repair returns a field slice of exactly header length and whether the
// row was modified to get there. The input slice is not mutated.
func (r *Repairer) Repair(fields []string) ([]string, bool) {
	h := r.spec.Len()
	switch {
	case len(fields) == h:
		return fields, false
	case len(fields) < h:
		padded := make([]string, h)
		copy(padded, fields)
		return padded, true
	}
	return r.repairLong(fields), true
}

// repairLong collapses an over-length row back to header length.
func (r *Repairer) repairLong(fields []string) []string {
	h := r.spec.Len()

	// One forward pass: collect every position whose value violates the
	// declared type or length of the column at that position.
	var bad []int
	for i := 0; i < len(fields) && i < h; i++ {
		if !FieldConforms(r.spec.Columns[i], fields[i]) {
			bad = append(bad, i)
		}
	}

	if len(bad) == 0 {
		// Excess is legitimate trailing blanks, not shifted data.
		if trimmed, ok := trimTrailingBlanks(fields, h); ok {
			return trimmed
		}
		return clip(fields, h)
	}

	if fixed, ok := r.collapse(fields, bad); ok {
		return fixed
	}

	// Neither strategy restored the length. Keep the first H fields; the
	// type coercer nulls anything still misaligned.
	return clip(fields, h)
}

// collapse removes excess fields guided by the bad-value candidates.
// A nul-like fragment behind a bad position is stripped; otherwise the bad
// fragment is merged back into the preceding free-text field, the usual
// shape of an unescaped tab inside a name or comment.
func (r *Repairer) collapse(fields []string, bad []int) ([]string, bool) {
	h := r.spec.Len()
	cur := append([]string(nil), fields...)
	removed := 0

	for _, b := range bad {
		if len(cur) == h {
			break
		}
		i := b - removed
		if i <= 0 || i >= len(cur) {
			continue
		}

		if j := nulLikeBehind(cur, i); j > 0 {
			cur = append(cur[:j], cur[j+1:]...)
			removed++
			continue
		}

		prevCol := i - 1
		if prevCol >= h {
			prevCol = h - 1
		}
		if r.spec.Columns[prevCol].Type == metadata.TypeText {
			cur[i-1] = cur[i-1] + " " + cur[i]
			cur = append(cur[:i], cur[i+1:]...)
			removed++
		}
	}

	if len(cur) != h {
		return nil, false
	}
	for i := range cur {
		if !FieldConforms(r.spec.Columns[i], cur[i]) {
			return nil, false
		}
	}
	return cur, true
}

// nulLikeBehind walks backward from position i looking for a removable
// nul-like fragment. Position 0 is never removed; the primary key must
// stay in place.
func nulLikeBehind(fields []string, i int) int {
	for j := i; j > 0; j-- {
		if IsNulLike(fields[j]) {
			return j
		}
	}
	return -1
}

// trimTrailingBlanks drops nul-like fields from the tail until the row is
// h long. Reports false if a meaningful value would have to go.
func trimTrailingBlanks(fields []string, h int) ([]string, bool) {
	end := len(fields)
	for end > h && IsNulLike(fields[end-1]) {
		end--
	}
	if end != h {
		return nil, false
	}
	return fields[:h], true
}

func clip(fields []string, h int) []string {
	return fields[:h]
}
