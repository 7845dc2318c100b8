package clean

// audit.go accumulates repair/coercion/drop evidence for one pipeline run.
//
// Counters are exact. The before/after sample is a reservoir: a uniformly
// random subset with a fixed capacity, so memory stays bounded on files
// where millions of rows are anomalous.

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Category classifies what happened to a row.
type Category string

const (
	CategoryShapeRepaired Category = "shape_repaired"
	CategoryTypeCoerced   Category = "type_coerced"
	CategoryDroppedNoPK   Category = "dropped_no_pk"
)

// Entry is one audited row mutation or drop. Entries are immutable once
// recorded.
type Entry struct {
	Line     int      `json:"line"`
	Category Category `json:"category"`
	Before   []string `json:"before"`
	After    []string `json:"after,omitempty"`
}

// DefaultSampleSize is the reservoir capacity when the caller does not
// configure one.
const DefaultSampleSize = 100

// Recorder tallies per-category counts and keeps the bounded sample.
// One Recorder serves exactly one pipeline run; it is not safe for
// concurrent use and does not need to be.
type Recorder struct {
	sampleCap int
	rng       *rand.Rand
	observed  int
	sample    []Entry
	counts    map[Category]int64
}

// NewRecorder creates a recorder with the given reservoir capacity.
// A capacity of zero disables sampling but keeps exact counts.
func NewRecorder(sampleCap int) *Recorder {
	if sampleCap < 0 {
		sampleCap = DefaultSampleSize
	}
	return &Recorder{
		sampleCap: sampleCap,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		sample:    make([]Entry, 0, sampleCap),
		counts:    make(map[Category]int64),
	}
}

// Record increments the category counter and offers the entry to the
// reservoir. Snapshots are copied so later row reuse cannot alias them.
func (r *Recorder) Record(cat Category, line int, before, after []string) {
	r.counts[cat]++
	if r.sampleCap == 0 {
		return
	}

	entry := Entry{
		Line:     line,
		Category: cat,
		Before:   snapshot(before),
		After:    snapshot(after),
	}

	r.observed++
	if len(r.sample) < r.sampleCap {
		r.sample = append(r.sample, entry)
		return
	}
	if j := r.rng.Intn(r.observed); j < r.sampleCap {
		r.sample[j] = entry
	}
}

// Count returns the exact tally for one category.
func (r *Recorder) Count(cat Category) int64 { return r.counts[cat] }

// Sample returns the retained entries. The slice is the recorder's own;
// callers take ownership only after the run is finished.
func (r *Recorder) Sample() []Entry { return r.sample }

func snapshot(fields []string) []string {
	if fields == nil {
		return nil
	}
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// RunSummary is the caller-facing result of one file's pipeline run.
type RunSummary struct {
	RunID             string        `json:"run_id"`
	File              string        `json:"file"`
	Table             string        `json:"table"`
	Staging           string        `json:"staging"`
	RowsSeen          int64         `json:"rows_seen"`
	RowsSent          int64         `json:"rows_sent"`
	RowsLoaded        int64         `json:"rows_loaded"`
	RowsShapeRepaired int64         `json:"rows_shape_repaired"`
	RowsTypeCoerced   int64         `json:"rows_type_coerced"`
	RowsDroppedNoPK   int64         `json:"rows_dropped_no_pk"`
	NULBytesStripped  int64         `json:"nul_bytes_stripped"`
	Sample            []Entry       `json:"sample,omitempty"`
	Duration          time.Duration `json:"duration"`
}

// NewRunSummary starts a summary for one file run.
func NewRunSummary(file, table string) *RunSummary {
	return &RunSummary{
		RunID: uuid.New().String(),
		File:  file,
		Table: table,
	}
}

// Mismatch reports whether the database acknowledged fewer rows than were
// sent to the COPY stream.
func (s *RunSummary) Mismatch() bool {
	return s.RowsLoaded != s.RowsSent
}
