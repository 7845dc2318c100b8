package clean

import (
	"strconv"
	"testing"
)

func TestRecorderCountsAreExact(t *testing.T) {
	r := NewRecorder(10)

	for i := 0; i < 1000; i++ {
		r.Record(CategoryShapeRepaired, i, []string{"a"}, []string{"b"})
	}
	for i := 0; i < 250; i++ {
		r.Record(CategoryDroppedNoPK, i, []string{"a"}, nil)
	}

	if got := r.Count(CategoryShapeRepaired); got != 1000 {
		t.Errorf("shape_repaired = %d, want 1000", got)
	}
	if got := r.Count(CategoryDroppedNoPK); got != 250 {
		t.Errorf("dropped_no_pk = %d, want 250", got)
	}
	if got := r.Count(CategoryTypeCoerced); got != 0 {
		t.Errorf("type_coerced = %d, want 0", got)
	}
}

func TestRecorderSampleBounded(t *testing.T) {
	const sampleCap = 50
	r := NewRecorder(sampleCap)

	// Every row anomalous: the reservoir must still hold at its cap.
	for i := 0; i < 200000; i++ {
		r.Record(CategoryTypeCoerced, i, []string{strconv.Itoa(i)}, []string{""})
	}

	if got := len(r.Sample()); got != sampleCap {
		t.Errorf("sample size = %d, want %d", got, sampleCap)
	}
	if got := r.Count(CategoryTypeCoerced); got != 200000 {
		t.Errorf("count = %d, want exact 200000", got)
	}
}

func TestRecorderSampleDisabled(t *testing.T) {
	r := NewRecorder(0)

	r.Record(CategoryShapeRepaired, 1, []string{"a"}, []string{"b"})
	if len(r.Sample()) != 0 {
		t.Error("sampling disabled but entries retained")
	}
	if r.Count(CategoryShapeRepaired) != 1 {
		t.Error("counter lost with sampling disabled")
	}
}

func TestRecorderSnapshotsAreCopies(t *testing.T) {
	r := NewRecorder(5)

	row := []string{"original"}
	r.Record(CategoryShapeRepaired, 1, row, nil)
	row[0] = "mutated"

	if got := r.Sample()[0].Before[0]; got != "original" {
		t.Errorf("sample aliased the caller's slice: %q", got)
	}
}

func TestRecorderSmallInputKeepsEverything(t *testing.T) {
	r := NewRecorder(100)

	for i := 1; i <= 7; i++ {
		r.Record(CategoryShapeRepaired, i, []string{"x"}, []string{"y"})
	}

	sample := r.Sample()
	if len(sample) != 7 {
		t.Fatalf("sample size = %d, want 7", len(sample))
	}
	for i, e := range sample {
		if e.Line != i+1 {
			t.Errorf("sample[%d].Line = %d, want %d (input order preserved)", i, e.Line, i+1)
		}
	}
}
