package clean

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Count.txt")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseCountFile(t *testing.T) {
	path := writeManifest(t,
		"TableName\tCount\n"+
			"A_TblCase\t8608373 rows copied.\n"+
			"\n"+
			"B_TblProceeding\t12345 rows copied.\n"+
			"Garbage line without a tab\n"+
			"C_NoCount\tnothing useful here\n")

	counts, err := ParseCountFile(path)
	if err != nil {
		t.Fatalf("ParseCountFile: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("parsed %d entries, want 2: %v", len(counts), counts)
	}
	if counts["A_TblCase"] != 8608373 {
		t.Errorf("A_TblCase = %d", counts["A_TblCase"])
	}
	if counts["B_TblProceeding"] != 12345 {
		t.Errorf("B_TblProceeding = %d", counts["B_TblProceeding"])
	}
}

func TestParseCountFileEmpty(t *testing.T) {
	path := writeManifest(t, "TableName\tCount\n")
	if _, err := ParseCountFile(path); err == nil {
		t.Error("empty manifest accepted")
	}
	if _, err := ParseCountFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("missing manifest accepted")
	}
}

// fakeQuerier maps staging table names to canned counts. Tables absent from
// the map answer with the Postgres undefined-table error.
type fakeQuerier struct {
	counts map[string]int64
	stmts  []string
}

type fakeRow struct {
	count int64
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.count
	return nil
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.stmts = append(q.stmts, sql)
	for staging, n := range q.counts {
		if sql == `SELECT count(*) FROM "`+staging+`"` {
			return fakeRow{count: n}
		}
	}
	return fakeRow{err: &pgconn.PgError{Code: "42P01"}}
}

func TestVerify(t *testing.T) {
	path := writeManifest(t,
		"A_TblCase\t100 rows copied.\n"+
			"X_Unknown\t5 rows copied.\n")

	db := &fakeQuerier{counts: map[string]int64{"a_tblcase_06_25": 97}}
	v := NewVerifier(db, testStore(t))

	report, err := v.Verify(context.Background(), path, "06_25")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	// The unknown file has no descriptor and is skipped.
	if len(report.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(report.Results))
	}
	res := report.Results[0]
	if res.File != "A_TblCase" || res.Table != "a_tblcase" || res.Staging != "a_tblcase_06_25" {
		t.Errorf("result identity = %+v", res)
	}
	if res.Expected != 100 || res.Actual != 97 {
		t.Errorf("counts = %d/%d, want 100/97", res.Expected, res.Actual)
	}
	if res.Match() {
		t.Error("short load reported as match")
	}
	if report.Mismatches() != 1 {
		t.Errorf("mismatches = %d, want 1", report.Mismatches())
	}
}

func TestVerifyMatch(t *testing.T) {
	path := writeManifest(t, "A_TblCase\t100 rows copied.\n")

	db := &fakeQuerier{counts: map[string]int64{"a_tblcase_06_25": 100}}
	v := NewVerifier(db, testStore(t))

	report, err := v.Verify(context.Background(), path, "06_25")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Mismatches() != 0 {
		t.Errorf("mismatches = %d, want 0", report.Mismatches())
	}
	if !report.Results[0].Match() {
		t.Errorf("exact count not a match: %+v", report.Results[0])
	}
}

func TestVerifyMissingTable(t *testing.T) {
	path := writeManifest(t, "A_TblCase\t100 rows copied.\n")

	db := &fakeQuerier{}
	v := NewVerifier(db, testStore(t))

	report, err := v.Verify(context.Background(), path, "01_99")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	res := report.Results[0]
	if !res.Missing {
		t.Errorf("absent staging table not reported missing: %+v", res)
	}
	if res.Match() {
		t.Error("missing table reported as match")
	}
}

func TestVerifyQueryError(t *testing.T) {
	path := writeManifest(t, "A_TblCase\t100 rows copied.\n")

	db := &errQuerier{}
	v := NewVerifier(db, testStore(t))

	if _, err := v.Verify(context.Background(), path, "06_25"); err == nil {
		t.Error("non-catalog database error swallowed")
	}
}

type errQuerier struct{}

func (errQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{err: &pgconn.PgError{Code: "57014"}}
}
