package clean

// verify.go reconciles staging-table row counts against the Count.txt
// manifest shipped alongside each export drop. The manifest lists the row
// count the source system copied out per file, which is the only ground
// truth available for end-to-end loss checks.

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/eoirdata/eoirload/internal/metadata"
)

// Querier is the subset of pgxpool.Pool the verifier needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// countPattern matches manifest lines like "A_TblCase\t8608373 rows copied."
var countPattern = regexp.MustCompile(`(\d+)\s+rows\s+copied`)

// ParseCountFile reads a Count.txt manifest and returns shipped row counts
// keyed by export file stem (e.g. "A_TblCase").
func ParseCountFile(path string) (map[string]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open count manifest: %w", err)
	}
	defer f.Close()

	counts := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "TableName") {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) < 2 {
			continue
		}
		m := countPattern.FindStringSubmatch(parts[1])
		if m == nil {
			continue
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		counts[strings.TrimSpace(parts[0])] = n
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read count manifest: %w", err)
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("no counts found in %s", path)
	}
	return counts, nil
}

// VerifyResult compares one file's shipped count against its staging table.
type VerifyResult struct {
	File     string
	Table    string
	Staging  string
	Expected int64
	Actual   int64
	// Missing means the staging table does not exist.
	Missing bool
}

// Match reports whether the staging table holds exactly the shipped count.
func (r VerifyResult) Match() bool {
	return !r.Missing && r.Actual == r.Expected
}

// VerifyReport holds one result per manifest entry with a known descriptor,
// in file order.
type VerifyReport struct {
	Results []VerifyResult
}

// Mismatches counts results that are missing or off by any amount.
func (r *VerifyReport) Mismatches() int {
	n := 0
	for _, res := range r.Results {
		if !res.Match() {
			n++
		}
	}
	return n
}

// Verifier compares loaded staging tables against a count manifest.
type Verifier struct {
	db   Querier
	meta *metadata.Store
}

// NewVerifier creates a verifier over a pool or other row querier.
func NewVerifier(db Querier, meta *metadata.Store) *Verifier {
	return &Verifier{db: db, meta: meta}
}

// Verify parses the manifest at countPath and checks every entry with a
// known descriptor against its staging table for postfix. Manifest entries
// without a descriptor are skipped; a staging table that does not exist is
// reported as missing rather than failing the run.
func (v *Verifier) Verify(ctx context.Context, countPath, postfix string) (*VerifyReport, error) {
	counts, err := ParseCountFile(countPath)
	if err != nil {
		return nil, err
	}

	stems := make([]string, 0, len(counts))
	for stem := range counts {
		stems = append(stems, stem)
	}
	sort.Strings(stems)

	report := &VerifyReport{}
	for _, stem := range stems {
		spec, ok := v.meta.ForFile(stem + ".csv")
		if !ok {
			continue
		}

		res := VerifyResult{
			File:     stem,
			Table:    spec.Table,
			Staging:  StagingTable(spec.Table, postfix),
			Expected: counts[stem],
		}

		stmt := fmt.Sprintf(`SELECT count(*) FROM %q`, res.Staging)
		if err := v.db.QueryRow(ctx, stmt).Scan(&res.Actual); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
				res.Missing = true
			} else {
				return nil, fmt.Errorf("count %s: %w", res.Staging, err)
			}
		}
		report.Results = append(report.Results, res)
	}
	return report, nil
}
