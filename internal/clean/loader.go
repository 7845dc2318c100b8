package clean

// loader.go streams coerced rows into a staging table with the Postgres
// COPY protocol. One transaction covers the whole file: either every row
// that survived the pipeline is committed, or none are.

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxBeginner is the subset of pgxpool.Pool the loader needs, kept as an
// interface so tests can substitute a stub transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RowSource yields coerced rows one at a time. Next returns nil when the
// stream is exhausted; a non-nil error aborts the copy.
type RowSource func() ([]any, error)

// Loader bulk-copies a row stream into staging tables.
type Loader struct {
	db TxBeginner
}

// NewLoader creates a loader on a pool or other transaction source.
func NewLoader(db TxBeginner) *Loader {
	return &Loader{db: db}
}

// StagingTable names the bulk-load target: destination table plus the
// caller-supplied postfix, e.g. "a_tblcase_06_25".
func StagingTable(table, postfix string) string {
	if postfix == "" {
		return table
	}
	return table + "_" + postfix
}

// Load copies rows into table_postfix inside a single transaction and
// returns the row count the database acknowledged. Any database error
// rolls the whole file back.
func (l *Loader) Load(ctx context.Context, table, postfix string, columns []string, rows RowSource) (int64, error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	staging := StagingTable(table, postfix)
	copied, err := tx.CopyFrom(ctx, pgx.Identifier{staging}, columns, &copySource{next: rows})
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", staging, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit %s: %w", staging, err)
	}
	return copied, nil
}

// copySource adapts a RowSource to pgx.CopyFromSource, so rows stream into
// the wire protocol without buffering the file.
type copySource struct {
	next func() ([]any, error)
	row  []any
	err  error
}

func (s *copySource) Next() bool {
	if s.err != nil {
		return false
	}
	s.row, s.err = s.next()
	return s.err == nil && s.row != nil
}

func (s *copySource) Values() ([]any, error) {
	return s.row, s.err
}

func (s *copySource) Err() error {
	return s.err
}
