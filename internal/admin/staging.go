// Package admin provides staging-table management: creating the per-postfix
// landing tables from the metadata descriptors before a load, and dropping
// a whole postfix generation afterwards.
package admin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/eoirdata/eoirload/internal/clean"
	"github.com/eoirdata/eoirload/internal/metadata"
)

// OpTimeout is the maximum duration for one create-all or drop-all run.
const OpTimeout = 30 * time.Second

// Execer is the subset of pgxpool.Pool the manager needs.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Manager creates and drops staging tables for every descriptor in the
// metadata store.
type Manager struct {
	db   Execer
	meta *metadata.Store
}

// New creates a manager over a pool or other statement executor.
func New(db Execer, meta *metadata.Store) *Manager {
	return &Manager{db: db, meta: meta}
}

// CreateAll creates one staging table per descriptor, named
// <table>_<postfix>. Existing tables are left alone. The postfix is
// mandatory so a typo cannot target the base tables.
func (m *Manager) CreateAll(ctx context.Context, postfix string) error {
	if postfix == "" {
		return fmt.Errorf("staging postfix is required")
	}

	ctx, cancel := context.WithTimeout(ctx, OpTimeout)
	defer cancel()

	for _, table := range sortedTables(m.meta) {
		spec, _ := m.meta.ForTable(table)
		if _, err := m.db.Exec(ctx, createDDL(spec, postfix)); err != nil {
			return fmt.Errorf("create %s: %w", clean.StagingTable(table, postfix), err)
		}
	}
	return nil
}

// DropAll drops every staging table for one postfix generation.
func (m *Manager) DropAll(ctx context.Context, postfix string) error {
	if postfix == "" {
		return fmt.Errorf("staging postfix is required")
	}

	ctx, cancel := context.WithTimeout(ctx, OpTimeout)
	defer cancel()

	for _, table := range sortedTables(m.meta) {
		staging := clean.StagingTable(table, postfix)
		stmt := fmt.Sprintf(`DROP TABLE IF EXISTS %q`, staging)
		if _, err := m.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("drop %s: %w", staging, err)
		}
	}
	return nil
}

// sortedTables returns the store's table names in a deterministic order.
func sortedTables(meta *metadata.Store) []string {
	tables := meta.Tables()
	sort.Strings(tables)
	return tables
}

// createDDL builds the CREATE TABLE statement for one staging table.
// No key or not-null constraints: staging tables are raw landing zones,
// and exports do repeat primary keys across revisions.
func createDDL(spec *metadata.TableSpec, postfix string) string {
	cols := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = fmt.Sprintf("%q %s", c.Name, sqlType(c))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)",
		clean.StagingTable(spec.Table, postfix), strings.Join(cols, ", "))
}

// sqlType maps a descriptor column type to its Postgres type.
func sqlType(c metadata.ColumnSpec) string {
	switch c.Type {
	case metadata.TypeInteger:
		return "bigint"
	case metadata.TypeNumeric:
		return "numeric"
	case metadata.TypeDate:
		return "date"
	case metadata.TypeTimestamp:
		return "timestamp"
	case metadata.TypeTime:
		return "time"
	case metadata.TypeBoolean:
		return "boolean"
	default:
		if c.MaxLength > 0 {
			return fmt.Sprintf("varchar(%d)", c.MaxLength)
		}
		return "text"
	}
}
