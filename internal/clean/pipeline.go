// Package clean implements the streaming row-repair pipeline for EOIR FOIA
// exports: raw row reading, shape repair, type coercion, primary-key
// filtering, audit recording, and bulk loading into Postgres staging tables.
//
// Every stage operates on one row at a time. Memory use is bounded by the
// audit sample capacity plus a single row, regardless of file size, and row
// order is preserved from the export file into the staging table.
package clean

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/eoirdata/eoirload/internal/logging"
	"github.com/eoirdata/eoirload/internal/metadata"
)

// contextCheckInterval is how many rows pass between cancellation checks.
const contextCheckInterval = 1000

// Options configures one pipeline instance.
type Options struct {
	// SampleSize caps the audit reservoir. Zero keeps counters only.
	SampleSize int
}

// Pipeline cleans one export file at a time. Instances hold no per-run
// state, so distinct files may run on distinct Pipeline values in parallel;
// a single instance must not be shared between concurrent runs.
type Pipeline struct {
	meta       *metadata.Store
	loader     *Loader
	sampleSize int
}

// New creates a pipeline over the given metadata store and database.
func New(meta *metadata.Store, db TxBeginner, opts Options) *Pipeline {
	return &Pipeline{
		meta:       meta,
		loader:     NewLoader(db),
		sampleSize: opts.SampleSize,
	}
}

// RunFile resolves the destination table from the export file name and
// runs the pipeline. Unknown files are a configuration error.
func (p *Pipeline) RunFile(ctx context.Context, path, postfix string) (*RunSummary, error) {
	spec, ok := p.meta.ForFile(filepath.Base(path))
	if !ok {
		return nil, fmt.Errorf("no table descriptor for file %s", filepath.Base(path))
	}
	return p.Run(ctx, path, spec.Table, postfix)
}

// Run cleans path and bulk-loads it into the staging table for tableName
// plus postfix. It returns a RunSummary even on a database failure, with
// RowsLoaded zero and the counters collected up to the failure.
func (p *Pipeline) Run(ctx context.Context, path, tableName, postfix string) (*RunSummary, error) {
	spec, ok := p.meta.ForTable(tableName)
	if !ok {
		return nil, fmt.Errorf("no descriptor for table %s", tableName)
	}

	reader, err := OpenRowReader(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	if err := spec.ValidateHeader(reader.Header()); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	start := time.Now()
	summary := NewRunSummary(filepath.Base(path), tableName)
	summary.Staging = StagingTable(tableName, postfix)
	recorder := NewRecorder(p.sampleSize)
	repairer := NewRepairer(spec)
	pkIdx := spec.PrimaryKeyIndexes()
	h := spec.Len()

	logger := logging.WithFields(
		"run_id", summary.RunID,
		"file", summary.File,
		"table", StagingTable(tableName, postfix),
	)
	logger.Info("cleaning export file")

	next := func() ([]any, error) {
		for {
			if summary.RowsSeen%contextCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}

			raw, err := reader.Next()
			if err == io.EOF {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			summary.RowsSeen++

			repaired, reshaped := repairer.Repair(raw.Fields)
			if reshaped {
				recorder.Record(CategoryShapeRepaired, raw.Line, raw.Fields, repaired)
			}

			values := make([]any, h)
			nulls := make([]bool, h)
			coerced := false
			for i, col := range spec.Columns {
				cv := CoerceField(col, repaired[i])
				values[i] = cv.Value
				nulls[i] = cv.Null
				if cv.Changed {
					coerced = true
				}
			}
			if coerced {
				recorder.Record(CategoryTypeCoerced, raw.Line, repaired, renderRow(values))
			}

			dropped := false
			for _, pi := range pkIdx {
				if nulls[pi] {
					dropped = true
					break
				}
			}
			if dropped {
				recorder.Record(CategoryDroppedNoPK, raw.Line, repaired, nil)
				continue
			}

			summary.RowsSent++
			return values, nil
		}
	}

	copied, loadErr := p.loader.Load(ctx, tableName, postfix, spec.ColumnNames(), next)

	summary.RowsShapeRepaired = recorder.Count(CategoryShapeRepaired)
	summary.RowsTypeCoerced = recorder.Count(CategoryTypeCoerced)
	summary.RowsDroppedNoPK = recorder.Count(CategoryDroppedNoPK)
	summary.NULBytesStripped = reader.NULBytesStripped()
	summary.Sample = recorder.Sample()
	summary.Duration = time.Since(start)

	if loadErr != nil {
		summary.RowsLoaded = 0
		logger.Error("bulk load failed, transaction rolled back",
			"rows_seen", summary.RowsSeen,
			"error", loadErr,
		)
		return summary, loadErr
	}

	summary.RowsLoaded = copied
	logger.Info("export file loaded",
		"rows_seen", summary.RowsSeen,
		"rows_loaded", summary.RowsLoaded,
		"rows_shape_repaired", summary.RowsShapeRepaired,
		"rows_type_coerced", summary.RowsTypeCoerced,
		"rows_dropped_no_pk", summary.RowsDroppedNoPK,
		"nul_bytes", summary.NULBytesStripped,
		"duration", summary.Duration,
	)
	return summary, nil
}

// renderRow serializes coerced values for an audit snapshot.
func renderRow(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = RenderValue(v)
	}
	return out
}
