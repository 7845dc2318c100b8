// Command eoirload cleans EOIR FOIA database exports and bulk-loads them
// into Postgres staging tables.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/eoirdata/eoirload/internal/admin"
	"github.com/eoirdata/eoirload/internal/clean"
	"github.com/eoirdata/eoirload/internal/config"
	"github.com/eoirdata/eoirload/internal/logging"
	"github.com/eoirdata/eoirload/internal/metadata"
)

// errDirty marks a run that loaded but dropped rows or saw the database
// acknowledge fewer rows than were sent. It maps to exit code 2 so batch
// callers can tell a dirty load from a hard failure.
var errDirty = errors.New("load completed with dropped or unacknowledged rows")

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, errDirty) {
		return 2
	}
	return 1
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "eoirload",
		Short:         "Clean and bulk-load EOIR FOIA exports into Postgres",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(cleanCmd(), dbCmd())
	return root
}

func dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Staging table management",
	}

	createCmd := &cobra.Command{
		Use:   "create <postfix>",
		Short: "Create staging tables for a postfix from the table descriptors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			mgr := admin.New(app.pool, app.meta)
			if err := mgr.CreateAll(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Created %d staging tables for postfix %s\n", len(app.meta.Tables()), args[0])
			return nil
		},
	}

	var yes bool
	dropCmd := &cobra.Command{
		Use:   "drop <postfix>",
		Short: "Drop every staging table for a postfix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("dropping postfix %s removes loaded data; rerun with --yes", args[0])
			}

			app, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			mgr := admin.New(app.pool, app.meta)
			if err := mgr.DropAll(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Dropped staging tables for postfix %s\n", args[0])
			return nil
		},
	}
	dropCmd.Flags().BoolVar(&yes, "yes", false, "confirm the drop")

	cmd.AddCommand(createCmd, dropCmd)
	return cmd
}

func cleanCmd() *cobra.Command {
	var postfix string
	var table string
	var sampleSize int

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "CSV cleaning operations",
	}

	fileCmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Clean a single export file and load it to the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			summary, err := app.runOne(cmd.Context(), args[0], table,
				postfixOr(postfix, app.cfg), sampleSizeOr(sampleSize, app.cfg))
			if summary != nil {
				printSummary(summary)
			}
			if err != nil {
				return err
			}
			if summary.RowsDroppedNoPK > 0 || summary.Mismatch() {
				return errDirty
			}
			return nil
		},
	}
	fileCmd.Flags().StringVar(&table, "table", "", "destination table (default: resolved from file name)")

	allCmd := &cobra.Command{
		Use:   "all <dir>",
		Short: "Clean every known export file in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			return app.runAll(cmd.Context(), args[0],
				postfixOr(postfix, app.cfg), sampleSizeOr(sampleSize, app.cfg))
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify <dir>",
		Short: "Reconcile staging row counts against the export's Count.txt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			verifier := clean.NewVerifier(app.pool, app.meta)
			report, err := verifier.Verify(cmd.Context(),
				filepath.Join(args[0], "Count.txt"), postfixOr(postfix, app.cfg))
			if err != nil {
				return err
			}
			printVerifyReport(report)
			if report.Mismatches() > 0 {
				return errDirty
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&postfix, "postfix", "", "staging table postfix, e.g. 06_25 (default: EOIR_TABLE_POSTFIX)")
	cmd.PersistentFlags().IntVar(&sampleSize, "sample-size", -1, "audit sample cap, 0 disables sampling (default: EOIR_AUDIT_SAMPLE_SIZE)")
	cmd.AddCommand(fileCmd, allCmd, verifyCmd)
	return cmd
}

func postfixOr(flag string, cfg *config.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.Clean.Postfix
}

// sampleSizeOr resolves the audit sample cap. The flag default is -1 so an
// explicit --sample-size=0 still means "counters only".
func sampleSizeOr(flag int, cfg *config.Config) int {
	if flag >= 0 {
		return flag
	}
	return cfg.Clean.SampleSize
}

// app wires config, metadata, and the database pool for one invocation.
type app struct {
	cfg  *config.Config
	meta *metadata.Store
	pool *pgxpool.Pool
}

func setup(ctx context.Context) (*app, error) {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	meta, err := metadata.Load(cfg.Clean.MetadataDir)
	if err != nil {
		return nil, fmt.Errorf("load table metadata: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &app{cfg: cfg, meta: meta, pool: pool}, nil
}

func (a *app) close() { a.pool.Close() }

// runOne cleans a single file. When table is empty it is resolved from the
// export file name.
func (a *app) runOne(ctx context.Context, path, table, postfix string, sampleSize int) (*clean.RunSummary, error) {
	pipeline := clean.New(a.meta, a.pool, clean.Options{SampleSize: sampleSize})
	if table == "" {
		return pipeline.RunFile(ctx, path, postfix)
	}
	return pipeline.Run(ctx, path, table, postfix)
}

// runAll cleans every file in dir with a known descriptor. Files run in
// parallel up to the configured limit, each with its own pipeline instance
// and its own transaction.
func (a *app) runAll(ctx context.Context, dir, postfix string, sampleSize int) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read export directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := a.meta.ForFile(entry.Name()); ok {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return fmt.Errorf("no known export files in %s", dir)
	}

	var mu sync.Mutex
	var summaries []*clean.RunSummary
	failed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Clean.MaxConcurrent)
	for _, path := range files {
		path := path
		g.Go(func() error {
			pipeline := clean.New(a.meta, a.pool, clean.Options{SampleSize: sampleSize})
			summary, err := pipeline.RunFile(gctx, path, postfix)
			mu.Lock()
			defer mu.Unlock()
			if summary != nil {
				summaries = append(summaries, summary)
			}
			if err != nil {
				failed++
				slog.Error("file failed", "file", filepath.Base(path), "error", err)
			}
			// A failed file rolls back alone; keep cleaning the rest.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	dirty := false
	for _, s := range summaries {
		printSummary(s)
		if s.RowsDroppedNoPK > 0 || s.Mismatch() {
			dirty = true
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	if dirty {
		return errDirty
	}
	return nil
}

func printSummary(s *clean.RunSummary) {
	fmt.Printf("Copied %d of %d rows from %s to %s\n", s.RowsLoaded, s.RowsSeen, s.File, s.Staging)
	if s.RowsDroppedNoPK > 0 {
		fmt.Printf("There were %d rows with no primary keys\n", s.RowsDroppedNoPK)
	}
	if s.RowsShapeRepaired > 0 || s.RowsTypeCoerced > 0 {
		fmt.Printf("Repaired %d row shapes, nulled values in %d rows\n",
			s.RowsShapeRepaired, s.RowsTypeCoerced)
	}
	if s.Mismatch() {
		fmt.Printf("WARNING: sent %d rows but database reported %d\n", s.RowsSent, s.RowsLoaded)
	}
	if len(s.Sample) > 0 {
		fmt.Printf("Audit sample retained %d entries (run %s)\n", len(s.Sample), s.RunID)
	}
	fmt.Println(strings.Repeat("-", 40))
}

func printVerifyReport(r *clean.VerifyReport) {
	fmt.Printf("%-30s %12s %12s  %s\n", "File", "Expected", "Actual", "Status")
	for _, res := range r.Results {
		status := "match"
		switch {
		case res.Missing:
			status = "table missing"
		case res.Actual != res.Expected:
			status = fmt.Sprintf("%+d", res.Actual-res.Expected)
		}
		fmt.Printf("%-30s %12d %12d  %s\n", res.File, res.Expected, res.Actual, status)
	}
	fmt.Printf("Compared %d files, %d mismatches\n", len(r.Results), r.Mismatches())
}
