package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rsned/cookdb/internal/cooking/verify"
)

func runVerify(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, verbose := newFlagSet("verify", stderr)
	outDir := fs.String("out", "", "Database directory")
	dbPath := fs.String("db", "", "Read the manifest from this SQLite database")
	manifestPath := fs.String("manifest", "", "Read the manifest from this YAML file (default DIR/index.yaml)")
	workers := fs.Int("workers", 0, "Files checked in parallel (default GOMAXPROCS)")
	maxRecords := fs.Int("max-record-failures", verify.DefaultMaxRecordFailures, "Invalid records reported per file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required(fs, "out"); err != nil {
		return err
	}
	if *dbPath != "" && *manifestPath != "" {
		fmt.Fprintln(stderr, "-db and -manifest are mutually exclusive")
		return errUsage
	}
	logger := newLogger(stderr, *verbose)

	database, err := openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	if database != nil {
		defer func() { _ = database.Close() }()
	}
	m, err := loadManifest(ctx, database, *manifestPath, *outDir)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}

	started := time.Now()
	report, err := verify.Verify(ctx, *outDir, m, verify.Options{
		Workers:           *workers,
		MaxRecordFailures: *maxRecords,
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	printReport(stdout, report)
	logger.Info("verify finished",
		"files", report.Checked,
		"size", humanize.IBytes(uint64(report.Bytes)),
		"failures", len(report.Failures),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return report.Err()
}

// printReport writes one line per file and then, when anything failed, the
// sorted list of failures.
func printReport(w io.Writer, report *verify.Report) {
	for _, line := range report.Lines {
		fmt.Fprintln(w, line)
	}
	if report.OK() {
		fmt.Fprintf(w, "OK: %d files verified\n", report.Checked)
		return
	}
	fmt.Fprintf(w, "\n%d failures in %d files:\n", len(report.Failures), len(report.FailedFiles()))
	for _, f := range report.Failures {
		fmt.Fprintf(w, "  %s\n", f)
	}
}
