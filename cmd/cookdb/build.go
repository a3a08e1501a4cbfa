package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rsned/cookdb/internal/cooking/builder"
	"github.com/rsned/cookdb/internal/cooking/catalog"
	"github.com/rsned/cookdb/internal/cooking/cook"
	"github.com/rsned/cookdb/internal/cooking/db"
	"github.com/rsned/cookdb/internal/cooking/multichoose"
	"github.com/rsned/cookdb/internal/cooking/rdb"
	"github.com/rsned/cookdb/internal/cooking/sync"
	"github.com/rsned/cookdb/internal/cooking/verify"
	"github.com/rsned/cookdb/pkg/cooking"
)

func runBuild(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags, verbose := newFlagSet("build", stderr)
	catalogPath := flags.String("catalog", "", "Path to the catalog JSON file")
	outDir := flags.String("out", "", "Output directory")
	chunkSize := flags.Uint("chunk-size", builder.DefaultChunkSize, "Records per chunk (multiple of 8)")
	workers := flags.Int("workers", 0, "Chunks built in parallel (default GOMAXPROCS)")
	dbPath := flags.String("db", "", "Record the manifest and build history in this SQLite database")
	missing := flags.Bool("missing", false, "Rebuild only the chunks that fail verification")
	progress := flags.Duration("progress", 0, "Minimum time between progress lines (default 5s)")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if err := required(flags, "catalog", "out"); err != nil {
		return err
	}
	logger := newLogger(stderr, *verbose)

	cat, err := catalog.Load(*catalogPath)
	if err != nil {
		return err
	}
	for _, w := range cat.Warnings {
		logger.Warn("catalog", "warning", w)
	}

	meta, err := rdb.NewMeta(multichoose.New(cat.NumGroups()).Total(), uint32(*chunkSize))
	if err != nil {
		return err
	}

	database, err := openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	if database != nil {
		defer func() { _ = database.Close() }()
	}

	cfg := builder.Config{
		OutputDir:        *outDir,
		ChunkSize:        meta.ChunkSize,
		Workers:          *workers,
		ProgressInterval: *progress,
		Logger:           logger,
	}

	var prev *rdb.Manifest
	if *missing {
		prev, cfg.Chunks, err = planRecovery(ctx, database, *outDir, cat, meta, *workers, logger)
		if err != nil {
			return err
		}
		if prev != nil && len(cfg.Chunks) == 0 {
			fmt.Fprintln(stdout, "database verified, nothing to rebuild")
			return nil
		}
	}

	b, err := builder.New(cook.New(cat), cfg)
	if err != nil {
		return err
	}

	var buildID string
	if database != nil {
		info, err := db.NewBuildStore(database).CreateBuild(ctx, cooking.BuildInfo{
			CatalogDigest: cat.Digest,
			NumGroups:     cat.NumGroups(),
			ChunkSize:     meta.ChunkSize,
			ChunkCount:    meta.ChunkCount,
			TotalRecords:  meta.Total,
			Workers:       *workers,
		})
		if err != nil {
			return err
		}
		buildID = info.ID
	}

	res, buildErr := b.Build(ctx)
	if res == nil {
		// nothing usable was written; leave the previous manifest alone
		if database != nil {
			if err := db.NewBuildStore(database).FinishBuild(context.WithoutCancel(ctx), buildID, cooking.BuildFailed, "", 0); err != nil {
				logger.Error("recording build failure", "error", err)
			}
		}
		return buildErr
	}

	m := &rdb.Manifest{
		Meta:          meta,
		NumGroups:     cat.NumGroups(),
		CatalogDigest: cat.Digest,
		Chunks:        mergeChunks(prev, res),
		CritSHA256:    res.CritSHA256,
	}
	if err := saveManifest(ctx, database, buildID, *outDir, m); err != nil {
		return err
	}
	if database != nil {
		status := cooking.BuildComplete
		if len(res.Failed) > 0 {
			status = cooking.BuildFailed
		}
		if err := db.NewBuildStore(database).FinishBuild(ctx, buildID, status, res.CritSHA256, len(res.Failed)); err != nil {
			return err
		}
	}

	fmt.Fprintf(stdout, "built %d chunks (%s records, %s) in %s\n",
		len(res.Chunks),
		humanize.Comma(int64(res.Records)),
		humanize.IBytes(uint64(res.Records)*rdb.RecordSize),
		res.Elapsed.Round(time.Millisecond),
	)
	fmt.Fprintf(stdout, "crit.db: %s\n", res.CritSHA256)
	if len(res.Failed) > 0 {
		fmt.Fprintf(stdout, "%d chunks failed: %v\nrerun with -missing to retry them\n", len(res.Failed), res.Failed)
	}
	return buildErr
}

// planRecovery decides which chunks a -missing build must write. It returns
// the previous manifest and the failed chunk ids, or a nil manifest when the
// whole database has to be rebuilt.
func planRecovery(ctx context.Context, database *db.DB, dir string, cat *catalog.Catalog, meta rdb.Meta, workers int, logger *slog.Logger) (*rdb.Manifest, []uint32, error) {
	prev, err := loadManifest(ctx, database, "", dir)
	switch {
	case errors.Is(err, db.ErrNoManifest), errors.Is(err, fs.ErrNotExist):
		logger.Info("no previous manifest, building everything")
		return nil, nil, nil
	case err != nil:
		return nil, nil, fmt.Errorf("loading manifest: %w", err)
	}
	if prev.Meta != meta || prev.NumGroups != cat.NumGroups() {
		logger.Info("chunk layout changed, building everything",
			"old_chunk_size", prev.Meta.ChunkSize, "new_chunk_size", meta.ChunkSize)
		return nil, nil, nil
	}
	if prev.CatalogDigest != "" && prev.CatalogDigest != cat.Digest {
		logger.Info("catalog changed, building everything")
		return nil, nil, nil
	}

	report, err := verify.Verify(ctx, dir, prev, verify.Options{Workers: workers, Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	for _, f := range report.Failures {
		logger.Debug("verify", "failure", f.String())
	}
	if report.CritFailed() {
		logger.Info("crit bitmap failed verification, building everything")
		return nil, nil, nil
	}
	failed := report.FailedChunks()
	logger.Info("recovery plan", "rebuild", len(failed), "of", meta.ChunkCount)
	return prev, failed, nil
}

// mergeChunks combines the index of a previous build with the chunks just
// written. Chunks that failed this time are dropped so the next -missing run
// picks them up again.
func mergeChunks(prev *rdb.Manifest, res *builder.Result) []cooking.ChunkIndex {
	if prev == nil {
		return res.Chunks
	}
	byID := make(map[uint32]cooking.ChunkIndex, len(prev.Chunks)+len(res.Chunks))
	for _, c := range prev.Chunks {
		byID[c.Chunk] = c
	}
	for _, id := range res.Failed {
		delete(byID, id)
	}
	for _, c := range res.Chunks {
		byID[c.Chunk] = c
	}
	out := make([]cooking.ChunkIndex, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b cooking.ChunkIndex) int {
		return cmp.Compare(a.Chunk, b.Chunk)
	})
	return out
}

// saveManifest writes index.yaml next to the chunks and, when a store is
// open, records the manifest there too.
func saveManifest(ctx context.Context, database *db.DB, buildID, dir string, m *rdb.Manifest) error {
	if database != nil {
		if err := db.SaveManifest(ctx, database, buildID, m); err != nil {
			return fmt.Errorf("saving manifest: %w", err)
		}
	}
	if err := sync.WriteManifestFile(rdb.IndexPath(dir), m); err != nil {
		return fmt.Errorf("writing %s: %w", rdb.IndexFileName, err)
	}
	return nil
}
