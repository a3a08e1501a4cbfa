// Package builder enumerates every ingredient combination, resolves it, and
// writes the chunked record database and crit bitmap.
package builder

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rsned/cookdb/internal/cooking/cook"
	"github.com/rsned/cookdb/internal/cooking/multichoose"
	"github.com/rsned/cookdb/internal/cooking/rdb"
	"github.com/rsned/cookdb/pkg/cooking"
)

// DefaultChunkSize is the number of records per chunk file.
const DefaultChunkSize = 409600

// Config controls a build.
type Config struct {
	OutputDir string
	ChunkSize uint32
	// Workers bounds the number of chunks built at once. Zero means GOMAXPROCS.
	Workers int
	// Chunks restricts the build to these chunk ids. Nil builds every chunk.
	Chunks []uint32
	// ProgressInterval is the minimum time between progress lines.
	ProgressInterval time.Duration
	Logger           *slog.Logger
}

// ChunkError reports an I/O failure confined to one chunk.
type ChunkError struct {
	Chunk uint32
	Op    string
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %s: %v", e.Chunk, e.Op, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Result summarizes a finished build.
type Result struct {
	Meta rdb.Meta
	// Chunks holds the index of every chunk built, ordered by chunk id.
	Chunks []cooking.ChunkIndex
	// Failed lists chunks whose files could not be written.
	Failed     []uint32
	CritSHA256 string
	Records    uint64
	Elapsed    time.Duration
}

// Builder writes a database for one resolver.
type Builder struct {
	resolver *cook.Resolver
	table    *multichoose.Table
	meta     rdb.Meta
	cfg      Config
	logger   *slog.Logger
}

// New validates cfg and returns a Builder.
func New(resolver *cook.Resolver, cfg Config) (*Builder, error) {
	if cfg.OutputDir == "" {
		return nil, errors.New("output directory is required")
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkSize%8 != 0 {
		return nil, fmt.Errorf("chunk size %d: %w", cfg.ChunkSize, rdb.ErrChunkSize)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	table, err := multichoose.NewChecked(resolver.Catalog().NumGroups())
	if err != nil {
		return nil, err
	}
	meta, err := rdb.NewMeta(table.Total(), cfg.ChunkSize)
	if err != nil {
		return nil, err
	}
	return &Builder{
		resolver: resolver,
		table:    table,
		meta:     meta,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Meta returns the chunk layout the builder writes.
func (b *Builder) Meta() rdb.Meta {
	return b.meta
}

// Build writes the configured chunks and the crit bitmap. A chunk that fails
// with an I/O error is reported in Result.Failed and in the returned error;
// the remaining chunks are still built. A catalog error aborts the build.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	started := time.Now()
	meta := b.Meta()

	chunks, err := b.selectChunks(meta)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(b.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	crit, err := os.OpenFile(rdb.CritPath(b.cfg.OutputDir), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening crit bitmap: %w", err)
	}
	defer func() { _ = crit.Close() }()
	if err := crit.Truncate(meta.CritBytes()); err != nil {
		return nil, fmt.Errorf("sizing crit bitmap: %w", err)
	}

	b.logger.Info("starting build",
		"groups", b.table.NumGroups(),
		"records", humanize.Comma(int64(meta.Total)),
		"chunks", len(chunks),
		"chunk_size", humanize.Comma(int64(meta.ChunkSize)),
		"workers", b.cfg.Workers,
	)

	var (
		mu      sync.Mutex
		indexes = make([]cooking.ChunkIndex, 0, len(chunks))
		failed  []*ChunkError
		done    atomic.Int64
		records atomic.Uint64
	)
	progress := rate.NewLimiter(rate.Every(b.cfg.ProgressInterval), 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)
	for _, id := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			idx, err := b.buildChunk(gctx, meta, id, crit)
			var ce *ChunkError
			switch {
			case errors.As(err, &ce):
				b.logger.Error("chunk failed", "chunk", id, "error", err)
				mu.Lock()
				failed = append(failed, ce)
				mu.Unlock()
				return nil
			case err != nil:
				return err
			}

			mu.Lock()
			indexes = append(indexes, idx)
			mu.Unlock()
			n := records.Add(meta.Records(id))
			finished := done.Add(1)
			b.logger.Debug("chunk written", "chunk", id, "sha256", idx.SHA256)
			if progress.Allow() {
				elapsed := time.Since(started)
				b.logger.Info("progress",
					"chunks", fmt.Sprintf("%d/%d", finished, len(chunks)),
					"records", humanize.Comma(int64(n)),
					"rate", humanize.SIWithDigits(float64(n)/elapsed.Seconds(), 1, "rec/s"),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(indexes, func(a, b cooking.ChunkIndex) int {
		return cmp.Compare(a.Chunk, b.Chunk)
	})
	res := &Result{
		Meta:    meta,
		Chunks:  indexes,
		Records: records.Load(),
	}

	if err := crit.Sync(); err != nil {
		return nil, fmt.Errorf("syncing crit bitmap: %w", err)
	}
	res.CritSHA256, _, err = rdb.HashFile(crit.Name())
	if err != nil {
		return nil, fmt.Errorf("hashing crit bitmap: %w", err)
	}

	res.Elapsed = time.Since(started)
	slices.SortFunc(failed, func(a, b *ChunkError) int { return cmp.Compare(a.Chunk, b.Chunk) })
	errs := make([]error, 0, len(failed))
	for _, ce := range failed {
		res.Failed = append(res.Failed, ce.Chunk)
		errs = append(errs, ce)
	}

	b.logger.Info("build finished",
		"records", humanize.Comma(int64(res.Records)),
		"chunks", len(res.Chunks),
		"failed", len(res.Failed),
		"size", humanize.IBytes(uint64(res.Records)*rdb.RecordSize),
		"elapsed", res.Elapsed.Round(time.Millisecond),
	)
	return res, errors.Join(errs...)
}

func (b *Builder) selectChunks(meta rdb.Meta) ([]uint32, error) {
	if b.cfg.Chunks == nil {
		all := make([]uint32, meta.ChunkCount)
		for i := range all {
			all[i] = uint32(i)
		}
		return all, nil
	}
	chunks := slices.Clone(b.cfg.Chunks)
	slices.Sort(chunks)
	chunks = slices.Compact(chunks)
	for _, id := range chunks {
		if id >= meta.ChunkCount {
			return nil, fmt.Errorf("chunk %d beyond %d chunks", id, meta.ChunkCount)
		}
	}
	return chunks, nil
}

// buildChunk resolves every rank of one chunk, writes its file, and stores its
// bytes of the crit bitmap. Only file errors come back as *ChunkError.
func (b *Builder) buildChunk(ctx context.Context, meta rdb.Meta, id uint32, crit *os.File) (cooking.ChunkIndex, error) {
	start, end := meta.Range(id)
	n := end - start
	data := make([]byte, n*rdb.RecordSize)
	bits := make([]byte, (n+7)/8)
	idx := rdb.NewIndexBuilder(id)

	combo := b.table.Unrank(start)
	ingredients := make([]cooking.GroupID, 0, multichoose.Slots)
	for i := uint64(0); i < n; i++ {
		if i > 0 {
			b.table.Next(&combo)
		}
		if i%65536 == 0 && ctx.Err() != nil {
			return cooking.ChunkIndex{}, ctx.Err()
		}

		var rec rdb.Record
		var differs bool
		if !combo.IsEmpty() {
			res, err := b.resolver.Resolve(combo.Ingredients(ingredients[:0]))
			if err != nil {
				return cooking.ChunkIndex{}, fmt.Errorf("resolving rank %d: %w", start+i, err)
			}
			rec = rdb.RecordOf(res)
			differs = res.CritDiffers
		}

		rec.Put(data[i*rdb.RecordSize:])
		if differs {
			bits[i/8] |= 1 << (i % 8)
		}
		idx.Add(rec, differs)
	}

	if err := writeChunk(rdb.ChunkPath(b.cfg.OutputDir, id), data); err != nil {
		return cooking.ChunkIndex{}, &ChunkError{Chunk: id, Op: "writing chunk file", Err: err}
	}
	// chunk sizes are multiples of 8 so every chunk owns whole bitmap bytes
	if _, err := crit.WriteAt(bits, int64(start/8)); err != nil {
		return cooking.ChunkIndex{}, &ChunkError{Chunk: id, Op: "writing crit bitmap", Err: err}
	}
	return idx.Finish(data), nil
}

// writeChunk writes data to a temporary file next to path and renames it
// into place.
func writeChunk(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
