// Package verify checks a built database directory against its manifest.
package verify

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rsned/cookdb/internal/cooking/rdb"
)

// BlockSize is the read size used while hashing and scanning files.
const BlockSize = 4096

// DefaultMaxRecordFailures caps the invalid records reported per file.
const DefaultMaxRecordFailures = 100

// ErrMismatch is wrapped by Report.Err when any check failed.
var ErrMismatch = errors.New("database does not match manifest")

// Kind classifies a verification failure.
type Kind int

const (
	KindMissing Kind = iota
	KindUnreadable
	KindUnindexed
	KindSize
	KindHash
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindUnreadable:
		return "unreadable"
	case KindUnindexed:
		return "not in manifest"
	case KindSize:
		return "size mismatch"
	case KindHash:
		return "hash mismatch"
	case KindRecord:
		return "invalid record"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// CritChunk is the Chunk value of failures in the crit bitmap.
const CritChunk = -1

// Failure is one problem found in one file.
type Failure struct {
	Kind     Kind
	Chunk    int64
	File     string
	Offset   int64
	Expected string
	Actual   string
}

func (f Failure) String() string {
	switch f.Kind {
	case KindMissing, KindUnindexed:
		return fmt.Sprintf("ERROR: %s is %s", f.File, f.Kind)
	case KindUnreadable:
		return fmt.Sprintf("ERROR: %s is unreadable: %s", f.File, f.Actual)
	case KindRecord:
		return fmt.Sprintf("ERROR: %s: record at %#x is %s, which is incorrect", f.File, f.Offset, f.Actual)
	default:
		return fmt.Sprintf("ERROR: %s %s: expected=%s, actual=%s", f.File, f.Kind, f.Expected, f.Actual)
	}
}

// Report collects the outcome of a verification run.
type Report struct {
	// Lines holds one line per file checked, crit bitmap first then chunks
	// in id order.
	Lines []string
	// Failures holds every problem found, sorted by chunk, offset and kind.
	Failures []Failure
	Checked  int
	Bytes    int64
}

// OK reports whether no failures were found.
func (r *Report) OK() bool {
	return len(r.Failures) == 0
}

// Err returns nil for a clean report and an error wrapping ErrMismatch otherwise.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%d problems in %d files: %w", len(r.Failures), len(r.FailedFiles()), ErrMismatch)
}

// FailedFiles returns the names of files with at least one failure.
func (r *Report) FailedFiles() []string {
	var names []string
	for _, f := range r.Failures {
		if !slices.Contains(names, f.File) {
			names = append(names, f.File)
		}
	}
	return names
}

// FailedChunks returns the ids of chunks with at least one failure, ascending.
// The crit bitmap is not included.
func (r *Report) FailedChunks() []uint32 {
	var ids []uint32
	for _, f := range r.Failures {
		if f.Chunk == CritChunk {
			continue
		}
		if id := uint32(f.Chunk); !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// CritFailed reports whether the crit bitmap failed.
func (r *Report) CritFailed() bool {
	return slices.ContainsFunc(r.Failures, func(f Failure) bool { return f.Chunk == CritChunk })
}

// Options tunes a verification run.
type Options struct {
	// Workers bounds the number of files checked at once. Zero means GOMAXPROCS.
	Workers int
	// MaxRecordFailures caps the invalid records reported per file.
	// Zero means DefaultMaxRecordFailures.
	MaxRecordFailures int
	Logger            *slog.Logger
}

type fileResult struct {
	line     string
	failures []Failure
	bytes    int64
}

// Verify checks every chunk of m and the crit bitmap inside dir. It never
// stops at the first problem. The returned error is non-nil only when ctx is
// cancelled; mismatches are reported in the Report.
func Verify(ctx context.Context, dir string, m *rdb.Manifest, opts Options) (*Report, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.MaxRecordFailures <= 0 {
		opts.MaxRecordFailures = DefaultMaxRecordFailures
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	results := make([]fileResult, int(m.Meta.ChunkCount)+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	g.Go(func() error {
		results[0] = checkFile(gctx, dir, rdb.CritFileName, CritChunk, m.CritSHA256, m.Meta.CritBytes(), nil)
		return gctx.Err()
	})
	for id := uint32(0); id < m.Meta.ChunkCount; id++ {
		g.Go(func() error {
			name := rdb.ChunkFileName(id)
			idx, ok := m.Chunk(id)
			if !ok {
				f := Failure{Kind: KindUnindexed, Chunk: int64(id), File: name}
				results[id+1] = fileResult{line: f.String(), failures: []Failure{f}}
				return nil
			}
			rc := &recordCheck{first: id == 0, max: opts.MaxRecordFailures}
			results[id+1] = checkFile(gctx, dir, name, int64(id), idx.SHA256, m.Meta.ChunkBytes(id), rc)
			logger.Debug("verified chunk", "chunk", id, "failures", len(results[id+1].failures))
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Checked: len(results)}
	for _, res := range results {
		report.Lines = append(report.Lines, res.line)
		report.Failures = append(report.Failures, res.failures...)
		report.Bytes += res.bytes
	}
	slices.SortStableFunc(report.Failures, func(a, b Failure) int {
		return cmp.Or(
			cmp.Compare(a.Chunk, b.Chunk),
			cmp.Compare(a.Offset, b.Offset),
			cmp.Compare(a.Kind, b.Kind),
		)
	})
	return report, nil
}

// recordCheck validates packed records while a chunk is scanned.
type recordCheck struct {
	// first marks chunk 0, whose leading record is the empty combination.
	first      bool
	max        int
	suppressed int
}

func (rc *recordCheck) scan(block []byte, base int64, file string, chunk int64, out *[]Failure) {
	for i := 0; i+rdb.RecordSize <= len(block); i += rdb.RecordSize {
		off := base + int64(i)
		rec := rdb.DecodeRecord(block[i:])
		var bad bool
		if rc.first && off == 0 {
			bad = rec != 0
		} else {
			bad = !rec.Valid()
		}
		if !bad {
			continue
		}
		if len(*out) >= rc.max {
			rc.suppressed++
			continue
		}
		*out = append(*out, Failure{
			Kind:     KindRecord,
			Chunk:    chunk,
			File:     file,
			Offset:   off,
			Expected: "value <= 120 and price >= 2",
			Actual:   fmt.Sprintf("%#x,%#x", block[i], block[i+1]),
		})
	}
}

// checkFile hashes one file in BlockSize blocks, comparing its size and
// digest, and scans its records when rc is non-nil.
func checkFile(ctx context.Context, dir, name string, chunk int64, wantHash string, wantSize int64, rc *recordCheck) fileResult {
	var res fileResult
	fail := func(f Failure) {
		res.failures = append(res.failures, f)
	}
	finish := func() fileResult {
		if len(res.failures) > 0 {
			lines := make([]string, 0, len(res.failures))
			for _, f := range res.failures {
				lines = append(lines, f.String())
			}
			res.line = strings.Join(lines, "\n")
		}
		return res
	}

	f, err := os.Open(filepath.Join(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		fail(Failure{Kind: KindMissing, Chunk: chunk, File: name})
		return finish()
	}
	if err != nil {
		fail(Failure{Kind: KindUnreadable, Chunk: chunk, File: name, Actual: err.Error()})
		return finish()
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		fail(Failure{Kind: KindUnreadable, Chunk: chunk, File: name, Actual: err.Error()})
		return finish()
	}
	if info.Size() != wantSize {
		fail(Failure{
			Kind: KindSize, Chunk: chunk, File: name,
			Expected: fmt.Sprint(wantSize), Actual: fmt.Sprint(info.Size()),
		})
	}

	h := sha256.New()
	buf := make([]byte, BlockSize)
	var records []Failure
	var off int64
	for {
		if ctx.Err() != nil {
			return res
		}
		n, err := io.ReadFull(f, buf)
		block := buf[:n]
		h.Write(block)
		if rc != nil {
			rc.scan(block, off, name, chunk, &records)
		}
		off += int64(n)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			fail(Failure{Kind: KindUnreadable, Chunk: chunk, File: name, Offset: off, Actual: err.Error()})
			return finish()
		}
	}
	res.bytes = off
	res.failures = append(res.failures, records...)

	actual := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(actual, wantHash) {
		fail(Failure{
			Kind: KindHash, Chunk: chunk, File: name,
			Expected: strings.ToLower(wantHash), Actual: actual,
		})
	}

	out := finish()
	if rc != nil && rc.suppressed > 0 {
		out.line += fmt.Sprintf("\nERROR: %s: %d more invalid records not shown", name, rc.suppressed)
	}
	if out.line == "" {
		out.line = fmt.Sprintf("%s: %s", name, actual)
	}
	return out
}
