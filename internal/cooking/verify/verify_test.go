package verify

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/rsned/cookdb/internal/cooking/builder"
	"github.com/rsned/cookdb/internal/cooking/catalog"
	"github.com/rsned/cookdb/internal/cooking/cook"
	"github.com/rsned/cookdb/internal/cooking/rdb"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// buildFixture writes a database for the test catalog and returns its
// directory and manifest.
func buildFixture(t *testing.T) (string, *rdb.Manifest) {
	t.Helper()
	cat, err := catalog.Load(filepath.Join("..", "catalog", "testdata", "catalog.json"))
	if err != nil {
		t.Fatalf("loading catalog: %v", err)
	}
	dir := t.TempDir()
	b, err := builder.New(cook.New(cat), builder.Config{
		OutputDir: dir,
		ChunkSize: 64,
		Workers:   2,
		Logger:    quiet,
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return dir, &rdb.Manifest{
		Meta:       res.Meta,
		NumGroups:  cat.NumGroups(),
		Chunks:     res.Chunks,
		CritSHA256: res.CritSHA256,
	}
}

func verifyDir(t *testing.T, dir string, m *rdb.Manifest, opts Options) *Report {
	t.Helper()
	opts.Logger = quiet
	report, err := Verify(context.Background(), dir, m, opts)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	return report
}

// patch overwrites bytes of a file at off.
func patch(t *testing.T, path string, off int64, b ...byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteAt(b, off); err != nil {
		t.Fatal(err)
	}
}

func TestVerifyClean(t *testing.T) {
	dir, m := buildFixture(t)
	report := verifyDir(t, dir, m, Options{})
	if !report.OK() || report.Err() != nil {
		t.Fatalf("clean database failed: %v", report.Failures)
	}
	if report.Checked != 14 || len(report.Lines) != 14 {
		t.Errorf("checked %d files, %d lines, want 14", report.Checked, len(report.Lines))
	}
	if !strings.HasPrefix(report.Lines[0], "crit.db: ") {
		t.Errorf("first line = %q", report.Lines[0])
	}
	if report.Bytes != 792*2+99 {
		t.Errorf("Bytes = %d", report.Bytes)
	}
}

func TestVerifySingleHashMismatch(t *testing.T) {
	dir, m := buildFixture(t)
	path := rdb.ChunkPath(dir, 5)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// nudge the value of one record while keeping it valid
	const off = 10
	rec := rdb.DecodeRecord(data[off:])
	lo := data[off+1]
	if rec.Value() > 0 {
		lo--
	} else {
		lo++
	}
	patch(t, path, off+1, lo)

	report := verifyDir(t, dir, m, Options{})
	if len(report.Failures) != 1 {
		t.Fatalf("failures = %v, want exactly one", report.Failures)
	}
	f := report.Failures[0]
	if f.Kind != KindHash || f.Chunk != 5 || f.File != "chunk_5.rdb" {
		t.Errorf("failure = %+v", f)
	}
	if f.Expected != m.Chunks[5].SHA256 || f.Actual == f.Expected {
		t.Errorf("expected/actual = %s/%s", f.Expected, f.Actual)
	}
	if !slices.Equal(report.FailedChunks(), []uint32{5}) {
		t.Errorf("FailedChunks = %v", report.FailedChunks())
	}
	if report.Err() == nil {
		t.Error("Err() should report the mismatch")
	}
}

func TestVerifyCollectsEverything(t *testing.T) {
	dir, m := buildFixture(t)

	// invalid record in chunk 1
	patch(t, rdb.ChunkPath(dir, 1), 4, 0x00, 0x7F)
	// non-zero empty combination record in chunk 0
	patch(t, rdb.ChunkPath(dir, 0), 0, 0x01, 0x02)
	// missing chunk 7 and crit bitmap
	if err := os.Remove(rdb.ChunkPath(dir, 7)); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(rdb.CritPath(dir)); err != nil {
		t.Fatal(err)
	}
	// truncated chunk 9
	if err := os.Truncate(rdb.ChunkPath(dir, 9), 20); err != nil {
		t.Fatal(err)
	}

	report := verifyDir(t, dir, m, Options{Workers: 3})

	type key struct {
		kind   Kind
		chunk  int64
		offset int64
	}
	var got []key
	for _, f := range report.Failures {
		got = append(got, key{f.Kind, f.Chunk, f.Offset})
	}
	want := []key{
		{KindMissing, CritChunk, 0},
		{KindHash, 0, 0},
		{KindRecord, 0, 0},
		{KindHash, 1, 0},
		{KindRecord, 1, 4},
		{KindMissing, 7, 0},
		{KindSize, 9, 0},
		{KindHash, 9, 0},
	}
	if !slices.Equal(got, want) {
		t.Errorf("failures:\n got %v\nwant %v", got, want)
	}
	if !report.CritFailed() {
		t.Error("CritFailed should be true")
	}
	if !slices.Equal(report.FailedChunks(), []uint32{0, 1, 7, 9}) {
		t.Errorf("FailedChunks = %v", report.FailedChunks())
	}
	if report.Checked != 14 {
		t.Errorf("Checked = %d, want 14", report.Checked)
	}
}

func TestVerifyUnindexedChunk(t *testing.T) {
	dir, m := buildFixture(t)
	m.Chunks = slices.Delete(slices.Clone(m.Chunks), 2, 3)

	report := verifyDir(t, dir, m, Options{})
	if len(report.Failures) != 1 || report.Failures[0].Kind != KindUnindexed {
		t.Fatalf("failures = %v", report.Failures)
	}
	if !slices.Equal(report.FailedChunks(), []uint32{2}) {
		t.Errorf("FailedChunks = %v", report.FailedChunks())
	}
}

func TestVerifyRecordFailureCap(t *testing.T) {
	dir, m := buildFixture(t)
	bad := make([]byte, 64*rdb.RecordSize)
	for i := range bad {
		bad[i] = 0xFF
	}
	if err := os.WriteFile(rdb.ChunkPath(dir, 4), bad, 0o644); err != nil {
		t.Fatal(err)
	}

	report := verifyDir(t, dir, m, Options{MaxRecordFailures: 2})
	var records int
	for _, f := range report.Failures {
		if f.Kind == KindRecord {
			records++
		}
	}
	if records != 2 {
		t.Errorf("record failures = %d, want 2", records)
	}
	if !strings.Contains(report.Lines[5], "62 more invalid records") {
		t.Errorf("chunk 4 line = %q", report.Lines[5])
	}
}

func TestFailureString(t *testing.T) {
	tests := []struct {
		f    Failure
		want string
	}{
		{Failure{Kind: KindMissing, File: "chunk_3.rdb"}, "ERROR: chunk_3.rdb is missing"},
		{Failure{Kind: KindHash, File: "crit.db", Expected: "aa", Actual: "bb"}, "ERROR: crit.db hash mismatch: expected=aa, actual=bb"},
		{Failure{Kind: KindRecord, File: "chunk_1.rdb", Offset: 0x1c, Actual: "0x0,0x7f"}, "ERROR: chunk_1.rdb: record at 0x1c is 0x0,0x7f, which is incorrect"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
