package db

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/rsned/cookdb/internal/cooking/rdb"
	"github.com/rsned/cookdb/pkg/cooking"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := OpenAndInit(context.Background(), filepath.Join(t.TempDir(), "cookdb.db"))
	if err != nil {
		t.Fatalf("OpenAndInit: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func sampleChunks(n int) []cooking.ChunkIndex {
	chunks := make([]cooking.ChunkIndex, n)
	for i := range chunks {
		chunks[i] = cooking.ChunkIndex{
			Chunk:               uint32(i),
			MinValue:            i,
			MaxValue:            100 + i,
			MaxValueCrit:        112 + i%8,
			IncludesModifier:    cooking.ModAll,
			AllIncludesModifier: cooking.ModAttackUp,
			MinPrice:            2,
			MaxPrice:            uint32(300 + i),
			SHA256:              rdb.HashBytes([]byte{byte(i)}),
		}
	}
	return chunks
}

func TestInMemory(t *testing.T) {
	ctx := context.Background()
	database, err := OpenAndInit(ctx, ":memory:")
	if err != nil {
		t.Fatalf("OpenAndInit: %v", err)
	}
	defer func() { _ = database.Close() }()

	v, err := database.GetMetadata(ctx, KeySchemaVersion)
	if err != nil || v != "1" {
		t.Errorf("schema version = %q, %v", v, err)
	}
	// a second init over the same schema is a no-op
	if err := database.InitSchema(ctx); err != nil {
		t.Errorf("InitSchema again: %v", err)
	}
}

func TestMetadata(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	if v, err := database.GetMetadata(ctx, "missing"); err != nil || v != "" {
		t.Errorf("GetMetadata(missing) = %q, %v", v, err)
	}
	for _, v := range []string{"a", "b"} {
		if err := database.SetMetadata(ctx, "k", v); err != nil {
			t.Fatal(err)
		}
	}
	if v, _ := database.GetMetadata(ctx, "k"); v != "b" {
		t.Errorf("GetMetadata(k) = %q, want b", v)
	}

	if err := database.SetMetadata(ctx, KeySchemaVersion, "99"); err != nil {
		t.Fatal(err)
	}
	if err := database.InitSchema(ctx); err == nil {
		t.Error("expected error for a newer schema version")
	}
}

func TestChunkStore(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	store := NewChunkStore(database)

	got, err := store.GetChunk(ctx, 0)
	if err != nil || got != nil {
		t.Fatalf("GetChunk on empty store = %v, %v", got, err)
	}

	chunks := sampleChunks(5)
	if err := store.UpsertChunks(ctx, "", chunks); err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}
	list, err := store.ListChunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(list, chunks) {
		t.Errorf("ListChunks:\n got %+v\nwant %+v", list, chunks)
	}

	updated := chunks[3]
	updated.SHA256 = rdb.HashBytes([]byte("changed"))
	if err := store.UpsertChunks(ctx, "", []cooking.ChunkIndex{updated}); err != nil {
		t.Fatal(err)
	}
	got, err = store.GetChunk(ctx, 3)
	if err != nil || got == nil || *got != updated {
		t.Errorf("GetChunk(3) = %+v, %v", got, err)
	}
	if n, _ := store.CountChunks(ctx); n != 5 {
		t.Errorf("CountChunks = %d, want 5", n)
	}

	if err := store.DeleteChunksFrom(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountChunks(ctx); n != 3 {
		t.Errorf("CountChunks after trim = %d, want 3", n)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountChunks(ctx); n != 0 {
		t.Errorf("CountChunks after clear = %d", n)
	}
}

func TestBuildStore(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	store := NewBuildStore(database)

	if b, err := store.LatestBuild(ctx); err != nil || b != nil {
		t.Fatalf("LatestBuild on empty store = %v, %v", b, err)
	}

	first, err := store.CreateBuild(ctx, cooking.BuildInfo{
		CatalogDigest: "abc",
		NumGroups:     8,
		ChunkSize:     64,
		ChunkCount:    13,
		TotalRecords:  792,
		Workers:       4,
	})
	if err != nil {
		t.Fatalf("CreateBuild: %v", err)
	}
	if first.ID == "" || first.Status != cooking.BuildRunning || first.StartedAt == "" {
		t.Errorf("created build = %+v", first)
	}

	second, err := store.CreateBuild(ctx, cooking.BuildInfo{NumGroups: 8, ChunkSize: 64})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.FinishBuild(ctx, second.ID, cooking.BuildFailed, "ff", 2); err != nil {
		t.Fatalf("FinishBuild: %v", err)
	}
	if err := store.FinishBuild(ctx, "nope", cooking.BuildComplete, "", 0); err == nil {
		t.Error("expected error finishing an unknown build")
	}

	latest, err := store.LatestBuild(ctx)
	if err != nil || latest == nil {
		t.Fatalf("LatestBuild = %v, %v", latest, err)
	}
	if latest.ID != second.ID || latest.Status != cooking.BuildFailed || latest.FailedChunks != 2 ||
		latest.CritSHA256 != "ff" || latest.FinishedAt == "" {
		t.Errorf("latest build = %+v", latest)
	}

	got, err := store.GetBuild(ctx, first.ID)
	if err != nil || got == nil {
		t.Fatalf("GetBuild = %v, %v", got, err)
	}
	if got.TotalRecords != 792 || got.CatalogDigest != "abc" || got.FinishedAt != "" {
		t.Errorf("GetBuild = %+v", got)
	}

	builds, err := store.ListBuilds(ctx, 10)
	if err != nil || len(builds) != 2 {
		t.Fatalf("ListBuilds = %v, %v", builds, err)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	if _, err := LoadManifest(ctx, database); !errors.Is(err, ErrNoManifest) {
		t.Fatalf("LoadManifest on empty db = %v, want ErrNoManifest", err)
	}

	meta, err := rdb.NewMeta(792, 64)
	if err != nil {
		t.Fatal(err)
	}
	build, err := NewBuildStore(database).CreateBuild(ctx, cooking.BuildInfo{NumGroups: 8})
	if err != nil {
		t.Fatal(err)
	}

	// a stale entry from a larger earlier layout must disappear
	if err := NewChunkStore(database).UpsertChunks(ctx, "", sampleChunks(20)); err != nil {
		t.Fatal(err)
	}

	want := &rdb.Manifest{
		Meta:          meta,
		NumGroups:     8,
		CatalogDigest: "digest",
		Chunks:        sampleChunks(13),
		CritSHA256:    rdb.HashBytes([]byte("crit")),
	}
	if err := SaveManifest(ctx, database, build.ID, want); err != nil {
		t.Fatalf("SaveManifest: %v", err)
	}
	got, err := LoadManifest(ctx, database)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if got.Meta != want.Meta || got.NumGroups != 8 || got.CatalogDigest != "digest" || got.CritSHA256 != want.CritSHA256 {
		t.Errorf("LoadManifest = %+v", got)
	}
	if !slices.Equal(got.Chunks, want.Chunks) {
		t.Errorf("chunks differ: got %d entries", len(got.Chunks))
	}
}
