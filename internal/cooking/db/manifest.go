package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/rsned/cookdb/internal/cooking/rdb"
)

// ErrNoManifest is returned when no build has been recorded.
var ErrNoManifest = errors.New("no manifest recorded")

// SaveManifest stores the layout and crit digest of m and upserts its chunk
// entries, all in one transaction. Entries beyond m's chunk count are removed.
func SaveManifest(ctx context.Context, db *DB, buildID string, m *rdb.Manifest) error {
	return db.InTransaction(ctx, func(tx *sql.Tx) error {
		meta := map[string]string{
			KeyNumGroups:     strconv.Itoa(m.NumGroups),
			KeyCatalogDigest: m.CatalogDigest,
			KeyChunkSize:     strconv.FormatUint(uint64(m.Meta.ChunkSize), 10),
			KeyTotalRecords:  strconv.FormatUint(m.Meta.Total, 10),
			KeyCritSHA256:    m.CritSHA256,
		}
		for k, v := range meta {
			if err := setMetadata(ctx, tx, k, v); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE chunk_id >= ?`, m.Meta.ChunkCount); err != nil {
			return fmt.Errorf("trimming chunks: %w", err)
		}
		return upsertChunks(ctx, tx, buildID, m.Chunks)
	})
}

// LoadManifest reads the manifest recorded by the last SaveManifest.
func LoadManifest(ctx context.Context, db *DB) (*rdb.Manifest, error) {
	values := make(map[string]string)
	for _, k := range []string{KeyNumGroups, KeyCatalogDigest, KeyChunkSize, KeyTotalRecords, KeyCritSHA256} {
		v, err := db.GetMetadata(ctx, k)
		if err != nil {
			return nil, err
		}
		values[k] = v
	}
	if values[KeyChunkSize] == "" || values[KeyTotalRecords] == "" {
		return nil, ErrNoManifest
	}

	numGroups, err := strconv.Atoi(values[KeyNumGroups])
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", KeyNumGroups, err)
	}
	chunkSize, err := strconv.ParseUint(values[KeyChunkSize], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", KeyChunkSize, err)
	}
	total, err := strconv.ParseUint(values[KeyTotalRecords], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", KeyTotalRecords, err)
	}
	meta, err := rdb.NewMeta(total, uint32(chunkSize))
	if err != nil {
		return nil, err
	}

	chunks, err := NewChunkStore(db).ListChunks(ctx)
	if err != nil {
		return nil, err
	}
	return &rdb.Manifest{
		Meta:          meta,
		NumGroups:     numGroups,
		CatalogDigest: values[KeyCatalogDigest],
		Chunks:        chunks,
		CritSHA256:    values[KeyCritSHA256],
	}, nil
}
