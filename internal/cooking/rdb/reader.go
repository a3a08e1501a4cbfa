package rdb

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rsned/cookdb/pkg/cooking"
)

// Reader answers point and range queries against a built database directory.
type Reader struct {
	dir  string
	meta Meta
}

// NewReader opens the database in dir laid out according to meta.
func NewReader(dir string, meta Meta) *Reader {
	return &Reader{dir: dir, meta: meta}
}

// Meta returns the chunk layout.
func (r *Reader) Meta() Meta {
	return r.meta
}

// Dir returns the database directory.
func (r *Reader) Dir() string {
	return r.dir
}

// Record returns the stored record for rank.
func (r *Reader) Record(rank uint64) (Record, error) {
	if rank >= r.meta.Total {
		return 0, fmt.Errorf("rank %d beyond %d records", rank, r.meta.Total)
	}
	chunk, off := r.meta.Locate(rank)
	f, err := os.Open(ChunkPath(r.dir, chunk))
	if err != nil {
		return 0, fmt.Errorf("opening chunk %d: %w", chunk, err)
	}
	defer func() { _ = f.Close() }()

	var buf [RecordSize]byte
	if _, err := f.ReadAt(buf[:], int64(off)*RecordSize); err != nil {
		return 0, fmt.Errorf("reading chunk %d at record %d: %w", chunk, off, err)
	}
	return DecodeRecord(buf[:]), nil
}

// CritBit returns the crit bitmap bit for rank.
func (r *Reader) CritBit(rank uint64) (bool, error) {
	if rank >= r.meta.Total {
		return false, fmt.Errorf("rank %d beyond %d records", rank, r.meta.Total)
	}
	f, err := os.Open(CritPath(r.dir))
	if err != nil {
		return false, fmt.Errorf("opening crit bitmap: %w", err)
	}
	defer func() { _ = f.Close() }()

	var b [1]byte
	if _, err := f.ReadAt(b[:], int64(rank/8)); err != nil {
		return false, fmt.Errorf("reading crit bitmap: %w", err)
	}
	return b[0]&(1<<(rank%8)) != 0, nil
}

// ScanFunc receives each matching record. Returning false stops the scan.
type ScanFunc func(rank uint64, rec Record, critDiffers bool) bool

// Scan visits the records of chunk that pass f, in rank order.
func (r *Reader) Scan(ctx context.Context, chunk uint32, f cooking.Filter, fn ScanFunc) error {
	if chunk >= r.meta.ChunkCount {
		return fmt.Errorf("chunk %d beyond %d chunks", chunk, r.meta.ChunkCount)
	}
	data, err := os.ReadFile(ChunkPath(r.dir, chunk))
	if err != nil {
		return fmt.Errorf("reading chunk %d: %w", chunk, err)
	}
	if int64(len(data)) != r.meta.ChunkBytes(chunk) {
		return fmt.Errorf("chunk %d is %d bytes, want %d", chunk, len(data), r.meta.ChunkBytes(chunk))
	}

	start, end := r.meta.Range(chunk)
	crit, err := r.critRange(start, end)
	if err != nil {
		return err
	}

	for i := uint64(0); i < end-start; i++ {
		if i%4096 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		rec := DecodeRecord(data[i*RecordSize:])
		bit := crit[i/8]&(1<<(i%8)) != 0
		if !Matches(rec, bit, f) {
			continue
		}
		if !fn(start+i, rec, bit) {
			return nil
		}
	}
	return nil
}

// critRange reads the bitmap bytes covering [start, end). start must be a multiple of 8.
func (r *Reader) critRange(start, end uint64) ([]byte, error) {
	f, err := os.Open(CritPath(r.dir))
	if err != nil {
		return nil, fmt.Errorf("opening crit bitmap: %w", err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, (end-start+7)/8)
	if _, err := f.ReadAt(buf, int64(start/8)); err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading crit bitmap: %w", err)
	}
	return buf, nil
}
