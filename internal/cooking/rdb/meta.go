package rdb

import (
	"errors"
	"fmt"
	"path/filepath"
)

// File names inside a database directory.
const (
	CritFileName  = "crit.db"
	IndexFileName = "index.yaml"
)

// ErrChunkSize is returned for a chunk size that is zero or not a multiple of 8.
var ErrChunkSize = errors.New("chunk size must be a positive multiple of 8")

// Meta describes how the rank space is split into chunks.
type Meta struct {
	// ChunkSize is the record count of every chunk except possibly the last.
	ChunkSize  uint32
	ChunkCount uint32
	Total      uint64
}

// NewMeta splits total records into chunks of chunkSize. The chunk size must
// be a multiple of 8 so each chunk owns whole bytes of the crit bitmap.
func NewMeta(total uint64, chunkSize uint32) (Meta, error) {
	if chunkSize == 0 || chunkSize%8 != 0 {
		return Meta{}, fmt.Errorf("chunk size %d: %w", chunkSize, ErrChunkSize)
	}
	count := total / uint64(chunkSize)
	if total%uint64(chunkSize) != 0 {
		count++
	}
	if count > 1<<32-1 {
		return Meta{}, fmt.Errorf("%d chunks exceed the chunk id space", count)
	}
	return Meta{ChunkSize: chunkSize, ChunkCount: uint32(count), Total: total}, nil
}

// Range returns the half-open rank range [start, end) of a chunk.
func (m Meta) Range(chunk uint32) (start, end uint64) {
	start = uint64(chunk) * uint64(m.ChunkSize)
	if start >= m.Total {
		return m.Total, m.Total
	}
	end = start + min(uint64(m.ChunkSize), m.Total-start)
	return start, end
}

// Records returns the number of records in a chunk.
func (m Meta) Records(chunk uint32) uint64 {
	start, end := m.Range(chunk)
	return end - start
}

// ChunkBytes returns the expected file size of a chunk.
func (m Meta) ChunkBytes(chunk uint32) int64 {
	return int64(m.Records(chunk)) * RecordSize
}

// Locate returns the chunk holding rank and the rank's position inside it.
func (m Meta) Locate(rank uint64) (chunk uint32, offset uint64) {
	return uint32(rank / uint64(m.ChunkSize)), rank % uint64(m.ChunkSize)
}

// CritBytes returns the size of the crit bitmap.
func (m Meta) CritBytes() int64 {
	n := m.Total / 8
	if m.Total%8 != 0 {
		n++
	}
	return int64(n)
}

// ChunkFileName returns the file name of a chunk.
func ChunkFileName(chunk uint32) string {
	return fmt.Sprintf("chunk_%d.rdb", chunk)
}

// ChunkPath returns the path of a chunk inside dir.
func ChunkPath(dir string, chunk uint32) string {
	return filepath.Join(dir, ChunkFileName(chunk))
}

// CritPath returns the path of the crit bitmap inside dir.
func CritPath(dir string) string {
	return filepath.Join(dir, CritFileName)
}

// IndexPath returns the path of the YAML manifest inside dir.
func IndexPath(dir string) string {
	return filepath.Join(dir, IndexFileName)
}
