package rdb

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/rsned/cookdb/pkg/cooking"
)

// IndexBuilder accumulates the summary of one chunk as its records are produced.
type IndexBuilder struct {
	idx   cooking.ChunkIndex
	empty bool
}

// NewIndexBuilder starts an index for chunk.
func NewIndexBuilder(chunk uint32) *IndexBuilder {
	return &IndexBuilder{
		idx: cooking.ChunkIndex{
			Chunk:               chunk,
			MinValue:            math.MaxInt,
			MaxValue:            math.MinInt,
			MaxValueCrit:        math.MinInt,
			AllIncludesModifier: cooking.ModAll,
			MinPrice:            math.MaxUint32,
		},
		empty: true,
	}
}

// Add folds one record into the summary. critDiffers is the record's crit bit.
func (b *IndexBuilder) Add(r Record, critDiffers bool) {
	b.empty = false
	value := r.Value()
	b.idx.MinValue = min(b.idx.MinValue, value)
	b.idx.MaxValue = max(b.idx.MaxValue, value)
	if critDiffers {
		b.idx.MaxValueCrit = max(b.idx.MaxValueCrit, min(value+cooking.CritBonus, cooking.MaxValue))
	}
	mods := r.Modifiers()
	b.idx.IncludesModifier |= mods
	b.idx.AllIncludesModifier &= mods
	price := uint32(r.Price())
	b.idx.MinPrice = min(b.idx.MinPrice, price)
	b.idx.MaxPrice = max(b.idx.MaxPrice, price)
}

// Finish hashes the encoded chunk and returns the summary.
func (b *IndexBuilder) Finish(chunkData []byte) cooking.ChunkIndex {
	idx := b.idx
	if b.empty {
		idx.MinValue, idx.MaxValue, idx.MaxValueCrit = 0, 0, 0
		idx.AllIncludesModifier = 0
		idx.MinPrice = 0
	}
	idx.MaxValueCrit = max(idx.MaxValueCrit, idx.MaxValue)
	idx.SHA256 = HashBytes(chunkData)
	return idx
}

// HashBytes returns the lowercase hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CanSkip reports whether no record summarized by idx can pass f.
// A false result does not guarantee a match.
func CanSkip(idx cooking.ChunkIndex, f cooking.Filter) bool {
	top := idx.MaxValue
	if f.IncludeCritRNG {
		top = idx.MaxValueCrit
	}
	if top < f.MinValue {
		return true
	}
	if idx.MinValue > f.MaxValue {
		return true
	}
	if !idx.IncludesModifier.Contains(f.IncludesModifier) {
		return true
	}
	if idx.AllIncludesModifier&f.ExcludesModifier != 0 {
		return true
	}
	return false
}

// Manifest lists the expected contents of a built database.
type Manifest struct {
	Meta          Meta
	NumGroups     int
	CatalogDigest string
	Chunks        []cooking.ChunkIndex
	CritSHA256    string
}

// Chunk returns the index entry for a chunk id.
func (m *Manifest) Chunk(id uint32) (cooking.ChunkIndex, bool) {
	if int(id) < len(m.Chunks) && m.Chunks[id].Chunk == id {
		return m.Chunks[id], true
	}
	for _, c := range m.Chunks {
		if c.Chunk == id {
			return c, true
		}
	}
	return cooking.ChunkIndex{}, false
}

// HashFile streams path through SHA-256 in 4096-byte blocks and returns the
// lowercase hex digest and the number of bytes read.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, 4096)
	var n int64
	for {
		k, err := f.Read(buf)
		h.Write(buf[:k])
		n += int64(k)
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", n, fmt.Errorf("hashing %s: %w", path, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
