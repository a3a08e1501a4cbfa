package rdb

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/rsned/cookdb/pkg/cooking"
)

func TestRecordPacking(t *testing.T) {
	tests := []struct {
		price uint32
		value int32
		want  uint16
		bytes [2]byte
	}{
		{3, 4, 0x0184, [2]byte{0x01, 0x84}},
		{2, 9, 0x0109, [2]byte{0x01, 0x09}},
		{511, 120, 0xFFF8, [2]byte{0xFF, 0xF8}},
		{0, 0, 0x0000, [2]byte{0, 0}},
	}
	for _, tt := range tests {
		r := NewRecord(tt.price, tt.value)
		if uint16(r) != tt.want {
			t.Errorf("NewRecord(%d, %d) = %#04x, want %#04x", tt.price, tt.value, uint16(r), tt.want)
		}
		var b [2]byte
		r.Put(b[:])
		if b != tt.bytes {
			t.Errorf("Put(%v) = % x, want % x", r, b, tt.bytes)
		}
		back := DecodeRecord(b[:])
		if back.Value() != int(tt.value) || back.Price() != int(tt.price) {
			t.Errorf("decode %v: value %d price %d", back, back.Value(), back.Price())
		}
	}
}

func TestRecordValid(t *testing.T) {
	if !NewRecord(2, 120).Valid() {
		t.Error("price 2 value 120 should be valid")
	}
	if NewRecord(1, 10).Valid() {
		t.Error("price 1 should be invalid")
	}
	if Record(0x017F).Valid() {
		t.Error("value 127 should be invalid")
	}
}

func TestMeta(t *testing.T) {
	if _, err := NewMeta(100, 12); !errors.Is(err, ErrChunkSize) {
		t.Errorf("NewMeta(100, 12) error = %v, want ErrChunkSize", err)
	}
	m, err := NewMeta(100, 16)
	if err != nil {
		t.Fatal(err)
	}
	if m.ChunkCount != 7 {
		t.Errorf("ChunkCount = %d, want 7", m.ChunkCount)
	}
	if s, e := m.Range(6); s != 96 || e != 100 {
		t.Errorf("Range(6) = [%d, %d), want [96, 100)", s, e)
	}
	if got := m.ChunkBytes(6); got != 8 {
		t.Errorf("ChunkBytes(6) = %d, want 8", got)
	}
	if got := m.ChunkBytes(0); got != 32 {
		t.Errorf("ChunkBytes(0) = %d, want 32", got)
	}
	if c, off := m.Locate(35); c != 2 || off != 3 {
		t.Errorf("Locate(35) = %d, %d", c, off)
	}
	if got := m.CritBytes(); got != 13 {
		t.Errorf("CritBytes() = %d, want 13", got)
	}
	if got := ChunkFileName(12); got != "chunk_12.rdb" {
		t.Errorf("ChunkFileName(12) = %q", got)
	}
	if s, e := m.Range(40); s != 100 || e != 100 {
		t.Errorf("Range(40) = [%d, %d), want [100, 100)", s, e)
	}
}

func TestMetaLargeTotals(t *testing.T) {
	tests := []struct {
		name      string
		total     uint64
		chunkSize uint32
		wantCount uint32
		wantErr   bool
	}{
		{"max total small chunks", math.MaxUint64, 8, 0, true},
		{"max total max chunks", math.MaxUint64, math.MaxUint32 - 7, 0, true},
		{"largest rank space", 18442234518422931216, math.MaxUint32 - 7, 4293917342, false},
		{"one short of a chunk", math.MaxUint32 - 8, math.MaxUint32 - 7, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMeta(tt.total, tt.chunkSize)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMeta(%d, %d) error = %v, wantErr %v", tt.total, tt.chunkSize, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if m.ChunkCount != tt.wantCount {
				t.Errorf("ChunkCount = %d, want %d", m.ChunkCount, tt.wantCount)
			}
			s, e := m.Range(m.ChunkCount - 1)
			if e != tt.total || s >= e {
				t.Errorf("Range(last) = [%d, %d), want to end at %d", s, e, tt.total)
			}
			if got, want := m.CritBytes(), int64((tt.total-1)/8+1); got != want {
				t.Errorf("CritBytes() = %d, want %d", got, want)
			}
		})
	}
}

func TestIndexBuilder(t *testing.T) {
	b := NewIndexBuilder(3)
	recs := []struct {
		r    Record
		crit bool
	}{
		{NewRecord(3, 4), true},
		{NewRecord(10, 30), false},
		{NewRecord(2, 115), true},
	}
	data := make([]byte, 0, len(recs)*RecordSize)
	for _, x := range recs {
		b.Add(x.r, x.crit)
		data = append(data, byte(x.r>>8), byte(x.r))
	}
	idx := b.Finish(data)

	if idx.Chunk != 3 || idx.MinValue != 4 || idx.MaxValue != 115 {
		t.Errorf("index = %+v", idx)
	}
	if idx.MaxValueCrit != 120 {
		t.Errorf("MaxValueCrit = %d, want 120", idx.MaxValueCrit)
	}
	if idx.MinPrice != 2 || idx.MaxPrice != 10 {
		t.Errorf("price range = %d-%d", idx.MinPrice, idx.MaxPrice)
	}
	if idx.IncludesModifier != cooking.WeaponModifierSet(3|10|2) {
		t.Errorf("IncludesModifier = %v", idx.IncludesModifier)
	}
	if idx.AllIncludesModifier != cooking.WeaponModifierSet(3&10&2) {
		t.Errorf("AllIncludesModifier = %v", idx.AllIncludesModifier)
	}
	if idx.SHA256 != HashBytes(data) || len(idx.SHA256) != 64 {
		t.Errorf("SHA256 = %q", idx.SHA256)
	}
}

func TestMatchesAndCanSkip(t *testing.T) {
	rec := NewRecord(uint32(cooking.ModAttackUp|cooking.ModZoom), 50)

	tests := []struct {
		name   string
		filter cooking.Filter
		crit   bool
		want   bool
	}{
		{"all", cooking.AllRecords(), false, true},
		{"too high", cooking.Filter{MinValue: 60, MaxValue: 120}, false, false},
		{"crit reaches", cooking.Filter{MinValue: 60, MaxValue: 120, IncludeCritRNG: true}, true, true},
		{"crit short", cooking.Filter{MinValue: 63, MaxValue: 120, IncludeCritRNG: true}, true, false},
		{"no crit bit", cooking.Filter{MinValue: 60, MaxValue: 120, IncludeCritRNG: true}, false, false},
		{"above max", cooking.Filter{MaxValue: 40}, false, false},
		{"includes", cooking.Filter{MaxValue: 120, IncludesModifier: cooking.ModZoom}, false, true},
		{"includes missing", cooking.Filter{MaxValue: 120, IncludesModifier: cooking.ModGuardUp}, false, false},
		{"excludes", cooking.Filter{MaxValue: 120, ExcludesModifier: cooking.ModAttackUp}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(rec, tt.crit, tt.filter); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}

	idx := cooking.ChunkIndex{
		MinValue: 10, MaxValue: 50, MaxValueCrit: 62,
		IncludesModifier:    cooking.ModAttackUp | cooking.ModZoom,
		AllIncludesModifier: cooking.ModAttackUp,
	}
	if CanSkip(idx, cooking.AllRecords()) {
		t.Error("all-records filter should not skip")
	}
	if !CanSkip(idx, cooking.Filter{MinValue: 55, MaxValue: 120}) {
		t.Error("min above max value should skip without crit")
	}
	if CanSkip(idx, cooking.Filter{MinValue: 55, MaxValue: 120, IncludeCritRNG: true}) {
		t.Error("crit can reach 55")
	}
	if !CanSkip(idx, cooking.Filter{MaxValue: 5}) {
		t.Error("max below min value should skip")
	}
	if !CanSkip(idx, cooking.Filter{MaxValue: 120, IncludesModifier: cooking.ModGuardUp}) {
		t.Error("missing modifier should skip")
	}
	if !CanSkip(idx, cooking.Filter{MaxValue: 120, ExcludesModifier: cooking.ModAttackUp}) {
		t.Error("modifier present in every record should skip")
	}
}

func TestReader(t *testing.T) {
	dir := t.TempDir()
	m, err := NewMeta(20, 16)
	if err != nil {
		t.Fatal(err)
	}

	// chunk 0 holds ranks 0-15, chunk 1 holds 16-19
	for chunk := uint32(0); chunk < m.ChunkCount; chunk++ {
		start, end := m.Range(chunk)
		data := make([]byte, (end-start)*RecordSize)
		for rank := start; rank < end; rank++ {
			if rank == 0 {
				continue
			}
			NewRecord(2, int32(rank)).Put(data[(rank-start)*RecordSize:])
		}
		if err := os.WriteFile(ChunkPath(dir, chunk), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// crit bits set on odd ranks
	crit := make([]byte, m.CritBytes())
	for rank := uint64(1); rank < m.Total; rank += 2 {
		crit[rank/8] |= 1 << (rank % 8)
	}
	if err := os.WriteFile(CritPath(dir), crit, 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewReader(dir, m)
	rec, err := r.Record(17)
	if err != nil {
		t.Fatalf("Record(17): %v", err)
	}
	if rec.Value() != 17 || rec.Price() != 2 {
		t.Errorf("Record(17) = %v", rec)
	}
	if bit, _ := r.CritBit(17); !bit {
		t.Error("CritBit(17) should be set")
	}
	if bit, _ := r.CritBit(18); bit {
		t.Error("CritBit(18) should be clear")
	}
	if _, err := r.Record(20); err == nil {
		t.Error("expected error past the end")
	}

	var got []uint64
	err = r.Scan(context.Background(), 0, cooking.Filter{MinValue: 10, MaxValue: 12}, func(rank uint64, rec Record, crit bool) bool {
		got = append(got, rank)
		return true
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 3 || got[0] != 10 || got[2] != 12 {
		t.Errorf("Scan ranks = %v, want [10 11 12]", got)
	}
}
