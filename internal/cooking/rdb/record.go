// Package rdb defines the on-disk recipe database: chunk files of packed
// 16-bit records, the crit bitmap, and the per-chunk index.
package rdb

import (
	"encoding/binary"
	"fmt"

	"github.com/rsned/cookdb/pkg/cooking"
)

// RecordSize is the encoded size of one record in bytes.
const RecordSize = 2

// Record is one packed database entry: the price in the high 9 bits and the
// heart value in the low 7 bits, stored big-endian.
type Record uint16

// NewRecord packs a price and value.
func NewRecord(price uint32, value int32) Record {
	return Record(((price << 7) + uint32(value)) & 0xFFFF)
}

// RecordOf packs a resolved recipe.
func RecordOf(res cooking.ResolvedRecipe) Record {
	return NewRecord(res.Price, res.Value)
}

// DecodeRecord reads a record from the first two bytes of b.
func DecodeRecord(b []byte) Record {
	return Record(binary.BigEndian.Uint16(b))
}

// Put writes the record into the first two bytes of b.
func (r Record) Put(b []byte) {
	binary.BigEndian.PutUint16(b, uint16(r))
}

// Value returns the stored heart value.
func (r Record) Value() int {
	return int(r & 0x7F)
}

// Price returns the 9-bit price field.
func (r Record) Price() int {
	return int(r >> 7)
}

// Modifiers interprets the price field as a weapon modifier mask.
func (r Record) Modifiers() cooking.WeaponModifierSet {
	return cooking.WeaponModifierSet(r >> 7)
}

// Valid reports whether the record satisfies the value and price bounds.
func (r Record) Valid() bool {
	return r.Value() <= cooking.MaxValue && r.Price() >= cooking.MinPrice
}

func (r Record) String() string {
	return fmt.Sprintf("0x%04x(value=%d price=%d)", uint16(r), r.Value(), r.Price())
}

// Matches reports whether a record passes the filter. critDiffers is the
// record's bit from the crit bitmap.
func Matches(r Record, critDiffers bool, f cooking.Filter) bool {
	value := r.Value()
	if value > f.MaxValue {
		return false
	}
	mods := r.Modifiers()
	if !mods.Contains(f.IncludesModifier) {
		return false
	}
	if mods&f.ExcludesModifier != 0 {
		return false
	}
	if value < f.MinValue {
		// a crit can still lift it into range
		if !f.IncludeCritRNG || !critDiffers {
			return false
		}
		if min(value+cooking.CritBonus, cooking.MaxValue) < f.MinValue {
			return false
		}
	}
	return true
}
