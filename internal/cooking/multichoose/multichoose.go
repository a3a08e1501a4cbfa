// Package multichoose ranks and unranks ingredient combinations.
//
// A combination is a non-decreasing tuple of Slots group ids drawn with
// repetition from N groups (group 0 being the empty slot). Combinations are
// numbered in lexicographic order, so rank 0 is the all-empty combination and
// rank Total-1 is [N-1, N-1, N-1, N-1, N-1].
package multichoose

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/rsned/cookdb/pkg/cooking"
)

// Slots is the number of ingredient slots in a combination.
const Slots = cooking.NumIngrSlots

// ErrIndexOutOfRange is returned for a rank outside [0, Total) or a malformed combination.
var ErrIndexOutOfRange = errors.New("index out of range")

// Combination is a non-decreasing tuple of group ids.
type Combination [Slots]cooking.GroupID

// Ingredients appends the non-empty slots of c to dst.
func (c Combination) Ingredients(dst []cooking.GroupID) []cooking.GroupID {
	for _, g := range c {
		if g != cooking.NoGroup {
			dst = append(dst, g)
		}
	}
	return dst
}

// IsEmpty reports whether every slot is the empty group.
func (c Combination) IsEmpty() bool {
	return c == Combination{}
}

// Table holds the precomputed multichoose counts for N groups.
// It is immutable and safe for concurrent use.
type Table struct {
	n     int
	m     [Slots + 1][]uint64
	total uint64
}

// MaxGroups is the largest group count whose rank space, C(N+4, 5), fits in
// a uint64.
const MaxGroups = 18576

// New builds the table for numGroups groups, counting the empty group. It
// panics when numGroups is outside [1, MaxGroups].
func New(numGroups int) *Table {
	t, err := NewChecked(numGroups)
	if err != nil {
		panic(fmt.Sprintf("multichoose: %v", err))
	}
	return t
}

// NewChecked is New returning ErrIndexOutOfRange instead of panicking.
func NewChecked(numGroups int) (*Table, error) {
	if numGroups < 1 {
		return nil, fmt.Errorf("need at least one group, got %d: %w", numGroups, ErrIndexOutOfRange)
	}

	// bino[n][k] = C(n, k) for k <= Slots
	bino := make([][Slots + 1]uint64, numGroups+Slots)
	for n := range bino {
		bino[n][0] = 1
		if n == 0 {
			continue
		}
		for k := 1; k <= Slots; k++ {
			sum, carry := bits.Add64(bino[n-1][k-1], bino[n-1][k], 0)
			if carry != 0 {
				return nil, fmt.Errorf("%d groups: rank space exceeds 64 bits: %w", numGroups, ErrIndexOutOfRange)
			}
			bino[n][k] = sum
		}
	}

	t := &Table{n: numGroups}
	for k := 0; k <= Slots; k++ {
		t.m[k] = make([]uint64, numGroups+1)
		for n := 0; n <= numGroups; n++ {
			switch {
			case k == 0:
				t.m[k][n] = 1
			case n == 0:
				t.m[k][n] = 0
			default:
				t.m[k][n] = bino[n+k-1][k]
			}
		}
	}
	t.total = t.m[Slots][numGroups]
	return t, nil
}

// Count returns the number of non-decreasing k-tuples drawn from n groups.
func (t *Table) Count(k, n int) uint64 {
	return t.m[k][n]
}

// NumGroups returns N, including the empty group.
func (t *Table) NumGroups() int {
	return t.n
}

// Total returns the size of the rank space.
func (t *Table) Total() uint64 {
	return t.total
}

// Unrank returns the combination at rank. It panics if rank >= Total.
func (t *Table) Unrank(rank uint64) Combination {
	c, err := t.UnrankChecked(rank)
	if err != nil {
		panic(fmt.Sprintf("multichoose: %v", err))
	}
	return c
}

// UnrankChecked is Unrank returning ErrIndexOutOfRange instead of panicking.
func (t *Table) UnrankChecked(rank uint64) (Combination, error) {
	var c Combination
	if rank >= t.total {
		return c, fmt.Errorf("rank %d of %d: %w", rank, t.total, ErrIndexOutOfRange)
	}

	prev := 0
	for slot := 0; slot < Slots; slot++ {
		left := Slots - 1 - slot
		g := prev
		for ; g < t.n; g++ {
			block := t.m[left][t.n-g]
			if rank < block {
				break
			}
			rank -= block
		}
		c[slot] = cooking.GroupID(g)
		prev = g
	}
	return c, nil
}

// Rank returns the rank of c. It panics if c is not a valid combination.
func (t *Table) Rank(c Combination) uint64 {
	r, err := t.RankChecked(c)
	if err != nil {
		panic(fmt.Sprintf("multichoose: %v", err))
	}
	return r
}

// RankChecked is Rank returning ErrIndexOutOfRange instead of panicking.
func (t *Table) RankChecked(c Combination) (uint64, error) {
	var rank uint64
	prev := 0
	for slot, id := range c {
		g := int(id)
		if g >= t.n || g < prev {
			return 0, fmt.Errorf("combination %v at slot %d: %w", c, slot, ErrIndexOutOfRange)
		}
		left := Slots - 1 - slot
		for x := prev; x < g; x++ {
			rank += t.m[left][t.n-x]
		}
		prev = g
	}
	return rank, nil
}

// Next advances c to the following combination in rank order.
// It returns false when c is already the last combination.
func (t *Table) Next(c *Combination) bool {
	last := cooking.GroupID(t.n - 1)
	for slot := Slots - 1; slot >= 0; slot-- {
		if c[slot] < last {
			v := c[slot] + 1
			for s := slot; s < Slots; s++ {
				c[s] = v
			}
			return true
		}
	}
	return false
}

// Canonical sorts ids into a combination. It fails when more than Slots ids are given.
func Canonical(ids []cooking.GroupID) (Combination, error) {
	var c Combination
	if len(ids) > Slots {
		return c, fmt.Errorf("%d ingredients, at most %d: %w", len(ids), Slots, ErrIndexOutOfRange)
	}
	// empty slots pad the front so the tuple stays non-decreasing
	off := Slots - len(ids)
	copy(c[off:], ids)
	for i := 1; i < Slots; i++ {
		for j := i; j > 0 && c[j] < c[j-1]; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
	return c, nil
}
