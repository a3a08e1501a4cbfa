package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"slices"

	"github.com/rsned/cookdb/internal/cooking/multichoose"
	"github.com/rsned/cookdb/internal/cooking/rdb"
	"github.com/rsned/cookdb/pkg/cooking"
)

// Result limits.
const (
	DefaultLimit = 20
	MaxLimit     = 1000
	// MaxSearchSpace is the default bound on the slot assignments one search
	// may enumerate.
	MaxSearchSpace = 250000
)

// ErrSearchTooLarge is returned when a slot search would enumerate more
// assignments than the engine allows.
var ErrSearchTooLarge = errors.New("search space too large")

// FindCombinations executes the find_combinations tool logic. Each slot
// constraint contributes Count ingredients drawn from its alternatives; slots
// left over stay empty. Every distinct combination is resolved once and the
// ones passing the filter are returned, best value first.
func (e *Engine) FindCombinations(ctx context.Context, req cooking.FindCombinationsRequest) (*cooking.FindCombinationsResponse, error) {
	if len(req.Slots) == 0 {
		return nil, fmt.Errorf("at least one slot required: %w", ErrInvalidRequest)
	}
	filter := normalizeFilter(req.Filter)
	limit := clampLimit(req.Limit)

	expanded := make([][][]cooking.GroupID, 0, len(req.Slots))
	total, space := 0, uint64(1)
	for i, s := range req.Slots {
		count := s.Count
		if count == 0 {
			count = 1
		}
		if count < 0 {
			return nil, fmt.Errorf("slot %d: negative count: %w", i, ErrInvalidRequest)
		}
		total += count
		if total > multichoose.Slots {
			return nil, fmt.Errorf("slots ask for more than %d ingredients: %w", multichoose.Slots, ErrInvalidRequest)
		}

		alts, err := e.lookupNames(s.Ingredients)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		slices.Sort(alts)
		alts = slices.Compact(alts)
		if len(alts) == 0 {
			return nil, fmt.Errorf("slot %d: no ingredients: %w", i, ErrInvalidRequest)
		}

		n, err := choiceCount(len(alts), count, s.Mode)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("slot %d: %d different ingredients needed, %d given: %w",
				i, count, len(alts), ErrInvalidRequest)
		}
		// the bound is checked before any choice list is allocated
		hi, lo := bits.Mul64(space, n)
		if hi != 0 || lo > uint64(max(e.maxSearch, 0)) {
			return nil, fmt.Errorf("more than %d assignments: %w", e.maxSearch, ErrSearchTooLarge)
		}
		space = lo

		choices, err := slotChoices(alts, count, s.Mode)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		expanded = append(expanded, choices)
	}

	seen := make(map[multichoose.Combination]bool)
	var results []cooking.CombinationMatch
	pick := make([]cooking.GroupID, 0, multichoose.Slots)

	var walk func(i int) error
	walk = func(i int) error {
		if i < len(expanded) {
			for _, ch := range expanded[i] {
				pick = append(pick, ch...)
				err := walk(i + 1)
				pick = pick[:len(pick)-len(ch)]
				if err != nil {
					return err
				}
			}
			return nil
		}

		combo, err := multichoose.Canonical(pick)
		if err != nil {
			return err
		}
		if seen[combo] {
			return nil
		}
		seen[combo] = true
		if len(seen)%4096 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}

		res, err := e.resolve(combo)
		if err != nil {
			return err
		}
		rec := rdb.RecordOf(res)
		if !rdb.Matches(rec, res.CritDiffers, filter) {
			return nil
		}
		results = append(results, cooking.CombinationMatch{
			Rank:        e.table.Rank(combo),
			Ingredients: e.namesOf(combo),
			Recipe:      res,
			Modifiers:   rec.Modifiers().Names(),
		})
		return nil
	}
	if err := walk(0); err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b cooking.CombinationMatch) int {
		return cmp.Or(
			cmp.Compare(b.Recipe.Value, a.Recipe.Value),
			cmp.Compare(b.Recipe.Price, a.Recipe.Price),
			cmp.Compare(a.Rank, b.Rank),
		)
	})

	resp := &cooking.FindCombinationsResponse{
		Searched: len(seen),
		Matched:  len(results),
		Results:  results[:min(limit, len(results))],
	}
	e.logger.Debug("find_combinations", "searched", resp.Searched, "matched", resp.Matched)
	return resp, nil
}

// choiceCount returns how many lists slotChoices produces for n sorted,
// distinct alternatives, saturating at math.MaxUint64.
func choiceCount(n, count int, mode cooking.SlotMode) (uint64, error) {
	switch mode {
	case cooking.SlotSame:
		return uint64(n), nil
	case cooking.SlotDifferent:
		return binomial(n, count), nil
	case cooking.SlotAny:
		return binomial(n+count-1, count), nil
	default:
		return 0, fmt.Errorf("unknown slot mode %q: %w", mode, ErrInvalidRequest)
	}
}

// binomial returns C(n, k), saturating at math.MaxUint64.
func binomial(n, k int) uint64 {
	if k < 0 || n < k {
		return 0
	}
	r := uint64(1)
	for i := range k {
		// r*(n-i) is always divisible by i+1
		hi, lo := bits.Mul64(r, uint64(n-i))
		if hi >= uint64(i+1) {
			return math.MaxUint64
		}
		r, _ = bits.Div64(hi, lo, uint64(i+1))
	}
	return r
}

// slotChoices lists the ways to fill count slots from alts, each as a
// non-decreasing id list. alts must be sorted and distinct.
func slotChoices(alts []cooking.GroupID, count int, mode cooking.SlotMode) ([][]cooking.GroupID, error) {
	var out [][]cooking.GroupID
	switch mode {
	case cooking.SlotSame:
		for _, g := range alts {
			out = append(out, slices.Repeat([]cooking.GroupID{g}, count))
		}
	case cooking.SlotAny, cooking.SlotDifferent:
		// start is the lowest alternative index the next pick may use
		step := 0
		if mode == cooking.SlotDifferent {
			step = 1
		}
		cur := make([]cooking.GroupID, 0, count)
		var rec func(start int)
		rec = func(start int) {
			if len(cur) == count {
				out = append(out, slices.Clone(cur))
				return
			}
			for j := start; j < len(alts); j++ {
				cur = append(cur, alts[j])
				rec(j + step)
				cur = cur[:len(cur)-1]
			}
		}
		rec(0)
	default:
		return nil, fmt.Errorf("unknown slot mode %q: %w", mode, ErrInvalidRequest)
	}
	return out, nil
}

// normalizeFilter fills in defaults: a nil filter matches every record and a
// zero MaxValue means no upper bound.
func normalizeFilter(f *cooking.Filter) cooking.Filter {
	if f == nil {
		return cooking.AllRecords()
	}
	out := *f
	if out.MaxValue <= 0 {
		out.MaxValue = cooking.MaxValue
	}
	return out
}

func clampLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	return min(n, MaxLimit)
}
