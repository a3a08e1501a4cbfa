package engine

import (
	"context"
	"fmt"

	"github.com/rsned/cookdb/internal/cooking/multichoose"
	"github.com/rsned/cookdb/internal/cooking/rdb"
	"github.com/rsned/cookdb/pkg/cooking"
)

// RecordLookup executes the record_lookup tool logic: it reads the stored
// record of one combination and checks it against a fresh resolve.
func (e *Engine) RecordLookup(ctx context.Context, req cooking.RecordLookupRequest) (*cooking.RecordLookupResponse, error) {
	if e.reader == nil {
		return nil, ErrNoDatabase
	}

	var (
		combo multichoose.Combination
		rank  uint64
		err   error
	)
	switch {
	case req.Rank != nil && len(req.Ingredients) > 0:
		return nil, fmt.Errorf("give either rank or ingredients: %w", ErrInvalidRequest)
	case req.Rank != nil:
		rank = *req.Rank
		combo, err = e.table.UnrankChecked(rank)
		if err != nil {
			return nil, fmt.Errorf("rank %d: %w", rank, err)
		}
	case len(req.Ingredients) > 0:
		combo, err = e.combinationOf(req.Ingredients)
		if err != nil {
			return nil, err
		}
		rank = e.table.Rank(combo)
	default:
		return nil, fmt.Errorf("rank or ingredients required: %w", ErrInvalidRequest)
	}

	rec, err := e.reader.Record(rank)
	if err != nil {
		return nil, err
	}
	bit, err := e.reader.CritBit(rank)
	if err != nil {
		return nil, err
	}

	var want rdb.Record
	var wantBit bool
	if !combo.IsEmpty() {
		res, err := e.resolve(combo)
		if err != nil {
			return nil, err
		}
		want, wantBit = rdb.RecordOf(res), res.CritDiffers
	}
	if rec != want || bit != wantBit {
		e.logger.Warn("stored record disagrees with resolver",
			"rank", rank, "stored", rec, "resolved", want)
	}

	chunk, _ := e.reader.Meta().Locate(rank)
	return &cooking.RecordLookupResponse{
		Rank:        rank,
		Chunk:       chunk,
		Ingredients: e.namesOf(combo),
		Record:      uint16(rec),
		Value:       rec.Value(),
		Price:       rec.Price(),
		CritDiffers: bit,
		Modifiers:   rec.Modifiers().Names(),
		Matches:     rec == want && bit == wantBit,
	}, nil
}
