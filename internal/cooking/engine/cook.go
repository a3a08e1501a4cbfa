package engine

import (
	"context"

	"github.com/rsned/cookdb/internal/cooking/rdb"
	"github.com/rsned/cookdb/pkg/cooking"
)

// Cook executes the cook tool logic. Ingredients are resolved in canonical
// order, the order the database stores them in.
func (e *Engine) Cook(ctx context.Context, req cooking.CookRequest) (*cooking.CookResponse, error) {
	combo, err := e.combinationOf(req.Ingredients)
	if err != nil {
		return nil, err
	}
	res, err := e.resolve(combo)
	if err != nil {
		return nil, err
	}
	rec := rdb.RecordOf(res)
	return &cooking.CookResponse{
		Ingredients: e.namesOf(combo),
		Rank:        e.table.Rank(combo),
		Recipe:      res,
		Record:      uint16(rec),
		Modifiers:   rec.Modifiers().Names(),
	}, nil
}
