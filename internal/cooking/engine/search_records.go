package engine

import (
	"context"

	"github.com/rsned/cookdb/internal/cooking/rdb"
	"github.com/rsned/cookdb/pkg/cooking"
)

// SearchRecords executes the search_records tool logic: a filtered scan of the
// built database in rank order. Chunks whose index rules out the filter are
// not read.
func (e *Engine) SearchRecords(ctx context.Context, req cooking.SearchRecordsRequest) (*cooking.SearchRecordsResponse, error) {
	if e.reader == nil {
		return nil, ErrNoDatabase
	}
	filter := normalizeFilter(&req.Filter)
	limit := clampLimit(req.Limit)
	meta := e.reader.Meta()

	resp := &cooking.SearchRecordsResponse{Results: []cooking.RecordMatch{}}
	if req.StartRank >= meta.Total {
		return resp, nil
	}

	first, _ := meta.Locate(req.StartRank)
	for chunk := first; chunk < meta.ChunkCount; chunk++ {
		if idx, ok := e.manifest.Chunk(chunk); ok && rdb.CanSkip(idx, filter) {
			resp.ChunksSkipped++
			continue
		}
		resp.ChunksScanned++

		full := false
		err := e.reader.Scan(ctx, chunk, filter, func(rank uint64, rec rdb.Record, critDiffers bool) bool {
			// rank 0 is the empty combination and holds no dish
			if rank < req.StartRank || rank == 0 {
				return true
			}
			if len(resp.Results) == limit {
				next := rank
				resp.NextRank = &next
				full = true
				return false
			}
			resp.Results = append(resp.Results, cooking.RecordMatch{
				Rank:        rank,
				Ingredients: e.namesOf(e.table.Unrank(rank)),
				Value:       rec.Value(),
				Price:       rec.Price(),
				CritDiffers: critDiffers,
				Modifiers:   rec.Modifiers().Names(),
			})
			return true
		})
		if err != nil {
			return nil, err
		}
		if full {
			break
		}
	}
	return resp, nil
}
