package engine

import (
	"context"

	"github.com/rsned/cookdb/pkg/cooking"
)

// DatabaseInfo executes the database_info tool logic.
func (e *Engine) DatabaseInfo(ctx context.Context, req cooking.DatabaseInfoRequest) (*cooking.DatabaseInfoResponse, error) {
	resp := &cooking.DatabaseInfoResponse{
		NumGroups:     e.cat.NumGroups(),
		TotalRecords:  e.table.Total(),
		CatalogDigest: e.cat.Digest,
	}
	if e.manifest != nil {
		resp.ChunkSize = e.manifest.Meta.ChunkSize
		resp.ChunkCount = e.manifest.Meta.ChunkCount
		resp.IndexedChunks = len(e.manifest.Chunks)
		if req.IncludeChunks {
			resp.Chunks = e.manifest.Chunks
		}
	}

	build, err := e.latestBuild(ctx)
	if err != nil {
		return nil, err
	}
	resp.LastBuild = build
	return resp, nil
}
