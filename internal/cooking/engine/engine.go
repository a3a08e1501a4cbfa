// Package engine contains the cooking query business logic shared by the
// CLI, the MCP server and the Lambda endpoint.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rsned/cookdb/internal/cooking/catalog"
	"github.com/rsned/cookdb/internal/cooking/cook"
	"github.com/rsned/cookdb/internal/cooking/db"
	"github.com/rsned/cookdb/internal/cooking/multichoose"
	"github.com/rsned/cookdb/internal/cooking/rdb"
	"github.com/rsned/cookdb/pkg/cooking"
)

// DefaultCacheSize is the number of resolved combinations kept in memory.
const DefaultCacheSize = 65536

var (
	// ErrUnknownIngredient is returned for a name the catalog does not know.
	ErrUnknownIngredient = errors.New("unknown ingredient")
	// ErrNoDatabase is returned by queries that need a built database when
	// none is attached.
	ErrNoDatabase = errors.New("no database attached")
	// ErrInvalidRequest is returned for malformed tool input.
	ErrInvalidRequest = errors.New("invalid request")
)

// Engine is the main query engine for cooking operations.
type Engine struct {
	cat      *catalog.Catalog
	resolver *cook.Resolver
	table    *multichoose.Table
	cache    *lru.Cache[multichoose.Combination, cooking.ResolvedRecipe]
	logger   *slog.Logger

	// maxSearch bounds the slot assignments of one FindCombinations call.
	maxSearch int

	reader   *rdb.Reader
	manifest *rdb.Manifest
	builds   *db.BuildStore
}

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	cacheSize int
	maxSearch int
	logger    *slog.Logger
	dir       string
	manifest  *rdb.Manifest
	database  *db.DB
}

// WithDatabase attaches a built database directory described by m.
func WithDatabase(dir string, m *rdb.Manifest) Option {
	return func(c *engineConfig) {
		c.dir = dir
		c.manifest = m
	}
}

// WithStore attaches the manifest store used for build history.
func WithStore(database *db.DB) Option {
	return func(c *engineConfig) { c.database = database }
}

// WithCacheSize sets the resolve cache size.
func WithCacheSize(n int) Option {
	return func(c *engineConfig) { c.cacheSize = n }
}

// WithSearchLimit sets the most slot assignments one FindCombinations call
// may enumerate.
func WithSearchLimit(n int) Option {
	return func(c *engineConfig) { c.maxSearch = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *engineConfig) { c.logger = l }
}

// New creates a new Engine over cat.
func New(cat *catalog.Catalog, opts ...Option) (*Engine, error) {
	cfg := engineConfig{cacheSize: DefaultCacheSize, maxSearch: MaxSearchSpace}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	cache, err := lru.New[multichoose.Combination, cooking.ResolvedRecipe](cfg.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating resolve cache: %w", err)
	}
	e := &Engine{
		cat:       cat,
		resolver:  cook.New(cat),
		table:     multichoose.New(cat.NumGroups()),
		cache:     cache,
		logger:    cfg.logger,
		maxSearch: cfg.maxSearch,
	}

	if cfg.manifest != nil {
		if cfg.manifest.NumGroups != cat.NumGroups() || cfg.manifest.Meta.Total != e.table.Total() {
			return nil, fmt.Errorf("database holds %d records for %d groups, catalog needs %d for %d",
				cfg.manifest.Meta.Total, cfg.manifest.NumGroups, e.table.Total(), cat.NumGroups())
		}
		if cfg.manifest.CatalogDigest != "" && cfg.manifest.CatalogDigest != cat.Digest {
			e.logger.Warn("database was built from a different catalog",
				"built", cfg.manifest.CatalogDigest, "loaded", cat.Digest)
		}
		e.manifest = cfg.manifest
		e.reader = rdb.NewReader(cfg.dir, cfg.manifest.Meta)
	}
	if cfg.database != nil {
		e.builds = db.NewBuildStore(cfg.database)
	}
	return e, nil
}

// Catalog returns the catalog the engine answers from.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.cat
}

// resolve returns the cooked result of a non-empty combination, consulting
// the cache first.
func (e *Engine) resolve(c multichoose.Combination) (cooking.ResolvedRecipe, error) {
	if res, ok := e.cache.Get(c); ok {
		return res, nil
	}
	var buf [multichoose.Slots]cooking.GroupID
	res, err := e.resolver.Resolve(c.Ingredients(buf[:0]))
	if err != nil {
		return cooking.ResolvedRecipe{}, err
	}
	e.cache.Add(c, res)
	return res, nil
}

// lookupNames maps ingredient names to group ids.
func (e *Engine) lookupNames(names []string) ([]cooking.GroupID, error) {
	ids := make([]cooking.GroupID, 0, len(names))
	for _, n := range names {
		id, ok := e.cat.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("%q: %w", n, ErrUnknownIngredient)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// combinationOf turns 1 to 5 ingredient names into their canonical combination.
func (e *Engine) combinationOf(names []string) (multichoose.Combination, error) {
	if len(names) == 0 || len(names) > multichoose.Slots {
		return multichoose.Combination{}, fmt.Errorf("%d ingredients, want 1 to %d: %w",
			len(names), multichoose.Slots, ErrInvalidRequest)
	}
	ids, err := e.lookupNames(names)
	if err != nil {
		return multichoose.Combination{}, err
	}
	return multichoose.Canonical(ids)
}

// namesOf lists the ingredient names of a combination.
func (e *Engine) namesOf(c multichoose.Combination) []string {
	var buf [multichoose.Slots]cooking.GroupID
	return e.cat.Names(c.Ingredients(buf[:0]))
}

// latestBuild returns the last recorded build, or nil without a store.
func (e *Engine) latestBuild(ctx context.Context) (*cooking.BuildInfo, error) {
	if e.builds == nil {
		return nil, nil
	}
	return e.builds.LatestBuild(ctx)
}
