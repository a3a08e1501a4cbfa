package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rsned/cookdb/internal/cooking/catalog"
	"github.com/rsned/cookdb/internal/cooking/engine"
	"github.com/rsned/cookdb/internal/cooking/mcp"
)

func runServe(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, verbose := newFlagSet("serve", stderr)
	catalogPath := fs.String("catalog", "", "Path to the catalog JSON file")
	outDir := fs.String("out", "", "Database directory (optional)")
	dbPath := fs.String("db", "", "Path to SQLite database (optional)")
	cacheSize := fs.Int("cache", engine.DefaultCacheSize, "Resolved recipes kept in memory")
	searchLimit := fs.Int("search-limit", engine.MaxSearchSpace, "Largest find_combinations search space")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required(fs, "catalog"); err != nil {
		return err
	}
	logger := newLogger(stderr, *verbose)

	cat, err := catalog.Load(*catalogPath)
	if err != nil {
		return err
	}
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithCacheSize(*cacheSize),
		engine.WithSearchLimit(*searchLimit),
	}

	database, err := openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	if database != nil {
		defer func() { _ = database.Close() }()
		opts = append(opts, engine.WithStore(database))
	}
	if *outDir != "" {
		m, err := loadManifest(ctx, database, "", *outDir)
		if err != nil {
			return fmt.Errorf("loading manifest: %w", err)
		}
		opts = append(opts, engine.WithDatabase(*outDir, m))
	}

	eng, err := engine.New(cat, opts...)
	if err != nil {
		return err
	}
	server := mcp.NewServer(eng, logger)

	logger.Info("starting MCP server", "catalog", *catalogPath, "out", *outDir, "db", *dbPath)
	if err := server.Serve(ctx, os.Stdin, stdout); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}
	fmt.Fprintln(stderr, "server stopped")
	return nil
}
