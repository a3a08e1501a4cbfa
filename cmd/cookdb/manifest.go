package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rsned/cookdb/internal/cooking/db"
	"github.com/rsned/cookdb/internal/cooking/rdb"
	"github.com/rsned/cookdb/internal/cooking/sync"
)

// openStore opens the SQLite store at path, or returns nil for an empty path.
func openStore(ctx context.Context, path string) (*db.DB, error) {
	if path == "" {
		return nil, nil
	}
	database, err := db.OpenAndInit(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return database, nil
}

// loadManifest reads the manifest from database when one is open, otherwise
// from path, otherwise from the index.yaml inside dir.
func loadManifest(ctx context.Context, database *db.DB, path, dir string) (*rdb.Manifest, error) {
	if database != nil {
		return db.LoadManifest(ctx, database)
	}
	if path == "" {
		path = rdb.IndexPath(dir)
	}
	return sync.LoadManifestFile(path)
}

func runManifest(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || (args[0] != "export" && args[0] != "import") {
		fmt.Fprintln(stderr, "usage: cookdb manifest export|import -db FILE -file index.yaml")
		return errUsage
	}
	op := args[0]

	fs, verbose := newFlagSet("manifest "+op, stderr)
	dbPath := fs.String("db", "", "Path to SQLite database")
	file := fs.String("file", "", "Path to the YAML manifest")
	if err := parseFlags(fs, args[1:]); err != nil {
		return err
	}
	if err := required(fs, "db", "file"); err != nil {
		return err
	}
	logger := newLogger(stderr, *verbose)

	database, err := openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	syncer := sync.NewSyncer(database)
	if op == "export" {
		logger.Info("exporting manifest", "db", *dbPath, "file", *file)
		if err := syncer.ExportToFile(ctx, *file); err != nil {
			return fmt.Errorf("exporting manifest: %w", err)
		}
	} else {
		logger.Info("importing manifest", "db", *dbPath, "file", *file)
		if err := syncer.ImportFromFile(ctx, *file); err != nil {
			return fmt.Errorf("importing manifest: %w", err)
		}
	}
	fmt.Fprintf(stdout, "manifest %sed\n", op)
	return nil
}
