// Package sync moves the database manifest between the SQLite store and the
// portable index.yaml file kept next to the chunk files.
package sync

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rsned/cookdb/internal/cooking/db"
	"github.com/rsned/cookdb/internal/cooking/rdb"
	"github.com/rsned/cookdb/pkg/cooking"
)

// ManifestVersion is the index.yaml format version written by this package.
const ManifestVersion = 1

// Syncer copies manifests in and out of the database.
type Syncer struct {
	db *db.DB
}

// NewSyncer creates a new Syncer.
func NewSyncer(database *db.DB) *Syncer {
	return &Syncer{db: database}
}

// ManifestFile is the on-disk shape of index.yaml.
type ManifestFile struct {
	Version       int           `yaml:"version"`
	NumGroups     int           `yaml:"num_groups"`
	CatalogDigest string        `yaml:"catalog_digest,omitempty"`
	ChunkSize     uint32        `yaml:"chunk_size"`
	TotalRecords  uint64        `yaml:"total_records"`
	Crit          string        `yaml:"crit"`
	Chunks        []ChunkImport `yaml:"chunks"`
}

// ChunkImport is one chunk entry of index.yaml.
type ChunkImport struct {
	ID           uint32   `yaml:"id"`
	SHA256       string   `yaml:"sha256"`
	MinValue     int      `yaml:"min_value"`
	MaxValue     int      `yaml:"max_value"`
	MaxValueCrit int      `yaml:"max_value_crit"`
	Includes     []string `yaml:"includes_modifier,flow,omitempty"`
	AllIncludes  []string `yaml:"all_includes_modifier,flow,omitempty"`
	MinPrice     uint32   `yaml:"min_price"`
	MaxPrice     uint32   `yaml:"max_price"`
}

// MarshalManifest renders m as index.yaml.
func MarshalManifest(m *rdb.Manifest) ([]byte, error) {
	file := ManifestFile{
		Version:       ManifestVersion,
		NumGroups:     m.NumGroups,
		CatalogDigest: m.CatalogDigest,
		ChunkSize:     m.Meta.ChunkSize,
		TotalRecords:  m.Meta.Total,
		Crit:          m.CritSHA256,
		Chunks:        make([]ChunkImport, 0, len(m.Chunks)),
	}
	for _, c := range m.Chunks {
		file.Chunks = append(file.Chunks, exportChunk(c))
	}
	data, err := yaml.Marshal(&file)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return data, nil
}

// UnmarshalManifest parses and validates index.yaml content.
func UnmarshalManifest(data []byte) (*rdb.Manifest, error) {
	var file ManifestFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if file.Version != ManifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", file.Version)
	}
	meta, err := rdb.NewMeta(file.TotalRecords, file.ChunkSize)
	if err != nil {
		return nil, err
	}
	if err := checkDigest(file.Crit); err != nil {
		return nil, fmt.Errorf("crit: %w", err)
	}

	m := &rdb.Manifest{
		Meta:          meta,
		NumGroups:     file.NumGroups,
		CatalogDigest: file.CatalogDigest,
		CritSHA256:    file.Crit,
		Chunks:        make([]cooking.ChunkIndex, 0, len(file.Chunks)),
	}
	seen := make(map[uint32]bool, len(file.Chunks))
	for _, imp := range file.Chunks {
		if imp.ID >= meta.ChunkCount {
			return nil, fmt.Errorf("chunk %d beyond %d chunks", imp.ID, meta.ChunkCount)
		}
		if seen[imp.ID] {
			return nil, fmt.Errorf("chunk %d listed twice", imp.ID)
		}
		seen[imp.ID] = true
		c, err := transformChunk(imp)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", imp.ID, err)
		}
		m.Chunks = append(m.Chunks, c)
	}
	return m, nil
}

// LoadManifestFile reads an index.yaml file.
func LoadManifestFile(path string) (*rdb.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return UnmarshalManifest(data)
}

// WriteManifestFile writes m to path as index.yaml.
func WriteManifestFile(path string, m *rdb.Manifest) error {
	data, err := MarshalManifest(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// ExportToFile writes the stored manifest to path.
func (s *Syncer) ExportToFile(ctx context.Context, path string) error {
	m, err := db.LoadManifest(ctx, s.db)
	if err != nil {
		return err
	}
	return WriteManifestFile(path, m)
}

// ImportFromFile replaces the stored manifest with the content of path.
func (s *Syncer) ImportFromFile(ctx context.Context, path string) error {
	m, err := LoadManifestFile(path)
	if err != nil {
		return err
	}
	if err := db.NewChunkStore(s.db).Clear(ctx); err != nil {
		return err
	}
	if err := db.SaveManifest(ctx, s.db, "", m); err != nil {
		return fmt.Errorf("storing manifest: %w", err)
	}

	// Update sync metadata
	if err := s.db.SetMetadata(ctx, "manifest_last_import", time.Now().Format(time.RFC3339)); err != nil {
		return err
	}
	return nil
}

func exportChunk(c cooking.ChunkIndex) ChunkImport {
	return ChunkImport{
		ID:           c.Chunk,
		SHA256:       c.SHA256,
		MinValue:     c.MinValue,
		MaxValue:     c.MaxValue,
		MaxValueCrit: c.MaxValueCrit,
		Includes:     c.IncludesModifier.Names(),
		AllIncludes:  c.AllIncludesModifier.Names(),
		MinPrice:     c.MinPrice,
		MaxPrice:     c.MaxPrice,
	}
}

func transformChunk(imp ChunkImport) (cooking.ChunkIndex, error) {
	if err := checkDigest(imp.SHA256); err != nil {
		return cooking.ChunkIndex{}, err
	}
	includes, err := cooking.ParseWeaponModifiers(imp.Includes)
	if err != nil {
		return cooking.ChunkIndex{}, err
	}
	all, err := cooking.ParseWeaponModifiers(imp.AllIncludes)
	if err != nil {
		return cooking.ChunkIndex{}, err
	}
	return cooking.ChunkIndex{
		Chunk:               imp.ID,
		MinValue:            imp.MinValue,
		MaxValue:            imp.MaxValue,
		MaxValueCrit:        imp.MaxValueCrit,
		IncludesModifier:    includes,
		AllIncludesModifier: all,
		MinPrice:            imp.MinPrice,
		MaxPrice:            imp.MaxPrice,
		SHA256:              imp.SHA256,
	}, nil
}

func checkDigest(s string) error {
	if b, err := hex.DecodeString(s); err != nil || len(b) != 32 {
		return fmt.Errorf("%q is not a SHA-256 hex digest", s)
	}
	return nil
}
