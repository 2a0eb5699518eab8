// Package config resolves the service's filesystem layout and runtime
// options from CLI flags into one Config, the way cmd/um's appMain resolves
// input/output paths before handing them to a processor.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mayi-music/core/internal/httpapi"
)

// Config is everything cmd/mayi-music needs to build a catalog, an ingest
// router, an unlock pool, and an HTTP server out of one root directory.
type Config struct {
	Root string

	Dirs httpapi.Dirs

	CatalogPath string
	Addr        string
	Workers     int
	Verbose     bool
	CORSOrigins []string

	QMCMMKVPath string
	QMCMMKVKey  string
}

// Load resolves root (made absolute) into a Config, deriving every
// sub-directory the service's fixed filesystem layout names: Library/, New/,
// Duplicate/, Trash/, Unlocked/, thumbnails/, plus a catalog.json file at
// the root.
func Load(root, addr string, workers int, verbose bool, corsOrigins string) (*Config, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}

	var origins []string
	if corsOrigins != "" {
		origins = strings.Split(corsOrigins, ",")
	}

	return &Config{
		Root: root,
		Dirs: httpapi.Dirs{
			New:       filepath.Join(root, "New"),
			Library:   filepath.Join(root, "Library"),
			Duplicate: filepath.Join(root, "Duplicate"),
			Trash:     filepath.Join(root, "Trash"),
			Unlocked:  filepath.Join(root, "Unlocked"),
			Thumbnail: filepath.Join(root, "thumbnails"),
		},
		CatalogPath: filepath.Join(root, "catalog.json"),
		Addr:        addr,
		Workers:     workers,
		Verbose:     verbose,
		CORSOrigins: origins,
	}, nil
}

// EnsureDirs creates every directory in Dirs that doesn't already exist,
// the layout a fresh service root needs before ingestion or unlock can run.
func (cfg *Config) EnsureDirs() error {
	for _, dir := range []string{cfg.Dirs.New, cfg.Dirs.Library, cfg.Dirs.Duplicate, cfg.Dirs.Trash, cfg.Dirs.Unlocked, cfg.Dirs.Thumbnail} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
