package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDerivesFixedDirectoryLayout(t *testing.T) {
	root := t.TempDir()

	cfg, err := Load(root, ":8080", 4, true, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	wantRoot, err := filepath.Abs(root)
	if err != nil {
		t.Fatalf("filepath.Abs: %v", err)
	}
	if cfg.Root != wantRoot {
		t.Fatalf("Root = %q, want %q", cfg.Root, wantRoot)
	}

	for _, tc := range []struct {
		name string
		got  string
	}{
		{"New", cfg.Dirs.New},
		{"Library", cfg.Dirs.Library},
		{"Duplicate", cfg.Dirs.Duplicate},
		{"Trash", cfg.Dirs.Trash},
		{"Unlocked", cfg.Dirs.Unlocked},
		{"Thumbnail", cfg.Dirs.Thumbnail},
	} {
		if filepath.Dir(tc.got) != wantRoot {
			t.Fatalf("%s dir %q is not rooted under %q", tc.name, tc.got, wantRoot)
		}
	}

	if cfg.CatalogPath != filepath.Join(wantRoot, "catalog.json") {
		t.Fatalf("CatalogPath = %q", cfg.CatalogPath)
	}
	if cfg.Addr != ":8080" || cfg.Workers != 4 || !cfg.Verbose {
		t.Fatalf("unexpected scalar fields: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 0 {
		t.Fatalf("CORSOrigins should be empty when none were passed, got %v", cfg.CORSOrigins)
	}
}

func TestLoadSplitsCORSOrigins(t *testing.T) {
	cfg, err := Load(t.TempDir(), ":8080", 0, false, "http://a,http://b")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != "http://a" || cfg.CORSOrigins[1] != "http://b" {
		t.Fatalf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestEnsureDirsCreatesEveryDirectory(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root, ":8080", 0, false, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}

	for _, dir := range []string{cfg.Dirs.New, cfg.Dirs.Library, cfg.Dirs.Duplicate, cfg.Dirs.Trash, cfg.Dirs.Unlocked, cfg.Dirs.Thumbnail} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %q: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("%q is not a directory", dir)
		}
	}
}
