package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joris-gentinetta/vizarr/internal/geometry"
)

func TestLoad_PlatesKeepFileOrder(t *testing.T) {
	content := `
server:
  port: 9000
plates:
  screen-b:
    zarr_path: "/data/b.zarr"
    title: "Screen B"
  screen-a:
    zarr_path: "/data/a.zarr"
    spacer: 0
    pickable: false
    row_labels: ["A", "B"]
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}

	// First plate in YAML order should be default
	if cfg.Plates.Default != "screen-b" {
		t.Errorf("expected default plate 'screen-b', got %q", cfg.Plates.Default)
	}
	ids := cfg.Plates.IDs()
	if len(ids) != 2 || ids[0] != "screen-b" || ids[1] != "screen-a" {
		t.Errorf("unexpected plate order: %v", ids)
	}

	b, ok := cfg.Plate("screen-b")
	if !ok {
		t.Fatal("expected 'screen-b' plate")
	}
	if b.Title != "Screen B" || b.ZarrPath != "/data/b.zarr" {
		t.Errorf("unexpected screen-b settings: %+v", b)
	}
	if b.Spacer != 5 || b.Concurrency != 10 || !b.ShowLabels || !b.Pickable {
		t.Errorf("expected grid defaults on screen-b, got %+v", b)
	}

	a, ok := cfg.Plate("screen-a")
	if !ok {
		t.Fatal("expected 'screen-a' plate")
	}
	if a.Spacer != 0 || a.Pickable {
		t.Errorf("expected overrides on screen-a, got %+v", a)
	}
	if a.Title != "screen-a" {
		t.Errorf("expected title to default to id, got %q", a.Title)
	}
	if len(a.RowLabels) != 2 {
		t.Errorf("unexpected row labels: %v", a.RowLabels)
	}
}

func TestLoad_GridDefaultsOverride(t *testing.T) {
	content := `
grid:
  spacer: 20
  concurrency: 4
  show_labels: false
plates:
  p:
    zarr_path: "/p.zarr"
    concurrency: 0
`
	cfg := loadFromString(t, content)

	p, _ := cfg.Plate("p")
	if p.Spacer != 20 || p.ShowLabels || !p.Pickable {
		t.Errorf("unexpected settings: %+v", p)
	}
	if p.Concurrency != 0 {
		t.Errorf("explicit concurrency 0 should mean unbounded, got %d", p.Concurrency)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
server:
  port: 0
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Cache.TileSizeMB != 512 {
		t.Errorf("expected default cache size 512, got %d", cfg.Cache.TileSizeMB)
	}
	if cfg.Cache.ChunkCacheEntries != 1024 {
		t.Errorf("expected default chunk cache entries 1024, got %d", cfg.Cache.ChunkCacheEntries)
	}
	if cfg.Catalog.SQLitePath == "" {
		t.Error("expected default sqlite path")
	}
	if len(cfg.Plates.IDs()) != 0 || cfg.Plates.Default != "" {
		t.Errorf("expected no plates, got %v", cfg.Plates.IDs())
	}
	if cfg.Demo.Rows != 2 || cfg.Demo.Levels != 4 {
		t.Errorf("unexpected demo defaults: %+v", cfg.Demo)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := map[string]string{
		"plates not a mapping": "plates:\n  - a\n",
		"missing zarr_path":    "plates:\n  p:\n    title: x\n",
		"short model scale":    "plates:\n  p:\n    zarr_path: /p.zarr\n    model:\n      scale: [2]\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatalf("failed to write temp config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoad_PlateModel(t *testing.T) {
	content := `
plates:
  placed:
    zarr_path: "/p.zarr"
    model:
      scale: [2, 0.5]
      translate: [100, -40]
  plain:
    zarr_path: "/q.zarr"
`
	cfg := loadFromString(t, content)

	p, _ := cfg.Plate("placed")
	if p.Model == nil {
		t.Fatal("expected a model transform")
	}
	got := p.Model.Apply(geometry.Point{X: 10, Y: 10})
	if got != (geometry.Point{X: 120, Y: -35}) {
		t.Errorf("model maps (10,10) to %+v, want (120,-35)", got)
	}

	if q, _ := cfg.Plate("plain"); q.Model != nil {
		t.Errorf("expected no model on plain plate, got %+v", q.Model)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default config, got port %d", cfg.Server.Port)
	}
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
