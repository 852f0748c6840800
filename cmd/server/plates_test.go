package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joris-gentinetta/vizarr/internal/api"
	"github.com/joris-gentinetta/vizarr/internal/catalog"
	"github.com/joris-gentinetta/vizarr/internal/config"
	"github.com/joris-gentinetta/vizarr/internal/geometry"
	"github.com/joris-gentinetta/vizarr/internal/raster"
)

func TestPlateIDFromPath(t *testing.T) {
	tests := map[string]string{
		"/data/Plate_01.zarr":    "plate_01",
		"relative/my plate.zarr": "my-plate",
		"/x/HCS.v2.zarr":         "hcs-v2",
	}
	for in, want := range tests {
		if got := plateIDFromPath(in); got != want {
			t.Errorf("plateIDFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDemoCells(t *testing.T) {
	rows, cols, cells := demoCells(config.DemoConfig{Rows: 2, Columns: 3, Size: 64, Levels: 3, Channels: 2})
	if len(rows) != 2 || len(cols) != 3 || len(cells) != 6 {
		t.Fatalf("rows=%v cols=%v cells=%d", rows, cols, len(cells))
	}
	last := cells[5]
	if last.Name != "B3" || last.Row != 1 || last.Col != 2 {
		t.Fatalf("last cell = %+v", last)
	}
	if len(last.Sources) != 3 {
		t.Fatalf("levels = %d", len(last.Sources))
	}
	w, h, err := raster.PlaneSize(last.Sources[2])
	if err != nil || w != 16 || h != 16 {
		t.Fatalf("level 2 size = %dx%d, %v", w, h, err)
	}
}

func TestGridOptions_ConfiguredLabelsWin(t *testing.T) {
	s := config.PlateSettings{Spacer: 3, Concurrency: 4, Pickable: true, RowLabels: []string{"R1", "R2"}}
	opts := gridOptions(s, []string{"A", "B"}, []string{"1", "2", "3"})
	if opts.Rows != 2 || opts.Columns != 3 {
		t.Fatalf("size = %dx%d", opts.Rows, opts.Columns)
	}
	if opts.RowLabel(1) != "R2" || opts.ColumnLabel(2) != "3" {
		t.Fatalf("labels = %v %v", opts.RowLabels, opts.ColumnLabels)
	}
	if opts.Spacer != 3 || opts.Concurrency != 4 || !opts.Pickable || opts.ShowLabels || opts.Model != nil {
		t.Fatalf("opts = %+v", opts)
	}

	m := geometry.Translate(5, 5)
	s.Model = &m
	if opts := gridOptions(s, []string{"A"}, []string{"1"}); opts.Model != &m {
		t.Fatalf("model not carried into grid options")
	}
}

func TestRegisterDemo(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Demo = config.DemoConfig{Rows: 1, Columns: 2, Size: 32, Levels: 2, Channels: 1}
	registry := api.NewPlateRegistry(cfg.Server.Title)
	b := &plateBuilder{cfg: cfg, registry: registry}

	if err := b.registerDemo(); err != nil {
		t.Fatalf("registerDemo: %v", err)
	}
	svc := registry.Get("demo")
	if svc == nil {
		t.Fatal("demo plate not registered")
	}
	if svc.MaxLevel() != 1 || svc.ActiveLevel() != 1 {
		t.Fatalf("max=%d active=%d", svc.MaxLevel(), svc.ActiveLevel())
	}
}

func TestImportPlate_KeepsConfiguredPlates(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Demo = config.DemoConfig{Rows: 1, Columns: 1, Size: 16, Levels: 1, Channels: 1}
	registry := api.NewPlateRegistry("")
	b := &plateBuilder{cfg: cfg, registry: registry}
	if err := b.registerDemo(); err != nil {
		t.Fatalf("registerDemo: %v", err)
	}
	demo := registry.Get("demo")

	_, err := b.importPlate(context.Background(), "/plates/other.zarr", "demo")
	if !errors.Is(err, errPlateIDTaken) {
		t.Fatalf("err = %v, want errPlateIDTaken", err)
	}
	if registry.Get("demo") != demo || registry.Source("demo") != api.SourceDemo {
		t.Fatal("demo plate was replaced")
	}

	// A derived ID is checked the same way.
	if _, err := b.importPlate(context.Background(), "/plates/Demo.zarr", ""); !errors.Is(err, errPlateIDTaken) {
		t.Fatalf("derived id: err = %v", err)
	}
}

func TestRegisterCatalogued_UsesStoredWells(t *testing.T) {
	b := &plateBuilder{cfg: config.DefaultConfig(), registry: api.NewPlateRegistry("")}
	rec := &catalog.Plate{
		ID:           "stale",
		ZarrPath:     "/plates/stale.zarr",
		RowLabels:    []string{"A"},
		ColumnLabels: []string{"1"},
		Wells:        []catalog.Well{{Path: "B/1", Row: 1, Column: 0}},
		ImportedAt:   time.Now(),
	}
	if err := b.registerCatalogued(context.Background(), rec); err == nil {
		t.Fatal("expected error for a stored well outside the layout")
	}
	if b.registry.Has("stale") {
		t.Fatal("plate registered despite error")
	}
}
