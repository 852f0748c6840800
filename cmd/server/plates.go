package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joris-gentinetta/vizarr/internal/api"
	"github.com/joris-gentinetta/vizarr/internal/catalog"
	"github.com/joris-gentinetta/vizarr/internal/config"
	"github.com/joris-gentinetta/vizarr/internal/data/zarr"
	"github.com/joris-gentinetta/vizarr/internal/grid"
	"github.com/joris-gentinetta/vizarr/internal/loader"
	"github.com/joris-gentinetta/vizarr/internal/metrics"
	"github.com/joris-gentinetta/vizarr/internal/raster"
	"github.com/joris-gentinetta/vizarr/internal/service"
)

// plateBuilder turns plate settings into registered grid services.
type plateBuilder struct {
	cfg      *config.Config
	chunks   zarr.ChunkCache
	loader   *loader.Loader
	metrics  *metrics.Metrics
	registry *api.PlateRegistry
	store    *catalog.Store

	mu     sync.Mutex
	opened []*zarr.Plate
}

// gridOptions builds grid options for a plate. Configured labels win over
// the labels stored in the plate.
func gridOptions(s config.PlateSettings, rows, columns []string) grid.Options {
	opts := grid.Options{
		Rows:         len(rows),
		Columns:      len(columns),
		RowLabels:    rows,
		ColumnLabels: columns,
		Spacer:       s.Spacer,
		Model:        s.Model,
		Concurrency:  s.Concurrency,
		ShowLabels:   s.ShowLabels,
		Pickable:     s.Pickable,
	}
	if len(s.RowLabels) > 0 {
		opts.RowLabels = s.RowLabels
	}
	if len(s.ColumnLabels) > 0 {
		opts.ColumnLabels = s.ColumnLabels
	}
	return opts
}

// errPlateIDTaken is returned when an import would replace a plate that was
// not imported.
var errPlateIDTaken = errors.New("plate id already in use")

// register opens the plate at s.ZarrPath and registers it under s.ID.
func (b *plateBuilder) register(ctx context.Context, s config.PlateSettings) error {
	plate, err := zarr.OpenPlate(s.ZarrPath, b.chunks)
	if err != nil {
		return err
	}
	return b.serve(ctx, s, plate, api.SourceConfig)
}

// registerCatalogued registers a catalogued plate from its stored wells,
// without re-reading the plate metadata.
func (b *plateBuilder) registerCatalogued(ctx context.Context, rec *catalog.Plate) error {
	wells := make([]zarr.Well, 0, len(rec.Wells))
	for _, w := range rec.Wells {
		wells = append(wells, zarr.Well{Path: w.Path, Row: w.Row, Column: w.Column})
	}
	plate, err := zarr.NewPlate(rec.ZarrPath, rec.Name, rec.RowLabels, rec.ColumnLabels, wells, b.chunks)
	if err != nil {
		return err
	}
	return b.serve(ctx, b.catalogSettings(rec), plate, api.SourceCatalog)
}

// serve opens the wells of plate and registers the grid. plate is closed on
// failure and on shutdown otherwise.
func (b *plateBuilder) serve(ctx context.Context, s config.PlateSettings, plate *zarr.Plate, source api.PlateSource) error {
	cells, err := plate.Cells(ctx)
	if err != nil {
		plate.Close()
		return err
	}

	svc, err := service.NewGridService(service.GridServiceConfig{
		PlateID:    s.ID,
		Cells:      cells,
		Options:    gridOptions(s, plate.Rows, plate.Columns),
		Loader:     b.loader,
		Metrics:    b.metrics,
		Selections: s.Selections,
	})
	if err != nil {
		plate.Close()
		return fmt.Errorf("failed to create grid for plate %q: %w", s.ID, err)
	}

	title := s.Title
	if title == "" {
		title = plate.Name
	}
	b.registry.Register(s.ID, title, source, svc)
	log.Printf("  [%s] %dx%d %s plate, %d wells, max level %d: %s",
		s.ID, len(plate.Rows), len(plate.Columns), source, len(plate.Wells), svc.MaxLevel(), plate.Path)

	b.mu.Lock()
	b.opened = append(b.opened, plate)
	b.mu.Unlock()
	return nil
}

// close releases every plate opened by register.
func (b *plateBuilder) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.opened {
		p.Close()
	}
	b.opened = nil
}

// catalogSettings resolves a catalogued plate against the grid defaults.
func (b *plateBuilder) catalogSettings(p *catalog.Plate) config.PlateSettings {
	s := b.cfg.GridSettings(config.GridConfig{})
	s.ID = p.ID
	s.Title = p.Name
	s.ZarrPath = p.ZarrPath
	s.RowLabels = p.RowLabels
	s.ColumnLabels = p.ColumnLabels
	return s
}

// importPlate catalogs the plate at zarrPath and registers it. An empty
// plateID derives one from the directory name. Configured and demo plates
// are never replaced.
func (b *plateBuilder) importPlate(ctx context.Context, zarrPath, plateID string) (string, error) {
	abs, err := filepath.Abs(zarrPath)
	if err != nil {
		return "", err
	}
	if plateID == "" {
		plateID = plateIDFromPath(abs)
	}
	if b.registry != nil {
		if src := b.registry.Source(plateID); src != "" && src != api.SourceCatalog {
			return "", fmt.Errorf("%w: %q is a %s plate", errPlateIDTaken, plateID, src)
		}
	}

	plate, err := zarr.OpenPlate(abs, nil)
	if err != nil {
		return "", err
	}
	defer plate.Close()

	rec := &catalog.Plate{
		ID:           plateID,
		Name:         plate.Name,
		ZarrPath:     abs,
		RowLabels:    plate.Rows,
		ColumnLabels: plate.Columns,
		ImportedAt:   time.Now(),
	}
	for _, w := range plate.Wells {
		rec.Wells = append(rec.Wells, catalog.Well{Path: w.Path, Row: w.Row, Column: w.Column})
	}
	if b.store != nil {
		if err := b.store.UpsertPlate(rec); err != nil {
			return "", fmt.Errorf("failed to catalog plate: %w", err)
		}
	}
	if b.registry != nil {
		if err := b.registerCatalogued(ctx, rec); err != nil {
			return "", err
		}
	}
	return plateID, nil
}

func plateIDFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), ".zarr")
	base = strings.ToLower(base)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, base)
}

// demoCells builds an in-memory plate whose wells have halving pyramids.
func demoCells(d config.DemoConfig) (rows, columns []string, cells []grid.CellSpec) {
	for r := 0; r < d.Rows; r++ {
		rows = append(rows, string(rune('A'+r%26)))
	}
	for c := 0; c < d.Columns; c++ {
		columns = append(columns, fmt.Sprintf("%d", c+1))
	}
	for r := range rows {
		for c := range columns {
			name := rows[r] + columns[c]
			var sources []raster.Source
			size := d.Size
			for lvl := 0; lvl < d.Levels && size > 0; lvl++ {
				sources = append(sources, raster.NewMemorySource(
					fmt.Sprintf("demo/%s/%d", name, lvl),
					[]string{"t", "c", "z", "y", "x"},
					[]int{1, d.Channels, 1, size, size},
				))
				size /= 2
			}
			cells = append(cells, grid.CellSpec{Row: r, Col: c, Name: name, Sources: sources})
		}
	}
	return rows, columns, cells
}

func (b *plateBuilder) registerDemo() error {
	rows, columns, cells := demoCells(b.cfg.Demo)
	s := b.cfg.GridSettings(config.GridConfig{})
	svc, err := service.NewGridService(service.GridServiceConfig{
		PlateID: "demo",
		Cells:   cells,
		Options: gridOptions(s, rows, columns),
		Loader:  b.loader,
		Metrics: b.metrics,
	})
	if err != nil {
		return err
	}
	b.registry.Register("demo", "Demo plate", api.SourceDemo, svc)
	log.Printf("  [demo] %dx%d in-memory plate, max level %d", len(rows), len(columns), svc.MaxLevel())
	return nil
}
