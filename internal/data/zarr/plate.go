package zarr

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/joris-gentinetta/vizarr/internal/grid"
)

// openWorkers bounds how many wells are opened at once.
const openWorkers = 8

type plateMeta struct {
	Name    string  `json:"name,omitempty"`
	Rows    []named `json:"rows"`
	Columns []named `json:"columns"`
	Wells   []struct {
		Path        string `json:"path"`
		RowIndex    int    `json:"rowIndex"`
		ColumnIndex int    `json:"columnIndex"`
	} `json:"wells"`
}

type wellMeta struct {
	Images []struct {
		Path string `json:"path"`
	} `json:"images"`
}

type named struct {
	Name string `json:"name"`
}

// Well is one populated plate position.
type Well struct {
	Path   string `json:"path"`
	Row    int    `json:"row"`
	Column int    `json:"column"`
}

// Plate is an HCS plate layout. Wells are opened lazily by Cells.
type Plate struct {
	Path    string
	Name    string
	Rows    []string
	Columns []string
	Wells   []Well

	chunks  ChunkCache
	decoder *zstd.Decoder
}

// OpenPlate reads the plate layout at path. chunks may be nil.
func OpenPlate(path string, chunks ChunkCache) (*Plate, error) {
	attrs, err := loadGroupMeta(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load plate metadata: %w", err)
	}
	if attrs.Plate == nil {
		return nil, fmt.Errorf("%s has no plate metadata", path)
	}
	pm := attrs.Plate

	name := pm.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), ".zarr")
	}
	var rows, columns []string
	for _, r := range pm.Rows {
		rows = append(rows, r.Name)
	}
	for _, c := range pm.Columns {
		columns = append(columns, c.Name)
	}
	wells := make([]Well, 0, len(pm.Wells))
	for _, w := range pm.Wells {
		wells = append(wells, Well{Path: w.Path, Row: w.RowIndex, Column: w.ColumnIndex})
	}
	return NewPlate(path, name, rows, columns, wells, chunks)
}

// NewPlate builds a plate from a layout recorded elsewhere, without reading
// the plate metadata. Wells must lie inside the rows x columns grid.
func NewPlate(path, name string, rows, columns []string, wells []Well, chunks ChunkCache) (*Plate, error) {
	for _, w := range wells {
		if w.Row < 0 || w.Row >= len(rows) || w.Column < 0 || w.Column >= len(columns) {
			return nil, fmt.Errorf("well %s at %d/%d outside %dx%d plate", w.Path, w.Row, w.Column, len(rows), len(columns))
		}
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &Plate{
		Path:    path,
		Name:    name,
		Rows:    rows,
		Columns: columns,
		Wells:   wells,
		chunks:  chunks,
		decoder: decoder,
	}, nil
}

// Cells opens the first field of every well and returns one cell per well,
// in well order.
func (p *Plate) Cells(ctx context.Context) ([]grid.CellSpec, error) {
	specs := make([]grid.CellSpec, len(p.Wells))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(openWorkers)
	for i, w := range p.Wells {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			wellPath := filepath.Join(p.Path, w.Path)
			field := "0"
			if attrs, err := loadGroupMeta(wellPath); err == nil && attrs.Well != nil && len(attrs.Well.Images) > 0 {
				field = attrs.Well.Images[0].Path
			}
			pyr, err := openPyramid(filepath.Join(wellPath, field), p.decoder, p.chunks)
			if err != nil {
				return fmt.Errorf("failed to open well %s: %w", w.Path, err)
			}
			specs[i] = grid.CellSpec{
				Row:     w.Row,
				Col:     w.Column,
				Name:    p.Rows[w.Row] + p.Columns[w.Column],
				Sources: pyr.Sources(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return specs, nil
}

// Close releases the shared decoder. Sources returned by Cells must not be
// used afterwards.
func (p *Plate) Close() {
	if p.decoder != nil {
		p.decoder.Close()
	}
}
