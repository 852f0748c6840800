package grid

import (
	"fmt"

	"github.com/zyedidia/generic/mapset"

	"github.com/joris-gentinetta/vizarr/internal/geometry"
	"github.com/joris-gentinetta/vizarr/internal/raster"
)

// CellSpec describes one grid position and its pyramid, finest level first.
// The grid treats it as read-only.
type CellSpec struct {
	Row     int
	Col     int
	Name    string
	Sources []raster.Source
}

// Position identifies a cell by (row, column).
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// VisibleCell pairs a cell with its full bounds and the part of it inside the
// viewport.
type VisibleCell struct {
	Spec    CellSpec
	Bounds  geometry.Bounds
	Visible geometry.Bounds
}

// Context is a per-frame snapshot of the grid. It is rebuilt, never mutated,
// when the cells or the viewport change.
type Context struct {
	CellWidth  int
	CellHeight int
	Spacer     float64
	Cells      []VisibleCell
}

// BaseSize returns the level-0 plane size of the first cell that has data.
func BaseSize(specs []CellSpec) (width, height int, ok bool) {
	for _, s := range specs {
		if len(s.Sources) == 0 {
			continue
		}
		w, h, err := raster.PlaneSize(s.Sources[0])
		if err != nil || w <= 0 || h <= 0 {
			return 0, 0, false
		}
		return w, h, true
	}
	return 0, 0, false
}

// BuildContext returns the cells intersecting the viewport. All cells are
// assumed to share the size of the first cell with data. With a nil viewport
// every cell with data is returned and its visible bounds equal its bounds.
// ok is false when no cell has data or the base size is degenerate.
func BuildContext(specs []CellSpec, spacer float64, vp geometry.Viewport, model *geometry.Affine) (Context, bool) {
	width, height, ok := BaseSize(specs)
	if !ok {
		return Context{}, false
	}

	ctx := Context{CellWidth: width, CellHeight: height, Spacer: spacer}
	var view geometry.Bounds
	if vp != nil {
		view = geometry.ViewportBounds(vp, model)
	}

	for _, s := range specs {
		if len(s.Sources) == 0 {
			continue
		}
		b := geometry.CellBounds(s.Row, s.Col, float64(width), float64(height), spacer)
		visible := b
		if vp != nil {
			var hit bool
			visible, hit = geometry.Intersect(b, view)
			if !hit {
				continue
			}
		}
		ctx.Cells = append(ctx.Cells, VisibleCell{Spec: s, Bounds: b, Visible: visible})
	}
	return ctx, true
}

// ValidateCells checks that every cell lies inside the rows x columns grid,
// that no position is used twice and that every pyramid level names its x
// and y axes.
func ValidateCells(specs []CellSpec, rows, columns int) error {
	seen := mapset.New[Position]()
	for _, s := range specs {
		pos := Position{Row: s.Row, Col: s.Col}
		if s.Row < 0 || s.Row >= rows || s.Col < 0 || s.Col >= columns {
			return fmt.Errorf("%w: cell %q at %d/%d outside %dx%d grid", ErrInvalidOptions, s.Name, s.Row, s.Col, rows, columns)
		}
		if seen.Has(pos) {
			return fmt.Errorf("%w: duplicate cell at %d/%d", ErrInvalidOptions, s.Row, s.Col)
		}
		seen.Put(pos)
		for _, src := range s.Sources {
			if _, _, err := raster.PlaneSize(src); err != nil {
				return fmt.Errorf("cell %q: %w", s.Name, err)
			}
		}
	}
	return nil
}
