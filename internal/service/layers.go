package service

import (
	"fmt"

	"github.com/joris-gentinetta/vizarr/internal/geometry"
	"github.com/joris-gentinetta/vizarr/internal/grid"
	"github.com/joris-gentinetta/vizarr/internal/lod"
	"github.com/joris-gentinetta/vizarr/internal/raster"
)

// LayerKind identifies a paintable layer descriptor.
type LayerKind string

const (
	LayerImage      LayerKind = "image"
	LayerPickTarget LayerKind = "pick-target"
	LayerText       LayerKind = "text"
)

// Layer is one paintable descriptor handed to the renderer.
type Layer struct {
	ID     string          `json:"id"`
	Kind   LayerKind       `json:"kind"`
	Bounds geometry.Bounds `json:"bounds"`

	// Image layers.
	Cell  string        `json:"cell,omitempty"`
	Row   int           `json:"row"`
	Col   int           `json:"col"`
	DType string        `json:"dtype,omitempty"`
	Tiles []raster.Tile `json:"tiles,omitempty"`
	// Cropped is set when the tiles cover only part of the cell.
	Cropped bool `json:"cropped,omitempty"`

	// Text layers.
	Text     string          `json:"text,omitempty"`
	Position *geometry.Point `json:"position,omitempty"`
}

// View is the committed render output of a grid. CommittedLevel is the level
// of the last committed batch, or -1 before anything was committed; it lags
// Level while a level switch is loading.
type View struct {
	Level          int              `json:"level"`
	CommittedLevel int              `json:"committed_level"`
	CellWidth      int              `json:"cell_width"`
	CellHeight     int              `json:"cell_height"`
	Model          *geometry.Affine `json:"model,omitempty"`
	Layers         []Layer          `json:"layers"`
}

// Layers returns the render output in paint order: one image layer per
// committed cell, the pick target, then cell labels. Image layers are only
// emitted while the committed level is the active level.
func (s *GridService) Layers() []Layer {
	layers := []Layer{}

	if res, ok := s.state.Current(); ok {
		for _, e := range res.Entries {
			layers = append(layers, Layer{
				ID:      fmt.Sprintf("%s-%s-%d-%d", s.plateID, e.Name, e.Row, e.Col),
				Kind:    LayerImage,
				Bounds:  e.Bounds,
				Cell:    e.Name,
				Row:     e.Row,
				Col:     e.Col,
				DType:   e.Source.DType(),
				Tiles:   e.Tiles,
				Cropped: !e.CoversWholeCell,
			})
		}
	}

	w, h, ok := grid.BaseSize(s.cells)
	if !ok {
		return layers
	}
	if s.opts.Pickable {
		layers = append(layers, Layer{
			ID:     s.plateID + "-grid",
			Kind:   LayerPickTarget,
			Bounds: s.Extent(),
		})
	}
	if s.opts.ShowLabels {
		for _, c := range s.cells {
			if len(c.Sources) == 0 {
				continue
			}
			b := geometry.CellBounds(c.Row, c.Col, float64(w), float64(h), s.opts.Spacer)
			layers = append(layers, Layer{
				ID:       fmt.Sprintf("%s-%s-label", s.plateID, c.Name),
				Kind:     LayerText,
				Bounds:   b,
				Cell:     c.Name,
				Row:      c.Row,
				Col:      c.Col,
				Text:     c.Name,
				Position: &geometry.Point{X: b.Left, Y: b.Top},
			})
		}
	}
	return layers
}

// View returns the active level, the cell size and the layers.
func (s *GridService) View() View {
	v := View{Level: s.state.ActiveLevel(), CommittedLevel: -1, Model: s.opts.Model, Layers: s.Layers()}
	if r, ok := s.state.Snapshot(); ok {
		v.CommittedLevel = r.Level
	}
	if w, h, ok := grid.BaseSize(s.cells); ok {
		v.CellWidth, v.CellHeight = w, h
	}
	return v
}

// Extent returns the bounds of the whole grid in local coordinates, or the
// zero Bounds before the cell size is known.
func (s *GridService) Extent() geometry.Bounds {
	w, h, ok := grid.BaseSize(s.cells)
	if !ok {
		return geometry.Bounds{}
	}
	return geometry.GridBounds(s.opts.Rows, s.opts.Columns, float64(w), float64(h), s.opts.Spacer)
}

// MaxLevel returns the deepest level every cell can serve.
func (s *GridService) MaxLevel() int { return lod.MaxLevel(s.cells) }
