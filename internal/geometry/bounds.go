// Package geometry provides the bounds math used to lay out grid cells in
// world space and to map visible regions onto resolution levels.
//
// World units are base-resolution pixels of a cell. The y axis grows
// downwards, so Top < Bottom for every non-empty rectangle.
package geometry

import "math"

// Point is a 2D coordinate in screen or world space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Bounds is an axis-aligned rectangle in world coordinates.
type Bounds struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Width returns Right - Left.
func (b Bounds) Width() float64 { return b.Right - b.Left }

// Height returns Bottom - Top.
func (b Bounds) Height() float64 { return b.Bottom - b.Top }

// Contains reports whether p lies inside b (edges inclusive).
func (b Bounds) Contains(p Point) bool {
	return p.X >= b.Left && p.X <= b.Right && p.Y >= b.Top && p.Y <= b.Bottom
}

// CellBounds returns the world rectangle of the cell at (row, col) for cells of
// the given size separated by spacer.
func CellBounds(row, col int, width, height, spacer float64) Bounds {
	left := float64(col) * (width + spacer)
	top := float64(row) * (height + spacer)
	return Bounds{
		Left:   left,
		Top:    top,
		Right:  left + width,
		Bottom: top + height,
	}
}

// GridBounds returns the rectangle covering rows x columns cells.
func GridBounds(rows, columns int, width, height, spacer float64) Bounds {
	if rows <= 0 || columns <= 0 {
		return Bounds{}
	}
	return Bounds{
		Right:  float64(columns)*(width+spacer) - spacer,
		Bottom: float64(rows)*(height+spacer) - spacer,
	}
}

// Intersect returns the overlap of a and b. Overlaps with zero area (shared
// edges or corners) are reported as no intersection.
func Intersect(a, b Bounds) (Bounds, bool) {
	out := Bounds{
		Left:   math.Max(a.Left, b.Left),
		Top:    math.Max(a.Top, b.Top),
		Right:  math.Min(a.Right, b.Right),
		Bottom: math.Min(a.Bottom, b.Bottom),
	}
	if out.Right <= out.Left || out.Bottom <= out.Top {
		return Bounds{}, false
	}
	return out, true
}

// boundsOf returns the smallest rectangle containing all points.
func boundsOf(points ...Point) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}
	b := Bounds{Left: points[0].X, Right: points[0].X, Top: points[0].Y, Bottom: points[0].Y}
	for _, p := range points[1:] {
		b.Left = math.Min(b.Left, p.X)
		b.Right = math.Max(b.Right, p.X)
		b.Top = math.Min(b.Top, p.Y)
		b.Bottom = math.Max(b.Bottom, p.Y)
	}
	return b
}
