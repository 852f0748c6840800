package geometry

import "math"

// Window is a half-open index range [start, end) per spatial axis of one
// resolution level.
type Window struct {
	X [2]int `json:"x"`
	Y [2]int `json:"y"`
}

// Width returns the number of columns covered.
func (w Window) Width() int { return w.X[1] - w.X[0] }

// Height returns the number of rows covered.
func (w Window) Height() int { return w.Y[1] - w.Y[0] }

// SourceWindow is the read plan for one cell at one level.
type SourceWindow struct {
	Window Window
	// Bounds is where the fetched pixels are drawn, in world coordinates.
	Bounds Bounds
	// CoversWholeCell is true when Window spans the full level extent. The
	// fetch then uses no window and Bounds equals the cell bounds.
	CoversWholeCell bool
}

// WindowForSource maps the visible part of cell (in base-resolution units)
// onto index ranges of a level of size levelWidth x levelHeight. Ranges are
// widened outwards to whole pixels, clamped to the level extent, and never
// empty.
func WindowForSource(visible, cell Bounds, fullWidth, fullHeight, levelWidth, levelHeight int) SourceWindow {
	levelWidth = max(levelWidth, 1)
	levelHeight = max(levelHeight, 1)
	pxX := float64(max(fullWidth, 1)) / float64(levelWidth)
	pxY := float64(max(fullHeight, 1)) / float64(levelHeight)

	x0, x1 := axisRange(visible.Left-cell.Left, visible.Right-cell.Left, pxX, levelWidth)
	y0, y1 := axisRange(visible.Top-cell.Top, visible.Bottom-cell.Top, pxY, levelHeight)

	win := Window{X: [2]int{x0, x1}, Y: [2]int{y0, y1}}
	if x0 == 0 && x1 == levelWidth && y0 == 0 && y1 == levelHeight {
		return SourceWindow{Window: win, Bounds: cell, CoversWholeCell: true}
	}
	return SourceWindow{
		Window: win,
		Bounds: Bounds{
			Left:   cell.Left + float64(x0)*pxX,
			Top:    cell.Top + float64(y0)*pxY,
			Right:  cell.Left + float64(x1)*pxX,
			Bottom: cell.Top + float64(y1)*pxY,
		},
	}
}

func axisRange(lo, hi, pixelSize float64, extent int) (int, int) {
	start := clamp(int(math.Floor(lo/pixelSize)), 0, extent-1)
	end := clamp(int(math.Ceil(hi/pixelSize)), start+1, extent)
	return start, end
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
