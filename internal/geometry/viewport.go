package geometry

import "math"

// Viewport is the camera contract consumed by the grid engine.
type Viewport interface {
	// Width and Height are the screen size in pixels.
	Width() float64
	Height() float64
	// Unproject maps a screen position to world coordinates.
	Unproject(p Point) Point
	// Project maps a world position to screen coordinates.
	Project(p Point) Point
}

// OrthographicViewport is a top-down 2D camera centred on Target. Zoom is a
// log2 scale: at zoom 0 one world unit covers one screen pixel, at zoom 1 two.
type OrthographicViewport struct {
	Target       Point   `json:"target"`
	Zoom         float64 `json:"zoom"`
	ScreenWidth  float64 `json:"width"`
	ScreenHeight float64 `json:"height"`
}

func (v OrthographicViewport) Width() float64  { return v.ScreenWidth }
func (v OrthographicViewport) Height() float64 { return v.ScreenHeight }

func (v OrthographicViewport) scale() float64 { return math.Exp2(v.Zoom) }

// Project maps world to screen.
func (v OrthographicViewport) Project(p Point) Point {
	s := v.scale()
	return Point{
		X: (p.X-v.Target.X)*s + v.ScreenWidth/2,
		Y: (p.Y-v.Target.Y)*s + v.ScreenHeight/2,
	}
}

// Unproject maps screen to world.
func (v OrthographicViewport) Unproject(p Point) Point {
	s := v.scale()
	return Point{
		X: (p.X-v.ScreenWidth/2)/s + v.Target.X,
		Y: (p.Y-v.ScreenHeight/2)/s + v.Target.Y,
	}
}

// FitBounds returns a viewport of the given screen size whose zoom makes b
// fill the screen along its tighter axis.
func FitBounds(b Bounds, width, height float64) OrthographicViewport {
	v := OrthographicViewport{
		Target:       Point{X: (b.Left + b.Right) / 2, Y: (b.Top + b.Bottom) / 2},
		ScreenWidth:  width,
		ScreenHeight: height,
	}
	if b.Width() > 0 && b.Height() > 0 && width > 0 && height > 0 {
		v.Zoom = math.Log2(math.Min(width/b.Width(), height/b.Height()))
	}
	return v
}

// ViewportBounds returns the world rectangle seen by vp, expressed in the
// grid's local frame. When model is non-nil its inverse maps world into the
// local frame; a singular model is ignored and the untransformed corners are
// used instead.
func ViewportBounds(vp Viewport, model *Affine) Bounds {
	w, h := vp.Width(), vp.Height()
	corners := []Point{
		vp.Unproject(Point{X: 0, Y: 0}),
		vp.Unproject(Point{X: w, Y: 0}),
		vp.Unproject(Point{X: 0, Y: h}),
		vp.Unproject(Point{X: w, Y: h}),
	}
	if model != nil {
		if inv, ok := model.Invert(); ok {
			for i, c := range corners {
				corners[i] = inv.Apply(c)
			}
		}
	}
	return boundsOf(corners...)
}

// ScreenToLocal maps a screen position into the grid's local frame, with the
// same singular-model fallback as ViewportBounds.
func ScreenToLocal(vp Viewport, model *Affine, screen Point) Point {
	p := vp.Unproject(screen)
	if model != nil {
		if inv, ok := model.Invert(); ok {
			p = inv.Apply(p)
		}
	}
	return p
}

// ProjectedSize returns the on-screen width and height of a local-frame
// rectangle after the model transform and viewport projection.
func ProjectedSize(vp Viewport, model *Affine, b Bounds) (float64, float64) {
	world := b
	if model != nil {
		world = model.ApplyBounds(b)
	}
	screen := boundsOf(
		vp.Project(Point{X: world.Left, Y: world.Top}),
		vp.Project(Point{X: world.Right, Y: world.Top}),
		vp.Project(Point{X: world.Left, Y: world.Bottom}),
		vp.Project(Point{X: world.Right, Y: world.Bottom}),
	)
	return screen.Width(), screen.Height()
}
