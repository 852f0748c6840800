package lod

import (
	"math"
	"testing"

	"github.com/joris-gentinetta/vizarr/internal/geometry"
	"github.com/joris-gentinetta/vizarr/internal/grid"
	"github.com/joris-gentinetta/vizarr/internal/raster"
)

func pyramid(sizes ...int) []raster.Source {
	out := make([]raster.Source, len(sizes))
	for i, s := range sizes {
		out[i] = raster.NewPlaneSource("lvl", 1, s, s)
	}
	return out
}

func plate2x2() []grid.CellSpec {
	var specs []grid.CellSpec
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			specs = append(specs, grid.CellSpec{Row: r, Col: c, Sources: pyramid(1000, 500, 250)})
		}
	}
	return specs
}

// viewportAtScale returns a viewport over the 2x2 grid (spacer 5) whose
// world-to-screen scale is s.
func viewportAtScale(s float64) geometry.OrthographicViewport {
	bounds := geometry.GridBounds(2, 2, 1000, 1000, 5)
	vp := geometry.FitBounds(bounds, 800, 800)
	vp.Zoom = math.Log2(s)
	return vp
}

func TestSelectLevel_Scenario(t *testing.T) {
	// A 1000px cell drawn 300px wide: ratio 0.3 at level 0, 0.6 at level 1.
	got := SelectLevel(plate2x2(), viewportAtScale(0.3), nil, 0)
	if got != 1 {
		t.Fatalf("SelectLevel = %d, want 1", got)
	}
}

func TestSelectLevel_Extremes(t *testing.T) {
	if got := SelectLevel(plate2x2(), viewportAtScale(4), nil, 2); got != 0 {
		t.Fatalf("zoomed in: SelectLevel = %d, want 0", got)
	}
	if got := SelectLevel(plate2x2(), viewportAtScale(0.01), nil, 0); got != 2 {
		t.Fatalf("zoomed out: SelectLevel = %d, want deepest level 2", got)
	}
}

func TestSelectLevel_MonotonicInZoom(t *testing.T) {
	specs := plate2x2()
	prev := SelectLevel(specs, viewportAtScale(0.001), nil, 0)
	for s := 0.002; s < 8; s *= 1.3 {
		level := SelectLevel(specs, viewportAtScale(s), nil, 0)
		if level > prev {
			t.Fatalf("scale %v: level %d is coarser than %d at a smaller scale", s, level, prev)
		}
		prev = level
	}
}

func TestSelectLevel_ModelTransform(t *testing.T) {
	m := geometry.Scale(2, 2)
	// Model doubles the cell: 0.3 * 2 = 0.6 at level 0.
	if got := SelectLevel(plate2x2(), viewportAtScale(0.3), &m, 2); got != 0 {
		t.Fatalf("SelectLevel with model = %d, want 0", got)
	}
}

func TestSelectLevel_NoViewportKeepsCurrent(t *testing.T) {
	if got := SelectLevel(plate2x2(), nil, nil, 2); got != 2 {
		t.Fatalf("SelectLevel without viewport = %d, want 2", got)
	}
	if got := SelectLevel(plate2x2(), nil, nil, 7); got != 2 {
		t.Fatalf("current level should be clamped to max level, got %d", got)
	}
}

func TestMaxLevel(t *testing.T) {
	specs := []grid.CellSpec{
		{Sources: pyramid(100, 50, 25)},
		{Sources: pyramid(100, 50)},
		{Name: "empty"},
	}
	if got := MaxLevel(specs); got != 1 {
		t.Fatalf("MaxLevel = %d, want 1", got)
	}
	if got := MaxLevel(nil); got != 0 {
		t.Fatalf("MaxLevel(nil) = %d, want 0", got)
	}
	if got := SelectLevel([]grid.CellSpec{{Sources: pyramid(100)}}, viewportAtScale(0.01), nil, 0); got != 0 {
		t.Fatalf("single-level pyramid must select 0, got %d", got)
	}
}
