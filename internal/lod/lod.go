// Package lod picks the pyramid level to fetch for the current zoom.
package lod

import (
	"math"

	"github.com/joris-gentinetta/vizarr/internal/geometry"
	"github.com/joris-gentinetta/vizarr/internal/grid"
	"github.com/joris-gentinetta/vizarr/internal/raster"
)

// MinPixelsPerDataPixel is the lowest acceptable number of screen pixels per
// source pixel. Below it a finer level is needed.
const MinPixelsPerDataPixel = 0.5

// MaxLevel returns the deepest level every cell with data can serve.
func MaxLevel(specs []grid.CellSpec) int {
	depth := math.MaxInt
	for _, s := range specs {
		if len(s.Sources) == 0 {
			continue
		}
		depth = min(depth, len(s.Sources))
	}
	if depth == math.MaxInt {
		return 0
	}
	return depth - 1
}

// SelectLevel returns the coarsest level whose projected cell still gets at
// least MinPixelsPerDataPixel screen pixels per data pixel, or the deepest
// level when none does. Without a viewport the current level is kept.
func SelectLevel(specs []grid.CellSpec, vp geometry.Viewport, model *geometry.Affine, current int) int {
	maxLevel := MaxLevel(specs)
	if maxLevel <= 0 {
		return 0
	}
	if vp == nil {
		return min(max(current, 0), maxLevel)
	}

	var rep grid.CellSpec
	for _, s := range specs {
		if len(s.Sources) > 0 {
			rep = s
			break
		}
	}
	baseW, baseH, err := raster.PlaneSize(rep.Sources[0])
	if err != nil || baseW <= 0 || baseH <= 0 {
		return min(max(current, 0), maxLevel)
	}

	screenW, screenH := geometry.ProjectedSize(vp, model, geometry.Bounds{Right: float64(baseW), Bottom: float64(baseH)})
	for level := 0; level <= maxLevel; level++ {
		w, h, err := raster.PlaneSize(rep.Sources[level])
		if err != nil || w <= 0 || h <= 0 {
			continue
		}
		ratio := math.Min(screenW/float64(w), screenH/float64(h))
		if ratio >= MinPixelsPerDataPixel {
			return level
		}
	}
	return maxLevel
}
