// Package raster defines the contract of a single resolution level of an
// image pyramid, as consumed by the grid loader.
package raster

import (
	"context"
	"errors"
	"fmt"

	"github.com/joris-gentinetta/vizarr/internal/geometry"
)

// ErrMissingAxes indicates a source whose labels do not name both "x" and "y".
var ErrMissingAxes = errors.New("raster source is missing x/y axis labels")

// Source is one level of a multi-resolution image.
type Source interface {
	// ID identifies this level; it is stable for the lifetime of the source
	// and is used as a cache key.
	ID() string
	// Shape is the extent of each axis, parallel to Labels.
	Shape() []int
	// Labels names each axis. Must include "x" and "y".
	Labels() []string
	// DType is the element type tag, e.g. "uint16".
	DType() string
	// Tile reads one 2D plane. selection holds one index per axis (the x and
	// y entries are ignored). A nil window reads the whole plane.
	Tile(ctx context.Context, selection []int, window *geometry.Window) (Tile, error)
}

// Tile is one rectangular plane returned by a Source.
type Tile struct {
	// Data holds Width*Height little-endian elements of the source dtype.
	Data   []byte `json:"-"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// AxisIndex returns the position of name in labels.
func AxisIndex(labels []string, name string) (int, bool) {
	for i, l := range labels {
		if l == name {
			return i, true
		}
	}
	return -1, false
}

// PlaneSize returns the x and y extents of src.
func PlaneSize(src Source) (width, height int, err error) {
	labels := src.Labels()
	shape := src.Shape()
	xi, okX := AxisIndex(labels, "x")
	yi, okY := AxisIndex(labels, "y")
	if !okX || !okY || xi >= len(shape) || yi >= len(shape) {
		return 0, 0, fmt.Errorf("%w: source %s has labels %v", ErrMissingAxes, src.ID(), labels)
	}
	return shape[xi], shape[yi], nil
}

// BytesPerElement returns the element size of a dtype tag.
func BytesPerElement(dtype string) (int, error) {
	switch dtype {
	case "uint8", "int8", "bool":
		return 1, nil
	case "uint16", "int16":
		return 2, nil
	case "uint32", "int32", "float32":
		return 4, nil
	case "uint64", "int64", "float64":
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported dtype: %s", dtype)
	}
}
