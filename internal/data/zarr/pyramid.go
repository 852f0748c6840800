package zarr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/joris-gentinetta/vizarr/internal/geometry"
	"github.com/joris-gentinetta/vizarr/internal/raster"
)

// groupMeta is the subset of a group zarr.json used here. OME-Zarr 0.5
// nests its metadata under attributes.ome; older writers put it directly
// under attributes.
type groupMeta struct {
	ZarrFormat int      `json:"zarr_format"`
	NodeType   string   `json:"node_type"`
	Attributes omeAttrs `json:"attributes"`
}

type omeAttrs struct {
	Multiscales []multiscale `json:"multiscales,omitempty"`
	Plate       *plateMeta   `json:"plate,omitempty"`
	Well        *wellMeta    `json:"well,omitempty"`
	OME         *omeAttrs    `json:"ome,omitempty"`
}

func (a omeAttrs) resolved() omeAttrs {
	if a.OME != nil {
		return *a.OME
	}
	return a
}

type multiscale struct {
	Name string `json:"name,omitempty"`
	Axes []struct {
		Name string `json:"name"`
		Type string `json:"type,omitempty"`
	} `json:"axes"`
	Datasets []struct {
		Path string `json:"path"`
	} `json:"datasets"`
}

func loadGroupMeta(path string) (omeAttrs, error) {
	data, err := os.ReadFile(filepath.Join(path, "zarr.json"))
	if err != nil {
		return omeAttrs{}, err
	}
	var meta groupMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return omeAttrs{}, fmt.Errorf("failed to parse %s/zarr.json: %w", path, err)
	}
	if meta.NodeType != "" && meta.NodeType != "group" {
		return omeAttrs{}, fmt.Errorf("%s is a %s, not a group", path, meta.NodeType)
	}
	return meta.Attributes.resolved(), nil
}

// Pyramid is an opened multiscale image, finest level first.
type Pyramid struct {
	Path   string
	Name   string
	Levels []*Level

	decoder *zstd.Decoder
	owned   bool
}

// OpenPyramid opens the multiscale image group at path. chunks may be nil.
func OpenPyramid(path string, chunks ChunkCache) (*Pyramid, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	p, err := openPyramid(path, decoder, chunks)
	if err != nil {
		decoder.Close()
		return nil, err
	}
	p.owned = true
	return p, nil
}

func openPyramid(path string, decoder *zstd.Decoder, chunks ChunkCache) (*Pyramid, error) {
	attrs, err := loadGroupMeta(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load image metadata: %w", err)
	}
	if len(attrs.Multiscales) == 0 {
		return nil, fmt.Errorf("%s has no multiscales metadata", path)
	}
	ms := attrs.Multiscales[0]
	if len(ms.Datasets) == 0 {
		return nil, fmt.Errorf("%s: multiscales lists no datasets", path)
	}

	labels := make([]string, len(ms.Axes))
	for i, ax := range ms.Axes {
		labels[i] = ax.Name
	}

	p := &Pyramid{Path: path, Name: ms.Name, decoder: decoder}
	for i, ds := range ms.Datasets {
		arr, err := openArray(filepath.Join(path, ds.Path), decoder, chunks)
		if err != nil {
			return nil, fmt.Errorf("failed to open level %d: %w", i, err)
		}
		lv := labels
		if len(lv) == 0 {
			lv = arr.meta.DimensionNames
		}
		if len(lv) != len(arr.meta.Shape) {
			return nil, fmt.Errorf("level %d: %d axes for %d dimensions", i, len(lv), len(arr.meta.Shape))
		}
		p.Levels = append(p.Levels, &Level{arr: arr, labels: lv})
	}
	return p, nil
}

// Sources returns the levels as raster sources.
func (p *Pyramid) Sources() []raster.Source {
	out := make([]raster.Source, len(p.Levels))
	for i, l := range p.Levels {
		out[i] = l
	}
	return out
}

// Close releases the decoder when the pyramid owns it.
func (p *Pyramid) Close() {
	if p.owned && p.decoder != nil {
		p.decoder.Close()
	}
}

// Level is one resolution level of a pyramid.
type Level struct {
	arr    *array
	labels []string
}

func (l *Level) ID() string       { return l.arr.path }
func (l *Level) Shape() []int     { return l.arr.meta.Shape }
func (l *Level) Labels() []string { return l.labels }
func (l *Level) DType() string    { return l.arr.meta.DataType }

// Tile implements raster.Source. selection must have one in-range index per
// axis; the x and y entries are ignored.
func (l *Level) Tile(ctx context.Context, selection []int, window *geometry.Window) (raster.Tile, error) {
	shape := l.arr.meta.Shape
	if len(selection) != len(shape) {
		return raster.Tile{}, fmt.Errorf("selection %v has %d indices, array has %d dimensions", selection, len(selection), len(shape))
	}
	xi, okX := raster.AxisIndex(l.labels, "x")
	yi, okY := raster.AxisIndex(l.labels, "y")
	if !okX || !okY {
		return raster.Tile{}, fmt.Errorf("%w: %s", raster.ErrMissingAxes, l.arr.path)
	}
	for d, v := range selection {
		if d != xi && d != yi && (v < 0 || v >= shape[d]) {
			return raster.Tile{}, fmt.Errorf("selection index %d out of range for axis %q (size %d)", v, l.labels[d], shape[d])
		}
	}

	win := geometry.Window{X: [2]int{0, shape[xi]}, Y: [2]int{0, shape[yi]}}
	if window != nil {
		win = *window
		if win.X[0] < 0 || win.Y[0] < 0 || win.X[1] > shape[xi] || win.Y[1] > shape[yi] || win.Width() <= 0 || win.Height() <= 0 {
			return raster.Tile{}, fmt.Errorf("window %+v outside %dx%d plane", win, shape[xi], shape[yi])
		}
	}

	es := l.arr.elemSize
	width, height := win.Width(), win.Height()
	out := make([]byte, width*height*es)
	chunk := l.arr.chunkShape()

	idx := make([]int, len(shape))
	for d, v := range selection {
		idx[d] = v / chunk[d]
	}

	for cy := win.Y[0] / chunk[yi]; cy < ceilDiv(win.Y[1], chunk[yi]); cy++ {
		for cx := win.X[0] / chunk[xi]; cx < ceilDiv(win.X[1], chunk[xi]); cx++ {
			if err := ctx.Err(); err != nil {
				return raster.Tile{}, err
			}
			idx[yi], idx[xi] = cy, cx
			data, layout, err := l.arr.readChunkAt(idx)
			if err != nil {
				return raster.Tile{}, fmt.Errorf("failed to read chunk %v: %w", idx, err)
			}
			copyChunk(out, data, layout, chunk, selection, xi, yi, cy, cx, win, es)
		}
	}

	return raster.Tile{Data: out, Width: width, Height: height}, nil
}

// copyChunk copies the part of one decoded chunk that falls inside win into
// out, a row-major width x height plane.
func copyChunk(out, data []byte, layout, chunk, selection []int, xi, yi, cy, cx int, win geometry.Window, es int) {
	strides := make([]int, len(layout))
	s := 1
	for d := len(layout) - 1; d >= 0; d-- {
		strides[d] = s
		s *= layout[d]
	}
	base := 0
	for d, v := range selection {
		if d != xi && d != yi {
			base += (v % chunk[d]) * strides[d]
		}
	}

	oy, ox := cy*chunk[yi], cx*chunk[xi]
	y0, y1 := max(win.Y[0], oy), min(win.Y[1], oy+layout[yi])
	x0, x1 := max(win.X[0], ox), min(win.X[1], ox+layout[xi])
	width := win.Width()

	for y := y0; y < y1; y++ {
		src := base + (y-oy)*strides[yi]
		dst := ((y-win.Y[0])*width + (x0 - win.X[0])) * es
		if strides[xi] == 1 {
			start := (src + x0 - ox) * es
			copy(out[dst:dst+(x1-x0)*es], data[start:start+(x1-x0)*es])
			continue
		}
		for x := x0; x < x1; x++ {
			e := (src + (x-ox)*strides[xi]) * es
			copy(out[dst:dst+es], data[e:e+es])
			dst += es
		}
	}
}
