// Package render draws a layout preview of a grid view using fogleman/gg.
package render

import (
	"bytes"
	"image/color"
	"image/png"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"github.com/joris-gentinetta/vizarr/internal/geometry"
	"github.com/joris-gentinetta/vizarr/internal/service"
)

// Config contains renderer configuration.
type Config struct {
	Width  int
	Height int
	// Margin is left blank around the grid, in pixels.
	Margin float64
}

// PreviewRenderer draws views as PNG images. Pixel data is not decoded:
// loaded cells are shaded by pyramid level, cropped cells are outlined.
type PreviewRenderer struct {
	config      Config
	contextPool sync.Pool
	bufferPool  sync.Pool
}

// NewPreviewRenderer creates a new preview renderer.
func NewPreviewRenderer(cfg Config) *PreviewRenderer {
	if cfg.Width <= 0 {
		cfg.Width = 512
	}
	if cfg.Height <= 0 {
		cfg.Height = 512
	}
	return &PreviewRenderer{
		config: cfg,
		contextPool: sync.Pool{
			New: func() interface{} {
				return gg.NewContext(cfg.Width, cfg.Height)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 32*1024))
			},
		},
	}
}

// Size returns the preview dimensions in pixels.
func (r *PreviewRenderer) Size() (int, int) { return r.config.Width, r.config.Height }

// RenderView draws v with extent (grid-local coordinates) fitted into the
// image. maxLevel scales the level shading.
func (r *PreviewRenderer) RenderView(v service.View, extent geometry.Bounds, maxLevel int) ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetColor(color.White)
	dc.Clear()

	if extent.Width() <= 0 || extent.Height() <= 0 {
		return r.encodeContext(dc)
	}

	m := r.config.Margin
	w, h := float64(r.config.Width)-2*m, float64(r.config.Height)-2*m
	scale := min(w/extent.Width(), h/extent.Height())
	toScreen := func(b geometry.Bounds) (x, y, bw, bh float64) {
		return m + (b.Left-extent.Left)*scale, m + (b.Top-extent.Top)*scale, b.Width() * scale, b.Height() * scale
	}

	fill := levelFill(v.Level, maxLevel)

	for _, l := range v.Layers {
		switch l.Kind {
		case service.LayerImage:
			x, y, bw, bh := toScreen(l.Bounds)
			dc.SetColor(fill)
			dc.DrawRectangle(x, y, bw, bh)
			dc.Fill()
			if l.Cropped {
				dc.SetColor(croppedOutline)
				dc.SetLineWidth(2)
				dc.DrawRectangle(x, y, bw, bh)
				dc.Stroke()
			}
		case service.LayerPickTarget:
			x, y, bw, bh := toScreen(l.Bounds)
			dc.SetColor(pickOutline)
			dc.SetLineWidth(1)
			dc.DrawRectangle(x, y, bw, bh)
			dc.Stroke()
		case service.LayerText:
			x, y, bw, bh := toScreen(l.Bounds)
			dc.SetColor(levelOutline(v.Level))
			dc.SetLineWidth(1)
			dc.DrawRectangle(x, y, bw, bh)
			dc.Stroke()
			dc.SetFontFace(basicfont.Face7x13)
			dc.SetColor(color.Black)
			dc.DrawString(l.Text, x+2, y+13)
		}
	}

	return r.encodeContext(dc)
}

func (r *PreviewRenderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	// Use fast PNG encoder
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}
