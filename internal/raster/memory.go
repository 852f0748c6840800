package raster

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/joris-gentinetta/vizarr/internal/geometry"
)

// MemorySource is an in-memory Source. Each plane is filled with a single
// byte derived from the selection, which is enough to tell planes apart.
// It is used by tests and by the demo plate.
type MemorySource struct {
	id     string
	labels []string
	shape  []int
	dtype  string

	// Err, when set, is returned by every Tile call.
	Err error
	// Gate, when set, blocks Tile until it is closed or the context ends.
	Gate chan struct{}

	calls atomic.Int64

	mu      sync.Mutex
	windows []*geometry.Window
}

// NewMemorySource creates a uint8 source with axes labels and extents shape.
func NewMemorySource(id string, labels []string, shape []int) *MemorySource {
	return &MemorySource{
		id:     id,
		labels: append([]string(nil), labels...),
		shape:  append([]int(nil), shape...),
		dtype:  "uint8",
	}
}

// NewPlaneSource is a convenience for a ["c","y","x"] source with one channel
// per entry of channels.
func NewPlaneSource(id string, channels, width, height int) *MemorySource {
	return NewMemorySource(id, []string{"c", "y", "x"}, []int{channels, height, width})
}

func (s *MemorySource) ID() string       { return s.id }
func (s *MemorySource) Shape() []int     { return s.shape }
func (s *MemorySource) Labels() []string { return s.labels }
func (s *MemorySource) DType() string    { return s.dtype }

// Calls returns the number of Tile invocations so far.
func (s *MemorySource) Calls() int { return int(s.calls.Load()) }

// Windows returns the windows passed to Tile, in call order.
func (s *MemorySource) Windows() []*geometry.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*geometry.Window(nil), s.windows...)
}

// Tile implements Source.
func (s *MemorySource) Tile(ctx context.Context, selection []int, window *geometry.Window) (Tile, error) {
	s.calls.Add(1)
	s.mu.Lock()
	if window != nil {
		w := *window
		s.windows = append(s.windows, &w)
	} else {
		s.windows = append(s.windows, nil)
	}
	s.mu.Unlock()

	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return Tile{}, ctx.Err()
		}
	}
	if s.Err != nil {
		return Tile{}, s.Err
	}

	width, height, err := PlaneSize(s)
	if err != nil {
		return Tile{}, err
	}
	if window != nil {
		if window.X[0] < 0 || window.Y[0] < 0 || window.X[1] > width || window.Y[1] > height {
			return Tile{}, fmt.Errorf("window %+v outside %dx%d plane", *window, width, height)
		}
		width, height = window.Width(), window.Height()
	}

	var fill byte
	for _, v := range selection {
		fill = fill*31 + byte(v)
	}
	data := make([]byte, width*height)
	for i := range data {
		data[i] = fill
	}
	return Tile{Data: data, Width: width, Height: height}, nil
}
