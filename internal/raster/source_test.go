package raster

import (
	"context"
	"errors"
	"testing"

	"github.com/joris-gentinetta/vizarr/internal/geometry"
)

func TestPlaneSize(t *testing.T) {
	src := NewMemorySource("a", []string{"t", "c", "z", "y", "x"}, []int{2, 3, 4, 50, 70})
	w, h, err := PlaneSize(src)
	if err != nil {
		t.Fatalf("PlaneSize error: %v", err)
	}
	if w != 70 || h != 50 {
		t.Fatalf("PlaneSize = %dx%d, want 70x50", w, h)
	}

	bad := NewMemorySource("b", []string{"c", "row", "col"}, []int{1, 10, 10})
	if _, _, err := PlaneSize(bad); !errors.Is(err, ErrMissingAxes) {
		t.Fatalf("expected ErrMissingAxes, got %v", err)
	}
}

func TestMemorySource_Tile(t *testing.T) {
	src := NewPlaneSource("p", 2, 8, 4)
	ctx := context.Background()

	full, err := src.Tile(ctx, []int{1, 0, 0}, nil)
	if err != nil {
		t.Fatalf("Tile error: %v", err)
	}
	if full.Width != 8 || full.Height != 4 || len(full.Data) != 32 {
		t.Fatalf("unexpected full tile %dx%d len=%d", full.Width, full.Height, len(full.Data))
	}

	win := &geometry.Window{X: [2]int{2, 5}, Y: [2]int{1, 3}}
	part, err := src.Tile(ctx, []int{0, 0, 0}, win)
	if err != nil {
		t.Fatalf("Tile error: %v", err)
	}
	if part.Width != 3 || part.Height != 2 {
		t.Fatalf("unexpected windowed tile %dx%d", part.Width, part.Height)
	}
	if part.Data[0] == full.Data[0] {
		t.Fatal("expected different selections to produce different planes")
	}

	if src.Calls() != 2 {
		t.Fatalf("Calls = %d, want 2", src.Calls())
	}
	ws := src.Windows()
	if ws[0] != nil || ws[1] == nil || *ws[1] != *win {
		t.Fatalf("unexpected recorded windows %v", ws)
	}
}

func TestMemorySource_GateHonoursContext(t *testing.T) {
	src := NewPlaneSource("g", 1, 4, 4)
	src.Gate = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Tile(ctx, []int{0, 0, 0}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
