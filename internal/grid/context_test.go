package grid

import (
	"errors"
	"testing"

	"github.com/joris-gentinetta/vizarr/internal/geometry"
	"github.com/joris-gentinetta/vizarr/internal/raster"
)

func plate(rows, cols, size int) []CellSpec {
	var specs []CellSpec
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			specs = append(specs, CellSpec{
				Row:     r,
				Col:     c,
				Name:    string(rune('A'+r)) + string(rune('1'+c)),
				Sources: []raster.Source{raster.NewPlaneSource("s", 1, size, size)},
			})
		}
	}
	return specs
}

func TestBuildContext_NoViewport(t *testing.T) {
	specs := plate(2, 2, 100)
	specs = append(specs, CellSpec{Row: 5, Col: 5, Name: "empty"})

	ctx, ok := BuildContext(specs, 10, nil, nil)
	if !ok {
		t.Fatal("expected a context")
	}
	if ctx.CellWidth != 100 || ctx.CellHeight != 100 {
		t.Fatalf("cell size = %dx%d, want 100x100", ctx.CellWidth, ctx.CellHeight)
	}
	if len(ctx.Cells) != 4 {
		t.Fatalf("expected 4 non-empty cells, got %d", len(ctx.Cells))
	}
	for _, c := range ctx.Cells {
		if c.Visible != c.Bounds {
			t.Fatalf("cell %s: visible %+v != bounds %+v", c.Spec.Name, c.Visible, c.Bounds)
		}
	}
}

func TestBuildContext_ClipsToViewport(t *testing.T) {
	specs := plate(2, 2, 100)
	// Sees world x in [50,150], y in [0,100]: cells (0,0) and (0,1), clipped.
	vp := geometry.OrthographicViewport{Target: geometry.Point{X: 100, Y: 50}, ScreenWidth: 100, ScreenHeight: 100}

	ctx, ok := BuildContext(specs, 10, vp, nil)
	if !ok {
		t.Fatal("expected a context")
	}
	if len(ctx.Cells) != 2 {
		t.Fatalf("expected 2 visible cells, got %d", len(ctx.Cells))
	}
	first := ctx.Cells[0]
	if first.Spec.Row != 0 || first.Spec.Col != 0 {
		t.Fatalf("unexpected first cell %d/%d", first.Spec.Row, first.Spec.Col)
	}
	want := geometry.Bounds{Left: 50, Top: 0, Right: 100, Bottom: 100}
	if first.Visible != want {
		t.Fatalf("visible = %+v, want %+v", first.Visible, want)
	}
	second := ctx.Cells[1]
	if second.Visible.Left != 110 || second.Visible.Right != 150 {
		t.Fatalf("unexpected visible bounds for second cell: %+v", second.Visible)
	}
}

func TestBuildContext_ModelTransform(t *testing.T) {
	specs := plate(2, 2, 100)
	vp := geometry.OrthographicViewport{Target: geometry.Point{X: 100, Y: 100}, ScreenWidth: 200, ScreenHeight: 200}
	m := geometry.Scale(0.5, 0.5)

	ctx, ok := BuildContext(specs, 10, vp, &m)
	if !ok {
		t.Fatal("expected a context")
	}
	if len(ctx.Cells) != 4 {
		t.Fatalf("halving the grid should bring all 4 cells into view, got %d", len(ctx.Cells))
	}
}

func TestBuildContext_Degenerate(t *testing.T) {
	if _, ok := BuildContext(nil, 0, nil, nil); ok {
		t.Fatal("expected no context for empty grid")
	}
	if _, ok := BuildContext([]CellSpec{{Name: "nodata"}}, 0, nil, nil); ok {
		t.Fatal("expected no context when no cell has data")
	}
	zero := []CellSpec{{Sources: []raster.Source{raster.NewPlaneSource("z", 1, 0, 10)}}}
	if _, ok := BuildContext(zero, 0, nil, nil); ok {
		t.Fatal("expected no context for zero-width base")
	}
}

func TestValidateCells(t *testing.T) {
	if err := ValidateCells(plate(2, 2, 10), 2, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dup := append(plate(1, 1, 10), plate(1, 1, 10)...)
	if err := ValidateCells(dup, 2, 2); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected duplicate position error, got %v", err)
	}

	if err := ValidateCells(plate(3, 1, 10), 2, 2); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected out-of-range error, got %v", err)
	}

	noAxes := []CellSpec{{Sources: []raster.Source{raster.NewMemorySource("n", []string{"a", "b"}, []int{1, 1})}}}
	if err := ValidateCells(noAxes, 1, 1); !errors.Is(err, raster.ErrMissingAxes) {
		t.Fatalf("expected ErrMissingAxes, got %v", err)
	}
}

func TestOptionsValidate(t *testing.T) {
	o, err := Options{Rows: 8, Columns: 12}.Validate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Version != OptionsVersion {
		t.Fatalf("expected version to default to %d, got %d", OptionsVersion, o.Version)
	}

	bad := []Options{
		{Version: 2, Rows: 1, Columns: 1},
		{Rows: 0, Columns: 1},
		{Rows: 1, Columns: 1, Spacer: -1},
		{Rows: 1, Columns: 1, Concurrency: -2},
		{Rows: 1, Columns: 1, RowLabels: []string{"A", "B"}},
	}
	for i, b := range bad {
		if _, err := b.Validate(); !errors.Is(err, ErrInvalidOptions) {
			t.Errorf("case %d: expected ErrInvalidOptions, got %v", i, err)
		}
	}
}
