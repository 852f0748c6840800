// Package loader fetches the visible grid cells at one pyramid level with
// bounded concurrency and validates the result.
package loader

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/joris-gentinetta/vizarr/internal/cache"
	"github.com/joris-gentinetta/vizarr/internal/geometry"
	"github.com/joris-gentinetta/vizarr/internal/grid"
	"github.com/joris-gentinetta/vizarr/internal/metrics"
	"github.com/joris-gentinetta/vizarr/internal/raster"
)

var (
	// ErrInvariant marks a configuration invariant violation: the grid and
	// its pyramids disagree. It is never retried.
	ErrInvariant = errors.New("grid configuration invariant violated")
	// ErrShapeMismatch is reported when whole-cell tiles differ in size.
	ErrShapeMismatch = fmt.Errorf("%w: whole-cell tiles differ in shape", ErrInvariant)
	// ErrFetch wraps any error returned by a raster source.
	ErrFetch = errors.New("tile fetch failed")
)

// Entry is one visible cell loaded at one level.
type Entry struct {
	Name string
	Row  int
	Col  int
	// Bounds is where the tiles are drawn, in grid-local coordinates.
	Bounds          geometry.Bounds
	CoversWholeCell bool
	// Clamped is set when the cell's pyramid is shallower than the
	// requested level and its deepest level was used instead.
	Clamped bool
	Source  raster.Source
	// Tiles holds one plane per channel selection, in selection order.
	Tiles  []raster.Tile
	Width  int
	Height int
}

// Result is the outcome of one refresh batch.
type Result struct {
	Level      int
	CellWidth  int
	CellHeight int
	Entries    []Entry
}

// TileCache stores whole-plane reads.
type TileCache interface {
	GetTile(key string) (raster.Tile, bool)
	SetTile(key string, tile raster.Tile) error
}

// Config contains loader configuration.
type Config struct {
	Cache   TileCache
	Metrics *metrics.Metrics
}

// Loader issues tile fetches for a grid context.
type Loader struct {
	cache   TileCache
	metrics *metrics.Metrics
}

// New creates a loader. Both config fields are optional.
func New(cfg Config) *Loader {
	return &Loader{cache: cfg.Cache, metrics: cfg.Metrics}
}

// EffectiveConcurrency returns how many cells may load at once for a budget
// of in-flight requests shared by numSelections channel fetches per cell.
// 0 means unbounded.
func EffectiveConcurrency(budget, numSelections int) int {
	if budget <= 0 {
		return 0
	}
	numSelections = max(numSelections, 1)
	return max(1, (budget+numSelections-1)/numSelections)
}

// Refresh loads every visible cell of gctx at level. Each cell uses
// min(level, depth-1) of its own pyramid. The returned Result is tagged with
// level. On any error the entries are empty; errors wrap either ErrInvariant
// or ErrFetch.
func (l *Loader) Refresh(ctx context.Context, gctx grid.Context, level int, selections [][]int, concurrency int) (Result, error) {
	res := Result{Level: level, CellWidth: gctx.CellWidth, CellHeight: gctx.CellHeight}
	if len(selections) == 0 || len(gctx.Cells) == 0 {
		return res, nil
	}

	entries := make([]Entry, len(gctx.Cells))
	g, gc := errgroup.WithContext(ctx)
	if limit := EffectiveConcurrency(concurrency, len(selections)); limit > 0 {
		g.SetLimit(limit)
	}
	for i, cell := range gctx.Cells {
		g.Go(func() error {
			e, err := l.loadCell(gc, cell, level, selections, gctx.CellWidth, gctx.CellHeight)
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrInvariant) {
			return res, err
		}
		return res, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	if err := ValidateShapes(entries); err != nil {
		return res, err
	}
	res.Entries = entries
	return res, nil
}

func (l *Loader) loadCell(ctx context.Context, cell grid.VisibleCell, level int, selections [][]int, fullW, fullH int) (Entry, error) {
	sources := cell.Spec.Sources
	idx := min(level, len(sources)-1)
	src := sources[idx]

	levelW, levelH, err := raster.PlaneSize(src)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: cell %q: %w", ErrInvariant, cell.Spec.Name, err)
	}

	sw := geometry.WindowForSource(cell.Visible, cell.Bounds, fullW, fullH, levelW, levelH)
	var window *geometry.Window
	if !sw.CoversWholeCell {
		w := sw.Window
		window = &w
	}

	tiles := make([]raster.Tile, len(selections))
	g, gc := errgroup.WithContext(ctx)
	for j, sel := range selections {
		g.Go(func() error {
			t, err := l.fetch(gc, src, sel, window)
			if err != nil {
				return fmt.Errorf("cell %q selection %v: %w", cell.Spec.Name, sel, err)
			}
			tiles[j] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Entry{}, err
	}

	return Entry{
		Name:            cell.Spec.Name,
		Row:             cell.Spec.Row,
		Col:             cell.Spec.Col,
		Bounds:          sw.Bounds,
		CoversWholeCell: sw.CoversWholeCell,
		Clamped:         idx != level,
		Source:          src,
		Tiles:           tiles,
		Width:           tiles[0].Width,
		Height:          tiles[0].Height,
	}, nil
}

// fetch reads one plane. Whole-plane reads go through the tile cache.
func (l *Loader) fetch(ctx context.Context, src raster.Source, selection []int, window *geometry.Window) (raster.Tile, error) {
	var key string
	if window == nil && l.cache != nil {
		key = cache.TileKey(src.ID(), selection)
		if t, ok := l.cache.GetTile(key); ok {
			l.metrics.ObserveFetch(metrics.ResultCached)
			return t, nil
		}
	}

	t, err := src.Tile(ctx, selection, window)
	if err != nil {
		l.metrics.ObserveFetch(metrics.ResultError)
		return raster.Tile{}, err
	}
	l.metrics.ObserveFetch(metrics.ResultOK)

	if key != "" {
		// Oversized entries are simply not cached.
		_ = l.cache.SetTile(key, t)
	}
	return t, nil
}

// ValidateShapes checks that all whole-cell entries share one width and
// height. Cropped entries and entries clamped to a shallower pyramid are
// exempt.
func ValidateShapes(entries []Entry) error {
	var ref *Entry
	for i := range entries {
		e := &entries[i]
		if !e.CoversWholeCell || e.Clamped {
			continue
		}
		if ref == nil {
			ref = e
			continue
		}
		if e.Width != ref.Width || e.Height != ref.Height {
			return fmt.Errorf("%w: cell %q is %dx%d, cell %q is %dx%d",
				ErrShapeMismatch, e.Name, e.Width, e.Height, ref.Name, ref.Width, ref.Height)
		}
	}
	return nil
}
