// Package service drives one plate grid: it turns viewport changes into level
// selection, tile loading and committed render state.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/joris-gentinetta/vizarr/internal/geometry"
	"github.com/joris-gentinetta/vizarr/internal/grid"
	"github.com/joris-gentinetta/vizarr/internal/loader"
	"github.com/joris-gentinetta/vizarr/internal/lod"
	"github.com/joris-gentinetta/vizarr/internal/metrics"
	"github.com/joris-gentinetta/vizarr/internal/raster"
)

var (
	// ErrUnknownAxis is returned by Scrub for axes the images do not have.
	ErrUnknownAxis = errors.New("unknown axis")
	// ErrInvalidSelection is returned by SetSelections.
	ErrInvalidSelection = errors.New("invalid channel selection")
)

// GridServiceConfig contains grid service configuration.
type GridServiceConfig struct {
	PlateID string
	Cells   []grid.CellSpec
	Options grid.Options
	Loader  *loader.Loader
	Metrics *metrics.Metrics
	// Selections is the initial channel selection list. When empty, the
	// first index of every axis is selected.
	Selections [][]int
}

// GridService owns the render state of one plate.
type GridService struct {
	plateID string
	cells   []grid.CellSpec
	opts    grid.Options
	loader  *loader.Loader
	metrics *metrics.Metrics

	// Representative level-0 source for axis metadata.
	rep raster.Source

	state loader.State

	mu         sync.Mutex
	viewport   geometry.Viewport
	selections [][]int
	gridCtx    grid.Context
	hasCtx     bool
	nextBatch  uint64
	inflight   map[uint64]batch
}

// batch is a refresh in flight.
type batch struct {
	level  int
	cancel context.CancelFunc
}

// NewGridService validates the options and cells and creates the service.
func NewGridService(cfg GridServiceConfig) (*GridService, error) {
	opts, err := cfg.Options.Validate()
	if err != nil {
		return nil, err
	}
	if err := grid.ValidateCells(cfg.Cells, opts.Rows, opts.Columns); err != nil {
		return nil, fmt.Errorf("%w: %w", loader.ErrInvariant, err)
	}

	s := &GridService{
		plateID:  cfg.PlateID,
		cells:    cfg.Cells,
		opts:     opts,
		loader:   cfg.Loader,
		metrics:  cfg.Metrics,
		inflight: make(map[uint64]batch),
	}
	if s.loader == nil {
		s.loader = loader.New(loader.Config{Metrics: cfg.Metrics})
	}
	for _, c := range cfg.Cells {
		if len(c.Sources) > 0 {
			s.rep = c.Sources[0]
			break
		}
	}

	sels := cfg.Selections
	if len(sels) == 0 && s.rep != nil {
		sels = [][]int{make([]int, len(s.rep.Shape()))}
	}
	if err := s.checkSelections(sels); err != nil {
		return nil, err
	}
	s.selections = sels

	// Start coarse until a viewport is known.
	level := lod.MaxLevel(cfg.Cells)
	s.state.SetActiveLevel(level)
	s.metrics.SetActiveLevel(s.plateID, level)

	s.gridCtx, s.hasCtx = grid.BuildContext(s.cells, s.opts.Spacer, nil, s.opts.Model)
	return s, nil
}

// PlateID returns the plate identifier.
func (s *GridService) PlateID() string { return s.plateID }

// Options returns the validated grid options.
func (s *GridService) Options() grid.Options { return s.opts }

// ActiveLevel returns the level new refreshes target.
func (s *GridService) ActiveLevel() int { return s.state.ActiveLevel() }

// UpdateViewport selects the level for vp, rebuilds the visible set and
// refreshes it. A nil viewport keeps the current level and loads every cell.
// When the level changes, the batch still in flight for the old level is
// cancelled.
func (s *GridService) UpdateViewport(ctx context.Context, vp geometry.Viewport) error {
	s.mu.Lock()
	level := lod.SelectLevel(s.cells, vp, s.opts.Model, s.state.ActiveLevel())
	if s.state.SetActiveLevel(level) {
		log.Printf("[GridService] %s: level -> %d", s.plateID, level)
		s.metrics.SetActiveLevel(s.plateID, level)
		for _, b := range s.inflight {
			if b.level != level {
				b.cancel()
			}
		}
	}
	s.viewport = vp
	s.gridCtx, s.hasCtx = grid.BuildContext(s.cells, s.opts.Spacer, vp, s.opts.Model)
	s.mu.Unlock()

	return s.Refresh(ctx)
}

// Refresh reloads the visible cells at the active level with the current
// selections. Failed batches are not committed.
func (s *GridService) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if !s.hasCtx {
		s.mu.Unlock()
		return nil
	}
	gctx := s.gridCtx
	sels := s.selections
	level := s.state.ActiveLevel()
	bctx, cancel := context.WithCancel(ctx)
	id := s.nextBatch
	s.nextBatch++
	s.inflight[id] = batch{level: level, cancel: cancel}
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.inflight, id)
		s.mu.Unlock()
	}()

	start := time.Now()
	res, err := s.loader.Refresh(bctx, gctx, level, sels, s.opts.Concurrency)
	s.metrics.ObserveRefresh(time.Since(start))
	if err != nil {
		switch {
		case errors.Is(err, loader.ErrInvariant):
			s.metrics.ObserveInvariantViolation()
			log.Printf("[GridService] %s: INVARIANT VIOLATION at level %d: %v", s.plateID, level, err)
		case errors.Is(err, context.Canceled) && ctx.Err() == nil:
			// Superseded by a level change.
			s.metrics.ObserveStale()
			return nil
		default:
			log.Printf("[GridService] %s: refresh at level %d failed: %v", s.plateID, level, err)
		}
		return err
	}

	if !s.state.Commit(res) {
		s.metrics.ObserveStale()
		log.Printf("[GridService] %s: dropped stale level %d result", s.plateID, level)
	}
	return nil
}

// Selections returns a copy of the channel selections.
func (s *GridService) Selections() [][]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSelections(s.selections)
}

// SetSelections replaces the channel selections and refreshes.
func (s *GridService) SetSelections(ctx context.Context, sels [][]int) error {
	if err := s.checkSelections(sels); err != nil {
		return err
	}
	s.mu.Lock()
	s.selections = cloneSelections(sels)
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// Scrub moves every selection along a non-spatial axis by delta, clamped to
// the axis extent, and refreshes when anything moved.
func (s *GridService) Scrub(ctx context.Context, axis string, delta int) ([][]int, error) {
	if s.rep == nil || axis == "x" || axis == "y" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAxis, axis)
	}
	idx, ok := raster.AxisIndex(s.rep.Labels(), axis)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAxis, axis)
	}
	extent := s.rep.Shape()[idx]

	s.mu.Lock()
	moved := false
	next := cloneSelections(s.selections)
	for _, sel := range next {
		v := min(max(sel[idx]+delta, 0), extent-1)
		if v != sel[idx] {
			sel[idx] = v
			moved = true
		}
	}
	s.selections = next
	s.mu.Unlock()

	if !moved {
		return cloneSelections(next), nil
	}
	return cloneSelections(next), s.Refresh(ctx)
}

// Pick maps a screen position to the grid position under it.
func (s *GridService) Pick(screen geometry.Point) (grid.PickInfo, bool) {
	if !s.opts.Pickable {
		return grid.PickInfo{}, false
	}
	s.mu.Lock()
	vp := s.viewport
	s.mu.Unlock()
	if vp == nil {
		return grid.PickInfo{}, false
	}
	w, h, _ := grid.BaseSize(s.cells)
	return grid.Pick(geometry.ScreenToLocal(vp, s.opts.Model, screen), w, h, s.opts)
}

// CellView describes one cell of the last built grid context.
type CellView struct {
	Name    string          `json:"name"`
	Row     int             `json:"row"`
	Col     int             `json:"col"`
	Bounds  geometry.Bounds `json:"bounds"`
	Visible geometry.Bounds `json:"visible"`
	Depth   int             `json:"depth"`
}

// ContextView is the JSON form of the grid context.
type ContextView struct {
	CellWidth  int        `json:"cell_width"`
	CellHeight int        `json:"cell_height"`
	Spacer     float64    `json:"spacer"`
	Level      int        `json:"level"`
	Cells      []CellView `json:"cells"`
}

// Context returns the cells visible in the last viewport.
func (s *GridService) Context() ContextView {
	s.mu.Lock()
	gctx, ok := s.gridCtx, s.hasCtx
	s.mu.Unlock()

	out := ContextView{Level: s.state.ActiveLevel(), Cells: []CellView{}}
	if !ok {
		return out
	}
	out.CellWidth, out.CellHeight, out.Spacer = gctx.CellWidth, gctx.CellHeight, gctx.Spacer
	for _, c := range gctx.Cells {
		out.Cells = append(out.Cells, CellView{
			Name:    c.Spec.Name,
			Row:     c.Spec.Row,
			Col:     c.Spec.Col,
			Bounds:  c.Bounds,
			Visible: c.Visible,
			Depth:   len(c.Spec.Sources),
		})
	}
	return out
}

func (s *GridService) checkSelections(sels [][]int) error {
	if s.rep == nil {
		return nil
	}
	shape := s.rep.Shape()
	for i, sel := range sels {
		if len(sel) != len(shape) {
			return fmt.Errorf("%w: selection %d has %d indices, images have %d axes", ErrInvalidSelection, i, len(sel), len(shape))
		}
		for d, v := range sel {
			if v < 0 || v >= shape[d] {
				return fmt.Errorf("%w: selection %d index %d out of range [0,%d)", ErrInvalidSelection, i, v, shape[d])
			}
		}
	}
	return nil
}

func cloneSelections(sels [][]int) [][]int {
	out := make([][]int, len(sels))
	for i, s := range sels {
		out[i] = append([]int(nil), s...)
	}
	return out
}
