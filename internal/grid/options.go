// Package grid builds per-frame snapshots of which plate cells are visible and
// maps picks back to grid positions.
package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/joris-gentinetta/vizarr/internal/geometry"
)

// OptionsVersion is the current layout of Options.
const OptionsVersion = 1

// ErrInvalidOptions is returned by Options.Validate.
var ErrInvalidOptions = errors.New("invalid grid options")

// Options configures one grid. Zero values mean:
//   - Version 0: current version
//   - Spacer 0: cells touch
//   - Model nil: identity
//   - Concurrency 0: unbounded cell loading
type Options struct {
	Version      int              `json:"version"`
	Rows         int              `json:"rows"`
	Columns      int              `json:"columns"`
	RowLabels    []string         `json:"row_labels,omitempty"`
	ColumnLabels []string         `json:"column_labels,omitempty"`
	Spacer       float64          `json:"spacer"`
	Model        *geometry.Affine `json:"model,omitempty"`
	Concurrency  int              `json:"concurrency"`
	ShowLabels   bool             `json:"show_labels"`
	Pickable     bool             `json:"pickable"`
}

// Validate normalizes o and checks every field. It is called once when a
// grid is constructed.
func (o Options) Validate() (Options, error) {
	if o.Version == 0 {
		o.Version = OptionsVersion
	}
	if o.Version != OptionsVersion {
		return o, fmt.Errorf("%w: unsupported version %d", ErrInvalidOptions, o.Version)
	}
	if o.Rows <= 0 || o.Columns <= 0 {
		return o, fmt.Errorf("%w: grid must have at least one row and column, got %dx%d", ErrInvalidOptions, o.Rows, o.Columns)
	}
	if o.Spacer < 0 || math.IsNaN(o.Spacer) || math.IsInf(o.Spacer, 0) {
		return o, fmt.Errorf("%w: spacer must be a finite non-negative number, got %v", ErrInvalidOptions, o.Spacer)
	}
	if o.Concurrency < 0 {
		return o, fmt.Errorf("%w: concurrency must be >= 0, got %d", ErrInvalidOptions, o.Concurrency)
	}
	if len(o.RowLabels) > o.Rows {
		return o, fmt.Errorf("%w: %d row labels for %d rows", ErrInvalidOptions, len(o.RowLabels), o.Rows)
	}
	if len(o.ColumnLabels) > o.Columns {
		return o, fmt.Errorf("%w: %d column labels for %d columns", ErrInvalidOptions, len(o.ColumnLabels), o.Columns)
	}
	return o, nil
}

// RowLabel returns the display label of row, or "" when none is configured.
func (o Options) RowLabel(row int) string {
	if row < 0 || row >= len(o.RowLabels) {
		return ""
	}
	return o.RowLabels[row]
}

// ColumnLabel returns the display label of column, or "".
func (o Options) ColumnLabel(col int) string {
	if col < 0 || col >= len(o.ColumnLabels) {
		return ""
	}
	return o.ColumnLabels[col]
}
