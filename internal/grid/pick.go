package grid

import (
	"math"

	"github.com/joris-gentinetta/vizarr/internal/geometry"
)

// PickInfo annotates a pick with the grid position under it.
type PickInfo struct {
	Row         int    `json:"row"`
	Column      int    `json:"column"`
	RowLabel    string `json:"row_label,omitempty"`
	ColumnLabel string `json:"column_label,omitempty"`
}

// Pick maps a local-frame coordinate to a grid position. It reports false
// before the cell size is known or when p falls outside the grid.
func Pick(p geometry.Point, cellWidth, cellHeight int, opts Options) (PickInfo, bool) {
	if cellWidth <= 0 || cellHeight <= 0 {
		return PickInfo{}, false
	}
	extent := geometry.GridBounds(opts.Rows, opts.Columns, float64(cellWidth), float64(cellHeight), opts.Spacer)
	if !extent.Contains(p) {
		return PickInfo{}, false
	}
	row := int(math.Floor(p.Y / (float64(cellHeight) + opts.Spacer)))
	col := int(math.Floor(p.X / (float64(cellWidth) + opts.Spacer)))
	if row < 0 || row >= opts.Rows || col < 0 || col >= opts.Columns {
		return PickInfo{}, false
	}
	return PickInfo{
		Row:         row,
		Column:      col,
		RowLabel:    opts.RowLabel(row),
		ColumnLabel: opts.ColumnLabel(col),
	}, true
}
