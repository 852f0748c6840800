package render

import (
	"image/color"
	"math"
)

// levelStops shade cells from the finest level (first) to the coarsest.
var levelStops = []color.RGBA{
	{68, 1, 84, 255},
	{59, 82, 139, 255},
	{33, 145, 140, 255},
	{94, 201, 98, 255},
	{253, 231, 37, 255},
}

// outlines are the Okabe-Ito colours, one per pyramid level.
var outlines = []color.RGBA{
	{0, 0, 0, 255},
	{230, 159, 0, 255},
	{86, 180, 233, 255},
	{0, 158, 115, 255},
	{240, 228, 66, 255},
	{0, 114, 178, 255},
	{213, 94, 0, 255},
	{204, 121, 167, 255},
}

var (
	pickOutline    = outlines[7]
	croppedOutline = outlines[6]
)

// levelFill returns the fill for level out of maxLevel.
func levelFill(level, maxLevel int) color.RGBA {
	if maxLevel <= 0 || level <= 0 {
		return levelStops[0]
	}
	if level >= maxLevel {
		return levelStops[len(levelStops)-1]
	}
	pos := float64(level) / float64(maxLevel) * float64(len(levelStops)-1)
	i := int(pos)
	f := pos - float64(i)
	a, b := levelStops[i], levelStops[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + f*(float64(y)-float64(x))))
	}
	return color.RGBA{lerp(a.R, b.R), lerp(a.G, b.G), lerp(a.B, b.B), 255}
}

// levelOutline returns the label outline colour for level.
func levelOutline(level int) color.RGBA {
	if level < 0 {
		level = -level
	}
	return outlines[level%len(outlines)]
}
