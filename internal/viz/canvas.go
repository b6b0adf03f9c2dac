package viz

import (
	"strings"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const blank = 0x2800

// Canvas is a character grid where every cell holds 2x4 braille dots.
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Set lights the dot at sub-pixel (x, y); the canvas spans
// (Width*2) x (Height*4) sub-pixels. Out-of-range dots are ignored.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = blank
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// Viewport maps world metres onto canvas sub-pixels, centred on (CX, CY)
// with y pointing up.
type Viewport struct {
	CX, CY float64
	// Scale is sub-pixels per metre.
	Scale float64
}

func (v Viewport) project(c *Canvas, x, y float64) (int, int) {
	px := float64(c.Width) + (x-v.CX)*v.Scale
	py := float64(c.Height*2) - (y-v.CY)*v.Scale
	return int(px), int(py)
}

// Polyline connects consecutive world points.
func (c *Canvas) Polyline(v Viewport, xs, ys []float64) {
	n := min(len(xs), len(ys))
	if n == 1 {
		c.Set(v.project(c, xs[0], ys[0]))
		return
	}
	for i := 1; i < n; i++ {
		x0, y0 := v.project(c, xs[i-1], ys[i-1])
		x1, y1 := v.project(c, xs[i], ys[i])
		c.DrawLine(x0, y0, x1, y1)
	}
}

// Points marks world points without connecting them.
func (c *Canvas) Points(v Viewport, xs, ys []float64) {
	for i := 0; i < min(len(xs), len(ys)); i++ {
		c.Set(v.project(c, xs[i], ys[i]))
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
