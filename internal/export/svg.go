package export

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/san-kum/mpcsim/internal/sim"
	"github.com/san-kum/mpcsim/internal/storage"
)

// Layer is one polyline drawn in world coordinates.
type Layer struct {
	X, Y   []float64
	Stroke string
	Width  float64
	// Markers draws a dot at each point instead of a line.
	Markers bool
}

type bounds struct {
	minX, maxX, minY, maxY float64
}

func layerBounds(layers []Layer) (bounds, bool) {
	b := bounds{math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1)}
	found := false
	for _, l := range layers {
		for i := 0; i < min(len(l.X), len(l.Y)); i++ {
			b.minX = math.Min(b.minX, l.X[i])
			b.maxX = math.Max(b.maxX, l.X[i])
			b.minY = math.Min(b.minY, l.Y[i])
			b.maxY = math.Max(b.maxY, l.Y[i])
			found = true
		}
	}
	return b, found
}

// WriteSVG renders layers onto a width x height canvas. Both axes share
// one scale so the geometry is not distorted, with 5% padding.
func WriteSVG(w io.Writer, width, height int, layers ...Layer) error {
	b, ok := layerBounds(layers)
	if !ok {
		return fmt.Errorf("export: nothing to draw")
	}

	rangeX := math.Max(b.maxX-b.minX, 1)
	rangeY := math.Max(b.maxY-b.minY, 1)
	scale := 0.9 * math.Min(float64(width)/rangeX, float64(height)/rangeY)
	offX := (float64(width) - (b.maxX-b.minX)*scale) / 2
	offY := (float64(height) - (b.maxY-b.minY)*scale) / 2
	project := func(x, y float64) (float64, float64) {
		return offX + (x-b.minX)*scale, float64(height) - offY - (y-b.minY)*scale
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	for _, l := range layers {
		n := min(len(l.X), len(l.Y))
		if n == 0 {
			continue
		}
		if l.Markers {
			fmt.Fprintf(bw, `<g fill="%s">`+"\n", l.Stroke)
			for i := 0; i < n; i++ {
				x, y := project(l.X[i], l.Y[i])
				fmt.Fprintf(bw, `<circle cx="%.1f" cy="%.1f" r="%.1f"/>`+"\n", x, y, l.Width)
			}
			bw.WriteString("</g>\n")
			continue
		}
		fmt.Fprintf(bw, `<path fill="none" stroke="%s" stroke-width="%.1f" d="M`, l.Stroke, l.Width)
		for i := 0; i < n; i++ {
			x, y := project(l.X[i], l.Y[i])
			if i == 0 {
				fmt.Fprintf(bw, "%.1f,%.1f", x, y)
			} else {
				fmt.Fprintf(bw, " L%.1f,%.1f", x, y)
			}
		}
		bw.WriteString(`"/>` + "\n")
	}

	bw.WriteString("</svg>\n")
	return bw.Flush()
}

// RunSVG draws a stored run over its track: the centreline in grey, the
// driven path in green and cycles that fell back in red.
func RunSVG(w io.Writer, track *sim.Track, frames []storage.FrameRecord, width, height int) error {
	var px, py, fx, fy []float64
	for _, f := range frames {
		px = append(px, f.Pose.X)
		py = append(py, f.Pose.Y)
		if f.Fallback {
			fx = append(fx, f.Pose.X)
			fy = append(fy, f.Pose.Y)
		}
	}

	tx, ty := track.X, track.Y
	if track.Closed && len(tx) > 0 {
		tx = append(append([]float64{}, tx...), tx[0])
		ty = append(append([]float64{}, ty...), ty[0])
	}

	// Only the stretch of track near the run sets the bounds.
	if len(px) > 0 && !track.Closed {
		last := track.Nearest(px[len(px)-1], py[len(py)-1], -1, track.Len())
		end := min(last+10, len(tx))
		tx, ty = tx[:end], ty[:end]
	}

	return WriteSVG(w, width, height,
		Layer{X: tx, Y: ty, Stroke: "#666666", Width: 3},
		Layer{X: px, Y: py, Stroke: "#00ff00", Width: 1.5},
		Layer{X: fx, Y: fy, Stroke: "#ff0000", Width: 2, Markers: true},
	)
}
