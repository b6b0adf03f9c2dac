package sim

import (
	"errors"
	"math"
)

var ErrTrackTooShort = errors.New("sim: track has too few waypoints")

// Track is a polyline of global waypoints. A closed track wraps around.
type Track struct {
	Name   string
	X, Y   []float64
	Closed bool
}

func (t *Track) Len() int { return len(t.X) }

// Heading of the segment leaving waypoint i.
func (t *Track) Heading(i int) float64 {
	n := t.Len()
	j := i + 1
	if j >= n {
		if !t.Closed {
			i, j = n-2, n-1
		} else {
			j = 0
		}
	}
	return math.Atan2(t.Y[j]-t.Y[i], t.X[j]-t.X[i])
}

// Nearest returns the waypoint closest to (x, y), searching forward from
// hint. A negative hint searches the whole track.
func (t *Track) Nearest(x, y float64, hint, window int) int {
	n := t.Len()
	start, count := 0, n
	if hint >= 0 && window > 0 && window < n {
		start, count = hint, window
	}
	best, bestD := start, math.Inf(1)
	for k := 0; k < count; k++ {
		i := start + k
		if i >= n {
			if !t.Closed {
				break
			}
			i -= n
		}
		d := math.Hypot(t.X[i]-x, t.Y[i]-y)
		if d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

// Window returns count waypoints starting at i, wrapping on closed tracks.
// On open tracks the window is truncated at the end.
func (t *Track) Window(i, count int) ([]float64, []float64) {
	n := t.Len()
	xs := make([]float64, 0, count)
	ys := make([]float64, 0, count)
	for k := 0; k < count; k++ {
		j := i + k
		if j >= n {
			if !t.Closed {
				break
			}
			j %= n
		}
		xs = append(xs, t.X[j])
		ys = append(ys, t.Y[j])
	}
	return xs, ys
}

// Straight is an open track along the x axis.
func Straight(length, spacing float64) *Track {
	n := int(length/spacing) + 1
	t := &Track{Name: "straight", X: make([]float64, n), Y: make([]float64, n)}
	for i := range t.X {
		t.X[i] = float64(i) * spacing
	}
	return t
}

// Sine is an open track weaving y = amplitude*sin(2*pi*x/wavelength).
func Sine(length, amplitude, wavelength, spacing float64) *Track {
	n := int(length/spacing) + 1
	t := &Track{Name: "sine", X: make([]float64, n), Y: make([]float64, n)}
	k := 2 * math.Pi / wavelength
	for i := range t.X {
		x := float64(i) * spacing
		t.X[i] = x
		t.Y[i] = amplitude * math.Sin(k*x)
	}
	return t
}

// Oval is a closed stadium: two straights joined by semicircles, driven
// counter-clockwise from the start of the lower straight.
func Oval(straight, radius, spacing float64) *Track {
	t := &Track{Name: "oval", Closed: true}
	add := func(x, y float64) {
		t.X = append(t.X, x)
		t.Y = append(t.Y, y)
	}

	ns := int(straight / spacing)
	na := int(math.Pi * radius / spacing)
	for i := 0; i < ns; i++ {
		add(float64(i)*spacing, 0)
	}
	for i := 0; i < na; i++ {
		a := -math.Pi/2 + math.Pi*float64(i)/float64(na)
		add(straight+radius*math.Cos(a), radius+radius*math.Sin(a))
	}
	for i := 0; i < ns; i++ {
		add(straight-float64(i)*spacing, 2*radius)
	}
	for i := 0; i < na; i++ {
		a := math.Pi/2 + math.Pi*float64(i)/float64(na)
		add(radius*math.Cos(a), radius+radius*math.Sin(a))
	}
	return t
}
