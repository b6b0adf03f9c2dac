package viz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/sim"
)

// Summary renders charts of a finished run and its metrics as plain text.
func Summary(name string, res *sim.Result) string {
	st := stylesFor(ThemeMinimal)
	var b strings.Builder
	b.WriteString(st.header.Render(name) + "\n")

	if len(res.Frames) > 1 {
		cte := make([]float64, len(res.Frames))
		steer := make([]float64, len(res.Frames))
		for i, f := range res.Frames {
			cte[i] = f.State[dynamo.CTE]
			steer[i] = f.Command.Steer
		}
		b.WriteString(Plot(cte, "cross-track error (m)") + "\n\n")
		b.WriteString(Plot(steer, "steer") + "\n\n")
	}

	fmt.Fprintf(&b, "steps: %d  fallbacks: %d  completed: %v\n", res.StepsTaken, res.Failures, res.Completed)
	keys := make([]string, 0, len(res.Metrics))
	for k := range res.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %-18s %.4f\n", k, res.Metrics[k])
	}
	for _, err := range res.Errors {
		fmt.Fprintf(&b, "  error: %v\n", err)
	}
	return b.String()
}

// Plot draws one series, downsampled to fit a 70-column chart.
func Plot(series []float64, caption string) string {
	if len(series) == 0 {
		return ""
	}
	return asciigraph.Plot(downsample(series, 70), asciigraph.Height(10), asciigraph.Width(70), asciigraph.Caption(caption))
}

func downsample(series []float64, n int) []float64 {
	if len(series) <= n {
		return series
	}
	out := make([]float64, n)
	step := float64(len(series)) / float64(n)
	for i := range out {
		out[i] = series[int(float64(i)*step)]
	}
	return out
}
