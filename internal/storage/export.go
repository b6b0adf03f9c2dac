package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/sim"
)

type ExportFrame struct {
	Time     float64   `json:"time"`
	Pose     sim.Pose  `json:"pose"`
	CTE      float64   `json:"cte"`
	EPsi     float64   `json:"epsi"`
	Coeffs   []float64 `json:"coeffs"`
	Steer    float64   `json:"steer"`
	Throttle float64   `json:"throttle"`
	PredX    []float64 `json:"pred_x,omitempty"`
	PredY    []float64 `json:"pred_y,omitempty"`
	Fallback bool      `json:"fallback,omitempty"`
}

type ExportData struct {
	Run    RunMetadata   `json:"run"`
	Frames []ExportFrame `json:"frames"`
}

// ExportJSON writes the full run, including fitted coefficients and
// predicted trajectories that frames.csv leaves out.
func ExportJSON(w io.Writer, meta RunMetadata, result *sim.Result) error {
	meta.Steps = result.StepsTaken
	meta.Failures = result.Failures
	meta.Completed = result.Completed
	meta.Metrics = result.Metrics

	data := ExportData{Run: meta, Frames: make([]ExportFrame, len(result.Frames))}
	for i, f := range result.Frames {
		data.Frames[i] = ExportFrame{
			Time:     f.Time,
			Pose:     f.Pose,
			CTE:      f.State[dynamo.CTE],
			EPsi:     f.State[dynamo.EPsi],
			Coeffs:   f.Coeffs,
			Steer:    f.Command.Steer,
			Throttle: f.Command.Throttle,
			PredX:    f.Predicted.X,
			PredY:    f.Predicted.Y,
			Fallback: f.Fallback,
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
