package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/sim"
)

func sampleResult() *sim.Result {
	return &sim.Result{
		Frames: []sim.Frame{
			{
				Time:    0,
				Pose:    sim.Pose{X: 0, Y: 1, Psi: 0, V: 10},
				State:   dynamo.State{0, 0, 0, 10, -1, 0.05},
				Coeffs:  []float64{-1, 0, 0, 0},
				Command: dynamo.Command{Steer: -0.2, Throttle: 0.1},
				Predicted: dynamo.Trajectory{
					X: []float64{1, 2},
					Y: []float64{-0.1, -0.3},
				},
			},
			{
				Time:     0.1,
				Pose:     sim.Pose{X: 1, Y: 0.98, Psi: -0.01, V: 10.01},
				State:    dynamo.State{0, 0, 0, 10.01, -0.98, 0.06},
				Command:  dynamo.Command{Steer: -0.2, Throttle: -0.1},
				Applied:  dynamo.Command{Steer: -0.2, Throttle: 0.1},
				Fallback: true,
			},
		},
		StepsTaken: 2,
		Failures:   1,
		Metrics:    map[string]float64{"cte_rms": 0.99},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(RunMetadata{Track: "straight", Dt: 0.1, Controller: "mpc"}, sampleResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := uuid.Parse(runID); err != nil {
		t.Errorf("run id %q is not a uuid", runID)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Track != "straight" || meta.Controller != "mpc" {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Steps != 2 || meta.Failures != 1 {
		t.Errorf("result fields not recorded: %+v", meta)
	}
	if meta.Metrics["cte_rms"] != 0.99 {
		t.Errorf("expected cte_rms 0.99, got %f", meta.Metrics["cte_rms"])
	}

	frames, err := st.LoadFrames(runID)
	if err != nil {
		t.Fatalf("load frames failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].CTE != -1 || frames[0].Pose.Y != 1 || frames[0].Steer != -0.2 {
		t.Errorf("frame 0 mismatch: %+v", frames[0])
	}
	if !frames[1].Fallback || frames[1].AppliedThrottle != 0.1 {
		t.Errorf("frame 1 mismatch: %+v", frames[1])
	}
}

func TestStoreList(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := st.Save(RunMetadata{Track: "oval"}, sampleResult()); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	// Stray directories are skipped.
	if err := os.Mkdir(filepath.Join(tmpDir, "scratch"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
	if len(runs) == 2 && runs[0].Timestamp.Before(runs[1].Timestamp) {
		t.Error("runs should be newest first")
	}
}

func TestStoreRejectsBadID(t *testing.T) {
	st := New(t.TempDir())
	if _, err := st.Load("../etc"); err == nil {
		t.Error("expected error for non-uuid run id")
	}
	if _, err := st.LoadFrames("nope"); err == nil {
		t.Error("expected error for non-uuid run id")
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(RunMetadata{}, &sim.Result{})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runDir := filepath.Join(tmpDir, runID)
	for _, name := range []string{metadataFile, framesFile} {
		if _, err := os.Stat(filepath.Join(runDir, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}

	frames, err := st.LoadFrames(runID)
	if err != nil || len(frames) != 0 {
		t.Errorf("empty run: %v frames, err %v", len(frames), err)
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportJSON(&buf, RunMetadata{Track: "sine"}, sampleResult()); err != nil {
		t.Fatal(err)
	}

	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatal(err)
	}
	if data.Run.Track != "sine" || len(data.Frames) != 2 {
		t.Fatalf("unexpected export %+v", data.Run)
	}
	if len(data.Frames[0].PredX) != 2 || data.Frames[0].Coeffs[0] != -1 {
		t.Errorf("frame 0 lost plan or coefficients: %+v", data.Frames[0])
	}
}
