package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/sim"
)

const (
	metadataFile = "metadata.json"
	framesFile   = "frames.csv"
)

var frameHeader = []string{
	"time", "x", "y", "psi", "v", "cte", "epsi",
	"steer", "throttle", "applied_steer", "applied_throttle", "fallback",
}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID             string             `json:"id"`
	Track          string             `json:"track"`
	Timestamp      time.Time          `json:"timestamp"`
	Dt             float64            `json:"dt"`
	Duration       float64            `json:"duration"`
	Integrator     string             `json:"integrator"`
	Controller     string             `json:"controller"`
	TargetVelocity float64            `json:"target_velocity"`
	DelaySteps     int                `json:"delay_steps"`
	Steps          int                `json:"steps"`
	Failures       int                `json:"failures"`
	Completed      bool               `json:"completed"`
	Metrics        map[string]float64 `json:"metrics"`
}

// FrameRecord is one row of frames.csv.
type FrameRecord struct {
	Time            float64
	Pose            sim.Pose
	CTE, EPsi       float64
	Steer, Throttle float64
	AppliedSteer    float64
	AppliedThrottle float64
	Fallback        bool
}

// Save writes a run under a fresh ID and returns it. Fields of meta that
// the result determines are filled in.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	meta.ID = uuid.NewString()
	meta.Timestamp = time.Now()
	meta.Steps = result.StepsTaken
	meta.Failures = result.Failures
	meta.Completed = result.Completed
	meta.Metrics = result.Metrics

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, framesFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write(frameHeader); err != nil {
		return "", err
	}
	for _, f := range result.Frames {
		if err := w.Write(frameRow(f)); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	return meta.ID, nil
}

func frameRow(f sim.Frame) []string {
	vals := []float64{
		f.Time, f.Pose.X, f.Pose.Y, f.Pose.Psi, f.Pose.V,
		f.State[dynamo.CTE], f.State[dynamo.EPsi],
		f.Command.Steer, f.Command.Throttle,
		f.Applied.Steer, f.Applied.Throttle,
	}
	row := make([]string, 0, len(vals)+1)
	for _, v := range vals {
		row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
	}
	return append(row, strconv.FormatBool(f.Fallback))
}

// List returns stored runs, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadFrames(runID string) ([]FrameRecord, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	file, err := os.Open(filepath.Join(s.baseDir, runID, framesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(frameHeader)

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []FrameRecord{}, nil
	}

	frames := make([]FrameRecord, 0, len(records)-1)
	for i, record := range records[1:] {
		var vals [11]float64
		for j := range vals {
			v, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i+1, frameHeader[j], err)
			}
			vals[j] = v
		}
		fallback, err := strconv.ParseBool(record[11])
		if err != nil {
			return nil, fmt.Errorf("row %d column fallback: %w", i+1, err)
		}
		frames = append(frames, FrameRecord{
			Time:            vals[0],
			Pose:            sim.Pose{X: vals[1], Y: vals[2], Psi: vals[3], V: vals[4]},
			CTE:             vals[5],
			EPsi:            vals[6],
			Steer:           vals[7],
			Throttle:        vals[8],
			AppliedSteer:    vals[9],
			AppliedThrottle: vals[10],
			Fallback:        fallback,
		})
	}
	return frames, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
