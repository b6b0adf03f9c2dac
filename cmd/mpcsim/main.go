package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/mpcsim/internal/actuation"
	"github.com/san-kum/mpcsim/internal/analysis"
	"github.com/san-kum/mpcsim/internal/automation"
	"github.com/san-kum/mpcsim/internal/config"
	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/experiment"
	"github.com/san-kum/mpcsim/internal/export"
	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/nlp"
	"github.com/san-kum/mpcsim/internal/optim"
	"github.com/san-kum/mpcsim/internal/sim"
	"github.com/san-kum/mpcsim/internal/storage"
	"github.com/san-kum/mpcsim/internal/telemetry"
	"github.com/san-kum/mpcsim/internal/viz"
)

var (
	dataDir     string
	configFile  string
	preset      string
	logLevel    string
	metricsAddr string
	canIface    string

	dt             float64
	duration       float64
	integrator     string
	controller     string
	targetVelocity float64
	delaySteps     int
	lateralOffset  float64
	horizon        int

	exportPath string
	svgPath    string
	theme      string

	// tune
	cteWeights   []float64
	rateWeights  []float64
	tuneMetric   string
	tuneParallel int

	// batch
	parallel     int
	delays       []int
	trials       int
	offsetSpread float64
	speedSpread  float64
	laneHalf     float64
	seed         int64

	// solve
	solveState  []float64
	solveCoeffs []float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "mpcsim",
		Short:         "model-predictive path tracking lab",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataDir, "data", ".mpcsim", "data directory")
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&preset, "preset", "", "use preset configuration for the track")
	pf.StringVar(&logLevel, "log-level", "info", "log level")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	pf.StringVar(&canIface, "can-iface", "", "send issued commands to this SocketCAN interface")

	runCmd := &cobra.Command{
		Use:   "run [track]",
		Short: "run a closed-loop simulation and store it",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addSimFlags(runCmd)
	runCmd.Flags().StringVar(&exportPath, "export", "", "also write the full run as JSON to this path")

	liveCmd := &cobra.Command{
		Use:   "live [track]",
		Short: "run a simulation with live visualization",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addSimFlags(liveCmd)
	liveCmd.Flags().StringVar(&theme, "theme", "cyberpunk", "color theme (cyberpunk, minimal, ocean)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	svgCmd := &cobra.Command{
		Use:   "svg [run_id]",
		Short: "draw a stored run over its track as SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  svgRun,
	}
	svgCmd.Flags().StringVarP(&svgPath, "out", "o", "", "output path (default <run_id>.svg)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "frequency analysis of tracking error and steering",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	tuneCmd := &cobra.Command{
		Use:   "tune [track]",
		Short: "grid search MPC cost weights",
		Args:  cobra.MaximumNArgs(1),
		RunE:  tuneWeights,
	}
	addSimFlags(tuneCmd)
	tuneCmd.Flags().Float64SliceVar(&cteWeights, "w-cte", []float64{10, 50, 200}, "cte weights to try")
	tuneCmd.Flags().Float64SliceVar(&rateWeights, "w-delta-rate", []float64{10, 100, 500}, "steering rate weights to try")
	tuneCmd.Flags().StringVar(&tuneMetric, "metric", "cte_rms", "metric to minimize")
	tuneCmd.Flags().IntVar(&tuneParallel, "parallel", 4, "concurrent runs")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run every step of a yaml scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	scenarioCmd.Flags().IntVar(&parallel, "parallel", 4, "concurrent runs")

	sweepCmd := &cobra.Command{
		Use:   "sweep-delay [track]",
		Short: "repeat a run across actuation delays",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDelaySweep,
	}
	addSimFlags(sweepCmd)
	sweepCmd.Flags().IntSliceVar(&delays, "delays", []int{0, 1, 2, 3, 5}, "delays to try, in cycles")
	sweepCmd.Flags().IntVar(&parallel, "parallel", 4, "concurrent runs")

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [track]",
		Short: "perturb the start pose and count trials that stay in lane",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	addSimFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&trials, "trials", 20, "number of trials")
	monteCarloCmd.Flags().Float64Var(&offsetSpread, "offset-spread", 1.5, "start offset half-width (m)")
	monteCarloCmd.Flags().Float64Var(&speedSpread, "speed-spread", 3, "start speed half-width (m/s)")
	monteCarloCmd.Flags().Float64Var(&laneHalf, "lane", 2, "lane half-width (m)")
	monteCarloCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 picks one)")
	monteCarloCmd.Flags().IntVar(&parallel, "parallel", 4, "concurrent runs")

	presetsCmd := &cobra.Command{
		Use:   "presets [track]",
		Short: "list available presets for a track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for track: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	solveCmd := &cobra.Command{
		Use:   "solve",
		Short: "solve one control cycle for a given state and reference",
		RunE:  solveOnce,
	}
	solveCmd.Flags().Float64SliceVar(&solveState, "state", []float64{0, 0, 0, 10, 1, 0}, "x,y,psi,v,cte,epsi")
	solveCmd.Flags().Float64SliceVar(&solveCoeffs, "coeffs", []float64{1, 0, 0, 0}, "reference polynomial, lowest degree first")
	solveCmd.Flags().Float64Var(&targetVelocity, "target-velocity", config.DefaultTargetVelocity, "target speed (m/s)")
	solveCmd.Flags().IntVar(&delaySteps, "delay", config.DefaultDelaySteps, "actuation latency in cycles")
	solveCmd.Flags().IntVar(&horizon, "horizon", mpc.DefaultN, "prediction horizon N")

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "write the default configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(args[0], config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", args[0])
			return nil
		},
	}

	listTracksCmd := &cobra.Command{
		Use:   "tracks",
		Short: "list tracks, integrators and controllers",
		Run: func(cmd *cobra.Command, args []string) {
			r := experiment.NewRegistry()
			fmt.Printf("tracks:      %s\n", strings.Join(r.ListTracks(), ", "))
			fmt.Printf("integrators: %s\n", strings.Join(r.ListIntegrators(), ", "))
			fmt.Printf("controllers: %s\n", strings.Join(r.ListControllers(), ", "))
		},
	}

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, plotCmd, svgCmd, analyzeCmd, tuneCmd, scenarioCmd, sweepCmd, monteCarloCmd, presetsCmd, solveCmd, initCmd, listTracksCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addSimFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64Var(&dt, "dt", config.DefaultDt, "control period (s)")
	f.Float64Var(&duration, "time", config.DefaultDuration, "duration (s)")
	f.StringVar(&integrator, "integrator", "rk4", "plant integrator")
	f.StringVar(&controller, "controller", "mpc", "controller")
	f.Float64Var(&targetVelocity, "target-velocity", config.DefaultTargetVelocity, "target speed (m/s)")
	f.IntVar(&delaySteps, "delay", config.DefaultDelaySteps, "actuation latency in cycles")
	f.Float64Var(&lateralOffset, "offset", 0, "initial offset to the left of the track (m)")
	f.IntVar(&horizon, "horizon", mpc.DefaultN, "prediction horizon N")
}

// resolveConfig layers defaults, then a preset, then the config file, then
// any flag the user set explicitly.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	track := cfg.Track
	if len(args) > 0 {
		track = args[0]
	}

	if preset != "" {
		p := config.GetPreset(track, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(track))
		}
		cfg = p
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		if len(args) == 0 {
			track = cfg.Track
		}
	}
	cfg.Track = track

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("controller") {
		cfg.Controller = controller
	}
	if flags.Changed("target-velocity") {
		cfg.TargetVelocity = targetVelocity
	}
	if flags.Changed("delay") {
		cfg.DelaySteps = delaySteps
	}
	if flags.Changed("offset") {
		cfg.LateralOffset = lateralOffset
	}
	if flags.Changed("horizon") {
		cfg.Horizon.N = horizon
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}
	if flags.Changed("can-iface") {
		cfg.CANIface = canIface
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// startSidecars starts the metrics endpoint and the CAN transmitter when
// configured. The returned cleanup stops both.
func startSidecars(ctx context.Context, cfg *config.Config, log *zap.Logger) ([]dynamo.Observer, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	var observers []dynamo.Observer
	var tx *actuation.Transmitter

	if cfg.MetricsAddr != "" {
		go func() {
			if err := telemetry.Serve(ctx, cfg.MetricsAddr, log); err != nil {
				log.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}
	if cfg.CANIface != "" {
		w, err := actuation.NewSocketCANWriter(ctx, cfg.CANIface)
		if err != nil {
			cancel()
			return nil, nil, err
		}
		tx = actuation.NewTransmitter(w, log)
		observers = append(observers, tx)
	}

	cleanup := func() {
		if tx != nil {
			sent, failed := tx.Stats()
			log.Info("can transmitter closed", zap.Int("sent", sent), zap.Int("failed", failed))
			_ = tx.Close()
		}
		cancel()
	}
	return observers, cleanup, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	log, err := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	observers, cleanup, err := startSidecars(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	exp := experiment.New(cfg.ExperimentConfig(), log)
	if err := exp.Setup(experiment.NewRegistry(), observers...); err != nil {
		return err
	}

	fmt.Printf("running %s on %s...\n", cfg.Controller, cfg.Track)
	start := time.Now()
	result, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	meta := storage.RunMetadata{
		Track:          cfg.Track,
		Dt:             cfg.Dt,
		Duration:       cfg.Duration,
		Integrator:     cfg.Integrator,
		Controller:     cfg.Controller,
		TargetVelocity: cfg.TargetVelocity,
		DelaySteps:     cfg.DelaySteps,
	}
	runID, err := st.Save(meta, result)
	if err != nil {
		return err
	}

	if exportPath != "" {
		f, err := os.Create(exportPath)
		if err != nil {
			return err
		}
		defer f.Close()
		meta.ID = runID
		if err := storage.ExportJSON(f, meta, result); err != nil {
			return err
		}
	}

	fmt.Println(viz.Summary(cfg.Track, result))
	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	// The terminal belongs to the view, so nothing logs.
	log := zap.NewNop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	observers, cleanup, err := startSidecars(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	exp := experiment.New(cfg.ExperimentConfig(), log)
	if err := exp.Setup(experiment.NewRegistry(), observers...); err != nil {
		return err
	}

	name := fmt.Sprintf("%s / %s", cfg.Track, cfg.Controller)
	p := tea.NewProgram(viz.NewModel(exp.Loop(), name).WithTheme(viz.GetTheme(theme)), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTRACK\tTIME\tCTRL\tDELAY\tSTEPS\tFALLBACKS\tCTE RMS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%.3f\n",
			run.ID,
			run.Track,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Controller,
			run.DelaySteps,
			run.Steps,
			run.Failures,
			run.Metrics["cte_rms"],
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	frames, err := st.LoadFrames(runID)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("track: %s  controller: %s  delay: %d\n", meta.Track, meta.Controller, meta.DelaySteps)
	fmt.Printf("samples: %d\n\n", len(frames))

	series := []struct {
		caption string
		value   func(storage.FrameRecord) float64
	}{
		{"cross-track error (m)", func(f storage.FrameRecord) float64 { return f.CTE }},
		{"heading error (rad)", func(f storage.FrameRecord) float64 { return f.EPsi }},
		{"speed (m/s)", func(f storage.FrameRecord) float64 { return f.Pose.V }},
		{"steer", func(f storage.FrameRecord) float64 { return f.Steer }},
		{"throttle", func(f storage.FrameRecord) float64 { return f.Throttle }},
	}
	for _, s := range series {
		data := make([]float64, len(frames))
		for i, f := range frames {
			data[i] = s.value(f)
		}
		fmt.Println(viz.Plot(data, s.caption))
		fmt.Println()
	}
	return nil
}

func svgRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	frames, err := st.LoadFrames(runID)
	if err != nil {
		return err
	}
	track, err := experiment.NewRegistry().GetTrack(meta.Track)
	if err != nil {
		return err
	}

	path := svgPath
	if path == "" {
		path = runID + ".svg"
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := export.RunSVG(f, track, frames, 800, 600); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	frames, err := st.LoadFrames(runID)
	if err != nil {
		return err
	}
	if len(frames) < 2 {
		return fmt.Errorf("no data")
	}

	cte := make([]float64, len(frames))
	steer := make([]float64, len(frames))
	for i, f := range frames {
		cte[i] = f.CTE
		steer[i] = f.Steer
	}

	fmt.Printf("frequency analysis: %s\n", meta.ID)
	fmt.Printf("track: %s  controller: %s\n\n", meta.Track, meta.Controller)

	freqs, power := analysis.PowerSpectrum(steer, meta.Dt)
	fmt.Println(viz.Plot(power, fmt.Sprintf("steer spectrum, 0 to %.1f hz", freqs[len(freqs)-1])))
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SIGNAL\tFREQ (HZ)\tPERIOD (S)\tRMS\tCROSSINGS")
	for _, s := range []struct {
		name string
		data []float64
	}{{"cte", cte}, {"steer", steer}} {
		wv := analysis.AnalyzeWeave(s.data, meta.Dt)
		fmt.Fprintf(w, "%s\t%.3f\t%.2f\t%.4f\t%d\n", s.name, wv.Frequency, wv.Period, wv.Amplitude, wv.Crossings)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\ncte overshoot: %.1f%%\n", 100*analysis.Overshoot(cte))
	return nil
}

func tuneWeights(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	cfg.Controller = "mpc"
	log, err := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	gs := optim.NewGridSearch([]string{"w_cte", "w_delta_rate"}, [][]float64{cteWeights, rateWeights})
	gs.Parallelism = tuneParallel

	build := func(params map[string]float64) (*experiment.Experiment, error) {
		ec := cfg.ExperimentConfig()
		ec.Params = make(map[string]float64, len(cfg.ControllerParams)+len(params))
		for k, v := range cfg.ControllerParams {
			ec.Params[k] = v
		}
		for k, v := range params {
			ec.Params[k] = v
		}
		exp := experiment.New(ec, log)
		if err := exp.Setup(experiment.NewRegistry()); err != nil {
			return nil, err
		}
		return exp, nil
	}

	fmt.Printf("tuning %d combinations on %s (minimizing %s)...\n", len(cteWeights)*len(rateWeights), cfg.Track, tuneMetric)
	start := time.Now()
	best, value, evals, err := gs.Search(ctx, build, tuneMetric)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "W_CTE\tW_DELTA_RATE\t%s\n", strings.ToUpper(tuneMetric))
	for _, e := range evals {
		val := fmt.Sprintf("%.4f", e.Value)
		if e.Err != nil {
			val = "error: " + e.Err.Error()
		}
		fmt.Fprintf(w, "%g\t%g\t%s\n", e.Params["w_cte"], e.Params["w_delta_rate"], val)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if best == nil {
		return fmt.Errorf("no combination produced %s", tuneMetric)
	}
	fmt.Printf("\nbest: w_cte=%g w_delta_rate=%g %s=%.4f (%v)\n",
		best["w_cte"], best["w_delta_rate"], tuneMetric, value, time.Since(start).Round(time.Millisecond))
	return nil
}

func batchLogger(cfg *config.Config) (*zap.Logger, error) {
	return telemetry.NewLogger(cfg.Log.Level, cfg.Log.Development)
}

func printBatch(names []string, results []*sim.Result) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTEPS\tFALLBACKS\tCTE RMS\tEPSI RMS\tSPEED ERR\tSTATUS")
	for i, res := range results {
		status := "ok"
		switch {
		case len(res.Errors) > 0:
			status = "aborted: " + res.Errors[0].Error()
		case res.Completed:
			status = "end of track"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%.4f\t%.4f\t%.4f\t%s\n",
			names[i], res.StepsTaken, res.Failures,
			res.Metrics["cte_rms"], res.Metrics["epsi_rms"], res.Metrics["speed_error"], status)
	}
	return w.Flush()
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	base, err := resolveConfig(cmd, nil)
	if err != nil {
		return err
	}
	log, err := batchLogger(base)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := automation.NewRunner(parallel, log).RunScenario(ctx, scenario, base)
	if err != nil {
		return err
	}

	fmt.Printf("scenario: %s\n", scenario.Name)
	if scenario.Description != "" {
		fmt.Println(scenario.Description)
	}
	fmt.Println()
	names := make([]string, len(results))
	runs := make([]*sim.Result, len(results))
	for i, r := range results {
		names[i] = fmt.Sprintf("%s (%s/%s)", r.Name, r.Config.Track, r.Config.Controller)
		runs[i] = r.Result
	}
	return printBatch(names, runs)
}

func runDelaySweep(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	log, err := batchLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := automation.NewRunner(parallel, log).RunDelaySweep(ctx, cfg, delays)
	if err != nil {
		return err
	}

	fmt.Printf("delay sweep: %s / %s\n\n", cfg.Track, cfg.Controller)
	names := make([]string, len(results))
	runs := make([]*sim.Result, len(results))
	for i, r := range results {
		names[i] = fmt.Sprintf("delay=%d (%.0f ms)", r.DelaySteps, float64(r.DelaySteps)*cfg.Dt*1000)
		runs[i] = r.Result
	}
	return printBatch(names, runs)
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	log, err := batchLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mc := automation.MonteCarloConfig{
		Trials:       trials,
		OffsetSpread: offsetSpread,
		SpeedSpread:  speedSpread,
		MaxCTE:       laneHalf,
		Seed:         seed,
	}
	results, err := automation.NewRunner(parallel, log).RunMonteCarlo(ctx, cfg, mc)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRIAL\tOFFSET\tSPEED\tMAX CTE\tFALLBACKS\tSTABLE")
	for _, r := range results {
		fmt.Fprintf(w, "%d\t%+.2f\t%.2f\t%.3f\t%d\t%v\n",
			r.TrialID, r.LateralOffset, r.InitialVelocity, r.MaxCTE, r.Failures, r.Stable)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	stable, unstable := automation.MonteCarloStats(results)
	fmt.Printf("\nstable: %d  unstable: %d\n", stable, unstable)
	return nil
}

func solveOnce(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	log, err := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer log.Sync()

	state, err := dynamo.ParseState(solveState)
	if err != nil {
		return err
	}
	mcfg := cfg.ControllerConfig()
	if len(solveCoeffs) > 0 {
		mcfg.PolyDegree = len(solveCoeffs) - 1
	}

	ctrl, err := mpc.New(mcfg, mpc.WithSolver(nlp.NewAugLag(cfg.SolverSettings())), mpc.WithLogger(log))
	if err != nil {
		return err
	}

	res, err := ctrl.Solve(state, solveCoeffs)
	if err != nil && !errors.Is(err, mpc.ErrConvergence) {
		return err
	}
	if res.Fallback {
		fmt.Printf("solver failed, fallback issued: %v\n", err)
	}

	fmt.Printf("steer:    %+.4f (%.4f rad)\n", res.Command.Steer, res.Actuation.Delta)
	fmt.Printf("throttle: %+.4f\n", res.Command.Throttle)
	fmt.Printf("status:   %s  cost: %.4f\n\n", res.Status, res.Cost)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "T\tX\tY")
	for i := 0; i < res.Predicted.Len(); i++ {
		fmt.Fprintf(w, "%d\t%.3f\t%.3f\n", i+1, res.Predicted.X[i], res.Predicted.Y[i])
	}
	return w.Flush()
}
