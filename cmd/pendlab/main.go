package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/pendlab/internal/config"
	"github.com/san-kum/pendlab/internal/experiment"
	"github.com/san-kum/pendlab/internal/export"
	"github.com/san-kum/pendlab/internal/rl"
	"github.com/san-kum/pendlab/internal/sim"
	"github.com/san-kum/pendlab/internal/storage"
	"github.com/san-kum/pendlab/internal/tui"
)

var (
	dataDir    string
	dt         float64
	duration   float64
	theta      float64
	omega      float64
	pos        float64
	vel        float64
	seed       int64
	integrator string
	controller string
	kp         float64
	ki         float64
	kd         float64
	target     float64
	configFile string
	preset     string
	outPath    string
	runs       int
	// training
	envName     string
	episodes    int
	maxSteps    int
	noiseSigma  float64
	checkpoint  string
	rewardsPlot string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pendlab",
		Short: "control and learning experiment lab",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".pendlab", "data directory")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run a closed-loop simulation",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulation,
	}
	runCmd.Flags().Float64Var(&dt, "dt", 0.01, "timestep")
	runCmd.Flags().Float64Var(&duration, "time", 10.0, "duration")
	runCmd.Flags().Float64Var(&theta, "theta", 0.5, "initial angle")
	runCmd.Flags().Float64Var(&omega, "omega", 0.0, "initial angular velocity")
	runCmd.Flags().Float64Var(&pos, "pos", 0.0, "initial position")
	runCmd.Flags().Float64Var(&vel, "vel", 0.0, "initial velocity")
	runCmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
	runCmd.Flags().StringVar(&integrator, "integrator", "rk4", "integrator")
	runCmd.Flags().StringVar(&controller, "controller", "none", "controller")
	runCmd.Flags().Float64Var(&kp, "kp", config.DefaultKp, "pid kp")
	runCmd.Flags().Float64Var(&ki, "ki", config.DefaultKi, "pid ki")
	runCmd.Flags().Float64Var(&kd, "kd", config.DefaultKd, "pid kd")
	runCmd.Flags().Float64Var(&target, "target", 0.0, "setpoint")
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")

	liveCmd := &cobra.Command{
		Use:   "live [model]",
		Short: "run with live terminal visualization",
		Args:  cobra.ExactArgs(1),
		RunE:  runLive,
	}
	liveCmd.Flags().Float64Var(&dt, "dt", 0.01, "timestep")
	liveCmd.Flags().Float64Var(&theta, "theta", 0.5, "initial angle")
	liveCmd.Flags().Float64Var(&omega, "omega", 0.0, "initial angular velocity")
	liveCmd.Flags().Float64Var(&pos, "pos", 0.0, "initial position")
	liveCmd.Flags().Float64Var(&vel, "vel", 0.0, "initial velocity")
	liveCmd.Flags().StringVar(&integrator, "integrator", "rk4", "integrator")
	liveCmd.Flags().StringVar(&controller, "controller", "none", "controller")
	liveCmd.Flags().Float64Var(&kp, "kp", config.DefaultKp, "pid kp")
	liveCmd.Flags().Float64Var(&ki, "ki", config.DefaultKi, "pid ki")
	liveCmd.Flags().Float64Var(&kd, "kd", config.DefaultKd, "pid kd")
	liveCmd.Flags().Float64Var(&target, "target", 0.0, "setpoint")
	liveCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	plotPNGCmd := &cobra.Command{
		Use:   "plot-png [run_id]",
		Short: "render run trajectories to a PNG",
		Args:  cobra.ExactArgs(1),
		RunE:  plotPNG,
	}
	plotPNGCmd.Flags().StringVar(&outPath, "out", "states.png", "output file")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print run metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "print run data as CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for model: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "run a seed sweep and summarize metrics",
		Args:  cobra.ExactArgs(1),
		RunE:  runSweep,
	}
	sweepCmd.Flags().Float64Var(&dt, "dt", 0.01, "timestep")
	sweepCmd.Flags().Float64Var(&duration, "time", 10.0, "duration")
	sweepCmd.Flags().Float64Var(&theta, "theta", 0.5, "initial angle")
	sweepCmd.Flags().Float64Var(&omega, "omega", 0.0, "initial angular velocity")
	sweepCmd.Flags().Float64Var(&pos, "pos", 0.0, "initial position")
	sweepCmd.Flags().Float64Var(&vel, "vel", 0.0, "initial velocity")
	sweepCmd.Flags().Int64Var(&seed, "seed", 1, "first seed")
	sweepCmd.Flags().IntVar(&runs, "runs", 8, "number of runs")
	sweepCmd.Flags().StringVar(&integrator, "integrator", "rk4", "integrator")
	sweepCmd.Flags().StringVar(&controller, "controller", "none", "controller")
	sweepCmd.Flags().Float64Var(&kp, "kp", config.DefaultKp, "pid kp")
	sweepCmd.Flags().Float64Var(&ki, "ki", config.DefaultKi, "pid ki")
	sweepCmd.Flags().Float64Var(&kd, "kd", config.DefaultKd, "pid kd")
	sweepCmd.Flags().Float64Var(&target, "target", 0.0, "setpoint")
	sweepCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")

	scenariosCmd := &cobra.Command{
		Use:   "scenarios [name]",
		Short: "run the built-in acceptance scenarios",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScenarios,
	}

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "train a DDPG agent",
		RunE:  trainAgent,
	}
	trainCmd.Flags().StringVar(&envName, "env", "pendulum", "environment (pendulum, cartpole)")
	trainCmd.Flags().IntVar(&episodes, "episodes", 200, "training episodes")
	trainCmd.Flags().IntVar(&maxSteps, "steps", 400, "max steps per episode")
	trainCmd.Flags().Float64Var(&noiseSigma, "sigma", 0.6, "initial exploration noise")
	trainCmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
	trainCmd.Flags().StringVar(&checkpoint, "checkpoint", "agent", "checkpoint name")
	trainCmd.Flags().StringVar(&rewardsPlot, "plot", "", "write reward curve PNG")

	evalCmd := &cobra.Command{
		Use:   "eval",
		Short: "evaluate a trained agent",
		RunE:  evalAgent,
	}
	evalCmd.Flags().StringVar(&envName, "env", "pendulum", "environment (pendulum, cartpole)")
	evalCmd.Flags().IntVar(&episodes, "episodes", 5, "evaluation episodes")
	evalCmd.Flags().IntVar(&maxSteps, "steps", 400, "max steps per episode")
	evalCmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	evalCmd.Flags().StringVar(&checkpoint, "checkpoint", "agent", "checkpoint name")

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, plotCmd, plotPNGCmd, exportCmd,
		exportCSVCmd, presetsCmd, sweepCmd, scenariosCmd, trainCmd, evalCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyPresetAndConfig folds preset and config file values into the
// flag variables. CLI flags win over the config file; the preset is
// the baseline.
func applyPresetAndConfig(cmd *cobra.Command, model string) (map[string]float64, error) {
	params := map[string]float64{
		"kp": kp, "ki": ki, "kd": kd, "target": target,
	}

	if preset != "" {
		cfg := config.GetPreset(model, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
		dt = cfg.Dt
		duration = cfg.Duration
		integrator = cfg.Integrator
		if cfg.Controller != "" {
			controller = cfg.Controller
		}
		theta = cfg.InitState.Theta
		omega = cfg.InitState.Omega
		pos = cfg.InitState.Pos
		vel = cfg.InitState.Vel
		params = cfg.GetControllerParams()
	}

	if configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if !cmd.Flags().Changed("dt") {
			dt = cfg.Dt
		}
		if !cmd.Flags().Changed("time") {
			duration = cfg.Duration
		}
		if !cmd.Flags().Changed("integrator") {
			integrator = cfg.Integrator
		}
		if !cmd.Flags().Changed("controller") && cfg.Controller != "" {
			controller = cfg.Controller
		}
		if !cmd.Flags().Changed("theta") {
			theta = cfg.InitState.Theta
		}
		if !cmd.Flags().Changed("omega") {
			omega = cfg.InitState.Omega
		}
		if !cmd.Flags().Changed("pos") {
			pos = cfg.InitState.Pos
		}
		if !cmd.Flags().Changed("vel") {
			vel = cfg.InitState.Vel
		}
		if cfg.Seed != 0 && !cmd.Flags().Changed("seed") {
			seed = cfg.Seed
		}
		params = cfg.GetControllerParams()
	}

	return params, nil
}

func initStateFor(model string) []float64 {
	switch model {
	case "cartpole":
		return []float64{pos, vel, theta, omega}
	case "secondorder":
		return []float64{pos, vel}
	default:
		return []float64{theta, omega}
	}
}

func runSimulation(cmd *cobra.Command, args []string) error {
	model := args[0]

	params, err := applyPresetAndConfig(cmd, model)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	exp := experiment.New(experiment.Config{
		Model:      model,
		Integrator: integrator,
		Controller: controller,
		InitState:  initStateFor(model),
		Dt:         dt,
		Duration:   duration,
		Seed:       seed,
		Params:     params,
	})
	if err := exp.Setup(experiment.NewRegistry()); err != nil {
		return err
	}

	fmt.Printf("running %s simulation...\n", model)
	start := time.Now()

	result, err := exp.Run(context.Background())
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	runID, err := st.Save(model, dt, duration, seed, integrator, controller, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d\n", result.StepsTaken)
	for _, f := range result.Faults {
		fmt.Printf("fault: %v\n", f)
	}
	fmt.Println("\nmetrics:")
	for name, val := range result.Metrics {
		fmt.Printf("  %s: %.6f\n", name, val)
	}
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	model := args[0]

	params, err := applyPresetAndConfig(cmd, model)
	if err != nil {
		return err
	}

	exp := experiment.New(experiment.Config{
		Model:      model,
		Integrator: integrator,
		Controller: controller,
		InitState:  initStateFor(model),
		Dt:         dt,
		Duration:   duration,
		Seed:       seed,
		Params:     params,
	})
	if err := exp.Setup(experiment.NewRegistry()); err != nil {
		return err
	}

	fmt.Printf("sweeping %s over %d seeds...\n", model, runs)
	start := time.Now()

	results, err := exp.RunEnsemble(context.Background(), runs)
	if err != nil {
		return err
	}
	fmt.Printf("completed in %v\n\n", time.Since(start))

	// aggregate each metric across runs
	sums := map[string]float64{}
	sqSums := map[string]float64{}
	for _, r := range results {
		for name, v := range r.Metrics {
			sums[name] += v
			sqSums[name] += v * v
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tMEAN\tSTDDEV")
	n := float64(len(results))
	for name, sum := range sums {
		mean := sum / n
		variance := sqSums[name]/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		fmt.Fprintf(w, "%s\t%.6f\t%.6f\n", name, mean, math.Sqrt(variance))
	}
	return w.Flush()
}

func runLive(cmd *cobra.Command, args []string) error {
	model := args[0]

	params, err := applyPresetAndConfig(cmd, model)
	if err != nil {
		return err
	}

	reg := experiment.NewRegistry()
	dyn, err := reg.GetModel(model)
	if err != nil {
		return err
	}
	integ, err := reg.GetIntegrator(integrator)
	if err != nil {
		return err
	}
	ctrl, err := reg.GetController(controller, dyn, params)
	if err != nil {
		return err
	}

	m := tui.NewModel(dyn, integ, ctrl, initStateFor(model), dt, model)
	_, err = tea.NewProgram(m).Run()
	return err
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
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tDURATION\tDT\tINTEG\tCTRL")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.4fs\t%s\t%s\n",
			run.ID,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Integrator,
			run.Controller,
		)
	}
	return w.Flush()
}

var stateCaptions = map[string][]string{
	"pendulum":    {"theta (angle)", "omega (angular velocity)"},
	"cartpole":    {"cart position", "cart velocity", "pole angle", "pole angular velocity"},
	"secondorder": {"output", "output rate"},
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	states, _, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("samples: %d\n\n", len(states))

	numVars := len(states[0])
	if numVars > 6 {
		numVars = 6
	}

	for varIdx := 0; varIdx < numVars; varIdx++ {
		data := make([]float64, len(states))
		for i := range states {
			if varIdx < len(states[i]) {
				data[i] = states[i][varIdx]
			}
		}

		caption := fmt.Sprintf("x%d vs time", varIdx)
		if names, ok := stateCaptions[meta.Model]; ok && varIdx < len(names) {
			caption = names[varIdx]
		}

		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func loadResult(st *storage.Store, runID string) (*storage.RunMetadata, *sim.Result, error) {
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	states, times, err := st.LoadStates(runID)
	if err != nil {
		return nil, nil, err
	}

	result := &sim.Result{
		Times:   times,
		Metrics: meta.Metrics,
	}
	for _, s := range states {
		result.States = append(result.States, sim.State(s))
	}
	return meta, result, nil
}

func plotPNG(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, result, err := loadResult(st, args[0])
	if err != nil {
		return err
	}

	labels := stateCaptions[meta.Model]
	if err := export.StatePlot(outPath, meta.ID, result, labels); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", outPath)
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	states, times, err := st.LoadStates(args[0])
	if err != nil {
		return err
	}

	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	if len(states) == 0 {
		return nil
	}

	header := []string{"time"}
	for i := range states[0] {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for i := range states {
		row := []string{strconv.FormatFloat(times[i], 'f', 6, 64)}
		for _, v := range states[i] {
			row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func runScenarios(cmd *cobra.Command, args []string) error {
	scenarios := experiment.Scenarios()
	if len(args) == 1 {
		filtered := scenarios[:0]
		for _, s := range scenarios {
			if s.Name() == args[0] {
				filtered = append(filtered, s)
			}
		}
		if len(filtered) == 0 {
			return fmt.Errorf("unknown scenario: %s", args[0])
		}
		scenarios = filtered
	}

	failed := 0
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCENARIO\tRESULT\tDETAILS")

	for _, s := range scenarios {
		fmt.Printf("running %s...\n", s.Name())
		report, err := s.Run(context.Background())
		if err != nil {
			return fmt.Errorf("%s: %w", s.Name(), err)
		}

		verdict := "PASS"
		if !report.Pass {
			verdict = "FAIL"
			failed++
		}

		details := ""
		for k, v := range report.Details {
			details += fmt.Sprintf("%s=%.3f ", k, v)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", report.Name, verdict, details)
	}

	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d scenario(s) failed", failed)
	}
	return nil
}

func buildEnv(rng *rand.Rand) (rl.Environment, error) {
	switch envName {
	case "pendulum":
		return rl.NewPendulumEnv(rng), nil
	case "cartpole":
		return rl.NewCartPoleEnv(rng), nil
	default:
		return nil, fmt.Errorf("unknown environment: %s", envName)
	}
}

func trainAgent(cmd *cobra.Command, args []string) error {
	rng := rand.New(rand.NewSource(seed))
	env, err := buildEnv(rng)
	if err != nil {
		return err
	}

	cfg := rl.DefaultAgentConfig()
	noise := rl.NewGaussianNoise(noiseSigma, 0.05, 0.95)
	agent, err := rl.NewAgent(env, cfg, noise, rng)
	if err != nil {
		return err
	}

	fmt.Printf("training on %s for %d episodes...\n", envName, episodes)
	start := time.Now()

	stats, err := agent.Train(context.Background(), env, rl.TrainOptions{
		MaxEpisodes: episodes,
		MaxSteps:    maxSteps,
	})
	if err != nil {
		return err
	}

	fmt.Printf("trained %d episodes in %v\n", len(stats), time.Since(start))
	for _, s := range stats {
		if s.Episode%10 == 0 || s.Episode == len(stats)-1 {
			fmt.Printf("  episode %3d  steps %4d  reward %8.2f\n", s.Episode, s.Steps, s.Reward)
		}
	}

	st := storage.New(dataDir)
	path, err := st.SaveCheckpoint(checkpoint, agent.Snapshot())
	if err != nil {
		return err
	}
	fmt.Printf("checkpoint: %s\n", path)

	if rewardsPlot != "" {
		if err := export.RewardPlot(rewardsPlot, envName+" training", stats); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", rewardsPlot)
	}
	return nil
}

func evalAgent(cmd *cobra.Command, args []string) error {
	rng := rand.New(rand.NewSource(seed))
	env, err := buildEnv(rng)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	ck, err := st.LoadCheckpoint(checkpoint)
	if err != nil {
		return err
	}

	agent, err := rl.NewAgent(env, rl.DefaultAgentConfig(), rl.NewGaussianNoise(0, 0, 1), rng)
	if err != nil {
		return err
	}
	if err := agent.Restore(ck); err != nil {
		return err
	}

	total := 0.0
	for ep := 0; ep < episodes; ep++ {
		reward, err := agent.Evaluate(context.Background(), env, maxSteps)
		if err != nil {
			return err
		}
		fmt.Printf("episode %d: reward %.2f\n", ep, reward)
		total += reward
	}
	fmt.Printf("mean reward: %.2f\n", total/float64(episodes))
	return nil
}
