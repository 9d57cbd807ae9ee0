package export

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/pendlab/internal/rl"
	"github.com/san-kum/pendlab/internal/sim"
)

// StatePlot renders every state trace of a run against time into one
// PNG. Labels may be shorter than the state dimension; missing entries
// fall back to x<i>.
func StatePlot(path, title string, result *sim.Result, labels []string) error {
	if len(result.States) == 0 {
		return fmt.Errorf("no states to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "state"
	p.Legend.Top = true

	dim := len(result.States[0])
	for j := 0; j < dim; j++ {
		pts := make(plotter.XYs, len(result.States))
		for i := range result.States {
			pts[i].X = result.Times[i]
			pts[i].Y = result.States[i][j]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(j)

		label := fmt.Sprintf("x%d", j)
		if j < len(labels) && labels[j] != "" {
			label = labels[j]
		}
		p.Add(line)
		p.Legend.Add(label, line)
	}

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

// ControlPlot renders the first control channel against time.
func ControlPlot(path, title string, result *sim.Result) error {
	if len(result.Controls) == 0 {
		return fmt.Errorf("no controls to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "u"

	pts := make(plotter.XYs, 0, len(result.Controls))
	for i, u := range result.Controls {
		if len(u) == 0 || i >= len(result.Times) {
			continue
		}
		pts = append(pts, plotter.XY{X: result.Times[i], Y: u[0]})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = plotutil.Color(0)
	p.Add(line)

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

// RewardPlot renders the per-episode reward curve of a training run.
func RewardPlot(path, title string, stats []rl.EpisodeStat) error {
	if len(stats) == 0 {
		return fmt.Errorf("no episodes to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "episode"
	p.Y.Label.Text = "reward"

	pts := make(plotter.XYs, len(stats))
	for i, st := range stats {
		pts[i].X = float64(st.Episode)
		pts[i].Y = st.Reward
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = plotutil.Color(1)
	p.Add(line)

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
