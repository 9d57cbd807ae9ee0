// Package tui renders a live closed-loop run in the terminal. The view
// draws the plant on a rune canvas next to a stats pane with a rolling
// chart of the selected state.
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/pendlab/internal/sim"
)

const (
	canvasWidth     = 64
	canvasHeight    = 20
	historyCapacity = 600
)

var (
	canvasStyle = lipgloss.NewStyle().Padding(1, 2)
	statsStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(1, 2).Width(44)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	faultStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(2)
)

type TickMsg time.Time

type Model struct {
	dyn        sim.Dynamics
	integrator sim.Integrator
	controller sim.Controller

	state     sim.State
	u         sim.Control
	t, dt     float64
	modelName string
	running   bool
	fault     error

	canvas   [][]rune
	trail    []struct{ x, y int }
	selected int
	history  [][]float64

	initialState sim.State
}

func NewModel(dyn sim.Dynamics, integ sim.Integrator, ctrl sim.Controller, initState []float64, dt float64, modelName string) Model {
	canvas := make([][]rune, canvasHeight)
	for i := range canvas {
		canvas[i] = make([]rune, canvasWidth)
	}

	x0 := make(sim.State, len(initState))
	copy(x0, initState)

	return Model{
		dyn:          dyn,
		integrator:   integ,
		controller:   ctrl,
		state:        x0.Clone(),
		u:            make(sim.Control, dyn.ControlDim()),
		dt:           dt,
		modelName:    modelName,
		running:      true,
		canvas:       canvas,
		trail:        make([]struct{ x, y int }, 0, 60),
		history:      make([][]float64, 0, historyCapacity),
		initialState: x0,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Tick(time.Second/60, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.reset()
		case "tab":
			m.selected = (m.selected + 1) % m.dyn.StateDim()
		}
	case TickMsg:
		if m.running {
			m.step()
		}
		return m, tea.Tick(time.Second/60, func(t time.Time) tea.Msg { return TickMsg(t) })
	}
	return m, nil
}

func (m *Model) step() {
	m.u = m.controller.Compute(m.state, m.t)
	if fr, ok := m.controller.(sim.FaultReporter); ok {
		m.fault = fr.Fault()
	}
	m.state = m.integrator.Step(m.dyn, m.state, m.u, m.t, m.dt)
	m.t += m.dt

	snap := make([]float64, len(m.state))
	copy(snap, m.state)
	m.history = append(m.history, snap)
	if len(m.history) > historyCapacity {
		m.history = m.history[1:]
	}
}

func (m *Model) reset() {
	m.t = 0
	m.fault = nil
	m.state = m.initialState.Clone()
	m.u = make(sim.Control, m.dyn.ControlDim())
	m.trail = m.trail[:0]
	m.history = m.history[:0]
}

func (m Model) View() string {
	m.draw()

	canvasLines := make([]string, len(m.canvas))
	for i, row := range m.canvas {
		canvasLines[i] = string(row)
	}
	canvasView := canvasStyle.Render(strings.Join(canvasLines, "\n"))

	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(m.modelName)) + "\n")
	if m.running {
		s.WriteString("RUNNING\n\n")
	} else {
		s.WriteString("PAUSED\n\n")
	}

	if len(m.history) > 1 {
		series := make([]float64, len(m.history))
		for i, h := range m.history {
			series[i] = h[m.selected]
		}
		chart := asciigraph.Plot(series, asciigraph.Height(4), asciigraph.Width(30),
			asciigraph.Caption(fmt.Sprintf("x%d", m.selected)))
		s.WriteString(graphStyle.Render(chart) + "\n\n")
	}

	s.WriteString(labelStyle.Render("Time") + valueStyle.Render(fmt.Sprintf("%.2fs", m.t)) + "\n")
	for i, v := range m.state {
		if i >= 4 {
			break
		}
		s.WriteString(labelStyle.Render(fmt.Sprintf("x%d", i)) + valueStyle.Render(fmt.Sprintf("%+.3f", v)) + "\n")
	}
	if len(m.u) > 0 {
		s.WriteString(labelStyle.Render("u") + valueStyle.Render(fmt.Sprintf("%+.3f", m.u[0])) + "\n")
	}
	if m.fault != nil {
		s.WriteString(faultStyle.Render("FAULT") + " " + valueStyle.Render(m.fault.Error()) + "\n")
	}

	s.WriteString(helpStyle.Render("\n─────────────────────\nSP:Pause R:Reset Q:Quit\nTab:Chart state"))

	statsView := statsStyle.Render(s.String())
	return lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsView)
}

func (m *Model) clear() {
	for y := range m.canvas {
		for x := range m.canvas[y] {
			m.canvas[y][x] = ' '
		}
	}
}

func (m *Model) set(x, y int, c rune) {
	if x >= 0 && x < canvasWidth && y >= 0 && y < canvasHeight {
		m.canvas[y][x] = c
	}
}

func (m *Model) line(x1, y1, x2, y2 int, c rune) {
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy
	for {
		m.set(x1, y1, c)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func (m *Model) draw() {
	m.clear()
	switch m.modelName {
	case "pendulum":
		m.drawPendulum()
	case "cartpole":
		m.drawCartpole()
	case "secondorder":
		m.drawSecondOrder()
	default:
		m.drawGeneric()
	}
}

func (m *Model) drawPendulum() {
	if len(m.state) < 2 {
		return
	}
	theta := m.state[0]
	px, py := canvasWidth/2, 3
	length := 12.0
	bx := px + int(length*math.Sin(theta))
	by := py + int(0.5*length*math.Cos(theta))

	m.trail = append(m.trail, struct{ x, y int }{bx, by})
	if len(m.trail) > 40 {
		m.trail = m.trail[1:]
	}
	for _, pt := range m.trail {
		m.set(pt.x, pt.y, '.')
	}

	m.set(px, py, '+')
	m.line(px, py, bx, by, '|')
	m.set(bx, by, 'O')
}

func (m *Model) drawCartpole() {
	if len(m.state) < 4 {
		return
	}
	pos, theta := m.state[0], m.state[2]
	gy := canvasHeight - 4
	cx := canvasWidth/2 + int(pos*4)

	for i := 2; i < canvasWidth-2; i++ {
		m.set(i, gy+1, '=')
	}
	for dx := -3; dx <= 3; dx++ {
		m.set(cx+dx, gy, '#')
	}

	// theta measured from upright
	plen := 9.0
	px := cx + int(plen*math.Sin(theta))
	py := gy - 1 - int(0.5*plen*math.Cos(theta))
	m.line(cx, gy-1, px, py, '|')
	m.set(px, py, 'o')
}

func (m *Model) drawSecondOrder() {
	if len(m.state) < 2 {
		return
	}
	pos := m.state[0]
	cy := canvasHeight / 2

	for i := 2; i < canvasWidth-2; i++ {
		m.set(i, cy+2, '-')
	}

	mx := 10 + int(pos*20)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			m.set(mx+dx, cy+dy, '#')
		}
	}
}

func (m *Model) drawGeneric() {
	cy := canvasHeight / 2
	for i := 2; i < canvasWidth-2; i++ {
		m.set(i, cy, '-')
	}
	if len(m.state) == 0 {
		return
	}

	bw := (canvasWidth - 12) / len(m.state)
	if bw < 3 {
		bw = 3
	}
	maxVal := 1.0
	for _, v := range m.state {
		if math.Abs(v) > maxVal {
			maxVal = math.Abs(v)
		}
	}
	for i, v := range m.state {
		bx := 6 + i*bw
		bh := int((v / maxVal) * float64(canvasHeight/3))
		if bh > 0 {
			for y := cy - 1; y >= cy-bh && y >= 1; y-- {
				m.set(bx, y, '#')
			}
		} else {
			for y := cy + 1; y <= cy-bh && y < canvasHeight-1; y++ {
				m.set(bx, y, '#')
			}
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
