package viz

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/sim"
)

const (
	width           = 60
	height          = 20
	historyCapacity = 300
	// scale is canvas sub-pixels per metre.
	scale = 2.0
)

type TickMsg time.Time

// Model steps a closed loop on every tick and draws a top-down view
// around the vehicle with its predicted path.
type Model struct {
	loop  *sim.Loop
	name  string
	theme Theme

	canvas   *Canvas
	running  bool
	done     bool
	err      error
	interval time.Duration

	last      sim.Frame
	hasFrame  bool
	trailX    []float64
	trailY    []float64
	cteHist   []float64
	steerHist []float64
	fallbacks int

	tunable   dynamo.Configurable
	params    map[string]float64
	paramKeys []string
	selected  int
	showHelp  bool
}

// NewModel wraps loop for interactive viewing. When the loop's controller
// is tunable its params can be adjusted live.
func NewModel(loop *sim.Loop, name string) Model {
	m := Model{
		loop:     loop,
		name:     name,
		theme:    ThemeCyberpunk,
		canvas:   NewCanvas(width, height),
		running:  true,
		interval: time.Duration(loop.Config().Dt * float64(time.Second)),
	}
	if t, ok := loop.Controller().(dynamo.Configurable); ok {
		m.tunable = t
		m.params = t.GetParams()
		for k := range m.params {
			m.paramKeys = append(m.paramKeys, k)
		}
		sort.Strings(m.paramKeys)
	}
	return m
}

// WithTheme returns m drawn in t.
func (m Model) WithTheme(t Theme) Model {
	m.theme = t
	return m
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			if !m.done {
				m.running = !m.running
			}
		case "r":
			m.reset()
		case "n":
			if !m.running && !m.done {
				m.step()
			}
		case "tab":
			if len(m.paramKeys) > 0 {
				m.selected = (m.selected + 1) % len(m.paramKeys)
			}
		case "up", "k":
			m.adjustParam(1.1)
		case "down", "j":
			m.adjustParam(1 / 1.1)
		case "t":
			m.theme = NextTheme(m.theme)
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running {
			m.step()
		}
		return m, m.tick()
	}
	return m, nil
}

func (m *Model) step() {
	f, err := m.loop.Step()
	if err != nil {
		m.running = false
		m.done = true
		if !errors.Is(err, sim.ErrTrackEnd) {
			m.err = err
		}
		return
	}

	m.last, m.hasFrame = f, true
	if f.Fallback {
		m.fallbacks++
	}
	m.trailX = push(m.trailX, f.Pose.X)
	m.trailY = push(m.trailY, f.Pose.Y)
	m.cteHist = push(m.cteHist, f.State[dynamo.CTE])
	m.steerHist = push(m.steerHist, f.Command.Steer)
}

func push(buf []float64, v float64) []float64 {
	buf = append(buf, v)
	if len(buf) > historyCapacity {
		buf = buf[1:]
	}
	return buf
}

func (m *Model) reset() {
	m.loop.Reset()
	m.running, m.done, m.err = true, false, nil
	m.hasFrame = false
	m.fallbacks = 0
	m.trailX, m.trailY = m.trailX[:0], m.trailY[:0]
	m.cteHist, m.steerHist = m.cteHist[:0], m.steerHist[:0]
}

func (m *Model) adjustParam(factor float64) {
	if m.tunable == nil || len(m.paramKeys) == 0 {
		return
	}
	key := m.paramKeys[m.selected]
	val := m.params[key] * factor
	if val == 0 {
		val = 1e-3 * factor
	}
	if err := m.tunable.SetParam(key, val); err != nil {
		return
	}
	m.params[key] = val
}

// draw renders the track, the driven trail and the predicted path into
// the canvas, centred on the vehicle.
func (m *Model) draw() {
	m.canvas.Clear()
	pose := m.loop.Pose()
	vp := Viewport{CX: pose.X, CY: pose.Y, Scale: scale}

	tr := m.loop.Track()
	reach := float64(width+height) / scale * 2
	var tx, ty []float64
	for i := 0; i < tr.Len(); i++ {
		if math.Abs(tr.X[i]-pose.X) < reach && math.Abs(tr.Y[i]-pose.Y) < reach {
			tx = append(tx, tr.X[i])
			ty = append(ty, tr.Y[i])
		}
	}
	m.canvas.Points(vp, tx, ty)
	m.canvas.Polyline(vp, m.trailX, m.trailY)

	if m.hasFrame && m.last.Predicted.Len() > 0 {
		px, py := ToGlobal(m.last.Pose, m.last.Predicted)
		m.canvas.Polyline(vp, append([]float64{m.last.Pose.X}, px...), append([]float64{m.last.Pose.Y}, py...))
	}
}

// ToGlobal maps a vehicle-frame trajectory recorded at pose into the
// global frame.
func ToGlobal(pose sim.Pose, tr dynamo.Trajectory) ([]float64, []float64) {
	sin, cos := math.Sincos(pose.Psi)
	xs := make([]float64, tr.Len())
	ys := make([]float64, tr.Len())
	for i := range xs {
		xs[i] = pose.X + tr.X[i]*cos - tr.Y[i]*sin
		ys[i] = pose.Y + tr.X[i]*sin + tr.Y[i]*cos
	}
	return xs, ys
}

func (m Model) View() string {
	st := stylesFor(m.theme)
	m.draw()

	var s strings.Builder
	s.WriteString(st.header.Render(strings.ToUpper(m.name)) + "\n")

	switch {
	case m.err != nil:
		s.WriteString(st.warn.Render("ERROR: "+m.err.Error()) + "\n\n")
	case m.done:
		s.WriteString(st.status.Render("END OF TRACK") + "\n\n")
	case !m.running:
		s.WriteString(st.warn.Render("PAUSED") + "\n\n")
	default:
		s.WriteString(st.status.Render("RUNNING") + "\n\n")
	}

	pose := m.loop.Pose()
	row := func(label, value string) {
		s.WriteString(st.label.Render(label) + st.value.Render(value) + "\n")
	}
	row("Time", fmt.Sprintf("%.1fs", m.loop.Time()))
	row("Speed", fmt.Sprintf("%.2f m/s", pose.V))
	if m.hasFrame {
		row("CTE", fmt.Sprintf("%+.3f m", m.last.State[dynamo.CTE]))
		row("EPsi", fmt.Sprintf("%+.3f rad", m.last.State[dynamo.EPsi]))
		row("Steer", fmt.Sprintf("%+.3f", m.last.Command.Steer))
		row("Throttle", fmt.Sprintf("%+.3f", m.last.Command.Throttle))
	}
	fallback := fmt.Sprintf("%d", m.fallbacks)
	if m.fallbacks > 0 {
		fallback = st.warn.Render(fallback)
	}
	s.WriteString(st.label.Render("Fallbacks") + fallback + "\n")

	if len(m.cteHist) > 1 {
		chart := asciigraph.Plot(m.cteHist, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("CTE (m)"))
		s.WriteString(st.graph.Render(chart) + "\n")
	}
	if len(m.steerHist) > 1 {
		chart := asciigraph.Plot(m.steerHist, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("Steer"))
		s.WriteString(st.graph.Render(chart) + "\n")
	}

	if len(m.paramKeys) > 0 {
		s.WriteString("\nPARAMETERS\n")
		for i, k := range m.paramKeys {
			line := fmt.Sprintf("%-16s %8.3f", k, m.params[k])
			if i == m.selected {
				s.WriteString(st.active.Render("> "+line) + "\n")
			} else {
				s.WriteString("  " + st.value.Render(line) + "\n")
			}
		}
	}
	s.WriteString(st.help.Render("SP:Pause N:Step R:Reset Q:Quit\nTab/↑↓:Tune T:Theme ?:Help"))

	canvasView := lipgloss.NewStyle().Padding(1, 2).Render(m.canvas.String())
	mainView := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, st.panel.Render(s.String()))
	if m.showHelp {
		return helpText + "\n\n" + mainView
	}
	return mainView
}

const helpText = `
  Space    pause / resume
  N        single step while paused
  R        restart from the beginning of the track
  Tab      cycle controller params
  Up/K     increase param by 10%
  Down/J   decrease param by 10%
  T        cycle themes
  Q        quit`
