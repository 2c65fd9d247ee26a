package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/looploom/looploom/internal/engine"
	"github.com/looploom/looploom/internal/grid"
	"github.com/looploom/looploom/internal/types"
)

// RefreshMsg fires at a steady UI rate to redraw transport position and
// layer state. Playback advancement stays on the engine pump, never here.
type RefreshMsg struct{}

func tickRefresh() tea.Cmd {
	return tea.Tick(time.Second/30, func(time.Time) tea.Msg {
		return RefreshMsg{}
	})
}

type focusArea int

const (
	focusGrid focusArea = iota
	focusLayers
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	recStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	cursorStyle   = lipgloss.NewStyle().Reverse(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// Model is the interactive front-end over one engine instance.
type Model struct {
	Engine  *engine.Engine
	Pattern *grid.Pattern
	OnEdit  func() // autosave hook, may be nil

	focus      focusArea
	gridRow    int
	gridStep   int
	layerIdx   int
	renaming   bool
	rename     textinput.Model
	gridExport int // counter for grid layer names
	width      int
}

func NewModel(e *engine.Engine, p *grid.Pattern) *Model {
	ti := textinput.New()
	ti.Placeholder = "layer name"
	ti.CharLimit = 32
	return &Model{Engine: e, Pattern: p, rename: ti}
}

func (m *Model) Init() tea.Cmd {
	return tickRefresh()
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case RefreshMsg:
		return m, tickRefresh()

	case tea.KeyMsg:
		if m.renaming {
			return m.updateRename(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) updateRename(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if l := m.selectedLayer(); l != nil {
			m.Engine.RenameLayer(l.ID, m.rename.Value())
			m.edited()
		}
		m.renaming = false
		return m, nil
	case "esc":
		m.renaming = false
		return m, nil
	}
	var cmd tea.Cmd
	m.rename, cmd = m.rename.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case " ":
		if m.Engine.Clock.Running() {
			m.Engine.Stop()
		} else {
			m.Engine.Play()
		}

	case "r":
		if m.Engine.Recorder.Recording() {
			m.Engine.StopRecording()
			m.edited()
		} else {
			m.Engine.StartRecording()
		}

	case "tab":
		if m.focus == focusGrid {
			m.focus = focusLayers
		} else {
			m.focus = focusGrid
		}

	case "e":
		m.gridExport++
		if l := m.Engine.ImportGrid(m.Pattern, fmt.Sprintf("grid %d", m.gridExport)); l != nil {
			m.edited()
		}

	case "[":
		m.Engine.SetTempo(m.Engine.Clock.BPM() - 2)
		m.edited()
	case "]":
		m.Engine.SetTempo(m.Engine.Clock.BPM() + 2)
		m.edited()

	case "up", "k":
		m.moveVert(-1)
	case "down", "j":
		m.moveVert(1)
	case "left", "h":
		if m.focus == focusGrid && m.gridStep > 0 {
			m.gridStep--
		}
	case "right", "l":
		if m.focus == focusGrid && m.gridStep < grid.Steps-1 {
			m.gridStep++
		}

	case "enter":
		if m.focus == focusGrid {
			m.Pattern.Toggle(m.gridRow, m.gridStep)
			m.edited()
		}

	case "m":
		if l := m.selectedLayer(); l != nil {
			m.Engine.SetMuted(l.ID, !l.Muted)
			m.edited()
		}
	case "s":
		if l := m.selectedLayer(); l != nil {
			m.Engine.SetSolo(l.ID, !l.Solo)
			m.edited()
		}
	case "x":
		if l := m.selectedLayer(); l != nil {
			m.Engine.RemoveLayer(l.ID)
			if m.layerIdx > 0 {
				m.layerIdx--
			}
			m.edited()
		}
	case "+", "=":
		if l := m.selectedLayer(); l != nil {
			m.Engine.SetVolume(l.ID, l.VolumeDB+1)
			m.edited()
		}
	case "-":
		if l := m.selectedLayer(); l != nil {
			m.Engine.SetVolume(l.ID, l.VolumeDB-1)
			m.edited()
		}

	// Crop handles move in one-step increments from either edge.
	case ">":
		if l := m.selectedLayer(); l != nil {
			m.Engine.ExtendLayerFromEnd(l.ID, types.StepTicks)
			m.edited()
		}
	case "<":
		if l := m.selectedLayer(); l != nil {
			m.Engine.ShrinkLayerFromEnd(l.ID, types.StepTicks)
			m.edited()
		}
	case "}":
		if l := m.selectedLayer(); l != nil {
			m.Engine.ExtendLayerFromStart(l.ID, types.StepTicks)
			m.edited()
		}
	case "{":
		if l := m.selectedLayer(); l != nil {
			m.Engine.ShrinkLayerFromStart(l.ID, types.StepTicks)
			m.edited()
		}

	case "n":
		if l := m.selectedLayer(); l != nil {
			m.renaming = true
			m.rename.SetValue(l.Name)
			m.rename.Focus()
			return m, textinput.Blink
		}
	}
	return m, nil
}

func (m *Model) moveVert(delta int) {
	if m.focus == focusGrid {
		m.gridRow += delta
		if m.gridRow < 0 {
			m.gridRow = 0
		}
		if m.gridRow >= len(m.Pattern.Rows) {
			m.gridRow = len(m.Pattern.Rows) - 1
		}
		return
	}
	n := m.Engine.Layers.Len()
	if n == 0 {
		return
	}
	m.layerIdx += delta
	if m.layerIdx < 0 {
		m.layerIdx = 0
	}
	if m.layerIdx >= n {
		m.layerIdx = n - 1
	}
}

func (m *Model) selectedLayer() *layerRef {
	layers := m.Engine.Layers.Layers()
	if m.layerIdx < 0 || m.layerIdx >= len(layers) {
		return nil
	}
	l := layers[m.layerIdx]
	return &layerRef{ID: l.ID, Name: l.Name, Muted: l.Muted, Solo: l.Solo, VolumeDB: l.VolumeDB}
}

type layerRef struct {
	ID       string
	Name     string
	Muted    bool
	Solo     bool
	VolumeDB float64
}

func (m *Model) edited() {
	if m.OnEdit != nil {
		m.OnEdit()
	}
}

func (m *Model) View() string {
	var b strings.Builder

	e := m.Engine
	status := "stopped"
	if e.Clock.Running() {
		status = "playing"
	}
	header := fmt.Sprintf("looploom  %.0f bpm  %s  timeline %s",
		e.Clock.BPM(), status, formatTicks(e.TimelineDuration()))
	b.WriteString(headerStyle.Render(header))
	if e.Recorder.Recording() {
		b.WriteString("  " + recStyle.Render("● REC"))
	}
	b.WriteString("\n\n")

	m.renderLayers(&b)
	b.WriteString("\n")
	m.renderGrid(&b)

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("space play/stop  r record  e export grid  tab focus  enter toggle  m mute  s solo  n rename  x delete  [/] tempo  q quit"))
	b.WriteString("\n")
	if m.renaming {
		b.WriteString("\nrename: " + m.rename.View() + "\n")
	}
	return b.String()
}

func (m *Model) renderLayers(b *strings.Builder) {
	layers := m.Engine.Layers.Layers()
	b.WriteString("layers\n")
	if len(layers) == 0 {
		b.WriteString(mutedStyle.Render("  (none — record with r or export the grid with e)") + "\n")
		return
	}
	pos := m.Engine.Clock.PositionTicks()
	for i, l := range layers {
		flags := ""
		if l.Muted {
			flags += "M"
		}
		if l.Solo {
			flags += "S"
		}
		cursor := ""
		if m.Engine.Clock.Running() {
			cursor = fmt.Sprintf(" @%s", formatTicks(pos%l.EffectiveDuration()))
		}
		line := fmt.Sprintf("  %-20s %-10s %7s %+5.1fdB %-2s%s",
			l.Name, l.Class, formatTicks(l.EffectiveDuration()), l.VolumeDB, flags, cursor)
		switch {
		case i == m.layerIdx && m.focus == focusLayers:
			line = selectedStyle.Render(line)
		case l.Muted:
			line = mutedStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
}

func (m *Model) renderGrid(b *strings.Builder) {
	b.WriteString("grid\n")
	for r, row := range m.Pattern.Rows {
		fmt.Fprintf(b, "  %-10s", row.Note)
		for s := 0; s < grid.Steps; s++ {
			cell := "·"
			if row.Cells[s].Active {
				cell = "■"
			}
			if m.focus == focusGrid && r == m.gridRow && s == m.gridStep {
				cell = cursorStyle.Render(cell)
			}
			b.WriteString(" " + cell)
			if s%4 == 3 {
				b.WriteString(" ")
			}
		}
		b.WriteString("\n")
	}
}

// formatTicks renders a tick count as bars.beats for display.
func formatTicks(t types.Tick) string {
	if t <= 0 {
		return "0.0"
	}
	bars := t / types.BarTicks
	beats := (t % types.BarTicks) / types.PPQ
	return fmt.Sprintf("%d.%d", bars, beats)
}
