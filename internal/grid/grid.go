package grid

import (
	"sort"

	"github.com/looploom/looploom/internal/types"
)

// Steps is the fixed column count: 16 steps = one bar at sixteenth-note
// resolution.
const Steps = 16

type Cell struct {
	Active   bool    `json:"active"`
	Velocity float64 `json:"velocity"`
}

// Row is one instrument voice: a drum sound id or a pitch name for a
// scale degree.
type Row struct {
	Note  string      `json:"note"`
	Cells [Steps]Cell `json:"cells"`
}

// Pattern is pure UI-facing step state. It is converted to a flat event
// stream deterministically and only on export.
type Pattern struct {
	Rows []Row `json:"rows"`
}

// NewPattern builds a pattern with one row per voice, in the given order.
func NewPattern(notes ...string) *Pattern {
	p := &Pattern{Rows: make([]Row, len(notes))}
	for i, n := range notes {
		p.Rows[i].Note = n
	}
	return p
}

func (p *Pattern) Toggle(row, step int) {
	if row < 0 || row >= len(p.Rows) || step < 0 || step >= Steps {
		return
	}
	c := &p.Rows[row].Cells[step]
	c.Active = !c.Active
	if c.Active && c.Velocity == 0 {
		c.Velocity = 0.8
	}
}

// ToEvents expands the pattern to the event stream a live performance of
// exactly one loop cycle would produce. Each active cell emits a NoteOn at
// step*StepTicks; melodic rows additionally emit a NoteOff one tick before
// the next step so the note releases fractionally early instead of
// colliding with a retrigger. Output is ordered by time ascending, ties in
// row order.
func (p *Pattern) ToEvents() []types.MidiEvent {
	var events []types.MidiEvent
	for step := 0; step < Steps; step++ {
		at := types.Tick(step) * types.StepTicks
		for _, row := range p.Rows {
			c := row.Cells[step]
			if !c.Active {
				continue
			}
			events = append(events, types.MidiEvent{
				Kind:     types.NoteOn,
				Note:     row.Note,
				Velocity: c.Velocity,
				Time:     at,
			})
		}
	}
	// NoteOffs for melodic rows, kept after all the step's NoteOns.
	var offs []types.MidiEvent
	for step := 0; step < Steps; step++ {
		at := types.Tick(step) * types.StepTicks
		for _, row := range p.Rows {
			if !row.Cells[step].Active || types.IsPercussive(row.Note) {
				continue
			}
			offs = append(offs, types.MidiEvent{
				Kind: types.NoteOff,
				Note: row.Note,
				Time: at + types.StepTicks - 1,
			})
		}
	}
	events = append(events, offs...)
	sortStable(events)
	return events
}

// FromEvents recovers active cells and velocities from an event stream
// produced by ToEvents. The inverse mapping of the grid->event conversion.
func FromEvents(events []types.MidiEvent, notes ...string) *Pattern {
	p := NewPattern(notes...)
	index := make(map[string]int, len(notes))
	for i, n := range notes {
		index[n] = i
	}
	for _, ev := range events {
		if ev.Kind != types.NoteOn {
			continue
		}
		row, ok := index[ev.Note]
		if !ok {
			continue
		}
		step := int(ev.Time / types.StepTicks)
		if step < 0 || step >= Steps {
			continue
		}
		p.Rows[row].Cells[step] = Cell{Active: true, Velocity: ev.Velocity}
	}
	return p
}

// Active reports whether any cell is set.
func (p *Pattern) Active() bool {
	for _, row := range p.Rows {
		for _, c := range row.Cells {
			if c.Active {
				return true
			}
		}
	}
	return false
}

// sortStable orders by time ascending keeping insertion order for ties.
func sortStable(events []types.MidiEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Time < events[j].Time
	})
}
