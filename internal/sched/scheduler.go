package sched

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/looploom/looploom/internal/clock"
	"github.com/looploom/looploom/internal/layer"
	"github.com/looploom/looploom/internal/render"
	"github.com/looploom/looploom/internal/types"
)

// CycleEvent is one event of a layer's repeating cycle, re-timed to the
// crop-window origin and converted to seconds at build time.
type CycleEvent struct {
	Kind        types.EventKind
	Note        string
	Velocity    float64
	Offset      time.Duration
	Synthesized bool
}

// BuildCycle projects a layer's cropped event window into one loop cycle.
// Events inside [CropStart, CropEnd) are re-timed to the window origin.
// Any melodic NoteOn whose matching NoteOff falls outside the window gets
// a synthesized NoteOff one tick before the window end, so the release
// fires strictly before the loop restarts and retriggers. Without it the
// note would be held forever across loop iterations.
func BuildCycle(l *layer.Layer, c *clock.Clock) ([]CycleEvent, time.Duration) {
	window := l.WindowEvents()
	sort.SliceStable(window, func(i, j int) bool {
		return window[i].Time < window[j].Time
	})

	open := make(map[string]int)
	var openOrder []string
	events := make([]CycleEvent, 0, len(window)+2)
	for _, ev := range window {
		if !types.IsPercussive(ev.Note) {
			switch ev.Kind {
			case types.NoteOn:
				if open[ev.Note] == 0 {
					openOrder = append(openOrder, ev.Note)
				}
				open[ev.Note]++
			case types.NoteOff:
				if open[ev.Note] > 0 {
					open[ev.Note]--
				}
			}
		}
		events = append(events, CycleEvent{
			Kind:     ev.Kind,
			Note:     ev.Note,
			Velocity: ev.Velocity,
			Offset:   c.TicksToDuration(ev.Time),
		})
	}

	eff := l.EffectiveDuration()
	for _, note := range openOrder {
		if open[note] <= 0 {
			continue
		}
		events = append(events, CycleEvent{
			Kind:        types.NoteOff,
			Note:        note,
			Offset:      c.TicksToDuration(eff - 1),
			Synthesized: true,
		})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Offset < events[j].Offset
	})
	return events, c.TicksToDuration(eff)
}

// handle is the derived, disposable playback state for one layer. The
// scheduler owns handles, never layers.
type handle struct {
	events   []CycleEvent
	period   time.Duration
	gain     float64
	silenced bool

	primed bool
	cycle  int64
	next   int
}

// Scheduler maps each layer's cycle onto the clock as an independently,
// perpetually looping stream of renderer dispatches. All cycles are
// anchored to the clock's tick-0 origin, so layers of different lengths
// stay phase-aligned to a shared downbeat instead of to whenever each was
// scheduled.
type Scheduler struct {
	mu      sync.Mutex
	clock   *clock.Clock
	out     render.Renderer
	handles map[string]*handle
	anchor  time.Time // wall instant of tick 0, captured once per run segment
	horizon time.Time // end of the last pumped window
}

func New(c *clock.Clock, out render.Renderer) *Scheduler {
	return &Scheduler{
		clock:   c,
		out:     out,
		handles: make(map[string]*handle),
	}
}

// Schedule (re)derives the playback handle for a layer. Any previous
// handle for the id is discarded first, so scheduling twice never
// double-triggers. Muted layers are left unscheduled; unmuting must
// re-trigger scheduling.
func (s *Scheduler) Schedule(l *layer.Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, l.ID)
	if l.Muted || l.EffectiveDuration() <= 0 {
		return
	}
	events, period := BuildCycle(l, s.clock)
	if len(events) == 0 || period <= 0 {
		return
	}
	s.handles[l.ID] = &handle{
		events: events,
		period: period,
		gain:   types.LinearGain(l.VolumeDB),
	}
	log.Printf("sched: layer %s scheduled, %d events, period %s", l.ID, len(events), period)
}

// Unschedule drops a layer's handle.
func (s *Scheduler) Unschedule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, id)
}

// Scheduled reports whether a layer currently has a handle.
func (s *Scheduler) Scheduled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handles[id]
	return ok
}

// SetGain updates a handle's gain from a dB volume. Touches only the
// side-table, safe while the cycle is firing.
func (s *Scheduler) SetGain(id string, volumeDB float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[id]; ok {
		h.gain = types.LinearGain(volumeDB)
	}
}

// SetSilenced flips a handle's playback-level silence flag without
// rebuilding the registered event list. Reports whether a handle existed.
func (s *Scheduler) SetSilenced(id string, silenced bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	if ok {
		h.silenced = silenced
	}
	return ok
}

// Rewind forgets pump progress so every handle re-derives its position
// from the clock origin on the next pump, tick-0 downbeat included.
// Called when the transport (re)starts from tick 0.
func (s *Scheduler) Rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchor = time.Time{}
	s.horizon = time.Time{}
	for _, h := range s.handles {
		h.primed = false
	}
}

// Resume forgets pump progress like Rewind but floors the next prime at
// the current instant, so a transport resuming mid-position picks up with
// the upcoming events instead of replaying the cycles already played
// before the pause.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchor = time.Time{}
	s.horizon = time.Now()
	for _, h := range s.handles {
		h.primed = false
	}
}

// Clear drops every handle.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = make(map[string]*handle)
}

// Pump dispatches every event due up to the given horizon. The pump runs
// on a single goroutine; renderer calls carry their absolute fire time so
// the renderer's own lookahead can land them sample-accurately.
//
// The tick-0 anchor is captured from the clock once per run segment and
// held until Rewind/Resume. A mid-playback tempo change rebases the
// clock's own origin, but registered cycles keep the anchor and period
// they were scheduled with; the new tempo takes effect per layer on its
// next reschedule.
func (s *Scheduler) Pump(until time.Time) {
	if !s.clock.Running() {
		return
	}

	type firing struct {
		ev  CycleEvent
		abs time.Time
		g   float64
	}
	var due []firing

	s.mu.Lock()
	if s.anchor.IsZero() {
		s.anchor = s.clock.Origin()
	}
	origin := s.anchor
	for _, h := range s.handles {
		if !h.primed {
			s.prime(h, origin)
		}
		for {
			ev := h.events[h.next]
			abs := origin.Add(time.Duration(h.cycle)*h.period + ev.Offset)
			if abs.After(until) {
				break
			}
			if !h.silenced {
				due = append(due, firing{ev: ev, abs: abs, g: h.gain})
			}
			h.next++
			if h.next >= len(h.events) {
				h.next = 0
				h.cycle++
			}
		}
	}
	s.horizon = until
	s.mu.Unlock()

	for _, f := range due {
		switch f.ev.Kind {
		case types.NoteOn:
			s.out.NoteOn(f.ev.Note, types.Clamp01(f.ev.Velocity*f.g), f.abs)
		case types.NoteOff:
			s.out.NoteOff(f.ev.Note, f.abs)
		}
	}
}

// prime positions a handle at the first event at or after the pump floor,
// so a freshly scheduled layer joins mid-phrase instead of replaying its
// past, while a fresh transport start includes the tick-0 downbeat.
func (s *Scheduler) prime(h *handle, origin time.Time) {
	floor := origin
	if s.horizon.After(floor) {
		floor = s.horizon
	}
	h.cycle = 0
	h.next = 0
	if d := floor.Sub(origin); d > 0 {
		h.cycle = int64(d / h.period)
	}
	for {
		abs := origin.Add(time.Duration(h.cycle)*h.period + h.events[h.next].Offset)
		if !abs.Before(floor) {
			break
		}
		h.next++
		if h.next >= len(h.events) {
			h.next = 0
			h.cycle++
		}
	}
	h.primed = true
}
