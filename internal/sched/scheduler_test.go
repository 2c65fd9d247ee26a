package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/looploom/looploom/internal/clock"
	"github.com/looploom/looploom/internal/layer"
	"github.com/looploom/looploom/internal/render"
	"github.com/looploom/looploom/internal/types"
)

func melodicLayer(events []types.MidiEvent, dur types.Tick) *layer.Layer {
	return layer.New("l", events, dur, types.Melodic)
}

func TestBuildCycleFiltersAndRetimes(t *testing.T) {
	c := clock.New() // 120 bpm: 480 ticks = 0.5s
	l := melodicLayer([]types.MidiEvent{
		{Kind: types.NoteOn, Note: "C4", Velocity: 0.8, Time: 100},
		{Kind: types.NoteOff, Note: "C4", Time: 300},
		{Kind: types.NoteOn, Note: "E4", Velocity: 0.8, Time: 1500},
		{Kind: types.NoteOff, Note: "E4", Time: 1700},
	}, 1920)
	l.SetCropPoints(0, 960)

	events, period := BuildCycle(l, c)
	assert.Len(t, events, 2, "events outside the crop window are dropped")
	assert.Equal(t, "C4", events[0].Note)
	assert.InDelta(t, float64(c.TicksToDuration(100)), float64(events[0].Offset), 1e3)
	assert.InDelta(t, 1.0, period.Seconds(), 1e-6, "960 ticks at 120 bpm is one second")
}

func TestBuildCycleSynthesizesDanglingNoteOff(t *testing.T) {
	c := clock.New()
	l := melodicLayer([]types.MidiEvent{
		{Kind: types.NoteOn, Note: "C4", Velocity: 0.8, Time: 100},
		{Kind: types.NoteOff, Note: "C4", Time: 1800}, // outside the crop
	}, 1920)
	l.SetCropPoints(0, 960)

	events, period := BuildCycle(l, c)
	assert.Len(t, events, 2)
	last := events[len(events)-1]
	assert.Equal(t, types.NoteOff, last.Kind)
	assert.Equal(t, "C4", last.Note)
	assert.True(t, last.Synthesized)
	// One tick before the window end, strictly before the loop restarts.
	assert.Equal(t, c.TicksToDuration(959), last.Offset)
	assert.Less(t, last.Offset, period)
}

func TestBuildCycleOneSynthOffPerPitch(t *testing.T) {
	c := clock.New()
	l := melodicLayer([]types.MidiEvent{
		{Kind: types.NoteOn, Note: "C4", Velocity: 0.8, Time: 0},
		{Kind: types.NoteOn, Note: "C4", Velocity: 0.8, Time: 200}, // re-struck, both held
		{Kind: types.NoteOn, Note: "E4", Velocity: 0.8, Time: 400},
		{Kind: types.NoteOff, Note: "E4", Time: 500},
	}, 1920)
	l.SetCropPoints(0, 960)

	events, _ := BuildCycle(l, c)
	var synth []CycleEvent
	for _, ev := range events {
		if ev.Synthesized {
			synth = append(synth, ev)
		}
	}
	assert.Len(t, synth, 1, "exactly one synthesized NoteOff per dangling pitch")
	assert.Equal(t, "C4", synth[0].Note)
}

func TestBuildCyclePercussiveNeverSynthesized(t *testing.T) {
	c := clock.New()
	l := layer.New("drums", []types.MidiEvent{
		{Kind: types.NoteOn, Note: "kick", Velocity: 1.0, Time: 0},
		{Kind: types.NoteOn, Note: "kick", Velocity: 1.0, Time: 480},
	}, 1920, types.Percussive)

	events, _ := BuildCycle(l, c)
	assert.Len(t, events, 2, "percussive hits carry no sustain to close")
	for _, ev := range events {
		assert.False(t, ev.Synthesized)
	}
}

func TestBuildCycleNoteOffFromBeforeWindowPassesThrough(t *testing.T) {
	c := clock.New()
	l := melodicLayer([]types.MidiEvent{
		{Kind: types.NoteOn, Note: "C4", Velocity: 0.8, Time: 100},
		{Kind: types.NoteOff, Note: "C4", Time: 600},
	}, 1920)
	l.SetCropPoints(480, 1440)

	events, _ := BuildCycle(l, c)
	// Only the off is inside the window; it must not trip the open-note
	// accounting into synthesizing anything.
	assert.Len(t, events, 1)
	assert.Equal(t, types.NoteOff, events[0].Kind)
	assert.False(t, events[0].Synthesized)
}

func TestScheduleIsIdempotent(t *testing.T) {
	c := clock.New()
	out := render.NewCapture()
	s := New(c, out)
	l := layer.New("drums", []types.MidiEvent{
		{Kind: types.NoteOn, Note: "kick", Velocity: 1.0, Time: 0},
	}, 480, types.Percussive)

	s.Schedule(l)
	s.Schedule(l)
	assert.True(t, s.Scheduled(l.ID))

	c.Start()
	s.Pump(c.Origin().Add(100 * time.Millisecond))
	calls := out.Calls()
	assert.Len(t, calls, 1, "scheduling twice must not double-trigger")
}

func TestScheduleSkipsMuted(t *testing.T) {
	c := clock.New()
	s := New(c, render.NewCapture())
	l := layer.New("drums", []types.MidiEvent{
		{Kind: types.NoteOn, Note: "kick", Velocity: 1.0, Time: 0},
	}, 480, types.Percussive)
	l.Muted = true

	s.Schedule(l)
	assert.False(t, s.Scheduled(l.ID), "muted layers stay unscheduled until unmute reschedules")
}

func TestPumpLoopsAnchoredToOrigin(t *testing.T) {
	c := clock.New() // 480 ticks = 0.5s
	out := render.NewCapture()
	s := New(c, out)

	short := layer.New("short", []types.MidiEvent{
		{Kind: types.NoteOn, Note: "kick", Velocity: 1.0, Time: 0},
	}, 480, types.Percussive)
	long := layer.New("long", []types.MidiEvent{
		{Kind: types.NoteOn, Note: "snare", Velocity: 1.0, Time: 0},
	}, 960, types.Percussive)
	s.Schedule(short)
	s.Schedule(long)

	c.Start()
	origin := c.Origin()
	s.Pump(origin.Add(1250 * time.Millisecond))

	var kicks, snares []time.Time
	for _, d := range out.Calls() {
		switch d.Note {
		case "kick":
			kicks = append(kicks, d.At)
		case "snare":
			snares = append(snares, d.At)
		}
	}
	// 0.5s period: cycles at 0, 0.5, 1.0. 1.0s period: cycles at 0, 1.0.
	assert.Len(t, kicks, 3)
	assert.Len(t, snares, 2)
	// Both layers share the tick-0 downbeat: phase-aligned to the origin,
	// not to when each was scheduled.
	assert.Equal(t, kicks[0], snares[0])
	assert.InDelta(t, 0.5, kicks[1].Sub(kicks[0]).Seconds(), 1e-6)
	assert.Equal(t, kicks[2], snares[1])
}

func TestPumpEmitsNothingWhileStopped(t *testing.T) {
	c := clock.New()
	out := render.NewCapture()
	s := New(c, out)
	l := layer.New("drums", []types.MidiEvent{
		{Kind: types.NoteOn, Note: "kick", Velocity: 1.0, Time: 0},
	}, 480, types.Percussive)
	s.Schedule(l)

	s.Pump(time.Now().Add(time.Second))
	assert.Empty(t, out.Calls())
}

func TestSilencedHandleAdvancesWithoutEmitting(t *testing.T) {
	c := clock.New()
	out := render.NewCapture()
	s := New(c, out)
	l := layer.New("drums", []types.MidiEvent{
		{Kind: types.NoteOn, Note: "kick", Velocity: 1.0, Time: 0},
	}, 480, types.Percussive)
	s.Schedule(l)
	assert.True(t, s.SetSilenced(l.ID, true))

	c.Start()
	origin := c.Origin()
	s.Pump(origin.Add(750 * time.Millisecond))
	assert.Empty(t, out.Calls(), "silenced handles keep cycling but emit nothing")

	// Unmuting mid-flight picks up at the current cycle, no reschedule.
	assert.True(t, s.SetSilenced(l.ID, false))
	s.Pump(origin.Add(1250 * time.Millisecond))
	calls := out.Calls()
	assert.Len(t, calls, 1)
	assert.InDelta(t, 1.0, calls[0].At.Sub(origin).Seconds(), 1e-6, "cycle 2 fires on its own downbeat")
}

func TestGainScalesVelocityAtDispatch(t *testing.T) {
	c := clock.New()
	out := render.NewCapture()
	s := New(c, out)
	l := layer.New("drums", []types.MidiEvent{
		{Kind: types.NoteOn, Note: "kick", Velocity: 0.8, Time: 0},
	}, 480, types.Percussive)
	l.VolumeDB = -6.0206 // half gain
	s.Schedule(l)

	c.Start()
	s.Pump(c.Origin().Add(100 * time.Millisecond))
	calls := out.Calls()
	assert.Len(t, calls, 1)
	assert.InDelta(t, 0.4, calls[0].Velocity, 1e-3)
}

func TestUnscheduleStopsEmission(t *testing.T) {
	c := clock.New()
	out := render.NewCapture()
	s := New(c, out)
	l := layer.New("drums", []types.MidiEvent{
		{Kind: types.NoteOn, Note: "kick", Velocity: 1.0, Time: 0},
	}, 480, types.Percussive)
	s.Schedule(l)
	s.Unschedule(l.ID)
	assert.False(t, s.Scheduled(l.ID))

	c.Start()
	s.Pump(c.Origin().Add(time.Second))
	assert.Empty(t, out.Calls())
}

func TestTempoChangeKeepsRegisteredCycleTimes(t *testing.T) {
	c := clock.New() // 120 bpm: 480-tick period = 0.5s
	out := render.NewCapture()
	s := New(c, out)
	l := layer.New("drums", []types.MidiEvent{
		{Kind: types.NoteOn, Note: "kick", Velocity: 1.0, Time: 0},
	}, 480, types.Percussive)
	s.Schedule(l)

	c.Start()
	origin := c.Origin()
	s.Pump(origin.Add(100 * time.Millisecond))
	assert.Len(t, out.Calls(), 1)

	// Slowing down mid-playback must not move already-registered events.
	c.SetTempo(40)
	s.Pump(origin.Add(600 * time.Millisecond))

	calls := out.Calls()
	assert.Len(t, calls, 2)
	assert.True(t, calls[1].At.After(calls[0].At), "later cycles stay later")
	assert.Equal(t, 500*time.Millisecond, calls[1].At.Sub(calls[0].At),
		"the registered 0.5s period holds until the layer is rescheduled")

	// Rescheduling picks up the new tempo: 480 ticks at 40 bpm is 1.5s.
	s.Schedule(l)
	s.Pump(origin.Add(2100 * time.Millisecond))
	calls = out.Calls()
	assert.Len(t, calls, 3)
	assert.Equal(t, 1500*time.Millisecond, calls[2].At.Sub(calls[0].At))
}

func TestResumeSkipsPlayedCycles(t *testing.T) {
	c := clock.New()
	out := render.NewCapture()
	s := New(c, out)
	l := layer.New("drums", []types.MidiEvent{
		{Kind: types.NoteOn, Note: "kick", Velocity: 1.0, Time: 0},
	}, 480, types.Percussive)
	s.Schedule(l)

	c.Start()
	s.Pump(c.Origin().Add(600 * time.Millisecond))
	assert.Len(t, out.Calls(), 2)

	c.Pause()
	c.SetPositionTicks(240) // mid-cycle
	out.Reset()

	resumed := time.Now()
	s.Resume()
	c.Start()
	s.Pump(time.Now().Add(600 * time.Millisecond))

	calls := out.Calls()
	assert.Len(t, calls, 1, "only the upcoming cycle fires")
	assert.False(t, calls[0].At.Before(resumed), "nothing replays from before the pause")
}

func TestRewindReprimesFromOrigin(t *testing.T) {
	c := clock.New()
	out := render.NewCapture()
	s := New(c, out)
	l := layer.New("drums", []types.MidiEvent{
		{Kind: types.NoteOn, Note: "kick", Velocity: 1.0, Time: 0},
	}, 480, types.Percussive)
	s.Schedule(l)

	c.Start()
	s.Pump(c.Origin().Add(100 * time.Millisecond))
	assert.Len(t, out.Calls(), 1)

	c.Stop()
	s.Rewind()
	out.Reset()

	c.Start()
	s.Pump(c.Origin().Add(100 * time.Millisecond))
	assert.Len(t, out.Calls(), 1, "restart replays the downbeat from the new origin")
}

func BenchmarkBuildCycle(b *testing.B) {
	c := clock.New()
	events := make([]types.MidiEvent, 0, 512)
	for i := 0; i < 256; i++ {
		at := types.Tick(i * 30)
		events = append(events,
			types.MidiEvent{Kind: types.NoteOn, Note: "C4", Velocity: 0.8, Time: at},
			types.MidiEvent{Kind: types.NoteOff, Note: "C4", Time: at + 20},
		)
	}
	l := melodicLayer(events, 7680)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BuildCycle(l, c)
	}
}
