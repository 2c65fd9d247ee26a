package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/looploom/looploom/internal/clock"
	"github.com/looploom/looploom/internal/grid"
	"github.com/looploom/looploom/internal/layer"
	"github.com/looploom/looploom/internal/recorder"
	"github.com/looploom/looploom/internal/render"
	"github.com/looploom/looploom/internal/sched"
	"github.com/looploom/looploom/internal/types"
)

const (
	pumpInterval = 25 * time.Millisecond
	lookahead    = 120 * time.Millisecond

	// MinBPM and MaxBPM bound SetTempo before it reaches the clock.
	MinBPM = 40
	MaxBPM = 300
)

// Engine is the explicitly constructed context object owning the clock,
// the layer collection, the recorder and the scheduler. All mutations go
// through its command methods; each command recomputes derived state and
// reschedules the touched layer. One engine is one independent sequencer
// instance.
type Engine struct {
	mu sync.Mutex

	Clock    *clock.Clock
	Layers   *layer.Collection
	Recorder *recorder.Recorder
	Sched    *sched.Scheduler

	out render.Renderer

	recLayers int // counter for default layer names
}

func New(out render.Renderer) *Engine {
	c := clock.New()
	return &Engine{
		Clock:    c,
		Layers:   layer.NewCollection(),
		Recorder: recorder.New(c),
		Sched:    sched.New(c, out),
		out:      out,
	}
}

// Run drives the scheduler pump until the context is cancelled. All
// playback dispatch happens on this one goroutine.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sched.Pump(time.Now().Add(lookahead))
		}
	}
}

// Play starts the transport. Idempotent. Starting from tick 0 replays
// every cycle from its downbeat; resuming after Pause continues with the
// upcoming events only.
func (e *Engine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Clock.Running() {
		return
	}
	if e.Clock.PositionTicks() == 0 {
		e.Sched.Rewind()
	} else {
		e.Sched.Resume()
	}
	e.Clock.Start()
	log.Printf("engine: transport started")
}

// Stop halts the transport, resets the position to tick 0 and silences
// every sounding note. The release-all is re-issued shortly after stop to
// catch releases already in flight in the scheduler's lookahead window.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.Clock.Stop()
	e.Sched.Rewind()
	e.mu.Unlock()

	e.out.ReleaseAll()
	go func() {
		for _, d := range []time.Duration{lookahead / 2, lookahead, 2 * lookahead} {
			time.Sleep(d)
			e.out.ReleaseAll()
		}
	}()
	log.Printf("engine: transport stopped")
}

// Pause halts the transport keeping the position.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Clock.Pause()
	e.out.ReleaseAll()
}

// SetTempo clamps bpm to the supported range and applies it. Registered
// cycles keep their current period; the new tempo takes effect on the next
// full reschedule of each layer.
func (e *Engine) SetTempo(bpm float64) {
	if bpm < MinBPM {
		bpm = MinBPM
	}
	if bpm > MaxBPM {
		bpm = MaxBPM
	}
	e.Clock.SetTempo(bpm)
}

// NoteInput feeds a live note event from any input source. It always
// updates held-note tracking, records when a recording is active, and
// echoes the note to the renderer so the player hears what they play.
func (e *Engine) NoteInput(note string, velocity float64, on bool) {
	e.mu.Lock()
	if on {
		e.Recorder.NoteOn(note, velocity)
	} else {
		e.Recorder.NoteOff(note)
	}
	e.mu.Unlock()

	now := time.Now()
	if on {
		e.out.NoteOn(note, types.Clamp01(velocity), now)
	} else {
		e.out.NoteOff(note, now)
	}
}

// StartRecording begins capturing live input.
func (e *Engine) StartRecording() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Recorder.Recording() {
		return
	}
	e.Recorder.Start()
}

// StopRecording ends the capture and turns each non-empty session into a
// new layer. Returns the created layers; none is a normal outcome.
func (e *Engine) StopRecording() []*layer.Layer {
	e.mu.Lock()
	defer e.mu.Unlock()
	sessions := e.Recorder.Stop()
	var created []*layer.Layer
	for _, s := range sessions {
		e.recLayers++
		name := fmt.Sprintf("take %d (%s)", e.recLayers, s.Class)
		l := layer.FromSession(name, s)
		e.Layers.Add(l)
		e.Sched.Schedule(l)
		e.applySoloLocked()
		created = append(created, l)
	}
	return created
}

// ImportGrid expands a step pattern into a one-bar layer feeding the same
// scheduler as recorded layers.
func (e *Engine) ImportGrid(p *grid.Pattern, name string) *layer.Layer {
	if !p.Active() {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	l := layer.New(name, p.ToEvents(), types.BarTicks, types.Melodic)
	e.Layers.Add(l)
	e.Sched.Schedule(l)
	e.applySoloLocked()
	return l
}

// AddLayer registers an externally built layer (e.g. loaded state).
func (e *Engine) AddLayer(l *layer.Layer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Layers.Add(l)
	e.Sched.Schedule(l)
	e.applySoloLocked()
}

// RemoveLayer destroys a layer and its playback handle.
func (e *Engine) RemoveLayer(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l := e.Layers.Remove(id); l != nil {
		e.Sched.Unschedule(id)
		e.applySoloLocked()
	}
}

// Clear removes every layer.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Layers.Clear()
	e.Sched.Clear()
}

// Crop, extend and shrink rebuild the layer's cycle; they are the only
// commands that tear a handle down, and the engine lock serializes them
// per layer.

func (e *Engine) CropLayer(id string, start, end types.Tick) {
	e.mutateLayer(id, func(l *layer.Layer) { l.SetCropPoints(start, end) })
}

func (e *Engine) ExtendLayerFromStart(id string, ticks types.Tick) {
	e.mutateLayer(id, func(l *layer.Layer) { l.ExtendFromStart(ticks) })
}

func (e *Engine) ExtendLayerFromEnd(id string, ticks types.Tick) {
	e.mutateLayer(id, func(l *layer.Layer) { l.ExtendFromEnd(ticks) })
}

func (e *Engine) ShrinkLayerFromStart(id string, ticks types.Tick) {
	e.mutateLayer(id, func(l *layer.Layer) { l.ShrinkFromStart(ticks) })
}

func (e *Engine) ShrinkLayerFromEnd(id string, ticks types.Tick) {
	e.mutateLayer(id, func(l *layer.Layer) { l.ShrinkFromEnd(ticks) })
}

func (e *Engine) mutateLayer(id string, fn func(*layer.Layer)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.Layers.Get(id)
	if !ok {
		return
	}
	fn(l)
	e.Sched.Schedule(l)
	e.applySoloLocked()
}

// SetVolume adjusts a layer's gain in place; the registered event list is
// untouched, so this is safe mid-cycle.
func (e *Engine) SetVolume(id string, volumeDB float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.Layers.Get(id)
	if !ok {
		return
	}
	l.VolumeDB = volumeDB
	e.Sched.SetGain(id, volumeDB)
}

// SetMuted toggles a layer's mute. A playing handle is silenced via its
// side-table flag rather than rescheduled; a layer with no handle (muted
// at schedule time) is scheduled fresh on unmute.
func (e *Engine) SetMuted(id string, muted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.Layers.Get(id)
	if !ok {
		return
	}
	l.Muted = muted
	if !e.Sched.SetSilenced(id, muted) && !muted {
		e.Sched.Schedule(l)
	}
	e.applySoloLocked()
}

// SetSolo toggles a layer's solo and re-derives audibility for all layers.
func (e *Engine) SetSolo(id string, solo bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.Layers.Get(id)
	if !ok {
		return
	}
	l.Solo = solo
	e.applySoloLocked()
}

// applySoloLocked pushes the audibility of every layer into the handle
// side-tables. Mute contributes to audibility but never excludes a layer
// from the timeline duration.
func (e *Engine) applySoloLocked() {
	for _, l := range e.Layers.Layers() {
		e.Sched.SetSilenced(l.ID, !e.Layers.Audible(l))
	}
}

// RenameLayer sets a layer's display name.
func (e *Engine) RenameLayer(id, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.Layers.Get(id); ok {
		l.Name = name
	}
}

// TimelineDuration is the ensemble loop length in ticks.
func (e *Engine) TimelineDuration() types.Tick {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Layers.TimelineDuration()
}

// TimelineSeconds is the ensemble loop length in seconds at the current
// tempo; the export sequencing contract is built on it.
func (e *Engine) TimelineSeconds() float64 {
	return e.Clock.TicksToSeconds(e.TimelineDuration())
}

// FreezeTimeline pins the displayed ensemble duration during an
// interactive crop drag; UnfreezeTimeline releases it.
func (e *Engine) FreezeTimeline() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Layers.Freeze()
}

func (e *Engine) UnfreezeTimeline() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Layers.Unfreeze()
}
