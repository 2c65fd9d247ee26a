package recorder

import (
	"log"

	"github.com/looploom/looploom/internal/types"
)

// TickSource is the slice of the clock the recorder needs.
type TickSource interface {
	PositionTicks() types.Tick
}

// Recorder captures a live stream of note on/off calls into two
// independently-timestamped sessions, one percussive and one melodic,
// since they usually become distinct loop layers. Boundaries stay raw:
// start/stop ticks are captured at call time, never quantized. Cropping to
// musical boundaries is a later, user-driven operation.
type Recorder struct {
	clock TickSource

	recording  bool
	startTicks types.Tick

	drum    []types.MidiEvent
	melodic []types.MidiEvent

	// Monotonic absolute-tick bookkeeping across transport wraps.
	lastRaw    types.Tick
	loopOffset types.Tick

	// Held notes are tracked independent of recording state so a note
	// already sounding when recording starts can be represented.
	held      map[string]float64
	heldOrder []string
}

func New(clock TickSource) *Recorder {
	return &Recorder{
		clock: clock,
		held:  make(map[string]float64),
	}
}

func (r *Recorder) Recording() bool {
	return r.recording
}

// Start begins a recording at the clock's current absolute tick, resetting
// both event buffers. Notes currently held are injected as NoteOns at the
// session start so their sustain is preserved.
func (r *Recorder) Start() {
	r.startTicks = r.now()
	r.drum = nil
	r.melodic = nil
	r.recording = true
	for _, note := range r.heldOrder {
		vel, ok := r.held[note]
		if !ok {
			continue
		}
		r.append(types.MidiEvent{Kind: types.NoteOn, Note: note, Velocity: vel, Time: r.startTicks})
	}
	log.Printf("recorder: started at tick %d (%d held notes carried in)", r.startTicks, len(r.held))
}

// NoteOn records a note-on stamped at the current absolute tick. Held-note
// state updates whether or not recording is active.
func (r *Recorder) NoteOn(note string, velocity float64) {
	velocity = types.Clamp01(velocity)
	if _, ok := r.held[note]; !ok {
		r.heldOrder = append(r.heldOrder, note)
	}
	r.held[note] = velocity
	if !r.recording {
		return
	}
	r.append(types.MidiEvent{Kind: types.NoteOn, Note: note, Velocity: velocity, Time: r.now()})
}

// NoteOff records a note-off stamped at the current absolute tick.
func (r *Recorder) NoteOff(note string) {
	delete(r.held, note)
	for i, n := range r.heldOrder {
		if n == note {
			r.heldOrder = append(r.heldOrder[:i], r.heldOrder[i+1:]...)
			break
		}
	}
	if !r.recording {
		return
	}
	r.append(types.MidiEvent{Kind: types.NoteOff, Note: note, Time: r.now()})
}

// Stop ends the recording and emits zero, one, or two sessions, events
// renormalized to be zero-based. An empty buffer produces no session;
// nothing recorded at all is a normal, non-error outcome.
func (r *Recorder) Stop() []types.RecordingSession {
	if !r.recording {
		return nil
	}
	end := r.now()
	r.recording = false

	var sessions []types.RecordingSession
	if len(r.drum) > 0 {
		sessions = append(sessions, r.makeSession(r.drum, end, types.Percussive))
	}
	if len(r.melodic) > 0 {
		sessions = append(sessions, r.makeSession(r.melodic, end, types.Melodic))
	}
	r.drum = nil
	r.melodic = nil
	log.Printf("recorder: stopped at tick %d, %d session(s)", end, len(sessions))
	return sessions
}

func (r *Recorder) makeSession(buf []types.MidiEvent, end types.Tick, class types.InstrumentClass) types.RecordingSession {
	events := make([]types.MidiEvent, len(buf))
	for i, ev := range buf {
		ev.Time -= r.startTicks
		events[i] = ev
	}
	return types.RecordingSession{
		Events:     events,
		StartTicks: r.startTicks,
		EndTicks:   end,
		Class:      class,
	}
}

func (r *Recorder) append(ev types.MidiEvent) {
	if types.IsPercussive(ev.Note) {
		r.drum = append(r.drum, ev)
	} else {
		r.melodic = append(r.melodic, ev)
	}
}

// now returns a monotonic absolute tick. If the transport position ever
// moves backwards mid-recording (a looping/wrapping transport), the jump
// is folded into a cumulative offset.
func (r *Recorder) now() types.Tick {
	raw := r.clock.PositionTicks()
	if raw < r.lastRaw {
		r.loopOffset += r.lastRaw - raw
	}
	r.lastRaw = raw
	return raw + r.loopOffset
}
