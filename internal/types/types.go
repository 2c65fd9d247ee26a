package types

import (
	"fmt"
	"math"
)

// Tick is the smallest addressable unit of musical time. It is
// tempo-independent; conversion to wall time goes through the clock.
type Tick int64

const (
	// PPQ is the fixed tick resolution per quarter note.
	PPQ Tick = 480
	// BarTicks is one 4/4 bar.
	BarTicks Tick = PPQ * 4
	// StepTicks is one sixteenth-note grid step.
	StepTicks Tick = PPQ / 4
)

type EventKind int

const (
	NoteOn EventKind = iota
	NoteOff
)

func (k EventKind) String() string {
	if k == NoteOn {
		return "on"
	}
	return "off"
}

// MidiEvent is a single timestamped note event. Time is relative to the
// owning container's origin (recording start, or layer-local tick 0).
type MidiEvent struct {
	Kind     EventKind `json:"kind"`
	Note     string    `json:"note"`
	Velocity float64   `json:"velocity"`
	Time     Tick      `json:"time"`
}

type InstrumentClass int

const (
	Melodic InstrumentClass = iota
	Percussive
)

func (c InstrumentClass) String() string {
	if c == Percussive {
		return "percussive"
	}
	return "melodic"
}

// RecordingSession is the immutable output of a finished recording.
// Event times are zero-based: time 0 is the session start.
type RecordingSession struct {
	Events     []MidiEvent
	StartTicks Tick
	EndTicks   Tick
	Class      InstrumentClass
}

// Ticks returns the recorded span of the session.
func (s RecordingSession) Ticks() Tick {
	return s.EndTicks - s.StartTicks
}

// percussionNotes maps drum sound ids to their GM note numbers. Any note
// name found here routes to the percussive event buffer; everything else
// is treated as melodic.
var percussionNotes = map[string]uint8{
	"kick":      36,
	"rimshot":   37,
	"snare":     38,
	"clap":      39,
	"tomlow":    41,
	"hatclosed": 42,
	"tommid":    43,
	"hatopen":   46,
	"crash":     49,
	"ride":      51,
	"cowbell":   56,
}

// IsPercussive reports whether note names a drum sound.
func IsPercussive(note string) bool {
	_, ok := percussionNotes[note]
	return ok
}

// PercussionNote returns the GM note number for a drum sound id.
func PercussionNote(name string) (uint8, bool) {
	n, ok := percussionNotes[name]
	return n, ok
}

// PercussionName returns the drum sound id for a GM note number, if any.
func PercussionName(key uint8) (string, bool) {
	for name, n := range percussionNotes {
		if n == key {
			return name, true
		}
	}
	return "", false
}

var noteLetters = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName converts a MIDI key number to a pitch name like "C4" or "F#3".
// Octave numbering follows the middle-C = C4 convention (key 60).
func NoteName(key uint8) string {
	return fmt.Sprintf("%s%d", noteLetters[key%12], int(key)/12-1)
}

// Clamp01 clamps v to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// LinearGain converts a signed dB volume to a linear gain factor.
func LinearGain(db float64) float64 {
	return math.Pow(10, db/20)
}
