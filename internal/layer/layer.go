package layer

import (
	"github.com/google/uuid"

	"github.com/looploom/looploom/internal/types"
)

// Layer is the persistent unit of playback: a bounded, croppable,
// extensible recorded event stream with its own loop length, volume and
// mute/solo state. Event times are zero-based against Duration; the active
// window is [CropStart, CropEnd).
type Layer struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Events       []types.MidiEvent     `json:"events"`
	Duration     types.Tick            `json:"duration"`
	CropStart    types.Tick            `json:"crop_start"`
	CropEnd      types.Tick            `json:"crop_end"`
	StartPadding types.Tick            `json:"start_padding"`
	EndPadding   types.Tick            `json:"end_padding"`
	InstrumentID string                `json:"instrument_id"`
	VolumeDB     float64               `json:"volume_db"`
	Muted        bool                  `json:"muted"`
	Solo         bool                  `json:"solo"`
	Class        types.InstrumentClass `json:"class"`
}

// New creates a layer spanning its full recorded duration.
func New(name string, events []types.MidiEvent, duration types.Tick, class types.InstrumentClass) *Layer {
	if duration < 1 {
		duration = 1
	}
	return &Layer{
		ID:       uuid.NewString(),
		Name:     name,
		Events:   events,
		Duration: duration,
		CropEnd:  duration,
		Class:    class,
	}
}

// FromSession creates a layer from a finished recording session.
func FromSession(name string, s types.RecordingSession) *Layer {
	return New(name, s.Events, s.Ticks(), s.Class)
}

// EffectiveDuration is the layer's actual loop period. Always > 0; every
// mutation clamps to keep it that way.
func (l *Layer) EffectiveDuration() types.Tick {
	return l.CropEnd - l.CropStart
}

// SetCropPoints narrows or widens the active window. Out-of-range values
// are clamped; a window that would collapse to zero is rejected as a no-op
// (crop is driven by drag gestures that may transiently violate bounds).
func (l *Layer) SetCropPoints(start, end types.Tick) {
	if start < 0 {
		start = 0
	}
	if start > l.Duration {
		start = l.Duration
	}
	if end < start {
		end = start
	}
	if end > l.Duration {
		end = l.Duration
	}
	if end-start <= 0 {
		return
	}
	l.CropStart = start
	l.CropEnd = end
}

// ExtendFromStart inserts ticks of silence in front of the recording.
// Tick 0 of the underlying recording moves, so every event shifts forward
// by the same amount; CropStart stays fixed so the content in view remains
// anchored while CropEnd and StartPadding grow.
func (l *Layer) ExtendFromStart(ticks types.Tick) {
	if ticks <= 0 {
		return
	}
	for i := range l.Events {
		l.Events[i].Time += ticks
	}
	l.Duration += ticks
	l.CropEnd += ticks
	l.StartPadding += ticks
}

// ExtendFromEnd appends ticks of silence after the recording. No event
// retiming.
func (l *Layer) ExtendFromEnd(ticks types.Tick) {
	if ticks <= 0 {
		return
	}
	l.Duration += ticks
	l.CropEnd += ticks
	l.EndPadding += ticks
}

// ShrinkFromStart retracts a prior start-extension. Permitted only up to
// the padding accumulated on that edge; anything more would crop into
// originally-recorded content, so it is silently rejected.
func (l *Layer) ShrinkFromStart(ticks types.Tick) {
	if ticks <= 0 || ticks > l.StartPadding {
		return
	}
	if l.CropEnd-(l.CropStart+ticks) <= 0 {
		return
	}
	l.CropStart += ticks
	l.StartPadding -= ticks
}

// ShrinkFromEnd retracts a prior end-extension, bounded by EndPadding.
func (l *Layer) ShrinkFromEnd(ticks types.Tick) {
	if ticks <= 0 || ticks > l.EndPadding {
		return
	}
	if (l.CropEnd-ticks)-l.CropStart <= 0 {
		return
	}
	l.CropEnd -= ticks
	l.EndPadding -= ticks
}

// WindowEvents returns the events inside the crop window, re-timed to the
// window origin. Order is preserved.
func (l *Layer) WindowEvents() []types.MidiEvent {
	out := make([]types.MidiEvent, 0, len(l.Events))
	for _, ev := range l.Events {
		if ev.Time >= l.CropStart && ev.Time < l.CropEnd {
			ev.Time -= l.CropStart
			out = append(out, ev)
		}
	}
	return out
}
