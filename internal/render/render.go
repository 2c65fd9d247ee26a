package render

import (
	"log"
	"sync"
	"time"

	"github.com/hypebeast/go-osc/osc"
)

// Renderer is the external sound engine boundary. Implementations must
// support independent polyphonic voices per instrument and an immediate
// release-all.
type Renderer interface {
	NoteOn(note string, velocity float64, at time.Time)
	NoteOff(note string, at time.Time)
	ReleaseAll()
}

// OSCRenderer speaks to a SuperCollider-style synth process over OSC.
// Timed events go out as OSC bundles carrying their absolute timetag so
// the receiver can apply its own sample-accurate scheduling.
type OSCRenderer struct {
	client *osc.Client
}

func NewOSCRenderer(host string, port int) *OSCRenderer {
	return &OSCRenderer{client: osc.NewClient(host, port)}
}

func (r *OSCRenderer) NoteOn(note string, velocity float64, at time.Time) {
	msg := osc.NewMessage("/looploom/note_on")
	msg.Append(note)
	msg.Append(float32(velocity))
	r.sendAt(msg, at)
}

func (r *OSCRenderer) NoteOff(note string, at time.Time) {
	msg := osc.NewMessage("/looploom/note_off")
	msg.Append(note)
	r.sendAt(msg, at)
}

func (r *OSCRenderer) ReleaseAll() {
	msg := osc.NewMessage("/looploom/release_all")
	if err := r.client.Send(msg); err != nil {
		log.Printf("osc: release_all send failed: %v", err)
	}
}

// CaptureStart asks the synth process to begin writing its output to path.
func (r *OSCRenderer) CaptureStart(path string) error {
	msg := osc.NewMessage("/looploom/capture/start")
	msg.Append(path)
	return r.client.Send(msg)
}

// CaptureStop ends an offline capture.
func (r *OSCRenderer) CaptureStop() error {
	return r.client.Send(osc.NewMessage("/looploom/capture/stop"))
}

func (r *OSCRenderer) sendAt(msg *osc.Message, at time.Time) {
	bundle := osc.NewBundle(at)
	if err := bundle.Append(msg); err != nil {
		log.Printf("osc: bundle append failed: %v", err)
		return
	}
	if err := r.client.Send(bundle); err != nil {
		log.Printf("osc: send failed: %v", err)
	}
}

// Dispatch is one rendered call, recorded by Capture for tests.
type Dispatch struct {
	Kind     string // "on", "off", "release_all"
	Note     string
	Velocity float64
	At       time.Time
}

// Capture is an in-memory Renderer for tests and headless runs.
type Capture struct {
	mu    sync.Mutex
	calls []Dispatch
}

func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) NoteOn(note string, velocity float64, at time.Time) {
	c.record(Dispatch{Kind: "on", Note: note, Velocity: velocity, At: at})
}

func (c *Capture) NoteOff(note string, at time.Time) {
	c.record(Dispatch{Kind: "off", Note: note, At: at})
}

func (c *Capture) ReleaseAll() {
	c.record(Dispatch{Kind: "release_all"})
}

func (c *Capture) record(d Dispatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, d)
}

// Calls returns a snapshot of everything dispatched so far.
func (c *Capture) Calls() []Dispatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Dispatch, len(c.calls))
	copy(out, c.calls)
	return out
}

func (c *Capture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}
