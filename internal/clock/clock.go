package clock

import (
	"log"
	"sync"
	"time"

	"github.com/looploom/looploom/internal/types"
)

// Clock is the single source of truth for "now" in both the tick and the
// second domain, and for global start/stop. It is explicitly constructed
// and handed to every component that needs musical time; there is no
// package-level instance.
type Clock struct {
	mu        sync.Mutex
	bpm       float64
	running   bool
	startWall time.Time  // wall instant the current run segment began
	originPos types.Tick // position at startWall
}

const DefaultBPM = 120

func New() *Clock {
	return &Clock{bpm: DefaultBPM}
}

// BPM returns the current tempo.
func (c *Clock) BPM() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bpm
}

// SetTempo changes the tick<->second conversion for all future scheduling.
// Already-scheduled absolute-time events are not moved. The tick position
// is rebased so it stays continuous across the change.
func (c *Clock) SetTempo(bpm float64) {
	if bpm <= 0 {
		log.Printf("clock: ignoring non-positive tempo %.2f", bpm)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		now := time.Now()
		c.originPos = c.positionAtLocked(now)
		c.startWall = now
	}
	c.bpm = bpm
}

// Start begins (or resumes) the transport. Starting while already running
// is a no-op.
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.startWall = time.Now()
}

// Stop halts the transport and resets the position to tick 0.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.originPos = 0
}

// Pause halts the transport but keeps the current position.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.originPos = c.positionAtLocked(time.Now())
	c.running = false
}

// Running reports whether the transport is advancing.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SetPositionTicks moves the transport to an absolute tick position.
func (c *Clock) SetPositionTicks(t types.Tick) {
	if t < 0 {
		t = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.originPos = t
	c.startWall = time.Now()
}

// PositionTicks is the current absolute tick position. Monotonic while
// running; callers take it mod a layer's effective duration for cursor
// display.
func (c *Clock) PositionTicks() types.Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionAtLocked(time.Now())
}

func (c *Clock) positionAtLocked(now time.Time) types.Tick {
	if !c.running {
		return c.originPos
	}
	elapsed := now.Sub(c.startWall).Seconds()
	return c.originPos + types.Tick(elapsed*c.ticksPerSecondLocked())
}

// Origin is the wall-clock instant corresponding to tick 0 of the current
// run segment. Layer cycles are phase-anchored to this instant rather than
// to when each layer was separately scheduled.
func (c *Clock) Origin() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startWall.Add(-c.durationOfLocked(c.originPos))
}

// TicksToSeconds converts a tick span to seconds at the current tempo.
func (c *Clock) TicksToSeconds(t types.Tick) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(t) / c.ticksPerSecondLocked()
}

// SecondsToTicks converts a second span to ticks at the current tempo.
func (c *Clock) SecondsToTicks(s float64) types.Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.Tick(s * c.ticksPerSecondLocked())
}

// TicksToDuration converts a tick span to a time.Duration at the current tempo.
func (c *Clock) TicksToDuration(t types.Tick) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.durationOfLocked(t)
}

func (c *Clock) ticksPerSecondLocked() float64 {
	return c.bpm / 60.0 * float64(types.PPQ)
}

func (c *Clock) durationOfLocked(t types.Tick) time.Duration {
	sec := float64(t) / c.ticksPerSecondLocked()
	return time.Duration(sec * float64(time.Second))
}
