package layer

import (
	"github.com/looploom/looploom/internal/types"
)

// Collection exclusively owns the live layers. The scheduler only ever
// holds derived playback handles keyed by layer id, never the layers
// themselves.
type Collection struct {
	order []*Layer
	byID  map[string]*Layer

	frozen    bool
	frozenDur types.Tick
}

func NewCollection() *Collection {
	return &Collection{byID: make(map[string]*Layer)}
}

func (c *Collection) Add(l *Layer) {
	if _, ok := c.byID[l.ID]; ok {
		return
	}
	c.order = append(c.order, l)
	c.byID[l.ID] = l
}

func (c *Collection) Remove(id string) *Layer {
	l, ok := c.byID[id]
	if !ok {
		return nil
	}
	delete(c.byID, id)
	for i, cur := range c.order {
		if cur.ID == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return l
}

func (c *Collection) Get(id string) (*Layer, bool) {
	l, ok := c.byID[id]
	return l, ok
}

// Layers returns the layers in insertion order. The returned slice is a
// copy; the layers themselves are shared.
func (c *Collection) Layers() []*Layer {
	out := make([]*Layer, len(c.order))
	copy(out, c.order)
	return out
}

func (c *Collection) Len() int {
	return len(c.order)
}

func (c *Collection) Clear() {
	c.order = nil
	c.byID = make(map[string]*Layer)
}

// TimelineDuration is the ensemble loop length: the longest effective
// duration among all layers, muted ones included. While frozen it returns
// the pinned pre-drag value so other layers' widths don't jitter mid-drag.
func (c *Collection) TimelineDuration() types.Tick {
	if c.frozen {
		return c.frozenDur
	}
	return c.computeTimeline()
}

func (c *Collection) computeTimeline() types.Tick {
	var max types.Tick
	for _, l := range c.order {
		if d := l.EffectiveDuration(); d > max {
			max = d
		}
	}
	return max
}

// Freeze pins the displayed timeline duration at its current value until
// Unfreeze. Per-layer loop periods are unaffected; this is a display
// override only.
func (c *Collection) Freeze() {
	if c.frozen {
		return
	}
	c.frozenDur = c.computeTimeline()
	c.frozen = true
}

func (c *Collection) Unfreeze() {
	c.frozen = false
}

// AnySolo reports whether at least one layer is soloed.
func (c *Collection) AnySolo() bool {
	for _, l := range c.order {
		if l.Solo {
			return true
		}
	}
	return false
}

// Audible reports whether a layer should currently sound: not muted, and
// when any layer is soloed, only soloed layers are audible.
func (c *Collection) Audible(l *Layer) bool {
	if l.Muted {
		return false
	}
	if c.AnySolo() && !l.Solo {
		return false
	}
	return true
}
