package interaction

import (
	"github.com/reelcut/reelcut/internal/snap"
	"github.com/reelcut/reelcut/internal/timeline"
)

// dragGesture keeps a frozen copy of the layer taken at gesture start. All
// collision math runs against it, never against the live layer.
type dragGesture struct {
	layerID  string
	clipID   string
	startX   float64
	origin   timeline.Clip
	snapshot timeline.Layer
	video    timeline.Layer
}

func (g *dragGesture) state() State { return StateDragging }

// place computes the cascaded layer for pointer position x.
func (g *dragGesture) place(c *Controller, x float64) (timeline.Layer, snap.Result, float64) {
	limit := c.store.Duration()
	proposed := timeline.Clamp(g.origin.StartTime+c.deltaSeconds(g.startX, x), 0, limit-g.origin.Duration)

	result := c.resolver().ResolveDrag(proposed, g.origin.Duration, g.snapshot, g.video, g.clipID)
	position := proposed
	if result.Snapped {
		position = timeline.Clamp(result.Position, 0, limit-g.origin.Duration)
	}

	layer := g.snapshot.Clone()
	layer.Items = Cascade(g.snapshot.Items, g.clipID, position, limit)
	return layer, result, position
}

// update writes the live preview. A drop the commit would reject is shown as
// the snapshot so the store never holds a layer past the timeline end.
func (g *dragGesture) update(c *Controller, x float64) (Feedback, error) {
	layer, result, position := g.place(c, x)
	if !g.fits(c, layer) {
		c.store.ReplaceLayer(g.snapshot)
		fb := feedbackFor(StateDragging, g.layerID, g.origin, nil)
		fb.Reverted = true
		return fb, nil
	}
	c.store.ReplaceLayer(layer)
	return g.feedback(StateDragging, layer, result, position), nil
}

func (g *dragGesture) fits(c *Controller, layer timeline.Layer) bool {
	return !timeline.Overlapping(layer.Items) && layer.End() <= c.store.Duration()+timeline.Epsilon
}

func (g *dragGesture) commit(c *Controller, x float64) (Feedback, error) {
	layer, result, position := g.place(c, x)

	if !g.fits(c, layer) {
		c.logger.Warn("drop rejected, ripple overflowed the timeline",
			"clip_id", g.clipID,
			"position", position,
		)
		g.restore(c)
		fb := feedbackFor(StateIdle, g.layerID, g.origin, nil)
		fb.Reverted = true
		return fb, nil
	}

	c.store.ReplaceLayer(layer)
	c.logger.Debug("drag finished", "clip_id", g.clipID, "position", position)
	return g.feedback(StateIdle, layer, result, position), nil
}

func (g *dragGesture) restore(c *Controller) {
	c.store.ReplaceLayer(g.snapshot)
}

func (g *dragGesture) feedback(state State, layer timeline.Layer, result snap.Result, position float64) Feedback {
	clip, _, _ := layer.Find(g.clipID)
	if !adopted(position, result) || clip.StartTime != position {
		result.Snapped = false
	}
	return feedbackFor(state, g.layerID, clip, &result)
}
