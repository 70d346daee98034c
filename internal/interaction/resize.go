package interaction

import (
	"math"

	"github.com/reelcut/reelcut/internal/snap"
	"github.com/reelcut/reelcut/internal/timeline"
)

type resizeGesture struct {
	layerID string
	clipID  string
	handle  Handle
	startX  float64
	origin  timeline.Clip
}

func (g *resizeGesture) state() State { return StateResizing }

func (g *resizeGesture) update(c *Controller, x float64) (Feedback, error) {
	tl := c.store.Snapshot()
	layer, ok := tl.LayerByID(g.layerID)
	if !ok {
		return Feedback{}, ErrLayerNotFound
	}
	_, idx, ok := layer.Find(g.clipID)
	if !ok {
		return Feedback{}, ErrClipNotFound
	}
	video, _ := tl.Layer(timeline.KindVideo)

	delta := c.deltaSeconds(g.startX, x)
	prevEnd := layer.PrevEnd(g.clipID)
	nextStart := layer.NextStart(g.clipID, tl.Duration)

	var (
		next   timeline.Clip
		result snap.Result
		edge   float64
	)
	switch g.handle {
	case HandleStart:
		result = c.resolver().ResolveEdge(g.origin.StartTime+delta, layer, video, g.clipID)
		if result.Snapped {
			delta = result.Position - g.origin.StartTime
		}
		next = resizeStart(g.origin, delta, prevEnd)
		edge = next.StartTime
	default:
		result = c.resolver().ResolveEdge(g.origin.End()+delta, layer, video, g.clipID)
		if result.Snapped {
			delta = result.Position - g.origin.End()
		}
		next = resizeEnd(g.origin, delta, nextStart)
		edge = next.End()
	}

	layer.Items[idx] = next
	c.store.ReplaceLayer(layer)

	if !adopted(edge, result) {
		result.Snapped = false
	}
	return feedbackFor(StateResizing, g.layerID, next, &result), nil
}

// commit re-applies the last position; the live geometry is already final.
func (g *resizeGesture) commit(c *Controller, x float64) (Feedback, error) {
	fb, err := g.update(c, x)
	if err != nil {
		return Feedback{}, err
	}
	fb.State = StateIdle
	c.logger.Debug("resize finished", "clip_id", g.clipID, "start", fb.StartTime, "duration", fb.Duration)
	return fb, nil
}

func (g *resizeGesture) restore(c *Controller) {
	tl := c.store.Snapshot()
	layer, ok := tl.LayerByID(g.layerID)
	if !ok {
		return
	}
	if _, idx, ok := layer.Find(g.clipID); ok {
		layer.Items[idx] = g.origin.Clone()
		c.store.ReplaceLayer(layer)
	}
}

// resizeStart moves the head of origin by delta seconds. Positive delta
// shrinks, negative expands up to the previous clip and the source head.
func resizeStart(origin timeline.Clip, delta, prevEnd float64) timeline.Clip {
	out := origin.Clone()
	window, trimmable := origin.Trimmable()

	if delta >= 0 {
		delta = math.Min(delta, math.Max(0, origin.Duration-timeline.MinClipDuration))
		out.StartTime = origin.StartTime + delta
		out.Duration = origin.Duration - delta
		if trimmable {
			out.Metadata.TrimStart = window.TrimStart + delta
		}
		return out
	}

	room := origin.StartTime - prevEnd
	if trimmable {
		room = math.Min(window.TrimStart, room)
	}
	grow := math.Min(-delta, math.Max(0, room))
	out.StartTime = origin.StartTime - grow
	out.Duration = origin.Duration + grow
	if trimmable {
		out.Metadata.TrimStart = window.TrimStart - grow
	}
	return out
}

// resizeEnd moves the tail of origin by delta seconds. Negative delta
// shrinks, positive expands up to nextStart and the source tail.
func resizeEnd(origin timeline.Clip, delta, nextStart float64) timeline.Clip {
	out := origin.Clone()

	if delta <= 0 {
		shrink := math.Min(-delta, math.Max(0, origin.Duration-timeline.MinClipDuration))
		out.Duration = origin.Duration - shrink
		return out
	}

	room := nextStart - origin.End()
	if window, ok := origin.Trimmable(); ok {
		room = math.Min(window.Tail(origin.Duration), room)
	}
	out.Duration = origin.Duration + math.Min(delta, math.Max(0, room))
	return out
}
