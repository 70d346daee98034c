package interaction

import (
	"github.com/reelcut/reelcut/internal/timeline"
)

// Cascade drops the clip draggedID at position and ripples every clip it
// lands on forward until nothing overlaps. snapshot is never modified.
//
// If the drop window intersects any clip, the dragged clip takes the start of
// the leftmost one (insert before it). A clip that would be pushed past
// timelineDuration keeps its original start and the ripple stops there.
func Cascade(snapshot []timeline.Clip, draggedID string, position, timelineDuration float64) []timeline.Clip {
	items := make([]timeline.Clip, 0, len(snapshot))
	var dragged timeline.Clip
	found := false
	for _, c := range snapshot {
		if c.ID == draggedID {
			dragged = c.Clone()
			found = true
			continue
		}
		items = append(items, c.Clone())
	}
	if !found {
		out := make([]timeline.Clip, len(items))
		copy(out, items)
		return out
	}
	timeline.SortClips(items)

	dropEnd := position + dragged.Duration
	for _, c := range items {
		if c.Overlaps(position, dropEnd) {
			// items is sorted, so the first hit is the leftmost.
			position = c.StartTime
			break
		}
	}
	dragged.StartTime = position

	frontier := position + dragged.Duration
	for i := range items {
		c := &items[i]
		if !c.Overlaps(position, frontier) {
			continue
		}
		if frontier+c.Duration > timelineDuration+timeline.Epsilon {
			break
		}
		c.StartTime = frontier
		frontier = c.End()
	}

	items = append(items, dragged)
	timeline.SortClips(items)
	return items
}
