// Package snap finds the timeline edge a moving clip edge should lock to.
package snap

import (
	"math"

	"github.com/reelcut/reelcut/internal/timeline"
)

const (
	// DefaultThreshold applies to resize and drag-insert snapping.
	DefaultThreshold = 0.5

	// LegacyMoveThreshold was used for plain repositioning without insert
	// semantics. Gestures now use DefaultThreshold.
	LegacyMoveThreshold = 0.3
)

// Result is the outcome of a snap query. Line is only meaningful when
// Snapped is true.
type Result struct {
	Position float64 `json:"position"`
	Line     float64 `json:"line"`
	Snapped  bool    `json:"snapped"`
}

type Resolver struct {
	Threshold        float64
	TimelineDuration float64
}

func NewResolver(threshold, timelineDuration float64) Resolver {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if timelineDuration <= 0 {
		timelineDuration = timeline.DefaultDuration
	}
	return Resolver{Threshold: threshold, TimelineDuration: timelineDuration}
}

// Targets returns every edge a clip in layer may snap to: the timeline
// bounds, the other clips of the layer and, for audio layers, the clips of
// the video layer.
func (r Resolver) Targets(layer timeline.Layer, video timeline.Layer, excludeID string) []float64 {
	targets := []float64{0, r.TimelineDuration}
	for _, c := range layer.Items {
		if c.ID == excludeID {
			continue
		}
		targets = append(targets, c.StartTime, c.End())
	}
	if layer.Kind.IsAudio() {
		for _, c := range video.Items {
			targets = append(targets, c.StartTime, c.End())
		}
	}
	return targets
}

// ResolveEdge snaps a single edge, as used by resize handles.
func (r Resolver) ResolveEdge(candidate float64, layer, video timeline.Layer, excludeID string) Result {
	best := Result{Position: candidate}
	bestDist := math.Inf(1)

	for _, target := range r.Targets(layer, video, excludeID) {
		d := math.Abs(candidate - target)
		if d <= r.Threshold && d < bestDist {
			bestDist = d
			best = Result{Position: target, Line: target, Snapped: true}
		}
	}
	return best
}

// ResolveDrag snaps a moving clip by either edge. The returned Position is
// the clip's new start; Line is the edge that locked.
func (r Resolver) ResolveDrag(candidateStart, duration float64, layer, video timeline.Layer, excludeID string) Result {
	best := Result{Position: candidateStart}
	bestDist := math.Inf(1)
	candidateEnd := candidateStart + duration

	for _, target := range r.Targets(layer, video, excludeID) {
		if d := math.Abs(candidateStart - target); d <= r.Threshold && d < bestDist {
			bestDist = d
			best = Result{Position: target, Line: target, Snapped: true}
		}
		if d := math.Abs(candidateEnd - target); d <= r.Threshold && d < bestDist {
			bestDist = d
			best = Result{Position: target - duration, Line: target, Snapped: true}
		}
	}
	return best
}
