package timeline

import (
	"errors"
	"fmt"
)

var (
	ErrOverlap        = errors.New("clips overlap")
	ErrTrimBounds     = errors.New("trim window outside source media")
	ErrTimelineBounds = errors.New("clip exceeds timeline")
	ErrBadGeometry    = errors.New("invalid clip geometry")
	ErrBadLayer       = errors.New("invalid layer")
)

// Validate checks every structural invariant of the timeline and reports all
// violations at once.
func Validate(tl Timeline) error {
	var errs []error
	seen := map[Kind]bool{}

	for _, l := range tl.Layers {
		if !l.Kind.Valid() {
			errs = append(errs, fmt.Errorf("%w: layer %s has kind %q", ErrBadLayer, l.ID, l.Kind))
		} else if seen[l.Kind] {
			errs = append(errs, fmt.Errorf("%w: duplicate %s layer %s", ErrBadLayer, l.Kind, l.ID))
		}
		seen[l.Kind] = true

		if err := ValidateLayer(l, tl.Duration); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ValidateLayer checks the clip invariants of a single layer.
func ValidateLayer(l Layer, timelineDuration float64) error {
	var errs []error
	items := l.Sorted()

	for i, c := range items {
		if c.Duration <= 0 || c.StartTime < -Epsilon {
			errs = append(errs, fmt.Errorf("%w: clip %s start=%.3f duration=%.3f", ErrBadGeometry, c.ID, c.StartTime, c.Duration))
		}
		if c.End() > timelineDuration+Epsilon {
			errs = append(errs, fmt.Errorf("%w: clip %s ends at %.3f > %.3f", ErrTimelineBounds, c.ID, c.End(), timelineDuration))
		}
		if w, ok := c.Trimmable(); ok {
			if w.TrimStart < -Epsilon || w.Tail(c.Duration) < -Epsilon {
				errs = append(errs, fmt.Errorf("%w: clip %s trim=%.3f duration=%.3f source=%.3f", ErrTrimBounds, c.ID, w.TrimStart, c.Duration, w.OriginalDuration))
			}
		}
		if i > 0 && items[i-1].End() > c.StartTime+Epsilon {
			errs = append(errs, fmt.Errorf("%w: %s and %s in layer %s", ErrOverlap, items[i-1].ID, c.ID, l.ID))
		}
	}

	return errors.Join(errs...)
}

// Overlapping reports whether any two clips of the layer intersect.
func Overlapping(items []Clip) bool {
	sorted := make([]Clip, len(items))
	copy(sorted, items)
	SortClips(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].End() > sorted[i].StartTime+Epsilon {
			return true
		}
	}
	return false
}
