// Package timeline holds the layer/clip model shared by the interaction and
// playback engines.
package timeline

import (
	"math"
	"sort"
)

type Kind string

const (
	KindVideo     Kind = "video"
	KindVoiceover Kind = "voiceover"
	KindMusic     Kind = "music"
)

const (
	// DefaultDuration is the length of the editable window in seconds.
	DefaultDuration = 65.0

	// MinClipDuration is the shortest a resize may make a clip.
	MinClipDuration = 0.5

	// Epsilon is the floating point tolerance for overlap checks.
	Epsilon = 1e-6
)

// Kinds lists the canonical layer kinds in display order.
var Kinds = []Kind{KindVideo, KindVoiceover, KindMusic}

func (k Kind) Valid() bool {
	switch k {
	case KindVideo, KindVoiceover, KindMusic:
		return true
	}
	return false
}

// IsAudio reports whether clips of this kind feed the audio mix.
func (k Kind) IsAudio() bool {
	return k == KindVoiceover || k == KindMusic
}

type Clip struct {
	ID        string   `json:"id"`
	StartTime float64  `json:"startTime"`
	Duration  float64  `json:"duration"`
	Content   string   `json:"content"`
	Kind      Kind     `json:"kind"`
	Metadata  Metadata `json:"metadata"`
}

// SourceWindow is the visible portion of a trimmable clip's source media.
type SourceWindow struct {
	TrimStart        float64
	OriginalDuration float64
}

// Tail returns how much source media remains after a window of the given
// duration.
func (w SourceWindow) Tail(duration float64) float64 {
	return w.OriginalDuration - (w.TrimStart + duration)
}

func (c Clip) End() float64 {
	return c.StartTime + c.Duration
}

// HasContent reports whether the clip references playable media.
func (c Clip) HasContent() bool {
	return c.Content != ""
}

// Trimmable returns the clip's source window when the source duration is
// known. Clips without one can only be clamped to their neighbours.
func (c Clip) Trimmable() (SourceWindow, bool) {
	if c.Metadata.OriginalDuration == nil {
		return SourceWindow{}, false
	}
	return SourceWindow{
		TrimStart:        c.Metadata.TrimStart,
		OriginalDuration: *c.Metadata.OriginalDuration,
	}, true
}

// Overlaps reports whether the clip intersects [start, end). Touching edges
// do not overlap.
func (c Clip) Overlaps(start, end float64) bool {
	return c.StartTime < end-Epsilon && start < c.End()-Epsilon
}

// Covers reports whether t falls inside [start, end).
func (c Clip) Covers(t float64) bool {
	return t >= c.StartTime && t < c.End()
}

func (c Clip) Clone() Clip {
	out := c
	if c.Metadata.OriginalDuration != nil {
		d := *c.Metadata.OriginalDuration
		out.Metadata.OriginalDuration = &d
	}
	return out
}

type Layer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Kind  Kind   `json:"kind"`
	Items []Clip `json:"items"`
}

func (l Layer) Clone() Layer {
	out := l
	out.Items = make([]Clip, len(l.Items))
	for i, c := range l.Items {
		out.Items[i] = c.Clone()
	}
	return out
}

// Sorted returns a copy of the layer's clips ordered by start time.
func (l Layer) Sorted() []Clip {
	items := l.Clone().Items
	SortClips(items)
	return items
}

// Find returns the clip with the given id and its index in Items.
func (l Layer) Find(id string) (Clip, int, bool) {
	for i, c := range l.Items {
		if c.ID == id {
			return c, i, true
		}
	}
	return Clip{}, -1, false
}

// ClipAt returns the clip covering t, if any.
func (l Layer) ClipAt(t float64) (Clip, bool) {
	for _, c := range l.Items {
		if c.Covers(t) {
			return c, true
		}
	}
	return Clip{}, false
}

// ClipsAt returns every clip covering t.
func (l Layer) ClipsAt(t float64) []Clip {
	var out []Clip
	for _, c := range l.Items {
		if c.Covers(t) {
			out = append(out, c)
		}
	}
	return out
}

// Next returns the clip that starts at or after the end of c.
func (l Layer) Next(c Clip) (Clip, bool) {
	var best Clip
	found := false
	for _, o := range l.Items {
		if o.ID == c.ID || o.StartTime < c.End()-Epsilon {
			continue
		}
		if !found || o.StartTime < best.StartTime {
			best = o
			found = true
		}
	}
	return best, found
}

// PrevEnd returns the end of the closest clip before clipID, or 0.
func (l Layer) PrevEnd(clipID string) float64 {
	c, _, ok := l.Find(clipID)
	if !ok {
		return 0
	}
	end := 0.0
	for _, o := range l.Items {
		if o.ID == clipID || o.StartTime >= c.StartTime {
			continue
		}
		end = math.Max(end, o.End())
	}
	return end
}

// NextStart returns the start of the closest clip after clipID, or limit.
func (l Layer) NextStart(clipID string, limit float64) float64 {
	c, _, ok := l.Find(clipID)
	if !ok {
		return limit
	}
	start := limit
	for _, o := range l.Items {
		if o.ID == clipID || o.StartTime <= c.StartTime {
			continue
		}
		start = math.Min(start, o.StartTime)
	}
	return start
}

// End returns the end of the layer's last clip.
func (l Layer) End() float64 {
	end := 0.0
	for _, c := range l.Items {
		end = math.Max(end, c.End())
	}
	return end
}

// Timeline is the full editable state: a fixed window and its layers.
type Timeline struct {
	Duration float64 `json:"duration"`
	Layers   []Layer `json:"layers"`
}

// Canonical returns an empty timeline with one layer per kind.
func Canonical(duration float64) Timeline {
	if duration <= 0 {
		duration = DefaultDuration
	}
	tl := Timeline{Duration: duration}
	for _, k := range Kinds {
		tl.Layers = append(tl.Layers, Layer{
			ID:    "layer-" + string(k),
			Name:  layerName(k),
			Kind:  k,
			Items: []Clip{},
		})
	}
	return tl
}

func layerName(k Kind) string {
	switch k {
	case KindVideo:
		return "Video"
	case KindVoiceover:
		return "Voiceover"
	case KindMusic:
		return "Music"
	}
	return string(k)
}

func (t Timeline) Clone() Timeline {
	out := Timeline{Duration: t.Duration, Layers: make([]Layer, len(t.Layers))}
	for i, l := range t.Layers {
		out.Layers[i] = l.Clone()
	}
	return out
}

// Layer returns the first layer of the given kind.
func (t Timeline) Layer(kind Kind) (Layer, bool) {
	for _, l := range t.Layers {
		if l.Kind == kind {
			return l, true
		}
	}
	return Layer{}, false
}

func (t Timeline) LayerByID(id string) (Layer, bool) {
	for _, l := range t.Layers {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}

// FindClip searches every layer for the clip.
func (t Timeline) FindClip(id string) (Layer, Clip, bool) {
	for _, l := range t.Layers {
		if c, _, ok := l.Find(id); ok {
			return l, c, true
		}
	}
	return Layer{}, Clip{}, false
}

// WithLayer returns a copy of t with the layer sharing l.ID replaced by l.
func (t Timeline) WithLayer(l Layer) Timeline {
	out := t.Clone()
	for i := range out.Layers {
		if out.Layers[i].ID == l.ID {
			out.Layers[i] = l.Clone()
			return out
		}
	}
	out.Layers = append(out.Layers, l.Clone())
	return out
}

// ContentEnd is the end of the last clip on any layer.
func (t Timeline) ContentEnd() float64 {
	end := 0.0
	for _, l := range t.Layers {
		end = math.Max(end, l.End())
	}
	return end
}

// SortClips orders clips by start time, breaking ties by id.
func SortClips(items []Clip) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].StartTime == items[j].StartTime {
			return items[i].ID < items[j].ID
		}
		return items[i].StartTime < items[j].StartTime
	})
}

// Float returns a pointer to f, for optional metadata fields.
func Float(f float64) *float64 {
	return &f
}
