// Package interaction implements the resize and drag gestures that edit clip
// geometry in a timeline.Store.
package interaction

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/reelcut/reelcut/internal/snap"
	"github.com/reelcut/reelcut/internal/timeline"
)

var (
	ErrGestureActive  = errors.New("a gesture is already in progress")
	ErrNoGesture      = errors.New("no gesture in progress")
	ErrLayerNotFound  = errors.New("layer not found")
	ErrClipNotFound   = errors.New("clip not found")
	ErrInvalidHandle  = errors.New("handle must be start or end")
	ErrPlaybackActive = errors.New("timeline is playing")
)

// DefaultPxPerSecond matches the editor's default zoom.
const DefaultPxPerSecond = 50.0

// snapLineTolerance is how close an adopted edge must be to the snap
// position for the snap line to be reported.
const snapLineTolerance = 0.01

type State string

const (
	StateIdle     State = "idle"
	StateResizing State = "resizing"
	StateDragging State = "dragging"
)

type Handle string

const (
	HandleStart Handle = "start"
	HandleEnd   Handle = "end"
)

// Feedback describes the clip after a gesture step.
type Feedback struct {
	State     State    `json:"state"`
	LayerID   string   `json:"layerId"`
	ClipID    string   `json:"clipId"`
	StartTime float64  `json:"startTime"`
	Duration  float64  `json:"duration"`
	TrimStart float64  `json:"trimStart"`
	SnapLine  *float64 `json:"snapLine,omitempty"`
	Reverted  bool     `json:"reverted,omitempty"`
}

type gesture interface {
	state() State
	update(c *Controller, x float64) (Feedback, error)
	commit(c *Controller, x float64) (Feedback, error)
	restore(c *Controller)
}

// Controller owns at most one gesture at a time. All geometry changes go
// through the store as whole-layer replacements.
type Controller struct {
	mu          sync.Mutex
	store       *timeline.Store
	threshold   float64
	pxPerSecond float64
	playing     func() bool
	logger      *slog.Logger

	active gesture
}

func NewController(store *timeline.Store, threshold float64, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:       store,
		threshold:   threshold,
		pxPerSecond: DefaultPxPerSecond,
		logger:      logger,
	}
}

// SetScale sets the pixel density used to turn pointer deltas into seconds.
func (c *Controller) SetScale(pxPerSecond float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pxPerSecond > 0 {
		c.pxPerSecond = pxPerSecond
	}
}

func (c *Controller) Scale() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pxPerSecond
}

// SetPlaybackGuard installs a check that refuses new gestures while it
// returns true.
func (c *Controller) SetPlaybackGuard(playing func() bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = playing
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return StateIdle
	}
	return c.active.state()
}

// WhenIdle runs fn while holding the gesture lock, so no gesture can begin
// until fn returns. It reports false without calling fn if a gesture is
// active. fn must not call back into the controller.
func (c *Controller) WhenIdle(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return false
	}
	fn()
	return true
}

func (c *Controller) BeginResize(layerID, clipID string, handle Handle, x float64) (Feedback, error) {
	if handle != HandleStart && handle != HandleEnd {
		return Feedback{}, ErrInvalidHandle
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	layer, clip, err := c.beginLocked(layerID, clipID)
	if err != nil {
		return Feedback{}, err
	}

	g := &resizeGesture{
		layerID: layer.ID,
		clipID:  clip.ID,
		handle:  handle,
		startX:  x,
		origin:  clip.Clone(),
	}
	c.active = g
	c.logger.Debug("resize started", "clip_id", clip.ID, "handle", handle)
	return feedbackFor(StateResizing, layer.ID, clip, nil), nil
}

func (c *Controller) BeginDrag(layerID, clipID string, x float64) (Feedback, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	layer, clip, err := c.beginLocked(layerID, clipID)
	if err != nil {
		return Feedback{}, err
	}

	tl := c.store.Snapshot()
	video, _ := tl.Layer(timeline.KindVideo)

	g := &dragGesture{
		layerID:  layer.ID,
		clipID:   clip.ID,
		startX:   x,
		origin:   clip.Clone(),
		snapshot: layer.Clone(),
		video:    video.Clone(),
	}
	c.active = g
	c.logger.Debug("drag started", "clip_id", clip.ID, "clips_in_layer", len(layer.Items))
	return feedbackFor(StateDragging, layer.ID, clip, nil), nil
}

// Move applies a pointer position to the active gesture and writes the live
// result to the store.
func (c *Controller) Move(x float64) (Feedback, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Feedback{}, ErrNoGesture
	}
	return c.active.update(c, x)
}

// End applies the final pointer position and returns to idle.
func (c *Controller) End(x float64) (Feedback, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Feedback{}, ErrNoGesture
	}
	g := c.active
	c.active = nil
	return g.commit(c, x)
}

// Cancel abandons the active gesture and restores the pre-gesture geometry.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ErrNoGesture
	}
	c.active.restore(c)
	c.active = nil
	return nil
}

func (c *Controller) beginLocked(layerID, clipID string) (timeline.Layer, timeline.Clip, error) {
	if c.active != nil {
		return timeline.Layer{}, timeline.Clip{}, ErrGestureActive
	}
	if c.playing != nil && c.playing() {
		return timeline.Layer{}, timeline.Clip{}, ErrPlaybackActive
	}

	tl := c.store.Snapshot()
	layer, ok := tl.LayerByID(layerID)
	if !ok {
		return timeline.Layer{}, timeline.Clip{}, fmt.Errorf("%w: %s", ErrLayerNotFound, layerID)
	}
	clip, _, ok := layer.Find(clipID)
	if !ok {
		return timeline.Layer{}, timeline.Clip{}, fmt.Errorf("%w: %s", ErrClipNotFound, clipID)
	}
	return layer, clip, nil
}

func (c *Controller) resolver() snap.Resolver {
	return snap.NewResolver(c.threshold, c.store.Duration())
}

func (c *Controller) deltaSeconds(startX, x float64) float64 {
	return timeline.PxToSeconds(x-startX, c.pxPerSecond)
}

func feedbackFor(state State, layerID string, clip timeline.Clip, snapped *snap.Result) Feedback {
	fb := Feedback{
		State:     state,
		LayerID:   layerID,
		ClipID:    clip.ID,
		StartTime: clip.StartTime,
		Duration:  clip.Duration,
		TrimStart: clip.Metadata.TrimStart,
	}
	if snapped != nil && snapped.Snapped {
		line := snapped.Line
		fb.SnapLine = &line
	}
	return fb
}

func adopted(edge float64, r snap.Result) bool {
	return r.Snapped && math.Abs(edge-r.Position) <= snapLineTolerance
}
