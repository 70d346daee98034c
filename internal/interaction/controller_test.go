package interaction

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"testing"

	"github.com/reelcut/reelcut/internal/timeline"
)

const eps = 1e-9

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func vclip(id string, start, dur float64) timeline.Clip {
	return timeline.Clip{ID: id, StartTime: start, Duration: dur, Content: id + ".mp4", Kind: timeline.KindVideo}
}

func trimmed(c timeline.Clip, trim, original float64) timeline.Clip {
	c.Metadata = timeline.Metadata{TrimStart: trim, OriginalDuration: timeline.Float(original)}
	return c
}

func setup(t *testing.T, kind timeline.Kind, clips ...timeline.Clip) (*Controller, *timeline.Store, string) {
	t.Helper()
	tl := timeline.Canonical(65)
	var layerID string
	for i := range tl.Layers {
		if tl.Layers[i].Kind == kind {
			tl.Layers[i].Items = clips
			layerID = tl.Layers[i].ID
		}
	}
	store := timeline.NewStore(tl)
	ctrl := NewController(store, 0.5, testLogger())
	ctrl.SetScale(50)
	return ctrl, store, layerID
}

func liveClip(t *testing.T, store *timeline.Store, id string) timeline.Clip {
	t.Helper()
	_, c, ok := store.Snapshot().FindClip(id)
	if !ok {
		t.Fatalf("clip %s missing from store", id)
	}
	return c
}

func assertGeometry(t *testing.T, c timeline.Clip, start, dur, trim float64) {
	t.Helper()
	if math.Abs(c.StartTime-start) > eps || math.Abs(c.Duration-dur) > eps || math.Abs(c.Metadata.TrimStart-trim) > eps {
		t.Errorf("clip %s = (start %v, dur %v, trim %v), want (%v, %v, %v)",
			c.ID, c.StartTime, c.Duration, c.Metadata.TrimStart, start, dur, trim)
	}
}

func TestResize(t *testing.T) {
	tests := []struct {
		name   string
		clips  []timeline.Clip
		handle Handle
		dx     float64
		want   [3]float64
		snap   *float64
	}{
		{
			name:   "start shrink trimmable skips source head",
			clips:  []timeline.Clip{trimmed(vclip("x", 2, 4), 1, 10)},
			handle: HandleStart, dx: 50,
			want: [3]float64{3, 3, 2},
		},
		{
			name:   "start shrink clamped to min duration",
			clips:  []timeline.Clip{trimmed(vclip("x", 2, 4), 1, 10)},
			handle: HandleStart, dx: 500,
			want: [3]float64{5.5, 0.5, 4.5},
		},
		{
			name:   "start expand limited by source head",
			clips:  []timeline.Clip{trimmed(vclip("x", 2, 4), 1, 10)},
			handle: HandleStart, dx: -150,
			want: [3]float64{1, 5, 0},
		},
		{
			name:   "start expand limited by previous clip",
			clips:  []timeline.Clip{vclip("p", 0, 1.5), trimmed(vclip("x", 4, 2), 5, 10)},
			handle: HandleStart, dx: -200,
			want: [3]float64{1.5, 4.5, 2.5},
		},
		{
			name:   "start expand non trimmable clamped to previous end",
			clips:  []timeline.Clip{vclip("p", 0, 1.5), vclip("x", 4, 2)},
			handle: HandleStart, dx: -200,
			want: [3]float64{1.5, 4.5, 0},
		},
		{
			name:   "end shrink clamped to min duration",
			clips:  []timeline.Clip{vclip("x", 10, 4)},
			handle: HandleEnd, dx: -1000,
			want: [3]float64{10, 0.5, 0},
		},
		{
			name:   "end expand limited by source tail",
			clips:  []timeline.Clip{trimmed(vclip("x", 0, 4), 1, 6), vclip("n", 10, 2)},
			handle: HandleEnd, dx: 150,
			want: [3]float64{0, 5, 1},
		},
		{
			name:   "end expand non trimmable clamped to next clip",
			clips:  []timeline.Clip{vclip("x", 0, 4), vclip("n", 5, 2)},
			handle: HandleEnd, dx: 200,
			want: [3]float64{0, 5, 0},
		},
		{
			name:   "end expand non trimmable clamped to timeline end",
			clips:  []timeline.Clip{vclip("x", 60, 4)},
			handle: HandleEnd, dx: 60,
			want: [3]float64{60, 5, 0},
			snap:   timeline.Float(65),
		},
		{
			name:   "end snaps to neighbour start",
			clips:  []timeline.Clip{vclip("x", 0, 4), vclip("n", 6, 2)},
			handle: HandleEnd, dx: 90,
			want: [3]float64{0, 6, 0},
			snap:   timeline.Float(6),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, store, layerID := setup(t, timeline.KindVideo, tt.clips...)

			if _, err := ctrl.BeginResize(layerID, "x", tt.handle, 100); err != nil {
				t.Fatalf("BeginResize() error = %v", err)
			}
			fb, err := ctrl.Move(100 + tt.dx)
			if err != nil {
				t.Fatalf("Move() error = %v", err)
			}

			assertGeometry(t, liveClip(t, store, "x"), tt.want[0], tt.want[1], tt.want[2])

			switch {
			case tt.snap == nil && fb.SnapLine != nil:
				t.Errorf("SnapLine = %v, want none", *fb.SnapLine)
			case tt.snap != nil && (fb.SnapLine == nil || math.Abs(*fb.SnapLine-*tt.snap) > eps):
				t.Errorf("SnapLine = %v, want %v", fb.SnapLine, *tt.snap)
			}

			end, err := ctrl.End(100 + tt.dx)
			if err != nil {
				t.Fatalf("End() error = %v", err)
			}
			if end.State != StateIdle || ctrl.State() != StateIdle {
				t.Errorf("state after End = %s / %s", end.State, ctrl.State())
			}
			if err := timeline.Validate(store.Snapshot()); err != nil {
				t.Errorf("invariants violated after resize: %v", err)
			}
		})
	}
}

func TestResize_SnapLineHiddenWhenNotAdopted(t *testing.T) {
	ctrl, _, layerID := setup(t, timeline.KindVideo, vclip("p", 0, 1.5), vclip("x", 4, 2))

	ctrl.BeginResize(layerID, "x", HandleStart, 0)
	// candidate 0 snaps to the timeline start but the previous clip stops the edge at 1.5
	fb, err := ctrl.Move(-200)
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if fb.SnapLine != nil {
		t.Errorf("SnapLine = %v, want none", *fb.SnapLine)
	}
}

func TestResize_AudioSnapsToVideoCut(t *testing.T) {
	tl := timeline.Canonical(65)
	tl.Layers[0].Items = []timeline.Clip{vclip("v1", 0, 8), vclip("v2", 8, 8)}
	music := timeline.Clip{ID: "m", StartTime: 0, Duration: 7.7, Content: "m.mp3", Kind: timeline.KindMusic}
	tl.Layers[2].Items = []timeline.Clip{music}
	store := timeline.NewStore(tl)
	ctrl := NewController(store, 0.5, testLogger())
	ctrl.SetScale(50)

	ctrl.BeginResize(tl.Layers[2].ID, "m", HandleEnd, 0)
	fb, _ := ctrl.Move(5)
	if fb.SnapLine == nil || *fb.SnapLine != 8 {
		t.Fatalf("SnapLine = %v, want 8", fb.SnapLine)
	}
	assertGeometry(t, liveClip(t, store, "m"), 0, 8, 0)
}

func TestResize_RoundTrip(t *testing.T) {
	for _, handle := range []Handle{HandleStart, HandleEnd} {
		t.Run(string(handle), func(t *testing.T) {
			orig := trimmed(vclip("x", 20, 4), 1, 10)
			ctrl, store, layerID := setup(t, timeline.KindVideo, orig)

			shrink := 50.0
			if handle == HandleEnd {
				shrink = -50
			}

			ctrl.BeginResize(layerID, "x", handle, 0)
			ctrl.Move(shrink)
			ctrl.End(shrink)

			ctrl.BeginResize(layerID, "x", handle, 0)
			ctrl.Move(-shrink)
			ctrl.End(-shrink)

			got := liveClip(t, store, "x")
			if got.StartTime != orig.StartTime || got.Duration != orig.Duration || got.Metadata.TrimStart != orig.Metadata.TrimStart {
				t.Errorf("round trip = (%v, %v, %v), want (%v, %v, %v)",
					got.StartTime, got.Duration, got.Metadata.TrimStart,
					orig.StartTime, orig.Duration, orig.Metadata.TrimStart)
			}
		})
	}
}

func TestResize_ReturnToOriginWithinGesture(t *testing.T) {
	orig := trimmed(vclip("x", 20, 4), 1, 10)
	ctrl, store, layerID := setup(t, timeline.KindVideo, orig)

	ctrl.BeginResize(layerID, "x", HandleStart, 300)
	ctrl.Move(350)
	ctrl.Move(220)
	ctrl.End(300)

	assertGeometry(t, liveClip(t, store, "x"), 20, 4, 1)
}

func TestDrag_CascadePushesDownstream(t *testing.T) {
	ctrl, store, layerID := setup(t, timeline.KindVideo,
		vclip("a", 0, 4), vclip("b", 4, 4), vclip("c", 8, 4), vclip("d", 20, 2))

	if _, err := ctrl.BeginDrag(layerID, "d", 1000); err != nil {
		t.Fatalf("BeginDrag() error = %v", err)
	}
	// 5s is 1s from every edge, out of snap range
	preview, err := ctrl.Move(250)
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if preview.StartTime != 4 {
		t.Errorf("preview start = %v, want 4 (pinned before b)", preview.StartTime)
	}

	fb, err := ctrl.End(250)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if fb.Reverted {
		t.Fatal("drop unexpectedly reverted")
	}

	layer, _ := store.Snapshot().LayerByID(layerID)
	want := []struct {
		id    string
		start float64
	}{{"a", 0}, {"d", 4}, {"b", 6}, {"c", 10}}
	for i, w := range want {
		if layer.Items[i].ID != w.id || layer.Items[i].StartTime != w.start {
			t.Errorf("items[%d] = %s@%v, want %s@%v", i, layer.Items[i].ID, layer.Items[i].StartTime, w.id, w.start)
		}
	}
}

func TestDrag_OverflowReverts(t *testing.T) {
	ctrl, store, layerID := setup(t, timeline.KindVideo,
		vclip("x", 0, 10), vclip("a", 50, 10), vclip("b", 60, 5))

	ctrl.BeginDrag(layerID, "x", 0)
	fb, err := ctrl.End(52 * 50)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if !fb.Reverted {
		t.Fatal("expected drop to be reverted")
	}

	if got := liveClip(t, store, "x").StartTime; got != 0 {
		t.Errorf("x start = %v, want 0 after revert", got)
	}
	if got := liveClip(t, store, "a").StartTime; got != 50 {
		t.Errorf("a start = %v, want 50 after revert", got)
	}
}

func TestDrag_ClampedToTimeline(t *testing.T) {
	ctrl, store, layerID := setup(t, timeline.KindVideo, vclip("x", 10, 4))

	ctrl.BeginDrag(layerID, "x", 0)
	ctrl.End(10000)
	if got := liveClip(t, store, "x").StartTime; got != 61 {
		t.Errorf("start = %v, want 61", got)
	}

	ctrl.BeginDrag(layerID, "x", 0)
	ctrl.End(-10000)
	if got := liveClip(t, store, "x").StartTime; got != 0 {
		t.Errorf("start = %v, want 0", got)
	}
}

func TestDrag_CancelRestoresSnapshot(t *testing.T) {
	ctrl, store, layerID := setup(t, timeline.KindVideo, vclip("a", 0, 4), vclip("b", 4, 4))
	before := store.Snapshot()

	ctrl.BeginDrag(layerID, "b", 0)
	ctrl.Move(-100)
	if err := ctrl.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	after := store.Snapshot()
	for i, c := range before.Layers[0].Items {
		if after.Layers[0].Items[i].StartTime != c.StartTime {
			t.Errorf("clip %s moved after cancel", c.ID)
		}
	}
}

func TestDrag_PropertyNonOverlapAfterCommit(t *testing.T) {
	clips := []timeline.Clip{
		vclip("a", 0, 6), vclip("b", 6, 3.5), vclip("c", 12, 8),
		vclip("d", 25, 5), vclip("e", 40, 12), vclip("f", 55, 7),
	}

	for _, dragged := range []string{"a", "c", "f"} {
		for target := 0.0; target < 65; target += 0.7 {
			ctrl, store, layerID := setup(t, timeline.KindVideo, clips...)
			orig := liveClip(t, store, dragged)

			ctrl.BeginDrag(layerID, dragged, 0)
			ctrl.Move((target - orig.StartTime) * 50 / 2)
			if _, err := ctrl.End((target - orig.StartTime) * 50); err != nil {
				t.Fatalf("End() error = %v", err)
			}

			if err := timeline.Validate(store.Snapshot()); err != nil {
				t.Fatalf("drag %s to %.1f broke invariants: %v", dragged, target, err)
			}
		}
	}
}

func TestGestureGuards(t *testing.T) {
	ctrl, _, layerID := setup(t, timeline.KindVideo, vclip("a", 0, 4))

	if _, err := ctrl.Move(10); !errors.Is(err, ErrNoGesture) {
		t.Errorf("Move() idle error = %v, want ErrNoGesture", err)
	}
	if _, err := ctrl.BeginDrag(layerID, "missing", 0); !errors.Is(err, ErrClipNotFound) {
		t.Errorf("BeginDrag() error = %v, want ErrClipNotFound", err)
	}
	if _, err := ctrl.BeginDrag("nope", "a", 0); !errors.Is(err, ErrLayerNotFound) {
		t.Errorf("BeginDrag() error = %v, want ErrLayerNotFound", err)
	}
	if _, err := ctrl.BeginResize(layerID, "a", "middle", 0); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("BeginResize() error = %v, want ErrInvalidHandle", err)
	}

	ctrl.BeginDrag(layerID, "a", 0)
	if _, err := ctrl.BeginResize(layerID, "a", HandleEnd, 0); !errors.Is(err, ErrGestureActive) {
		t.Errorf("second gesture error = %v, want ErrGestureActive", err)
	}
	ctrl.Cancel()

	ctrl.SetPlaybackGuard(func() bool { return true })
	if _, err := ctrl.BeginDrag(layerID, "a", 0); !errors.Is(err, ErrPlaybackActive) {
		t.Errorf("BeginDrag() while playing error = %v, want ErrPlaybackActive", err)
	}
}

func TestDrag_PreviewNeverExceedsTimeline(t *testing.T) {
	ctrl, store, layerID := setup(t, timeline.KindVideo, vclip("x", 10, 4), vclip("a", 62, 2))

	ctrl.BeginDrag(layerID, "x", 0)

	// Proposed start 60 pins x to 62, which would end at 66.
	fb, err := ctrl.Move(50 * 50)
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if !fb.Reverted || fb.State != StateDragging {
		t.Errorf("feedback = %+v, want reverted preview while dragging", fb)
	}
	if err := timeline.Validate(store.Snapshot()); err != nil {
		t.Fatalf("preview broke invariants: %v", err)
	}
	assertGeometry(t, liveClip(t, store, "x"), 10, 4, 0)

	// A valid position afterwards previews normally.
	fb, _ = ctrl.Move(20 * 50)
	if fb.Reverted || fb.StartTime != 30 {
		t.Errorf("feedback = %+v, want x at 30", fb)
	}

	fb, _ = ctrl.End(50 * 50)
	if !fb.Reverted {
		t.Error("expected commit at the pinned position to be reverted")
	}
	assertGeometry(t, liveClip(t, store, "x"), 10, 4, 0)
	assertGeometry(t, liveClip(t, store, "a"), 62, 2, 0)
}

func TestWhenIdle(t *testing.T) {
	ctrl, _, layerID := setup(t, timeline.KindVideo, vclip("a", 0, 4))

	ran := false
	if !ctrl.WhenIdle(func() { ran = true }) || !ran {
		t.Fatal("WhenIdle() did not run fn while idle")
	}

	ctrl.BeginResize(layerID, "a", HandleEnd, 0)
	ran = false
	if ctrl.WhenIdle(func() { ran = true }) || ran {
		t.Error("WhenIdle() ran fn during a gesture")
	}
	ctrl.End(0)
	if !ctrl.WhenIdle(func() {}) {
		t.Error("WhenIdle() refused after the gesture ended")
	}
}

func TestWhenIdle_StartingPlaybackHoldsOffGestures(t *testing.T) {
	ctrl, _, layerID := setup(t, timeline.KindVideo, vclip("a", 0, 4))
	var playing atomic.Bool
	ctrl.SetPlaybackGuard(playing.Load)

	done := make(chan error, 1)
	ctrl.WhenIdle(func() {
		// The drag can only take the gesture lock once playback has started.
		go func() {
			_, err := ctrl.BeginDrag(layerID, "a", 0)
			done <- err
		}()
		playing.Store(true)
	})
	if err := <-done; !errors.Is(err, ErrPlaybackActive) {
		t.Errorf("BeginDrag() error = %v, want %v", err, ErrPlaybackActive)
	}
	if ctrl.State() != StateIdle {
		t.Errorf("State() = %v, want idle", ctrl.State())
	}
}
