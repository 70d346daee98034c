// Package playback renders a timeline.Store as one continuous programme: a
// per-frame loop drives two video surfaces and an audio mixer from a single
// timeline clock.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/reelcut/reelcut/internal/timeline"
)

const (
	DefaultFrameRate         = 60
	DefaultAudioSyncInterval = 100 * time.Millisecond
)

// URLResolver turns stored clip content into a playable URL.
type URLResolver interface {
	Resolve(ref string) (string, error)
}

// AudioScheduler keeps audio voices in step with the timeline.
type AudioScheduler interface {
	Sync(t float64, covered []timeline.Clip)
	Stop()
	HardStop()
}

type Config struct {
	Surfaces          [2]Surface
	Screen            Screen
	Audio             AudioScheduler
	Resolver          URLResolver
	Clock             Clock
	FrameRate         int
	AudioSyncInterval time.Duration
	Logger            *slog.Logger
}

// State is a snapshot of the engine for hosts.
type State struct {
	Playing      bool            `json:"playing"`
	CurrentTime  float64         `json:"currentTime"`
	ContentEnd   float64         `json:"contentEnd"`
	ActiveClipID string          `json:"activeClipId,omitempty"`
	Loading      bool            `json:"loading"`
	ActiveSlot   int             `json:"activeSlot"`
	Surfaces     [2]SurfaceState `json:"surfaces"`
	FailedClips  []string        `json:"failedClips,omitempty"`
}

type Engine struct {
	mu       sync.Mutex
	store    *timeline.Store
	arena    *Arena
	screen   Screen
	audio    AudioScheduler
	resolver URLResolver
	clock    Clock
	logger   *slog.Logger

	frameInterval time.Duration
	syncInterval  time.Duration

	playing  bool
	cancel   context.CancelFunc
	current  float64
	lastTick time.Time
	lastSync time.Time

	active  timeline.Clip
	inClip  bool
	loading bool
	failed  map[string]bool

	onTimeUpdate func(float64)
	onEnded      func()
}

func NewEngine(store *timeline.Store, cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Screen == nil {
		cfg.Screen = nopScreen{}
	}
	if cfg.Audio == nil {
		cfg.Audio = nopAudio{}
	}
	if cfg.Resolver == nil {
		cfg.Resolver = identityResolver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = DefaultFrameRate
	}
	if cfg.AudioSyncInterval <= 0 {
		cfg.AudioSyncInterval = DefaultAudioSyncInterval
	}
	for i, s := range cfg.Surfaces {
		if s == nil {
			cfg.Surfaces[i] = NewSimSurface(cfg.Clock, func(context.Context, string) (float64, error) {
				return 0, ErrUndecodable
			}, 0)
		}
	}

	return &Engine{
		store:         store,
		arena:         NewArena(cfg.Surfaces[0], cfg.Surfaces[1]),
		screen:        cfg.Screen,
		audio:         cfg.Audio,
		resolver:      cfg.Resolver,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
		frameInterval: time.Second / time.Duration(cfg.FrameRate),
		syncInterval:  cfg.AudioSyncInterval,
		failed:        make(map[string]bool),
	}
}

func (e *Engine) Store() *timeline.Store { return e.store }

func (e *Engine) OnTimeUpdate(fn func(float64)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTimeUpdate = fn
}

func (e *Engine) OnEnded(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEnded = fn
}

func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func (e *Engine) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// SetCurrentTime is Seek under the name hosts expect.
func (e *Engine) SetCurrentTime(t float64) {
	e.Seek(t)
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := State{
		Playing:     e.playing,
		CurrentTime: e.current,
		ContentEnd:  e.store.Snapshot().ContentEnd(),
		Loading:     e.loading,
		ActiveSlot:  e.arena.ActiveIndex(),
		Surfaces:    e.arena.States(),
	}
	if e.inClip {
		st.ActiveClipID = e.active.ID
	}
	for id := range e.failed {
		st.FailedClips = append(st.FailedClips, id)
	}
	return st
}

// Play starts the frame loop from the current time. Playing from the end
// restarts at zero.
func (e *Engine) Play() {
	e.mu.Lock()
	if e.playing {
		e.mu.Unlock()
		return
	}
	end := e.store.Snapshot().ContentEnd()
	if end <= 0 {
		e.mu.Unlock()
		return
	}
	if e.current >= end {
		e.current = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.playing = true
	e.cancel = cancel
	now := e.clock.Now()
	e.lastTick = now
	e.lastSync = time.Time{}
	e.repositionLocked(e.current, true)
	t := e.current
	notify := e.onTimeUpdate
	e.mu.Unlock()

	e.logger.Info("playback started", "time", t)
	if notify != nil {
		notify(t)
	}
	go e.run(ctx)
}

// Pause stops the loop. Once Pause returns no further frame will touch the
// engine state and all audio is silent.
func (e *Engine) Pause() {
	e.mu.Lock()
	if !e.playing {
		e.mu.Unlock()
		return
	}
	e.stopLocked()
	t := e.current
	e.mu.Unlock()

	e.logger.Info("playback paused", "time", t)
}

// Seek moves the playhead. Surfaces are repositioned synchronously; the loop
// keeps running if it was.
func (e *Engine) Seek(t float64) {
	e.mu.Lock()
	tl := e.store.Snapshot()
	t = timeline.Clamp(t, 0, math.Max(tl.ContentEnd(), 0))
	e.current = t
	e.audio.HardStop()
	e.lastTick = e.clock.Now()
	e.lastSync = time.Time{}
	e.repositionLocked(t, e.playing)
	notify := e.onTimeUpdate
	e.mu.Unlock()

	if notify != nil {
		notify(t)
	}
}

func (e *Engine) run(ctx context.Context) {
	ticker := time.NewTicker(e.frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.frame(ctx)
		}
	}
}

// frame runs one loop iteration. Callbacks fire outside the lock.
func (e *Engine) frame(ctx context.Context) {
	e.mu.Lock()
	if ctx.Err() != nil || !e.playing {
		e.mu.Unlock()
		return
	}
	ev := e.tickSafe(e.clock.Now())
	notify, ended := e.onTimeUpdate, e.onEnded
	e.mu.Unlock()

	if notify != nil {
		notify(ev.time)
	}
	if ev.ended && ended != nil {
		ended()
	}
}

type tickEvent struct {
	time  float64
	ended bool
}

func (e *Engine) tickSafe(now time.Time) (ev tickEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("playback frame panicked", "error", fmt.Sprint(r), "time", e.current)
			ev = tickEvent{time: e.current}
		}
	}()
	return e.tick(now)
}

// tick advances the timeline clock by one frame. Callers hold e.mu.
func (e *Engine) tick(now time.Time) tickEvent {
	tl := e.store.Snapshot()
	video, _ := tl.Layer(timeline.KindVideo)
	end := tl.ContentEnd()

	wall := math.Max(0, now.Sub(e.lastTick).Seconds())
	e.lastTick = now

	// The active surface is the clock inside a clip; gaps, pending loads and
	// sources that ran out early fall back to wall time.
	t := e.current + wall
	if e.inClip && !e.loading {
		active := e.arena.Active()
		if live, _, ok := video.Find(e.active.ID); ok && active.Playing() {
			e.active = live
			t = live.StartTime + (active.CurrentTime() - live.Metadata.TrimStart)
		}
	}
	e.current = t

	if e.loading {
		e.pollLoadLocked()
	}

	if t >= end {
		e.finishLocked(end)
		return tickEvent{time: end, ended: true}
	}

	clip, covered := e.playableAt(video, t)
	switch {
	case covered && (!e.inClip || clip.ID != e.active.ID):
		e.audio.Stop()
		e.activateLocked(video, clip, t, true)
	case !covered && e.inClip:
		e.enterGapLocked(video, t)
	}

	if !e.loading && now.Sub(e.lastSync) >= e.syncInterval {
		e.lastSync = now
		e.audio.Sync(t, audioClipsAt(tl, t))
	}

	return tickEvent{time: t}
}

// playableAt returns the video clip at t unless it has nothing to show.
func (e *Engine) playableAt(video timeline.Layer, t float64) (timeline.Clip, bool) {
	clip, ok := video.ClipAt(t)
	if !ok || !clip.HasContent() || e.failed[clip.ID] {
		return timeline.Clip{}, false
	}
	return clip, true
}

// repositionLocked rebuilds surface state for time t from scratch.
func (e *Engine) repositionLocked(t float64, play bool) {
	e.arena.PauseAll()
	e.inClip = false
	e.loading = false

	video, _ := e.store.Snapshot().Layer(timeline.KindVideo)
	if clip, ok := e.playableAt(video, t); ok {
		e.activateLocked(video, clip, t, play)
		return
	}
	e.enterGapLocked(video, t)
}

// activateLocked makes clip the active picture, swapping in the preload
// surface when it already holds the source.
func (e *Engine) activateLocked(video timeline.Layer, clip timeline.Clip, t float64, play bool) {
	url, err := e.resolver.Resolve(clip.Content)
	if err != nil {
		e.markFailedLocked(clip, err)
		e.enterGapLocked(video, t)
		return
	}

	e.active = clip
	e.inClip = true
	offset := clip.Metadata.TrimStart + (t - clip.StartTime)

	pre := e.arena.Preload()
	if pre.Source() == url && pre.Ready() {
		e.arena.Active().Pause()
		e.arena.Swap()
		e.startSurfaceLocked(e.arena.Active(), offset, play)
	} else {
		active := e.arena.Active()
		active.Pause()
		if active.Source() != url || active.Err() != nil {
			active.Load(url)
		}
		if active.Ready() {
			e.startSurfaceLocked(active, offset, play)
		} else {
			e.loading = true
		}
	}

	e.preloadAfterLocked(video, clip.End())
}

func (e *Engine) startSurfaceLocked(s Surface, offset float64, play bool) {
	s.Seek(offset)
	if play {
		s.Play()
	}
	e.loading = false
	e.screen.Present(s)
}

// pollLoadLocked finishes a pending fresh load once the surface is ready.
func (e *Engine) pollLoadLocked() {
	active := e.arena.Active()
	if err := active.Err(); err != nil {
		e.loading = false
		e.markFailedLocked(e.active, err)
		video, _ := e.store.Snapshot().Layer(timeline.KindVideo)
		e.enterGapLocked(video, e.current)
		return
	}
	if !active.Ready() {
		return
	}
	offset := e.active.Metadata.TrimStart + (e.current - e.active.StartTime)
	e.startSurfaceLocked(active, offset, e.playing)
	e.lastSync = time.Time{}
}

func (e *Engine) enterGapLocked(video timeline.Layer, t float64) {
	e.arena.Active().Pause()
	e.inClip = false
	e.loading = false
	e.screen.Blank()
	e.preloadAfterLocked(video, t)
}

// preloadAfterLocked primes the preload surface with the first playable clip
// starting at or after t.
func (e *Engine) preloadAfterLocked(video timeline.Layer, t float64) {
	var next timeline.Clip
	found := false
	for _, c := range video.Sorted() {
		if c.StartTime < t-timeline.Epsilon || !c.HasContent() || e.failed[c.ID] {
			continue
		}
		next, found = c, true
		break
	}
	if !found {
		return
	}

	url, err := e.resolver.Resolve(next.Content)
	if err != nil {
		e.markFailedLocked(next, err)
		return
	}
	pre := e.arena.Preload()
	if pre.Source() != url {
		pre.Load(url)
	}
}

func (e *Engine) markFailedLocked(clip timeline.Clip, err error) {
	if e.failed[clip.ID] {
		return
	}
	e.failed[clip.ID] = true
	e.logger.Warn("video clip failed, treating as placeholder",
		"clip_id", clip.ID,
		"content", clip.Content,
		"error", err,
	)
}

func (e *Engine) finishLocked(end float64) {
	e.current = end
	e.stopLocked()
	e.screen.Blank()
	e.logger.Info("playback reached end", "time", end)
}

func (e *Engine) stopLocked() {
	e.playing = false
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.arena.PauseAll()
	e.audio.HardStop()
}

func audioClipsAt(tl timeline.Timeline, t float64) []timeline.Clip {
	var out []timeline.Clip
	for _, l := range tl.Layers {
		if !l.Kind.IsAudio() {
			continue
		}
		for _, c := range l.ClipsAt(t) {
			if c.HasContent() {
				out = append(out, c)
			}
		}
	}
	return out
}

type nopAudio struct{}

func (nopAudio) Sync(float64, []timeline.Clip) {}
func (nopAudio) Stop()                         {}
func (nopAudio) HardStop()                     {}

type identityResolver struct{}

func (identityResolver) Resolve(ref string) (string, error) { return ref, nil }
