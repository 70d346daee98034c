package playback

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"

	"github.com/reelcut/reelcut/internal/timeline"
)

// Levels are the linear gains applied per audio layer kind.
type Levels struct {
	Voiceover float64
	Music     float64
}

func DefaultLevels() Levels {
	return Levels{Voiceover: 0.8, Music: 0.4}
}

func (l Levels) For(kind timeline.Kind) float64 {
	switch kind {
	case timeline.KindVoiceover:
		return l.Voiceover
	case timeline.KindMusic:
		return l.Music
	default:
		return 1
	}
}

type MixerConfig struct {
	Device   Device
	Buffers  BufferSource
	Resolver URLResolver
	Clock    Clock
	Format   beep.Format
	Levels   Levels
	Logger   *slog.Logger
}

type voice struct {
	clip timeline.Clip
	ctrl *beep.Ctrl
	gain *effects.Gain
}

// Mixer schedules one voice per covered audio clip onto a beep mixer.
//
// Starting a voice is asynchronous (device resume, buffer decode). Every
// start is tagged with the generation it was requested in; Stop and HardStop
// bump the generation and cancel the epoch context, so a start that finishes
// afterwards drops its result instead of producing sound.
type Mixer struct {
	mu       sync.Mutex
	device   Device
	buffers  BufferSource
	resolver URLResolver
	clock    Clock
	format   beep.Format
	levels   Levels
	logger   *slog.Logger

	root     *beep.Mixer
	voices   map[string]*voice
	starting map[string]uint64
	gen      uint64
	epoch    context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

func NewMixer(cfg MixerConfig) *Mixer {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Resolver == nil {
		cfg.Resolver = identityResolver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Levels == (Levels{}) {
		cfg.Levels = DefaultLevels()
	}

	m := &Mixer{
		device:   cfg.Device,
		buffers:  cfg.Buffers,
		resolver: cfg.Resolver,
		clock:    cfg.Clock,
		format:   cfg.Format,
		levels:   cfg.Levels,
		logger:   cfg.Logger,
		root:     &beep.Mixer{},
		voices:   make(map[string]*voice),
		starting: make(map[string]uint64),
		gen:      1,
	}
	m.epoch, m.cancel = context.WithCancel(context.Background())
	m.device.Attach(m.root)
	return m
}

// Sync starts voices for newly covered clips and silences voices whose clip
// is no longer covered at t.
func (m *Mixer) Sync(t float64, covered []timeline.Clip) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[string]timeline.Clip, len(covered))
	for _, c := range covered {
		want[c.ID] = c
	}

	for id, v := range m.voices {
		if _, ok := want[id]; !ok {
			m.silenceLocked(v)
			delete(m.voices, id)
		}
	}
	for id := range m.starting {
		if _, ok := want[id]; !ok {
			delete(m.starting, id)
		}
	}

	requested := m.clock.Now()
	for _, c := range covered {
		if _, ok := m.voices[c.ID]; ok {
			continue
		}
		if _, ok := m.starting[c.ID]; ok {
			continue
		}
		m.starting[c.ID] = m.gen
		m.inflight.Add(1)
		go m.start(m.epoch, m.gen, c, t, requested)
	}
}

// Stop silences every voice and invalidates pending starts.
func (m *Mixer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// HardStop is Stop plus a fresh output graph.
func (m *Mixer) HardStop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	m.root = &beep.Mixer{}
	m.device.Attach(m.root)
}

func (m *Mixer) stopLocked() {
	m.cancel()
	m.epoch, m.cancel = context.WithCancel(context.Background())
	m.gen++
	for id, v := range m.voices {
		m.silenceLocked(v)
		delete(m.voices, id)
	}
	clear(m.starting)
}

func (m *Mixer) silenceLocked(v *voice) {
	m.device.Lock()
	v.gain.Gain = -1
	v.ctrl.Streamer = nil
	m.device.Unlock()
}

// Voices lists the clip IDs currently sounding, sorted.
func (m *Mixer) Voices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.voices))
	for id := range m.voices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Pending reports how many voice starts are still in flight.
func (m *Mixer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.starting)
}

// Wait blocks until all start goroutines have returned.
func (m *Mixer) Wait() {
	m.inflight.Wait()
}

func (m *Mixer) Close() {
	m.HardStop()
	m.Wait()
}

func (m *Mixer) start(ctx context.Context, gen uint64, clip timeline.Clip, t float64, requested time.Time) {
	defer m.inflight.Done()
	logger := m.logger.With("clip_id", clip.ID, "kind", string(clip.Kind))

	if err := m.device.Resume(ctx); err != nil {
		m.abandon(clip.ID, gen)
		if ctx.Err() == nil {
			logger.Warn("audio device resume failed", "error", err)
		}
		return
	}

	url, err := m.resolver.Resolve(clip.Content)
	if err != nil {
		m.abandon(clip.ID, gen)
		logger.Warn("audio clip unresolvable", "content", clip.Content, "error", err)
		return
	}

	buf, err := m.buffers.Get(ctx, url)
	if err != nil {
		m.abandon(clip.ID, gen)
		if ctx.Err() == nil {
			logger.Warn("audio clip skipped", "url", url, "error", err)
		}
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil || m.gen != gen || m.starting[clip.ID] != gen {
		return
	}
	delete(m.starting, clip.ID)

	elapsed := m.clock.Now().Sub(requested).Seconds()
	offset := clip.Metadata.TrimStart + (t - clip.StartTime) + math.Max(0, elapsed)
	from := m.format.SampleRate.N(time.Duration(offset * float64(time.Second)))
	to := m.format.SampleRate.N(time.Duration((clip.Metadata.TrimStart + clip.Duration) * float64(time.Second)))
	if to > buf.Len() {
		to = buf.Len()
	}
	if from < 0 {
		from = 0
	}
	if from >= to {
		logger.Debug("audio clip already past its source", "offset", offset)
		return
	}

	ctrl := &beep.Ctrl{Streamer: buf.Streamer(from, to)}
	gain := &effects.Gain{Streamer: ctrl, Gain: m.levels.For(clip.Kind) - 1}
	m.device.Lock()
	m.root.Add(gain)
	m.device.Unlock()

	m.voices[clip.ID] = &voice{clip: clip, ctrl: ctrl, gain: gain}
	logger.Debug("audio voice started", "offset", offset)
}

// abandon clears a start marker, but only if it still belongs to gen.
func (m *Mixer) abandon(clipID string, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.starting[clipID] == gen {
		delete(m.starting, clipID)
	}
}
