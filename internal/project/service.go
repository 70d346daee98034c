package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/reelcut/reelcut/internal/timeline"
)

// DefaultClipDuration is used for attached media whose length is unknown
// until the probe job runs.
const DefaultClipDuration = 8.0

var (
	ErrClipNotFound = errors.New("clip not found")
	ErrNoRoom       = errors.New("no room left on the layer")
	ErrBadKind      = errors.New("unsupported layer kind")
	ErrInvalidScene = errors.New("scene index must be positive")
)

type Service struct {
	repo   Repository
	store  *timeline.Store
	logger *slog.Logger

	mu           sync.Mutex
	savedVersion uint64
	savedAt      time.Time
}

func NewService(repo Repository, store *timeline.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, store: store, logger: logger, savedVersion: store.Version()}
}

func (s *Service) Store() *timeline.Store { return s.store }

// Load replaces the store with the saved timeline, if there is one. Missing
// layers are filled in from the canonical set.
func (s *Service) Load(ctx context.Context) (bool, error) {
	tl, ok, err := s.repo.LoadTimeline(ctx)
	if err != nil {
		return false, fmt.Errorf("load timeline: %w", err)
	}
	if !ok {
		return false, nil
	}

	for _, l := range timeline.Canonical(tl.Duration).Layers {
		if _, found := tl.Layer(l.Kind); !found {
			tl.Layers = append(tl.Layers, l)
		}
	}
	if err := timeline.Validate(tl); err != nil {
		return false, fmt.Errorf("saved timeline is invalid: %w", err)
	}

	v := s.store.Replace(tl)
	s.mu.Lock()
	s.savedVersion = v
	s.mu.Unlock()

	s.logger.Info("timeline loaded", "duration", tl.Duration, "content_end", tl.ContentEnd())
	return true, nil
}

// Save writes the current timeline.
func (s *Service) Save(ctx context.Context) error {
	v := s.store.Version()
	tl := s.store.Snapshot()
	if err := s.repo.SaveTimeline(ctx, tl); err != nil {
		return fmt.Errorf("save timeline: %w", err)
	}

	s.mu.Lock()
	s.savedVersion = v
	s.savedAt = time.Now()
	s.mu.Unlock()

	s.logger.Debug("timeline saved", "version", v)
	return nil
}

// Dirty reports whether the store changed since the last load or save.
func (s *Service) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Version() != s.savedVersion
}

func (s *Service) SavedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savedAt
}

// AttachVideo puts a generated scene on the video layer. Each scene owns one
// clip; a new generation for the same scene supersedes the old clip in place.
func (s *Service) AttachVideo(ctx context.Context, scene int, asset Asset) (timeline.Clip, error) {
	if scene < 1 {
		return timeline.Clip{}, ErrInvalidScene
	}
	id := fmt.Sprintf("scene-%d", scene)

	var (
		out    timeline.Clip
		upderr error
	)
	s.store.Update(func(tl timeline.Timeline) timeline.Timeline {
		video, _ := tl.Layer(timeline.KindVideo)
		if existing, i, ok := video.Find(id); ok {
			c := existing
			c.Content = asset.URL
			c.Metadata.TrimStart = 0
			c.Metadata.OriginalDuration = nil
			if asset.Duration > 0 {
				c.Metadata.OriginalDuration = timeline.Float(asset.Duration)
				c.Duration = asset.Duration
			}
			limit := video.NextStart(c.ID, tl.Duration)
			c.Duration = math.Max(timeline.MinClipDuration, math.Min(c.Duration, limit-c.StartTime))
			video.Items[i] = c
			out = c
			return tl.WithLayer(video)
		}

		c, err := appendClip(video, id, asset, tl.Duration)
		if err != nil {
			upderr = err
			return tl
		}
		video.Items = append(video.Items, c)
		out = c
		return tl.WithLayer(video)
	})
	if upderr != nil {
		return timeline.Clip{}, upderr
	}

	s.logger.Info("video attached", "scene", scene, "clip_id", out.ID, "content", out.Content)
	s.enqueueProbe(ctx, out)
	return out, nil
}

// AttachAudio appends a generated voiceover or music clip after the last
// clip on its layer.
func (s *Service) AttachAudio(ctx context.Context, kind timeline.Kind, asset Asset) (timeline.Clip, error) {
	if !kind.IsAudio() {
		return timeline.Clip{}, fmt.Errorf("%w: %q", ErrBadKind, kind)
	}

	var (
		out    timeline.Clip
		upderr error
	)
	s.store.Update(func(tl timeline.Timeline) timeline.Timeline {
		layer, _ := tl.Layer(kind)
		c, err := appendClip(layer, string(kind)+"-"+NewID(), asset, tl.Duration)
		if err != nil {
			upderr = err
			return tl
		}
		layer.Items = append(layer.Items, c)
		out = c
		return tl.WithLayer(layer)
	})
	if upderr != nil {
		return timeline.Clip{}, upderr
	}

	s.logger.Info("audio attached", "kind", string(kind), "clip_id", out.ID, "content", out.Content)
	s.enqueueProbe(ctx, out)
	return out, nil
}

func appendClip(layer timeline.Layer, id string, asset Asset, timelineDuration float64) (timeline.Clip, error) {
	start := layer.End()
	room := timelineDuration - start
	if room < timeline.MinClipDuration-timeline.Epsilon {
		return timeline.Clip{}, fmt.Errorf("%w: %s ends at %.2fs", ErrNoRoom, layer.ID, start)
	}

	c := timeline.Clip{
		ID:        id,
		StartTime: start,
		Duration:  DefaultClipDuration,
		Content:   asset.URL,
		Kind:      layer.Kind,
	}
	if asset.Duration > 0 {
		c.Duration = asset.Duration
		c.Metadata.OriginalDuration = timeline.Float(asset.Duration)
	}
	c.Duration = math.Min(c.Duration, room)
	return c, nil
}

func (s *Service) DeleteClip(ctx context.Context, id string) error {
	found := false
	s.store.Update(func(tl timeline.Timeline) timeline.Timeline {
		layer, _, ok := tl.FindClip(id)
		if !ok {
			return tl
		}
		found = true
		items := make([]timeline.Clip, 0, len(layer.Items))
		for _, c := range layer.Items {
			if c.ID != id {
				items = append(items, c)
			}
		}
		layer.Items = items
		return tl.WithLayer(layer)
	})
	if !found {
		return fmt.Errorf("%w: %s", ErrClipNotFound, id)
	}
	s.logger.Info("clip deleted", "clip_id", id)
	return nil
}

// ReplaceLayers installs host-supplied layers after checking every
// invariant. Layers are matched by id; unknown ids are rejected.
func (s *Service) ReplaceLayers(ctx context.Context, layers []timeline.Layer) (timeline.Timeline, error) {
	next := s.store.Snapshot()
	for _, l := range layers {
		existing, ok := next.LayerByID(l.ID)
		if !ok {
			return timeline.Timeline{}, fmt.Errorf("%w: unknown layer %s", timeline.ErrBadLayer, l.ID)
		}
		l.Kind = existing.Kind
		if l.Name == "" {
			l.Name = existing.Name
		}
		for i := range l.Items {
			l.Items[i].Kind = existing.Kind
		}
		if l.Items == nil {
			l.Items = []timeline.Clip{}
		}
		next = next.WithLayer(l)
	}
	if err := timeline.Validate(next); err != nil {
		return timeline.Timeline{}, err
	}

	s.store.Replace(next)
	if _, err := s.EnqueueProbes(ctx); err != nil {
		s.logger.Warn("failed to enqueue probes", "error", err)
	}
	return next, nil
}

// EnqueueProbes creates a probe job for every clip with media but no known
// source duration.
func (s *Service) EnqueueProbes(ctx context.Context) ([]*Job, error) {
	var jobs []*Job
	for _, l := range s.store.Snapshot().Layers {
		for _, c := range l.Items {
			if !c.HasContent() || c.Metadata.OriginalDuration != nil {
				continue
			}
			j, err := s.createProbeJob(ctx, c.ID)
			if err != nil {
				return jobs, err
			}
			if j != nil {
				jobs = append(jobs, j)
			}
		}
	}
	return jobs, nil
}

func (s *Service) enqueueProbe(ctx context.Context, c timeline.Clip) {
	if !c.HasContent() || c.Metadata.OriginalDuration != nil {
		return
	}
	if _, err := s.createProbeJob(ctx, c.ID); err != nil {
		s.logger.Warn("failed to enqueue probe", "clip_id", c.ID, "error", err)
	}
}

func (s *Service) createProbeJob(ctx context.Context, clipID string) (*Job, error) {
	open, err := s.repo.HasOpenJob(ctx, JobTypeProbe, clipID)
	if err != nil || open {
		return nil, err
	}
	now := time.Now()
	job := &Job{
		ID:        NewID(),
		Type:      JobTypeProbe,
		Status:    JobStatusPending,
		ClipID:    clipID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Debug("probe job created", "job_id", job.ID, "clip_id", clipID)
	return job, nil
}

// ApplyProbe records a measured source duration on a clip. A window that no
// longer fits the source is shortened, then shifted.
func (s *Service) ApplyProbe(clipID string, seconds float64) (timeline.Clip, error) {
	if seconds <= 0 {
		return timeline.Clip{}, fmt.Errorf("probe of %s returned %.3fs", clipID, seconds)
	}

	var (
		out   timeline.Clip
		found bool
	)
	s.store.Update(func(tl timeline.Timeline) timeline.Timeline {
		layer, c, ok := tl.FindClip(clipID)
		if !ok {
			return tl
		}
		found = true
		c.Metadata.OriginalDuration = timeline.Float(seconds)
		switch {
		case seconds < timeline.MinClipDuration:
			// Too short for the minimum; the clip plays the whole source.
			c.Duration = seconds
			c.Metadata.TrimStart = 0
		case c.Metadata.TrimStart+c.Duration > seconds:
			c.Duration = math.Max(timeline.MinClipDuration, math.Min(c.Duration, seconds-c.Metadata.TrimStart))
			if c.Metadata.TrimStart+c.Duration > seconds {
				c.Metadata.TrimStart = math.Max(0, seconds-c.Duration)
			}
		}
		_, i, _ := layer.Find(clipID)
		layer.Items[i] = c
		out = c
		return tl.WithLayer(layer)
	})
	if !found {
		return timeline.Clip{}, fmt.Errorf("%w: %s", ErrClipNotFound, clipID)
	}
	return out, nil
}

func (s *Service) Jobs(ctx context.Context, limit int) ([]*Job, error) {
	return s.repo.ListJobs(ctx, limit)
}
