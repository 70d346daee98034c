package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

var ErrUndecodable = errors.New("source has no decodable media")

// DurationFunc reports the length of a source in seconds.
type DurationFunc func(ctx context.Context, url string) (float64, error)

// SimSurface is a headless surface. It learns the source length through a
// DurationFunc and advances its position from a Clock while playing.
type SimSurface struct {
	mu      sync.Mutex
	clock   Clock
	probe   DurationFunc
	latency time.Duration

	source   string
	loadID   uint64
	loaded   bool
	readyAt  time.Time
	length   float64
	err      error
	playing  bool
	base     float64
	playedAt time.Time
	loadDone chan struct{}
}

func NewSimSurface(clock Clock, probe DurationFunc, latency time.Duration) *SimSurface {
	done := make(chan struct{})
	close(done)
	return &SimSurface{clock: clock, probe: probe, latency: latency, loadDone: done}
}

func (s *SimSurface) Load(url string) {
	s.mu.Lock()
	s.loadID++
	id := s.loadID
	s.source = url
	s.loaded = false
	s.err = nil
	s.playing = false
	s.base = 0
	s.length = 0
	s.readyAt = s.clock.Now().Add(s.latency)
	done := make(chan struct{})
	s.loadDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		length, err := s.probe(context.Background(), url)
		if err == nil && length <= 0 {
			err = fmt.Errorf("%w: %s", ErrUndecodable, url)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.loadID != id {
			return
		}
		s.length = length
		s.err = err
		s.loaded = true
	}()
}

// waitLoaded blocks until the most recent Load has finished probing.
func (s *SimSurface) waitLoaded(ctx context.Context) error {
	s.mu.Lock()
	done := s.loadDone
	s.mu.Unlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SimSurface) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

func (s *SimSurface) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyLocked()
}

func (s *SimSurface) readyLocked() bool {
	return s.loaded && s.err == nil && !s.clock.Now().Before(s.readyAt)
}

func (s *SimSurface) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *SimSurface) Seek(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = math.Max(0, seconds)
	if s.loaded {
		s.base = math.Min(s.base, s.length)
	}
	if s.playing {
		s.playedAt = s.clock.Now()
	}
}

func (s *SimSurface) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.readyLocked() || s.playing {
		return
	}
	s.playing = true
	s.playedAt = s.clock.Now()
}

func (s *SimSurface) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return
	}
	s.base = s.positionLocked()
	s.playing = false
}

func (s *SimSurface) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing && s.positionLocked() < s.length
}

func (s *SimSurface) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *SimSurface) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded && s.err == nil && s.positionLocked() >= s.length
}

func (s *SimSurface) positionLocked() float64 {
	pos := s.base
	if s.playing {
		pos += s.clock.Now().Sub(s.playedAt).Seconds()
	}
	if s.loaded {
		pos = math.Min(pos, s.length)
	}
	return pos
}
