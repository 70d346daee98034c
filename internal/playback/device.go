package playback

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
)

// Device is the audio output the mixer renders into.
type Device interface {
	// Resume makes sure the output is running. It may block.
	Resume(ctx context.Context) error
	// Attach replaces the streamer the device pulls from.
	Attach(s beep.Streamer)
	Lock()
	Unlock()
}

// PullDevice is an output without hardware. Samples are pulled either by
// Run, which drains in real time, or directly with Read.
type PullDevice struct {
	mu     sync.Mutex
	format beep.Format
	root   beep.Streamer
	peak   float64
	resume func(ctx context.Context) error
}

func NewPullDevice(format beep.Format) *PullDevice {
	return &PullDevice{format: format}
}

// SetResumeHook installs a function Resume calls before returning.
func (d *PullDevice) SetResumeHook(fn func(ctx context.Context) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resume = fn
}

func (d *PullDevice) Resume(ctx context.Context) error {
	d.mu.Lock()
	fn := d.resume
	d.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return ctx.Err()
}

func (d *PullDevice) Attach(s beep.Streamer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.root = s
}

func (d *PullDevice) Lock()   { d.mu.Lock() }
func (d *PullDevice) Unlock() { d.mu.Unlock() }

// Read renders n frames from the attached streamer.
func (d *PullDevice) Read(n int) [][2]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readLocked(n)
}

func (d *PullDevice) readLocked(n int) [][2]float64 {
	buf := make([][2]float64, n)
	if d.root == nil {
		return buf
	}
	filled, _ := d.root.Stream(buf)
	for i := filled; i < n; i++ {
		buf[i] = [2]float64{}
	}
	peak := 0.0
	for _, s := range buf {
		peak = math.Max(peak, math.Max(math.Abs(s[0]), math.Abs(s[1])))
	}
	d.peak = peak
	return buf
}

// Peak returns the loudest sample of the last read.
func (d *PullDevice) Peak() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peak
}

// Run drains the device at the output sample rate until ctx is done.
func (d *PullDevice) Run(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = 10 * time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	n := d.format.SampleRate.N(period)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Read(n)
		}
	}
}
