package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-audio/wav"
)

var ErrNoDuration = errors.New("source reports no duration")

// ProbeResult is the subset of ffprobe's JSON output the agent reads.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

type ProbeFormat struct {
	Filename string `json:"filename"`
	Duration string `json:"duration"`
}

type ProbeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Duration  string `json:"duration"`
}

// Seconds returns the container duration, falling back to the longest
// stream when the container does not report one.
func (r *ProbeResult) Seconds() (float64, error) {
	if d, err := strconv.ParseFloat(r.Format.Duration, 64); err == nil && d > 0 {
		return d, nil
	}
	best := 0.0
	for _, s := range r.Streams {
		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil && d > best {
			best = d
		}
	}
	if best <= 0 {
		return 0, ErrNoDuration
	}
	return best, nil
}

func (r *ProbeResult) HasVideo() bool {
	for _, s := range r.Streams {
		if s.CodecType == "video" {
			return true
		}
	}
	return false
}

type FFprobe interface {
	Probe(ctx context.Context, target string) (*ProbeResult, error)
}

// ExecFFprobe shells out to an ffprobe binary.
type ExecFFprobe struct {
	Path string
}

func (f ExecFFprobe) Probe(ctx context.Context, target string) (*ProbeResult, error) {
	bin := f.Path
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin, "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", target)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &result, nil
}

// Prober measures source durations. Local WAV files are read directly;
// everything else goes through ffprobe.
type Prober struct {
	ffprobe  FFprobe
	resolver *Resolver
	logger   *slog.Logger
}

func NewProber(ffprobe FFprobe, resolver *Resolver, logger *slog.Logger) *Prober {
	return &Prober{ffprobe: ffprobe, resolver: resolver, logger: logger}
}

// Duration returns the source length in seconds.
func (p *Prober) Duration(ctx context.Context, ref string) (float64, error) {
	target := ref
	if p.resolver != nil {
		if local, ok := p.resolver.LocalPath(ref); ok {
			target = local
		} else if resolved, err := p.resolver.Resolve(ref); err == nil {
			target = resolved
		} else {
			return 0, err
		}
	}

	if strings.EqualFold(filepath.Ext(target), ".wav") && !strings.Contains(target, "://") {
		return wavDuration(target)
	}
	if p.ffprobe == nil {
		return 0, fmt.Errorf("no prober for %s", target)
	}
	res, err := p.ffprobe.Probe(ctx, target)
	if err != nil {
		return 0, err
	}
	return res.Seconds()
}

// ProbeDuration never fails: errors are logged and fallback is returned.
func (p *Prober) ProbeDuration(ctx context.Context, ref string, fallback float64) float64 {
	d, err := p.Duration(ctx, ref)
	if err != nil {
		p.logger.Warn("duration probe failed, using fallback",
			"ref", ref,
			"fallback", fallback,
			"error", err,
		)
		return fallback
	}
	return d
}

func wavDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("%s is not a valid WAV file", path)
	}
	d, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("read WAV duration: %w", err)
	}
	if d <= 0 {
		return 0, ErrNoDuration
	}
	return d.Seconds(), nil
}
