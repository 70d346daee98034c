// Package config provides configuration management for the agent.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
)

const (
	DefaultPort             = 8788
	DefaultLogLevel         = "info"
	DefaultDataDir          = ".reelcut"
	DefaultTimelineDuration = 65.0
	DefaultSnapThreshold    = 0.5
	DefaultFPS              = 60
	DefaultAudioSyncMs      = 100
	DefaultVoiceoverLevel   = 0.8
	DefaultMusicLevel       = 0.4
	DefaultSampleRate       = 44100
	DefaultFFprobe          = "ffprobe"
	DefaultAutosave         = "@every 30s"

	EnvPort             = "REELCUT_PORT"
	EnvLogLevel         = "REELCUT_LOG_LEVEL"
	EnvDataDir          = "REELCUT_DATA_DIR"
	EnvMediaDir         = "REELCUT_MEDIA_DIR"
	EnvTimelineDuration = "REELCUT_TIMELINE_DURATION"
	EnvSnapThreshold    = "REELCUT_SNAP_THRESHOLD"
	EnvFPS              = "REELCUT_FPS"
	EnvAudioSyncMs      = "REELCUT_AUDIO_SYNC_MS"
	EnvVoiceoverLevel   = "REELCUT_VOICEOVER_LEVEL"
	EnvMusicLevel       = "REELCUT_MUSIC_LEVEL"
	EnvSampleRate       = "REELCUT_SAMPLE_RATE"
	EnvFFprobe          = "REELCUT_FFPROBE"
	EnvAutosave         = "REELCUT_AUTOSAVE"
	EnvGeneratorURL     = "REELCUT_GENERATOR_URL"
	EnvGeneratorToken   = "REELCUT_GENERATOR_TOKEN"
	EnvHeadless         = "REELCUT_HEADLESS"

	DBFilename = "reelcut.db"
)

type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	MediaDir() string
	TimelineDuration() float64
	SnapThreshold() float64
	FPS() int
	AudioSyncInterval() time.Duration
	VoiceoverLevel() float64
	MusicLevel() float64
	SampleRate() int
	FFprobePath() string
	AutosaveSchedule() string
	GeneratorURL() string
	GeneratorToken() string
	Headless() bool
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port             int
	logLevel         string
	dataDir          string
	mediaDir         string
	timelineDuration float64
	snapThreshold    float64
	fps              int
	audioSyncMs      int
	voiceoverLevel   float64
	musicLevel       float64
	sampleRate       int
	ffprobe          string
	autosave         string
	generatorURL     string
	generatorToken   string
	headless         bool
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:             DefaultPort,
		logLevel:         DefaultLogLevel,
		dataDir:          defaultDataDir(),
		timelineDuration: DefaultTimelineDuration,
		snapThreshold:    DefaultSnapThreshold,
		fps:              DefaultFPS,
		audioSyncMs:      DefaultAudioSyncMs,
		voiceoverLevel:   DefaultVoiceoverLevel,
		musicLevel:       DefaultMusicLevel,
		sampleRate:       DefaultSampleRate,
		ffprobe:          DefaultFFprobe,
		autosave:         DefaultAutosave,
	}

	var err error
	if cfg.port, err = envInt(EnvPort, cfg.port, 1, 65535); err != nil {
		return nil, err
	}
	if cfg.fps, err = envInt(EnvFPS, cfg.fps, 1, 240); err != nil {
		return nil, err
	}
	if cfg.audioSyncMs, err = envInt(EnvAudioSyncMs, cfg.audioSyncMs, 10, 5000); err != nil {
		return nil, err
	}
	if cfg.sampleRate, err = envInt(EnvSampleRate, cfg.sampleRate, 8000, 192000); err != nil {
		return nil, err
	}
	if cfg.timelineDuration, err = envFloat(EnvTimelineDuration, cfg.timelineDuration, 1, 24*60*60); err != nil {
		return nil, err
	}
	if cfg.snapThreshold, err = envFloat(EnvSnapThreshold, cfg.snapThreshold, 0, 10); err != nil {
		return nil, err
	}
	if cfg.voiceoverLevel, err = envFloat(EnvVoiceoverLevel, cfg.voiceoverLevel, 0, 1); err != nil {
		return nil, err
	}
	if cfg.musicLevel, err = envFloat(EnvMusicLevel, cfg.musicLevel, 0, 1); err != nil {
		return nil, err
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}
	cfg.mediaDir = os.Getenv(EnvMediaDir)
	if fp := os.Getenv(EnvFFprobe); fp != "" {
		cfg.ffprobe = fp
	}
	if as := os.Getenv(EnvAutosave); as != "" {
		cfg.autosave = as
	}
	cfg.generatorURL = strings.TrimRight(os.Getenv(EnvGeneratorURL), "/")
	cfg.generatorToken = os.Getenv(EnvGeneratorToken)

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := cast.ToBoolE(h)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = headless
	}

	return cfg, nil
}

func envInt(name string, def, lo, hi int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("invalid %s: must be between %d and %d", name, lo, hi)
	}
	return v, nil
}

func envFloat(name string, def, lo, hi float64) (float64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("invalid %s: must be between %g and %g", name, lo, hi)
	}
	return v, nil
}

func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// MediaDir is where generated and imported media live. Defaults to
// <data dir>/media.
func (c *EnvConfig) MediaDir() string {
	if c.mediaDir != "" {
		return c.mediaDir
	}
	return filepath.Join(c.dataDir, "media")
}

func (c *EnvConfig) TimelineDuration() float64 {
	return c.timelineDuration
}

func (c *EnvConfig) SnapThreshold() float64 {
	return c.snapThreshold
}

func (c *EnvConfig) FPS() int {
	return c.fps
}

func (c *EnvConfig) AudioSyncInterval() time.Duration {
	return time.Duration(c.audioSyncMs) * time.Millisecond
}

func (c *EnvConfig) VoiceoverLevel() float64 {
	return c.voiceoverLevel
}

func (c *EnvConfig) MusicLevel() float64 {
	return c.musicLevel
}

func (c *EnvConfig) SampleRate() int {
	return c.sampleRate
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobe
}

func (c *EnvConfig) AutosaveSchedule() string {
	return c.autosave
}

func (c *EnvConfig) GeneratorURL() string {
	return c.generatorURL
}

func (c *EnvConfig) GeneratorToken() string {
	return c.generatorToken
}

// Headless disables the system tray.
func (c *EnvConfig) Headless() bool {
	return c.headless
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
