package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/gopxl/beep"

	"github.com/reelcut/reelcut/internal/api"
	"github.com/reelcut/reelcut/internal/config"
	"github.com/reelcut/reelcut/internal/db"
	"github.com/reelcut/reelcut/internal/generate"
	"github.com/reelcut/reelcut/internal/interaction"
	"github.com/reelcut/reelcut/internal/logging"
	"github.com/reelcut/reelcut/internal/media"
	"github.com/reelcut/reelcut/internal/playback"
	"github.com/reelcut/reelcut/internal/project"
	"github.com/reelcut/reelcut/internal/timeline"
	"github.com/reelcut/reelcut/internal/ui"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.MediaDir(), 0755); err != nil {
		return fmt.Errorf("failed to create media dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting reelcut", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := project.NewRepository(database.Conn())

	deviceID, err := ensureDeviceID(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}
	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Port())
	fmt.Println()
	fmt.Printf("  Reelcut %s\n", config.Version)
	fmt.Printf("  API URL:    %s\n", baseURL)
	fmt.Printf("  Auth Token: %s\n", authToken)
	fmt.Printf("  Media Dir:  %s\n", cfg.MediaDir())
	fmt.Println()

	store := timeline.NewStore(timeline.Canonical(cfg.TimelineDuration()))
	service := project.NewService(repo, store, logger)
	if loaded, err := service.Load(context.Background()); err != nil {
		// Keep the empty timeline rather than refuse to start.
		logger.Error("failed to load saved timeline", "error", err)
	} else if loaded {
		logger.Info("restored saved timeline")
	}

	resolver := media.NewResolver(baseURL, cfg.MediaDir())
	prober := media.NewProber(media.ExecFFprobe{Path: cfg.FFprobePath()}, resolver, logging.WithComponent(logger, "probe"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	format := beep.Format{SampleRate: beep.SampleRate(cfg.SampleRate()), NumChannels: 2, Precision: 2}
	device := playback.NewPullDevice(format)
	go device.Run(ctx, 10*time.Millisecond)

	buffers := playback.NewBufferCache(playback.HTTPOpener{Client: &http.Client{Timeout: time.Minute}}, format, logger)
	mixer := playback.NewMixer(playback.MixerConfig{
		Device:   device,
		Buffers:  buffers,
		Resolver: resolver,
		Format:   format,
		Levels:   playback.Levels{Voiceover: cfg.VoiceoverLevel(), Music: cfg.MusicLevel()},
		Logger:   logging.WithComponent(logger, "mixer"),
	})
	defer mixer.Close()

	engine := playback.NewEngine(store, playback.Config{
		Surfaces: [2]playback.Surface{
			playback.NewSimSurface(playback.SystemClock{}, prober.Duration, 0),
			playback.NewSimSurface(playback.SystemClock{}, prober.Duration, 0),
		},
		Audio:             mixer,
		Resolver:          resolver,
		FrameRate:         cfg.FPS(),
		AudioSyncInterval: cfg.AudioSyncInterval(),
		Logger:            logging.WithComponent(logger, "playback"),
	})

	controller := interaction.NewController(store, cfg.SnapThreshold(), logging.WithComponent(logger, "interaction"))
	controller.SetPlaybackGuard(engine.IsPlaying)

	hub := api.NewEventHub(logger)
	engine.OnTimeUpdate(hub.BroadcastTime)
	engine.OnEnded(func() {
		hub.Broadcast(api.EventEnded, engine.State())
	})
	store.Subscribe(func(tl timeline.Timeline, version uint64) {
		hub.Broadcast(api.EventTimeline, map[string]any{"version": version, "contentEnd": tl.ContentEnd()})
		go prefetchAudio(ctx, buffers, resolver, tl, logger)
	})
	go prefetchAudio(ctx, buffers, resolver, store.Snapshot(), logger)

	runner := project.NewRunner(service, repo, prober, logging.WithComponent(logger, "runner"))
	runner.SetGate(func() bool { return controller.State() == interaction.StateIdle })
	runner.SetWriteGuard(controller.WhenIdle)
	if _, err := service.EnqueueProbes(ctx); err != nil {
		logger.Warn("failed to enqueue probes", "error", err)
	}
	go runner.Start(ctx)

	autosave, err := project.NewAutosave(service, cfg.AutosaveSchedule(), logger)
	if err != nil {
		return err
	}
	autosave.Start()

	var generator generate.Client
	if cfg.GeneratorURL() != "" {
		hc := generate.NewHTTPClient(cfg.GeneratorURL(), cfg.GeneratorToken(), logger)
		hc.SetDeviceID(deviceID)
		generator = hc
		logger.Info("media generator enabled", "base_url", cfg.GeneratorURL())
	} else {
		generator = generate.NewStubClient(logger)
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:       cfg.Port(),
		Service:    service,
		Repository: repo,
		Runner:     runner,
		Controller: controller,
		Engine:     engine,
		Generator:  generator,
		Media:      media.NewFileServer(cfg.MediaDir(), logger),
		Resolver:   resolver,
		Events:     hub,
		FrameRate:  float64(cfg.FPS()),
		Logger:     logger,
		StartTime:  startTime,
		DeviceID:   deviceID,
		Version:    config.Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Player:  engine,
			Runner:  runner,
			Service: service,
			Logger:  logger,
			Gate:    controller.WhenIdle,
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	engine.Pause()
	autosave.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	if service.Dirty() {
		if err := service.Save(shutdownCtx); err != nil {
			logger.Error("failed to save timeline on exit", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// prefetchAudio decodes every voiceover and music source so playback does
// not wait on the first decode.
func prefetchAudio(ctx context.Context, buffers *playback.BufferCache, resolver *media.Resolver, tl timeline.Timeline, logger *slog.Logger) {
	var urls []string
	seen := map[string]bool{}
	for _, l := range tl.Layers {
		if !l.Kind.IsAudio() {
			continue
		}
		for _, c := range l.Items {
			if !c.HasContent() {
				continue
			}
			u, err := resolver.Resolve(c.Content)
			if err != nil || seen[u] {
				continue
			}
			seen[u] = true
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return
	}
	if err := buffers.Prefetch(ctx, urls); err != nil && ctx.Err() == nil {
		logger.Warn("audio prefetch failed", "error", err)
	}
}

// ensureDeviceID prefers the hashed machine id and falls back to a random
// one where the platform does not expose it.
func ensureDeviceID(repo project.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, project.ConfigDeviceID)
	if err == nil && existing != "" {
		return existing, nil
	}

	deviceID, err := machineid.ProtectedID("reelcut")
	if err != nil || deviceID == "" {
		idBytes := make([]byte, 16)
		if _, err := rand.Read(idBytes); err != nil {
			return "", err
		}
		deviceID = hex.EncodeToString(idBytes)
	}

	if err := repo.SetConfig(ctx, project.ConfigDeviceID, deviceID); err != nil {
		return "", err
	}
	return deviceID, nil
}

func ensureAuthToken(repo project.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, project.ConfigAuthToken)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, project.ConfigAuthToken, token); err != nil {
		return "", err
	}
	return token, nil
}
