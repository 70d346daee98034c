package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/reelcut/reelcut/internal/playback"
	"github.com/reelcut/reelcut/internal/project"
)

// Player is the part of the playback engine the tray drives.
type Player interface {
	Play()
	Pause()
	IsPlaying() bool
	State() playback.State
}

type Tray struct {
	player  Player
	runner  *project.Runner
	service *project.Service
	logger  *slog.Logger
	gate    func(fn func()) bool

	timeItem   *systray.MenuItem
	playItem   *systray.MenuItem
	pauseItem  *systray.MenuItem

	mu sync.Mutex

	onQuit func()
	stop   chan struct{}
}

type TrayConfig struct {
	Player  Player
	Runner  *project.Runner
	Service *project.Service
	Logger  *slog.Logger
	OnQuit  func()

	// Gate, when set, runs Play only while no gesture is active.
	Gate func(fn func()) bool
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		player:  cfg.Player,
		runner:  cfg.Runner,
		service: cfg.Service,
		logger:  cfg.Logger,
		gate:    cfg.Gate,
		onQuit:  cfg.OnQuit,
		stop:    make(chan struct{}),
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Reelcut")
	systray.SetTooltip("Reelcut timeline engine")

	t.timeItem = systray.AddMenuItem(statusTitle(t.player.State()), "Playhead position")
	t.timeItem.Disable()

	systray.AddSeparator()

	t.playItem = systray.AddMenuItem("Play", "Play or pause the timeline")
	saveItem := systray.AddMenuItem("Save Now", "Write the timeline to disk")
	t.pauseItem = systray.AddMenuItem("Pause Probing", "Pause media probe jobs")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Reelcut")

	go t.refresh()

	go func() {
		for {
			select {
			case <-t.playItem.ClickedCh:
				t.togglePlay()
			case <-saveItem.ClickedCh:
				t.saveNow()
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	close(t.stop)
	t.logger.Info("system tray exiting")
}

// refresh keeps the time line and play label in step with the engine.
func (t *Tray) refresh() {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			st := t.player.State()
			t.mu.Lock()
			t.timeItem.SetTitle(statusTitle(st))
			t.playItem.SetTitle(playTitle(st.Playing))
			t.mu.Unlock()
		}
	}
}

func (t *Tray) togglePlay() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.player.IsPlaying() {
		t.player.Pause()
	} else if !t.play() {
		t.logger.Info("play refused while a gesture is active")
	}
	t.playItem.SetTitle(playTitle(t.player.IsPlaying()))
}

func (t *Tray) play() bool {
	if t.gate == nil {
		t.player.Play()
		return true
	}
	return t.gate(t.player.Play)
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner == nil {
		return
	}

	if t.runner.IsPaused() {
		t.runner.Resume()
		t.pauseItem.SetTitle("Pause Probing")
	} else {
		t.runner.Pause()
		t.pauseItem.SetTitle("Resume Probing")
	}
}

func (t *Tray) saveNow() {
	if t.service == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.service.Save(ctx); err != nil {
		t.logger.Error("failed to save from tray", "error", err)
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}

func playTitle(playing bool) string {
	if playing {
		return "Pause"
	}
	return "Play"
}

func statusTitle(st playback.State) string {
	return fmt.Sprintf("%s / %s", clockTime(st.CurrentTime), clockTime(st.ContentEnd))
}

// clockTime renders seconds as m:ss.t.
func clockTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	tenths := int(seconds*10 + 0.5)
	return fmt.Sprintf("%d:%02d.%d", tenths/600, (tenths/10)%60, tenths%10)
}
