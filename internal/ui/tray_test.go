package ui

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/reelcut/reelcut/internal/playback"
)

func TestClockTime(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0:00.0"},
		{-3, "0:00.0"},
		{5.04, "0:05.0"},
		{5.06, "0:05.1"},
		{59.96, "1:00.0"},
		{65, "1:05.0"},
		{754.3, "12:34.3"},
	}
	for _, tt := range tests {
		if got := clockTime(tt.in); got != tt.want {
			t.Errorf("clockTime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatusTitle(t *testing.T) {
	got := statusTitle(playback.State{CurrentTime: 2.5, ContentEnd: 30})
	if got != "0:02.5 / 0:30.0" {
		t.Errorf("statusTitle = %q", got)
	}
	if playTitle(true) != "Pause" || playTitle(false) != "Play" {
		t.Error("playTitle mismatch")
	}
}

func TestIconIsPNG(t *testing.T) {
	img, err := png.Decode(bytes.NewReader(iconBytes))
	if err != nil {
		t.Fatalf("icon is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 22 || b.Dy() != 22 {
		t.Errorf("icon bounds = %v", b)
	}
}

type fakePlayer struct{ playing bool }

func (p *fakePlayer) Play()                 { p.playing = true }
func (p *fakePlayer) Pause()                { p.playing = false }
func (p *fakePlayer) IsPlaying() bool       { return p.playing }
func (p *fakePlayer) State() playback.State { return playback.State{Playing: p.playing} }

func TestTrayPlay_Gate(t *testing.T) {
	busy := true
	gate := func(fn func()) bool {
		if busy {
			return false
		}
		fn()
		return true
	}
	p := &fakePlayer{}
	tray := NewTray(TrayConfig{Player: p, Gate: gate})

	if tray.play() || p.playing {
		t.Fatal("play went through while the gate was closed")
	}
	busy = false
	if !tray.play() || !p.playing {
		t.Error("play refused with the gate open")
	}

	ungated := NewTray(TrayConfig{Player: &fakePlayer{}})
	if !ungated.play() {
		t.Error("play refused without a gate")
	}
}
