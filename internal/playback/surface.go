package playback

// Surface is a single video decoder/renderer. Loading is asynchronous:
// callers poll Ready and Err rather than block.
type Surface interface {
	Load(url string)
	Source() string
	Ready() bool
	Err() error
	Seek(seconds float64)
	Play()
	Pause()
	Playing() bool
	CurrentTime() float64
	Ended() bool
}

// Screen shows the picture of one surface, or nothing.
type Screen interface {
	Present(s Surface)
	Blank()
}

type nopScreen struct{}

func (nopScreen) Present(Surface) {}
func (nopScreen) Blank()          {}

// Arena holds the active and preload surfaces. Swapping flips the index.
type Arena struct {
	slots  [2]Surface
	active int
}

func NewArena(a, b Surface) *Arena {
	return &Arena{slots: [2]Surface{a, b}}
}

func (a *Arena) Active() Surface  { return a.slots[a.active] }
func (a *Arena) Preload() Surface { return a.slots[1-a.active] }
func (a *Arena) ActiveIndex() int { return a.active }
func (a *Arena) Swap()            { a.active = 1 - a.active }

func (a *Arena) PauseAll() {
	for _, s := range a.slots {
		s.Pause()
	}
}

// SurfaceState is a read-only view of one arena slot.
type SurfaceState struct {
	Source  string  `json:"source"`
	Ready   bool    `json:"ready"`
	Playing bool    `json:"playing"`
	Time    float64 `json:"time"`
	Active  bool    `json:"active"`
	Error   string  `json:"error,omitempty"`
}

func (a *Arena) States() [2]SurfaceState {
	var out [2]SurfaceState
	for i, s := range a.slots {
		out[i] = SurfaceState{
			Source:  s.Source(),
			Ready:   s.Ready(),
			Playing: s.Playing(),
			Time:    s.CurrentTime(),
			Active:  i == a.active,
		}
		if err := s.Err(); err != nil {
			out[i].Error = err.Error()
		}
	}
	return out
}
