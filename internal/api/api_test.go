package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/reelcut/reelcut/internal/db"
	"github.com/reelcut/reelcut/internal/generate"
	"github.com/reelcut/reelcut/internal/interaction"
	"github.com/reelcut/reelcut/internal/media"
	"github.com/reelcut/reelcut/internal/playback"
	"github.com/reelcut/reelcut/internal/project"
	"github.com/reelcut/reelcut/internal/timeline"
)

const testToken = "test-token-0123456789"

type fakeGenerator struct {
	out generate.Output
	err error
	got generate.Request
}

func (f *fakeGenerator) Generate(ctx context.Context, req generate.Request) (generate.Output, error) {
	f.got = req
	return f.out, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConfig(t *testing.T) ServerConfig {
	t.Helper()
	logger := testLogger()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := project.NewRepository(database.Conn())
	if err := repo.SetConfig(context.Background(), project.ConfigAuthToken, testToken); err != nil {
		t.Fatal(err)
	}

	store := timeline.NewStore(timeline.Canonical(65))
	svc := project.NewService(repo, store, logger)
	ctrl := interaction.NewController(store, 0.5, logger)
	engine := playback.NewEngine(store, playback.Config{FrameRate: 30, Logger: logger})
	ctrl.SetPlaybackGuard(engine.IsPlaying)
	t.Cleanup(engine.Pause)

	mediaDir := t.TempDir()
	return ServerConfig{
		Service:    svc,
		Repository: repo,
		Runner:     project.NewRunner(svc, repo, nil, logger),
		Controller: ctrl,
		Engine:     engine,
		Generator:  generate.NewStubClient(logger),
		Media:      media.NewFileServer(mediaDir, logger),
		Resolver:   media.NewResolver("http://127.0.0.1:8788", mediaDir),
		Events:     NewEventHub(logger),
		FrameRate:  30,
		Logger:     logger,
		StartTime:  time.Now(),
		DeviceID:   "dev-test",
	}
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestAuth(t *testing.T) {
	h := NewRouter(newTestConfig(t))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + testToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestHealth_NoAuth(t *testing.T) {
	h := NewRouter(newTestConfig(t))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeJSON[HealthResponse](t, rr)
	if body.Status != "ok" || body.DeviceID != "dev-test" {
		t.Errorf("health = %+v", body)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestTimelineCRUD(t *testing.T) {
	cfg := newTestConfig(t)
	h := NewRouter(cfg)

	rr := doRequest(t, h, http.MethodGet, "/timeline", nil)
	got := decodeJSON[TimelineResponse](t, rr)
	if len(got.Timeline.Layers) != 3 || got.Timeline.Duration != 65 {
		t.Fatalf("initial timeline = %+v", got.Timeline)
	}

	rr = doRequest(t, h, http.MethodPost, "/timeline/clips", AddClipRequest{
		Kind: timeline.KindVideo, Scene: 1, URL: "media://one.mp4", Duration: 8,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add clip status = %d: %s", rr.Code, rr.Body.String())
	}
	added := decodeJSON[ClipResponse](t, rr)
	if added.Clip.ID != "scene-1" || added.Clip.Duration != 8 {
		t.Errorf("added clip = %+v", added.Clip)
	}

	rr = doRequest(t, h, http.MethodPost, "/timeline/clips", AddClipRequest{Kind: "sfx", URL: "x"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad kind status = %d, want 400", rr.Code)
	}

	rr = doRequest(t, h, http.MethodDelete, "/timeline/clips/scene-1", nil)
	if rr.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rr.Code)
	}
	rr = doRequest(t, h, http.MethodDelete, "/timeline/clips/scene-1", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rr.Code)
	}
}

func TestPutTimeline_RejectsOverlap(t *testing.T) {
	h := NewRouter(newTestConfig(t))

	rr := doRequest(t, h, http.MethodPut, "/timeline", PutTimelineRequest{Layers: []timeline.Layer{{
		ID: "layer-music",
		Items: []timeline.Clip{
			{ID: "a", StartTime: 0, Duration: 10},
			{ID: "b", StartTime: 5, Duration: 10},
		},
	}}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rr.Code, rr.Body.String())
	}
	if body := decodeJSON[ErrorResponse](t, rr); body.Code != "INVALID_TIMELINE" {
		t.Errorf("code = %s", body.Code)
	}
}

func TestGestureFlow(t *testing.T) {
	cfg := newTestConfig(t)
	h := NewRouter(cfg)

	doRequest(t, h, http.MethodPost, "/timeline/clips", AddClipRequest{
		Kind: timeline.KindVideo, Scene: 1, URL: "media://one.mp4", Duration: 8,
	})

	rr := doRequest(t, h, http.MethodPost, "/gestures/resize", ResizeRequest{
		LayerID: "layer-video", ClipID: "scene-1", Handle: interaction.HandleEnd, X: 400, PxPerSecond: 50,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("begin resize status = %d: %s", rr.Code, rr.Body.String())
	}

	// Host writes wait for the gesture.
	rr = doRequest(t, h, http.MethodDelete, "/timeline/clips/scene-1", nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("delete during gesture status = %d, want 409", rr.Code)
	}
	rr = doRequest(t, h, http.MethodPost, "/gestures/drag", DragRequest{LayerID: "layer-video", ClipID: "scene-1"})
	if rr.Code != http.StatusConflict {
		t.Errorf("second gesture status = %d, want 409", rr.Code)
	}
	rr = doRequest(t, h, http.MethodPost, "/playback/play", nil)
	if rr.Code != http.StatusConflict || cfg.Engine.IsPlaying() {
		t.Errorf("play during gesture status = %d, playing = %v; want 409 and stopped", rr.Code, cfg.Engine.IsPlaying())
	}

	rr = doRequest(t, h, http.MethodPost, "/gestures/move", PointerRequest{X: 300})
	if rr.Code != http.StatusOK {
		t.Fatalf("move status = %d", rr.Code)
	}
	rr = doRequest(t, h, http.MethodPost, "/gestures/end", PointerRequest{X: 300})
	fb := decodeJSON[interaction.Feedback](t, rr)
	if fb.State != interaction.StateIdle || fb.Duration != 6 {
		t.Errorf("end feedback = %+v, want idle with duration 6", fb)
	}

	_, c, _ := cfg.Service.Store().Snapshot().FindClip("scene-1")
	if c.Duration != 6 {
		t.Errorf("stored duration = %v, want 6", c.Duration)
	}

	rr = doRequest(t, h, http.MethodPost, "/gestures/end", PointerRequest{X: 0})
	if rr.Code != http.StatusConflict {
		t.Errorf("end without gesture status = %d, want 409", rr.Code)
	}
}

func TestGestureCancel(t *testing.T) {
	cfg := newTestConfig(t)
	h := NewRouter(cfg)

	doRequest(t, h, http.MethodPost, "/timeline/clips", AddClipRequest{
		Kind: timeline.KindVideo, Scene: 1, URL: "media://one.mp4", Duration: 8,
	})
	doRequest(t, h, http.MethodPost, "/gestures/resize", ResizeRequest{
		LayerID: "layer-video", ClipID: "scene-1", Handle: interaction.HandleEnd, X: 400,
	})
	doRequest(t, h, http.MethodPost, "/gestures/move", PointerRequest{X: 250})

	rr := doRequest(t, h, http.MethodPost, "/gestures/cancel", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("cancel status = %d", rr.Code)
	}
	_, c, _ := cfg.Service.Store().Snapshot().FindClip("scene-1")
	if c.Duration != 8 {
		t.Errorf("duration after cancel = %v, want 8", c.Duration)
	}

	rr = doRequest(t, h, http.MethodPost, "/gestures/resize", ResizeRequest{LayerID: "layer-video", ClipID: "nope", Handle: interaction.HandleEnd})
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown clip status = %d, want 404", rr.Code)
	}
}

func TestPlayback(t *testing.T) {
	cfg := newTestConfig(t)
	h := NewRouter(cfg)

	rr := doRequest(t, h, http.MethodPost, "/playback/play", nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("play on empty timeline status = %d, want 409", rr.Code)
	}

	doRequest(t, h, http.MethodPost, "/timeline/clips", AddClipRequest{
		Kind: timeline.KindVideo, Scene: 1, URL: "media://one.mp4", Duration: 8,
	})

	rr = doRequest(t, h, http.MethodPost, "/playback/seek", map[string]any{})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("seek without time status = %d, want 400", rr.Code)
	}
	rr = doRequest(t, h, http.MethodPost, "/playback/seek", map[string]any{"time": 100})
	st := decodeJSON[playback.State](t, rr)
	if st.CurrentTime != 8 {
		t.Errorf("seek past end time = %v, want 8", st.CurrentTime)
	}
	doRequest(t, h, http.MethodPost, "/playback/seek", map[string]any{"time": 2})

	rr = doRequest(t, h, http.MethodPost, "/playback/play", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("play status = %d: %s", rr.Code, rr.Body.String())
	}

	// Gestures are refused while playing.
	rr = doRequest(t, h, http.MethodPost, "/gestures/drag", DragRequest{LayerID: "layer-video", ClipID: "scene-1"})
	if rr.Code != http.StatusConflict {
		t.Errorf("drag while playing status = %d, want 409", rr.Code)
	}

	rr = doRequest(t, h, http.MethodPost, "/playback/pause", nil)
	if st := decodeJSON[playback.State](t, rr); st.Playing {
		t.Error("still playing after pause")
	}
}

func TestGenerate(t *testing.T) {
	cfg := newTestConfig(t)

	h := NewRouter(cfg)
	rr := doRequest(t, h, http.MethodPost, "/timeline/generate", generate.Request{Kind: timeline.KindMusic, Prompt: "calm"})
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("stub generator status = %d, want 503", rr.Code)
	}

	gen := &fakeGenerator{out: generate.Output{URL: "media://bed.mp3", Duration: 30}}
	cfg.Generator = gen
	h = NewRouter(cfg)

	rr = doRequest(t, h, http.MethodPost, "/timeline/generate", generate.Request{Kind: timeline.KindMusic})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty prompt status = %d, want 400", rr.Code)
	}

	rr = doRequest(t, h, http.MethodPost, "/timeline/generate", generate.Request{Kind: timeline.KindMusic, Prompt: "calm"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("generate status = %d: %s", rr.Code, rr.Body.String())
	}
	clip := decodeJSON[ClipResponse](t, rr).Clip
	if clip.Kind != timeline.KindMusic || clip.Duration != 30 || clip.Content != "media://bed.mp3" {
		t.Errorf("generated clip = %+v", clip)
	}

	gen.err = &generate.RequestError{StatusCode: http.StatusBadRequest, Body: "no"}
	rr = doRequest(t, h, http.MethodPost, "/timeline/generate", generate.Request{Kind: timeline.KindMusic, Prompt: "calm"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("rejected generate status = %d, want 422", rr.Code)
	}
}

func TestSaveAndStatus(t *testing.T) {
	cfg := newTestConfig(t)
	h := NewRouter(cfg)

	doRequest(t, h, http.MethodPost, "/timeline/clips", AddClipRequest{Kind: timeline.KindVoiceover, URL: "media://vo.wav"})

	rr := doRequest(t, h, http.MethodGet, "/status", nil)
	st := decodeJSON[StatusResponse](t, rr)
	if !st.Dirty || st.JobsActive != 1 || st.State != "probing" {
		t.Errorf("status before save = %+v", st)
	}

	rr = doRequest(t, h, http.MethodPost, "/timeline/save", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("save status = %d", rr.Code)
	}
	rr = doRequest(t, h, http.MethodGet, "/status", nil)
	if st := decodeJSON[StatusResponse](t, rr); st.Dirty || st.SavedAt == "" {
		t.Errorf("status after save = %+v", st)
	}

	rr = doRequest(t, h, http.MethodGet, "/jobs", nil)
	jobs := decodeJSON[JobsResponse](t, rr)
	if len(jobs.Jobs) != 1 || jobs.Jobs[0].Type != project.JobTypeProbe {
		t.Fatalf("jobs = %+v", jobs)
	}
	rr = doRequest(t, h, http.MethodGet, "/jobs/"+jobs.Jobs[0].ID, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("get job status = %d", rr.Code)
	}
	rr = doRequest(t, h, http.MethodGet, "/jobs/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", rr.Code)
	}
}

func TestExportEDL(t *testing.T) {
	cfg := newTestConfig(t)
	h := NewRouter(cfg)

	outDir := t.TempDir()
	rr := doRequest(t, h, http.MethodPost, "/export/edl", map[string]any{"output_dir": outDir})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty timeline export status = %d, want 422", rr.Code)
	}

	doRequest(t, h, http.MethodPost, "/timeline/clips", AddClipRequest{
		Kind: timeline.KindVideo, Scene: 1, URL: "media://one.mp4", Duration: 4,
	})

	rr = doRequest(t, h, http.MethodPost, "/export/edl", map[string]any{
		"project_name": "Harbour Cut", "output_dir": outDir, "frame_rate": 25,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeJSON[struct {
		OutputPath string `json:"output_path"`
		EventCount int    `json:"event_count"`
	}](t, rr)
	if body.EventCount != 1 || filepath.Base(body.OutputPath) != "Harbour Cut.edl" {
		t.Errorf("export response = %+v", body)
	}

	data, err := os.ReadFile(body.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "00:00:00:00 00:00:04:00 00:00:00:00 00:00:04:00") {
		t.Errorf("edl content = %q", data)
	}
	// media:// references are exported as local paths.
	if !strings.Contains(string(data), filepath.Join(cfg.Media.Root(), "one.mp4")) {
		t.Errorf("edl missing local media path: %q", data)
	}

	rr = doRequest(t, h, http.MethodPost, "/export/edl", map[string]any{"output_dir": "/tmp/../etc"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("traversal export status = %d, want 400", rr.Code)
	}
}

func TestMediaRoute(t *testing.T) {
	cfg := newTestConfig(t)
	h := NewRouter(cfg)
	if err := os.WriteFile(filepath.Join(cfg.Media.Root(), "clip.mp4"), []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/media/clip.mp4", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("non-loopback status = %d, want 403", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/media/clip.mp4", nil)
	req.RemoteAddr = "127.0.0.1:50000"
	req.Header.Set("Range", "bytes=2-5")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusPartialContent {
		t.Fatalf("range status = %d, want 206", rr.Code)
	}
	if rr.Body.String() != "2345" {
		t.Errorf("range body = %q, want 2345", rr.Body.String())
	}
}

func TestEventsWebsocket(t *testing.T) {
	cfg := newTestConfig(t)
	server := httptest.NewServer(NewRouter(cfg))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/playback/events"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, resp, err := websocket.Dial(ctx, wsURL+"?token=wrong", nil); err == nil {
		t.Fatal("dial with a bad token succeeded")
	} else if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", resp.StatusCode)
	}

	cfg.Events.Broadcast(EventState, map[string]bool{"playing": false})

	conn, _, err := websocket.Dial(ctx, wsURL+"?token="+testToken, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Event != EventState {
		t.Errorf("first event = %q, want state replay", msg.Event)
	}
}

func TestEventHub_ThrottlesTime(t *testing.T) {
	hub := NewEventHub(testLogger())
	c := &eventClient{send: make(chan []byte, 8)}
	hub.addClient(c)

	hub.BroadcastTime(1)
	hub.BroadcastTime(1.01)
	hub.BroadcastTime(1.02)

	if len(c.send) != 1 {
		t.Errorf("queued time events = %d, want 1", len(c.send))
	}
	hub.removeClient(c)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after remove", hub.ClientCount())
	}
}
