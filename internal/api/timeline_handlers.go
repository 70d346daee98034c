package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reelcut/reelcut/internal/generate"
	"github.com/reelcut/reelcut/internal/project"
	"github.com/reelcut/reelcut/internal/timeline"
)

// whenIdle runs fn with new gestures held off and writes a 409 instead if a
// gesture already owns the timeline.
func whenIdle(cfg ServerConfig, w http.ResponseWriter, fn func()) bool {
	if cfg.Controller == nil {
		fn()
		return true
	}
	if !cfg.Controller.WhenIdle(fn) {
		WriteError(w, http.StatusConflict, "a gesture is in progress", "GESTURE_ACTIVE")
		return false
	}
	return true
}

func writeTimelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, project.ErrClipNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, project.ErrNoRoom):
		WriteError(w, http.StatusConflict, err.Error(), "NO_ROOM")
	case errors.Is(err, project.ErrBadKind), errors.Is(err, project.ErrInvalidScene):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	case errors.Is(err, timeline.ErrOverlap),
		errors.Is(err, timeline.ErrTrimBounds),
		errors.Is(err, timeline.ErrTimelineBounds),
		errors.Is(err, timeline.ErrBadGeometry),
		errors.Is(err, timeline.ErrBadLayer):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "INVALID_TIMELINE")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

func getTimelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store := cfg.Service.Store()
		v := store.Version()
		WriteJSON(w, http.StatusOK, TimelineResponse{Timeline: store.Snapshot(), Version: v})
	}
}

func putTimelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PutTimelineRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if len(req.Layers) == 0 {
			WriteError(w, http.StatusBadRequest, "layers must not be empty", "BAD_REQUEST")
			return
		}
		var (
			tl  timeline.Timeline
			err error
		)
		if !whenIdle(cfg, w, func() { tl, err = cfg.Service.ReplaceLayers(r.Context(), req.Layers) }) {
			return
		}
		if err != nil {
			writeTimelineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, TimelineResponse{Timeline: tl, Version: cfg.Service.Store().Version()})
	}
}

func addClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddClipRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.URL == "" {
			WriteError(w, http.StatusBadRequest, "url is required", "BAD_REQUEST")
			return
		}
		if req.Duration < 0 {
			WriteError(w, http.StatusBadRequest, "duration must not be negative", "BAD_REQUEST")
			return
		}
		var (
			clip timeline.Clip
			err  error
		)
		asset := project.Asset{URL: req.URL, Duration: req.Duration}
		if !whenIdle(cfg, w, func() { clip, err = attach(cfg, r, req.Kind, req.Scene, asset) }) {
			return
		}
		if err != nil {
			writeTimelineError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, ClipResponse{Clip: clip, Version: cfg.Service.Store().Version()})
	}
}

func attach(cfg ServerConfig, r *http.Request, kind timeline.Kind, scene int, asset project.Asset) (timeline.Clip, error) {
	if kind == timeline.KindVideo {
		return cfg.Service.AttachVideo(r.Context(), scene, asset)
	}
	return cfg.Service.AttachAudio(r.Context(), kind, asset)
}

func deleteClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "clip id required", "BAD_REQUEST")
			return
		}
		var err error
		if !whenIdle(cfg, w, func() { err = cfg.Service.DeleteClip(r.Context(), id) }) {
			return
		}
		if err != nil {
			writeTimelineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func generateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if err := req.Validate(); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		out, err := cfg.Generator.Generate(r.Context(), req)
		if err != nil {
			var reqErr *generate.RequestError
			switch {
			case errors.Is(err, generate.ErrNotConfigured):
				WriteError(w, http.StatusServiceUnavailable, err.Error(), "GENERATOR_UNAVAILABLE")
			case errors.As(err, &reqErr) && !reqErr.IsRetryable():
				WriteError(w, http.StatusUnprocessableEntity, err.Error(), "GENERATOR_REJECTED")
			default:
				WriteError(w, http.StatusBadGateway, err.Error(), "GENERATOR_ERROR")
			}
			return
		}

		// Generation can take minutes; a gesture may have started meanwhile.
		var clip timeline.Clip
		asset := project.Asset{URL: out.URL, Duration: out.Duration}
		if !whenIdle(cfg, w, func() { clip, err = attach(cfg, r, req.Kind, req.Scene, asset) }) {
			return
		}
		if err != nil {
			writeTimelineError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, ClipResponse{Clip: clip, Version: cfg.Service.Store().Version()})
	}
}

func saveHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := cfg.Service.Store().Version()
		if err := cfg.Service.Save(r.Context()); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, SaveResponse{
			SavedAt: cfg.Service.SavedAt().Format(time.RFC3339),
			Version: v,
		})
	}
}
