package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/reelcut/reelcut/internal/interaction"
)

func writeGestureError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interaction.ErrLayerNotFound), errors.Is(err, interaction.ErrClipNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, interaction.ErrInvalidHandle):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	case errors.Is(err, interaction.ErrGestureActive),
		errors.Is(err, interaction.ErrNoGesture),
		errors.Is(err, interaction.ErrPlaybackActive):
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

func beginResizeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.LayerID == "" || req.ClipID == "" {
			WriteError(w, http.StatusBadRequest, "layer_id and clip_id are required", "BAD_REQUEST")
			return
		}
		if req.PxPerSecond > 0 {
			cfg.Controller.SetScale(req.PxPerSecond)
		}

		fb, err := cfg.Controller.BeginResize(req.LayerID, req.ClipID, req.Handle, req.X)
		if err != nil {
			writeGestureError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, fb)
	}
}

func beginDragHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DragRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.LayerID == "" || req.ClipID == "" {
			WriteError(w, http.StatusBadRequest, "layer_id and clip_id are required", "BAD_REQUEST")
			return
		}
		if req.PxPerSecond > 0 {
			cfg.Controller.SetScale(req.PxPerSecond)
		}

		fb, err := cfg.Controller.BeginDrag(req.LayerID, req.ClipID, req.X)
		if err != nil {
			writeGestureError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, fb)
	}
}

func pointerHandler(cfg ServerConfig, step func(x float64) (interaction.Feedback, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PointerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		fb, err := step(req.X)
		if err != nil {
			writeGestureError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, fb)
	}
}

func moveHandler(cfg ServerConfig) http.HandlerFunc {
	return pointerHandler(cfg, cfg.Controller.Move)
}

func endHandler(cfg ServerConfig) http.HandlerFunc {
	return pointerHandler(cfg, cfg.Controller.End)
}

func cancelHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Controller.Cancel(); err != nil {
			writeGestureError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
