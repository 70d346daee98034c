package api

import (
	"encoding/json"
	"net/http"
)

func playbackStateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Engine.State())
	}
}

func playHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !whenIdle(cfg, w, cfg.Engine.Play) {
			return
		}
		st := cfg.Engine.State()
		if !st.Playing {
			WriteError(w, http.StatusConflict, "timeline has no content", "EMPTY_TIMELINE")
			return
		}
		broadcastState(cfg)
		WriteJSON(w, http.StatusOK, st)
	}
}

func pauseHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Engine.Pause()
		broadcastState(cfg)
		WriteJSON(w, http.StatusOK, cfg.Engine.State())
	}
}

func seekHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SeekRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Time == nil {
			WriteError(w, http.StatusBadRequest, "time is required", "BAD_REQUEST")
			return
		}
		cfg.Engine.Seek(*req.Time)
		broadcastState(cfg)
		WriteJSON(w, http.StatusOK, cfg.Engine.State())
	}
}

func broadcastState(cfg ServerConfig) {
	if cfg.Events != nil {
		cfg.Events.Broadcast(EventState, cfg.Engine.State())
	}
}
