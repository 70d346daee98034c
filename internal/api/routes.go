package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reelcut/reelcut/internal/interaction"
	"github.com/reelcut/reelcut/internal/project"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	if cfg.Media != nil {
		r.With(LoopbackGuard()).Handle("/media/*", http.StripPrefix("/media", cfg.Media))
	}
	if cfg.Events != nil {
		r.Get("/playback/events", eventsHandler(cfg))
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Get("/timeline", getTimelineHandler(cfg))
		r.Put("/timeline", putTimelineHandler(cfg))
		r.Post("/timeline/clips", addClipHandler(cfg))
		r.Delete("/timeline/clips/{id}", deleteClipHandler(cfg))
		r.Post("/timeline/generate", generateHandler(cfg))
		r.Post("/timeline/save", saveHandler(cfg))

		r.Post("/gestures/resize", beginResizeHandler(cfg))
		r.Post("/gestures/drag", beginDragHandler(cfg))
		r.Post("/gestures/move", moveHandler(cfg))
		r.Post("/gestures/end", endHandler(cfg))
		r.Post("/gestures/cancel", cancelHandler(cfg))

		r.Get("/playback", playbackStateHandler(cfg))
		r.Post("/playback/play", playHandler(cfg))
		r.Post("/playback/pause", pauseHandler(cfg))
		r.Post("/playback/seek", seekHandler(cfg))

		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))

		r.Post("/export/edl", exportEDLHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := cfg.Version
		if version == "" {
			version = "dev"
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  version,
			UptimeS:  int64(time.Since(cfg.StartTime).Seconds()),
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		resp := StatusResponse{State: "idle", Gesture: interaction.StateIdle}

		if cfg.Engine != nil {
			st := cfg.Engine.State()
			resp.Playing = st.Playing
			resp.CurrentTime = st.CurrentTime
			resp.ContentEnd = st.ContentEnd
			if st.Playing {
				resp.State = "playing"
			}
		}
		if cfg.Controller != nil {
			resp.Gesture = cfg.Controller.State()
			if resp.Gesture != interaction.StateIdle {
				resp.State = "editing"
			}
		}
		if cfg.Service != nil {
			resp.Dirty = cfg.Service.Dirty()
			if at := cfg.Service.SavedAt(); !at.IsZero() {
				resp.SavedAt = at.Format(time.RFC3339)
			}
		}
		if cfg.Runner != nil {
			resp.RunnerPaused = cfg.Runner.IsPaused()
		}
		if cfg.Events != nil {
			resp.EventClients = cfg.Events.ClientCount()
		}

		jobs, _ := cfg.Repository.ListJobs(ctx, 10)
		for _, j := range jobs {
			switch j.Status {
			case project.JobStatusRunning, project.JobStatusPending:
				resp.JobsActive++
			case project.JobStatusFailed:
				if resp.LastError == "" {
					resp.LastError = j.Error
				}
			}
		}
		if resp.JobsActive > 0 && resp.State == "idle" {
			resp.State = "probing"
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.Repository.ListJobs(r.Context(), 50)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "job id required", "BAD_REQUEST")
			return
		}

		job, err := cfg.Repository.GetJob(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}
