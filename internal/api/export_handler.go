package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/reelcut/reelcut/internal/export"
)

func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req export.ExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.Format != "" && strings.ToLower(req.Format) != "edl" {
			WriteError(w, http.StatusBadRequest, "format must be edl", "BAD_REQUEST")
			return
		}
		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		frameRate := req.FrameRate
		if frameRate <= 0 {
			frameRate = cfg.FrameRate
		}
		if frameRate <= 0 {
			frameRate = 30
		}

		resolve := func(ref string) string {
			if cfg.Resolver == nil {
				return ref
			}
			if p, ok := cfg.Resolver.LocalPath(ref); ok {
				return p
			}
			if u, err := cfg.Resolver.Resolve(ref); err == nil {
				return u
			}
			return ref
		}

		events, skipped := export.Events(cfg.Service.Store().Snapshot(), req.IncludeAudio, resolve)
		if len(events) == 0 {
			WriteError(w, http.StatusUnprocessableEntity, "timeline has no exportable clips", "EMPTY_TIMELINE")
			return
		}

		name := export.SanitizeName(req.ProjectName, 120)
		if name == "" {
			name = export.DefaultProjectName
		}
		edl := export.GenerateEDL(events, name, frameRate)

		outputPath, err := export.WriteEDL(req.OutputDir, name, edl)
		if err != nil {
			if errors.Is(err, export.ErrOutputDirInvalid) {
				WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
				return
			}
			WriteError(w, http.StatusInternalServerError, "failed to write export file", "INTERNAL_ERROR")
			return
		}

		if skipped == nil {
			skipped = []string{}
		}
		WriteJSON(w, http.StatusOK, export.ExportResponse{
			Status:     "ok",
			Format:     "edl",
			OutputPath: outputPath,
			EventCount: len(events),
			Skipped:    skipped,
		})
	}
}
