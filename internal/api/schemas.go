package api

import (
	"time"

	"github.com/reelcut/reelcut/internal/generate"
	"github.com/reelcut/reelcut/internal/interaction"
	"github.com/reelcut/reelcut/internal/project"
	"github.com/reelcut/reelcut/internal/timeline"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State        string            `json:"state"`
	Playing      bool              `json:"playing"`
	CurrentTime  float64           `json:"current_time"`
	ContentEnd   float64           `json:"content_end"`
	Gesture      interaction.State `json:"gesture"`
	Dirty        bool              `json:"dirty"`
	SavedAt      string            `json:"saved_at,omitempty"`
	JobsActive   int               `json:"jobs_active"`
	RunnerPaused bool              `json:"runner_paused"`
	LastError    string            `json:"last_error,omitempty"`
	EventClients int               `json:"event_clients"`
}

type TimelineResponse struct {
	Timeline timeline.Timeline `json:"timeline"`
	Version  uint64            `json:"version"`
}

type PutTimelineRequest struct {
	Layers []timeline.Layer `json:"layers"`
}

type AddClipRequest struct {
	Kind     timeline.Kind `json:"kind"`
	Scene    int           `json:"scene,omitempty"`
	URL      string        `json:"url"`
	Duration float64       `json:"duration,omitempty"`
}

type ClipResponse struct {
	Clip    timeline.Clip `json:"clip"`
	Version uint64        `json:"version"`
}

type GenerateRequest = generate.Request

type ResizeRequest struct {
	LayerID     string             `json:"layer_id"`
	ClipID      string             `json:"clip_id"`
	Handle      interaction.Handle `json:"handle"`
	X           float64            `json:"x"`
	PxPerSecond float64            `json:"px_per_second,omitempty"`
}

type DragRequest struct {
	LayerID     string  `json:"layer_id"`
	ClipID      string  `json:"clip_id"`
	X           float64 `json:"x"`
	PxPerSecond float64 `json:"px_per_second,omitempty"`
}

type PointerRequest struct {
	X float64 `json:"x"`
}

type SeekRequest struct {
	Time *float64 `json:"time"`
}

type SaveResponse struct {
	SavedAt string `json:"saved_at"`
	Version uint64 `json:"version"`
}

type JobResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	ClipID    string `json:"clip_id,omitempty"`
	Progress  int    `json:"progress"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func JobToResponse(j *project.Job) JobResponse {
	return JobResponse{
		ID:        j.ID,
		Type:      j.Type,
		Status:    j.Status,
		ClipID:    j.ClipID,
		Progress:  j.Progress,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
}
