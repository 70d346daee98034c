// Package project persists the timeline and runs the host-side work around
// it: attaching generated media, probing source durations and autosaving.
package project

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobTypeProbe = "probe"

	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Config keys.
const (
	ConfigAuthToken        = "auth_token"
	ConfigDeviceID         = "device_id"
	ConfigTimelineDuration = "timeline_duration"
	ConfigSavedAt          = "timeline_saved_at"
)

type Job struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	ClipID    string    `json:"clip_id,omitempty"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Asset is a piece of externally produced media ready to go on the timeline.
// Duration is zero when the producer did not report one.
type Asset struct {
	URL      string  `json:"url"`
	Duration float64 `json:"duration,omitempty"`
}

func NewID() string {
	return uuid.NewString()
}
