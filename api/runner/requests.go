package runner

import (
	"time"

	"gitlab.uncharted.software/WM/lora-campaign/campaign"
)

// Request is a campaign waiting in the service queue.
type Request struct {
	ID         string              `json:"id"`
	Key        uint32              `json:"key"`
	Definition campaign.Definition `json:"definition"`
	Total      int                 `json:"total"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
}

// Current describes the campaign being run.
type Current struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Total     int       `json:"total"`
	Count     int       `json:"count"`
	Percent   int       `json:"percent"`
	StartedAt time.Time `json:"started_at"`
}

// Result is the outcome of the last finished campaign.
type Result struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Summary    campaign.Summary `json:"summary"`
	Error      string           `json:"error,omitempty"`
	FinishedAt time.Time        `json:"finished_at"`
}
