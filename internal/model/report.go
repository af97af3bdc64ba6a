package model

import "time"

// CycleReport summarizes one processing cycle.
type CycleReport struct {
	Source         string        `json:"source"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	Records        int           `json:"records"`
	Accepted       int           `json:"accepted"`
	Unclassified   int           `json:"unclassified"`
	Rejected       int           `json:"rejected"`
	Shards         int           `json:"shards"`
	Rows           int           `json:"rows"`
	Chunks         int           `json:"chunks"`
	FastChunks     int           `json:"fast_chunks"`
	FallbackChunks int           `json:"fallback_chunks"`
	Bytes          int64         `json:"bytes"`
	Error          string        `json:"error,omitempty"`
}
