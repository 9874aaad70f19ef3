package domain

import "time"

// RunStatus represents the lifecycle of a stored run
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run represents one execution of the fetch-and-validate pipeline
type Run struct {
	ID         string       `json:"id"`
	Org        string       `json:"org"`
	Prefix     string       `json:"prefix"`
	Deadline   *time.Time   `json:"deadline,omitempty"`
	Status     RunStatus    `json:"status"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Result     *BatchResult `json:"result,omitempty"`
}
