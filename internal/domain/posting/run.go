package posting

import "time"

type RunKind string

const (
	RunCrawl      RunKind = "crawl"
	RunValidate   RunKind = "validate"
	RunSweep      RunKind = "sweep"
	RunReactivate RunKind = "reactivate"
	RunBackfill   RunKind = "backfill"
)

type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunFinished RunStatus = "finished"
	RunFailed   RunStatus = "failed"
	RunCanceled RunStatus = "canceled"
	RunSkipped  RunStatus = "skipped"
)

// RunCounts is the summary every maintenance run reports.
type RunCounts struct {
	Pages     int `json:"pages"`
	Seen      int `json:"seen"`
	Inserted  int `json:"inserted"`
	Refreshed int `json:"refreshed"`
	Retired   int `json:"retired"`
	Errored   int `json:"errored"`
}

type Run struct {
	ID         string     `json:"id"`
	Kind       RunKind    `json:"kind"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	StopReason string     `json:"stop_reason,omitempty"`
	Counts     RunCounts  `json:"counts"`
}
