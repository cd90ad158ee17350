package core

import "time"

// Run outcomes recorded for every pipeline execution.
const (
	RunStatusOK     = "ok"
	RunStatusNoData = "no_data"
	RunStatusFailed = "failed"
)

// Rolling stage outcomes.
const (
	RollingComputed            = "computed"
	RollingInsufficientHistory = "insufficient_history"
	RollingSkipped             = "skipped"
)

// RunReport summarizes one pipeline execution for a run date.
type RunReport struct {
	ID            string         `json:"id"`
	RunDate       RunDate        `json:"run_date"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	Status        string         `json:"status"`
	Seen          int64          `json:"seen"`
	Dropped       int64          `json:"dropped"`
	Written       int64          `json:"written"`
	DailyRows     int            `json:"daily_rows"`
	RollingStatus string         `json:"rolling_status"`
	DropReasons   map[string]int `json:"drop_reasons,omitempty"`
	Fixed         map[string]int `json:"fixed,omitempty"`
	Exports       []string       `json:"exports,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Duration is the wall time the run took.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
