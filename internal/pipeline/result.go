package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Result captures the outcome of one pipeline run. Steps that were disabled
// by configuration appear in neither StepsCompleted nor StepsFailed.
type Result struct {
	RunID     uuid.UUID     `json:"run_id"`
	Job       string        `json:"job"`
	Success   bool          `json:"success"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	StepsCompleted []string `json:"steps_completed"`
	StepsFailed    []string `json:"steps_failed"`
	Errors         []string `json:"errors"`

	// Statistics holds per-step counters keyed by step name.
	Statistics map[string]map[string]any `json:"statistics"`
}

func newResult(job string, start time.Time) *Result {
	return &Result{
		RunID:      uuid.New(),
		Job:        job,
		StartTime:  start,
		Statistics: map[string]map[string]any{},
	}
}

func (r *Result) complete(step string, stats map[string]any) {
	r.StepsCompleted = append(r.StepsCompleted, step)
	if len(stats) > 0 {
		r.Statistics[step] = stats
	}
}

func (r *Result) fail(step string, err error) {
	r.StepsFailed = append(r.StepsFailed, step)
	r.Errors = append(r.Errors, step+": "+err.Error())
}

// Failed reports whether step is recorded as failed.
func (r *Result) Failed(step string) bool {
	for _, s := range r.StepsFailed {
		if s == step {
			return true
		}
	}
	return false
}

// Completed reports whether step is recorded as completed.
func (r *Result) Completed(step string) bool {
	for _, s := range r.StepsCompleted {
		if s == step {
			return true
		}
	}
	return false
}
