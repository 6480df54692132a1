package models

import "time"

// JobState represents the lifecycle state of a job
type JobState string

const (
	StatePending    JobState = "pending"
	StateProcessing JobState = "processing"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "failed"
	StateDead       JobState = "dead"
)

// AllStates lists every state in lifecycle order.
var AllStates = []JobState{
	StatePending,
	StateProcessing,
	StateCompleted,
	StateFailed,
	StateDead,
}

// Valid reports whether s is one of the known states.
func (s JobState) Valid() bool {
	for _, known := range AllStates {
		if s == known {
			return true
		}
	}
	return false
}

// Job represents a queued shell command
type Job struct {
	ID             string     `json:"id" yaml:"id"`
	Command        string     `json:"command" yaml:"command"`
	State          JobState   `json:"state" yaml:"state"`
	Attempts       int        `json:"attempts" yaml:"attempts"`
	MaxRetries     int        `json:"max_retries" yaml:"max_retries"`
	CreatedAt      time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" yaml:"updated_at"`
	Owner          *string    `json:"owner,omitempty" yaml:"owner,omitempty"`
	LeasedAt       *time.Time `json:"leased_at,omitempty" yaml:"leased_at,omitempty"`
	NextEligibleAt time.Time  `json:"next_eligible_at" yaml:"next_eligible_at"`
	LastError      string     `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// Stats is a per-state snapshot of the job table
type Stats struct {
	Total  int              `json:"total" yaml:"total"`
	States map[JobState]int `json:"states" yaml:"states"`
}
