package domain

import "time"

// JobState is the lifecycle of a bulk generation job.
type JobState string

const (
	JobCreated   JobState = "created"
	JobSubmitted JobState = "submitted"
	JobPolling   JobState = "polling"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

var jobTransitions = map[JobState][]JobState{
	JobCreated:   {JobSubmitted, JobFailed},
	JobSubmitted: {JobPolling, JobCompleted, JobFailed},
	JobPolling:   {JobPolling, JobCompleted, JobFailed},
}

// CanTransition reports whether the job may move from s to next.
func (s JobState) CanTransition(next JobState) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobCounts is the aggregate progress of a bulk job.
type JobCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// PromptPayload is the fully specified instruction for one completion.
type PromptPayload struct {
	Model       string  `json:"model"`
	System      string  `json:"system"`
	User        string  `json:"user"`
	Temperature float64 `json:"temperature"`
	JSONOutput  bool    `json:"json_output"`
}

// GenerationRequest ties a prompt to the cell and seed it was built for.
type GenerationRequest struct {
	CorrelationID string        `json:"correlation_id"`
	Cell          Cell          `json:"cell"`
	Label         Label         `json:"label"`
	Seed          ScenarioSeed  `json:"seed"`
	Prompt        PromptPayload `json:"prompt"`
}

// BulkJob is the persisted handle of an asynchronous generation job.
type BulkJob struct {
	ID            string
	RunID         string
	ExternalID    string
	InputFileID   string
	OutputFileID  string
	ErrorFileID   string
	State         JobState
	Counts        JobCounts
	Requests      []GenerationRequest
	FailureReason string
	Collected     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RawResult is one demultiplexed response of a generation job.
type RawResult struct {
	CorrelationID string
	Payload       []byte
	Err           string
	SourcePrompt  string
}

// Failed reports whether the request errored upstream.
func (r RawResult) Failed() bool {
	return r.Err != ""
}
