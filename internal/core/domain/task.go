package domain

import (
	"strings"
	"time"
)

type TaskStatus string

const (
	TaskPending TaskStatus = "PENDING"
	TaskStarted TaskStatus = "STARTED"
	TaskSuccess TaskStatus = "SUCCESS"
	TaskFailure TaskStatus = "FAILURE"
)

// Terminal reports whether no further transition can follow s.
func (s TaskStatus) Terminal() bool {
	return s == TaskSuccess || s == TaskFailure
}

// Rank orders statuses along PENDING -> STARTED -> terminal.
func (s TaskStatus) Rank() int {
	switch s {
	case TaskPending:
		return 0
	case TaskStarted:
		return 1
	case TaskSuccess, TaskFailure:
		return 2
	default:
		return -1
	}
}

type TaskProgress struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
}

type TaskResult struct {
	ChunksProcessed int    `json:"chunks_processed"`
	DocumentID      string `json:"document_id"`
}

// IngestionTask is a snapshot of one backend processing job.
type IngestionTask struct {
	TaskID       string        `json:"task_id"`
	Status       TaskStatus    `json:"status"`
	Progress     *TaskProgress `json:"progress,omitempty"`
	Result       *TaskResult   `json:"result,omitempty"`
	ErrorMessage string        `json:"error,omitempty"`
}

// Normalize enforces result-iff-SUCCESS and error-iff-FAILURE on a decoded snapshot.
func (t IngestionTask) Normalize() IngestionTask {
	out := t
	if out.Status != TaskSuccess {
		out.Result = nil
	} else if out.Result == nil {
		out.Result = &TaskResult{}
	}
	if out.Status != TaskFailure {
		out.ErrorMessage = ""
	} else if strings.TrimSpace(out.ErrorMessage) == "" {
		out.ErrorMessage = "task failed"
	}
	if out.Progress != nil {
		p := *out.Progress
		if p.Percent < 0 {
			p.Percent = 0
		}
		if p.Percent > 100 {
			p.Percent = 100
		}
		out.Progress = &p
	}
	return out
}

// PollerState is the lifecycle of a TaskPoller.
type PollerState string

const (
	PollerIdle      PollerState = "idle"
	PollerPolling   PollerState = "polling"
	PollerSucceeded PollerState = "succeeded"
	PollerFailed    PollerState = "failed"
	PollerCancelled PollerState = "cancelled"
	PollerErrored   PollerState = "errored"
	PollerTimedOut  PollerState = "timed_out"
)

func (s PollerState) Terminal() bool {
	switch s {
	case PollerSucceeded, PollerFailed, PollerCancelled, PollerErrored, PollerTimedOut:
		return true
	default:
		return false
	}
}

// TaskEvent is an explicit state transition observed for a tracked task.
type TaskEvent struct {
	TaskID string        `json:"task_id"`
	State  PollerState   `json:"state"`
	Task   IngestionTask `json:"task"`
	Error  string        `json:"error,omitempty"`
	At     time.Time     `json:"at"`
}

// Submission records what was handed to the backend for one task.
type Submission struct {
	TaskID      string    `json:"task_id"`
	FileName    string    `json:"file_name"`
	SourcePath  string    `json:"source_path"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// TaskRecord is the journaled view of a submission and its latest known outcome.
type TaskRecord struct {
	Submission
	Status          TaskStatus  `json:"status"`
	State           PollerState `json:"state"`
	DocumentID      string      `json:"document_id,omitempty"`
	ChunksProcessed int         `json:"chunks_processed"`
	ErrorMessage    string      `json:"error,omitempty"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Apply folds an event into the record.
func (r TaskRecord) Apply(event TaskEvent) TaskRecord {
	out := r
	if event.Task.Status != "" {
		out.Status = event.Task.Status
	}
	out.State = event.State
	if event.Task.Result != nil {
		out.DocumentID = event.Task.Result.DocumentID
		out.ChunksProcessed = event.Task.Result.ChunksProcessed
	}
	switch {
	case event.Task.ErrorMessage != "":
		out.ErrorMessage = event.Task.ErrorMessage
	case event.Error != "":
		out.ErrorMessage = event.Error
	}
	out.UpdatedAt = event.At
	return out
}
