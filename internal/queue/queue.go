// Package queue wraps the Redis-backed task queue used to run import jobs
// out of process. Jobs are enqueued with no automatic retries; a failed run
// stays failed until the operator intervenes.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// TaskTypeProcessImport identifies the import execution task.
	TaskTypeProcessImport = "import:process"

	// ImportQueue is the queue all import jobs are published to.
	ImportQueue = "imports"

	// taskRetention keeps finished/failed task records inspectable for a day.
	taskRetention = 24 * time.Hour
)

// Job states as reported to callers. These mirror what the queue backend
// knows about a task, plus "missing" when it has no record at all.
const (
	StateQueued    = "queued"
	StateStarted   = "started"
	StateDeferred  = "deferred"
	StateScheduled = "scheduled"
	StateFailed    = "failed"
	StateFinished  = "finished"
	StateMissing   = "missing"
)

// ImportTaskPayload is the JSON body of an import task.
type ImportTaskPayload struct {
	ImportID string `json:"import_id"`
}

// RedisOptions builds the asynq connection options from config values.
func RedisOptions(addr, password string, db int) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: addr, Password: password, DB: db}
}

// Enqueuer publishes import jobs.
type Enqueuer struct {
	client  *asynq.Client
	timeout time.Duration
}

// NewEnqueuer creates a new import job enqueuer
func NewEnqueuer(redis asynq.RedisClientOpt, jobTimeout time.Duration) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(redis), timeout: jobTimeout}
}

// EnqueueImport publishes a job for the given import and returns the queue's
// job identifier. An error here means the queue is unavailable and the caller
// should fall back to running the job synchronously.
func (e *Enqueuer) EnqueueImport(ctx context.Context, importID uuid.UUID) (string, error) {
	payload, err := json.Marshal(ImportTaskPayload{ImportID: importID.String()})
	if err != nil {
		return "", fmt.Errorf("failed to encode import task payload: %w", err)
	}
	info, err := e.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeProcessImport, payload),
		asynq.Queue(ImportQueue),
		asynq.MaxRetry(0),
		asynq.Timeout(e.timeout),
		asynq.Retention(taskRetention),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue import job: %w", err)
	}
	return info.ID, nil
}

// Close releases the underlying connection.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}

// LookupOutcome distinguishes the three results of a job state query: the
// queue answered with a state, the queue answered that it has no record, or
// the queue could not be reached at all.
type LookupOutcome uint8

const (
	LookupKnown LookupOutcome = iota + 1
	LookupNotFound
	LookupUnreachable
)

// JobStatus is the result of reading one job's state from the queue.
type JobStatus struct {
	Outcome LookupOutcome
	State   string
	Error   string
}

// Inspector reads job state from the queue backend.
type Inspector struct {
	inspector *asynq.Inspector
}

// NewInspector creates a new queue inspector
func NewInspector(redis asynq.RedisClientOpt) *Inspector {
	return &Inspector{inspector: asynq.NewInspector(redis)}
}

// ReadJobState queries the queue for one job. Never returns an error: an
// unreachable queue is itself a distinct outcome the reconciler must handle.
func (i *Inspector) ReadJobState(jobID string) JobStatus {
	info, err := i.inspector.GetTaskInfo(ImportQueue, jobID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return JobStatus{Outcome: LookupNotFound, State: StateMissing, Error: "queue job not found"}
		}
		return JobStatus{Outcome: LookupUnreachable}
	}

	status := JobStatus{Outcome: LookupKnown, State: mapTaskState(info.State)}
	if status.State == StateFailed {
		status.Error = SummarizeFailure(info.LastErr)
	}
	return status
}

// Close releases the underlying connection.
func (i *Inspector) Close() error {
	return i.inspector.Close()
}

func mapTaskState(state asynq.TaskState) string {
	switch state {
	case asynq.TaskStateActive:
		return StateStarted
	case asynq.TaskStateRetry:
		return StateDeferred
	case asynq.TaskStateScheduled:
		return StateScheduled
	case asynq.TaskStateArchived:
		return StateFailed
	case asynq.TaskStateCompleted:
		return StateFinished
	default:
		// Pending and aggregating tasks are waiting to run.
		return StateQueued
	}
}

// errorSignatures mark lines worth surfacing verbatim: database and data
// integrity failures a reviewer can act on.
var errorSignatures = []string{
	"SQLSTATE",
	"duplicate key",
	"violates",
	"constraint",
	"invalid input",
	"failed to",
}

// SummarizeFailure condenses a job failure trace into a short message,
// preferring recognizable database error lines over generic trace output.
// Output is capped at 1000 characters.
func SummarizeFailure(trace string) string {
	const maxLen = 1000

	var lines []string
	for _, line := range strings.Split(trace, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return "queue job failed"
	}

	var matched []string
	for _, line := range lines {
		for _, sig := range errorSignatures {
			if strings.Contains(line, sig) {
				matched = append(matched, line)
				break
			}
		}
		if len(matched) == 2 {
			break
		}
	}
	if len(matched) > 0 {
		return truncate(strings.Join(matched, " | "), maxLen)
	}

	// Fall back to the last line that is not goroutine/stack noise.
	for i := len(lines) - 1; i >= 0; i-- {
		if !strings.HasPrefix(lines[i], "goroutine ") {
			return truncate(lines[i], maxLen)
		}
	}
	return truncate(lines[len(lines)-1], maxLen)
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// ImportProcessor runs one import job to completion.
type ImportProcessor interface {
	ProcessImport(ctx context.Context, importID uuid.UUID) error
}

// NewHandler adapts an ImportProcessor into an asynq task handler.
func NewHandler(processor ImportProcessor) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload ImportTaskPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("failed to decode import task payload: %w", err)
		}
		importID, err := uuid.Parse(payload.ImportID)
		if err != nil {
			return fmt.Errorf("invalid import id %q: %w", payload.ImportID, err)
		}
		return processor.ProcessImport(ctx, importID)
	}
}
