package imports

import (
	"fmt"
	"time"

	"github.com/spendlens/spendlens/internal/queue"
)

// QueueStateReader looks up one job's state in the external queue.
// Implemented by queue.Inspector.
type QueueStateReader interface {
	ReadJobState(jobID string) queue.JobStatus
}

// ReconcileDecision is the outcome of checking a non-terminal import against
// the queue: either leave it alone or mark it failed with a reason.
// Reconciliation never marks success; only the executor can.
type ReconcileDecision struct {
	MarkFailed bool
	Reason     string
}

// leaveAlone is the zero decision.
var leaveAlone = ReconcileDecision{}

// DecideReconciliation computes what should happen to an import given its
// current record, the queue's answer about its job, and the staleness
// threshold. lookup is only invoked when the import carries a job id.
func DecideReconciliation(record *StatementImport, lookup func(jobID string) queue.JobStatus, staleAfter time.Duration, now time.Time) ReconcileDecision {
	if record.Terminal() {
		return leaveAlone
	}

	age := now.Sub(record.UpdatedAt)
	stale := age > staleAfter

	if record.QueueJobID == nil || *record.QueueJobID == "" {
		// Synchronous fallback path: no external evidence to consult.
		if record.Status == StatusProcessing && stale {
			return ReconcileDecision{
				MarkFailed: true,
				Reason:     "import stalled in processing with no queue job id; inspect worker logs for startup or job failures",
			}
		}
		return leaveAlone
	}

	status := lookup(*record.QueueJobID)
	switch status.Outcome {
	case queue.LookupUnreachable:
		// No evidence either way.
		return leaveAlone

	case queue.LookupNotFound:
		if stale {
			return ReconcileDecision{
				MarkFailed: true,
				Reason: fmt.Sprintf("queue job %s is missing and import became stale after %s",
					*record.QueueJobID, staleAfter),
			}
		}
		return leaveAlone
	}

	switch status.State {
	case queue.StateFailed:
		detail := status.Error
		if detail == "" {
			detail = "check worker logs for details"
		}
		return ReconcileDecision{
			MarkFailed: true,
			Reason:     fmt.Sprintf("queue job failed (%s): %s", *record.QueueJobID, detail),
		}

	case queue.StateQueued, queue.StateStarted, queue.StateDeferred, queue.StateScheduled:
		if record.Status == StatusProcessing && stale {
			return ReconcileDecision{
				MarkFailed: true,
				Reason: fmt.Sprintf("import timed out in queue state %q after %s",
					status.State, staleAfter),
			}
		}
	}

	return leaveAlone
}
