package types

import "time"

// TaskStatus is the lifecycle state of an asynchronous write task
// (spec §3 Task, Lifecycles).
type TaskStatus string

const (
	TaskEnqueued   TaskStatus = "enqueued"
	TaskProcessing TaskStatus = "processing"
	TaskSucceeded  TaskStatus = "succeeded"
	TaskFailed     TaskStatus = "failed"
)

// DocFailureReason classifies why a document was rejected during a write
// batch (spec §4.5 step 1).
type DocFailureReason string

const (
	ReasonFieldNotFound  DocFailureReason = "field_not_found"
	ReasonTypeMismatch   DocFailureReason = "type_mismatch"
	ReasonMissingField   DocFailureReason = "missing_field"
	ReasonDocTooLarge    DocFailureReason = "document_too_large"
	ReasonValidationErr  DocFailureReason = "validation_error"
)

// DocFailure records one rejected document within a task.
type DocFailure struct {
	ObjectID string
	Reason   DocFailureReason
	Message  string
}

// MaxRetainedRejections bounds the samples kept per task (spec §4.5 step 1:
// "truncated to 100 retained samples per task").
const MaxRetainedRejections = 100

// Task is the addressable handle for an asynchronous write (spec §3).
// It is safe to read concurrently once retrieved from the manager's task
// table; mutation happens only inside the manager (the write-queue
// outcome sink and noop-task creation).
type Task struct {
	TaskID    string
	NumericID int64
	Status    TaskStatus
	Error     string

	Received int
	Indexed  int

	Rejected      []DocFailure
	RejectedCount int

	CreatedAt time.Time
}

// AddRejection appends a rejection, enforcing the retained-sample cap
// while still counting the true total.
func (t *Task) AddRejection(f DocFailure) {
	t.RejectedCount++
	if len(t.Rejected) < MaxRetainedRejections {
		t.Rejected = append(t.Rejected, f)
	}
}

// Succeed marks the task successful; it leaves the counts as set by the
// caller.
func (t *Task) Succeed() {
	t.Status = TaskSucceeded
}

// Fail marks the task failed with a message (the whole batch failed,
// distinct from per-document rejection).
func (t *Task) Fail(msg string) {
	t.Status = TaskFailed
	t.Error = msg
}
