package task

import "fmt"

// Kind classifies a stage failure.
type Kind int

// Failure kinds. KindNone means the message was handled without a failure
// that needs a retry decision.
const (
	KindNone Kind = iota
	KindValidation
	KindTransient
	KindUnclassified
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	case KindUnclassified:
		return "unclassified"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Stage names a step of the pipeline.
type Stage string

// Pipeline stages in execution order.
const (
	StageParse        Stage = "parse"
	StageLoadTask     Stage = "load_task"
	StageStart        Stage = "start"
	StageLoadResource Stage = "load_resource"
	StageTranscribe   Stage = "transcribe"
	StageAnalyze      Stage = "analyze"
	StagePersist      Stage = "persist"
	StageStuck        Stage = "stuck"
)

// StageError is the failure of one pipeline stage.
type StageError struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func validationError(stage Stage, err error) *StageError {
	return &StageError{Kind: KindValidation, Stage: stage, Err: err}
}

func transientError(stage Stage, err error) *StageError {
	return &StageError{Kind: KindTransient, Stage: stage, Err: err}
}

func unclassifiedError(stage Stage, err error) *StageError {
	return &StageError{Kind: KindUnclassified, Stage: stage, Err: err}
}

// Action is what happens to a delivery once it has been handled.
type Action int

const (
	// ActionAck acknowledges the message; nothing further happens.
	ActionAck Action = iota
	// ActionAckFailed acknowledges after the task was marked failed.
	ActionAckFailed
	// ActionRequeue re-publishes the resource and acknowledges the original.
	ActionRequeue
	// ActionDeadLetter rejects the message without requeue so the broker
	// routes it to the dead-letter queue.
	ActionDeadLetter
)

func (a Action) String() string {
	switch a {
	case ActionAck:
		return "ack"
	case ActionAckFailed:
		return "ack_failed"
	case ActionRequeue:
		return "requeue"
	case ActionDeadLetter:
		return "dead_letter"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decision is the outcome of the retry policy.
type Decision struct {
	Action Action
	// RetryCount is the retry count the task must be persisted with.
	RetryCount int
}

// Decide maps a failure kind and the task's current retry count to an
// action. A transient failure always consumes one retry; the task is
// requeued while the new count is below maxRetries and failed otherwise.
func Decide(kind Kind, retryCount, maxRetries int) Decision {
	switch kind {
	case KindNone:
		return Decision{Action: ActionAck, RetryCount: retryCount}
	case KindValidation:
		return Decision{Action: ActionAckFailed, RetryCount: retryCount}
	case KindTransient:
		next := retryCount + 1
		if next < maxRetries {
			return Decision{Action: ActionRequeue, RetryCount: next}
		}
		return Decision{Action: ActionAckFailed, RetryCount: next}
	default:
		return Decision{Action: ActionDeadLetter, RetryCount: retryCount}
	}
}
