// Package resumable defines the boundary between schedulable units of work
// and the execution units that run them.
package resumable

import "github.com/roasbeef/actorcore/internal/fiber"

// Result tells an execution unit what to do with a resumable after Resume
// returned.
type Result uint8

const (
	// ResumeLater means the unit still has work but gave up its time
	// slice. It must be rescheduled.
	ResumeLater Result = iota

	// AwaitingMessage means the unit blocked its mailbox and will be
	// rescheduled by whoever unblocks it.
	AwaitingMessage

	// Done means the unit finished and must not be resumed again.
	Done

	// ShutdownExecutionUnit asks the execution unit itself to stop.
	ShutdownExecutionUnit
)

// String returns a human readable name for the result.
func (r Result) String() string {
	switch r {
	case ResumeLater:
		return "resume_later"

	case AwaitingMessage:
		return "awaiting_message"

	case Done:
		return "done"

	case ShutdownExecutionUnit:
		return "shutdown_execution_unit"

	default:
		return "unknown"
	}
}

// Resumable is a unit of work that runs in slices on some execution unit.
type Resumable interface {
	// Attach records that an execution unit holds a reference to the
	// resumable, for instance while it sits in a run queue.
	Attach()

	// Detach releases a reference taken with Attach.
	Detach()

	// Resume runs the resumable until it finishes, blocks or exhausts its
	// time slice.
	Resume(eu ExecutionUnit) Result
}

// ExecutionUnit runs resumables.
type ExecutionUnit interface {
	// Exec schedules r for execution. The caller must have attached r.
	Exec(r Resumable)

	// FiberContext returns the context representing the goroutine that
	// calls Resume, used by resumables that switch into fibers. A unit
	// that never resumes anything may return nil.
	FiberContext() *fiber.Context
}
