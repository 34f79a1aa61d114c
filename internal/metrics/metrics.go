// Package metrics defines the instrumentation hooks of the actor runtime and
// their no-op and Prometheus implementations.
package metrics

// Timer measures the duration of one operation.
type Timer interface {
	// ObserveDuration records the time elapsed since the timer started.
	ObserveDuration()
}

// Recorder receives runtime events. Labels are low cardinality: the resume
// strategy of the actor ("event" or "fiber"), exit reasons and resume
// results.
type Recorder interface {
	// MessageProcessed counts a message a behavior matched.
	MessageProcessed(strategy string)

	// MessageSkipped counts a message moved to the skip cache.
	MessageSkipped(strategy string)

	// MessageBounced counts a message rejected by a terminated actor.
	MessageBounced(strategy string)

	// ActorExited counts a terminated actor.
	ActorExited(strategy, reason string)

	// Resumed counts one resume of an actor by its outcome.
	Resumed(strategy, result string)

	// ResumeDuration starts timing one resume.
	ResumeDuration(strategy string) Timer
}

type nopTimer struct{}

func (nopTimer) ObserveDuration() {}

// Nop is a Recorder that discards everything.
type Nop struct{}

func (Nop) MessageProcessed(string)     {}
func (Nop) MessageSkipped(string)       {}
func (Nop) MessageBounced(string)       {}
func (Nop) ActorExited(string, string)  {}
func (Nop) Resumed(string, string)      {}
func (Nop) ResumeDuration(string) Timer { return nopTimer{} }

var _ Recorder = Nop{}
