package actor

import (
	"errors"
	"fmt"

	"github.com/roasbeef/actorcore/internal/mailbox"
	"github.com/roasbeef/actorcore/internal/message"
)

var (
	// ErrActorTerminated indicates that an operation failed because the
	// target actor was terminated or in the process of shutting down.
	ErrActorTerminated = errors.New("actor terminated")

	// ErrRequestTimeout indicates that a request was not answered in
	// time.
	ErrRequestTimeout = errors.New("request timed out")
)

// ExitMsg asks the receiver to terminate. Actors that trap exits receive it
// as an ordinary message, except for ExitKill which always terminates.
// Otherwise a non-normal reason terminates the receiver and a normal one is
// ignored.
type ExitMsg struct {
	Source mailbox.Addr
	Reason ExitReason
}

// DownMsg is sent to every monitor of an actor once it terminated.
type DownMsg struct {
	Source mailbox.Addr
	Reason ExitReason

	// Err is the error behind an abnormal exit, if any.
	Err error
}

// TimeoutMsg fires an idle timeout. Only the most recently armed timeout is
// honored.
type TimeoutMsg struct {
	ID uint64
}

// SyncTimeoutMsg is delivered as the response to a request that timed out.
type SyncTimeoutMsg struct{}

// Error implements error.
func (SyncTimeoutMsg) Error() string {
	return ErrRequestTimeout.Error()
}

// Unwrap returns ErrRequestTimeout.
func (SyncTimeoutMsg) Unwrap() error {
	return ErrRequestTimeout
}

// RequestBounced is delivered as the response to a request its receiver
// could not process because it terminated.
type RequestBounced struct {
	// Source is the id of the terminated receiver.
	Source string
	Reason ExitReason
}

// Error implements error.
func (r RequestBounced) Error() string {
	return fmt.Sprintf("request bounced by %s: %v", r.Source, r.Reason)
}

// Unwrap returns ErrActorTerminated.
func (RequestBounced) Unwrap() error {
	return ErrActorTerminated
}

// responseError returns the error carried by a failure response, a single
// element implementing error, or nil.
func responseError(msg *message.Message) error {
	err, _ := message.Match1[error](msg)
	return err
}

// isStaleFailure reports whether msg is a runtime generated failure, which
// is meaningless once nobody awaits the response.
func isStaleFailure(msg *message.Message) bool {
	if msg.Size() != 1 {
		return false
	}

	switch msg.TypeAt(0) {
	case message.TypeFor[SyncTimeoutMsg](),
		message.TypeFor[RequestBounced]():

		return true
	}

	return false
}
