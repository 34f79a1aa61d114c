package actor

// ExitReason tells monitors why an actor terminated.
type ExitReason uint8

const (
	// ExitNormal is a regular termination: the behavior stack ran empty,
	// the fiber body returned, or the actor quit without a reason.
	ExitNormal ExitReason = iota

	// ExitUnhandledException means a handler panicked.
	ExitUnhandledException

	// ExitUnhandledSyncFailure means a response did not match the
	// behavior awaiting it and no error handler was installed.
	ExitUnhandledSyncFailure

	// ExitUnhandledSyncTimeout means a request timed out and no error
	// handler was installed.
	ExitUnhandledSyncTimeout

	// ExitKill is the reason of an untrappable exit message.
	ExitKill

	// ExitUserShutdown is the reason used for requested shutdowns.
	ExitUserShutdown
)

// String returns the reason name used in logs and metrics.
func (r ExitReason) String() string {
	switch r {
	case ExitNormal:
		return "normal"

	case ExitUnhandledException:
		return "unhandled_exception"

	case ExitUnhandledSyncFailure:
		return "unhandled_sync_failure"

	case ExitUnhandledSyncTimeout:
		return "unhandled_sync_timeout"

	case ExitKill:
		return "kill"

	case ExitUserShutdown:
		return "user_shutdown"

	default:
		return "unknown"
	}
}

// IsNormal reports whether r is ExitNormal.
func (r ExitReason) IsNormal() bool {
	return r == ExitNormal
}

// exitInfo is a reason plus the error that caused it, if any.
type exitInfo struct {
	reason ExitReason
	err    error
}
