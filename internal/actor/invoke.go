package actor

import (
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/actorcore/internal/behavior"
	"github.com/roasbeef/actorcore/internal/mailbox"
	"github.com/roasbeef/actorcore/internal/message"
)

// InvokePolicy selects how an actor dispatches messages.
type InvokePolicy uint8

const (
	// Sequential never nests dispatches. Event-based actors use it.
	Sequential InvokePolicy = iota

	// Nestable supports blocking receives from inside a handler: the
	// element being processed is marked so nested receives skip it.
	// Fiber actors use it.
	Nestable
)

// String returns the policy name.
func (p InvokePolicy) String() string {
	if p == Nestable {
		return "nestable"
	}

	return "sequential"
}

// outcome is what happened to a dispatched element.
type outcome uint8

const (
	// consumed elements are done and released by the caller.
	consumed outcome = iota

	// skipped elements belong in the skip cache.
	skipped

	// dropped elements are done and released by the caller, but no
	// behavior ran for them.
	dropped
)

// invokeWith runs b on the element.
func (a *Local) invokeWith(e *mailbox.Element,
	b *behavior.Behavior) fn.Option[fn.Result[*message.Message]] {

	prev := a.current
	a.current = e
	if a.policy == Nestable {
		e.Mark()
	}

	res := b.Invoke(a.ctx, e.Msg)

	if a.policy == Nestable {
		e.Unmark()
	}
	a.current = prev

	return res
}

// handleTimeout consumes TimeoutMsg elements. fired is set if the element
// fired the armed idle timeout, after running its action.
func (a *Local) handleTimeout(e *mailbox.Element) (isTimeout, fired bool) {
	if !e.ID.IsAsync() || e.Sender != nil {
		return false, false
	}

	tm, ok := message.Match1[TimeoutMsg](e.Msg)
	if !ok {
		return false, false
	}

	if !a.timeoutArmed || tm.ID != a.timeoutSeq {
		log.TraceS(a.ctx, "Ignoring stale timeout", "actor_id", a.id,
			"timeout_id", tm.ID)

		return true, false
	}

	b := a.timeoutBehavior
	a.timeoutArmed = false
	a.timeoutBehavior = nil
	a.idleFired = true

	b.HandleTimeout(a.ctx)

	return true, true
}

// handleExit consumes exit messages that are not delivered to behaviors. It
// plans the exit if the message terminates the actor.
func (a *Local) handleExit(e *mailbox.Element) bool {
	em, ok := message.Match1[ExitMsg](e.Msg)
	if !ok {
		return false
	}

	switch {
	case em.Reason == ExitKill:
		a.plan(exitInfo{reason: ExitKill})

	case a.trapExit:
		return false

	case !em.Reason.IsNormal():
		a.plan(exitInfo{reason: em.Reason})
	}

	return true
}

// dispatch runs the element against the behavior stack: responses go to the
// behavior awaiting them, everything else to the general behavior.
func (a *Local) dispatch(e *mailbox.Element) outcome {
	if e.ID.IsResponse() {
		if b := a.stack.Find(e.ID).UnwrapOr(nil); b != nil {
			return a.dispatchAwaited(e, b)
		}
	}

	b := a.stack.General().UnwrapOr(nil)
	if b == nil {
		return a.unmatched(e)
	}

	res := a.invokeWith(e, b)
	if res.IsNone() {
		return a.unmatched(e)
	}

	res.WhenSome(func(r fn.Result[*message.Message]) {
		a.processed(e, r)
	})

	return consumed
}

// dispatchAwaited runs a response against the behavior awaiting it. The
// behavior is removed first; it stays alive until the end of the resume.
func (a *Local) dispatchAwaited(e *mailbox.Element,
	b *behavior.Behavior) outcome {

	a.stack.Erase(e.ID)
	a.cancelRequestTimer(e.ID)

	res := a.invokeWith(e, b)
	if res.IsNone() {
		a.failAwaited(e)
		return consumed
	}

	res.WhenSome(func(r fn.Result[*message.Message]) {
		a.processed(e, r)
	})

	return consumed
}

// dispatchTo runs the element against an explicit behavior. A non-async
// await id restricts the dispatch to the response carrying it.
func (a *Local) dispatchTo(e *mailbox.Element, b *behavior.Behavior,
	await mailbox.MessageID) outcome {

	if await != mailbox.AsyncID {
		if e.ID != await {
			return skipped
		}

		return a.dispatchAwaited(e, b)
	}

	res := a.invokeWith(e, b)
	if res.IsNone() {
		return a.unmatched(e)
	}

	res.WhenSome(func(r fn.Result[*message.Message]) {
		a.processed(e, r)
	})

	return consumed
}

// unmatched decides what to do with an element no behavior accepted.
func (a *Local) unmatched(e *mailbox.Element) outcome {
	if e.ID.IsResponse() && isStaleFailure(e.Msg) {
		log.TraceS(a.ctx, "Dropping stale failure response",
			"actor_id", a.id, "msg_id", e.ID)

		return dropped
	}

	return skipped
}

// failAwaited terminates the actor after an awaited response went
// unhandled.
func (a *Local) failAwaited(e *mailbox.Element) {
	reason := ExitUnhandledSyncFailure
	if message.HasPrefix(e.Msg, message.TypeFor[SyncTimeoutMsg]()) {
		reason = ExitUnhandledSyncTimeout
	}

	err := responseError(e.Msg)
	if err == nil {
		err = fmt.Errorf("unexpected response %v", e.Msg)
	}

	a.plan(exitInfo{reason: reason, err: err})
}

// processed finishes a matched element: requests are answered with the
// handler's result unless the handler took over the response.
func (a *Local) processed(e *mailbox.Element,
	res fn.Result[*message.Message]) {

	a.metrics.MessageProcessed(a.strategy)

	resp, err := res.Unpack()
	if !e.ID.IsRequest() || e.ID.IsAnswered() {
		if err != nil {
			log.DebugS(a.ctx, "Handler failed without requester",
				"actor_id", a.id, "msg_id", e.ID, "err", err)
		}

		return
	}

	e.ID = e.ID.MarkAnswered()
	if e.Sender == nil {
		return
	}

	switch {
	case err != nil:
		resp = message.Make1(err)

	case resp == nil:
		resp = message.Empty()
	}

	e.Sender.Enqueue(
		mailbox.Header{Sender: a, ID: e.ID.ResponseID()}, resp, a.eu,
	)
}
