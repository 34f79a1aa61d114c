package actor

import (
	"context"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/actorcore/internal/behavior"
	"github.com/roasbeef/actorcore/internal/mailbox"
	"github.com/roasbeef/actorcore/internal/message"
	"github.com/roasbeef/actorcore/internal/resumable"
)

// EventBased is a stackless actor. Every suspension is a return from
// Resume, so it never blocks the goroutine running it.
type EventBased struct {
	Local

	init    func(self *EventBased) *behavior.Behavior
	started bool
}

// NewEventBased creates an event-based actor. init runs on the first resume
// and returns the initial behavior; a nil behavior terminates the actor
// unless init installed one itself.
func NewEventBased(cfg Config,
	init func(self *EventBased) *behavior.Behavior) *EventBased {

	a := &EventBased{init: init}
	a.setup(cfg, a, strategyEvent, Sequential)

	return a
}

// Become replaces the general behavior.
func (a *EventBased) Become(b *behavior.Behavior) {
	a.stack.PopAsyncBack()
	a.stack.Push(b, mailbox.AsyncID)
	a.behaviorChanged()
}

// BecomeStacked installs b on top of the current behavior, which Unbecome
// restores.
func (a *EventBased) BecomeStacked(b *behavior.Behavior) {
	a.stack.Push(b, mailbox.AsyncID)
	a.behaviorChanged()
}

// Unbecome removes the general behavior. An actor without behaviors and
// without pending requests terminates normally.
func (a *EventBased) Unbecome() {
	if a.stack.PopAsyncBack() {
		a.behaviorChanged()
	}
}

// behaviorChanged schedules a replay of the skip cache and restarts the
// idle timeout.
func (a *EventBased) behaviorChanged() {
	a.cacheStale = a.cache.Len() > 0
	a.progress()
}

// PendingRequest is a request whose response handler is not installed yet.
type PendingRequest struct {
	a  *EventBased
	id mailbox.MessageID
}

// Request sends vals to dest as a request. A positive timeout answers the
// request with a SyncTimeoutMsg if no response arrived in time.
func (a *EventBased) Request(dest mailbox.Addr, timeout time.Duration,
	vals ...any) *PendingRequest {

	return a.RequestMessage(dest, timeout, message.Make(vals...))
}

// RequestMessage is Request for a prepared message.
func (a *EventBased) RequestMessage(dest mailbox.Addr, timeout time.Duration,
	msg *message.Message) *PendingRequest {

	return &PendingRequest{a: a, id: a.newRequest(dest, timeout, msg)}
}

// ID returns the id the response carries.
func (r *PendingRequest) ID() mailbox.MessageID {
	return r.id
}

// Then installs b as the handler of the response. Other messages keep going
// to the general behavior meanwhile. Failures (error responses, bounces and
// timeouts) go to onError; without onError an unhandled failure terminates
// the actor.
func (r *PendingRequest) Then(b *behavior.Behavior,
	onError func(ctx context.Context, err error)) mailbox.MessageID {

	if onError != nil {
		b = b.Or(errorBehavior(onError))
	}

	r.a.stack.Push(b, r.id)

	return r.id
}

// errorBehavior matches failure responses.
func errorBehavior(
	onError func(ctx context.Context, err error)) *behavior.Behavior {

	return behavior.New(behavior.On1(
		func(ctx context.Context, err error) fn.Result[*message.Message] {
			onError(ctx, err)
			return behavior.NoReply()
		},
	))
}

// CancelRequest drops the response handler of a request. A response that
// arrives later is dispatched like any other message.
func (a *EventBased) CancelRequest(id mailbox.MessageID) {
	a.stack.Erase(id)
	a.cancelRequestTimer(id)
}

// Resume implements resumable.Resumable.
func (a *EventBased) Resume(eu resumable.ExecutionUnit) resumable.Result {
	t := a.metrics.ResumeDuration(a.strategy)
	defer t.ObserveDuration()

	a.eu = eu

	res, err := a.run()
	switch {
	case err != nil:
		a.finish(exitInfo{reason: ExitUnhandledException, err: err})
		res = resumable.Done

	case res == resumable.Done:
		a.finish(a.planned.UnwrapOr(exitInfo{reason: ExitNormal}))
	}

	a.metrics.Resumed(a.strategy, res.String())

	return res
}

// exiting reports whether the actor reached a terminal condition.
func (a *EventBased) exiting() bool {
	return a.planned.IsSome() || a.stack.Empty()
}

// run is one resume cycle. Removed behaviors are released once it returned,
// since none of them can be executing anymore.
func (a *EventBased) run() (res resumable.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	defer a.stack.Cleanup()

	if !a.started {
		a.started = true
		if b := a.init(a); b != nil {
			a.stack.Push(b, mailbox.AsyncID)
		}
	}

	for handled := 0; ; {
		if a.exiting() {
			return resumable.Done, nil
		}

		if handled >= a.throughput {
			return resumable.ResumeLater, nil
		}

		if a.cacheStale {
			handled += a.replayCache()
			continue
		}

		if e := a.mbox.TryPop(); e != nil {
			a.consume(e)
			handled++

			continue
		}

		a.armTimeout(a.stack.General().UnwrapOr(nil))
		if a.mbox.TryBlock() {
			return resumable.AwaitingMessage, nil
		}
	}
}

// consume dispatches an element fresh from the mailbox.
func (a *EventBased) consume(e *mailbox.Element) {
	if isTimeout, _ := a.handleTimeout(e); isTimeout {
		e.Release()
		return
	}

	a.progress()

	if a.handleExit(e) {
		e.Release()
		return
	}

	a.inflight = e
	res := a.dispatch(e)
	a.inflight = nil

	switch res {
	case consumed, dropped:
		e.Release()

	case skipped:
		a.metrics.MessageSkipped(a.strategy)
		a.cache.PushBack(e)
	}
}

// replayCache offers every skipped element, oldest first, to the current
// behaviors. A behavior change during the replay restarts it from the
// front. It returns the number of consumed elements.
func (a *EventBased) replayCache() int {
	n := 0
	for a.cacheStale {
		a.cacheStale = false

		for e := a.cache.Front(); e != nil; {
			next := a.cache.Next(e)
			switch a.dispatch(e) {
			case consumed:
				a.cache.Remove(e)
				e.Release()
				n++

			case dropped:
				a.cache.Remove(e)
				e.Release()
			}

			if a.cacheStale || a.planned.IsSome() {
				break
			}
			e = next
		}

		if a.planned.IsSome() {
			a.cacheStale = false
		}
	}

	return n
}
