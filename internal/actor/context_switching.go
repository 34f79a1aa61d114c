package actor

import (
	"context"
	"runtime"
	"time"

	"github.com/roasbeef/actorcore/internal/behavior"
	"github.com/roasbeef/actorcore/internal/fiber"
	"github.com/roasbeef/actorcore/internal/mailbox"
	"github.com/roasbeef/actorcore/internal/message"
	"github.com/roasbeef/actorcore/internal/resumable"
)

// Fiber is a stackful actor. Its body is ordinary blocking code running on a
// fiber context: Receive suspends the body until a matching message arrived,
// and the execution unit is free to run other actors meanwhile. The body
// goroutine lives until the body returns or the actor terminates, so a
// fiber must be killed rather than abandoned.
type Fiber struct {
	Local

	body func(self *Fiber)
	fctx *fiber.Context

	// handled counts messages processed in the current resume.
	handled int

	// gen changes whenever a receive starts, so a cache scan notices
	// nested receives that may have removed elements under it.
	gen uint64
}

// NewFiber creates a fiber actor running body. The actor terminates
// normally when body returns.
func NewFiber(cfg Config, body func(self *Fiber)) *Fiber {
	f := &Fiber{body: body}
	f.setup(cfg, f, strategyFiber, Nestable)
	f.fctx = fiber.New(func(*fiber.Context) {
		f.body(f)
	})

	return f
}

// Quit terminates the actor immediately, unwinding the body. It must be
// called from the body.
func (f *Fiber) Quit(reason ExitReason) {
	f.plan(exitInfo{reason: reason})
	runtime.Goexit()
}

// Resume implements resumable.Resumable.
func (f *Fiber) Resume(eu resumable.ExecutionUnit) resumable.Result {
	t := f.metrics.ResumeDuration(f.strategy)
	defer t.ObserveDuration()

	f.eu = eu
	f.handled = 0

	res := f.resume(eu.FiberContext())
	f.metrics.Resumed(f.strategy, res.String())

	return res
}

func (f *Fiber) resume(caller *fiber.Context) resumable.Result {
	for {
		switch fiber.Switch(caller, f.fctx, fiber.Ready) {
		case fiber.Blocked:
			if f.mbox.TryBlock() {
				return resumable.AwaitingMessage
			}

			// A message arrived after the body looked: switch back in.

		case fiber.Ready:
			return resumable.ResumeLater

		case fiber.Done:
			info := f.planned.UnwrapOr(exitInfo{reason: ExitNormal})
			if r := f.fctx.Recovered(); r != nil {
				info = exitInfo{
					reason: ExitUnhandledException,
					err:    panicError(r),
				}
			}
			f.finish(info)

			return resumable.Done
		}
	}
}

// exitIfPlanned unwinds the body once an exit is planned.
func (f *Fiber) exitIfPlanned() {
	if f.planned.IsSome() {
		runtime.Goexit()
	}
}

// yieldIfExhausted gives the execution unit back once the throughput of
// the current resume is used up.
func (f *Fiber) yieldIfExhausted() {
	f.handled++
	if f.handled >= f.throughput {
		f.fctx.Yield(fiber.Ready)
		f.handled = 0
	}
}

// Receive blocks until b processed one message, or until the timeout of b
// fired. Messages b does not match stay cached for later receives.
func (f *Fiber) Receive(b *behavior.Behavior) {
	f.receive(b, mailbox.AsyncID)
}

// ReceiveWhile receives with b for as long as cond holds.
func (f *Fiber) ReceiveWhile(cond func() bool, b *behavior.Behavior) {
	for cond() {
		f.Receive(b)
	}
}

func (f *Fiber) receive(b *behavior.Behavior, await mailbox.MessageID) {
	f.gen++
	f.idleFired = false

	for {
		f.exitIfPlanned()

		if f.receiveCached(b, await) {
			f.exitIfPlanned()
			return
		}

		e := f.mbox.TryPop()
		if e == nil {
			if await == mailbox.AsyncID {
				f.armTimeout(b)
			}
			f.fctx.Yield(fiber.Blocked)

			continue
		}

		if isTimeout, fired := f.handleTimeout(e); isTimeout {
			e.Release()
			if fired {
				f.exitIfPlanned()
				return
			}

			continue
		}

		f.progress()

		if f.handleExit(e) {
			e.Release()
			continue
		}

		// The element sits in the cache while it is processed, marked,
		// so nested receives preserve its position and skip it.
		f.cache.PushBack(e)
		switch f.dispatchTo(e, b, await) {
		case consumed:
			f.cache.Remove(e)
			e.Release()
			f.yieldIfExhausted()
			f.exitIfPlanned()

			return

		case dropped:
			f.cache.Remove(e)
			e.Release()

		case skipped:
			f.metrics.MessageSkipped(f.strategy)
		}
	}
}

// receiveCached offers cached elements, oldest first, to b. It reports
// whether one was consumed.
func (f *Fiber) receiveCached(b *behavior.Behavior,
	await mailbox.MessageID) bool {

	for e := f.cache.Front(); e != nil; {
		if e.Marked() {
			e = f.cache.Next(e)
			continue
		}

		gen := f.gen
		next := f.cache.Next(e)
		switch f.dispatchTo(e, b, await) {
		case consumed:
			f.cache.Remove(e)
			e.Release()
			f.yieldIfExhausted()

			return true

		case dropped:
			f.cache.Remove(e)
			e.Release()
		}

		if f.gen != gen {
			e = f.cache.Front()
			continue
		}
		e = next
	}

	return false
}

// FiberRequest is a request sent from a fiber actor.
type FiberRequest struct {
	f  *Fiber
	id mailbox.MessageID
}

// Request sends vals to dest as a request. A positive timeout answers the
// request with a SyncTimeoutMsg if no response arrived in time.
func (f *Fiber) Request(dest mailbox.Addr, timeout time.Duration,
	vals ...any) *FiberRequest {

	return &FiberRequest{
		f:  f,
		id: f.newRequest(dest, timeout, message.Make(vals...)),
	}
}

// ID returns the id the response carries.
func (r *FiberRequest) ID() mailbox.MessageID {
	return r.id
}

// Receive blocks until the response arrived and was processed by b. Other
// messages are cached meanwhile. Failures go to onError; without onError an
// unhandled failure terminates the actor.
func (r *FiberRequest) Receive(b *behavior.Behavior,
	onError func(ctx context.Context, err error)) {

	if onError != nil {
		b = b.Or(errorBehavior(onError))
	}

	r.f.receive(b, r.id)
}
