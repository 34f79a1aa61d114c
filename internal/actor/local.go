package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/actorcore/internal/behavior"
	"github.com/roasbeef/actorcore/internal/mailbox"
	"github.com/roasbeef/actorcore/internal/message"
	"github.com/roasbeef/actorcore/internal/metrics"
	"github.com/roasbeef/actorcore/internal/resumable"
)

// DefaultThroughput is the number of messages an actor processes in one
// resume before it yields to other actors.
const DefaultThroughput = 64

const (
	strategyEvent = "event"
	strategyFiber = "fiber"
)

// ErrAlreadyLaunched is returned when launching an actor twice.
var ErrAlreadyLaunched = errors.New("actor already launched")

// Config holds the configuration parameters for creating a new actor.
type Config struct {
	// ID is the unique identifier of the actor. A sequential id is
	// generated if empty.
	ID string

	// Throughput bounds the messages processed per resume. Zero means
	// DefaultThroughput.
	Throughput int

	// Timer arms idle and request timeouts. A private AfterFuncTimer is
	// used if nil.
	Timer Timer

	// Metrics receives runtime events. Nil disables them.
	Metrics metrics.Recorder

	// DeadLetters receives asynchronous messages sent to the actor after
	// it terminated. If nil, such messages are dropped.
	DeadLetters mailbox.Addr

	// Wg is an optional WaitGroup tracking the actor's lifetime. Add(1)
	// is called on creation and Done() once the actor terminated.
	Wg *sync.WaitGroup

	// TrapExit makes the actor receive non-kill exit messages as
	// ordinary messages instead of terminating.
	TrapExit bool
}

var idSeq atomic.Uint64

// Local holds the state shared by event-based and fiber actors: mailbox,
// behavior stack, skip cache, timeouts and the termination protocol. A
// *Local is the address of its actor.
type Local struct {
	id       string
	strategy string
	policy   InvokePolicy

	// self is the outer actor handed to execution units.
	self resumable.Resumable

	mbox  *mailbox.Mailbox
	stack behavior.Stack
	cache mailbox.Cache

	// cacheStale is set when the behavior changed, so skipped messages
	// are replayed before the mailbox is read again.
	cacheStale bool

	ctx    context.Context
	cancel context.CancelFunc

	throughput int
	timer      Timer
	metrics    metrics.Recorder
	dlo        mailbox.Addr
	wg         *sync.WaitGroup
	trapExit   bool

	launched atomic.Bool
	refs     atomic.Int32

	// home is the execution unit the actor was launched on. eu is the
	// one currently running it.
	home resumable.ExecutionUnit
	eu   resumable.ExecutionUnit

	// current is the element being dispatched.
	current *mailbox.Element

	// inflight is an element taken from the mailbox that is neither in
	// the skip cache nor released yet. A panicking handler leaves it
	// behind for the termination protocol to bounce.
	inflight *mailbox.Element

	requestSeq    uint64
	requestTimers map[mailbox.MessageID]TimerToken

	timeoutSeq      uint64
	timeoutArmed    bool
	timeoutToken    TimerToken
	timeoutBehavior *behavior.Behavior

	// idleFired is set once the idle timeout fired and cleared by the
	// next message or behavior change.
	idleFired bool

	planned fn.Option[exitInfo]

	// exit is written once, before the mailbox closes.
	exit exitInfo

	mu         sync.Mutex
	monitors   []mailbox.Addr
	terminated bool
	done       chan struct{}
}

func (a *Local) setup(cfg Config, self resumable.Resumable, strategy string,
	policy InvokePolicy) {

	a.id = cfg.ID
	if a.id == "" {
		a.id = fmt.Sprintf("%s-%d", strategy, idSeq.Add(1))
	}

	a.strategy = strategy
	a.policy = policy
	a.self = self
	a.mbox = mailbox.New()
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.throughput = cfg.Throughput
	if a.throughput <= 0 {
		a.throughput = DefaultThroughput
	}

	a.timer = cfg.Timer
	if a.timer == nil {
		a.timer = NewAfterFuncTimer()
	}

	a.metrics = cfg.Metrics
	if a.metrics == nil {
		a.metrics = metrics.Nop{}
	}

	a.dlo = cfg.DeadLetters
	a.wg = cfg.Wg
	a.trapExit = cfg.TrapExit
	a.requestTimers = make(map[mailbox.MessageID]TimerToken)
	a.planned = fn.None[exitInfo]()
	a.done = make(chan struct{})

	if a.wg != nil {
		a.wg.Add(1)
	}
}

// ID returns the actor's identifier.
func (a *Local) ID() string {
	return a.id
}

// String returns the actor's identifier.
func (a *Local) String() string {
	return a.id
}

// Addr returns the address of the actor.
func (a *Local) Addr() mailbox.Addr {
	return a
}

// Context returns a context that is cancelled once the actor terminated.
func (a *Local) Context() context.Context {
	return a.ctx
}

// Enqueue delivers a message to the actor. It never blocks: the message is
// either queued, scheduling the actor if it was waiting, or bounced if the
// actor terminated.
func (a *Local) Enqueue(hdr mailbox.Header, msg *message.Message,
	eu resumable.ExecutionUnit) {

	e := mailbox.NewElement(hdr, msg)
	switch a.mbox.Push(e) {
	case mailbox.UnblockedReader:
		a.schedule(eu)

	case mailbox.QueueClosed:
		a.bounce(e)
	}
}

// schedule hands the actor to eu, or to its home unit if eu is nil.
func (a *Local) schedule(eu resumable.ExecutionUnit) {
	if eu == nil {
		eu = a.home
	}

	a.self.Attach()
	eu.Exec(a.self)
}

// Launch schedules the first resume of the actor on eu, which also becomes
// the unit the actor is rescheduled on when woken up by senders that do not
// run on an execution unit.
func (a *Local) Launch(eu resumable.ExecutionUnit) error {
	if !a.launched.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ErrAlreadyLaunched, a.id)
	}

	log.DebugS(a.ctx, "Launching actor", "actor_id", a.id,
		"strategy", a.strategy)

	a.home = eu
	a.schedule(eu)

	return nil
}

// Attach implements resumable.Resumable.
func (a *Local) Attach() {
	a.refs.Add(1)
}

// Detach implements resumable.Resumable.
func (a *Local) Detach() {
	a.refs.Add(-1)
}

// Refs returns the number of execution unit references.
func (a *Local) Refs() int32 {
	return a.refs.Load()
}

// bounce rejects an element on behalf of a terminated actor. Pending
// requests get exactly one RequestBounced response, asynchronous messages go
// to the dead letter address.
func (a *Local) bounce(e *mailbox.Element) {
	defer e.Release()

	a.metrics.MessageBounced(a.strategy)

	switch {
	case e.ID.IsRequest() && !e.ID.IsAnswered():
		if e.Sender == nil {
			return
		}

		e.Sender.Enqueue(
			mailbox.Header{Sender: a, ID: e.ID.ResponseID()},
			message.Make1(RequestBounced{
				Source: a.id,
				Reason: a.exit.reason,
			}), nil,
		)

	case e.ID.IsAsync() && a.dlo != nil && a.dlo != mailbox.Addr(a) &&
		!message.HasPrefix(e.Msg, message.TypeFor[TimeoutMsg]()):

		log.TraceS(a.ctx, "Routing message to dead letters",
			"actor_id", a.id, "msg", e.Msg)

		a.dlo.Enqueue(e.Header, e.Msg, nil)

	default:
		log.TraceS(a.ctx, "Dropping message of terminated actor",
			"actor_id", a.id, "msg_id", e.ID)
	}
}

// Send delivers vals as an asynchronous message to dest.
func (a *Local) Send(dest mailbox.Addr, vals ...any) {
	a.SendMessage(dest, message.Make(vals...))
}

// SendMessage delivers msg as an asynchronous message to dest.
func (a *Local) SendMessage(dest mailbox.Addr, msg *message.Message) {
	dest.Enqueue(mailbox.Header{Sender: a}, msg, a.eu)
}

// Sender returns the sender of the message being processed, or nil.
func (a *Local) Sender() mailbox.Addr {
	if a.current == nil {
		return nil
	}

	return a.current.Sender
}

// MessageID returns the id of the message being processed.
func (a *Local) MessageID() mailbox.MessageID {
	if a.current == nil {
		return mailbox.AsyncID
	}

	return a.current.ID
}

// ResponsePromise answers a request after its handler returned.
type ResponsePromise struct {
	self mailbox.Addr
	dest mailbox.Addr
	id   mailbox.MessageID
}

// Pending reports whether the promise still has to be delivered to
// somebody.
func (p ResponsePromise) Pending() bool {
	return p.dest != nil && p.id.IsResponse()
}

// Deliver sends msg as the response. It may be called from any goroutine,
// at most once.
func (p ResponsePromise) Deliver(msg *message.Message) {
	if !p.Pending() {
		return
	}

	p.dest.Enqueue(mailbox.Header{Sender: p.self, ID: p.id}, msg, nil)
}

// MakeResponsePromise takes over responsibility for answering the request
// being processed. The handler's own result is then not sent back. Outside
// of a request, the returned promise is not pending.
func (a *Local) MakeResponsePromise() ResponsePromise {
	e := a.current
	if e == nil || !e.ID.IsRequest() || e.ID.IsAnswered() {
		return ResponsePromise{}
	}

	e.ID = e.ID.MarkAnswered()

	return ResponsePromise{
		self: a,
		dest: e.Sender,
		id:   e.ID.ResponseID(),
	}
}

// monitorable is implemented by addresses that report their termination.
type monitorable interface {
	AddMonitor(watcher mailbox.Addr)
	RemoveMonitor(watcher mailbox.Addr)
}

// Monitor asks target to send a DownMsg to this actor once it terminates.
// It reports whether target supports monitoring.
func (a *Local) Monitor(target mailbox.Addr) bool {
	m, ok := target.(monitorable)
	if ok {
		m.AddMonitor(a)
	}

	return ok
}

// Demonitor undoes Monitor.
func (a *Local) Demonitor(target mailbox.Addr) {
	if m, ok := target.(monitorable); ok {
		m.RemoveMonitor(a)
	}
}

// AddMonitor registers watcher for a DownMsg. A watcher added after the
// actor terminated is notified immediately.
func (a *Local) AddMonitor(watcher mailbox.Addr) {
	a.mu.Lock()
	if !a.terminated {
		a.monitors = append(a.monitors, watcher)
		a.mu.Unlock()

		return
	}
	info := a.exit
	a.mu.Unlock()

	watcher.Enqueue(mailbox.Header{Sender: a}, message.Make1(DownMsg{
		Source: a,
		Reason: info.reason,
		Err:    info.err,
	}), nil)
}

// RemoveMonitor unregisters every registration of watcher.
func (a *Local) RemoveMonitor(watcher mailbox.Addr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.monitors[:0]
	for _, m := range a.monitors {
		if m != watcher {
			kept = append(kept, m)
		}
	}
	clear(a.monitors[len(kept):])
	a.monitors = kept
}

// SetTrapExit changes whether exit messages are delivered as ordinary
// messages.
func (a *Local) SetTrapExit(trap bool) {
	a.trapExit = trap
}

// plan records the exit the actor performs at the next suspension point.
// The first planned exit wins.
func (a *Local) plan(info exitInfo) {
	if a.planned.IsNone() {
		a.planned = fn.Some(info)
	}
}

// Quit terminates the actor with reason once the current message has been
// processed.
func (a *Local) Quit(reason ExitReason) {
	a.plan(exitInfo{reason: reason})
}

// Done returns a channel closed once the actor terminated.
func (a *Local) Done() <-chan struct{} {
	return a.done
}

// Exit returns the reason and error of the termination. It is only
// meaningful once Done is closed.
func (a *Local) Exit() (ExitReason, error) {
	return a.exit.reason, a.exit.err
}

// Terminated reports whether the actor terminated.
func (a *Local) Terminated() bool {
	select {
	case <-a.done:
		return true

	default:
		return false
	}
}

// finish runs the termination protocol: every pending message is bounced,
// the mailbox is closed and monitors are notified.
func (a *Local) finish(info exitInfo) {
	a.cancelTimeout()
	for id, token := range a.requestTimers {
		a.timer.Cancel(token)
		delete(a.requestTimers, id)
	}

	a.stack.Clear()
	a.stack.Cleanup()

	// Written before the mailbox closes so that late senders bounce with
	// the right reason.
	a.exit = info

	if a.inflight != nil {
		a.bounce(a.inflight)
		a.inflight = nil
	}

	cached := a.cache.Len()
	a.cache.Drain(a.bounce)
	a.mbox.Close(a.bounce)
	a.cancel()

	a.mu.Lock()
	a.terminated = true
	monitors := a.monitors
	a.monitors = nil
	a.mu.Unlock()

	for _, m := range monitors {
		m.Enqueue(mailbox.Header{Sender: a}, message.Make1(DownMsg{
			Source: a,
			Reason: info.reason,
			Err:    info.err,
		}), a.eu)
	}

	a.metrics.ActorExited(a.strategy, info.reason.String())

	if info.reason.IsNormal() {
		log.DebugS(a.ctx, "Actor terminated", "actor_id", a.id,
			"bounced_cached", cached)
	} else {
		log.WarnS(a.ctx, "Actor terminated abnormally", info.err,
			"actor_id", a.id, "reason", info.reason)
	}

	close(a.done)

	if a.wg != nil {
		a.wg.Done()
	}
}

// panicError converts a recovered panic value into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("handler panic: %w", err)
	}

	return fmt.Errorf("handler panic: %v", r)
}

// newRequest sends msg to dest as a request and returns the id its response
// will carry. A positive timeout delivers a SyncTimeoutMsg response if no
// other response arrived in time.
func (a *Local) newRequest(dest mailbox.Addr, timeout time.Duration,
	msg *message.Message) mailbox.MessageID {

	a.requestSeq++
	id := mailbox.NewRequestID(a.requestSeq)
	respID := id.ResponseID()

	if timeout > 0 {
		a.requestTimers[respID] = a.timer.Arm(timeout, func() {
			a.Enqueue(mailbox.Header{ID: respID},
				message.Make1(SyncTimeoutMsg{}), nil)
		})
	}

	dest.Enqueue(mailbox.Header{Sender: a, ID: id}, msg, a.eu)

	return respID
}

// cancelRequestTimer stops the timeout of the request answered by id.
func (a *Local) cancelRequestTimer(id mailbox.MessageID) {
	if token, ok := a.requestTimers[id]; ok {
		a.timer.Cancel(token)
		delete(a.requestTimers, id)
	}
}

// armTimeout arms the idle timeout of b, once per idle period.
func (a *Local) armTimeout(b *behavior.Behavior) {
	if a.timeoutArmed || a.idleFired || b == nil {
		return
	}

	b.Timeout().WhenSome(func(d time.Duration) {
		a.timeoutSeq++
		id := a.timeoutSeq

		a.timeoutArmed = true
		a.timeoutBehavior = b
		a.timeoutToken = a.timer.Arm(d, func() {
			a.Enqueue(mailbox.Header{},
				message.Make1(TimeoutMsg{ID: id}), nil)
		})
	})
}

// cancelTimeout disarms a pending idle timeout. A TimeoutMsg already in
// flight is recognized as stale by its id.
func (a *Local) cancelTimeout() {
	if !a.timeoutArmed {
		return
	}

	a.timer.Cancel(a.timeoutToken)
	a.timeoutArmed = false
	a.timeoutBehavior = nil
}

// progress records the arrival of a new message.
func (a *Local) progress() {
	a.cancelTimeout()
	a.idleFired = false
}
