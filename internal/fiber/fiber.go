// Package fiber implements suspendable execution contexts with an explicit
// two-party switch primitive.
//
// A body context runs its function on a dedicated goroutine, but only while
// some other context has switched into it: control is handed back and forth
// over unbuffered channels, so at any moment exactly one of the contexts
// taking part in a switch is running. A caller context (NewCaller) stands for
// whatever goroutine currently drives the body, typically a scheduler worker.
//
// All bookkeeping is carried by the contexts passed to Switch; nothing is
// kept in goroutine-local or global state.
package fiber

import (
	"errors"
	"runtime"
)

// ErrFinished is the panic value for switching into a context whose body
// already returned.
var ErrFinished = errors.New("fiber: switch into finished context")

// State is the value a context hands over when it switches away.
type State uint8

const (
	// Ready means the body can make progress and yielded voluntarily.
	Ready State = iota

	// Blocked means the body is waiting for input.
	Blocked

	// Done means the body returned (or exited) and will not run again.
	Done
)

// String returns a human readable name for the state.
func (s State) String() string {
	switch s {
	case Ready:
		return "ready"

	case Blocked:
		return "blocked"

	case Done:
		return "done"

	default:
		return "unknown"
	}
}

// transfer is what travels over a context's wake channel.
type transfer struct {
	state State
	kill  bool
}

// Context is an execution context that can be switched into and out of.
type Context struct {
	// wake receives control whenever another context switches here.
	wake chan transfer

	// body is nil for caller contexts.
	body func(self *Context)

	// caller is the context that most recently switched into this one;
	// Yield returns control to it.
	caller *Context

	// started is set once the body goroutine exists.
	started bool

	// finished is set by the body goroutine before it reports Done.
	finished bool

	// killed is set when the body is being unwound by Destroy.
	killed bool

	// recovered holds a panic value that escaped the body.
	recovered any

	// exited is closed when the body goroutine is gone.
	exited chan struct{}
}

// NewCaller returns a context representing the goroutine that calls Switch
// with it as the from argument.
func NewCaller() *Context {
	return &Context{wake: make(chan transfer)}
}

// New creates a context that will run body the first time it is switched
// into. No goroutine exists until then.
func New(body func(self *Context)) *Context {
	return &Context{
		wake: make(chan transfer),
		body: body,
	}
}

// Switch saves the running context from, hands control together with state
// to the context to, and blocks until some context switches back into from.
// It returns the state handed over by that context.
func Switch(from, to *Context, state State) State {
	if to.body != nil {
		if to.finished {
			panic(ErrFinished)
		}
		if !to.started {
			to.start()
		}
	}

	to.caller = from
	to.wake <- transfer{state: state}

	t := <-from.wake
	if t.kill {
		from.killed = true
		runtime.Goexit()
	}

	return t.state
}

// Yield hands control back to the context that last switched into c, which
// must be the running body context. It returns once c is resumed.
func (c *Context) Yield(state State) State {
	return Switch(c, c.caller, state)
}

// start launches the body goroutine, parked until the first switch.
func (c *Context) start() {
	c.started = true
	c.exited = make(chan struct{})

	go func() {
		defer close(c.exited)

		if t := <-c.wake; t.kill {
			return
		}

		defer func() {
			// A recovered value is nil both for normal returns and
			// for runtime.Goexit.
			c.recovered = recover()
			if c.killed {
				return
			}

			c.finished = true
			c.caller.wake <- transfer{state: Done}
		}()

		c.body(c)
	}()
}

// Finished reports whether the body has returned.
func (c *Context) Finished() bool {
	return c.finished
}

// Recovered returns the panic value that escaped the body, if any. Only
// meaningful after the body reported Done.
func (c *Context) Recovered() any {
	return c.recovered
}

// Destroy releases the context. A suspended body is unwound: its deferred
// calls run and its goroutine exits before Destroy returns. Destroy must not
// be called while the body is running.
func (c *Context) Destroy() {
	if c.body == nil || !c.started || c.finished || c.killed {
		return
	}

	c.wake <- transfer{kill: true}
	<-c.exited
}
