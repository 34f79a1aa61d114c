// Package behavior implements actor behaviors, ordered partial functions from
// messages to optional responses, and the stack an actor keeps them on.
package behavior

import (
	"context"
	"errors"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/actorcore/internal/message"
)

// ErrSkip is returned by a handler that declines a message its pattern
// accepted. The message is then offered to the following cases.
var ErrSkip = errors.New("behavior: message skipped")

// Handler processes a matched message. A nil message in an ok result means
// "no reply"; requests then receive an empty response.
type Handler func(ctx context.Context,
	msg *message.Message) fn.Result[*message.Message]

// Pattern decides whether a case applies to a message.
type Pattern func(msg *message.Message) bool

// Case is one clause of a behavior.
type Case struct {
	Pattern Pattern
	Handler Handler
}

// Match builds a case from an arbitrary pattern.
func Match(p Pattern, h Handler) Case {
	return Case{Pattern: p, Handler: h}
}

// Others builds a case matching every message.
func Others(h Handler) Case {
	return Case{
		Pattern: func(*message.Message) bool { return true },
		Handler: h,
	}
}

// On1 builds a case for single-element messages of type A.
func On1[A any](f func(ctx context.Context,
	a A) fn.Result[*message.Message]) Case {

	return Case{
		Pattern: func(m *message.Message) bool {
			_, ok := message.Match1[A](m)
			return ok
		},
		Handler: func(ctx context.Context,
			m *message.Message) fn.Result[*message.Message] {

			a, _ := message.Match1[A](m)
			return f(ctx, a)
		},
	}
}

// On2 builds a case for two-element messages of types (A, B).
func On2[A, B any](f func(ctx context.Context, a A,
	b B) fn.Result[*message.Message]) Case {

	return Case{
		Pattern: func(m *message.Message) bool {
			_, _, ok := message.Match2[A, B](m)
			return ok
		},
		Handler: func(ctx context.Context,
			m *message.Message) fn.Result[*message.Message] {

			a, b, _ := message.Match2[A, B](m)
			return f(ctx, a, b)
		},
	}
}

// On3 builds a case for three-element messages of types (A, B, C).
func On3[A, B, C any](f func(ctx context.Context, a A, b B,
	c C) fn.Result[*message.Message]) Case {

	return Case{
		Pattern: func(m *message.Message) bool {
			_, _, _, ok := message.Match3[A, B, C](m)
			return ok
		},
		Handler: func(ctx context.Context,
			m *message.Message) fn.Result[*message.Message] {

			a, b, c, _ := message.Match3[A, B, C](m)
			return f(ctx, a, b, c)
		},
	}
}

// Reply returns a result carrying a dynamically typed response.
func Reply(vals ...any) fn.Result[*message.Message] {
	return fn.Ok(message.Make(vals...))
}

// ReplyWith returns a result carrying msg as the response.
func ReplyWith(msg *message.Message) fn.Result[*message.Message] {
	return fn.Ok(msg)
}

// NoReply returns a successful result without a response.
func NoReply() fn.Result[*message.Message] {
	return fn.Ok[*message.Message](nil)
}

// Skip returns the result declining the message.
func Skip() fn.Result[*message.Message] {
	return fn.Err[*message.Message](ErrSkip)
}

// Fail returns a failed result. Requesters receive err as the response.
func Fail(err error) fn.Result[*message.Message] {
	return fn.Err[*message.Message](err)
}

// Behavior is an ordered list of cases plus an optional timeout.
type Behavior struct {
	cases []Case

	timeout   fn.Option[time.Duration]
	onTimeout func(ctx context.Context)
}

// New builds a behavior trying cases in order.
func New(cases ...Case) *Behavior {
	return &Behavior{
		cases:   cases,
		timeout: fn.None[time.Duration](),
	}
}

// WithTimeout returns a copy of the behavior that runs action once whenever
// the actor stays idle for d while the behavior is current.
func (b *Behavior) WithTimeout(d time.Duration,
	action func(ctx context.Context)) *Behavior {

	c := *b
	c.timeout = fn.Some(d)
	c.onTimeout = action

	return &c
}

// Or returns a behavior trying the cases of b, then those of other. The
// timeout of b wins if both have one.
func (b *Behavior) Or(other *Behavior) *Behavior {
	cases := make([]Case, 0, len(b.cases)+len(other.cases))
	cases = append(cases, b.cases...)
	cases = append(cases, other.cases...)

	c := &Behavior{
		cases:     cases,
		timeout:   b.timeout,
		onTimeout: b.onTimeout,
	}
	if b.timeout.IsNone() {
		c.timeout = other.timeout
		c.onTimeout = other.onTimeout
	}

	return c
}

// Timeout returns the idle timeout of the behavior, if any.
func (b *Behavior) Timeout() fn.Option[time.Duration] {
	return b.timeout
}

// HandleTimeout runs the timeout action.
func (b *Behavior) HandleTimeout(ctx context.Context) {
	if b.onTimeout != nil {
		b.onTimeout(ctx)
	}
}

// Invoke runs the first case that accepts msg. It returns None if no case
// matched, which is never an error.
func (b *Behavior) Invoke(ctx context.Context,
	msg *message.Message) fn.Option[fn.Result[*message.Message]] {

	for _, c := range b.cases {
		if !c.Pattern(msg) {
			continue
		}

		res := c.Handler(ctx, msg)
		if _, err := res.Unpack(); errors.Is(err, ErrSkip) {
			continue
		}

		return fn.Some(res)
	}

	return fn.None[fn.Result[*message.Message]]()
}
