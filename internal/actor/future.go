package actor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/actorcore/internal/mailbox"
	"github.com/roasbeef/actorcore/internal/message"
	"github.com/roasbeef/actorcore/internal/resumable"
)

// Future is the read side of a result that completes once.
type Future[T any] interface {
	// Await returns the result, or the context error if ctx ends first.
	Await(ctx context.Context) fn.Result[T]

	// ThenApply returns a future holding fn applied to a successful
	// result. Errors, including the error of an expired ctx, pass
	// through unchanged.
	ThenApply(ctx context.Context, fn func(T) T) Future[T]

	// OnComplete runs fn on its own goroutine with the result, or with
	// the context error if ctx ends first.
	OnComplete(ctx context.Context, fn func(fn.Result[T]))
}

// Promise is the write side of a Future.
type Promise[T any] interface {
	// Future returns the read side.
	Future() Future[T]

	// Complete sets the result. Only the first call wins; it reports
	// whether this call did.
	Complete(result fn.Result[T]) bool
}

// promise is the channel based Promise and Future implementation.
type promise[T any] struct {
	once   sync.Once
	done   chan struct{}
	result fn.Result[T]
}

// NewPromise creates an uncompleted promise.
func NewPromise[T any]() Promise[T] {
	return &promise[T]{done: make(chan struct{})}
}

// Future implements Promise.
func (p *promise[T]) Future() Future[T] {
	return p
}

// Complete implements Promise.
func (p *promise[T]) Complete(result fn.Result[T]) bool {
	completed := false
	p.once.Do(func() {
		p.result = result
		close(p.done)
		completed = true
	})

	return completed
}

// Await implements Future.
func (p *promise[T]) Await(ctx context.Context) fn.Result[T] {
	select {
	case <-p.done:
		return p.result

	case <-ctx.Done():
		return fn.Err[T](ctx.Err())
	}
}

// ThenApply implements Future.
func (p *promise[T]) ThenApply(ctx context.Context,
	f func(T) T) Future[T] {

	next := NewPromise[T]()
	go func() {
		res := p.Await(ctx)
		v, err := res.Unpack()
		if err != nil {
			next.Complete(res)
			return
		}

		next.Complete(fn.Ok(f(v)))
	}()

	return next.Future()
}

// OnComplete implements Future.
func (p *promise[T]) OnComplete(ctx context.Context, f func(fn.Result[T])) {
	go func() {
		f(p.Await(ctx))
	}()
}

// promiseAddr is a one-shot address completing a promise with the first
// response delivered to it.
type promiseAddr struct {
	id string
	p  Promise[*message.Message]
}

// ID implements mailbox.Addr.
func (a *promiseAddr) ID() string {
	return a.id
}

// Enqueue implements mailbox.Addr. Failure responses complete the promise
// with their error.
func (a *promiseAddr) Enqueue(hdr mailbox.Header, msg *message.Message,
	_ resumable.ExecutionUnit) {

	if err := responseError(msg); err != nil {
		a.p.Complete(fn.Err[*message.Message](err))
		return
	}

	a.p.Complete(fn.Ok(msg))
}

var askSeq atomic.Uint64

// Ask sends msg as a request to dest from outside of any actor and returns a
// future for the response. Error responses, including RequestBounced, fail
// the future. The context bounds Await only; dest may still process the
// request after ctx expired.
func Ask(ctx context.Context, dest mailbox.Addr,
	msg *message.Message) Future[*message.Message] {

	p := NewPromise[*message.Message]()
	if err := ctx.Err(); err != nil {
		p.Complete(fn.Err[*message.Message](err))
		return p.Future()
	}

	id := mailbox.NewRequestID(askSeq.Add(1))
	sender := &promiseAddr{id: "ask-" + id.String(), p: p}
	dest.Enqueue(mailbox.Header{Sender: sender, ID: id}, msg, nil)

	return p.Future()
}
