// Package actorutil provides helpers for talking to actors from plain Go
// code: blocking asks, fan-out requests and result combinators.
package actorutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/actorcore/internal/actor"
	"github.com/roasbeef/actorcore/internal/mailbox"
	"github.com/roasbeef/actorcore/internal/message"
)

// ErrNoDestinations is returned by FirstSuccess for an empty destination
// list.
var ErrNoDestinations = errors.New("no destinations provided")

// AskAwait sends vals to dest as a request and blocks until the response
// arrived or ctx is done.
func AskAwait(ctx context.Context, dest mailbox.Addr,
	vals ...any) (*message.Message, error) {

	return actor.Ask(ctx, dest, message.Make(vals...)).Await(ctx).Unpack()
}

// AskAwait1 is AskAwait for responses holding exactly one value of type T.
func AskAwait1[T any](ctx context.Context, dest mailbox.Addr,
	vals ...any) (T, error) {

	var zero T

	resp, err := AskAwait(ctx, dest, vals...)
	if err != nil {
		return zero, err
	}

	v, ok := message.Match1[T](resp)
	if !ok {
		return zero, fmt.Errorf("unexpected response %v, want %T",
			resp, zero)
	}

	return v, nil
}

// TellAll sends vals to every destination as an asynchronous message. Each
// destination gets its own handle onto the same storage.
func TellAll(dests []mailbox.Addr, vals ...any) {
	if len(dests) == 0 {
		return
	}

	msg := message.Make(vals...)
	for i, dest := range dests {
		m := msg
		if i < len(dests)-1 {
			m = msg.Share()
		}
		dest.Enqueue(mailbox.Header{}, m, nil)
	}
}

// ParallelAsk sends vals as a request to every destination at once and
// collects the results in destination order.
func ParallelAsk(ctx context.Context, dests []mailbox.Addr,
	vals ...any) []fn.Result[*message.Message] {

	futures := make([]actor.Future[*message.Message], len(dests))
	for i, dest := range dests {
		futures[i] = actor.Ask(ctx, dest, message.Make(vals...))
	}

	results := make([]fn.Result[*message.Message], len(futures))
	for i, f := range futures {
		results[i] = f.Await(ctx)
	}

	return results
}

// FirstSuccess sends vals as a request to every destination and returns the
// first successful response. If all requests fail, the last error is
// returned.
func FirstSuccess(ctx context.Context, dests []mailbox.Addr,
	vals ...any) (*message.Message, error) {

	if len(dests) == 0 {
		return nil, ErrNoDestinations
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultCh := make(chan fn.Result[*message.Message], len(dests))
	for _, dest := range dests {
		actor.Ask(ctx, dest, message.Make(vals...)).OnComplete(
			ctx, func(r fn.Result[*message.Message]) {
				resultCh <- r
			},
		)
	}

	var lastErr error
	for range dests {
		select {
		case res := <-resultCh:
			resp, err := res.Unpack()
			if err == nil {
				return resp, nil
			}
			lastErr = err

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// MapResponses transforms the successful results with mapFn. Errors pass
// through unchanged.
func MapResponses[R, T any](results []fn.Result[R],
	mapFn func(R) T) []fn.Result[T] {

	mapped := make([]fn.Result[T], len(results))
	for i, r := range results {
		val, err := r.Unpack()
		if err != nil {
			mapped[i] = fn.Err[T](err)
			continue
		}
		mapped[i] = fn.Ok(mapFn(val))
	}

	return mapped
}

// CollectSuccesses returns the successful values, dropping errors.
func CollectSuccesses[R any](results []fn.Result[R]) []R {
	var successes []R
	for _, r := range results {
		if val, err := r.Unpack(); err == nil {
			successes = append(successes, val)
		}
	}

	return successes
}

// AllSucceeded reports whether no result is an error.
func AllSucceeded[R any](results []fn.Result[R]) bool {
	return FirstError(results) == nil
}

// FirstError returns the first error among results, or nil.
func FirstError[R any](results []fn.Result[R]) error {
	for _, r := range results {
		if _, err := r.Unpack(); err != nil {
			return err
		}
	}

	return nil
}
