package actor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roasbeef/actorcore/internal/behavior"
	"github.com/roasbeef/actorcore/internal/mailbox"
	"github.com/roasbeef/actorcore/internal/message"
	"github.com/stretchr/testify/require"
)

// TestFiberReceiveSkips tests that Receive caches unmatched messages for
// later receives, in arrival order.
func TestFiberReceiveSkips(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	var got []any
	record := func(_ context.Context, m *message.Message) result {
		got = append(got, m.At(0))
		return behavior.NoReply()
	}

	f := NewFiber(h.cfg("fiber"), func(self *Fiber) {
		self.Receive(behavior.New(behavior.Match(
			func(m *message.Message) bool {
				_, ok := message.Match1[int](m)
				return ok
			}, record,
		)))
		self.ReceiveWhile(func() bool { return len(got) < 3 },
			behavior.New(behavior.Others(record)))
	})
	h.launch(f)

	tell(f, "a")
	tell(f, "b")
	h.run()

	// Blocked in the first receive with both strings cached.
	require.False(t, f.Terminated())
	require.Equal(t, 2, f.cache.Len())
	require.Equal(t, int32(0), f.Refs())

	tell(f, 1)
	h.run()

	require.Equal(t, []any{1, "a", "b"}, got)
	require.True(t, f.Terminated())
	reason, err := f.Exit()
	require.Equal(t, ExitNormal, reason)
	require.NoError(t, err)
}

// TestFiberRequestReceive tests a blocking request whose response overtakes
// unrelated messages.
func TestFiberRequestReceive(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	server := NewEventBased(h.cfg("server"), func(*EventBased) *behavior.Behavior {
		return behavior.New(behavior.On1(
			func(_ context.Context, n int) result {
				return behavior.Reply(n * 10)
			},
		))
	})
	h.launch(server)

	var (
		resp  int
		other []int
	)
	f := NewFiber(h.cfg("client"), func(self *Fiber) {
		self.Request(server, 0, 4).Receive(behavior.New(behavior.On1(
			func(_ context.Context, n int) result {
				resp = n
				return behavior.NoReply()
			},
		)), nil)

		self.Receive(behavior.New(behavior.On1(
			func(_ context.Context, n int) result {
				other = append(other, n)
				return behavior.NoReply()
			},
		)))
	})

	// The async int is queued before the response exists, and still must
	// not satisfy the request.
	tell(f, 7)
	h.launch(f)
	h.run()

	require.Equal(t, 40, resp)
	require.Equal(t, []int{7}, other)
	require.True(t, f.Terminated())
}

// TestFiberRequestTimeout tests request timeouts with and without an error
// handler.
func TestFiberRequestTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	probe := NewChannelAddr("probe", 8)

	var timedOut error
	handled := NewFiber(h.cfg("handled"), func(self *Fiber) {
		self.Request(probe, time.Second, "q").Receive(
			behavior.New(behavior.Others(
				func(context.Context, *message.Message) result {
					return behavior.NoReply()
				},
			)), nil,
		)
	})

	// Others matches the timeout too; an explicit error handler is
	// only consulted by behaviors that decline the failure.
	var viaHandler error
	onError := NewFiber(h.cfg("on-error"), func(self *Fiber) {
		self.Request(probe, time.Second, "q").Receive(
			behavior.New(behavior.On1(
				func(context.Context, string) result {
					return behavior.NoReply()
				},
			)),
			func(_ context.Context, err error) {
				viaHandler = err
			},
		)
	})

	unhandled := NewFiber(h.cfg("unhandled"), func(self *Fiber) {
		self.Request(probe, time.Second, "q").Receive(
			behavior.New(behavior.On1(
				func(context.Context, string) result {
					return behavior.NoReply()
				},
			)), nil,
		)
		timedOut = errors.New("unreachable")
	})

	h.launch(handled)
	h.launch(onError)
	h.launch(unhandled)
	h.run()

	for i := 0; i < 3; i++ {
		expectMsg(t, probe)
	}
	require.Equal(t, 3, h.fire())

	require.True(t, handled.Terminated())
	reason, _ := handled.Exit()
	require.Equal(t, ExitNormal, reason)

	require.ErrorIs(t, viaHandler, ErrRequestTimeout)

	require.True(t, unhandled.Terminated())
	reason, err := unhandled.Exit()
	require.Equal(t, ExitUnhandledSyncTimeout, reason)
	require.ErrorIs(t, err, ErrRequestTimeout)
	require.NoError(t, timedOut)
}

// TestFiberNestedReceive tests a receive from inside a handler. The element
// being handled is skipped by the nested receive and removed afterwards.
func TestFiberNestedReceive(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	var events []string
	f := NewFiber(h.cfg("nested"), func(self *Fiber) {
		self.Receive(behavior.New(behavior.On1(
			func(_ context.Context, s string) result {
				events = append(events, "outer:"+s)

				self.Receive(behavior.New(behavior.On1(
					func(_ context.Context, n int) result {
						events = append(events, "inner")
						return behavior.NoReply()
					},
				)))

				return behavior.NoReply()
			},
		)))

		self.Receive(behavior.New(behavior.On1(
			func(_ context.Context, s string) result {
				events = append(events, "next:"+s)
				return behavior.NoReply()
			},
		)))
	})
	h.launch(f)

	tell(f, "first")
	tell(f, "second")
	h.run()

	// The nested receive waits for an int while "second" is cached.
	require.Equal(t, []string{"outer:first"}, events)
	require.Equal(t, 2, f.cache.Len())

	tell(f, 1)
	h.run()

	require.Equal(t, []string{"outer:first", "inner", "next:second"},
		events)
	require.True(t, f.Terminated())
	require.Equal(t, 0, f.cache.Len())
}

// TestFiberIdleTimeout tests that a receive returns once its timeout fired.
func TestFiberIdleTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	var fired, received int
	f := NewFiber(h.cfg("idle"), func(self *Fiber) {
		self.Receive(behavior.New(behavior.On1(
			func(context.Context, int) result {
				received++
				return behavior.NoReply()
			},
		)).WithTimeout(time.Second, func(context.Context) {
			fired++
		}))
	})
	h.launch(f)
	h.run()

	require.Equal(t, 1, h.timer.Pending())
	require.Equal(t, 1, h.fire())

	require.Equal(t, 1, fired)
	require.Equal(t, 0, received)
	require.True(t, f.Terminated())
}

// TestFiberStaleFailureResponses tests that failure responses nobody awaits
// anymore are dropped without satisfying a general receive. The timeout
// of the first request fires while its real response is still queued.
func TestFiberStaleFailureResponses(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	probe := NewChannelAddr("probe", 8)

	var (
		answer   string
		ints     []int
		returned int
	)
	f := NewFiber(h.cfg("stale"), func(self *Fiber) {
		self.Request(probe, time.Second, "q").Receive(
			behavior.New(behavior.On1(
				func(_ context.Context, s string) result {
					answer = s
					return behavior.NoReply()
				},
			)), nil,
		)

		self.Receive(behavior.New(behavior.On1(
			func(_ context.Context, n int) result {
				ints = append(ints, n)
				return behavior.NoReply()
			},
		)))
		returned++
	})
	h.launch(f)
	h.run()

	req := expectMsg(t, probe)
	f.Enqueue(mailbox.Header{ID: req.ID.ResponseID()},
		message.Make("a"), nil)
	require.Equal(t, 1, h.timer.FireAll())

	// A bounce for a request this actor never sent.
	f.Enqueue(mailbox.Header{ID: mailbox.NewRequestID(99).ResponseID()},
		message.Make1(RequestBounced{Source: "gone", Reason: ExitKill}),
		nil)
	h.run()

	require.Equal(t, "a", answer)
	require.Zero(t, returned)
	require.Empty(t, ints)
	require.Equal(t, 0, f.cache.Len())
	require.False(t, f.Terminated())

	tell(f, 5)
	h.run()

	require.Equal(t, []int{5}, ints)
	require.Equal(t, 1, returned)
	require.True(t, f.Terminated())
	reason, _ := f.Exit()
	require.Equal(t, ExitNormal, reason)
}

// TestFiberQuit tests that Quit unwinds the body with the given reason.
func TestFiberQuit(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	probe := NewChannelAddr("probe", 8)

	var unwound, after bool
	f := NewFiber(h.cfg("quitter"), func(self *Fiber) {
		defer func() {
			unwound = true
		}()

		self.Receive(behavior.New(behavior.On1(
			func(context.Context, string) result {
				self.Quit(ExitUserShutdown)
				return behavior.NoReply()
			},
		)))
		after = true
	})
	h.launch(f)

	request(f, probe, 1, "stop")
	h.run()

	require.True(t, unwound)
	require.False(t, after)
	require.True(t, f.Terminated())
	reason, _ := f.Exit()
	require.Equal(t, ExitUserShutdown, reason)

	// The request being handled when the body quit bounces.
	env := expectMsg(t, probe)
	rb, ok := message.Match1[RequestBounced](env.Msg)
	require.True(t, ok)
	require.Equal(t, ExitUserShutdown, rb.Reason)
	expectNoMsg(t, probe)
}

// TestFiberPanic tests that a panic escaping the body is an exception.
func TestFiberPanic(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	monitor := NewChannelAddr("monitor", 8)

	f := NewFiber(h.cfg("panicky"), func(self *Fiber) {
		self.Receive(behavior.New(behavior.On1(
			func(context.Context, string) result {
				panic(errors.New("boom"))
			},
		)))
	})
	f.AddMonitor(monitor)
	h.launch(f)

	tell(f, "x")
	h.run()

	reason, err := f.Exit()
	require.Equal(t, ExitUnhandledException, reason)
	require.ErrorContains(t, err, "boom")

	env := expectMsg(t, monitor)
	down, ok := message.Match1[DownMsg](env.Msg)
	require.True(t, ok)
	require.Equal(t, ExitUnhandledException, down.Reason)
}

// TestFiberKill tests that a kill message terminates a fiber blocked in a
// receive.
func TestFiberKill(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	var unwound bool
	f := NewFiber(h.cfg("victim"), func(self *Fiber) {
		defer func() {
			unwound = true
		}()

		self.Receive(behavior.New(behavior.On1(
			func(context.Context, int) result {
				return behavior.NoReply()
			},
		)))
	})
	h.launch(f)
	h.run()

	f.Enqueue(mailbox.Header{}, message.Make1(ExitMsg{Reason: ExitKill}), nil)
	h.run()

	require.True(t, unwound)
	reason, _ := f.Exit()
	require.Equal(t, ExitKill, reason)
}

// TestFiberThroughput tests that a busy fiber yields to the scheduler.
func TestFiberThroughput(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	cfg := h.cfg("busy")
	cfg.Throughput = 2

	var handled int
	f := NewFiber(cfg, func(self *Fiber) {
		self.ReceiveWhile(func() bool { return handled < 5 },
			behavior.New(behavior.On1(
				func(context.Context, int) result {
					handled++
					return behavior.NoReply()
				},
			)))
	})
	h.launch(f)

	for i := 0; i < 5; i++ {
		tell(f, i)
	}

	require.True(t, h.sched.RunOnce())
	require.Equal(t, 2, handled)
	require.Equal(t, 1, h.sched.Len())

	h.run()
	require.Equal(t, 5, handled)
	require.True(t, f.Terminated())
}
