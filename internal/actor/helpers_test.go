package actor

import (
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/actorcore/internal/mailbox"
	"github.com/roasbeef/actorcore/internal/message"
	"github.com/roasbeef/actorcore/internal/resumable"
	"github.com/roasbeef/actorcore/internal/scheduler"
	"github.com/stretchr/testify/require"
)

// result is the handler result type, shortened for test handlers.
type result = fn.Result[*message.Message]

// harness drives actors deterministically: nothing runs until the test
// calls run, and timers only fire on request.
type harness struct {
	t     *testing.T
	sched *scheduler.Manual
	timer *ManualTimer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	return &harness{
		t:     t,
		sched: scheduler.NewManual(),
		timer: NewManualTimer(),
	}
}

// cfg returns an actor config using the harness timer.
func (h *harness) cfg(id string) Config {
	return Config{ID: id, Timer: h.timer}
}

// launch launches the actor on the manual scheduler.
func (h *harness) launch(a interface {
	Launch(eu resumable.ExecutionUnit) error
}) {

	h.t.Helper()
	require.NoError(h.t, a.Launch(h.sched))
}

// run resumes actors until none is runnable.
func (h *harness) run() {
	h.sched.RunAll()
}

// fire fires every armed timer and runs the actors it woke up.
func (h *harness) fire() int {
	n := h.timer.FireAll()
	h.run()

	return n
}

// tell sends vals as an anonymous asynchronous message.
func tell(dest mailbox.Addr, vals ...any) {
	dest.Enqueue(mailbox.Header{}, message.Make(vals...), nil)
}

// request sends vals as a request from sender with the given sequence
// number.
func request(dest, sender mailbox.Addr, seq uint64, vals ...any) {
	dest.Enqueue(mailbox.Header{
		Sender: sender,
		ID:     mailbox.NewRequestID(seq),
	}, message.Make(vals...), nil)
}

// expectMsg waits for the next message at the probe.
func expectMsg(t *testing.T, probe *ChannelAddr) Envelope {
	t.Helper()

	env, ok := probe.AwaitMessage(time.Second)
	require.True(t, ok, "no message at %s", probe.ID())

	return env
}

// expectNoMsg asserts that the probe stays empty.
func expectNoMsg(t *testing.T, probe *ChannelAddr) {
	t.Helper()

	select {
	case env := <-probe.Messages():
		t.Fatalf("unexpected message %v at %s", env.Msg, probe.ID())

	default:
	}
}
