package system

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/actorcore/internal/actor"
	"github.com/roasbeef/actorcore/internal/behavior"
	"github.com/roasbeef/actorcore/internal/message"
	"github.com/stretchr/testify/require"
)

// newTestSystem creates a small system that is shut down with the test.
func newTestSystem(t *testing.T) *System {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Workers = 2

	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Shutdown(context.Background()))
	})

	return s
}

// doubler replies to ints with their double.
func doubler(*actor.EventBased) *behavior.Behavior {
	return behavior.New(behavior.On1(
		func(_ context.Context, n int) fn.Result[*message.Message] {
			return behavior.Reply(2 * n)
		},
	))
}

// TestSpawnAndAsk tests request and response through both actor kinds.
func TestSpawnAndAsk(t *testing.T) {
	t.Parallel()

	s := newTestSystem(t)
	ctx := context.Background()

	server, err := s.SpawnEventBased(doubler, WithID("doubler"))
	require.NoError(t, err)

	// The fiber forwards requests to the event-based server and relays
	// the answer.
	relay, err := s.SpawnFiber(func(self *actor.Fiber) {
		self.ReceiveWhile(func() bool { return true }, behavior.New(
			behavior.On1(func(_ context.Context,
				n int) fn.Result[*message.Message] {

				var got int
				self.Request(server, time.Second, n).Receive(
					behavior.New(behavior.On1(
						func(_ context.Context,
							r int) fn.Result[*message.Message] {

							got = r
							return behavior.NoReply()
						},
					)), nil,
				)

				return behavior.Reply(got + 1)
			}),
		))
	}, WithID("relay"))
	require.NoError(t, err)

	resp, err := s.Ask(ctx, server, 21).Await(ctx).Unpack()
	require.NoError(t, err)
	require.True(t, resp.Equals(message.Make(42)))

	resp, err = s.Ask(ctx, relay, 5).Await(ctx).Unpack()
	require.NoError(t, err)
	require.True(t, resp.Equals(message.Make(11)))

	addr, ok := s.Lookup("relay")
	require.True(t, ok)
	require.Equal(t, "relay", addr.ID())
	require.Equal(t, 3, s.Len())
}

// TestSpawnRandomAndDuplicateIDs tests id assignment.
func TestSpawnRandomAndDuplicateIDs(t *testing.T) {
	t.Parallel()

	s := newTestSystem(t)

	a, err := s.SpawnEventBased(doubler)
	require.NoError(t, err)
	b, err := s.SpawnEventBased(doubler)
	require.NoError(t, err)
	require.NotEqual(t, a.ID(), b.ID())

	_, err = s.SpawnEventBased(doubler, WithID(a.ID()))
	require.ErrorIs(t, err, ErrDuplicateID)

	_, err = s.SpawnFiber(func(*actor.Fiber) {}, WithID(deadLettersID))
	require.ErrorIs(t, err, ErrDuplicateID)
}

// TestDeadLetters tests that messages to terminated actors reach the dead
// letter actor, and requests bounce.
func TestDeadLetters(t *testing.T) {
	t.Parallel()

	s := newTestSystem(t)
	ctx := context.Background()

	a, err := s.SpawnEventBased(doubler, WithID("short-lived"))
	require.NoError(t, err)

	require.True(t, s.StopAndRemove("short-lived"))
	require.False(t, s.StopAndRemove("short-lived"))
	require.False(t, s.StopAndRemove(deadLettersID))

	select {
	case <-a.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("actor did not stop")
	}
	reason, _ := a.Exit()
	require.Equal(t, actor.ExitUserShutdown, reason)

	_, ok := s.Lookup("short-lived")
	require.False(t, ok)

	s.Tell(a, "lost")
	require.Eventually(t, func() bool {
		return s.DeadLetterCount() == 1
	}, 5*time.Second, time.Millisecond)

	_, err = s.Ask(ctx, a, 1).Await(ctx).Unpack()
	require.ErrorIs(t, err, actor.ErrActorTerminated)
	require.EqualValues(t, 1, s.DeadLetterCount())
}

// TestReaperUnregisters tests that terminated actors leave the registry on
// their own.
func TestReaperUnregisters(t *testing.T) {
	t.Parallel()

	s := newTestSystem(t)

	f, err := s.SpawnFiber(func(self *actor.Fiber) {}, WithID("brief"))
	require.NoError(t, err)
	<-f.Done()

	require.Eventually(t, func() bool {
		_, ok := s.Lookup("brief")
		return !ok
	}, 5*time.Second, time.Millisecond)

	// The id is free again.
	_, err = s.SpawnEventBased(doubler, WithID("brief"))
	require.NoError(t, err)
}

// TestShutdown tests that Shutdown terminates every actor and rejects new
// ones.
func TestShutdown(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Workers = 2
	s, err := New(cfg)
	require.NoError(t, err)

	// The fiber body parks in Receive; killing it must unwind the body
	// and release its goroutine.
	unwound := make(chan struct{})
	blocked, err := s.SpawnFiber(func(self *actor.Fiber) {
		defer close(unwound)

		self.Receive(behavior.New(behavior.On1(
			func(context.Context, string) fn.Result[*message.Message] {
				return behavior.NoReply()
			},
		)))
	}, WithTrapExit())
	require.NoError(t, err)

	busy, err := s.SpawnEventBased(doubler, WithThroughput(1))
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		s.Tell(busy, i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	for _, a := range []interface {
		Terminated() bool
		Exit() (actor.ExitReason, error)
	}{blocked, busy} {
		require.True(t, a.Terminated())
		reason, _ := a.Exit()
		require.Equal(t, actor.ExitKill, reason)
	}

	select {
	case <-unwound:
	default:
		t.Fatal("fiber body still parked after shutdown")
	}

	_, err = s.SpawnEventBased(doubler)
	require.ErrorIs(t, err, ErrSystemShutdown)
	require.NoError(t, s.Shutdown(ctx))
}

// TestConfig tests validation and YAML loading.
func TestConfig(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Workers = 0
	require.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	_, err := New(bad)
	require.ErrorIs(t, err, ErrInvalidConfig)

	dir := t.TempDir()
	path := filepath.Join(dir, "actorcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"workers: 3\nshutdown_timeout: 2s\nlog_dead_letters: false\n",
	), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Workers)
	require.Equal(t, 2*time.Second, cfg.ShutdownTimeout)
	require.False(t, cfg.LogDeadLetters)

	// Unset fields keep their defaults.
	require.Equal(t, actor.DefaultThroughput, cfg.Throughput)
	require.Equal(t, "info", cfg.LogLevel)

	require.NoError(t, os.WriteFile(path, []byte("throughput: -1\n"),
		0o600))
	_, err = LoadConfig(path)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
