// Package system ties actors, the scheduler and the dead letter actor
// together and manages their lifecycle.
package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/actorcore/internal/actor"
	"github.com/roasbeef/actorcore/internal/behavior"
	"github.com/roasbeef/actorcore/internal/mailbox"
	"github.com/roasbeef/actorcore/internal/message"
	"github.com/roasbeef/actorcore/internal/metrics"
	"github.com/roasbeef/actorcore/internal/resumable"
	"github.com/roasbeef/actorcore/internal/scheduler"
)

const deadLettersID = "dead-letters"

var (
	// ErrSystemShutdown is returned when spawning into a system that is
	// shutting down.
	ErrSystemShutdown = errors.New("actor system shut down")

	// ErrDuplicateID is returned when spawning an actor with an id that
	// is already in use.
	ErrDuplicateID = errors.New("duplicate actor id")
)

// handle is what the system keeps of a spawned actor.
type handle interface {
	mailbox.Addr

	Addr() mailbox.Addr
	Launch(eu resumable.ExecutionUnit) error
	AddMonitor(watcher mailbox.Addr)
	Done() <-chan struct{}
}

// Option configures a System.
type Option func(*System)

// WithMetrics makes every actor of the system report to r.
func WithMetrics(r metrics.Recorder) Option {
	return func(s *System) {
		s.metrics = r
	}
}

// WithTimer replaces the wall clock timer used for actor timeouts.
func WithTimer(t actor.Timer) Option {
	return func(s *System) {
		s.timer = t
	}
}

// spawnConfig holds optional configuration for a spawned actor.
type spawnConfig struct {
	id         string
	throughput int
	trapExit   bool
}

// SpawnOption is a functional option for configuring a spawned actor.
type SpawnOption func(*spawnConfig)

// WithID sets the id of the actor. A random id is used otherwise.
func WithID(id string) SpawnOption {
	return func(cfg *spawnConfig) {
		cfg.id = id
	}
}

// WithThroughput overrides the system's throughput for the actor.
func WithThroughput(n int) SpawnOption {
	return func(cfg *spawnConfig) {
		cfg.throughput = n
	}
}

// WithTrapExit makes the actor receive exit messages as ordinary messages.
func WithTrapExit() SpawnOption {
	return func(cfg *spawnConfig) {
		cfg.trapExit = true
	}
}

// System manages the lifecycle of actors: it schedules them on a shared
// worker pool, routes undeliverable messages to a dead letter actor and
// shuts everything down deterministically.
type System struct {
	cfg     Config
	coord   *scheduler.Coordinator
	metrics metrics.Recorder
	timer   actor.Timer

	// deadLetters receives asynchronous messages sent to terminated
	// actors.
	deadLetters *actor.EventBased
	dropped     atomic.Uint64

	// reaper is monitoring every actor to unregister it once it
	// terminated.
	reaper *reaper

	// mu protects actors and closed.
	mu     sync.RWMutex
	actors map[string]handle
	closed bool

	// actorWg tracks running actors for deterministic shutdown.
	actorWg sync.WaitGroup
}

// New creates a system and starts its workers.
func New(cfg Config, opts ...Option) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	coord, err := scheduler.NewCoordinator(cfg.Workers)
	if err != nil {
		return nil, err
	}

	s := &System{
		cfg:     cfg,
		coord:   coord,
		metrics: metrics.Nop{},
		actors:  make(map[string]handle),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timer == nil {
		s.timer = actor.NewAfterFuncTimer()
	}
	s.reaper = &reaper{s: s}

	if err := coord.Start(context.Background()); err != nil {
		return nil, err
	}

	// The dead letter actor has no dead letter address of its own, so
	// messages to it after shutdown cannot loop.
	s.deadLetters = actor.NewEventBased(actor.Config{
		ID:         deadLettersID,
		Throughput: cfg.Throughput,
		Timer:      s.timer,
		Metrics:    s.metrics,
		Wg:         &s.actorWg,
	}, s.deadLetterBehavior)

	s.actors[deadLettersID] = s.deadLetters
	if err := s.deadLetters.Launch(coord); err != nil {
		return nil, err
	}

	log.InfoS(context.Background(), "Actor system started",
		"workers", cfg.Workers, "throughput", cfg.Throughput)

	return s, nil
}

// deadLetterBehavior accepts and counts everything.
func (s *System) deadLetterBehavior(self *actor.EventBased) *behavior.Behavior {
	return behavior.New(behavior.Others(
		func(ctx context.Context,
			msg *message.Message) fn.Result[*message.Message] {

			s.dropped.Add(1)
			if s.cfg.LogDeadLetters {
				log.DebugS(ctx, "Dead letter", "msg", msg,
					"sender", senderID(self.Sender()))
			}

			return behavior.NoReply()
		},
	))
}

func senderID(a mailbox.Addr) string {
	if a == nil {
		return "anonymous"
	}

	return a.ID()
}

// actorConfig builds the configuration of a new actor.
func (s *System) actorConfig(opts []SpawnOption) actor.Config {
	sc := spawnConfig{throughput: s.cfg.Throughput}
	for _, opt := range opts {
		opt(&sc)
	}
	if sc.id == "" {
		sc.id = "actor-" + uuid.NewString()
	}

	return actor.Config{
		ID:          sc.id,
		Throughput:  sc.throughput,
		Timer:       s.timer,
		Metrics:     s.metrics,
		DeadLetters: s.deadLetters.Addr(),
		Wg:          &s.actorWg,
		TrapExit:    sc.trapExit,
	}
}

// SpawnEventBased creates and launches an event-based actor.
func (s *System) SpawnEventBased(
	init func(self *actor.EventBased) *behavior.Behavior,
	opts ...SpawnOption) (*actor.EventBased, error) {

	return spawn(s, opts, func(cfg actor.Config) *actor.EventBased {
		return actor.NewEventBased(cfg, init)
	})
}

// SpawnFiber creates and launches a fiber actor.
func (s *System) SpawnFiber(body func(self *actor.Fiber),
	opts ...SpawnOption) (*actor.Fiber, error) {

	return spawn(s, opts, func(cfg actor.Config) *actor.Fiber {
		return actor.NewFiber(cfg, body)
	})
}

// spawn creates an actor, registers it under its id and launches it. The
// actor is only created once its id is known to be free.
func spawn[A handle](s *System, opts []SpawnOption,
	create func(cfg actor.Config) A) (A, error) {

	var zero A
	cfg := s.actorConfig(opts)

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return zero, ErrSystemShutdown

	case s.actors[cfg.ID] != nil:
		s.mu.Unlock()
		return zero, fmt.Errorf("%w: %s", ErrDuplicateID, cfg.ID)
	}

	a := create(cfg)
	s.actors[cfg.ID] = a
	s.mu.Unlock()

	a.AddMonitor(s.reaper)
	if err := a.Launch(s.coord); err != nil {
		return zero, err
	}

	log.DebugS(context.Background(), "Actor spawned", "actor_id", cfg.ID)

	return a, nil
}

// kill sends an exit message with the reason to a.
func kill(a mailbox.Addr, reason actor.ExitReason) {
	a.Enqueue(mailbox.Header{}, message.Make1(actor.ExitMsg{
		Reason: reason,
	}), nil)
}

// Lookup returns the live actor registered under id.
func (s *System) Lookup(id string) (mailbox.Addr, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.actors[id]
	if !ok {
		return nil, false
	}

	return a, true
}

// Len returns the number of live actors, including the dead letter actor.
func (s *System) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.actors)
}

// DeadLetters returns the address of the system's dead letter actor.
func (s *System) DeadLetters() mailbox.Addr {
	return s.deadLetters
}

// DeadLetterCount returns the number of messages the dead letter actor
// processed.
func (s *System) DeadLetterCount() uint64 {
	return s.dropped.Load()
}

// Tell sends vals to dest as an anonymous asynchronous message.
func (s *System) Tell(dest mailbox.Addr, vals ...any) {
	dest.Enqueue(mailbox.Header{}, message.Make(vals...), nil)
}

// Ask sends vals to dest as a request and returns a future for the
// response.
func (s *System) Ask(ctx context.Context, dest mailbox.Addr,
	vals ...any) actor.Future[*message.Message] {

	return actor.Ask(ctx, dest, message.Make(vals...))
}

// StopAndRemove asks the actor with the given id to shut down and removes
// it from the registry. It returns false if no such actor exists. It does
// not wait for the actor to terminate.
func (s *System) StopAndRemove(id string) bool {
	if id == deadLettersID {
		return false
	}

	s.mu.Lock()
	a, ok := s.actors[id]
	if ok {
		delete(s.actors, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}

	kill(a, actor.ExitUserShutdown)

	log.DebugS(context.Background(), "Actor stopped and removed from system",
		"actor_id", id)

	return true
}

// Shutdown kills every actor and waits for all of them to terminate, then
// stops the workers. Without a deadline on ctx, the configured shutdown
// timeout applies. It is the only supported teardown: fiber actors parked
// in a receive hold their body goroutine until they are killed.
func (s *System) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok && s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	actors := make([]handle, 0, len(s.actors))
	for id, a := range s.actors {
		if id != deadLettersID {
			actors = append(actors, a)
		}
	}
	s.actors = make(map[string]handle)
	s.mu.Unlock()

	log.InfoS(ctx, "Actor system shutting down", "num_actors", len(actors))

	for _, a := range actors {
		kill(a, actor.ExitKill)
	}

	// The dead letter actor goes last so it still sees the messages
	// bounced by the others.
	if err := s.await(ctx, actors); err != nil {
		return err
	}
	kill(s.deadLetters, actor.ExitKill)

	done := make(chan struct{})
	go func() {
		s.actorWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.InfoS(ctx, "Actor system shutdown completed",
			"dead_letters", s.DeadLetterCount())

		return s.coord.Stop()

	case <-ctx.Done():
		log.ErrorS(ctx, "Actor system shutdown incomplete, "+
			"some actors may have leaked", ctx.Err())

		return ctx.Err()
	}
}

// await waits for the actors to terminate.
func (s *System) await(ctx context.Context, actors []handle) error {
	for _, a := range actors {
		select {
		case <-a.Done():
		case <-ctx.Done():
			log.ErrorS(ctx, "Actor did not terminate", ctx.Err(),
				"actor_id", a.ID())

			return ctx.Err()
		}
	}

	return nil
}

// reaper unregisters actors once they terminated. It is an address so it
// can monitor actors like any other watcher.
type reaper struct {
	s *System
}

// ID implements mailbox.Addr.
func (r *reaper) ID() string {
	return "reaper"
}

// Enqueue implements mailbox.Addr.
func (r *reaper) Enqueue(_ mailbox.Header, msg *message.Message,
	_ resumable.ExecutionUnit) {

	down, ok := message.Match1[actor.DownMsg](msg)
	if !ok || down.Source == nil {
		return
	}

	id := down.Source.ID()

	// The id may have been reused after StopAndRemove.
	r.s.mu.Lock()
	if a, ok := r.s.actors[id]; ok && a.Addr() == down.Source {
		delete(r.s.actors, id)
	}
	r.s.mu.Unlock()

	if !down.Reason.IsNormal() {
		log.WarnS(context.Background(), "Actor exited abnormally",
			down.Err, "actor_id", id, "reason", down.Reason)
	}
}
