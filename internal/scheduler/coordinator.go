// Package scheduler provides execution units that run resumables: a worker
// pool sharing one run queue, and a manual coordinator for deterministic
// tests.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roasbeef/actorcore/internal/fiber"
	"github.com/roasbeef/actorcore/internal/resumable"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrAlreadyStarted is returned when starting a coordinator twice.
	ErrAlreadyStarted = errors.New("coordinator already started")

	// ErrNoWorkers is returned for a coordinator without workers.
	ErrNoWorkers = errors.New("coordinator needs at least one worker")
)

// Coordinator runs resumables on a fixed number of worker goroutines that
// share one FIFO run queue.
type Coordinator struct {
	workers int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []resumable.Resumable
	started bool
	stopped bool

	cancel context.CancelFunc
	eg     *errgroup.Group
}

// NewCoordinator creates a coordinator with the given number of workers.
func NewCoordinator(workers int) (*Coordinator, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrNoWorkers, workers)
	}

	c := &Coordinator{workers: workers}
	c.cond = sync.NewCond(&c.mu)

	return c, nil
}

// Start launches the workers. They stop when ctx is cancelled or Stop is
// called.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	ctx, c.cancel = context.WithCancel(ctx)
	c.eg, ctx = errgroup.WithContext(ctx)

	for i := 0; i < c.workers; i++ {
		w := &worker{
			id:   i,
			c:    c,
			fctx: fiber.NewCaller(),
		}
		c.eg.Go(w.run)
	}

	c.eg.Go(func() error {
		<-ctx.Done()
		c.halt()

		return nil
	})

	log.DebugS(ctx, "Coordinator started", "workers", c.workers)

	return nil
}

// Stop halts the workers and waits for them. Resumables still queued are
// released without being resumed. Stop does not terminate actors: a fiber
// actor waiting for a message keeps its body goroutine, so owners kill
// their actors before stopping the coordinator.
func (c *Coordinator) Stop() error {
	c.halt()
	if c.cancel != nil {
		c.cancel()
	}

	var err error
	if c.eg != nil {
		err = c.eg.Wait()
	}

	c.mu.Lock()
	dropped := c.queue
	c.queue = nil
	c.mu.Unlock()

	for _, r := range dropped {
		r.Detach()
	}

	log.DebugS(context.Background(), "Coordinator stopped",
		"dropped", len(dropped))

	return err
}

func (c *Coordinator) halt() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Exec implements resumable.ExecutionUnit.
func (c *Coordinator) Exec(r resumable.Resumable) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		r.Detach()

		return
	}
	c.queue = append(c.queue, r)
	c.mu.Unlock()

	c.cond.Signal()
}

// FiberContext implements resumable.ExecutionUnit. The coordinator itself
// never resumes anything, its workers do.
func (c *Coordinator) FiberContext() *fiber.Context {
	return nil
}

// Len returns the number of queued resumables.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.queue)
}

// next blocks until a resumable is queued. It returns false once the
// coordinator stopped.
func (c *Coordinator) next() (resumable.Resumable, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.queue) == 0 && !c.stopped {
		c.cond.Wait()
	}

	if c.stopped {
		return nil, false
	}

	r := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]

	return r, true
}

// worker is one goroutine of a coordinator. It is the execution unit of the
// resumables it runs, so wakeups it causes are queued on the same
// coordinator.
type worker struct {
	id   int
	c    *Coordinator
	fctx *fiber.Context
}

// Exec implements resumable.ExecutionUnit.
func (w *worker) Exec(r resumable.Resumable) {
	w.c.Exec(r)
}

// FiberContext implements resumable.ExecutionUnit.
func (w *worker) FiberContext() *fiber.Context {
	return w.fctx
}

func (w *worker) run() error {
	for {
		r, ok := w.c.next()
		if !ok {
			return nil
		}

		switch r.Resume(w) {
		case resumable.ResumeLater:
			w.c.Exec(r)

		case resumable.AwaitingMessage, resumable.Done:
			r.Detach()

		case resumable.ShutdownExecutionUnit:
			r.Detach()

			log.DebugS(context.Background(), "Worker shut down",
				"worker", w.id)

			return nil
		}
	}
}
