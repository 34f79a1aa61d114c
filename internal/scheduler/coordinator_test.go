package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roasbeef/actorcore/internal/fiber"
	"github.com/roasbeef/actorcore/internal/resumable"
	"github.com/stretchr/testify/require"
)

// countingTask resumes a fixed number of times before it is done.
type countingTask struct {
	remaining atomic.Int32
	resumes   atomic.Int32
	refs      atomic.Int32
	done      chan struct{}
	final     resumable.Result
}

func newCountingTask(n int32, final resumable.Result) *countingTask {
	c := &countingTask{done: make(chan struct{}), final: final}
	c.remaining.Store(n)

	return c
}

func (c *countingTask) Attach() { c.refs.Add(1) }

func (c *countingTask) Detach() { c.refs.Add(-1) }

func (c *countingTask) Resume(resumable.ExecutionUnit) resumable.Result {
	c.resumes.Add(1)
	if c.remaining.Add(-1) > 0 {
		return resumable.ResumeLater
	}
	close(c.done)

	return c.final
}

// TestManualRequeue tests that ResumeLater requeues and other results
// detach.
func TestManualRequeue(t *testing.T) {
	t.Parallel()

	m := NewManual()
	task := newCountingTask(3, resumable.Done)
	task.Attach()
	m.Exec(task)

	require.Equal(t, 1, m.Len())
	require.Equal(t, 3, m.RunAll())
	require.Equal(t, int32(3), task.resumes.Load())
	require.Equal(t, int32(0), task.refs.Load())
	require.False(t, m.RunOnce())
	require.NotNil(t, m.FiberContext())
}

// TestManualInterleaves tests that requeued tasks go to the back of the
// queue.
func TestManualInterleaves(t *testing.T) {
	t.Parallel()

	m := NewManual()

	var order []string
	mk := func(name string, n int) resumable.Resumable {
		return &funcTask{resume: func() resumable.Result {
			order = append(order, name)
			n--
			if n > 0 {
				return resumable.ResumeLater
			}

			return resumable.Done
		}}
	}
	m.Exec(mk("a", 2))
	m.Exec(mk("b", 2))
	m.RunAll()

	require.Equal(t, []string{"a", "b", "a", "b"}, order)
}

type funcTask struct {
	resume func() resumable.Result
}

func (f *funcTask) Attach() {}

func (f *funcTask) Detach() {}

func (f *funcTask) Resume(resumable.ExecutionUnit) resumable.Result {
	return f.resume()
}

// TestCoordinatorRunsTasks tests that all tasks complete on a worker pool.
func TestCoordinatorRunsTasks(t *testing.T) {
	t.Parallel()

	c, err := NewCoordinator(4)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	require.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)

	tasks := make([]*countingTask, 32)
	for i := range tasks {
		tasks[i] = newCountingTask(int32(i%5+1), resumable.Done)
		tasks[i].Attach()
		c.Exec(tasks[i])
	}

	for i, task := range tasks {
		select {
		case <-task.done:
		case <-time.After(5 * time.Second):
			t.Fatalf("task %d did not finish", i)
		}
	}

	require.NoError(t, c.Stop())

	for i, task := range tasks {
		require.Equal(t, int32(i%5+1), task.resumes.Load())
		require.Equal(t, int32(0), task.refs.Load())
	}
}

// TestCoordinatorWorkerContext tests that workers hand out their own fiber
// contexts to the tasks they resume.
func TestCoordinatorWorkerContext(t *testing.T) {
	t.Parallel()

	c, err := NewCoordinator(1)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer func() {
		require.NoError(t, c.Stop())
	}()

	got := make(chan *fiber.Context, 1)
	c.Exec(&euTask{fn: func(eu resumable.ExecutionUnit) {
		got <- eu.FiberContext()
	}})

	select {
	case ctx := <-got:
		require.NotNil(t, ctx)

	case <-time.After(5 * time.Second):
		t.Fatal("task was not resumed")
	}
}

type euTask struct {
	fn func(eu resumable.ExecutionUnit)
}

func (e *euTask) Attach() {}

func (e *euTask) Detach() {}

func (e *euTask) Resume(eu resumable.ExecutionUnit) resumable.Result {
	e.fn(eu)
	return resumable.Done
}

// TestCoordinatorStopDetachesQueued tests that Exec after Stop releases the
// resumable without running it.
func TestCoordinatorStopDetachesQueued(t *testing.T) {
	t.Parallel()

	c, err := NewCoordinator(2)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Stop())

	task := newCountingTask(1, resumable.Done)
	task.Attach()
	c.Exec(task)

	require.Equal(t, int32(0), task.resumes.Load())
	require.Equal(t, int32(0), task.refs.Load())
}

// TestCoordinatorContextCancel tests that cancelling the start context stops
// the workers.
func TestCoordinatorContextCancel(t *testing.T) {
	t.Parallel()

	c, err := NewCoordinator(3)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		require.NoError(t, c.Stop())
	}()
	wg.Wait()

	_, err = NewCoordinator(0)
	require.ErrorIs(t, err, ErrNoWorkers)
}

// TestCoordinatorShutdownWorker tests that ShutdownExecutionUnit stops the
// worker that received it.
func TestCoordinatorShutdownWorker(t *testing.T) {
	t.Parallel()

	c, err := NewCoordinator(1)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	task := newCountingTask(1, resumable.ShutdownExecutionUnit)
	task.Attach()
	c.Exec(task)
	<-task.done

	// The only worker is gone, so new work stays queued.
	require.Eventually(t, func() bool {
		return task.refs.Load() == 0
	}, 5*time.Second, time.Millisecond)

	other := newCountingTask(1, resumable.Done)
	other.Attach()
	c.Exec(other)
	require.Equal(t, 1, c.Len())

	require.NoError(t, c.Stop())
	require.Equal(t, int32(0), other.refs.Load())
	require.Equal(t, int32(0), other.resumes.Load())
}
