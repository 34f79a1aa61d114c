package scheduler

import (
	"sync"

	"github.com/roasbeef/actorcore/internal/fiber"
	"github.com/roasbeef/actorcore/internal/resumable"
)

// Manual is an execution unit that only runs resumables when asked to. The
// goroutine calling RunOnce or RunAll does the work, which makes actor tests
// deterministic.
type Manual struct {
	mu    sync.Mutex
	queue []resumable.Resumable

	fctx *fiber.Context
}

// NewManual returns an empty manual coordinator.
func NewManual() *Manual {
	return &Manual{fctx: fiber.NewCaller()}
}

// Exec implements resumable.ExecutionUnit.
func (m *Manual) Exec(r resumable.Resumable) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue = append(m.queue, r)
}

// FiberContext implements resumable.ExecutionUnit.
func (m *Manual) FiberContext() *fiber.Context {
	return m.fctx
}

// Len returns the number of queued resumables.
func (m *Manual) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.queue)
}

// RunOnce resumes the oldest queued resumable. It returns false if nothing
// was queued.
func (m *Manual) RunOnce() bool {
	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		return false
	}
	r := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	m.mu.Unlock()

	switch r.Resume(m) {
	case resumable.ResumeLater:
		m.Exec(r)

	default:
		r.Detach()
	}

	return true
}

// RunAll resumes queued resumables until the queue is empty and returns the
// number of resumes.
func (m *Manual) RunAll() int {
	n := 0
	for m.RunOnce() {
		n++
	}

	return n
}
