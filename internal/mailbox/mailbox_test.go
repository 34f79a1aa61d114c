package mailbox

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/roasbeef/actorcore/internal/message"
	"github.com/stretchr/testify/require"
)

func intElement(v int) *Element {
	return NewElement(Header{}, message.Make1(v))
}

func popInt(t *testing.T, m *Mailbox) int {
	t.Helper()

	e := m.TryPop()
	require.NotNil(t, e)
	v := message.Get[int](e.Msg, 0)
	e.Release()

	return v
}

// TestMailboxFIFO tests that a single producer's pushes are consumed in
// order, across several fetches.
func TestMailboxFIFO(t *testing.T) {
	t.Parallel()

	m := New()
	require.True(t, m.IsEmpty())
	require.Nil(t, m.TryPop())

	for i := 0; i < 3; i++ {
		require.Equal(t, Success, m.Push(intElement(i)))
	}
	require.Equal(t, 3, m.Len())
	require.Equal(t, 0, popInt(t, m))

	// New pushes land behind what the consumer already fetched.
	for i := 3; i < 5; i++ {
		m.Push(intElement(i))
	}
	for i := 1; i < 5; i++ {
		require.Equal(t, i, popInt(t, m))
	}
	require.True(t, m.IsEmpty())
}

// TestMailboxBlockUnblock tests the blocked reader protocol.
func TestMailboxBlockUnblock(t *testing.T) {
	t.Parallel()

	m := New()
	require.True(t, m.TryBlock())
	require.True(t, m.IsBlocked())
	require.False(t, m.TryBlock())

	// The first push after a block reports the reader as unblocked.
	require.Equal(t, UnblockedReader, m.Push(intElement(1)))
	require.False(t, m.IsBlocked())
	require.Equal(t, Success, m.Push(intElement(2)))

	// A non-empty mailbox cannot be blocked.
	require.False(t, m.TryBlock())
	require.Equal(t, 1, popInt(t, m))
	require.False(t, m.TryBlock())
	require.Equal(t, 2, popInt(t, m))

	require.True(t, m.TryBlock())
	require.True(t, m.TryUnblock())
	require.False(t, m.TryUnblock())
	require.False(t, m.IsBlocked())
}

// TestMailboxClose tests that closing bounces every queued element exactly
// once and refuses later pushes.
func TestMailboxClose(t *testing.T) {
	t.Parallel()

	m := New()
	for i := 0; i < 4; i++ {
		m.Push(intElement(i))
	}
	require.Equal(t, 0, popInt(t, m))
	m.Push(intElement(4))

	var bounced []int
	m.Close(func(e *Element) {
		bounced = append(bounced, message.Get[int](e.Msg, 0))
		e.Release()
	})
	require.Equal(t, []int{1, 2, 3, 4}, bounced)
	require.True(t, m.IsClosed())
	require.True(t, m.IsEmpty())
	require.False(t, m.TryBlock())
	require.Nil(t, m.TryPop())

	e := intElement(5)
	require.Equal(t, QueueClosed, m.Push(e))
	require.Equal(t, 5, message.Get[int](e.Msg, 0))

	require.PanicsWithValue(t, ErrClosedTwice, func() {
		m.Close(nil)
	})
}

// TestMailboxCloseBlocked tests closing a mailbox whose reader waits.
func TestMailboxCloseBlocked(t *testing.T) {
	t.Parallel()

	m := New()
	require.True(t, m.TryBlock())

	called := false
	m.Close(func(*Element) { called = true })
	require.False(t, called)
	require.True(t, m.IsClosed())
}

// TestMailboxConcurrentProducers tests that concurrent producers racing a
// consumer that blocks whenever it runs dry lose no element and preserve
// per-producer order.
func TestMailboxConcurrentProducers(t *testing.T) {
	t.Parallel()

	const (
		producers = 8
		perProd   = 2000
	)

	m := New()
	wakeups := make(chan struct{}, producers*perProd)

	var (
		wg        sync.WaitGroup
		unblocked atomic.Int64
	)
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()

			for i := 0; i < perProd; i++ {
				e := NewElement(Header{}, message.Make2(p, i))
				if m.Push(e) == UnblockedReader {
					unblocked.Add(1)
					wakeups <- struct{}{}
				}
			}
		}(p)
	}

	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}

	blocks := 0
	for received := 0; received < producers*perProd; {
		e := m.TryPop()
		if e == nil {
			if m.TryBlock() {
				blocks++
				<-wakeups
			}
			continue
		}

		p, i, ok := message.Match2[int, int](e.Msg)
		require.True(t, ok)
		require.Equal(t, last[p]+1, i)
		last[p] = i
		received++
		e.Release()
	}

	wg.Wait()
	require.EqualValues(t, blocks, unblocked.Load())
	require.True(t, m.IsEmpty())
}
