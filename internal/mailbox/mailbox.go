// Package mailbox implements the lock-free, multi-producer single-consumer
// queue every actor reads its messages from, plus the intrusive cache used to
// park skipped messages.
//
// Producers push onto an atomic LIFO stack. The single consumer takes the
// whole stack at once and reverses it into a private FIFO list, so elements
// from any one producer are consumed in the order they were pushed. The stack
// head doubles as the state word: two sentinel elements mark a blocked reader
// and a closed mailbox.
package mailbox

import (
	"errors"
	"sync/atomic"
)

// ErrClosedTwice is the panic value for closing a mailbox twice.
var ErrClosedTwice = errors.New("mailbox: closed twice")

// EnqueueResult is the outcome of a push.
type EnqueueResult uint8

const (
	// Success means the element was queued.
	Success EnqueueResult = iota

	// UnblockedReader means the element was queued and the reader was
	// blocked. The producer is now responsible for scheduling it.
	UnblockedReader

	// QueueClosed means the mailbox is closed and the element was not
	// queued. The producer keeps ownership of it.
	QueueClosed
)

// String returns a human readable name for the result.
func (r EnqueueResult) String() string {
	switch r {
	case Success:
		return "success"

	case UnblockedReader:
		return "unblocked_reader"

	case QueueClosed:
		return "queue_closed"

	default:
		return "unknown"
	}
}

var (
	// blockedTag marks an empty mailbox whose reader is waiting.
	blockedTag = &Element{}

	// closedTag marks a closed mailbox.
	closedTag = &Element{}
)

// Mailbox is an MPSC queue of elements. Push may be called from any
// goroutine; every other method belongs to the single consumer, except for
// IsBlocked and IsClosed which are safe anywhere.
type Mailbox struct {
	// stack is the producer side: nil, a sentinel, or the most recently
	// pushed element.
	stack atomic.Pointer[Element]

	// head and tail delimit the consumer's FIFO list.
	head *Element
	tail *Element
}

// New returns an empty, unblocked mailbox.
func New() *Mailbox {
	return &Mailbox{}
}

// Push appends e to the mailbox.
func (m *Mailbox) Push(e *Element) EnqueueResult {
	for {
		old := m.stack.Load()
		switch old {
		case closedTag:
			e.next = nil
			return QueueClosed

		case blockedTag:
			e.next = nil
			if m.stack.CompareAndSwap(old, e) {
				return UnblockedReader
			}

		default:
			e.next = old
			if m.stack.CompareAndSwap(old, e) {
				return Success
			}
		}
	}
}

// fetch moves everything producers pushed so far onto the consumer list.
func (m *Mailbox) fetch() bool {
	for {
		old := m.stack.Load()
		if old == nil || old == blockedTag || old == closedTag {
			return false
		}

		if !m.stack.CompareAndSwap(old, nil) {
			continue
		}

		// Reverse the LIFO chain into a FIFO chain.
		var first, last *Element
		last = old
		for e := old; e != nil; {
			next := e.next
			e.next = first
			first = e
			e = next
		}

		if m.tail == nil {
			m.head = first
		} else {
			m.tail.next = first
		}
		m.tail = last

		return true
	}
}

// TryPop removes and returns the oldest element, or nil if the mailbox is
// empty.
func (m *Mailbox) TryPop() *Element {
	if m.head == nil && !m.fetch() {
		return nil
	}

	e := m.head
	m.head = e.next
	if m.head == nil {
		m.tail = nil
	}
	e.next = nil

	return e
}

// TryBlock marks the reader as waiting. It fails if any element is queued or
// the mailbox is closed; the consumer must then keep reading.
func (m *Mailbox) TryBlock() bool {
	if m.head != nil {
		return false
	}

	return m.stack.CompareAndSwap(nil, blockedTag)
}

// TryUnblock reverts a successful TryBlock, unless a producer got there
// first.
func (m *Mailbox) TryUnblock() bool {
	return m.stack.CompareAndSwap(blockedTag, nil)
}

// IsBlocked reports whether the reader is waiting.
func (m *Mailbox) IsBlocked() bool {
	return m.stack.Load() == blockedTag
}

// IsClosed reports whether the mailbox was closed.
func (m *Mailbox) IsClosed() bool {
	return m.stack.Load() == closedTag
}

// IsEmpty reports whether no element is queued.
func (m *Mailbox) IsEmpty() bool {
	if m.head != nil {
		return false
	}

	s := m.stack.Load()

	return s == nil || s == blockedTag || s == closedTag
}

// Len returns the number of queued elements.
func (m *Mailbox) Len() int {
	m.fetch()

	n := 0
	for e := m.head; e != nil; e = e.next {
		n++
	}

	return n
}

// Close closes the mailbox and hands every queued element, oldest first, to
// bounce. Elements pushed afterwards are refused with QueueClosed. Closing a
// mailbox twice panics.
func (m *Mailbox) Close(bounce func(e *Element)) {
	old := m.stack.Swap(closedTag)
	if old == closedTag {
		panic(ErrClosedTwice)
	}

	if old != nil && old != blockedTag {
		var first *Element
		for e := old; e != nil; {
			next := e.next
			e.next = first
			first = e
			e = next
		}

		if m.tail == nil {
			m.head = first
		} else {
			m.tail.next = first
		}
	}

	e := m.head
	m.head, m.tail = nil, nil
	for e != nil {
		next := e.next
		e.next = nil
		if bounce != nil {
			bounce(e)
		}
		e = next
	}
}
