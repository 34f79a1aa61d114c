package mailbox

import (
	"sync"

	"github.com/roasbeef/actorcore/internal/message"
	"github.com/roasbeef/actorcore/internal/resumable"
)

// Addr is the address of anything that accepts messages.
type Addr interface {
	// ID returns a stable, human readable identifier.
	ID() string

	// Enqueue delivers msg with the given header. The enqueuing side
	// passes the execution unit it runs on, if any, so a receiver that
	// becomes runnable can be scheduled there. eu may be nil.
	Enqueue(hdr Header, msg *message.Message, eu resumable.ExecutionUnit)
}

// Header carries the routing information of a message.
type Header struct {
	// Sender is where responses and bounces go. It may be nil for
	// anonymous messages.
	Sender Addr

	// ID correlates requests and responses.
	ID MessageID
}

// Element is a message in flight together with its header. Elements are
// linked intrusively, first into the mailbox and later into the receiver's
// skip cache, so an element belongs to at most one list at a time.
type Element struct {
	Header

	// Msg is the payload. The element owns this handle.
	Msg *message.Message

	// marked is set while the element is being processed from the cache,
	// so nested receives skip it.
	marked bool

	next *Element
	prev *Element
}

var elementPool = sync.Pool{
	New: func() any {
		return new(Element)
	},
}

// NewElement returns an element, recycled when possible, wrapping msg.
func NewElement(hdr Header, msg *message.Message) *Element {
	e := elementPool.Get().(*Element)
	e.Header = hdr
	e.Msg = msg

	return e
}

// Release returns the element to the pool. The payload handle is not
// released since handlers may keep it. The element must not be used
// afterwards.
func (e *Element) Release() {
	*e = Element{}
	elementPool.Put(e)
}

// Mark flags the element as in-process.
func (e *Element) Mark() {
	e.marked = true
}

// Unmark clears the in-process flag.
func (e *Element) Unmark() {
	e.marked = false
}

// Marked reports whether the element is being processed.
func (e *Element) Marked() bool {
	return e.marked
}
