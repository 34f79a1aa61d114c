package behavior

import (
	"errors"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/actorcore/internal/mailbox"
)

// ErrEmptyStack is the panic value for reading the current behavior of an
// empty stack.
var ErrEmptyStack = errors.New("behavior: empty stack")

// entry is a behavior together with the response id it awaits, or
// mailbox.AsyncID for behaviors installed with become.
type entry struct {
	b  *Behavior
	id mailbox.MessageID
}

// Stack holds the behaviors of one actor. The back entry is current.
//
// Removed behaviors are retained until Cleanup, because the dispatch loop
// may still be running one of them when it removes itself.
type Stack struct {
	entries []entry
	erased  []*Behavior
}

// Push installs b as the current behavior. A non-async id ties b to the
// outstanding request whose response carries that id.
func (s *Stack) Push(b *Behavior, id mailbox.MessageID) {
	s.entries = append(s.entries, entry{b: b, id: id})
}

// Current returns the current behavior. It panics on an empty stack.
func (s *Stack) Current() *Behavior {
	if len(s.entries) == 0 {
		panic(ErrEmptyStack)
	}

	return s.entries[len(s.entries)-1].b
}

// CurrentID returns the id of the current entry. It panics on an empty
// stack.
func (s *Stack) CurrentID() mailbox.MessageID {
	if len(s.entries) == 0 {
		panic(ErrEmptyStack)
	}

	return s.entries[len(s.entries)-1].id
}

// General returns the most recently pushed behavior that does not await a
// response. Everything except awaited responses is dispatched to it.
func (s *Stack) General() fn.Option[*Behavior] {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].id == mailbox.AsyncID {
			return fn.Some(s.entries[i].b)
		}
	}

	return fn.None[*Behavior]()
}

// Find returns the behavior awaiting the response id.
func (s *Stack) Find(id mailbox.MessageID) fn.Option[*Behavior] {
	if id == mailbox.AsyncID {
		return fn.None[*Behavior]()
	}

	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].id == id {
			return fn.Some(s.entries[i].b)
		}
	}

	return fn.None[*Behavior]()
}

// remove moves entry i to the retained list.
func (s *Stack) remove(i int) {
	s.erased = append(s.erased, s.entries[i].b)

	copy(s.entries[i:], s.entries[i+1:])
	s.entries[len(s.entries)-1] = entry{}
	s.entries = s.entries[:len(s.entries)-1]
}

// Erase removes the behavior awaiting the response id. It reports whether
// one was found.
func (s *Stack) Erase(id mailbox.MessageID) bool {
	if id == mailbox.AsyncID {
		return false
	}

	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].id == id {
			s.remove(i)
			return true
		}
	}

	return false
}

// PopAsyncBack removes the most recently pushed behavior that does not
// await a response. It reports whether one was found.
func (s *Stack) PopAsyncBack() bool {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].id == mailbox.AsyncID {
			s.remove(i)
			return true
		}
	}

	return false
}

// Awaiting reports whether any behavior waits for a response.
func (s *Stack) Awaiting() bool {
	for _, e := range s.entries {
		if e.id != mailbox.AsyncID {
			return true
		}
	}

	return false
}

// Clear removes every behavior.
func (s *Stack) Clear() {
	for i := range s.entries {
		s.erased = append(s.erased, s.entries[i].b)
		s.entries[i] = entry{}
	}
	s.entries = s.entries[:0]
}

// Cleanup frees the removed behaviors. It must only run once no dispatch
// can still be executing one of them.
func (s *Stack) Cleanup() {
	clear(s.erased)
	s.erased = s.erased[:0]
}

// Empty reports whether the stack holds no behavior.
func (s *Stack) Empty() bool {
	return len(s.entries) == 0
}

// Len returns the number of behaviors on the stack.
func (s *Stack) Len() int {
	return len(s.entries)
}

// Retained returns the number of removed behaviors awaiting Cleanup.
func (s *Stack) Retained() int {
	return len(s.erased)
}
