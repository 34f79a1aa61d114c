package actorutil

import (
	"errors"
	"sync/atomic"

	"github.com/roasbeef/actorcore/internal/mailbox"
	"github.com/roasbeef/actorcore/internal/message"
	"github.com/roasbeef/actorcore/internal/resumable"
)

// ErrEmptyPool is returned when creating a pool without members.
var ErrEmptyPool = errors.New("pool needs at least one member")

// Pool distributes messages across a set of actors using round-robin
// selection. A Pool is itself an address, so it can be used anywhere a
// single actor can: requests keep their sender, so members answer the
// requester directly.
type Pool struct {
	// id is the identifier for this pool.
	id string

	// members holds the pooled addresses.
	members []mailbox.Addr

	// next is the round-robin counter.
	next atomic.Uint64
}

// NewPool creates a pool over members.
func NewPool(id string, members ...mailbox.Addr) (*Pool, error) {
	if len(members) == 0 {
		return nil, ErrEmptyPool
	}

	return &Pool{
		id:      id,
		members: append([]mailbox.Addr(nil), members...),
	}, nil
}

// ID implements mailbox.Addr.
func (p *Pool) ID() string {
	return p.id
}

// pick returns the next member in round-robin order.
func (p *Pool) pick() mailbox.Addr {
	idx := (p.next.Add(1) - 1) % uint64(len(p.members))
	return p.members[idx]
}

// Enqueue implements mailbox.Addr by forwarding to the next member.
func (p *Pool) Enqueue(hdr mailbox.Header, msg *message.Message,
	eu resumable.ExecutionUnit) {

	p.pick().Enqueue(hdr, msg, eu)
}

// Broadcast sends vals to every member as an asynchronous message. This is
// useful for configuration updates or shutdown signals.
func (p *Pool) Broadcast(vals ...any) {
	TellAll(p.members, vals...)
}

// Size returns the number of members.
func (p *Pool) Size() int {
	return len(p.members)
}

// Members returns a copy of the member addresses.
func (p *Pool) Members() []mailbox.Addr {
	return append([]mailbox.Addr(nil), p.members...)
}

// A compile-time check that Pool is an address.
var _ mailbox.Addr = (*Pool)(nil)
