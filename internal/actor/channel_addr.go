package actor

import (
	"context"
	"time"

	"github.com/roasbeef/actorcore/internal/mailbox"
	"github.com/roasbeef/actorcore/internal/message"
	"github.com/roasbeef/actorcore/internal/resumable"
)

// Envelope is a message together with its header.
type Envelope struct {
	mailbox.Header

	Msg *message.Message
}

// ChannelAddr is an address that forwards messages to a channel. It
// connects actors with plain goroutines and is handy as a probe in tests.
type ChannelAddr struct {
	id   string
	msgs chan Envelope
}

// NewChannelAddr creates a new ChannelAddr with the given ID and buffer
// size for the message channel.
func NewChannelAddr(id string, bufSize int) *ChannelAddr {
	return &ChannelAddr{
		id:   id,
		msgs: make(chan Envelope, bufSize),
	}
}

// ID implements mailbox.Addr.
func (c *ChannelAddr) ID() string {
	return c.id
}

// Enqueue implements mailbox.Addr. Enqueue must not block, so messages
// arriving while the buffer is full are dropped.
func (c *ChannelAddr) Enqueue(hdr mailbox.Header, msg *message.Message,
	_ resumable.ExecutionUnit) {

	select {
	case c.msgs <- Envelope{Header: hdr, Msg: msg}:
	default:
		log.WarnS(context.Background(), "Channel address full, "+
			"dropping message", nil, "addr", c.id, "msg", msg)
	}
}

// Messages returns the underlying channel for receiving messages.
func (c *ChannelAddr) Messages() <-chan Envelope {
	return c.msgs
}

// AwaitMessage waits for a message with a timeout. It returns false if the
// timeout expires.
func (c *ChannelAddr) AwaitMessage(timeout time.Duration) (Envelope, bool) {
	select {
	case env := <-c.msgs:
		return env, true

	case <-time.After(timeout):
		return Envelope{}, false
	}
}

// Compile-time check that ChannelAddr implements mailbox.Addr.
var _ mailbox.Addr = (*ChannelAddr)(nil)
