package message

import (
	"fmt"
	"reflect"
)

// checkCount panics on negative counts.
func checkCount(n int) {
	if n < 0 {
		panic(fmt.Errorf("%w: %d", ErrInvalidCount, n))
	}
}

// window returns a decorated view of n elements starting at off, relative to
// this handle.
func (m *Message) window(off, n int) *Message {
	if n == 0 {
		return Empty()
	}

	c := m.Share()
	c.off = m.off + off
	c.n = n

	return c
}

// Drop returns a view without the first n elements. Drop(0) shares the
// original, n >= Size() yields an empty message.
func (m *Message) Drop(n int) *Message {
	checkCount(n)

	switch {
	case n == 0:
		return m.Share()

	case n >= m.n:
		return Empty()
	}

	return m.window(n, m.n-n)
}

// DropRight returns a view without the last n elements.
func (m *Message) DropRight(n int) *Message {
	checkCount(n)

	switch {
	case n == 0:
		return m.Share()

	case n >= m.n:
		return Empty()
	}

	return m.window(0, m.n-n)
}

// Take returns a view of the first n elements.
func (m *Message) Take(n int) *Message {
	checkCount(n)
	if n >= m.n {
		return m.Share()
	}

	return m.window(0, n)
}

// TakeRight returns a view of the last n elements.
func (m *Message) TakeRight(n int) *Message {
	checkCount(n)
	if n >= m.n {
		return m.Share()
	}

	return m.window(m.n-n, n)
}

// Slice returns a view of at most n elements starting at pos.
func (m *Message) Slice(pos, n int) *Message {
	checkCount(n)
	if pos < 0 || pos > m.n {
		panic(fmt.Errorf("%w: position %d, size %d", ErrIndexOutOfRange,
			pos, m.n))
	}

	return m.window(pos, min(n, m.n-pos))
}

// Select returns a view of the given elements, in the given order. Indices
// may repeat. Every index must be smaller than Size().
func (m *Message) Select(indices ...int) *Message {
	if len(indices) == 0 {
		return Empty()
	}

	mapping := make([]int, len(indices))
	for k, i := range indices {
		mapping[k] = m.index(i)
	}

	c := m.Share()
	c.off = 0
	c.n = len(mapping)
	c.mapping = mapping

	return c
}

// Concat copies the elements of all given messages into a new message. The
// result is statically typed unless one of the inputs is dynamic.
func Concat(msgs ...*Message) *Message {
	var (
		vals    []reflect.Value
		types   []*TypeDesc
		dynamic bool
	)
	for _, m := range msgs {
		dynamic = dynamic || m.Dynamic()
		for i := 0; i < m.n; i++ {
			vals = append(vals, cloneValue(m.value(i)))
			types = append(types, m.TypeAt(i))
		}
	}

	if len(vals) == 0 {
		return Empty()
	}

	return fromTuple(newTuple(vals, types, dynamic))
}
