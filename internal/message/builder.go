package message

import "reflect"

// Builder accumulates values for a dynamically typed message.
type Builder struct {
	vals  []reflect.Value
	types []*TypeDesc
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Append adds v as the next element.
func (b *Builder) Append(v any) *Builder {
	rv := boxAny(v)
	b.vals = append(b.vals, rv)
	b.types = append(b.types, TypeOf(rv.Type()))

	return b
}

// Len returns the number of appended elements.
func (b *Builder) Len() int {
	return len(b.vals)
}

// Build returns a message holding copies of the appended values. The builder
// stays usable and later appends do not affect the returned message.
func (b *Builder) Build() *Message {
	if len(b.vals) == 0 {
		return Empty()
	}

	vals := make([]reflect.Value, len(b.vals))
	for i, v := range b.vals {
		vals[i] = cloneValue(v)
	}

	types := make([]*TypeDesc, len(b.types))
	copy(types, b.types)

	return fromTuple(newTuple(vals, types, true))
}

// Reset discards all appended values.
func (b *Builder) Reset() {
	b.vals = b.vals[:0]
	b.types = b.types[:0]
}
