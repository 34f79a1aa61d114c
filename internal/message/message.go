// Package message implements the universal actor message payload: a
// type-erased, copy-on-write tuple of arbitrary typed values.
//
// A *Message is a handle onto shared backing storage. Handles are cheap to
// create (Share, Drop, Take, Select, ...) and never copy element data; the
// storage is copied lazily, the first time a handle whose storage has more
// than one owner asks for mutable access (MutableAt, Set).
//
// A single handle must not be used from two goroutines at once. Distinct
// handles onto the same storage may be used concurrently.
package message

import (
	"errors"
	"fmt"
	"iter"
	"reflect"
	"strings"
	"sync/atomic"
)

var (
	// ErrIndexOutOfRange is the panic value (wrapped) for element access
	// past the end of a message.
	ErrIndexOutOfRange = errors.New("message index out of range")

	// ErrTypeMismatch is the panic value (wrapped) for typed access with
	// the wrong element type.
	ErrTypeMismatch = errors.New("message element type mismatch")

	// ErrInvalidCount is the panic value (wrapped) for negative counts or
	// positions passed to slicing operations.
	ErrInvalidCount = errors.New("invalid message slice count")
)

// tuple is the shared, reference counted element storage.
type tuple struct {
	// owners counts the handles referencing this storage.
	owners atomic.Int32

	// vals holds one addressable value per element.
	vals []reflect.Value

	// types holds the interned descriptor of each element.
	types []*TypeDesc

	// dynamic is true for ad-hoc messages built from []any.
	dynamic bool

	// sig caches the signature of the full tuple. It is set eagerly for
	// statically typed tuples and lazily otherwise.
	sig atomic.Pointer[Signature]
}

func newTuple(vals []reflect.Value, types []*TypeDesc,
	dynamic bool) *tuple {

	t := &tuple{
		vals:    vals,
		types:   types,
		dynamic: dynamic,
	}
	t.owners.Store(1)

	if !dynamic {
		t.sig.Store(SignatureOf(types...))
	}

	return t
}

// Message is a handle onto a (window of a) shared tuple. A plain handle
// covers the whole tuple. A decorated view covers the window [off, off+n) of
// either the tuple itself or, when mapping is set, of an index mapping into
// the tuple.
type Message struct {
	data    *tuple
	off     int
	n       int
	mapping []int
}

// Empty returns a new message with no elements.
func Empty() *Message {
	return &Message{}
}

// Make builds a dynamically typed message from the given values. The element
// type of each value is its dynamic type; nil values are stored as elements
// of type any.
func Make(vals ...any) *Message {
	if len(vals) == 0 {
		return Empty()
	}

	rvals := make([]reflect.Value, len(vals))
	types := make([]*TypeDesc, len(vals))
	for i, v := range vals {
		rvals[i] = boxAny(v)
		types[i] = TypeOf(rvals[i].Type())
	}

	return fromTuple(newTuple(rvals, types, true))
}

// Make1 builds a statically typed single-element message.
func Make1[A any](a A) *Message {
	return makeStatic([]reflect.Value{box(a)})
}

// Make2 builds a statically typed two-element message.
func Make2[A, B any](a A, b B) *Message {
	return makeStatic([]reflect.Value{box(a), box(b)})
}

// Make3 builds a statically typed three-element message.
func Make3[A, B, C any](a A, b B, c C) *Message {
	return makeStatic([]reflect.Value{box(a), box(b), box(c)})
}

func makeStatic(vals []reflect.Value) *Message {
	types := make([]*TypeDesc, len(vals))
	for i, v := range vals {
		types[i] = TypeOf(v.Type())
	}

	return fromTuple(newTuple(vals, types, false))
}

func fromTuple(t *tuple) *Message {
	return &Message{data: t, n: len(t.vals)}
}

// box copies x into fresh addressable storage of its static type.
func box[T any](x T) reflect.Value {
	return reflect.ValueOf(&x).Elem()
}

// boxAny copies v into fresh addressable storage of its dynamic type.
func boxAny(v any) reflect.Value {
	if v == nil {
		return reflect.New(anyType).Elem()
	}

	rv := reflect.New(reflect.TypeOf(v)).Elem()
	rv.Set(reflect.ValueOf(v))

	return rv
}

// cloneValue copies v into fresh addressable storage of the same type.
func cloneValue(v reflect.Value) reflect.Value {
	c := reflect.New(v.Type()).Elem()
	c.Set(v)

	return c
}

// index maps a handle-relative index onto the tuple.
func (m *Message) index(i int) int {
	if i < 0 || i >= m.n {
		panic(fmt.Errorf("%w: index %d, size %d", ErrIndexOutOfRange,
			i, m.n))
	}

	j := m.off + i
	if m.mapping != nil {
		return m.mapping[j]
	}

	return j
}

// identity reports whether the handle covers its whole tuple in order.
func (m *Message) identity() bool {
	return m.data != nil && m.mapping == nil && m.off == 0 &&
		m.n == len(m.data.vals)
}

func (m *Message) value(i int) reflect.Value {
	return m.data.vals[m.index(i)]
}

// Size returns the number of elements.
func (m *Message) Size() int {
	return m.n
}

// TypeAt returns the descriptor of element i.
func (m *Message) TypeAt(i int) *TypeDesc {
	return m.data.types[m.index(i)]
}

// TypeName returns the runtime type name of element i.
func (m *Message) TypeName(i int) string {
	return m.TypeAt(i).Name()
}

// At returns a read-only view of element i.
func (m *Message) At(i int) any {
	return m.value(i).Interface()
}

// Get returns element i as a T. It panics if the element is not a T.
func Get[T any](m *Message, i int) T {
	v, ok := matchAt[T](m, i)
	if !ok {
		panic(fmt.Errorf("%w: element %d is %s, not %s",
			ErrTypeMismatch, i, m.TypeName(i),
			reflect.TypeFor[T]()))
	}

	return v
}

// matchAt extracts element i as an A if its type is A, or if A is an
// interface the element's value implements.
func matchAt[A any](m *Message, i int) (A, bool) {
	var zero A

	want := reflect.TypeFor[A]()
	v := m.value(i)
	if v.Type() == want {
		return *(v.Addr().Interface().(*A)), true
	}

	if want.Kind() == reflect.Interface {
		a, ok := v.Interface().(A)
		return a, ok
	}

	return zero, false
}

// Elements iterates over (index, value) pairs in stable 0..Size() order.
func (m *Message) Elements() iter.Seq2[int, any] {
	return func(yield func(int, any) bool) {
		for i := 0; i < m.n; i++ {
			if !yield(i, m.At(i)) {
				return
			}
		}
	}
}

// Dynamic reports whether the message was built from ad-hoc values rather
// than a static type list.
func (m *Message) Dynamic() bool {
	return m.data != nil && m.data.dynamic
}

// Signature returns the interned element-type list of the message.
func (m *Message) Signature() *Signature {
	if m.n == 0 {
		return rootSignature
	}

	if m.identity() {
		if s := m.data.sig.Load(); s != nil {
			return s
		}

		s := SignatureOf(m.data.types...)
		m.data.sig.Store(s)

		return s
	}

	types := make([]*TypeDesc, m.n)
	for i := range types {
		types[i] = m.TypeAt(i)
	}

	return SignatureOf(types...)
}

// Share returns a new handle onto the same storage. The storage gains an
// owner, so a later MutableAt or Set on either handle detaches a private copy
// first.
func (m *Message) Share() *Message {
	if m.data != nil {
		m.data.owners.Add(1)
	}

	c := *m

	return &c
}

// Shared reports whether the storage currently has more than one owner.
func (m *Message) Shared() bool {
	return m.data != nil && m.data.owners.Load() > 1
}

// Release drops this handle's ownership of the storage and empties the
// handle. Forgetting to call Release is safe: the only cost is a copy on a
// later mutation through another handle.
func (m *Message) Release() {
	if m.data != nil {
		m.data.owners.Add(-1)
	}

	*m = Message{}
}

// detach gives the handle private storage holding exactly its visible
// elements, if the current storage is shared.
func (m *Message) detach() {
	if m.data == nil || m.data.owners.Load() <= 1 {
		return
	}

	old := m.data
	vals := make([]reflect.Value, m.n)
	types := make([]*TypeDesc, m.n)
	for i := range vals {
		j := m.index(i)
		vals[i] = cloneValue(old.vals[j])
		types[i] = old.types[j]
	}

	*m = Message{data: newTuple(vals, types, old.dynamic), n: len(vals)}
	old.owners.Add(-1)
}

// MutableAt returns a pointer to element i, detaching a private copy of the
// storage first if it is shared. It panics if the element is not a T.
func MutableAt[T any](m *Message, i int) *T {
	if m.TypeAt(i).Type() != reflect.TypeFor[T]() {
		panic(fmt.Errorf("%w: element %d is %s, not %s",
			ErrTypeMismatch, i, m.TypeName(i),
			reflect.TypeFor[T]()))
	}

	m.detach()

	return m.value(i).Addr().Interface().(*T)
}

// Set replaces element i with v, detaching a private copy of the storage
// first if it is shared. The element keeps its type, so v must be assignable
// to it.
func (m *Message) Set(i int, v any) {
	t := m.TypeAt(i).Type()

	var rv reflect.Value
	switch {
	case v == nil:
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map,
			reflect.Slice, reflect.Func, reflect.Chan:

			rv = reflect.Zero(t)

		default:
			panic(fmt.Errorf("%w: nil for element %d of type %s",
				ErrTypeMismatch, i, t))
		}

	case reflect.TypeOf(v).AssignableTo(t):
		rv = reflect.ValueOf(v)

	default:
		panic(fmt.Errorf("%w: %T for element %d of type %s",
			ErrTypeMismatch, v, i, t))
	}

	m.detach()
	m.value(i).Set(rv)
}

// Equals reports whether both messages hold the same sequence of (type,
// value) pairs, regardless of how each is represented.
func (m *Message) Equals(o *Message) bool {
	switch {
	case m == o:
		return true

	case m.n != o.n:
		return false

	case m.n == 0:
		return true

	case m.data == o.data && m.off == o.off && m.mapping == nil &&
		o.mapping == nil:

		return true
	}

	// Two full, statically typed tuples with different signatures cannot
	// be equal.
	if m.identity() && o.identity() && !m.data.dynamic &&
		!o.data.dynamic && m.data.sig.Load() != o.data.sig.Load() {

		return false
	}

	for i := 0; i < m.n; i++ {
		t := m.TypeAt(i)
		if t != o.TypeAt(i) {
			return false
		}

		if !t.equal(m.value(i), o.value(i)) {
			return false
		}
	}

	return true
}

// String renders the message as "(v1, v2, ...)".
func (m *Message) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, v := range m.Elements() {
		if i > 0 {
			sb.WriteString(", ")
		}

		if s, ok := v.(string); ok {
			fmt.Fprintf(&sb, "%q", s)
		} else {
			fmt.Fprintf(&sb, "%v", v)
		}
	}
	sb.WriteByte(')')

	return sb.String()
}
