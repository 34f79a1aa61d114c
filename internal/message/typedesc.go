package message

import (
	"reflect"
	"strings"
	"sync"
)

// TypeDesc describes the runtime type of a single message element. Every
// reflect.Type maps to exactly one *TypeDesc, so two descriptors denote the
// same type iff they are the same pointer.
type TypeDesc struct {
	rtype reflect.Type
	name  string
	equal func(a, b reflect.Value) bool
}

// Type returns the reflect.Type this descriptor was created for.
func (t *TypeDesc) Type() reflect.Type {
	return t.rtype
}

// Name returns the fully qualified type name ("pkg/path.Name" for named
// types, the Go spelling for builtin and composite types). Serialization
// layers key their codecs on this name.
func (t *TypeDesc) Name() string {
	return t.name
}

// String implements fmt.Stringer.
func (t *TypeDesc) String() string {
	return t.name
}

var (
	// descs interns one *TypeDesc per reflect.Type.
	descs sync.Map

	// anyType is the element type used for nil values in dynamically
	// typed messages.
	anyType = reflect.TypeFor[any]()
)

// TypeOf returns the interned descriptor for t.
func TypeOf(t reflect.Type) *TypeDesc {
	if d, ok := descs.Load(t); ok {
		return d.(*TypeDesc)
	}

	d, _ := descs.LoadOrStore(t, &TypeDesc{
		rtype: t,
		name:  typeName(t),
		equal: equalFunc(t),
	})

	return d.(*TypeDesc)
}

// TypeFor returns the interned descriptor for the type parameter T.
func TypeFor[T any]() *TypeDesc {
	return TypeOf(reflect.TypeFor[T]())
}

// typeName builds the stable name for t. Named types get their full package
// path so two types called Foo in different packages never collide.
func typeName(t reflect.Type) string {
	switch {
	case t.Name() == "":
		return t.String()

	case t.PkgPath() == "":
		return t.Name()

	default:
		return t.PkgPath() + "." + t.Name()
	}
}

// equalFunc selects the equality used for values of type t. A method
// Equal(T) bool wins, then == for comparable kinds, then reflect.DeepEqual.
func equalFunc(t reflect.Type) func(a, b reflect.Value) bool {
	if t.Kind() != reflect.Interface {
		m, ok := t.MethodByName("Equal")
		if ok && m.Type.NumIn() == 2 && m.Type.In(1) == t &&
			m.Type.NumOut() == 1 &&
			m.Type.Out(0).Kind() == reflect.Bool {

			return func(a, b reflect.Value) bool {
				out := m.Func.Call([]reflect.Value{a, b})
				return out[0].Bool()
			}
		}

		if t.Comparable() {
			return comparableEqual
		}
	}

	return func(a, b reflect.Value) bool {
		return reflect.DeepEqual(a.Interface(), b.Interface())
	}
}

// comparableEqual compares with ==. Structs that embed interfaces are
// comparable at the type level but can still hold uncomparable dynamic
// values, in which case we fall back to a deep comparison.
func comparableEqual(a, b reflect.Value) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = reflect.DeepEqual(a.Interface(), b.Interface())
		}
	}()

	return a.Equal(b)
}

// Signature is the interned element-type list of a message. Signatures are
// nodes of a global trie keyed by *TypeDesc, which makes every distinct type
// list a unique pointer: comparing two signatures is a pointer comparison.
type Signature struct {
	types    []*TypeDesc
	children sync.Map
}

// rootSignature is the signature of the empty message.
var rootSignature = &Signature{}

// SignatureOf returns the interned signature for the given type list.
func SignatureOf(types ...*TypeDesc) *Signature {
	s := rootSignature
	for _, t := range types {
		s = s.child(t)
	}

	return s
}

// child returns the signature extending s by t, creating it on first use.
func (s *Signature) child(t *TypeDesc) *Signature {
	if c, ok := s.children.Load(t); ok {
		return c.(*Signature)
	}

	types := make([]*TypeDesc, len(s.types)+1)
	copy(types, s.types)
	types[len(s.types)] = t

	c, _ := s.children.LoadOrStore(t, &Signature{types: types})

	return c.(*Signature)
}

// Len returns the number of element types.
func (s *Signature) Len() int {
	return len(s.types)
}

// At returns the i-th element type.
func (s *Signature) At(i int) *TypeDesc {
	return s.types[i]
}

// String renders the signature as "(T1, T2, ...)".
func (s *Signature) String() string {
	names := make([]string, len(s.types))
	for i, t := range s.types {
		names[i] = t.name
	}

	return "(" + strings.Join(names, ", ") + ")"
}
