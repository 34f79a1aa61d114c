package message

// Match1 extracts the single element of m if m has exactly one element of
// type A (or implementing interface A).
func Match1[A any](m *Message) (A, bool) {
	var a A
	if m.Size() != 1 {
		return a, false
	}

	return matchAt[A](m, 0)
}

// Match2 extracts both elements of a two-element message of types (A, B).
func Match2[A, B any](m *Message) (A, B, bool) {
	var (
		a A
		b B
	)
	if m.Size() != 2 {
		return a, b, false
	}

	a, ok := matchAt[A](m, 0)
	if !ok {
		return a, b, false
	}
	b, ok = matchAt[B](m, 1)

	return a, b, ok
}

// Match3 extracts all elements of a three-element message of types
// (A, B, C).
func Match3[A, B, C any](m *Message) (A, B, C, bool) {
	var (
		a A
		b B
		c C
	)
	if m.Size() != 3 {
		return a, b, c, false
	}

	a, ok := matchAt[A](m, 0)
	if !ok {
		return a, b, c, false
	}
	b, ok = matchAt[B](m, 1)
	if !ok {
		return a, b, c, false
	}
	c, ok = matchAt[C](m, 2)

	return a, b, c, ok
}

// HasPrefix reports whether the first len(types) elements of m have exactly
// the given types.
func HasPrefix(m *Message, types ...*TypeDesc) bool {
	if m.Size() < len(types) {
		return false
	}

	for i, t := range types {
		if m.TypeAt(i) != t {
			return false
		}
	}

	return true
}
