package message

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// genValues draws a slice of mixed int and string values.
func genValues(t *rapid.T) []any {
	return rapid.SliceOf(rapid.OneOf(
		rapid.Int().AsAny(), rapid.String().AsAny(),
	)).Draw(t, "values")
}

// TestEqualsReflexive checks m == m and Drop(0) == m for all messages.
func TestEqualsReflexive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := Make(genValues(t)...)

		require.True(t, m.Equals(m))
		require.True(t, m.Drop(0).Equals(m))
		require.True(t, m.DropRight(0).Equals(m))
	})
}

// TestDropShiftsElements checks the size and element mapping of Drop and
// DropRight views.
func TestDropShiftsElements(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		vals := genValues(t)
		m := Make(vals...)
		n := rapid.IntRange(0, len(vals)).Draw(t, "n")

		d := m.Drop(n)
		require.Equal(t, m.Size()-n, d.Size())
		for i := 0; i < d.Size(); i++ {
			require.Equal(t, m.At(i+n), d.At(i))
			require.Same(t, m.TypeAt(i+n), d.TypeAt(i))
		}
		require.True(t, d.Equals(Make(vals[n:]...)))

		r := m.DropRight(n)
		require.Equal(t, m.Size()-n, r.Size())
		require.True(t, r.Equals(Make(vals[:len(vals)-n]...)))

		// Views of views keep addressing the original storage.
		if d.Size() > 0 {
			k := rapid.IntRange(0, d.Size()).Draw(t, "k")
			require.True(t, d.Drop(k).Equals(m.Drop(n+k)))
		}
	})
}

// TestCopyOnWriteIsolation checks that a write through one handle is never
// visible through another.
func TestCopyOnWriteIsolation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ints := rapid.SliceOfN(rapid.Int(), 1, 16).Draw(t, "ints")
		vals := make([]any, len(ints))
		for i, v := range ints {
			vals[i] = v
		}

		m1 := Make(vals...)
		m2 := m1.Share()
		i := rapid.IntRange(0, len(ints)-1).Draw(t, "i")

		*MutableAt[int](m2, i) = ints[i] + 1
		require.Equal(t, ints[i], m1.At(i))
		require.Equal(t, ints[i]+1, m2.At(i))
	})
}

// TestSelectMatchesIndices checks that Select views address the requested
// elements.
func TestSelectMatchesIndices(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		vals := genValues(t)
		if len(vals) == 0 {
			t.Skip("empty")
		}
		m := Make(vals...)

		idx := rapid.SliceOf(
			rapid.IntRange(0, len(vals)-1),
		).Draw(t, "idx")

		v := m.Select(idx...)
		require.Equal(t, len(idx), v.Size())
		for k, i := range idx {
			require.Equal(t, vals[i], v.At(k))
		}
	})
}
