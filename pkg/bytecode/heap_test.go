package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCopyStringInterns(t *testing.T) {
	heap := NewHeap()

	a := heap.CopyString("hello")
	b := heap.CopyString("hello")

	// One canonical object per distinct byte sequence.
	require.Same(t, a, b)

	c := heap.CopyString("world")
	require.NotSame(t, a, c)
}

func TestCopyStringPrecomputesHash(t *testing.T) {
	heap := NewHeap()

	s := heap.CopyString("abc")
	require.Equal(t, hashString("abc"), s.Hash)
}

func TestFNV1aKnownValues(t *testing.T) {
	// Reference values for 32-bit FNV-1a.
	require.Equal(t, uint32(2166136261), hashString(""))
	require.Equal(t, uint32(0xe40c292c), hashString("a"))
	require.Equal(t, uint32(0xbf9cf968), hashString("foobar"))
}

func TestConcatenateInterns(t *testing.T) {
	heap := NewHeap()

	foo := heap.CopyString("foo")
	bar := heap.CopyString("bar")

	cat := heap.Concatenate(foo, bar)
	require.Equal(t, "foobar", cat.Chars)

	// The concatenation result is the same object a literal with the
	// same contents would produce.
	require.Same(t, cat, heap.CopyString("foobar"))
}

func TestNewFunction(t *testing.T) {
	heap := NewHeap()

	fn := heap.NewFunction()
	require.NotNil(t, fn.Chunk)
	require.Zero(t, fn.Arity)
	require.Nil(t, fn.Name)
}

func TestHeapFree(t *testing.T) {
	heap := NewHeap()

	heap.CopyString("a")
	heap.CopyString("b")
	heap.NewFunction()

	heap.Free()

	require.Zero(t, heap.Strings().Count())

	// The heap is usable again afterwards; previous interning state
	// is gone so this allocates fresh.
	s := heap.CopyString("a")
	require.Equal(t, "a", s.Chars)
}
