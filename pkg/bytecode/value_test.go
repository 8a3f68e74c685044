package bytecode

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueEqualitySameTag(t *testing.T) {
	require.True(t, NilVal().Equals(NilVal()))
	require.True(t, BoolVal(true).Equals(BoolVal(true)))
	require.False(t, BoolVal(true).Equals(BoolVal(false)))
	require.True(t, NumberVal(1.5).Equals(NumberVal(1.5)))
	require.False(t, NumberVal(1).Equals(NumberVal(2)))
}

func TestValueEqualityAcrossTags(t *testing.T) {
	require.False(t, NilVal().Equals(BoolVal(false)))
	require.False(t, BoolVal(false).Equals(NumberVal(0)))
	require.False(t, NumberVal(0).Equals(NilVal()))
}

func TestStringEqualityIsReferenceEquality(t *testing.T) {
	heap := NewHeap()

	a := heap.CopyString("foo")
	b := heap.CopyString("foo")
	c := heap.CopyString("bar")

	require.True(t, ObjVal(a).Equals(ObjVal(b)))
	require.False(t, ObjVal(a).Equals(ObjVal(c)))
}

func TestTruthiness(t *testing.T) {
	heap := NewHeap()

	require.True(t, NilVal().IsFalsey())
	require.True(t, BoolVal(false).IsFalsey())

	// Everything else is truthy, including zero and the empty string.
	require.False(t, BoolVal(true).IsFalsey())
	require.False(t, NumberVal(0).IsFalsey())
	require.False(t, NumberVal(1).IsFalsey())
	require.False(t, ObjVal(heap.CopyString("")).IsFalsey())
}

func TestValuePrinting(t *testing.T) {
	heap := NewHeap()

	tests := []struct {
		value    Value
		expected string
	}{
		{NilVal(), "nil"},
		{BoolVal(true), "true"},
		{BoolVal(false), "false"},
		{NumberVal(7), "7"},
		{NumberVal(1.5), "1.5"},
		{NumberVal(-0.25), "-0.25"},
		{ObjVal(heap.CopyString("hello")), "hello"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, tt.value.String())
	}
}

func TestFunctionPrinting(t *testing.T) {
	heap := NewHeap()

	script := heap.NewFunction()
	require.Equal(t, "<script>", ObjVal(script).String())

	named := heap.NewFunction()
	named.Name = heap.CopyString("add")
	require.Equal(t, "<fn add>", ObjVal(named).String())
}

func TestNumberPrintingRoundTrips(t *testing.T) {
	// The printed form must re-parse to the same number.
	for _, n := range []float64{0, 7, -3.25, 0.1, 1e21, 123456.789} {
		printed := NumberVal(n).String()

		parsed, err := strconv.ParseFloat(printed, 64)
		require.NoError(t, err, "printed %q", printed)
		require.Equal(t, n, parsed, "printed %q", printed)
	}
}
