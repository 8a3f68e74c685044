package bytecode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildSampleFunction(heap *Heap) *ObjFunction {
	fn := heap.NewFunction()

	greeting := fn.Chunk.AddConstant(ObjVal(heap.CopyString("hi")))
	fn.Chunk.Write(byte(OpConstant), 1)
	fn.Chunk.Write(byte(greeting), 1)
	fn.Chunk.Write(byte(OpPrint), 1)

	n := fn.Chunk.AddConstant(NumberVal(42.5))
	fn.Chunk.Write(byte(OpConstant), 2)
	fn.Chunk.Write(byte(n), 2)
	fn.Chunk.Write(byte(OpPop), 2)

	fn.Chunk.Write(byte(OpReturn), 3)
	return fn
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	heap := NewHeap()
	fn := buildSampleFunction(heap)

	var buf bytes.Buffer
	require.NoError(t, Encode(fn, &buf))

	loadHeap := NewHeap()
	decoded, err := Decode(&buf, loadHeap)
	require.NoError(t, err)

	require.Equal(t, fn.Arity, decoded.Arity)
	require.Nil(t, decoded.Name)
	require.Equal(t, fn.Chunk.Code, decoded.Chunk.Code)
	require.Equal(t, fn.Chunk.Lines, decoded.Chunk.Lines)

	require.Len(t, decoded.Chunk.Constants, 2)
	require.Equal(t, "hi", decoded.Chunk.Constants[0].AsString().Chars)
	require.Equal(t, 42.5, decoded.Chunk.Constants[1].AsNumber())
}

func TestDecodeInternsStrings(t *testing.T) {
	heap := NewHeap()
	fn := heap.NewFunction()

	// The same literal twice: two pool slots, one interned object.
	fn.Chunk.AddConstant(ObjVal(heap.CopyString("dup")))
	fn.Chunk.AddConstant(ObjVal(heap.CopyString("dup")))
	fn.Chunk.Write(byte(OpReturn), 1)

	var buf bytes.Buffer
	require.NoError(t, Encode(fn, &buf))

	loadHeap := NewHeap()
	decoded, err := Decode(&buf, loadHeap)
	require.NoError(t, err)

	a := decoded.Chunk.Constants[0].AsString()
	b := decoded.Chunk.Constants[1].AsString()
	require.Same(t, a, b)
	require.Same(t, a, loadHeap.CopyString("dup"))
}

func TestEncodeNamedFunction(t *testing.T) {
	heap := NewHeap()
	fn := heap.NewFunction()
	fn.Arity = 2
	fn.Name = heap.CopyString("add")
	fn.Chunk.Write(byte(OpReturn), 1)

	var buf bytes.Buffer
	require.NoError(t, Encode(fn, &buf))

	decoded, err := Decode(&buf, NewHeap())
	require.NoError(t, err)
	require.Equal(t, 2, decoded.Arity)
	require.NotNil(t, decoded.Name)
	require.Equal(t, "add", decoded.Name.Chars)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{0xde, 0xad, 0xbe, 0xef, 1, 0, 0, 0}), NewHeap())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a compiled chunk file")
}

func TestDecodeRejectsWrongVersion(t *testing.T) {
	heap := NewHeap()
	fn := heap.NewFunction()
	fn.Chunk.Write(byte(OpReturn), 1)

	var buf bytes.Buffer
	require.NoError(t, Encode(fn, &buf))

	// Corrupt the version field, which sits after the 4-byte magic.
	data := buf.Bytes()
	data[4] = 0xff

	_, err := Decode(bytes.NewReader(data), NewHeap())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported chunk format version")
}

func TestDecodeTruncatedInput(t *testing.T) {
	heap := NewHeap()
	fn := buildSampleFunction(heap)

	var buf bytes.Buffer
	require.NoError(t, Encode(fn, &buf))

	truncated := buf.Bytes()[:buf.Len()/2]
	_, err := Decode(bytes.NewReader(truncated), NewHeap())
	require.Error(t, err)
}
