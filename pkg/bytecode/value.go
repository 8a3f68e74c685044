// Package bytecode defines the runtime value model and the compiled
// code representation for glox.
//
// The package owns everything the compiler and the VM must agree on:
//
//   - Value: the tagged union the stack, the constant pool and the
//     globals table all traffic in
//   - Obj / ObjString / ObjFunction: heap objects, chained for bulk
//     release at VM teardown
//   - Heap: the allocator that interns every string it hands out
//   - Table: the open-addressing hash table used for interning and for
//     global variables
//   - Chunk: bytecode bytes, source-line sidecar and constant pool
//
// Keeping these in one package mirrors the data contract: a chunk's
// constants are Values, a Value may reference an ObjFunction, and an
// ObjFunction owns a Chunk.
package bytecode

import "strconv"

// ValueType tags the variant held by a Value.
type ValueType int

const (
	ValNil ValueType = iota
	ValBool
	ValNumber
	ValObj
)

// Value is a tagged union. Exactly one of the payload fields is
// meaningful, selected by Type. Values are small and copied freely;
// only Obj payloads reference the heap.
type Value struct {
	Type   ValueType
	boolv  bool
	number float64
	obj    Obj
}

// NilVal returns the nil value.
func NilVal() Value {
	return Value{Type: ValNil}
}

// BoolVal wraps a bool.
func BoolVal(b bool) Value {
	return Value{Type: ValBool, boolv: b}
}

// NumberVal wraps an IEEE-754 double.
func NumberVal(n float64) Value {
	return Value{Type: ValNumber, number: n}
}

// ObjVal wraps a heap object reference.
func ObjVal(o Obj) Value {
	return Value{Type: ValObj, obj: o}
}

func (v Value) IsNil() bool    { return v.Type == ValNil }
func (v Value) IsBool() bool   { return v.Type == ValBool }
func (v Value) IsNumber() bool { return v.Type == ValNumber }
func (v Value) IsObj() bool    { return v.Type == ValObj }

// AsBool returns the bool payload. Only valid when IsBool.
func (v Value) AsBool() bool { return v.boolv }

// AsNumber returns the number payload. Only valid when IsNumber.
func (v Value) AsNumber() float64 { return v.number }

// AsObj returns the object payload. Only valid when IsObj.
func (v Value) AsObj() Obj { return v.obj }

// IsString reports whether the value references a string object.
func (v Value) IsString() bool {
	if v.Type != ValObj {
		return false
	}
	_, ok := v.obj.(*ObjString)
	return ok
}

// AsString returns the string object payload. Only valid when IsString.
func (v Value) AsString() *ObjString {
	return v.obj.(*ObjString)
}

// IsFunction reports whether the value references a function object.
func (v Value) IsFunction() bool {
	if v.Type != ValObj {
		return false
	}
	_, ok := v.obj.(*ObjFunction)
	return ok
}

// AsFunction returns the function object payload. Only valid when
// IsFunction.
func (v Value) AsFunction() *ObjFunction {
	return v.obj.(*ObjFunction)
}

// IsFalsey reports the language's truthiness rule: nil and false are
// falsey, every other value is truthy.
func (v Value) IsFalsey() bool {
	return v.Type == ValNil || (v.Type == ValBool && !v.boolv)
}

// Equals implements structural equality. Values of different tags are
// never equal. Strings compare by reference, which the interning
// invariant makes equivalent to comparing contents.
func (v Value) Equals(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case ValNil:
		return true
	case ValBool:
		return v.boolv == other.boolv
	case ValNumber:
		return v.number == other.number
	case ValObj:
		return v.obj == other.obj
	default:
		return false
	}
}

// String formats the value the way the print statement shows it.
// Numbers use the shortest representation that round-trips.
func (v Value) String() string {
	switch v.Type {
	case ValNil:
		return "nil"
	case ValBool:
		if v.boolv {
			return "true"
		}
		return "false"
	case ValNumber:
		return strconv.FormatFloat(v.number, 'g', -1, 64)
	case ValObj:
		return v.obj.String()
	default:
		return "unknown"
	}
}
