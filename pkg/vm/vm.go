// Package vm implements the stack-based virtual machine that executes
// glox bytecode.
//
// The VM is the last stage of the pipeline:
//
//	source -> scanner -> compiler -> chunk -> VM
//
// It decodes one byte at a time from the current chunk and dispatches
// on the opcode. Every opcode has a fixed stack effect; the compiler
// guarantees the stack is balanced around statements, so the only
// dynamic failure modes are type errors, undefined globals and running
// out of stack.
//
// One VM owns one heap. Globals, interned strings and every object
// allocated while running live until Free, which tears the tables down
// before unlinking the object list.
package vm

import (
	"fmt"
	"io"
	"os"

	"glox/pkg/bytecode"
	"glox/pkg/compiler"
)

// InterpretResult is the outcome of running one piece of source.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

// StackMax is the fixed depth of the value stack. Pushing past it is a
// runtime error.
const StackMax = 256

// VM executes bytecode chunks. The zero value is not usable; create
// one with New.
type VM struct {
	chunk    *bytecode.Chunk
	ip       int
	stack    [StackMax]bytecode.Value
	stackTop int

	heap    *bytecode.Heap
	globals *bytecode.Table

	// Stdout receives print output; Stderr receives runtime and
	// compile errors and the execution trace.
	Stdout io.Writer
	Stderr io.Writer

	// Trace dumps the stack and each instruction before dispatch.
	Trace bool
}

// New creates a VM with an empty heap and globals table, writing to
// the process streams.
func New() *VM {
	return &VM{
		heap:    bytecode.NewHeap(),
		globals: bytecode.NewTable(),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

// Heap exposes the VM's heap so callers can intern strings into it,
// e.g. when decoding a compiled chunk file.
func (vm *VM) Heap() *bytecode.Heap {
	return vm.heap
}

// Free releases everything the VM owns. The globals and interning
// tables go first so no bucket outlives the objects it references.
func (vm *VM) Free() {
	vm.globals.Reset()
	vm.heap.Free()
}

// Interpret compiles source and runs it. Compile errors have already
// been reported to Stderr when this returns InterpretCompileError.
// Globals and interned strings survive across calls, which is what
// makes the REPL's shared state work.
func (vm *VM) Interpret(source string) InterpretResult {
	fn, err := compiler.Compile(vm.heap, source, vm.Stderr)
	if err != nil {
		return InterpretCompileError
	}
	return vm.RunFunction(fn)
}

// RunFunction executes an already-compiled top-level function, e.g.
// one loaded from a chunk file.
func (vm *VM) RunFunction(fn *bytecode.ObjFunction) InterpretResult {
	vm.resetStack()

	// The callee occupies stack slot zero; the compiler numbers
	// locals from one to match.
	vm.stack[vm.stackTop] = bytecode.ObjVal(fn)
	vm.stackTop++

	vm.chunk = fn.Chunk
	vm.ip = 0

	return vm.run()
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
}

// push returns false when the stack is full; the caller raises the
// runtime error so the message carries the right source line.
func (vm *VM) push(value bytecode.Value) bool {
	if vm.stackTop == StackMax {
		return false
	}
	vm.stack[vm.stackTop] = value
	vm.stackTop++
	return true
}

func (vm *VM) pop() bytecode.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

// peek returns the value distance slots down from the top without
// popping it.
func (vm *VM) peek(distance int) bytecode.Value {
	return vm.stack[vm.stackTop-1-distance]
}

// runtimeError reports a runtime error with the source line of the
// instruction being executed, resets the stack and ends the run.
func (vm *VM) runtimeError(format string, args ...interface{}) InterpretResult {
	fmt.Fprintf(vm.Stderr, format, args...)
	fmt.Fprintf(vm.Stderr, "\n")

	line := vm.chunk.Lines[vm.ip-1]
	fmt.Fprintf(vm.Stderr, "[line %d] in script\n", line)

	vm.resetStack()
	return InterpretRuntimeError
}

func (vm *VM) readByte() byte {
	b := vm.chunk.Code[vm.ip]
	vm.ip++
	return b
}

// readShort decodes a big-endian 16-bit jump operand.
func (vm *VM) readShort() int {
	vm.ip += 2
	return int(vm.chunk.Code[vm.ip-2])<<8 | int(vm.chunk.Code[vm.ip-1])
}

func (vm *VM) readConstant() bytecode.Value {
	return vm.chunk.Constants[vm.readByte()]
}

// readString reads a constant known to be an interned identifier.
func (vm *VM) readString() *bytecode.ObjString {
	return vm.readConstant().AsString()
}

// numberOperands pops two numeric operands, or reports failure
// without disturbing the stack.
func (vm *VM) numberOperands() (a, b float64, ok bool) {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return 0, 0, false
	}
	b = vm.pop().AsNumber()
	a = vm.pop().AsNumber()
	return a, b, true
}

func (vm *VM) concatenate() {
	b := vm.pop().AsString()
	a := vm.pop().AsString()
	vm.stack[vm.stackTop] = bytecode.ObjVal(vm.heap.Concatenate(a, b))
	vm.stackTop++
}

func (vm *VM) run() InterpretResult {
	for {
		if vm.Trace {
			vm.traceInstruction()
		}

		switch op := bytecode.Opcode(vm.readByte()); op {
		case bytecode.OpConstant:
			if !vm.push(vm.readConstant()) {
				return vm.runtimeError("stack overflow")
			}

		case bytecode.OpNil:
			if !vm.push(bytecode.NilVal()) {
				return vm.runtimeError("stack overflow")
			}

		case bytecode.OpTrue:
			if !vm.push(bytecode.BoolVal(true)) {
				return vm.runtimeError("stack overflow")
			}

		case bytecode.OpFalse:
			if !vm.push(bytecode.BoolVal(false)) {
				return vm.runtimeError("stack overflow")
			}

		case bytecode.OpPop:
			vm.pop()

		case bytecode.OpGetLocal:
			slot := vm.readByte()
			if !vm.push(vm.stack[slot]) {
				return vm.runtimeError("stack overflow")
			}

		case bytecode.OpSetLocal:
			// Assignment is an expression: the value stays on the
			// stack and the statement's own OpPop discards it.
			slot := vm.readByte()
			vm.stack[slot] = vm.peek(0)

		case bytecode.OpGetGlobal:
			name := vm.readString()
			value, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("undefined variable '%s'", name.Chars)
			}
			if !vm.push(value) {
				return vm.runtimeError("stack overflow")
			}

		case bytecode.OpDefineGlobal:
			// Popped only after the insert so the value is never
			// unreachable mid-operation.
			name := vm.readString()
			vm.globals.Set(name, vm.peek(0))
			vm.pop()

		case bytecode.OpSetGlobal:
			name := vm.readString()
			if vm.globals.Set(name, vm.peek(0)) {
				// The insert created the binding: assignment must
				// not declare, so rewind it and fail.
				vm.globals.Delete(name)
				return vm.runtimeError("undefined variable '%s'", name.Chars)
			}

		case bytecode.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(bytecode.BoolVal(a.Equals(b)))

		case bytecode.OpGreater:
			a, b, ok := vm.numberOperands()
			if !ok {
				return vm.runtimeError("Operands must be numbers")
			}
			vm.push(bytecode.BoolVal(a > b))

		case bytecode.OpLess:
			a, b, ok := vm.numberOperands()
			if !ok {
				return vm.runtimeError("Operands must be numbers")
			}
			vm.push(bytecode.BoolVal(a < b))

		case bytecode.OpAdd:
			switch {
			case vm.peek(0).IsString() && vm.peek(1).IsString():
				vm.concatenate()
			case vm.peek(0).IsNumber() && vm.peek(1).IsNumber():
				b := vm.pop().AsNumber()
				a := vm.pop().AsNumber()
				vm.push(bytecode.NumberVal(a + b))
			default:
				return vm.runtimeError("unexpected operands in with + operator")
			}

		case bytecode.OpSubtract:
			a, b, ok := vm.numberOperands()
			if !ok {
				return vm.runtimeError("Operands must be numbers")
			}
			vm.push(bytecode.NumberVal(a - b))

		case bytecode.OpMultiply:
			a, b, ok := vm.numberOperands()
			if !ok {
				return vm.runtimeError("Operands must be numbers")
			}
			vm.push(bytecode.NumberVal(a * b))

		case bytecode.OpDivide:
			a, b, ok := vm.numberOperands()
			if !ok {
				return vm.runtimeError("Operands must be numbers")
			}
			vm.push(bytecode.NumberVal(a / b))

		case bytecode.OpNot:
			vm.push(bytecode.BoolVal(vm.pop().IsFalsey()))

		case bytecode.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number")
			}
			vm.push(bytecode.NumberVal(-vm.pop().AsNumber()))

		case bytecode.OpPrint:
			fmt.Fprintln(vm.Stdout, vm.pop())

		case bytecode.OpJumpIfFalse:
			// The condition stays on the stack; whichever path runs
			// pops it with its own OpPop.
			offset := vm.readShort()
			if vm.peek(0).IsFalsey() {
				vm.ip += offset
			}

		case bytecode.OpJump:
			vm.ip += vm.readShort()

		case bytecode.OpLoop:
			vm.ip -= vm.readShort()

		case bytecode.OpReturn:
			return InterpretOK

		default:
			return vm.runtimeError("unknown opcode %d", byte(op))
		}
	}
}
