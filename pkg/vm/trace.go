package vm

import "fmt"

// traceInstruction writes the current stack contents and the
// disassembly of the instruction about to execute. Enabled by the
// Trace flag; output goes to Stderr so it interleaves with runtime
// errors rather than program output.
func (vm *VM) traceInstruction() {
	fmt.Fprintf(vm.Stderr, "          ")
	for i := 0; i < vm.stackTop; i++ {
		fmt.Fprintf(vm.Stderr, "[ %s ]", vm.stack[i])
	}
	fmt.Fprintf(vm.Stderr, "\n")

	vm.chunk.DisassembleInstruction(vm.Stderr, vm.ip)
}
