package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"

	"glox/pkg/bytecode"
	"glox/pkg/compiler"
	"glox/pkg/vm"
)

const version = "0.1.0"

// Exit codes follow the BSD sysexits convention: 65 for bad input
// (compile errors), 70 for internal runtime failures, 74 for I/O.
const (
	exitOK       = 0
	exitDataErr  = 65
	exitSoftware = 70
	exitIOErr    = 74
)

type optsStruct struct {
	Trace      bool `long:"trace" description:"Print the value stack and each instruction while executing."`
	Disasm     bool `long:"disasm" description:"Print the compiled chunk before executing."`
	Version    bool `short:"v" long:"version" description:"Print version and exit."`
	Positional struct {
		Command string   `positional-arg-name:"command"`
		Args    []string `positional-arg-name:"args"`
	} `positional-args:"yes"`
}

var opts optsStruct
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.Usage = "[OPTIONS] [file | run file | compile in [out] | disassemble file | repl]"

	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(exitOK)
		}
		os.Exit(exitDataErr)
	}

	if opts.Version {
		fmt.Printf("glox version %s\n", version)
		return
	}

	switch opts.Positional.Command {
	case "":
		runREPL()
	case "repl":
		runREPL()
	case "run":
		if len(opts.Positional.Args) < 1 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			os.Exit(exitDataErr)
		}
		runFile(opts.Positional.Args[0])
	case "compile":
		if len(opts.Positional.Args) < 1 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			os.Exit(exitDataErr)
		}
		output := ""
		if len(opts.Positional.Args) >= 2 {
			output = opts.Positional.Args[1]
		}
		compileFile(opts.Positional.Args[0], output)
	case "disassemble", "disasm":
		if len(opts.Positional.Args) < 1 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			os.Exit(exitDataErr)
		}
		disassembleFile(opts.Positional.Args[0])
	default:
		// Anything else is a script path.
		runFile(opts.Positional.Command)
	}
}

func newVM() *vm.VM {
	v := vm.New()
	v.Trace = opts.Trace
	return v
}

// runFile executes a .lox source file or a pre-compiled .lxc chunk
// file, picking by extension.
func runFile(filename string) {
	if filepath.Ext(filename) == ".lxc" {
		runChunkFile(filename)
		return
	}
	runSourceFile(filename)
}

func runSourceFile(filename string) {
	source, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(exitIOErr)
	}

	v := newVM()
	defer v.Free()

	if opts.Disasm {
		fn, cerr := compiler.Compile(v.Heap(), string(source), os.Stderr)
		if cerr != nil {
			os.Exit(exitDataErr)
		}
		fn.Chunk.Disassemble(os.Stdout, fn.String())
		exit(v.RunFunction(fn))
	}

	exit(v.Interpret(string(source)))
}

func runChunkFile(filename string) {
	file, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(exitIOErr)
	}
	defer file.Close()

	v := newVM()
	defer v.Free()

	fn, err := bytecode.Decode(file, v.Heap())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading chunk: %v\n", err)
		os.Exit(exitDataErr)
	}

	if opts.Disasm {
		fn.Chunk.Disassemble(os.Stdout, fn.String())
	}

	exit(v.RunFunction(fn))
}

func exit(result vm.InterpretResult) {
	switch result {
	case vm.InterpretCompileError:
		os.Exit(exitDataErr)
	case vm.InterpretRuntimeError:
		os.Exit(exitSoftware)
	}
	os.Exit(exitOK)
}

// compileFile compiles a .lox source file to a .lxc chunk file that
// can be run or disassembled later without re-parsing.
func compileFile(inputFile, outputFile string) {
	if outputFile == "" {
		if filepath.Ext(inputFile) == ".lox" {
			outputFile = inputFile[:len(inputFile)-4] + ".lxc"
		} else {
			outputFile = inputFile + ".lxc"
		}
	}

	source, err := os.ReadFile(inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(exitIOErr)
	}

	heap := bytecode.NewHeap()
	defer heap.Free()

	fn, err := compiler.Compile(heap, string(source), os.Stderr)
	if err != nil {
		os.Exit(exitDataErr)
	}

	out, err := os.Create(outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
		os.Exit(exitIOErr)
	}
	defer out.Close()

	if err := bytecode.Encode(fn, out); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing chunk: %v\n", err)
		os.Exit(exitIOErr)
	}

	fmt.Printf("Compiled %s -> %s\n", inputFile, outputFile)
}

// disassembleFile prints a readable listing of a .lxc chunk file, or
// of the chunk a source file compiles to.
func disassembleFile(filename string) {
	heap := bytecode.NewHeap()
	defer heap.Free()

	var fn *bytecode.ObjFunction

	if filepath.Ext(filename) == ".lxc" {
		file, err := os.Open(filename)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
			os.Exit(exitIOErr)
		}
		defer file.Close()

		fn, err = bytecode.Decode(file, heap)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading chunk: %v\n", err)
			os.Exit(exitDataErr)
		}
	} else {
		source, err := os.ReadFile(filename)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
			os.Exit(exitIOErr)
		}

		fn, err = compiler.Compile(heap, string(source), os.Stderr)
		if err != nil {
			os.Exit(exitDataErr)
		}
	}

	fn.Chunk.Disassemble(os.Stdout, fn.String())
}

// runREPL reads one line at a time, sharing VM state across lines so
// globals and interned strings persist. Errors are reported and the
// loop continues; EOF ends the session.
func runREPL() {
	v := newVM()
	defer v.Free()

	in := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !in.Scan() {
			fmt.Println()
			break
		}
		v.Interpret(in.Text())
	}

	if err := in.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(exitIOErr)
	}
}
