// Package compiler turns glox source text into bytecode in a single
// pass: a recursive-descent parser with Pratt operator precedence that
// emits instructions while it parses. There is no AST.
//
// The compiler pulls tokens from the scanner one at a time, resolves
// local variables to stack slots at compile time, and back-patches
// forward jumps once their targets are known. Locals get their slot
// numbers from declaration order, which is why the emit-while-parsing
// property must hold.
package compiler

import (
	"fmt"
	"io"
	"strconv"

	"glox/pkg/bytecode"
	"glox/pkg/scanner"
)

// Precedence levels, lowest to highest. The Pratt driver keeps
// consuming infix operators while the next token's precedence is at
// least the caller's.
type Precedence int

const (
	PrecNone       Precedence = iota
	PrecAssignment            // =
	PrecOr                    // or
	PrecAnd                   // and
	PrecEquality              // == !=
	PrecComparison            // < > <= >=
	PrecTerm                  // + -
	PrecFactor                // * /
	PrecUnary                 // ! -
	PrecCall                  // . ()
	PrecPrimary
)

// parseFn is a prefix or infix rule. The driver passes its own
// precedence in so the variable rule can tell whether a following '='
// is a legal assignment.
type parseFn func(c *Compiler, precedence Precedence)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

// rules maps every token type to its parse rules. Populated in init
// because the rule functions refer back to the table through
// parsePrecedence.
var rules map[scanner.TokenType]parseRule

func init() {
	rules = map[scanner.TokenType]parseRule{
		scanner.TokenLeftParen:    {grouping, nil, PrecNone},
		scanner.TokenMinus:        {unary, binary, PrecTerm},
		scanner.TokenPlus:         {nil, binary, PrecTerm},
		scanner.TokenSlash:        {nil, binary, PrecFactor},
		scanner.TokenStar:         {nil, binary, PrecFactor},
		scanner.TokenBang:         {unary, nil, PrecNone},
		scanner.TokenBangEqual:    {nil, binary, PrecEquality},
		scanner.TokenEqualEqual:   {nil, binary, PrecEquality},
		scanner.TokenGreater:      {nil, binary, PrecComparison},
		scanner.TokenGreaterEqual: {nil, binary, PrecComparison},
		scanner.TokenLess:         {nil, binary, PrecComparison},
		scanner.TokenLessEqual:    {nil, binary, PrecComparison},
		scanner.TokenIdentifier:   {variable, nil, PrecNone},
		scanner.TokenString:       {stringLiteral, nil, PrecNone},
		scanner.TokenNumber:       {number, nil, PrecNone},
		scanner.TokenAnd:          {nil, and, PrecAnd},
		scanner.TokenOr:           {nil, or, PrecOr},
		scanner.TokenFalse:        {literal, nil, PrecNone},
		scanner.TokenNil:          {literal, nil, PrecNone},
		scanner.TokenTrue:         {literal, nil, PrecNone},
	}
}

func getRule(tt scanner.TokenType) parseRule {
	return rules[tt]
}

// FunctionType tells the compiler what kind of body it is compiling.
type FunctionType int

const (
	TypeFunction FunctionType = iota
	// TypeScript is the implicit function wrapping top-level code.
	TypeScript
)

// MaxLocals is the number of local slots addressable from bytecode;
// local operands are a single byte.
const MaxLocals = 256

// Local is the compile-time record of a local variable: the token that
// named it and the scope depth it was declared at. A local's runtime
// stack slot is its index in the compiler's locals list.
type Local struct {
	name  scanner.Token
	depth int
}

// Parser holds the token window and error state shared by the whole
// compilation.
type Parser struct {
	scanner   *scanner.Scanner
	current   scanner.Token
	previous  scanner.Token
	hadError  bool
	panicMode bool
	errCount  int

	heap   *bytecode.Heap
	errOut io.Writer
}

// Compiler carries the state for one function under construction.
type Compiler struct {
	parser     *Parser
	function   *bytecode.ObjFunction
	fnType     FunctionType
	locals     []Local
	scopeDepth int
}

// Compile parses source and returns the implicit top-level function.
// String constants are interned through heap. Error messages go to
// errOut as they are found; if any error occurred the returned
// function is nil and the error reports the count.
func Compile(heap *bytecode.Heap, source string, errOut io.Writer) (*bytecode.ObjFunction, error) {
	parser := &Parser{
		scanner: scanner.New(source),
		heap:    heap,
		errOut:  errOut,
	}

	c := newCompiler(parser, TypeScript)

	c.advance()
	for !c.check(scanner.TokenEOF) {
		c.declaration()
	}

	fn := c.endCompiler()

	if parser.hadError {
		return nil, fmt.Errorf("compilation failed with %d error(s)", parser.errCount)
	}
	return fn, nil
}

func newCompiler(parser *Parser, fnType FunctionType) *Compiler {
	c := &Compiler{
		parser:   parser,
		function: parser.heap.NewFunction(),
		fnType:   fnType,
	}

	// Slot zero belongs to the implicit script/function callee. The
	// empty name keeps user identifiers from resolving to it.
	c.locals = append(c.locals, Local{
		name:  scanner.Token{Type: scanner.TokenIdentifier, Lexeme: ""},
		depth: 0,
	})

	return c
}

// --- error reporting -------------------------------------------------

func (c *Compiler) errorAt(token scanner.Token, message string) {
	p := c.parser
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.hadError = true
	p.errCount++

	fmt.Fprintf(p.errOut, "[line %d] ", token.Line)
	if token.Type == scanner.TokenEOF {
		fmt.Fprintf(p.errOut, " at end\n")
	} else {
		fmt.Fprintf(p.errOut, "%s\n", message)
	}
}

func (c *Compiler) error(message string) {
	c.errorAt(c.parser.previous, message)
}

func (c *Compiler) errorAtCurrent(message string) {
	c.errorAt(c.parser.current, message)
}

// --- token plumbing --------------------------------------------------

// advance pulls the next token, reporting and skipping error
// pseudo-tokens whose lexeme carries the scanner's message.
func (c *Compiler) advance() {
	p := c.parser
	p.previous = p.current

	for {
		p.current = p.scanner.NextToken()
		if p.current.Type != scanner.TokenError {
			break
		}
		c.errorAtCurrent(p.current.Lexeme)
	}
}

func (c *Compiler) consume(tt scanner.TokenType) {
	if c.parser.current.Type == tt {
		c.advance()
		return
	}
	c.errorAtCurrent(fmt.Sprintf("expected %s, got %s", tt, c.parser.current.Type))
}

func (c *Compiler) check(tt scanner.TokenType) bool {
	return c.parser.current.Type == tt
}

// match advances past the current token if it has the given type.
func (c *Compiler) match(tt scanner.TokenType) bool {
	if !c.check(tt) {
		return false
	}
	c.advance()
	return true
}

// --- emit helpers ----------------------------------------------------

func (c *Compiler) currentChunk() *bytecode.Chunk {
	return c.function.Chunk
}

func (c *Compiler) emitByte(b byte) {
	c.currentChunk().Write(b, c.parser.previous.Line)
}

func (c *Compiler) emitOp(op bytecode.Opcode) {
	c.emitByte(byte(op))
}

func (c *Compiler) emitOps(a, b bytecode.Opcode) {
	c.emitOp(a)
	c.emitOp(b)
}

func (c *Compiler) emitOpByte(op bytecode.Opcode, operand byte) {
	c.emitOp(op)
	c.emitByte(operand)
}

func (c *Compiler) emitReturn() {
	c.emitOp(bytecode.OpReturn)
}

// makeConstant adds value to the constant pool, erroring once the pool
// outgrows one-byte indexes.
func (c *Compiler) makeConstant(value bytecode.Value) byte {
	constant := c.currentChunk().AddConstant(value)
	if constant >= bytecode.MaxConstants {
		c.error("Too many constants in one chunk")
		return 0
	}
	return byte(constant)
}

func (c *Compiler) emitConstant(value bytecode.Value) {
	c.emitOpByte(bytecode.OpConstant, c.makeConstant(value))
}

// emitJump writes op with a two-byte placeholder operand and returns
// the operand's offset for patchJump.
func (c *Compiler) emitJump(op bytecode.Opcode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return c.currentChunk().Count() - 2
}

// patchJump back-fills the operand at offset so the jump lands on the
// next instruction to be emitted.
func (c *Compiler) patchJump(offset int) {
	jump := c.currentChunk().Count() - offset - 2

	if jump > 0xffff {
		c.error("loop body too large")
	}

	c.currentChunk().Code[offset] = byte(jump >> 8)
	c.currentChunk().Code[offset+1] = byte(jump)
}

// emitLoop writes an OpLoop jumping backwards to loopStart.
func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(bytecode.OpLoop)

	offset := c.currentChunk().Count() - loopStart + 2
	if offset > 0xffff {
		c.error("loop body too large")
	}

	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

func (c *Compiler) endCompiler() *bytecode.ObjFunction {
	c.emitReturn()
	return c.function
}

// --- scopes and locals -----------------------------------------------

func (c *Compiler) beginScope() {
	c.scopeDepth++
}

// endScope pops the locals declared in the closing scope, newest
// first, emitting one OpPop per slot freed.
func (c *Compiler) endScope() {
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth == c.scopeDepth {
		c.emitOp(bytecode.OpPop)
		c.locals = c.locals[:len(c.locals)-1]
	}
	c.scopeDepth--
}

func (c *Compiler) inLocalScope() bool {
	return c.scopeDepth > 0
}

func (c *Compiler) addLocal(name scanner.Token) {
	if len(c.locals) == MaxLocals {
		c.error("Too many local variable declarations")
		return
	}
	c.locals = append(c.locals, Local{name: name, depth: c.scopeDepth})
}

// resolveLocal walks the locals newest-first so the innermost
// declaration of a name shadows outer ones. Returns -1 when the name
// is not a local.
func (c *Compiler) resolveLocal(name scanner.Token) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name.Lexeme == name.Lexeme {
			return i
		}
	}
	return -1
}

// identifierConstant stores the identifier's name in the constant pool
// so the VM can look the global up by name at runtime.
func (c *Compiler) identifierConstant(name scanner.Token) byte {
	str := c.parser.heap.CopyString(name.Lexeme)
	return c.makeConstant(bytecode.ObjVal(str))
}

// --- expressions -----------------------------------------------------

// parsePrecedence is the Pratt driver: run the prefix rule for the
// token just consumed, then keep consuming infix operators that bind
// at least as tightly as precedence.
func (c *Compiler) parsePrecedence(precedence Precedence) {
	c.advance()

	prefix := getRule(c.parser.previous.Type).prefix
	if prefix == nil {
		c.error("expected expression")
		return
	}

	prefix(c, precedence)

	for precedence <= getRule(c.parser.current.Type).precedence {
		c.advance()
		infix := getRule(c.parser.previous.Type).infix
		infix(c, precedence)
	}

	// A '=' still sitting here means no rule consumed it: the left
	// side was not a plain variable.
	if precedence <= PrecAssignment && c.match(scanner.TokenEqual) {
		c.error("Invalid assignment target")
	}
}

func (c *Compiler) expression() {
	c.parsePrecedence(PrecAssignment)
}

func grouping(c *Compiler, _ Precedence) {
	c.expression()
	c.consume(scanner.TokenRightParen)
}

func number(c *Compiler, _ Precedence) {
	value, err := strconv.ParseFloat(c.parser.previous.Lexeme, 64)
	if err != nil {
		c.error("invalid number literal")
		return
	}
	c.emitConstant(bytecode.NumberVal(value))
}

func stringLiteral(c *Compiler, _ Precedence) {
	// Trim the surrounding quotes; the inner bytes are interned.
	lexeme := c.parser.previous.Lexeme
	str := c.parser.heap.CopyString(lexeme[1 : len(lexeme)-1])
	c.emitConstant(bytecode.ObjVal(str))
}

func literal(c *Compiler, _ Precedence) {
	switch c.parser.previous.Type {
	case scanner.TokenFalse:
		c.emitOp(bytecode.OpFalse)
	case scanner.TokenNil:
		c.emitOp(bytecode.OpNil)
	case scanner.TokenTrue:
		c.emitOp(bytecode.OpTrue)
	}
}

func unary(c *Compiler, _ Precedence) {
	operator := c.parser.previous.Type

	// Compile the operand first; the operator applies to its result.
	c.parsePrecedence(PrecUnary)

	switch operator {
	case scanner.TokenMinus:
		c.emitOp(bytecode.OpNegate)
	case scanner.TokenBang:
		c.emitOp(bytecode.OpNot)
	}
}

func binary(c *Compiler, _ Precedence) {
	operator := c.parser.previous.Type
	rule := getRule(operator)

	// One level higher makes binary operators left-associative.
	c.parsePrecedence(rule.precedence + 1)

	switch operator {
	case scanner.TokenBangEqual:
		c.emitOps(bytecode.OpEqual, bytecode.OpNot)
	case scanner.TokenEqualEqual:
		c.emitOp(bytecode.OpEqual)
	case scanner.TokenGreater:
		c.emitOp(bytecode.OpGreater)
	case scanner.TokenGreaterEqual:
		c.emitOps(bytecode.OpLess, bytecode.OpNot)
	case scanner.TokenLess:
		c.emitOp(bytecode.OpLess)
	case scanner.TokenLessEqual:
		c.emitOps(bytecode.OpGreater, bytecode.OpNot)
	case scanner.TokenPlus:
		c.emitOp(bytecode.OpAdd)
	case scanner.TokenMinus:
		c.emitOp(bytecode.OpSubtract)
	case scanner.TokenStar:
		c.emitOp(bytecode.OpMultiply)
	case scanner.TokenSlash:
		c.emitOp(bytecode.OpDivide)
	}
}

// and short-circuits: a falsey left operand stays on the stack and the
// right operand is skipped; otherwise the left is popped and the right
// operand's value wins.
func and(c *Compiler, _ Precedence) {
	endJump := c.emitJump(bytecode.OpJumpIfFalse)

	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(PrecAnd)

	c.patchJump(endJump)
}

// or short-circuits the other way: a truthy left operand jumps over
// the right operand and stays on the stack.
//
// The emitted shape:
//
//	OP_JUMP_IF_FALSE  --+        falsey: fall into the right operand
//	OP_JUMP           --|--+     truthy: skip it
//	OP_POP            <-+  |
//	<right operand>        |
//	...               <----+
func or(c *Compiler, _ Precedence) {
	elseJump := c.emitJump(bytecode.OpJumpIfFalse)
	endJump := c.emitJump(bytecode.OpJump)

	c.patchJump(elseJump)
	c.emitOp(bytecode.OpPop)

	c.parsePrecedence(PrecOr)

	c.patchJump(endJump)
}

// namedVariable compiles an identifier reference or, when the driver's
// precedence allows it and a '=' follows, an assignment to it. Locals
// resolve to slots at compile time; anything else is a global looked
// up by name at runtime.
func namedVariable(c *Compiler, name scanner.Token, precedence Precedence) {
	var getOp, setOp bytecode.Opcode
	var arg byte

	if slot := c.resolveLocal(name); slot != -1 {
		arg = byte(slot)
		getOp = bytecode.OpGetLocal
		setOp = bytecode.OpSetLocal
	} else {
		arg = c.identifierConstant(name)
		getOp = bytecode.OpGetGlobal
		setOp = bytecode.OpSetGlobal
	}

	if precedence <= PrecAssignment && c.match(scanner.TokenEqual) {
		c.expression()
		c.emitOpByte(setOp, arg)
	} else {
		c.emitOpByte(getOp, arg)
	}
}

func variable(c *Compiler, precedence Precedence) {
	namedVariable(c, c.parser.previous, precedence)
}

// --- declarations and statements -------------------------------------

func (c *Compiler) declaration() {
	c.statement()

	if c.parser.panicMode {
		c.synchronize()
	}
}

// synchronize skips tokens until a statement boundary so one syntax
// error does not cascade into a pile of spurious ones.
func (c *Compiler) synchronize() {
	c.parser.panicMode = false

	for !c.check(scanner.TokenEOF) {
		if c.parser.previous.Type == scanner.TokenSemicolon {
			return
		}

		switch c.parser.current.Type {
		case scanner.TokenClass, scanner.TokenFun, scanner.TokenVar,
			scanner.TokenFor, scanner.TokenIf, scanner.TokenWhile,
			scanner.TokenPrint, scanner.TokenReturn:
			return
		}

		c.advance()
	}
}

func (c *Compiler) statement() {
	switch {
	case c.match(scanner.TokenVar):
		c.varDeclaration()
	case c.match(scanner.TokenPrint):
		c.printStatement()
	case c.match(scanner.TokenFor):
		c.forStatement()
	case c.match(scanner.TokenIf):
		c.ifStatement()
	case c.match(scanner.TokenWhile):
		c.whileStatement()
	case c.match(scanner.TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

// parseVariable consumes the identifier of a declaration. In a local
// scope the name becomes a local record and no constant is needed; at
// top level the name goes into the constant pool for OpDefineGlobal.
func (c *Compiler) parseVariable() byte {
	c.consume(scanner.TokenIdentifier)

	if c.inLocalScope() {
		c.addLocal(c.parser.previous)
		return 0
	}

	return c.identifierConstant(c.parser.previous)
}

func (c *Compiler) defineVariable(global byte) {
	if c.inLocalScope() {
		// The initializer's value already sits in the local's slot.
		return
	}
	c.emitOpByte(bytecode.OpDefineGlobal, global)
}

// var α = β ;
func (c *Compiler) varDeclaration() {
	global := c.parseVariable()

	c.consume(scanner.TokenEqual)
	c.expression()
	c.consume(scanner.TokenSemicolon)

	c.defineVariable(global)
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(scanner.TokenSemicolon)
	c.emitOp(bytecode.OpPrint)
}

// An expression statement evaluates for side effects only, so the
// value is discarded.
func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(scanner.TokenSemicolon)
	c.emitOp(bytecode.OpPop)
}

func (c *Compiler) ifStatement() {
	c.consume(scanner.TokenLeftParen)
	c.expression()
	c.consume(scanner.TokenRightParen)

	// The branch's size is unknown until it is compiled, so the jump
	// gets patched afterwards. Each branch path pops the condition
	// itself.
	thenJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)

	c.statement()

	elseJump := c.emitJump(bytecode.OpJump)

	c.patchJump(thenJump)
	c.emitOp(bytecode.OpPop)

	if c.match(scanner.TokenElse) {
		c.statement()
	}

	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := c.currentChunk().Count()

	c.consume(scanner.TokenLeftParen)
	c.expression()
	c.consume(scanner.TokenRightParen)

	exitJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)

	c.statement()

	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(bytecode.OpPop)
}

// for ( var α = β ; condition ; step ) body
//
// The step runs after the body but is compiled before it, so the
// emitted code threads through an extra pair of jumps:
//
//	initializer
//	condition          <--------+
//	OP_JUMP_IF_FALSE  ---exit   |
//	OP_POP                      |
//	OP_JUMP           ---body   |
//	step               <-----+  |
//	OP_POP                   |  |
//	OP_LOOP           -------|--+
//	body               <--+  |
//	OP_LOOP           ----|--+
//	exit:              <--+
//	OP_POP
func (c *Compiler) forStatement() {
	// The loop variable belongs to the loop, not the surrounding
	// scope.
	c.beginScope()

	c.consume(scanner.TokenLeftParen)
	c.consume(scanner.TokenVar)
	c.varDeclaration()

	loopStart := c.currentChunk().Count()

	c.expression()
	c.consume(scanner.TokenSemicolon)

	exitJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)

	bodyJump := c.emitJump(bytecode.OpJump)

	stepStart := c.currentChunk().Count()
	c.expression()
	c.emitOp(bytecode.OpPop)
	c.consume(scanner.TokenRightParen)

	c.emitLoop(loopStart)
	loopStart = stepStart
	c.patchJump(bodyJump)

	c.statement()

	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(bytecode.OpPop)

	c.endScope()
}

func (c *Compiler) block() {
	for !c.check(scanner.TokenRightBrace) && !c.check(scanner.TokenEOF) {
		c.declaration()
	}
	c.consume(scanner.TokenRightBrace)
}
