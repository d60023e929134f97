// Package lower implements the AST→bytecode path spec §2 describes as
// "C8 emits into C9's translation unit → C10 produces a Code object":
// it walks an ast.Node tree, emitting basic-block IR (bblock) against a
// symbol table/translation unit (symtab), then hands the block graph to
// the assembler (asm) to produce a sealed bytecode.Code.
//
// Closure capture is resolved by this package directly rather than via
// symtab.TranslationUnit.ResolveFree: that method treats a name found in
// any ancestor TranslationUnit as free, so it cannot by itself
// distinguish "free, needs capturing" from "reachable because it's a
// module global", and it records the capture only on the innermost
// unit, not on every intervening one. lower keeps its own flat per-function
// slot maps for that distinction and uses symtab.TranslationUnit only
// for what it actually owns uncontested: the statics pool, eval-stack/
// locals/sync depth counters, and the Enclosed name list an assembled
// Code object carries.
package lower

import (
	"fmt"

	"github.com/lumen-lang/lumen/internal/bytecode"
	"github.com/lumen-lang/lumen/internal/compiler/asm"
	"github.com/lumen-lang/lumen/internal/compiler/ast"
	"github.com/lumen-lang/lumen/internal/compiler/bblock"
	"github.com/lumen-lang/lumen/internal/compiler/symtab"
	"github.com/lumen-lang/lumen/internal/object"
)

// scope is one function's (or the module root's) lowering state. Module
// root declarations bind into the Globals namespace (so they persist
// across separate REPL evaluations of the same Namespace); every nested
// FuncLit's declarations are ordinary per-call locals.
type scope struct {
	parent *scope
	isRoot bool

	bc *bblock.Compiler
	tu *symtab.TranslationUnit

	locals     []string
	localIndex map[string]int

	globals     []string
	globalIndex map[string]int

	line int
}

func newScope(parent *scope, isRoot bool) *scope {
	var parentTU *symtab.TranslationUnit
	if parent != nil {
		parentTU = parent.tu
	}
	return &scope{
		parent:      parent,
		isRoot:      isRoot,
		bc:          bblock.New(),
		tu:          symtab.NewTranslationUnit(parentTU),
		localIndex:  map[string]int{},
		globalIndex: map[string]int{},
	}
}

// Lower compiles prog as a module's top-level code (spec §6 Compile),
// named qualName (cmd/lumen passes the script path, "<command>" or
// "<repl>"; the tests use "__main").
// Its declarations bind into the Globals namespace.
func Lower(prog ast.Node, qualName string, level asm.Level) (*bytecode.Code, error) {
	return lowerFunc(nil, nil, prog, qualName, false, false, level)
}

func lowerFunc(parent *scope, params []string, body ast.Node, name string, isGenerator, isAsync bool, level asm.Level) (*bytecode.Code, error) {
	sc := newScope(parent, parent == nil)
	for _, p := range params {
		sc.declareLocal(p)
	}

	if err := sc.lowerStmt(body); err != nil {
		return nil, err
	}
	// Every path falls through to an implicit `return nil` if the body
	// didn't already end in one; harmless as dead bytes if it did.
	sc.emitPush(bytecode.PSHN, 0)
	sc.bc.Emit(bytecode.RET, 0, sc.line)

	return asm.Assemble(sc.bc.Blocks(), level, asm.CodeOptions{
		Statics:     sc.tu.Statics,
		Globals:     sc.globals,
		Params:      params,
		Enclosed:    sc.tu.Enclosed,
		StackSize:   sc.tu.EvalStack.Required() + 1,
		LocalsSize:  len(sc.locals),
		SyncDepth:   sc.tu.SyncDepth.Required(),
		QualName:    name,
		IsGenerator: isGenerator,
		IsAsync:     isAsync,
	}), nil
}

func (sc *scope) declareLocal(name string) int {
	if idx, ok := sc.localIndex[name]; ok {
		return idx
	}
	idx := len(sc.locals)
	sc.locals = append(sc.locals, name)
	sc.localIndex[name] = idx
	sc.tu.Symbols.Declare(name, symtab.Variable)
	return idx
}

func (sc *scope) declareGlobal(name string) int {
	if idx, ok := sc.globalIndex[name]; ok {
		return idx
	}
	idx := len(sc.globals)
	sc.globals = append(sc.globals, name)
	sc.globalIndex[name] = idx
	sc.tu.Symbols.Declare(name, symtab.Variable)
	return idx
}

// emitPush/emitPop keep the translation unit's eval-stack depth counter
// (spec §4.9 "paired counters") in sync with what lowering actually
// emits, so the assembled Code's declared StackSize reflects real usage
// rather than a guess.
func (sc *scope) emitPush(op bytecode.OpCode, arg uint32) {
	sc.bc.Emit(op, arg, sc.line)
	sc.tu.EvalStack.Add(1)
}

func (sc *scope) emitPop(op bytecode.OpCode, arg uint32) {
	sc.bc.Emit(op, arg, sc.line)
	sc.tu.EvalStack.Add(-1)
}

func (sc *scope) emitBinary(op bytecode.OpCode) {
	sc.bc.Emit(op, 0, sc.line)
	sc.tu.EvalStack.Add(-1) // two operands popped, one result pushed: net -1
}

// resolve classifies name against this scope and every enclosing one,
// threading a capture through each intermediate function's Enclosed list
// the way a real closure compiler must (spec §4.9 "free variables
// recorded on the inner unit's enclosed list"): MKFN only captures from
// its immediate lexical parent's stack, so a variable free three levels
// up must appear in every intervening function's own Enclosed list too.
type resolution int

const (
	resLocal resolution = iota
	resEnclosed
	resGlobal
)

func (sc *scope) resolve(name string) (resolution, int) {
	if idx, ok := sc.localIndex[name]; ok {
		return resLocal, idx
	}
	if idx, ok := sc.globalIndex[name]; ok {
		return resGlobal, idx
	}
	if sc.parent == nil {
		// Undeclared: treat as an implicit global, resolved at runtime
		// (a NameError surfaces from LDGBL if it's truly never bound).
		return resGlobal, sc.declareGlobal(name)
	}

	parentRes, _ := sc.parent.resolve(name)
	if parentRes == resGlobal {
		return resGlobal, sc.declareGlobal(name)
	}
	// Found as a local (or already-captured enclosed value) in some
	// enclosing function: capture it into this function's own Enclosed
	// list, de-duplicating repeat references to the same name.
	for i, n := range sc.tu.Enclosed {
		if n == name {
			return resEnclosed, i
		}
	}
	sc.tu.Enclosed = append(sc.tu.Enclosed, name)
	return resEnclosed, len(sc.tu.Enclosed) - 1
}

func (sc *scope) loadName(name string) {
	switch kind, idx := sc.resolve(name); kind {
	case resLocal:
		sc.emitPush(bytecode.LDLC, uint32(idx))
	case resEnclosed:
		sc.emitPush(bytecode.LDENC, uint32(idx))
	default:
		g := sc.declareGlobal(name)
		sc.emitPush(bytecode.LDGBL, uint32(g))
	}
}

func (sc *scope) storeName(name string, declare bool) {
	if declare && sc.parent == nil {
		idx := sc.declareGlobal(name)
		sc.emitPop(bytecode.STGBL, uint32(idx))
		return
	}
	if declare {
		idx := sc.declareLocal(name)
		sc.emitPop(bytecode.STLC, uint32(idx))
		return
	}
	switch kind, idx := sc.resolve(name); kind {
	case resLocal:
		sc.emitPop(bytecode.STLC, uint32(idx))
	case resEnclosed:
		sc.emitPop(bytecode.STENC, uint32(idx))
	default:
		g := sc.declareGlobal(name)
		sc.emitPop(bytecode.STGBL, uint32(g))
	}
}

var binaryOps = map[string]bytecode.OpCode{
	"+": bytecode.ADD, "-": bytecode.SUB, "*": bytecode.MUL, "/": bytecode.DIV,
	"//": bytecode.IDIV, "%": bytecode.MOD, "<<": bytecode.SHL, ">>": bytecode.SHR,
	"&": bytecode.LAND, "|": bytecode.LOR, "^": bytecode.LXOR,
}

var compareModes = map[string]bytecode.CompareMode{
	"==": bytecode.CmpEQ, "!=": bytecode.CmpNE,
	"<": bytecode.CmpLT, "<=": bytecode.CmpLE, ">": bytecode.CmpGT, ">=": bytecode.CmpGE,
}

// lowerExpr emits code leaving exactly one value on the eval stack.
func (sc *scope) lowerExpr(n ast.Node) error {
	switch e := n.(type) {
	case *ast.IntLit:
		sc.emitPush(bytecode.LDCONST, uint32(sc.tu.AddStatic(&object.NewInt(e.Val).Header)))
	case *ast.FloatLit:
		sc.emitPush(bytecode.LDCONST, uint32(sc.tu.AddStatic(&object.NewFloat(e.Val).Header)))
	case *ast.StrLit:
		sc.emitPush(bytecode.LDCONST, uint32(sc.tu.AddStatic(&object.NewStr(e.Val).Header)))
	case *ast.BoolLit:
		sc.emitPush(bytecode.LDCONST, uint32(sc.tu.AddStatic(&object.FromBool(e.Val).Header)))
	case *ast.NilLit:
		sc.emitPush(bytecode.PSHN, 0)
	case *ast.Ident:
		sc.loadName(e.Name)
	case *ast.Unary:
		if err := sc.lowerExpr(e.X); err != nil {
			return err
		}
		switch e.Op {
		case "-":
			sc.bc.Emit(bytecode.NEG, 0, sc.line)
		case "+":
			sc.bc.Emit(bytecode.POS, 0, sc.line)
		case "~":
			sc.bc.Emit(bytecode.INV, 0, sc.line)
		case "!":
			sc.bc.Emit(bytecode.NOT, 0, sc.line)
		default:
			return fmt.Errorf("lower: unknown unary operator %q", e.Op)
		}
	case *ast.Binary:
		if err := sc.lowerExpr(e.X); err != nil {
			return err
		}
		if err := sc.lowerExpr(e.Y); err != nil {
			return err
		}
		if op, ok := binaryOps[e.Op]; ok {
			sc.emitBinary(op)
			return nil
		}
		if e.Op == "==" {
			sc.emitBinary(bytecode.EQST)
			return nil
		}
		if mode, ok := compareModes[e.Op]; ok {
			sc.bc.Emit(bytecode.CMP, uint32(mode), sc.line)
			sc.tu.EvalStack.Add(-1)
			return nil
		}
		return fmt.Errorf("lower: unknown binary operator %q", e.Op)
	case *ast.Call:
		if err := sc.lowerExpr(e.Fn); err != nil {
			return err
		}
		for _, a := range e.Args {
			if err := sc.lowerExpr(a); err != nil {
				return err
			}
		}
		arg := bytecode.MakeModeArg(uint32(len(e.Args)), byte(bytecode.FastCall))
		sc.bc.Emit(bytecode.CALL, arg, sc.line)
		// CALL pops (callee + args) and pushes one result: net effect on
		// depth is -(len(args)+1)+1.
		sc.tu.EvalStack.Add(-len(e.Args))
	case *ast.FuncLit:
		return sc.lowerFuncLit(e)
	default:
		return fmt.Errorf("lower: unsupported expression node %T", n)
	}
	return nil
}

// lowerFuncLit compiles e's body as its own Code object in a child
// scope, interns it as a static constant, pushes the current value of
// each free variable it captured (in the order resolve recorded
// them) and emits MKFN (spec §4.11 MKFN: "pops len(code.Enclosed) items
// off the stack into the enclosed slice").
func (sc *scope) lowerFuncLit(e *ast.FuncLit) error {
	code, err := lowerFunc(sc, e.Params, e.Body, e.Name, false, false, asm.OFF)
	if err != nil {
		return err
	}
	for _, name := range code.Enclosed {
		sc.loadName(name)
	}
	idx := sc.tu.AddStatic(code)
	sc.bc.Emit(bytecode.MKFN, uint32(idx), sc.line)
	sc.tu.EvalStack.Add(-len(code.Enclosed) + 1)
	return nil
}

// lowerStmt emits code for a statement; the eval stack's net depth is
// unchanged by any statement (expression statements discard their
// result explicitly).
func (sc *scope) lowerStmt(n ast.Node) error {
	switch s := n.(type) {
	case nil:
		return nil
	case *ast.Block:
		for _, stmt := range s.Stmts {
			if err := sc.lowerStmt(stmt); err != nil {
				return err
			}
		}
	case *ast.ExprStmt:
		if err := sc.lowerExpr(s.X); err != nil {
			return err
		}
		sc.emitPop(bytecode.POP, 0)
	case *ast.Assign:
		if err := sc.lowerExpr(s.Value); err != nil {
			return err
		}
		sc.storeName(s.Name, s.Declare)
	case *ast.Return:
		if s.X != nil {
			if err := sc.lowerExpr(s.X); err != nil {
				return err
			}
		} else {
			sc.emitPush(bytecode.PSHN, 0)
		}
		sc.bc.Emit(bytecode.RET, 0, sc.line)
	case *ast.Break:
		jb := sc.bc.Innermost(bblock.JLoop)
		if jb == nil {
			return fmt.Errorf("lower: break outside a loop")
		}
		sc.bc.EmitJump(bytecode.JMP, jb.End, sc.line)
	case *ast.Continue:
		jb := sc.bc.Innermost(bblock.JLoop)
		if jb == nil {
			return fmt.Errorf("lower: continue outside a loop")
		}
		sc.bc.EmitJump(bytecode.JMP, jb.Begin, sc.line)
	case *ast.If:
		return sc.lowerIf(s)
	case *ast.For:
		return sc.lowerFor(s)
	default:
		return fmt.Errorf("lower: unsupported statement node %T", n)
	}
	return nil
}

// lowerIf always uses explicit jumps rather than relying on
// bblock.Compiler's creation-order layout for fallthrough, since nested
// control structures would otherwise append blocks in between a
// "fallthrough" pair and break the assumption (package asm's
// assembler lays blocks out strictly in creation order, ignoring
// Fallthrough, so only explicit jumps are layout-independent).
func (sc *scope) lowerIf(s *ast.If) error {
	if err := sc.lowerExpr(s.Cond); err != nil {
		return err
	}
	thenBlock := sc.bc.NewBlock()
	elseBlock := sc.bc.NewBlock()
	mergeBlock := elseBlock
	if s.Else != nil {
		mergeBlock = sc.bc.NewBlock()
	}

	sc.bc.EmitJump(bytecode.JF, elseBlock, sc.line)
	sc.tu.EvalStack.Add(-1)
	sc.bc.EmitJump(bytecode.JMP, thenBlock, sc.line)

	sc.bc.SetCurrent(thenBlock)
	if err := sc.lowerStmt(s.Then); err != nil {
		return err
	}
	sc.bc.EmitJump(bytecode.JMP, mergeBlock, sc.line)

	if s.Else != nil {
		sc.bc.SetCurrent(elseBlock)
		if err := sc.lowerStmt(s.Else); err != nil {
			return err
		}
		sc.bc.EmitJump(bytecode.JMP, mergeBlock, sc.line)
	}

	sc.bc.SetCurrent(mergeBlock)
	return nil
}

// lowerFor implements a C-style for loop (spec §8 worked example 3):
// Init runs once, Cond gates each iteration, Post runs after Body,
// Begin/End on the pushed JBlock give break/continue their targets.
func (sc *scope) lowerFor(s *ast.For) error {
	if s.Init != nil {
		if err := sc.lowerStmt(s.Init); err != nil {
			return err
		}
	}

	condBlock := sc.bc.NewBlock()
	bodyBlock := sc.bc.NewBlock()
	postBlock := sc.bc.NewBlock()
	endBlock := sc.bc.NewBlock()

	sc.bc.EmitJump(bytecode.JMP, condBlock, sc.line)

	sc.bc.SetCurrent(condBlock)
	if s.Cond != nil {
		if err := sc.lowerExpr(s.Cond); err != nil {
			return err
		}
		sc.bc.EmitJump(bytecode.JF, endBlock, sc.line)
		sc.tu.EvalStack.Add(-1)
	}
	sc.bc.EmitJump(bytecode.JMP, bodyBlock, sc.line)

	sc.bc.SetCurrent(bodyBlock)
	sc.bc.PushJBlock(bblock.JLoop, "", postBlock, endBlock)
	if err := sc.lowerStmt(s.Body); err != nil {
		return err
	}
	sc.bc.PopJBlock()
	sc.bc.EmitJump(bytecode.JMP, postBlock, sc.line)

	sc.bc.SetCurrent(postBlock)
	if s.Post != nil {
		if err := sc.lowerStmt(s.Post); err != nil {
			return err
		}
	}
	sc.bc.EmitJump(bytecode.JMP, condBlock, sc.line)

	sc.bc.SetCurrent(endBlock)
	return nil
}
