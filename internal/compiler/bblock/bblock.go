// Package bblock implements spec component C8: AST lowering into a
// linked list of basic blocks whose jump targets are block pointers, not
// byte offsets, until the assembler (C10) resolves them.
package bblock

import (
	"fmt"

	"github.com/xlab/treeprint"

	"github.com/lumen-lang/lumen/internal/bytecode"
)

// Instr is one pre-assembly instruction: an opcode, its argument, a
// source line, a next-pointer forming the block's instruction list, and
// an optional block pointer for jump targets (spec §4.8).
type Instr struct {
	Op   bytecode.OpCode
	Arg  uint32
	Line int
	Next *Instr
	Jump *Block // non-nil only for jump-family opcodes
}

// Block is a basic block: a maximal straight-line run of instructions.
type Block struct {
	ID        int
	Head      *Instr
	tail      *Instr
	Fallthrough *Block // block layout successor, used by the assembler
}

func (b *Block) append(i *Instr) {
	if b.Head == nil {
		b.Head = i
	} else {
		b.tail.Next = i
	}
	b.tail = i
}

// JKind names the kind of lexical region a J-block delimits (spec §4.8).
type JKind int

const (
	JLabel JKind = iota
	JLoop
	JSafe
	JSwitch
	JSync
	JTrap
)

func (k JKind) String() string {
	return [...]string{"LABEL", "LOOP", "SAFE", "SWITCH", "SYNC", "TRAP"}[k]
}

// JBlock is a compile-time auxiliary delimiting a region needing
// structural exit semantics: break/continue targets, sync-block ranges,
// trap ranges, switch cases, labelled targets (spec §4.8).
type JBlock struct {
	Kind        JKind
	Name        string
	Begin, End  *Block
	Arity       int // operands that must be popped on a non-local exit
	Parent      *JBlock
}

// Compiler accumulates the basic-block graph for one translation unit.
type Compiler struct {
	cur    *Block
	blocks []*Block
	jstack []*JBlock
	nextID int
}

func New() *Compiler {
	c := &Compiler{}
	c.cur = c.NewBlock()
	return c
}

// NewBlock reserves a fresh, empty block without making it current.
func (c *Compiler) NewBlock() *Block {
	b := &Block{ID: c.nextID}
	c.nextID++
	c.blocks = append(c.blocks, b)
	return b
}

// SetCurrent switches emission to b; used when entering a branch target.
func (c *Compiler) SetCurrent(b *Block) { c.cur = b }

func (c *Compiler) Current() *Block { return c.cur }

// Emit appends a non-jump instruction to the current block.
func (c *Compiler) Emit(op bytecode.OpCode, arg uint32, line int) {
	c.cur.append(&Instr{Op: op, Arg: arg, Line: line})
}

// EmitJump appends a jump-family instruction whose target is a block
// pointer, per spec §4.8: "emits jump instructions whose jmp field
// stores the target block pointer directly."
func (c *Compiler) EmitJump(op bytecode.OpCode, target *Block, line int) {
	c.cur.append(&Instr{Op: op, Line: line, Jump: target})
}

// PushJBlock opens a new J-block of kind nested inside the innermost
// currently open one.
func (c *Compiler) PushJBlock(kind JKind, name string, begin, end *Block) *JBlock {
	var parent *JBlock
	if n := len(c.jstack); n > 0 {
		parent = c.jstack[n-1]
	}
	jb := &JBlock{Kind: kind, Name: name, Begin: begin, End: end, Parent: parent}
	c.jstack = append(c.jstack, jb)
	return jb
}

func (c *Compiler) PopJBlock() *JBlock {
	n := len(c.jstack)
	if n == 0 {
		return nil
	}
	jb := c.jstack[n-1]
	c.jstack = c.jstack[:n-1]
	return jb
}

// Innermost returns the nearest enclosing J-block of the given kind
// (e.g. the loop a `break` targets), or nil if none is open.
func (c *Compiler) Innermost(kind JKind) *JBlock {
	for i := len(c.jstack) - 1; i >= 0; i-- {
		if c.jstack[i].Kind == kind {
			return c.jstack[i]
		}
	}
	return nil
}

// FindLabel searches the open J-block stack for a LABEL block named
// name, used to resolve labelled break/continue.
func (c *Compiler) FindLabel(name string) *JBlock {
	for i := len(c.jstack) - 1; i >= 0; i-- {
		if c.jstack[i].Kind == JLabel && c.jstack[i].Name == name {
			return c.jstack[i]
		}
	}
	return nil
}

// Blocks returns the block list in emission order — the order the
// assembler lays them out in by default (spec §4.10 step 1).
func (c *Compiler) Blocks() []*Block { return c.blocks }

// Dump renders the block graph as a tree for debugging (stands in for
// the teacher's absent astDot/cfgDot graphviz hooks).
func (c *Compiler) Dump() string {
	tree := treeprint.New()
	for _, b := range c.blocks {
		branch := tree.AddBranch(fmt.Sprintf("block%d", b.ID))
		for i := b.Head; i != nil; i = i.Next {
			if i.Jump != nil {
				branch.AddNode(fmt.Sprintf("%v -> block%d", i.Op, i.Jump.ID))
			} else {
				branch.AddNode(fmt.Sprintf("%v %d", i.Op, i.Arg))
			}
		}
	}
	return tree.String()
}
