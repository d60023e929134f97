// Package asm implements spec component C10: the jump-threading
// peephole optimiser and the assembler that lowers a basic-block graph
// (package bblock) into a sealed bytecode.Code object.
package asm

import (
	"github.com/lumen-lang/lumen/internal/bytecode"
	"github.com/lumen-lang/lumen/internal/compiler/bblock"
)

// Level selects the optimisation level (spec §4.10): OFF performs no
// jump threading; SOFT and above do.
type Level int

const (
	OFF Level = iota
	SOFT
	MEDIUM
	HARD
)

// unoptimisable lists opcodes jump-threading must never retarget: they
// carry exception/trap semantics where the target block's identity
// matters beyond "where execution resumes" (spec §4.10).
func unoptimisable(op bytecode.OpCode) bool {
	switch op {
	case bytecode.JEX, bytecode.JNIL, bytecode.JNN, bytecode.JFOP, bytecode.JTOP:
		return true
	default:
		return false
	}
}

func isJump(op bytecode.OpCode) bool {
	switch op {
	case bytecode.JMP, bytecode.JT, bytecode.JF, bytecode.JEX,
		bytecode.JFOP, bytecode.JTOP, bytecode.JNIL, bytecode.JNN:
		return true
	default:
		return false
	}
}

// threadJumps rewrites every conditional/unconditional jump so that if
// its target block begins with an unconditional JMP, the jump retargets
// to that JMP's own destination, skipping empty intermediate blocks.
// The pass is iterative per edge; since each follow strictly shortens
// the remaining chain (or the chain is not a pure-JMP chain and the loop
// halts on a non-JMP head), it always terminates within len(blocks)
// iterations (spec §4.10, §8 "no reachable unconditional-jump chain has
// length > 1" post-threading).
func threadJumps(blocks []*bblock.Block) {
	for _, b := range blocks {
		for i := b.Head; i != nil; i = i.Next {
			if i.Jump == nil || !isJump(i.Op) || unoptimisable(i.Op) {
				continue
			}
			target := i.Jump
			seen := map[*bblock.Block]bool{}
			for {
				if target.Head == nil || target.Head.Op != bytecode.JMP || target.Head.Jump == nil {
					break
				}
				if seen[target] {
					break // defensive cycle guard; well-formed graphs never hit this
				}
				seen[target] = true
				target = target.Head.Jump
			}
			i.Jump = target
		}
	}
}

// Assemble lays blocks out in emission order, resolves every jump's
// block pointer to a byte offset, and emits the contiguous instruction
// buffer plus its run-length-encoded line table (spec §4.10 steps 1-4).
// Once assembled the block graph must not be re-entered (spec §3
// invariant).
func Assemble(blocks []*bblock.Block, level Level, opts CodeOptions) *bytecode.Code {
	if level >= SOFT {
		threadJumps(blocks)
	}

	offsets := make(map[*bblock.Block]uint32, len(blocks))
	var cursor uint32
	// Pass 1: walk blocks in emission order assigning byte offsets.
	for _, b := range blocks {
		offsets[b] = cursor
		for i := b.Head; i != nil; i = i.Next {
			cursor += uint32(i.Op.Width())
		}
	}

	var instr []byte
	var lines []bytecode.LineEntry
	var lastInstr uint32
	var lastLine int32

	// Pass 2 & 3: resolve jump args to offsets and emit bytes.
	for _, b := range blocks {
		for i := b.Head; i != nil; i = i.Next {
			arg := i.Arg
			if i.Jump != nil {
				arg = offsets[i.Jump]
			}
			pos := uint32(len(instr))
			instr = append(instr, bytecode.Encode(i.Op, arg)...)

			line := int32(i.Line)
			lines = append(lines, bytecode.LineEntry{
				InstrDelta: pos - lastInstr,
				LineDelta:  line - lastLine,
			})
			lastInstr, lastLine = pos, line
		}
	}

	code := &bytecode.Code{
		Instr:       instr,
		Statics:     opts.Statics,
		Globals:     opts.Globals,
		Params:      opts.Params,
		Enclosed:    opts.Enclosed,
		Lines:       bytecode.NewLineTable(lines),
		StackSize:   opts.StackSize,
		LocalsSize:  opts.LocalsSize,
		SyncDepth:   opts.SyncDepth,
		QualName:    opts.QualName,
		Doc:         opts.Doc,
		IsGenerator: opts.IsGenerator,
		IsAsync:     opts.IsAsync,
	}
	code.Freeze()
	return code
}

// CodeOptions carries the translation-unit-derived metadata the
// assembler stamps onto the Code object it produces.
type CodeOptions struct {
	Statics    []interface{}
	Globals    []string
	Params     []string
	Enclosed   []string
	StackSize  int
	LocalsSize int
	SyncDepth  int
	QualName   string
	Doc        string

	IsGenerator bool
	IsAsync     bool
}
