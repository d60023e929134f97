package asm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumen-lang/lumen/internal/bytecode"
	"github.com/lumen-lang/lumen/internal/compiler/bblock"
)

func TestJumpThreadingSkipsEmptyIntermediateBlock(t *testing.T) {
	c := bblock.New()

	final := c.NewBlock()
	c.SetCurrent(final)
	c.Emit(bytecode.RET, 0, 1)

	mid := c.NewBlock()
	c.SetCurrent(mid)
	c.EmitJump(bytecode.JMP, final, 2)

	entry := c.Blocks()[0] // the block opened implicitly by bblock.New()
	c.SetCurrent(entry)
	c.EmitJump(bytecode.JMP, mid, 3)

	threadJumps(c.Blocks())
	require.Same(t, final, mid.Head.Jump, "mid's own jump target is untouched")
	require.Same(t, final, entry.Head.Jump, "entry's jump now skips the empty mid block")
}

func TestAssembleResolvesDirectJumpWhenOffAtSoft(t *testing.T) {
	c := bblock.New()
	target := c.NewBlock()
	c.EmitJump(bytecode.JF, target, 5)
	c.SetCurrent(target)
	c.Emit(bytecode.RET, 0, 6)

	code := Assemble(c.Blocks(), OFF, CodeOptions{})
	op, arg, next := code.Decode(0)
	require.Equal(t, bytecode.JF, op)
	// target block is emitted right after the entry block's single jump
	require.EqualValues(t, bytecode.JF.Width(), arg)
	require.EqualValues(t, bytecode.JF.Width(), next)
}

func TestInstrSizeEqualsSumOfWidths(t *testing.T) {
	c := bblock.New()
	c.Emit(bytecode.LDCONST, 1, 1)
	c.Emit(bytecode.ADD, 0, 1)
	c.Emit(bytecode.RET, 0, 1)

	code := Assemble(c.Blocks(), OFF, CodeOptions{})
	require.Equal(t, bytecode.LDCONST.Width()+bytecode.ADD.Width()+bytecode.RET.Width(), code.InstrSize())
}

func TestUnoptimisableOpcodeNotThreaded(t *testing.T) {
	c := bblock.New()

	final := c.NewBlock()
	c.SetCurrent(final)
	c.Emit(bytecode.RET, 0, 1)

	mid := c.NewBlock()
	c.SetCurrent(mid)
	c.EmitJump(bytecode.JMP, final, 2)

	entry := c.NewBlock()
	c.SetCurrent(entry)
	c.EmitJump(bytecode.JNIL, mid, 3) // unoptimisable: must stay pointed at mid

	require.NotPanics(t, func() {
		Assemble(c.Blocks(), HARD, CodeOptions{})
	})
	require.Same(t, mid, entry.Head.Jump)
}
