package bblock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumen-lang/lumen/internal/bytecode"
)

func TestEmitAppendsToCurrentBlock(t *testing.T) {
	c := New()
	c.Emit(bytecode.LDCONST, 1, 10)
	c.Emit(bytecode.POP, 0, 10)

	b := c.Current()
	require.Equal(t, bytecode.LDCONST, b.Head.Op)
	require.Equal(t, bytecode.POP, b.Head.Next.Op)
}

func TestLoopBreakPushesJBlockAndJumpsToEnd(t *testing.T) {
	c := New()
	loopEnd := c.NewBlock()
	loopBegin := c.Current()
	jb := c.PushJBlock(JLoop, "", loopBegin, loopEnd)

	// body: if cond break
	c.EmitJump(bytecode.JMP, jb.End, 3)

	popped := c.PopJBlock()
	require.Same(t, jb, popped)
	require.Same(t, loopEnd, c.Current().Head.Jump)
}

func TestInnermostFindsEnclosingLoopThroughNestedSafeBlock(t *testing.T) {
	c := New()
	loopEnd := c.NewBlock()
	c.PushJBlock(JLoop, "", c.Current(), loopEnd)
	c.PushJBlock(JSafe, "", c.Current(), nil)

	jb := c.Innermost(JLoop)
	require.NotNil(t, jb)
	require.Equal(t, JLoop, jb.Kind)
}
