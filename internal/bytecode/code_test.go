package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	b := Encode(LDCONST, 0x0102FE)
	op, arg, next := (&Code{Instr: b}).Decode(0)
	require.Equal(t, LDCONST, op)
	require.EqualValues(t, 0x0102FE, arg)
	require.EqualValues(t, 4, next)
}

func TestNarrowWidthOpcodes(t *testing.T) {
	b := Encode(POP, 0)
	require.Len(t, b, 1)
	b2 := Encode(CMP, uint32(CmpLT))
	require.Len(t, b2, 2)
}

func TestInstrSizeMatchesOpCodeOffsetSum(t *testing.T) {
	c := &Code{}
	c.Instr = append(c.Instr, Encode(LDCONST, 1)...)
	c.Instr = append(c.Instr, Encode(ADD, 0)...)
	c.Instr = append(c.Instr, Encode(RET, 0)...)
	require.Equal(t, LDCONST.Width()+ADD.Width()+RET.Width(), c.InstrSize())
}

func TestFreezeComputesHashOnce(t *testing.T) {
	c := &Code{Instr: []byte{byte(RET)}}
	c.Freeze()
	h1 := c.Hash()
	c.Instr = []byte{byte(POP)} // mutation after freeze must not be honored by new hashes
	c.Freeze()
	require.Equal(t, h1, c.Hash())
}

func TestLineTableLookup(t *testing.T) {
	lt := NewLineTable([]LineEntry{
		{InstrDelta: 0, LineDelta: 1},
		{InstrDelta: 4, LineDelta: 1},
		{InstrDelta: 8, LineDelta: 2},
	})
	require.Equal(t, 1, lt.Lookup(0))
	require.Equal(t, 2, lt.Lookup(5))
	require.Equal(t, 4, lt.Lookup(20))
}
