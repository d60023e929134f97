package symtab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeclareAndLookup(t *testing.T) {
	tbl := NewTable(nil)
	_, err := tbl.Declare("x", Variable)
	require.NoError(t, err)

	sym, owner, ok := tbl.Lookup("x")
	require.True(t, ok)
	require.Same(t, tbl, owner)
	require.Equal(t, Variable, sym.Kind)
}

func TestRedeclarationDifferentKindErrors(t *testing.T) {
	tbl := NewTable(nil)
	_, err := tbl.Declare("x", Variable)
	require.NoError(t, err)
	_, err = tbl.Declare("x", Constant)
	require.Error(t, err)
}

func TestNestedScopeShadowsAndLookupWalksOut(t *testing.T) {
	outer := NewTable(nil)
	_, _ = outer.Declare("x", Variable)
	inner := outer.PushScope()
	_, _ = inner.Declare("y", Variable)

	_, _, ok := inner.Lookup("x")
	require.True(t, ok, "lookup should walk out to the enclosing chain")

	outer.PopScope()
	_, _, ok = outer.Lookup("y")
	require.False(t, ok, "outer scope must not see inner-only declarations")
}

func TestDepthCounterTracksPeak(t *testing.T) {
	var c DepthCounter
	c.Add(1)
	c.Add(1)
	c.Add(-1)
	require.Equal(t, 1, c.Current())
	require.Equal(t, 2, c.Required())
}

func TestResolveFreeMarksEnclosed(t *testing.T) {
	outer := NewTranslationUnit(nil)
	_, _ = outer.Symbols.Declare("x", Variable)

	inner := NewTranslationUnit(outer)
	idx, isFree := inner.ResolveFree("x")
	require.True(t, isFree)
	require.Equal(t, 0, idx)
	require.Equal(t, []string{"x"}, inner.Enclosed)

	// second reference reuses the same capture slot
	idx2, _ := inner.ResolveFree("x")
	require.Equal(t, idx, idx2)
}

func TestAddStaticInterns(t *testing.T) {
	tu := NewTranslationUnit(nil)
	a := tu.AddStatic(int64(7))
	b := tu.AddStatic(int64(7))
	require.Equal(t, a, b)
	require.Empty(t, tu.DeadStatics())
}
