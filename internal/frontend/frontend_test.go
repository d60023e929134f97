package frontend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumen-lang/lumen/internal/compiler/ast"
)

func TestParseArithmeticPrecedence(t *testing.T) {
	// 1 + 2 * 3 must parse as 1 + (2 * 3) (spec §8 worked example 1)
	prog, err := Parse("1 + 2 * 3")
	require.NoError(t, err)

	block, ok := prog.(*ast.Block)
	require.True(t, ok)
	require.Len(t, block.Stmts, 1)

	stmt, ok := block.Stmts[0].(*ast.ExprStmt)
	require.True(t, ok)
	bin, ok := stmt.X.(*ast.Binary)
	require.True(t, ok)
	require.Equal(t, "+", bin.Op)

	require.IsType(t, &ast.IntLit{}, bin.X)
	rhs, ok := bin.Y.(*ast.Binary)
	require.True(t, ok)
	require.Equal(t, "*", rhs.Op)
}

func TestParseClosure(t *testing.T) {
	src := `
	mk := func() {
		x := 10
		return func() { return x }
	}
	mk()()
	`
	prog, err := Parse(src)
	require.NoError(t, err)

	block := prog.(*ast.Block)
	require.Len(t, block.Stmts, 2)

	assign, ok := block.Stmts[0].(*ast.Assign)
	require.True(t, ok)
	require.Equal(t, "mk", assign.Name)
	require.True(t, assign.Declare)

	fn, ok := assign.Value.(*ast.FuncLit)
	require.True(t, ok)
	fnBody := fn.Body.(*ast.Block)
	require.Len(t, fnBody.Stmts, 2)
	require.IsType(t, &ast.Return{}, fnBody.Stmts[1])

	call, ok := block.Stmts[1].(*ast.ExprStmt)
	require.True(t, ok)
	outer, ok := call.X.(*ast.Call)
	require.True(t, ok)
	require.IsType(t, &ast.Call{}, outer.Fn)
}

func TestParseForLoopWithBreak(t *testing.T) {
	src := `
	for i := 0; i < 5; i = i + 1 {
		if i == 3 { break }
	}
	`
	prog, err := Parse(src)
	require.NoError(t, err)

	block := prog.(*ast.Block)
	require.Len(t, block.Stmts, 1)
	forNode, ok := block.Stmts[0].(*ast.For)
	require.True(t, ok)
	require.NotNil(t, forNode.Init)
	require.NotNil(t, forNode.Cond)
	require.NotNil(t, forNode.Post)

	body := forNode.Body.(*ast.Block)
	ifNode, ok := body.Stmts[0].(*ast.If)
	require.True(t, ok)
	thenBlock := ifNode.Then.(*ast.Block)
	require.IsType(t, &ast.Break{}, thenBlock.Stmts[0])
}

func TestParseUnterminatedStringIsAnError(t *testing.T) {
	_, err := Parse(`x := "unterminated`)
	require.Error(t, err)
}

func TestParseWhileStyleFor(t *testing.T) {
	prog, err := Parse("for true { break }")
	require.NoError(t, err)
	block := prog.(*ast.Block)
	forNode := block.Stmts[0].(*ast.For)
	require.Nil(t, forNode.Init)
	require.Nil(t, forNode.Post)
	require.IsType(t, &ast.BoolLit{}, forNode.Cond)
}
