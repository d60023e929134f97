package lower

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumen-lang/lumen/internal/bytecode"
	"github.com/lumen-lang/lumen/internal/compiler/asm"
	"github.com/lumen-lang/lumen/internal/compiler/ast"
)

func TestLowerArithmeticEmitsConstantsAndBinaryOps(t *testing.T) {
	// 1 + 2 * 3 (spec §8 worked example 1)
	prog := &ast.Block{Stmts: []ast.Node{
		&ast.ExprStmt{X: &ast.Binary{
			Op: "+",
			X:  &ast.IntLit{Val: 1},
			Y:  &ast.Binary{Op: "*", X: &ast.IntLit{Val: 2}, Y: &ast.IntLit{Val: 3}},
		}},
	}}

	code, err := Lower(prog, "__main", asm.OFF)
	require.NoError(t, err)
	require.Equal(t, "__main", code.QualName)

	op, _, next := code.Decode(0)
	require.Equal(t, bytecode.LDCONST, op)
	op, _, next = code.Decode(next)
	require.Equal(t, bytecode.LDCONST, op)
	op, _, next = code.Decode(next)
	require.Equal(t, bytecode.LDCONST, op)
	op, _, next = code.Decode(next)
	require.Equal(t, bytecode.MUL, op)
	op, _, next = code.Decode(next)
	require.Equal(t, bytecode.ADD, op)
	op, _, _ = code.Decode(next)
	require.Equal(t, bytecode.POP, op, "an expression statement discards its result")
}

func TestLowerAssignDeclaresGlobalAtModuleRoot(t *testing.T) {
	prog := &ast.Block{Stmts: []ast.Node{
		&ast.Assign{Name: "x", Value: &ast.IntLit{Val: 10}, Declare: true},
		&ast.ExprStmt{X: &ast.Ident{Name: "x"}},
	}}

	code, err := Lower(prog, "__main", asm.OFF)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, code.Globals)

	op, _, next := code.Decode(0)
	require.Equal(t, bytecode.LDCONST, op)
	op, _, next = code.Decode(next)
	require.Equal(t, bytecode.STGBL, op)
	op, _, _ = code.Decode(next)
	require.Equal(t, bytecode.LDGBL, op)
}

func TestLowerClosureCapturesEnclosingLocal(t *testing.T) {
	// func mk() { x := 10; return func() { return x } }; mk()()
	inner := &ast.FuncLit{Name: "", Params: nil, Body: &ast.Block{Stmts: []ast.Node{
		&ast.Return{X: &ast.Ident{Name: "x"}},
	}}}
	mk := &ast.FuncLit{Name: "mk", Params: nil, Body: &ast.Block{Stmts: []ast.Node{
		&ast.Assign{Name: "x", Value: &ast.IntLit{Val: 10}, Declare: true},
		&ast.Return{X: inner},
	}}}
	prog := &ast.Block{Stmts: []ast.Node{
		&ast.Assign{Name: "mk", Value: mk, Declare: true},
		&ast.ExprStmt{X: &ast.Call{Fn: &ast.Call{Fn: &ast.Ident{Name: "mk"}}}},
	}}

	code, err := Lower(prog, "__main", asm.OFF)
	require.NoError(t, err)
	require.NotEmpty(t, code.Statics, "mk's Code should be interned as a static")

	var mkCode *bytecode.Code
	for _, s := range code.Statics {
		if c, ok := s.(*bytecode.Code); ok {
			mkCode = c
		}
	}
	require.NotNil(t, mkCode, "mk should be lowered to its own Code")

	var innerCode *bytecode.Code
	for _, s := range mkCode.Statics {
		if c, ok := s.(*bytecode.Code); ok {
			innerCode = c
		}
	}
	require.NotNil(t, innerCode)
	require.Equal(t, []string{"x"}, innerCode.Enclosed, "inner captures x from mk's locals")
}

func TestLowerBreakOutsideLoopIsAnError(t *testing.T) {
	prog := &ast.Block{Stmts: []ast.Node{&ast.Break{}}}
	_, err := Lower(prog, "__main", asm.OFF)
	require.Error(t, err)
}

func TestLowerForLoopWithBreak(t *testing.T) {
	// for i := 0; i < 5; i = i + 1 { if i == 3 { break } }
	prog := &ast.Block{Stmts: []ast.Node{
		&ast.For{
			Init: &ast.Assign{Name: "i", Value: &ast.IntLit{Val: 0}, Declare: true},
			Cond: &ast.Binary{Op: "<", X: &ast.Ident{Name: "i"}, Y: &ast.IntLit{Val: 5}},
			Post: &ast.Assign{Name: "i", Value: &ast.Binary{Op: "+", X: &ast.Ident{Name: "i"}, Y: &ast.IntLit{Val: 1}}, Declare: false},
			Body: &ast.Block{Stmts: []ast.Node{
				&ast.If{
					Cond: &ast.Binary{Op: "==", X: &ast.Ident{Name: "i"}, Y: &ast.IntLit{Val: 3}},
					Then: &ast.Block{Stmts: []ast.Node{&ast.Break{}}},
				},
			}},
		},
	}}

	code, err := Lower(prog, "__main", asm.OFF)
	require.NoError(t, err)
	require.NotZero(t, code.InstrSize())
}
