package lumen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumen-lang/lumen/internal/compiler/ast"
	"github.com/lumen-lang/lumen/internal/config"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt := New()
	cfg := config.Load("")
	cfg.MaxVirtualCores = 1
	require.NoError(t, rt.Initialize(cfg))
	t.Cleanup(rt.Shutdown)
	return rt
}

func TestCompileRejectsNonASTSource(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := rt.Compile("bad.lm", "not an ast.Node")
	require.Error(t, err)
}

func TestEvalRunsAnExpressionStatement(t *testing.T) {
	rt := newTestRuntime(t)

	// 1 + 2, discarded (spec §8 worked example 1)
	prog := &ast.Block{Stmts: []ast.Node{
		&ast.ExprStmt{X: &ast.Binary{Op: "+", X: &ast.IntLit{Val: 1}, Y: &ast.IntLit{Val: 2}}},
	}}
	code, err := rt.Compile("__main", ast.Node(prog))
	require.NoError(t, err)

	res, err := rt.Eval(context.Background(), code, nil)
	require.NoError(t, err)
	require.Nil(t, res.Err)
}

func TestEvalPersistsGlobalsAcrossCalls(t *testing.T) {
	rt := newTestRuntime(t)
	ns := rt.Globals()

	decl := &ast.Block{Stmts: []ast.Node{
		&ast.Assign{Name: "x", Value: &ast.IntLit{Val: 41}, Declare: true},
	}}
	code, err := rt.Compile("<repl>", ast.Node(decl))
	require.NoError(t, err)
	_, err = rt.Eval(context.Background(), code, ns)
	require.NoError(t, err)

	readBack := &ast.Block{Stmts: []ast.Node{
		&ast.ExprStmt{X: &ast.Ident{Name: "x"}},
	}}
	code2, err := rt.Compile("<repl>", ast.Node(readBack))
	require.NoError(t, err)
	_, err = rt.Eval(context.Background(), code2, ns)
	require.NoError(t, err)

	if _, ok := ns.Get("x"); !ok {
		t.Fatal("expected x to remain bound in the shared namespace")
	}
}

func TestEvalRespectsContextCancellation(t *testing.T) {
	rt := newTestRuntime(t)
	prog := &ast.Block{Stmts: []ast.Node{&ast.ExprStmt{X: &ast.IntLit{Val: 1}}}}
	code, err := rt.Compile("__main", ast.Node(prog))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rt.Eval(ctx, code, nil)
	require.ErrorIs(t, err, context.Canceled)
}
