package fiber

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumen-lang/lumen/internal/bytecode"
	"github.com/lumen-lang/lumen/internal/object"
)

func smallCode(stackSize, localsSize, enclosed int) *bytecode.Code {
	c := &bytecode.Code{
		Instr:      bytecode.Encode(bytecode.RET, 0),
		StackSize:  stackSize,
		LocalsSize: localsSize,
		Enclosed:   make([]string, enclosed),
		Lines:      bytecode.NewLineTable(nil),
	}
	c.Freeze()
	return c
}

func TestPushFrameBumpsStackAndPopRewinds(t *testing.T) {
	fb := New(1, 16)
	code := smallCode(2, 2, 0)

	fr := fb.PushFrame(code, NewNamespace(), nil)
	require.False(t, fr.floating)
	require.Equal(t, 0, fr.stackBase)
	require.Equal(t, 4, fb.stackCur)

	fb.PopFrame()
	require.Equal(t, 0, fb.stackCur, "popping a stack-allocated frame rewinds stackCur")
}

func TestPushFrameFloatsWhenStackExhausted(t *testing.T) {
	fb := New(1, 4)
	code := smallCode(8, 8, 0)

	fr := fb.PushFrame(code, NewNamespace(), nil)
	require.True(t, fr.floating)
	require.Equal(t, 0, fb.stackCur, "floating frame never touches the bump cursor")
}

func TestFrameListIsLIFO(t *testing.T) {
	fb := New(1, 64)
	code := smallCode(1, 1, 0)

	outer := fb.PushFrame(code, NewNamespace(), nil)
	inner := fb.PushFrame(code, NewNamespace(), nil)
	require.Same(t, outer, inner.Caller())
	require.Same(t, inner, fb.Top())

	popped := fb.PopFrame()
	require.Same(t, inner, popped)
	require.Same(t, outer, fb.Top())
}

func TestEvalStackPushPopDoesNotBleedIntoLocals(t *testing.T) {
	fb := New(1, 32)
	code := smallCode(2, 2, 0)
	fr := fb.PushFrame(code, NewNamespace(), nil)

	a := &object.Header{}
	b := &object.Header{}
	c := &object.Header{}
	fr.Push(a)
	fr.Push(b)
	fr.Push(c) // exceeds declared StackSize, must grow via append, not overwrite Locals

	require.Same(t, c, fr.Pop())
	require.Same(t, b, fr.Pop())
	require.Same(t, a, fr.Pop())
	require.Nil(t, fr.Locals[0])
	require.Nil(t, fr.Locals[1])
}

func TestPanicChainsOnReentry(t *testing.T) {
	fb := New(1, 8)
	v1 := &object.Header{}
	v2 := &object.Header{}

	fb.Panic(v1, nil)
	fb.Panic(v2, nil)

	require.Same(t, v2, fb.CurrentPanic().Value)
	rec := fb.RecoverPanic()
	require.Same(t, v2, rec.Value)
	require.Same(t, v1, fb.CurrentPanic().Value)
}

func TestPushReenteringDetectsCycle(t *testing.T) {
	fb := New(1, 8)
	v := &object.Header{}
	require.True(t, fb.PushReentering(v))
	require.False(t, fb.PushReentering(v), "same value re-entering must report a cycle")
	fb.PopReentering()
	fb.PopReentering()
}

func TestNativeFrameCopiesArgsIntoLocals(t *testing.T) {
	fb := New(1, 8)
	a := &object.Header{}
	b := &object.Header{}

	called := false
	fr := fb.PushNativeFrame(func(_ *Fiber, args []Value) (Value, error) {
		called = true
		return args[0], nil
	}, []Value{a, b}, NewNamespace())

	require.Same(t, a, fr.Locals[0])
	require.Same(t, b, fr.Locals[1])
	require.NotNil(t, fr.Native())

	v, err := fr.Native()(fb, fr.Locals)
	require.NoError(t, err)
	require.Same(t, a, v)
	require.True(t, called)
}

func TestFutureResolveWakesAllWaiters(t *testing.T) {
	fut := NewFuture()
	a := New(1, 4)
	b := New(2, 4)

	_, ok := fut.Wait(a)
	require.True(t, ok)
	_, ok = fut.Wait(b)
	require.True(t, ok)

	woken := fut.Resolve(&object.Header{}, nil)
	require.Len(t, woken, 2)
	require.True(t, fut.Done())

	_, ok = fut.Wait(New(3, 4))
	require.False(t, ok, "future already resolved: no new wait needed")
}

func TestAcquireReusesAReleasedFiber(t *testing.T) {
	f := Acquire(1, 16)
	f.status = Blocked
	f.Future = NewFuture()
	f.Panic(&object.Header{}, nil)
	Release(f)

	g := Acquire(2, 16)
	require.Same(t, f, g, "Acquire should reuse the just-released fiber rather than allocate")
	require.EqualValues(t, 2, g.ID)
	require.Equal(t, Runnable, g.Status())
	require.Nil(t, g.Future)
	require.Nil(t, g.CurrentPanic())
}

func TestAcquireFallsBackToNewWhenPoolEmpty(t *testing.T) {
	for len(poolFree) > 0 {
		Acquire(99, 16)
	}
	f := Acquire(3, 16)
	require.NotNil(t, f)
	require.EqualValues(t, 3, f.ID)
}

func TestRetainedFiberIsNotImplicitlyReleased(t *testing.T) {
	f := Acquire(4, 16)
	f.Retain()
	require.True(t, f.Retained())
	Release(f)
	require.False(t, f.Retained(), "Release always clears retained once the caller is done")
}

func TestReleaseBoundsThePool(t *testing.T) {
	for len(poolFree) > 0 {
		Acquire(100, 4)
	}
	for i := 0; i < kFiberPoolSize+10; i++ {
		Release(New(uint64(i), 4))
	}
	require.LessOrEqual(t, len(poolFree), kFiberPoolSize)
}
