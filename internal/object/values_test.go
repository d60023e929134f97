package object

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntReprHashEq(t *testing.T) {
	a := NewInt(7)
	b := NewInt(7)
	c := NewInt(8)

	require.Equal(t, "7", a.Repr())
	require.Equal(t, a.Hash(), b.Hash())
	require.True(t, Equal(&a.Header, &b.Header))
	require.False(t, Equal(&a.Header, &c.Header))
}

func TestBoolSingletonsAreShared(t *testing.T) {
	require.Same(t, True, FromBool(true))
	require.Same(t, False, FromBool(false))
	require.NotSame(t, True, False)
}

func TestListTracerVisitsEveryItem(t *testing.T) {
	a := &NewInt(1).Header
	b := &NewInt(2).Header
	l := NewList([]Value{a, b})

	var visited []Value
	l.Type.Tracer(&l.Header, func(h *Header) { visited = append(visited, h) })
	require.Equal(t, []Value{a, b}, visited)
}

func TestTupleEqualityIsStructural(t *testing.T) {
	t1 := NewTuple([]Value{&NewInt(1).Header, &NewInt(2).Header})
	t2 := NewTuple([]Value{&NewInt(1).Header, &NewInt(2).Header})
	t3 := NewTuple([]Value{&NewInt(1).Header, &NewInt(3).Header})

	require.True(t, Equal(&t1.Header, &t2.Header))
	require.False(t, Equal(&t1.Header, &t3.Header))
}

func TestDictSetGetDeleteByValueEquality(t *testing.T) {
	d := NewDict()
	k1 := &NewStr("x").Header
	k2 := &NewStr("x").Header // distinct pointer, equal value

	d.Set(k1, &NewInt(1).Header)
	v, ok := d.Get(k2)
	require.True(t, ok)
	require.Equal(t, int64(1), asInt(v).Val)

	require.True(t, d.Delete(k2))
	_, ok = d.Get(k1)
	require.False(t, ok)
}

func TestSetAddRejectsDuplicateByValue(t *testing.T) {
	s := NewSet()
	require.True(t, s.Add(&NewInt(5).Header))
	require.False(t, s.Add(&NewInt(5).Header))
	require.Equal(t, 1, s.Len())
}

func TestClassDescriptorLookupMethodWalksTraits(t *testing.T) {
	trait := NewClassDescriptor("Greeter", true)
	greetFn := &NewStr("greet-impl").Header
	trait.Methods["greet"] = greetFn

	class := NewClassDescriptor("Person", false)
	class.Traits = append(class.Traits, trait)

	inst := NewStruct(class, map[string]Value{})
	v, ok := inst.LookupMethod("greet")
	require.True(t, ok)
	require.Same(t, greetFn, v)

	_, ok = inst.LookupMethod("missing")
	require.False(t, ok)
}
