package vm

import (
	"github.com/lumen-lang/lumen/internal/bytecode"
	"github.com/lumen-lang/lumen/internal/fiber"
	"github.com/lumen-lang/lumen/internal/object"
)

// iterator is the runtime value LDITER produces: an opaque, non-GC-tracked
// cursor over whatever container it was built from. It is never
// constructed any other way and never observed by user code directly,
// only driven by NXT.
type iterator struct {
	object.Header
	next func() (object.Value, bool)
}

var iteratorType = &object.TypeDescriptor{
	Name: "Iterator",
	Repr: func(o *object.Header) string { return "<iterator>" },
}

func asIterator(h object.Value) *iterator { return (*iterator)(ptr(h)) }

func (vm *Interpreter) execIter(f *fiber.Fiber, fr *fiber.Frame, op bytecode.OpCode, arg uint32) {
	switch op {
	case bytecode.LDITER:
		vm.execLdIter(f, fr)
	case bytecode.NXT:
		vm.execNxt(fr)
	}
}

func (vm *Interpreter) execLdIter(f *fiber.Fiber, fr *fiber.Frame) {
	v := fr.Pop()
	it := &iterator{}
	it.Init(iteratorType)

	if v == nil || v == object.Nil {
		it.next = func() (object.Value, bool) { return nil, false }
	} else if l, ok := object.AsList(v); ok {
		i := 0
		it.next = func() (object.Value, bool) {
			if i >= len(l.Items) {
				return nil, false
			}
			val := l.Items[i]
			i++
			return val, true
		}
	} else if t, ok := object.AsTuple(v); ok {
		i := 0
		it.next = func() (object.Value, bool) {
			if i >= len(t.Items) {
				return nil, false
			}
			val := t.Items[i]
			i++
			return val, true
		}
	} else if d, ok := object.AsDict(v); ok {
		pairs := make([]object.Value, 0, d.Len())
		d.Each(func(key, val object.Value) { pairs = append(pairs, &vm.newTuple([]object.Value{key, val}).Header) })
		i := 0
		it.next = func() (object.Value, bool) {
			if i >= len(pairs) {
				return nil, false
			}
			val := pairs[i]
			i++
			return val, true
		}
	} else if s, ok := object.AsSet(v); ok {
		items := make([]object.Value, 0, s.Len())
		s.Each(func(val object.Value) { items = append(items, val) })
		i := 0
		it.next = func() (object.Value, bool) {
			if i >= len(items) {
				return nil, false
			}
			val := items[i]
			i++
			return val, true
		}
	} else if str, ok := object.AsStr(v); ok {
		runes := []rune(str.Val)
		i := 0
		it.next = func() (object.Value, bool) {
			if i >= len(runes) {
				return nil, false
			}
			val := &object.NewStr(string(runes[i])).Header
			i++
			return val, true
		}
	} else if it.next == nil {
		vm.raise(f, typeErrorValue("value is not iterable"))
		return
	}

	fr.Push(&it.Header)
}

func (vm *Interpreter) execNxt(fr *fiber.Frame) {
	it := asIterator(fr.Peek())
	val, ok := it.next()
	if !ok {
		fr.Push(object.Nil)
		fr.Push(boolValue(false))
		return
	}
	fr.Push(val)
	fr.Push(boolValue(true))
}
