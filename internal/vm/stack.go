package vm

import (
	"github.com/lumen-lang/lumen/internal/fiber"
	"github.com/lumen-lang/lumen/internal/lumenerr"
	"github.com/lumen-lang/lumen/internal/object"
)

// execPopCount implements POPC: discard exactly arg values off the top
// of the eval stack, releasing each (e.g. an expression statement's
// discarded result, or a multi-value binding trimmed to fewer names).
func (vm *Interpreter) execPopCount(fr *fiber.Frame, arg uint32) {
	for i := uint32(0); i < arg; i++ {
		release(fr.Pop())
	}
}

// execPopGreaterThan implements POPGT: trim the eval stack down to
// exactly arg entries, releasing whatever is discarded. Used by the
// compiler to reset stack depth to a known baseline at a non-local exit
// (break/continue/return) that skips intermediate expression results.
func (vm *Interpreter) execPopGreaterThan(fr *fiber.Frame, arg uint32) {
	for fr.StackLen() > int(arg) {
		release(fr.Pop())
	}
}

// execUnpack implements UNPACK: pop a Tuple or List and push its arg
// elements back in original (left-to-right) order, for destructuring
// assignment (`a, b := pair`).
func (vm *Interpreter) execUnpack(f *fiber.Fiber, fr *fiber.Frame, arg uint32) {
	v := fr.Pop()
	var items []object.Value
	ok := false
	if v != nil {
		if t, isT := object.AsTuple(v); isT {
			items, ok = t.Items, true
		} else if l, isL := object.AsList(v); isL {
			items, ok = l.Items, true
		}
	}
	if !ok {
		vm.raise(f, typeErrorValue("value is not unpackable"))
		return
	}
	if len(items) != int(arg) {
		vm.raise(f, lumenErrValue(lumenerr.Value, "unpack count mismatch"))
		return
	}
	for _, it := range items {
		retain(it)
		fr.Push(it)
	}
	release(v)
}
