package vm

import (
	"github.com/lumen-lang/lumen/internal/bytecode"
	"github.com/lumen-lang/lumen/internal/fiber"
	"github.com/lumen-lang/lumen/internal/object"
)

func (vm *Interpreter) newList(items []object.Value) *object.List {
	l := object.NewList(items)
	vm.track(&l.Header)
	return l
}

func (vm *Interpreter) newTuple(items []object.Value) *object.Tuple {
	t := object.NewTuple(items)
	vm.track(&t.Header)
	return t
}

func (vm *Interpreter) newDict() *object.Dict {
	d := object.NewDict()
	vm.track(&d.Header)
	return d
}

func (vm *Interpreter) newSet() *object.Set {
	s := object.NewSet()
	vm.track(&s.Header)
	return s
}

func (vm *Interpreter) newBound(receiver, callee object.Value) *object.Bound {
	b := object.NewBound(receiver, callee)
	vm.track(&b.Header)
	return b
}

func (vm *Interpreter) newFunction(code *bytecode.Code, enclosed []object.Value) *object.Function {
	fn := object.NewFunction(code, enclosed)
	vm.track(&fn.Header)
	return fn
}

// reversed returns a new slice with s's elements in reverse order,
// turning a LIFO pop sequence back into the left-to-right push order
// the compiler emitted.
func reversed(s []object.Value) []object.Value {
	out := make([]object.Value, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

func (vm *Interpreter) popN(fr *fiber.Frame, n int) []object.Value {
	items := make([]object.Value, n)
	for i := n - 1; i >= 0; i-- {
		items[i] = fr.Pop()
	}
	return items
}

func (vm *Interpreter) execMake(f *fiber.Fiber, fr *fiber.Frame, op bytecode.OpCode, arg uint32) {
	switch op {
	case bytecode.MKLT:
		fr.Push(&vm.newList(vm.popN(fr, int(arg))).Header)

	case bytecode.MKTP:
		fr.Push(&vm.newTuple(vm.popN(fr, int(arg))).Header)

	case bytecode.MKST:
		s := vm.newSet()
		for _, v := range vm.popN(fr, int(arg)) {
			s.Add(v)
		}
		fr.Push(&s.Header)

	case bytecode.MKDT:
		pairs := vm.popN(fr, int(arg)*2)
		d := vm.newDict()
		for i := 0; i+1 < len(pairs); i += 2 {
			d.Set(pairs[i], pairs[i+1])
		}
		fr.Push(&d.Header)

	case bytecode.MKBND:
		callee := fr.Pop()
		receiver := fr.Pop()
		fr.Push(&vm.newBound(receiver, callee).Header)

	case bytecode.MKFN:
		code, ok := fr.Code.Statics[arg].(*bytecode.Code)
		if !ok {
			vm.raise(f, typeErrorValue("MKFN constant is not a Code object"))
			return
		}
		enclosed := vm.popN(fr, len(code.Enclosed))
		for _, v := range enclosed {
			retain(v)
		}
		fr.Push(&vm.newFunction(code, enclosed).Header)

	case bytecode.MKSTRUCT:
		vm.execMkStruct(f, fr, arg)

	case bytecode.MKTRAIT:
		vm.execMkTrait(f, fr, arg)
	}
}

func (vm *Interpreter) methodDictFromStack(fr *fiber.Frame) map[string]object.Value {
	d, ok := object.AsDict(fr.Pop())
	methods := make(map[string]object.Value)
	if !ok {
		return methods
	}
	d.Each(func(key, val object.Value) {
		if s, ok := object.AsStr(key); ok {
			methods[s.Val] = val
		}
	})
	return methods
}

func (vm *Interpreter) execMkTrait(f *fiber.Fiber, fr *fiber.Frame, arg uint32) {
	idx, _ := bytecode.SplitModeArg(arg)
	tmpl, ok := fr.Code.Statics[idx].(*bytecode.ClassTemplate)
	if !ok {
		vm.raise(f, typeErrorValue("MKTRAIT constant is not a ClassTemplate"))
		return
	}
	methods := vm.methodDictFromStack(fr)
	c := object.NewClassDescriptor(tmpl.Name, true)
	c.Required = tmpl.Required
	c.Methods = methods
	fr.Push(&c.Header)
}

func (vm *Interpreter) execMkStruct(f *fiber.Fiber, fr *fiber.Frame, arg uint32) {
	idx, traitCount := bytecode.SplitModeArg(arg)
	tmpl, ok := fr.Code.Statics[idx].(*bytecode.ClassTemplate)
	if !ok {
		vm.raise(f, typeErrorValue("MKSTRUCT constant is not a ClassTemplate"))
		return
	}
	methods := vm.methodDictFromStack(fr)
	traitVals := vm.popN(fr, int(traitCount))
	traits := make([]*object.ClassDescriptor, 0, len(traitVals))
	for _, tv := range traitVals {
		tc, ok := object.AsClassDescriptor(tv)
		if !ok {
			vm.raise(f, typeErrorValue("composed trait is not a class value"))
			return
		}
		traits = append(traits, tc)
	}
	c := object.NewClassDescriptor(tmpl.Name, false)
	c.FieldNames = tmpl.FieldNames
	c.Traits = traits
	c.Methods = methods
	fr.Push(&c.Header)
}
