package vm

import (
	"github.com/lumen-lang/lumen/internal/bytecode"
	"github.com/lumen-lang/lumen/internal/fiber"
	"github.com/lumen-lang/lumen/internal/lumenerr"
	"github.com/lumen-lang/lumen/internal/object"
)

func (vm *Interpreter) execVar(f *fiber.Fiber, fr *fiber.Frame, op bytecode.OpCode, arg uint32) {
	switch op {
	case bytecode.LDGBL:
		name := fr.Code.Globals[arg]
		v, ok := fr.Globals.Get(name)
		if !ok {
			vm.raise(f, nameErrorValue(name))
			return
		}
		fr.Push(v)

	case bytecode.STGBL:
		name := fr.Code.Globals[arg]
		v := fr.Pop()
		if old, ok := fr.Globals.Get(name); ok {
			release(old)
		}
		retain(v)
		fr.Globals.Set(name, v)

	case bytecode.LDLC:
		fr.Push(fr.Locals[arg])

	case bytecode.STLC:
		v := fr.Pop()
		release(fr.Locals[arg])
		retain(v)
		fr.Locals[arg] = v

	case bytecode.LDENC:
		fr.Push(fr.Enclosed[arg])

	case bytecode.STENC:
		v := fr.Pop()
		release(fr.Enclosed[arg])
		retain(v)
		fr.Enclosed[arg] = v

	case bytecode.LDSCOPE:
		vm.execLoadScope(f, fr, arg)

	case bytecode.STSCOPE:
		vm.execStoreScope(f, fr, arg)

	case bytecode.LDATTR:
		vm.execLoadAttr(f, fr, arg)

	case bytecode.STATTR:
		vm.execStoreAttr(f, fr, arg)

	case bytecode.LDMETH:
		vm.execLoadMethod(f, fr, arg)
	}
}

// execLoadScope/execStoreScope implement LDSCOPE/STSCOPE as the
// implicit-receiver sugar form of LDATTR/STATTR: inside a method body,
// they read/write a named field on the frame's own Receiver without an
// explicit receiver expression on the stack (the same distinction
// Python draws between `self.x` written out and a language that lets a
// method body just say `x`). They reuse Code.Globals as the shared
// identifier pool so no separate name table is needed on Code.
func (vm *Interpreter) execLoadScope(f *fiber.Fiber, fr *fiber.Frame, arg uint32) {
	name := fr.Code.Globals[arg]
	st, ok := object.AsStruct(fr.Receiver)
	if !ok {
		vm.raise(f, lumenErrValue(lumenerr.NameScope, "no enclosing instance scope for "+name))
		return
	}
	v, ok := st.Fields[name]
	if !ok {
		v = object.Nil
	}
	fr.Push(v)
}

func (vm *Interpreter) execStoreScope(f *fiber.Fiber, fr *fiber.Frame, arg uint32) {
	name := fr.Code.Globals[arg]
	st, ok := object.AsStruct(fr.Receiver)
	if !ok {
		vm.raise(f, lumenErrValue(lumenerr.NameScope, "no enclosing instance scope for "+name))
		return
	}
	v := fr.Pop()
	release(st.Fields[name])
	retain(v)
	st.Fields[name] = v
}

func (vm *Interpreter) execLoadAttr(f *fiber.Fiber, fr *fiber.Frame, arg uint32) {
	name := fr.Code.Globals[arg]
	recv := fr.Pop()
	if st, ok := object.AsStruct(recv); ok {
		if v, ok := st.Fields[name]; ok {
			fr.Push(v)
			return
		}
		if m, ok := st.LookupMethod(name); ok {
			fr.Push(&vm.newBound(recv, m).Header)
			return
		}
	}
	if cls, ok := object.AsClassDescriptor(recv); ok {
		if m, ok := cls.Methods[name]; ok {
			fr.Push(m)
			return
		}
	}
	vm.raise(f, nameErrorValue(name))
}

func (vm *Interpreter) execStoreAttr(f *fiber.Fiber, fr *fiber.Frame, arg uint32) {
	name := fr.Code.Globals[arg]
	recv := fr.Pop()
	v := fr.Pop()
	st, ok := object.AsStruct(recv)
	if !ok {
		vm.raise(f, typeErrorValue("attribute assignment target is not a struct"))
		return
	}
	release(st.Fields[name])
	retain(v)
	st.Fields[name] = v
}

func (vm *Interpreter) execLoadMethod(f *fiber.Fiber, fr *fiber.Frame, arg uint32) {
	name := fr.Code.Globals[arg]
	recv := fr.Pop()
	st, ok := object.AsStruct(recv)
	if !ok {
		vm.raise(f, typeErrorValue("method lookup target is not a struct"))
		return
	}
	m, ok := st.LookupMethod(name)
	if !ok {
		vm.raise(f, nameErrorValue(name))
		return
	}
	fr.Push(&vm.newBound(recv, m).Header)
}

func nameErrorValue(name string) object.Value {
	return lumenErrValue(lumenerr.NameScope, "undefined name "+name)
}
