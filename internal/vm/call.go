package vm

import (
	"github.com/lumen-lang/lumen/internal/bytecode"
	"github.com/lumen-lang/lumen/internal/fiber"
	"github.com/lumen-lang/lumen/internal/lumenerr"
	"github.com/lumen-lang/lumen/internal/object"
	"github.com/lumen-lang/lumen/internal/scheduler"
)

// execCall implements CALL (spec §4.11): pop the callee, its keyword
// dict (KW_PARAMS) and its positional arguments, and dispatch per the
// resolved callee's kind. Bytecode callees are pushed as a new frame and
// produce their result later, via RET, on this frame's own stack; class
// values construct an instance synchronously. invoke has no native-callee
// case: any other value raises a TypeError.
func (vm *Interpreter) execCall(f *fiber.Fiber, fr *fiber.Frame, arg uint32) {
	rawIdx, modeByte := bytecode.SplitModeArg(arg)
	mode := bytecode.CallMode(modeByte)

	var kwargs *object.Dict
	if mode == bytecode.KwParams {
		if d, ok := object.AsDict(fr.Pop()); ok {
			kwargs = d
		}
	}
	args := vm.popN(fr, int(rawIdx))
	callee := fr.Pop()
	vm.invoke(f, fr, callee, args, kwargs)
}

// invoke resolves callee against fr (the caller whose stack ultimately
// receives the result, whether immediately or via a later RET) and
// dispatches to the concrete callable kind.
func (vm *Interpreter) invoke(f *fiber.Fiber, fr *fiber.Frame, callee object.Value, args []object.Value, kwargs *object.Dict) {
	if callee == nil {
		vm.raise(f, typeErrorValue("call to nil value"))
		return
	}
	if b, ok := object.AsBound(callee); ok {
		vm.invoke(f, fr, b.Callee, append([]object.Value{b.Receiver}, args...), kwargs)
		return
	}
	if fn, ok := object.AsFunction(callee); ok {
		vm.invokeFunction(f, fr, fn, args)
		return
	}
	if cls, ok := object.AsClassDescriptor(callee); ok {
		vm.invokeConstructor(f, fr, cls, args, kwargs)
		return
	}
	vm.raise(f, typeErrorValue("value is not callable"))
}

// bindArgs copies args into a freshly pushed frame's locals, positional
// up to code's declared parameter count; any surplus is packed into a
// trailing Tuple in the last declared slot, the REST_PARAMS call-mode
// contract (spec §4.11 "trailing variadic packed into a tuple").
func (vm *Interpreter) bindArgs(newFr *fiber.Frame, code *bytecode.Code, args []object.Value) {
	n := len(code.Params)
	for i := 0; i < n && i < len(args); i++ {
		retain(args[i])
		newFr.Locals[i] = args[i]
	}
	if len(args) > n && n > 0 {
		rest := append([]object.Value(nil), args[n:]...)
		for _, v := range rest {
			retain(v)
		}
		t := vm.newTuple(rest)
		release(newFr.Locals[n-1])
		newFr.Locals[n-1] = &t.Header
	}
}

// invokeFunction pushes (or, for async functions, spawns) a bytecode
// closure's frame.
func (vm *Interpreter) invokeFunction(f *fiber.Fiber, fr *fiber.Frame, fn *object.Function, args []object.Value) {
	if fn.Code.IsAsync {
		vm.spawnAsync(fr, fn, args)
		return
	}
	if fn.Code.IsGenerator {
		vm.invokeGenerator(f, fr, fn, args)
		return
	}
	newFr := f.PushFrame(fn.Code, fr.Globals, nil)
	vm.bindArgs(newFr, fn.Code, args)
	copy(newFr.Enclosed, fn.Enclosed)
}

// invokeGenerator implements spec §4.11 "Generators": the first call
// runs the body until its first YLD (or RET); every subsequent call
// resumes the frame YLD parked, via the floating-frame path so it
// outlives the pushing call's own stack scope. A Function's
// GeneratorState guards against concurrent re-entry with an atomic
// owner CAS; the Open Question at spec §9 is resolved here as "raise,
// don't silently proceed" on a concurrent re-entrant call.
func (vm *Interpreter) invokeGenerator(f *fiber.Fiber, fr *fiber.Frame, fn *object.Function, args []object.Value) {
	if fn.Gen == nil {
		fn.Gen = &object.GeneratorState{}
	}
	gen := fn.Gen
	if !gen.TryAcquire(fiberIdentity(f)) {
		vm.raise(f, lumenErrValue(lumenerr.Runtime, "generator is already executing"))
		return
	}
	if gen.Done {
		gen.Release()
		vm.raise(f, lumenErrValue(lumenerr.Runtime, "generator is exhausted"))
		return
	}
	if gen.Saved != nil {
		saved := gen.Saved.(*fiber.Frame)
		gen.Saved = nil
		f.ResumeFrame(saved, fr)
		return
	}
	newFr := f.PushFloatingFrame(fn.Code, fr.Globals, nil)
	newFr.GenOwner = fn
	vm.bindArgs(newFr, fn.Code, args)
	copy(newFr.Enclosed, fn.Enclosed)
}

// spawnAsync implements "Async functions return a Future immediately"
// (spec §4.11 AWAIT / §6 EvalAsync): the call runs on a brand-new fiber
// the scheduler drives independently, while the calling frame gets back
// a Future value right away.
func (vm *Interpreter) spawnAsync(fr *fiber.Frame, fn *object.Function, args []object.Value) {
	nf := vm.newFiber()
	nf.Future = fiber.NewFuture()
	newFr := nf.PushFrame(fn.Code, fr.Globals, nil)
	vm.bindArgs(newFr, fn.Code, args)
	copy(newFr.Enclosed, fn.Enclosed)
	if vm.sched != nil {
		vm.sched.Spawn(nf)
	}
	fr.Push(vm.newFutureValue(nf.Future))
}

func (vm *Interpreter) newFiber() *fiber.Fiber {
	return fiber.Acquire(vm.nextFiberID.Add(1), 0)
}

// invokeConstructor builds a Struct instance from cls, populating its
// fields positionally or from a KW_PARAMS dict (spec §4.11 Init modes
// POSITIONAL/KWARGS), then runs its "init" method (if declared) to
// completion synchronously before the constructed instance becomes the
// call's result.
func (vm *Interpreter) invokeConstructor(f *fiber.Fiber, fr *fiber.Frame, cls *object.ClassDescriptor, args []object.Value, kwargs *object.Dict) {
	if cls.IsTrait {
		vm.raise(f, typeErrorValue("cannot construct a trait directly"))
		return
	}

	initFn, hasInit := cls.Methods["init"]
	fields := make(map[string]object.Value, len(cls.FieldNames))

	// With an explicit init, the positional/kwargs values are its
	// arguments alone; it assigns fields itself via STATTR. Without one,
	// they populate fields directly in declaration order (a plain data
	// constructor), the same one-reference-per-arg ownership popN
	// already transferred from the stack.
	if !hasInit {
		if kwargs != nil {
			kwargs.Each(func(k, v object.Value) {
				if s, ok := object.AsStr(k); ok {
					fields[s.Val] = v
				}
			})
		} else {
			for i, name := range cls.FieldNames {
				if i < len(args) {
					fields[name] = args[i]
				}
			}
		}
	}

	inst := object.NewStruct(cls, fields)
	vm.track(&inst.Header)

	if hasInit {
		vm.invokeSync(f, fr, &vm.newBound(&inst.Header, initFn).Header, args)
		if f.CurrentPanic() != nil {
			return
		}
		if fr.StackLen() > 0 {
			release(fr.Pop()) // discard init's own return value
		}
	}
	fr.Push(&inst.Header)
}

// execReturn implements RET (spec §4.11): drain the frame's defer stack,
// release any sync monitors it still holds, pop it, and hand its
// accumulated return value to the caller — or, if this was the fiber's
// last frame, terminate the fiber (settling its Future, if any).
func (vm *Interpreter) execReturn(f *fiber.Fiber, fr *fiber.Frame) (scheduler.Outcome, bool) {
	var ret object.Value = object.Nil
	if fr.StackLen() > 0 {
		ret = fr.Pop()
	}

	for {
		d := fr.PopDefer()
		if d == nil {
			break
		}
		vm.invokeDeferEntry(f, fr, d)
		if f.CurrentPanic() != nil {
			// A deferred call raised and was not recovered within its
			// own frame; let the normal unwind path take over instead
			// of completing this RET.
			return vm.unwind(f)
		}
	}
	fr.UnwindSyncs()

	if fn := fr.GenOwner; fn != nil && fn.Gen != nil {
		fn.Gen.Done = true
		fn.Gen.Saved = nil
		fn.Gen.Release()
	}

	f.PopFrame()
	caller := f.Top()
	if caller == nil {
		if f.Future != nil {
			vm.wakeAll(f.Future.Resolve(ret, nil))
		}
		return scheduler.Completed, true
	}
	caller.Push(ret)
	return 0, false
}

// execYield implements YLD (spec §4.11 "Generators"): park the current
// frame as its owning Function's saved continuation and hand val back to
// whoever called in, exactly as if this had been a RET — except the
// frame survives, floating, for the next resuming call.
func (vm *Interpreter) execYield(f *fiber.Fiber, fr *fiber.Frame) (scheduler.Outcome, bool) {
	var val object.Value = object.Nil
	if fr.StackLen() > 0 {
		val = fr.Pop()
	}
	if fr.GenOwner == nil {
		vm.raise(f, typeErrorValue("yield outside a generator"))
		return vm.drainPanic(f)
	}

	gen := fr.GenOwner.Gen
	detached := f.DetachTop()
	gen.Saved = detached
	gen.Release()

	caller := f.Top()
	if caller == nil {
		// A generator can never be the fiber's bottommost frame: it is
		// only ever reached via invokeGenerator, which always runs
		// inside some caller's CALL. Nothing sane to do here but end
		// the fiber.
		return scheduler.Completed, true
	}
	caller.Push(val)
	return 0, false
}

// execDefer implements DFR (spec §4.11): pop a callee and its args,
// retain both (the frame's defer chain now holds its own reference,
// independent of whatever slot they came from) and record them on fr's
// defer stack for LIFO draining on RET or unwind.
func (vm *Interpreter) execDefer(f *fiber.Fiber, fr *fiber.Frame, arg uint32) {
	args := vm.popN(fr, int(arg))
	callee := fr.Pop()
	retain(callee)
	for _, a := range args {
		retain(a)
	}
	fr.PushDefer(callee, args)
}

// execSpawn implements SPW (spec §4.11 / §6 Spawn): fire-and-forget —
// unlike an async-function CALL, the caller gets nothing back and never
// learns the spawned fiber's outcome.
func (vm *Interpreter) execSpawn(f *fiber.Fiber, fr *fiber.Frame, arg uint32) {
	args := vm.popN(fr, int(arg))
	callee := fr.Pop()
	nf := vm.newFiber()
	vm.invokeRoot(nf, fr.Globals, callee, args)
	if vm.sched != nil {
		vm.sched.Spawn(nf)
	}
}

// SpawnRoot pushes callee's initial frame onto nf with no caller
// context of its own, the embedding-level counterpart to SPW: the root
// lumen package's Spawn/EvalAsync entry points use this when a host call
// — not a bytecode SPW instruction — is what starts a fiber (spec §6
// Spawn/EvalAsync).
func (vm *Interpreter) SpawnRoot(nf *fiber.Fiber, globals *fiber.Namespace, callee object.Value, args []object.Value) {
	vm.invokeRoot(nf, globals, callee, args)
}

// invokeRoot pushes callee's very first frame onto a freshly created
// fiber that has no caller context of its own yet, resolving Bound and
// Function values the same way invoke does. A non-callable spawn target
// surfaces as a runtime error on the new fiber's own first tick rather
// than synchronously in the spawning frame.
func (vm *Interpreter) invokeRoot(nf *fiber.Fiber, globals *fiber.Namespace, callee object.Value, args []object.Value) {
	if b, ok := object.AsBound(callee); ok {
		vm.invokeRoot(nf, globals, b.Callee, append([]object.Value{b.Receiver}, args...))
		return
	}
	if fn, ok := object.AsFunction(callee); ok {
		newFr := nf.PushFrame(fn.Code, globals, nil)
		vm.bindArgs(newFr, fn.Code, args)
		copy(newFr.Enclosed, fn.Enclosed)
		return
	}
	nf.PushNativeFrame(func(*fiber.Fiber, []object.Value) (object.Value, error) {
		return nil, lumenerr.New(lumenerr.Type, "spawned value is not callable")
	}, nil, globals)
}
