package vm

import (
	"github.com/lumen-lang/lumen/internal/fiber"
	"github.com/lumen-lang/lumen/internal/object"
	"github.com/lumen-lang/lumen/internal/scheduler"
)

// raise attaches a new panic record to f, originating at its current
// top frame (spec §3 Panic: "the frame where it originated"). Fiber.Panic
// itself marks any panic already in flight Aborted, per spec §4.11/§7
// ("a second panic raised during unwinding sets the aborted flag on the
// prior panic and chains to it").
func (vm *Interpreter) raise(f *fiber.Fiber, v object.Value) {
	f.Panic(v, f.Top())
}

// unwind implements spec §4.11/§7's propagation algorithm: for the
// current top frame, drain its defer stack (LIFO, each run synchronously
// to completion before the next), then check whether the frame's code
// declares a TRAP range covering the instruction that was executing when
// the panic reached this frame (fr.SiteIP — the CALL site for every
// frame but the one the panic originated in). A covering range recovers:
// the panic value is pushed and execution resumes at the handler. No
// match releases the frame's held sync monitors and pops to the caller,
// repeating there. Reaching the bottom of the chain surfaces the panic
// as the fiber's terminal outcome.
func (vm *Interpreter) unwind(f *fiber.Fiber) (scheduler.Outcome, bool) {
	for {
		fr := f.Top()
		if fr == nil {
			return vm.terminate(f)
		}

		if d := fr.PopDefer(); d != nil {
			// Set the in-flight panic aside while the deferred call runs,
			// so its own instructions are not unwound on the panic's
			// behalf, then put it back (chained under any new panic the
			// deferred call left unrecovered).
			pending := f.RecoverPanic()
			vm.invokeDeferEntry(f, fr, d)
			if raised := f.CurrentPanic(); raised != nil && raised != pending.Chain {
				pending.Aborted = true
				raised.Chain = pending
			} else {
				f.Panic(pending.Value, pending.Frame)
			}
			continue
		}

		pr := f.CurrentPanic()
		if pr == nil {
			// A defer's own execution recovered (or simply absorbed)
			// the panic; resume normal dispatch on this frame.
			return 0, false
		}

		if rng, ok := fr.Code.FindTrap(fr.SiteIP); ok {
			pr.Recovered = true
			f.RecoverPanic()
			fr.UnwindSyncs()
			fr.IP = rng.Handler
			fr.Push(pr.Value)
			return 0, false
		}

		fr.UnwindSyncs()
		f.PopFrame()
		if fn := fr.GenOwner; fn != nil && fn.Gen != nil {
			fn.Gen.Done = true
			fn.Gen.Saved = nil
			fn.Gen.Release()
		}
	}
}

// terminate runs once a fiber's frame chain is fully unwound, either by
// a recovered-free panic (unwind reaching the bottom) or by RET popping
// the last frame. It settles the fiber's Future, if it has one, and
// wakes whoever is awaiting it.
func (vm *Interpreter) terminate(f *fiber.Fiber) (scheduler.Outcome, bool) {
	if f.Future != nil {
		if pr := f.CurrentPanic(); pr != nil {
			vm.wakeAll(f.Future.Resolve(nil, panicToErr(pr)))
		} else {
			vm.wakeAll(f.Future.Resolve(object.Nil, nil))
		}
	}
	return scheduler.Completed, true
}

// invokeDeferEntry runs one deferred call to completion inside the same
// frame that pushed it (spec §4.11 DFR: "executing each deferred call
// inside the same frame before pop"), discarding its return value; a
// panic raised by the deferred call itself chains onto whatever panic is
// already unwinding via Fiber.Panic's Aborted bookkeeping.
func (vm *Interpreter) invokeDeferEntry(f *fiber.Fiber, fr *fiber.Frame, d *fiber.DeferEntry) {
	vm.invokeSync(f, fr, d.Callee, d.Args)
	if fr.StackLen() > 0 {
		release(fr.Pop())
	}
	release(d.Callee)
	for _, a := range d.Args {
		release(a)
	}
}

// invokeSync pushes a call for callee/args atop floor and drives it to
// completion before returning, used anywhere the spec describes a call
// as happening synchronously within the current frame (defers, a
// struct's `init`).
func (vm *Interpreter) invokeSync(f *fiber.Fiber, floor *fiber.Frame, callee object.Value, args []object.Value) {
	vm.invoke(f, floor, callee, args, nil)
	vm.runFrameToCompletion(f, floor)
}
