package vm

import (
	"github.com/lumen-lang/lumen/internal/fiber"
)

// execSync implements SYNC (spec §4.11): pop a value and acquire its
// monitor, keyed on the current fiber's identity so the same fiber can
// re-enter a sync block it already holds (spec §4.11 "re-entering a
// sync block on the same object by the same fiber is permitted").
// RSMutex exposes no external waiter/notify hook the scheduler could
// suspend the fiber against, so contention here blocks the underlying
// OS-level goroutine directly rather than cooperatively yielding — a
// documented simplification (see DESIGN.md).
func (vm *Interpreter) execSync(f *fiber.Fiber, fr *fiber.Frame, arg uint32) {
	v := fr.Pop()
	if v == nil {
		vm.raise(f, typeErrorValue("sync requires a value"))
		return
	}
	key := v.Sync(fiberIdentity(f))
	fr.PushSync(key)
	release(v)
}

// execUnsync implements UNSYNC: release the most recently acquired
// monitor this frame still holds.
func (vm *Interpreter) execUnsync(fr *fiber.Frame) {
	if k, ok := fr.PopSync(); ok {
		k.Unsync()
	}
}

// execTrap implements TRAP: records the instruction offset unwind should
// resume at if a panic reaches this frame while this trap is the
// innermost one active. The compiler emits TRAP at the start of a
// guarded region; the authoritative range check during unwinding is
// fr.Code.FindTrap(fr.SiteIP), not this field — TrapIP exists only as a
// cheap bookkeeping mirror compilers/tools can inspect.
func (vm *Interpreter) execTrap(fr *fiber.Frame, arg uint32) {
	fr.TrapIP = int32(arg)
}
