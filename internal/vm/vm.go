// Package vm implements spec component C11: the stack-based bytecode
// dispatch loop that executes Code objects inside a fiber, one quantum
// of instructions at a time, on behalf of the scheduler (C6).
package vm

import (
	"sync/atomic"
	"unsafe"

	"github.com/lumen-lang/lumen/internal/bytecode"
	"github.com/lumen-lang/lumen/internal/fiber"
	"github.com/lumen-lang/lumen/internal/gc"
	"github.com/lumen-lang/lumen/internal/lumenerr"
	"github.com/lumen-lang/lumen/internal/object"
	"github.com/lumen-lang/lumen/internal/rtlog"
	"github.com/lumen-lang/lumen/internal/scheduler"
)

// ptr reinterprets a live Value's address as a Go pointer of whatever
// concrete, Header-embedding wrapper type this package defines
// (iterator, futureObj): the same same-address embedding trick
// internal/object's own asXxx helpers use, just for vm-local value
// kinds that never leave this package.
func ptr(h object.Value) unsafe.Pointer { return unsafe.Pointer(h) }

var _ scheduler.Runner = (*Interpreter)(nil)

// Interpreter is the C11 dispatch loop. It carries no per-fiber state
// of its own (every fiber's Frame chain is self-contained); the same
// Interpreter instance runs every fiber the scheduler hands it, the way
// scheduler.Runner requires.
type Interpreter struct {
	gc    *gc.Collector
	sched *scheduler.Scheduler

	// nextFiberID hands out monotonically increasing ids to fibers
	// created by SPW and by an async-function CALL (spawnAsync).
	nextFiberID atomic.Uint64
}

// New builds an Interpreter backed by collector for cycle collection.
// AttachScheduler must be called once the owning Scheduler exists,
// since scheduler.New itself needs a Runner to construct.
func New(collector *gc.Collector) *Interpreter {
	return &Interpreter{gc: collector}
}

func (vm *Interpreter) AttachScheduler(s *scheduler.Scheduler) { vm.sched = s }

// fiberIdentity is the RSMutex identity a SYNC/UNSYNC pair uses: the
// fiber's own ID (offset by one so 0 stays "no owner"), never the
// virtual-core index a fiber happens to be running on. A fiber may be
// rescheduled onto a different virtual core between a SYNC and its
// matching UNSYNC (spec §5 "fibers ... may be re-scheduled on a
// different thread on resume"), and spec §4.11 describes sync
// re-entrance as "the same fiber", not "the same thread".
func fiberIdentity(f *fiber.Fiber) int64 { return int64(f.ID) + 1 }

// Run executes up to quantum instructions of f, implementing
// scheduler.Runner.
func (vm *Interpreter) Run(f *fiber.Fiber, quantum int) scheduler.Outcome {
	for tick := 0; tick < quantum; tick++ {
		fr := f.Top()
		if fr == nil {
			return scheduler.Completed
		}

		if fr.Native() != nil {
			vm.runNative(f, fr)
			continue
		}

		outcome, stop := vm.dispatchOne(f, fr)
		if stop {
			return outcome
		}
	}
	return scheduler.PreemptedOutcome
}

// dispatchOne decodes and executes exactly one instruction of fr,
// recording its byte offset on fr.SiteIP before IP advances past it (so
// panic-unwind's trap-range lookup always has the faulting instruction's
// own offset, not the next one). Shared by Run's quantum loop and
// runFrameToCompletion's synchronous inline drive (defers, struct
// constructors).
func (vm *Interpreter) dispatchOne(f *fiber.Fiber, fr *fiber.Frame) (scheduler.Outcome, bool) {
	ip := fr.IP
	op, arg, next := fr.Code.Decode(ip)
	fr.SiteIP = ip
	fr.IP = next
	return vm.step(f, fr, op, arg)
}

// runFrameToCompletion drives f one instruction at a time until floor is
// again the top frame — i.e. until whatever was just pushed atop floor
// (and anything it itself pushed) has fully returned. Used anywhere the
// spec describes a call as happening synchronously "inside" the current
// frame: deferred calls draining on RET/unwind, and a struct's `init`
// method running during MKSTRUCT-adjacent construction.
func (vm *Interpreter) runFrameToCompletion(f *fiber.Fiber, floor *fiber.Frame) {
	for {
		top := f.Top()
		if top == nil || top == floor {
			return
		}
		if top.Native() != nil {
			vm.runNative(f, top)
			continue
		}
		outcome, stop := vm.dispatchOne(f, top)
		if stop && outcome == scheduler.BlockedOutcome {
			// The synchronous callee suspended on I/O/sync/await; this
			// simplified inline-drive helper cannot yield control back
			// to the scheduler mid-defer, so it gives up here rather
			// than spinning. Left as a known limitation (see DESIGN.md).
			return
		}
	}
}

// runNative invokes a native frame's Go callable synchronously and
// pops it, pushing the result onto the caller's eval stack. Native
// frames never themselves decode bytecode (PushNativeFrame's
// two-instruction stub exists only so CALL/RET bookkeeping stays
// uniform; the interpreter short-circuits it here instead of stepping
// through the stub's CALL then RET).
func (vm *Interpreter) runNative(f *fiber.Fiber, fr *fiber.Frame) {
	result, err := fr.Native()(f, fr.Locals)
	f.PopFrame()
	caller := f.Top()
	if err != nil {
		vm.raise(f, errToValue(err))
		return
	}
	if result == nil {
		result = object.Nil
	}
	if caller != nil {
		caller.Push(result)
	}
}

func errToValue(err error) object.Value {
	if le, ok := err.(*lumenerr.Error); ok {
		return &object.NewStr(le.Error()).Header
	}
	return &object.NewStr(err.Error()).Header
}

// step decodes and executes a single instruction already pointed past
// by fr.IP, returning (outcome, true) when Run must stop immediately
// (completion, yield, block or an unrecoverable dispatch error) or
// (_, false) to keep ticking.
func (vm *Interpreter) step(f *fiber.Fiber, fr *fiber.Frame, op bytecode.OpCode, arg uint32) (scheduler.Outcome, bool) {
	switch {
	case op <= bytecode.EQST:
		vm.execArith(f, fr, op, arg)
	case op <= bytecode.POS:
		vm.execLogical(f, fr, op)
	case op <= bytecode.LDMETH:
		vm.execVar(f, fr, op, arg)
	case op <= bytecode.JNN:
		vm.execJump(f, fr, op, arg)
	case op <= bytecode.MKTRAIT:
		vm.execMake(f, fr, op, arg)
	case op == bytecode.LDITER || op == bytecode.NXT:
		vm.execIter(f, fr, op, arg)
	default:
		return vm.execControl(f, fr, op, arg)
	}
	return vm.drainPanic(f)
}

// execControl handles the call-protocol, safety and stack-manipulation
// opcodes, the ones that can themselves decide Run should stop (RET
// completing the fiber, YLD/AWAIT suspending it).
func (vm *Interpreter) execControl(f *fiber.Fiber, fr *fiber.Frame, op bytecode.OpCode, arg uint32) (scheduler.Outcome, bool) {
	switch op {
	case bytecode.CALL:
		vm.execCall(f, fr, arg)
	case bytecode.DFR:
		vm.execDefer(f, fr, arg)
	case bytecode.SPW:
		vm.execSpawn(f, fr, arg)
	case bytecode.YLD:
		return vm.execYield(f, fr)
	case bytecode.AWAIT:
		return vm.execAwait(f, fr)
	case bytecode.RET:
		return vm.execReturn(f, fr)
	case bytecode.SYNC:
		vm.execSync(f, fr, arg)
	case bytecode.UNSYNC:
		vm.execUnsync(fr)
	case bytecode.TRAP:
		vm.execTrap(fr, arg)
	case bytecode.PANIC:
		vm.raise(f, fr.Pop())
	case bytecode.DUP:
		fr.Push(fr.Peek())
	case bytecode.POP:
		release(fr.Pop())
	case bytecode.POPC:
		vm.execPopCount(fr, arg)
	case bytecode.POPGT:
		vm.execPopGreaterThan(fr, arg)
	case bytecode.PSHC:
		fr.Push(fr.Code.Statics[arg].(object.Value))
	case bytecode.PSHN:
		fr.Push(object.Nil)
	case bytecode.UNPACK:
		vm.execUnpack(f, fr, arg)
	case bytecode.LDCONST:
		fr.Push(fr.Code.Statics[arg].(object.Value))
	default:
		rtlog.Warnf("vm: unhandled opcode %d", op)
	}
	// CALL (an uncallable value), SYNC (a nil value) and PANIC itself can
	// all raise here; drain the same way every other opcode group's tail
	// call to step does, so the trap search runs while fr.SiteIP still
	// names this instruction. YLD/AWAIT/RET return directly from the
	// switch above, draining on their own paths, and never reach this line.
	return vm.drainPanic(f)
}

// drainPanic checks whether the instruction just executed raised a
// panic on f and, if so, starts unwinding fr's frame chain in search of
// a TRAP handler. Every non-control opcode funnels through here so a
// TypeError from, say, ADD on incompatible operands propagates exactly
// like an explicit PANIC.
func (vm *Interpreter) drainPanic(f *fiber.Fiber) (scheduler.Outcome, bool) {
	if f.CurrentPanic() == nil {
		return 0, false
	}
	return vm.unwind(f)
}

// retain/release mirror the hybrid RC model's bookkeeping obligation at
// every variable store and container mutation site (spec §9): retain
// before a slot starts holding a new reference, release when it stops.
// Because every concrete value here is Go-heap-backed rather than
// arena-backed, DecStrong's mustFree signal has no separate free step
// to drive (the Go runtime's own collector reclaims the memory once no
// Go-level pointer survives); RC still exists to drive
// internal/gc's cycle-detection bookkeeping and Header.StrongCount
// diagnostics faithfully.
func retain(v object.Value) {
	if v != nil {
		v.RC.IncStrong()
	}
}

func release(v object.Value) {
	if v != nil {
		v.RC.DecStrong()
	}
}

// track opts a freshly constructed container into cycle collection,
// the step every MKxxx opcode needs after calling one of
// internal/object's NewXxx constructors (which mark the header tracked
// but cannot themselves reach the gc package without an import cycle).
func (vm *Interpreter) track(h object.Value) {
	if vm.gc != nil && h != nil && h.IsTracked() {
		vm.gc.Track(h)
	}
}
