// Package lumen is the embedding interface (spec §6): the single entry
// point a host program links against to compile and run Lumen code,
// grounded on the teacher's own top-level Interpreter/Options/New/Eval
// shape (interp/interp.go) but re-pointed at Lumen's own pipeline —
// internal/compiler/lower feeding internal/vm.Interpreter, driven by
// internal/scheduler across a pool of fibers instead of yaegi's
// reflection-walking CFG executor.
package lumen

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/lumen-lang/lumen/internal/bytecode"
	"github.com/lumen-lang/lumen/internal/compiler/asm"
	"github.com/lumen-lang/lumen/internal/compiler/ast"
	"github.com/lumen-lang/lumen/internal/compiler/lower"
	"github.com/lumen-lang/lumen/internal/config"
	"github.com/lumen-lang/lumen/internal/fiber"
	"github.com/lumen-lang/lumen/internal/gc"
	"github.com/lumen-lang/lumen/internal/lumenerr"
	"github.com/lumen-lang/lumen/internal/object"
	"github.com/lumen-lang/lumen/internal/rtlog"
	"github.com/lumen-lang/lumen/internal/scheduler"
	"github.com/lumen-lang/lumen/internal/syncx"
	"github.com/lumen-lang/lumen/internal/vm"
)

// defaultGCThresholds sizes generations 0 through 2's allocation-count
// trigger (spec §4.3); no particular value is mandated, so this follows
// the well-worn CPython-style "young generation fills fast, old
// generations rarely" ratio.
var defaultGCThresholds = [3]int{700, 10, 10}

// Result is what Eval hands back: the value a module's top level
// produced, or the error/panic that ended it instead.
type Result struct {
	Value object.Value
	Err   error
}

// Runtime is the embedding interface's concrete handle (spec §6):
// one per embedded Lumen instance, carrying its own GC, scheduler and
// global namespace. The zero value is not usable; build one with New
// and call Initialize before compiling or running anything.
type Runtime struct {
	cfg     *config.Config
	gc      *gc.Collector
	vm      *vm.Interpreter
	sched   *scheduler.Scheduler
	globals *fiber.Namespace

	schedCancel context.CancelFunc
	schedDone   chan error

	nextFiberID atomic.Uint64

	mu        sync.Mutex
	lastPanic *fiber.PanicRecord
}

func New() *Runtime { return &Runtime{} }

// Initialize wires up the collector, interpreter and scheduler from cfg
// and starts the scheduler's worker pool in the background, mirroring
// the teacher's New(Options) constructor split into a separate
// lifecycle step since spec §6 names Initialize/Shutdown/Cleanup as
// distinct calls rather than folding startup into construction.
func (rt *Runtime) Initialize(cfg *config.Config) error {
	rt.cfg = cfg
	rt.gc = gc.NewCollector(defaultGCThresholds)
	rt.vm = vm.New(rt.gc)
	rt.sched = scheduler.New(rt.vm, cfg.MaxVirtualCores)
	rt.vm.AttachScheduler(rt.sched)
	rt.globals = fiber.NewNamespace()

	ctx, cancel := context.WithCancel(context.Background())
	rt.schedCancel = cancel
	rt.schedDone = make(chan error, 1)
	go func() { rt.schedDone <- rt.sched.Run(ctx) }()

	rtlog.Debugf("runtime initialized: %d virtual cores", cfg.MaxVirtualCores)
	return nil
}

// Shutdown stops the scheduler's worker pool and waits for every worker
// goroutine to exit. Fibers still in flight are abandoned mid-quantum;
// Shutdown does not attempt to drain them first.
func (rt *Runtime) Shutdown() {
	if rt.schedCancel == nil {
		return
	}
	rt.schedCancel()
	<-rt.schedDone
}

// Cleanup drops the runtime's remaining references (the global
// namespace, the last recorded panic) so the GC can reclaim whatever
// they still hold. Call after Shutdown; calling Cleanup without first
// shutting down the scheduler risks a worker still touching state this
// releases.
func (rt *Runtime) Cleanup() {
	rt.mu.Lock()
	rt.lastPanic = nil
	rt.mu.Unlock()
	rt.globals = fiber.NewNamespace()
}

// Globals exposes the runtime's shared module-level namespace, the
// Namespace Eval binds top-level declarations into across separate
// Compile+Eval calls (REPL-style incremental evaluation).
func (rt *Runtime) Globals() *fiber.Namespace { return rt.globals }

func (rt *Runtime) newFiber() *fiber.Fiber {
	return fiber.Acquire(rt.nextFiberID.Add(1), 0)
}

// Compile implements spec §6: "single entry point; source may be
// string, byte buffer, file handle, or pre-built token stream." The
// scanner and parser that would turn raw source text into a tree are,
// per spec §1's explicit non-goal, external collaborators outside this
// core — so here "source" is already the ast.Node a front end produced;
// Compile's own job starts at lowering that tree to bytecode.
func (rt *Runtime) Compile(filename string, source interface{}) (*bytecode.Code, error) {
	prog, ok := source.(ast.Node)
	if !ok {
		return nil, lumenerr.New(lumenerr.Syntax, "%s: Compile requires a pre-built AST (scanner/parser are external collaborators)", filename)
	}
	code, err := lower.Lower(prog, filename, asm.HARD)
	if err != nil {
		return nil, lumenerr.Wrap(lumenerr.Syntax, err, "%s: compile failed", filename)
	}
	return code, nil
}

// evalWaiter is a syncx.Waiter that isn't a fiber at all: Eval blocks
// the calling goroutine on it directly rather than parking a fiber of
// its own, since the caller here is a plain host goroutine with nothing
// for the scheduler to resume. It satisfies vm's notifiable interface
// (a Notify method) so wakeAll signals it the same way it wakes a real
// fiber, just via a channel close instead of a reschedule.
type evalWaiter struct {
	next   syncx.Waiter
	ticket uint64
	done   chan struct{}
}

func newEvalWaiter() *evalWaiter { return &evalWaiter{done: make(chan struct{})} }

func (w *evalWaiter) NotifyNext() syncx.Waiter     { return w.next }
func (w *evalWaiter) SetNotifyNext(n syncx.Waiter) { w.next = n }
func (w *evalWaiter) Ticket() uint64               { return w.ticket }
func (w *evalWaiter) SetTicket(t uint64)            { w.ticket = t }
func (w *evalWaiter) Notify()                       { close(w.done) }

// Eval implements spec §6: runs code in a fresh fiber on the scheduler
// and blocks the caller until it completes (or ctx is cancelled).
func (rt *Runtime) Eval(ctx context.Context, code *bytecode.Code, ns *fiber.Namespace) (Result, error) {
	if ns == nil {
		ns = rt.globals
	}
	nf := rt.newFiber()
	// Retained: this call keeps reading nf (its Future, its panic chain)
	// from the host goroutine after the scheduler's own worker observes
	// it complete, so the scheduler must not recycle nf into the pool —
	// doing so the instant its worker sees Completed could hand the same
	// *Fiber to a concurrent Acquire while this function is still reading
	// it. Nothing here calls Release: nf is simply left for the garbage
	// collector once this function returns, the same as every fiber did
	// before pooling existed. Fibers the pool does reclaim are the
	// internal ones (SPW/async spawns, internal/vm/call.go's newFiber)
	// whose only outside handle after completion is a decoupled
	// fiber.Future, never the *Fiber itself.
	nf.Retain()

	fut := fiber.NewFuture()
	nf.Future = fut
	nf.PushFrame(code, ns, nil)

	w := newEvalWaiter()
	if _, enqueued := fut.Wait(w); !enqueued {
		close(w.done)
	}
	rt.sched.Spawn(nf)

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-w.done:
	}

	val, err := fut.Result()
	if err != nil {
		rt.recordPanic(nf)
		return Result{Err: err}, err
	}
	return Result{Value: val}, nil
}

// EvalAsync implements spec §6: non-blocking spawn of fn, returning a
// Future the caller may await independently (from Lumen code via AWAIT,
// or from Go via Future.Result/Wait) without blocking on completion.
func (rt *Runtime) EvalAsync(ctx context.Context, fn *object.Function, args []object.Value) (*fiber.Future, error) {
	nf := rt.newFiber()
	nf.Future = fiber.NewFuture()
	rt.vm.SpawnRoot(nf, rt.globals, &fn.Header, args)
	rt.sched.Spawn(nf)
	return nf.Future, nil
}

// Spawn implements spec §6: fire-and-forget — the caller gets nothing
// back and never learns the spawned fiber's outcome.
func (rt *Runtime) Spawn(fn *object.Function, args []object.Value) {
	nf := rt.newFiber()
	rt.vm.SpawnRoot(nf, rt.globals, &fn.Header, args)
	rt.sched.Spawn(nf)
}

// Panic records v as the runtime's last unhandled error, the embedding
// counterpart to a top-level script's unhandled panic (spec §6
// Panic/GetLastError/DiscardLastPanic; grounded on the teacher's own
// Interpreter.Panic/GetOldestPanicForErr bookkeeping, simplified to a
// single slot since the embedding surface only ever needs "the most
// recent one").
func (rt *Runtime) Panic(v object.Value) {
	rt.mu.Lock()
	rt.lastPanic = &fiber.PanicRecord{Value: v}
	rt.mu.Unlock()
}

// GetLastError returns the most recently recorded panic, or nil if none
// is pending.
func (rt *Runtime) GetLastError() *fiber.PanicRecord {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.lastPanic
}

// DiscardLastPanic clears whatever GetLastError would currently return.
func (rt *Runtime) DiscardLastPanic() {
	rt.mu.Lock()
	rt.lastPanic = nil
	rt.mu.Unlock()
}

func (rt *Runtime) recordPanic(nf *fiber.Fiber) {
	if pr := nf.CurrentPanic(); pr != nil {
		rt.mu.Lock()
		rt.lastPanic = pr
		rt.mu.Unlock()
	}
}
