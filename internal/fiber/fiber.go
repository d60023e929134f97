// Package fiber implements spec component C4: the fiber and its frame
// stack. A Fiber is a heap-allocated, cooperatively scheduled unit of
// execution with its own bytecode stack; it carries no goroutine of its
// own — the scheduler (internal/scheduler) resumes a Fiber by calling
// into a Runner it injects, one quantum at a time.
package fiber

import (
	"sync"

	"github.com/lumen-lang/lumen/internal/object"
	"github.com/lumen-lang/lumen/internal/syncx"
)

var _ syncx.Waiter = (*Fiber)(nil)

// Value is a runtime value reference: every concrete Lumen value embeds
// object.Header as its first field, so a Header pointer is the uniform
// value representation frames and the evaluation stack traffic in.
type Value = object.Value

// defaultStackSlots sizes the fiber's own bump-allocated bytecode stack;
// spec §4.4 describes a "~1KB default" — at one pointer-sized Value per
// slot that is 128 slots.
const defaultStackSlots = 128

// kFiberPoolSize bounds the package-level free list of completed fibers
// available for reuse (spec §3 "Lifecycles": "fibers are reused through
// a bounded free pool up to kFiberPoolSize (254)").
const kFiberPoolSize = 254

var (
	poolMu   sync.Mutex
	poolFree []*Fiber
)

// Status is a fiber's scheduling state (spec §4.6).
type Status int32

const (
	Runnable Status = iota
	Running
	Blocked
	Suspended
	BlockedSuspended
)

func (s Status) String() string {
	switch s {
	case Runnable:
		return "RUNNABLE"
	case Running:
		return "RUNNING"
	case Blocked:
		return "BLOCKED"
	case Suspended:
		return "SUSPENDED"
	case BlockedSuspended:
		return "BLOCKED_SUSPENDED"
	default:
		return "UNKNOWN"
	}
}

// PanicRecord is one link in a fiber's panic chain (spec §3, §4.11 PANIC
// / TRAP): raising inside a TRAP handler (or a defer) that is itself
// unwinding chains a new record onto the one already in flight instead
// of replacing it, and marks the original Aborted.
type PanicRecord struct {
	Value     Value
	Frame     *Frame
	Recovered bool
	Aborted   bool
	Chain     *PanicRecord
}

// Fiber is spec component C4's unit of execution. It carries its own
// bytecode stack (used as a bump region by PushFrame), a frame list, a
// panic chain, and the bookkeeping the scheduler and synchronisation
// primitives need to suspend and resume it.
type Fiber struct {
	ID uint64

	status Status

	stack    []Value
	stackCur int
	stackEnd int

	top *Frame

	// reprStack records the values currently being rendered/compared
	// (PushReentering reports a value already on it). Header.Repr and the
	// type descriptors' Repr functions do not consult it.
	reprStack []Value

	panic *PanicRecord

	// Future is non-nil only for fibers spawned as async functions
	// (spec §4.11 AWAIT); it is the handle other fibers block on.
	Future *Future

	// notifyNext is the intrusive link used while this fiber is queued
	// on a syncx.TicketQueue, so queues reuse fiber storage instead of
	// allocating separate queue nodes (original_source
	// ArRoutineNotifyQueue chaining ArRoutine directly).
	notifyNext *Fiber
	ticket     uint64

	// retained is set by a caller (lumen.Runtime.Eval is the only one
	// today) that keeps reading this Fiber's fields after it completes —
	// the scheduler's own post-completion release is skipped for a
	// retained fiber, and the caller is responsible for calling Release
	// itself once done, so the pool never hands this same *Fiber to a
	// new Acquire while the retaining reader is still using it.
	retained bool
}

func New(id uint64, stackSlots int) *Fiber {
	if stackSlots <= 0 {
		stackSlots = defaultStackSlots
	}
	return &Fiber{
		ID:       id,
		status:   Runnable,
		stack:    make([]Value, stackSlots),
		stackEnd: stackSlots,
	}
}

// Acquire returns a fiber ready to run as id: either a reset one pulled
// from the shared bounded free pool, or (on a pool miss, or when the
// pooled fiber's stack is smaller than requested) a freshly allocated
// one, the same bounded-reuse scheme internal/eventloop.Loop uses for
// its own Event free list (kMaxFreeEvents).
func Acquire(id uint64, stackSlots int) *Fiber {
	if stackSlots <= 0 {
		stackSlots = defaultStackSlots
	}

	poolMu.Lock()
	for n := len(poolFree); n > 0; n = len(poolFree) {
		f := poolFree[n-1]
		poolFree[n-1] = nil
		poolFree = poolFree[:n-1]
		if cap(f.stack) < stackSlots {
			continue // too small to reuse; let it be collected
		}
		poolMu.Unlock()
		f.reset(id, stackSlots)
		return f
	}
	poolMu.Unlock()

	return New(id, stackSlots)
}

// Release returns f to the shared free pool for a future Acquire to
// reuse, once f has fully completed and the caller holds its last
// reference to it (a retained fiber must have Release called on it
// explicitly by whoever retained it; an unretained one is released by
// the scheduler as soon as it observes the fiber finish).
func Release(f *Fiber) {
	f.retained = false
	poolMu.Lock()
	defer poolMu.Unlock()
	if len(poolFree) >= kFiberPoolSize {
		return
	}
	poolFree = append(poolFree, f)
}

// Retain marks f so the scheduler will not recycle it the moment it
// completes; the caller must call Release itself once it has finished
// reading f's post-completion state (its Future's result, its panic
// chain, ...).
func (f *Fiber) Retain() { f.retained = true }

// Retained reports whether the scheduler should skip auto-releasing f
// on completion because some caller called Retain on it.
func (f *Fiber) Retained() bool { return f.retained }

// reset restores a pooled fiber to a fresh, Runnable state under a new
// id, reusing its existing stack slice when large enough.
func (f *Fiber) reset(id uint64, stackSlots int) {
	f.ID = id
	f.status = Runnable
	if cap(f.stack) < stackSlots {
		f.stack = make([]Value, stackSlots)
	} else {
		f.stack = f.stack[:stackSlots]
		for i := range f.stack {
			f.stack[i] = nil
		}
	}
	f.stackCur = 0
	f.stackEnd = stackSlots
	f.top = nil
	f.reprStack = f.reprStack[:0]
	f.panic = nil
	f.Future = nil
	f.notifyNext = nil
	f.ticket = 0
	f.retained = false
}

func (f *Fiber) Status() Status     { return f.status }
func (f *Fiber) SetStatus(s Status) { f.status = s }

func (f *Fiber) Top() *Frame { return f.top }

// NotifyNext/SetNotifyNext/Ticket/SetTicket implement syncx.Waiter,
// letting a TicketQueue enqueue a Fiber directly without a wrapper node.
func (f *Fiber) NotifyNext() syncx.Waiter {
	if f.notifyNext == nil {
		return nil
	}
	return f.notifyNext
}

func (f *Fiber) SetNotifyNext(w syncx.Waiter) {
	if w == nil {
		f.notifyNext = nil
		return
	}
	f.notifyNext = w.(*Fiber)
}

func (f *Fiber) Ticket() uint64     { return f.ticket }
func (f *Fiber) SetTicket(t uint64) { f.ticket = t }

// PushReentering marks v as currently being rendered/compared, returning
// false if v is already on the stack (a cycle).
func (f *Fiber) PushReentering(v Value) bool {
	for _, seen := range f.reprStack {
		if seen == v {
			return false
		}
	}
	f.reprStack = append(f.reprStack, v)
	return true
}

func (f *Fiber) PopReentering() {
	f.reprStack = f.reprStack[:len(f.reprStack)-1]
}

// Panic pushes a new panic record onto the chain, per spec's "aborted
// panic chaining": a panic raised while another is already unwinding
// (not yet recovered) marks that prior record Aborted and links onto it
// rather than discarding it.
func (f *Fiber) Panic(v Value, origin *Frame) {
	if f.panic != nil && !f.panic.Recovered {
		f.panic.Aborted = true
	}
	f.panic = &PanicRecord{Value: v, Frame: origin, Chain: f.panic}
}

func (f *Fiber) CurrentPanic() *PanicRecord { return f.panic }

// RecoverPanic pops the current panic record (TRAP caught it).
func (f *Fiber) RecoverPanic() *PanicRecord {
	p := f.panic
	if p != nil {
		f.panic = p.Chain
	}
	return p
}
