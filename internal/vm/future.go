package vm

import (
	"github.com/lumen-lang/lumen/internal/fiber"
	"github.com/lumen-lang/lumen/internal/lumenerr"
	"github.com/lumen-lang/lumen/internal/object"
	"github.com/lumen-lang/lumen/internal/scheduler"
	"github.com/lumen-lang/lumen/internal/syncx"
)

// futureObj is the runtime value AWAIT operates on: a thin, non-GC-tracked
// wrapper around a fiber.Future, following the same vm-local
// Header-embedding convention as iterator in iter.go (a value kind that
// never leaves this package's opcode handlers).
type futureObj struct {
	object.Header
	fut *fiber.Future
}

var futureType = &object.TypeDescriptor{
	Name: "Future",
	Repr: func(o *object.Header) string { return "<future>" },
}

func asFutureObj(h object.Value) *futureObj { return (*futureObj)(ptr(h)) }

func isFuture(v object.Value) (*futureObj, bool) {
	if v == nil || v.Type != futureType {
		return nil, false
	}
	return asFutureObj(v), true
}

func (vm *Interpreter) newFutureValue(fut *fiber.Future) object.Value {
	fo := &futureObj{fut: fut}
	fo.Init(futureType)
	vm.track(&fo.Header)
	return &fo.Header
}

// notifiable lets a non-fiber waiter observe a future's resolution
// without registering with the scheduler at all — the root lumen
// package's top-level Eval blocks this way rather than as a real fiber.
type notifiable interface{ Notify() }

// wakeAll reschedules every fiber a TicketQueue/Future handed back from
// NotifyAll/Resolve, and notifies any plain (non-fiber) waiter directly.
func (vm *Interpreter) wakeAll(waiters []syncx.Waiter) {
	for _, w := range waiters {
		if fb, ok := w.(*fiber.Fiber); ok {
			if vm.sched != nil {
				vm.sched.Wake(fb)
			}
			continue
		}
		if n, ok := w.(notifiable); ok {
			n.Notify()
		}
	}
}

func panicToErr(pr *fiber.PanicRecord) error {
	if pr == nil {
		return nil
	}
	msg := "panic"
	if pr.Value != nil {
		msg = pr.Value.Repr()
	}
	return lumenerr.New(lumenerr.Runtime, "%s", msg)
}

// execAwait implements AWAIT (spec §4.11): block the current fiber on
// an unresolved future's notify queue, or push its result immediately
// if it has already settled.
func (vm *Interpreter) execAwait(f *fiber.Fiber, fr *fiber.Frame) (scheduler.Outcome, bool) {
	v := fr.Pop()
	fo, ok := isFuture(v)
	if !ok {
		vm.raise(f, typeErrorValue("await requires a future"))
		return vm.drainPanic(f)
	}

	if val, err, done := tryFutureResult(fo); done {
		if err != nil {
			vm.raise(f, errToValue(err))
			return vm.drainPanic(f)
		}
		fr.Push(val)
		return 0, false
	}

	if _, enqueued := fo.fut.Wait(f); !enqueued {
		// Resolved between the Done() check above and Wait: read the
		// now-settled result directly instead of blocking.
		val, err, _ := tryFutureResult(fo)
		if err != nil {
			vm.raise(f, errToValue(err))
			return vm.drainPanic(f)
		}
		fr.Push(val)
		return 0, false
	}

	// Blocked: re-push the future so AWAIT re-evaluates it from
	// scratch on resume, and rewind IP to AWAIT's own site so the
	// blocked-resumable fiber re-executes this instruction rather than
	// the one after it (spec §4.6 BLOCKED_SUSPENDED).
	fr.Push(v)
	fr.IP = fr.SiteIP
	f.SetStatus(fiber.BlockedSuspended)
	return scheduler.BlockedOutcome, true
}

func tryFutureResult(fo *futureObj) (object.Value, error, bool) {
	if !fo.fut.Done() {
		return nil, nil, false
	}
	val, err := fo.fut.Result()
	if val == nil {
		val = object.Nil
	}
	return val, err, true
}
