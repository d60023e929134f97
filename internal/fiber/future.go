package fiber

import "github.com/lumen-lang/lumen/internal/syncx"

// Future is the handle an async fiber (spec §4.11 AWAIT) exposes to
// whoever is waiting on its result. Waiters block on the embedded
// TicketQueue until Resolve wakes them in ticket order.
type Future struct {
	waiters syncx.TicketQueue

	done  bool
	value Value
	err   error
}

func NewFuture() *Future { return &Future{} }

// Wait enqueues w on the future's notify queue, returning the ticket to
// check with IsTicketExpired once the scheduler resumes w. If the
// future is already resolved, Wait returns ok=false so the caller can
// read Result immediately without blocking.
func (fut *Future) Wait(w syncx.Waiter) (ticket uint64, ok bool) {
	if fut.done {
		return 0, false
	}
	return fut.waiters.GetTicket(w), true
}

// Resolve stores the future's outcome and wakes every waiter
// (spec §4.11: an AWAIT blocks on the awaited future's own notify
// queue; completion wakes every blocked fiber since a value/error is
// a one-shot broadcast, not a ticket-ordered handoff of work items).
func (fut *Future) Resolve(v Value, err error) []syncx.Waiter {
	fut.done = true
	fut.value = v
	fut.err = err
	return fut.waiters.NotifyAll()
}

func (fut *Future) Done() bool { return fut.done }

func (fut *Future) Result() (Value, error) { return fut.value, fut.err }
