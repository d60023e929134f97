package syncx

import "sync"

// Waiter is the minimal shape a queued fiber must satisfy: notify queues
// store waiters through an intrusive singly-linked "notify" pointer
// rather than allocating separate queue nodes, the way Argon's
// `ArRoutineNotifyQueue` chains `ArRoutine` values directly
// (original_source/src/vm/sync/ticketqueue.h).
type Waiter interface {
	// NotifyNext returns/sets the intrusive link used while queued.
	NotifyNext() Waiter
	SetNotifyNext(Waiter)
	// Ticket returns/sets the ticket this waiter was issued.
	Ticket() uint64
	SetTicket(uint64)
}

// TicketQueue is the FIFO notify queue of spec component C5: a waiter
// fetches a monotonically increasing ticket; Notify/NotifyAll wake
// waiters strictly in ticket order.
type TicketQueue struct {
	mu         sync.Mutex
	head, tail Waiter
	next       uint64 // next ticket to notify
	wait       uint64 // next ticket to hand out
}

// GetTicket hands out the next ticket and enqueues w to wait for it.
func (q *TicketQueue) GetTicket(w Waiter) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	t := q.wait
	q.wait++
	w.SetTicket(t)
	w.SetNotifyNext(nil)
	if q.tail == nil {
		q.head, q.tail = w, w
	} else {
		q.tail.SetNotifyNext(w)
		q.tail = w
	}
	return t
}

// IsTicketExpired reports whether ticket has already been (or is exactly
// now being) notified, consuming the notification in the latter case —
// mirroring Argon's `IsTicketExpired`, which increments next_ when the
// ticket matches exactly so the waiter can skip blocking altogether.
func (q *TicketQueue) IsTicketExpired(ticket uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if ticket == q.next {
		q.next++
		return true
	}
	return ticket < q.next
}

// Notify wakes the single waiter whose ticket matches next, in FIFO
// order, and returns it (nil if the queue is empty).
func (q *TicketQueue) Notify() Waiter {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == nil {
		q.next++
		return nil
	}
	w := q.head
	q.head = w.NotifyNext()
	if q.head == nil {
		q.tail = nil
	}
	w.SetNotifyNext(nil)
	q.next++
	return w
}

// NotifyAll drains every waiter currently queued and bumps next past
// wait, so any ticket already handed out is considered expired.
func (q *TicketQueue) NotifyAll() []Waiter {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []Waiter
	for w := q.head; w != nil; {
		next := w.NotifyNext()
		w.SetNotifyNext(nil)
		out = append(out, w)
		w = next
	}
	q.head, q.tail = nil, nil
	if q.wait > q.next {
		q.next = q.wait
	}
	return out
}

// Len reports the number of waiters currently queued (diagnostics only).
func (q *TicketQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for w := q.head; w != nil; w = w.NotifyNext() {
		n++
	}
	return n
}
