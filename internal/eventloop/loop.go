// Package eventloop implements spec component C7: a single-dispatcher
// I/O and timer event loop. The platform-specific readiness backend
// (epoll/kqueue on unix, IOCP on windows) lives behind the poller
// interface in platform-tagged files; this file holds the
// platform-independent dispatch cycle, timer heap and event pool.
package eventloop

import (
	"container/heap"
	"sync"
	"time"
)

// kMaxFreeEvents bounds the per-loop Event free-list (spec §4.7).
const kMaxFreeEvents = 256

// defaultTick is the poll timeout clip spec §4.7 step 3 describes as
// "~24ms" when no timer is nearer.
const defaultTick = 24 * time.Millisecond

// readyFD is one descriptor the poller reports as ready, alongside
// which directions became ready.
type readyFD struct {
	fd       int
	readable bool
	writable bool
}

// poller is the platform-specific readiness/completion backend. Real
// implementations live in loop_linux.go (epoll), loop_bsd.go (kqueue)
// and loop_windows.go (IOCP); tests inject a fake.
type poller interface {
	// Register arms fd for the given direction.
	Register(fd int, dir Direction) error
	// Deregister removes every registration for fd.
	Deregister(fd int) error
	// Wait blocks up to timeout for at least one ready descriptor,
	// returning an empty slice on timeout.
	Wait(timeout time.Duration) ([]readyFD, error)
	Close() error
}

// descQueue is the per-descriptor event queue (spec §4.7): in-ready and
// out-ready waiters are tracked as separate singly-linked lists.
type descQueue struct {
	in, out *Event
}

// Loop is spec component C7's single dispatcher. Dispatch runs on
// whichever goroutine calls Run; registrations and cancellations may
// come from any other goroutine.
type Loop struct {
	backend poller

	mu      sync.Mutex
	cond    *sync.Cond
	descs   map[int]*descQueue
	timers  timerHeap
	nextID  uint64
	free    []*Event
	stopped bool
}

func New(backend poller) *Loop {
	l := &Loop{
		backend: backend,
		descs:   make(map[int]*descQueue),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *Loop) allocEvent() *Event {
	if n := len(l.free); n > 0 {
		ev := l.free[n-1]
		l.free = l.free[:n-1]
		ev.reset()
		return ev
	}
	return &Event{}
}

func (l *Loop) releaseEvent(ev *Event) {
	if ev.pooled {
		return
	}
	ev.pooled = true
	if len(l.free) < kMaxFreeEvents {
		l.free = append(l.free, ev)
	}
}

func (l *Loop) enqueue(dq *descQueue, ev *Event) {
	if ev.Dir == Out {
		ev.next = dq.out
		dq.out = ev
	} else {
		ev.next = dq.in
		dq.in = ev
	}
}

// RegisterIO arms fd for dir, invoking cb on readiness, failure, or — if
// timeout > 0 — on expiry first, whichever comes first (spec §4.7's
// raced event+timer waiter).
func (l *Loop) RegisterIO(fd int, dir Direction, timeout time.Duration, cb Callback) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := l.allocEvent()
	ev.FD = fd
	ev.Dir = dir
	ev.Callback = cb
	ev.refs = 1

	dq, ok := l.descs[fd]
	if !ok {
		dq = &descQueue{}
		l.descs[fd] = dq
		if err := l.backend.Register(fd, dir); err != nil {
			l.releaseEvent(ev)
			delete(l.descs, fd)
			return err
		}
	}
	l.enqueue(dq, ev)

	if timeout > 0 {
		ev.refs = 2
		ev.timer = l.scheduleLocked(timeout, func() { l.fireTimeout(ev) })
	}

	l.cond.Signal()
	return nil
}

// RegisterTimer arms a pure timeout with no associated I/O wait.
func (l *Loop) RegisterTimer(after time.Duration, cb func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scheduleLocked(after, cb)
	l.cond.Signal()
}

func (l *Loop) scheduleLocked(after time.Duration, fire func()) *timer {
	l.nextID++
	t := &timer{
		deadline: time.Now().Add(after).UnixNano(),
		id:       l.nextID,
		fire:     fire,
	}
	heap.Push(&l.timers, t)
	return t
}

// fireTimeout runs when ev's attached timer wins the race against I/O
// readiness; it marks ev completed and invokes its callback with
// timedOut=true.
func (l *Loop) fireTimeout(ev *Event) {
	if !ev.completed {
		ev.completed = true
		ev.Callback(ev, true)
	}
	if ev.release() {
		l.releaseEvent(ev)
	}
}

// Run executes the dispatch cycle of spec §4.7 until Stop is called.
func (l *Loop) Run() {
	for {
		l.mu.Lock()
		if l.stopped {
			l.mu.Unlock()
			return
		}
		for len(l.descs) == 0 && len(l.timers) == 0 {
			l.cond.Wait()
			if l.stopped {
				l.mu.Unlock()
				return
			}
		}

		timeout := defaultTick
		if len(l.timers) > 0 {
			until := time.Until(time.Unix(0, l.timers[0].deadline))
			if until < 0 {
				until = 0
			}
			if until < timeout {
				timeout = until
			}
		}
		l.mu.Unlock()

		ready, _ := l.backend.Wait(timeout)

		l.mu.Lock()
		for _, r := range ready {
			l.dispatchReadyLocked(r)
		}
		l.fireExpiredTimersLocked()
		l.mu.Unlock()
	}
}

// dispatchReadyLocked drains the ready directions' waiter lists for fd,
// invoking each callback in turn (spec §4.7 step 4 readiness model).
func (l *Loop) dispatchReadyLocked(r readyFD) {
	dq, ok := l.descs[r.fd]
	if !ok {
		return
	}
	if r.readable {
		dq.in = l.drainLocked(dq.in)
	}
	if r.writable {
		dq.out = l.drainLocked(dq.out)
	}
	if dq.in == nil && dq.out == nil {
		delete(l.descs, r.fd)
		_ = l.backend.Deregister(r.fd)
	}
}

// drainLocked invokes every waiter on a direction's list and returns the
// new head: nil for every event whose callback reported Success or
// Failure, or a rebuilt list containing only the Retry survivors.
func (l *Loop) drainLocked(head *Event) *Event {
	var keep *Event
	for ev := head; ev != nil; {
		next := ev.next
		if ev.completed {
			// The event's attached timer already fired and handled
			// the callback; this side just drops its reference.
			if ev.release() {
				l.releaseEvent(ev)
			}
			ev = next
			continue
		}

		if ev.Callback(ev, false) == Retry {
			ev.next = keep
			keep = ev
			ev = next
			continue
		}

		ev.completed = true
		if ev.release() {
			l.releaseEvent(ev)
		}
		ev = next
	}
	return keep
}

// fireExpiredTimersLocked wakes every timer whose deadline has passed,
// re-inserting none (the heap already removed them) per spec §4.7 step 5.
func (l *Loop) fireExpiredTimersLocked() {
	now := time.Now().UnixNano()
	for len(l.timers) > 0 && l.timers[0].deadline <= now {
		t := heap.Pop(&l.timers).(*timer)
		if !t.cancelled {
			t.fire()
		}
	}
}

// Stop terminates the dispatch loop at its next wake-up.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.cond.Broadcast()
	l.mu.Unlock()
	_ = l.backend.Close()
}
