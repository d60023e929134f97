package syncx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testWaiter struct {
	next   Waiter
	ticket uint64
	name   string
}

func (w *testWaiter) NotifyNext() Waiter     { return w.next }
func (w *testWaiter) SetNotifyNext(n Waiter) { w.next = n }
func (w *testWaiter) Ticket() uint64         { return w.ticket }
func (w *testWaiter) SetTicket(t uint64)     { w.ticket = t }

func TestTicketOrderFIFO(t *testing.T) {
	var q TicketQueue
	a := &testWaiter{name: "a"}
	b := &testWaiter{name: "b"}
	c := &testWaiter{name: "c"}

	q.GetTicket(a)
	q.GetTicket(b)
	q.GetTicket(c)

	first := q.Notify()
	require.Same(t, Waiter(a), first)
	second := q.Notify()
	require.Same(t, Waiter(b), second)
	third := q.Notify()
	require.Same(t, Waiter(c), third)
}

func TestNotifyAllDrainsAndBumpsNext(t *testing.T) {
	var q TicketQueue
	a := &testWaiter{}
	b := &testWaiter{}
	q.GetTicket(a)
	q.GetTicket(b)

	woken := q.NotifyAll()
	require.Len(t, woken, 2)
	require.Equal(t, 0, q.Len())
	require.True(t, q.IsTicketExpired(a.Ticket()))
	require.True(t, q.IsTicketExpired(b.Ticket()))
}

func TestIsTicketExpiredConsumesExactMatch(t *testing.T) {
	var q TicketQueue
	w := &testWaiter{}
	ticket := q.GetTicket(w)
	require.True(t, q.IsTicketExpired(ticket))
	require.True(t, q.IsTicketExpired(ticket)) // already consumed, ticket < next now
}

func TestRSMutexRecursiveLock(t *testing.T) {
	var m RSMutex
	m.Lock(1)
	m.Lock(1) // re-entrant, same identity
	require.True(t, m.OwnedBy(1))
	m.Unlock()
	require.True(t, m.OwnedBy(1))
	m.Unlock()
	require.False(t, m.OwnedBy(1))
}

func TestRSMutexTryLockContention(t *testing.T) {
	var m RSMutex
	require.True(t, m.TryLock(1))
	require.False(t, m.TryLock(2))
	require.True(t, m.TryLock(1)) // same owner recurses
	m.Unlock()
	m.Unlock()
}
