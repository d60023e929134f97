package eventloop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory poller stand-in: tests push readyFD
// batches onto a channel and Wait drains one batch per call, letting
// the dispatch-cycle logic in loop.go be exercised without a real OS
// readiness primitive.
type fakeBackend struct {
	mu         sync.Mutex
	registered map[int]Direction
	batches    chan []readyFD
	closed     bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		registered: make(map[int]Direction),
		batches:    make(chan []readyFD, 16),
	}
}

func (b *fakeBackend) Register(fd int, dir Direction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registered[fd] = dir
	return nil
}

func (b *fakeBackend) Deregister(fd int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.registered, fd)
	return nil
}

func (b *fakeBackend) push(batch []readyFD) { b.batches <- batch }

func (b *fakeBackend) Wait(timeout time.Duration) ([]readyFD, error) {
	select {
	case batch := <-b.batches:
		return batch, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func TestRegisterIOFiresCallbackOnReadiness(t *testing.T) {
	backend := newFakeBackend()
	l := New(backend)
	go l.Run()
	defer l.Stop()

	done := make(chan struct{})
	require.NoError(t, l.RegisterIO(7, In, 0, func(ev *Event, timedOut bool) CallbackResult {
		require.False(t, timedOut)
		require.Equal(t, 7, ev.FD)
		close(done)
		return Success
	}))

	backend.push([]readyFD{{fd: 7, readable: true}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
}

func TestTimeoutFiresWhenIONeverArrives(t *testing.T) {
	backend := newFakeBackend()
	l := New(backend)
	go l.Run()
	defer l.Stop()

	done := make(chan bool, 1)
	require.NoError(t, l.RegisterIO(9, In, 10*time.Millisecond, func(ev *Event, timedOut bool) CallbackResult {
		done <- timedOut
		return Success
	}))

	select {
	case timedOut := <-done:
		require.True(t, timedOut)
	case <-time.After(time.Second):
		t.Fatal("timeout callback never fired")
	}
}

func TestRetryKeepsEventRegistered(t *testing.T) {
	backend := newFakeBackend()
	l := New(backend)
	go l.Run()
	defer l.Stop()

	var calls int
	done := make(chan struct{})
	require.NoError(t, l.RegisterIO(3, In, 0, func(ev *Event, timedOut bool) CallbackResult {
		calls++
		if calls < 2 {
			return Retry
		}
		close(done)
		return Success
	}))

	backend.push([]readyFD{{fd: 3, readable: true}})
	backend.push([]readyFD{{fd: 3, readable: true}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second readiness never retried through")
	}
	require.Equal(t, 2, calls)
}

func TestTimerHeapOrdersByDeadlineThenID(t *testing.T) {
	l := New(newFakeBackend())
	var fired []int
	var mu sync.Mutex

	l.RegisterTimer(30*time.Millisecond, func() { mu.Lock(); fired = append(fired, 3); mu.Unlock() })
	l.RegisterTimer(10*time.Millisecond, func() { mu.Lock(); fired = append(fired, 1); mu.Unlock() })
	l.RegisterTimer(20*time.Millisecond, func() { mu.Lock(); fired = append(fired, 2); mu.Unlock() })

	go l.Run()
	defer l.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3}, fired)
}
