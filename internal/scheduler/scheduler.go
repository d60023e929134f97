// Package scheduler implements spec component C6: the M:N run-queue
// scheduler that drives Fibers across a bounded pool of virtual cores.
//
// This package depends only on internal/fiber, never on internal/vm:
// the actual bytecode dispatch loop is supplied by the caller as a
// Runner, injected at construction time, so the scheduler never needs
// to import the interpreter and no import cycle can form between the
// two.
package scheduler

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/lumen-lang/lumen/internal/fiber"
)

const (
	// kVCoreQueueLengthMax bounds each virtual core's local run queue
	// (spec §4.6).
	kVCoreQueueLengthMax = 256

	// kScheduleTickBeforeCheck bounds how many instructions a fiber runs
	// before the worker re-checks for preemption (spec §4.6).
	kScheduleTickBeforeCheck = 32

	// defaultMaxVC mirrors internal/config's default virtual-core count.
	defaultMaxVC = 4

	// stealMinimum is the queue length a victim must reach before any
	// of it can be stolen (spec §4.6).
	stealMinimum = 4
)

// Outcome reports what a Runner's quantum did to the fiber it ran.
type Outcome int

const (
	// Completed means the fiber finished (returned, or is otherwise
	// done and must not be rescheduled).
	Completed Outcome = iota
	// Yielded means the fiber voluntarily yielded and should return to
	// RUNNABLE at the back of some queue.
	Yielded
	// PreemptedOutcome means the tick budget ran out mid-fiber; same
	// rescheduling as Yielded but distinguished for diagnostics.
	PreemptedOutcome
	// BlockedOutcome means the fiber enqueued itself on an external
	// wait and must NOT be rescheduled; whoever notifies it later calls
	// Scheduler.Wake.
	BlockedOutcome
)

// Runner executes up to quantum instructions of f starting from its
// current frame/instruction-pointer state and reports what happened.
// Implemented by internal/vm.Interpreter.
type Runner interface {
	Run(f *fiber.Fiber, quantum int) Outcome
}

// Scheduler owns the virtual-core worker pool and the queues that feed
// it (spec §4.6).
type Scheduler struct {
	runner Runner

	vcores []*vcore

	globalMu sync.Mutex
	global   []*fiber.Fiber
	admit    *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	parked chan struct{} // buffered signal: "a fiber became runnable"
}

// vcore is one worker's local bounded FIFO run queue.
type vcore struct {
	index int

	mu    sync.Mutex
	queue []*fiber.Fiber
}

func (vc *vcore) len() int {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return len(vc.queue)
}

// pushBack enqueues f, reporting false if the queue is already at
// kVCoreQueueLengthMax capacity (caller falls back to the global queue).
func (vc *vcore) pushBack(f *fiber.Fiber) bool {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if len(vc.queue) >= kVCoreQueueLengthMax {
		return false
	}
	vc.queue = append(vc.queue, f)
	return true
}

func (vc *vcore) popFront() *fiber.Fiber {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if len(vc.queue) == 0 {
		return nil
	}
	f := vc.queue[0]
	vc.queue = vc.queue[1:]
	return f
}

// stealHalf relocates a contiguous suffix of at least stealMinimum/2
// fibers from vc into the caller's own queue, preserving order within
// both the remainder and the stolen slice (spec §4.6: "never reorders
// items within a queue — it relocates a contiguous suffix").
func (vc *vcore) stealHalf() []*fiber.Fiber {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	n := len(vc.queue)
	if n < stealMinimum {
		return nil
	}
	half := n / 2
	stolen := append([]*fiber.Fiber(nil), vc.queue[n-half:]...)
	vc.queue = vc.queue[:n-half]
	return stolen
}

// New builds a Scheduler with maxVC virtual cores (clamped to [1,
// defaultMaxVC] when maxVC <= 0) driven by runner.
func New(runner Runner, maxVC int) *Scheduler {
	if maxVC <= 0 {
		maxVC = defaultMaxVC
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		runner: runner,
		vcores: make([]*vcore, maxVC),
		admit:  semaphore.NewWeighted(int64(maxVC * kVCoreQueueLengthMax)),
		ctx:    ctx,
		cancel: cancel,
		parked: make(chan struct{}, maxVC),
	}
	for i := range s.vcores {
		s.vcores[i] = &vcore{index: i}
	}
	return s
}

// Spawn enqueues a freshly created, Runnable fiber, preferring its
// affine virtual core (by ID, round-robin) and falling back to the
// global overflow queue when that core's queue is full.
func (s *Scheduler) Spawn(f *fiber.Fiber) {
	f.SetStatus(fiber.Runnable)
	vc := s.vcores[int(f.ID)%len(s.vcores)]
	if !vc.pushBack(f) {
		// Global queue admission is throttled by the same total
		// capacity as the local queues combined, so a burst of spawns
		// that all miss their affine core blocks instead of growing
		// the global queue without bound.
		_ = s.admit.Acquire(s.ctx, 1)
		s.globalMu.Lock()
		s.global = append(s.global, f)
		s.globalMu.Unlock()
	}
	s.wake()
}

// Wake moves a BLOCKED or BLOCKED_SUSPENDED fiber back to RUNNABLE and
// reschedules it (spec §4.6: notifier "spawns the fiber back").
func (s *Scheduler) Wake(f *fiber.Fiber) {
	s.Spawn(f)
}

func (s *Scheduler) wake() {
	select {
	case s.parked <- struct{}{}:
	default:
	}
}

// popGlobal pops the oldest fiber from the global overflow queue.
func (s *Scheduler) popGlobal() *fiber.Fiber {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()
	if len(s.global) == 0 {
		return nil
	}
	f := s.global[0]
	s.global = s.global[1:]
	s.admit.Release(1)
	return f
}

// fetch implements the spec §4.6 worker loop's source order: local
// queue, then work stealing from a sibling holding at least stealMinimum
// fibers, then the
// global queue.
func (s *Scheduler) fetch(vc *vcore) *fiber.Fiber {
	if f := vc.popFront(); f != nil {
		return f
	}
	for i := 1; i < len(s.vcores); i++ {
		victim := s.vcores[(vc.index+i)%len(s.vcores)]
		if stolen := victim.stealHalf(); len(stolen) > 0 {
			vc.mu.Lock()
			vc.queue = append(vc.queue, stolen[1:]...)
			vc.mu.Unlock()
			return stolen[0]
		}
	}
	return s.popGlobal()
}

// Run starts every virtual core's worker loop and blocks until ctx is
// done or Stop is called. runtime.LockOSThread pins each worker to a
// single OS thread, giving internal/syncx.RSMutex's thread-identity
// keying a stable identity to key on per worker (spec §9).
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, vc := range s.vcores {
		vc := vc
		g.Go(func() error {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			return s.workerLoop(gctx, vc)
		})
	}
	return g.Wait()
}

// Stop cancels the scheduler's internal context, causing every worker
// loop to exit once it next checks for work.
func (s *Scheduler) Stop() { s.cancel() }

func (s *Scheduler) workerLoop(ctx context.Context, vc *vcore) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ctx.Done():
			return nil
		default:
		}

		f := s.fetch(vc)
		if f == nil {
			select {
			case <-s.parked:
			case <-ctx.Done():
				return nil
			case <-s.ctx.Done():
				return nil
			}
			continue
		}

		f.SetStatus(fiber.Running)
		switch s.runner.Run(f, kScheduleTickBeforeCheck) {
		case Completed:
			// Nothing to reschedule. A fiber no caller retained (the
			// common case: internal spawns whose only outside handle is
			// a decoupled Future, not the Fiber itself) goes back to the
			// bounded free pool (spec §3's kFiberPoolSize) for Acquire to
			// reuse; a retained one (lumen.Runtime.Eval's own blocking
			// fiber) is left for its retainer to release once it is
			// done reading this fiber's post-completion state.
			if !f.Retained() {
				fiber.Release(f)
			}
		case Yielded, PreemptedOutcome:
			f.SetStatus(fiber.Runnable)
			s.Spawn(f)
		case BlockedOutcome:
			// status already set to Blocked/BlockedSuspended by the
			// runner before it returned; the notifier calls Wake later.
		}
	}
}

// VirtualCoreIdentity returns an identity suitable for keying a
// syncx.RSMutex: the calling worker's virtual-core index + 1 (0 stays
// reserved as "no owner").
func VirtualCoreIdentity(vc int) int64 { return int64(vc) + 1 }
