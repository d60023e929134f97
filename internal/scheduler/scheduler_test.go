package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumen-lang/lumen/internal/fiber"
)

// recordingRunner marks every fiber it sees Completed and records the
// IDs it ran, in order, for assertions.
type recordingRunner struct {
	mu  sync.Mutex
	ran []uint64
}

func (r *recordingRunner) Run(f *fiber.Fiber, quantum int) Outcome {
	r.mu.Lock()
	r.ran = append(r.ran, f.ID)
	r.mu.Unlock()
	return Completed
}

func (r *recordingRunner) seen() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.ran...)
}

func TestSpawnRunsFiberToCompletion(t *testing.T) {
	runner := &recordingRunner{}
	s := New(runner, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Spawn(fiber.New(1, 8))

	require.Eventually(t, func() bool {
		return len(runner.seen()) == 1
	}, time.Second, time.Millisecond)

	s.Stop()
}

func TestVCorePushBackRejectsAboveCapacity(t *testing.T) {
	vc := &vcore{}
	for i := 0; i < kVCoreQueueLengthMax; i++ {
		require.True(t, vc.pushBack(fiber.New(uint64(i), 4)))
	}
	require.False(t, vc.pushBack(fiber.New(999, 4)), "queue at capacity must reject")
}

func TestStealHalfRelocatesContiguousSuffixInOrder(t *testing.T) {
	vc := &vcore{}
	for i := 0; i < 8; i++ {
		vc.pushBack(fiber.New(uint64(i), 4))
	}

	stolen := vc.stealHalf()
	require.Len(t, stolen, 4)
	for i, f := range stolen {
		require.Equal(t, uint64(4+i), f.ID, "stolen suffix keeps its original order")
	}
	require.Equal(t, 4, vc.len())
}

func TestStealHalfRefusesBelowMinimum(t *testing.T) {
	vc := &vcore{}
	vc.pushBack(fiber.New(1, 4))
	require.Nil(t, vc.stealHalf())
}

func TestSchedulerDrainsQueuePreloadedOnOneVCore(t *testing.T) {
	runner := &recordingRunner{}
	s := New(runner, 2)

	// Preload every fiber directly onto vcore 0's queue; regardless of
	// whether vcore 1 ever steals from it, every fiber must still run.
	for i := 0; i < 16; i++ {
		s.vcores[0].pushBack(fiber.New(uint64(i), 4))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool {
		return len(runner.seen()) == 16
	}, time.Second, time.Millisecond)

	s.Stop()
}
