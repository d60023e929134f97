package rc

import (
	"sync"
	"sync/atomic"
)

// registry keeps every live side table reachable through an ordinary Go
// pointer, so the state word only ever needs to carry a small slot index
// rather than a raw pointer bit-packed next to the tag bit — avoiding any
// reliance on uintptr round-tripping through a GC'd heap pointer.
//
// slots is published through an atomic.Pointer so slotTable — called on
// every steady-state IncStrong/DecStrong/IncWeak/DecWeak/GetObject once an
// object has upgraded — is a single atomic load plus an index, with no
// lock taken at all (spec §4.2: the RC word stays lock-free). mu instead
// guards only the rare writers, allocSlot and releaseSlot, which run once
// per inline→side-table upgrade or side-table free, never on the hot
// Inc/Dec path: each publishes a freshly copied slice so readers that
// loaded the prior version keep seeing a consistent, never-mutated-in-
// place snapshot.
var registry = struct {
	mu    sync.Mutex // guards allocSlot/releaseSlot and free; never taken by slotTable
	slots atomic.Pointer[[]*sideTable]
	free  []uint32
}{}

func loadSlots() []*sideTable {
	if p := registry.slots.Load(); p != nil {
		return *p
	}
	return nil
}

// allocSlot reserves a registry slot for st and returns its index. Runs
// only on the inline→side-table upgrade path, never in steady state.
func allocSlot(st *sideTable) uint32 {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	cur := loadSlots()
	if n := len(registry.free); n > 0 {
		idx := registry.free[n-1]
		registry.free = registry.free[:n-1]
		next := append([]*sideTable(nil), cur...)
		next[idx] = st
		registry.slots.Store(&next)
		return idx
	}
	next := append(append([]*sideTable(nil), cur...), st)
	registry.slots.Store(&next)
	return uint32(len(next) - 1)
}

// slotTable resolves idx to its side table. Lock-free: one atomic load of
// the current slots snapshot, then a plain index into it.
func slotTable(idx uint32) *sideTable {
	return loadSlots()[idx]
}

// releaseSlot frees idx for reuse. Runs only when a side table itself is
// being freed (strong and weak both reached zero), never in steady state.
func releaseSlot(idx uint32) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	next := append([]*sideTable(nil), loadSlots()...)
	next[idx] = nil
	registry.slots.Store(&next)
	registry.free = append(registry.free, idx)
}

func newSideTable() *sideTable { return &sideTable{slot: invalidSlot} }

func freeSideTable(st *sideTable) {
	if st.slot != invalidSlot {
		releaseSlot(st.slot)
	}
	st.owner = nil
}

const invalidSlot = ^uint32(0)

func bitsFromSlot(idx uint32) uint64 { return uint64(idx) << 1 }

func slotFromBits(bits uint64) uint32 { return uint32(bits >> 1) }
