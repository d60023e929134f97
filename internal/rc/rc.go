// Package rc implements the hybrid inline/side-table reference counting
// word described by spec component C2: a single machine word that starts
// as an inline saturating counter and upgrades, once and irreversibly, to
// a side-table record on its first weak reference or on inline-counter
// saturation.
package rc

import "sync/atomic"

// Word is the reference-count word embedded in every object header. Its
// zero value is a non-immortal, non-tracked, empty inline counter with
// strong count zero — callers must call Init before first use so a
// freshly allocated object starts at strong count 1.
type Word struct {
	// state packs, in the inline encoding: bit0 = sideTableTag (0),
	// bit1 = gcTracked, bit2 = immortal, bits[8:40] = strong count.
	// In the side-table encoding bit0 = sideTableTag (1) and the bits
	// above it hold the side table's registry slot index (bitsFromSlot).
	state atomic.Uint64
}

const (
	sideTableTag  = uint64(1) << 0
	gcTrackedBit  = uint64(1) << 1
	immortalBit   = uint64(1) << 2
	inlineShift   = 8
	inlineMask    = uint64(0xFFFFFFFF) << inlineShift
	inlineMaxSat  = uint64(0xFFFFFFFF) // saturates at 32 bits of strong refs
)

// sideTable is the detached strong/weak counter record allocated on the
// first weak reference or on inline-counter saturation.
type sideTable struct {
	strong atomic.Int64
	weak   atomic.Int64
	owner  *Word  // back-pointer, used only for diagnostics
	slot   uint32 // this table's registry slot
}

// Init prepares a freshly allocated, non-immortal Word with strong count
// 1 and no GC tracking.
func (w *Word) Init() { w.state.Store(1 << inlineShift) }

// InitImmortal marks w as an immortal singleton (Nil, True, False and
// shared constants): all RC traffic on it becomes a no-op.
func (w *Word) InitImmortal() { w.state.Store(immortalBit) }

// SetGCTracked marks the object as tracked by the cycle collector. Valid
// only while the word is still in inline encoding. The upgrade to a side
// table does not carry the bit over; IsGCTracked instead reports every
// side-table word as tracked.
func (w *Word) SetGCTracked() {
	for {
		old := w.state.Load()
		if old&sideTableTag != 0 {
			return // side-table path tracks via the GC header directly
		}
		if w.state.CompareAndSwap(old, old|gcTrackedBit) {
			return
		}
	}
}

func (w *Word) IsGCTracked() bool {
	old := w.state.Load()
	if old&sideTableTag != 0 {
		return true // side table objects are always considered tracked-capable
	}
	return old&gcTrackedBit != 0
}

func (w *Word) IsImmortal() bool {
	return w.state.Load()&immortalBit != 0 && w.state.Load()&sideTableTag == 0
}

func tablePtr(state uint64) *sideTable {
	return slotTable(slotFromBits(state))
}

// IncStrong increments the strong count. Immortal objects no-op.
func (w *Word) IncStrong() {
	for {
		old := w.state.Load()
		if old&immortalBit != 0 && old&sideTableTag == 0 {
			return
		}
		if old&sideTableTag != 0 {
			tablePtr(old).strong.Add(1)
			return
		}
		strong := (old & inlineMask) >> inlineShift
		if strong >= inlineMaxSat {
			w.upgradeToSideTable(old)
			continue
		}
		next := (old &^ inlineMask) | ((strong + 1) << inlineShift)
		if w.state.CompareAndSwap(old, next) {
			return
		}
	}
}

// DecStrong decrements the strong count and returns true when the caller
// must free the object (strong count reached zero). On the side-table
// path, reaching zero strong also drops the table's own weak reference;
// if that reaches zero too the table itself is freed.
func (w *Word) DecStrong() (mustFree bool) {
	for {
		old := w.state.Load()
		if old&immortalBit != 0 && old&sideTableTag == 0 {
			return false
		}
		if old&sideTableTag != 0 {
			st := tablePtr(old)
			if st.strong.Add(-1) == 0 {
				if st.weak.Add(-1) == 0 {
					freeSideTable(st)
				}
				return true
			}
			return false
		}
		strong := (old & inlineMask) >> inlineShift
		if strong == 0 {
			return false // double-free guard; should not happen
		}
		next := (old &^ inlineMask) | ((strong - 1) << inlineShift)
		if w.state.CompareAndSwap(old, next) {
			return strong-1 == 0
		}
	}
}

// IncWeak forces a side-table allocation if one does not already exist,
// then atomically increments the weak counter.
func (w *Word) IncWeak() {
	for {
		old := w.state.Load()
		if old&sideTableTag != 0 {
			tablePtr(old).weak.Add(1)
			return
		}
		w.upgradeToSideTable(old)
	}
}

// DecWeak decrements the weak counter; if it reaches zero while strong is
// already zero, the side table is freed.
func (w *Word) DecWeak() {
	old := w.state.Load()
	if old&sideTableTag == 0 {
		return // no side table, nothing to do
	}
	st := tablePtr(old)
	if st.weak.Add(-1) == 0 && st.strong.Load() == 0 {
		freeSideTable(st)
	}
}

// GetObject performs a weak-reference upgrade: it CAS-increments strong
// only while strong is non-zero, returning ok=false if the object has
// already died.
func (w *Word) GetObject() (ok bool) {
	old := w.state.Load()
	if old&sideTableTag == 0 {
		return false // weak refs always force the side-table path first
	}
	st := tablePtr(old)
	for {
		cur := st.strong.Load()
		if cur == 0 {
			return false
		}
		if st.strong.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// upgradeToSideTable performs the one-way, CAS-serialised inline ->
// side-table transition, carrying over the current strong count; the
// gc-tracked bit is not kept (see IsGCTracked).
func (w *Word) upgradeToSideTable(old uint64) {
	if old&sideTableTag != 0 {
		return
	}
	strong := (old & inlineMask) >> inlineShift
	st := newSideTable()
	st.strong.Store(int64(strong))
	st.weak.Store(1)
	st.owner = w
	st.slot = allocSlot(st)
	next := bitsFromSlot(st.slot) | sideTableTag
	if !w.state.CompareAndSwap(old, next) {
		releaseSlot(st.slot) // lost the race; drop the unused slot
	}
}

func (w *Word) StrongCount() int64 {
	old := w.state.Load()
	if old&sideTableTag != 0 {
		return tablePtr(old).strong.Load()
	}
	return int64((old & inlineMask) >> inlineShift)
}
