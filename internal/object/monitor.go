package object

import "github.com/lumen-lang/lumen/internal/syncx"

// monitor backs the SYNC/UNSYNC sync-block protocol (spec §4.11): every
// container header carries its own recursive shared lock, keyed
// implicitly by the header's own address, so no separate monitor table
// keyed on raw pointers is needed — the header already is that key.
type monitor struct {
	rsm syncx.RSMutex
}

// SyncKey is pushed onto a frame's sync-keys area by SYNC and popped by
// UNSYNC; it identifies which header's monitor to release without
// needing to re-resolve the object.
type SyncKey struct {
	Header *Header
}

// Sync acquires h's monitor exclusively on behalf of the given fiber
// identity (re-entrant per spec §4.11: "re-entering a sync block on the
// same object by the same fiber is permitted").
func (h *Header) Sync(identity int64) SyncKey {
	h.monitor.rsm.Lock(identity)
	return SyncKey{Header: h}
}

// TrySync is the non-blocking variant of Sync: it reports false instead
// of waiting when another identity holds the monitor. The interpreter's
// SYNC opcode does not use it.
func (h *Header) TrySync(identity int64) (SyncKey, bool) {
	if h.monitor.rsm.TryLock(identity) {
		return SyncKey{Header: h}, true
	}
	return SyncKey{}, false
}

// Unsync releases a previously acquired monitor. Cross-fiber unlock is
// permitted per spec §9: the caller need not be the same goroutine that
// called Sync.
func (k SyncKey) Unsync() {
	if k.Header != nil {
		k.Header.monitor.rsm.Unlock()
	}
}
