// Package object defines the uniform object header every Lumen runtime
// value carries (spec §3 "Object header"): a type descriptor pointer, a
// reference-count word, and optional GC linkage.
package object

import (
	"sync"

	"github.com/lumen-lang/lumen/internal/rc"
)

// TypeDescriptor table-drives representation, equality, hashing,
// iteration and arithmetic for every value of a given type, the way
// spec §3 requires: "all table-driven via the type descriptor."
type TypeDescriptor struct {
	Name string

	// Tracer enumerates o's outgoing references to other objects by
	// invoking visit for each one tracked by the GC. Types that can
	// never hold references to other tracked objects leave this nil.
	Tracer func(o *Header, visit func(*Header))

	Repr func(o *Header) string
	Hash func(o *Header) uint64
	Eq   func(a, b *Header) bool

	// Iter, when non-nil, returns the next element and ok=false once
	// exhausted; used by the interpreter's LDITER/NXT opcodes.
	Iter func(o *Header) (next func() (Header, bool))

	// class back-links to the ClassDescriptor this TypeDescriptor is
	// embedded in, when it was installed by NewClassDescriptor (a
	// MKSTRUCT/MKTRAIT-produced type rather than a builtin). AsStruct
	// uses it to recognise any user-defined instance uniformly.
	class *ClassDescriptor
}

// GCLink is the doubly-linked generation-list node plus the visited and
// finalized bits spec §3 describes as "embedded in the pointer's low
// bits" in the original design; Go gives those bits a home as plain
// fields instead of pointer-tag bits, since nothing here needs the space
// savings and tag bits would fight the Go GC's pointer scanning.
type GCLink struct {
	mu        sync.Mutex
	next      *Header
	prev      *Header
	gen       int
	visited   bool
	finalized bool
	tracked   bool

	// scratch holds the per-collection reference-count snapshot used by
	// the mark phase (spec §4.3 step 2 "Count").
	scratch int64
}

func (g *GCLink) Next() *Header { g.mu.Lock(); defer g.mu.Unlock(); return g.next }
func (g *GCLink) Prev() *Header { g.mu.Lock(); defer g.mu.Unlock(); return g.prev }
func (g *GCLink) SetNext(h *Header) { g.mu.Lock(); g.next = h; g.mu.Unlock() }
func (g *GCLink) SetPrev(h *Header) { g.mu.Lock(); g.prev = h; g.mu.Unlock() }

func (g *GCLink) Gen() int      { return g.gen }
func (g *GCLink) SetGen(n int)  { g.gen = n }

func (g *GCLink) Visited() bool     { return g.visited }
func (g *GCLink) SetVisited(v bool) { g.visited = v }

func (g *GCLink) Finalized() bool     { return g.finalized }
func (g *GCLink) SetFinalized(v bool) { g.finalized = v }

func (g *GCLink) Scratch() int64    { return g.scratch }
func (g *GCLink) SetScratch(v int64) { g.scratch = v }
func (g *GCLink) AddScratch(d int64) { g.scratch += d }

// Header is embedded as the first field of every concrete runtime value.
type Header struct {
	Type *TypeDescriptor
	RC   rc.Word
	GC   GCLink

	// monitor backs the sync-block protocol (C11 SYNC/UNSYNC): each
	// Header carries its own monitor, so no separate lookup table keyed
	// by address is required.
	monitor monitor
}

// Init initializes a Header in caller-supplied storage with strong count
// 1; it allocates nothing itself.
func (h *Header) Init(t *TypeDescriptor) {
	h.Type = t
	h.RC.Init()
}

func (h *Header) InitImmortal(t *TypeDescriptor) {
	h.Type = t
	h.RC.InitImmortal()
}

// MarkTracked opts h into cycle collection (spec §3: "tracking is
// opt-in at allocation time"); gc's Collector.Track calls this before
// linking h onto generation 0.
func (h *Header) MarkTracked() {
	h.RC.SetGCTracked()
	h.GC.tracked = true
}

func (h *Header) IsTracked() bool { return h.GC.tracked }

// Repr, Hash and Eq forward to the type descriptor, matching spec §3's
// "table-driven via the type descriptor" rule.
func (h *Header) Repr() string {
	if h.Type == nil || h.Type.Repr == nil {
		return "<object>"
	}
	return h.Type.Repr(h)
}

func (h *Header) Hash() uint64 {
	if h.Type == nil || h.Type.Hash == nil {
		return 0
	}
	return h.Type.Hash(h)
}

func Equal(a, b *Header) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Type != b.Type || a.Type.Eq == nil {
		return false
	}
	return a.Type.Eq(a, b)
}
