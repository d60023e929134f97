package object

import "sync/atomic"

// GeneratorState is the per-Function continuation a generator call
// (spec §4.11 "Generators") attaches itself to on first invocation. It
// lives here rather than in internal/vm so Function can hold it
// directly, but its Saved field is kept as an opaque interface{}
// (vm stores a *fiber.Frame there) to avoid an object->fiber import
// cycle (fiber already imports object).
type GeneratorState struct {
	// owner is an atomic owner-identity CAS guard (spec §4.11: "guards
	// against concurrent entry with an owner-pointer CAS"). 0 means
	// free. Open Question (spec §9) resolved: a concurrent re-entry
	// while the owner differs raises a panic rather than silently
	// proceeding, since two fibers driving the same suspended frame
	// would corrupt its eval stack.
	owner atomic.Int64

	Started bool
	Done    bool
	Saved   interface{}
}

// TryAcquire CASes the generator's owner from 0 (or an already-matching
// identity, permitting the same fiber to drive it across multiple
// resumptions) to identity.
func (g *GeneratorState) TryAcquire(identity int64) bool {
	if g.owner.CompareAndSwap(0, identity) {
		return true
	}
	return g.owner.Load() == identity
}

func (g *GeneratorState) Release() { g.owner.Store(0) }
