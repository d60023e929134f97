// Package gc implements the three-generation tracing cycle collector of
// spec component C3, layered on top of the hybrid RC substrate (internal
// rc/object packages) to reclaim reference cycles among opt-in tracked
// objects.
package gc

import (
	"sync"

	"github.com/lumen-lang/lumen/internal/object"
)

const (
	Gen0 = iota
	Gen1
	Gen2
	numGenerations = 3
)

// Generation is a doubly-linked list of tracked objects plus the
// allocation-count threshold that triggers a collection.
type Generation struct {
	mu        sync.Mutex
	head      *object.Header
	count     int
	threshold int
}

// Stats reports one generation's most recent collection outcome, the
// shape spec §8 scenario 4 ("generation-0 statistics show collected=2,
// uncollected=0") exercises.
type Stats struct {
	Collected   int
	Uncollected int
	Promoted    int
}

// Collector owns all three generations and disables re-entrant
// collection while a fiber holds a GC-managed monitor (spec §4.3: "The
// scheduler disables GC entry on fibers that currently hold a
// GC-managed lock").
type Collector struct {
	gens [numGenerations]*Generation
	// suppressed counts active inhibitions; Collect becomes a no-op
	// while it is non-zero, avoiding re-entrant tracing inside a
	// destructor running repr/eq under a held monitor.
	suppressed int32
	mu         sync.Mutex
}

func NewCollector(thresholds [numGenerations]int) *Collector {
	c := &Collector{}
	for i := range c.gens {
		c.gens[i] = &Generation{threshold: thresholds[i]}
	}
	return c
}

// Suppress increments the re-entrancy guard; Resume decrements it.
func (c *Collector) Suppress() {
	c.mu.Lock()
	c.suppressed++
	c.mu.Unlock()
}

func (c *Collector) Resume() {
	c.mu.Lock()
	if c.suppressed > 0 {
		c.suppressed--
	}
	c.mu.Unlock()
}

func (c *Collector) isSuppressed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppressed > 0
}

// Track inserts h into generation 0 and opts it into cycle collection.
func (c *Collector) Track(h *object.Header) {
	h.MarkTracked()
	c.gens[Gen0].insert(h)
	c.gens[Gen0].mu.Lock()
	c.gens[Gen0].count++
	shouldCollect := c.gens[Gen0].count >= c.gens[Gen0].threshold
	c.gens[Gen0].mu.Unlock()
	if shouldCollect {
		c.Collect(Gen0)
	}
}

func (g *Generation) insert(h *object.Header) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h.GC.SetNext(g.head)
	h.GC.SetPrev(nil)
	if g.head != nil {
		g.head.GC.SetPrev(h)
	}
	g.head = h
}

func (g *Generation) remove(h *object.Header) {
	prev, next := h.GC.Prev(), h.GC.Next()
	if prev != nil {
		prev.GC.SetNext(next)
	} else {
		g.head = next
	}
	if next != nil {
		next.GC.SetPrev(prev)
	}
	h.GC.SetNext(nil)
	h.GC.SetPrev(nil)
}

// Collect runs the six-step algorithm of spec §4.3 for generation gen:
// merge younger generations in, count external references, subtract
// internal references found by each type's tracer, identify roots,
// sweep unreached objects, and promote survivors.
func (c *Collector) Collect(gen int) Stats {
	if c.isSuppressed() {
		return Stats{}
	}
	g := c.gens[gen]
	g.mu.Lock()
	defer g.mu.Unlock()

	// 1. Merge: splice younger generations into g's list.
	for y := 0; y < gen; y++ {
		yg := c.gens[y]
		yg.mu.Lock()
		for h := yg.head; h != nil; {
			next := h.GC.Next()
			yg.remove(h)
			h.GC.SetGen(gen)
			h.GC.SetNext(g.head)
			h.GC.SetPrev(nil)
			if g.head != nil {
				g.head.GC.SetPrev(h)
			}
			g.head = h
			h = next
		}
		yg.count = 0
		yg.mu.Unlock()
	}

	members := g.members()

	// 2. Count: snapshot each object's current strong count.
	for _, h := range members {
		h.GC.SetScratch(h.RC.StrongCount())
		h.GC.SetVisited(false)
	}

	// 3. Subtract internal references: each referent tracked & in-gen
	// loses one from its scratch count per incoming reference found.
	inGen := make(map[*object.Header]bool, len(members))
	for _, h := range members {
		inGen[h] = true
	}
	for _, h := range members {
		if h.Type == nil || h.Type.Tracer == nil {
			continue
		}
		h.Type.Tracer(h, func(r *object.Header) {
			if r != nil && r.IsTracked() && inGen[r] {
				r.GC.AddScratch(-1)
			}
		})
	}

	// 4. Root identification: positive scratch => externally reachable;
	// mark it and everything reachable from it as visited.
	var mark func(h *object.Header)
	mark = func(h *object.Header) {
		if h == nil || h.GC.Visited() {
			return
		}
		h.GC.SetVisited(true)
		if h.Type == nil || h.Type.Tracer == nil {
			return
		}
		h.Type.Tracer(h, func(r *object.Header) {
			if r != nil && r.IsTracked() {
				mark(r)
			}
		})
	}
	for _, h := range members {
		if h.GC.Scratch() > 0 {
			mark(h)
		}
	}

	// 5. Sweep: unvisited members are unreachable cycles.
	var stats Stats
	var survivors []*object.Header
	for _, h := range members {
		if h.GC.Visited() {
			survivors = append(survivors, h)
			continue
		}
		g.remove(h)
		finalize(h)
		stats.Collected++
	}
	stats.Uncollected = len(survivors)

	// 6. Promote: survivors move to the next-older generation; clear
	// the visited bit.
	for _, h := range survivors {
		h.GC.SetVisited(false)
	}
	if gen < numGenerations-1 {
		for _, h := range survivors {
			g.remove(h)
			h.GC.SetGen(gen + 1)
		}
		next := c.gens[gen+1]
		next.mu.Lock()
		for _, h := range survivors {
			h.GC.SetNext(next.head)
			h.GC.SetPrev(nil)
			if next.head != nil {
				next.head.GC.SetPrev(h)
			}
			next.head = h
		}
		next.mu.Unlock()
		stats.Promoted = len(survivors)
	}
	g.count = 0
	return stats
}

func (g *Generation) members() []*object.Header {
	var out []*object.Header
	for h := g.head; h != nil; h = h.GC.Next() {
		out = append(out, h)
	}
	return out
}

// finalize marks h finalized at most once (spec §3 invariant). It runs
// no finalizer hook and does not free h through the arena allocator;
// once the sweep has unlinked h, its memory is left to the Go garbage
// collector.
func finalize(h *object.Header) {
	if h.GC.Finalized() {
		return
	}
	h.GC.SetFinalized(true)
	// Object-specific finalizer hooks (close file descriptors, release
	// native handles) are invoked by the embedding layer's type
	// descriptors; the collector's job ends at marking-and-unlinking.
}
