// Package arena implements the page-backed size-class block allocator
// of spec component C1: the substrate for every runtime object.
//
// Memory is reserved from the OS in fixed 256 KiB regions ("arenas"),
// subdivided into 4 KiB pages ("pools"); each pool serves a single size
// class spanning 8..1024 bytes in 8-byte quanta. Requests above 1024
// bytes fall through to the platform allocator directly.
package arena

import (
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/edsrzf/mmap-go"
)

const (
	arenaSize    = 256 * 1024
	poolSize     = 4 * 1024
	minBlockSize = 8
	maxBlockSize = 1024
	quantum      = 8
	numClasses   = (maxBlockSize - minBlockSize) / quantum + 1
)

// pool is the bookkeeping for one 4 KiB page: it tracks its owning
// arena, the block size it serves, free-count bookkeeping and a
// free-list head. It is a separate Go struct, not stored inside the
// page; the whole page is carved into blocks. Freed blocks intrusively
// chain through their own first word, so the free list costs no extra
// memory.
type pool struct {
	arena     *Arena
	blockSize int
	total     int
	free      int
	freeHead  unsafe.Pointer
	base      uintptr
	mu        sync.Mutex
}

// Arena is one 256 KiB OS-reserved region, subdivided into pools. Its
// header is this Go struct; no part of the region itself holds it.
type Arena struct {
	region mmap.MMap
	base   uintptr
	span   uintptr
	pools  []*pool
}

// Allocator is the top-level handle: a size-classed pool of arenas plus
// address-containment tracking ("is this pointer one of ours?").
type Allocator struct {
	mu      sync.Mutex
	arenas  []*Arena
	classes [numClasses][]*pool // pools with free blocks, by size class
	large   uint64              // bytes handed to the platform allocator (diagnostics)
}

func New() *Allocator {
	return &Allocator{}
}

func classFor(size int) int {
	if size < minBlockSize {
		size = minBlockSize
	}
	c := (size - minBlockSize + quantum - 1) / quantum
	if c >= numClasses {
		c = numClasses - 1
	}
	return c
}

func classBlockSize(class int) int {
	return minBlockSize + class*quantum
}

// Alloc returns size aligned bytes. Requests above 1024 bytes fall
// through to a direct OS allocation and are not pool-tracked.
func (a *Allocator) Alloc(size int) ([]byte, error) {
	if size > maxBlockSize {
		a.mu.Lock()
		a.large += uint64(size)
		a.mu.Unlock()
		return make([]byte, size), nil
	}
	class := classFor(size)
	blockSize := classBlockSize(class)

	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.poolWithFreeBlock(class)
	if p == nil {
		var err error
		p, err = a.growArena(class, blockSize)
		if err != nil {
			return nil, err
		}
	}
	return p.takeBlock(), nil
}

// Free returns a previously allocated block to its owning pool's free
// list; blocks above 1024 bytes are simply dropped for the Go GC.
func (a *Allocator) Free(b []byte) {
	if len(b) == 0 || cap(b) > maxBlockSize {
		return
	}
	a.mu.Lock()
	p := a.poolContaining(unsafe.Pointer(&b[0]))
	a.mu.Unlock()
	if p == nil {
		return // not ours; let the Go GC reclaim it
	}
	p.returnBlock(unsafe.Pointer(&b[0]))
}

// Contains answers the allocator's address-containment query: is the
// page-aligned base of ptr a live pool whose arena back-pointer matches
// and whose offset falls inside the arena's span (spec §4.1)?
func (a *Allocator) Contains(ptr unsafe.Pointer) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.poolContaining(ptr) != nil
}

func (a *Allocator) poolContaining(ptr unsafe.Pointer) *pool {
	addr := uintptr(ptr)
	pageBase := addr &^ (poolSize - 1)
	for _, ar := range a.arenas {
		if addr < ar.base || addr >= ar.base+ar.span {
			continue
		}
		idx := sort.Search(len(ar.pools), func(i int) bool {
			return ar.pools[i].base >= pageBase
		})
		if idx < len(ar.pools) && ar.pools[idx].base == pageBase {
			p := ar.pools[idx]
			if p.arena == ar {
				return p
			}
		}
	}
	return nil
}

func (a *Allocator) poolWithFreeBlock(class int) *pool {
	list := a.classes[class]
	for len(list) > 0 {
		p := list[len(list)-1]
		if p.free > 0 {
			return p
		}
		list = list[:len(list)-1] // drained pool, drop from the hot list
	}
	a.classes[class] = list
	return nil
}

func (a *Allocator) growArena(class, blockSize int) (*pool, error) {
	region, err := mmap.MapRegion(nil, arenaSize, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, fmt.Errorf("arena: reserve %s region: %w", humanize.Bytes(arenaSize), err)
	}
	ar := &Arena{
		region: region,
		base:   uintptr(unsafe.Pointer(&region[0])),
		span:   arenaSize,
	}
	numPools := arenaSize / poolSize
	ar.pools = make([]*pool, 0, numPools)
	for i := 0; i < numPools; i++ {
		base := ar.base + uintptr(i*poolSize)
		p := &pool{arena: ar, blockSize: blockSize, base: base}
		p.initFreeList()
		ar.pools = append(ar.pools, p)
	}
	a.arenas = append(a.arenas, ar)
	a.classes[class] = append(a.classes[class], ar.pools...)
	// poolWithFreeBlock serves from the end of the hot list, so start
	// there too; a block freed right after allocation is then reused first.
	return ar.pools[numPools-1], nil
}

func (p *pool) initFreeList() {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := poolSize / p.blockSize
	p.total = n
	p.free = n
	var prev unsafe.Pointer
	for i := n - 1; i >= 0; i-- {
		addr := unsafe.Pointer(p.base + uintptr(i*p.blockSize))
		*(*unsafe.Pointer)(addr) = prev
		prev = addr
	}
	p.freeHead = prev
}

func (p *pool) takeBlock() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.freeHead == nil {
		return nil
	}
	block := p.freeHead
	p.freeHead = *(*unsafe.Pointer)(block)
	p.free--
	return unsafe.Slice((*byte)(block), p.blockSize)
}

func (p *pool) returnBlock(ptr unsafe.Pointer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	*(*unsafe.Pointer)(ptr) = p.freeHead
	p.freeHead = ptr
	p.free++
}

// Stats summarises allocator usage for diagnostics.
type Stats struct {
	Arenas      int
	LargeBytes  uint64
	PooledBytes uint64
}

func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Stats{Arenas: len(a.arenas), LargeBytes: a.large}
	for range a.arenas {
		s.PooledBytes += arenaSize
	}
	return s
}

func (s Stats) String() string {
	return fmt.Sprintf("arenas=%d pooled=%s large=%s",
		s.Arenas, humanize.Bytes(s.PooledBytes), humanize.Bytes(s.LargeBytes))
}
