// Arena-based small-object heap, the other half of component D: a
// fixed set of geometric size classes, each backed by one or more
// 4 KiB arenas carved into equal-size blocks threaded on a free list.
// Grounded on the teacher's malloc-less design philosophy (biscuit
// hands out whole pages and never needed a sub-page allocator because
// Go's own runtime serves that role there); this kernel's task PCBs
// need their own small-object heap since nothing underneath Task_t
// provides one, so the shape here follows spec.md's descriptor/arena
// layout directly: one arena is one page, its header names which
// descriptor owns it and how many of its blocks are still live. Since
// the simulated pages are plain []byte slices rather than real
// addressable memory, free lists are tracked as block offsets rather
// than as pointers threaded through the bytes themselves.
package mem

import "sync"

// blockSizes are the geometric size classes a Desc_t may serve.
var blockSizes = [NumBlockClasses]int{16, 32, 64, 128, 256, 512, 1024}

// NumBlockClasses is the number of geometric block-size descriptors.
const NumBlockClasses = 7

const arenaHeaderSize = 16

/// Desc_t is one size-class descriptor: a blocksize and the free list
/// of block offsets (page-relative, post-header) across every arena
/// it owns, each paired with the page's base virtual address.
type Desc_t struct {
	mu        sync.Mutex
	blocksize int
	free      []blockref_t
	arenas    int
}

type blockref_t struct {
	page Va_t
	off  int
}

/// ArenaSet_t is a task's (or the kernel's) small-object heap: one
/// descriptor per geometric size class, plus the pool it draws whole
/// pages from for new arenas and large (>1024 byte) allocations.
type ArenaSet_t struct {
	descs [NumBlockClasses]*Desc_t
	pool  *Physpool_t
	vm    *Vmpool_t
	pd    *Pagedir_t

	mu    sync.Mutex
	owner map[Va_t]*Desc_t // block va -> owning descriptor
	large map[Va_t]int     // block va -> page count, for oversize allocations
}

/// MkArenaSet constructs an empty heap drawing pages from pool via vm
/// and pd.
func MkArenaSet(pool *Physpool_t, vm *Vmpool_t, pd *Pagedir_t) *ArenaSet_t {
	a := &ArenaSet_t{
		pool:  pool,
		vm:    vm,
		pd:    pd,
		owner: make(map[Va_t]*Desc_t),
		large: make(map[Va_t]int),
	}
	for i, sz := range blockSizes {
		a.descs[i] = &Desc_t{blocksize: sz}
	}
	return a
}

// descFor returns the smallest-fitting descriptor for a request of n
// bytes, or nil if n exceeds the largest small-object class.
func (a *ArenaSet_t) descFor(n int) *Desc_t {
	for i, sz := range blockSizes {
		if n <= sz {
			return a.descs[i]
		}
	}
	return nil
}

// newArena carves one fresh page into header + equal-size blocks for
// d, per spec.md's arena layout: a header carrying {descriptor, large,
// count} followed by the blocks, here represented purely as offset
// bookkeeping rather than bytes written into the header region.
func (a *ArenaSet_t) newArena(d *Desc_t) bool {
	va, errno := GetPages(a.pd, a.vm, a.pool, 1)
	if errno != 0 {
		return false
	}
	count := (PGSIZE - arenaHeaderSize) / d.blocksize
	for i := 0; i < count; i++ {
		off := arenaHeaderSize + i*d.blocksize
		d.free = append(d.free, blockref_t{page: va, off: off})
	}
	d.arenas++
	return true
}

/// Malloc returns a block of at least n bytes. A block carved from a
/// fresh arena, and a large allocation, is zeroed (every page GetPages
/// hands out is zeroed on allocation); a block reused from the free
/// list keeps whatever its previous owner left in it. Requests over the
/// largest size class (1024 bytes) are satisfied directly from the
/// page pool, spanning ceil((n+header)/4096) pages, matching spec.md's
/// large-allocation path.
func (a *ArenaSet_t) Malloc(n int) (Va_t, bool) {
	if n <= 0 {
		n = 1
	}
	d := a.descFor(n)
	if d == nil {
		return a.mallocLarge(n)
	}
	d.mu.Lock()
	if len(d.free) == 0 {
		if !a.newArena(d) {
			d.mu.Unlock()
			return 0, false
		}
	}
	last := len(d.free) - 1
	b := d.free[last]
	d.free = d.free[:last]
	d.mu.Unlock()

	blockVa := b.page + Va_t(b.off)
	a.mu.Lock()
	a.owner[blockVa] = d
	a.mu.Unlock()
	return blockVa, true
}

func (a *ArenaSet_t) mallocLarge(n int) (Va_t, bool) {
	pages := (n + arenaHeaderSize + PGSIZE - 1) / PGSIZE
	va, errno := GetPages(a.pd, a.vm, a.pool, pages)
	if errno != 0 {
		return 0, false
	}
	a.mu.Lock()
	a.large[va] = pages
	a.mu.Unlock()
	return va, true
}

/// Free releases a block previously returned by Malloc, returning it
/// to its owning descriptor's free list, or to the page pool directly
/// if it was a large allocation. Freeing an address this heap never
/// handed out panics: it indicates a kernel bug, not a recoverable
/// condition.
func (a *ArenaSet_t) Free(va Va_t) {
	a.mu.Lock()
	pages, isLarge := a.large[va]
	if isLarge {
		delete(a.large, va)
	}
	d, isSmall := a.owner[va]
	if isSmall {
		delete(a.owner, va)
	}
	a.mu.Unlock()

	switch {
	case isLarge:
		PutPages(a.pd, a.vm, va, pages)
	case isSmall:
		page := va - Va_t(int(uint64(va)-pground(uint64(va))))
		off := int(uint64(va) - pground(uint64(va)))
		d.mu.Lock()
		d.free = append(d.free, blockref_t{page: page, off: off})
		d.mu.Unlock()
	default:
		panic("free of address not owned by this heap")
	}
}
