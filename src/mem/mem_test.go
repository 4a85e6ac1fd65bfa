package mem

import "testing"

func freshPools(kframes, uframes, vmpages int) (*Physpool_t, *Vmpool_t, *Pagedir_t) {
	pool := MkPhyspool(0, kframes+uframes)
	vm := MkVmpool(0x1000, vmpages)
	pd := MkPagedir()
	return pool, vm, pd
}

func TestPhyspoolAllocFreeRoundtrip(t *testing.T) {
	pool := MkPhyspool(0, 4)
	pa, ok := pool.AllocFrame()
	if !ok {
		t.Fatal("expected a free frame")
	}
	if !pool.InRange(pa) {
		t.Fatal("allocated frame must be in range")
	}
	pool.FreeFrame(pa)
	pa2, ok := pool.AllocFrame()
	if !ok || pa2 != pa {
		t.Fatalf("expected freed frame %d to be reused, got %d ok=%v", pa, pa2, ok)
	}
}

func TestPhyspoolExhaustion(t *testing.T) {
	pool := MkPhyspool(0, 2)
	if _, ok := pool.AllocFrame(); !ok {
		t.Fatal("expected first alloc to succeed")
	}
	if _, ok := pool.AllocFrame(); !ok {
		t.Fatal("expected second alloc to succeed")
	}
	if _, ok := pool.AllocFrame(); ok {
		t.Fatal("expected pool of 2 frames to be exhausted after 2 allocs")
	}
}

func TestVmpoolReserveRelease(t *testing.T) {
	vm := MkVmpool(0x1000, 4)
	base, ok := vm.Reserve(2)
	if !ok {
		t.Fatal("expected reservation to succeed")
	}
	if base != 0x1000 {
		t.Fatalf("base = %#x, want %#x", base, 0x1000)
	}
	vm.Release(base, 2)
	base2, ok := vm.Reserve(4)
	if !ok || base2 != 0x1000 {
		t.Fatalf("expected full range reusable after release, got base=%#x ok=%v", base2, ok)
	}
}

func TestPagedirTranslateFallsBackToKernelDir(t *testing.T) {
	pool := MkPhyspool(0, 2)
	pa, _ := pool.AllocFrame()
	kernelDir.Install(KernelBase, pa, pool)
	defer kernelDir.Unmap(KernelBase)

	pd := MkPagedir()
	gotPa, gotPool, ok := pd.Translate(KernelBase)
	if !ok || gotPa != pa || gotPool != pool {
		t.Fatalf("expected user pagedir to inherit kernel mapping, got pa=%d ok=%v", gotPa, ok)
	}
}

func TestGetPagesPutPagesRoundtrip(t *testing.T) {
	pool, vm, pd := freshPools(0, 4, 4)
	va, err := GetPages(pd, vm, pool, 2)
	if err != 0 {
		t.Fatalf("GetPages failed: %d", err)
	}
	if _, _, ok := pd.Translate(va); !ok {
		t.Fatal("expected first page mapped")
	}
	if _, _, ok := pd.Translate(va + Va_t(PGSIZE)); !ok {
		t.Fatal("expected second page mapped")
	}
	PutPages(pd, vm, va, 2)
	if _, _, ok := pd.Translate(va); ok {
		t.Fatal("expected pages unmapped after PutPages")
	}
}

func TestGetPagesFailureRollsBack(t *testing.T) {
	pool, vm, pd := freshPools(0, 1, 4)
	_, err := GetPages(pd, vm, pool, 2)
	if err == 0 {
		t.Fatal("expected allocation of 2 pages from a 1-frame pool to fail")
	}
	// Pool should still have its single frame available, and the
	// virtual range should have been released back for reuse.
	if _, ok := pool.AllocFrame(); !ok {
		t.Fatal("expected rollback to restore the one frame to the pool")
	}
	if base, ok := vm.Reserve(4); !ok || base != 0x1000 {
		t.Fatal("expected rollback to release the virtual reservation")
	}
}

func TestReadWriteAtRoundtrip(t *testing.T) {
	pool, vm, pd := freshPools(0, 4, 4)
	va, err := GetPages(pd, vm, pool, 1)
	if err != 0 {
		t.Fatalf("GetPages failed: %d", err)
	}
	msg := []byte("hello kernel")
	WriteAt(pd, va+10, msg)
	got := ReadAt(pd, va+10, len(msg))
	if string(got) != string(msg) {
		t.Fatalf("got %q, want %q", got, msg)
	}
}

func TestArenaMallocFreeReuse(t *testing.T) {
	pool, vm, pd := freshPools(0, 8, 8)
	a := MkArenaSet(pool, vm, pd)
	va1, ok := a.Malloc(20)
	if !ok {
		t.Fatal("expected malloc to succeed")
	}
	a.Free(va1)
	va2, ok := a.Malloc(20)
	if !ok || va2 != va1 {
		t.Fatalf("expected freed block to be reused, got va1=%#x va2=%#x ok=%v", va1, va2, ok)
	}
}

func TestArenaMallocDistinctSizeClasses(t *testing.T) {
	pool, vm, pd := freshPools(0, 8, 8)
	a := MkArenaSet(pool, vm, pd)
	small, _ := a.Malloc(16)
	big, _ := a.Malloc(512)
	if small == big {
		t.Fatal("expected distinct allocations for distinct size classes")
	}
}

func TestArenaLargeAllocation(t *testing.T) {
	pool, vm, pd := freshPools(0, 8, 8)
	a := MkArenaSet(pool, vm, pd)
	va, ok := a.Malloc(4096)
	if !ok {
		t.Fatal("expected large allocation to succeed")
	}
	a.Free(va)
}

func TestArenaFreeOfUnownedAddressPanics(t *testing.T) {
	pool, vm, pd := freshPools(0, 8, 8)
	a := MkArenaSet(pool, vm, pd)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic freeing an address this heap never allocated")
		}
	}()
	a.Free(0xdeadbeef)
}
