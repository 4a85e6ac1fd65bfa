package proc

import (
	"bytes"
	"testing"

	"github.com/HaoLin-hub/sparrowos/src/mem"
)

func initMem(t *testing.T) {
	t.Helper()
	mem.Init(4, 64)
}

func TestNewAddrSpaceLeavesPageZeroUnmapped(t *testing.T) {
	initMem(t)
	as := NewAddrSpace()
	if _, _, ok := as.Pd.Translate(0); ok {
		t.Fatal("page 0 must start unmapped")
	}
}

func TestCloneCopiesMappedPagesIntoFreshFrames(t *testing.T) {
	initMem(t)
	parent := NewAddrSpace()

	va, err := mem.GetPages(parent.Pd, parent.Vm, mem.UserPool, 1)
	if err != 0 {
		t.Fatalf("getpages: %d", err)
	}
	mem.WriteAt(parent.Pd, va, []byte("hello"))

	child, cerr := Clone(parent)
	if cerr != 0 {
		t.Fatalf("clone: %d", cerr)
	}

	got := mem.ReadAt(child.Pd, va, 5)
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("child sees %q, want %q", got, "hello")
	}

	ppa, _, _ := parent.Pd.Translate(va)
	cpa, _, _ := child.Pd.Translate(va)
	if ppa == cpa {
		t.Fatal("clone must give the child its own frame, not alias the parent's")
	}

	mem.WriteAt(parent.Pd, va, []byte("wwwww"))
	if got := mem.ReadAt(child.Pd, va, 5); !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("child's copy changed after a parent write: %q", got)
	}
}

func TestDestroyFreesEveryMappedFrame(t *testing.T) {
	initMem(t)
	as := NewAddrSpace()
	va, err := mem.GetPages(as.Pd, as.Vm, mem.UserPool, 3)
	if err != 0 {
		t.Fatalf("getpages: %d", err)
	}
	as.Destroy()

	for i := 0; i < 3; i++ {
		if _, _, ok := as.Pd.Translate(va + mem.Va_t(i*mem.PGSIZE)); ok {
			t.Fatalf("page %d still mapped after Destroy", i)
		}
	}
	// every frame destroy freed should be available for reuse.
	for i := 0; i < 3; i++ {
		if _, ok := mem.UserPool.AllocFrame(); !ok {
			t.Fatalf("frame %d not released by Destroy", i)
		}
	}
}
