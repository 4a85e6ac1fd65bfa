package bitmap

import "testing"

func TestSetClearTest(t *testing.T) {
	b := MkBitmap(100)
	if b.Test(42) {
		t.Fatal("expected bit 42 initially clear")
	}
	b.Set(42)
	if !b.Test(42) {
		t.Fatal("expected bit 42 set")
	}
	b.Clear(42)
	if b.Test(42) {
		t.Fatal("expected bit 42 clear again")
	}
}

func TestScanZerosFindsContiguousRun(t *testing.T) {
	b := MkBitmap(16)
	b.SetRange(0, 5)
	// bits 5..15 are clear; a run of 4 should start at 5.
	if got := b.ScanZeros(4, 0); got != 5 {
		t.Fatalf("scanzeros(4) = %d, want 5", got)
	}
}

func TestScanZerosFailsWhenExhausted(t *testing.T) {
	b := MkBitmap(8)
	b.SetRange(0, 8)
	if got := b.ScanZeros(1, 0); got != -1 {
		t.Fatalf("scanzeros on full bitmap = %d, want -1", got)
	}
}

func TestScanZerosSkipsFragmentedHoles(t *testing.T) {
	b := MkBitmap(10)
	// pattern: 0 1 0 1 0 0 0 1 0 0 -- only run >= 3 starts at index 4.
	for _, i := range []int{1, 3, 7} {
		b.Set(i)
	}
	if got := b.ScanZeros(3, 0); got != 4 {
		t.Fatalf("scanzeros(3) = %d, want 4", got)
	}
}

func TestPopcount(t *testing.T) {
	b := MkBitmap(70)
	b.Set(0)
	b.Set(63)
	b.Set(64)
	b.Set(69)
	if got := b.Popcount(); got != 4 {
		t.Fatalf("popcount = %d, want 4", got)
	}
}
