package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/HaoLin-hub/sparrowos/src/ata"
	"github.com/HaoLin-hub/sparrowos/src/fs"
)

func TestMountOrFormatFormatsAnEmptyDisk(t *testing.T) {
	mb := ata.MkMemBackend([2]int{4096, 0})
	ch := ata.MkChannel("primary", 14, mb)

	filesystem, err := mountOrFormat(ch, false, 4096)
	if err != nil {
		t.Fatalf("mountOrFormat on a blank disk: %v", err)
	}
	if _, serr := filesystem.SearchFile("/"); serr != nil {
		t.Fatalf("formatted disk has no root: %v", serr)
	}
}

func TestMountOrFormatMountsAnAlreadyFormattedDisk(t *testing.T) {
	mb := ata.MkMemBackend([2]int{4096, 0})
	ch := ata.MkChannel("primary", 14, mb)
	if err := fs.Format(ch, 0, 0, 4096); err != nil {
		t.Fatalf("format: %v", err)
	}
	first, err := fs.Mount(ch, 0, 0)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	res, serr := first.SearchFile("/marker")
	if serr != nil {
		t.Fatalf("search: %v", serr)
	}
	f, cerr := first.CreateFile(res.Parent, res.LastName)
	first.CloseInode(res.Parent)
	if cerr != nil {
		t.Fatalf("create: %v", cerr)
	}
	f.Close()

	filesystem, err := mountOrFormat(ch, false, 4096)
	if err != nil {
		t.Fatalf("mountOrFormat on a formatted disk: %v", err)
	}
	if res, serr := filesystem.SearchFile("/marker"); serr != nil || !res.Found {
		t.Fatalf("mountOrFormat reformatted instead of mounting: marker missing (err=%v)", serr)
	} else {
		filesystem.CloseInode(res.Parent)
	}
}

func TestMountOrFormatHonorsForceFormat(t *testing.T) {
	mb := ata.MkMemBackend([2]int{4096, 0})
	ch := ata.MkChannel("primary", 14, mb)
	if err := fs.Format(ch, 0, 0, 4096); err != nil {
		t.Fatalf("format: %v", err)
	}

	filesystem, err := mountOrFormat(ch, true, 4096)
	if err != nil {
		t.Fatalf("mountOrFormat with -format: %v", err)
	}
	res, serr := filesystem.SearchFile("/marker")
	if serr != nil {
		t.Fatalf("search: %v", serr)
	}
	if res.Found {
		t.Fatal("forced format should have produced a fresh, empty filesystem")
	}
	filesystem.CloseInode(res.Parent)
}

func TestRawTerminalOnANonTtyFileFailsCleanly(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "notatty")
	if err != nil {
		t.Fatalf("tempfile: %v", err)
	}
	defer f.Close()

	if _, err := rawTerminal(int(f.Fd())); err == nil {
		t.Fatal("rawTerminal on a plain file succeeded, want an error")
	}
}

func TestHostFileRoundTripsReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "io")
	wf, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	out := hostFile_t{wf}
	n, ferr := out.Write([]byte("hi"))
	if ferr != 0 || n != 2 {
		t.Fatalf("write: n=%d err=%d", n, ferr)
	}
	wf.Close()

	rf, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rf.Close()
	in := hostFile_t{rf}
	buf := make([]byte, 2)
	n, ferr = in.Read(buf)
	if ferr != 0 || string(buf[:n]) != "hi" {
		t.Fatalf("read back = %q (err=%d), want \"hi\"", buf[:n], ferr)
	}
}
