package fs

import (
	"bytes"
	"testing"

	"github.com/HaoLin-hub/sparrowos/src/ata"
	"github.com/HaoLin-hub/sparrowos/src/defs"
	"github.com/HaoLin-hub/sparrowos/src/task"
)

func withTask(t *testing.T, fn func()) {
	t.Helper()
	task.Boot("fs-test", 5, func(self *task.Task_t) {
		fn()
	})
}

// freshFs formats and mounts a small in-memory-backed partition for a
// test, returning the handle.
func freshFs(t *testing.T, totalBlocks uint32) *Fs_t {
	t.Helper()
	mb := ata.MkMemBackend([2]int{int(totalBlocks), 0})
	ch := ata.MkChannel("primary", 14, mb)
	if err := Format(ch, 0, 0, totalBlocks); err != nil {
		t.Fatalf("format: %v", err)
	}
	fs, err := Mount(ch, 0, 0)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	return fs
}

func TestFormatMountRoundtrip(t *testing.T) {
	withTask(t, func() {
		fs := freshFs(t, 4096)
		if fs.sb.Magic() != Magic {
			t.Fatalf("bad magic %#x", fs.sb.Magic())
		}
		if fs.blockBm.Test(0) != true {
			t.Fatal("root data block should be marked allocated")
		}
		if fs.inodeBm.Test(RootInode) != true {
			t.Fatal("root inode should be marked allocated")
		}
	})
}

func TestRootDirectoryHasDotAndDotDot(t *testing.T) {
	withTask(t, func() {
		fs := freshFs(t, 4096)
		root, err := fs.OpenInode(RootInode, defs.FT_DIR)
		if err != nil {
			t.Fatal(err)
		}
		defer fs.CloseInode(root)

		for _, name := range []string{".", ".."} {
			d, found, err := fs.LookupDirent(root, name)
			if err != nil {
				t.Fatal(err)
			}
			if !found {
				t.Fatalf("missing %q entry in root", name)
			}
			if d.InodeNo != RootInode {
				t.Fatalf("%q should point at root inode, got %d", name, d.InodeNo)
			}
		}
	})
}

func TestCreateWriteReadFile(t *testing.T) {
	withTask(t, func() {
		fs := freshFs(t, 4096)
		root, err := fs.OpenInode(RootInode, defs.FT_DIR)
		if err != nil {
			t.Fatal(err)
		}
		defer fs.CloseInode(root)

		f, err := fs.CreateFile(root, "hello.txt")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		payload := bytes.Repeat([]byte("hi there "), 100) // spans multiple blocks
		if n, err := f.Write(payload); err != nil || n != len(payload) {
			t.Fatalf("write: n=%d err=%v", n, err)
		}
		if _, err := f.Seek(0, defs.SEEK_SET); err != nil {
			t.Fatalf("seek: %v", err)
		}
		got := make([]byte, len(payload))
		n, err := f.Read(got)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if n != len(payload) || !bytes.Equal(got, payload) {
			t.Fatalf("read back mismatch: n=%d", n)
		}
		f.Close()

		d, found, err := fs.LookupDirent(root, "hello.txt")
		if err != nil || !found {
			t.Fatalf("directory entry missing: found=%v err=%v", found, err)
		}
		if d.Ftype != defs.FT_REGULAR {
			t.Fatalf("wrong ftype %v", d.Ftype)
		}
	})
}

func TestStatReportsSizeAndBlocks(t *testing.T) {
	withTask(t, func() {
		fs := freshFs(t, 4096)
		root, err := fs.OpenInode(RootInode, defs.FT_DIR)
		if err != nil {
			t.Fatal(err)
		}
		defer fs.CloseInode(root)

		f, err := fs.CreateFile(root, "sized.txt")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		payload := bytes.Repeat([]byte("x"), int(BlockSize)+1)
		if n, err := f.Write(payload); err != nil || n != len(payload) {
			t.Fatalf("write: n=%d err=%v", n, err)
		}
		f.Close()

		d, found, err := fs.LookupDirent(root, "sized.txt")
		if err != nil || !found {
			t.Fatalf("directory entry missing: found=%v err=%v", found, err)
		}
		ino, err := fs.OpenInode(d.InodeNo, d.Ftype)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer fs.CloseInode(ino)

		st := Stat(ino)
		if st.Size() != uint32(len(payload)) {
			t.Fatalf("Size() = %d, want %d", st.Size(), len(payload))
		}
		if st.Blocks() != 2 {
			t.Fatalf("Blocks() = %d, want 2 (one block plus one trailing byte)", st.Blocks())
		}
		if st.Ftype() != defs.FT_REGULAR {
			t.Fatalf("Ftype() = %v, want FT_REGULAR", st.Ftype())
		}
		if st.Ino() != d.InodeNo {
			t.Fatalf("Ino() = %d, want %d", st.Ino(), d.InodeNo)
		}
	})
}

func TestWriteSpansIndirectBlock(t *testing.T) {
	withTask(t, func() {
		fs := freshFs(t, 8192)
		root, err := fs.OpenInode(RootInode, defs.FT_DIR)
		if err != nil {
			t.Fatal(err)
		}
		defer fs.CloseInode(root)

		f, err := fs.CreateFile(root, "big.bin")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		// 20 blocks: crosses the 12-direct boundary into the indirect
		// table.
		payload := make([]byte, 20*BlockSize)
		for i := range payload {
			payload[i] = byte(i)
		}
		if n, err := f.Write(payload); err != nil || n != len(payload) {
			t.Fatalf("write: n=%d err=%v", n, err)
		}
		if f.ino.IBlocks[IndirectIdx] == 0 {
			t.Fatal("expected indirect table to be allocated")
		}

		f.Seek(0, defs.SEEK_SET)
		got := make([]byte, len(payload))
		if _, err := f.Read(got); err != nil {
			t.Fatalf("read: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatal("indirect-block read back mismatch")
		}
	})
}

func TestMkdirRmdir(t *testing.T) {
	withTask(t, func() {
		fs := freshFs(t, 4096)
		root, err := fs.OpenInode(RootInode, defs.FT_DIR)
		if err != nil {
			t.Fatal(err)
		}
		defer fs.CloseInode(root)

		if err := fs.Mkdir(root, "sub"); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		d, found, err := fs.LookupDirent(root, "sub")
		if err != nil || !found {
			t.Fatalf("sub missing: found=%v err=%v", found, err)
		}
		if d.Ftype != defs.FT_DIR {
			t.Fatal("sub should be a directory")
		}

		if err := fs.Rmdir(root, "sub"); err != nil {
			t.Fatalf("rmdir: %v", err)
		}
		if _, found, err := fs.LookupDirent(root, "sub"); err != nil || found {
			t.Fatalf("sub should be gone: found=%v err=%v", found, err)
		}
	})
}

func TestSearchFileResolvesNestedPath(t *testing.T) {
	withTask(t, func() {
		fs := freshFs(t, 4096)
		root, err := fs.OpenInode(RootInode, defs.FT_DIR)
		if err != nil {
			t.Fatal(err)
		}
		if err := fs.Mkdir(root, "a"); err != nil {
			t.Fatalf("mkdir a: %v", err)
		}
		sub, _, err := fs.LookupDirent(root, "a")
		if err != nil {
			t.Fatal(err)
		}
		fs.CloseInode(root)

		subIno, err := fs.OpenInode(sub.InodeNo, defs.FT_DIR)
		if err != nil {
			t.Fatal(err)
		}
		f, err := fs.CreateFile(subIno, "leaf")
		if err != nil {
			t.Fatalf("create leaf: %v", err)
		}
		f.Close()
		fs.CloseInode(subIno)

		res, err := fs.SearchFile("/a/leaf")
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if !res.Found || res.Ftype != defs.FT_REGULAR {
			t.Fatalf("expected to resolve leaf file, got %+v", res)
		}
		fs.CloseInode(res.Parent)

		miss, err := fs.SearchFile("/a/nope")
		if err != nil {
			t.Fatalf("search miss: %v", err)
		}
		if miss.Found {
			t.Fatal("expected a miss")
		}
		if miss.LastName != "nope" {
			t.Fatalf("wrong last name %q", miss.LastName)
		}
		fs.CloseInode(miss.Parent)
	})
}

func TestUnlinkRefusesOpenFile(t *testing.T) {
	withTask(t, func() {
		fs := freshFs(t, 4096)
		root, err := fs.OpenInode(RootInode, defs.FT_DIR)
		if err != nil {
			t.Fatal(err)
		}
		defer fs.CloseInode(root)

		f, err := fs.CreateFile(root, "held")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := fs.Unlink(root, "held"); err == nil {
			t.Fatal("expected unlink to refuse an open file")
		}
		f.Close()
		if err := fs.Unlink(root, "held"); err != nil {
			t.Fatalf("unlink after close: %v", err)
		}
		if _, found, _ := fs.LookupDirent(root, "held"); found {
			t.Fatal("entry should be gone after unlink")
		}
	})
}

func TestGetcwd(t *testing.T) {
	withTask(t, func() {
		fs := freshFs(t, 4096)
		root, err := fs.OpenInode(RootInode, defs.FT_DIR)
		if err != nil {
			t.Fatal(err)
		}
		if err := fs.Mkdir(root, "a"); err != nil {
			t.Fatal(err)
		}
		aEnt, _, _ := fs.LookupDirent(root, "a")
		fs.CloseInode(root)

		a, err := fs.OpenInode(aEnt.InodeNo, defs.FT_DIR)
		if err != nil {
			t.Fatal(err)
		}
		if err := fs.Mkdir(a, "b"); err != nil {
			t.Fatal(err)
		}
		bEnt, _, _ := fs.LookupDirent(a, "b")
		fs.CloseInode(a)

		cwd, err := fs.Getcwd(bEnt.InodeNo)
		if err != nil {
			t.Fatalf("getcwd: %v", err)
		}
		if cwd != "/a/b" {
			t.Fatalf("expected /a/b, got %q", cwd)
		}
	})
}

func TestOpendirReaddir(t *testing.T) {
	withTask(t, func() {
		fs := freshFs(t, 4096)
		root, err := fs.OpenInode(RootInode, defs.FT_DIR)
		if err != nil {
			t.Fatal(err)
		}
		defer fs.CloseInode(root)
		for _, name := range []string{"x", "y", "z"} {
			if err := fs.Mkdir(root, name); err != nil {
				t.Fatalf("mkdir %s: %v", name, err)
			}
		}

		d, err := fs.Opendir(RootInode)
		if err != nil {
			t.Fatal(err)
		}
		defer d.Closedir()

		seen := map[string]bool{}
		for {
			ent, ok, err := d.Readdir()
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				break
			}
			seen[ent.Name] = true
		}
		for _, name := range []string{".", "..", "x", "y", "z"} {
			if !seen[name] {
				t.Fatalf("missing entry %q in readdir output", name)
			}
		}
	})
}
