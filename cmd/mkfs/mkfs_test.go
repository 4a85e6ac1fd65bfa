package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/HaoLin-hub/sparrowos/src/ata"
	"github.com/HaoLin-hub/sparrowos/src/defs"
	"github.com/HaoLin-hub/sparrowos/src/fs"
)

func freshFs(t *testing.T) *fs.Fs_t {
	t.Helper()
	mb := ata.MkMemBackend([2]int{4096, 0})
	ch := ata.MkChannel("primary", 14, mb)
	if err := fs.Format(ch, 0, 0, 4096); err != nil {
		t.Fatalf("format: %v", err)
	}
	filesystem, err := fs.Mount(ch, 0, 0)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	return filesystem
}

func writeHostFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestAddFilesReplicatesHostTree(t *testing.T) {
	skel := t.TempDir()
	writeHostFile(t, filepath.Join(skel, "bin", "hello"), "hello, kernel")
	writeHostFile(t, filepath.Join(skel, "etc", "motd"), "welcome")
	writeHostFile(t, filepath.Join(skel, "root.txt"), "top level")

	filesystem := freshFs(t)
	if err := addFiles(filesystem, skel); err != nil {
		t.Fatalf("addFiles: %v", err)
	}

	check := func(path, want string) {
		t.Helper()
		res, err := filesystem.SearchFile(path)
		if err != nil || !res.Found {
			t.Fatalf("%s: not found (err=%v)", path, err)
		}
		f, err := filesystem.OpenFile(res.InodeNo)
		filesystem.CloseInode(res.Parent)
		if err != nil {
			t.Fatalf("%s: open: %v", path, err)
		}
		defer f.Close()
		buf := make([]byte, len(want)+1)
		n, _ := f.Read(buf)
		if string(buf[:n]) != want {
			t.Fatalf("%s: content = %q, want %q", path, buf[:n], want)
		}
	}

	check("/bin/hello", "hello, kernel")
	check("/etc/motd", "welcome")
	check("/root.txt", "top level")

	res, err := filesystem.SearchFile("/bin")
	if err != nil || !res.Found || res.Ftype != defs.FT_DIR {
		t.Fatalf("/bin: want a directory, found=%v ftype=%v err=%v", res.Found, res.Ftype, err)
	}
	filesystem.CloseInode(res.Parent)
}

func TestAddFilesRejectsDuplicateEntry(t *testing.T) {
	skel := t.TempDir()
	writeHostFile(t, filepath.Join(skel, "dup.txt"), "first")

	filesystem := freshFs(t)
	res, err := filesystem.SearchFile("/dup.txt")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	f, err := filesystem.CreateFile(res.Parent, res.LastName)
	filesystem.CloseInode(res.Parent)
	if err != nil {
		t.Fatalf("pre-create: %v", err)
	}
	f.Close()

	if err := addFiles(filesystem, skel); err == nil {
		t.Fatal("addFiles over a pre-existing entry succeeded, want an error")
	}
}
