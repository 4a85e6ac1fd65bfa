package main

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// buildElf32 hand-assembles the smallest ELF32 image debug/elf will
// accept, the same layout src/proc/proc_test.go's buildElf32 uses:
// one ET_EXEC header and a single PT_LOAD program header.
func buildElf32(entry uint32) []byte {
	var buf bytes.Buffer
	ident := [16]byte{0x7f, 'E', 'L', 'F', 1, 1, 1, 0}
	buf.Write(ident[:])

	le := binary.LittleEndian
	write16 := func(v uint16) { var b [2]byte; le.PutUint16(b[:], v); buf.Write(b[:]) }
	write32 := func(v uint32) { var b [4]byte; le.PutUint32(b[:], v); buf.Write(b[:]) }

	write16(2)  // e_type: ET_EXEC
	write16(3)  // e_machine: EM_386
	write32(1)  // e_version
	write32(entry)
	write32(52) // e_phoff
	write32(0)  // e_shoff
	write32(0)  // e_flags
	write16(52) // e_ehsize
	write16(32) // e_phentsize
	write16(1)  // e_phnum
	write16(0)  // e_shentsize
	write16(0)  // e_shnum
	write16(0)  // e_shstrndx

	write32(1)          // p_type: PT_LOAD
	write32(52 + 32)    // p_offset
	write32(entry)      // p_vaddr
	write32(entry)      // p_paddr
	write32(0)          // p_filesz
	write32(0)          // p_memsz
	write32(5)          // p_flags: R+X
	write32(0x1000)     // p_align

	return buf.Bytes()
}

func TestPatchEntryRewritesOnlyTheEntryField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.elf")
	orig := buildElf32(0x08048000)
	if err := os.WriteFile(path, orig, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if err := patchEntry(path, 0x08049000); err != nil {
		t.Fatalf("patchEntry: %v", err)
	}

	patched, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(patched) != len(orig) {
		t.Fatalf("file length changed: got %d, want %d", len(patched), len(orig))
	}

	f, err := elf.NewFile(bytesReaderAt(patched))
	if err != nil {
		t.Fatalf("parse patched file: %v", err)
	}
	if f.Entry != 0x08049000 {
		t.Fatalf("entry = %#x, want %#x", f.Entry, 0x08049000)
	}

	// Every byte outside the 4-byte e_entry field must be untouched.
	for i := range orig {
		if i >= e_entryOffset && i < e_entryOffset+4 {
			continue
		}
		if orig[i] != patched[i] {
			t.Fatalf("byte %d changed outside e_entry: %#x -> %#x", i, orig[i], patched[i])
		}
	}
}

func TestPatchEntryRejectsWrongClass(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.elf")
	raw := buildElf32(0x08048000)
	raw[elf.EI_CLASS] = byte(elf.ELFCLASS64) // corrupt the class field
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := patchEntry(path, 0x1000); err == nil {
		t.Fatal("patchEntry on a non-32-bit elf succeeded, want an error")
	}
}

type bytesReaderAt []byte

func (b bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
