// Command elfpatch rewrites the entry point recorded in an ELF32
// binary's header. Grounded on biscuit/src/kernel/chentry.go, a
// build-time tool for patching a kernel image's entry address before
// the bootloader jumps to it; adapted from the teacher's ELF64/x86-64
// target to the ELF32/EM_386 binaries this module's own exec loader
// (src/proc/exec.go) actually accepts, and from `flag` in place of the
// teacher's positional os.Args parsing, per this module's host-tooling
// convention.
package main

import (
	"debug/elf"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/sys/unix"
)

// e_entryOffset is the byte offset of ELF32's e_entry field within the
// file header, fixed by the ELF32 on-disk layout regardless of the
// rest of the header's contents.
const e_entryOffset = 0x18

func main() {
	path := flag.String("file", "", "ELF32 binary to patch (required)")
	entry := flag.Uint64("entry", 0, "new entry point address")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "elfpatch: -file is required")
		os.Exit(1)
	}
	if *entry>>32 != 0 {
		log.Fatal("elfpatch: entry is not a 32-bit address")
	}

	if err := patchEntry(*path, uint32(*entry)); err != nil {
		log.Fatal(err)
	}
}

// patchEntry opens path, validates it against chkELF, and overwrites
// its e_entry field with entry.
func patchEntry(path string, entry uint32) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	ef, err := elf.NewFile(f)
	if err != nil {
		return err
	}
	if err := chkELF(&ef.FileHeader); err != nil {
		return err
	}

	fmt.Printf("elfpatch: %s: entry %#x -> %#x\n", path, ef.Entry, entry)

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], entry)
	_, err = unix.Pwrite(int(f.Fd()), buf[:], e_entryOffset)
	return err
}

// chkELF validates that fh describes exactly the kind of binary this
// module's exec loader will accept: ELF32, little-endian, a plain
// executable, targeting EM_386. Adapted from chentry.go's chkELF,
// which checked the same shape for ELF64/EM_X86_64.
func chkELF(fh *elf.FileHeader) error {
	if fh.Class != elf.ELFCLASS32 {
		return fmt.Errorf("elfpatch: not a 32-bit elf")
	}
	if fh.Data != elf.ELFDATA2LSB {
		return fmt.Errorf("elfpatch: not little-endian")
	}
	if fh.Type != elf.ET_EXEC {
		return fmt.Errorf("elfpatch: not an executable elf")
	}
	if fh.Machine != elf.EM_386 {
		return fmt.Errorf("elfpatch: not a 386 elf")
	}
	return nil
}
