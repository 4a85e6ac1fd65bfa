// ELF32 program loading for spec.md's exec, component K.
package proc

import (
	"debug/elf"
	"io"
	"log"

	"golang.org/x/arch/x86/x86asm"

	"github.com/HaoLin-hub/sparrowos/src/defs"
	"github.com/HaoLin-hub/sparrowos/src/fs"
	"github.com/HaoLin-hub/sparrowos/src/mem"
	"github.com/HaoLin-hub/sparrowos/src/task"
)

// userStackPages is the size, in pages, of the stack exec maps just
// below mem.KernelBase.
const userStackPages = 4

// ExecResult carries what original_source/userprog/exec.c's step (4)
// calls "rewrite the zero-ring interrupt frame": the entry point and
// the argv/argc/esp values a real return to user mode would load into
// eip/ebx/ecx/esp. This kernel model never executes the loaded
// instructions (documented alongside Fork's analogous simulation
// limit), so the frame is returned as data for a caller — a test, or
// eventually a "run this program" shell built-in — to inspect directly
// instead of a literal register jump.
type ExecResult struct {
	Entry mem.Va_t
	Argv  []string
	Argc  int
	Esp   mem.Va_t
}

// fileReaderAt adapts fs.File_t's Seek+Read pair to io.ReaderAt, which
// debug/elf needs to parse section and program headers at arbitrary
// offsets.
type fileReaderAt struct{ f *fs.File_t }

func (r fileReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if _, err := r.f.Seek(off, defs.SEEK_SET); err != nil {
		return 0, err
	}
	n, err := r.f.Read(p)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Exec implements spec.md's exec: parse path's ELF32 image, map every
// PT_LOAD segment into a fresh address space, replace t's address
// space and name, and return the entry/argv frame. Grounded on
// original_source/userprog/exec.c's load/segment_load, generalized from
// the original's hand-rolled Elf32_Ehdr/Elf32_Phdr struct decoding to
// the standard library's debug/elf — idiomatic Go ELF parsing has no
// third-party alternative more canonical than the package the language
// ships for exactly this.
func Exec(t *task.Task_t, filesystem *fs.Fs_t, path string, argv []string) (ExecResult, defs.Err_t) {
	res, serr := filesystem.SearchFile(path)
	if serr != nil {
		return ExecResult{}, defs.ENOENT
	}
	if res.Parent != nil {
		filesystem.CloseInode(res.Parent)
	}
	if !res.Found || res.Ftype != defs.FT_REGULAR {
		return ExecResult{}, defs.ENOENT
	}

	f, ferr := filesystem.OpenFile(res.InodeNo)
	if ferr != nil {
		return ExecResult{}, defs.ENOENT
	}
	defer f.Close()

	ef, eerr := elf.NewFile(fileReaderAt{f})
	if eerr != nil {
		return ExecResult{}, defs.EINVAL
	}
	if ef.Class != elf.ELFCLASS32 || ef.Machine != elf.EM_386 || ef.Type != elf.ET_EXEC {
		return ExecResult{}, defs.EINVAL
	}

	fresh := NewAddrSpace()
	for _, prog := range ef.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if err := loadSegment(fresh, prog); err != 0 {
			fresh.Destroy()
			return ExecResult{}, err
		}
	}

	esp, eerr2 := setupStack(fresh)
	if eerr2 != 0 {
		fresh.Destroy()
		return ExecResult{}, eerr2
	}

	logEntryInstruction(path, fresh, mem.Va_t(ef.Entry))

	State(t).Addr.Destroy()
	State(t).Addr = fresh
	t.Name = path

	return ExecResult{
		Entry: mem.Va_t(ef.Entry),
		Argv:  argv,
		Argc:  len(argv),
		Esp:   esp,
	}, 0
}

// loadSegment maps and fills one PT_LOAD program header, demand-
// allocating any page of its range not already mapped (mirroring
// exec.c's segment_load, which skips allocation when an earlier
// overlapping segment already installed the page) and copying its file
// contents in; bytes past filesz within memsz are left at the fresh
// frame's zeroed state, standing in for .bss.
func loadSegment(as *AddrSpace_t, prog *elf.Prog) defs.Err_t {
	base := mem.Va_t(prog.Vaddr) &^ mem.Va_t(mem.PGSIZE-1)
	end := mem.Va_t(prog.Vaddr + prog.Memsz)
	for va := base; va < end; va += mem.Va_t(mem.PGSIZE) {
		if _, _, ok := as.Pd.Translate(va); ok {
			continue
		}
		pa, ok := mem.UserPool.AllocFrame()
		if !ok {
			return defs.ENOMEM
		}
		as.Pd.Install(va, pa, mem.UserPool)
		as.Vm.MarkRange(va, 1)
	}
	if prog.Filesz == 0 {
		return 0
	}
	data := make([]byte, prog.Filesz)
	if _, err := prog.ReadAt(data, 0); err != nil && err != io.EOF {
		return defs.EIO
	}
	mem.WriteAt(as.Pd, mem.Va_t(prog.Vaddr), data)
	return 0
}

// logEntryInstruction decodes the single instruction at as's entry
// point and logs it, a diagnostic catching an obviously-corrupt entry
// (pointing into .bss, a misaligned prefix run, etc.) before a real
// return to user mode would jump there blind. Best-effort only: an
// entry point near the tail of its last mapped page can run off the
// end of the address space before 15 bytes (x86's longest possible
// instruction) are available, so an out-of-range read is recovered
// rather than treated as an exec failure.
func logEntryInstruction(path string, as *AddrSpace_t, entry mem.Va_t) {
	defer func() {
		if recover() != nil {
			log.Printf("exec %s: entry %#x unreadable, skipping instruction check", path, entry)
		}
	}()
	buf := mem.ReadAt(as.Pd, entry, 15)
	inst, err := x86asm.Decode(buf, 32)
	if err != nil {
		log.Printf("exec %s: entry %#x does not decode (%v)", path, entry, err)
		return
	}
	log.Printf("exec %s: entry %#x is %s", path, entry, inst)
}

// setupStack maps userStackPages pages ending exactly at mem.KernelBase
// — spec.md's end-to-end scenario 5 requires esp == 0xC0000000 on the
// new program's first instruction — bypassing the vm pool's bottom-up
// Reserve scan the same way fork's clone bypasses it, since the stack's
// address is fixed by convention rather than chosen by the allocator.
func setupStack(as *AddrSpace_t) (mem.Va_t, defs.Err_t) {
	top := mem.KernelBase
	base := top - mem.Va_t(userStackPages*mem.PGSIZE)
	for i := 0; i < userStackPages; i++ {
		va := base + mem.Va_t(i*mem.PGSIZE)
		pa, ok := mem.UserPool.AllocFrame()
		if !ok {
			return 0, defs.ENOMEM
		}
		as.Pd.Install(va, pa, mem.UserPool)
		as.Vm.MarkRange(va, 1)
	}
	return top, 0
}
