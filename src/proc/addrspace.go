// Address-space construction, cloning, and teardown for component K.
// Grounded on original_source/userprog/fork.c's
// copy_pcb_vaddrbitmap_stack0/copy_body_stack3 (deep-copy the virtual
// bitmap, then bounce-copy every mapped page into the child) and
// wait_exit.c's release_prog_resource (walk every present mapping,
// freeing its frame). The kernel-bounce-page bounce in fork.c exists to
// get bytes from one address space to another when only one page
// directory can be active at a time; since mem.Physpool_t.Bytes gives
// direct slice access to every frame regardless of which Pagedir_t maps
// it, the copy here goes frame to frame with no intermediate page.
package proc

import (
	"github.com/HaoLin-hub/sparrowos/src/defs"
	"github.com/HaoLin-hub/sparrowos/src/mem"
)

// userVaStart leaves page 0 unmapped so a null pointer dereference has
// nothing to land on.
const userVaStart = mem.Va_t(mem.PGSIZE)

// AddrSpace_t bundles one task's private page directory with the
// virtual-address bitmap tracking which pages of it are in use.
type AddrSpace_t struct {
	Pd *mem.Pagedir_t
	Vm *mem.Vmpool_t
}

func userVmPages() int {
	return int((mem.KernelBase - userVaStart) / mem.Va_t(mem.PGSIZE))
}

// NewAddrSpace allocates an empty user address space: a fresh page
// directory (the kernel half is implicit, shared by every Pagedir_t)
// and a virtual bitmap covering every user page below mem.KernelBase.
func NewAddrSpace() *AddrSpace_t {
	return &AddrSpace_t{
		Pd: mem.MkPagedir(),
		Vm: mem.MkVmpool(userVaStart, userVmPages()),
	}
}

// Clone deep-copies every mapped page of parent into a fresh address
// space: a new frame from mem.UserPool per mapping, its bytes copied
// directly, installed at the same virtual address in the child. On
// partial failure the child's already-copied frames are released.
func Clone(parent *AddrSpace_t) (*AddrSpace_t, defs.Err_t) {
	child := NewAddrSpace()
	for _, m := range parent.Pd.UserMappings() {
		pa, ok := mem.UserPool.AllocFrame()
		if !ok {
			child.Destroy()
			return nil, defs.ENOMEM
		}
		copy(mem.UserPool.Bytes(pa), mem.UserPool.Bytes(m.Pa))
		child.Pd.Install(m.Va, pa, mem.UserPool)
		child.Vm.MarkRange(m.Va, 1)
	}
	return child, 0
}

// Destroy frees every frame as.Pd still maps. The backing virtual
// bitmap and page-table map are ordinary Go memory reclaimed by the
// garbage collector once as is dropped — spec.md's separate "free the
// virtual-address-bitmap backing pages" step has no counterpart here
// since that bitmap was never itself carved out of a physical pool.
func (as *AddrSpace_t) Destroy() {
	for _, m := range as.Pd.UserMappings() {
		m.Pool.FreeFrame(m.Pa)
		as.Pd.Unmap(m.Va)
	}
}
