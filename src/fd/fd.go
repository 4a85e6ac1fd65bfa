// Package fd implements the file-descriptor layer, component I: a
// fixed 8-entry per-task table over one global open-file table.
// Adapted from biscuit/src/fd/fd.go's Fd_t/Cwd_t/Copyfd, generalized
// down from the teacher's per-device Fdops_i model to spec.md's
// concrete fixed-size table (no network/pipe-specific Fdops_i
// implementations live here; Fops_i is the same narrow interface, and
// src/pipe supplies the pipe implementation of it).
package fd

import (
	"sync"

	"github.com/HaoLin-hub/sparrowos/src/defs"
)

// NumFds is the size of a task's local fd table; indices 0-2 are
// reserved for stdio.
const NumFds = 8

// FirstUserFd is the lowest local fd index install_fd will hand out.
const FirstUserFd = 3

// File descriptor permission bits.
const (
	FD_READ    = 0x1
	FD_WRITE   = 0x2
	FD_CLOEXEC = 0x4
)

/// Fops_i is the minimum operation set any open file, directory, or
/// pipe endpoint must support to live behind a file descriptor.
type Fops_i interface {
	Read(dst []byte) (int, defs.Err_t)
	Write(src []byte) (int, defs.Err_t)
	Close() defs.Err_t
	Reopen() defs.Err_t
}

/// Fd_t is one entry of the global open-file table.
type Fd_t struct {
	Fops  Fops_i
	Perms int
}

/// Copyfd duplicates an open file descriptor by reopening it (bumping
/// whatever refcount its Fops_i tracks).
func Copyfd(fd *Fd_t) (*Fd_t, defs.Err_t) {
	nfd := &Fd_t{}
	*nfd = *fd
	if err := nfd.Fops.Reopen(); err != 0 {
		return nil, err
	}
	return nfd, 0
}

/// ClosePanic closes fd and panics if the underlying Fops_i reports
/// failure — used where a close is known to always succeed.
func ClosePanic(fd *Fd_t) {
	if fd.Fops.Close() != 0 {
		panic("must succeed")
	}
}

/// GlobalTable_t is the kernel-wide open-file table every task's local
/// table indexes into.
type GlobalTable_t struct {
	mu      sync.Mutex
	entries []*Fd_t // nil slots are free
}

/// MkGlobalTable constructs an empty global file table.
func MkGlobalTable() *GlobalTable_t {
	return &GlobalTable_t{}
}

/// Install places fd in the first free global slot (or appends one)
/// and returns its index.
func (g *GlobalTable_t) Install(fd *Fd_t) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, e := range g.entries {
		if e == nil {
			g.entries[i] = fd
			return i
		}
	}
	g.entries = append(g.entries, fd)
	return len(g.entries) - 1
}

/// Get returns the Fd_t at global index i, or nil if the slot is free.
func (g *GlobalTable_t) Get(i int) *Fd_t {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i < 0 || i >= len(g.entries) {
		return nil
	}
	return g.entries[i]
}

/// Free clears global slot i.
func (g *GlobalTable_t) Free(i int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[i] = nil
}

/// Table_t is a view over one task's local fd table: NumFds slots,
/// each either unused (-1) or holding the index of a global-table
/// entry. It wraps the owning task.Task_t's own Fds array by pointer
/// (per task.Task_t's doc comment, "Populated by src/fd") rather than
/// keeping a private copy, so a fork that copies the parent's Task_t
/// also copies its fd bindings for free.
type Table_t struct {
	mu     sync.Mutex
	global *GlobalTable_t
	local  *[NumFds]int
}

/// MkTable constructs a view over fds (normally &task.Task_t.Fds),
/// initialising every slot to unused.
func MkTable(global *GlobalTable_t, fds *[NumFds]int) *Table_t {
	t := &Table_t{global: global, local: fds}
	for i := range t.local {
		t.local[i] = -1
	}
	return t
}

/// WrapTable constructs a view over fds without resetting its slots,
/// for a forked child whose Fds array already holds a verbatim copy of
/// the parent's bindings.
func WrapTable(global *GlobalTable_t, fds *[NumFds]int) *Table_t {
	return &Table_t{global: global, local: fds}
}

/// Global returns the GlobalTable_t this table's local slots index
/// into, so a caller holding only a Table_t (src/proc's fork, walking
/// inherited fds to bump their refcounts) can reach the shared table.
func (t *Table_t) Global() *GlobalTable_t {
	return t.global
}

/// SetStdio installs globalIdx at local stdio slot n (0, 1, or 2).
func (t *Table_t) SetStdio(n int, globalIdx int) {
	if n < 0 || n >= FirstUserFd {
		panic("SetStdio: n must be a stdio index")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.local[n] = globalIdx
}

/// InstallFd implements spec.md's install_fd: scan the local table for
/// the first free slot at index >= 3 and bind it to globalIdx.
func (t *Table_t) InstallFd(globalIdx int) (int, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := FirstUserFd; i < NumFds; i++ {
		if t.local[i] == -1 {
			t.local[i] = globalIdx
			return i, 0
		}
	}
	return -1, defs.EMFILE
}

/// Fd_local2global implements spec.md's fd_local2global: translate a
/// process-local fd through the task's table into the global file
/// table's *Fd_t.
func (t *Table_t) Fd_local2global(local int) (*Fd_t, defs.Err_t) {
	t.mu.Lock()
	gi := -1
	if local >= 0 && local < NumFds {
		gi = t.local[local]
	}
	t.mu.Unlock()
	if gi == -1 {
		return nil, defs.EBADF
	}
	fd := t.global.Get(gi)
	if fd == nil {
		return nil, defs.EBADF
	}
	return fd, 0
}

/// Close looks up local, calls its Fops_i Close (which decrements a
/// pipe's dup count or tears down a plain file, per its own
/// implementation), frees the global slot, and marks local free.
func (t *Table_t) Close(local int) defs.Err_t {
	t.mu.Lock()
	gi := -1
	if local >= 0 && local < NumFds {
		gi = t.local[local]
	}
	t.mu.Unlock()
	if gi == -1 {
		return defs.EBADF
	}
	fd := t.global.Get(gi)
	if fd == nil {
		return defs.EBADF
	}
	err := fd.Fops.Close()
	t.global.Free(gi)
	t.mu.Lock()
	t.local[local] = -1
	t.mu.Unlock()
	return err
}

/// Redirect implements spec.md §4.J's fd_redirect: copy the global slot
/// new currently refers to onto old, aliasing old to whatever new names
/// right now (a pipe end, a reopened file, or stdio itself).
func (t *Table_t) Redirect(old, new int) defs.Err_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	if new < 0 || new >= NumFds || old < 0 || old >= NumFds {
		return defs.EBADF
	}
	t.local[old] = t.local[new]
	return 0
}

/// RawGlobal returns the raw global-table index bound to local slot n,
/// or -1 if unbound. original_source/shell/pipe.c's sys_fd_redirect can
/// restore a pre-redirect stdio binding with a literal small integer
/// because its global table pins slots 0-2 to stdin/stdout/stderr; this
/// table's global indices are handed out dynamically by GlobalTable_t
/// instead; src/shell saves a stdio slot's RawGlobal before redirecting
/// a pipeline stage and feeds it back through SetStdio afterward.
func (t *Table_t) RawGlobal(n int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n < 0 || n >= NumFds {
		return -1
	}
	return t.local[n]
}

/// Cwd_t tracks a task's current working directory as an inode number,
/// adapted from biscuit's Fd_t-based Cwd_t down to spec.md's
/// inode-number-keyed file system. Like Table_t, it wraps the owning
/// task.Task_t's own Cwdino field by pointer rather than keeping a
/// private copy, so a fork that copies the parent's Task_t carries its
/// cwd along for free.
type Cwd_t struct {
	mu  sync.Mutex
	ino *uint32
}

/// MkCwd constructs a Cwd_t view over ino (normally &task.Task_t.Cwdino).
func MkCwd(ino *uint32) *Cwd_t {
	return &Cwd_t{ino: ino}
}

/// MkRootCwd constructs a standalone Cwd_t rooted at the file system
/// root inode, for callers with no task.Task_t to wrap (tests, or a
/// bare in-memory directory handle).
func MkRootCwd() *Cwd_t {
	var ino uint32
	return &Cwd_t{ino: &ino}
}

/// Get returns the current working directory's inode number.
func (c *Cwd_t) Get() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.ino
}

/// Set updates the current working directory to n.
func (c *Cwd_t) Set(n uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.ino = n
}
