// Package stat defines the Stat_t structure returned by sys_stat, trimmed
// from the teacher's (biscuit/src/stat/stat.go) wider POSIX-flavoured
// version down to the fields this kernel's inode model actually carries:
// no uid/rdev/mode, since spec.md's Non-goals exclude POSIX permissions
// and there are no device nodes in this file system.
package stat

import (
	"unsafe"

	"github.com/HaoLin-hub/sparrowos/src/defs"
)

/// Stat_t mirrors the fields of an on-disk inode relevant to callers of
/// sys_stat.
type Stat_t struct {
	_ino    uint32
	_ftype  uint32
	_size   uint32
	_blocks uint32
}

/// Wino stores the inode number.
func (st *Stat_t) Wino(v uint32) {
	st._ino = v
}

/// Wftype records the file type (Unknown/Regular/Directory).
func (st *Stat_t) Wftype(v defs.Ftype_t) {
	st._ftype = uint32(v)
}

/// Wsize records the file size in bytes.
func (st *Stat_t) Wsize(v uint32) {
	st._size = v
}

/// Wblocks records the number of data blocks allocated to the file.
func (st *Stat_t) Wblocks(v uint32) {
	st._blocks = v
}

/// Ino returns the stored inode number.
func (st *Stat_t) Ino() uint32 {
	return st._ino
}

/// Ftype returns the stored file type.
func (st *Stat_t) Ftype() defs.Ftype_t {
	return defs.Ftype_t(st._ftype)
}

/// Size returns the stored size.
func (st *Stat_t) Size() uint32 {
	return st._size
}

/// Blocks returns the stored block count.
func (st *Stat_t) Blocks() uint32 {
	return st._blocks
}

/// Bytes exposes the raw bytes of the structure, for copying into a
/// user buffer.
func (st *Stat_t) Bytes() []uint8 {
	const sz = unsafe.Sizeof(*st)
	sl := (*[sz]uint8)(unsafe.Pointer(&st._ino))
	return sl[:]
}
