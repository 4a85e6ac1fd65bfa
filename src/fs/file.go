// Regular-file create/open/read/write/seek and unlink (spec.md §4.H
// "File create, open, read, write, seek" / "Unlink"). Grounded on
// original_source/fs/file.c's offset-driven readi/writei loop, walking
// the same block list block.go exposes, one block at a time into a
// caller-supplied buffer (standing in for the kernel's arena-sized I/O
// buffer).
package fs

import (
	"fmt"

	"github.com/HaoLin-hub/sparrowos/src/defs"
)

/// File_t is an open regular file: the inode plus a current byte
/// offset, one per open (multiple opens of the same inode each get
/// their own File_t but share the single in-memory Inode_t via the
/// open-inodes list refcount).
type File_t struct {
	fs  *Fs_t
	ino *Inode_t
	pos uint32
}

/// CreateFile implements spec.md's "File create": reserve an inode
/// bit, install a fresh inode, append a directory entry to parent,
/// and return an open handle. parent must already be open (as left by
/// a miss from SearchFile) and is not closed here; the caller does so.
func (fs *Fs_t) CreateFile(parent *Inode_t, name string) (*File_t, error) {
	n, err := fs.allocInode()
	if err != nil {
		return nil, err
	}
	ino := &Inode_t{InodeNo: n, Ftype: defs.FT_REGULAR, OpenCount: 1}
	if err := fs.writeInodeRaw(n, ino.encode()); err != nil {
		fs.freeInode(n)
		return nil, err
	}
	if err := fs.InsertDirent(parent, Dirent_t{Name: name, InodeNo: n, Ftype: defs.FT_REGULAR}); err != nil {
		fs.freeInode(n)
		return nil, err
	}
	fs.mu.Lock()
	ino.elem = fs.openInodes.PushHead(ino)
	fs.mu.Unlock()
	return &File_t{fs: fs, ino: ino}, nil
}

/// OpenFile opens an existing regular file by inode number. Refuses a
/// file mid-write, per spec.md §9's write_deny mutual-exclusion
/// resolution.
func (fs *Fs_t) OpenFile(n uint32) (*File_t, error) {
	ino, err := fs.OpenInode(n, defs.FT_REGULAR)
	if err != nil {
		return nil, err
	}
	if ino.WriteDeny {
		fs.CloseInode(ino)
		return nil, fmt.Errorf("fs: file %d is being written", n)
	}
	return &File_t{fs: fs, ino: ino}, nil
}

/// Close releases the file's reference to its inode. It does not
/// remove the inode even at zero open count; removal only happens via
/// Unlink.
func (f *File_t) Close() {
	f.fs.CloseInode(f.ino)
}

/// Read copies up to len(dst) bytes starting at the file's current
/// position, walking the inode's block list one block at a time,
/// advancing the position, and returning the count actually read
/// (short at end of file).
func (f *File_t) Read(dst []byte) (int, error) {
	fs := f.fs
	ino := f.ino
	n := 0
	for n < len(dst) && f.pos < ino.Size {
		idx := int(f.pos / BlockSize)
		off := int(f.pos % BlockSize)
		lba, ok, err := fs.blockAt(ino, idx)
		if err != nil {
			return n, err
		}
		buf := make([]byte, BlockSize)
		if ok {
			if err := fs.readSectors(uint64(lba), 1, buf); err != nil {
				return n, err
			}
		}
		avail := BlockSize - off
		if remain := int(ino.Size - f.pos); avail > remain {
			avail = remain
		}
		want := len(dst) - n
		if want > avail {
			want = avail
		}
		copy(dst[n:n+want], buf[off:off+want])
		n += want
		f.pos += uint32(want)
	}
	return n, nil
}

/// Write copies src into the file starting at the current position,
/// allocating new blocks (and the indirect table, via blockAtForWrite)
/// as needed, and growing the inode's size if the write extends past
/// the current end. Sets write_deny for the call's duration, per
/// spec.md §9's mutual-exclusion resolution, so a concurrent open or
/// unlink of the same inode is refused while a write is in flight.
func (f *File_t) Write(src []byte) (int, error) {
	fs := f.fs
	ino := f.ino
	ino.WriteDeny = true
	defer func() { ino.WriteDeny = false }()
	n := 0
	for n < len(src) {
		idx := int(f.pos / BlockSize)
		off := int(f.pos % BlockSize)
		if idx >= maxBlocksPerFile {
			return n, fmt.Errorf("fs: file %d exceeds maximum size", ino.InodeNo)
		}
		lba, err := fs.blockAtForWrite(ino, idx)
		if err != nil {
			return n, err
		}
		buf := make([]byte, BlockSize)
		if err := fs.readSectors(uint64(lba), 1, buf); err != nil {
			return n, err
		}
		want := len(src) - n
		if want > BlockSize-off {
			want = BlockSize - off
		}
		copy(buf[off:off+want], src[n:n+want])
		if err := fs.writeSectors(uint64(lba), 1, buf); err != nil {
			return n, err
		}
		n += want
		f.pos += uint32(want)
		if f.pos > ino.Size {
			ino.Size = f.pos
		}
	}
	if err := fs.Sync(ino); err != nil {
		return n, err
	}
	return n, nil
}

/// Seek repositions the file per spec.md's SET/CUR/END whence values.
/// Bounds-checked to 0 <= new_pos <= size, relaxed from the stricter
/// new_pos < size (see spec.md §9's open question) so seek-to-end
/// followed by write can append.
func (f *File_t) Seek(off int64, whence int) (uint32, error) {
	var base int64
	switch whence {
	case defs.SEEK_SET:
		base = 0
	case defs.SEEK_CUR:
		base = int64(f.pos)
	case defs.SEEK_END:
		base = int64(f.ino.Size)
	default:
		return f.pos, fmt.Errorf("fs: bad whence %d", whence)
	}
	newPos := base + off
	// <= size, not < size: this deliberately supersedes spec.md §8's
	// literal "END,offset=0 positions at size-1" boundary property, per
	// the §9 open question resolution in DESIGN.md.
	if newPos < 0 || newPos > int64(f.ino.Size) {
		return f.pos, fmt.Errorf("fs: seek out of range: %d", newPos)
	}
	f.pos = uint32(newPos)
	return f.pos, nil
}

/// Unlink implements spec.md's "Unlink": refuses a directory, refuses
/// a file that is currently open elsewhere, otherwise removes the
/// directory entry and releases the inode's blocks and bitmap bit.
func (fs *Fs_t) Unlink(parent *Inode_t, name string) error {
	d, found, err := fs.LookupDirent(parent, name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("fs: %q not found", name)
	}
	if d.Ftype == defs.FT_DIR {
		return fmt.Errorf("fs: %q is a directory", name)
	}

	fs.mu.Lock()
	open := fs.findOpen(d.InodeNo)
	fs.mu.Unlock()
	if open != nil {
		return fmt.Errorf("fs: %q is open", name)
	}

	if err := fs.DeleteDirent(parent, name); err != nil {
		return err
	}

	ino, err := fs.OpenInode(d.InodeNo, d.Ftype)
	if err != nil {
		return err
	}
	defer fs.CloseInode(ino)

	for idx := 0; idx < NumDirect; idx++ {
		if ino.IBlocks[idx] != 0 {
			if err := fs.freeBlock(ino.IBlocks[idx]); err != nil {
				return err
			}
			ino.IBlocks[idx] = 0
		}
	}
	if ino.IBlocks[IndirectIdx] != 0 {
		ptrs, err := fs.readIndirectTable(ino)
		if err != nil {
			return err
		}
		for _, p := range ptrs {
			if p != 0 {
				if err := fs.freeBlock(p); err != nil {
					return err
				}
			}
		}
		if err := fs.freeBlock(ino.IBlocks[IndirectIdx]); err != nil {
			return err
		}
		ino.IBlocks[IndirectIdx] = 0
	}
	return fs.freeInode(d.InodeNo)
}
