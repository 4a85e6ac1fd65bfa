// Inode representation and the locate/open/close machinery (spec.md
// §4.H "Inode locate"/"Inode open"). Grounded on biscuit/src/fs/fs.go's
// Imemnode_t (in-memory inode wrapping an on-disk layout, open-inodes
// list, open_count refcounting) narrowed to spec.md's exact 13-pointer
// field set — no extents, no dev/major/minor, no directory-specific
// subtype beyond Ftype_t.
package fs

import (
	"encoding/binary"

	"github.com/HaoLin-hub/sparrowos/src/defs"
	"github.com/HaoLin-hub/sparrowos/src/list"
)

// NumDirect is the count of direct block pointers an inode carries.
const NumDirect = 12

// IndirectIdx is the i_blocks index holding the single indirect block
// pointer.
const IndirectIdx = NumDirect

// NumBlockPtrs is len(i_blocks): 12 direct plus 1 indirect.
const NumBlockPtrs = NumDirect + 1

// inodeDiskSize is the on-disk size of one inode record:
// inode_no, size, open_count, write_deny (4 uint32s) plus 13 block
// pointers.
const inodeDiskSize = 4*4 + NumBlockPtrs*4

/// Inode_t is the in-memory copy of one on-disk inode, plus the link
/// used by the partition's open-inodes list. OpenCount and WriteDeny
/// are memory-only: encode writes both as zero, and the list link is
/// never serialised.
type Inode_t struct {
	InodeNo   uint32
	Size      uint32
	OpenCount uint32
	WriteDeny bool
	IBlocks   [NumBlockPtrs]uint32
	Ftype     defs.Ftype_t

	elem *list.Elem_t[*Inode_t]
}

func (ino *Inode_t) encode() []byte {
	buf := make([]byte, inodeDiskSize)
	binary.LittleEndian.PutUint32(buf[0:], ino.InodeNo)
	binary.LittleEndian.PutUint32(buf[4:], ino.Size)
	// buf[8:16] (open_count, write_deny) stays zero: memory-only fields.
	for i, b := range ino.IBlocks {
		binary.LittleEndian.PutUint32(buf[16+i*4:], b)
	}
	return buf
}

func decodeInode(buf []byte, ftype defs.Ftype_t) *Inode_t {
	ino := &Inode_t{Ftype: ftype}
	ino.InodeNo = binary.LittleEndian.Uint32(buf[0:])
	ino.Size = binary.LittleEndian.Uint32(buf[4:])
	ino.OpenCount = binary.LittleEndian.Uint32(buf[8:])
	ino.WriteDeny = binary.LittleEndian.Uint32(buf[12:]) != 0
	for i := range ino.IBlocks {
		ino.IBlocks[i] = binary.LittleEndian.Uint32(buf[16+i*4:])
	}
	return ino
}

// inodeLocation returns which sector (absolute LBA) and byte offset
// within it inode n's record lives at, per spec.md: "inode_table_lba +
// (N*sizeof(inode))/512, offset (N*sizeof(inode)) mod 512".
func (fs *Fs_t) inodeLocation(n uint32) (lba uint64, off int) {
	byteOff := uint64(n) * inodeDiskSize
	lba = uint64(fs.sb.InodeTableLBA()) + byteOff/BlockSize
	off = int(byteOff % BlockSize)
	return
}

// readInodeRaw reads an inode's record, transparently handling the
// case where it straddles two sectors.
func (fs *Fs_t) readInodeRaw(n uint32) ([]byte, error) {
	lba, off := fs.inodeLocation(n)
	need := off + inodeDiskSize
	sectors := (need + BlockSize - 1) / BlockSize
	buf := make([]byte, sectors*BlockSize)
	if err := fs.readSectors(lba, sectors, buf); err != nil {
		return nil, err
	}
	return buf[off : off+inodeDiskSize], nil
}

// writeInodeRaw writes an inode's record back, read-modify-write style
// across however many sectors it straddles.
func (fs *Fs_t) writeInodeRaw(n uint32, rec []byte) error {
	lba, off := fs.inodeLocation(n)
	need := off + inodeDiskSize
	sectors := (need + BlockSize - 1) / BlockSize
	buf := make([]byte, sectors*BlockSize)
	if err := fs.readSectors(lba, sectors, buf); err != nil {
		return err
	}
	copy(buf[off:off+inodeDiskSize], rec)
	return fs.writeSectors(lba, sectors, buf)
}

// findOpen scans the open-inodes list for n, per spec.md's "Inode
// open" step one.
func (fs *Fs_t) findOpen(n uint32) *Inode_t {
	e, ok := fs.openInodes.Find(func(ino *Inode_t, arg int) bool {
		return ino.InodeNo == uint32(arg)
	}, int(n))
	if !ok {
		return nil
	}
	return e.Val()
}

/// OpenInode returns the in-memory inode for n, bumping its open count
/// if already resident, or reading it from disk and linking it into
/// the open list otherwise.
func (fs *Fs_t) OpenInode(n uint32, ftype defs.Ftype_t) (*Inode_t, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if ino := fs.findOpen(n); ino != nil {
		ino.OpenCount++
		return ino, nil
	}
	rec, err := fs.readInodeRaw(n)
	if err != nil {
		return nil, err
	}
	ino := decodeInode(rec, ftype)
	ino.OpenCount = 1
	ino.elem = fs.openInodes.PushHead(ino)
	return ino, nil
}

/// CloseInode decrements n's open count; at zero it unlinks it from
/// the open-inodes list. The caller is responsible for calling Sync
/// first if it mutated the inode.
func (fs *Fs_t) CloseInode(ino *Inode_t) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ino.OpenCount--
	if ino.OpenCount == 0 {
		fs.openInodes.Remove(ino.elem)
		ino.elem = nil
	}
}

/// Sync writes ino's current in-memory state back to its on-disk
/// record.
func (fs *Fs_t) Sync(ino *Inode_t) error {
	return fs.writeInodeRaw(ino.InodeNo, ino.encode())
}
