// Package fs implements the on-disk UNIX-style file system, component
// H: superblock, block/inode bitmaps, 13-pointer inodes (12 direct +
// 1 indirect), fixed-size directory entries, and path resolution.
// Grounded on biscuit/src/fs/super.go's fixed-offset field accessor
// style (`fieldr`/`fieldw` reading uint32s out of a raw block) applied
// to spec.md §3's exact on-disk layout: magic `0x19980924`, counts and
// LBA bases for the block bitmap, inode bitmap, inode table, and data
// area, sitting in sector 1 of the partition. Unlike the teacher, there
// is no log/journal here — biscuit's superblock also carries orphan-
// inode and log-length fields for crash recovery, which spec.md's
// Non-goals exclude (this kernel does not claim to survive a crash
// mid-write); only the fields spec.md's data model names are kept.
package fs

import (
	"encoding/binary"

	"github.com/HaoLin-hub/sparrowos/src/ata"
)

// BlockSize is the size in bytes of one file-system block, equal to
// one disk sector.
const BlockSize = ata.SectorSize

// Magic identifies a formatted partition's super block.
const Magic = 0x19980924

// MaxInodes bounds the inode bitmap to exactly one sector (4096 bits).
const MaxInodes = 4096

// DirEntrySize is the fixed size of one directory entry record; see
// Dirent_t. 512 is not evenly divisible by 24, so entriesPerBlock
// blocks leave 512%24=8 trailing bytes unused per directory block —
// acceptable since spec.md only forbids an entry straddling a sector,
// not full packing.
const DirEntrySize = 24

const entriesPerBlock = BlockSize / DirEntrySize

// superblock field offsets, in uint32s, within sector 1.
const (
	sbMagic          = 0
	sbBlockBitmapLBA = 1
	sbInodeBitmapLBA = 2
	sbInodeTableLBA  = 3
	sbDataLBA        = 4
	sbNumBlocks      = 5
	sbNumInodes      = 6
	sbDirEntrySize   = 7
)

/// Superblock_t is the in-memory copy of sector 1 of a formatted
/// partition.
type Superblock_t struct {
	data [BlockSize]byte
}

func (sb *Superblock_t) fieldr(i int) uint32 {
	return binary.LittleEndian.Uint32(sb.data[i*4 : i*4+4])
}

func (sb *Superblock_t) fieldw(i int, v uint32) {
	binary.LittleEndian.PutUint32(sb.data[i*4:i*4+4], v)
}

func (sb *Superblock_t) Magic() uint32          { return sb.fieldr(sbMagic) }
func (sb *Superblock_t) BlockBitmapLBA() uint32 { return sb.fieldr(sbBlockBitmapLBA) }
func (sb *Superblock_t) InodeBitmapLBA() uint32 { return sb.fieldr(sbInodeBitmapLBA) }
func (sb *Superblock_t) InodeTableLBA() uint32  { return sb.fieldr(sbInodeTableLBA) }
func (sb *Superblock_t) DataLBA() uint32        { return sb.fieldr(sbDataLBA) }
func (sb *Superblock_t) NumBlocks() uint32      { return sb.fieldr(sbNumBlocks) }
func (sb *Superblock_t) NumInodes() uint32      { return sb.fieldr(sbNumInodes) }
func (sb *Superblock_t) DirEntrySize() uint32   { return sb.fieldr(sbDirEntrySize) }

func (sb *Superblock_t) setMagic(v uint32)          { sb.fieldw(sbMagic, v) }
func (sb *Superblock_t) setBlockBitmapLBA(v uint32) { sb.fieldw(sbBlockBitmapLBA, v) }
func (sb *Superblock_t) setInodeBitmapLBA(v uint32) { sb.fieldw(sbInodeBitmapLBA, v) }
func (sb *Superblock_t) setInodeTableLBA(v uint32)  { sb.fieldw(sbInodeTableLBA, v) }
func (sb *Superblock_t) setDataLBA(v uint32)        { sb.fieldw(sbDataLBA, v) }
func (sb *Superblock_t) setNumBlocks(v uint32)      { sb.fieldw(sbNumBlocks, v) }
func (sb *Superblock_t) setNumInodes(v uint32)      { sb.fieldw(sbNumInodes, v) }
func (sb *Superblock_t) setDirEntrySize(v uint32)   { sb.fieldw(sbDirEntrySize, v) }
