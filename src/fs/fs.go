// Fs_t: the mounted partition handle, block/inode bitmap management,
// and Format/Mount. Grounded on biscuit/src/fs/fs.go's Fs_t (holding
// the superblock, the two bitmaps, and the open-inodes list) narrowed
// to a single eager, non-journaled partition.
package fs

import (
	"fmt"
	"sync"

	"github.com/HaoLin-hub/sparrowos/src/ata"
	"github.com/HaoLin-hub/sparrowos/src/bitmap"
	"github.com/HaoLin-hub/sparrowos/src/defs"
	"github.com/HaoLin-hub/sparrowos/src/list"
)

// RootInode is the inode number of a partition's root directory.
const RootInode = 0

/// Fs_t is one mounted partition.
type Fs_t struct {
	ch       *ata.Channel_t
	dev      int
	startLBA uint64 // partition's first absolute LBA

	mu         sync.Mutex
	sb         Superblock_t
	blockBm    *bitmap.Bitmap_t
	inodeBm    *bitmap.Bitmap_t
	openInodes list.List_t[*Inode_t]
}

func (fs *Fs_t) readSectors(lba uint64, n int, dst []byte) error {
	if err := fs.ch.Read(fs.dev, fs.startLBA+lba, n, dst); err != 0 {
		return fmt.Errorf("fs: read lba %d: errno %d", lba, err)
	}
	return nil
}

func (fs *Fs_t) writeSectors(lba uint64, n int, src []byte) error {
	if err := fs.ch.Write(fs.dev, fs.startLBA+lba, n, src); err != 0 {
		return fmt.Errorf("fs: write lba %d: errno %d", lba, err)
	}
	return nil
}

// bitmapSectors returns how many sectors are needed to hold nbits.
func bitmapSectors(nbits int) int {
	bytes := (nbits + 7) / 8
	return (bytes + BlockSize - 1) / BlockSize
}

/// Format lays out a fresh file system across a partition of
/// totalBlocks usable data+metadata blocks, per spec.md §4.H "Format":
/// compute bitmap/table sizes, write the super block, initialise both
/// bitmaps (block 0 reserved for the root directory's data, inode 0
/// reserved for root), and write the root directory's "." and "..".
func Format(ch *ata.Channel_t, dev int, startLBA uint64, totalBlocks uint32) error {
	numInodes := uint32(MaxInodes)
	inodeBitmapSectors := uint32(bitmapSectors(int(numInodes)))
	inodeTableSectors := uint32((numInodes*inodeDiskSize + BlockSize - 1) / BlockSize)

	// Reserve sector 0 (boot/MBR) and sector 1 (super block); bitmaps,
	// table, and data area follow.
	//
	// numDataBlocks is chosen so the whole layout fits in totalBlocks;
	// the block bitmap itself must cover exactly numDataBlocks bits.
	// Solve iteratively: block bitmap size depends on numDataBlocks,
	// which depends on how much is left after overhead. One pass is
	// enough since bitmapSectors grows far slower than totalBlocks.
	overhead := uint32(2) // boot + super
	numDataBlocks := totalBlocks - overhead - inodeBitmapSectors - inodeTableSectors
	blockBitmapSectors := uint32(bitmapSectors(int(numDataBlocks)))
	numDataBlocks = totalBlocks - overhead - blockBitmapSectors - inodeBitmapSectors - inodeTableSectors

	blockBitmapLBA := overhead
	inodeBitmapLBA := blockBitmapLBA + blockBitmapSectors
	inodeTableLBA := inodeBitmapLBA + inodeBitmapSectors
	dataLBA := inodeTableLBA + inodeTableSectors

	var sb Superblock_t
	sb.setMagic(Magic)
	sb.setBlockBitmapLBA(blockBitmapLBA)
	sb.setInodeBitmapLBA(inodeBitmapLBA)
	sb.setInodeTableLBA(inodeTableLBA)
	sb.setDataLBA(dataLBA)
	sb.setNumBlocks(numDataBlocks)
	sb.setNumInodes(numInodes)
	sb.setDirEntrySize(DirEntrySize)
	if err := writeAt(ch, dev, startLBA, 1, 1, sb.data[:]); err != nil {
		return err
	}

	// Block bitmap: bit 0 set (root's data block), every bit beyond
	// numDataBlocks forced to 1 to trap accidental allocation past the
	// true tail, per spec.md.
	blockBm := bitmap.MkBitmap(int(blockBitmapSectors) * BlockSize * 8)
	blockBm.Set(0)
	blockBm.SetRange(int(numDataBlocks), blockBm.Len())
	if err := writeBitmap(ch, dev, startLBA, uint64(blockBitmapLBA), int(blockBitmapSectors), blockBm); err != nil {
		return err
	}

	// Inode bitmap: bit 0 set (root inode).
	inodeBm := bitmap.MkBitmap(int(inodeBitmapSectors) * BlockSize * 8)
	inodeBm.Set(RootInode)
	if err := writeBitmap(ch, dev, startLBA, uint64(inodeBitmapLBA), int(inodeBitmapSectors), inodeBm); err != nil {
		return err
	}

	// Root inode: one direct block at the data area start, size two
	// directory entries.
	root := &Inode_t{InodeNo: RootInode, Size: 2 * DirEntrySize, Ftype: defs.FT_DIR}
	root.IBlocks[0] = dataLBA // absolute LBA of the root's sole data block
	rec := root.encode()
	if err := writeInodeRawAt(ch, dev, startLBA, RootInode, rec); err != nil {
		return err
	}

	// Root directory block: "." and ".." both pointing at inode 0.
	dirblk := make([]byte, BlockSize)
	copy(dirblk[0:DirEntrySize], encodeDirent(Dirent_t{Name: ".", InodeNo: RootInode, Ftype: defs.FT_DIR}))
	copy(dirblk[DirEntrySize:2*DirEntrySize], encodeDirent(Dirent_t{Name: "..", InodeNo: RootInode, Ftype: defs.FT_DIR}))
	return writeAt(ch, dev, startLBA, uint64(dataLBA), 1, dirblk)
}

func writeAt(ch *ata.Channel_t, dev int, startLBA, lba uint64, n int, data []byte) error {
	if err := ch.Write(dev, startLBA+lba, n, data); err != 0 {
		return fmt.Errorf("fs: format write lba %d: errno %d", lba, err)
	}
	return nil
}

func writeBitmap(ch *ata.Channel_t, dev int, startLBA, lba uint64, sectors int, bm *bitmap.Bitmap_t) error {
	buf := make([]byte, sectors*BlockSize)
	bitmapToBytes(bm, buf)
	return writeAt(ch, dev, startLBA, lba, sectors, buf)
}

func writeInodeRawAt(ch *ata.Channel_t, dev int, startLBA uint64, n uint32, rec []byte) error {
	byteOff := uint64(n) * inodeDiskSize
	// Inode table starts right after bitmaps; Format always places
	// inode 0 at the very first inode-table sector, offset 0, so a
	// direct write suffices here without re-deriving the table LBA.
	_ = byteOff
	buf := make([]byte, BlockSize)
	copy(buf[0:inodeDiskSize], rec)
	var sb Superblock_t
	if err := ch.Read(dev, startLBA+1, 1, sb.data[:]); err != 0 {
		return fmt.Errorf("fs: reread super block: errno %d", err)
	}
	return writeAt(ch, dev, startLBA, uint64(sb.InodeTableLBA()), 1, buf)
}

func bitmapToBytes(bm *bitmap.Bitmap_t, dst []byte) {
	for i := 0; i < bm.Len(); i++ {
		if bm.Test(i) {
			dst[i/8] |= 1 << uint(i%8)
		}
	}
}

func bytesToBitmap(src []byte, nbits int) *bitmap.Bitmap_t {
	bm := bitmap.MkBitmap(nbits)
	for i := 0; i < nbits; i++ {
		if src[i/8]&(1<<uint(i%8)) != 0 {
			bm.Set(i)
		}
	}
	return bm
}

/// Mount reads the super block and both bitmaps off a previously
/// formatted partition, per spec.md §4.H "Mount".
func Mount(ch *ata.Channel_t, dev int, startLBA uint64) (*Fs_t, error) {
	fs := &Fs_t{ch: ch, dev: dev, startLBA: startLBA}
	if err := fs.readSectors(1, 1, fs.sb.data[:]); err != nil {
		return nil, err
	}
	if fs.sb.Magic() != Magic {
		return nil, fmt.Errorf("fs: bad super block magic %#x", fs.sb.Magic())
	}

	blockBitmapSectors := bitmapSectors(int(fs.sb.NumBlocks()))
	blockBuf := make([]byte, blockBitmapSectors*BlockSize)
	if err := fs.readSectors(uint64(fs.sb.BlockBitmapLBA()), blockBitmapSectors, blockBuf); err != nil {
		return nil, err
	}
	fs.blockBm = bytesToBitmap(blockBuf, int(fs.sb.NumBlocks()))

	inodeBitmapSectors := bitmapSectors(int(fs.sb.NumInodes()))
	inodeBuf := make([]byte, inodeBitmapSectors*BlockSize)
	if err := fs.readSectors(uint64(fs.sb.InodeBitmapLBA()), inodeBitmapSectors, inodeBuf); err != nil {
		return nil, err
	}
	fs.inodeBm = bytesToBitmap(inodeBuf, int(fs.sb.NumInodes()))

	return fs, nil
}

func (fs *Fs_t) syncBlockBitmap() error {
	sectors := bitmapSectors(int(fs.sb.NumBlocks()))
	buf := make([]byte, sectors*BlockSize)
	bitmapToBytes(fs.blockBm, buf)
	return fs.writeSectors(uint64(fs.sb.BlockBitmapLBA()), sectors, buf)
}

func (fs *Fs_t) syncInodeBitmap() error {
	sectors := bitmapSectors(int(fs.sb.NumInodes()))
	buf := make([]byte, sectors*BlockSize)
	bitmapToBytes(fs.inodeBm, buf)
	return fs.writeSectors(uint64(fs.sb.InodeBitmapLBA()), sectors, buf)
}

// allocBlock reserves one free data block, returning its absolute LBA.
func (fs *Fs_t) allocBlock() (uint32, error) {
	i := fs.blockBm.ScanZeros(1, 0)
	if i < 0 {
		return 0, fmt.Errorf("fs: no free blocks (errno %d)", defs.ENOSPC)
	}
	fs.blockBm.Set(i)
	if err := fs.syncBlockBitmap(); err != nil {
		fs.blockBm.Clear(i)
		return 0, err
	}
	return fs.sb.DataLBA() + uint32(i), nil
}

func (fs *Fs_t) freeBlock(lba uint32) error {
	i := int(lba - fs.sb.DataLBA())
	fs.blockBm.Clear(i)
	return fs.syncBlockBitmap()
}

// allocInode reserves one free inode number.
func (fs *Fs_t) allocInode() (uint32, error) {
	i := fs.inodeBm.ScanZeros(1, 0)
	if i < 0 {
		return 0, fmt.Errorf("fs: no free inodes (errno %d)", defs.ENOSPC)
	}
	fs.inodeBm.Set(i)
	if err := fs.syncInodeBitmap(); err != nil {
		fs.inodeBm.Clear(i)
		return 0, err
	}
	return uint32(i), nil
}

func (fs *Fs_t) freeInode(n uint32) error {
	fs.inodeBm.Clear(int(n))
	return fs.syncInodeBitmap()
}
