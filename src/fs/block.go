// Block-pointer walking shared by directory and regular-file I/O:
// locating/allocating the block backing a given logical block index,
// transparently crossing from the 12 direct pointers into the single
// indirect table at index 12. Grounded on original_source/fs/inode.c's
// get_data_block/bmap-equivalent walk, narrowed to spec.md's exact
// 12-direct-plus-1-indirect layout (no double indirection).
package fs

import "encoding/binary"

// ptrsPerBlock is how many uint32 block pointers fit in one indirect
// table block.
const ptrsPerBlock = BlockSize / 4

// maxBlocksPerFile is the largest logical block index a file or
// directory can address: 12 direct plus ptrsPerBlock indirect.
const maxBlocksPerFile = NumDirect + ptrsPerBlock

func (fs *Fs_t) readIndirectTable(ino *Inode_t) ([]uint32, error) {
	buf := make([]byte, BlockSize)
	if err := fs.readSectors(uint64(ino.IBlocks[IndirectIdx]), 1, buf); err != nil {
		return nil, err
	}
	ptrs := make([]uint32, ptrsPerBlock)
	for i := range ptrs {
		ptrs[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return ptrs, nil
}

func (fs *Fs_t) writeIndirectTable(ino *Inode_t, ptrs []uint32) error {
	buf := make([]byte, BlockSize)
	for i, p := range ptrs {
		binary.LittleEndian.PutUint32(buf[i*4:], p)
	}
	return fs.writeSectors(uint64(ino.IBlocks[IndirectIdx]), 1, buf)
}

// blockAt returns the absolute LBA backing logical block idx of ino,
// or ok=false if that block has never been allocated.
func (fs *Fs_t) blockAt(ino *Inode_t, idx int) (lba uint32, ok bool, err error) {
	if idx < NumDirect {
		lba = ino.IBlocks[idx]
		return lba, lba != 0, nil
	}
	if ino.IBlocks[IndirectIdx] == 0 {
		return 0, false, nil
	}
	ptrs, err := fs.readIndirectTable(ino)
	if err != nil {
		return 0, false, err
	}
	lba = ptrs[idx-NumDirect]
	return lba, lba != 0, nil
}

// blockAtForWrite returns the absolute LBA backing logical block idx
// of ino, allocating it (and the indirect table, if idx reaches 12)
// on demand, per spec.md's "Directory entry insert" walk. The inode
// is not synced here; the caller does so once after growing its size.
func (fs *Fs_t) blockAtForWrite(ino *Inode_t, idx int) (uint32, error) {
	if idx < NumDirect {
		if ino.IBlocks[idx] != 0 {
			return ino.IBlocks[idx], nil
		}
		lba, err := fs.allocBlock()
		if err != nil {
			return 0, err
		}
		if err := fs.zeroBlock(lba); err != nil {
			fs.freeBlock(lba)
			return 0, err
		}
		ino.IBlocks[idx] = lba
		return lba, nil
	}

	if ino.IBlocks[IndirectIdx] == 0 {
		// Special case: the indirect table itself doesn't exist yet.
		// Allocate it, then allocate the data block for entry 0; on
		// failure roll back the indirect table allocation.
		tableLba, err := fs.allocBlock()
		if err != nil {
			return 0, err
		}
		dataLba, err := fs.allocBlock()
		if err != nil {
			fs.freeBlock(tableLba)
			return 0, err
		}
		if err := fs.zeroBlock(dataLba); err != nil {
			fs.freeBlock(dataLba)
			fs.freeBlock(tableLba)
			return 0, err
		}
		ptrs := make([]uint32, ptrsPerBlock)
		ptrs[idx-NumDirect] = dataLba
		ino.IBlocks[IndirectIdx] = tableLba
		if err := fs.writeIndirectTable(ino, ptrs); err != nil {
			ino.IBlocks[IndirectIdx] = 0
			fs.freeBlock(dataLba)
			fs.freeBlock(tableLba)
			return 0, err
		}
		return dataLba, nil
	}

	ptrs, err := fs.readIndirectTable(ino)
	if err != nil {
		return 0, err
	}
	if ptrs[idx-NumDirect] != 0 {
		return ptrs[idx-NumDirect], nil
	}
	lba, err := fs.allocBlock()
	if err != nil {
		return 0, err
	}
	if err := fs.zeroBlock(lba); err != nil {
		fs.freeBlock(lba)
		return 0, err
	}
	ptrs[idx-NumDirect] = lba
	if err := fs.writeIndirectTable(ino, ptrs); err != nil {
		fs.freeBlock(lba)
		return 0, err
	}
	return lba, nil
}

func (fs *Fs_t) zeroBlock(lba uint32) error {
	buf := make([]byte, BlockSize)
	return fs.writeSectors(uint64(lba), 1, buf)
}
