// Directory-entry insert/delete/search and path resolution (spec.md
// §4.H "Directory entry insert"/"delete"/"Search file"/"Path parser").
// Grounded on original_source/fs/dir.c's dirlookup/dirlink linear-scan
// style, walking the same 12-direct+1-indirect block list block.go
// exposes.
package fs

import (
	"fmt"

	"github.com/HaoLin-hub/sparrowos/src/defs"
	"github.com/HaoLin-hub/sparrowos/src/ustr"
)

// dirBlock reads logical block idx of a directory inode, returning
// ok=false if that block was never allocated (an empty directory has
// none beyond block 0).
func (fs *Fs_t) dirBlock(ino *Inode_t, idx int) ([]byte, uint32, bool, error) {
	lba, ok, err := fs.blockAt(ino, idx)
	if err != nil || !ok {
		return nil, 0, false, err
	}
	buf := make([]byte, BlockSize)
	if err := fs.readSectors(uint64(lba), 1, buf); err != nil {
		return nil, 0, false, err
	}
	return buf, lba, true, nil
}

// searchDirBlock scans one directory block for name, returning the
// matching entry and its byte offset within the block.
func searchDirBlock(buf []byte, name string) (Dirent_t, int, bool) {
	for off := 0; off+DirEntrySize <= BlockSize; off += DirEntrySize {
		rec := buf[off : off+DirEntrySize]
		if isFreeDirentSlot(rec) {
			continue
		}
		d := decodeDirent(rec)
		if d.Name == name {
			return d, off, true
		}
	}
	return Dirent_t{}, 0, false
}

/// LookupDirent searches ino (which must be a directory) for an entry
/// named name.
func (fs *Fs_t) LookupDirent(ino *Inode_t, name string) (Dirent_t, bool, error) {
	for idx := 0; idx < maxBlocksPerFile; idx++ {
		buf, _, ok, err := fs.dirBlock(ino, idx)
		if err != nil {
			return Dirent_t{}, false, err
		}
		if !ok {
			continue
		}
		if d, _, found := searchDirBlock(buf, name); found {
			return d, true, nil
		}
	}
	return Dirent_t{}, false, nil
}

/// InsertDirent implements spec.md's "Directory entry insert
/// (sync_dir_entry)": find the first free slot across ino's existing
/// blocks, or grow the block list by one (handling the indirect-table
/// special case via blockAtForWrite) if none has room.
func (fs *Fs_t) InsertDirent(ino *Inode_t, d Dirent_t) error {
	for idx := 0; idx < maxBlocksPerFile; idx++ {
		buf, lba, ok, err := fs.dirBlock(ino, idx)
		if err != nil {
			return err
		}
		if !ok {
			lba, err := fs.blockAtForWrite(ino, idx)
			if err != nil {
				return err
			}
			newblk := make([]byte, BlockSize)
			copy(newblk[0:DirEntrySize], encodeDirent(d))
			if err := fs.writeSectors(uint64(lba), 1, newblk); err != nil {
				return err
			}
			ino.Size += DirEntrySize
			return fs.Sync(ino)
		}
		for off := 0; off+DirEntrySize <= BlockSize; off += DirEntrySize {
			if isFreeDirentSlot(buf[off : off+DirEntrySize]) {
				copy(buf[off:off+DirEntrySize], encodeDirent(d))
				if err := fs.writeSectors(uint64(lba), 1, buf); err != nil {
					return err
				}
				ino.Size += DirEntrySize
				return fs.Sync(ino)
			}
		}
	}
	return fmt.Errorf("fs: directory %d full", ino.InodeNo)
}

/// DeleteDirent implements spec.md's "Directory entry delete": find
/// the matching entry, zero it in place; if the containing block
/// (other than block 0) then holds no other live entries, reclaim the
/// block and its pointer, including the indirect table itself if that
/// empties it.
func (fs *Fs_t) DeleteDirent(ino *Inode_t, name string) error {
	for idx := 0; idx < maxBlocksPerFile; idx++ {
		buf, lba, ok, err := fs.dirBlock(ino, idx)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		_, matchOff, found := searchDirBlock(buf, name)
		if !found {
			continue
		}

		live := 0
		for off := 0; off+DirEntrySize <= BlockSize; off += DirEntrySize {
			if !isFreeDirentSlot(buf[off:off+DirEntrySize]) && off != matchOff {
				live++
			}
		}
		if idx != 0 && live == 0 {
			if err := fs.reclaimBlock(ino, idx, lba); err != nil {
				return err
			}
		} else {
			for i := range buf[matchOff : matchOff+DirEntrySize] {
				buf[matchOff+i] = 0
			}
			if err := fs.writeSectors(uint64(lba), 1, buf); err != nil {
				return err
			}
		}
		ino.Size -= DirEntrySize
		return fs.Sync(ino)
	}
	return fmt.Errorf("fs: entry %q not found in directory %d", name, ino.InodeNo)
}

// reclaimBlock frees logical block idx (absolute LBA lba) of ino and
// clears its pointer, collapsing the indirect table too if removing
// this entry empties it.
func (fs *Fs_t) reclaimBlock(ino *Inode_t, idx int, lba uint32) error {
	if err := fs.freeBlock(lba); err != nil {
		return err
	}
	if idx < NumDirect {
		ino.IBlocks[idx] = 0
		return nil
	}
	ptrs, err := fs.readIndirectTable(ino)
	if err != nil {
		return err
	}
	ptrs[idx-NumDirect] = 0
	empty := true
	for _, p := range ptrs {
		if p != 0 {
			empty = false
			break
		}
	}
	if empty {
		if err := fs.freeBlock(ino.IBlocks[IndirectIdx]); err != nil {
			return err
		}
		ino.IBlocks[IndirectIdx] = 0
		return nil
	}
	return fs.writeIndirectTable(ino, ptrs)
}

/// SearchResult_t is the caller's record for "Search file": either a
/// fully resolved inode, or, on a miss, the parent directory left open
/// so the caller can create inside it.
type SearchResult_t struct {
	Found     bool
	InodeNo   uint32
	Ftype     defs.Ftype_t
	Parent    *Inode_t // left open (refcounted) whether or not Found
	LastName  string   // final path component, for Create
}

/// SearchFile implements spec.md's "Search file": parse path one
/// component at a time from root, descending through directories,
/// returning either the resolved file/directory or the open parent on
/// a miss so the caller can create the entry there.
func (fs *Fs_t) SearchFile(path string) (SearchResult_t, error) {
	cur, err := fs.OpenInode(RootInode, defs.FT_DIR)
	if err != nil {
		return SearchResult_t{}, err
	}

	pp := ustr.MkPathParser(ustr.Ustr(path))
	comp, more := pp.Next()
	if !more {
		return SearchResult_t{Found: true, InodeNo: RootInode, Ftype: defs.FT_DIR, Parent: cur, LastName: "."}, nil
	}

	for {
		name := string(comp)
		d, found, err := fs.LookupDirent(cur, name)
		if err != nil {
			fs.CloseInode(cur)
			return SearchResult_t{}, err
		}
		if !found {
			return SearchResult_t{Found: false, Parent: cur, LastName: name}, nil
		}

		next, more2 := pp.Next()
		if !more2 {
			return SearchResult_t{Found: true, InodeNo: d.InodeNo, Ftype: d.Ftype, Parent: cur, LastName: name}, nil
		}
		if d.Ftype != defs.FT_DIR {
			fs.CloseInode(cur)
			return SearchResult_t{}, fmt.Errorf("fs: %q is not a directory", name)
		}
		child, err := fs.OpenInode(d.InodeNo, defs.FT_DIR)
		if err != nil {
			fs.CloseInode(cur)
			return SearchResult_t{}, err
		}
		fs.CloseInode(cur)
		cur = child
		comp = next
	}
}
