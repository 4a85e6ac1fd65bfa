// mkdir/rmdir/opendir/readdir/rewinddir/closedir/stat/chdir/getcwd
// (spec.md §4.H, final paragraph). Grounded on original_source/fs/
// {dir.c,path.c} for the rollback-labelled mkdir transaction and the
// parent-ward getcwd walk.
package fs

import (
	"fmt"

	"github.com/HaoLin-hub/sparrowos/src/defs"
	"github.com/HaoLin-hub/sparrowos/src/stat"
	"github.com/HaoLin-hub/sparrowos/src/util"
)

/// Stat returns ino's metadata packed into the ambient stat.Stat_t
/// accessor shared with the fd layer, rather than a fs-local struct of
/// the same shape.
func Stat(ino *Inode_t) stat.Stat_t {
	var st stat.Stat_t
	st.Wino(ino.InodeNo)
	st.Wftype(ino.Ftype)
	st.Wsize(ino.Size)
	st.Wblocks(util.Roundup(ino.Size, uint32(BlockSize)) / uint32(BlockSize))
	return st
}

/// Mkdir implements spec.md's 5-step mkdir transaction: verify
/// absence (left to the caller, which resolves parent via SearchFile
/// and checks that it reported a miss), allocate an
/// inode, allocate a data block holding "." and "..", insert the
/// entry into parent, and sync parent, the new inode, and the inode
/// bitmap. Any failure midway rolls back everything already done.
func (fs *Fs_t) Mkdir(parent *Inode_t, name string) error {
	n, err := fs.allocInode()
	if err != nil {
		return err
	}

	child := &Inode_t{InodeNo: n, Ftype: defs.FT_DIR, OpenCount: 1, Size: 2 * DirEntrySize}
	lba, err := fs.allocBlock()
	if err != nil {
		fs.freeInode(n)
		return err
	}
	blk := make([]byte, BlockSize)
	copy(blk[0:DirEntrySize], encodeDirent(Dirent_t{Name: ".", InodeNo: n, Ftype: defs.FT_DIR}))
	copy(blk[DirEntrySize:2*DirEntrySize], encodeDirent(Dirent_t{Name: "..", InodeNo: parent.InodeNo, Ftype: defs.FT_DIR}))
	if err := fs.writeSectors(uint64(lba), 1, blk); err != nil {
		fs.freeBlock(lba)
		fs.freeInode(n)
		return err
	}
	child.IBlocks[0] = lba

	if err := fs.writeInodeRaw(n, child.encode()); err != nil {
		fs.freeBlock(lba)
		fs.freeInode(n)
		return err
	}

	if err := fs.InsertDirent(parent, Dirent_t{Name: name, InodeNo: n, Ftype: defs.FT_DIR}); err != nil {
		fs.freeBlock(lba)
		fs.freeInode(n)
		return err
	}
	return nil
}

/// Rmdir implements spec.md's rmdir: the target must be empty (size
/// equals exactly two entries, "." and ".."), then deletes the
/// parent's entry and releases the child inode and its sole data
/// block.
func (fs *Fs_t) Rmdir(parent *Inode_t, name string) error {
	d, found, err := fs.LookupDirent(parent, name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("fs: %q not found", name)
	}
	if d.Ftype != defs.FT_DIR {
		return fmt.Errorf("fs: %q is not a directory", name)
	}

	child, err := fs.OpenInode(d.InodeNo, defs.FT_DIR)
	if err != nil {
		return err
	}
	defer fs.CloseInode(child)
	if child.Size != 2*DirEntrySize {
		return fmt.Errorf("fs: directory %q not empty", name)
	}

	if err := fs.DeleteDirent(parent, name); err != nil {
		return err
	}
	if child.IBlocks[0] != 0 {
		if err := fs.freeBlock(child.IBlocks[0]); err != nil {
			return err
		}
	}
	return fs.freeInode(d.InodeNo)
}

/// Dir_t is an open directory handle with a scan cursor over logical
/// block/slot position, for opendir/readdir/rewinddir/closedir.
type Dir_t struct {
	fs       *Fs_t
	ino      *Inode_t
	blockIdx int
	slotOff  int
}

/// Opendir opens ino (which must be a directory) for sequential scan.
func (fs *Fs_t) Opendir(n uint32) (*Dir_t, error) {
	ino, err := fs.OpenInode(n, defs.FT_DIR)
	if err != nil {
		return nil, err
	}
	return &Dir_t{fs: fs, ino: ino}, nil
}

/// Readdir returns the next live entry, or ok=false once every block
/// has been scanned.
func (d *Dir_t) Readdir() (Dirent_t, bool, error) {
	for d.blockIdx < maxBlocksPerFile {
		buf, _, ok, err := d.fs.dirBlock(d.ino, d.blockIdx)
		if err != nil {
			return Dirent_t{}, false, err
		}
		if !ok {
			d.blockIdx++
			d.slotOff = 0
			continue
		}
		for d.slotOff+DirEntrySize <= BlockSize {
			rec := buf[d.slotOff : d.slotOff+DirEntrySize]
			d.slotOff += DirEntrySize
			if isFreeDirentSlot(rec) {
				continue
			}
			return decodeDirent(rec), true, nil
		}
		d.blockIdx++
		d.slotOff = 0
	}
	return Dirent_t{}, false, nil
}

/// Rewinddir resets the scan cursor to the first entry.
func (d *Dir_t) Rewinddir() {
	d.blockIdx = 0
	d.slotOff = 0
}

/// Closedir releases the directory's reference to its inode.
func (d *Dir_t) Closedir() {
	d.fs.CloseInode(d.ino)
}

/// Chdir resolves path and returns the inode number of the directory
/// it names, for the caller (src/proc) to install as the task's new
/// cwd. Refuses a path that resolves to a regular file.
func (fs *Fs_t) Chdir(path string) (uint32, error) {
	res, err := fs.SearchFile(path)
	if err != nil {
		return 0, err
	}
	defer fs.CloseInode(res.Parent)
	if !res.Found {
		return 0, fmt.Errorf("fs: %q not found", path)
	}
	if res.Ftype != defs.FT_DIR {
		return 0, fmt.Errorf("fs: %q is not a directory", path)
	}
	return res.InodeNo, nil
}

/// Getcwd implements spec.md's getcwd: walk parent-ward from cwd,
/// reading each directory's ".." entry to find its parent and then
/// scanning that parent for the child's name, reversing the
/// accumulated path into the returned string.
func (fs *Fs_t) Getcwd(cwd uint32) (string, error) {
	if cwd == RootInode {
		return "/", nil
	}

	var names []string
	cur := cwd
	for cur != RootInode {
		ino, err := fs.OpenInode(cur, defs.FT_DIR)
		if err != nil {
			return "", err
		}
		dotdot, found, err := fs.LookupDirent(ino, "..")
		fs.CloseInode(ino)
		if err != nil {
			return "", err
		}
		if !found {
			return "", fmt.Errorf("fs: inode %d has no parent entry", cur)
		}

		parent, err := fs.OpenInode(dotdot.InodeNo, defs.FT_DIR)
		if err != nil {
			return "", err
		}
		name, err := fs.childName(parent, cur)
		fs.CloseInode(parent)
		if err != nil {
			return "", err
		}
		names = append(names, name)
		cur = dotdot.InodeNo
	}

	path := ""
	for i := len(names) - 1; i >= 0; i-- {
		path += "/" + names[i]
	}
	return path, nil
}

// childName scans parent for the entry whose inode number is child,
// skipping "." and ".." (a directory always appears exactly once
// under its real name among its parent's other entries).
func (fs *Fs_t) childName(parent *Inode_t, child uint32) (string, error) {
	d, err := fs.Opendir(parent.InodeNo)
	if err != nil {
		return "", err
	}
	defer d.Closedir()
	for {
		ent, ok, err := d.Readdir()
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("fs: inode %d not found under parent %d", child, parent.InodeNo)
		}
		if ent.Name == "." || ent.Name == ".." {
			continue
		}
		if ent.InodeNo == child {
			return ent.Name, nil
		}
	}
}
