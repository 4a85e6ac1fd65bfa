// Directory entry encoding (spec.md §3): a fixed-size record
// {filename[<=15 + NUL], inode_no, file_type}. Grounded on the same
// fixed-record style biscuit/src/fs/fs.go uses for its (14-byte name)
// Dirdata_t, adapted to spec.md's exact field set.
package fs

import (
	"encoding/binary"

	"github.com/HaoLin-hub/sparrowos/src/defs"
)

// maxNameLen is the longest filename a Dirent_t can hold, excluding
// the terminating NUL (spec.md: "filename[<=15 + NUL]").
const maxNameLen = 15

/// Dirent_t is one decoded directory entry.
type Dirent_t struct {
	Name    string
	InodeNo uint32
	Ftype   defs.Ftype_t
}

func encodeDirent(d Dirent_t) []byte {
	if len(d.Name) > maxNameLen {
		panic("filename too long for directory entry")
	}
	buf := make([]byte, DirEntrySize)
	copy(buf[0:maxNameLen+1], d.Name)
	binary.LittleEndian.PutUint32(buf[16:], d.InodeNo)
	binary.LittleEndian.PutUint32(buf[20:], uint32(d.Ftype))
	return buf
}

func decodeDirent(buf []byte) Dirent_t {
	nul := 0
	for nul < maxNameLen+1 && buf[nul] != 0 {
		nul++
	}
	return Dirent_t{
		Name:    string(buf[0:nul]),
		InodeNo: binary.LittleEndian.Uint32(buf[16:]),
		Ftype:   defs.Ftype_t(binary.LittleEndian.Uint32(buf[20:])),
	}
}

func isFreeDirentSlot(buf []byte) bool {
	return defs.Ftype_t(binary.LittleEndian.Uint32(buf[20:])) == defs.FT_UNKNOWN
}
