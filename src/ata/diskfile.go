// Host-backed disk implementations of Backend_i, so the filesystem and
// driver logic above can run under `go test` without real hardware.
// Grounded on biscuit/src/ufs/driver.go's ahci_disk_t, which backs a
// simulated disk with a host file; upgraded here to use
// golang.org/x/sys/unix.Pread/Pwrite/Flock for positioned, lock-guarded
// I/O instead of the teacher's Seek+Read/Write pair, which is not
// atomic against concurrent access to the same file descriptor.
package ata

import (
	"fmt"

	"golang.org/x/sys/unix"
)

/// FileBackend_t is a Backend_i reading/writing sectors of a flat host
/// file, one file per simulated physical device.
type FileBackend_t struct {
	fds [2]int // per-device (master, slave) file descriptors; -1 if absent
}

/// OpenFileBackend opens (creating if needed) the given paths as the
/// master/slave devices of one channel. A path of "" leaves that
/// device unpopulated.
func OpenFileBackend(masterPath, slavePath string) (*FileBackend_t, error) {
	fb := &FileBackend_t{fds: [2]int{-1, -1}}
	for i, p := range []string{masterPath, slavePath} {
		if p == "" {
			continue
		}
		fd, err := unix.Open(p, unix.O_RDWR|unix.O_CREAT, 0644)
		if err != nil {
			fb.Close()
			return nil, fmt.Errorf("ata: open %s: %w", p, err)
		}
		if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
			unix.Close(fd)
			fb.Close()
			return nil, fmt.Errorf("ata: lock %s: %w", p, err)
		}
		fb.fds[i] = fd
	}
	return fb, nil
}

/// Close releases any open device file descriptors.
func (fb *FileBackend_t) Close() {
	for i, fd := range fb.fds {
		if fd >= 0 {
			unix.Close(fd)
			fb.fds[i] = -1
		}
	}
}

func (fb *FileBackend_t) fd(dev int) (int, error) {
	if dev < 0 || dev > 1 || fb.fds[dev] < 0 {
		return -1, fmt.Errorf("no such device %d", dev)
	}
	return fb.fds[dev], nil
}

/// ReadSectors reads n sectors starting at lba from device dev into dst.
func (fb *FileBackend_t) ReadSectors(dev int, lba uint64, n int, dst []byte) error {
	fd, err := fb.fd(dev)
	if err != nil {
		return err
	}
	off := int64(lba) * SectorSize
	got, err := unix.Pread(fd, dst[:n*SectorSize], off)
	if err != nil {
		return err
	}
	if got != n*SectorSize {
		return fmt.Errorf("short read: got %d want %d", got, n*SectorSize)
	}
	return nil
}

/// WriteSectors writes n sectors from src to device dev at lba.
func (fb *FileBackend_t) WriteSectors(dev int, lba uint64, n int, src []byte) error {
	fd, err := fb.fd(dev)
	if err != nil {
		return err
	}
	off := int64(lba) * SectorSize
	put, err := unix.Pwrite(fd, src[:n*SectorSize], off)
	if err != nil {
		return err
	}
	if put != n*SectorSize {
		return fmt.Errorf("short write: put %d want %d", put, n*SectorSize)
	}
	return nil
}

/// MemBackend_t is a pure in-memory Backend_i, for tests that should
/// not touch the filesystem at all.
type MemBackend_t struct {
	devs [2][]byte
}

/// MkMemBackend allocates an in-memory device dev of the given sector
/// count.
func MkMemBackend(devSectors [2]int) *MemBackend_t {
	mb := &MemBackend_t{}
	for i, n := range devSectors {
		if n > 0 {
			mb.devs[i] = make([]byte, n*SectorSize)
		}
	}
	return mb
}

func (mb *MemBackend_t) ReadSectors(dev int, lba uint64, n int, dst []byte) error {
	d, err := mb.devBytes(dev)
	if err != nil {
		return err
	}
	off := int(lba) * SectorSize
	if off+n*SectorSize > len(d) {
		return fmt.Errorf("read past end of device")
	}
	copy(dst[:n*SectorSize], d[off:off+n*SectorSize])
	return nil
}

func (mb *MemBackend_t) WriteSectors(dev int, lba uint64, n int, src []byte) error {
	d, err := mb.devBytes(dev)
	if err != nil {
		return err
	}
	off := int(lba) * SectorSize
	if off+n*SectorSize > len(d) {
		return fmt.Errorf("write past end of device")
	}
	copy(d[off:off+n*SectorSize], src[:n*SectorSize])
	return nil
}

func (mb *MemBackend_t) devBytes(dev int) ([]byte, error) {
	if dev < 0 || dev > 1 || mb.devs[dev] == nil {
		return nil, fmt.Errorf("no such device %d", dev)
	}
	return mb.devs[dev], nil
}
