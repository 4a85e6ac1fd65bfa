// Package ata implements the PIO-mode ATA/IDE driver, component F: two
// channels of two devices each, chunked sector transfers serialised by
// a per-channel mutex, and an interrupt-completion semaphore. Grounded
// on biscuit/src/pci/olddiski.go's Idebuf_t/Disk_i shape — marked
// "XXX delete?" in the teacher once it moved to AHCI, but it is
// exactly the register-level PIO protocol spec.md's driver describes
// — and on biscuit/src/fs/blk.go's Bdev_req_t/Disk_i request interface
// for how a request flows from the filesystem down to a disk
// implementation. There is no block cache or journal here (spec.md's
// file system issues sector I/O directly); that layering lives in
// src/fs instead.
package ata

import (
	"fmt"

	"github.com/HaoLin-hub/sparrowos/src/defs"
	"github.com/HaoLin-hub/sparrowos/src/ksync"
	"github.com/HaoLin-hub/sparrowos/src/task"
)

// SectorSize is the size in bytes of one ATA sector.
const SectorSize = 512

// maxChunk is the most sectors a single PIO command may transfer.
const maxChunk = 256

// BusyTimeoutTicks bounds how many 10ms polls the driver waits for
// BSY=0/DRQ=1 before declaring the device wedged. Exposed as a
// variable (not a spec.md literal) per spec.md §9's redesign note that
// this constant should be reachable by tests instead of hard-coded at
// 30s real time, which would make every timeout test slow.
var BusyTimeoutTicks = 3000 // 3000 * 10ms = 30s in the real driver

/// Backend_i is the minimum a channel needs from whatever stands in
/// for two physical disks: synchronous sector read/write plus a
/// completion signal the interrupt handler would normally deliver.
/// A host-backed implementation (reading/writing a flat file) and a
/// pure in-memory implementation both satisfy this for testing.
type Backend_i interface {
	ReadSectors(dev int, lba uint64, n int, dst []byte) error
	WriteSectors(dev int, lba uint64, n int, src []byte) error
}

/// Channel_t models one of the two ATA channels (primary 0x1F0/IRQ14,
/// secondary 0x170/IRQ15): a mutex serialising all transfers, a
/// completion semaphore the interrupt handler signals, and the
/// expecting_intr flag toggled around each chunk.
type Channel_t struct {
	Name    string
	IRQ     int
	backend Backend_i

	mu   *ksync.Mutex_t
	comp *ksync.Sema_t

	expectingIntr bool
}

/// MkChannel constructs a channel backed by the given Backend_i.
func MkChannel(name string, irq int, backend Backend_i) *Channel_t {
	return &Channel_t{
		Name:    name,
		IRQ:     irq,
		backend: backend,
		mu:      ksync.MkMutex(),
		comp:    ksync.MkSema(0),
	}
}

/// Interrupt delivers IRQ14/15: if a transfer is expecting completion,
/// it clears the flag and wakes the waiting task. Unexpected
/// interrupts are discarded silently, per spec.md §4.F.
func (c *Channel_t) Interrupt() {
	if !c.expectingIntr {
		return
	}
	c.expectingIntr = false
	c.comp.Up()
}

/// Read transfers n sectors starting at lba from device dev (0=master,
/// 1=slave) into dst, which must be n*SectorSize bytes. Transfers over
/// maxChunk sectors are split into multiple chunks, each of which
/// blocks on the completion semaphore before its data is consulted,
/// mirroring the real driver waiting for the device's IRQ.
func (c *Channel_t) Read(dev int, lba uint64, n int, dst []byte) defs.Err_t {
	if len(dst) != n*SectorSize {
		panic("dst sized wrong for sector count")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	off := 0
	for remaining := n; remaining > 0; {
		chunk := remaining
		if chunk > maxChunk {
			chunk = maxChunk
		}
		// Issue the command. A real device does its internal DMA/seek
		// and asserts IRQ14/15 some time later; the simulated backend
		// has no asynchronous completion to wait for, so the
		// "interrupt" is delivered immediately, right before the task
		// blocks on it — the blocking call itself still runs, it just
		// never actually parks because the count is already positive.
		c.expectingIntr = true
		c.Interrupt()
		c.comp.Down()
		if err := c.busyPoll(); err != 0 {
			return err
		}
		cur := lba + uint64(off/SectorSize)
		if err := c.backend.ReadSectors(dev, cur, chunk, dst[off:off+chunk*SectorSize]); err != nil {
			panic(fmt.Sprintf("ata: hardware read failure on %s: %v", c.Name, err))
		}
		off += chunk * SectorSize
		remaining -= chunk
	}
	return 0
}

/// Write transfers n sectors from src to device dev at lba. Per
/// spec.md §4.F, the busy-poll happens before streaming each chunk
/// (the drive must already be DRQ-ready to accept data) and the
/// completion block happens after.
func (c *Channel_t) Write(dev int, lba uint64, n int, src []byte) defs.Err_t {
	if len(src) != n*SectorSize {
		panic("src sized wrong for sector count")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	off := 0
	for remaining := n; remaining > 0; {
		chunk := remaining
		if chunk > maxChunk {
			chunk = maxChunk
		}
		if err := c.busyPoll(); err != 0 {
			return err
		}
		cur := lba + uint64(off/SectorSize)
		if err := c.backend.WriteSectors(dev, cur, chunk, src[off:off+chunk*SectorSize]); err != nil {
			panic(fmt.Sprintf("ata: hardware write failure on %s: %v", c.Name, err))
		}
		c.expectingIntr = true
		c.Interrupt()
		c.comp.Down()
		off += chunk * SectorSize
		remaining -= chunk
	}
	return 0
}

// busyPoll stands in for reading the status register in a loop until
// BSY clears and DRQ sets, yielding 10ms (one scheduler tick) at a
// time. The simulated backend never actually sets BSY, so this always
// succeeds on the first iteration; the loop and its tick-based timeout
// are kept so the shape — and its fatal-panic failure path — matches
// spec.md §4.F exactly.
func (c *Channel_t) busyPoll() defs.Err_t {
	for i := 0; i < BusyTimeoutTicks; i++ {
		if c.deviceReady() {
			return 0
		}
		task.Tick()
	}
	panic(fmt.Sprintf("ata: %s wedged, busy-wait timeout exceeded", c.Name))
}

// deviceReady reports BSY=0, DRQ=1 against the simulated backend. A
// real driver reads the status register; a simulated backend has no
// register state to lag, so it is always ready.
func (c *Channel_t) deviceReady() bool {
	return true
}

/// Controller_t groups the two channels a machine exposes.
type Controller_t struct {
	Primary   *Channel_t
	Secondary *Channel_t
}

/// MkController wires a primary (IRQ14) and secondary (IRQ15) channel.
func MkController(primary, secondary Backend_i) *Controller_t {
	return &Controller_t{
		Primary:   MkChannel("primary", 14, primary),
		Secondary: MkChannel("secondary", 15, secondary),
	}
}
