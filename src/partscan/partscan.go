// Package partscan walks an MBR/EBR partition table, component G.
// New package: the teacher's biscuit targets a single whole-disk AHCI
// device and never parses a partition table at all (biscuit/src/ufs
// hands the kernel one pre-carved image), so this is grounded on
// original_source/../mbr-style layouts referenced by spec.md's data
// model directly, following the teacher's struct-then-scan style used
// throughout biscuit/src/fs for on-disk record parsing.
package partscan

import (
	"encoding/binary"
	"fmt"

	"github.com/HaoLin-hub/sparrowos/src/ata"
)

// mbrEntrySize is the size in bytes of one MBR/EBR partition table
// entry; mbrTableOff is where the four-entry table begins within the
// 512-byte sector, and signatureOff is the 0x55 0xAA boot signature.
const (
	mbrEntrySize = 16
	mbrTableOff  = 446
	signatureOff = 510
)

const extendedType = 0x5

// Entry_t is one discovered partition: its synthesised name, the
// backing device/channel selector, its LBA range, and whether it is a
// primary or logical partition.
type Entry_t struct {
	Name      string
	Dev       int
	StartLBA  uint64
	SectorCnt uint32
	Logical   bool
}

type rawEntry_t struct {
	typ       byte
	startLBA  uint32
	sectorCnt uint32
}

func parseSector(sector []byte) ([4]rawEntry_t, bool) {
	var entries [4]rawEntry_t
	if sector[signatureOff] != 0x55 || sector[signatureOff+1] != 0xAA {
		return entries, false
	}
	for i := 0; i < 4; i++ {
		off := mbrTableOff + i*mbrEntrySize
		e := sector[off : off+mbrEntrySize]
		entries[i] = rawEntry_t{
			typ:       e[4],
			startLBA:  binary.LittleEndian.Uint32(e[8:12]),
			sectorCnt: binary.LittleEndian.Uint32(e[12:16]),
		}
	}
	return entries, true
}

/// Scan reads sector 0 (the MBR) of the given device on ch and walks
/// its four entries, recursively descending into type-0x5 extended
/// containers (EBRs), and returns every discovered partition with a
/// synthesised name: sda1..sda4 for the up-to-four primary partitions,
/// sda5..sda12 for the up-to-eight logical partitions found by
/// walking the extended chain. diskName supplies the "sda" prefix.
func Scan(ch *ata.Channel_t, dev int, diskName string) ([]Entry_t, error) {
	sector := make([]byte, ata.SectorSize)
	if err := ch.Read(dev, 0, 1, sector); err != 0 {
		return nil, fmt.Errorf("partscan: read MBR: errno %d", err)
	}
	entries, ok := parseSector(sector)
	if !ok {
		return nil, fmt.Errorf("partscan: missing 0x55AA boot signature")
	}

	var out []Entry_t
	primaryNum := 1
	logicalNum := 5
	var extendedBase uint64

	for _, e := range entries {
		if e.typ == 0 {
			continue
		}
		if e.typ == extendedType {
			extendedBase = uint64(e.startLBA)
			logicals, err := walkExtended(ch, dev, extendedBase, extendedBase, &logicalNum, diskName)
			if err != nil {
				return nil, err
			}
			out = append(out, logicals...)
			continue
		}
		if primaryNum > 4 {
			return nil, fmt.Errorf("partscan: more than 4 primary partitions")
		}
		out = append(out, Entry_t{
			Name:      fmt.Sprintf("%s%d", diskName, primaryNum),
			Dev:       dev,
			StartLBA:  uint64(e.startLBA),
			SectorCnt: e.sectorCnt,
			Logical:   false,
		})
		primaryNum++
	}
	return out, nil
}

// walkExtended descends one EBR at absoluteLBA (relative to
// extendedBase, the first extended container's own LBA) recording
// every logical partition and following the chain's link entry (EBR
// slot 1, also type 0x5) to the next EBR.
func walkExtended(ch *ata.Channel_t, dev int, extendedBase, absoluteLBA uint64, logicalNum *int, diskName string) ([]Entry_t, error) {
	sector := make([]byte, ata.SectorSize)
	if err := ch.Read(dev, absoluteLBA, 1, sector); err != 0 {
		return nil, fmt.Errorf("partscan: read EBR at lba %d: errno %d", absoluteLBA, err)
	}
	entries, ok := parseSector(sector)
	if !ok {
		return nil, fmt.Errorf("partscan: EBR at lba %d missing boot signature", absoluteLBA)
	}

	var out []Entry_t
	if entries[0].typ != 0 {
		if *logicalNum > 12 {
			return nil, fmt.Errorf("partscan: more than 8 logical partitions")
		}
		out = append(out, Entry_t{
			Name:      fmt.Sprintf("%s%d", diskName, *logicalNum),
			Dev:       dev,
			StartLBA:  absoluteLBA + uint64(entries[0].startLBA),
			SectorCnt: entries[0].sectorCnt,
			Logical:   true,
		})
		*logicalNum++
	}
	if entries[1].typ == extendedType {
		next := extendedBase + uint64(entries[1].startLBA)
		more, err := walkExtended(ch, dev, extendedBase, next, logicalNum, diskName)
		if err != nil {
			return nil, err
		}
		out = append(out, more...)
	}
	return out, nil
}
