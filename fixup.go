package ntfs

import (
	"reflect"

	"github.com/dsoprea/go-logging"
)

// fixupSnapshotSize is the size of the per-handle undo snapshot, 48 bytes as
// in the original single global stash: room for the 2-byte tail stamps of
// up to 24 sectors. The tag=1 pass is only applied to MFT records
// (mftSize<=2 sectors); the largest record fixed up at all is an INDX
// block of idxSize<=8 sectors (16 bytes of stamps).
const fixupSnapshotSize = 48

// fixupSnapshot is the per-handle undo buffer described in spec.md 4.B and
// re-architected per the Design Notes: a field on the mount handle rather
// than a package-level global, since only one buffer is ever fixed up at a
// time under this driver's concurrency model (DESIGN.md open-question 3.3).
type fixupSnapshot struct {
	// originalTailBytes holds, for each sector, the two bytes that were
	// overwritten with the signature stamp immediately before a tag=1
	// (pre-write) fix-up pass, so a subsequent undo can restore them without
	// re-reading the sector from disk.
	originalTailBytes [fixupSnapshotSize]byte
	sectorCount        int
	valid              bool
}

// applyFixup validates and repairs the update-sequence array ("fix-up") of
// an n-sector record, per spec.md 4.B. magic must be "FILE" or "INDX".
//
// tag=0 is the normal read-time pass: every protected sector's last two
// bytes must equal the stored signature; they are restored to their
// original values in place. tag=1 is the pre-write pass: the current last
// two bytes of each sector are stashed into snap (and the record's
// update-sequence array) and the signature is stamped in their place, ready
// to be written back to disk.
func applyFixup(buf []byte, n int, magic string, tag int, snap *fixupSnapshot) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(errRaw).Name(), errRaw)
			}
		}
	}()

	if len(buf) < 8 || string(buf[0:4]) != magic {
		log.Panicf("%s: fix-up magic mismatch: wanted [%s], got [%v]", ErrCorrupt, magic, buf[:min4(len(buf), 4)])
	}

	usaOffset := int(defaultEncoding.Uint16(buf[4:6]))
	usaSize := int(defaultEncoding.Uint16(buf[6:8]))

	protectedSectors := usaSize - 1
	if protectedSectors != n {
		log.Panicf("%s: fix-up protected-sector count (%d) does not match record sector count (%d)", ErrCorrupt, protectedSectors, n)
	}

	if usaOffset+usaSize*2 > len(buf) {
		log.Panicf("%s: update-sequence array overruns the record buffer", ErrCorrupt)
	}

	signature := buf[usaOffset : usaOffset+2]

	const sectorSize = 512

	if tag == 1 {
		if n*2 > len(snap.originalTailBytes) {
			log.Panicf("%s: fix-up snapshot too small for %d sectors", ErrFatal, n)
		}

		for i := 0; i < n; i++ {
			tailOffset := (i+1)*sectorSize - 2
			if tailOffset+2 > len(buf) {
				log.Panicf("%s: fix-up sector %d falls outside the record buffer", ErrCorrupt, i)
			}

			copy(snap.originalTailBytes[i*2:i*2+2], buf[tailOffset:tailOffset+2])

			entryOffset := usaOffset + 2 + i*2
			copy(buf[entryOffset:entryOffset+2], buf[tailOffset:tailOffset+2])

			buf[tailOffset] = signature[0]
			buf[tailOffset+1] = signature[1]
		}

		snap.sectorCount = n
		snap.valid = true

		return nil
	}

	for i := 0; i < n; i++ {
		tailOffset := (i+1)*sectorSize - 2
		if tailOffset+2 > len(buf) {
			log.Panicf("%s: fix-up sector %d falls outside the record buffer", ErrCorrupt, i)
		}

		if buf[tailOffset] != signature[0] || buf[tailOffset+1] != signature[1] {
			log.Panicf("%s: fix-up signature mismatch at sector %d", ErrCorrupt, i)
		}

		entryOffset := usaOffset + 2 + i*2
		if entryOffset+2 > len(buf) {
			log.Panicf("%s: update-sequence array entry %d falls outside the record buffer", ErrCorrupt, i)
		}

		buf[tailOffset] = buf[entryOffset]
		buf[tailOffset+1] = buf[entryOffset+1]
	}

	return nil
}

func min4(a, b int) int {
	if a < b {
		return a
	}

	return b
}
