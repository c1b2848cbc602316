package ntfs

import (
	"fmt"
	"reflect"

	"github.com/dsoprea/go-logging"
)

const bootSectorSize = 512

// Volume holds the geometry and bootstrap state derived at mount (spec.md
// 3, 4.J): the scalar constants every other component reads from, plus the
// buffered $MFT record 0 and the run list of $MFT's own $DATA attribute,
// primed once here so the attribute iterator's $MFT self-mapping special
// case (spec.md 4.D) never has to re-derive it.
type Volume struct {
	dev *SectorDevice

	// SectorsPerCluster is `spc`; must divide 128.
	SectorsPerCluster int

	// MFTRecordSectors is `mft_size`, capped at 2.
	MFTRecordSectors int

	// IndexRecordSectors is `idx_size`, capped at 8.
	IndexRecordSectors int

	// MFTStartSector is the sector address of $MFT record 0.
	MFTStartSector int64

	// mftZeroRecord is the raw, fixed-up bytes of MFT record 0, read
	// directly by sector address during mount before any run list is known
	// (spec.md 4.G bootstrap).
	mftZeroRecord []byte

	// mftDataRuns is the packed run list of $MFT's own $DATA attribute,
	// borrowed from mftZeroRecord and decoded once at mount to validate it.
	// ReadMFTRecord and recordSectorAddress stream it through a
	// runListCursor instead of locating $DATA again for every lookup.
	mftDataRuns []byte

	// fixupSnap is the single per-mount undo snapshot (spec.md 4.B, Design
	// Notes; DESIGN.md §3.3): a record-handle field rather than a
	// process-wide global.
	fixupSnap fixupSnapshot

	// lastMFTRecordNumber/lastMFTRecordValid track which MFT record was
	// most recently read, independent of fixupSnap (which INDX-block
	// fix-ups also touch). The resident write path (spec.md 4.E) only
	// permits writing into the record that was the very last one read.
	lastMFTRecordNumber uint64
	lastMFTRecordValid  bool

	// cache is the one-line read-through cache described in spec.md 3
	// ("save_pos")/4.E.
	cache readCache
}

// readCache is the single-line sbuf/save_pos cache (spec.md 3, 4.E).
// savePosInvalid (1) is never a block-aligned byte offset, matching the
// original sentinel (spec.md 9 Design Notes); this repo additionally keeps
// an explicit boolean so the invalid value is self-documenting rather than
// relying on a magic constant comparison at every call site.
type readCache struct {
	buf     []byte
	pos     int64
	valid   bool
}

const savePosInvalid = 1

// invalidate clears the one-line cache; called whenever an operation writes
// $DATA or reads through a different attribute (spec.md 5).
func (c *readCache) invalidate() {
	c.valid = false
	c.pos = savePosInvalid
}

// Mount parses the boot sector from dev and loads $MFT record 0, priming
// the iterator for $MFT's own $DATA (spec.md 4.J).
func Mount(dev *SectorDevice) (vol *Volume, err error) {
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

	if dev.SectorSize() != bootSectorSize {
		log.Panicf("%s: unsupported sector size (%d), only 512 is supported", ErrFatal, dev.SectorSize())
	}

	boot := make([]byte, bootSectorSize)

	err = dev.Devread(0, 0, bootSectorSize, boot, ModeRead, nil)
	log.PanicIf(err)

	if boot[0x10] != 0 || boot[0x14] != 0 || boot[0x16] != 0 || boot[0x17] != 0 ||
		boot[0x20] != 0 || boot[0x21] != 0 || boot[0x22] != 0 || boot[0x23] != 0 {
		log.Panicf("%s: boot sector reserved fields are not zero", ErrCorrupt)
	}

	bytesPerSector := int(defaultEncoding.Uint16(boot[0x0B:0x0D]))
	if bytesPerSector != bootSectorSize {
		log.Panicf("%s: unsupported bytes-per-sector (%d), only 512 is supported", ErrFatal, bytesPerSector)
	}

	sectorsPerTrack := defaultEncoding.Uint16(boot[0x18:0x1A])
	numberOfHeads := defaultEncoding.Uint16(boot[0x1A:0x1C])
	if sectorsPerTrack == 0 || sectorsPerTrack > 63 || numberOfHeads == 0 || numberOfHeads > 255 {
		log.Panicf("%s: boot sector geometry fields out of range", ErrCorrupt)
	}

	spc := int(boot[0x0D])
	if spc == 0 || 128%spc != 0 {
		log.Panicf("%s: sectors-per-cluster (%d) does not divide 128", ErrCorrupt, spc)
	}

	mftStartCluster := defaultEncoding.Uint64(boot[0x30:0x38])

	mftSizeSectors, err := decodeRecordSizeSectors(int8(boot[0x40]), spc)
	log.PanicIf(err)

	idxSizeSectors, err := decodeRecordSizeSectors(int8(boot[0x44]), spc)
	log.PanicIf(err)

	if mftSizeSectors > 2 {
		log.Panicf("%s: mft record size (%d sectors) exceeds the supported cap of 2", ErrFatal, mftSizeSectors)
	}

	if idxSizeSectors > 8 {
		log.Panicf("%s: index record size (%d sectors) exceeds the supported cap of 8", ErrFatal, idxSizeSectors)
	}

	vol = &Volume{
		dev:                dev,
		SectorsPerCluster:  spc,
		MFTRecordSectors:   mftSizeSectors,
		IndexRecordSectors: idxSizeSectors,
		MFTStartSector:     int64(mftStartCluster) * int64(spc),
	}

	vol.cache.invalidate()

	mftZero := make([]byte, mftSizeSectors*bootSectorSize)

	err = dev.Devread(vol.MFTStartSector, 0, len(mftZero), mftZero, ModeRead, nil)
	log.PanicIf(err)

	err = applyFixup(mftZero, mftSizeSectors, "FILE", 0, &vol.fixupSnap)
	log.PanicIf(err)

	vol.mftZeroRecord = mftZero
	vol.lastMFTRecordNumber = 0
	vol.lastMFTRecordValid = true

	_, dataAttr, found, err := findLocalAttribute(mftZero, AttrData, "")
	log.PanicIf(err)

	if !found {
		log.Panicf("%s: $MFT record 0 carries no $DATA attribute", ErrCorrupt)
	}

	if !dataAttr.NonResident {
		log.Panicf("%s: $MFT's own $DATA must be non-resident", ErrCorrupt)
	}

	_, err = DecodeRunList(dataAttr.RunListBytes(), nil)
	log.PanicIf(err)

	vol.mftDataRuns = dataAttr.RunListBytes()

	return vol, nil
}

// decodeRecordSizeSectors interprets the signed per-byte MFT/index record
// size encoding (spec.md 4.J): positive values count clusters, negative
// values are a log2-bytes encoding.
func decodeRecordSizeSectors(raw int8, spc int) (sectors int, err error) {
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

	if raw >= 0 {
		clusters := int(raw)
		if clusters == 0 {
			log.Panicf("%s: zero-cluster record size", ErrCorrupt)
		}

		return clusters * spc, nil
	}

	log2Bytes := -int(raw)
	if log2Bytes > 20 {
		log.Panicf("%s: implausible log2 record size (%d)", ErrCorrupt, log2Bytes)
	}

	sizeBytes := 1 << uint(log2Bytes)

	return sizeBytes / bootSectorSize, nil
}

// String renders the volume's bootstrap geometry, in the teacher's
// Dump()/String() debug-printing idiom.
func (vol *Volume) String() string {
	return fmt.Sprintf(
		"Volume<SECTORS-PER-CLUSTER=(%d) MFT-RECORD-SECTORS=(%d) IDX-RECORD-SECTORS=(%d) MFT-START-SECTOR=(%d) CLUSTER-SIZE=(%d)>",
		vol.SectorsPerCluster, vol.MFTRecordSectors, vol.IndexRecordSectors, vol.MFTStartSector, vol.BytesPerCluster())
}

// Dump prints the volume's bootstrap geometry to stdout.
func (vol *Volume) Dump() {
	fmt.Println(vol.String())
}

// SectorSize returns the volume's fixed 512-byte sector size.
func (vol *Volume) SectorSize() int64 { return bootSectorSize }

// BytesPerCluster returns the volume's cluster size in bytes.
func (vol *Volume) BytesPerCluster() int64 {
	return int64(vol.SectorsPerCluster) * bootSectorSize
}

// findLocalAttribute scans an MFT record buffer's attribute sequence for
// the first attribute matching (attrType, name), without following any
// $ATTRIBUTE_LIST (a bare WALK_LOCAL pass, spec.md 4.D). Returns found=false
// on local exhaustion; the attribute iterator (iterator.go) builds on this
// to add attribute-list indirection.
func findLocalAttribute(buf []byte, attrType uint32, name string) (offset int, attr Attribute, found bool, err error) {
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

	hdr, err := parseMFTRecordHeader(buf)
	log.PanicIf(err)

	pos := int(hdr.FirstAttributeOffset)

	for {
		a, ok, perr := parseAttribute(buf, pos)
		log.PanicIf(perr)

		if !ok {
			return 0, Attribute{}, false, nil
		}

		if a.Type == attrType && a.Name == name {
			return pos, a, true, nil
		}

		pos += int(a.TotalLength)
	}
}
