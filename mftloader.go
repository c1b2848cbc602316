package ntfs

import (
	"reflect"

	"github.com/dsoprea/go-logging"
)

// maxSelfMapRecursion is the depth above which readMFTRecordDepth refuses
// to read. ReadMFTRecord always passes depth 0 and no caller passes a
// larger one, so this check does not limit the $MFT self-mapping
// recursion.
const maxSelfMapRecursion = 2

// ReadMFTRecord reads MFT record number recordNumber into a fresh buffer
// and applies fix-up (spec.md 4.G read_mft). Record 0 is served directly
// from the buffer cached at mount.
func (vol *Volume) ReadMFTRecord(recordNumber uint64) (buf []byte, err error) {
	return vol.readMFTRecordDepth(recordNumber, 0)
}

func (vol *Volume) readMFTRecordDepth(recordNumber uint64, depth int) (buf []byte, err error) {
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

	if recordNumber == 0 {
		return vol.mftZeroRecord, nil
	}

	if depth > maxSelfMapRecursion {
		log.Panicf("%s: $MFT self-mapping recursion exceeded its bound", ErrFatal)
	}

	recordSize := vol.MFTRecordSectors * int(vol.SectorSize())
	byteOffset := int64(recordNumber) * int64(recordSize)

	buf = make([]byte, recordSize)

	continuation := runListContinuationForAttribute(vol, vol.mftZeroRecord, 0, AttrData, "", 0)
	cursor := newRunListCursor(vol.mftDataRuns, continuation)

	n, rerr := readNonResidentWindow(vol, cursor, buf, byteOffset, recordSize, uint64(byteOffset+int64(recordSize)), nil)
	log.PanicIf(rerr)

	if n != recordSize {
		log.Panicf("%s: short read of MFT record %d (got %d of %d bytes)", ErrCorrupt, recordNumber, n, recordSize)
	}

	err = applyFixup(buf, vol.MFTRecordSectors, "FILE", 0, &vol.fixupSnap)
	log.PanicIf(err)

	vol.lastMFTRecordNumber = recordNumber
	vol.lastMFTRecordValid = true

	return buf, nil
}

// recordSectorAddress resolves the first physical sector of MFT record
// recordNumber, used to report a record's on-disk location to a trace
// callback (spec.md 4.E's resident-read TRACE_ONLY devread) and to write a
// modified record back in the resident write path. The record's sectors
// are assumed to be contiguous from that first sector.
func (vol *Volume) recordSectorAddress(recordNumber uint64) (sector int64, err error) {
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

	if recordNumber == 0 {
		return vol.MFTStartSector, nil
	}

	recordSize := vol.MFTRecordSectors * int(vol.SectorSize())
	byteOffset := int64(recordNumber) * int64(recordSize)
	clusterSize := vol.BytesPerCluster()

	vcn := uint64(byteOffset) / uint64(clusterSize)

	continuation := runListContinuationForAttribute(vol, vol.mftZeroRecord, 0, AttrData, "", 0)
	cursor := newRunListCursor(vol.mftDataRuns, continuation)

	extent, lcn, sparse, serr := seekExtent(cursor, vcn)
	log.PanicIf(serr)

	if sparse {
		log.Panicf("%s: MFT record %d falls in a sparse region", ErrFatal, recordNumber)
	}

	vcnOffset := byteOffset - int64(extent.StartVCN)*clusterSize

	return lcn*int64(vol.SectorsPerCluster) + vcnOffset/vol.SectorSize(), nil
}
