package ntfs

import (
	"reflect"

	"github.com/dsoprea/go-logging"
)

// compressionUnitVCNs is the number of VCNs one LZ compression unit spans
// (spec.md 4.E/4.F: 16 consecutive VCNs).
const compressionUnitVCNs = 16

// readAttr services an (offset, length) request against a named attribute
// already located via FindAttribute (spec.md 4.E read_attr/read_data).
// ownerBuf is the MFT record buffer attr borrows from; recordNumber and
// attrType/name identify it for run-list continuation purposes.
func readAttr(vol *Volume, ownerBuf []byte, recordNumber uint64, attrType uint32, name string, attr Attribute, dest []byte, offset int64, length int, cached bool, mode IOMode, trace SectorTraceFunc) (n int, err error) {
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

	if !attr.NonResident {
		n, err = readWriteResident(vol, ownerBuf, recordNumber, attr, dest, offset, length, mode, trace)
		log.PanicIf(err)

		return n, nil
	}

	if attr.Flags.IsEncrypted() {
		log.Panicf("%s: encrypted attributes are not supported", ErrFatal)
	}

	if mode == ModeWrite {
		log.Panicf("%s: writing to non-resident data is not supported", ErrFatal)
	}

	continuation := runListContinuationForAttribute(vol, ownerBuf, recordNumber, attrType, name, attr.LastVCN-1)
	cursor := newRunListCursor(attr.RunListBytes(), continuation)

	if attr.Flags.IsCompressed() {
		n, err = readCompressed(vol, cursor, dest, offset, length)
		log.PanicIf(err)

		return n, nil
	}

	if cached {
		n, err = readNonResidentCached(vol, cursor, dest, offset, length, attr.RealSize, trace)
	} else {
		n, err = readNonResidentWindow(vol, cursor, dest, offset, length, attr.RealSize, trace)
	}

	log.PanicIf(err)

	return n, nil
}

// readWriteResident implements spec.md 4.E's resident-attribute path.
func readWriteResident(vol *Volume, ownerBuf []byte, recordNumber uint64, attr Attribute, dest []byte, offset int64, length int, mode IOMode, trace SectorTraceFunc) (n int, err error) {
	if offset+int64(length) > int64(attr.ValueLength) {
		log.Panicf("%s: resident read/write out of range (offset %d, length %d, value length %d)", ErrCorrupt, offset, length, attr.ValueLength)
	}

	start := int(attr.ValueOffset) + int(offset)

	if mode == ModeWrite {
		if !vol.lastMFTRecordValid || recordNumber != vol.lastMFTRecordNumber {
			log.Panicf("%s: write target is not the most recently read record", ErrFatal)
		}

		copy(ownerBuf[start:start+length], dest[:length])

		err = applyFixup(ownerBuf, vol.MFTRecordSectors, "FILE", 1, &vol.fixupSnap)
		log.PanicIf(err)

		sector, serr := vol.recordSectorAddress(recordNumber)
		log.PanicIf(serr)

		err = vol.dev.Devread(sector, 0, len(ownerBuf), ownerBuf, ModeWrite, trace)
		log.PanicIf(err)

		err = applyFixup(ownerBuf, vol.MFTRecordSectors, "FILE", 0, &vol.fixupSnap)
		log.PanicIf(err)

		vol.cache.invalidate()

		return length, nil
	}

	copy(dest[:length], ownerBuf[start:start+length])

	if trace != nil {
		if sector, serr := vol.recordSectorAddress(recordNumber); serr == nil {
			_ = vol.dev.Devread(sector, 0, vol.MFTRecordSectors*int(vol.SectorSize()), nil, ModeTraceOnly, trace)
		}
	}

	return length, nil
}

// readNonResidentWindow implements the head/middle/tail split of spec.md
// 4.E's non-resident plain path, without the single-line cache.
func readNonResidentWindow(vol *Volume, cursor *runListCursor, dest []byte, offset int64, length int, realSize uint64, trace SectorTraceFunc) (n int, err error) {
	if offset >= int64(realSize) {
		return 0, nil
	}

	if offset+int64(length) > int64(realSize) {
		length = int(int64(realSize) - offset)
	}

	clusterSize := vol.BytesPerCluster()

	remaining := length
	pos := offset
	destOff := 0

	for remaining > 0 {
		vcn := uint64(pos) / uint64(clusterSize)
		vcnOffset := pos - int64(vcn)*clusterSize

		extent, lcn, sparse, eerr := seekExtent(cursor, vcn)
		log.PanicIf(eerr)

		runStartByte := int64(extent.StartVCN) * clusterSize
		runEndByte := int64(extent.NextVCN) * clusterSize
		available := runEndByte - (runStartByte + (pos - runStartByte))

		chunk := remaining
		if int64(chunk) > available {
			chunk = int(available)
		}

		if sparse {
			for i := 0; i < chunk; i++ {
				dest[destOff+i] = 0
			}
		} else {
			firstSector := (lcn+int64(vcn-extent.StartVCN))*int64(vol.SectorsPerCluster) + vcnOffset/vol.SectorSize()
			sectorByteOff := vcnOffset % vol.SectorSize()

			derr := vol.dev.Devread(firstSector, sectorByteOff, chunk, dest[destOff:destOff+chunk], ModeRead, trace)
			log.PanicIf(derr)
		}

		remaining -= chunk
		destOff += chunk
		pos += int64(chunk)
	}

	return length, nil
}

// readNonResidentCached adds the single-line sbuf/save_pos cache in front
// of readNonResidentWindow (spec.md 3, 4.E): a read that begins exactly
// where the previous cached read ended is satisfied from vol.cache without
// touching the device again.
func readNonResidentCached(vol *Volume, cursor *runListCursor, dest []byte, offset int64, length int, realSize uint64, trace SectorTraceFunc) (n int, err error) {
	if vol.cache.valid && offset == vol.cache.pos && len(vol.cache.buf) > 0 {
		chunk := length
		if chunk > len(vol.cache.buf) {
			chunk = len(vol.cache.buf)
		}

		copy(dest[:chunk], vol.cache.buf[:chunk])

		if chunk == length {
			return length, nil
		}

		more, rerr := readNonResidentWindow(vol, cursor, dest[chunk:], offset+int64(chunk), length-chunk, realSize, trace)
		log.PanicIf(rerr)

		vol.cache.invalidate()

		return chunk + more, nil
	}

	// Read on to the end of the sector the window ends in, so the cache
	// holds the bytes that follow this read.
	end := offset + int64(length)
	fetchEnd := (end + vol.SectorSize() - 1) / vol.SectorSize() * vol.SectorSize()
	if fetchEnd > int64(realSize) {
		fetchEnd = int64(realSize)
	}
	if fetchEnd < end {
		fetchEnd = end
	}

	fetched := make([]byte, fetchEnd-offset)

	m, err := readNonResidentWindow(vol, cursor, fetched, offset, len(fetched), realSize, trace)
	log.PanicIf(err)

	n = length
	if m < n {
		n = m
	}

	copy(dest[:n], fetched[:n])

	vol.cache.buf = append([]byte(nil), fetched[n:m]...)
	vol.cache.pos = offset + int64(n)
	vol.cache.valid = len(vol.cache.buf) > 0

	return n, nil
}

// seekExtent advances cursor until it yields the extent covering vcn,
// returning that extent's concrete LCN (meaningless if sparse).
func seekExtent(cursor *runListCursor, vcn uint64) (extent Extent, lcn int64, sparse bool, err error) {
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

	for {
		ext, ok, nerr := cursor.Next()
		log.PanicIf(nerr)

		if !ok {
			log.Panicf("%s: run list exhausted before reaching VCN %d", ErrCorrupt, vcn)
		}

		if vcn >= ext.StartVCN && vcn < ext.NextVCN {
			return ext, ext.LCN, ext.Sparse, nil
		}

		if ext.NextVCN > vcn {
			log.Panicf("%s: run list gap at VCN %d", ErrCorrupt, vcn)
		}
	}
}

// readCompressed implements spec.md 4.E/4.F's compressed-attribute path: a
// window is satisfied one 16-VCN compression unit at a time, each unit
// either memmove'd (stored) or routed through the LZ decompressor.
func readCompressed(vol *Volume, cursor *runListCursor, dest []byte, offset int64, length int) (n int, err error) {
	clusterSize := vol.BytesPerCluster()
	unitSize := compressionUnitVCNs * clusterSize

	remaining := length
	pos := offset
	destOff := 0

	for remaining > 0 {
		unitIndex := uint64(pos) / uint64(unitSize)
		unitStartVCN := unitIndex * compressionUnitVCNs
		unitByteStart := int64(unitStartVCN) * clusterSize

		unit, stored, allSparse, uerr := gatherCompressionUnit(vol, cursor, unitStartVCN)
		log.PanicIf(uerr)

		var unitBuf []byte

		if allSparse {
			unitBuf = make([]byte, unitSize)
		} else if stored {
			unitBuf, err = readStoredUnit(vol, unit)
			log.PanicIf(err)
		} else {
			unitBuf, err = decompressUnit(vol, unit)
			log.PanicIf(err)
		}

		inUnitOffset := pos - unitByteStart
		chunk := remaining
		if int64(chunk) > int64(len(unitBuf))-inUnitOffset {
			chunk = int(int64(len(unitBuf)) - inUnitOffset)
		}

		if chunk <= 0 {
			log.Panicf("%s: compression unit produced no data at offset %d", ErrCorrupt, pos)
		}

		copy(dest[destOff:destOff+chunk], unitBuf[inUnitOffset:inUnitOffset+int64(chunk)])

		remaining -= chunk
		destOff += chunk
		pos += int64(chunk)
	}

	return length, nil
}

// compressionUnitExtent is one of the up to compressionUnitVCNs entries
// gathered for a compression unit (spec.md 4.E read_block compressed
// path).
type compressionUnitExtent struct {
	LCN    int64
	Sparse bool
}

// gatherCompressionUnit collects the (VCN,LCN) entries of the compression
// unit starting at unitStartVCN. The unit is compressed if its final slot
// is sparse (BLANK), stored otherwise (spec.md 4.E).
func gatherCompressionUnit(vol *Volume, cursor *runListCursor, unitStartVCN uint64) (entries []compressionUnitExtent, stored bool, allSparse bool, err error) {
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

	allSparse = true

	for i := 0; i < compressionUnitVCNs; i++ {
		vcn := unitStartVCN + uint64(i)

		ext, lcn, sparse, serr := seekExtent(cursor, vcn)
		log.PanicIf(serr)
		_ = ext

		entries = append(entries, compressionUnitExtent{LCN: lcn, Sparse: sparse})

		if !sparse {
			allSparse = false
		}
	}

	stored = !entries[len(entries)-1].Sparse

	return entries, stored, allSparse, nil
}

// readStoredUnit reads a stored (uncompressed) compression unit straight
// off disk.
func readStoredUnit(vol *Volume, entries []compressionUnitExtent) (buf []byte, err error) {
	clusterSize := vol.BytesPerCluster()
	buf = make([]byte, int64(len(entries))*clusterSize)

	for i, e := range entries {
		if e.Sparse {
			continue
		}

		firstSector := e.LCN * int64(vol.SectorsPerCluster)

		derr := vol.dev.Devread(firstSector, 0, int(clusterSize), buf[int64(i)*clusterSize:int64(i+1)*clusterSize], ModeRead, nil)
		log.PanicIf(derr)
	}

	return buf, nil
}

// unitDecompressedSize is the total decompressed size of one compression
// unit: compressionUnitVCNs blocks of decompressedBlockSize bytes each
// (spec.md 4.E/4.F).
const unitDecompressedSize = compressionUnitVCNs * decompressedBlockSize

// decompressUnit reads the compression unit's real (non-sparse) clusters
// as one contiguous byte stream and decodes the variable-length
// compression blocks packed into it back-to-back (spec.md 4.E/4.F): a
// block's encoded size is whatever its own header declares, not a fixed
// share of a cluster, so blocks routinely straddle cluster boundaries or
// leave a cluster's tail unused by the next block.
func decompressUnit(vol *Volume, entries []compressionUnitExtent) (buf []byte, err error) {
	clusterSize := vol.BytesPerCluster()
	raw := make([]byte, 0, int64(len(entries))*clusterSize)

	for _, e := range entries {
		if e.Sparse {
			continue
		}

		firstSector := e.LCN * int64(vol.SectorsPerCluster)

		chunk := make([]byte, clusterSize)

		derr := vol.dev.Devread(firstSector, 0, int(clusterSize), chunk, ModeRead, nil)
		log.PanicIf(derr)

		raw = append(raw, chunk...)
	}

	buf = make([]byte, 0, unitDecompressedSize)
	pos := 0

	for len(buf) < unitDecompressedSize {
		if pos >= len(raw) {
			log.Panicf("%s: compressed unit exhausted its input after producing %d of %d bytes", ErrCorrupt, len(buf), unitDecompressedSize)
		}

		decoded, consumed, derr := decompressBlock(raw[pos:])
		log.PanicIf(derr)

		buf = append(buf, decoded...)
		pos += consumed
	}

	return buf, nil
}
