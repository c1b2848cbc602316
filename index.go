package ntfs

import (
	"reflect"
	"strings"

	"github.com/dsoprea/go-logging"
)

// IndexEntry is one decoded entry from a directory index, either from
// $INDEX_ROOT's in-record body or an $INDEX_ALLOCATION "INDX" block
// (spec.md 3). Manually decoded (encoding/binary) since the trailing name
// is variable-length (DESIGN.md §3.4).
type IndexEntry struct {
	Reference  MFTReference
	EntryLength uint16
	IsLast     bool
	NameLength uint8
	NameType   uint8
	Name       string

	// RealSize/FileAttributes mirror the $FILE_NAME fields duplicated into
	// the index entry for display without opening the target record
	// (spec.md 3: "additional fields at +0x40 and +0x48").
	RealSize       uint64
	FileAttributes uint32
}

// indexEntryLastFlag is bit 1 of the entry's flags field (spec.md 4.H).
const indexEntryLastFlag = 0x0002

// parseIndexEntry decodes one index entry beginning at offset pos in buf.
func parseIndexEntry(buf []byte, pos int) (entry IndexEntry, err error) {
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

	if pos+0x10 > len(buf) {
		log.Panicf("%s: index entry at %d overruns its container", ErrCorrupt, pos)
	}

	entryBuf := buf[pos:]

	entryLength := defaultEncoding.Uint16(entryBuf[8:10])
	if int(entryLength) < 0x10 || pos+int(entryLength) > len(buf) {
		log.Panicf("%s: index entry length (%d) invalid", ErrCorrupt, entryLength)
	}

	flags := defaultEncoding.Uint16(entryBuf[0xC:0xE])

	entry = IndexEntry{
		Reference:   MFTReference(defaultEncoding.Uint64(entryBuf[0:8])),
		EntryLength: entryLength,
		IsLast:      flags&indexEntryLastFlag != 0,
	}

	if entry.IsLast {
		return entry, nil
	}

	if int(entryLength) < 0x52 {
		log.Panicf("%s: non-terminal index entry too short for a name (%d bytes)", ErrCorrupt, entryLength)
	}

	entry.RealSize = defaultEncoding.Uint64(entryBuf[0x40:0x48])
	entry.FileAttributes = defaultEncoding.Uint32(entryBuf[0x48:0x4C])
	entry.NameLength = entryBuf[0x50]
	entry.NameType = entryBuf[0x51]

	end := 0x52 + int(entry.NameLength)*2
	if end > int(entryLength) {
		log.Panicf("%s: index entry name overruns its entry", ErrCorrupt)
	}

	entry.Name = decodeUTF16LE(entryBuf[0x52:end])

	return entry, nil
}

// indexRootNameTypeDOS is the NTFS "DOS short name" name-type value
// (spec.md 4.H step 2).
const indexRootNameTypeDOS = 2

// foldEqual reports whether two NTFS names are equal under the
// case-insensitive comparison the index uses (spec.md 4.H step 3). Both
// names are already-decoded Go strings.
func foldEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// DirectoryCompletionFunc is the external print-completion hook spec.md
// 4.H's enumeration mode invokes for every prefix match, with
// isDirectory reporting whether the matched entry names a directory.
type DirectoryCompletionFunc func(name string, isDirectory bool) error

// scanEntrySequence walks a null-terminated index-entry sequence
// (spec.md 4.H list_file), either searching for an exact case-insensitive
// match (complete == nil) or enumerating prefix matches
// (complete != nil). Returns the matched entry and found=true in search
// mode.
func scanEntrySequence(buf []byte, start int, target string, complete DirectoryCompletionFunc) (matched IndexEntry, found bool, anyCompletion bool, err error) {
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

	pos := start

	for {
		entry, perr := parseIndexEntry(buf, pos)
		log.PanicIf(perr)

		if entry.IsLast {
			return IndexEntry{}, false, anyCompletion, nil
		}

		skip := complete != nil && entry.NameType == indexRootNameTypeDOS && entry.NameLength <= 12

		if !skip {
			if complete == nil {
				if len(entry.Name) == len(target) && foldEqual(entry.Name, target) {
					return entry, true, false, nil
				}
			} else if len(entry.Name) >= len(target) && foldEqual(entry.Name[:len(target)], target) {
				isDir := entry.FileAttributes&fileAttributeDirectory != 0

				cerr := complete(entry.Name, isDir)
				log.PanicIf(cerr)

				anyCompletion = true
			}
		}

		pos += int(entry.EntryLength)
	}
}

// fileAttributeDirectory is the NTFS directory bit of the $FILE_NAME /
// index-entry attribute word (0x10000000, not the DOS-style 0x10).
const fileAttributeDirectory = 0x10000000

// indexRootHeaderOffset is where $INDEX_ROOT's index header begins, after
// its fixed {AttributeType, CollationRule, SizeOfIndexRecord,
// ClustersPerIndexRecord+padding} prefix.
const indexRootHeaderOffset = 0x10

// findIndexRoot locates the record's $INDEX_ROOT named "$I30" and returns
// its value bytes plus the byte offset its entry sequence begins at
// (spec.md 4.H scan_dir step 1).
func findIndexRoot(vol *Volume, buf []byte, recordNumber uint64) (value []byte, entriesStart int, err error) {
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

	_, attr, rerr := FindAttribute(vol, buf, recordNumber, AttrIndexRoot, indexAttributeName)
	log.PanicIf(rerr)

	if attr.NonResident {
		log.Panicf("%s: $INDEX_ROOT must be resident", ErrCorrupt)
	}

	value = attr.ResidentValue()

	if len(value) < indexRootHeaderOffset+0x10 {
		log.Panicf("%s: $INDEX_ROOT value too short", ErrCorrupt)
	}

	firstEntryOffset := defaultEncoding.Uint32(value[indexRootHeaderOffset : indexRootHeaderOffset+4])

	entriesStart = indexRootHeaderOffset + int(firstEntryOffset)
	if entriesStart > len(value) {
		log.Panicf("%s: $INDEX_ROOT entries offset overruns its value", ErrCorrupt)
	}

	return value, entriesStart, nil
}

// indxEntriesOffsetField is where an "INDX" block stores the u16 giving
// the entry-sequence start, relative to offset 0x18 (spec.md 4.H step 3:
// "starting at 0x18 + u16_at(+0x18)").
const indxEntriesOffsetField = 0x18

// readIndexAllocationBlock reads and fix-up-validates INDX block number
// blockIndex of the record's $INDEX_ALLOCATION attribute, returning the
// block bytes and the offset its entry sequence begins at.
func readIndexAllocationBlock(vol *Volume, buf []byte, recordNumber uint64, blockIndex uint64) (block []byte, entriesStart int, err error) {
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

	ownerBuf, attr, aerr := FindAttribute(vol, buf, recordNumber, AttrIndexAllocation, indexAttributeName)
	log.PanicIf(aerr)

	blockSize := vol.IndexRecordSectors * int(vol.SectorSize())
	block = make([]byte, blockSize)

	offset := int64(blockIndex) * int64(blockSize)

	n, rerr := readAttr(vol, ownerBuf, recordNumber, AttrIndexAllocation, indexAttributeName, attr, block, offset, blockSize, false, ModeRead, nil)
	log.PanicIf(rerr)

	if n != blockSize {
		log.Panicf("%s: short read of INDX block %d", ErrCorrupt, blockIndex)
	}

	err = applyFixup(block, vol.IndexRecordSectors, "INDX", 0, &vol.fixupSnap)
	log.PanicIf(err)

	entryOffsetField := defaultEncoding.Uint16(block[indxEntriesOffsetField : indxEntriesOffsetField+2])
	entriesStart = indxEntriesOffsetField + int(entryOffsetField)

	if entriesStart > len(block) {
		log.Panicf("%s: INDX block entries offset overruns the block", ErrCorrupt)
	}

	return block, entriesStart, nil
}

// readBitmap reads the record's $BITMAP attribute, resident or
// non-resident, capped at 4096 bytes for the non-resident case
// (DESIGN.md §3.1).
const bitmapSizeCap = 4096

func readBitmap(vol *Volume, buf []byte, recordNumber uint64) (bitmap []byte, err error) {
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

	ownerBuf, attr, berr := FindAttribute(vol, buf, recordNumber, AttrBitmap, indexAttributeName)
	log.PanicIf(berr)

	if !attr.NonResident {
		return append([]byte(nil), attr.ResidentValue()...), nil
	}

	if attr.RealSize > bitmapSizeCap {
		log.Panicf("%s: non-resident $BITMAP (%d bytes) exceeds the %d-byte cap", ErrCorrupt, attr.RealSize, bitmapSizeCap)
	}

	bitmap = make([]byte, attr.RealSize)

	n, rerr := readAttr(vol, ownerBuf, recordNumber, AttrBitmap, indexAttributeName, attr, bitmap, 0, len(bitmap), false, ModeRead, nil)
	log.PanicIf(rerr)

	if n != len(bitmap) {
		log.Panicf("%s: short read of $BITMAP", ErrCorrupt)
	}

	return bitmap, nil
}

// bitSet reports whether bit i of bitmap is set.
func bitSet(bitmap []byte, i uint64) bool {
	byteIdx := i / 8
	if byteIdx >= uint64(len(bitmap)) {
		return false
	}

	return bitmap[byteIdx]&(1<<(i%8)) != 0
}

// ScanDirectory implements spec.md 4.H's scan_dir: search mode (complete
// == nil) returns the matched entry's MFT reference; enumeration mode
// (complete != nil) reports every prefix match through complete and
// succeeds if at least one completion was produced.
func ScanDirectory(vol *Volume, buf []byte, recordNumber uint64, name string, complete DirectoryCompletionFunc) (ref MFTReference, found bool, err error) {
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

	rootValue, rootStart, rerr := findIndexRoot(vol, buf, recordNumber)
	log.PanicIf(rerr)

	entry, ok, anyRoot, serr := scanEntrySequence(rootValue, rootStart, name, complete)
	log.PanicIf(serr)

	if ok {
		return entry.Reference, true, nil
	}

	bitmap, berr := readBitmap(vol, buf, recordNumber)

	if berr != nil {
		if IsNotFound(berr) {
			if anyRoot {
				return MFTReference(0), false, nil
			}

			log.Panicf("%s: name not found and no completion produced", ErrNotFound)
		}

		log.PanicIf(berr)
	}

	anyCompletion := anyRoot

	for i := uint64(0); i < uint64(len(bitmap))*8; i++ {
		if !bitSet(bitmap, i) {
			continue
		}

		block, entriesStart, ierr := readIndexAllocationBlock(vol, buf, recordNumber, i)
		log.PanicIf(ierr)

		blockEntry, blockOK, anyBlock, serr2 := scanEntrySequence(block, entriesStart, name, complete)
		log.PanicIf(serr2)

		if blockOK {
			return blockEntry.Reference, true, nil
		}

		if anyBlock {
			anyCompletion = true
		}
	}

	if complete != nil && anyCompletion {
		return MFTReference(0), false, nil
	}

	log.Panicf("%s: name not found and no completion produced", ErrNotFound)
	return MFTReference(0), false, nil
}
