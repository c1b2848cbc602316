package ntfs

import (
	"reflect"
	"time"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

// attributeListTerminator is the sentinel attribute type that ends the
// attribute sequence of an MFT record.
const attributeListTerminator = 0xFFFFFFFF

// Well-known attribute type codes this driver interprets (spec.md 3,
// supplemented with $STANDARD_INFORMATION and $FILE_NAME per SPEC_FULL.md
// §9).
const (
	AttrStandardInformation uint32 = 0x10
	AttrAttributeList       uint32 = 0x20
	AttrFileName            uint32 = 0x30
	AttrData                uint32 = 0x80
	AttrIndexRoot           uint32 = 0x90
	AttrIndexAllocation     uint32 = 0xA0
	AttrBitmap              uint32 = 0xB0
)

// indexAttributeName is the $I30 name every NTFS directory's $INDEX_ROOT,
// $INDEX_ALLOCATION and $BITMAP attributes carry (spec.md 4.H).
const indexAttributeName = "$I30"

// MFTReference is a 6-byte record number plus 2-byte sequence number, the
// value NTFS uses everywhere it points at an MFT record (base-record
// references, $FILE_NAME parent pointers, $ATTRIBUTE_LIST child pointers,
// index entries). Modeled as its own type rather than a bare uint64, per
// the manual-decode idiom in other_examples/42ba60b1_t9t-gomft.
type MFTReference uint64

// RecordNumber returns the low 48 bits: the MFT record this reference
// names.
func (r MFTReference) RecordNumber() uint64 {
	return uint64(r) & 0x0000FFFFFFFFFFFF
}

// SequenceNumber returns the high 16 bits: the generation counter that must
// match the target record's own sequence number for the reference to still
// be valid.
func (r MFTReference) SequenceNumber() uint16 {
	return uint16(uint64(r) >> 48)
}

// RecordFlags are the bit-0/bit-1 MFT record header flags (spec.md 3).
type RecordFlags uint16

// IsInUse reports whether the record is allocated (bit 0).
func (f RecordFlags) IsInUse() bool { return f&0x0001 != 0 }

// IsDirectory reports whether the record describes a directory (bit 1).
func (f RecordFlags) IsDirectory() bool { return f&0x0002 != 0 }

// MFTRecordHeader is the fixed-layout prefix of every MFT record ("FILE"
// signature through the attribute sequence's starting offset), decoded via
// go-restruct since its layout is fully fixed (DESIGN.md §3.4). Field order
// mirrors spec.md 3's byte-offset list exactly; restruct infers sizes and
// offsets from field order and type, the same convention the teacher's
// BootSectorHeader relies on.
type MFTRecordHeader struct {
	// Signature is "FILE" for an MFT record, "INDX" for an index-allocation
	// block (fix-up, component B, shares this same USA layout for both).
	Signature [4]byte

	// UpdateSequenceOffset is the byte offset of the update-sequence array.
	UpdateSequenceOffset uint16

	// UpdateSequenceSize is one more than the number of fix-up-protected
	// sectors.
	UpdateSequenceSize uint16

	// LogFileSequenceNumber is the $LogFile LSN; not interpreted by this
	// driver (journaling is a non-goal).
	LogFileSequenceNumber uint64

	// SequenceNumber increments each time the record slot is reused; must
	// match an MFTReference's SequenceNumber for the reference to be valid.
	SequenceNumber uint16

	// LinkCount is the number of directory entries referencing this
	// record.
	LinkCount uint16

	// FirstAttributeOffset is the byte offset of the first attribute header
	// (offset 0x14 per spec.md 3).
	FirstAttributeOffset uint16

	// Flags carries the in-use/is-directory bits (offset 0x16 per spec.md
	// 3).
	Flags RecordFlags

	// UsedSize is the number of bytes of this record actually in use.
	UsedSize uint32

	// AllocatedSize is the total allocated size of this record (normally
	// equal to mftSize*512).
	AllocatedSize uint32

	// BaseRecordReference names the base MFT record this one is an
	// extension of (offset 0x20 per spec.md 3); zero for a base record
	// itself.
	BaseRecordReference MFTReference

	// NextAttributeID is the attribute-id to assign to the next attribute
	// created in this record; not used by a read/write-existing-data
	// driver but kept for completeness of the on-disk layout.
	NextAttributeID uint16

	_ uint16 // alignment padding before the self record-number field

	// RecordNumber is this record's own number (offset 0x2C per spec.md 3),
	// present on the NTFS 3.1+ record layout this driver targets.
	RecordNumber uint32
}

// parseMFTRecordHeader unpacks the fixed-layout MFT record header from the
// front of a record buffer.
func parseMFTRecordHeader(buf []byte) (hdr MFTRecordHeader, err error) {
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

	err = restruct.Unpack(buf, defaultEncoding, &hdr)
	log.PanicIf(err)

	return hdr, nil
}

// filetimeEpochOffset100ns is the number of 100-nanosecond ticks between the
// FILETIME epoch (1601-01-01) and the Unix epoch (1970-01-01).
const filetimeEpochOffset100ns = 116444736000000000

// filetimeToTime converts an NTFS FILETIME (100ns ticks since 1601-01-01)
// into a time.Time. Grounded on
// other_examples/fd0106ac_lvdlvd-rawhide's windowsFileTimeToTime; part of
// the supplemented $STANDARD_INFORMATION/$FILE_NAME timestamp support
// (SPEC_FULL.md §9).
func filetimeToTime(ft uint64) time.Time {
	unix100ns := int64(ft) - filetimeEpochOffset100ns
	return time.Unix(unix100ns/10000000, (unix100ns%10000000)*100).UTC()
}
