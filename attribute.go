package ntfs

import (
	"reflect"
	"unicode/utf16"

	"github.com/dsoprea/go-logging"
)

// AttributeFlags are the attribute-header flags bits (spec.md 3).
type AttributeFlags uint16

const (
	attrFlagCompressed AttributeFlags = 0x0001
	attrFlagEncrypted  AttributeFlags = 0x4000
	attrFlagSparse     AttributeFlags = 0x8000
)

// IsCompressed reports whether the attribute's non-resident data is LZ
// compressed (component F applies).
func (f AttributeFlags) IsCompressed() bool { return f&attrFlagCompressed != 0 }

// IsEncrypted reports whether the attribute is encrypted; this driver does
// not support encryption (a declared non-goal) and callers must treat an
// encrypted attribute's data as unreadable.
func (f AttributeFlags) IsEncrypted() bool { return f&attrFlagEncrypted != 0 }

// IsSparse reports whether the attribute carries sparse (zero-filled)
// regions.
func (f AttributeFlags) IsSparse() bool { return f&attrFlagSparse != 0 }

// Attribute is a parsed view over one attribute record inside an MFT
// buffer. It borrows its underlying bytes from that buffer and is only
// valid for the lifetime of a single operation (spec.md "Ownership").
// Manually decoded via encoding/binary rather than go-restruct, because the
// resident/non-resident tail is polymorphic on NonResident and restruct has
// no notion of a tagged union (DESIGN.md §3.4).
type Attribute struct {
	Type         uint32
	TotalLength  uint32
	NonResident  bool
	NameLength   uint8
	NameOffset   uint16
	Flags        AttributeFlags
	AttributeID  uint16

	// Name is the attribute's name, if NameLength > 0 (e.g. "$I30" on an
	// index attribute). Decoded from the UTF-16LE name field for internal
	// comparison purposes (SPEC_FULL.md §10.1).
	Name string

	// --- resident form (NonResident == false) ---
	ValueLength uint32
	ValueOffset uint16

	// --- non-resident form (NonResident == true) ---
	StartingVCN     uint64
	LastVCN         uint64
	RunListOffset   uint16
	AllocatedSize   uint64
	RealSize        uint64
	InitializedSize uint64

	// raw is the full attribute record, including its header, as a slice
	// borrowed from the owning MFT buffer.
	raw []byte
}

// ResidentValue returns the attribute's value bytes for a resident
// attribute, borrowed from the owning MFT buffer.
func (a *Attribute) ResidentValue() []byte {
	return a.raw[a.ValueOffset : int(a.ValueOffset)+int(a.ValueLength)]
}

// RunListBytes returns the packed run-list bytes for a non-resident
// attribute, borrowed from the owning MFT buffer.
func (a *Attribute) RunListBytes() []byte {
	return a.raw[a.RunListOffset:a.TotalLength]
}

// parseAttribute decodes one attribute record beginning at offset `pos` in
// buf. Returns ok=false if `pos` is the 0xFFFFFFFF terminator.
func parseAttribute(buf []byte, pos int) (attr Attribute, ok bool, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var isErr bool
			if err, isErr = errRaw.(error); isErr == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(errRaw).Name(), errRaw)
			}
		}
	}()

	if pos+4 > len(buf) {
		log.Panicf("%s: attribute header at %d overruns the record buffer", ErrCorrupt, pos)
	}

	typeCode := defaultEncoding.Uint32(buf[pos : pos+4])
	if typeCode == attributeListTerminator {
		return Attribute{}, false, nil
	}

	if pos+0x18 > len(buf) {
		log.Panicf("%s: attribute header at %d overruns the record buffer", ErrCorrupt, pos)
	}

	totalLength := defaultEncoding.Uint32(buf[pos+4 : pos+8])
	if totalLength == 0 || pos+int(totalLength) > len(buf) {
		log.Panicf("%s: attribute length (%d) at %d overruns the record buffer", ErrCorrupt, totalLength, pos)
	}

	recordBuf := buf[pos : pos+int(totalLength)]

	nonResidentFlag := recordBuf[8]
	nameLength := recordBuf[9]
	nameOffset := defaultEncoding.Uint16(recordBuf[10:12])
	flags := AttributeFlags(defaultEncoding.Uint16(recordBuf[12:14]))
	attributeID := defaultEncoding.Uint16(recordBuf[14:16])

	attr = Attribute{
		Type:        typeCode,
		TotalLength: totalLength,
		NonResident: nonResidentFlag != 0,
		NameLength:  nameLength,
		NameOffset:  nameOffset,
		Flags:       flags,
		AttributeID: attributeID,
		raw:         recordBuf,
	}

	if nameLength > 0 {
		end := int(nameOffset) + int(nameLength)*2
		if end > len(recordBuf) {
			log.Panicf("%s: attribute name overruns its record", ErrCorrupt)
		}

		attr.Name = decodeUTF16LE(recordBuf[nameOffset:end])
	}

	if attr.NonResident {
		if len(recordBuf) < 0x40 {
			log.Panicf("%s: non-resident attribute tail too short", ErrCorrupt)
		}

		attr.StartingVCN = defaultEncoding.Uint64(recordBuf[0x10:0x18])
		attr.LastVCN = defaultEncoding.Uint64(recordBuf[0x18:0x20])
		attr.RunListOffset = defaultEncoding.Uint16(recordBuf[0x20:0x22])
		attr.AllocatedSize = defaultEncoding.Uint64(recordBuf[0x28:0x30])
		attr.RealSize = defaultEncoding.Uint64(recordBuf[0x30:0x38])
		attr.InitializedSize = defaultEncoding.Uint64(recordBuf[0x38:0x40])
	} else {
		if len(recordBuf) < 0x18 {
			log.Panicf("%s: resident attribute tail too short", ErrCorrupt)
		}

		attr.ValueLength = defaultEncoding.Uint32(recordBuf[0x10:0x14])
		attr.ValueOffset = defaultEncoding.Uint16(recordBuf[0x14:0x16])

		if int(attr.ValueOffset)+int(attr.ValueLength) > len(recordBuf) {
			log.Panicf("%s: resident attribute value overruns its record", ErrCorrupt)
		}
	}

	return attr, true, nil
}

// decodeUTF16LE decodes a UTF-16LE byte slice to a Go (UTF-8) string. Used
// by directory-name comparison (spec.md 4.H) and attribute-name
// comparison; the names a directory-completion hook receives are these
// decoded strings (SPEC_FULL.md §10.1).
func decodeUTF16LE(b []byte) string {
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = defaultEncoding.Uint16(b[i*2 : i*2+2])
	}

	return string(utf16.Decode(u16))
}

// AttributeListEntry is one entry of an $ATTRIBUTE_LIST attribute's body
// (spec.md 3), manually decoded since its trailing name is variable-length.
type AttributeListEntry struct {
	Type         uint32
	TotalLength  uint16
	NameLength   uint8
	NameOffset   uint8
	StartingVCN  uint64
	Reference    MFTReference
	AttributeID  uint16
	Name         string
}

// parseAttributeListEntry decodes one entry beginning at offset `pos` in an
// $ATTRIBUTE_LIST attribute's value bytes.
func parseAttributeListEntry(buf []byte, pos int) (entry AttributeListEntry, err error) {
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

	if pos+0x1A > len(buf) {
		log.Panicf("%s: attribute-list entry at %d overruns its container", ErrCorrupt, pos)
	}

	entryBuf := buf[pos:]

	totalLength := defaultEncoding.Uint16(entryBuf[4:6])
	if int(totalLength) < 0x1A || pos+int(totalLength) > len(buf) {
		log.Panicf("%s: attribute-list entry length (%d) invalid", ErrCorrupt, totalLength)
	}

	entry = AttributeListEntry{
		Type:        defaultEncoding.Uint32(entryBuf[0:4]),
		TotalLength: totalLength,
		StartingVCN: defaultEncoding.Uint64(entryBuf[8:16]),
		Reference:   MFTReference(defaultEncoding.Uint64(entryBuf[16:24])),
		AttributeID: defaultEncoding.Uint16(entryBuf[24:26]),
		NameLength:  entryBuf[6],
		NameOffset:  entryBuf[7],
	}

	if entry.NameLength > 0 {
		start := int(entry.NameOffset)
		end := start + int(entry.NameLength)*2

		if end > int(totalLength) {
			log.Panicf("%s: attribute-list entry name overruns its entry", ErrCorrupt)
		}

		entry.Name = decodeUTF16LE(entryBuf[start:end])
	}

	return entry, nil
}

// StandardInformation is the parsed body of a $STANDARD_INFORMATION
// attribute (supplemented, SPEC_FULL.md §9): creation/modification/MFT-
// change/access FILETIMEs plus a DOS-style attribute word.
type StandardInformation struct {
	CreationTime   uint64
	ModifiedTime   uint64
	MFTChangedTime uint64
	AccessedTime   uint64
	FileAttributes uint32
}

// parseStandardInformation decodes a $STANDARD_INFORMATION attribute's
// resident value.
func parseStandardInformation(value []byte) (si StandardInformation, err error) {
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

	if len(value) < 0x30 {
		log.Panicf("%s: $STANDARD_INFORMATION value too short", ErrCorrupt)
	}

	si = StandardInformation{
		CreationTime:   defaultEncoding.Uint64(value[0:8]),
		ModifiedTime:   defaultEncoding.Uint64(value[8:16]),
		MFTChangedTime: defaultEncoding.Uint64(value[16:24]),
		AccessedTime:   defaultEncoding.Uint64(value[24:32]),
		FileAttributes: defaultEncoding.Uint32(value[32:36]),
	}

	return si, nil
}

// FileNameAttribute is the parsed body of a $FILE_NAME attribute
// (supplemented, SPEC_FULL.md §9): the file's display name, its parent
// directory reference, and a duplicate set of size/attribute/timestamp
// fields the index entries mirror.
type FileNameAttribute struct {
	ParentDirectory MFTReference
	CreationTime    uint64
	ModifiedTime    uint64
	MFTChangedTime  uint64
	AccessedTime    uint64
	AllocatedSize   uint64
	RealSize        uint64
	FileAttributes  uint32
	NameLength      uint8
	NameType        uint8
	Name            string
}

// parseFileNameAttribute decodes a $FILE_NAME attribute's resident value.
func parseFileNameAttribute(value []byte) (fn FileNameAttribute, err error) {
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

	if len(value) < 0x42 {
		log.Panicf("%s: $FILE_NAME value too short", ErrCorrupt)
	}

	fn = FileNameAttribute{
		ParentDirectory: MFTReference(defaultEncoding.Uint64(value[0:8])),
		CreationTime:    defaultEncoding.Uint64(value[8:16]),
		ModifiedTime:    defaultEncoding.Uint64(value[16:24]),
		MFTChangedTime:  defaultEncoding.Uint64(value[24:32]),
		AccessedTime:    defaultEncoding.Uint64(value[32:40]),
		AllocatedSize:   defaultEncoding.Uint64(value[40:48]),
		RealSize:        defaultEncoding.Uint64(value[48:56]),
		FileAttributes:  defaultEncoding.Uint32(value[56:60]),
		NameLength:      value[64],
		NameType:        value[65],
	}

	end := 66 + int(fn.NameLength)*2
	if end > len(value) {
		log.Panicf("%s: $FILE_NAME name overruns its value", ErrCorrupt)
	}

	fn.Name = decodeUTF16LE(value[66:end])

	return fn, nil
}
