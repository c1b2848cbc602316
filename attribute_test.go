package ntfs

import "testing"

func TestParseAttributeResident(t *testing.T) {
	buf := make([]byte, 64)

	defaultEncoding.PutUint32(buf[0:4], AttrStandardInformation)
	defaultEncoding.PutUint32(buf[4:8], 40) // total length
	buf[8] = 0                              // resident
	buf[9] = 0                              // name length
	defaultEncoding.PutUint16(buf[10:12], 0)
	defaultEncoding.PutUint16(buf[12:14], 0) // flags
	defaultEncoding.PutUint16(buf[14:16], 0) // attribute id

	defaultEncoding.PutUint32(buf[0x10:0x14], 16) // value length
	defaultEncoding.PutUint16(buf[0x14:0x16], 24) // value offset

	for i := 0; i < 16; i++ {
		buf[24+i] = byte(i + 1)
	}

	attr, ok, err := parseAttribute(buf, 0)
	if err != nil {
		t.Fatalf("parseAttribute failed: %v", err)
	}

	if !ok {
		t.Fatalf("expected ok=true")
	}

	if attr.NonResident {
		t.Fatalf("expected a resident attribute")
	}

	if attr.Type != AttrStandardInformation {
		t.Fatalf("unexpected type: %x", attr.Type)
	}

	value := attr.ResidentValue()
	if len(value) != 16 || value[0] != 1 || value[15] != 16 {
		t.Fatalf("unexpected resident value: %v", value)
	}
}

func TestParseAttributeNonResident(t *testing.T) {
	buf := make([]byte, 0x48)

	defaultEncoding.PutUint32(buf[0:4], AttrData)
	defaultEncoding.PutUint32(buf[4:8], 0x48)
	buf[8] = 1 // non-resident
	buf[9] = 0

	defaultEncoding.PutUint64(buf[0x10:0x18], 0)     // starting VCN
	defaultEncoding.PutUint64(buf[0x18:0x20], 9)     // last VCN
	defaultEncoding.PutUint16(buf[0x20:0x22], 0x40)  // run list offset
	defaultEncoding.PutUint64(buf[0x28:0x30], 40960) // allocated size
	defaultEncoding.PutUint64(buf[0x30:0x38], 40000) // real size
	defaultEncoding.PutUint64(buf[0x38:0x40], 40000) // initialized size

	attr, ok, err := parseAttribute(buf, 0)
	if err != nil {
		t.Fatalf("parseAttribute failed: %v", err)
	}

	if !ok {
		t.Fatalf("expected ok=true")
	}

	if !attr.NonResident {
		t.Fatalf("expected a non-resident attribute")
	}

	if attr.LastVCN != 9 || attr.RealSize != 40000 {
		t.Fatalf("unexpected non-resident fields: %+v", attr)
	}

	runBytes := attr.RunListBytes()
	if len(runBytes) != int(attr.TotalLength)-0x40 {
		t.Fatalf("unexpected run-list slice length: %d", len(runBytes))
	}
}

func TestParseAttributeTerminator(t *testing.T) {
	buf := make([]byte, 4)
	defaultEncoding.PutUint32(buf[0:4], attributeListTerminator)

	_, ok, err := parseAttribute(buf, 0)
	if err != nil {
		t.Fatalf("parseAttribute failed: %v", err)
	}

	if ok {
		t.Fatalf("expected ok=false at the terminator")
	}
}

func TestParseAttributeListEntry(t *testing.T) {
	buf := make([]byte, 0x1A+8)

	defaultEncoding.PutUint32(buf[0:4], AttrData)
	defaultEncoding.PutUint16(buf[4:6], uint16(len(buf)))
	buf[6] = 4  // name length
	buf[7] = 26 // name offset

	defaultEncoding.PutUint64(buf[8:16], 0)
	defaultEncoding.PutUint64(buf[16:24], uint64(12)|(uint64(3)<<48))
	defaultEncoding.PutUint16(buf[24:26], 1)

	name := []byte{'$', 0, 'I', 0, '3', 0, '0', 0}
	copy(buf[26:34], name)

	entry, err := parseAttributeListEntry(buf, 0)
	if err != nil {
		t.Fatalf("parseAttributeListEntry failed: %v", err)
	}

	if entry.Type != AttrData || entry.AttributeID != 1 {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	if entry.Reference.RecordNumber() != 12 || entry.Reference.SequenceNumber() != 3 {
		t.Fatalf("unexpected reference decode: record=%d seq=%d",
			entry.Reference.RecordNumber(), entry.Reference.SequenceNumber())
	}

	if entry.Name != "$I30" {
		t.Fatalf("unexpected name: %q", entry.Name)
	}
}

func TestParseStandardInformation(t *testing.T) {
	value := make([]byte, 0x30)
	defaultEncoding.PutUint64(value[0:8], 1000)
	defaultEncoding.PutUint64(value[8:16], 2000)
	defaultEncoding.PutUint64(value[16:24], 3000)
	defaultEncoding.PutUint64(value[24:32], 4000)
	defaultEncoding.PutUint32(value[32:36], 0x20)

	si, err := parseStandardInformation(value)
	if err != nil {
		t.Fatalf("parseStandardInformation failed: %v", err)
	}

	if si.CreationTime != 1000 || si.AccessedTime != 4000 || si.FileAttributes != 0x20 {
		t.Fatalf("unexpected decode: %+v", si)
	}
}

func TestParseFileNameAttribute(t *testing.T) {
	value := make([]byte, 66+8)

	defaultEncoding.PutUint64(value[0:8], uint64(5))
	defaultEncoding.PutUint64(value[48:56], 12345) // real size
	value[64] = 4                                  // name length
	value[65] = 1                                  // name type

	name := []byte{'t', 0, 'e', 0, 's', 0, 't', 0}
	copy(value[66:74], name)

	fn, err := parseFileNameAttribute(value)
	if err != nil {
		t.Fatalf("parseFileNameAttribute failed: %v", err)
	}

	if fn.ParentDirectory.RecordNumber() != 5 {
		t.Fatalf("unexpected parent reference: %d", fn.ParentDirectory.RecordNumber())
	}

	if fn.RealSize != 12345 {
		t.Fatalf("unexpected real size: %d", fn.RealSize)
	}

	if fn.Name != "test" {
		t.Fatalf("unexpected name: %q", fn.Name)
	}
}
