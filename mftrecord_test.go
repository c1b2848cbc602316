package ntfs

import "testing"

func TestParseMFTRecordHeader(t *testing.T) {
	buf := make([]byte, 56)

	copy(buf[0:4], "FILE")
	defaultEncoding.PutUint16(buf[4:6], 48)
	defaultEncoding.PutUint16(buf[6:8], 3)
	defaultEncoding.PutUint64(buf[8:16], 0)
	defaultEncoding.PutUint16(buf[16:18], 1) // sequence number
	defaultEncoding.PutUint16(buf[18:20], 2) // link count
	defaultEncoding.PutUint16(buf[20:22], 56) // first attribute offset
	defaultEncoding.PutUint16(buf[22:24], 1)  // flags: in-use
	defaultEncoding.PutUint32(buf[24:28], 400)
	defaultEncoding.PutUint32(buf[28:32], 1024)
	defaultEncoding.PutUint64(buf[32:40], 5) // base record reference
	defaultEncoding.PutUint16(buf[40:42], 6) // next attribute id
	defaultEncoding.PutUint32(buf[44:48], 42) // record number

	hdr, err := parseMFTRecordHeader(buf)
	if err != nil {
		t.Fatalf("parseMFTRecordHeader failed: %v", err)
	}

	if string(hdr.Signature[:]) != "FILE" {
		t.Fatalf("unexpected signature: %q", hdr.Signature)
	}

	if hdr.FirstAttributeOffset != 56 {
		t.Fatalf("unexpected first attribute offset: %d", hdr.FirstAttributeOffset)
	}

	if !hdr.Flags.IsInUse() {
		t.Fatalf("expected in-use flag set")
	}

	if hdr.Flags.IsDirectory() {
		t.Fatalf("did not expect directory flag set")
	}

	if hdr.BaseRecordReference.RecordNumber() != 5 {
		t.Fatalf("unexpected base record reference: %d", hdr.BaseRecordReference.RecordNumber())
	}

	if hdr.RecordNumber != 42 {
		t.Fatalf("unexpected record number: %d", hdr.RecordNumber)
	}

	if hdr.LinkCount != 2 {
		t.Fatalf("unexpected link count: %d", hdr.LinkCount)
	}
}

func TestFiletimeToTime(t *testing.T) {
	// 116444736000000000 is the FILETIME value for the Unix epoch itself.
	got := filetimeToTime(filetimeEpochOffset100ns)

	if got.Unix() != 0 {
		t.Fatalf("expected the Unix epoch, got %v", got)
	}

	// One second (in 100ns ticks) past the epoch.
	got = filetimeToTime(filetimeEpochOffset100ns + 10000000)
	if got.Unix() != 1 {
		t.Fatalf("expected one second past the epoch, got %v", got)
	}
}
