package ntfs

import "testing"

// buildIndexEntry writes one non-terminal index entry for name at buf[pos:],
// returning the total entry length written.
func buildIndexEntry(buf []byte, pos int, recordNumber uint64, name string, isDirectory bool) int {
	nameBytes := make([]byte, len(name)*2)
	for i, r := range name {
		defaultEncoding.PutUint16(nameBytes[i*2:i*2+2], uint16(r))
	}

	entryLength := 0x52 + len(nameBytes)
	// pad to an 8-byte boundary as real index entries do; not required by
	// the parser but keeps the layout realistic.
	for entryLength%8 != 0 {
		entryLength++
	}

	entryBuf := buf[pos : pos+entryLength]

	defaultEncoding.PutUint64(entryBuf[0:8], recordNumber)
	defaultEncoding.PutUint16(entryBuf[8:10], uint16(entryLength))
	defaultEncoding.PutUint16(entryBuf[0xC:0xE], 0) // not last

	var attrs uint32
	if isDirectory {
		attrs = fileAttributeDirectory
	}

	defaultEncoding.PutUint64(entryBuf[0x40:0x48], 4096)
	defaultEncoding.PutUint32(entryBuf[0x48:0x4C], attrs)
	entryBuf[0x50] = byte(len(name))
	entryBuf[0x51] = 1 // Win32 name type

	copy(entryBuf[0x52:], nameBytes)

	return entryLength
}

// buildTerminalEntry writes the final (IsLast) entry marker at buf[pos:].
func buildTerminalEntry(buf []byte, pos int) int {
	entryBuf := buf[pos : pos+0x10]
	defaultEncoding.PutUint16(entryBuf[8:10], 0x10)
	defaultEncoding.PutUint16(entryBuf[0xC:0xE], indexEntryLastFlag)

	return 0x10
}

func TestParseIndexEntryBasic(t *testing.T) {
	buf := make([]byte, 256)

	n := buildIndexEntry(buf, 0, 7, "hello", false)

	entry, err := parseIndexEntry(buf, 0)
	if err != nil {
		t.Fatalf("parseIndexEntry failed: %v", err)
	}

	if entry.IsLast {
		t.Fatalf("did not expect the last-entry flag")
	}

	if entry.Reference.RecordNumber() != 7 {
		t.Fatalf("unexpected reference: %d", entry.Reference.RecordNumber())
	}

	if entry.Name != "hello" {
		t.Fatalf("unexpected name: %q", entry.Name)
	}

	if int(entry.EntryLength) != n {
		t.Fatalf("unexpected entry length: %d vs %d", entry.EntryLength, n)
	}
}

func TestParseIndexEntryLast(t *testing.T) {
	buf := make([]byte, 16)
	buildTerminalEntry(buf, 0)

	entry, err := parseIndexEntry(buf, 0)
	if err != nil {
		t.Fatalf("parseIndexEntry failed: %v", err)
	}

	if !entry.IsLast {
		t.Fatalf("expected the last-entry flag")
	}
}

func TestScanEntrySequenceSearchHit(t *testing.T) {
	buf := make([]byte, 512)

	pos := 0
	pos += buildIndexEntry(buf, pos, 10, "alpha", false)
	pos += buildIndexEntry(buf, pos, 11, "beta", false)
	buildTerminalEntry(buf, pos)

	entry, found, _, err := scanEntrySequence(buf, 0, "beta", nil)
	if err != nil {
		t.Fatalf("scanEntrySequence failed: %v", err)
	}

	if !found {
		t.Fatalf("expected to find \"beta\"")
	}

	if entry.Reference.RecordNumber() != 11 {
		t.Fatalf("unexpected matched reference: %d", entry.Reference.RecordNumber())
	}
}

func TestScanEntrySequenceSearchMiss(t *testing.T) {
	buf := make([]byte, 512)

	pos := 0
	pos += buildIndexEntry(buf, pos, 10, "alpha", false)
	buildTerminalEntry(buf, pos)

	_, found, _, err := scanEntrySequence(buf, 0, "gamma", nil)
	if err != nil {
		t.Fatalf("scanEntrySequence failed: %v", err)
	}

	if found {
		t.Fatalf("did not expect a match")
	}
}

func TestScanEntrySequenceSearchIsCaseInsensitive(t *testing.T) {
	buf := make([]byte, 512)

	pos := 0
	pos += buildIndexEntry(buf, pos, 10, "Alpha", false)
	buildTerminalEntry(buf, pos)

	entry, found, _, err := scanEntrySequence(buf, 0, "ALPHA", nil)
	if err != nil {
		t.Fatalf("scanEntrySequence failed: %v", err)
	}

	if !found || entry.Reference.RecordNumber() != 10 {
		t.Fatalf("expected a case-insensitive match, found=%v entry=%+v", found, entry)
	}
}

func TestScanEntrySequenceEnumerationPrefixMatch(t *testing.T) {
	buf := make([]byte, 512)

	pos := 0
	pos += buildIndexEntry(buf, pos, 10, "report.txt", false)
	pos += buildIndexEntry(buf, pos, 11, "reports", true)
	pos += buildIndexEntry(buf, pos, 12, "notes.txt", false)
	buildTerminalEntry(buf, pos)

	var matches []string
	dirs := map[string]bool{}

	complete := func(name string, isDirectory bool) error {
		matches = append(matches, name)
		dirs[name] = isDirectory
		return nil
	}

	_, found, anyCompletion, err := scanEntrySequence(buf, 0, "re", complete)
	if err != nil {
		t.Fatalf("scanEntrySequence failed: %v", err)
	}

	if found {
		t.Fatalf("enumeration mode should never report found=true")
	}

	if !anyCompletion {
		t.Fatalf("expected at least one completion")
	}

	if len(matches) != 2 {
		t.Fatalf("expected 2 prefix matches, got %v", matches)
	}

	if dirs["report.txt"] {
		t.Fatalf("report.txt should not be reported as a directory")
	}

	if !dirs["reports"] {
		t.Fatalf("reports should be reported as a directory")
	}
}
