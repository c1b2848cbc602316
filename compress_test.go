package ntfs

import (
	"bytes"
	"testing"
)

func TestDecompressBlockStored(t *testing.T) {
	body := make([]byte, decompressedBlockSize)
	for i := range body {
		body[i] = byte(i)
	}

	raw := make([]byte, 2+decompressedBlockSize)
	defaultEncoding.PutUint16(raw[0:2], uint16(decompressedBlockSize-1)) // bit15=0: stored
	copy(raw[2:], body)

	output, consumed, err := decompressBlock(raw)
	if err != nil {
		t.Fatalf("decompressBlock failed: %v", err)
	}

	if consumed != len(raw) {
		t.Fatalf("expected to consume the whole stream (%d), consumed %d", len(raw), consumed)
	}

	if !bytes.Equal(output, body) {
		t.Fatalf("stored block should pass through unchanged")
	}
}

func TestDecompressBlockStoredSizeMismatch(t *testing.T) {
	body := make([]byte, 100)

	raw := make([]byte, 2+len(body))
	defaultEncoding.PutUint16(raw[0:2], uint16(len(body)-1))
	copy(raw[2:], body)

	_, _, err := decompressBlock(raw)
	if err == nil {
		t.Fatalf("expected a size-mismatch failure for a short stored block")
	}

	if !IsCorrupt(err) {
		t.Fatalf("expected a corrupt-class error, got %v", err)
	}
}

func TestDecompressBlockAllLiteral(t *testing.T) {
	// One flag byte (all literal) plus 8 literal bytes; decompressBlock
	// zero-pads the rest of the 4096-byte decompressed block, so a single
	// flag group is enough to exercise the literal path end-to-end.
	body := []byte{0x00, 1, 2, 3, 4, 5, 6, 7, 8}

	raw := make([]byte, 2+len(body))
	defaultEncoding.PutUint16(raw[0:2], uint16(len(body)-1)|0x8000) // compressed
	copy(raw[2:], body)

	output, consumed, err := decompressBlock(raw)
	if err != nil {
		t.Fatalf("decompressBlock failed: %v", err)
	}

	if consumed != len(raw) {
		t.Fatalf("expected to consume the whole stream (%d), consumed %d", len(raw), consumed)
	}

	if len(output) != decompressedBlockSize {
		t.Fatalf("expected output padded to %d bytes, got %d", decompressedBlockSize, len(output))
	}

	for i := 0; i < 8; i++ {
		if output[i] != byte(i+1) {
			t.Fatalf("unexpected literal byte at %d: %d", i, output[i])
		}
	}

	for i := 8; i < decompressedBlockSize; i++ {
		if output[i] != 0 {
			t.Fatalf("expected zero padding past the literal data, got %d at %d", output[i], i)
		}
	}
}

func TestDecompressLZBackReferenceBeforeLiteralFails(t *testing.T) {
	// Flag byte with bit 0 set (back-reference) as the very first item.
	body := []byte{0x01, 0x00, 0x00}

	_, err := decompressLZ(body)
	if err == nil {
		t.Fatalf("expected a failure for a back-reference with no prior literal output")
	}

	if !IsCorrupt(err) {
		t.Fatalf("expected a corrupt-class error, got %v", err)
	}
}

func TestDecompressLZBackReferenceRepeatsPriorBytes(t *testing.T) {
	// Flag byte 0x00: one literal byte 'A'. Flag byte 0x01: one
	// back-reference code referring one byte back, small distance/length
	// fields (copied=1 stays under the first shrink boundary at 0x10).
	code := uint16(0) // delta=0 (one byte back), matchLen = 0+3 = 3
	body := []byte{
		0x00, 'A',
		0x01, byte(code), byte(code >> 8),
	}

	output, err := decompressLZ(body)
	if err != nil {
		t.Fatalf("decompressLZ failed: %v", err)
	}

	if output[0] != 'A' || output[1] != 'A' || output[2] != 'A' || output[3] != 'A' {
		t.Fatalf("expected the back-reference to repeat the single literal byte: %v", output[:4])
	}
}

// TestDecompressBlockStreamDoesNotAlignToClusters verifies two blocks
// packed back-to-back in one contiguous stream decode independently, with
// the second block's offset coming entirely from the first block's
// reported consumed count rather than any fixed 4096-byte stride. This is
// the framing a single compressed cluster holds in practice: several small
// blocks followed by the unused remainder of the cluster.
func TestDecompressBlockStreamDoesNotAlignToClusters(t *testing.T) {
	firstBody := []byte{0x00, 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H'}
	secondBody := []byte{0x00, 'X', 'Y', 'Z', 1, 2, 3, 4, 5}

	stream := make([]byte, 0, 4+len(firstBody)+len(secondBody))
	stream = append(stream, 0, 0)
	defaultEncoding.PutUint16(stream[0:2], uint16(len(firstBody)-1)|0x8000)
	stream = append(stream, firstBody...)

	secondHeaderPos := len(stream)
	stream = append(stream, 0, 0)
	defaultEncoding.PutUint16(stream[secondHeaderPos:secondHeaderPos+2], uint16(len(secondBody)-1)|0x8000)
	stream = append(stream, secondBody...)

	firstOutput, consumed, err := decompressBlock(stream)
	if err != nil {
		t.Fatalf("decoding the first block failed: %v", err)
	}

	if consumed != 2+len(firstBody) {
		t.Fatalf("expected to consume %d bytes, consumed %d", 2+len(firstBody), consumed)
	}

	if firstOutput[0] != 'A' {
		t.Fatalf("unexpected first block output: %v", firstOutput[:8])
	}

	secondOutput, consumed, err := decompressBlock(stream[consumed:])
	if err != nil {
		t.Fatalf("decoding the second block failed: %v", err)
	}

	if consumed != 2+len(secondBody) {
		t.Fatalf("expected to consume %d bytes, consumed %d", 2+len(secondBody), consumed)
	}

	if secondOutput[0] != 'X' {
		t.Fatalf("unexpected second block output: %v", secondOutput[:8])
	}
}
