package ntfs

import (
	"reflect"

	"github.com/dsoprea/go-logging"
)

// decompressedBlockSize is the fixed decompressed size of one LZ
// compression block (spec.md 4.F).
const decompressedBlockSize = 4096

// decompressBlock decodes one compression block from the front of stream: a
// 2-byte little-endian header (bits[11:0] = size_in_bytes_following-1,
// bit15 = compressed flag) followed by either 4096 stored bytes or a
// flag-byte/literal/back-reference stream (spec.md 4.F). A compression
// unit packs its blocks back-to-back regardless of cluster boundaries, so
// stream may hold more than one block; decompressBlock reports consumed,
// the number of bytes of stream its header claimed, so the caller can
// advance to the next block itself rather than assume a fixed stride.
func decompressBlock(stream []byte) (output []byte, consumed int, err error) {
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

	if len(stream) < 2 {
		log.Panicf("%s: compression block shorter than its header", ErrCorrupt)
	}

	header := defaultEncoding.Uint16(stream[0:2])
	sizeFollowing := int(header&0x0FFF) + 1
	compressed := header&0x8000 != 0

	consumed = 2 + sizeFollowing

	if consumed > len(stream) {
		log.Panicf("%s: compression block claims %d bytes but only %d remain", ErrCorrupt, sizeFollowing, len(stream)-2)
	}

	body := stream[2:consumed]

	if !compressed {
		if sizeFollowing != decompressedBlockSize {
			log.Panicf("%s: %v", ErrCorrupt, errStoredBlockSizeMismatch)
		}

		return append([]byte(nil), body...), consumed, nil
	}

	output, err = decompressLZ(body)
	log.PanicIf(err)

	return output, consumed, nil
}

// decompressLZ implements spec.md 4.F's byte-oriented LZ decoder: a flag
// byte classifies its following 8 items (LSB-first) as literal bytes or
// 16-bit back-reference words, whose length/distance field widths shrink
// as the output grows past each power-of-two boundary.
func decompressLZ(body []byte) (output []byte, err error) {
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

	output = make([]byte, 0, decompressedBlockSize)
	pos := 0

	for pos < len(body) && len(output) < decompressedBlockSize {
		flags := body[pos]
		pos++

		for bit := 0; bit < 8; bit++ {
			if pos >= len(body) || len(output) >= decompressedBlockSize {
				break
			}

			if flags&(1<<uint(bit)) == 0 {
				output = append(output, body[pos])
				pos++

				continue
			}

			if pos+2 > len(body) {
				log.Panicf("%s: truncated back-reference code", ErrCorrupt)
			}

			code := defaultEncoding.Uint16(body[pos : pos+2])
			pos += 2

			copied := len(output)
			if copied == 0 {
				log.Panicf("%s: back-reference before any literal byte was emitted", ErrCorrupt)
			}

			i := copied - 1
			lmask := uint16(0xFFF)
			dshift := uint(12)

			for i >= 0x10 {
				lmask >>= 1
				dshift--
				i >>= 1
			}

			delta := int(code >> dshift)
			matchLen := int(code&lmask) + 3

			srcStart := copied - delta - 1
			if srcStart < 0 {
				log.Panicf("%s: back-reference distance %d exceeds output produced so far (%d)", ErrCorrupt, delta+1, copied)
			}

			if len(output)+matchLen > decompressedBlockSize {
				log.Panicf("%s: %v", ErrCorrupt, errLiteralOverflow)
			}

			for j := 0; j < matchLen; j++ {
				output = append(output, output[srcStart+j])
			}
		}
	}

	if len(output) > decompressedBlockSize {
		log.Panicf("%s: %v", ErrCorrupt, errLiteralOverflow)
	}

	if len(output) < decompressedBlockSize {
		padded := make([]byte, decompressedBlockSize)
		copy(padded, output)
		output = padded
	}

	return output, nil
}
