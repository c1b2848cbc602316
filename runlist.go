package ntfs

import (
	"reflect"

	"github.com/dsoprea/go-logging"
)

// Extent is one decoded (VCN range, LCN base) pair from a run list, per
// spec.md 4.C. Sparse runs carry Sparse=true and an unspecified LCN.
type Extent struct {
	// StartVCN is the first virtual cluster number this extent covers.
	StartVCN uint64

	// NextVCN is one past the last virtual cluster number this extent
	// covers (i.e. the VCN the following extent begins at).
	NextVCN uint64

	// LCN is the logical (volume-relative) cluster number StartVCN maps to.
	// Meaningless when Sparse is true.
	LCN int64

	// Sparse indicates the run carries no on-disk allocation (an O=0 run
	// header); reads against it must be zero-filled.
	Sparse bool
}

// ClusterCount returns the number of clusters this extent spans.
func (e Extent) ClusterCount() uint64 {
	return e.NextVCN - e.StartVCN
}

// runListContinuationFunc is supplied by the attribute iterator (component
// D) to fetch the next fragment of the same (type, name) attribute from a
// subsequent MFT record listed in an $ATTRIBUTE_LIST, when a run list's
// header byte is the zero terminator but more data belongs to the
// attribute. Returns the continuation bytes, or (nil, false) if there is no
// continuation.
type runListContinuationFunc func() (continuation []byte, ok bool, err error)

// runListCursor walks the packed byte stream of a data-run list one extent
// at a time, replacing the original's {run_cursor, curr_vcn, next_vcn,
// curr_lcn} fields with a typed value.
type runListCursor struct {
	data []byte
	pos  int

	nextVCN uint64
	lastLCN int64

	onContinuation runListContinuationFunc
}

// newRunListCursor returns a cursor over the given packed run-list bytes,
// starting at VCN 0.
func newRunListCursor(data []byte, onContinuation runListContinuationFunc) *runListCursor {
	return &runListCursor{
		data:           data,
		onContinuation: onContinuation,
	}
}

// Next decodes and returns the next extent in the run list (spec.md 4.C
// next_run). Returns ok=false once the terminator byte is reached with no
// further continuation available.
func (rc *runListCursor) Next() (extent Extent, ok bool, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var errOk bool
			if err, errOk = errRaw.(error); errOk == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(errRaw).Name(), errRaw)
			}
		}
	}()

	for {
		if rc.pos >= len(rc.data) {
			log.Panicf("%s: run list ended without a terminator byte", ErrCorrupt)
		}

		header := rc.data[rc.pos]
		if header == 0 {
			continuation, hasMore, cerr := rc.fetchContinuation()
			log.PanicIf(cerr)

			if !hasMore {
				return Extent{}, false, nil
			}

			rc.data = continuation
			rc.pos = 0
			rc.lastLCN = 0

			continue
		}

		lengthWidth := int(header & 0x0F)
		offsetWidth := int(header >> 4)

		rc.pos++

		if rc.pos+lengthWidth+offsetWidth > len(rc.data) {
			log.Panicf("%s: run list header declares more bytes than remain", ErrCorrupt)
		}

		length := readUnsignedLE(rc.data[rc.pos : rc.pos+lengthWidth])
		rc.pos += lengthWidth

		startVCN := rc.nextVCN
		rc.nextVCN = startVCN + length

		sparse := offsetWidth == 0

		if !sparse {
			delta := readSignedLE(rc.data[rc.pos : rc.pos+offsetWidth])
			rc.pos += offsetWidth
			rc.lastLCN += delta
		}

		return Extent{
			StartVCN: startVCN,
			NextVCN:  rc.nextVCN,
			LCN:      rc.lastLCN,
			Sparse:   sparse,
		}, true, nil
	}
}

func (rc *runListCursor) fetchContinuation() (continuation []byte, ok bool, err error) {
	if rc.onContinuation == nil {
		return nil, false, nil
	}

	return rc.onContinuation()
}

// readUnsignedLE decodes a little-endian unsigned integer of arbitrary
// byte-width (NTFS run lists use 1-8 byte width fields).
func readUnsignedLE(b []byte) uint64 {
	var v uint64
	for i, c := range b {
		v |= uint64(c) << (8 * uint(i))
	}

	return v
}

// readSignedLE decodes a little-endian two's-complement signed integer of
// arbitrary byte-width, sign-extending from the most significant bit of the
// last byte supplied.
func readSignedLE(b []byte) int64 {
	v := int64(readUnsignedLE(b))

	if len(b) > 0 && len(b) < 8 && b[len(b)-1]&0x80 != 0 {
		v |= -1 << (8 * uint(len(b)))
	}

	return v
}

// DecodeRunList fully materializes a run list into an ordered slice of
// extents. Used by the inode/info dump (component L) and by tests that
// check the quantified "virtual coverage" property; the streaming
// runListCursor, not this helper, is what the data reader (component E)
// actually drives.
func DecodeRunList(data []byte, onContinuation runListContinuationFunc) (extents []Extent, err error) {
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

	cursor := newRunListCursor(data, onContinuation)

	for {
		extent, ok, err := cursor.Next()
		log.PanicIf(err)

		if !ok {
			break
		}

		extents = append(extents, extent)
	}

	return extents, nil
}
