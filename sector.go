package ntfs

import (
	"io"
	"reflect"

	"github.com/dsoprea/go-logging"
)

// IOMode selects the effect of a SectorDevice.Devread call. It replaces the
// original driver's magic mode constants (0xedde0d90/0x900ddeed) with a
// tagged variant, per the struct-pun re-architecture this driver carries
// throughout.
type IOMode int

const (
	// ModeRead copies sector bytes into the destination buffer.
	ModeRead IOMode = iota

	// ModeWrite copies the source buffer out to the sector range.
	ModeWrite

	// ModeTraceOnly performs no copy; it only invokes the trace callback,
	// used by list-blocks style callers that want the physical extent chain
	// without the data.
	ModeTraceOnly
)

// SectorTraceFunc is invoked once per physical sector touched by a Devread
// call. It reports the traversal to a caller enumerating physical extents
// (e.g. a list-blocks tool) without requiring the adapter to hold a
// process-wide callback pointer.
type SectorTraceFunc func(sectorNumber int64) error

// SectorDevice wraps the host's block-read/write primitive (component A).
// Mirrors the on-disk byte addressing the original `devread` primitive
// exposed, expressed over any io.ReaderAt (and, for the write path,
// io.WriterAt); the per-sector trace hook is passed as an explicit function
// argument to every call rather than held as mutable package state.
type SectorDevice struct {
	ra         io.ReaderAt
	wa         io.WriterAt
	sectorSize int64
}

// NewSectorDevice returns a SectorDevice over the given transport. wa may be
// nil if the caller never intends to exercise the write path.
func NewSectorDevice(ra io.ReaderAt, wa io.WriterAt, sectorSize int64) *SectorDevice {
	return &SectorDevice{
		ra:         ra,
		wa:         wa,
		sectorSize: sectorSize,
	}
}

// Devread transfers `length` bytes beginning `byteOffset` bytes into sector
// `sector`, in the direction dictated by mode. dest may span more than one
// sector; trace, if non-nil, is invoked once for every sector the transfer
// touches (including when dest is nil, i.e. ModeTraceOnly).
func (sd *SectorDevice) Devread(sector int64, byteOffset int64, length int, dest []byte, mode IOMode, trace SectorTraceFunc) (err error) {
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

	absoluteOffset := sector*sd.sectorSize + byteOffset

	if mode != ModeTraceOnly {
		switch mode {
		case ModeRead:
			_, err = sd.ra.ReadAt(dest[:length], absoluteOffset)
			log.PanicIf(err)
		case ModeWrite:
			if sd.wa == nil {
				log.Panicf("%s: device was not opened for writing", ErrFatal)
			}

			_, err = sd.wa.WriteAt(dest[:length], absoluteOffset)
			log.PanicIf(err)
		}
	}

	if trace != nil {
		firstSector := sector
		lastByte := byteOffset + int64(length) - 1
		lastSector := sector + lastByte/sd.sectorSize

		for s := firstSector; s <= lastSector; s++ {
			err := trace(s)
			log.PanicIf(err)
		}
	}

	return nil
}

// SectorSize returns the fixed sector size this device was opened with.
func (sd *SectorDevice) SectorSize() int64 {
	return sd.sectorSize
}
