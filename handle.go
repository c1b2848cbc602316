package ntfs

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/dsoprea/go-logging"
)

// rootRecordNumber is the MFT record number of the volume's root directory.
const rootRecordNumber = 5

// File is an open file or directory handle (spec.md 4.I). cmft is the
// current-file record buffer, rewritten on every directory step and every
// Open call (spec.md 3 lifecycles).
type File struct {
	vol *Volume

	recordNumber uint64
	cmft         []byte

	isDirectory bool
	filePos     int64
	fileSize    int64
}

// Open resolves path against vol and returns a handle to the result
// (spec.md 4.I open). A path of the form "#N" opens MFT record N directly;
// otherwise the path is split on '/' (a leading '/' is skipped) and each
// component is resolved from the root via ScanDirectory, requiring every
// non-final component to name a directory.
func Open(vol *Volume, path string) (file *File, err error) {
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

	if strings.HasPrefix(path, "#") {
		n, perr := strconv.ParseUint(path[1:], 10, 64)
		if perr != nil {
			log.Panicf("%s: invalid record-number path [%s]", ErrNotFound, path)
		}

		file, err = OpenRecord(vol, n)
		log.PanicIf(err)

		return file, nil
	}

	trimmed := strings.TrimPrefix(path, "/")

	var components []string
	if trimmed != "" {
		for _, c := range strings.Split(trimmed, "/") {
			if c != "" {
				components = append(components, c)
			}
		}
	}

	recordNumber := uint64(rootRecordNumber)

	buf, rerr := vol.ReadMFTRecord(recordNumber)
	log.PanicIf(rerr)

	for i, comp := range components {
		ref, found, serr := ScanDirectory(vol, buf, recordNumber, comp, nil)
		log.PanicIf(serr)

		if !found {
			log.Panicf("%s: path component [%s] not found", ErrNotFound, comp)
		}

		recordNumber = ref.RecordNumber()

		buf, rerr = vol.ReadMFTRecord(recordNumber)
		log.PanicIf(rerr)

		hdr, herr := parseMFTRecordHeader(buf)
		log.PanicIf(herr)

		if !hdr.Flags.IsInUse() {
			log.Panicf("%s: record %d is not in use", ErrCorrupt, recordNumber)
		}

		if i < len(components)-1 && !hdr.Flags.IsDirectory() {
			log.Panicf("%s: path component [%s] is not a directory", ErrNotFound, comp)
		}
	}

	file, err = newFileFromRecord(vol, recordNumber, buf)
	log.PanicIf(err)

	return file, nil
}

// OpenRecord opens MFT record recordNumber directly, bypassing path
// resolution (spec.md 4.I: "useful for metadata files such as $MFT").
func OpenRecord(vol *Volume, recordNumber uint64) (file *File, err error) {
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

	buf, rerr := vol.ReadMFTRecord(recordNumber)
	log.PanicIf(rerr)

	file, err = newFileFromRecord(vol, recordNumber, buf)
	log.PanicIf(err)

	return file, nil
}

func newFileFromRecord(vol *Volume, recordNumber uint64, buf []byte) (file *File, err error) {
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

	hdr, herr := parseMFTRecordHeader(buf)
	log.PanicIf(herr)

	file = &File{
		vol:          vol,
		recordNumber: recordNumber,
		cmft:         buf,
		isDirectory:  hdr.Flags.IsDirectory(),
	}

	if !file.isDirectory {
		_, dataAttr, derr := FindAttribute(vol, buf, recordNumber, AttrData, "")
		log.PanicIf(derr)

		if dataAttr.NonResident {
			file.fileSize = int64(dataAttr.RealSize)
		} else {
			file.fileSize = int64(dataAttr.ValueLength)
		}
	}

	return file, nil
}

// IsDirectory reports whether the open handle names a directory.
func (f *File) IsDirectory() bool { return f.isDirectory }

// Size returns the file's $DATA real size; meaningless for a directory.
func (f *File) Size() int64 { return f.fileSize }

// RecordNumber returns the MFT record number backing this handle.
func (f *File) RecordNumber() uint64 { return f.recordNumber }

// Read reads up to len(dest) bytes from $DATA at the handle's current file
// position, advancing it by the number of bytes read (spec.md 4.I read).
// Fails if the handle names a directory.
func (f *File) Read(dest []byte) (n int, err error) {
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

	if f.isDirectory {
		log.Panicf("%s: cannot read a directory as a file", ErrFatal)
	}

	ownerBuf, dataAttr, derr := FindAttribute(f.vol, f.cmft, f.recordNumber, AttrData, "")
	log.PanicIf(derr)

	length := len(dest)
	if f.filePos+int64(length) > f.fileSize {
		length = int(f.fileSize - f.filePos)
	}

	if length <= 0 {
		return 0, nil
	}

	n, err = readAttr(f.vol, ownerBuf, f.recordNumber, AttrData, "", dataAttr, dest, f.filePos, length, true, ModeRead, nil)
	log.PanicIf(err)

	f.filePos += int64(n)

	return n, nil
}

// Write writes len(src) bytes into $DATA at the handle's current file
// position (spec.md 4.I read mode=WRITE, 4.E write restrictions): only a
// resident attribute belonging to the record most recently read may be
// written, and the write may not extend the file.
func (f *File) Write(src []byte) (n int, err error) {
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

	if f.isDirectory {
		log.Panicf("%s: cannot write a directory as a file", ErrFatal)
	}

	ownerBuf, dataAttr, derr := FindAttribute(f.vol, f.cmft, f.recordNumber, AttrData, "")
	log.PanicIf(derr)

	if dataAttr.NonResident {
		log.Panicf("%s: cannot write non-resident data", ErrFatal)
	}

	n, err = readAttr(f.vol, ownerBuf, f.recordNumber, AttrData, "", dataAttr, src, f.filePos, len(src), false, ModeWrite, nil)
	log.PanicIf(err)

	f.filePos += int64(n)

	return n, nil
}

// Seek repositions the handle's file offset for a subsequent Read/Write.
func (f *File) Seek(offset int64) { f.filePos = offset }
