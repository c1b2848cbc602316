// This package implements a read/write driver for the on-disk structures of
// an NTFS volume: boot sector, Master File Table, attribute lists, run
// lists, compressed data, and directory indexes.

package ntfs

import (
	"encoding/binary"
	"strings"

	"github.com/dsoprea/go-logging"
)

// defaultEncoding is the byte order every on-disk NTFS structure is packed
// in.
var defaultEncoding = binary.LittleEndian

// Sentinel errors. Every failure surfaced by this package carries the
// message of one of these three classes (see classify, below), matching the
// three-way error taxonomy this driver exposes to its caller: not-found,
// corrupt, and fatal. Internal helpers wrap these with additional context
// via log.Errorf; classify() recovers the class by matching the sentinel's
// text, since the wrapping chain produced by go-logging/go-errors does not
// implement the stdlib Unwrap contract.
var (
	// ErrNotFound indicates a requested path or index entry does not exist.
	ErrNotFound = log.Errorf("not found")

	// ErrCorrupt indicates an on-disk structure failed a structural check:
	// wrong signature, bad fix-up stamp, malformed run list, and so on.
	ErrCorrupt = log.Errorf("file-system corrupt")

	// ErrFatal indicates a request that violates a hard driver restriction
	// (writing non-resident data, writing to a record other than the one
	// most recently read, reading a directory as a file, encrypted data,
	// an unsupported sector size or record size).
	ErrFatal = log.Errorf("fatal ntfs driver error")
)

// errStoredBlockSizeMismatch and errLiteralOverflow are internal causes
// behind a single externally-visible compression-corrupt failure (see
// DESIGN.md open-question 3.2). Both classify as ErrCorrupt.
var (
	errStoredBlockSizeMismatch = log.Errorf("stored compression block size != 4096")
	errLiteralOverflow         = log.Errorf("compression output overflowed 4096 bytes")
)

// classify reports which of the three sentinel classes an error belongs to
// by checking whether its message carries one of their texts. Returns the
// sentinel itself, or nil if err doesn't belong to any of the three classes
// (a caller-facing bug, not a filesystem condition).
func classify(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()

	// "not found" is checked last: some corrupt-class messages also
	// contain those words.
	switch {
	case strings.Contains(msg, ErrFatal.Error()):
		return ErrFatal
	case strings.Contains(msg, ErrCorrupt.Error()) ||
		strings.Contains(msg, errStoredBlockSizeMismatch.Error()) ||
		strings.Contains(msg, errLiteralOverflow.Error()):
		return ErrCorrupt
	case strings.Contains(msg, ErrNotFound.Error()):
		return ErrNotFound
	default:
		return nil
	}
}

// IsNotFound reports whether err represents a missing path or index entry.
func IsNotFound(err error) bool { return classify(err) == ErrNotFound }

// IsCorrupt reports whether err represents a structural on-disk defect.
func IsCorrupt(err error) bool { return classify(err) == ErrCorrupt }

// IsFatal reports whether err represents a violated driver restriction.
func IsFatal(err error) bool { return classify(err) == ErrFatal }
