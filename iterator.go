package ntfs

import (
	"reflect"

	"github.com/dsoprea/go-logging"
)

const attributeListPageSize = 4096

// FindAttribute locates the first attribute matching (attrType, name) in
// the MFT record numbered recordNumber, transparently following an
// $ATTRIBUTE_LIST into child records when the attribute is not present
// locally (spec.md 4.D, states INIT → WALK_LOCAL → (AL_RESIDENT |
// AL_NONRES_PAGE) → WALK_CHILD). Returns the buffer the returned Attribute
// borrows from (either buf itself or a freshly read child record) alongside
// the attribute.
//
// This is the entry point used for attributes with a single logical
// instance ($STANDARD_INFORMATION, $FILE_NAME, $INDEX_ROOT, $BITMAP, the
// first fragment of $DATA). Fragmented non-resident attributes additionally
// need runListContinuationForAttribute to walk past the first fragment.
func FindAttribute(vol *Volume, buf []byte, recordNumber uint64, attrType uint32, name string) (ownerBuf []byte, attr Attribute, err error) {
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

	_, localAttr, found, ferr := findLocalAttribute(buf, attrType, name)
	log.PanicIf(ferr)

	if found {
		return buf, localAttr, nil
	}

	entries, listAttr, hasList, lerr := readAttributeListEntries(vol, buf)
	log.PanicIf(lerr)

	if !hasList {
		log.Panicf("%s: attribute 0x%X not found and record carries no $ATTRIBUTE_LIST", ErrNotFound, attrType)
	}

	_ = listAttr

	for _, entry := range entries {
		if entry.Type != attrType || entry.Name != name {
			continue
		}

		if entry.Reference.RecordNumber() == recordNumber {
			// Already covered by the local scan above; a base record never
			// lists itself as a forward reference for an attribute that
			// local scanning would have found.
			continue
		}

		childBuf, rerr := vol.ReadMFTRecord(entry.Reference.RecordNumber())
		log.PanicIf(rerr)

		childAttr, cerr := findAttributeByID(childBuf, attrType, entry.AttributeID)
		log.PanicIf(cerr)

		return childBuf, childAttr, nil
	}

	log.Panicf("%s: attribute 0x%X listed nowhere reachable from record %d", ErrNotFound, attrType, recordNumber)
	return nil, Attribute{}, nil
}

// findAttributeByID scans a child record's local attributes for one with
// the given type and attribute-id, the matching key an $ATTRIBUTE_LIST
// entry names (spec.md 4.D: "scan its attributes until one has the same
// (type, attribute-id at +0x18)").
func findAttributeByID(buf []byte, attrType uint32, attributeID uint16) (attr Attribute, err error) {
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

	hdr, err := parseMFTRecordHeader(buf)
	log.PanicIf(err)

	pos := int(hdr.FirstAttributeOffset)

	for {
		a, ok, perr := parseAttribute(buf, pos)
		log.PanicIf(perr)

		if !ok {
			log.Panicf("%s: attribute-id %d of type 0x%X not found in child record", ErrCorrupt, attributeID, attrType)
		}

		if a.Type == attrType && a.AttributeID == attributeID {
			return a, nil
		}

		pos += int(a.TotalLength)
	}
}

// readAttributeListEntries reads and fully decodes the base record's
// $ATTRIBUTE_LIST attribute, if any. A non-resident list is read whole in
// a single read of its real size, with no size cap; it is not paged. The
// $ATTRIBUTE_LIST attribute's own run list is read with no continuation
// callback: an attribute-list is never itself followed through another
// attribute list (spec.md 4.D).
func readAttributeListEntries(vol *Volume, buf []byte) (entries []AttributeListEntry, listAttr Attribute, hasList bool, err error) {
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

	_, attr, found, ferr := findLocalAttribute(buf, AttrAttributeList, "")
	log.PanicIf(ferr)

	if !found {
		return nil, Attribute{}, false, nil
	}

	var body []byte

	if !attr.NonResident {
		body = attr.ResidentValue()
	} else {
		body = make([]byte, attr.RealSize)

		cursor := newRunListCursor(attr.RunListBytes(), nil)

		n, rerr := readNonResidentWindow(vol, cursor, body, 0, len(body), attr.RealSize, nil)
		log.PanicIf(rerr)

		if int64(n) != int64(len(body)) {
			log.Panicf("%s: short read of non-resident $ATTRIBUTE_LIST (got %d of %d bytes)", ErrCorrupt, n, len(body))
		}
	}

	pos := 0
	for pos < len(body) {
		entry, perr := parseAttributeListEntry(body, pos)
		log.PanicIf(perr)

		entries = append(entries, entry)
		pos += int(entry.TotalLength)
	}

	return entries, attr, true, nil
}

// runListContinuationForAttribute returns a runListContinuationFunc that
// fetches the run list of the next $ATTRIBUTE_LIST fragment of (attrType,
// name) past the given starting VCN, reading the referenced child MFT
// record via component G. This is what the run-list decoder (component C)
// calls into when it meets a zero-header terminator but more fragments of
// the same attribute remain (spec.md 4.C, 4.D).
//
// Used both for ordinary fragmented non-resident attributes and for $MFT's
// own $DATA self-mapping (spec.md 4.D special case): recordNumber=0,
// attrType=AttrData, name="" walks the same machinery. Reading a child
// record from here can call back into this function; that nesting has no
// depth limit (see maxSelfMapRecursion).
func runListContinuationForAttribute(vol *Volume, baseBuf []byte, recordNumber uint64, attrType uint32, name string, afterVCN uint64) runListContinuationFunc {
	lastVCN := afterVCN

	return func() (continuation []byte, ok bool, err error) {
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

		entries, _, hasList, lerr := readAttributeListEntries(vol, baseBuf)
		log.PanicIf(lerr)

		if !hasList {
			return nil, false, nil
		}

		var best *AttributeListEntry

		for i := range entries {
			e := &entries[i]
			if e.Type != attrType || e.Name != name {
				continue
			}

			if e.StartingVCN <= lastVCN {
				continue
			}

			if best == nil || e.StartingVCN < best.StartingVCN {
				best = e
			}
		}

		if best == nil {
			return nil, false, nil
		}

		childBuf, rerr := vol.ReadMFTRecord(best.Reference.RecordNumber())
		log.PanicIf(rerr)

		childAttr, cerr := findAttributeByID(childBuf, attrType, best.AttributeID)
		log.PanicIf(cerr)

		if !childAttr.NonResident {
			log.Panicf("%s: attribute-list continuation fragment is resident", ErrCorrupt)
		}

		lastVCN = best.StartingVCN

		return childAttr.RunListBytes(), true, nil
	}
}
