package ntfs

import "testing"

func TestDecodeRunListBasicExtent(t *testing.T) {
	// header 0x21: length width=1, offset width=2; length=16, LCN delta=+1234
	data := []byte{0x21, 0x10, 0xD2, 0x04, 0x00}

	extents, err := DecodeRunList(data, nil)
	if err != nil {
		t.Fatalf("DecodeRunList failed: %v", err)
	}

	if len(extents) != 1 {
		t.Fatalf("expected 1 extent, got %d", len(extents))
	}

	e := extents[0]
	if e.StartVCN != 0 || e.NextVCN != 16 {
		t.Fatalf("unexpected VCN range: [%d,%d)", e.StartVCN, e.NextVCN)
	}

	if e.LCN != 1234 {
		t.Fatalf("unexpected LCN: %d", e.LCN)
	}

	if e.Sparse {
		t.Fatalf("extent should not be sparse")
	}
}

func TestDecodeRunListSparseRun(t *testing.T) {
	// header 0x01: length width=1, offset width=0 (sparse); length=32
	data := []byte{0x01, 0x20, 0x00}

	extents, err := DecodeRunList(data, nil)
	if err != nil {
		t.Fatalf("DecodeRunList failed: %v", err)
	}

	if len(extents) != 1 {
		t.Fatalf("expected 1 extent, got %d", len(extents))
	}

	if !extents[0].Sparse {
		t.Fatalf("expected a sparse extent")
	}

	if extents[0].NextVCN != 32 {
		t.Fatalf("unexpected NextVCN: %d", extents[0].NextVCN)
	}
}

func TestDecodeRunListMultipleRunsAccumulateLCN(t *testing.T) {
	data := []byte{
		0x21, 0x08, 0x64, 0x00, // run 1: length=8, lcn delta=+100
		0x21, 0x08, 0xF6, 0xFF, // run 2: length=8, lcn delta=-10
		0x00,
	}

	extents, err := DecodeRunList(data, nil)
	if err != nil {
		t.Fatalf("DecodeRunList failed: %v", err)
	}

	if len(extents) != 2 {
		t.Fatalf("expected 2 extents, got %d", len(extents))
	}

	if extents[0].StartVCN != 0 || extents[0].NextVCN != 8 || extents[0].LCN != 100 {
		t.Fatalf("unexpected first extent: %+v", extents[0])
	}

	if extents[1].StartVCN != 8 || extents[1].NextVCN != 16 || extents[1].LCN != 90 {
		t.Fatalf("unexpected second extent (LCN should accumulate): %+v", extents[1])
	}
}

func TestDecodeRunListContinuation(t *testing.T) {
	first := []byte{0x21, 0x08, 0x0A, 0x00, 0x00}
	second := []byte{0x21, 0x08, 0x05, 0x00, 0x00}

	calls := 0
	cont := func() ([]byte, bool, error) {
		calls++
		if calls == 1 {
			return second, true, nil
		}

		return nil, false, nil
	}

	extents, err := DecodeRunList(first, cont)
	if err != nil {
		t.Fatalf("DecodeRunList failed: %v", err)
	}

	if len(extents) != 2 {
		t.Fatalf("expected 2 extents across the continuation, got %d", len(extents))
	}

	if calls != 2 {
		t.Fatalf("expected continuation to be consulted twice (once for more data, once to confirm exhaustion), got %d", calls)
	}

	if extents[1].StartVCN != 8 || extents[1].NextVCN != 16 {
		t.Fatalf("continuation extent should carry on the VCN numbering: %+v", extents[1])
	}
}

func TestDecodeRunListMissingTerminatorIsCorrupt(t *testing.T) {
	data := []byte{0x21, 0x08, 0x0A, 0x00}

	_, err := DecodeRunList(data, nil)
	if err == nil {
		t.Fatalf("expected a failure for a run list missing its terminator byte")
	}

	if !IsCorrupt(err) {
		t.Fatalf("expected a corrupt-class error, got %v", err)
	}
}
