package ntfs

import (
	"bytes"
	"testing"
)

type memDevice struct {
	data []byte
}

func (m *memDevice) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, m.data[off:]), nil
}

func (m *memDevice) WriteAt(p []byte, off int64) (int, error) {
	return copy(m.data[off:], p), nil
}

func TestSectorDeviceRead(t *testing.T) {
	backing := make([]byte, 512*4)
	for i := range backing {
		backing[i] = byte(i)
	}

	mem := &memDevice{data: backing}
	sd := NewSectorDevice(mem, mem, 512)

	dest := make([]byte, 10)

	err := sd.Devread(1, 5, 10, dest, ModeRead, nil)
	if err != nil {
		t.Fatalf("Devread failed: %v", err)
	}

	if !bytes.Equal(dest, backing[512+5:512+15]) {
		t.Fatalf("unexpected read: %v", dest)
	}
}

func TestSectorDeviceWrite(t *testing.T) {
	backing := make([]byte, 512*2)
	mem := &memDevice{data: backing}
	sd := NewSectorDevice(mem, mem, 512)

	src := []byte{1, 2, 3, 4}

	err := sd.Devread(1, 0, len(src), src, ModeWrite, nil)
	if err != nil {
		t.Fatalf("Devread write failed: %v", err)
	}

	if !bytes.Equal(backing[512:516], src) {
		t.Fatalf("write did not land at the expected offset: %v", backing[512:516])
	}
}

func TestSectorDeviceTrace(t *testing.T) {
	backing := make([]byte, 512*4)
	mem := &memDevice{data: backing}
	sd := NewSectorDevice(mem, nil, 512)

	var touched []int64

	err := sd.Devread(0, 500, 20, nil, ModeTraceOnly, func(sector int64) error {
		touched = append(touched, sector)
		return nil
	})
	if err != nil {
		t.Fatalf("Devread trace failed: %v", err)
	}

	if len(touched) != 2 || touched[0] != 0 || touched[1] != 1 {
		t.Fatalf("expected trace over sectors [0 1], got %v", touched)
	}
}

func TestSectorDeviceWriteWithoutWriterFails(t *testing.T) {
	backing := make([]byte, 512)
	mem := &memDevice{data: backing}
	sd := NewSectorDevice(mem, nil, 512)

	err := sd.Devread(0, 0, 4, []byte{1, 2, 3, 4}, ModeWrite, nil)
	if err == nil {
		t.Fatalf("expected a failure writing through a read-only device")
	}
}
