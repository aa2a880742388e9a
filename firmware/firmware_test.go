package firmware

import (
	"bytes"
	"strings"
	"testing"
)

func TestBinaryRoundTrip(t *testing.T) {
	p := NewBinary()
	if err := p.Load(bytes.NewReader([]byte{1, 2, 3, 4})); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.BaseAddress() != 0 {
		t.Errorf("BaseAddress = %d, want 0", p.BaseAddress())
	}
	var out bytes.Buffer
	if err := p.Save(&out); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !bytes.Equal(out.Bytes(), []byte{1, 2, 3, 4}) {
		t.Errorf("round trip = %v", out.Bytes())
	}
}

func TestHexLoadDataRecords(t *testing.T) {
	// Two 4-byte records at 0x0000 and 0x0004, then EOF.
	src := ":04000000DEADBEEFC4\n" +
		":04000400CAFEBABEB8\n" +
		":00000001FF\n"
	p := NewHex()
	if err := p.Load(strings.NewReader(src)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xCA, 0xFE, 0xBA, 0xBE}
	if !bytes.Equal(p.Data(), want) {
		t.Errorf("Data = % x, want % x", p.Data(), want)
	}
	if p.BaseAddress() != 0 {
		t.Errorf("BaseAddress = 0x%x, want 0", p.BaseAddress())
	}
}

func TestHexRejectsBadChecksum(t *testing.T) {
	p := NewHex()
	err := p.Load(strings.NewReader(":04000000DEADBEEF00\n")) // wrong checksum
	if err == nil {
		t.Fatal("expected checksum error")
	}
}

func TestHexSkipsSegmentRecords(t *testing.T) {
	// Type-02 extended segment address record must be ignored, not
	// interpreted, per the documented limitation.
	src := ":020000021000EC\n" +
		":04000000DEADBEEFC4\n"
	p := NewHex()
	if err := p.Load(strings.NewReader(src)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if !bytes.Equal(p.Data(), want) {
		t.Errorf("Data = % x, want % x", p.Data(), want)
	}
	if p.BaseAddress() != 0 {
		t.Errorf("BaseAddress = 0x%x, want 0 (segment record must not shift it)", p.BaseAddress())
	}
}

func TestHexStore(t *testing.T) {
	p := NewHex()
	p.Store(0x08000000, []byte{0xAA, 0xBB})
	if p.BaseAddress() != 0x08000000 {
		t.Errorf("BaseAddress = 0x%x, want 0x08000000", p.BaseAddress())
	}
	if !bytes.Equal(p.Data(), []byte{0xAA, 0xBB}) {
		t.Errorf("Data = % x", p.Data())
	}
}
