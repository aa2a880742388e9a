package codec

import (
	"bytes"
	"testing"

	"github.com/daedaluz/stm32prog/transport"
)

func TestClassifyReply(t *testing.T) {
	cases := []struct {
		b    byte
		want Reply
		ok   bool
	}{
		{0x79, ACK, true},
		{0x1F, NACK, true},
		{0x76, BUSY, true},
		{0x00, Reply(0x00), false},
	}
	for _, c := range cases {
		got, ok := ClassifyReply(c.b)
		if got != c.want || ok != c.ok {
			t.Errorf("ClassifyReply(0x%02x) = %v,%v want %v,%v", c.b, got, ok, c.want, c.ok)
		}
	}
}

func TestFrameCommand(t *testing.T) {
	got := FrameCommand(0, 0x11)
	want := []byte{0x11, 0xEE}
	if !bytes.Equal(got, want) {
		t.Errorf("FrameCommand(no SOF) = %x, want %x", got, want)
	}

	got = FrameCommand(transport.CmdSOF, 0x11)
	want = []byte{0x5A, 0x11, 0xEE}
	if !bytes.Equal(got, want) {
		t.Errorf("FrameCommand(SOF) = %x, want %x", got, want)
	}
}

func TestEncodeAddress(t *testing.T) {
	got := EncodeAddress(0x08000000)
	want := [5]byte{0x08, 0x00, 0x00, 0x00, 0x08}
	if got != want {
		t.Errorf("EncodeAddress = %x, want %x", got, want)
	}
}

func TestEncodeLengthPayload(t *testing.T) {
	got, err := EncodeLengthPayload([]byte{0x01, 0x02, 0x03, 0x04})
	if err != nil {
		t.Fatalf("EncodeLengthPayload: %v", err)
	}
	want := []byte{0x03, 0x01, 0x02, 0x03, 0x04, 0x03 ^ 0x01 ^ 0x02 ^ 0x03 ^ 0x04}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeLengthPayload = %x, want %x", got, want)
	}

	if _, err := EncodeLengthPayload(nil); err == nil {
		t.Error("empty payload should be rejected")
	}
	if _, err := EncodeLengthPayload(make([]byte, 257)); err == nil {
		t.Error("257-byte payload should be rejected")
	}
}

func TestXOR(t *testing.T) {
	if got := XOR([]byte{0x0F, 0xF0, 0x01}); got != 0xFE {
		t.Errorf("XOR = 0x%02x, want 0xfe", got)
	}
}
