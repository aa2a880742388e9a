package bootloader

import (
	"testing"

	"github.com/daedaluz/stm32prog/transport"
)

// TestIdentification mirrors the reference identification scenario:
// a Medium-density device (PID 0x410) replying to GET/GVR/GID over a
// byte-oriented UART-like transport.
func TestIdentification(t *testing.T) {
	port := newMockPort(transport.ByteOriented|transport.GVRExtended,
		// GET: len=0x0B (12 bytes follow: bl_ver + 11 opcodes), then ACK
		0x79,
		0x0B, 0x22, 0x00, 0x01, 0x02, 0x11, 0x21, 0x31, 0x43, 0x63, 0x73, 0x82, 0x92,
		0x79,
		// GVR: ACK, ver,opt1,opt2, ACK
		0x79, 0x01, 0x00, 0x04, 0x79,
		// GID: ACK, len=0x01 (2 bytes: pid_hi,pid_lo), pid, ACK
		0x79, 0x01, 0x04, 0x10, 0x79,
	)
	s := New(port, nil)
	if err := s.Init(false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if s.BLVer != 0x22 {
		t.Errorf("bl_version = 0x%02x, want 0x22", s.BLVer)
	}
	if s.PID != 0x410 {
		t.Errorf("pid = 0x%03x, want 0x410", s.PID)
	}
	if s.Device.Name != "Medium-density" {
		t.Errorf("device name = %q, want Medium-density", s.Device.Name)
	}
	if s.Cmd.RM != 0x11 || s.Cmd.WM != 0x31 || s.Cmd.ER != 0x43 {
		t.Errorf("cmd table not populated correctly: %+v", s.Cmd)
	}
	if s.State() != StateReady {
		t.Errorf("state = %v, want Ready", s.State())
	}
}

func sessionReady(t *testing.T, port *mockPort) *Session {
	t.Helper()
	s := New(port, nil)
	s.Cmd = CmdTable{Get: 0x00, GVR: 0x01, GID: 0x02, RM: 0x11, Go: 0x21, WM: 0x31, ER: 0x43, WP: 0x63, UW: 0x73, RP: 0x82, UR: 0x92}
	s.PID = 0x410
	s.Device.RAMStart = 0x20000200
	s.state = StateReady
	return s
}

// TestReadMemoryFraming checks the exact byte sequence emitted for a
// read-memory call against the mock, per the read-memory property.
func TestReadMemoryFraming(t *testing.T) {
	port := newMockPort(transport.ByteOriented)
	s := sessionReady(t, port)
	port.queue(0x79, 0x79, 0x79, 0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x11, 0x22, 0x33)

	out := make([]byte, 8)
	if err := s.ReadMemory(0x08000000, out); err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	want := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x11, 0x22, 0x33}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("byte %d = 0x%02x, want 0x%02x", i, out[i], want[i])
		}
	}
	if len(port.written) != 3 {
		t.Fatalf("expected 3 writes (cmd, addr, len), got %d", len(port.written))
	}
	if port.written[0][0] != 0x11 || port.written[0][1] != 0xEE {
		t.Errorf("rm command frame = % x", port.written[0])
	}
	wantAddr := []byte{0x08, 0x00, 0x00, 0x00, 0x08}
	for i, b := range wantAddr {
		if port.written[1][i] != b {
			t.Errorf("address frame byte %d = 0x%02x, want 0x%02x", i, port.written[1][i], b)
		}
	}
	if port.written[2][0] != 7 || port.written[2][1] != ^byte(7) {
		t.Errorf("length command frame = % x, want len-1=7", port.written[2])
	}
}

func TestReadMemoryPreconditions(t *testing.T) {
	s := sessionReady(t, newMockPort(transport.ByteOriented))
	if err := s.ReadMemory(0x08000001, make([]byte, 4)); err == nil {
		t.Fatal("expected precondition error for misaligned address")
	}
	if err := s.ReadMemory(0x08000000, nil); err == nil {
		t.Fatal("expected precondition error for zero length")
	}
	if err := s.ReadMemory(0x08000000, make([]byte, 257)); err == nil {
		t.Fatal("expected precondition error for length > 256")
	}
}

// TestWriteMemoryChecksum verifies the padding + checksum rule for a
// length not already a multiple of 4.
func TestWriteMemoryChecksum(t *testing.T) {
	port := newMockPort(0)
	s := sessionReady(t, port)
	port.queue(0x79, 0x79, 0x79)

	data := []byte{0x01, 0x02, 0x03}
	if err := s.WriteMemory(0x08000000, data); err != nil {
		t.Fatalf("WriteMemory: %v", err)
	}
	frame := port.written[2]
	if frame[0] != 3 {
		t.Fatalf("aligned_len-1 = %d, want 3", frame[0])
	}
	want := []byte{0x01, 0x02, 0x03, 0xFF}
	for i, b := range want {
		if frame[1+i] != b {
			t.Errorf("payload byte %d = 0x%02x, want 0x%02x", i, frame[1+i], b)
		}
	}
	cs := byte(3)
	for _, b := range want {
		cs ^= b
	}
	if frame[5] != cs {
		t.Errorf("checksum = 0x%02x, want 0x%02x", frame[5], cs)
	}
}

// TestMassEraseQuirk checks that PID 0x416 downgrades an extended
// mass-erase request to an explicit 0xF8-page erase.
func TestMassEraseQuirk(t *testing.T) {
	port := newMockPort(0)
	s := sessionReady(t, port)
	s.PID = 0x416
	s.Cmd.ER = 0x44
	port.queue(0x79, 0x79)

	if err := s.Erase(0, 0xFFFF); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	frame := port.written[1]
	n := uint16(frame[0])<<8 | uint16(frame[1])
	if n != 0xF7 {
		t.Fatalf("page count-1 = 0x%04x, want 0x%04x (248 pages)", n, 0xF7)
	}
}

// TestMassEraseExtended checks the 0xFFFF mass-erase wire triple for a
// part that does support it.
func TestMassEraseExtended(t *testing.T) {
	port := newMockPort(0)
	s := sessionReady(t, port)
	s.Cmd.ER = 0x44
	port.queue(0x79, 0x79)

	if err := s.Erase(0, 0xFFFF); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	frame := port.written[1]
	if len(frame) != 3 || frame[0] != 0xFF || frame[1] != 0xFF || frame[2] != 0x00 {
		t.Fatalf("mass erase frame = % x, want ff ff 00", frame)
	}
}

// TestMassEraseClassic checks that a generic MassErase request against
// a classic-erase device (e.g. 0x410, ER=0x43) is translated to the
// single-byte 0xFF wire marker rather than the extended 0xFFFF one,
// which a classic bootloader would reject as an oversized page count.
func TestMassEraseClassic(t *testing.T) {
	port := newMockPort(0)
	s := sessionReady(t, port)
	port.queue(0x79, 0x79)

	if err := s.Erase(0, MassErase); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if len(port.written) != 2 {
		t.Fatalf("expected 2 writes (cmd, mass-erase marker), got %d", len(port.written))
	}
	frame := port.written[1]
	if len(frame) != 1 || frame[0] != 0xFF {
		t.Fatalf("mass erase frame = % x, want ff", frame)
	}
}

// TestMassEraseGenericExtended mirrors TestMassEraseClassic for a part
// whose erase opcode is the extended (0x44) variant.
func TestMassEraseGenericExtended(t *testing.T) {
	port := newMockPort(0)
	s := sessionReady(t, port)
	s.Cmd.ER = 0x44
	port.queue(0x79, 0x79)

	if err := s.Erase(0, MassErase); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	frame := port.written[1]
	if len(frame) != 3 || frame[0] != 0xFF || frame[1] != 0xFF || frame[2] != 0x00 {
		t.Fatalf("mass erase frame = % x, want ff ff 00", frame)
	}
}

func TestGoRequiresAlignment(t *testing.T) {
	s := sessionReady(t, newMockPort(0))
	if err := s.Go(0x08000001); err == nil {
		t.Fatal("expected precondition error for misaligned go address")
	}
}
