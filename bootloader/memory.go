package bootloader

import (
	"fmt"
	"time"

	"github.com/daedaluz/stm32prog/codec"
	"github.com/daedaluz/stm32prog/transport"
)

func (s *Session) sendAddress(op string, addr uint32) error {
	a := codec.EncodeAddress(addr)
	if err := s.port.Write(a[:]); err != nil {
		return s.fail(newErr(KindTransport, op, err))
	}
	return s.expectACK(op)
}

// ReadMemory reads len(out) bytes (1..256) from addr (32-bit aligned)
// into out, per §4.4.5.
func (s *Session) ReadMemory(addr uint32, out []byte) error {
	const op = "read-memory"
	if len(out) == 0 || len(out) > 256 {
		return newErr(KindPrecondition, op, fmt.Errorf("length %d out of range [1,256]", len(out)))
	}
	if addr%4 != 0 {
		return newErr(KindPrecondition, op, fmt.Errorf("address 0x%08x not 4-byte aligned", addr))
	}
	if s.Cmd.RM == CmdErr {
		return newErr(KindCapabilityMissing, op, fmt.Errorf("read memory not supported by this bootloader"))
	}
	if err := s.sendCommand(op, s.Cmd.RM); err != nil {
		return err
	}
	if err := s.sendAddress(op, addr); err != nil {
		return err
	}
	lenByte := byte(len(out) - 1)
	if err := s.sendCommand(op, lenByte); err != nil {
		return err
	}
	if err := s.port.Read(out); err != nil {
		return s.fail(newErr(KindTransport, op, err))
	}
	return nil
}

// WriteMemory writes data (1..256 bytes) to addr (32-bit aligned), per
// §4.4.6. The payload is padded to a 4-byte boundary with 0xFF before
// the trailing checksum is computed, and the ACK wait uses the
// block-write timeout to absorb flash-page program latency.
func (s *Session) WriteMemory(addr uint32, data []byte) error {
	const op = "write-memory"
	if len(data) == 0 || len(data) > 256 {
		return newErr(KindPrecondition, op, fmt.Errorf("length %d out of range [1,256]", len(data)))
	}
	if addr%4 != 0 {
		return newErr(KindPrecondition, op, fmt.Errorf("address 0x%08x not 4-byte aligned", addr))
	}
	if s.Cmd.WM == CmdErr {
		return newErr(KindCapabilityMissing, op, fmt.Errorf("write memory not supported by this bootloader"))
	}
	if err := s.sendCommand(op, s.Cmd.WM); err != nil {
		return err
	}
	if err := s.sendAddress(op, addr); err != nil {
		return err
	}

	aligned := (len(data) + 3) &^ 3
	padded := make([]byte, aligned)
	copy(padded, data)
	for i := len(data); i < aligned; i++ {
		padded[i] = 0xFF
	}
	buf, err := codec.EncodeLengthPayload(padded)
	if err != nil {
		return newErr(KindPrecondition, op, err)
	}
	if err := s.port.Write(buf); err != nil {
		return s.fail(newErr(KindTransport, op, err))
	}
	return s.expectACKDeadline(op, blockWriteTimeout)
}

// expectACKDeadline is expectACK with an explicit per-call deadline
// instead of the default resync budget, used by operations whose ACK
// may legitimately take longer (block write, erase).
func (s *Session) expectACKDeadline(op string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var b [1]byte
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return s.fail(newErr(KindTransport, op, fmt.Errorf("timed out waiting for ACK")))
		}
		if err := s.port.ReadDeadline(b[:], remaining); err != nil {
			return s.fail(newErr(KindTransport, op, err))
		}
		switch b[0] {
		case ack:
			return nil
		case nack:
			return newErr(KindDenied, op, nil)
		case busy:
			if !s.caps.Has(transport.Retry) {
				return s.fail(newErr(KindFraming, op, fmt.Errorf("unexpected BUSY")))
			}
			continue
		default:
			return s.fail(newErr(KindFraming, op, fmt.Errorf("unexpected reply byte 0x%02x", b[0])))
		}
	}
}
