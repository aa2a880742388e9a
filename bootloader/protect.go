package bootloader

import "fmt"

// WriteUnprotect clears flash write protection. The target self-resets
// afterward; callers must not issue a reset-exit sequence of their own.
func (s *Session) WriteUnprotect() error {
	return s.protectOp("write-unprotect", s.Cmd.UW, 0x8C)
}

// ReadUnprotect clears flash readout protection (mass-erases the chip
// as a side effect on most parts). The target self-resets afterward.
func (s *Session) ReadUnprotect() error {
	return s.protectOp("read-unprotect", s.Cmd.UR, 0x6D)
}

// ReadProtect enables flash readout protection. The target self-resets
// afterward.
func (s *Session) ReadProtect() error {
	return s.protectOp("read-protect", s.Cmd.RP, 0x7D)
}

func (s *Session) protectOp(op string, opcode, magic byte) error {
	if opcode == CmdErr {
		return newErr(KindCapabilityMissing, op, fmt.Errorf("%s not supported by this bootloader", op))
	}
	if err := s.sendCommand(op, opcode); err != nil {
		return err
	}
	return s.sendCommand(op, magic)
}
