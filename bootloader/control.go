package bootloader

import "fmt"

// Go jumps to user code at addr. Per §4.4.9, every later call on this
// session is undefined once the target starts executing.
func (s *Session) Go(addr uint32) error {
	const op = "go"
	if s.Cmd.Go == CmdErr {
		return newErr(KindCapabilityMissing, op, fmt.Errorf("go not supported by this bootloader"))
	}
	if addr%4 != 0 {
		return newErr(KindPrecondition, op, fmt.Errorf("address 0x%08x not 4-byte aligned", addr))
	}
	if err := s.sendCommand(op, s.Cmd.Go); err != nil {
		return err
	}
	if err := s.sendAddress(op, addr); err != nil {
		return err
	}
	s.state = StateRunning
	return nil
}

// RunRawCode uploads code to target (32-bit aligned) in <=256-byte
// chunks via WriteMemory, then jumps to it with Go.
func (s *Session) RunRawCode(target uint32, code []byte) error {
	addr := target
	remaining := code
	for len(remaining) > 0 {
		chunk := remaining
		if len(chunk) > 256 {
			chunk = chunk[:256]
		}
		if err := s.WriteMemory(addr, chunk); err != nil {
			return err
		}
		addr += uint32(len(chunk))
		remaining = remaining[len(chunk):]
	}
	return s.Go(target)
}

// ResetViaRAMStub implements §4.4.11: when the bootloader has no reset
// opcode, upload a tiny Thumb payload that writes SYSRESETREQ to AIRCR
// and jump to it.
func (s *Session) ResetViaRAMStub() error {
	image := buildRunImage(s.Device.RAMStart, resetStub)
	return s.RunRawCode(s.Device.RAMStart, image)
}

// VerifyCRC computes the software CRC-32 fallback (§4.4.10) over
// length bytes read back from addr in <=256-byte chunks, for
// bootloaders whose cmd table has no dedicated CRC opcode (this
// engine never negotiates one — AN3154 bootloaders that expose it are
// rare enough that every session here uses the fallback uniformly).
func (s *Session) VerifyCRC(addr uint32, length uint32) (uint32, error) {
	data := make([]byte, 0, length)
	remaining := length
	cur := addr
	for remaining > 0 {
		n := remaining
		if n > 256 {
			n = 256
		}
		chunk := make([]byte, n)
		if err := s.ReadMemory(cur, chunk); err != nil {
			return 0, err
		}
		data = append(data, chunk...)
		cur += n
		remaining -= n
	}
	return softwareCRC32(padToWord(data)), nil
}
