package bootloader

import (
	"fmt"

	"github.com/daedaluz/stm32prog/catalog"
)

// MassErase is the variant-independent "erase the whole chip" request.
// Callers (program.eraseSpan in particular) should pass this instead of
// guessing a wire-level sentinel, since the actual marker differs by
// erase variant: 0xFF for classic (0x43), 0xFFFF for extended
// (0x44/0x45), per stm32.c's stm32_erase_memory dispatch.
const MassErase uint32 = 0xFFFFFFFF

// Erase erases spage..spage+npages-1, or the whole chip when npages is
// MassErase, per §4.4.7. The mass-erase request is translated to the
// wire-level marker appropriate for this session's erase variant
// before anything is sent, so a generic mass-erase request never
// depends on the caller knowing whether the device uses classic or
// extended erase.
func (s *Session) Erase(spage uint16, npages uint32) error {
	const op = "erase"
	if npages == 0 {
		return nil
	}
	if s.Cmd.ER == CmdErr {
		return newErr(KindCapabilityMissing, op, fmt.Errorf("erase not supported by this bootloader"))
	}
	extended := s.Cmd.extendedErase()
	if npages == MassErase {
		if extended {
			npages = 0xFFFF
		} else {
			npages = 0xFF
		}
	}
	if !extended && npages > 0xFF {
		return newErr(KindPrecondition, op, fmt.Errorf("classic erase supports at most 255 pages, got %d", npages))
	}

	if err := s.sendCommand(op, s.Cmd.ER); err != nil {
		return err
	}
	if extended {
		return s.eraseExtended(spage, npages)
	}
	return s.eraseClassic(spage, uint8(npages))
}

func (s *Session) eraseClassic(spage uint16, npages uint8) error {
	const op = "erase"
	if npages == 0xFF {
		if err := s.port.Write([]byte{0xFF}); err != nil {
			return s.fail(newErr(KindTransport, op, err))
		}
		return s.expectACKDeadline(op, massEraseTimeout)
	}
	buf := make([]byte, 0, 1+int(npages)+1)
	buf = append(buf, npages-1)
	cs := npages - 1
	for pg := spage; pg < spage+uint16(npages); pg++ {
		b := byte(pg)
		buf = append(buf, b)
		cs ^= b
	}
	buf = append(buf, cs)
	if err := s.port.Write(buf); err != nil {
		return s.fail(newErr(KindTransport, op, err))
	}
	return s.expectACKDeadline(op, sectorEraseTimeout)
}

// eraseExtended implements the two-byte page-number wire format,
// including the PID 0x416 quirk that silently downgrades a mass-erase
// request to an explicit 0xF8-page erase because that part's extended
// erase opcode doesn't support the 0xFFFF mass-erase marker.
func (s *Session) eraseExtended(spage uint16, npages uint32) error {
	const op = "erase"
	if npages == 0xFFFF && catalog.NeedsMassEraseDowngrade(s.PID) {
		npages = 0xF8
	}
	if npages == 0xFFFF {
		buf := []byte{0xFF, 0xFF, 0x00}
		if err := s.port.Write(buf); err != nil {
			return s.fail(newErr(KindTransport, op, err))
		}
		return s.expectACKDeadline(op, massEraseTimeout)
	}
	if npages > 0xFFF4 {
		return newErr(KindPrecondition, op, fmt.Errorf("extended erase supports at most 0xFFF4 pages, got %d", npages))
	}
	buf := make([]byte, 0, 2+int(npages)*2+1)
	n := uint16(npages - 1)
	buf = append(buf, byte(n>>8), byte(n))
	cs := byte(n>>8) ^ byte(n)
	for pg := uint32(spage); pg < uint32(spage)+npages; pg++ {
		hi, lo := byte(pg>>8), byte(pg)
		buf = append(buf, hi, lo)
		cs ^= hi ^ lo
	}
	buf = append(buf, cs)
	if err := s.port.Write(buf); err != nil {
		return s.fail(newErr(KindTransport, op, err))
	}
	return s.expectACKDeadline(op, massEraseTimeout)
}
