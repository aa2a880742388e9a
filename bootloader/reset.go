package bootloader

// resetStub is a 16-byte ARMv6-M/ARMv7-M Thumb payload that writes
// SYSRESETREQ to AIRCR, then spins. It is uploaded to RAM and jumped to
// via Go when no GPIO reset line is available.
var resetStub = []byte{
	0x01, 0x49, // ldr r1, [pc, #4]  ; AIRCR address
	0x02, 0x4A, // ldr r2, [pc, #8]  ; AIRCR reset value
	0x0A, 0x60, // str r2, [r1, #0]
	0xFE, 0xE7, // endless: b endless
	0x0C, 0xED, 0x00, 0xE0, // .word 0xE000ED0C (NVIC AIRCR)
	0x04, 0x00, 0xFA, 0x05, // .word 0x05FA0004 (VECTKEY | SYSRESETREQ)
}

// buildRunImage prepends the two words a Cortex-M expects at the base
// of a code region it's about to be vectored into: an initial stack
// pointer (word 0) and the code's entry address (word 1 — the "entry+1"
// spec §4.4.11/scenario 6 refer to is this second word of the prefix
// pair, not "address plus one"). The entry word is loadAddr+8, skipping
// the 8-byte prefix this function itself prepends, matching stm32.c's
// stm32_run_raw_code (target_address + 8) exactly.
func buildRunImage(loadAddr uint32, code []byte) []byte {
	img := make([]byte, 8+len(code))
	putLE32(img[0:4], 0x20002000)
	putLE32(img[4:8], loadAddr+8)
	copy(img[8:], code)
	return img
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
