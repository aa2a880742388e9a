package firmware

import (
	"bufio"
	"fmt"
	"io"

	"github.com/marcinbor85/gohex"
)

// HexParser reads and writes Intel HEX. Reading honors only type-0
// (data) records — type 0x02/0x04 segment/extended-address records
// are not interpreted, matching a limitation carried forward from the
// reference implementation this tool's wire protocol was modeled on:
// firmware that relies on a segment switch mid-file will be mis-placed
// in the resulting byte stream. This is intentional, not an oversight;
// fixing it is out of scope here.
type HexParser struct {
	data    []byte
	base    uint32
	baseSet bool
}

func NewHex() *HexParser { return &HexParser{} }

func (h *HexParser) Load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if line[0] != ':' {
			return fmt.Errorf("firmware: invalid hex line %q", line)
		}
		body := line[1:]
		if len(body) < 8 {
			return fmt.Errorf("firmware: truncated hex record %q", line)
		}
		var reclen, address, rtype int
		if _, err := fmt.Sscanf(body[0:8], "%02x%04x%02x", &reclen, &address, &rtype); err != nil {
			return fmt.Errorf("firmware: malformed hex header %q: %w", line, err)
		}
		dataHex := body[8 : 8+reclen*2]
		checksumHex := body[8+reclen*2 : 8+reclen*2+2]

		sum := byte(reclen) + byte(address>>8) + byte(address) + byte(rtype)
		record := make([]byte, reclen)
		for i := 0; i < reclen; i++ {
			var b int
			if _, err := fmt.Sscanf(dataHex[i*2:i*2+2], "%02x", &b); err != nil {
				return fmt.Errorf("firmware: malformed hex data %q: %w", line, err)
			}
			record[i] = byte(b)
			sum += byte(b)
		}
		var checksum int
		if _, err := fmt.Sscanf(checksumHex, "%02x", &checksum); err != nil {
			return fmt.Errorf("firmware: malformed hex checksum %q: %w", line, err)
		}
		if byte(checksum) != byte(-sum) {
			return fmt.Errorf("firmware: checksum mismatch in %q", line)
		}

		if rtype != 0x00 {
			// Only data records are honored; segment/extended-address
			// and end-of-file records are silently skipped.
			continue
		}
		if !h.baseSet {
			h.base = uint32(address)
			h.baseSet = true
		}
		h.data = append(h.data, record...)
	}
	return scanner.Err()
}

func (h *HexParser) Data() []byte { return h.data }

func (h *HexParser) Store(addr uint32, data []byte) {
	if !h.baseSet {
		h.base = addr
		h.baseSet = true
	}
	h.data = append(h.data, data...)
}

func (h *HexParser) BaseAddress() uint32 { return h.base }

// Save writes the accumulated data out as Intel HEX via gohex, so the
// well-tested encoder (not this package's deliberately-limited reader)
// owns the on-disk format of anything this tool produces.
func (h *HexParser) Save(w io.Writer) error {
	mem := gohex.NewMemory()
	if err := mem.AddBinary(h.base, h.data); err != nil {
		return fmt.Errorf("firmware: building hex image: %w", err)
	}
	return mem.DumpIntelHex(w, 16)
}
