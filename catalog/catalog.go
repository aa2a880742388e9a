// Package catalog holds the static table of STM32 device descriptors
// keyed by the 12-bit product ID the bootloader's Get ID command
// returns, per AN2606.
package catalog

import "fmt"

// Device describes one STM32 family's memory map, as read off the
// silicon's own bootloader rather than guessed from a part number.
type Device struct {
	PID      uint16
	Name     string
	RAMStart uint32
	RAMEnd   uint32
	FlashStart uint32
	FlashEnd   uint32
	// PagesPerSector and PageSize describe flash erase granularity:
	// PagesPerSector pages must be erased together on parts whose
	// flash controller groups pages into sectors (0 means no grouping).
	PagesPerSector uint16
	PageSize       uint16
	OptStart       uint32
	OptEnd         uint32
	SystemStart    uint32
	SystemEnd      uint32
}

// FlashSize is the usable flash capacity in bytes.
func (d Device) FlashSize() uint32 { return d.FlashEnd - d.FlashStart }

// HasOptionBytes reports whether this part exposes an option-byte
// window through the bootloader (the two STM32W entries do not).
func (d Device) HasOptionBytes() bool { return d.OptStart != 0 || d.OptEnd != 0 }

// devices is the AN2606 table, plus two non-AN2606 STM32W entries the
// original project carries for wireless parts that speak the same
// bootloader protocol over a different radio SoC family.
var devices = []Device{
	{PID: 0x440, Name: "STM32F051xx", RAMStart: 0x20001000, RAMEnd: 0x20002000, FlashStart: 0x08000000, FlashEnd: 0x08010000, PagesPerSector: 4, PageSize: 1024, OptStart: 0x1FFFF800, OptEnd: 0x1FFFF80B, SystemStart: 0x1FFFEC00, SystemEnd: 0x1FFFF800},
	{PID: 0x444, Name: "STM32F030/F031", RAMStart: 0x20001000, RAMEnd: 0x20002000, FlashStart: 0x08000000, FlashEnd: 0x08010000, PagesPerSector: 4, PageSize: 1024, OptStart: 0x1FFFF800, OptEnd: 0x1FFFF80B, SystemStart: 0x1FFFEC00, SystemEnd: 0x1FFFF800},
	{PID: 0x448, Name: "STM32F072xx", RAMStart: 0x20001800, RAMEnd: 0x20004000, FlashStart: 0x08000000, FlashEnd: 0x08010000, PagesPerSector: 4, PageSize: 1024, OptStart: 0x1FFFF800, OptEnd: 0x1FFFF80B, SystemStart: 0x1FFFEC00, SystemEnd: 0x1FFFF800},

	{PID: 0x412, Name: "Low-density", RAMStart: 0x20000200, RAMEnd: 0x20002800, FlashStart: 0x08000000, FlashEnd: 0x08008000, PagesPerSector: 4, PageSize: 1024, OptStart: 0x1FFFF800, OptEnd: 0x1FFFF80F, SystemStart: 0x1FFFF000, SystemEnd: 0x1FFFF800},
	{PID: 0x410, Name: "Medium-density", RAMStart: 0x20000200, RAMEnd: 0x20005000, FlashStart: 0x08000000, FlashEnd: 0x08020000, PagesPerSector: 4, PageSize: 1024, OptStart: 0x1FFFF800, OptEnd: 0x1FFFF80F, SystemStart: 0x1FFFF000, SystemEnd: 0x1FFFF800},
	{PID: 0x414, Name: "High-density", RAMStart: 0x20000200, RAMEnd: 0x20010000, FlashStart: 0x08000000, FlashEnd: 0x08080000, PagesPerSector: 2, PageSize: 2048, OptStart: 0x1FFFF800, OptEnd: 0x1FFFF80F, SystemStart: 0x1FFFF000, SystemEnd: 0x1FFFF800},
	{PID: 0x420, Name: "Medium-density VL", RAMStart: 0x20000200, RAMEnd: 0x20002000, FlashStart: 0x08000000, FlashEnd: 0x08020000, PagesPerSector: 4, PageSize: 1024, OptStart: 0x1FFFF800, OptEnd: 0x1FFFF80F, SystemStart: 0x1FFFF000, SystemEnd: 0x1FFFF800},
	{PID: 0x428, Name: "High-density VL", RAMStart: 0x20000200, RAMEnd: 0x20008000, FlashStart: 0x08000000, FlashEnd: 0x08080000, PagesPerSector: 2, PageSize: 2048, OptStart: 0x1FFFF800, OptEnd: 0x1FFFF80F, SystemStart: 0x1FFFF000, SystemEnd: 0x1FFFF800},
	{PID: 0x418, Name: "Connectivity line", RAMStart: 0x20001000, RAMEnd: 0x20010000, FlashStart: 0x08000000, FlashEnd: 0x08040000, PagesPerSector: 2, PageSize: 2048, OptStart: 0x1FFFF800, OptEnd: 0x1FFFF80F, SystemStart: 0x1FFFB000, SystemEnd: 0x1FFFF800},
	{PID: 0x430, Name: "XL-density", RAMStart: 0x20000800, RAMEnd: 0x20018000, FlashStart: 0x08000000, FlashEnd: 0x08100000, PagesPerSector: 2, PageSize: 2048, OptStart: 0x1FFFF800, OptEnd: 0x1FFFF80F, SystemStart: 0x1FFFE000, SystemEnd: 0x1FFFF800},

	{PID: 0x411, Name: "STM32F2xx", RAMStart: 0x20002000, RAMEnd: 0x20020000, FlashStart: 0x08000000, FlashEnd: 0x08100000, PagesPerSector: 4, PageSize: 16384, OptStart: 0x1FFFC000, OptEnd: 0x1FFFC00F, SystemStart: 0x1FFF0000, SystemEnd: 0x1FFF77DF},

	{PID: 0x432, Name: "STM32F373/8", RAMStart: 0x20001400, RAMEnd: 0x20008000, FlashStart: 0x08000000, FlashEnd: 0x08040000, PagesPerSector: 2, PageSize: 2048, OptStart: 0x1FFFF800, OptEnd: 0x1FFFF80F, SystemStart: 0x1FFFD800, SystemEnd: 0x1FFFF800},
	{PID: 0x422, Name: "F302xB/303xB/358", RAMStart: 0x20001400, RAMEnd: 0x20010000, FlashStart: 0x08000000, FlashEnd: 0x08040000, PagesPerSector: 2, PageSize: 2048, OptStart: 0x1FFFF800, OptEnd: 0x1FFFF80F, SystemStart: 0x1FFFD800, SystemEnd: 0x1FFFF800},
	{PID: 0x439, Name: "STM32F302", RAMStart: 0x20001800, RAMEnd: 0x20004000, FlashStart: 0x08000000, FlashEnd: 0x08040000, PagesPerSector: 2, PageSize: 2048, OptStart: 0x1FFFF800, OptEnd: 0x1FFFF80F, SystemStart: 0x1FFFD800, SystemEnd: 0x1FFFF800},
	{PID: 0x438, Name: "F303x4/334/328", RAMStart: 0x20001800, RAMEnd: 0x20003000, FlashStart: 0x08000000, FlashEnd: 0x08040000, PagesPerSector: 2, PageSize: 2048, OptStart: 0x1FFFF800, OptEnd: 0x1FFFF80F, SystemStart: 0x1FFFD800, SystemEnd: 0x1FFFF800},

	{PID: 0x413, Name: "STM32F40/1", RAMStart: 0x20002000, RAMEnd: 0x20020000, FlashStart: 0x08000000, FlashEnd: 0x08100000, PagesPerSector: 4, PageSize: 16384, OptStart: 0x1FFFC000, OptEnd: 0x1FFFC00F, SystemStart: 0x1FFF0000, SystemEnd: 0x1FFF77DF},

	{PID: 0x419, Name: "STM32F427/37", RAMStart: 0x20002000, RAMEnd: 0x20030000, FlashStart: 0x08000000, FlashEnd: 0x08100000, PagesPerSector: 4, PageSize: 16384, OptStart: 0x1FFFC000, OptEnd: 0x1FFFC00F, SystemStart: 0x1FFF0000, SystemEnd: 0x1FFF77FF},
	{PID: 0x423, Name: "STM32F401xB(C)", RAMStart: 0x20003000, RAMEnd: 0x20010000, FlashStart: 0x08000000, FlashEnd: 0x08100000, PagesPerSector: 4, PageSize: 16384, OptStart: 0x1FFFC000, OptEnd: 0x1FFFC00F, SystemStart: 0x1FFF0000, SystemEnd: 0x1FFF77FF},
	{PID: 0x433, Name: "STM32F401xD(E)", RAMStart: 0x20003000, RAMEnd: 0x20018000, FlashStart: 0x08000000, FlashEnd: 0x08100000, PagesPerSector: 4, PageSize: 16384, OptStart: 0x1FFFC000, OptEnd: 0x1FFFC00F, SystemStart: 0x1FFF0000, SystemEnd: 0x1FFF77FF},

	{PID: 0x417, Name: "L05xxx/06xxx", RAMStart: 0x20001000, RAMEnd: 0x20002000, FlashStart: 0x08000000, FlashEnd: 0x08020000, PagesPerSector: 16, PageSize: 256, OptStart: 0x1FF80000, OptEnd: 0x1FF8000F, SystemStart: 0x1FF00000, SystemEnd: 0x1FF01000},

	// PID 0x416 takes the mass-erase 0xF8-pages quirk: its extended
	// erase command rejects the special all-pages value 0xFFFF.
	{PID: 0x416, Name: "L1xxx6(8/B)", RAMStart: 0x20000800, RAMEnd: 0x20004000, FlashStart: 0x08000000, FlashEnd: 0x08020000, PagesPerSector: 16, PageSize: 256, OptStart: 0x1FF80000, OptEnd: 0x1FF8000F, SystemStart: 0x1FF00000, SystemEnd: 0x1FF01000},
	{PID: 0x429, Name: "L1xxx6(8/B)A", RAMStart: 0x20001000, RAMEnd: 0x20008000, FlashStart: 0x08000000, FlashEnd: 0x08020000, PagesPerSector: 16, PageSize: 256, OptStart: 0x1FF80000, OptEnd: 0x1FF8000F, SystemStart: 0x1FF00000, SystemEnd: 0x1FF01000},
	{PID: 0x427, Name: "L1xxxC", RAMStart: 0x20001000, RAMEnd: 0x20008000, FlashStart: 0x08000000, FlashEnd: 0x08020000, PagesPerSector: 16, PageSize: 256, OptStart: 0x1FF80000, OptEnd: 0x1FF8000F, SystemStart: 0x1FF00000, SystemEnd: 0x1FF02000},
	{PID: 0x436, Name: "L1xxxD", RAMStart: 0x20001000, RAMEnd: 0x2000C000, FlashStart: 0x08000000, FlashEnd: 0x08060000, PagesPerSector: 16, PageSize: 256, OptStart: 0x1FF80000, OptEnd: 0x1FF8000F, SystemStart: 0x1FF00000, SystemEnd: 0x1FF02000},
	{PID: 0x437, Name: "L1xxxE", RAMStart: 0x20001000, RAMEnd: 0x20014000, FlashStart: 0x08000000, FlashEnd: 0x08060000, PagesPerSector: 16, PageSize: 256, OptStart: 0x1FF80000, OptEnd: 0x1FF8000F, SystemStart: 0x1FF00000, SystemEnd: 0x1FF02000},

	{PID: 0x641, Name: "Medium_Density PL", RAMStart: 0x20000200, RAMEnd: 0x00005000, FlashStart: 0x08000000, FlashEnd: 0x08020000, PagesPerSector: 4, PageSize: 1024, OptStart: 0x1FFFF800, OptEnd: 0x1FFFF80F, SystemStart: 0x1FFFF000, SystemEnd: 0x1FFFF800},
	{PID: 0x9a8, Name: "STM32W-128K", RAMStart: 0x20000200, RAMEnd: 0x20002000, FlashStart: 0x08000000, FlashEnd: 0x08020000, PagesPerSector: 1, PageSize: 1024},
	{PID: 0x9b0, Name: "STM32W-256K", RAMStart: 0x20000200, RAMEnd: 0x20004000, FlashStart: 0x08000000, FlashEnd: 0x08040000, PagesPerSector: 1, PageSize: 2048},
}

var byPID = func() map[uint16]Device {
	m := make(map[uint16]Device, len(devices))
	for _, d := range devices {
		m[d.PID] = d
	}
	return m
}()

// ErrUnsupportedDevice is returned by Lookup for a PID the catalog
// doesn't recognize.
type ErrUnsupportedDevice struct{ PID uint16 }

func (e *ErrUnsupportedDevice) Error() string {
	return fmt.Sprintf("catalog: unsupported device, PID 0x%03x", e.PID)
}

// Lookup resolves a 12-bit product ID, as returned by the bootloader's
// Get ID command, to its memory-map descriptor.
func Lookup(pid uint16) (Device, error) {
	d, ok := byPID[pid]
	if !ok {
		return Device{}, &ErrUnsupportedDevice{PID: pid}
	}
	return d, nil
}

// NeedsMassEraseDowngrade reports whether the extended-erase command
// must replace the 0xFFFF mass-erase marker with an explicit 0xF8-page
// erase for this part (PID 0x416 only, per the original project).
func NeedsMassEraseDowngrade(pid uint16) bool { return pid == 0x416 }
