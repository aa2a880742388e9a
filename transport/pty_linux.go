package transport

import (
	"fmt"
	"syscall"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
	"golang.org/x/sys/unix"
)

var (
	tiocsptlck  = ioctl.IOW('T', 0x31, unsafe.Sizeof(int32(0)))
	tiocgptpeer = ioctl.IO('T', 0x41)
)

// openPTYPair opens a fresh /dev/ptmx master and its slave peer, unlocked
// and ready for use. It exists for tests that need a real byte-pipe to
// drive the uartPort code path without real hardware attached.
func openPTYPair() (master, slave int, err error) {
	master, err = syscall.Open("/dev/ptmx", syscall.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("open ptmx: %w", err)
	}
	var locked int32
	if err := ioctl.Ioctl(uintptr(master), tiocsptlck, uintptr(unsafe.Pointer(&locked))); err != nil {
		syscall.Close(master)
		return 0, 0, fmt.Errorf("unlock pty: %w", err)
	}
	// TIOCGPTPEER returns the new fd as the syscall's own return value
	// rather than through an output pointer, so it bypasses the
	// error-only ioctl.Ioctl wrapper used everywhere else.
	r1, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(master), tiocgptpeer, uintptr(syscall.O_RDWR|syscall.O_NOCTTY))
	if errno != 0 {
		syscall.Close(master)
		return 0, 0, fmt.Errorf("get pty peer: %w", errno)
	}
	return master, int(r1), nil
}
