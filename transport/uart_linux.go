package transport

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/daedaluz/fdev/poll"
	ioctl "github.com/daedaluz/goioctl"
)

// uartPort implements Port over a raw termios serial device (AN3155).
type uartPort struct {
	fd          int
	closed      atomic.Bool
	readTimeout time.Duration
	cfg         string
}

// OpenUART opens a termios character device such as /dev/ttyUSB0. mode is
// a "8e1"-style string: data bits, parity (n/e/o), stop bits. readTimeout
// is the inter-character timeout the bootloader engine relies on to
// absorb mass-erase latency — spec.md requires >= 2s by default.
func OpenUART(device string, opts Options) (Port, error) {
	if !strings.HasPrefix(device, "/dev/tty") && !strings.HasPrefix(device, "/dev/serial") {
		return nil, ErrNoDevice
	}
	fd, err := syscall.Open(device, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NDELAY, 0)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	if err := syscall.SetNonblock(fd, false); err != nil {
		syscall.Close(fd)
		return nil, &Error{Op: "open", Err: err}
	}

	bits, parity, stop, err := parseMode(opts.Mode)
	if err != nil {
		syscall.Close(fd)
		return nil, err
	}
	baud, ok := baudFlag(opts.Baud)
	if !ok {
		syscall.Close(fd)
		return nil, fmt.Errorf("transport: unsupported baud rate %d", opts.Baud)
	}

	attrs := &Termios2{}
	if err := ioctl.Ioctl(uintptr(fd), tcgets2, uintptr(unsafe.Pointer(attrs))); err != nil {
		syscall.Close(fd)
		return nil, &Error{Op: "tcgets2", Err: err}
	}
	attrs.MakeRaw()
	attrs.SetSpeed(baud)
	attrs.Cflag &= ^(CSIZE)
	attrs.Cflag |= bits
	attrs.Cflag &= ^(PARENB | PARODD)
	attrs.Cflag |= parity
	if stop {
		attrs.Cflag |= CSTOPB
	} else {
		attrs.Cflag &= ^(CSTOPB)
	}
	attrs.Cflag |= CLOCAL | CREAD
	// VMIN=0, VTIME in deciseconds: block up to ~2s per read(2) so the
	// engine's own per-operation deadlines remain authoritative.
	attrs.Cc[6] = 0  // VMIN
	attrs.Cc[5] = 20 // VTIME (2.0s)

	if err := ioctl.Ioctl(uintptr(fd), tcsets2, uintptr(unsafe.Pointer(attrs))); err != nil {
		syscall.Close(fd)
		return nil, &Error{Op: "tcsets2", Err: err}
	}

	timeout := opts.ReadTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &uartPort{fd: fd, readTimeout: timeout, cfg: fmt.Sprintf("%s %d %s", device, opts.Baud, opts.Mode)}, nil
}

func parseMode(mode string) (bits CFlag, parity CFlag, twoStop bool, err error) {
	if mode == "" {
		mode = "8e1"
	}
	if len(mode) != 3 {
		return 0, 0, false, fmt.Errorf("transport: invalid serial mode %q", mode)
	}
	n, err := strconv.Atoi(mode[0:1])
	if err != nil {
		return 0, 0, false, fmt.Errorf("transport: invalid serial mode %q", mode)
	}
	switch n {
	case 5:
		bits = CS5
	case 6:
		bits = CS6
	case 7:
		bits = CS7
	case 8:
		bits = CS8
	default:
		return 0, 0, false, fmt.Errorf("transport: invalid data bits in mode %q", mode)
	}
	switch mode[1] {
	case 'n', 'N':
		parity = 0
	case 'e', 'E':
		parity = PARENB
	case 'o', 'O':
		parity = PARENB | PARODD
	default:
		return 0, 0, false, fmt.Errorf("transport: invalid parity in mode %q", mode)
	}
	switch mode[2] {
	case '1':
		twoStop = false
	case '2':
		twoStop = true
	default:
		return 0, 0, false, fmt.Errorf("transport: invalid stop bits in mode %q", mode)
	}
	return bits, parity, twoStop, nil
}

func (p *uartPort) readDeadline(buf []byte, deadline time.Duration) error {
	if p.closed.Load() {
		return ErrClosed
	}
	got := 0
	for got < len(buf) {
		if err := poll.WaitInput(p.fd, deadline); err != nil {
			return ErrTimeout
		}
		n, err := syscall.Read(p.fd, buf[got:])
		if err != nil {
			return &Error{Op: "read", Err: err}
		}
		if n == 0 {
			return ErrTimeout
		}
		got += n
	}
	return nil
}

func (p *uartPort) Read(buf []byte) error { return p.readDeadline(buf, p.readTimeout) }

func (p *uartPort) ReadDeadline(buf []byte, deadline time.Duration) error {
	return p.readDeadline(buf, deadline)
}

func (p *uartPort) Write(buf []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	written := 0
	for written < len(buf) {
		n, err := syscall.Write(p.fd, buf[written:])
		if err != nil {
			return &Error{Op: "write", Err: err}
		}
		written += n
	}
	return nil
}

func (p *uartPort) Flush() error {
	if p.closed.Load() {
		return ErrClosed
	}
	const tcioflush = 2
	return ioctl.Ioctl(uintptr(p.fd), tcflsh, uintptr(tcioflush))
}

func (p *uartPort) GPIO(line GPIOLine, level bool) error {
	if p.closed.Load() {
		return ErrClosed
	}
	switch line {
	case GPIORTS, GPIODTR:
		bits := uintptr(TIOCM_RTS)
		if line == GPIODTR {
			bits = TIOCM_DTR
		}
		op := tiocmbic
		if level {
			op = tiocmbis
		}
		return ioctl.Ioctl(uintptr(p.fd), op, uintptr(unsafe.Pointer(&bits)))
	case GPIOBreak:
		op := tioccbrk
		if level {
			op = tiocsbrk
		}
		return ioctl.Ioctl(uintptr(p.fd), op, 1)
	}
	return fmt.Errorf("transport: unknown gpio line %d", line)
}

func (p *uartPort) Capabilities() Capability {
	return ByteOriented | CmdInit | GVRExtended
}

func (p *uartPort) ConfigString() string { return p.cfg }

func (p *uartPort) Close() error {
	if p.closed.Swap(true) {
		return ErrClosed
	}
	return syscall.Close(p.fd)
}
