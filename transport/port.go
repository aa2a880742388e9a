// Package transport abstracts the byte-pipe between the host and an STM32
// bootloader: one UART, one I2C bus, or one SPI device. The bootloader
// engine never touches syscalls directly — it only sees this interface.
package transport

import (
	"errors"
	"fmt"
	"time"
)

// Capability describes a framing or timing quirk of a transport that the
// bootloader engine must account for. Capabilities are OR'd together on
// Port.Capabilities().
type Capability uint

const (
	// ByteOriented transports may return short reads (UART): a
	// length-prefixed reply can safely be read one byte at a time.
	ByteOriented Capability = 1 << iota
	// CmdInit transports require the single-byte 0x7F auto-baud probe.
	CmdInit
	// CmdSOF transports prepend a start-of-frame byte to every command.
	CmdSOF
	// GVRExtended transports reply to GVR with 3 bytes instead of 1.
	GVRExtended
	// Retry transports may answer an ACK read with BUSY and must be polled.
	Retry
	// SPIInit transports need a clock-priming workaround before the first
	// valid ACK/NACK is observed.
	SPIInit
)

func (c Capability) Has(f Capability) bool { return c&f != 0 }

// GPIOLine identifies a modem-control signal a Port may be able to drive.
type GPIOLine int

const (
	GPIORTS GPIOLine = iota
	GPIODTR
	GPIOBreak
)

// Error classifies a transport-layer failure the way the bootloader engine
// needs to distinguish: a plain system error is always retryable at a
// higher layer, a timeout usually isn't within the same deadline.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	// ErrNoDevice is returned by Open when the device string does not
	// belong to this transport's namespace, so the caller can try another.
	ErrNoDevice = errors.New("transport: device not recognized")
	// ErrTimeout is returned when a read does not complete within its
	// deadline.
	ErrTimeout = errors.New("transport: timeout")
	// ErrClosed is returned by any operation on a closed Port.
	ErrClosed = errors.New("transport: port already closed")
)

// Port is one open byte-pipe to a target running the ST bootloader.
type Port interface {
	// Read moves exactly len(buf) bytes into buf, blocking up to the
	// port's configured timeout, or fails with ErrTimeout / *Error.
	Read(buf []byte) error
	// ReadDeadline is like Read but overrides the port's default timeout
	// for this call only (used for block-write / erase timeouts).
	ReadDeadline(buf []byte, deadline time.Duration) error
	// Write moves exactly len(buf) bytes out, or fails with *Error.
	Write(buf []byte) error
	// Flush discards any pending input.
	Flush() error
	// GPIO drives a modem-control line or issues a BREAK. Ports that
	// cannot drive a line (SPI) return nil — a no-op success.
	GPIO(line GPIOLine, level bool) error
	// Capabilities reports this port's framing/timing quirks.
	Capabilities() Capability
	// ConfigString is a human description used in diagnostics.
	ConfigString() string
	// Close releases the underlying file descriptor.
	Close() error
}

// Opener matches the constructor signature every concrete transport
// exposes: Open(device string, opts Options) (Port, error).
type Opener func(device string, opts Options) (Port, error)

// Options carries the handful of knobs a Port needs at open time. Not
// every field applies to every transport; irrelevant fields are ignored.
type Options struct {
	Baud        int           // UART/SPI: bps / clock Hz
	Mode        string        // UART only, e.g. "8e1"
	ReadTimeout time.Duration // inter-byte/inter-character timeout
	NoStretch   bool          // I2C only: target uses BUSY polling, not clock stretch
	I2CAddress  uint16        // I2C only: 7-bit target address, default 0x76
}

func DefaultOptions() Options {
	return Options{
		Baud:        115200,
		Mode:        "8e1",
		ReadTimeout: 2 * time.Second,
		I2CAddress:  0x76,
	}
}

// Open tries each transport's opener in turn and returns the first one
// that recognizes the device string. Order matters only in that it
// determines which ErrNoDevice races are hidden; callers that already
// know the transport should call its Open function directly instead.
func Open(device string, opts Options, openers ...Opener) (Port, error) {
	for _, open := range openers {
		p, err := open(device, opts)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNoDevice) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("transport: no driver recognizes %q", device)
}
