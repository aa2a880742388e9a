package transport

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/host/v3/sysfs"
)

// i2cPort implements Port over a Linux I2C bus, per AN4221. Reads and
// writes are modeled as single i2c.Bus.Tx calls the way
// periph.io-based drivers in the pack address their peripherals.
type i2cPort struct {
	bus       *sysfs.I2C
	addr      uint16
	closed    atomic.Bool
	noStretch bool
	cfg       string
}

// OpenI2C opens /dev/i2c-N (N parsed from the device string's trailing
// digits) and addresses the target at opts.I2CAddress.
func OpenI2C(device string, opts Options) (Port, error) {
	if !strings.HasPrefix(device, "/dev/i2c-") {
		return nil, ErrNoDevice
	}
	busNum, err := strconv.Atoi(strings.TrimPrefix(device, "/dev/i2c-"))
	if err != nil {
		return nil, ErrNoDevice
	}
	bus, err := sysfs.NewI2C(busNum)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	addr := opts.I2CAddress
	if addr == 0 {
		addr = 0x76
	}
	return &i2cPort{bus: bus, addr: addr, noStretch: opts.NoStretch, cfg: fmt.Sprintf("%s@0x%02x", device, addr)}, nil
}

func (p *i2cPort) Read(buf []byte) error { return p.ReadDeadline(buf, 2*time.Second) }

func (p *i2cPort) ReadDeadline(buf []byte, deadline time.Duration) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := p.bus.Tx(p.addr, nil, buf); err != nil {
		return &Error{Op: "i2c read", Err: err}
	}
	return nil
}

func (p *i2cPort) Write(buf []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := p.bus.Tx(p.addr, buf, nil); err != nil {
		return &Error{Op: "i2c write", Err: err}
	}
	return nil
}

func (p *i2cPort) Flush() error { return nil }

func (p *i2cPort) GPIO(line GPIOLine, level bool) error { return nil }

func (p *i2cPort) Capabilities() Capability {
	c := Capability(0)
	if p.noStretch {
		c |= Retry
	}
	return c
}

func (p *i2cPort) ConfigString() string { return p.cfg }

func (p *i2cPort) Close() error {
	if p.closed.Swap(true) {
		return ErrClosed
	}
	return p.bus.Close()
}

var _ i2c.Bus = (*sysfs.I2C)(nil)
