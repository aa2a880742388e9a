package bootloader

import (
	"time"

	"github.com/daedaluz/stm32prog/transport"
)

// mockPort is a scripted in-memory transport.Port: reads are served
// from a pre-loaded byte queue, writes are recorded for assertions.
// Modeled after the scripted-tape style the pack's own VM tests use to
// drive a state machine through a fixed sequence of inputs.
type mockPort struct {
	toRead  []byte
	written [][]byte
	caps    transport.Capability
}

func newMockPort(caps transport.Capability, reply ...byte) *mockPort {
	return &mockPort{toRead: reply, caps: caps}
}

func (m *mockPort) queue(b ...byte) { m.toRead = append(m.toRead, b...) }

func (m *mockPort) Read(buf []byte) error {
	return m.ReadDeadline(buf, time.Second)
}

func (m *mockPort) ReadDeadline(buf []byte, _ time.Duration) error {
	if len(m.toRead) < len(buf) {
		return transport.ErrTimeout
	}
	copy(buf, m.toRead[:len(buf)])
	m.toRead = m.toRead[len(buf):]
	return nil
}

func (m *mockPort) Write(buf []byte) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	m.written = append(m.written, cp)
	return nil
}

func (m *mockPort) Flush() error                                { return nil }
func (m *mockPort) GPIO(transport.GPIOLine, bool) error         { return nil }
func (m *mockPort) Capabilities() transport.Capability          { return m.caps }
func (m *mockPort) ConfigString() string                        { return "mock" }
func (m *mockPort) Close() error                                { return nil }
