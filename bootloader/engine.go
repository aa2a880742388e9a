// Package bootloader implements the ST factory bootloader's
// request/response state machine: handshake, capability discovery,
// memory read/write, erase, protect toggles, GO, and the RAM-stub
// reset — on top of any transport.Port.
package bootloader

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/daedaluz/stm32prog/catalog"
	"github.com/daedaluz/stm32prog/codec"
	"github.com/daedaluz/stm32prog/transport"
)

const (
	ack  = 0x79
	nack = 0x1F
	busy = 0x76

	resyncTimeout     = 10 * time.Second
	blockWriteTimeout = 1 * time.Second
	sectorEraseTimeout = 5 * time.Second
	massEraseTimeout  = 10 * time.Second
)

// State is the engine's position in the per-session state machine
// described by the protocol's handshake/operation/terminal phases.
type State int

const (
	StateNew State = iota
	StateInit
	StateReady
	StateRunning
	StateFail
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInit:
		return "init"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Session is one negotiated bootloader connection: transport, the
// opcode table GET returned, and the identity GVR/GID established.
type Session struct {
	port  transport.Port
	caps  transport.Capability
	log   *logrus.Entry
	state State

	Cmd      CmdTable
	BLVer    byte
	Version  byte
	Option1  byte
	Option2  byte
	PID      uint16
	Device   catalog.Device
}

// New wraps an already-open transport.Port. Call Init to run the
// handshake before issuing any other operation.
func New(port transport.Port, log *logrus.Logger) *Session {
	if log == nil {
		log = logrus.New()
	}
	return &Session{
		port:  port,
		caps:  port.Capabilities(),
		log:   log.WithField("component", "bootloader"),
		state: StateNew,
		Cmd:   newCmdTable(),
	}
}

// State reports the session's current state-machine position.
func (s *Session) State() State { return s.state }

// Port returns the underlying transport, so callers can run GPIO
// sequences against the same port the session negotiated on.
func (s *Session) Port() transport.Port { return s.port }

// Close releases the underlying transport.
func (s *Session) Close() error { return s.port.Close() }

func (s *Session) fail(err error) error {
	s.state = StateFail
	return err
}

// sendCommand writes a framed command and expects a plain ACK.
func (s *Session) sendCommand(op string, opcode byte) error {
	buf := codec.FrameCommand(s.caps, opcode)
	if err := s.port.Write(buf); err != nil {
		return s.fail(newErr(KindTransport, op, err))
	}
	return s.expectACK(op)
}

// expectACK reads one status byte, busy-polling when the transport
// requires it, and returns KindDenied on NACK, KindFraming on anything
// else unrecognized.
func (s *Session) expectACK(op string) error {
	deadline := time.Now().Add(resyncTimeout)
	for {
		var b [1]byte
		if err := s.port.Read(b[:]); err != nil {
			return s.fail(newErr(KindTransport, op, err))
		}
		switch b[0] {
		case ack:
			return nil
		case nack:
			s.log.WithField("op", op).Warn("device NACKed command")
			return newErr(KindDenied, op, nil)
		case busy:
			if !s.caps.Has(transport.Retry) || time.Now().After(deadline) {
				return s.fail(newErr(KindFraming, op, fmt.Errorf("unexpected BUSY")))
			}
			s.log.WithField("op", op).Debug("device busy, polling")
			continue
		default:
			return s.fail(newErr(KindFraming, op, fmt.Errorf("unexpected reply byte 0x%02x", b[0])))
		}
	}
}

// resync sends the invalid command 0xFF repeatedly until a NACK is
// observed or the 10-second budget is exhausted, per §4.4.2/§9.
func (s *Session) resync() error {
	deadline := time.Now().Add(resyncTimeout)
	buf := []byte{0xFF, 0x00}
	for time.Now().Before(deadline) {
		if err := s.port.Write(buf); err != nil {
			time.Sleep(time.Second)
			continue
		}
		var b [1]byte
		if err := s.port.ReadDeadline(b[:], time.Second); err != nil {
			continue
		}
		if b[0] == nack {
			return nil
		}
		time.Sleep(time.Second)
	}
	return newErr(KindFraming, "resync", fmt.Errorf("resync timed out"))
}

// Init runs the INIT handshake (if requested and the transport needs
// it) followed by GET, GVR, and GID, populating the session's fields.
func (s *Session) Init(sendInit bool) error {
	s.state = StateInit
	if s.caps.Has(transport.CmdInit) && sendInit {
		if err := s.port.Write([]byte{0x7F}); err != nil {
			return s.fail(newErr(KindTransport, "init", err))
		}
		var b [1]byte
		err := s.port.Read(b[:])
		switch {
		case err == nil && b[0] == ack:
			// fresh handshake
		case err == nil && b[0] == nack:
			s.log.Warn("bootloader already initialised, continuing")
		default:
			if err2 := s.port.Write([]byte{0x7F}); err2 != nil {
				return s.fail(newErr(KindTransport, "init", err2))
			}
			var b2 [1]byte
			if err2 := s.port.Read(b2[:]); err2 != nil || b2[0] != nack {
				return s.fail(newErr(KindFraming, "init", fmt.Errorf("no ACK/NACK after retry")))
			}
		}
	}

	if err := s.get(); err != nil {
		return err
	}
	if err := s.gvr(); err != nil {
		return err
	}
	if err := s.gid(); err != nil {
		return err
	}
	s.state = StateReady
	return nil
}

func (s *Session) get() error {
	opcodes, err := s.guessLenCmd("get", opGet, 10)
	if err != nil {
		return err
	}
	if len(opcodes) < 1 {
		return s.fail(newErr(KindFraming, "get", fmt.Errorf("empty GET reply")))
	}
	s.BLVer = opcodes[0]
	s.Cmd.populate(opcodes[1:])
	if err := s.expectACK("get"); err != nil {
		return err
	}
	if s.Cmd.Get == CmdErr || s.Cmd.GVR == CmdErr || s.Cmd.GID == CmdErr {
		return s.fail(newErr(KindFraming, "get", fmt.Errorf("bootloader did not return get/gvr/gid opcodes")))
	}
	return nil
}

func (s *Session) gvr() error {
	if err := s.sendCommand("gvr", s.Cmd.GVR); err != nil {
		return err
	}
	n := 1
	if s.caps.Has(transport.GVRExtended) {
		n = 3
	}
	buf := make([]byte, n)
	if err := s.port.Read(buf); err != nil {
		return s.fail(newErr(KindTransport, "gvr", err))
	}
	s.Version = buf[0]
	if n == 3 {
		s.Option1 = buf[1]
		s.Option2 = buf[2]
	}
	return s.expectACK("gvr")
}

func (s *Session) gid() error {
	data, err := s.guessLenCmd("gid", s.Cmd.GID, 1)
	if err != nil {
		return err
	}
	if len(data) < 2 {
		return s.fail(newErr(KindFraming, "gid", fmt.Errorf("short PID reply (%d bytes)", len(data))))
	}
	s.PID = uint16(data[0])<<8 | uint16(data[1])
	if err := s.expectACK("gid"); err != nil {
		return err
	}
	dev, err := catalog.Lookup(s.PID)
	if err != nil {
		return s.fail(newErr(KindFraming, "gid", err))
	}
	s.Device = dev
	return nil
}

// guessLenCmd implements §4.4.2/§9's variable-length-reply strategy.
// The wire's length byte L always means "true payload count minus one"
// (the same -1 convention RM/WM/erase use): byte-oriented transports
// read L directly then the L+1 payload bytes that follow it;
// frame-oriented transports pre-read a guessed L and resync once if
// the guess disagrees with the byte actually returned. Neither path
// consumes the trailing ACK — the caller reads that separately.
func (s *Session) guessLenCmd(op string, opcode byte, guess int) ([]byte, error) {
	if err := s.sendCommand(op, opcode); err != nil {
		return nil, err
	}
	if s.caps.Has(transport.ByteOriented) {
		var lenByte [1]byte
		if err := s.port.Read(lenByte[:]); err != nil {
			return nil, s.fail(newErr(KindTransport, op, err))
		}
		data := make([]byte, int(lenByte[0])+1)
		if err := s.port.Read(data); err != nil {
			return nil, s.fail(newErr(KindTransport, op, err))
		}
		return data, nil
	}

	buf := make([]byte, guess+2)
	if err := s.port.Read(buf); err != nil {
		return nil, s.fail(newErr(KindTransport, op, err))
	}
	if int(buf[0]) == guess {
		return buf[1:], nil
	}

	s.log.WithField("op", op).Warnf("resync (guessed len %d, got %d)", guess, buf[0])
	if err := s.resync(); err != nil {
		return nil, s.fail(err)
	}
	actual := int(buf[0])
	if err := s.sendCommand(op, opcode); err != nil {
		return nil, err
	}
	data := make([]byte, actual+2)
	if err := s.port.Read(data); err != nil {
		return nil, s.fail(newErr(KindTransport, op, err))
	}
	return data[1:], nil
}
