// Package codec implements the byte-level framing rules of the ST
// bootloader wire protocol: command bytes, their one's-complement
// checksum byte, big-endian addresses with their XOR checksum, and the
// ACK/NACK/BUSY reply alphabet. It has no notion of a transport or of
// any particular command's semantics — bootloader.Session builds on top
// of it.
package codec

import (
	"fmt"

	"github.com/daedaluz/stm32prog/transport"
)

// Reply is the single-byte status a bootloader sends back after a
// command or a data phase.
type Reply byte

const (
	ACK  Reply = 0x79
	NACK Reply = 0x1F
	BUSY Reply = 0x76
)

func (r Reply) String() string {
	switch r {
	case ACK:
		return "ACK"
	case NACK:
		return "NACK"
	case BUSY:
		return "BUSY"
	default:
		return fmt.Sprintf("0x%02x", byte(r))
	}
}

// ClassifyReply maps a raw byte to one of the three known replies, or
// reports it as unrecognized so the caller can treat it as a framing
// error rather than silently misreading it as ACK.
func ClassifyReply(b byte) (Reply, bool) {
	switch Reply(b) {
	case ACK, NACK, BUSY:
		return Reply(b), true
	default:
		return Reply(b), false
	}
}

// FrameCommand builds the on-wire bytes for a bare command: the opcode
// followed by its one's complement, optionally prefixed with the SOF
// byte a SPI transport's CmdSOF capability requires.
func FrameCommand(caps transport.Capability, opcode byte) []byte {
	cmd := [2]byte{opcode, ^opcode}
	if caps.Has(transport.CmdSOF) {
		return []byte{0x5A, cmd[0], cmd[1]}
	}
	return cmd[:]
}

// EncodeAddress returns the 4-byte big-endian address followed by its
// XOR checksum byte, as required by the Read Memory, Write Memory and Go
// address phase.
func EncodeAddress(addr uint32) [5]byte {
	var out [5]byte
	out[0] = byte(addr >> 24)
	out[1] = byte(addr >> 16)
	out[2] = byte(addr >> 8)
	out[3] = byte(addr)
	out[4] = out[0] ^ out[1] ^ out[2] ^ out[3]
	return out
}

// EncodeLengthPayload frames an N-byte payload the way Write Memory
// frames its length-prefixed data phase: a length byte (N-1, so 0 means
// 1 byte and 255 means 256 bytes) followed by the payload and a trailing
// XOR checksum covering the length byte and every payload byte.
func EncodeLengthPayload(payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > 256 {
		return nil, fmt.Errorf("codec: payload length %d out of range [1,256]", len(payload))
	}
	out := make([]byte, 0, len(payload)+2)
	lengthByte := byte(len(payload) - 1)
	out = append(out, lengthByte)
	out = append(out, payload...)
	sum := lengthByte
	for _, b := range payload {
		sum ^= b
	}
	out = append(out, sum)
	return out, nil
}

// XOR returns the running XOR of every byte in buf.
func XOR(buf []byte) byte {
	var sum byte
	for _, b := range buf {
		sum ^= b
	}
	return sum
}
