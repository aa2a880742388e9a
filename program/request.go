// Package program composes transport, bootloader, firmware and gpio
// into the end-to-end operations the CLI exposes: read, write (with
// optional verify), erase-only, protect toggles and go.
package program

import (
	"fmt"

	"github.com/daedaluz/stm32prog/transport"
)

// Op selects which single top-level action a Request performs.
type Op int

const (
	OpRead Op = iota
	OpWrite
	OpEraseOnly
	OpWriteUnprotect
	OpReadProtect
	OpReadUnprotect
	OpGo
)

// Request is the parsed form of the CLI flags described in spec.md §6,
// independent of how they were gathered (flag package, library caller).
type Request struct {
	Op Op

	Device string
	Opts   transport.Options

	File         string // "-" means stdin/stdout
	ForceBinary  bool
	Verify       bool
	Retry        int

	// Address range: either Start/End (from -S) or SPage/NPages (from
	// -s/-e). HasRange / HasPages report which, if either, was set.
	Start, End       uint32
	HasRange         bool
	SPage            uint16
	NPages           uint32
	HasPages         bool

	GoAddress uint32
	DoGo      bool

	SkipInit bool // -c

	EntrySeq, ExitSeq string // raw -i grammar halves

	// Progress, if non-nil, is invoked once per 256-byte chunk moved.
	Progress func(done, total int)
}

func (r *Request) validate() error {
	if r.HasRange && r.HasPages {
		return fmt.Errorf("program: -S is mutually exclusive with -s/-e")
	}
	if r.Retry <= 0 {
		r.Retry = 10
	}
	return nil
}
