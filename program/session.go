package program

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/daedaluz/stm32prog/bootloader"
	"github.com/daedaluz/stm32prog/firmware"
	"github.com/daedaluz/stm32prog/gpio"
	"github.com/daedaluz/stm32prog/transport"
)

const chunkSize = 256

// Run executes one Request end to end: open the transport, run the
// GPIO entry sequence, negotiate (unless reusing a session), dispatch
// the requested operation, then run GO or the exit sequence/RAM-stub
// reset.
//
// sess is nil on a fresh CLI invocation; library callers may supply a
// previously-negotiated *bootloader.Session, in which case no handshake
// runs at all. req.SkipInit (-c) only suppresses the 0x7F INIT byte of a
// fresh handshake; GET, GVR and GID still run.
func Run(req *Request, log *logrus.Logger, sess *bootloader.Session) (*bootloader.Session, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var entry, exit gpio.Sequence
	var err error
	if req.EntrySeq != "" {
		if entry, err = gpio.Parse(req.EntrySeq); err != nil {
			return nil, err
		}
	}
	if req.ExitSeq != "" {
		if exit, err = gpio.Parse(req.ExitSeq); err != nil {
			return nil, err
		}
	}

	reused := sess != nil
	if !reused {
		port, err := transport.Open(req.Device, req.Opts,
			transport.OpenUART, transport.OpenI2C, transport.OpenSPI)
		if err != nil {
			return nil, fmt.Errorf("program: open %q: %w", req.Device, err)
		}
		sess = bootloader.New(port, log)
	}
	port := sess.Port()
	sysfs := gpio.NewSysfs()
	defer sysfs.Release()

	if len(entry.Steps) > 0 {
		if err := gpio.Run(entry, port, sysfs); err != nil {
			sess.Close()
			return nil, err
		}
	}

	if !reused {
		if err := sess.Init(!req.SkipInit); err != nil {
			sess.Close()
			return nil, err
		}
	}

	selfReset := false
	switch req.Op {
	case OpRead:
		err = runRead(req, sess)
	case OpWrite:
		err = runWrite(req, sess)
	case OpEraseOnly:
		err = runEraseOnly(req, sess)
	case OpWriteUnprotect:
		err = sess.WriteUnprotect()
		selfReset = true
	case OpReadProtect:
		err = sess.ReadProtect()
		selfReset = true
	case OpReadUnprotect:
		err = sess.ReadUnprotect()
		selfReset = true
	case OpGo:
		req.DoGo = true
	default:
		err = fmt.Errorf("program: unknown op %d", req.Op)
	}
	if err != nil {
		sess.Close()
		return nil, err
	}

	switch {
	case req.DoGo:
		addr := req.GoAddress
		if addr == 0 {
			addr = sess.Device.FlashStart
		}
		err = sess.Go(addr)
	case selfReset:
		// the device already reset itself as a side effect of the
		// protect command; no exit sequence/RAM-stub needed.
	case len(exit.Steps) > 0:
		err = gpio.Run(exit, port, sysfs)
	case req.Op == OpRead:
		// A bare read never leaves the device mid-program, so there is
		// nothing to reset back out of; the reference stm32flash tool
		// doesn't reset after a read either.
	default:
		err = sess.ResetViaRAMStub()
	}
	if err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

func runRead(req *Request, sess *bootloader.Session) error {
	start, end, err := resolveRange(req, sess)
	if err != nil {
		return err
	}

	// Reading defaults to the binary parser regardless of -f: §4.5 only
	// auto-detects Intel-HEX on the write path. -f still forces binary
	// explicitly for callers that pass it on a read too.
	parser := firmware.Parser(firmware.NewBinary())

	total := int((end - start + chunkSize - 1) / chunkSize)
	done := 0
	buf := make([]byte, chunkSize)
	for addr := start; addr < end; addr += chunkSize {
		n := chunkSize
		if remain := end - addr; remain < chunkSize {
			n = int(remain)
		}
		if err := sess.ReadMemory(addr, buf[:n]); err != nil {
			return fmt.Errorf("program: read at 0x%08x: %w", addr, err)
		}
		parser.Store(addr, buf[:n])
		done++
		if req.Progress != nil {
			req.Progress(done, total)
		}
	}

	return writeOut(req.File, parser)
}

func runWrite(req *Request, sess *bootloader.Session) error {
	var parser firmware.Parser
	if req.ForceBinary || req.File == "-" {
		parser = firmware.NewBinary()
		if err := readIn(req.File, parser); err != nil {
			return err
		}
	} else {
		parser = firmware.NewHex()
		if err := readIn(req.File, parser); err != nil {
			// Not an Intel HEX file: load it as a flat binary image.
			parser = firmware.NewBinary()
			if err := readIn(req.File, parser); err != nil {
				return err
			}
		}
	}
	data := parser.Data()
	base := parser.BaseAddress()
	if base == 0 {
		base = sess.Device.FlashStart
	}

	spage, npages, err := eraseSpan(req, sess, base, uint32(len(data)))
	if err != nil {
		return err
	}
	if err := sess.Erase(spage, npages); err != nil {
		return fmt.Errorf("program: erase: %w", err)
	}

	total := (len(data) + chunkSize - 1) / chunkSize
	done := 0
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]
		addr := base + uint32(off)

		if err := writeChunkVerified(req, sess, addr, chunk); err != nil {
			return err
		}
		done++
		if req.Progress != nil {
			req.Progress(done, total)
		}
	}
	return nil
}

func writeChunkVerified(req *Request, sess *bootloader.Session, addr uint32, chunk []byte) error {
	attempts := 1
	if req.Verify {
		attempts = req.Retry
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := sess.WriteMemory(addr, chunk); err != nil {
			lastErr = fmt.Errorf("program: write at 0x%08x: %w", addr, err)
			continue
		}
		if !req.Verify {
			return nil
		}
		readBack := make([]byte, len(chunk))
		if err := sess.ReadMemory(addr, readBack); err != nil {
			lastErr = fmt.Errorf("program: verify-read at 0x%08x: %w", addr, err)
			continue
		}
		if bytes.Equal(readBack, chunk) {
			return nil
		}
		lastErr = fmt.Errorf("program: verify mismatch at 0x%08x", addr)
	}
	return lastErr
}

func runEraseOnly(req *Request, sess *bootloader.Session) error {
	spage, npages, err := eraseSpan(req, sess, sess.Device.FlashStart, 0)
	if err != nil {
		return err
	}
	return sess.Erase(spage, npages)
}

// eraseSpan determines the minimum page-aligned span covering the
// requested range, or the whole chip when neither -s/-e nor -S/length
// was given and this is a write with no range either.
func eraseSpan(req *Request, sess *bootloader.Session, base uint32, dataLen uint32) (spage uint16, npages uint32, err error) {
	if req.HasPages {
		return req.SPage, req.NPages, nil
	}
	pageSize := uint32(sess.Device.PageSize)
	if pageSize == 0 {
		return 0, bootloader.MassErase, nil // no page geometry known: mass erase
	}

	var start, end uint32
	switch {
	case req.HasRange:
		start, end = req.Start, req.End
	case dataLen > 0:
		start, end = base, base+dataLen
	default:
		return 0, bootloader.MassErase, nil
	}

	flashStart := sess.Device.FlashStart
	firstPage := (start - flashStart) / pageSize
	lastPage := (end - 1 - flashStart) / pageSize
	return uint16(firstPage), lastPage - firstPage + 1, nil
}

func resolveRange(req *Request, sess *bootloader.Session) (start, end uint32, err error) {
	if req.HasRange {
		return req.Start, req.End, nil
	}
	return sess.Device.FlashStart, sess.Device.FlashEnd, nil
}

func readIn(path string, parser firmware.Parser) error {
	if path == "-" {
		return parser.Load(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("program: open %q: %w", path, err)
	}
	defer f.Close()
	return parser.Load(f)
}

func writeOut(path string, parser firmware.Parser) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("program: create %q: %w", path, err)
		}
		defer f.Close()
		w = f
	}
	return parser.Save(w)
}
