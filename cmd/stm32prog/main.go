// Command stm32prog talks to an STM32's built-in UART/I2C/SPI
// bootloader to read, write, erase and protect its flash.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/daedaluz/stm32prog/program"
	"github.com/daedaluz/stm32prog/transport"
)

var (
	flagBaud     int
	flagMode     string
	flagRead     string
	flagWrite    string
	flagUnprot   bool
	flagROProt   bool
	flagROUnprot bool
	flagEraseOnly bool
	flagErasePages int
	flagVerify   bool
	flagRetry    int
	flagGo       string
	flagRange    string
	flagStartPg  int
	flagForceBin bool
	flagSkipInit bool
	flagGPIOSeq  string
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	root := &cobra.Command{
		Use:   "stm32prog <device>",
		Short: "Program an STM32 over its built-in bootloader",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], log)
		},
		SilenceUsage: true,
	}

	f := root.Flags()
	f.IntVarP(&flagBaud, "baud", "b", 115200, "UART baud rate")
	f.StringVarP(&flagMode, "mode", "m", "8e1", "UART mode, e.g. 8e1")
	f.StringVarP(&flagRead, "read", "r", "", "read flash to FILE ('-' = stdout)")
	f.StringVarP(&flagWrite, "write", "w", "", "write FILE to flash ('-' = stdin)")
	f.BoolVarP(&flagUnprot, "write-unprotect", "u", false, "disable write protection")
	f.BoolVarP(&flagROProt, "read-protect", "j", false, "enable read protection")
	f.BoolVarP(&flagROUnprot, "read-unprotect", "k", false, "disable read protection")
	f.BoolVarP(&flagEraseOnly, "erase-only", "o", false, "erase without writing")
	f.IntVarP(&flagErasePages, "erase", "e", 0, "erase N pages before write")
	f.BoolVarP(&flagVerify, "verify", "v", false, "verify writes by reading back")
	f.IntVarP(&flagRetry, "retry", "n", 10, "retry count for verify failures")
	f.StringVarP(&flagGo, "go", "g", "", "jump to ADDR after programming (0 = flash start)")
	f.StringVarP(&flagRange, "range", "S", "", "explicit byte range ADDR[:LEN]")
	f.IntVarP(&flagStartPg, "start-page", "s", -1, "start page for erase")
	f.BoolVarP(&flagForceBin, "force-binary", "f", false, "force binary file parser")
	f.BoolVarP(&flagSkipInit, "skip-init", "c", false, "skip the INIT byte, bootloader already initialised")
	f.StringVarP(&flagGPIOSeq, "gpio", "i", "", "GPIO entry[:exit] sequence")

	if err := root.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func run(device string, log *logrus.Logger) error {
	req, err := buildRequest(device)
	if err != nil {
		return err
	}
	sess, err := program.Run(req, log, nil)
	if err != nil {
		return err
	}
	return sess.Close()
}

func buildRequest(device string) (*program.Request, error) {
	req := &program.Request{
		Device:      device,
		ForceBinary: flagForceBin,
		Verify:      flagVerify,
		Retry:       flagRetry,
		SkipInit:    flagSkipInit,
	}
	req.Opts = transport.DefaultOptions()
	req.Opts.Baud = flagBaud
	req.Opts.Mode = flagMode

	if flagGPIOSeq != "" {
		parts := strings.SplitN(flagGPIOSeq, ":", 2)
		req.EntrySeq = parts[0]
		if len(parts) == 2 {
			req.ExitSeq = parts[1]
		}
	}

	if flagRange != "" {
		if flagStartPg >= 0 || flagErasePages > 0 {
			return nil, fmt.Errorf("-S is mutually exclusive with -s/-e")
		}
		start, length, err := parseRange(flagRange)
		if err != nil {
			return nil, err
		}
		req.HasRange = true
		req.Start = start
		req.End = start + length
	}
	if flagStartPg >= 0 || flagErasePages > 0 {
		req.HasPages = true
		if flagStartPg >= 0 {
			req.SPage = uint16(flagStartPg)
		}
		req.NPages = uint32(flagErasePages)
	}

	switch {
	case flagUnprot:
		req.Op = program.OpWriteUnprotect
	case flagROProt:
		req.Op = program.OpReadProtect
	case flagROUnprot:
		req.Op = program.OpReadUnprotect
	case flagEraseOnly:
		req.Op = program.OpEraseOnly
	case flagWrite != "":
		req.Op = program.OpWrite
		req.File = flagWrite
	case flagRead != "":
		req.Op = program.OpRead
		req.File = flagRead
	case flagGo != "":
		req.Op = program.OpGo
	default:
		return nil, fmt.Errorf("no operation requested: pass one of -r/-w/-u/-j/-k/-o/-g")
	}

	if flagGo != "" {
		addr, err := strconv.ParseUint(flagGo, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid -g address %q: %w", flagGo, err)
		}
		if addr%4 != 0 {
			return nil, fmt.Errorf("-g address must be word-aligned")
		}
		req.DoGo = true
		req.GoAddress = uint32(addr)
	}

	return req, nil
}

func parseRange(s string) (start, length uint32, err error) {
	parts := strings.SplitN(s, ":", 2)
	a, err := strconv.ParseUint(parts[0], 0, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range address %q: %w", parts[0], err)
	}
	if len(parts) == 1 {
		return uint32(a), 0, nil
	}
	l, err := strconv.ParseUint(parts[1], 0, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range length %q: %w", parts[1], err)
	}
	return uint32(a), uint32(l), nil
}
