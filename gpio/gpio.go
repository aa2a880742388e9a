// Package gpio parses the `-i SEQ[:SEQ]` entry/exit sequence grammar
// and drives either a Linux sysfs GPIO line or the transport's own
// RTS/DTR/BRK hook.
package gpio

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/daedaluz/stm32prog/transport"
)

// Step is one parsed element of a sequence: either a numeric sysfs
// GPIO number, or one of the transport's named signals.
type Step struct {
	Line  transport.GPIOLine
	GPIO  int // valid when Signal is false
	Signal bool
	Level bool // true = drive high
}

// Sequence is an ordered list of steps, each optionally followed by a
// delay before the next one (100ms for ',', none for '&').
type Sequence struct {
	Steps []Step
	// DelayAfter[i] is the delay to wait after Steps[i]: 100ms for each
	// ',' that follows it, zero after '&' or when no separator follows.
	DelayAfter []time.Duration
}

// Parse parses one half of the `-i` grammar: `step (sep step)*`. A run
// of consecutive ',' separators adds 100ms per ','.
func Parse(s string) (Sequence, error) {
	var seq Sequence
	i := 0
	for i < len(s) {
		level := true
		if s[i] == '-' {
			level = false
			i++
			if i >= len(s) {
				return Sequence{}, fmt.Errorf("gpio: dangling '-' in sequence %q", s)
			}
		}

		step, consumed, err := parseStep(s[i:], level)
		if err != nil {
			return Sequence{}, err
		}
		seq.Steps = append(seq.Steps, step)
		i += consumed

		if i >= len(s) {
			seq.DelayAfter = append(seq.DelayAfter, 0)
			break
		}
		switch s[i] {
		case ',':
			var d time.Duration
			for i < len(s) && s[i] == ',' {
				d += 100 * time.Millisecond
				i++
			}
			seq.DelayAfter = append(seq.DelayAfter, d)
		case '&':
			seq.DelayAfter = append(seq.DelayAfter, 0)
			i++
		default:
			return Sequence{}, fmt.Errorf("gpio: %q is not a valid separator in %q", string(s[i]), s)
		}
	}
	return seq, nil
}

func parseStep(s string, level bool) (Step, int, error) {
	switch {
	case strings.HasPrefix(s, "rts"):
		return Step{Signal: true, Line: transport.GPIORTS, Level: level}, 3, nil
	case strings.HasPrefix(s, "dtr"):
		return Step{Signal: true, Line: transport.GPIODTR, Level: level}, 3, nil
	case strings.HasPrefix(s, "brk"):
		return Step{Signal: true, Line: transport.GPIOBreak, Level: level}, 3, nil
	}
	j := 0
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	if j == 0 {
		return Step{}, 0, fmt.Errorf("gpio: %q is not a valid signal or gpio number", s)
	}
	n, err := strconv.Atoi(s[:j])
	if err != nil {
		return Step{}, 0, fmt.Errorf("gpio: invalid gpio number in %q: %w", s, err)
	}
	return Step{GPIO: n, Level: level}, j, nil
}

// ParseEntryExit splits the full `-i` argument into its entry and exit
// halves, separated by a single ':'. Either half may be empty.
func ParseEntryExit(arg string) (entry, exit Sequence, err error) {
	parts := strings.SplitN(arg, ":", 2)
	if parts[0] != "" {
		if entry, err = Parse(parts[0]); err != nil {
			return
		}
	}
	if len(parts) == 2 && parts[1] != "" {
		exit, err = Parse(parts[1])
	}
	return
}

// Run drives a parsed sequence: named signals go through port.GPIO,
// numeric steps through the sysfs driver.
func Run(seq Sequence, port transport.Port, sysfs *Sysfs) error {
	for i, step := range seq.Steps {
		if step.Signal {
			if err := port.GPIO(step.Line, step.Level); err != nil {
				return fmt.Errorf("gpio: signal step failed: %w", err)
			}
		} else {
			if err := sysfs.Drive(step.GPIO, step.Level); err != nil {
				return fmt.Errorf("gpio: line %d failed: %w", step.GPIO, err)
			}
		}
		if d := seq.DelayAfter[i]; d > 0 {
			time.Sleep(d)
		}
	}
	return nil
}
