package gpio

import (
	"fmt"
	"os"
	"strconv"
)

// released describes one GPIO line this Sysfs driver altered, so
// Release can put it back the way it found it: unexport lines it
// itself exported, restore direction on lines that were already
// exported as input.
type released struct {
	gpio     int
	exported bool // true: was already exported when Drive first touched it
	wasInput bool
}

// Sysfs drives Linux sysfs GPIO lines (/sys/class/gpio/gpioN/*),
// exporting lines on first use and tracking which ones it owns so
// Release can restore or unexport them, per the resource-scoping rule
// in spec.md §5.
type Sysfs struct {
	root    string
	touched []released
}

// NewSysfs opens the sysfs GPIO driver rooted at the default
// /sys/class/gpio path.
func NewSysfs() *Sysfs { return &Sysfs{root: "/sys/class/gpio"} }

func (s *Sysfs) valueFile(n int) string     { return fmt.Sprintf("%s/gpio%d/value", s.root, n) }
func (s *Sysfs) directionFile(n int) string { return fmt.Sprintf("%s/gpio%d/direction", s.root, n) }

// Drive exports n if needed, ensures its direction is "out", and
// writes the requested level.
func (s *Sysfs) Drive(n int, level bool) error {
	exported := true
	if _, err := os.Stat(s.valueFile(n)); err != nil {
		if err := os.WriteFile(s.root+"/export", []byte(strconv.Itoa(n)), 0644); err != nil {
			return fmt.Errorf("export gpio %d: %w", n, err)
		}
		if _, err := os.Stat(s.valueFile(n)); err != nil {
			return fmt.Errorf("gpio %d not available after export: %w", n, err)
		}
		exported = false
	}

	wasInput := false
	if dir, err := os.ReadFile(s.directionFile(n)); err == nil && len(dir) > 0 && dir[0] == 'i' {
		wasInput = true
	}

	if !exported || wasInput {
		s.touched = append(s.touched, released{gpio: n, exported: exported, wasInput: wasInput})
	}

	if err := os.WriteFile(s.directionFile(n), []byte("out"), 0644); err != nil {
		return fmt.Errorf("set gpio %d direction: %w", n, err)
	}
	val := "low"
	if level {
		val = "high"
	}
	return os.WriteFile(s.valueFile(n), []byte(val), 0644)
}

// Release restores direction on lines that were pre-exported as input,
// and unexports lines this Sysfs exported itself.
func (s *Sysfs) Release() error {
	var firstErr error
	for _, t := range s.touched {
		if t.wasInput {
			if err := os.WriteFile(s.directionFile(t.gpio), []byte("in"), 0644); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if !t.exported {
			if err := os.WriteFile(s.root+"/unexport", []byte(strconv.Itoa(t.gpio)), 0644); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	s.touched = nil
	return firstErr
}
